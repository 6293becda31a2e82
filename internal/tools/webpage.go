package tools

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/curricula/models"
)

// WebpageScrapeTool fetches an arbitrary page and returns its content as a
// curriculum entry so competitor syllabi land in the accumulator.
type WebpageScrapeTool struct {
	deps Deps
}

func (t *WebpageScrapeTool) Name() string { return "scrape_webpage" }

func (t *WebpageScrapeTool) Description() string {
	return "Fetch a single web page and capture its course or syllabus content"
}

func (t *WebpageScrapeTool) Parameters() map[string]string {
	return map[string]string{
		"url": "the page url to fetch",
	}
}

func (t *WebpageScrapeTool) Execute(ctx context.Context, args map[string]interface{}, progress ProgressFunc) (interface{}, error) {
	pageURL := stringArg(args, "url")
	if pageURL == "" {
		return nil, fmt.Errorf("url is required")
	}

	if progress != nil {
		progress(fmt.Sprintf("Fetching %s...", pageURL))
	}
	page, err := t.deps.Scraper.Fetch(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("scrape: %w", err)
	}
	if page.Text == "" && len(page.Headings) == 0 && len(page.ListItems) == 0 {
		return nil, fmt.Errorf("no content extracted from %s", pageURL)
	}

	curriculum := models.Curriculum{
		CourseName: page.Title,
		URL:        pageURL,
		Provider:   baseDomain(pageURL),
	}
	for _, h := range truncateList(page.Headings, 30) {
		curriculum.Modules = append(curriculum.Modules, models.Module{Name: h})
	}
	if len(curriculum.Modules) == 0 {
		for _, item := range truncateList(page.ListItems, 30) {
			curriculum.Modules = append(curriculum.Modules, models.Module{Name: item})
		}
	}
	if progress != nil {
		progress(fmt.Sprintf("Captured %q with %d sections", page.Title, len(curriculum.Modules)))
	}
	return curriculum, nil
}
