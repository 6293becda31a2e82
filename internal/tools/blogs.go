package tools

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/curricula/models"
)

// BlogTool finds blogs and long-form articles about learning a topic.
// Results are deduplicated by domain so one prolific blog does not crowd
// out the rest.
type BlogTool struct {
	deps Deps
}

func (t *BlogTool) Name() string { return "find_blogs" }

func (t *BlogTool) Description() string {
	return "Find blogs and articles about learning a topic, one per domain"
}

func (t *BlogTool) Parameters() map[string]string {
	return map[string]string{
		"topic": "the topic to find blogs about",
	}
}

func (t *BlogTool) Execute(ctx context.Context, args map[string]interface{}, progress ProgressFunc) (interface{}, error) {
	topic := stringArg(args, "topic")
	if topic == "" {
		topic = stringArg(args, "query")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	queries := []string{
		fmt.Sprintf("%s blog", topic),
		fmt.Sprintf("learn %s blog articles", topic),
		fmt.Sprintf("%s tutorial blog site", topic),
	}

	if progress != nil {
		progress(fmt.Sprintf("Searching blogs for %q...", topic))
	}

	seen := make(map[string]bool)
	var blogs []models.Blog
	for _, q := range queries {
		results, err := t.deps.Searcher.Search(ctx, q, t.deps.Search.MaxResults)
		if err != nil {
			t.deps.Logger.Printf("blog search %q failed: %v", q, err)
			continue
		}
		for _, r := range results {
			domain := baseDomain(r.URL)
			if domain == "" || seen[domain] {
				continue
			}
			seen[domain] = true
			blogs = append(blogs, models.Blog{
				Title:   r.Title,
				URL:     r.URL,
				Snippet: r.Snippet,
				Domain:  domain,
			})
		}
	}

	if len(blogs) == 0 {
		return nil, fmt.Errorf("no blogs found for %q", topic)
	}
	if progress != nil {
		progress(fmt.Sprintf("Found %d blogs", len(blogs)))
	}
	return blogs, nil
}
