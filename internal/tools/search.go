package tools

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mohammad-safakhou/curricula/models"
)

// GoogleSearchTool runs one plain web search. Results feed the competitor
// list in the accumulator.
type GoogleSearchTool struct {
	deps Deps
}

func (t *GoogleSearchTool) Name() string { return "search_google" }

func (t *GoogleSearchTool) Description() string {
	return "Search the web for competitors, providers and general information about a topic"
}

func (t *GoogleSearchTool) Parameters() map[string]string {
	return map[string]string{
		"query":       "the search query",
		"num_results": "number of results to return (default 10)",
	}
}

func (t *GoogleSearchTool) Execute(ctx context.Context, args map[string]interface{}, progress ProgressFunc) (interface{}, error) {
	query := stringArg(args, "query")
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	num := intArg(args, "num_results", t.deps.Search.MaxResults)

	if progress != nil {
		progress(fmt.Sprintf("Searching the web for %q...", query))
	}
	results, err := t.deps.Searcher.Search(ctx, query, num)
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}
	return results, nil
}

// CourseRankingsTool searches ranking and review articles and converts the
// hits into course entries.
type CourseRankingsTool struct {
	deps Deps
}

func (t *CourseRankingsTool) Name() string { return "search_course_rankings" }

func (t *CourseRankingsTool) Description() string {
	return "Search for ranked and reviewed courses on a topic (best-of lists, comparison articles)"
}

func (t *CourseRankingsTool) Parameters() map[string]string {
	return map[string]string{
		"topic": "the course topic to find rankings for",
	}
}

func (t *CourseRankingsTool) Execute(ctx context.Context, args map[string]interface{}, progress ProgressFunc) (interface{}, error) {
	topic := stringArg(args, "topic")
	if topic == "" {
		topic = stringArg(args, "query")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	year := time.Now().Year()
	query := fmt.Sprintf("best %s courses %d ranking review", topic, year)
	if progress != nil {
		progress(fmt.Sprintf("Searching course rankings for %q...", topic))
	}
	results, err := t.deps.Searcher.Search(ctx, query, t.deps.Search.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("ranking search: %w", err)
	}

	courses := make([]models.Course, 0, len(results))
	for _, r := range results {
		courses = append(courses, models.Course{
			Name:     r.Title,
			Provider: baseDomain(r.URL),
			URL:      r.URL,
		})
	}
	return courses, nil
}

// RedditSearchTool finds community discussions on reddit.
type RedditSearchTool struct {
	deps Deps
}

func (t *RedditSearchTool) Name() string { return "search_reddit" }

func (t *RedditSearchTool) Description() string {
	return "Search reddit for discussions, complaints and recommendations about courses on a topic"
}

func (t *RedditSearchTool) Parameters() map[string]string {
	return map[string]string{
		"query": "what to look for in reddit discussions",
	}
}

func (t *RedditSearchTool) Execute(ctx context.Context, args map[string]interface{}, progress ProgressFunc) (interface{}, error) {
	query := stringArg(args, "query")
	if query == "" {
		query = stringArg(args, "topic")
	}
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if progress != nil {
		progress("Searching reddit discussions...")
	}
	return siteSearch(ctx, t.deps, "reddit.com", query+" course", "reddit")
}

// QuoraSearchTool finds questions and answers on quora.
type QuoraSearchTool struct {
	deps Deps
}

func (t *QuoraSearchTool) Name() string { return "search_quora" }

func (t *QuoraSearchTool) Description() string {
	return "Search quora for questions and answers about learning a topic"
}

func (t *QuoraSearchTool) Parameters() map[string]string {
	return map[string]string{
		"query": "what to look for in quora questions",
	}
}

func (t *QuoraSearchTool) Execute(ctx context.Context, args map[string]interface{}, progress ProgressFunc) (interface{}, error) {
	query := stringArg(args, "query")
	if query == "" {
		query = stringArg(args, "topic")
	}
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if progress != nil {
		progress("Searching quora questions...")
	}
	return siteSearch(ctx, t.deps, "quora.com", query+" course learn", "quora")
}

// siteSearch runs a site-restricted query and normalizes the hits into
// forum posts.
func siteSearch(ctx context.Context, deps Deps, site, query, source string) ([]models.ForumPost, error) {
	results, err := deps.Searcher.Search(ctx, fmt.Sprintf("site:%s %s", site, query), deps.Search.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("%s search: %w", source, err)
	}
	posts := make([]models.ForumPost, 0, len(results))
	for _, r := range results {
		posts = append(posts, models.ForumPost{
			Title:   cleanForumTitle(r.Title, source),
			URL:     r.URL,
			Snippet: r.Snippet,
			Source:  source,
		})
	}
	return posts, nil
}

// cleanForumTitle strips the site suffix search engines append to titles.
func cleanForumTitle(title, source string) string {
	switch source {
	case "quora":
		title = strings.TrimSuffix(title, " - Quora")
	case "reddit":
		if idx := strings.LastIndex(title, " : r/"); idx > 0 {
			title = title[:idx]
		}
	}
	return strings.TrimSpace(title)
}

// baseDomain extracts the registrable host from a URL, dropping "www.".
func baseDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return strings.TrimPrefix(u.Host, "www.")
}
