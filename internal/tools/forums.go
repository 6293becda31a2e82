package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/mohammad-safakhou/curricula/models"
)

// AllForumsTool fans out over every community source at once. Individual
// source failures are tolerated and contribute no data.
type AllForumsTool struct {
	deps Deps
}

func (t *AllForumsTool) Name() string { return "search_all_forums" }

func (t *AllForumsTool) Description() string {
	return "Search reddit, quora, review sites and education forums for learner sentiment in one pass"
}

func (t *AllForumsTool) Parameters() map[string]string {
	return map[string]string{
		"topic": "the course topic to gather community sentiment for",
	}
}

func (t *AllForumsTool) Execute(ctx context.Context, args map[string]interface{}, progress ProgressFunc) (interface{}, error) {
	topic := stringArg(args, "topic")
	if topic == "" {
		topic = stringArg(args, "query")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	type branch struct {
		name   string
		site   string
		query  string
		source string
	}
	branches := []branch{
		{"reddit", "reddit.com", topic + " course review", "reddit"},
		{"quora", "quora.com", topic + " course worth it", "quora"},
		{"course_reviews", "coursereport.com", topic, "course_reviews"},
		{"education_forums", "community.coursera.org", topic, "education_forums"},
		{"course_rankings", "classcentral.com", topic + " best courses", "course_rankings"},
	}

	if progress != nil {
		progress(fmt.Sprintf("Searching %d community sources for %q...", len(branches), topic))
	}

	results := make([][]models.ForumPost, len(branches))
	var wg sync.WaitGroup
	for i, b := range branches {
		wg.Add(1)
		go func(i int, b branch) {
			defer wg.Done()
			posts, err := siteSearch(ctx, t.deps, b.site, b.query, b.source)
			if err != nil {
				t.deps.Logger.Printf("forum branch %s failed: %v", b.name, err)
				return
			}
			results[i] = posts
			if progress != nil {
				progress(fmt.Sprintf("Found %d %s posts", len(posts), b.name))
			}
		}(i, b)
	}
	wg.Wait()

	data := models.ForumSearchData{
		Reddit:          results[0],
		Quora:           results[1],
		CourseReviews:   results[2],
		EducationForums: results[3],
		CourseRankings:  results[4],
	}
	if len(data.Reddit)+len(data.Quora)+len(data.CourseReviews)+len(data.EducationForums)+len(data.CourseRankings) == 0 {
		return nil, fmt.Errorf("no forum results found for %q", topic)
	}
	return data, nil
}
