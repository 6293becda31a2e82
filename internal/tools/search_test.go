package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/curricula/config"
	"github.com/mohammad-safakhou/curricula/internal/llm"
	"github.com/mohammad-safakhou/curricula/models"
)

func TestCleanForumTitle(t *testing.T) {
	if got := cleanForumTitle("What is the best welding course? - Quora", "quora"); got != "What is the best welding course?" {
		t.Fatalf("quora title = %q", got)
	}
	if got := cleanForumTitle("Best course I took : r/Welding", "reddit"); got != "Best course I took" {
		t.Fatalf("reddit title = %q", got)
	}
	if got := cleanForumTitle("Plain title", "reddit"); got != "Plain title" {
		t.Fatalf("plain title = %q", got)
	}
}

func TestBaseDomain(t *testing.T) {
	cases := map[string]string{
		"https://www.udemy.com/course/x": "udemy.com",
		"https://blog.example.org/post":  "blog.example.org",
		"garbage":                        "garbage",
	}
	for in, want := range cases {
		if got := baseDomain(in); got != want {
			t.Fatalf("baseDomain(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRedditSearchBuildsSiteQuery(t *testing.T) {
	searcher := &fakeSearcher{results: []models.SearchResult{
		{Title: "Course advice : r/Welding", URL: "https://reddit.com/r/welding/1", Snippet: "go to trade school"},
	}}
	tool := &RedditSearchTool{deps: testDeps(searcher)}

	got, err := tool.Execute(context.Background(), map[string]interface{}{"query": "welding"}, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	posts := got.([]models.ForumPost)
	if len(posts) != 1 {
		t.Fatalf("got %d posts", len(posts))
	}
	if posts[0].Source != "reddit" {
		t.Fatalf("source = %s", posts[0].Source)
	}
	if posts[0].Title != "Course advice" {
		t.Fatalf("title = %q", posts[0].Title)
	}
	if !strings.Contains(searcher.queries[0], "site:reddit.com") {
		t.Fatalf("query = %q, want site-restricted", searcher.queries[0])
	}
}

func TestAllForumsToleratesBranchFailure(t *testing.T) {
	// Searcher fails every call: the tool must report an error, not panic.
	tool := &AllForumsTool{deps: testDeps(&fakeSearcher{err: fmt.Errorf("down")})}
	if _, err := tool.Execute(context.Background(), map[string]interface{}{"topic": "welding"}, nil); err == nil {
		t.Fatal("expected error when every branch fails")
	}

	// Searcher succeeds: all branches land in their buckets.
	searcher := &fakeSearcher{results: []models.SearchResult{
		{Title: "Post", URL: "https://x.com/1", Snippet: "s"},
	}}
	tool = &AllForumsTool{deps: testDeps(searcher)}
	got, err := tool.Execute(context.Background(), map[string]interface{}{"topic": "welding"}, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	data := got.(models.ForumSearchData)
	if len(data.Reddit) != 1 || len(data.Quora) != 1 || len(data.CourseRankings) != 1 {
		t.Fatalf("branches not populated: %+v", data)
	}
}

func TestBlogToolDedupesByDomain(t *testing.T) {
	searcher := &fakeSearcher{results: []models.SearchResult{
		{Title: "Welding Blog A", URL: "https://weld.example.com/a", Snippet: "a"},
		{Title: "Welding Blog B", URL: "https://weld.example.com/b", Snippet: "b"},
		{Title: "Other Blog", URL: "https://other.example.org/c", Snippet: "c"},
	}}
	tool := &BlogTool{deps: testDeps(searcher)}

	got, err := tool.Execute(context.Background(), map[string]interface{}{"topic": "welding"}, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	blogs := got.([]models.Blog)
	if len(blogs) != 2 {
		t.Fatalf("got %d blogs, want 2 (one per domain): %+v", len(blogs), blogs)
	}
}

func TestPodcastToolFallsBackToWeb(t *testing.T) {
	searcher := &fakeSearcher{results: []models.SearchResult{
		{Title: "The Welding Show | Spotify", URL: "https://open.spotify.com/show/1", Snippet: "weekly"},
	}}
	tool := &PodcastTool{deps: testDeps(searcher)} // no listen notes key

	got, err := tool.Execute(context.Background(), map[string]interface{}{"topic": "welding"}, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	podcasts := got.([]models.Podcast)
	if len(podcasts) != 1 {
		t.Fatalf("got %d podcasts", len(podcasts))
	}
	if podcasts[0].Name != "The Welding Show" {
		t.Fatalf("suffix not stripped: %q", podcasts[0].Name)
	}
	if podcasts[0].Source != "web" {
		t.Fatalf("source = %s", podcasts[0].Source)
	}
}

func TestListenNotesSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-ListenAPI-Key") != "k" {
			t.Errorf("missing api key header")
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"results":[{"title_original":"Weld Talk","publisher_original":"Weld Co","listennotes_url":"https://listennotes.com/weld","description_original":"All about welding"}]}`)
	}))
	defer srv.Close()

	old := listenNotesURL
	listenNotesURL = srv.URL
	defer func() { listenNotesURL = old }()

	podcasts, err := listenNotesSearch(context.Background(), "k", "welding")
	if err != nil {
		t.Fatalf("listenNotesSearch: %v", err)
	}
	if len(podcasts) != 1 || podcasts[0].Name != "Weld Talk" || podcasts[0].Source != "listennotes" {
		t.Fatalf("unexpected podcasts %+v", podcasts)
	}
}

func TestContentAnalysisTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"content":[{"type":"text","text":"{\"sentiment_summary\":\"Learners are frustrated with outdated material.\",\"trending_topics\":[\"hands-on practice\"],\"key_insights\":[\"demand for certification prep\"]}"}],"usage":{"input_tokens":1,"output_tokens":1}}`)
	}))
	defer srv.Close()

	router := testRouter(t, srv.URL)
	deps := testDeps(&fakeSearcher{})
	deps.LLM = router
	tool := &ContentAnalysisTool{deps: deps}

	got, err := tool.Execute(context.Background(), map[string]interface{}{
		"content":       "reddit says the course is outdated",
		"analysis_type": "sentiment",
	}, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	data := got.(models.ContentAnalysisData)
	if data.SentimentSummary == "" {
		t.Fatal("sentiment summary empty")
	}
	if data.AnalysisType != "sentiment" {
		t.Fatalf("analysis type = %s", data.AnalysisType)
	}
}

func TestContentAnalysisRejectsUnknownType(t *testing.T) {
	tool := &ContentAnalysisTool{deps: testDeps(&fakeSearcher{})}
	if _, err := tool.Execute(context.Background(), map[string]interface{}{
		"content":       "text",
		"analysis_type": "astrology",
	}, nil); err == nil {
		t.Fatal("expected error for unknown analysis type")
	}
}

func testRouter(t *testing.T, baseURL string) *llm.Router {
	t.Helper()
	router, err := llm.NewRouter(config.LLMConfig{
		Providers: map[string]config.LLMProvider{
			"anthropic": {
				Type:    "anthropic",
				APIKey:  "test",
				BaseURL: baseURL,
				Models: map[string]config.LLMModel{
					"claude-sonnet": {Name: "claude-sonnet", MaxTokens: 8192},
				},
				Timeout: 5 * time.Second,
			},
		},
		Routing: config.LLMRoutingConfig{
			Reasoning: "claude-sonnet", Reflection: "claude-sonnet",
			Extraction: "claude-sonnet", Research: "claude-sonnet", Fallback: "claude-sonnet",
		},
	})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return router
}
