package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mohammad-safakhou/curricula/models"
)

var listenNotesURL = "https://listen-api.listennotes.com/api/v2/search"

// PodcastTool finds podcasts on a topic via the Listen Notes API, falling
// back to web search when no API key is configured or the call fails.
type PodcastTool struct {
	deps Deps
}

func (t *PodcastTool) Name() string { return "find_podcasts" }

func (t *PodcastTool) Description() string {
	return "Find podcasts covering a topic, with publisher and episode details"
}

func (t *PodcastTool) Parameters() map[string]string {
	return map[string]string{
		"topic": "the topic to find podcasts about",
	}
}

func (t *PodcastTool) Execute(ctx context.Context, args map[string]interface{}, progress ProgressFunc) (interface{}, error) {
	topic := stringArg(args, "topic")
	if topic == "" {
		topic = stringArg(args, "query")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	return findPodcasts(ctx, t.deps, topic, progress)
}

// EducationalPodcastTool narrows the podcast search to teaching-oriented
// shows.
type EducationalPodcastTool struct {
	deps Deps
}

func (t *EducationalPodcastTool) Name() string { return "find_educational_podcasts" }

func (t *EducationalPodcastTool) Description() string {
	return "Find podcasts that teach a topic (tutorials, career advice, learning paths)"
}

func (t *EducationalPodcastTool) Parameters() map[string]string {
	return map[string]string{
		"topic": "the topic to find educational podcasts about",
	}
}

func (t *EducationalPodcastTool) Execute(ctx context.Context, args map[string]interface{}, progress ProgressFunc) (interface{}, error) {
	topic := stringArg(args, "topic")
	if topic == "" {
		topic = stringArg(args, "query")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	return findPodcasts(ctx, t.deps, topic+" learning education", progress)
}

func findPodcasts(ctx context.Context, deps Deps, topic string, progress ProgressFunc) ([]models.Podcast, error) {
	if deps.Search.ListenNotesAPIKey != "" {
		if progress != nil {
			progress(fmt.Sprintf("Searching podcast directory for %q...", topic))
		}
		podcasts, err := listenNotesSearch(ctx, deps.Search.ListenNotesAPIKey, topic)
		if err == nil && len(podcasts) > 0 {
			return podcasts, nil
		}
		if err != nil {
			deps.Logger.Printf("listen notes search failed, falling back to web: %v", err)
		}
	}

	if progress != nil {
		progress("Searching the web for podcasts...")
	}
	results, err := deps.Searcher.Search(ctx, fmt.Sprintf("%s podcast", topic), deps.Search.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("podcast search: %w", err)
	}

	podcasts := make([]models.Podcast, 0, len(results))
	for _, r := range results {
		podcasts = append(podcasts, models.Podcast{
			Name:        cleanPodcastTitle(r.Title),
			URL:         r.URL,
			Description: r.Snippet,
			Source:      "web",
		})
	}
	if len(podcasts) == 0 {
		return nil, fmt.Errorf("no podcasts found for %q", topic)
	}
	return podcasts, nil
}

func listenNotesSearch(ctx context.Context, apiKey, topic string) ([]models.Podcast, error) {
	endpoint := fmt.Sprintf("%s?q=%s&type=podcast&safe_mode=1", listenNotesURL, url.QueryEscape(topic))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-ListenAPI-Key", apiKey)

	client := &http.Client{Timeout: 20 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("listen notes: status %d: %s", resp.StatusCode, string(body))
	}

	var raw struct {
		Results []struct {
			TitleOriginal       string `json:"title_original"`
			PublisherOriginal   string `json:"publisher_original"`
			ListenNotesURL      string `json:"listennotes_url"`
			DescriptionOriginal string `json:"description_original"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("listen notes: decode: %w", err)
	}

	podcasts := make([]models.Podcast, 0, len(raw.Results))
	for _, r := range raw.Results {
		desc := r.DescriptionOriginal
		if len(desc) > 300 {
			desc = desc[:300]
		}
		podcasts = append(podcasts, models.Podcast{
			Name:        r.TitleOriginal,
			Publisher:   r.PublisherOriginal,
			URL:         r.ListenNotesURL,
			Description: desc,
			Source:      "listennotes",
		})
	}
	return podcasts, nil
}

// cleanPodcastTitle strips platform suffixes from search result titles.
func cleanPodcastTitle(title string) string {
	for _, suffix := range []string{" | Spotify", " - Apple Podcasts", " | Podcast on Spotify", " on Apple Podcasts"} {
		title = strings.TrimSuffix(title, suffix)
	}
	return strings.TrimSpace(title)
}
