package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mohammad-safakhou/curricula/models"
)

const braveURL = "https://api.search.brave.com/res/v1/web/search"

// Brave queries the Brave web search API.
// https://api.search.brave.com/app/documentation/web-search
type Brave struct {
	APIKey string
	Client *http.Client
}

func (b *Brave) httpClient() *http.Client {
	if b.Client != nil {
		return b.Client
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (b *Brave) Search(ctx context.Context, query string, num int) ([]models.SearchResult, error) {
	if num <= 0 {
		num = 10
	}
	endpoint := fmt.Sprintf("%s?q=%s&count=%d", braveURL, url.QueryEscape(query), num)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.APIKey)

	resp, err := b.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("brave: status %d: %s", resp.StatusCode, string(body))
	}

	var raw struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("brave: decode: %w", err)
	}

	out := make([]models.SearchResult, 0, len(raw.Web.Results))
	for i, r := range raw.Web.Results {
		if i >= num {
			break
		}
		out = append(out, models.SearchResult{
			Title:    r.Title,
			URL:      r.URL,
			Snippet:  r.Description,
			Position: i + 1,
		})
	}
	return out, nil
}
