package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mohammad-safakhou/curricula/models"
)

const serperURL = "https://google.serper.dev/search"

// Serper queries the serper.dev Google wrapper.
// https://serper.dev/ docs
type Serper struct {
	APIKey  string
	Client  *http.Client
	Retries int
}

func (s *Serper) httpClient() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (s *Serper) Search(ctx context.Context, query string, num int) ([]models.SearchResult, error) {
	if num <= 0 {
		num = 10
	}
	payload, err := json.Marshal(map[string]any{"q": query, "num": num})
	if err != nil {
		return nil, err
	}

	retries := s.Retries
	if retries <= 0 {
		retries = 3
	}

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, serperURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-API-KEY", s.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient().Do(req)
		if err != nil {
			lastErr = err
		} else {
			results, retry, err := decodeSerper(resp, num)
			if err == nil {
				return results, nil
			}
			lastErr = err
			if !retry {
				return nil, lastErr
			}
		}

		// Rate limits ease off with a growing delay.
		select {
		case <-time.After(time.Duration(attempt+1) * time.Second):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("serper search failed after %d attempts: %w", retries, lastErr)
}

func decodeSerper(resp *http.Response, num int) ([]models.SearchResult, bool, error) {
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body)
		return nil, true, fmt.Errorf("serper: rate limited")
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, false, fmt.Errorf("serper: status %d: %s", resp.StatusCode, string(b))
	}

	var raw struct {
		Organic []struct {
			Title    string `json:"title"`
			Link     string `json:"link"`
			Snippet  string `json:"snippet"`
			Position int    `json:"position"`
		} `json:"organic"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, false, fmt.Errorf("serper: decode: %w", err)
	}

	out := make([]models.SearchResult, 0, len(raw.Organic))
	for i, item := range raw.Organic {
		if i >= num {
			break
		}
		pos := item.Position
		if pos == 0 {
			pos = i + 1
		}
		out = append(out, models.SearchResult{
			Title:    item.Title,
			URL:      item.Link,
			Snippet:  item.Snippet,
			Position: pos,
		})
	}
	return out, false, nil
}
