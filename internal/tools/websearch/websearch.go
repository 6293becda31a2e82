package websearch

import (
	"context"
	"errors"

	"github.com/mohammad-safakhou/curricula/models"
)

// Searcher issues one web search query and returns organic results.
type Searcher interface {
	Search(ctx context.Context, query string, num int) ([]models.SearchResult, error)
}

type Provider string

const (
	SerperProvider Provider = "serper"
	BraveProvider  Provider = "brave"
)

var ErrUnsupportedProvider = errors.New("unsupported search provider")

// NewSearcher builds a Searcher for the configured provider.
func NewSearcher(provider Provider, apiKey string) (Searcher, error) {
	switch provider {
	case SerperProvider:
		return &Serper{APIKey: apiKey}, nil
	case BraveProvider:
		return &Brave{APIKey: apiKey}, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
