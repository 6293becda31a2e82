package research

import (
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/search/query"
)

// findingsDoc is one indexed block of phase findings.
type findingsDoc struct {
	Phase string `json:"phase"`
	Text  string `json:"text"`
}

// minBlockLen filters out table separators and stray heading lines that
// would pollute relevance scoring.
const minBlockLen = 40

// FindingsIndex is a session-scoped, memory-only full-text index over the
// findings each phase produced. Refinement queries it with the user's
// feedback so the refine prompt quotes the relevant blocks instead of a
// blind prefix, and feedback handling uses it to tell whether a requested
// subject is already covered.
type FindingsIndex struct {
	mu    sync.RWMutex
	index bleve.Index
	meta  map[string]findingsDoc
	seq   int
}

// NewFindingsIndex builds an empty in-memory index.
func NewFindingsIndex() (*FindingsIndex, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("findings index: %w", err)
	}
	return &FindingsIndex{index: index, meta: make(map[string]findingsDoc)}, nil
}

// Add splits text into paragraph blocks and indexes each under the phase.
func (f *FindingsIndex) Add(phase, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, block := range splitBlocks(text) {
		f.seq++
		id := fmt.Sprintf("%s-%d", phase, f.seq)
		doc := findingsDoc{Phase: phase, Text: block}
		f.meta[id] = doc
		if err := f.index.Index(id, doc); err != nil {
			return fmt.Errorf("index findings block: %w", err)
		}
	}
	return nil
}

// Relevant returns up to limit findings blocks scored against the query
// text, best first. Free text goes through a match query, not query syntax,
// so user feedback cannot break the search.
func (f *FindingsIndex) Relevant(text string, limit int) []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if strings.TrimSpace(text) == "" || limit <= 0 {
		return nil
	}
	q := bleve.NewMatchQuery(text)
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	res, err := f.index.Search(req)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		if doc, ok := f.meta[hit.ID]; ok {
			out = append(out, doc.Text)
		}
	}
	return out
}

// Covers reports whether the findings already mention the subject. All terms
// must match so a two-word provider name is not satisfied by one of them.
func (f *FindingsIndex) Covers(subject string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if strings.TrimSpace(subject) == "" {
		return false
	}
	q := bleve.NewMatchQuery(subject)
	q.SetOperator(query.MatchQueryOperatorAnd)
	req := bleve.NewSearchRequestOptions(q, 1, 0, false)
	res, err := f.index.Search(req)
	if err != nil {
		return false
	}
	return len(res.Hits) > 0
}

// Len returns the number of indexed blocks.
func (f *FindingsIndex) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.meta)
}

// Close releases the index.
func (f *FindingsIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.index.Close()
}

func splitBlocks(text string) []string {
	parts := strings.Split(text, "\n\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if len(p) < minBlockLen {
			continue
		}
		out = append(out, p)
	}
	return out
}
