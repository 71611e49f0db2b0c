package search

import "context"

// Result is one similarity-search hit
type Result struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"content"`
	Score    float64                `json:"score"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Searcher is the embedding/similarity-search capability. Ranking
// internals are out of scope; callers receive hits ordered by descending
// score up to the requested limit.
type Searcher interface {
	Search(ctx context.Context, query string, filters map[string]interface{}, limit int) ([]Result, error)
}
