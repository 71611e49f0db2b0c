package search

import (
	"context"
	"sync"
)

// Mock is a scripted Searcher for tests and providerless runs.
type Mock struct {
	mu      sync.Mutex
	results []Result
	queries []string

	// Err, when set, is returned by every call
	Err error
}

// NewMock creates a mock returning the given results on every query,
// truncated to the requested limit.
func NewMock(results ...Result) *Mock {
	return &Mock{results: results}
}

// Search implements Searcher.
func (m *Mock) Search(ctx context.Context, query string, filters map[string]interface{}, limit int) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.queries = append(m.queries, query)

	if m.Err != nil {
		return nil, m.Err
	}

	out := m.results
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	copied := make([]Result, len(out))
	copy(copied, out)
	return copied, nil
}

// Queries returns a copy of every query seen so far.
func (m *Mock) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.queries))
	copy(out, m.queries)
	return out
}
