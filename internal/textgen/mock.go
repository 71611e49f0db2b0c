package textgen

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Mock is a scripted Generator used in tests and when no real provider is
// configured. Queued responses are returned in order; once drained, calls
// fall back to a deterministic echo of the prompt.
type Mock struct {
	mu        sync.Mutex
	responses []string
	prompts   []string

	// Err, when set, is returned by every call
	Err error
	// Delay is applied before responding and respects context cancellation
	Delay time.Duration
}

// NewMock creates a mock that replays the given responses in order.
func NewMock(responses ...string) *Mock {
	return &Mock{responses: responses}
}

// Generate implements Generator.
func (m *Mock) Generate(ctx context.Context, prompt, modelHint string) (*Generation, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.prompts = append(m.prompts, prompt)

	if m.Err != nil {
		return nil, m.Err
	}

	text := fmt.Sprintf("generated text for: %.60s", prompt)
	if len(m.responses) > 0 {
		text = m.responses[0]
		m.responses = m.responses[1:]
	}

	return &Generation{
		Text:       text,
		TokensUsed: len(text) / 4,
		Elapsed:    m.Delay,
	}, nil
}

// Enqueue appends responses to the script.
func (m *Mock) Enqueue(responses ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, responses...)
}

// Calls returns how many times Generate has been invoked.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// Prompts returns a copy of every prompt seen so far.
func (m *Mock) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}
