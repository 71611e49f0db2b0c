package textgen

import (
	"context"
	"time"
)

// Generation is the outcome of one text-generation call
type Generation struct {
	Text       string        `json:"text"`
	TokensUsed int           `json:"tokens_used"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Generator is the opaque text-generation capability. Implementations may
// fail, stall, or return garbage; callers own retry and timeout policy.
// The model hint is advisory and may be empty.
type Generator interface {
	Generate(ctx context.Context, prompt, modelHint string) (*Generation, error)
}
