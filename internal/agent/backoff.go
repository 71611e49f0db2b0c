package agent

import "time"

// RetryStrategy defines the interface for retry delay strategies
type RetryStrategy interface {
	// NextRetry calculates the delay before the given retry attempt.
	// Attempt numbering starts at 0 for the first retry.
	NextRetry(attempt int) time.Duration
}

// ExponentialBackoff implements exponential backoff with a fixed ceiling
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// NextRetry calculates the delay using exponential backoff
func (s *ExponentialBackoff) NextRetry(attempt int) time.Duration {
	delay := float64(s.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= s.Multiplier
	}

	if delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}
	return time.Duration(delay)
}

// DefaultBackoff returns the standard strategy: 2s initial delay doubling
// per attempt, capped at 10s.
func DefaultBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialDelay: 2 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}
