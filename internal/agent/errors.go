package agent

import "errors"

var (
	// ErrValidation marks bad or missing task input. Handlers wrap it when
	// rejecting parameters; validation failures are never retried.
	ErrValidation = errors.New("validation failed")

	// ErrUnsupportedTaskType is returned when a task's type tag is not in
	// the handler's dispatch table
	ErrUnsupportedTaskType = errors.New("unsupported task type")

	// ErrMaxRetriesExceeded is recorded when the retry budget runs out
	ErrMaxRetriesExceeded = errors.New("max retries reached")
)
