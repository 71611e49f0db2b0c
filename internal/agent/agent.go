package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/r8kyu/scribe-project/internal/model"
	"github.com/r8kyu/scribe-project/internal/storage"
)

// Handler defines the interface implemented by each capability. A handler
// owns a fixed dispatch table keyed by task type; everything else (retry,
// timeout, status tracking, auditing) belongs to the Agent wrapping it.
type Handler interface {
	Name() string
	Description() string
	TaskTypes() []string
	Execute(ctx context.Context, task *model.Task) (map[string]interface{}, error)
}

// Observer is notified of execution lifecycle events. Implementations
// must not block; both the event publisher and the metrics collector
// satisfy this.
type Observer interface {
	ExecutionStarted(agentName string, task *model.Task)
	ExecutionFinished(agentName string, result *model.Result)
}

// Config defines per-agent execution settings
type Config struct {
	// MaxRetries is the number of additional attempts after the first
	// failure. Timeouts and validation failures are never retried.
	MaxRetries int
	// Timeout bounds each attempt unless the task carries its own.
	Timeout time.Duration
	// Backoff computes inter-retry delays. Nil selects DefaultBackoff.
	Backoff RetryStrategy
}

const defaultTimeout = 30 * time.Second

// Agent executes tasks through one capability handler while enforcing the
// uniform retry, timeout, and status-reporting contract. One Agent may
// serve many concurrent executions.
type Agent struct {
	logger     *zap.Logger
	handler    Handler
	backoff    RetryStrategy
	maxRetries int
	timeout    time.Duration
	runs       storage.TaskRunStore
	observers  []Observer
	running    atomic.Int32
}

// New creates an agent around the given handler. The run store records an
// audit row per execution and may be nil; audit failures never fail tasks.
func New(handler Handler, cfg Config, runs storage.TaskRunStore, logger *zap.Logger) *Agent {
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = DefaultBackoff()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &Agent{
		logger:     logger.Named(handler.Name()),
		handler:    handler,
		backoff:    backoff,
		maxRetries: maxRetries,
		timeout:    timeout,
		runs:       runs,
	}
}

// AddObserver registers an execution observer. Not safe to call after
// executions have started.
func (a *Agent) AddObserver(obs Observer) {
	a.observers = append(a.observers, obs)
}

// Name returns the capability name.
func (a *Agent) Name() string {
	return a.handler.Name()
}

// Capabilities returns the introspection snapshot, independent of any
// in-flight execution.
func (a *Agent) Capabilities() model.CapabilityInfo {
	state := model.AgentStateIdle
	if a.running.Load() > 0 {
		state = model.AgentStateRunning
	}
	return model.CapabilityInfo{
		Name:        a.handler.Name(),
		Description: a.handler.Description(),
		MaxRetries:  a.maxRetries,
		Timeout:     a.timeout,
		Status:      state,
		TaskTypes:   a.handler.TaskTypes(),
	}
}

// Execute runs one task to a terminal result. Handler errors never escape:
// they are converted into a Result whose status is exactly one of
// completed, failed, or timed_out.
func (a *Agent) Execute(ctx context.Context, task *model.Task) *model.Result {
	start := time.Now()

	run := &model.TaskRun{
		TaskID:    task.ID,
		AgentName: a.handler.Name(),
		TaskType:  task.Type,
		Status:    model.TaskStatusInProgress,
		StartedAt: start,
	}
	a.storeRun(ctx, run)

	if !a.supports(task.Type) {
		task.Status = model.TaskStatusFailed
		result := a.newResult(task, model.TaskStatusFailed, nil, start, 0,
			fmt.Sprintf("%s: %q not in %v", ErrUnsupportedTaskType, task.Type, a.handler.TaskTypes()))
		a.finish(ctx, run, result)
		return result
	}

	timeout := a.timeout
	if task.Timeout > 0 {
		timeout = task.Timeout
	}

	maxAttempts := a.maxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		task.Status = model.TaskStatusInProgress
		a.running.Add(1)
		a.notifyStarted(task)

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		payload, err := a.runAttempt(attemptCtx, task)
		cancel()

		a.running.Add(-1)

		if err == nil {
			task.Status = model.TaskStatusCompleted
			result := a.newResult(task, model.TaskStatusCompleted, payload, start, attempt, "")
			a.finish(ctx, run, result)
			a.logger.Info("Task completed",
				zap.String("task_id", task.ID),
				zap.String("task_type", task.Type),
				zap.Int("attempts", attempt),
				zap.Duration("elapsed", result.Elapsed))
			return result
		}

		switch {
		case ctx.Err() != nil:
			// The caller gave up on the whole batch; the result will be
			// discarded, so report failure without further attempts.
			task.Status = model.TaskStatusFailed
			result := a.newResult(task, model.TaskStatusFailed, nil, start, attempt,
				fmt.Sprintf("execution canceled: %s", ctx.Err()))
			a.finish(ctx, run, result)
			return result

		case errors.Is(err, context.DeadlineExceeded):
			task.Status = model.TaskStatusTimedOut
			result := a.newResult(task, model.TaskStatusTimedOut, nil, start, attempt,
				fmt.Sprintf("timed out after %s", timeout))
			a.finish(ctx, run, result)
			a.logger.Warn("Task timed out",
				zap.String("task_id", task.ID),
				zap.String("task_type", task.Type),
				zap.Duration("timeout", timeout))
			return result

		case errors.Is(err, ErrValidation):
			task.Status = model.TaskStatusFailed
			result := a.newResult(task, model.TaskStatusFailed, nil, start, attempt, err.Error())
			a.finish(ctx, run, result)
			a.logger.Warn("Task rejected",
				zap.String("task_id", task.ID),
				zap.String("task_type", task.Type),
				zap.Error(err))
			return result
		}

		lastErr = err
		if attempt < maxAttempts {
			delay := a.backoff.NextRetry(attempt - 1)
			a.logger.Warn("Task attempt failed, retrying",
				zap.String("task_id", task.ID),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err))

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				task.Status = model.TaskStatusFailed
				result := a.newResult(task, model.TaskStatusFailed, nil, start, attempt,
					fmt.Sprintf("execution canceled: %s", ctx.Err()))
				a.finish(ctx, run, result)
				return result
			}
		}
	}

	task.Status = model.TaskStatusFailed
	result := a.newResult(task, model.TaskStatusFailed, nil, start, maxAttempts,
		fmt.Sprintf("%s: %s", ErrMaxRetriesExceeded, lastErr))
	a.finish(ctx, run, result)
	a.logger.Error("Task failed",
		zap.String("task_id", task.ID),
		zap.String("task_type", task.Type),
		zap.Int("attempts", maxAttempts),
		zap.Error(lastErr))
	return result
}

// runAttempt executes the handler once. The result channel is buffered so
// a call that outlives its deadline parks its outcome there and the
// goroutine exits; the orphaned outcome is never read.
func (a *Agent) runAttempt(ctx context.Context, task *model.Task) (map[string]interface{}, error) {
	type outcome struct {
		payload map[string]interface{}
		err     error
	}

	done := make(chan outcome, 1)
	go func() {
		payload, err := a.handler.Execute(ctx, task)
		done <- outcome{payload: payload, err: err}
	}()

	select {
	case out := <-done:
		return out.payload, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *Agent) supports(taskType string) bool {
	for _, t := range a.handler.TaskTypes() {
		if t == taskType {
			return true
		}
	}
	return false
}

func (a *Agent) newResult(task *model.Task, status model.TaskStatus, payload map[string]interface{}, start time.Time, attempts int, errText string) *model.Result {
	return &model.Result{
		TaskID:    task.ID,
		AgentName: a.handler.Name(),
		Status:    status,
		Payload:   payload,
		Elapsed:   time.Since(start),
		Error:     errText,
		Attempts:  attempts,
		Metadata: map[string]interface{}{
			"task_id":  task.ID,
			"attempts": attempts,
		},
	}
}

func (a *Agent) storeRun(ctx context.Context, run *model.TaskRun) {
	if a.runs == nil {
		return
	}
	if err := a.runs.StoreTaskRun(ctx, run); err != nil {
		a.logger.Error("Failed to store task run",
			zap.String("task_id", run.TaskID),
			zap.Error(err))
	}
}

// finish records the terminal outcome in the audit log and notifies
// observers.
func (a *Agent) finish(ctx context.Context, run *model.TaskRun, result *model.Result) {
	now := time.Now()
	run.Status = result.Status
	run.Attempts = result.Attempts
	run.Error = result.Error
	run.CompletedAt = &now

	if result.Payload != nil {
		if data, err := json.Marshal(result.Payload); err == nil {
			run.Result = data
		}
	}

	if a.runs != nil {
		if err := a.runs.UpdateTaskRun(ctx, run); err != nil {
			a.logger.Error("Failed to update task run",
				zap.String("task_id", run.TaskID),
				zap.Error(err))
		}
	}

	for _, obs := range a.observers {
		obs.ExecutionFinished(a.handler.Name(), result)
	}
}

func (a *Agent) notifyStarted(task *model.Task) {
	for _, obs := range a.observers {
		obs.ExecutionStarted(a.handler.Name(), task)
	}
}
