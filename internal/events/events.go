package events

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/r8kyu/scribe-project/internal/model"
)

const (
	// StreamName holds every execution and turn event.
	StreamName = "SCRIBE_EVENTS"

	SubjectTaskStarted   = "scribe.task.started"
	SubjectTaskCompleted = "scribe.task.completed"
	SubjectTaskFailed    = "scribe.task.failed"
	SubjectTaskTimeout   = "scribe.task.timeout"
	SubjectTurnCompleted = "scribe.turn.completed"

	eventMaxAge = 24 * time.Hour
)

// TaskEvent describes one execution lifecycle transition.
type TaskEvent struct {
	TaskID    string    `json:"task_id"`
	AgentName string    `json:"agent_name"`
	TaskType  string    `json:"task_type,omitempty"`
	Status    string    `json:"status,omitempty"`
	Error     string    `json:"error,omitempty"`
	Attempts  int       `json:"attempts,omitempty"`
	ElapsedMS int64     `json:"elapsed_ms,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TurnEvent describes one finished conversation turn.
type TurnEvent struct {
	SessionID string    `json:"session_id"`
	Completed int       `json:"completed"`
	Failed    int       `json:"failed"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher emits execution and turn events onto JetStream. Publishing is
// asynchronous and best effort: a broker hiccup is logged, never surfaced
// to the execution path. A nil Publisher is valid and publishes nothing.
type Publisher struct {
	js     nats.JetStreamContext
	logger *zap.Logger
}

// NewPublisher creates the event publisher and ensures its stream exists.
func NewPublisher(js nats.JetStreamContext, logger *zap.Logger) (*Publisher, error) {
	p := &Publisher{
		js:     js,
		logger: logger,
	}
	if err := p.ensureStream(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) ensureStream() error {
	_, err := p.js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{"scribe.task.*", "scribe.turn.*", "scribe.metrics.*", "scribe.alert.*"},
		Storage:  nats.FileStorage,
		MaxAge:   eventMaxAge,
	})
	if err != nil {
		if err == nats.ErrStreamNameAlreadyInUse {
			p.logger.Info("Stream already exists", zap.String("stream", StreamName))
			return nil
		}
		return err
	}
	p.logger.Info("Stream created successfully", zap.String("stream", StreamName))
	return nil
}

// ExecutionStarted implements agent.Observer.
func (p *Publisher) ExecutionStarted(agentName string, task *model.Task) {
	p.publish(SubjectTaskStarted, TaskEvent{
		TaskID:    task.ID,
		AgentName: agentName,
		TaskType:  task.Type,
		Timestamp: time.Now(),
	})
}

// ExecutionFinished implements agent.Observer.
func (p *Publisher) ExecutionFinished(agentName string, result *model.Result) {
	p.publish(subjectFor(result.Status), TaskEvent{
		TaskID:    result.TaskID,
		AgentName: agentName,
		Status:    string(result.Status),
		Error:     result.Error,
		Attempts:  result.Attempts,
		ElapsedMS: result.Elapsed.Milliseconds(),
		Timestamp: time.Now(),
	})
}

// TurnCompleted reports the outcome counts of one conversation turn.
func (p *Publisher) TurnCompleted(sessionID string, completed, failed int) {
	p.publish(SubjectTurnCompleted, TurnEvent{
		SessionID: sessionID,
		Completed: completed,
		Failed:    failed,
		Timestamp: time.Now(),
	})
}

func (p *Publisher) publish(subject string, event interface{}) {
	if p == nil || p.js == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal event",
			zap.String("subject", subject),
			zap.Error(err))
		return
	}
	if _, err := p.js.PublishAsync(subject, data); err != nil {
		p.logger.Warn("Failed to publish event",
			zap.String("subject", subject),
			zap.Error(err))
	}
}

func subjectFor(status model.TaskStatus) string {
	switch status {
	case model.TaskStatusCompleted:
		return SubjectTaskCompleted
	case model.TaskStatusTimedOut:
		return SubjectTaskTimeout
	default:
		return SubjectTaskFailed
	}
}
