package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current status of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusTimedOut   TaskStatus = "timed_out"
)

// IsTerminal reports whether the status is one of the three terminal states.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusTimedOut
}

// TaskPriority represents the priority level of a task
type TaskPriority int

const (
	TaskPriorityLow    TaskPriority = 1
	TaskPriorityNormal TaskPriority = 2
	TaskPriorityHigh   TaskPriority = 3
)

// Task represents a unit of work submitted to a capability handler.
// A Task is immutable after creation except for its status, which only
// moves forward: pending -> in_progress -> completed/failed/timed_out.
type Task struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Priority   TaskPriority           `json:"priority"`
	Status     TaskStatus             `json:"status"`

	// Timeout overrides the handler default for each attempt when > 0.
	Timeout time.Duration `json:"timeout,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewTask creates a pending task of the given type.
func NewTask(taskType string, params map[string]interface{}) *Task {
	return &Task{
		ID:         uuid.New().String(),
		Type:       taskType,
		Parameters: params,
		Priority:   TaskPriorityNormal,
		Status:     TaskStatusPending,
		CreatedAt:  time.Now(),
	}
}

// Result represents the terminal outcome of executing a task.
// Exactly one Result is produced per dispatched task.
type Result struct {
	TaskID    string                 `json:"task_id"`
	AgentName string                 `json:"agent_name"`
	Status    TaskStatus             `json:"status"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Elapsed   time.Duration          `json:"elapsed"`
	Error     string                 `json:"error,omitempty"`

	// Attempts counts executions actually started; zero means the task
	// was rejected before the handler ran.
	Attempts int                    `json:"attempts"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// TaskRun is the audit record of one execution through the agent contract.
type TaskRun struct {
	TaskID      string          `json:"task_id"`
	AgentName   string          `json:"agent_name"`
	TaskType    string          `json:"task_type"`
	Status      TaskStatus      `json:"status"`
	Attempts    int             `json:"attempts"`
	Error       string          `json:"error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}
