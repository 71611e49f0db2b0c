package model

import "github.com/google/uuid"

// TodoStatus represents the supervisor-level status of a decomposition unit
type TodoStatus string

const (
	TodoStatusPending    TodoStatus = "pending"
	TodoStatusInProgress TodoStatus = "in_progress"
	TodoStatusCompleted  TodoStatus = "completed"
	TodoStatusFailed     TodoStatus = "failed"
)

// TodoTask links one decomposition step to its target capability and,
// once executed, to the outcome of its underlying task. Its status mirrors
// the underlying task's terminal state.
type TodoTask struct {
	ID          string                 `json:"id"`
	Description string                 `json:"description"`
	AgentName   string                 `json:"agent_name"`
	Priority    TaskPriority           `json:"priority"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
	Status      TodoStatus             `json:"status"`
	Result      map[string]interface{} `json:"result,omitempty"`
}

// NewTodoTask creates a pending todo task targeting the named capability.
func NewTodoTask(description, agentName string, priority TaskPriority, params map[string]interface{}) *TodoTask {
	return &TodoTask{
		ID:          uuid.New().String(),
		Description: description,
		AgentName:   agentName,
		Priority:    priority,
		Parameters:  params,
		Status:      TodoStatusPending,
	}
}

// Reference is one citation surfaced by a capability during a turn.
type Reference struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Authors string  `json:"authors,omitempty"`
	Source  string  `json:"source,omitempty"`
	Year    int     `json:"year,omitempty"`
	Score   float64 `json:"score,omitempty"`
	Excerpt string  `json:"excerpt,omitempty"`
}
