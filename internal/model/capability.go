package model

import "time"

// AgentState represents whether an agent currently has an execution in flight
type AgentState string

const (
	AgentStateIdle    AgentState = "idle"
	AgentStateRunning AgentState = "running"
)

// CapabilityInfo is the introspection snapshot of one agent. It is
// readable at any time, independent of in-flight executions.
type CapabilityInfo struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	MaxRetries  int           `json:"max_retries"`
	Timeout     time.Duration `json:"timeout"`
	Status      AgentState    `json:"status"`
	TaskTypes   []string      `json:"task_types"`
}
