package model

import (
	"encoding/json"
	"time"
)

// ChatRole represents the author of a conversational record
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// DefaultSessionTitle is assigned to sessions created without a title.
// The first user message replaces it.
const DefaultSessionTitle = "New chat"

// ChatSession is one conversation bound to a user and optionally a document.
type ChatSession struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	DocumentID string    `json:"document_id,omitempty"`
	Title      string    `json:"title"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ChatMessage is one persisted conversational record. Assistant messages
// carry the turn's todo tasks and references as raw JSON so the transport
// layer can render them without re-deriving anything.
type ChatMessage struct {
	ID         string          `json:"id"`
	SessionID  string          `json:"session_id"`
	Role       ChatRole        `json:"role"`
	Content    string          `json:"content"`
	AgentName  string          `json:"agent_name,omitempty"`
	TodoTasks  json.RawMessage `json:"todo_tasks,omitempty"`
	References json.RawMessage `json:"references,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
