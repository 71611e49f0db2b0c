package storage

import (
	"context"
	"errors"
	"time"

	"github.com/r8kyu/scribe-project/internal/model"
)

// ErrNotFound is returned when a requested row does not exist or is deleted
var ErrNotFound = errors.New("not found")

// SectionStore defines persistence for document sections and their history
type SectionStore interface {
	// CreateSection inserts a new section row
	CreateSection(ctx context.Context, section *model.Section) error

	// SectionByID retrieves a non-deleted section
	SectionByID(ctx context.Context, id string) (*model.Section, error)

	// SectionsByDocument retrieves the non-deleted sections of a document
	// ordered by position
	SectionsByDocument(ctx context.Context, documentID string) ([]*model.Section, error)

	// UpdateSection writes a section's mutable fields
	UpdateSection(ctx context.Context, section *model.Section) error

	// UpdateSectionPositions atomically rewrites section positions.
	// Callers pass the complete target permutation for the document; the
	// write is two-phase (staged outside the valid range, then final) so
	// the per-document position uniqueness constraint never trips
	// mid-batch. Either every assignment commits or none does.
	UpdateSectionPositions(ctx context.Context, documentID string, positions map[string]int) error

	// SoftDeleteSections marks the given sections deleted without
	// removing rows
	SoftDeleteSections(ctx context.Context, ids []string) error

	// CreateSectionHistory inserts a frozen snapshot row
	CreateSectionHistory(ctx context.Context, history *model.SectionHistory) error

	// SectionHistoryCount returns the number of snapshots for a section
	SectionHistoryCount(ctx context.Context, sectionID string) (int, error)

	// ListSectionHistory retrieves a section's snapshots, newest first
	ListSectionHistory(ctx context.Context, sectionID string) ([]*model.SectionHistory, error)
}

// ConversationStore defines persistence for chat sessions and messages
type ConversationStore interface {
	// CreateSession inserts a new chat session
	CreateSession(ctx context.Context, session *model.ChatSession) error

	// Session retrieves a session by ID
	Session(ctx context.Context, id string) (*model.ChatSession, error)

	// SessionsByUser retrieves a user's active sessions, newest first
	SessionsByUser(ctx context.Context, userID string) ([]*model.ChatSession, error)

	// UpdateSessionTitle renames a session
	UpdateSessionTitle(ctx context.Context, id, title string) error

	// DeactivateSession hides a session from listings without deleting it
	DeactivateSession(ctx context.Context, id string) error

	// CreateMessage appends one conversational record
	CreateMessage(ctx context.Context, message *model.ChatMessage) error

	// MessagesBySession retrieves a session's records oldest first
	MessagesBySession(ctx context.Context, sessionID string, offset, limit int) ([]*model.ChatMessage, error)

	// CountMessages returns the number of records in a session
	CountMessages(ctx context.Context, sessionID string) (int, error)
}

// TaskRunStore defines persistence for the execution audit log
type TaskRunStore interface {
	// StoreTaskRun records the start of an execution
	StoreTaskRun(ctx context.Context, run *model.TaskRun) error

	// UpdateTaskRun records an execution's terminal outcome
	UpdateTaskRun(ctx context.Context, run *model.TaskRun) error

	// TaskRun retrieves one audit record
	TaskRun(ctx context.Context, taskID string) (*model.TaskRun, error)

	// ListTaskRuns retrieves audit records with filters and pagination
	ListTaskRuns(ctx context.Context, filters map[string]interface{}, offset, limit int) ([]*model.TaskRun, error)

	// DeleteTaskRunsBefore deletes audit records started before the
	// given time and reports how many were removed
	DeleteTaskRunsBefore(ctx context.Context, before time.Time) (int64, error)
}
