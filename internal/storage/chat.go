package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/r8kyu/scribe-project/internal/model"
)

// CreateSession implements ConversationStore.CreateSession
func (s *SQLiteStore) CreateSession(ctx context.Context, session *model.ChatSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (
			id, user_id, document_id, title, active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.UserID,
		sql.NullString{String: session.DocumentID, Valid: session.DocumentID != ""},
		session.Title,
		session.Active,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Session implements ConversationStore.Session
func (s *SQLiteStore) Session(ctx context.Context, id string) (*model.ChatSession, error) {
	session := &model.ChatSession{}
	var documentID sql.NullString
	var active int

	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, document_id, title, active, created_at, updated_at
		FROM chat_sessions
		WHERE id = ?`, id).Scan(
		&session.ID,
		&session.UserID,
		&documentID,
		&session.Title,
		&active,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	if documentID.Valid {
		session.DocumentID = documentID.String
	}
	session.Active = active != 0
	return session, nil
}

// SessionsByUser implements ConversationStore.SessionsByUser
func (s *SQLiteStore) SessionsByUser(ctx context.Context, userID string) ([]*model.ChatSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, document_id, title, active, created_at, updated_at
		FROM chat_sessions
		WHERE user_id = ? AND active = 1
		ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.ChatSession
	for rows.Next() {
		session := &model.ChatSession{}
		var documentID sql.NullString
		var active int
		if err := rows.Scan(
			&session.ID,
			&session.UserID,
			&documentID,
			&session.Title,
			&active,
			&session.CreatedAt,
			&session.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if documentID.Valid {
			session.DocumentID = documentID.String
		}
		session.Active = active != 0
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return sessions, nil
}

// UpdateSessionTitle implements ConversationStore.UpdateSessionTitle
func (s *SQLiteStore) UpdateSessionTitle(ctx context.Context, id, title string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET title = ?, updated_at = ? WHERE id = ?`,
		title, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update session title: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateSession implements ConversationStore.DeactivateSession
func (s *SQLiteStore) DeactivateSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET active = 0, updated_at = ? WHERE id = ?`,
		time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateMessage implements ConversationStore.CreateMessage
func (s *SQLiteStore) CreateMessage(ctx context.Context, message *model.ChatMessage) error {
	var todoStr, refsStr string
	if len(message.TodoTasks) > 0 {
		todoStr = string(message.TodoTasks)
	}
	if len(message.References) > 0 {
		refsStr = string(message.References)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (
			id, session_id, role, content, agent_name, todo_tasks, refs, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		message.ID,
		message.SessionID,
		message.Role,
		message.Content,
		sql.NullString{String: message.AgentName, Valid: message.AgentName != ""},
		sql.NullString{String: todoStr, Valid: todoStr != ""},
		sql.NullString{String: refsStr, Valid: refsStr != ""},
		message.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET updated_at = ? WHERE id = ?`,
		message.CreatedAt, message.SessionID); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// MessagesBySession implements ConversationStore.MessagesBySession
func (s *SQLiteStore) MessagesBySession(ctx context.Context, sessionID string, offset, limit int) ([]*model.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, agent_name, todo_tasks, refs, created_at
		FROM chat_messages
		WHERE session_id = ?
		ORDER BY created_at ASC
		LIMIT ? OFFSET ?`, sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*model.ChatMessage
	for rows.Next() {
		message := &model.ChatMessage{}
		var agentName, todoTasks, refs sql.NullString
		if err := rows.Scan(
			&message.ID,
			&message.SessionID,
			&message.Role,
			&message.Content,
			&agentName,
			&todoTasks,
			&refs,
			&message.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if agentName.Valid {
			message.AgentName = agentName.String
		}
		if todoTasks.Valid && todoTasks.String != "" {
			message.TodoTasks = json.RawMessage(todoTasks.String)
		}
		if refs.Valid && refs.String != "" {
			message.References = json.RawMessage(refs.String)
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return messages, nil
}

// CountMessages implements ConversationStore.CountMessages
func (s *SQLiteStore) CountMessages(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chat_messages WHERE session_id = ?`,
		sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}
