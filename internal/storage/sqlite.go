package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SQLiteStore implements SectionStore, ConversationStore, and TaskRunStore
// on a single SQLite database
type SQLiteStore struct {
	logger *zap.Logger
	db     *sql.DB
}

// OpenSQLite opens (or creates) the database at dbPath and ensures the
// schema exists. Existing data is preserved.
func OpenSQLite(logger *zap.Logger, dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{
		logger: logger,
		db:     db,
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initialize creates the necessary tables if they don't exist
func (s *SQLiteStore) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sections (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			display_number TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			word_count INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'draft',
			deleted INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sections_document ON sections(document_id);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_sections_document_position
			ON sections(document_id, position) WHERE deleted = 0;

		CREATE TABLE IF NOT EXISTS section_history (
			id TEXT PRIMARY KEY,
			section_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			title TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			change_note TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			UNIQUE(section_id, version)
		);
		CREATE INDEX IF NOT EXISTS idx_section_history_section ON section_history(section_id);

		CREATE TABLE IF NOT EXISTS chat_sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			document_id TEXT,
			title TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_chat_sessions_user ON chat_sessions(user_id);

		CREATE TABLE IF NOT EXISTS chat_messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			agent_name TEXT,
			todo_tasks TEXT,
			refs TEXT,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id);
		CREATE INDEX IF NOT EXISTS idx_chat_messages_created ON chat_messages(created_at);

		CREATE TABLE IF NOT EXISTS task_runs (
			task_id TEXT PRIMARY KEY,
			agent_name TEXT NOT NULL,
			task_type TEXT NOT NULL,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			result TEXT,
			started_at DATETIME NOT NULL,
			completed_at DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_task_runs_agent ON task_runs(agent_name);
		CREATE INDEX IF NOT EXISTS idx_task_runs_status ON task_runs(status);
		CREATE INDEX IF NOT EXISTS idx_task_runs_started_at ON task_runs(started_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
