package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/r8kyu/scribe-project/internal/model"
)

// StoreTaskRun implements TaskRunStore.StoreTaskRun
func (s *SQLiteStore) StoreTaskRun(ctx context.Context, run *model.TaskRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_runs (
			task_id, agent_name, task_type, status, attempts, started_at
		) VALUES (?, ?, ?, ?, ?, ?)`,
		run.TaskID,
		run.AgentName,
		run.TaskType,
		run.Status,
		run.Attempts,
		run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store task run: %w", err)
	}
	return nil
}

// UpdateTaskRun implements TaskRunStore.UpdateTaskRun
func (s *SQLiteStore) UpdateTaskRun(ctx context.Context, run *model.TaskRun) error {
	var resultStr string
	if len(run.Result) > 0 {
		resultStr = string(run.Result)
	}

	var completedAt sql.NullTime
	if run.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *run.CompletedAt, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE task_runs SET
			status = ?,
			attempts = ?,
			error = ?,
			result = ?,
			completed_at = ?
		WHERE task_id = ?`,
		run.Status,
		run.Attempts,
		sql.NullString{String: run.Error, Valid: run.Error != ""},
		sql.NullString{String: resultStr, Valid: resultStr != ""},
		completedAt,
		run.TaskID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task run: %w", err)
	}
	return nil
}

// TaskRun implements TaskRunStore.TaskRun
func (s *SQLiteStore) TaskRun(ctx context.Context, taskID string) (*model.TaskRun, error) {
	run := &model.TaskRun{}
	var errorStr, resultStr sql.NullString
	var completedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT task_id, agent_name, task_type, status, attempts, error, result, started_at, completed_at
		FROM task_runs
		WHERE task_id = ?`, taskID).Scan(
		&run.TaskID,
		&run.AgentName,
		&run.TaskType,
		&run.Status,
		&run.Attempts,
		&errorStr,
		&resultStr,
		&run.StartedAt,
		&completedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan task run: %w", err)
	}

	if errorStr.Valid {
		run.Error = errorStr.String
	}
	if resultStr.Valid && resultStr.String != "" {
		run.Result = json.RawMessage(resultStr.String)
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return run, nil
}

// ListTaskRuns implements TaskRunStore.ListTaskRuns
func (s *SQLiteStore) ListTaskRuns(ctx context.Context, filters map[string]interface{}, offset, limit int) ([]*model.TaskRun, error) {
	query := "SELECT task_id, agent_name, task_type, status, attempts, error, result, started_at, completed_at FROM task_runs"
	args := make([]interface{}, 0)

	if len(filters) > 0 {
		query += " WHERE"
		first := true
		for key, value := range filters {
			if !first {
				query += " AND"
			}
			query += fmt.Sprintf(" %s = ?", key)
			args = append(args, value)
			first = false
		}
	}

	query += " ORDER BY started_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list task runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.TaskRun
	for rows.Next() {
		run := &model.TaskRun{}
		var errorStr, resultStr sql.NullString
		var completedAt sql.NullTime

		if err := rows.Scan(
			&run.TaskID,
			&run.AgentName,
			&run.TaskType,
			&run.Status,
			&run.Attempts,
			&errorStr,
			&resultStr,
			&run.StartedAt,
			&completedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan task run: %w", err)
		}

		if errorStr.Valid {
			run.Error = errorStr.String
		}
		if resultStr.Valid && resultStr.String != "" {
			run.Result = json.RawMessage(resultStr.String)
		}
		if completedAt.Valid {
			run.CompletedAt = &completedAt.Time
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}

// DeleteTaskRunsBefore implements TaskRunStore.DeleteTaskRunsBefore
func (s *SQLiteStore) DeleteTaskRunsBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM task_runs WHERE started_at < ?", before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete task runs: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	s.logger.Info("Deleted old task runs",
		zap.Time("before", before),
		zap.Int64("deleted", affected))
	return affected, nil
}
