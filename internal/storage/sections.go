package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/r8kyu/scribe-project/internal/model"
)

const sectionColumns = `id, document_id, position, display_number, title, content, summary, word_count, status, deleted, created_at, updated_at`

// CreateSection implements SectionStore.CreateSection
func (s *SQLiteStore) CreateSection(ctx context.Context, section *model.Section) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sections (
			id, document_id, position, display_number, title, content,
			summary, word_count, status, deleted, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		section.ID,
		section.DocumentID,
		section.Position,
		section.DisplayNumber,
		section.Title,
		section.Content,
		section.Summary,
		section.WordCount,
		section.Status,
		section.Deleted,
		section.CreatedAt,
		section.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create section: %w", err)
	}
	return nil
}

// SectionByID implements SectionStore.SectionByID
func (s *SQLiteStore) SectionByID(ctx context.Context, id string) (*model.Section, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sectionColumns+`
		FROM sections
		WHERE id = ? AND deleted = 0`, id)

	section, err := scanSection(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan section: %w", err)
	}
	return section, nil
}

// SectionsByDocument implements SectionStore.SectionsByDocument
func (s *SQLiteStore) SectionsByDocument(ctx context.Context, documentID string) ([]*model.Section, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sectionColumns+`
		FROM sections
		WHERE document_id = ? AND deleted = 0
		ORDER BY position ASC`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sections: %w", err)
	}
	defer rows.Close()

	var sections []*model.Section
	for rows.Next() {
		section, err := scanSection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan section: %w", err)
		}
		sections = append(sections, section)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return sections, nil
}

// UpdateSection implements SectionStore.UpdateSection
func (s *SQLiteStore) UpdateSection(ctx context.Context, section *model.Section) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sections SET
			display_number = ?,
			title = ?,
			content = ?,
			summary = ?,
			word_count = ?,
			status = ?,
			updated_at = ?
		WHERE id = ? AND deleted = 0`,
		section.DisplayNumber,
		section.Title,
		section.Content,
		section.Summary,
		section.WordCount,
		section.Status,
		section.UpdatedAt,
		section.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update section: %w", err)
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

// UpdateSectionPositions implements SectionStore.UpdateSectionPositions.
// Phase one parks every assigned section at a position above the current
// count so the unique (document_id, position) index cannot trip while the
// batch is in flight; phase two writes the final positions. Both phases
// run in one transaction.
func (s *SQLiteStore) UpdateSectionPositions(ctx context.Context, documentID string, positions map[string]int) error {
	if len(positions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sections WHERE document_id = ? AND deleted = 0`,
		documentID).Scan(&count); err != nil {
		return fmt.Errorf("failed to count sections: %w", err)
	}

	staging := count
	for id := range positions {
		staging++
		if _, err := tx.ExecContext(ctx,
			`UPDATE sections SET position = ? WHERE id = ? AND document_id = ? AND deleted = 0`,
			staging, id, documentID); err != nil {
			return fmt.Errorf("failed to stage section position: %w", err)
		}
	}

	now := time.Now()
	for id, position := range positions {
		if _, err := tx.ExecContext(ctx,
			`UPDATE sections SET position = ?, updated_at = ? WHERE id = ? AND document_id = ? AND deleted = 0`,
			position, now, id, documentID); err != nil {
			return fmt.Errorf("failed to write section position: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit position update: %w", err)
	}
	return nil
}

// SoftDeleteSections implements SectionStore.SoftDeleteSections
func (s *SQLiteStore) SoftDeleteSections(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`UPDATE sections SET deleted = 1, updated_at = ? WHERE id = ?`,
			now, id); err != nil {
			return fmt.Errorf("failed to soft-delete section: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit soft delete: %w", err)
	}

	s.logger.Info("Soft-deleted sections", zap.Int("count", len(ids)))
	return nil
}

// CreateSectionHistory implements SectionStore.CreateSectionHistory
func (s *SQLiteStore) CreateSectionHistory(ctx context.Context, history *model.SectionHistory) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO section_history (
			id, section_id, version, title, content, summary, change_note, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		history.ID,
		history.SectionID,
		history.Version,
		history.Title,
		history.Content,
		history.Summary,
		history.ChangeNote,
		history.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create section history: %w", err)
	}
	return nil
}

// SectionHistoryCount implements SectionStore.SectionHistoryCount
func (s *SQLiteStore) SectionHistoryCount(ctx context.Context, sectionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM section_history WHERE section_id = ?`,
		sectionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count section history: %w", err)
	}
	return count, nil
}

// ListSectionHistory implements SectionStore.ListSectionHistory
func (s *SQLiteStore) ListSectionHistory(ctx context.Context, sectionID string) ([]*model.SectionHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, section_id, version, title, content, summary, change_note, created_at
		FROM section_history
		WHERE section_id = ?
		ORDER BY version DESC`, sectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list section history: %w", err)
	}
	defer rows.Close()

	var histories []*model.SectionHistory
	for rows.Next() {
		history := &model.SectionHistory{}
		if err := rows.Scan(
			&history.ID,
			&history.SectionID,
			&history.Version,
			&history.Title,
			&history.Content,
			&history.Summary,
			&history.ChangeNote,
			&history.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan section history: %w", err)
		}
		histories = append(histories, history)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return histories, nil
}

// scanner abstracts sql.Row and sql.Rows for shared scan code
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSection(row scanner) (*model.Section, error) {
	section := &model.Section{}
	var deleted int
	if err := row.Scan(
		&section.ID,
		&section.DocumentID,
		&section.Position,
		&section.DisplayNumber,
		&section.Title,
		&section.Content,
		&section.Summary,
		&section.WordCount,
		&section.Status,
		&deleted,
		&section.CreatedAt,
		&section.UpdatedAt,
	); err != nil {
		return nil, err
	}
	section.Deleted = deleted != 0
	return section, nil
}
