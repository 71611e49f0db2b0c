package document

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/r8kyu/scribe-project/internal/model"
	"github.com/r8kyu/scribe-project/internal/storage"
)

// Manager maintains the strictly ordered, uniquely positioned section list
// of each document and the linear version history of each section. All
// position writes go through the store's two-phase atomic update, so the
// contiguous 1..N invariant holds at every externally observable moment.
type Manager struct {
	logger *zap.Logger
	store  storage.SectionStore
}

// NewManager creates a section position manager.
func NewManager(store storage.SectionStore, logger *zap.Logger) *Manager {
	return &Manager{
		logger: logger.Named("document"),
		store:  store,
	}
}

// MoveResult carries the outcome of a move operation.
type MoveResult struct {
	Success         bool                   `json:"success"`
	UpdatedSections []model.SectionSummary `json:"updated_sections"`
}

// PositionAssignment names a section's requested position in a reorder.
type PositionAssignment struct {
	SectionID string `json:"section_id"`
	Position  int    `json:"position"`
}

// UpdateFields names the section fields a content update may change. Nil
// pointers leave the field untouched.
type UpdateFields struct {
	Title      *string
	Content    *string
	Summary    *string
	Status     *model.SectionStatus
	ChangeNote string
}

// Finding is one structural issue reported by ValidateStructure.
type Finding struct {
	SectionID string `json:"section_id,omitempty"`
	Issue     string `json:"issue"`
}

// CreateSection appends a new section at the end of the document.
func (m *Manager) CreateSection(ctx context.Context, documentID, title, content, summary string) (*model.Section, error) {
	sections, err := m.store.SectionsByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sections: %w", err)
	}

	now := time.Now()
	position := len(sections) + 1
	section := &model.Section{
		ID:            uuid.New().String(),
		DocumentID:    documentID,
		Position:      position,
		DisplayNumber: strconv.Itoa(position),
		Title:         title,
		Content:       content,
		Summary:       summary,
		WordCount:     len(strings.Fields(content)),
		Status:        model.SectionStatusDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := m.store.CreateSection(ctx, section); err != nil {
		return nil, err
	}

	m.logger.Info("Created section",
		zap.String("section_id", section.ID),
		zap.String("document_id", documentID),
		zap.Int("position", position))
	return section, nil
}

// MoveSection applies one positional action to a section. Targets are
// clamped into [1, N]; a to_position action without an explicit target is
// a validation error. Moving a section onto its own position succeeds
// without touching the store.
func (m *Manager) MoveSection(ctx context.Context, sectionID string, action model.MoveAction, newPosition *int) (*MoveResult, error) {
	section, err := m.store.SectionByID(ctx, sectionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrSectionNotFound
		}
		return nil, err
	}

	sections, err := m.store.SectionsByDocument(ctx, section.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sections: %w", err)
	}

	n := len(sections)
	current := section.Position

	var target int
	switch action {
	case model.MoveUp:
		target = clamp(current-1, 1, n)
	case model.MoveDown:
		target = clamp(current+1, 1, n)
	case model.MoveTop:
		target = 1
	case model.MoveBottom:
		target = n
	case model.MoveToPosition:
		if newPosition == nil {
			return nil, ErrPositionRequired
		}
		target = clamp(*newPosition, 1, n)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	if target == current {
		return &MoveResult{Success: true, UpdatedSections: summaries(sections)}, nil
	}

	ordered := make([]*model.Section, 0, n)
	for _, s := range sections {
		if s.ID != sectionID {
			ordered = append(ordered, s)
		}
	}
	ordered = append(ordered, nil)
	copy(ordered[target:], ordered[target-1:])
	ordered[target-1] = section

	positions := make(map[string]int, n)
	for i, s := range ordered {
		positions[s.ID] = i + 1
	}

	if err := m.store.UpdateSectionPositions(ctx, section.DocumentID, positions); err != nil {
		return nil, fmt.Errorf("failed to move section: %w", err)
	}

	updated, err := m.store.SectionsByDocument(ctx, section.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload sections: %w", err)
	}

	m.logger.Info("Moved section",
		zap.String("section_id", sectionID),
		zap.String("action", string(action)),
		zap.Int("from", current),
		zap.Int("to", target))
	return &MoveResult{Success: true, UpdatedSections: summaries(updated)}, nil
}

// Reorder applies a batch of position assignments atomically. Assigned
// targets are clamped into [1, N]; sections not named keep their relative
// order. The committed position set is always exactly {1..N}.
func (m *Manager) Reorder(ctx context.Context, documentID string, assignments []PositionAssignment) ([]model.SectionSummary, error) {
	sections, err := m.store.SectionsByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sections: %w", err)
	}
	n := len(sections)

	byID := make(map[string]*model.Section, n)
	for _, s := range sections {
		byID[s.ID] = s
	}

	assigned := make(map[string]int, len(assignments))
	for _, a := range assignments {
		if _, ok := byID[a.SectionID]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrSectionNotFound, a.SectionID)
		}
		assigned[a.SectionID] = clamp(a.Position, 1, n)
	}

	// Assigned sections win their target slot; everyone else keeps
	// relative order around them.
	ordered := make([]*model.Section, n)
	copy(ordered, sections)
	sort.SliceStable(ordered, func(i, j int) bool {
		ki, iAssigned := sortKey(ordered[i], assigned)
		kj, jAssigned := sortKey(ordered[j], assigned)
		if ki != kj {
			return ki < kj
		}
		return iAssigned && !jAssigned
	})

	positions := make(map[string]int, n)
	for i, s := range ordered {
		positions[s.ID] = i + 1
	}

	if err := m.store.UpdateSectionPositions(ctx, documentID, positions); err != nil {
		return nil, fmt.Errorf("failed to reorder sections: %w", err)
	}

	updated, err := m.store.SectionsByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload sections: %w", err)
	}

	m.logger.Info("Reordered sections",
		zap.String("document_id", documentID),
		zap.Int("assignments", len(assignments)))
	return summaries(updated), nil
}

// UpdateContent snapshots the section into history, then applies the given
// fields. The snapshot version is count(existing)+1, so versions increase
// by exactly one per call. Word count is recomputed whenever content
// changes.
func (m *Manager) UpdateContent(ctx context.Context, sectionID string, fields UpdateFields) (*model.Section, error) {
	if fields.Title == nil && fields.Content == nil && fields.Summary == nil && fields.Status == nil {
		return nil, ErrNoFields
	}

	section, err := m.store.SectionByID(ctx, sectionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrSectionNotFound
		}
		return nil, err
	}

	count, err := m.store.SectionHistoryCount(ctx, sectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to count history: %w", err)
	}

	history := &model.SectionHistory{
		ID:         uuid.New().String(),
		SectionID:  sectionID,
		Version:    count + 1,
		Title:      section.Title,
		Content:    section.Content,
		Summary:    section.Summary,
		ChangeNote: fields.ChangeNote,
		CreatedAt:  time.Now(),
	}
	if err := m.store.CreateSectionHistory(ctx, history); err != nil {
		return nil, fmt.Errorf("failed to snapshot section: %w", err)
	}

	if fields.Title != nil {
		section.Title = *fields.Title
	}
	if fields.Content != nil {
		section.Content = *fields.Content
		section.WordCount = len(strings.Fields(*fields.Content))
	}
	if fields.Summary != nil {
		section.Summary = *fields.Summary
	}
	if fields.Status != nil {
		section.Status = *fields.Status
	}
	section.UpdatedAt = time.Now()

	if err := m.store.UpdateSection(ctx, section); err != nil {
		return nil, err
	}

	m.logger.Info("Updated section content",
		zap.String("section_id", sectionID),
		zap.Int("history_version", history.Version))
	return section, nil
}

// SoftDelete marks a section and its structural descendants deleted, then
// renumbers the survivors back to a contiguous 1..N. Descendants are the
// sections whose display number extends the target's with another dotted
// level ("2" covers "2.1" and "2.1.3").
func (m *Manager) SoftDelete(ctx context.Context, sectionID string) error {
	section, err := m.store.SectionByID(ctx, sectionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrSectionNotFound
		}
		return err
	}

	sections, err := m.store.SectionsByDocument(ctx, section.DocumentID)
	if err != nil {
		return fmt.Errorf("failed to load sections: %w", err)
	}

	doomed := []string{sectionID}
	prefix := section.DisplayNumber + "."
	for _, s := range sections {
		if s.ID != sectionID && section.DisplayNumber != "" && strings.HasPrefix(s.DisplayNumber, prefix) {
			doomed = append(doomed, s.ID)
		}
	}

	if err := m.store.SoftDeleteSections(ctx, doomed); err != nil {
		return err
	}

	remaining, err := m.store.SectionsByDocument(ctx, section.DocumentID)
	if err != nil {
		return fmt.Errorf("failed to reload sections: %w", err)
	}
	if len(remaining) > 0 {
		positions := make(map[string]int, len(remaining))
		for i, s := range remaining {
			positions[s.ID] = i + 1
		}
		if err := m.store.UpdateSectionPositions(ctx, section.DocumentID, positions); err != nil {
			return fmt.Errorf("failed to renumber sections: %w", err)
		}
	}

	m.logger.Info("Soft-deleted section tree",
		zap.String("section_id", sectionID),
		zap.Int("affected", len(doomed)))
	return nil
}

// Section returns one live section by id.
func (m *Manager) Section(ctx context.Context, sectionID string) (*model.Section, error) {
	section, err := m.store.SectionByID(ctx, sectionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSectionNotFound, sectionID)
		}
		return nil, fmt.Errorf("failed to load section: %w", err)
	}
	return section, nil
}

// Outline returns the ordered summaries of a document's sections.
func (m *Manager) Outline(ctx context.Context, documentID string) ([]model.SectionSummary, error) {
	sections, err := m.store.SectionsByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sections: %w", err)
	}
	return summaries(sections), nil
}

// ValidateStructure lints a document's section list without modifying it.
func (m *Manager) ValidateStructure(ctx context.Context, documentID string) ([]Finding, error) {
	sections, err := m.store.SectionsByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sections: %w", err)
	}

	findings := []Finding{}
	seen := make(map[int]string, len(sections))
	for i, s := range sections {
		if prev, dup := seen[s.Position]; dup {
			findings = append(findings, Finding{
				SectionID: s.ID,
				Issue:     fmt.Sprintf("position %d duplicates section %s", s.Position, prev),
			})
		}
		seen[s.Position] = s.ID

		if s.Position != i+1 {
			findings = append(findings, Finding{
				SectionID: s.ID,
				Issue:     fmt.Sprintf("position %d breaks contiguous order, expected %d", s.Position, i+1),
			})
		}
		if strings.TrimSpace(s.Title) == "" {
			findings = append(findings, Finding{SectionID: s.ID, Issue: "empty title"})
		}
		if strings.TrimSpace(s.Content) == "" {
			findings = append(findings, Finding{SectionID: s.ID, Issue: "empty content"})
		}
	}
	return findings, nil
}

// History returns a section's snapshots, newest first.
func (m *Manager) History(ctx context.Context, sectionID string) ([]*model.SectionHistory, error) {
	return m.store.ListSectionHistory(ctx, sectionID)
}

func sortKey(s *model.Section, assigned map[string]int) (int, bool) {
	if p, ok := assigned[s.ID]; ok {
		return p, true
	}
	return s.Position, false
}

func summaries(sections []*model.Section) []model.SectionSummary {
	out := make([]model.SectionSummary, 0, len(sections))
	for _, s := range sections {
		out = append(out, s.Summarize())
	}
	return out
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
