package model

import "time"

// SectionStatus represents the editorial status of a section
type SectionStatus string

const (
	SectionStatusDraft  SectionStatus = "draft"
	SectionStatusReview SectionStatus = "review"
	SectionStatusFinal  SectionStatus = "final"
)

// MoveAction represents a positional move applied to a section
type MoveAction string

const (
	MoveUp         MoveAction = "up"
	MoveDown       MoveAction = "down"
	MoveTop        MoveAction = "top"
	MoveBottom     MoveAction = "bottom"
	MoveToPosition MoveAction = "to_position"
)

// Section is one node in a document's ordered body. Positions of the
// non-deleted sections of one document always form a contiguous
// permutation of 1..N. Sections are soft-deleted, never removed, so
// history rows stay resolvable.
type Section struct {
	ID            string        `json:"id"`
	DocumentID    string        `json:"document_id"`
	Position      int           `json:"position"`
	DisplayNumber string        `json:"display_number"`
	Title         string        `json:"title"`
	Content       string        `json:"content"`
	Summary       string        `json:"summary,omitempty"`
	WordCount     int           `json:"word_count"`
	Status        SectionStatus `json:"status"`
	Deleted       bool          `json:"deleted"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SectionHistory is a frozen snapshot of a section taken immediately
// before a content-changing edit. Versions per section start at 1 and
// increase by exactly one per snapshot.
type SectionHistory struct {
	ID         string    `json:"id"`
	SectionID  string    `json:"section_id"`
	Version    int       `json:"version"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Summary    string    `json:"summary,omitempty"`
	ChangeNote string    `json:"change_note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// SectionSummary is the ordered outline view of a section.
type SectionSummary struct {
	ID            string `json:"id"`
	Position      int    `json:"position"`
	DisplayNumber string `json:"display_number"`
	Title         string `json:"title"`
	WordCount     int    `json:"word_count"`
	Summary       string `json:"summary,omitempty"`
}

// Summarize returns the outline view of the section.
func (s *Section) Summarize() SectionSummary {
	return SectionSummary{
		ID:            s.ID,
		Position:      s.Position,
		DisplayNumber: s.DisplayNumber,
		Title:         s.Title,
		WordCount:     s.WordCount,
		Summary:       s.Summary,
	}
}
