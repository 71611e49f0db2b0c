package document

import "errors"

var (
	// ErrSectionNotFound is returned when a section does not exist or is deleted
	ErrSectionNotFound = errors.New("section not found")

	// ErrPositionRequired is returned when a to_position move carries no target
	ErrPositionRequired = errors.New("target position required")

	// ErrUnknownAction is returned for a move action outside the fixed set
	ErrUnknownAction = errors.New("unknown move action")

	// ErrNoFields is returned when a content update names no fields
	ErrNoFields = errors.New("no fields to update")
)
