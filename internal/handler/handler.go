package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/r8kyu/scribe-project/internal/agent"
	"github.com/r8kyu/scribe-project/internal/model"
)

// opFunc executes one task type and returns the result payload
type opFunc func(ctx context.Context, task *model.Task) (map[string]interface{}, error)

// decodeParams maps a task's parameter bag onto a typed parameter struct.
// Decoding failures are validation errors and are never retried.
func decodeParams(task *model.Task, out interface{}) error {
	if err := mapstructure.Decode(task.Parameters, out); err != nil {
		return fmt.Errorf("%w: bad parameters for %s: %s", agent.ErrValidation, task.Type, err)
	}
	return nil
}

// requireString rejects a missing or blank required parameter.
func requireString(value, name, taskType string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s requires %q", agent.ErrValidation, taskType, name)
	}
	return nil
}

// sectionPayload flattens a section into the result payload shape shared
// by the outline operations.
func sectionPayload(s *model.Section) map[string]interface{} {
	return map[string]interface{}{
		"id":             s.ID,
		"document_id":    s.DocumentID,
		"position":       s.Position,
		"display_number": s.DisplayNumber,
		"title":          s.Title,
		"summary":        s.Summary,
		"word_count":     s.WordCount,
		"status":         string(s.Status),
	}
}

func dispatch(ctx context.Context, ops map[string]opFunc, task *model.Task) (map[string]interface{}, error) {
	op, ok := ops[task.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", agent.ErrUnsupportedTaskType, task.Type)
	}
	return op(ctx, task)
}
