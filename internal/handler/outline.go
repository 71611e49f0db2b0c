package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/r8kyu/scribe-project/internal/agent"
	"github.com/r8kyu/scribe-project/internal/document"
	"github.com/r8kyu/scribe-project/internal/model"
)

// OutlineHandler manages document structure: creating, editing, moving,
// splitting, and merging sections through the position manager.
type OutlineHandler struct {
	logger  *zap.Logger
	manager *document.Manager
	ops     map[string]opFunc
}

var outlineTaskTypes = []string{
	"create_section",
	"update_section",
	"delete_section",
	"move_section",
	"split_section",
	"merge_sections",
	"get_outline",
	"validate_structure",
}

// NewOutlineHandler creates the outline capability handler.
func NewOutlineHandler(manager *document.Manager, logger *zap.Logger) *OutlineHandler {
	h := &OutlineHandler{
		logger:  logger,
		manager: manager,
	}
	h.ops = map[string]opFunc{
		"create_section":     h.createSection,
		"update_section":     h.updateSection,
		"delete_section":     h.deleteSection,
		"move_section":       h.moveSection,
		"split_section":      h.splitSection,
		"merge_sections":     h.mergeSections,
		"get_outline":        h.getOutline,
		"validate_structure": h.validateStructure,
	}
	return h
}

// Name implements agent.Handler.
func (h *OutlineHandler) Name() string { return "outline" }

// Description implements agent.Handler.
func (h *OutlineHandler) Description() string {
	return "Manages the document outline: section creation, ordering, and structure"
}

// TaskTypes implements agent.Handler.
func (h *OutlineHandler) TaskTypes() []string { return outlineTaskTypes }

// Execute implements agent.Handler.
func (h *OutlineHandler) Execute(ctx context.Context, task *model.Task) (map[string]interface{}, error) {
	h.logger.Info("Executing outline operation",
		zap.String("type", task.Type))
	return dispatch(ctx, h.ops, task)
}

func (h *OutlineHandler) createSection(ctx context.Context, task *model.Task) (map[string]interface{}, error) {
	var params struct {
		DocumentID string `mapstructure:"document_id"`
		Title      string `mapstructure:"title"`
		Content    string `mapstructure:"content"`
		Summary    string `mapstructure:"summary"`
	}
	if err := decodeParams(task, &params); err != nil {
		return nil, err
	}
	if err := requireString(params.DocumentID, "document_id", task.Type); err != nil {
		return nil, err
	}
	if err := requireString(params.Title, "title", task.Type); err != nil {
		return nil, err
	}

	section, err := h.manager.CreateSection(ctx, params.DocumentID, params.Title, params.Content, params.Summary)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"section": sectionPayload(section),
		"action":  "create_section",
		"success": true,
	}, nil
}

func (h *OutlineHandler) updateSection(ctx context.Context, task *model.Task) (map[string]interface{}, error) {
	var params struct {
		SectionID  string  `mapstructure:"section_id"`
		Title      *string `mapstructure:"title"`
		Content    *string `mapstructure:"content"`
		Summary    *string `mapstructure:"summary"`
		ChangeNote string  `mapstructure:"change_note"`
	}
	if err := decodeParams(task, &params); err != nil {
		return nil, err
	}
	if err := requireString(params.SectionID, "section_id", task.Type); err != nil {
		return nil, err
	}

	section, err := h.manager.UpdateContent(ctx, params.SectionID, document.UpdateFields{
		Title:      params.Title,
		Content:    params.Content,
		Summary:    params.Summary,
		ChangeNote: params.ChangeNote,
	})
	if err != nil {
		return nil, wrapDocumentErr(err, task.Type)
	}

	return map[string]interface{}{
		"section": sectionPayload(section),
		"action":  "update_section",
		"success": true,
	}, nil
}

func (h *OutlineHandler) deleteSection(ctx context.Context, task *model.Task) (map[string]interface{}, error) {
	var params struct {
		SectionID string `mapstructure:"section_id"`
	}
	if err := decodeParams(task, &params); err != nil {
		return nil, err
	}
	if err := requireString(params.SectionID, "section_id", task.Type); err != nil {
		return nil, err
	}

	if err := h.manager.SoftDelete(ctx, params.SectionID); err != nil {
		return nil, wrapDocumentErr(err, task.Type)
	}

	return map[string]interface{}{
		"action":     "delete_section",
		"section_id": params.SectionID,
		"success":    true,
	}, nil
}

func (h *OutlineHandler) moveSection(ctx context.Context, task *model.Task) (map[string]interface{}, error) {
	var params struct {
		SectionID string `mapstructure:"section_id"`
		Action    string `mapstructure:"action"`
		Position  *int   `mapstructure:"position"`
	}
	if err := decodeParams(task, &params); err != nil {
		return nil, err
	}
	if err := requireString(params.SectionID, "section_id", task.Type); err != nil {
		return nil, err
	}
	if err := requireString(params.Action, "action", task.Type); err != nil {
		return nil, err
	}

	result, err := h.manager.MoveSection(ctx, params.SectionID, model.MoveAction(params.Action), params.Position)
	if err != nil {
		return nil, wrapDocumentErr(err, task.Type)
	}

	return map[string]interface{}{
		"action":           "move_section",
		"updated_sections": result.UpdatedSections,
		"success":          result.Success,
	}, nil
}

// splitSection cuts a section at its paragraph midpoint. The first half
// stays in place; the second half becomes a new section inserted directly
// after it.
func (h *OutlineHandler) splitSection(ctx context.Context, task *model.Task) (map[string]interface{}, error) {
	var params struct {
		SectionID string `mapstructure:"section_id"`
		NewTitle  string `mapstructure:"new_title"`
	}
	if err := decodeParams(task, &params); err != nil {
		return nil, err
	}
	if err := requireString(params.SectionID, "section_id", task.Type); err != nil {
		return nil, err
	}
	if err := requireString(params.NewTitle, "new_title", task.Type); err != nil {
		return nil, err
	}

	original, err := h.manager.Section(ctx, params.SectionID)
	if err != nil {
		return nil, wrapDocumentErr(err, task.Type)
	}

	first, second := splitParagraphs(original.Content)
	if second == "" {
		return nil, fmt.Errorf("%w: section %s has too little content to split", agent.ErrValidation, params.SectionID)
	}

	if _, err := h.manager.UpdateContent(ctx, params.SectionID, document.UpdateFields{
		Content:    &first,
		ChangeNote: "split section",
	}); err != nil {
		return nil, wrapDocumentErr(err, task.Type)
	}

	created, err := h.manager.CreateSection(ctx, original.DocumentID, params.NewTitle, second, "")
	if err != nil {
		return nil, err
	}

	target := original.Position + 1
	if _, err := h.manager.MoveSection(ctx, created.ID, model.MoveToPosition, &target); err != nil {
		return nil, wrapDocumentErr(err, task.Type)
	}
	created.Position = target

	return map[string]interface{}{
		"section": sectionPayload(created),
		"action":  "split_section",
		"success": true,
	}, nil
}

// mergeSections appends the source section's content to the target and
// soft-deletes the source.
func (h *OutlineHandler) mergeSections(ctx context.Context, task *model.Task) (map[string]interface{}, error) {
	var params struct {
		SourceID string `mapstructure:"source_id"`
		TargetID string `mapstructure:"target_id"`
	}
	if err := decodeParams(task, &params); err != nil {
		return nil, err
	}
	if err := requireString(params.SourceID, "source_id", task.Type); err != nil {
		return nil, err
	}
	if err := requireString(params.TargetID, "target_id", task.Type); err != nil {
		return nil, err
	}
	if params.SourceID == params.TargetID {
		return nil, fmt.Errorf("%w: cannot merge section %s into itself", agent.ErrValidation, params.SourceID)
	}

	source, err := h.manager.Section(ctx, params.SourceID)
	if err != nil {
		return nil, wrapDocumentErr(err, task.Type)
	}
	target, err := h.manager.Section(ctx, params.TargetID)
	if err != nil {
		return nil, wrapDocumentErr(err, task.Type)
	}

	merged := strings.TrimSpace(target.Content + "\n\n" + source.Content)
	updated, err := h.manager.UpdateContent(ctx, params.TargetID, document.UpdateFields{
		Content:    &merged,
		ChangeNote: fmt.Sprintf("merged section %s", params.SourceID),
	})
	if err != nil {
		return nil, wrapDocumentErr(err, task.Type)
	}

	if err := h.manager.SoftDelete(ctx, params.SourceID); err != nil {
		return nil, wrapDocumentErr(err, task.Type)
	}

	return map[string]interface{}{
		"section": sectionPayload(updated),
		"action":  "merge_sections",
		"success": true,
	}, nil
}

func (h *OutlineHandler) getOutline(ctx context.Context, task *model.Task) (map[string]interface{}, error) {
	var params struct {
		DocumentID string `mapstructure:"document_id"`
	}
	if err := decodeParams(task, &params); err != nil {
		return nil, err
	}
	if err := requireString(params.DocumentID, "document_id", task.Type); err != nil {
		return nil, err
	}

	outline, err := h.manager.Outline(ctx, params.DocumentID)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"action":        "get_outline",
		"outline":       outline,
		"section_count": len(outline),
		"success":       true,
	}, nil
}

func (h *OutlineHandler) validateStructure(ctx context.Context, task *model.Task) (map[string]interface{}, error) {
	var params struct {
		DocumentID string `mapstructure:"document_id"`
	}
	if err := decodeParams(task, &params); err != nil {
		return nil, err
	}
	if err := requireString(params.DocumentID, "document_id", task.Type); err != nil {
		return nil, err
	}

	findings, err := h.manager.ValidateStructure(ctx, params.DocumentID)
	if err != nil {
		return nil, err
	}

	score := 10.0 - 2.0*float64(len(findings))
	if score < 0 {
		score = 0
	}

	issues := make([]string, 0, len(findings))
	for _, f := range findings {
		issues = append(issues, f.Issue)
	}

	return map[string]interface{}{
		"action":           "validate_structure",
		"issues":           issues,
		"validation_score": score,
		"success":          true,
	}, nil
}

// splitParagraphs divides content at the paragraph boundary nearest its
// midpoint.
func splitParagraphs(content string) (string, string) {
	paragraphs := strings.Split(strings.TrimSpace(content), "\n\n")
	if len(paragraphs) < 2 {
		return content, ""
	}
	mid := len(paragraphs) / 2
	first := strings.Join(paragraphs[:mid], "\n\n")
	second := strings.Join(paragraphs[mid:], "\n\n")
	return first, second
}

func wrapDocumentErr(err error, taskType string) error {
	if err == nil {
		return nil
	}
	if isValidation(err) {
		return fmt.Errorf("%w: %s: %s", agent.ErrValidation, taskType, err)
	}
	return err
}

func isValidation(err error) bool {
	for _, sentinel := range []error{
		document.ErrSectionNotFound,
		document.ErrPositionRequired,
		document.ErrUnknownAction,
		document.ErrNoFields,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
