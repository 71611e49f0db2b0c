package supervisor

import (
	"context"

	"go.uber.org/zap"

	"github.com/r8kyu/scribe-project/internal/model"
)

// decompose turns one analyzed message into the todo tasks for this turn.
// Every branch produces at least one task so the turn always has work.
func (s *Supervisor) decompose(ctx context.Context, analysis Analysis, documentID string) []*model.TodoTask {
	priority := model.TaskPriorityNormal
	if analysis.Urgency == "high" {
		priority = model.TaskPriorityHigh
	}

	var todos []*model.TodoTask
	switch analysis.MainIntent {
	case IntentCreateSection:
		todos = append(todos, model.NewTodoTask(
			"Create section: "+analysis.SpecificRequest,
			"outline", priority,
			map[string]interface{}{
				"task_type":   "create_section",
				"document_id": documentID,
				"title":       analysis.SpecificRequest,
			}))
		if len(analysis.RequiredAgents) > 1 {
			todos = append(todos, model.NewTodoTask(
				"Draft content for the new section",
				"writer", priority,
				map[string]interface{}{
					"task_type":     "generate_draft",
					"section_title": analysis.SpecificRequest,
					"requirements":  analysis.SpecificRequest,
				}))
		}

	case IntentEditContent:
		if containsString(analysis.RequiredAgents, "writer") {
			todos = append(todos, model.NewTodoTask(
				"Improve writing: "+analysis.SpecificRequest,
				"writer", priority,
				map[string]interface{}{
					"task_type":    "improve_style",
					"content":      analysis.SpecificRequest,
					"target_style": "academic",
				}))
		}

	case IntentCheckStructure:
		params := map[string]interface{}{
			"task_type": "validate_logic_flow",
		}
		outline, summaries := s.outlineParams(ctx, documentID)
		params["paper_outline"] = outline
		params["section_summaries"] = summaries
		todos = append(todos, model.NewTodoTask(
			"Check document structure and logic flow",
			"logic_validator", priority, params))

	case IntentFindReferences:
		todos = append(todos, model.NewTodoTask(
			"Search references: "+analysis.SpecificRequest,
			"reference", priority,
			map[string]interface{}{
				"task_type": "search_references",
				"query":     analysis.SpecificRequest,
				"limit":     5,
			}))
	}

	if len(todos) == 0 {
		todos = append(todos, model.NewTodoTask(
			"Generate a response to the request",
			"writer", model.TaskPriorityLow,
			map[string]interface{}{
				"task_type":     "generate_content",
				"title":         "Response",
				"requirements":  analysis.SpecificRequest,
				"target_length": 300,
			}))
	}
	return todos
}

// outlineParams loads the document outline in the shape the structural
// checks expect. A missing or empty document yields empty params; the
// downstream validation error is the clearer signal for the user.
func (s *Supervisor) outlineParams(ctx context.Context, documentID string) ([]map[string]interface{}, map[string]string) {
	outline := []map[string]interface{}{}
	summaries := map[string]string{}
	if documentID == "" || s.documents == nil {
		return outline, summaries
	}

	sections, err := s.documents.Outline(ctx, documentID)
	if err != nil {
		s.logger.Warn("Outline unavailable for structure check",
			zap.String("document_id", documentID),
			zap.Error(err))
		return outline, summaries
	}
	for _, section := range sections {
		outline = append(outline, map[string]interface{}{
			"id":             section.ID,
			"title":          section.Title,
			"display_number": section.DisplayNumber,
			"word_count":     section.WordCount,
		})
		if section.Summary != "" {
			summaries[section.ID] = section.Summary
		}
	}
	return outline, summaries
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
