package handler

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/r8kyu/scribe-project/internal/agent"
	"github.com/r8kyu/scribe-project/internal/model"
	"github.com/r8kyu/scribe-project/internal/textgen"
)

// goodDraft clears the quality threshold: three paragraphs and enough
// words for the default target length.
func goodDraft() string {
	paragraph := strings.Repeat("the method performs well on every benchmark we tried ", 6)
	return strings.TrimSpace(strings.Join([]string{paragraph, paragraph, paragraph}, "\n\n"))
}

func TestWriterHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("Generate Content Stops Once Quality Clears", func(t *testing.T) {
		mock := textgen.NewMock(goodDraft())
		h := NewWriterHandler(mock, zap.NewNop())

		result, err := h.Execute(ctx, model.NewTask("generate_content", map[string]interface{}{
			"title": "Evaluation",
		}))
		require.NoError(t, err)
		assert.Equal(t, true, result["success"])
		assert.Equal(t, 1, result["iterations"])
		assert.Equal(t, goodDraft(), result["content"])
		assert.Equal(t, 1, mock.Calls())
		assert.GreaterOrEqual(t, result["quality_score"].(float64), 0.7)
	})

	t.Run("Generate Content Keeps The Best Of Three Drafts", func(t *testing.T) {
		mock := textgen.NewMock(
			"too short",
			"this middle draft has clearly the most words of the three drafts",
			"also short",
		)
		h := NewWriterHandler(mock, zap.NewNop())

		result, err := h.Execute(ctx, model.NewTask("generate_content", map[string]interface{}{
			"title": "Evaluation",
		}))
		require.NoError(t, err)
		assert.Equal(t, 3, result["iterations"])
		assert.Equal(t, "this middle draft has clearly the most words of the three drafts", result["content"])
		assert.Equal(t, 3, mock.Calls())
	})

	t.Run("Generate Content Requires A Title", func(t *testing.T) {
		h := NewWriterHandler(textgen.NewMock(), zap.NewNop())
		_, err := h.Execute(ctx, model.NewTask("generate_content", map[string]interface{}{}))
		assert.ErrorIs(t, err, agent.ErrValidation)
	})

	t.Run("Generator Failure Propagates", func(t *testing.T) {
		mock := textgen.NewMock()
		mock.Err = errors.New("provider down")
		h := NewWriterHandler(mock, zap.NewNop())

		_, err := h.Execute(ctx, model.NewTask("generate_content", map[string]interface{}{
			"title": "Evaluation",
		}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "content generation failed")
	})

	t.Run("Rewrite Content Reports The Word Delta", func(t *testing.T) {
		mock := textgen.NewMock("a rewritten version")
		h := NewWriterHandler(mock, zap.NewNop())

		result, err := h.Execute(ctx, model.NewTask("rewrite_content", map[string]interface{}{
			"original_content":         "five original words right here",
			"improvement_instructions": "tighten it",
		}))
		require.NoError(t, err)
		assert.Equal(t, 3, result["word_count"])
		assert.Equal(t, -2, result["word_count_change"])

		prompt := mock.Prompts()[0]
		assert.Contains(t, prompt, "Keep the original paragraph structure")
		assert.Contains(t, prompt, "tighten it")
	})

	t.Run("Improve Style Defaults To Academic", func(t *testing.T) {
		mock := textgen.NewMock("polished text")
		h := NewWriterHandler(mock, zap.NewNop())

		result, err := h.Execute(ctx, model.NewTask("improve_style", map[string]interface{}{
			"content":         "some informal text",
			"specific_issues": []string{"passive voice"},
		}))
		require.NoError(t, err)
		assert.Equal(t, "academic", result["target_style"])

		prompt := mock.Prompts()[0]
		assert.Contains(t, prompt, "academic register")
		assert.Contains(t, prompt, "Address: passive voice")
	})

	t.Run("Generate Draft Counts Its References", func(t *testing.T) {
		mock := textgen.NewMock(goodDraft())
		h := NewWriterHandler(mock, zap.NewNop())

		result, err := h.Execute(ctx, model.NewTask("generate_draft", map[string]interface{}{
			"section_title": "Related Work",
			"section_type":  "introduction",
			"references":    []string{"Smith 2020", "Jones 2021"},
		}))
		require.NoError(t, err)
		assert.Equal(t, "Related Work", result["section_title"])
		assert.Equal(t, 2, result["references_used"])

		prompt := mock.Prompts()[0]
		assert.Contains(t, prompt, "Reference 1: Smith 2020")
		assert.Contains(t, prompt, "State the background")
	})

	t.Run("Condense And Polish", func(t *testing.T) {
		mock := textgen.NewMock("short form", "formal form")
		h := NewWriterHandler(mock, zap.NewNop())

		result, err := h.Execute(ctx, model.NewTask("condense_content", map[string]interface{}{
			"content": "a very long passage",
		}))
		require.NoError(t, err)
		assert.Equal(t, "condense_content", result["action"])
		assert.Equal(t, "short form", result["content"])

		result, err = h.Execute(ctx, model.NewTask("academic_polish", map[string]interface{}{
			"content": "casual words",
		}))
		require.NoError(t, err)
		assert.Equal(t, "formal form", result["content"])
	})
}

func TestEvaluateDraft(t *testing.T) {
	t.Run("Short Single Paragraph Scores Low", func(t *testing.T) {
		q := evaluateDraft("only four words here", 500)
		assert.Less(t, q.Overall, 0.7)
		assert.Equal(t, 1, q.Paragraphs)
	})

	t.Run("Structured Draft Scores High", func(t *testing.T) {
		q := evaluateDraft(goodDraft(), 500)
		assert.GreaterOrEqual(t, q.Overall, 0.7)
		assert.Equal(t, 3, q.Paragraphs)
		assert.Equal(t, 1.0, q.Structure)
	})
}
