package handler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/r8kyu/scribe-project/internal/agent"
	"github.com/r8kyu/scribe-project/internal/model"
	"github.com/r8kyu/scribe-project/internal/textgen"
)

func canonicalOutline() []map[string]interface{} {
	return []map[string]interface{}{
		{"id": "s1", "title": "Introduction", "display_number": "1", "word_count": 400},
		{"id": "s2", "title": "Methods", "display_number": "2", "word_count": 600},
		{"id": "s3", "title": "Results", "display_number": "3", "word_count": 500},
		{"id": "s4", "title": "Discussion", "display_number": "4", "word_count": 450},
		{"id": "s5", "title": "Conclusion", "display_number": "5", "word_count": 300},
	}
}

func canonicalSummaries() map[string]interface{} {
	return map[string]interface{}{
		"s1": "Introduces the problem of sparse rewards and motivates the approach.",
		"s2": "Describes the training setup, datasets, and evaluation protocol in detail.",
		"s3": "Reports accuracy gains across all benchmarks with ablation results.",
		"s4": "Interprets the gains and discusses limitations of the evaluation.",
		"s5": "Summarizes contributions and sketches future work directions.",
	}
}

func TestLogicValidatorHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("Clean Outline Validates Perfectly", func(t *testing.T) {
		mock := textgen.NewMock("OK")
		h := NewLogicValidatorHandler(mock, zap.NewNop())

		result, err := h.Execute(ctx, model.NewTask("validate_logic_flow", map[string]interface{}{
			"paper_outline":     canonicalOutline(),
			"section_summaries": canonicalSummaries(),
		}))
		require.NoError(t, err)
		assert.Equal(t, true, result["success"])
		assert.Empty(t, result["issues"])
		assert.InDelta(t, 1.0, result["validation_score"].(float64), 0.001)
		assert.Equal(t, []string{"No significant structural problems found"}, result["recommendations"])

		summary := result["summary"].(map[string]interface{})
		assert.Equal(t, 0, summary["total_issues"])
	})

	t.Run("Missing Sections Are High Priority", func(t *testing.T) {
		mock := textgen.NewMock("OK")
		h := NewLogicValidatorHandler(mock, zap.NewNop())

		result, err := h.Execute(ctx, model.NewTask("validate_logic_flow", map[string]interface{}{
			"paper_outline": []map[string]interface{}{
				{"id": "s1", "title": "Results", "display_number": "1", "word_count": 500},
			},
		}))
		require.NoError(t, err)

		summary := result["summary"].(map[string]interface{})
		assert.Equal(t, 3, summary["high_priority"])
		assert.InDelta(t, 0.1, result["validation_score"].(float64), 0.001)

		recs := result["recommendations"].([]string)
		require.Len(t, recs, 3)
		assert.Contains(t, recs, "Add a introduction section")
	})

	t.Run("Generator Findings Merge Into The Report", func(t *testing.T) {
		mock := textgen.NewMock("There is a gap after methods and redundant material near the end.")
		h := NewLogicValidatorHandler(mock, zap.NewNop())

		result, err := h.Execute(ctx, model.NewTask("validate_logic_flow", map[string]interface{}{
			"paper_outline":     canonicalOutline(),
			"section_summaries": canonicalSummaries(),
		}))
		require.NoError(t, err)

		issues := result["issues"].([]map[string]interface{})
		require.Len(t, issues, 2)
		assert.Equal(t, "logical_gap_detected", issues[0]["id"])
		assert.Equal(t, "redundancy_detected", issues[1]["id"])
		assert.InDelta(t, 0.6, result["validation_score"].(float64), 0.001)
	})

	t.Run("Generator Failure Degrades To Heuristics", func(t *testing.T) {
		mock := textgen.NewMock()
		mock.Err = errors.New("provider down")
		h := NewLogicValidatorHandler(mock, zap.NewNop())

		result, err := h.Execute(ctx, model.NewTask("validate_logic_flow", map[string]interface{}{
			"paper_outline":     canonicalOutline(),
			"section_summaries": canonicalSummaries(),
		}))
		require.NoError(t, err)
		assert.Empty(t, result["issues"])
		assert.InDelta(t, 1.0, result["validation_score"].(float64), 0.001)
	})

	t.Run("Empty Outline Rejected", func(t *testing.T) {
		h := NewLogicValidatorHandler(textgen.NewMock(), zap.NewNop())
		_, err := h.Execute(ctx, model.NewTask("validate_logic_flow", map[string]interface{}{}))
		assert.ErrorIs(t, err, agent.ErrValidation)
	})

	t.Run("Check Consistency On Coherent Sections", func(t *testing.T) {
		h := NewLogicValidatorHandler(textgen.NewMock(), zap.NewNop())

		body := "The training procedure converges because gradient updates stay bounded. " +
			"Therefore the model reaches stable accuracy on every benchmark dataset. " +
			"These benchmark results hold across every training configuration we evaluated, " +
			"and the bounded gradient updates explain the stable convergence behaviour observed. " +
			"Because convergence stays stable, accuracy on every evaluated benchmark dataset " +
			"keeps improving throughout training until the configuration limit is reached."

		result, err := h.Execute(ctx, model.NewTask("check_consistency", map[string]interface{}{
			"sections": []map[string]interface{}{
				{"id": "s1", "title": "Methods", "content": body},
				{"id": "s2", "title": "Results", "content": body},
			},
		}))
		require.NoError(t, err)
		assert.Empty(t, result["issues"])
		assert.InDelta(t, 1.0, result["validation_score"].(float64), 0.001)

		checks := result["consistency_results"].(map[string]interface{})
		assert.Contains(t, checks, "terminology")
		assert.Contains(t, checks, "substance")
		assert.Contains(t, checks, "arguments")
	})

	t.Run("Check Consistency Rejects Unknown Checks Only", func(t *testing.T) {
		h := NewLogicValidatorHandler(textgen.NewMock(), zap.NewNop())
		_, err := h.Execute(ctx, model.NewTask("check_consistency", map[string]interface{}{
			"sections": []map[string]interface{}{
				{"id": "s1", "title": "A", "content": "text"},
			},
			"check_types": []string{"vibes"},
		}))
		assert.ErrorIs(t, err, agent.ErrValidation)
	})

	t.Run("Analyze Structure Reports Depth And Balance", func(t *testing.T) {
		h := NewLogicValidatorHandler(textgen.NewMock(), zap.NewNop())

		result, err := h.Execute(ctx, model.NewTask("analyze_structure", map[string]interface{}{
			"paper_outline": []map[string]interface{}{
				{"id": "s1", "title": "Alpha", "display_number": "1", "word_count": 100},
				{"id": "s2", "title": "Alpha Detail", "display_number": "1.1", "word_count": 100},
				{"id": "s3", "title": "Beta", "display_number": "2", "word_count": 50},
			},
		}))
		require.NoError(t, err)

		analysis := result["structure_analysis"].(map[string]interface{})
		assert.Equal(t, 3, analysis["section_count"])
		assert.Equal(t, 2, analysis["max_depth"])
		assert.Equal(t, 250, analysis["total_words"])
		assert.InDelta(t, 0.5, analysis["balance_score"].(float64), 0.001)
		assert.InDelta(t, 0.75, result["validation_score"].(float64), 0.001)
	})

	t.Run("Validate Section Order Flags A Misplaced Introduction", func(t *testing.T) {
		h := NewLogicValidatorHandler(textgen.NewMock(), zap.NewNop())

		result, err := h.Execute(ctx, model.NewTask("validate_section_order", map[string]interface{}{
			"paper_outline": []map[string]interface{}{
				{"id": "s1", "title": "Results", "display_number": "1", "word_count": 500},
				{"id": "s2", "title": "Introduction", "display_number": "2", "word_count": 400},
			},
		}))
		require.NoError(t, err)

		issues := result["issues"].([]map[string]interface{})
		require.Len(t, issues, 3)
		assert.Equal(t, "section_order", issues[0]["id"])
		assert.Equal(t, "intro_not_first", issues[1]["id"])
		assert.Equal(t, "conclusion_not_last", issues[2]["id"])
		assert.InDelta(t, 0.5, result["validation_score"].(float64), 0.001)
	})

	t.Run("Check Argument Completeness", func(t *testing.T) {
		h := NewLogicValidatorHandler(textgen.NewMock(), zap.NewNop())

		complete := "We argue the approach scales. The data supports this because " +
			"measured throughput doubles. Therefore the approach is practical."
		result, err := h.Execute(ctx, model.NewTask("check_argument_completeness", map[string]interface{}{
			"content": complete,
		}))
		require.NoError(t, err)
		assert.Empty(t, result["issues"])
		assert.InDelta(t, 1.0, result["validation_score"].(float64), 0.001)

		missingConclusion := "We argue the approach scales. The data shows doubled throughput."
		result, err = h.Execute(ctx, model.NewTask("check_argument_completeness", map[string]interface{}{
			"content": missingConclusion,
		}))
		require.NoError(t, err)
		issues := result["issues"].([]map[string]interface{})
		require.Len(t, issues, 1)
		assert.Equal(t, "missing_conclusion", issues[0]["id"])
		assert.InDelta(t, 2.0/3.0, result["validation_score"].(float64), 0.001)
	})

	t.Run("Suggest Improvements Uses Generator Lines", func(t *testing.T) {
		mock := textgen.NewMock("1. Sharpen the thesis\n2. Cut the digression\n")
		h := NewLogicValidatorHandler(mock, zap.NewNop())

		result, err := h.Execute(ctx, model.NewTask("suggest_improvements", map[string]interface{}{
			"content": "a meandering argument",
		}))
		require.NoError(t, err)
		assert.Equal(t, []string{"Sharpen the thesis", "Cut the digression"}, result["suggestions"])
	})

	t.Run("Suggest Improvements Falls Back On Generator Failure", func(t *testing.T) {
		mock := textgen.NewMock()
		mock.Err = errors.New("provider down")
		h := NewLogicValidatorHandler(mock, zap.NewNop())

		result, err := h.Execute(ctx, model.NewTask("suggest_improvements", map[string]interface{}{
			"content": "a meandering argument",
		}))
		require.NoError(t, err)
		suggestions := result["suggestions"].([]string)
		require.Len(t, suggestions, 2)
		assert.Equal(t, "State the central claim earlier", suggestions[0])
	})
}
