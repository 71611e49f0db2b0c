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
	"github.com/r8kyu/scribe-project/internal/search"
	"github.com/r8kyu/scribe-project/internal/textgen"
)

func TestReferenceHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("Search Merges Modes And Boosts Repeat Hits", func(t *testing.T) {
		searcher := search.NewMock(
			search.Result{
				ID: "r1", Content: "attention is all you need", Score: 0.9,
				Metadata: map[string]interface{}{"title": "Deep Learning", "authors": "A. Author", "year": 2020},
			},
			search.Result{
				ID: "r2", Content: "networks of neurons", Score: 0.5,
				Metadata: map[string]interface{}{"filename": "docs/03_neural_networks.pdf"},
			},
		)
		h := NewReferenceHandler(searcher, textgen.NewMock(), zap.NewNop())

		result, err := h.Execute(ctx, model.NewTask("search_references", map[string]interface{}{
			"query":    "attention mechanisms",
			"keywords": []string{"attention"},
		}))
		require.NoError(t, err)
		assert.Equal(t, true, result["success"])
		assert.Equal(t, 2, result["count"])

		// Hit by both the vector and keyword passes
		references := result["references"].([]model.Reference)
		require.Len(t, references, 2)
		assert.Equal(t, "r1", references[0].ID)
		assert.Equal(t, "Deep Learning", references[0].Title)
		assert.InDelta(t, 0.99, references[0].Score, 0.001)
		assert.Equal(t, "neural networks", references[1].Title)

		citations := result["citations"].([]string)
		assert.Equal(t, `A. Author, "Deep Learning", 2020.`, citations[0])

		counts := result["search_summary"].(map[string]interface{})
		assert.Equal(t, 2, counts["total_found"])
		assert.Equal(t, 2, counts["vector_results"])
		assert.Equal(t, 2, counts["keyword_results"])
		assert.Equal(t, 0, counts["tag_results"])
	})

	t.Run("Search Requires Some Input", func(t *testing.T) {
		h := NewReferenceHandler(search.NewMock(), textgen.NewMock(), zap.NewNop())
		_, err := h.Execute(ctx, model.NewTask("search_references", map[string]interface{}{}))
		assert.ErrorIs(t, err, agent.ErrValidation)
	})

	t.Run("Failing Modes Contribute Nothing", func(t *testing.T) {
		searcher := search.NewMock()
		searcher.Err = errors.New("index offline")
		h := NewReferenceHandler(searcher, textgen.NewMock(), zap.NewNop())

		result, err := h.Execute(ctx, model.NewTask("search_references", map[string]interface{}{
			"query": "anything",
		}))
		require.NoError(t, err)
		assert.Equal(t, true, result["success"])
		assert.Equal(t, 0, result["count"])

		counts := result["search_summary"].(map[string]interface{})
		assert.Equal(t, 0, counts["total_found"])
	})

	t.Run("Generate Citation", func(t *testing.T) {
		h := NewReferenceHandler(search.NewMock(), textgen.NewMock(), zap.NewNop())

		result, err := h.Execute(ctx, model.NewTask("generate_citation", map[string]interface{}{
			"reference_info": map[string]interface{}{
				"title":   "On Scaling",
				"authors": "B. Builder",
				"source":  "Journal of Scale",
				"year":    2021,
			},
		}))
		require.NoError(t, err)
		assert.Equal(t, `B. Builder, "On Scaling", Journal of Scale, 2021.`, result["citation"])
		assert.Equal(t, "ieee", result["citation_style"])
	})

	t.Run("Unsupported Citation Style Rejected", func(t *testing.T) {
		h := NewReferenceHandler(search.NewMock(), textgen.NewMock(), zap.NewNop())
		_, err := h.Execute(ctx, model.NewTask("generate_citation", map[string]interface{}{
			"reference_info": map[string]interface{}{"title": "X"},
			"citation_style": "chicago",
		}))
		assert.ErrorIs(t, err, agent.ErrValidation)
	})

	t.Run("Format Bibliography Numbers Entries", func(t *testing.T) {
		h := NewReferenceHandler(search.NewMock(), textgen.NewMock(), zap.NewNop())

		result, err := h.Execute(ctx, model.NewTask("format_bibliography", map[string]interface{}{
			"references": []map[string]interface{}{
				{"title": "First", "year": 2019},
				{"title": "Second", "year": 2020},
			},
		}))
		require.NoError(t, err)
		assert.Equal(t, 2, result["reference_count"])

		entries := result["bibliography"].([]string)
		assert.Equal(t, `[1] "First", 2019.`, entries[0])
		assert.Equal(t, `[2] "Second", 2020.`, entries[1])
	})

	t.Run("Validate References Flags Problems", func(t *testing.T) {
		h := NewReferenceHandler(search.NewMock(), textgen.NewMock(), zap.NewNop())

		result, err := h.Execute(ctx, model.NewTask("validate_references", map[string]interface{}{
			"references": []map[string]interface{}{
				{"title": "Fine", "source": "Somewhere", "year": 2020},
				{"title": "", "source": "Elsewhere", "year": 1200},
			},
		}))
		require.NoError(t, err)
		assert.Equal(t, false, result["overall_valid"])

		results := result["validation_results"].([]map[string]interface{})
		require.Len(t, results, 2)
		assert.Equal(t, true, results[0]["is_valid"])
		assert.Equal(t, false, results[1]["is_valid"])

		problems := results[1]["issues"].([]string)
		require.Len(t, problems, 2)
		assert.Equal(t, "missing title", problems[0])
		assert.Equal(t, "implausible year 1200", problems[1])
	})

	t.Run("Suggest References Explains Each Pick", func(t *testing.T) {
		searcher := search.NewMock(
			search.Result{ID: "r1", Content: "transformer models dominate translation", Score: 0.9},
		)
		h := NewReferenceHandler(searcher, textgen.NewMock(), zap.NewNop())

		result, err := h.Execute(ctx, model.NewTask("suggest_references", map[string]interface{}{
			"content": "transformer transformer transformer attention attention model quality",
		}))
		require.NoError(t, err)

		keywords := result["extracted_keywords"].([]string)
		require.NotEmpty(t, keywords)
		assert.Equal(t, "transformer", keywords[0])

		suggestions := result["suggested_references"].([]map[string]interface{})
		require.Len(t, suggestions, 1)
		assert.Contains(t, suggestions[0]["suggestion_reason"], "high relevance")
		assert.InDelta(t, suggestions[0]["confidence_score"].(float64),
			result["references"].([]model.Reference)[0].Score*0.8, 0.001)
	})

	t.Run("Extract Key Points", func(t *testing.T) {
		gen := textgen.NewMock("- Finds a 2x speedup\n- Uses synthetic data\n")
		h := NewReferenceHandler(search.NewMock(), gen, zap.NewNop())

		result, err := h.Execute(ctx, model.NewTask("extract_key_points", map[string]interface{}{
			"reference_content": "the paper reports a 2x speedup from synthetic data",
		}))
		require.NoError(t, err)
		assert.Equal(t, []string{"Finds a 2x speedup", "Uses synthetic data"}, result["key_points"])
		assert.Equal(t, 2, result["count"])
	})

	t.Run("Extract Key Points Propagates Generator Failure", func(t *testing.T) {
		gen := textgen.NewMock()
		gen.Err = errors.New("provider down")
		h := NewReferenceHandler(search.NewMock(), gen, zap.NewNop())

		_, err := h.Execute(ctx, model.NewTask("extract_key_points", map[string]interface{}{
			"reference_content": "anything",
		}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "key point extraction failed")
	})
}

func TestTitleFromFilename(t *testing.T) {
	cases := map[string]string{
		"docs/03_neural_networks.pdf": "neural networks",
		"attention-is-all.md":         "attention is all",
		"2021. survey.txt":            "survey",
		"plain":                       "plain",
	}
	for input, want := range cases {
		assert.Equal(t, want, titleFromFilename(input), "input %q", input)
	}
}
