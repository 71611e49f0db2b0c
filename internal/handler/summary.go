package handler

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/r8kyu/scribe-project/internal/agent"
	"github.com/r8kyu/scribe-project/internal/model"
	"github.com/r8kyu/scribe-project/internal/textgen"
)

const (
	summaryMinChars      = 150
	summaryMaxChars      = 250
	defaultSummaryLength = 200
)

// SummaryHandler produces and scores section summaries. Generated summaries
// target a 150 to 250 character window; quality scoring weighs length fit,
// keyword coverage, and readability.
type SummaryHandler struct {
	logger *zap.Logger
	gen    textgen.Generator
	ops    map[string]opFunc
}

var summaryTaskTypes = []string{
	"generate_summary",
	"batch_generate_summaries",
	"evaluate_summary_quality",
	"optimize_summary",
}

// NewSummaryHandler creates the summary capability handler.
func NewSummaryHandler(gen textgen.Generator, logger *zap.Logger) *SummaryHandler {
	h := &SummaryHandler{
		logger: logger,
		gen:    gen,
	}
	h.ops = map[string]opFunc{
		"generate_summary":         h.generateSummary,
		"batch_generate_summaries": h.batchGenerateSummaries,
		"evaluate_summary_quality": h.evaluateSummaryQuality,
		"optimize_summary":         h.optimizeSummary,
	}
	return h
}

// Name implements agent.Handler.
func (h *SummaryHandler) Name() string { return "summary" }

// Description implements agent.Handler.
func (h *SummaryHandler) Description() string {
	return "Generates and evaluates section summaries"
}

// TaskTypes implements agent.Handler.
func (h *SummaryHandler) TaskTypes() []string { return summaryTaskTypes }

// Execute implements agent.Handler.
func (h *SummaryHandler) Execute(ctx context.Context, task *model.Task) (map[string]interface{}, error) {
	h.logger.Info("Executing summary operation",
		zap.String("type", task.Type))
	return dispatch(ctx, h.ops, task)
}

func (h *SummaryHandler) generateSummary(ctx context.Context, task *model.Task) (map[string]interface{}, error) {
	var params struct {
		Content      string `mapstructure:"content"`
		Title        string `mapstructure:"title"`
		SectionType  string `mapstructure:"section_type"`
		TargetLength int    `mapstructure:"target_length"`
	}
	if err := decodeParams(task, &params); err != nil {
		return nil, err
	}
	if err := requireString(params.Content, "content", task.Type); err != nil {
		return nil, err
	}
	if params.TargetLength <= 0 {
		params.TargetLength = defaultSummaryLength
	}

	summary, err := h.summarize(ctx, params.Content, params.Title, params.SectionType, params.TargetLength)
	if err != nil {
		return nil, err
	}

	chars := utf8.RuneCountInString(summary)
	quality := scoreSummary(params.Content, summary, params.TargetLength)

	return map[string]interface{}{
		"summary":         summary,
		"character_count": chars,
		"target_length":   params.TargetLength,
		"within_range":    chars >= summaryMinChars && chars <= summaryMaxChars,
		"quality_score":   quality.Total,
		"action":          "generate_summary",
		"success":         true,
	}, nil
}

func (h *SummaryHandler) batchGenerateSummaries(ctx context.Context, task *model.Task) (map[string]interface{}, error) {
	var params struct {
		Sections []struct {
			ID          string `mapstructure:"id"`
			Title       string `mapstructure:"title"`
			Content     string `mapstructure:"content"`
			SectionType string `mapstructure:"section_type"`
		} `mapstructure:"sections"`
	}
	if err := decodeParams(task, &params); err != nil {
		return nil, err
	}
	if len(params.Sections) == 0 {
		return nil, fmt.Errorf("%w: %s requires a non-empty sections list", agent.ErrValidation, task.Type)
	}

	summaries := make([]map[string]interface{}, 0, len(params.Sections))
	failed := 0
	for _, section := range params.Sections {
		summary, err := h.summarize(ctx, section.Content, section.Title, section.SectionType, defaultSummaryLength)
		if err != nil {
			h.logger.Warn("Summary generation failed for section",
				zap.String("section_id", section.ID),
				zap.Error(err))
			failed++
			summaries = append(summaries, map[string]interface{}{
				"section_id": section.ID,
				"title":      section.Title,
				"error":      err.Error(),
				"success":    false,
			})
			continue
		}
		summaries = append(summaries, map[string]interface{}{
			"section_id":      section.ID,
			"title":           section.Title,
			"summary":         summary,
			"character_count": utf8.RuneCountInString(summary),
			"success":         true,
		})
	}

	return map[string]interface{}{
		"summaries":    summaries,
		"count":        len(summaries),
		"failed_count": failed,
		"action":       "batch_generate_summaries",
		"success":      failed == 0,
	}, nil
}

func (h *SummaryHandler) evaluateSummaryQuality(ctx context.Context, task *model.Task) (map[string]interface{}, error) {
	var params struct {
		Content      string `mapstructure:"content"`
		Summary      string `mapstructure:"summary"`
		TargetLength int    `mapstructure:"target_length"`
	}
	if err := decodeParams(task, &params); err != nil {
		return nil, err
	}
	if err := requireString(params.Content, "content", task.Type); err != nil {
		return nil, err
	}
	if err := requireString(params.Summary, "summary", task.Type); err != nil {
		return nil, err
	}
	if params.TargetLength <= 0 {
		params.TargetLength = defaultSummaryLength
	}

	quality := scoreSummary(params.Content, params.Summary, params.TargetLength)

	return map[string]interface{}{
		"score": quality.Total,
		"details": map[string]interface{}{
			"length_score":      quality.Length,
			"keyword_score":     quality.Keywords,
			"readability_score": quality.Readability,
			"character_count":   utf8.RuneCountInString(params.Summary),
		},
		"feedback": quality.Recommendation(),
		"action":   "evaluate_summary_quality",
		"success":  true,
	}, nil
}

func (h *SummaryHandler) optimizeSummary(ctx context.Context, task *model.Task) (map[string]interface{}, error) {
	var params struct {
		Content        string `mapstructure:"content"`
		CurrentSummary string `mapstructure:"current_summary"`
		Feedback       string `mapstructure:"feedback"`
		TargetLength   int    `mapstructure:"target_length"`
	}
	if err := decodeParams(task, &params); err != nil {
		return nil, err
	}
	if err := requireString(params.Content, "content", task.Type); err != nil {
		return nil, err
	}
	if err := requireString(params.CurrentSummary, "current_summary", task.Type); err != nil {
		return nil, err
	}
	if params.TargetLength <= 0 {
		params.TargetLength = defaultSummaryLength
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Improve this summary. Target about %d characters, between %d and %d.\n",
		params.TargetLength, summaryMinChars, summaryMaxChars)
	if params.Feedback != "" {
		fmt.Fprintf(&sb, "Feedback to address: %s\n", params.Feedback)
	}
	sb.WriteString("\nSource:\n")
	sb.WriteString(truncate(params.Content, 1000))
	sb.WriteString("\n\nCurrent summary:\n")
	sb.WriteString(params.CurrentSummary)

	gen, err := h.gen.Generate(ctx, sb.String(), "summary")
	if err != nil {
		return nil, fmt.Errorf("summary optimization failed: %w", err)
	}
	optimized := strings.TrimSpace(gen.Text)
	quality := scoreSummary(params.Content, optimized, params.TargetLength)

	return map[string]interface{}{
		"summary":         optimized,
		"character_count": utf8.RuneCountInString(optimized),
		"original_length": utf8.RuneCountInString(params.CurrentSummary),
		"quality_score":   quality.Total,
		"action":          "optimize_summary",
		"success":         true,
	}, nil
}

func (h *SummaryHandler) summarize(ctx context.Context, content, title, sectionType string, targetLength int) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: summary source content is empty", agent.ErrValidation)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Summarize the following text in about %d characters, between %d and %d. The summary must stand on its own.\n",
		targetLength, summaryMinChars, summaryMaxChars)
	if focus := summaryFocus(sectionType); focus != "" {
		sb.WriteString(focus)
		sb.WriteString("\n")
	}
	if title != "" {
		fmt.Fprintf(&sb, "Title: %s\n", title)
	}
	sb.WriteString("\nText:\n")
	sb.WriteString(content)

	gen, err := h.gen.Generate(ctx, sb.String(), "summary")
	if err != nil {
		return "", fmt.Errorf("summary generation failed: %w", err)
	}
	return strings.TrimSpace(gen.Text), nil
}

func summaryFocus(sectionType string) string {
	switch sectionType {
	case "intro", "introduction":
		return "Focus on the background, the goal, and why the work matters."
	case "method":
		return "Focus on the approach and how data was gathered and analyzed."
	case "result", "results":
		return "Focus on the main findings and any quantitative outcomes."
	case "discussion":
		return "Focus on interpretation, significance, and limitations."
	default:
		return ""
	}
}

// summaryQuality is the weighted breakdown of one summary's score.
type summaryQuality struct {
	Total       float64
	Length      float64
	Keywords    float64
	Readability float64
}

// Recommendation maps the total score onto reviewer guidance.
func (q summaryQuality) Recommendation() string {
	switch {
	case q.Total >= 0.8:
		return "high quality summary"
	case q.Total >= 0.6:
		return "good summary with room for minor tuning"
	case q.Total >= 0.4:
		return "needs work on length and keyword coverage"
	default:
		return "regeneration recommended"
	}
}

// scoreSummary rates a summary against its source. Length fit carries 30%,
// keyword coverage 40%, readability 30%.
func scoreSummary(content, summary string, targetLength int) summaryQuality {
	length := scoreLength(utf8.RuneCountInString(summary), targetLength)
	keywords := scoreKeywordCoverage(content, summary)
	readability := scoreReadability(summary)

	total := length*0.3 + keywords*0.4 + readability*0.3
	return summaryQuality{
		Total:       math.Round(total*100) / 100,
		Length:      length,
		Keywords:    keywords,
		Readability: readability,
	}
}

func scoreLength(chars, target int) float64 {
	if chars >= summaryMinChars && chars <= summaryMaxChars {
		deviation := math.Abs(float64(chars-target)) / float64(target)
		return math.Max(0, 1-deviation)
	}
	if chars < summaryMinChars {
		return math.Max(0, float64(chars)/float64(summaryMinChars)*0.8)
	}
	return math.Max(0, float64(summaryMaxChars)/float64(chars)*0.8)
}

// scoreKeywordCoverage measures how many of the source's significant words
// survive into the summary. Covering half of them scores full marks.
func scoreKeywordCoverage(content, summary string) float64 {
	source := significantWords(content)
	if len(source) == 0 {
		return 1
	}
	kept := significantWords(summary)

	matched := 0
	for w := range source {
		if _, ok := kept[w]; ok {
			matched++
		}
	}
	return math.Min(1, float64(matched)/float64(len(source))*2)
}

func significantWords(text string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?()[]{}\"'")
		if utf8.RuneCountInString(w) >= 4 {
			words[w] = struct{}{}
		}
	}
	return words
}

// scoreReadability rates sentence shape: 30 to 60 characters per sentence
// and 2 to 4 sentences are ideal for the target summary window.
func scoreReadability(summary string) float64 {
	raw := strings.FieldsFunc(summary, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	sentences := raw[:0]
	for _, s := range raw {
		if strings.TrimSpace(s) != "" {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) == 0 {
		return 0
	}

	totalChars := 0
	for _, s := range sentences {
		totalChars += utf8.RuneCountInString(strings.TrimSpace(s))
	}
	avg := float64(totalChars) / float64(len(sentences))

	lengthScore := 1.0
	if avg < 30 || avg > 60 {
		lengthScore = math.Max(0, 1-math.Abs(avg-45)/45)
	}

	countScore := 1.0
	if len(sentences) < 2 || len(sentences) > 4 {
		countScore = math.Max(0, 1-math.Abs(float64(len(sentences))-3)/3)
	}

	return (lengthScore + countScore) / 2
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}
