package handler

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/r8kyu/scribe-project/internal/agent"
	"github.com/r8kyu/scribe-project/internal/model"
	"github.com/r8kyu/scribe-project/internal/textgen"
)

const (
	priorityHigh   = "high"
	priorityMedium = "medium"
	priorityLow    = "low"
)

const (
	issueLogicalGap        = "logical_gap"
	issueInconsistency     = "inconsistency"
	issueMissingConnection = "missing_connection"
	issueRedundancy        = "redundancy"
	issueOrderIssue        = "order_issue"
)

// StructureIssue is one problem found in a document's logical structure.
type StructureIssue struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	Priority       string `json:"priority"`
	Location       string `json:"location"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation"`
}

// outlineEntry is the slice element shape shared by the structural
// operations' paper_outline parameter.
type outlineEntry struct {
	ID            string `mapstructure:"id"`
	Title         string `mapstructure:"title"`
	DisplayNumber string `mapstructure:"display_number"`
	WordCount     int    `mapstructure:"word_count"`
}

// LogicValidatorHandler reviews a document's argumentative structure. The
// core checks are deterministic heuristics over the outline and section
// summaries; validate_logic_flow additionally asks the text generator for
// a flow review and degrades to the heuristics alone if that call fails.
type LogicValidatorHandler struct {
	logger *zap.Logger
	gen    textgen.Generator
	ops    map[string]opFunc
}

var logicValidatorTaskTypes = []string{
	"validate_logic_flow",
	"check_consistency",
	"analyze_structure",
	"suggest_improvements",
	"validate_section_order",
	"check_argument_completeness",
}

// NewLogicValidatorHandler creates the logic-validation capability handler.
func NewLogicValidatorHandler(gen textgen.Generator, logger *zap.Logger) *LogicValidatorHandler {
	h := &LogicValidatorHandler{
		logger: logger,
		gen:    gen,
	}
	h.ops = map[string]opFunc{
		"validate_logic_flow":         h.validateLogicFlow,
		"check_consistency":           h.checkConsistency,
		"analyze_structure":           h.analyzeStructure,
		"suggest_improvements":        h.suggestImprovements,
		"validate_section_order":      h.validateSectionOrder,
		"check_argument_completeness": h.checkArgumentCompleteness,
	}
	return h
}

// Name implements agent.Handler.
func (h *LogicValidatorHandler) Name() string { return "logic_validator" }

// Description implements agent.Handler.
func (h *LogicValidatorHandler) Description() string {
	return "Validates logical flow, consistency, and argument structure"
}

// TaskTypes implements agent.Handler.
func (h *LogicValidatorHandler) TaskTypes() []string { return logicValidatorTaskTypes }

// Execute implements agent.Handler.
func (h *LogicValidatorHandler) Execute(ctx context.Context, task *model.Task) (map[string]interface{}, error) {
	h.logger.Info("Executing logic validation",
		zap.String("type", task.Type))
	return dispatch(ctx, h.ops, task)
}

func (h *LogicValidatorHandler) validateLogicFlow(ctx context.Context, task *model.Task) (map[string]interface{}, error) {
	var params struct {
		PaperOutline     []outlineEntry    `mapstructure:"paper_outline"`
		SectionSummaries map[string]string `mapstructure:"section_summaries"`
		PaperType        string            `mapstructure:"paper_type"`
	}
	if err := decodeParams(task, &params); err != nil {
		return nil, err
	}
	if len(params.PaperOutline) == 0 {
		return nil, fmt.Errorf("%w: %s requires a non-empty paper_outline", agent.ErrValidation, task.Type)
	}

	var issues []StructureIssue
	issues = append(issues, checkRequiredSections(params.PaperOutline)...)
	issues = append(issues, checkSectionOrdering(params.PaperOutline)...)
	issues = append(issues, checkContinuity(params.PaperOutline, params.SectionSummaries)...)
	issues = append(issues, checkArgumentDepth(params.SectionSummaries)...)
	issues = append(issues, h.generatorFlowReview(ctx, params.PaperOutline, params.SectionSummaries)...)

	high, medium, low := 0, 0, 0
	for _, issue := range issues {
		switch issue.Priority {
		case priorityHigh:
			high++
		case priorityMedium:
			medium++
		default:
			low++
		}
	}

	return map[string]interface{}{
		"issues": issueMaps(issues),
		"summary": map[string]interface{}{
			"total_issues":    len(issues),
			"high_priority":   high,
			"medium_priority": medium,
			"low_priority":    low,
		},
		"validation_score": validationScore(issues),
		"recommendations":  recommendations(issues),
		"action":           "validate_logic_flow",
		"success":          true,
	}, nil
}

func (h *LogicValidatorHandler) checkConsistency(ctx context.Context, task *model.Task) (map[string]interface{}, error) {
	var params struct {
		Sections []struct {
			ID      string `mapstructure:"id"`
			Title   string `mapstructure:"title"`
			Content string `mapstructure:"content"`
		} `mapstructure:"sections"`
		CheckTypes []string `mapstructure:"check_types"`
	}
	if err := decodeParams(task, &params); err != nil {
		return nil, err
	}
	if len(params.Sections) == 0 {
		return nil, fmt.Errorf("%w: %s requires a non-empty sections list", agent.ErrValidation, task.Type)
	}
	if len(params.CheckTypes) == 0 {
		params.CheckTypes = []string{"terminology", "substance", "arguments"}
	}

	contents := make([]string, 0, len(params.Sections))
	titles := make([]string, 0, len(params.Sections))
	for _, s := range params.Sections {
		contents = append(contents, s.Content)
		titles = append(titles, s.Title)
	}

	var issues []StructureIssue
	results := make(map[string]interface{}, len(params.CheckTypes))
	var total float64
	counted := 0
	for _, check := range params.CheckTypes {
		var score float64
		var found []StructureIssue
		switch check {
		case "terminology":
			score, found = checkTerminology(titles, contents)
		case "substance":
			score, found = checkSubstance(titles, contents)
		case "arguments":
			score, found = checkConnectives(titles, contents)
		default:
			continue
		}
		results[check] = map[string]interface{}{
			"score":  score,
			"issues": len(found),
		}
		issues = append(issues, found...)
		total += score
		counted++
	}
	if counted == 0 {
		return nil, fmt.Errorf("%w: no recognized check_types", agent.ErrValidation)
	}

	return map[string]interface{}{
		"issues":              issueMaps(issues),
		"consistency_results": results,
		"validation_score":    total / float64(counted),
		"action":              "check_consistency",
		"success":             true,
	}, nil
}

func (h *LogicValidatorHandler) analyzeStructure(ctx context.Context, task *model.Task) (map[string]interface{}, error) {
	var params struct {
		PaperOutline []outlineEntry `mapstructure:"paper_outline"`
	}
	if err := decodeParams(task, &params); err != nil {
		return nil, err
	}
	if len(params.PaperOutline) == 0 {
		return nil, fmt.Errorf("%w: %s requires a non-empty paper_outline", agent.ErrValidation, task.Type)
	}

	depth := 1
	minWords, maxWords, totalWords := -1, 0, 0
	for _, entry := range params.PaperOutline {
		if d := strings.Count(entry.DisplayNumber, ".") + 1; d > depth {
			depth = d
		}
		if minWords < 0 || entry.WordCount < minWords {
			minWords = entry.WordCount
		}
		if entry.WordCount > maxWords {
			maxWords = entry.WordCount
		}
		totalWords += entry.WordCount
	}

	balance := 1.0
	if maxWords > 0 {
		balance = float64(minWords) / float64(maxWords)
	}

	order := checkSectionOrdering(params.PaperOutline)
	flowScore := 1.0 - 0.2*float64(len(order))
	if flowScore < 0 {
		flowScore = 0
	}

	structureScore := (balance + flowScore) / 2

	return map[string]interface{}{
		"structure_analysis": map[string]interface{}{
			"section_count": len(params.PaperOutline),
			"max_depth":     depth,
			"total_words":   totalWords,
			"balance_score": balance,
			"flow_score":    flowScore,
		},
		"issues":           issueMaps(order),
		"validation_score": structureScore,
		"action":           "analyze_structure",
		"success":          true,
	}, nil
}

func (h *LogicValidatorHandler) suggestImprovements(ctx context.Context, task *model.Task) (map[string]interface{}, error) {
	var params struct {
		Content string `mapstructure:"content"`
		Focus   string `mapstructure:"focus"`
	}
	if err := decodeParams(task, &params); err != nil {
		return nil, err
	}
	if err := requireString(params.Content, "content", task.Type); err != nil {
		return nil, err
	}

	prompt := "List up to five concrete improvements for the argument below, one per line.\n"
	if params.Focus != "" {
		prompt += "Focus on: " + params.Focus + "\n"
	}
	prompt += "\nText:\n" + params.Content

	suggestions := []string{
		"State the central claim earlier",
		"Support each claim with evidence",
	}
	if gen, err := h.gen.Generate(ctx, prompt, "review"); err != nil {
		h.logger.Warn("Generator review unavailable, using defaults", zap.Error(err))
	} else if lines := nonEmptyLines(gen.Text, 5); len(lines) > 0 {
		suggestions = lines
	}

	return map[string]interface{}{
		"suggestions": suggestions,
		"action":      "suggest_improvements",
		"success":     true,
	}, nil
}

func (h *LogicValidatorHandler) validateSectionOrder(ctx context.Context, task *model.Task) (map[string]interface{}, error) {
	var params struct {
		PaperOutline []outlineEntry `mapstructure:"paper_outline"`
	}
	if err := decodeParams(task, &params); err != nil {
		return nil, err
	}
	if len(params.PaperOutline) == 0 {
		return nil, fmt.Errorf("%w: %s requires a non-empty paper_outline", agent.ErrValidation, task.Type)
	}

	issues := checkSectionOrdering(params.PaperOutline)
	if first := classifySection(params.PaperOutline[0].Title); first != "" && first != "introduction" {
		issues = append(issues, StructureIssue{
			ID:             "intro_not_first",
			Type:           issueOrderIssue,
			Priority:       priorityMedium,
			Location:       params.PaperOutline[0].Title,
			Title:          "Opening section is not the introduction",
			Description:    "The document does not open with introductory material",
			Recommendation: "Move the introduction to the front",
		})
	}
	if last := classifySection(params.PaperOutline[len(params.PaperOutline)-1].Title); last != "" && last != "conclusion" {
		issues = append(issues, StructureIssue{
			ID:             "conclusion_not_last",
			Type:           issueOrderIssue,
			Priority:       priorityLow,
			Location:       params.PaperOutline[len(params.PaperOutline)-1].Title,
			Title:          "Closing section is not the conclusion",
			Description:    "The document does not close with concluding material",
			Recommendation: "Move the conclusion to the end",
		})
	}

	return map[string]interface{}{
		"issues":           issueMaps(issues),
		"validation_score": validationScore(issues),
		"action":           "validate_section_order",
		"success":          true,
	}, nil
}

func (h *LogicValidatorHandler) checkArgumentCompleteness(ctx context.Context, task *model.Task) (map[string]interface{}, error) {
	var params struct {
		Content string `mapstructure:"content"`
	}
	if err := decodeParams(task, &params); err != nil {
		return nil, err
	}
	if err := requireString(params.Content, "content", task.Type); err != nil {
		return nil, err
	}

	lower := strings.ToLower(params.Content)
	parts := map[string][]string{
		"claim":      {"we show", "we argue", "this paper", "we propose", "suggests that"},
		"evidence":   {"because", "data", "figure", "table", "observed", "measured", "results show"},
		"conclusion": {"therefore", "thus", "in conclusion", "consequently", "hence"},
	}

	var issues []StructureIssue
	present := 0
	for part, markers := range parts {
		if containsAny(lower, markers) {
			present++
			continue
		}
		issues = append(issues, StructureIssue{
			ID:             "missing_" + part,
			Type:           issueMissingConnection,
			Priority:       priorityMedium,
			Location:       "content",
			Title:          fmt.Sprintf("No explicit %s found", part),
			Description:    fmt.Sprintf("The text never makes its %s explicit", part),
			Recommendation: fmt.Sprintf("State the %s directly", part),
		})
	}

	return map[string]interface{}{
		"issues":           issueMaps(issues),
		"validation_score": float64(present) / float64(len(parts)),
		"action":           "check_argument_completeness",
		"success":          true,
	}, nil
}

// generatorFlowReview asks the text generator to review the outline's flow.
// Failures degrade to the heuristic checks alone.
func (h *LogicValidatorHandler) generatorFlowReview(ctx context.Context, outline []outlineEntry, summaries map[string]string) []StructureIssue {
	var sb strings.Builder
	sb.WriteString("Review the logical flow of this document outline. If sections connect without gaps, answer OK. Otherwise name each problem using the words gap, contradiction, or redundant.\n\nOutline:\n")
	for i, entry := range outline {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, entry.Title)
		if summary := summaries[entry.ID]; summary != "" {
			fmt.Fprintf(&sb, "   %s\n", truncate(summary, 200))
		}
	}

	gen, err := h.gen.Generate(ctx, sb.String(), "review")
	if err != nil {
		h.logger.Warn("Generator flow review unavailable", zap.Error(err))
		return nil
	}

	review := strings.ToLower(gen.Text)
	var issues []StructureIssue
	if strings.Contains(review, "gap") {
		issues = append(issues, StructureIssue{
			ID:             "logical_gap_detected",
			Type:           issueLogicalGap,
			Priority:       priorityHigh,
			Location:       "between sections",
			Title:          "Logical gap detected",
			Description:    "The review found sections that do not connect logically",
			Recommendation: "Bridge the argument between the affected sections",
		})
	}
	if strings.Contains(review, "contradiction") {
		issues = append(issues, StructureIssue{
			ID:             "contradiction_detected",
			Type:           issueInconsistency,
			Priority:       priorityHigh,
			Location:       "between sections",
			Title:          "Contradiction detected",
			Description:    "The review found claims that contradict each other",
			Recommendation: "Reconcile or remove the conflicting claims",
		})
	}
	if strings.Contains(review, "redundant") {
		issues = append(issues, StructureIssue{
			ID:             "redundancy_detected",
			Type:           issueRedundancy,
			Priority:       priorityLow,
			Location:       "between sections",
			Title:          "Redundant material detected",
			Description:    "The review found material repeated across sections",
			Recommendation: "Consolidate the repeated material in one place",
		})
	}
	return issues
}

// classifySection maps a section title onto its canonical role, or ""
// when the title matches none.
func classifySection(title string) string {
	lower := strings.ToLower(title)
	switch {
	case containsAny(lower, []string{"introduction", "background"}):
		return "introduction"
	case containsAny(lower, []string{"method", "approach", "experiment"}):
		return "method"
	case containsAny(lower, []string{"result", "finding"}):
		return "results"
	case containsAny(lower, []string{"discussion"}):
		return "discussion"
	case containsAny(lower, []string{"conclusion"}):
		return "conclusion"
	default:
		return ""
	}
}

var canonicalOrder = []string{"introduction", "method", "results", "discussion", "conclusion"}

func checkRequiredSections(outline []outlineEntry) []StructureIssue {
	present := make(map[string]bool, len(outline))
	for _, entry := range outline {
		if role := classifySection(entry.Title); role != "" {
			present[role] = true
		}
	}

	var issues []StructureIssue
	for _, required := range []string{"introduction", "method", "results", "discussion"} {
		if present[required] {
			continue
		}
		issues = append(issues, StructureIssue{
			ID:             "missing_" + required,
			Type:           issueMissingConnection,
			Priority:       priorityHigh,
			Location:       "document",
			Title:          "Required section missing",
			Description:    fmt.Sprintf("No %s section was found", required),
			Recommendation: fmt.Sprintf("Add a %s section", required),
		})
	}
	return issues
}

func checkSectionOrdering(outline []outlineEntry) []StructureIssue {
	var observed []string
	for _, entry := range outline {
		if role := classifySection(entry.Title); role != "" {
			observed = append(observed, role)
		}
	}

	var expected []string
	seen := make(map[string]bool, len(observed))
	for _, role := range observed {
		seen[role] = true
	}
	for _, role := range canonicalOrder {
		if seen[role] {
			expected = append(expected, role)
		}
	}

	misordered := len(observed) != len(expected)
	for i := 0; !misordered && i < len(observed); i++ {
		misordered = observed[i] != expected[i]
	}
	if !misordered {
		return nil
	}
	return []StructureIssue{{
		ID:             "section_order",
		Type:           issueOrderIssue,
		Priority:       priorityMedium,
		Location:       "document",
		Title:          "Section order breaks the canonical flow",
		Description:    "Sections do not follow the introduction, method, results, discussion order",
		Recommendation: "Reorder the sections into the canonical flow",
	}}
}

func checkContinuity(outline []outlineEntry, summaries map[string]string) []StructureIssue {
	var issues []StructureIssue
	for i := 0; i+1 < len(outline); i++ {
		current, next := outline[i], outline[i+1]
		cs, ns := summaries[current.ID], summaries[next.ID]
		if cs == "" || ns == "" {
			continue
		}
		if len(cs) < 10 || len(ns) < 10 {
			issues = append(issues, StructureIssue{
				ID:             fmt.Sprintf("continuity_%s_%s", current.ID, next.ID),
				Type:           issueMissingConnection,
				Priority:       priorityMedium,
				Location:       fmt.Sprintf("%s to %s", current.Title, next.Title),
				Title:          "Weak continuity between sections",
				Description:    "Adjacent sections lack enough material to establish a connection",
				Recommendation: "Strengthen the transition between the two sections",
			})
		}
	}
	return issues
}

func checkArgumentDepth(summaries map[string]string) []StructureIssue {
	var issues []StructureIssue
	for sectionID, summary := range summaries {
		if len(strings.TrimSpace(summary)) >= 20 {
			continue
		}
		issues = append(issues, StructureIssue{
			ID:             "thin_argument_" + sectionID,
			Type:           issueInconsistency,
			Priority:       priorityMedium,
			Location:       sectionID,
			Title:          "Argument too thin",
			Description:    "The section summary is too short to carry an argument",
			Recommendation: "Develop the section's argument in more detail",
		})
	}
	return issues
}

// checkTerminology scores vocabulary overlap between adjacent sections.
// Sharing a third of significant words with a neighbor scores full marks.
func checkTerminology(titles, contents []string) (float64, []StructureIssue) {
	if len(contents) < 2 {
		return 1, nil
	}

	var issues []StructureIssue
	var total float64
	for i := 0; i+1 < len(contents); i++ {
		a, b := significantWords(contents[i]), significantWords(contents[i+1])
		if len(a) == 0 || len(b) == 0 {
			continue
		}
		shared := 0
		for w := range a {
			if _, ok := b[w]; ok {
				shared++
			}
		}
		smaller := len(a)
		if len(b) < smaller {
			smaller = len(b)
		}
		overlap := float64(shared) / float64(smaller) * 3
		if overlap > 1 {
			overlap = 1
		}
		if overlap < 0.3 {
			issues = append(issues, StructureIssue{
				ID:             fmt.Sprintf("terminology_%d", i),
				Type:           issueInconsistency,
				Priority:       priorityLow,
				Location:       fmt.Sprintf("%s to %s", titles[i], titles[i+1]),
				Title:          "Vocabulary shift between sections",
				Description:    "Adjacent sections share almost no significant vocabulary",
				Recommendation: "Align terminology across the two sections",
			})
		}
		total += overlap
	}
	return total / float64(len(contents)-1), issues
}

// checkSubstance scores the fraction of sections with enough material to
// carry their own weight.
func checkSubstance(titles, contents []string) (float64, []StructureIssue) {
	var issues []StructureIssue
	substantive := 0
	for i, content := range contents {
		if len(strings.Fields(content)) >= 50 {
			substantive++
			continue
		}
		issues = append(issues, StructureIssue{
			ID:             fmt.Sprintf("substance_%d", i),
			Type:           issueInconsistency,
			Priority:       priorityMedium,
			Location:       titles[i],
			Title:          "Section lacks substance",
			Description:    "The section is too short to support its role",
			Recommendation: "Expand the section or merge it into a neighbor",
		})
	}
	return float64(substantive) / float64(len(contents)), issues
}

// checkConnectives scores the fraction of sections that use argumentative
// connectives at all.
func checkConnectives(titles, contents []string) (float64, []StructureIssue) {
	markers := []string{"because", "therefore", "thus", "however", "consequently", "hence"}
	var issues []StructureIssue
	connected := 0
	for i, content := range contents {
		if containsAny(strings.ToLower(content), markers) {
			connected++
			continue
		}
		issues = append(issues, StructureIssue{
			ID:             fmt.Sprintf("connectives_%d", i),
			Type:           issueLogicalGap,
			Priority:       priorityLow,
			Location:       titles[i],
			Title:          "No argumentative connectives",
			Description:    "The section states facts without connecting them into an argument",
			Recommendation: "Link the section's claims with explicit reasoning",
		})
	}
	return float64(connected) / float64(len(contents)), issues
}

// validationScore converts issues into a 0 to 1 score. High priority
// issues cost 0.3, medium 0.2, low 0.1.
func validationScore(issues []StructureIssue) float64 {
	penalty := 0.0
	for _, issue := range issues {
		switch issue.Priority {
		case priorityHigh:
			penalty += 0.3
		case priorityMedium:
			penalty += 0.2
		default:
			penalty += 0.1
		}
	}
	score := 1 - penalty
	if score < 0 {
		score = 0
	}
	return score
}

func recommendations(issues []StructureIssue) []string {
	if len(issues) == 0 {
		return []string{"No significant structural problems found"}
	}

	var recs []string
	appended := 0
	for _, issue := range issues {
		if issue.Priority != priorityHigh || appended >= 3 {
			continue
		}
		recs = append(recs, issue.Recommendation)
		appended++
	}
	appended = 0
	for _, issue := range issues {
		if issue.Priority != priorityMedium || appended >= 2 {
			continue
		}
		recs = append(recs, issue.Recommendation)
		appended++
	}
	if len(recs) == 0 {
		recs = append(recs, issues[0].Recommendation)
	}
	return recs
}

func issueMaps(issues []StructureIssue) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(issues))
	for _, issue := range issues {
		out = append(out, map[string]interface{}{
			"id":             issue.ID,
			"type":           issue.Type,
			"priority":       issue.Priority,
			"location":       issue.Location,
			"title":          issue.Title,
			"description":    issue.Description,
			"recommendation": issue.Recommendation,
		})
	}
	return out
}

func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func nonEmptyLines(s string, max int) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. "))
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == max {
			break
		}
	}
	return lines
}
