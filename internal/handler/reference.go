package handler

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/r8kyu/scribe-project/internal/agent"
	"github.com/r8kyu/scribe-project/internal/model"
	"github.com/r8kyu/scribe-project/internal/search"
	"github.com/r8kyu/scribe-project/internal/textgen"
)

const (
	defaultSearchLimit = 10
	excerptLength      = 300
	multiHitBoost      = 1.1
)

// ReferenceHandler finds and formats citations. Searches run competitively
// across similarity, tag, and keyword modes: each mode may fail without
// sinking the operation, hits found by several modes get a score boost,
// and the merged ranking wins.
type ReferenceHandler struct {
	logger   *zap.Logger
	searcher search.Searcher
	gen      textgen.Generator
	ops      map[string]opFunc
}

var referenceTaskTypes = []string{
	"search_references",
	"generate_citation",
	"format_bibliography",
	"validate_references",
	"suggest_references",
	"extract_key_points",
}

// NewReferenceHandler creates the reference capability handler.
func NewReferenceHandler(searcher search.Searcher, gen textgen.Generator, logger *zap.Logger) *ReferenceHandler {
	h := &ReferenceHandler{
		logger:   logger,
		searcher: searcher,
		gen:      gen,
	}
	h.ops = map[string]opFunc{
		"search_references":   h.searchReferences,
		"generate_citation":   h.generateCitation,
		"format_bibliography": h.formatBibliography,
		"validate_references": h.validateReferences,
		"suggest_references":  h.suggestReferences,
		"extract_key_points":  h.extractKeyPoints,
	}
	return h
}

// Name implements agent.Handler.
func (h *ReferenceHandler) Name() string { return "reference" }

// Description implements agent.Handler.
func (h *ReferenceHandler) Description() string {
	return "Searches source material and formats citations"
}

// TaskTypes implements agent.Handler.
func (h *ReferenceHandler) TaskTypes() []string { return referenceTaskTypes }

// Execute implements agent.Handler.
func (h *ReferenceHandler) Execute(ctx context.Context, task *model.Task) (map[string]interface{}, error) {
	h.logger.Info("Executing reference operation",
		zap.String("type", task.Type))
	return dispatch(ctx, h.ops, task)
}

type searchParams struct {
	Query       string   `mapstructure:"query"`
	Keywords    []string `mapstructure:"keywords"`
	Tags        []string `mapstructure:"tags"`
	Limit       int      `mapstructure:"limit"`
	SearchTypes []string `mapstructure:"search_types"`
}

func (h *ReferenceHandler) searchReferences(ctx context.Context, task *model.Task) (map[string]interface{}, error) {
	var params searchParams
	if err := decodeParams(task, &params); err != nil {
		return nil, err
	}
	if params.Query == "" && len(params.Keywords) == 0 && len(params.Tags) == 0 {
		return nil, fmt.Errorf("%w: %s requires query, keywords, or tags", agent.ErrValidation, task.Type)
	}
	if params.Limit <= 0 {
		params.Limit = defaultSearchLimit
	}
	if len(params.SearchTypes) == 0 {
		params.SearchTypes = []string{"vector", "tag", "keyword"}
	}

	hits, counts := h.competitiveSearch(ctx, params)
	references := referencesFromHits(hits)

	citations := make([]string, 0, len(references))
	for _, ref := range references {
		citations = append(citations, ieeeCitation(ref))
	}

	return map[string]interface{}{
		"query":          params.Query,
		"search_results": hitMaps(hits),
		"references":     references,
		"citations":      citations,
		"count":          len(references),
		"search_summary": map[string]interface{}{
			"total_found":     counts.total,
			"vector_results":  counts.vector,
			"tag_results":     counts.tag,
			"keyword_results": counts.keyword,
		},
		"action":  "search_references",
		"success": true,
	}, nil
}

type searchCounts struct {
	total   int
	vector  int
	tag     int
	keyword int
}

// competitiveSearch fans the query out across the enabled search modes and
// merges the hits. A failing mode logs a warning and contributes nothing.
func (h *ReferenceHandler) competitiveSearch(ctx context.Context, params searchParams) ([]search.Result, searchCounts) {
	var counts searchCounts
	merged := make(map[string]*search.Result)

	merge := func(results []search.Result) {
		for _, result := range results {
			if result.ID == "" {
				continue
			}
			existing, ok := merged[result.ID]
			if !ok {
				r := result
				merged[result.ID] = &r
				continue
			}
			if result.Score > existing.Score {
				existing.Score = result.Score
			}
			existing.Score *= multiHitBoost
		}
	}

	enabled := make(map[string]bool, len(params.SearchTypes))
	for _, t := range params.SearchTypes {
		enabled[t] = true
	}

	if enabled["vector"] && params.Query != "" {
		results, err := h.searcher.Search(ctx, params.Query, nil, params.Limit)
		if err != nil {
			h.logger.Warn("Vector search failed", zap.Error(err))
		} else {
			counts.vector = len(results)
			merge(results)
		}
	}
	if enabled["tag"] && len(params.Tags) > 0 {
		filters := map[string]interface{}{"tags": params.Tags}
		results, err := h.searcher.Search(ctx, strings.Join(params.Tags, " "), filters, params.Limit)
		if err != nil {
			h.logger.Warn("Tag search failed", zap.Error(err))
		} else {
			counts.tag = len(results)
			merge(results)
		}
	}
	if enabled["keyword"] && len(params.Keywords) > 0 {
		results, err := h.searcher.Search(ctx, strings.Join(params.Keywords, " "), nil, params.Limit)
		if err != nil {
			h.logger.Warn("Keyword search failed", zap.Error(err))
		} else {
			counts.keyword = len(results)
			merge(results)
		}
	}

	hits := make([]search.Result, 0, len(merged))
	for _, m := range merged {
		hits = append(hits, *m)
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	counts.total = len(hits)

	if len(hits) > params.Limit {
		hits = hits[:params.Limit]
	}
	return hits, counts
}

type citationParams struct {
	ID      string `mapstructure:"id"`
	Title   string `mapstructure:"title"`
	Authors string `mapstructure:"authors"`
	Source  string `mapstructure:"source"`
	Year    int    `mapstructure:"year"`
}

func (h *ReferenceHandler) generateCitation(ctx context.Context, task *model.Task) (map[string]interface{}, error) {
	var params struct {
		ReferenceInfo citationParams `mapstructure:"reference_info"`
		CitationStyle string         `mapstructure:"citation_style"`
	}
	if err := decodeParams(task, &params); err != nil {
		return nil, err
	}
	if params.ReferenceInfo.Title == "" && params.ReferenceInfo.Source == "" {
		return nil, fmt.Errorf("%w: %s requires reference_info with a title or source", agent.ErrValidation, task.Type)
	}
	if params.CitationStyle == "" {
		params.CitationStyle = "ieee"
	}
	if !strings.EqualFold(params.CitationStyle, "ieee") {
		return nil, fmt.Errorf("%w: unsupported citation style %q", agent.ErrValidation, params.CitationStyle)
	}

	citation := ieeeCitation(referenceFromParams(params.ReferenceInfo))

	return map[string]interface{}{
		"citation":       citation,
		"citation_style": params.CitationStyle,
		"action":         "generate_citation",
		"success":        true,
	}, nil
}

func (h *ReferenceHandler) formatBibliography(ctx context.Context, task *model.Task) (map[string]interface{}, error) {
	var params struct {
		References []citationParams `mapstructure:"references"`
		Style      string           `mapstructure:"style"`
	}
	if err := decodeParams(task, &params); err != nil {
		return nil, err
	}
	if len(params.References) == 0 {
		return nil, fmt.Errorf("%w: %s requires a non-empty references list", agent.ErrValidation, task.Type)
	}
	if params.Style == "" {
		params.Style = "ieee"
	}

	entries := make([]string, 0, len(params.References))
	for i, ref := range params.References {
		entries = append(entries, fmt.Sprintf("[%d] %s", i+1, ieeeCitation(referenceFromParams(ref))))
	}

	return map[string]interface{}{
		"bibliography":      entries,
		"bibliography_text": strings.Join(entries, "\n"),
		"style":             params.Style,
		"reference_count":   len(entries),
		"action":            "format_bibliography",
		"success":           true,
	}, nil
}

func (h *ReferenceHandler) validateReferences(ctx context.Context, task *model.Task) (map[string]interface{}, error) {
	var params struct {
		References []citationParams `mapstructure:"references"`
	}
	if err := decodeParams(task, &params); err != nil {
		return nil, err
	}
	if len(params.References) == 0 {
		return nil, fmt.Errorf("%w: %s requires a non-empty references list", agent.ErrValidation, task.Type)
	}

	results := make([]map[string]interface{}, 0, len(params.References))
	allValid := true
	for _, ref := range params.References {
		var problems []string
		if strings.TrimSpace(ref.Title) == "" {
			problems = append(problems, "missing title")
		}
		if strings.TrimSpace(ref.Source) == "" {
			problems = append(problems, "missing source")
		}
		if ref.Year != 0 && (ref.Year < 1500 || ref.Year > time.Now().Year()+1) {
			problems = append(problems, fmt.Sprintf("implausible year %d", ref.Year))
		}
		valid := len(problems) == 0
		if !valid {
			allValid = false
		}
		results = append(results, map[string]interface{}{
			"title":    ref.Title,
			"is_valid": valid,
			"issues":   problems,
		})
	}

	return map[string]interface{}{
		"validation_results": results,
		"overall_valid":      allValid,
		"action":             "validate_references",
		"success":            true,
	}, nil
}

func (h *ReferenceHandler) suggestReferences(ctx context.Context, task *model.Task) (map[string]interface{}, error) {
	var params struct {
		Content     string `mapstructure:"content"`
		SectionType string `mapstructure:"section_type"`
	}
	if err := decodeParams(task, &params); err != nil {
		return nil, err
	}
	if err := requireString(params.Content, "content", task.Type); err != nil {
		return nil, err
	}

	keywords := extractKeywords(params.Content, 10)
	query := truncate(params.Content, 200)

	hits, _ := h.competitiveSearch(ctx, searchParams{
		Query:       query,
		Keywords:    keywords,
		Limit:       5,
		SearchTypes: []string{"vector", "keyword"},
	})

	suggestions := make([]map[string]interface{}, 0, len(hits))
	for _, hit := range hits {
		entry := hitMap(hit)
		entry["suggestion_reason"] = suggestionReason(hit, keywords, params.SectionType)
		entry["confidence_score"] = hit.Score * 0.8
		suggestions = append(suggestions, entry)
	}

	return map[string]interface{}{
		"suggested_references": suggestions,
		"references":           referencesFromHits(hits),
		"extracted_keywords":   keywords,
		"count":                len(suggestions),
		"action":               "suggest_references",
		"success":              true,
	}, nil
}

func (h *ReferenceHandler) extractKeyPoints(ctx context.Context, task *model.Task) (map[string]interface{}, error) {
	var params struct {
		ReferenceContent string `mapstructure:"reference_content"`
		Context          string `mapstructure:"context"`
	}
	if err := decodeParams(task, &params); err != nil {
		return nil, err
	}
	if err := requireString(params.ReferenceContent, "reference_content", task.Type); err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("Extract the points from this source that matter for citing it: main findings, methods used, notable figures, and quotable passages. One point per line.\n")
	if params.Context != "" {
		fmt.Fprintf(&sb, "The citing document is about: %s\n", params.Context)
	}
	sb.WriteString("\nSource:\n")
	sb.WriteString(truncate(params.ReferenceContent, 1000))

	gen, err := h.gen.Generate(ctx, sb.String(), "extract")
	if err != nil {
		return nil, fmt.Errorf("key point extraction failed: %w", err)
	}

	points := nonEmptyLines(gen.Text, 10)
	return map[string]interface{}{
		"key_points": points,
		"count":      len(points),
		"action":     "extract_key_points",
		"success":    true,
	}, nil
}

// referencesFromHits builds citation records from raw search hits, pulling
// bibliographic fields out of hit metadata where present.
func referencesFromHits(hits []search.Result) []model.Reference {
	refs := make([]model.Reference, 0, len(hits))
	for _, hit := range hits {
		ref := model.Reference{
			ID:      hit.ID,
			Score:   hit.Score,
			Excerpt: truncate(hit.Content, excerptLength),
		}
		if title, ok := hit.Metadata["title"].(string); ok && title != "" {
			ref.Title = title
		}
		if authors, ok := hit.Metadata["authors"].(string); ok {
			ref.Authors = authors
		}
		if source, ok := hit.Metadata["filename"].(string); ok {
			ref.Source = source
			if ref.Title == "" {
				ref.Title = titleFromFilename(source)
			}
		}
		if year, ok := hit.Metadata["year"].(int); ok {
			ref.Year = year
		} else if year, ok := hit.Metadata["year"].(float64); ok {
			ref.Year = int(year)
		}
		if ref.Title == "" {
			ref.Title = "Untitled source"
		}
		refs = append(refs, ref)
	}
	return refs
}

func referenceFromParams(p citationParams) model.Reference {
	ref := model.Reference{
		ID:      p.ID,
		Title:   p.Title,
		Authors: p.Authors,
		Source:  p.Source,
		Year:    p.Year,
	}
	if ref.Title == "" && ref.Source != "" {
		ref.Title = titleFromFilename(ref.Source)
	}
	return ref
}

// ieeeCitation renders one reference in IEEE style. Missing fields are
// simply omitted; the title is always present.
func ieeeCitation(ref model.Reference) string {
	var parts []string
	if ref.Authors != "" {
		parts = append(parts, ref.Authors)
	}
	parts = append(parts, fmt.Sprintf("%q", ref.Title))
	if ref.Source != "" && ref.Source != ref.Title {
		parts = append(parts, ref.Source)
	}
	if ref.Year != 0 {
		parts = append(parts, fmt.Sprintf("%d", ref.Year))
	}
	return strings.Join(parts, ", ") + "."
}

// titleFromFilename derives a readable title: extension stripped, numeric
// prefixes dropped, separators spaced.
func titleFromFilename(filename string) string {
	title := strings.TrimSuffix(path.Base(filename), path.Ext(filename))
	title = strings.Map(func(r rune) rune {
		if r == '_' || r == '-' {
			return ' '
		}
		return r
	}, title)
	title = strings.TrimLeft(title, "0123456789. ")
	return strings.TrimSpace(title)
}

var keywordStopWords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "with": true,
	"this": true, "from": true, "are": true, "was": true, "were": true,
	"have": true, "has": true, "been": true, "their": true, "its": true,
	"into": true, "over": true, "also": true, "which": true, "these": true,
}

// extractKeywords returns the most frequent significant words of a text,
// ordered by frequency then alphabetically.
func extractKeywords(content string, max int) []string {
	freq := make(map[string]int)
	for _, word := range strings.Fields(strings.ToLower(content)) {
		word = strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len(word) < 3 || keywordStopWords[word] {
			continue
		}
		freq[word]++
	}

	keywords := make([]string, 0, len(freq))
	for word := range freq {
		keywords = append(keywords, word)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if freq[keywords[i]] != freq[keywords[j]] {
			return freq[keywords[i]] > freq[keywords[j]]
		}
		return keywords[i] < keywords[j]
	})

	if len(keywords) > max {
		keywords = keywords[:max]
	}
	return keywords
}

func suggestionReason(hit search.Result, keywords []string, sectionType string) string {
	var reasons []string
	switch {
	case hit.Score > 0.8:
		reasons = append(reasons, "high relevance")
	case hit.Score > 0.6:
		reasons = append(reasons, "moderate relevance")
	}

	var matched []string
	lower := strings.ToLower(hit.Content)
	for _, keyword := range keywords {
		if strings.Contains(lower, keyword) {
			matched = append(matched, keyword)
		}
		if len(matched) == 3 {
			break
		}
	}
	if len(matched) > 0 {
		reasons = append(reasons, "matches "+strings.Join(matched, ", "))
	}

	if sectionType == "method" && containsAny(lower, []string{"method", "approach", "technique"}) {
		reasons = append(reasons, "relevant to methodology")
	}

	if len(reasons) == 0 {
		return "similar content"
	}
	return strings.Join(reasons, "; ")
}

func hitMap(hit search.Result) map[string]interface{} {
	return map[string]interface{}{
		"id":              hit.ID,
		"content":         truncate(hit.Content, excerptLength),
		"relevance_score": hit.Score,
		"metadata":        hit.Metadata,
	}
}

func hitMaps(hits []search.Result) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(hits))
	for _, hit := range hits {
		out = append(out, hitMap(hit))
	}
	return out
}
