package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Intent tags a user message's primary goal.
const (
	IntentCreateSection  = "create_section"
	IntentEditContent    = "edit_content"
	IntentCheckStructure = "check_structure"
	IntentFindReferences = "find_references"
	IntentGeneral        = "general"
)

// Analysis is the structured reading of one user message. It is produced
// by the text-generation collaborator when possible and by keyword
// matching otherwise; either way it is always well-formed.
type Analysis struct {
	MainIntent      string   `json:"main_intent"`
	TargetSection   string   `json:"target_section,omitempty"`
	SpecificRequest string   `json:"specific_request"`
	Urgency         string   `json:"urgency"`
	RequiredAgents  []string `json:"required_agents"`
}

// classifyIntent reads the user's goal out of the message. The generator
// call and the JSON parse may both fail; neither failure reaches the
// caller, because the keyword fallback always produces an answer.
func (s *Supervisor) classifyIntent(ctx context.Context, message, documentID string) Analysis {
	prompt := s.intentPrompt(ctx, message, documentID)

	gen, err := s.gen.Generate(ctx, prompt, "intent")
	if err != nil {
		s.logger.Warn("Intent classification unavailable, using keyword fallback",
			zap.Error(err))
		return fallbackAnalysis(message)
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(extractJSON(gen.Text)), &analysis); err != nil {
		s.logger.Warn("Unparsable intent analysis, using keyword fallback",
			zap.Error(err))
		return fallbackAnalysis(message)
	}

	if analysis.MainIntent == "" {
		analysis.MainIntent = IntentGeneral
	}
	if analysis.SpecificRequest == "" {
		analysis.SpecificRequest = message
	}
	if analysis.Urgency == "" {
		analysis.Urgency = "medium"
	}
	return analysis
}

func (s *Supervisor) intentPrompt(ctx context.Context, message, documentID string) string {
	var sb strings.Builder
	sb.WriteString("Classify this writing-assistant request. Reply with JSON only, using exactly these fields:\n")
	sb.WriteString(`{"main_intent": "create_section|edit_content|check_structure|find_references|general", "target_section": "", "specific_request": "", "urgency": "high|medium|low", "required_agents": ["outline","summary","writer","logic_validator","reference"]}`)
	sb.WriteString("\n\nMessage:\n")
	sb.WriteString(message)
	if docContext := s.documentContext(ctx, documentID); docContext != "" {
		sb.WriteString("\n\nDocument context:\n")
		sb.WriteString(docContext)
	}
	return sb.String()
}

// documentContext summarizes the target document for the classifier.
// Failures degrade to no context; classification must never fail.
func (s *Supervisor) documentContext(ctx context.Context, documentID string) string {
	if documentID == "" || s.documents == nil {
		return ""
	}
	outline, err := s.documents.Outline(ctx, documentID)
	if err != nil {
		s.logger.Debug("Document context unavailable", zap.Error(err))
		return ""
	}
	if len(outline) == 0 {
		return ""
	}

	titles := make([]string, 0, 5)
	for _, section := range outline {
		titles = append(titles, section.Title)
		if len(titles) == 5 {
			break
		}
	}
	return fmt.Sprintf("%d sections: %s", len(outline), strings.Join(titles, ", "))
}

// fallbackAnalysis classifies by keyword matching. The first matching rule
// wins; no rule means a general intent with no capability hints.
func fallbackAnalysis(message string) Analysis {
	lower := strings.ToLower(message)

	intent := IntentGeneral
	var agents []string
	switch {
	case matchesAny(lower, "add", "create", "new", "section"):
		intent = IntentCreateSection
		agents = []string{"outline", "writer"}
	case matchesAny(lower, "edit", "revise", "improve", "rewrite", "fix"):
		intent = IntentEditContent
		agents = []string{"writer", "summary"}
	case matchesAny(lower, "structure", "flow", "logic", "consistency"):
		intent = IntentCheckStructure
		agents = []string{"logic_validator", "outline"}
	case matchesAny(lower, "reference", "citation", "cite", "literature", "source"):
		intent = IntentFindReferences
		agents = []string{"reference"}
	}

	return Analysis{
		MainIntent:      intent,
		SpecificRequest: message,
		Urgency:         "medium",
		RequiredAgents:  agents,
	}
}

func matchesAny(s string, keywords ...string) bool {
	for _, keyword := range keywords {
		if strings.Contains(s, keyword) {
			return true
		}
	}
	return false
}

// extractJSON cuts the first balanced-looking JSON object out of generator
// output, tolerating prose or code fences around it.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
