package supervisor

import (
	"fmt"
	"strings"

	"github.com/r8kyu/scribe-project/internal/model"
)

// buildReply assembles the assistant message for one turn from the final
// todo states: a task-by-task summary, the references the tasks surfaced,
// and up to three follow-up suggestions. Synopses are derived from payload
// shapes alone; no capability is re-invoked here.
func buildReply(todos []*model.TodoTask) (string, []model.Reference, []string) {
	var completed, failed []*model.TodoTask
	for _, todo := range todos {
		switch todo.Status {
		case model.TodoStatusCompleted:
			completed = append(completed, todo)
		case model.TodoStatusFailed:
			failed = append(failed, todo)
		}
	}

	var sb strings.Builder
	if len(completed) > 0 {
		fmt.Fprintf(&sb, "Completed %d task%s.\n", len(completed), plural(len(completed)))
		for _, todo := range completed {
			sb.WriteString("- " + capabilityLabel(todo.AgentName) + ": " + todo.Description)
			if len(todo.Result) > 0 {
				sb.WriteString(" (" + resultSynopsis(todo.Result) + ")")
			}
			sb.WriteString("\n")
		}
	}
	if len(failed) > 0 {
		fmt.Fprintf(&sb, "%d task%s failed.\n", len(failed), plural(len(failed)))
	}

	message := strings.TrimRight(sb.String(), "\n")
	if message == "" {
		message = "Thanks for your message. What would you like to work on?"
	}
	return message, collectReferences(completed), nextSuggestions(completed, failed)
}

// resultSynopsis renders a one-line account of a task payload. Shapes are
// checked most-specific first; an unrecognized payload still gets a line.
func resultSynopsis(result map[string]interface{}) string {
	if section, ok := result["section"].(map[string]interface{}); ok && result["action"] == "create_section" {
		title, _ := section["title"].(string)
		return fmt.Sprintf("created section %q", title)
	}
	if _, ok := result["summary"]; ok {
		if n, ok := intValue(result["character_count"]); ok {
			return fmt.Sprintf("generated summary (%d characters)", n)
		}
	}
	if _, ok := result["content"]; ok {
		if n, ok := intValue(result["word_count"]); ok {
			return fmt.Sprintf("generated content (%d words)", n)
		}
	}
	if issues, ok := result["issues"]; ok {
		if score, ok := floatValue(result["validation_score"]); ok {
			return fmt.Sprintf("structure check finished (score %.1f, %d issues)", score, countOf(issues))
		}
	}
	if hits, ok := result["search_results"]; ok {
		return fmt.Sprintf("found %d related references", countOf(hits))
	}
	return "task finished"
}

func collectReferences(completed []*model.TodoTask) []model.Reference {
	var refs []model.Reference
	for _, todo := range completed {
		if found, ok := todo.Result["references"].([]model.Reference); ok {
			refs = append(refs, found...)
		}
	}
	return refs
}

// nextSuggestions proposes follow-up actions from a fixed rule table:
// a retry hint when anything failed, one hint per capability that
// completed, and generic starters when nothing else applies.
func nextSuggestions(completed, failed []*model.TodoTask) []string {
	var out []string
	if len(failed) > 0 {
		out = append(out, "Retry the tasks that ran into errors")
	}

	seen := make(map[string]bool)
	for _, todo := range completed {
		var s string
		switch todo.AgentName {
		case "outline":
			s = "Add content to the section you just created"
		case "writer":
			s = "Run a structure check on the generated content"
		case "reference":
			s = "Cite the references you found in the document"
		}
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}

	if len(out) == 0 {
		out = []string{
			"Add a new section",
			"Improve existing content",
			"Search related references",
			"Check the document structure",
		}
	}
	if len(out) > 3 {
		out = out[:3]
	}
	return out
}

func capabilityLabel(agentName string) string {
	switch agentName {
	case "outline":
		return "Outline"
	case "summary":
		return "Summary"
	case "writer":
		return "Writer"
	case "logic_validator":
		return "Logic validation"
	case "reference":
		return "Reference search"
	}
	return agentName
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func intValue(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func floatValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func countOf(v interface{}) int {
	switch items := v.(type) {
	case []interface{}:
		return len(items)
	case []string:
		return len(items)
	case []map[string]interface{}:
		return len(items)
	case []model.Reference:
		return len(items)
	}
	return 0
}
