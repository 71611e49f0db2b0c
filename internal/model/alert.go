package model

import "time"

// AlertSeverity represents the severity level of an alert
type AlertSeverity string

const (
	AlertSeverityInfo     AlertSeverity = "info"
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityCritical AlertSeverity = "critical"
)

// AlertType represents the condition an alert rule watches
type AlertType string

const (
	// AlertTypeTaskFailure fires after a run of consecutive terminal
	// failures (including timeouts) from one capability.
	AlertTypeTaskFailure AlertType = "task_failure"
	// AlertTypeResourceUsage fires when sampled CPU or memory usage
	// crosses the rule threshold.
	AlertTypeResourceUsage AlertType = "resource_usage"
)

// AlertRule defines one watched condition. Threshold means consecutive
// failures for task_failure rules and a usage percentage for
// resource_usage rules.
type AlertRule struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Type      AlertType     `json:"type"`
	Threshold float64       `json:"threshold"`
	Severity  AlertSeverity `json:"severity"`
	Silenced  bool          `json:"silenced"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Alert is one published alert event.
type Alert struct {
	ID        string                 `json:"id"`
	RuleID    string                 `json:"rule_id"`
	Type      AlertType              `json:"type"`
	Severity  AlertSeverity          `json:"severity"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}
