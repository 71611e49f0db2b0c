package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/r8kyu/scribe-project/internal/events"
	"github.com/r8kyu/scribe-project/internal/model"
)

// AlertSubjectPrefix is completed by the alert type.
const AlertSubjectPrefix = "scribe.alert."

// Alerter watches the event stream and publishes alerts when configured
// rules trip: consecutive failures from one capability, or sampled
// resource usage over a threshold. Rules live in memory; alerts go out on
// the broker for whoever cares to consume them.
type Alerter struct {
	logger *zap.Logger
	js     nats.JetStreamContext
	rules  sync.Map
	mu     sync.Mutex
	streak map[string]int
	subs   []*nats.Subscription
}

// NewAlerter creates an alerter with no rules.
func NewAlerter(js nats.JetStreamContext, logger *zap.Logger) *Alerter {
	return &Alerter{
		logger: logger.Named("alerter"),
		js:     js,
		streak: make(map[string]int),
	}
}

// Start subscribes to task events and metrics snapshots.
func (m *Alerter) Start(ctx context.Context) error {
	taskSub, err := m.js.Subscribe("scribe.task.*", m.handleTaskEvent)
	if err != nil {
		return fmt.Errorf("failed to subscribe to task events: %w", err)
	}
	m.subs = append(m.subs, taskSub)

	metricsSub, err := m.js.Subscribe(MetricsSubject, m.handleMetrics)
	if err != nil {
		return fmt.Errorf("failed to subscribe to metrics: %w", err)
	}
	m.subs = append(m.subs, metricsSub)

	m.logger.Info("Alerter started")
	return nil
}

// Stop drops the subscriptions.
func (m *Alerter) Stop() {
	for _, sub := range m.subs {
		sub.Unsubscribe()
	}
}

// AddRule registers a rule, assigning an id when absent.
func (m *Alerter) AddRule(rule *model.AlertRule) {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = rule.CreatedAt
	m.rules.Store(rule.ID, rule)
}

// DeleteRule removes a rule by id.
func (m *Alerter) DeleteRule(id string) error {
	if _, ok := m.rules.Load(id); !ok {
		return fmt.Errorf("rule not found: %s", id)
	}
	m.rules.Delete(id)
	return nil
}

// Rules returns the registered rules sorted by name.
func (m *Alerter) Rules() []*model.AlertRule {
	var rules []*model.AlertRule
	m.rules.Range(func(_, value interface{}) bool {
		rules = append(rules, value.(*model.AlertRule))
		return true
	})
	sort.Slice(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })
	return rules
}

// handleTaskEvent maintains per-capability failure streaks. Completions
// reset the streak; failures and timeouts extend it and may trip a rule.
func (m *Alerter) handleTaskEvent(msg *nats.Msg) {
	var event events.TaskEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		m.logger.Error("Failed to unmarshal task event", zap.Error(err))
		return
	}

	switch msg.Subject {
	case events.SubjectTaskCompleted:
		m.mu.Lock()
		m.streak[event.AgentName] = 0
		m.mu.Unlock()
		return
	case events.SubjectTaskFailed, events.SubjectTaskTimeout:
	default:
		return
	}

	m.mu.Lock()
	m.streak[event.AgentName]++
	streak := m.streak[event.AgentName]
	m.mu.Unlock()

	m.rules.Range(func(_, value interface{}) bool {
		rule := value.(*model.AlertRule)
		if rule.Type != model.AlertTypeTaskFailure || rule.Silenced {
			return true
		}
		if float64(streak) < rule.Threshold {
			return true
		}

		m.publishAlert(rule,
			fmt.Sprintf("%s failed %d times in a row", event.AgentName, streak),
			map[string]interface{}{
				"agent_name": event.AgentName,
				"task_id":    event.TaskID,
				"streak":     streak,
				"error":      event.Error,
			})

		m.mu.Lock()
		m.streak[event.AgentName] = 0
		m.mu.Unlock()
		return false
	})
}

// handleMetrics checks resource rules against each snapshot.
func (m *Alerter) handleMetrics(msg *nats.Msg) {
	var metrics SystemMetrics
	if err := json.Unmarshal(msg.Data, &metrics); err != nil {
		m.logger.Error("Failed to unmarshal metrics snapshot", zap.Error(err))
		return
	}

	m.rules.Range(func(_, value interface{}) bool {
		rule := value.(*model.AlertRule)
		if rule.Type != model.AlertTypeResourceUsage || rule.Silenced {
			return true
		}
		if metrics.CPUUsage > rule.Threshold {
			m.publishAlert(rule,
				fmt.Sprintf("CPU usage at %.1f%%", metrics.CPUUsage),
				map[string]interface{}{"cpu_usage": metrics.CPUUsage})
		}
		if metrics.MemoryUsage > rule.Threshold {
			m.publishAlert(rule,
				fmt.Sprintf("memory usage at %.1f%%", metrics.MemoryUsage),
				map[string]interface{}{"memory_usage": metrics.MemoryUsage})
		}
		return true
	})
}

func (m *Alerter) publishAlert(rule *model.AlertRule, message string, data map[string]interface{}) {
	alert := &model.Alert{
		ID:        uuid.New().String(),
		RuleID:    rule.ID,
		Type:      rule.Type,
		Severity:  rule.Severity,
		Message:   message,
		Data:      data,
		CreatedAt: time.Now(),
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		m.logger.Error("Failed to marshal alert", zap.Error(err))
		return
	}
	if _, err := m.js.Publish(AlertSubjectPrefix+string(alert.Type), payload); err != nil {
		m.logger.Error("Failed to publish alert",
			zap.String("rule_id", rule.ID),
			zap.Error(err))
		return
	}

	m.logger.Info("Alert published",
		zap.String("rule", rule.Name),
		zap.String("type", string(alert.Type)),
		zap.String("severity", string(alert.Severity)),
		zap.String("message", message))
}
