package monitor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/r8kyu/scribe-project/internal/events"
	"github.com/r8kyu/scribe-project/internal/model"
	"github.com/r8kyu/scribe-project/internal/testutil"
)

func TestAlertRules(t *testing.T) {
	alerter := NewAlerter(nil, zap.NewNop())

	first := &model.AlertRule{
		Name:      "writer failures",
		Type:      model.AlertTypeTaskFailure,
		Threshold: 3,
	}
	alerter.AddRule(first)
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	second := &model.AlertRule{
		ID:        "rule-fixed",
		Name:      "cpu watch",
		Type:      model.AlertTypeResourceUsage,
		Threshold: 90,
	}
	alerter.AddRule(second)
	assert.Equal(t, "rule-fixed", second.ID)

	rules := alerter.Rules()
	require.Len(t, rules, 2)
	assert.Equal(t, "cpu watch", rules[0].Name)
	assert.Equal(t, "writer failures", rules[1].Name)

	err := alerter.DeleteRule("missing")
	assert.ErrorContains(t, err, "rule not found")

	require.NoError(t, alerter.DeleteRule("rule-fixed"))
	assert.Len(t, alerter.Rules(), 1)
}

func TestAlerterStreams(t *testing.T) {
	js, cleanup := testutil.SetupJetStream(t)
	defer cleanup()

	pub, err := events.NewPublisher(js, zap.NewNop())
	require.NoError(t, err)

	alerter := NewAlerter(js, zap.NewNop())
	require.NoError(t, alerter.Start(context.Background()))
	defer alerter.Stop()

	t.Run("Consecutive Failures Trip A Rule", func(t *testing.T) {
		alerter.AddRule(&model.AlertRule{
			Name:      "repeat failures",
			Type:      model.AlertTypeTaskFailure,
			Threshold: 2,
			Severity:  model.AlertSeverityCritical,
		})

		pub.ExecutionFinished("writer", &model.Result{
			TaskID:    "t1",
			AgentName: "writer",
			Status:    model.TaskStatusFailed,
			Error:     "backend down",
			Attempts:  1,
		})
		pub.ExecutionFinished("writer", &model.Result{
			TaskID:    "t2",
			AgentName: "writer",
			Status:    model.TaskStatusTimedOut,
			Error:     "timed out after 2s",
			Attempts:  1,
		})

		alerts, err := testutil.ConsumeMessages(js, AlertSubjectPrefix+"task_failure", 2*time.Second)
		require.NoError(t, err)
		require.Len(t, alerts, 1)

		var alert model.Alert
		require.NoError(t, json.Unmarshal(alerts[0], &alert))
		assert.Equal(t, model.AlertTypeTaskFailure, alert.Type)
		assert.Equal(t, model.AlertSeverityCritical, alert.Severity)
		assert.Equal(t, "writer failed 2 times in a row", alert.Message)
		assert.Equal(t, float64(2), alert.Data["streak"])
		assert.NotEmpty(t, alert.RuleID)
	})

	t.Run("Completions Reset The Streak", func(t *testing.T) {
		pub.ExecutionFinished("writer", &model.Result{
			TaskID: "t3", AgentName: "writer", Status: model.TaskStatusFailed, Attempts: 1,
		})
		pub.ExecutionFinished("writer", &model.Result{
			TaskID: "t4", AgentName: "writer", Status: model.TaskStatusCompleted, Attempts: 1,
		})
		pub.ExecutionFinished("writer", &model.Result{
			TaskID: "t5", AgentName: "writer", Status: model.TaskStatusFailed, Attempts: 1,
		})

		// Only the alert from the previous run replays; the broken streak
		// never reaches the threshold again.
		alerts, err := testutil.ConsumeMessages(js, AlertSubjectPrefix+"task_failure", 2*time.Second)
		require.NoError(t, err)
		assert.Len(t, alerts, 1)
	})

	t.Run("Resource Snapshots Trip Usage Rules", func(t *testing.T) {
		alerter.AddRule(&model.AlertRule{
			Name:      "cpu watch",
			Type:      model.AlertTypeResourceUsage,
			Threshold: 90,
			Severity:  model.AlertSeverityWarning,
		})

		data, err := json.Marshal(SystemMetrics{
			Timestamp:   time.Now(),
			CPUUsage:    95.5,
			MemoryUsage: 40,
		})
		require.NoError(t, err)
		_, err = js.Publish(MetricsSubject, data)
		require.NoError(t, err)

		alerts, err := testutil.ConsumeMessages(js, AlertSubjectPrefix+"resource_usage", 2*time.Second)
		require.NoError(t, err)
		require.Len(t, alerts, 1)

		var alert model.Alert
		require.NoError(t, json.Unmarshal(alerts[0], &alert))
		assert.Equal(t, model.AlertTypeResourceUsage, alert.Type)
		assert.Equal(t, model.AlertSeverityWarning, alert.Severity)
		assert.Equal(t, "CPU usage at 95.5%", alert.Message)
		assert.Equal(t, 95.5, alert.Data["cpu_usage"])
	})

	t.Run("Silenced Rules Stay Quiet", func(t *testing.T) {
		alerter.AddRule(&model.AlertRule{
			Name:      "muted",
			Type:      model.AlertTypeTaskFailure,
			Threshold: 1,
			Silenced:  true,
			Severity:  model.AlertSeverityInfo,
		})

		pub.ExecutionFinished("outline", &model.Result{
			TaskID: "t6", AgentName: "outline", Status: model.TaskStatusFailed, Attempts: 1,
		})

		alerts, err := testutil.ConsumeMessages(js, AlertSubjectPrefix+"task_failure", 2*time.Second)
		require.NoError(t, err)
		assert.Len(t, alerts, 1)
	})
}
