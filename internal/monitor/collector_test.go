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

func TestCollectorCounters(t *testing.T) {
	t.Run("Retries Keep The Running Count Balanced", func(t *testing.T) {
		c := NewCollector(nil, time.Minute, zap.NewNop())
		task := model.NewTask("generate_draft", nil)
		c.ExecutionStarted("writer", task)
		c.ExecutionStarted("writer", task)

		snap := c.Snapshot()
		require.Len(t, snap, 1)
		assert.Equal(t, int64(2), snap[0].Running)

		c.ExecutionFinished("writer", &model.Result{
			Status:   model.TaskStatusCompleted,
			Attempts: 2,
			Elapsed:  300 * time.Millisecond,
		})

		snap = c.Snapshot()
		require.Len(t, snap, 1)
		assert.Equal(t, int64(0), snap[0].Running)
		assert.Equal(t, int64(1), snap[0].Completed)
		assert.Equal(t, int64(1), snap[0].Retries)
		assert.Equal(t, int64(300), snap[0].AvgElapsedMS)
	})

	t.Run("Statuses Land In Their Buckets", func(t *testing.T) {
		c := NewCollector(nil, time.Minute, zap.NewNop())
		for i := 0; i < 3; i++ {
			c.ExecutionStarted("summary", model.NewTask("generate_summary", nil))
		}
		c.ExecutionFinished("summary", &model.Result{Status: model.TaskStatusCompleted, Attempts: 1})
		c.ExecutionFinished("summary", &model.Result{Status: model.TaskStatusFailed, Attempts: 1})
		c.ExecutionFinished("summary", &model.Result{Status: model.TaskStatusTimedOut, Attempts: 1})

		snap := c.Snapshot()
		require.Len(t, snap, 1)
		stats := snap[0]
		assert.Equal(t, int64(0), stats.Running)
		assert.Equal(t, int64(1), stats.Completed)
		assert.Equal(t, int64(1), stats.Failed)
		assert.Equal(t, int64(1), stats.TimedOut)
		assert.Equal(t, int64(0), stats.Retries)
	})

	t.Run("Average Elapsed Spans Finished Runs", func(t *testing.T) {
		c := NewCollector(nil, time.Minute, zap.NewNop())
		c.ExecutionStarted("reference", model.NewTask("search_references", nil))
		c.ExecutionStarted("reference", model.NewTask("search_references", nil))
		c.ExecutionFinished("reference", &model.Result{
			Status:   model.TaskStatusCompleted,
			Attempts: 1,
			Elapsed:  100 * time.Millisecond,
		})
		c.ExecutionFinished("reference", &model.Result{
			Status:   model.TaskStatusFailed,
			Attempts: 1,
			Elapsed:  300 * time.Millisecond,
		})

		snap := c.Snapshot()
		require.Len(t, snap, 1)
		assert.Equal(t, int64(200), snap[0].AvgElapsedMS)
	})

	t.Run("Snapshot Sorts By Capability", func(t *testing.T) {
		c := NewCollector(nil, time.Minute, zap.NewNop())
		c.ExecutionStarted("writer", model.NewTask("generate_content", nil))
		c.ExecutionStarted("outline", model.NewTask("create_section", nil))
		c.ExecutionStarted("reference", model.NewTask("search_references", nil))

		snap := c.Snapshot()
		require.Len(t, snap, 3)
		assert.Equal(t, "outline", snap[0].AgentName)
		assert.Equal(t, "reference", snap[1].AgentName)
		assert.Equal(t, "writer", snap[2].AgentName)

		// Nothing finished yet, so no average.
		assert.Equal(t, int64(0), snap[0].AvgElapsedMS)
	})
}

func TestCollectorPublishesSnapshots(t *testing.T) {
	js, cleanup := testutil.SetupJetStream(t)
	defer cleanup()

	// The publisher owns stream creation; metrics ride the same stream.
	_, err := events.NewPublisher(js, zap.NewNop())
	require.NoError(t, err)

	collector := NewCollector(js, 10*time.Millisecond, zap.NewNop())
	collector.ExecutionStarted("writer", model.NewTask("generate_content", nil))
	collector.ExecutionFinished("writer", &model.Result{
		Status:   model.TaskStatusCompleted,
		Attempts: 1,
		Elapsed:  120 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	collector.Start(ctx)
	defer collector.Stop()

	msgs, err := testutil.ConsumeMessages(js, MetricsSubject, 3*time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, msgs)

	var metrics SystemMetrics
	require.NoError(t, json.Unmarshal(msgs[0], &metrics))
	assert.False(t, metrics.Timestamp.IsZero())
	assert.GreaterOrEqual(t, metrics.CPUUsage, 0.0)
	assert.Greater(t, metrics.MemoryUsage, 0.0)
	require.Len(t, metrics.Capabilities, 1)
	assert.Equal(t, "writer", metrics.Capabilities[0].AgentName)
	assert.Equal(t, int64(1), metrics.Capabilities[0].Completed)
	assert.Equal(t, int64(120), metrics.Capabilities[0].AvgElapsedMS)
}
