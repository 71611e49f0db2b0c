package monitor

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/r8kyu/scribe-project/internal/model"
)

// MetricsSubject receives one SystemMetrics snapshot per interval.
const MetricsSubject = "scribe.metrics.system"

// CapabilityStats aggregates execution counters for one capability.
type CapabilityStats struct {
	AgentName    string `json:"agent_name"`
	Running      int64  `json:"running"`
	Completed    int64  `json:"completed"`
	Failed       int64  `json:"failed"`
	TimedOut     int64  `json:"timed_out"`
	Retries      int64  `json:"retries"`
	AvgElapsedMS int64  `json:"avg_elapsed_ms"`
}

// SystemMetrics is one published snapshot: host load plus per-capability
// execution counters.
type SystemMetrics struct {
	Timestamp    time.Time         `json:"timestamp"`
	CPUUsage     float64           `json:"cpu_usage"`
	MemoryUsage  float64           `json:"memory_usage"`
	Capabilities []CapabilityStats `json:"capabilities,omitempty"`
}

type capabilityCounters struct {
	running   int64
	completed int64
	failed    int64
	timedOut  int64
	retries   int64
	elapsedMS int64
}

// Collector samples system load and aggregates per-capability execution
// counters, publishing a snapshot each interval. Counters are fed through
// the agent observer contract; both callbacks only touch in-memory state,
// so they never block an execution.
type Collector struct {
	logger   *zap.Logger
	js       nats.JetStreamContext
	interval time.Duration
	mu       sync.RWMutex
	counters map[string]*capabilityCounters
	stop     chan struct{}
}

// NewCollector creates a metrics collector. A nil JetStream context keeps
// the counters without publishing snapshots.
func NewCollector(js nats.JetStreamContext, interval time.Duration, logger *zap.Logger) *Collector {
	return &Collector{
		logger:   logger.Named("metrics-collector"),
		js:       js,
		interval: interval,
		counters: make(map[string]*capabilityCounters),
		stop:     make(chan struct{}),
	}
}

// Start begins the collection loop.
func (c *Collector) Start(ctx context.Context) {
	c.logger.Info("Starting metrics collector",
		zap.Duration("interval", c.interval))
	go c.collectLoop(ctx)
}

// Stop ends the collection loop.
func (c *Collector) Stop() {
	c.logger.Info("Stopping metrics collector")
	close(c.stop)
}

// ExecutionStarted implements agent.Observer. It fires once per attempt,
// so retries raise the running count again.
func (c *Collector) ExecutionStarted(agentName string, task *model.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.countersFor(agentName).running++
}

// ExecutionFinished implements agent.Observer. One finish settles every
// announced attempt: the result's attempt count equals the number of start
// notifications this execution produced.
func (c *Collector) ExecutionFinished(agentName string, result *model.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	counters := c.countersFor(agentName)
	counters.running -= int64(result.Attempts)
	if result.Attempts > 1 {
		counters.retries += int64(result.Attempts - 1)
	}
	counters.elapsedMS += result.Elapsed.Milliseconds()

	switch result.Status {
	case model.TaskStatusCompleted:
		counters.completed++
	case model.TaskStatusTimedOut:
		counters.timedOut++
	default:
		counters.failed++
	}
}

// Snapshot returns the current per-capability counters, sorted by name.
func (c *Collector) Snapshot() []CapabilityStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := make([]CapabilityStats, 0, len(c.counters))
	for name, counters := range c.counters {
		entry := CapabilityStats{
			AgentName: name,
			Running:   counters.running,
			Completed: counters.completed,
			Failed:    counters.failed,
			TimedOut:  counters.timedOut,
			Retries:   counters.retries,
		}
		if finished := counters.completed + counters.failed + counters.timedOut; finished > 0 {
			entry.AvgElapsedMS = counters.elapsedMS / finished
		}
		stats = append(stats, entry)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].AgentName < stats[j].AgentName })
	return stats
}

func (c *Collector) countersFor(agentName string) *capabilityCounters {
	counters, ok := c.counters[agentName]
	if !ok {
		counters = &capabilityCounters{}
		c.counters[agentName] = counters
	}
	return counters
}

func (c *Collector) collectLoop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

func (c *Collector) collect() {
	cpuPercent, err := cpu.Percent(time.Second, false)
	if err != nil {
		c.logger.Error("Failed to get CPU usage", zap.Error(err))
		return
	}
	memInfo, err := mem.VirtualMemory()
	if err != nil {
		c.logger.Error("Failed to get memory usage", zap.Error(err))
		return
	}

	metrics := SystemMetrics{
		Timestamp:    time.Now(),
		CPUUsage:     cpuPercent[0],
		MemoryUsage:  memInfo.UsedPercent,
		Capabilities: c.Snapshot(),
	}

	c.logger.Debug("Metrics collected",
		zap.Float64("cpu_usage", metrics.CPUUsage),
		zap.Float64("memory_usage", metrics.MemoryUsage),
		zap.Int("capability_count", len(metrics.Capabilities)))

	if c.js == nil {
		return
	}
	data, err := json.Marshal(metrics)
	if err != nil {
		c.logger.Error("Failed to marshal metrics", zap.Error(err))
		return
	}
	if _, err := c.js.Publish(MetricsSubject, data); err != nil {
		c.logger.Error("Failed to publish metrics", zap.Error(err))
	}
}
