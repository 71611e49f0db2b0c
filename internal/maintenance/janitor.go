package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/r8kyu/scribe-project/internal/storage"
)

const (
	// DefaultSchedule runs the prune daily at 03:00.
	DefaultSchedule = "0 3 * * *"
	// DefaultRetention keeps a week of audit rows.
	DefaultRetention = 7 * 24 * time.Hour
)

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err))
}

// Janitor prunes aged execution audit rows on a cron schedule. Prune
// cycles recover from panics via the cron chain and log their outcomes;
// a failed cycle waits for the next tick.
type Janitor struct {
	logger    *zap.Logger
	runs      storage.TaskRunStore
	cron      *cron.Cron
	schedule  string
	retention time.Duration
}

// NewJanitor creates a janitor over the audit store. Empty schedule and
// zero retention select the defaults.
func NewJanitor(runs storage.TaskRunStore, schedule string, retention time.Duration, logger *zap.Logger) *Janitor {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if retention <= 0 {
		retention = DefaultRetention
	}

	adapted := &cronLogger{logger: logger.Named("cron")}
	return &Janitor{
		logger:    logger.Named("janitor"),
		runs:      runs,
		cron:      cron.New(cron.WithChain(cron.Recover(adapted))),
		schedule:  schedule,
		retention: retention,
	}
}

// Start registers the prune job and starts the scheduler.
func (j *Janitor) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, j.prune); err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", j.schedule, err)
	}
	j.cron.Start()

	j.logger.Info("Maintenance schedule registered",
		zap.String("schedule", j.schedule),
		zap.Duration("retention", j.retention))
	return nil
}

// Stop halts the scheduler and waits for a running cycle to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

// Prune removes audit rows older than the retention window.
func (j *Janitor) Prune(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-j.retention)
	deleted, err := j.runs.DeleteTaskRunsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune task runs: %w", err)
	}
	return deleted, nil
}

func (j *Janitor) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	deleted, err := j.Prune(ctx)
	if err != nil {
		j.logger.Error("Maintenance cycle failed", zap.Error(err))
		return
	}
	j.logger.Info("Maintenance cycle finished",
		zap.Int64("deleted", deleted))
}
