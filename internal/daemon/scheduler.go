package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/radioops/transmitd/internal/history"
	"github.com/radioops/transmitd/internal/logfields"
)

// Maintenance runs the daemon's periodic housekeeping: history pruning
// and the last-run heartbeat. It wraps gocron so jobs survive clock
// drift and never overlap themselves.
type Maintenance struct {
	scheduler gocron.Scheduler
	store     *history.Store
	retention time.Duration
	logger    *slog.Logger
}

// NewMaintenance creates the maintenance scheduler.
func NewMaintenance(store *history.Store, retention time.Duration, logger *slog.Logger) (*Maintenance, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Maintenance{scheduler: s, store: store, retention: retention, logger: logger}, nil
}

// Start registers the jobs and begins the scheduler.
func (m *Maintenance) Start() error {
	_, err := m.scheduler.NewJob(
		gocron.DurationJob(time.Hour),
		gocron.NewTask(m.pruneHistory),
		gocron.WithName("history-prune"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule history prune: %w", err)
	}

	_, err = m.scheduler.NewJob(
		gocron.DurationJob(time.Minute),
		gocron.NewTask(m.recordHeartbeat),
		gocron.WithName("last-run-heartbeat"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule heartbeat: %w", err)
	}

	m.scheduler.Start()
	m.logger.Info("maintenance scheduler started")
	return nil
}

// Stop shuts down the scheduler, waiting for running jobs.
func (m *Maintenance) Stop() error {
	return m.scheduler.Shutdown()
}

func (m *Maintenance) pruneHistory() {
	if m.retention <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-m.retention)
	removed, err := m.store.Prune(ctx, cutoff)
	if err != nil {
		m.logger.Error("history prune failed", logfields.Error(err))
		return
	}
	if removed > 0 {
		m.logger.Info("pruned transmission history", slog.Int64("removed", removed))
	}
}

func (m *Maintenance) recordHeartbeat() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := m.store.SetLastRun(ctx, time.Now()); err != nil {
		m.logger.Error("heartbeat write failed", logfields.Error(err))
	}
}
