package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/alphalens/alphalens/internal/adapters/config"
	"github.com/alphalens/alphalens/pkg/logger"
)

// Reaper sweeps the job table on a schedule: stale running jobs are
// failed so pollers see a terminal state, and old terminal jobs are
// deleted per the retention window.
type Reaper struct {
	store        Store
	staleTimeout time.Duration
	retention    time.Duration
}

// NewReaper creates the sweep worker
func NewReaper(store Store, cfg config.AgentConfig) *Reaper {
	return &Reaper{
		store:        store,
		staleTimeout: cfg.StaleRunTimeout,
		retention:    cfg.JobRetention,
	}
}

// Name implements worker.Worker
func (r *Reaper) Name() string {
	return "job_reaper"
}

// Run performs one sweep
func (r *Reaper) Run(ctx context.Context) error {
	now := time.Now().UTC()

	swept, err := r.store.FailStale(ctx, now.Add(-r.staleTimeout))
	if err != nil {
		return err
	}
	if swept > 0 {
		logger.Warn("swept stale running jobs",
			zap.Int64("count", swept),
			zap.Duration("stale_timeout", r.staleTimeout))
	}

	deleted, err := r.store.DeleteOlderThan(ctx, now.Add(-r.retention))
	if err != nil {
		return err
	}
	if deleted > 0 {
		logger.Info("deleted expired jobs",
			zap.Int64("count", deleted),
			zap.Duration("retention", r.retention))
	}

	return nil
}
