// Package sweep runs the scheduled retention job that prunes old and
// orphaned click rows.
package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Store is the subset of the repository the sweeper needs.
type Store interface {
	DeleteClicksOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteOrphanedClicks(ctx context.Context) (int64, error)
}

// Spec is when the sweep runs. Daily, during the quiet hours.
const Spec = "30 3 * * *"

const runTimeout = 5 * time.Minute

// Sweeper deletes click rows past the retention window and clicks whose
// link is gone or deactivated.
type Sweeper struct {
	store     Store
	retention time.Duration
	logger    *slog.Logger
	cron      *cron.Cron
}

// New creates a Sweeper. A retention of zero disables age-based pruning;
// orphan cleanup still runs.
func New(store Store, retention time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:     store,
		retention: retention,
		logger:    logger,
		cron:      cron.New(),
	}
}

// Start schedules the daily sweep and starts the cron runner.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(Spec, s.Run); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("sweep scheduled", "spec", Spec, "retention", s.retention)
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish, bounded
// by ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes one sweep pass. Exported so an operator endpoint or test can
// trigger it outside the schedule.
func (s *Sweeper) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	start := time.Now()

	var pruned int64
	if s.retention > 0 {
		cutoff := time.Now().UTC().Add(-s.retention)
		n, err := s.store.DeleteClicksOlderThan(ctx, cutoff)
		if err != nil {
			s.logger.Error("sweep_prune_error", "error", err)
		} else {
			pruned = n
		}
	}

	orphans, err := s.store.DeleteOrphanedClicks(ctx)
	if err != nil {
		s.logger.Error("sweep_orphan_error", "error", err)
	}

	s.logger.Info("sweep_completed",
		"pruned", pruned,
		"orphans", orphans,
		"duration_ms", float64(time.Since(start).Microseconds())/1000,
	)
}
