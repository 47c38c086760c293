package core

// scheduler.go runs bulk refreshes in the background.
//
// EDDB republished its dumps nightly, so a deployment can refresh every kind
// on a fixed interval instead of waiting for an operator to call /all. The
// scheduler acts as SchedulerPrincipal, which has admin clearance. A tick
// that collides with a running bulk run is skipped, not queued.

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// SchedulerPrincipal is the identity scheduled runs execute as.
var SchedulerPrincipal = Principal{Name: "scheduler", Clearance: AdminClearance}

// ScheduleConfig holds configuration for the refresh scheduler.
type ScheduleConfig struct {
	Interval time.Duration // How often to run; zero disables the scheduler
	From     Kind          // First stage of each run (default: body)
}

// StartScheduler blocks, running a bulk refresh every Interval until ctx is
// cancelled. The first run happens one interval after start.
func (s *Service) StartScheduler(ctx context.Context, cfg ScheduleConfig, log *slog.Logger) {
	if cfg.Interval <= 0 {
		return
	}
	log = log.With(slog.String("item", "Scheduler"))
	log.Info("Refresh scheduler started", slog.Duration("interval", cfg.Interval))

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Refresh scheduler stopped")
			return
		case <-ticker.C:
			s.runScheduled(ctx, cfg, log)
		}
	}
}

func (s *Service) runScheduled(ctx context.Context, cfg ScheduleConfig, log *slog.Logger) {
	start := time.Now()

	run, err := s.RunAll(ctx, SchedulerPrincipal, cfg.From)
	switch {
	case errors.Is(err, ErrBulkRunning):
		log.Warn("Scheduled refresh skipped, bulk run in progress")
	case err != nil:
		attrs := []any{slog.Any("error", err)}
		if run != nil {
			attrs = append(attrs, slog.String("run_id", run.ID))
		}
		log.Error("Scheduled refresh failed", attrs...)
	default:
		log.Info("Scheduled refresh completed",
			slog.String("run_id", run.ID),
			slog.Duration("duration", time.Since(start)),
		)
	}
}
