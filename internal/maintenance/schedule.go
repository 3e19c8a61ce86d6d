package maintenance

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Schedule starts background maintenance on the configured cron specs and
// returns the running scheduler. Jobs run until Stop; a job that fails logs
// and waits for its next slot, since every operation is idempotent.
func (r *Runner) Schedule(ctx context.Context) (*cron.Cron, error) {
	c := cron.New()

	if spec := r.cfg.SweepSpec; spec != "" {
		if _, err := c.AddFunc(spec, func() {
			if _, err := r.SweepExpired(ctx); err != nil {
				slog.Error("Scheduled sweep failed", "error", err)
			}
		}); err != nil {
			return nil, err
		}
	}
	if spec := r.cfg.VacuumSpec; spec != "" {
		if _, err := c.AddFunc(spec, func() {
			if err := r.Vacuum(ctx); err != nil {
				slog.Error("Scheduled vacuum failed", "error", err)
			}
			if _, err := r.CleanupOrphans(ctx); err != nil {
				slog.Error("Scheduled orphan cleanup failed", "error", err)
			}
		}); err != nil {
			return nil, err
		}
	}
	if spec := r.cfg.RetentionSpec; spec != "" {
		if _, err := c.AddFunc(spec, func() {
			if err := r.TrimRetention(ctx); err != nil {
				slog.Error("Scheduled retention trim failed", "error", err)
			}
		}); err != nil {
			return nil, err
		}
	}

	c.Start()
	slog.Info("Maintenance scheduler started",
		"sweep", r.cfg.SweepSpec, "vacuum", r.cfg.VacuumSpec, "retention", r.cfg.RetentionSpec)
	return c, nil
}
