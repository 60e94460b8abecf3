package core

// scheduler.go runs audit maintenance on a cron schedule.
//
// The purge job deletes audit entries older than the retention period. It
// logs failures and keeps running; one failed run does not stop later ones.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// PurgeConfig holds configuration for the audit purge scheduler.
type PurgeConfig struct {
	Schedule      string // standard 5-field cron expression
	RetentionDays int
	RunOnStart    bool
}

// StartPurgeScheduler runs the audit purge on cfg.Schedule until ctx is
// cancelled. It blocks; callers run it in a goroutine. An invalid schedule
// is returned immediately.
func StartPurgeScheduler(ctx context.Context, store AuditStore, cfg PurgeConfig, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.Schedule, func() { runPurgeJob(ctx, store, cfg.RetentionDays, logger) }); err != nil {
		return fmt.Errorf("parse purge schedule %q: %w", cfg.Schedule, err)
	}

	logger.Info("audit purge scheduler started",
		"schedule", cfg.Schedule,
		"retention_days", cfg.RetentionDays,
	)

	if cfg.RunOnStart {
		runPurgeJob(ctx, store, cfg.RetentionDays, logger)
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()

	logger.Info("audit purge scheduler stopped")
	return nil
}

// runPurgeJob performs one purge cycle.
func runPurgeJob(ctx context.Context, store AuditStore, retentionDays int, logger *slog.Logger) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()

	purged, err := store.Purge(ctx, retentionDays)
	if err != nil {
		logger.Error("audit purge failed", "error", err)
		return
	}
	logger.Info("purged audit log entries",
		"entries_purged", purged,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
