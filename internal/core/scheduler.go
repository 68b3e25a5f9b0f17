package core

// scheduler.go runs periodic housekeeping:
//  1. Drop cached runs whose download window has passed
//  2. Purge history entries older than the retention window
//
// The scheduler is long-running and stops with its context. Individual
// failures are logged and do not stop the loop.

import (
	"context"
	"log/slog"
	"time"
)

// RetentionConfig holds configuration for the retention scheduler.
type RetentionConfig struct {
	MaxAge   time.Duration // History older than this is purged (default: 30 days)
	Interval time.Duration // How often to run (default: 1h)
}

// StartRetentionScheduler removes expired runs and old history entries.
// It runs immediately on start, then every Interval, until ctx is cancelled.
func (s *Service) StartRetentionScheduler(ctx context.Context, cfg RetentionConfig) {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 30 * 24 * time.Hour
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}

	slog.Info("retention scheduler started",
		"max_age", cfg.MaxAge.String(),
		"interval", cfg.Interval.String(),
	)

	s.runRetentionJob(ctx, cfg)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("retention scheduler stopped")
			return
		case <-ticker.C:
			s.runRetentionJob(ctx, cfg)
		}
	}
}

// runRetentionJob performs one cleanup cycle.
func (s *Service) runRetentionJob(ctx context.Context, cfg RetentionConfig) {
	start := time.Now()

	dropped := s.DropExpired()

	purged, err := s.store.Purge(ctx, s.now().Add(-cfg.MaxAge))
	if err != nil {
		slog.Error("history purge failed", "error", err)
	}

	slog.Info("retention job completed",
		"runs_dropped", dropped,
		"history_purged", purged,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
