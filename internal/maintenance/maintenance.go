// Package maintenance runs periodic background housekeeping as Go tickers:
// the service is already persistent and long-running, so scheduled work is
// driven from Go rather than cron.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/albapepper/matchpulse/internal/store"
)

// Config controls maintenance task intervals. Zero duration disables a task.
type Config struct {
	CleanupInterval  time.Duration // trigger-history purge
	HistoryRetention time.Duration // how long audit rows are kept
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		CleanupInterval:  1 * time.Hour,
		HistoryRetention: 30 * 24 * time.Hour,
	}
}

// Start launches the maintenance tickers. Blocks until ctx is cancelled.
// Intended to be called with `go`.
func Start(ctx context.Context, st *store.Store, cfg Config, logger *slog.Logger) {
	if cfg.CleanupInterval <= 0 {
		logger.Info("maintenance disabled")
		<-ctx.Done()
		return
	}

	logger.Info("maintenance tickers started",
		"cleanup", cfg.CleanupInterval,
		"retention", cfg.HistoryRetention)

	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			purged, err := st.PurgeHistory(ctx, cfg.HistoryRetention)
			if err != nil {
				logger.Warn("cleanup: purge trigger history failed", "error", err)
			} else if purged > 0 {
				logger.Info("cleanup: purged trigger history", "count", purged)
			}
		case <-ctx.Done():
			logger.Info("maintenance tickers stopped")
			return
		}
	}
}
