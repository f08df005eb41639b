package feed

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/albapepper/matchpulse/internal/backoff"
)

// Ingestor refreshes the match cache from the upstream feed once per tick.
// Upstream failures are isolated: the cache is never cleared, the error
// counter is bumped, and the last known-good snapshots are served stale.
type Ingestor struct {
	client  *Client
	cache   *Cache
	policy  backoff.Policy
	timeout time.Duration
	logger  *slog.Logger

	errorCount atomic.Int64
}

// NewIngestor wires the feed client to the cache. The retry policy is
// clamped to a single in-tick retry so a flapping upstream cannot stall
// the tick loop.
func NewIngestor(client *Client, cache *Cache, policy backoff.Policy, timeout time.Duration, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	policy.MaxAttempts = 2
	return &Ingestor{
		client:  client,
		cache:   cache,
		policy:  policy,
		timeout: timeout,
		logger:  logger,
	}
}

// Refresh fetches live snapshots and updates the cache. On upstream
// failure it returns the cached snapshots marked stale together with the
// *UpstreamError — callers keep evaluating against stale data and decide
// themselves how loudly to complain.
func (i *Ingestor) Refresh(ctx context.Context) ([]MatchSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	var fetched []MatchSnapshot
	err := i.policy.Do(ctx, func(attempt int) error {
		snaps, err := i.client.LiveMatches(ctx)
		if err != nil {
			i.logger.Warn("feed refresh attempt failed", "attempt", attempt, "error", err)
			return err
		}
		fetched = snaps
		return nil
	})
	if err != nil {
		i.errorCount.Add(1)
		return i.cache.Snapshots(true), err
	}

	i.cache.Update(fetched)
	return i.cache.Snapshots(false), nil
}

// ErrorCount returns the number of failed refreshes since startup.
func (i *Ingestor) ErrorCount() int64 {
	return i.errorCount.Load()
}

// Cache exposes the underlying match cache for read access.
func (i *Ingestor) Cache() *Cache {
	return i.cache
}
