// Package scheduler drives the live alerting pipeline: fixed-interval
// ticks that refresh match state once, derive metrics once per match,
// fan (alert, match) pairs out over a bounded worker pool, and hand
// positive evaluations to the trigger state manager and the dispatcher.
//
// Ticks never overlap: a tick still running when the next is due simply
// defers it. Failures are isolated per pair — one broken alert or match
// never aborts the rest of the tick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/albapepper/matchpulse/internal/dispatch"
	"github.com/albapepper/matchpulse/internal/feed"
	"github.com/albapepper/matchpulse/internal/metrics"
	"github.com/albapepper/matchpulse/internal/rules"
	"github.com/albapepper/matchpulse/internal/store"
	"github.com/albapepper/matchpulse/internal/trigger"
)

// --------------------------------------------------------------------------
// Collaborator interfaces
// --------------------------------------------------------------------------

// Ingestor refreshes the match cache once per tick.
type Ingestor interface {
	Refresh(ctx context.Context) ([]feed.MatchSnapshot, error)
	ErrorCount() int64
	Cache() *feed.Cache
}

// AlertStore supplies alert definitions and receives audit records.
// *store.Store is the production implementation.
type AlertStore interface {
	ActiveAlerts(ctx context.Context) ([]*rules.Alert, error)
	MarkAlertInvalid(ctx context.Context, alertID, reason string) error
	RecordTrigger(ctx context.Context, rec store.TriggerRecord) error
	LatestTriggerStates(ctx context.Context) ([]trigger.PairState, error)
}

// Dispatcher sends notifications. *dispatch.Dispatcher is the production
// implementation.
type Dispatcher interface {
	Dispatch(ctx context.Context, channel, recipient, message string) dispatch.Result
	Counters() (sent, failed int64)
}

// --------------------------------------------------------------------------
// Scheduler
// --------------------------------------------------------------------------

// Options bundle the scheduler's tuning knobs.
type Options struct {
	TickInterval time.Duration
	TickDeadline time.Duration
	Workers      int
}

// Scheduler owns the tick lifecycle and mediates all cross-component calls.
type Scheduler struct {
	ingestor   Ingestor
	computer   *metrics.Computer
	triggers   *trigger.Manager
	dispatcher Dispatcher
	alerts     AlertStore
	opts       Options
	logger     *slog.Logger

	// Alert definitions from the last successful load; served when the
	// store is briefly unreachable so ticks keep evaluating.
	lastAlerts []*rules.Alert

	// Alerts flagged invalid during this run; skipped without re-parsing.
	invalidMu sync.Mutex
	invalid   map[string]struct{}

	stale            atomic.Bool // last refresh fell back to cache
	activeAlertCount atomic.Int64
	lastTickUnix     atomic.Int64
	lastTickMillis   atomic.Int64
	lastTickPairs    atomic.Int64
	lastTickErrored  atomic.Int64
}

// New wires the pipeline components into a scheduler.
func New(ingestor Ingestor, computer *metrics.Computer, triggers *trigger.Manager,
	dispatcher Dispatcher, alerts AlertStore, opts Options, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = 30 * time.Second
	}
	if opts.TickDeadline <= 0 {
		opts.TickDeadline = 2 * opts.TickInterval
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Scheduler{
		ingestor:   ingestor,
		computer:   computer,
		triggers:   triggers,
		dispatcher: dispatcher,
		alerts:     alerts,
		opts:       opts,
		logger:     logger,
		invalid:    make(map[string]struct{}),
	}
}

// Run restores persisted trigger state and then ticks until ctx is
// cancelled. Ticks run inline on this goroutine, so a long tick defers the
// next one instead of overlapping it. On shutdown the in-flight tick
// finishes up to its own deadline before Run returns.
func (s *Scheduler) Run(ctx context.Context) {
	s.restore(ctx)

	s.logger.Info("scheduler started",
		"interval", s.opts.TickInterval,
		"workers", s.opts.Workers,
		"deadline", s.opts.TickDeadline)

	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ticker.C:
			s.Tick(ctx)
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		}
	}
}

// restore reconstructs cooldown state from the trigger-history audit trail
// so a restart mid-match cannot double-notify inside a cooldown window.
func (s *Scheduler) restore(ctx context.Context) {
	alerts, err := s.alerts.ActiveAlerts(ctx)
	if err != nil {
		s.logger.Warn("restore: load alerts failed", "error", err)
		return
	}
	states, err := s.alerts.LatestTriggerStates(ctx)
	if err != nil {
		s.logger.Warn("restore: load trigger states failed", "error", err)
		return
	}
	byID := make(map[string]*rules.Alert, len(alerts))
	for _, a := range alerts {
		byID[a.ID] = a
	}
	s.triggers.Restore(states, byID, time.Now().UTC())
}

// Tick runs one full pipeline pass: refresh → compute → evaluate →
// trigger → dispatch. Exported for the operational CLI and tests.
func (s *Scheduler) Tick(ctx context.Context) {
	start := time.Now()
	tickCtx, cancel := context.WithTimeout(ctx, s.opts.TickDeadline)
	defer cancel()

	// 1. Refresh snapshots once. On upstream failure we still get the
	// cached snapshots marked stale and keep going.
	snapshots, err := s.ingestor.Refresh(tickCtx)
	if err != nil {
		var upstream *feed.UpstreamError
		if errors.As(err, &upstream) {
			s.logger.Warn("tick: serving stale snapshots", "error", err)
		} else {
			s.logger.Warn("tick: refresh failed", "error", err)
		}
		s.stale.Store(true)
	} else {
		s.stale.Store(false)
	}

	// 2. Load alert definitions; fall back to the previous set if the
	// store hiccups so one outage does not blank the pipeline.
	alerts, err := s.alerts.ActiveAlerts(tickCtx)
	if err != nil {
		s.logger.Warn("tick: load alerts failed, reusing previous set",
			"error", err, "previous", len(s.lastAlerts))
		alerts = s.lastAlerts
	} else {
		s.dropRemoved(s.lastAlerts, alerts)
		s.lastAlerts = alerts
	}
	s.activeAlertCount.Store(int64(len(alerts)))

	// 3. Split matches: finished ones discard their pairs, live ones get
	// metrics computed exactly once and shared read-only across workers.
	live := make([]feed.MatchSnapshot, 0, len(snapshots))
	sets := make(map[string]metrics.Set)
	for _, snap := range snapshots {
		switch {
		case snap.Status == feed.StatusFinished:
			s.triggers.FinishMatch(snap.MatchID)
			s.ingestor.Cache().Forget(snap.MatchID)
		case snap.Live():
			live = append(live, snap)
			sets[snap.MatchID] = s.computer.Compute(snap, s.ingestor.Cache().History(snap.MatchID))
		}
	}

	// 4. Build the pair set, skipping cooling-down pairs entirely.
	now := time.Now().UTC()
	type job struct {
		alert *rules.Alert
		snap  feed.MatchSnapshot
	}
	var jobs []job
	for _, alert := range alerts {
		if s.isInvalid(alert.ID) {
			continue
		}
		for _, snap := range live {
			if !alert.WatchesMatch(snap.HomeTeam, snap.AwayTeam) {
				continue
			}
			if !s.triggers.Eligible(alert, snap.MatchID, now) {
				continue
			}
			jobs = append(jobs, job{alert: alert, snap: snap})
		}
	}
	s.lastTickPairs.Store(int64(len(jobs)))

	// 5. Fan out over the bounded worker pool.
	var errored atomic.Int64
	jobCh := make(chan job, len(jobs))
	for _, j := range jobs {
		jobCh <- j
	}
	close(jobCh)

	var wg sync.WaitGroup
	for i := 0; i < s.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobCh {
				if tickCtx.Err() != nil {
					// Tick deadline hit: record the pair as errored
					// instead of letting it hang into the next tick.
					errored.Add(1)
					continue
				}
				if s.evaluatePair(tickCtx, j.alert, j.snap, sets[j.snap.MatchID]) {
					errored.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	s.lastTickErrored.Store(errored.Load())
	s.lastTickUnix.Store(start.Unix())
	s.lastTickMillis.Store(time.Since(start).Milliseconds())
	s.logger.Info("tick complete",
		"matches", len(live),
		"alerts", len(alerts),
		"pairs", len(jobs),
		"errored", errored.Load(),
		"duration", time.Since(start).Round(time.Millisecond))
}

// evaluatePair evaluates one (alert, match) pair and drives the trigger
// state machine on a positive result. It reports whether the tick deadline
// cut the pair off mid-dispatch.
func (s *Scheduler) evaluatePair(ctx context.Context, alert *rules.Alert, snap feed.MatchSnapshot, set metrics.Set) bool {
	ok, matched, err := rules.Evaluate(alert.Condition, set)
	if err != nil {
		// Malformed beyond what load-time validation caught. Flag it and
		// stop evaluating the alert for the rest of the run.
		s.markInvalid(ctx, alert, err)
		return false
	}
	if !ok {
		return false
	}

	now := time.Now().UTC()
	if !s.triggers.Begin(alert, snap.MatchID, now) {
		// Another worker won the transition, or the daily cap is reached.
		return false
	}

	message := buildMessage(alert, snap, matched)
	result := s.dispatcher.Dispatch(ctx, alert.Channel, alert.Recipient, message)

	switch {
	case result.Sent():
		s.triggers.Confirm(alert, snap.MatchID, now)
	default:
		// Permanent and exhausted-transient failures both return the pair
		// to IDLE: no notification went out, so no cooldown is consumed
		// and the next valid occurrence re-attempts.
		s.triggers.Rollback(alert, snap.MatchID, now)
		s.logger.Warn("dispatch failed",
			"alert_id", alert.ID, "match_id", snap.MatchID,
			"status", result.Status, "reason", result.Reason)
	}

	rec := store.TriggerRecord{
		AlertID:           alert.ID,
		MatchID:           snap.MatchID,
		MatchedPredicates: matched,
		Message:           message,
		DispatchStatus:    result.Status,
		TriggeredAt:       now,
	}
	if err := s.alerts.RecordTrigger(ctx, rec); err != nil {
		s.logger.Warn("record trigger failed", "alert_id", alert.ID, "error", err)
	}

	// A dispatch that failed because the tick deadline expired under it
	// counts as a timed-out pair, same as one that never started.
	return !result.Sent() && ctx.Err() != nil
}

// markInvalid flags the alert in the store and drops its runtime state.
func (s *Scheduler) markInvalid(ctx context.Context, alert *rules.Alert, cause error) {
	s.invalidMu.Lock()
	_, seen := s.invalid[alert.ID]
	s.invalid[alert.ID] = struct{}{}
	s.invalidMu.Unlock()
	if seen {
		return
	}

	s.logger.Warn("alert condition invalid", "alert_id", alert.ID, "error", cause)
	s.triggers.DropAlert(alert.ID)
	if err := s.alerts.MarkAlertInvalid(ctx, alert.ID, cause.Error()); err != nil {
		s.logger.Warn("flag invalid alert failed", "alert_id", alert.ID, "error", err)
	}
}

// dropRemoved discards trigger state for alerts no longer in the active
// set (deactivated or deleted between ticks). Only called after a
// successful load; a store outage must not wipe live state.
func (s *Scheduler) dropRemoved(prev, cur []*rules.Alert) {
	if len(prev) == 0 {
		return
	}
	current := make(map[string]struct{}, len(cur))
	for _, a := range cur {
		current[a.ID] = struct{}{}
	}
	for _, a := range prev {
		if _, ok := current[a.ID]; !ok {
			s.triggers.DropAlert(a.ID)
		}
	}
}

func (s *Scheduler) isInvalid(alertID string) bool {
	s.invalidMu.Lock()
	defer s.invalidMu.Unlock()
	_, ok := s.invalid[alertID]
	return ok
}

// buildMessage renders the notification text for a triggered alert.
func buildMessage(alert *rules.Alert, snap feed.MatchSnapshot, matched []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d-%d %s (%d')",
		snap.HomeTeam, snap.HomeScore, snap.AwayScore, snap.AwayTeam, snap.Elapsed)
	if len(matched) > 0 {
		b.WriteString(" — ")
		b.WriteString(strings.Join(matched, ", "))
	}
	return b.String()
}

// --------------------------------------------------------------------------
// Exposed state (consumed by the status API)
// --------------------------------------------------------------------------

// Health is the pipeline health summary.
type Health struct {
	UpstreamErrorCount int64     `json:"upstream_error_count"`
	SentToday          int64     `json:"notifications_sent_today"`
	FailedToday        int64     `json:"notifications_failed_today"`
	ActiveAlertCount   int64     `json:"active_alert_count"`
	LivePairCount      int       `json:"live_pair_count"`
	ServingStale       bool      `json:"serving_stale"`
	LastTickAt         time.Time `json:"last_tick_at"`
	LastTickMillis     int64     `json:"last_tick_ms"`
	LastTickPairs      int64     `json:"last_tick_pairs"`
	LastTickErrored    int64     `json:"last_tick_errored"`
}

// Health aggregates the pipeline counters.
func (s *Scheduler) Health() Health {
	sent, failed := s.dispatcher.Counters()
	return Health{
		UpstreamErrorCount: s.ingestor.ErrorCount(),
		SentToday:          sent,
		FailedToday:        failed,
		ActiveAlertCount:   s.activeAlertCount.Load(),
		LivePairCount:      s.triggers.PairCount(),
		ServingStale:       s.stale.Load(),
		LastTickAt:         time.Unix(s.lastTickUnix.Load(), 0).UTC(),
		LastTickMillis:     s.lastTickMillis.Load(),
		LastTickPairs:      s.lastTickPairs.Load(),
		LastTickErrored:    s.lastTickErrored.Load(),
	}
}

// LiveSnapshots returns the latest snapshot per tracked match, marked
// stale when the last refresh fell back to cache. Never empty just because
// the upstream is down.
func (s *Scheduler) LiveSnapshots() []feed.MatchSnapshot {
	return s.ingestor.Cache().Snapshots(s.stale.Load())
}
