// Package trigger is the alert state manager: one small state machine per
// (alert, match) pair deciding whether a positive evaluation becomes an
// actual notification. It is the single authority on cooldowns, in-flight
// dispatches, and daily trigger caps.
//
// State machine per pair:
//
//	IDLE --[condition true, cap not reached]--> TRIGGERED
//	TRIGGERED --[dispatch success]--> COOLING_DOWN
//	TRIGGERED --[dispatch permanent failure]--> IDLE   (no cooldown consumed)
//	COOLING_DOWN --[cooldown elapsed]--> IDLE
//	any --[match finished / alert dropped]--> discarded
package trigger

import (
	"log/slog"
	"sync"
	"time"

	"github.com/albapepper/matchpulse/internal/rules"
)

// Status values for a pair.
const (
	StatusIdle        = "IDLE"
	StatusTriggered   = "TRIGGERED"
	StatusCoolingDown = "COOLING_DOWN"
)

// PairState is the persisted view of one pair, as written to and restored
// from the trigger-history audit trail.
type PairState struct {
	AlertID       string
	MatchID       string
	Status        string
	LastTriggered time.Time
	TriggerCount  int
}

type pairKey struct {
	alertID string
	matchID string
}

// entry is the live state for one pair. Each entry has its own mutex so
// transitions are serialized per key without any cross-pair contention.
type entry struct {
	mu            sync.Mutex
	status        string
	lastTriggered time.Time
}

// Manager owns all pair entries plus the per-alert daily trigger counters.
type Manager struct {
	mu     sync.Mutex // guards the maps, not the entries
	pairs  map[pairKey]*entry
	logger *slog.Logger

	dailyMu  sync.Mutex
	dailyDay string // UTC day the counters belong to
	daily    map[string]int
}

// NewManager creates an empty state manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		pairs:  make(map[pairKey]*entry),
		daily:  make(map[string]int),
		logger: logger,
	}
}

// Restore seeds pair state from persisted trigger history, typically on
// process restart. Pairs whose last trigger is still inside the alert's
// cooldown resume in COOLING_DOWN; everything else resumes IDLE.
func (m *Manager) Restore(states []PairState, alerts map[string]*rules.Alert, now time.Time) {
	restored := 0
	for _, s := range states {
		alert, ok := alerts[s.AlertID]
		if !ok {
			continue
		}
		e := m.entryFor(s.AlertID, s.MatchID)
		e.mu.Lock()
		e.lastTriggered = s.LastTriggered
		if !s.LastTriggered.IsZero() && now.Sub(s.LastTriggered) < alert.Cooldown {
			e.status = StatusCoolingDown
		} else {
			e.status = StatusIdle
		}
		e.mu.Unlock()

		m.addDaily(s.AlertID, s.TriggerCount, now)
		restored++
	}
	if restored > 0 {
		m.logger.Info("trigger state restored", "pairs", restored)
	}
}

// Eligible reports whether a pair should be evaluated this tick. A pair in
// COOLING_DOWN whose cooldown has elapsed transitions back to IDLE here;
// one still cooling down (or with a dispatch in flight) is skipped without
// wasting an evaluation.
func (m *Manager) Eligible(alert *rules.Alert, matchID string, now time.Time) bool {
	e := m.entryFor(alert.ID, matchID)
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.status {
	case StatusIdle:
		return true
	case StatusCoolingDown:
		if now.Sub(e.lastTriggered) >= alert.Cooldown {
			e.status = StatusIdle
			return true
		}
		return false
	default: // TRIGGERED: dispatch in flight
		return false
	}
}

// Begin attempts the IDLE→TRIGGERED transition. Exactly one caller wins per
// pair per occurrence; concurrent workers racing on the same pair see false.
// A daily trigger slot is reserved here, before dispatch, so concurrent
// transitions for the same alert on different matches cannot overshoot the
// cap; Rollback releases the slot if nothing is delivered.
func (m *Manager) Begin(alert *rules.Alert, matchID string, now time.Time) bool {
	if alert.MaxDailyTriggers > 0 && !m.reserveDaily(alert.ID, alert.MaxDailyTriggers, now) {
		return false
	}

	e := m.entryFor(alert.ID, matchID)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusIdle {
		if alert.MaxDailyTriggers > 0 {
			m.releaseDaily(alert.ID, now)
		}
		return false
	}
	e.status = StatusTriggered
	return true
}

// Confirm moves TRIGGERED→COOLING_DOWN after a successful dispatch. The
// daily trigger slot reserved in Begin stays consumed.
func (m *Manager) Confirm(alert *rules.Alert, matchID string, now time.Time) {
	e := m.entryFor(alert.ID, matchID)
	e.mu.Lock()
	if e.status == StatusTriggered {
		e.status = StatusCoolingDown
		e.lastTriggered = now
	}
	e.mu.Unlock()
}

// Rollback moves TRIGGERED→IDLE after a failed dispatch. No cooldown is
// consumed and the reserved daily slot is released, so the same true
// condition re-attempts next tick.
func (m *Manager) Rollback(alert *rules.Alert, matchID string, now time.Time) {
	e := m.entryFor(alert.ID, matchID)
	e.mu.Lock()
	rolled := false
	if e.status == StatusTriggered {
		e.status = StatusIdle
		rolled = true
	}
	e.mu.Unlock()

	if rolled && alert.MaxDailyTriggers > 0 {
		m.releaseDaily(alert.ID, now)
	}
}

// Status returns the current status and last trigger time for a pair.
func (m *Manager) Status(alertID, matchID string) (string, time.Time) {
	e := m.entryFor(alertID, matchID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status, e.lastTriggered
}

// FinishMatch discards every pair for a finished match.
func (m *Manager) FinishMatch(matchID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.pairs {
		if key.matchID == matchID {
			delete(m.pairs, key)
		}
	}
}

// DropAlert discards every pair for a deactivated or invalid alert.
func (m *Manager) DropAlert(alertID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.pairs {
		if key.alertID == alertID {
			delete(m.pairs, key)
		}
	}
}

// PairCount returns the number of live pairs, for health reporting.
func (m *Manager) PairCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pairs)
}

// entryFor returns the entry for a pair, creating it IDLE on first use.
func (m *Manager) entryFor(alertID, matchID string) *entry {
	key := pairKey{alertID: alertID, matchID: matchID}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.pairs[key]; ok {
		return e
	}
	e := &entry{status: StatusIdle}
	m.pairs[key] = e
	return e
}

// --------------------------------------------------------------------------
// Daily trigger counters
// --------------------------------------------------------------------------

func (m *Manager) dailyCount(alertID string, now time.Time) int {
	m.dailyMu.Lock()
	defer m.dailyMu.Unlock()
	m.rollDayLocked(now)
	return m.daily[alertID]
}

// reserveDaily takes one trigger slot if the cap allows. Check and
// increment happen under one lock so concurrent Begin calls for the same
// alert can never jointly overshoot the cap.
func (m *Manager) reserveDaily(alertID string, limit int, now time.Time) bool {
	m.dailyMu.Lock()
	defer m.dailyMu.Unlock()
	m.rollDayLocked(now)
	if m.daily[alertID] >= limit {
		return false
	}
	m.daily[alertID]++
	return true
}

// releaseDaily returns a reserved slot after a rollback.
func (m *Manager) releaseDaily(alertID string, now time.Time) {
	m.dailyMu.Lock()
	defer m.dailyMu.Unlock()
	m.rollDayLocked(now)
	if m.daily[alertID] > 0 {
		m.daily[alertID]--
	}
}

func (m *Manager) addDaily(alertID string, n int, now time.Time) {
	if n <= 0 {
		return
	}
	m.dailyMu.Lock()
	defer m.dailyMu.Unlock()
	m.rollDayLocked(now)
	m.daily[alertID] += n
}

// rollDayLocked resets the counters when the UTC day changes.
func (m *Manager) rollDayLocked(now time.Time) {
	day := now.UTC().Format("2006-01-02")
	if day != m.dailyDay {
		m.dailyDay = day
		m.daily = make(map[string]int)
	}
}
