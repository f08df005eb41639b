// Package rules defines alert definitions, the condition expression AST,
// and the evaluator that decides whether a match's metrics satisfy an
// alert. Conditions arrive as loosely-typed JSON from the alert store and
// are decoded into a closed set of node types, validated once at load —
// unknown metric names or operators are rejected immediately instead of
// failing deep inside a tick.
package rules

import (
	"errors"
	"time"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Side filter values for an alert's team filter.
const (
	SideHome = "home"
	SideAway = "away"
	SideAny  = "any"
)

// Comparison operators supported in condition leaves.
const (
	OpGTE = ">="
	OpLTE = "<="
	OpGT  = ">"
	OpLT  = "<"
	OpEQ  = "=="
)

// Epsilon is the absolute tolerance for `==` comparisons on floats.
const Epsilon = 1e-6

// maxDepth bounds condition tree nesting. Trees are user-supplied JSON;
// the cap keeps a hostile payload from recursing the evaluator.
const maxDepth = 32

// ErrInvalidCondition marks a malformed alert condition. Alerts carrying
// one are flagged invalid in the store and skipped for the rest of the run.
var ErrInvalidCondition = errors.New("invalid alert condition")

// --------------------------------------------------------------------------
// Alert
// --------------------------------------------------------------------------

// Alert is one user-defined alert as loaded from the store. Immutable
// during a tick; the alert-management layer mutates definitions only
// between ticks.
type Alert struct {
	ID               string
	UserID           string
	Team             string // optional team-name filter; "" = all matches
	Side             string // home, away, or any — which side Team must play
	Condition        *Condition
	Cooldown         time.Duration
	MaxDailyTriggers int // 0 = uncapped
	Channel          string
	Recipient        string
	Active           bool
	CreatedAt        time.Time
}

// WatchesMatch reports whether the alert applies to a match between
// homeTeam and awayTeam.
func (a *Alert) WatchesMatch(homeTeam, awayTeam string) bool {
	if a.Team == "" {
		return true
	}
	switch a.Side {
	case SideHome:
		return homeTeam == a.Team
	case SideAway:
		return awayTeam == a.Team
	default:
		return homeTeam == a.Team || awayTeam == a.Team
	}
}
