// Package metrics derives advanced per-match metrics (expected goals,
// pressure index, momentum score) from raw feed snapshots. Everything here
// is a pure function of the current snapshot plus a short trailing window —
// no I/O, no stored state, deterministic for identical inputs.
package metrics

import (
	"math"

	"github.com/albapepper/matchpulse/internal/feed"
)

// --------------------------------------------------------------------------
// Metric registry
// --------------------------------------------------------------------------

// Names lists every metric a condition may reference. Conditions naming
// anything else are rejected at load time.
var Names = []string{
	"goals_home", "goals_away", "goals_total", "score_difference",
	"elapsed_minutes",
	"possession_home", "possession_away",
	"shots_home", "shots_away",
	"shots_on_target_home", "shots_on_target_away",
	"xg_home", "xg_away",
	"pressure_home", "pressure_away",
	"momentum_home", "momentum_away",
}

var nameSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(Names))
	for _, n := range Names {
		m[n] = struct{}{}
	}
	return m
}()

// Known reports whether name is a valid metric name.
func Known(name string) bool {
	_, ok := nameSet[name]
	return ok
}

// Set holds one match's derived metrics for one tick. Read-only once built.
type Set map[string]float64

// Get returns the metric value and whether the name is part of the set.
func (s Set) Get(name string) (float64, bool) {
	v, ok := s[name]
	return v, ok
}

// --------------------------------------------------------------------------
// Computer
// --------------------------------------------------------------------------

// Computer derives metric sets using a fixed weight configuration.
type Computer struct {
	weights Weights
}

// NewComputer creates a computer with the given weights.
func NewComputer(w Weights) *Computer {
	return &Computer{weights: w}
}

// Compute derives the full metric set for one match. history is the rolling
// snapshot window for the same match, oldest first; it may be empty or not
// include snap. Absent raw statistics contribute zero — partial data is
// normal for live feeds and must never fail the computation.
func (c *Computer) Compute(snap feed.MatchSnapshot, history []feed.MatchSnapshot) Set {
	set := Set{
		"goals_home":           float64(snap.HomeScore),
		"goals_away":           float64(snap.AwayScore),
		"goals_total":          float64(snap.HomeScore + snap.AwayScore),
		"score_difference":     math.Abs(float64(snap.HomeScore - snap.AwayScore)),
		"elapsed_minutes":      float64(snap.Elapsed),
		"possession_home":      snap.HomeStats.Get("possession"),
		"possession_away":      snap.AwayStats.Get("possession"),
		"shots_home":           snap.HomeStats.Get("shots_total"),
		"shots_away":           snap.AwayStats.Get("shots_total"),
		"shots_on_target_home": snap.HomeStats.Get("shots_on_target"),
		"shots_on_target_away": snap.AwayStats.Get("shots_on_target"),
	}

	set["xg_home"] = c.expectedGoals(snap.HomeStats)
	set["xg_away"] = c.expectedGoals(snap.AwayStats)
	set["pressure_home"] = c.pressure(snap.HomeStats, snap.Elapsed)
	set["pressure_away"] = c.pressure(snap.AwayStats, snap.Elapsed)

	homeMomentum, awayMomentum := c.momentum(snap, history)
	set["momentum_home"] = homeMomentum
	set["momentum_away"] = awayMomentum

	return set
}

// expectedGoals estimates probability-weighted goal value from shot mix.
// Shot-level coordinates are not available in the live feed, so the model
// weights shot categories instead.
func (c *Computer) expectedGoals(stats feed.TeamStats) float64 {
	onTarget := stats.Get("shots_on_target")
	total := stats.Get("shots_total")
	offTarget := total - onTarget
	if offTarget < 0 {
		offTarget = 0
	}
	bigChances := stats.Get("big_chances")

	xg := onTarget*c.weights.XGOnTarget +
		offTarget*c.weights.XGOffTarget +
		bigChances*c.weights.XGBigChance
	return round2(xg)
}

// pressure summarizes attacking intensity on a 0–100 scale from possession
// share and per-minute attacking volume.
func (c *Computer) pressure(stats feed.TeamStats, elapsed int) float64 {
	minutes := float64(elapsed)
	if minutes < 1 {
		minutes = 1
	}

	p := c.weights.PressurePossession*stats.Get("possession") +
		c.weights.PressureShotRate*(stats.Get("shots_total")/minutes)*90 +
		c.weights.PressureAttackRate*(stats.Get("dangerous_attacks")/minutes)*90 +
		c.weights.PressureCorners*stats.Get("corners")
	return clamp(round2(p), 0, 100)
}

// momentum scores recent swing from the trailing window: positive means the
// team is gaining ground. Deltas between consecutive snapshots are weighted
// toward the most recent interval.
func (c *Computer) momentum(snap feed.MatchSnapshot, history []feed.MatchSnapshot) (home, away float64) {
	window := history
	if len(window) == 0 || window[len(window)-1].FetchedAt != snap.FetchedAt {
		window = append(append([]feed.MatchSnapshot{}, history...), snap)
	}
	if len(window) < 2 {
		return 0, 0
	}

	weight := 1.0
	var homeScore, awayScore, totalWeight float64
	for i := 1; i < len(window); i++ {
		prev, cur := window[i-1], window[i]
		homeScore += weight * intervalThrust(prev, cur, true, c.weights)
		awayScore += weight * intervalThrust(prev, cur, false, c.weights)
		totalWeight += weight
		weight *= c.weights.MomentumDecay
	}
	if totalWeight == 0 {
		return 0, 0
	}

	home = clamp(round2(homeScore/totalWeight), -100, 100)
	away = clamp(round2(awayScore/totalWeight), -100, 100)
	return home, away
}

// intervalThrust scores one side's activity gain between two snapshots.
func intervalThrust(prev, cur feed.MatchSnapshot, homeSide bool, w Weights) float64 {
	var prevStats, curStats feed.TeamStats
	var goalDelta float64
	if homeSide {
		prevStats, curStats = prev.HomeStats, cur.HomeStats
		goalDelta = float64(cur.HomeScore - prev.HomeScore)
	} else {
		prevStats, curStats = prev.AwayStats, cur.AwayStats
		goalDelta = float64(cur.AwayScore - prev.AwayScore)
	}

	shotDelta := curStats.Get("shots_total") - prevStats.Get("shots_total")
	attackDelta := curStats.Get("dangerous_attacks") - prevStats.Get("dangerous_attacks")

	return goalDelta*w.MomentumGoal +
		shotDelta*w.MomentumShot +
		attackDelta*w.MomentumAttack
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
