// Package feed ingests live match state from the upstream sports data
// provider. It owns the HTTP client, the per-tick refresh with bounded
// retry, and the match cache that serves stale-but-available snapshots
// when the upstream is down.
//
// Pipeline position: feed → metrics → rules → trigger → dispatch.
package feed

import (
	"fmt"
	"time"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Match status values as normalized from the upstream payload.
const (
	StatusNotStarted = "not-started"
	StatusLive       = "live"
	StatusFinished   = "finished"
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// TeamStats holds the raw per-team statistics for one side of a match.
// Absent stats are simply missing keys — consumers default them to zero.
type TeamStats map[string]float64

// Get returns the stat value, defaulting to zero when the feed omitted it.
func (s TeamStats) Get(key string) float64 {
	if s == nil {
		return 0
	}
	return s[key]
}

// MatchSnapshot is one observation of a live match. Snapshots are
// immutable once built; a newer snapshot supersedes (never merges with)
// the previous one.
type MatchSnapshot struct {
	MatchID   string    `json:"match_id"`
	HomeTeam  string    `json:"home_team"`
	AwayTeam  string    `json:"away_team"`
	HomeScore int       `json:"home_score"`
	AwayScore int       `json:"away_score"`
	Elapsed   int       `json:"elapsed"` // minutes played
	Status    string    `json:"status"`
	HomeStats TeamStats `json:"home_stats,omitempty"`
	AwayStats TeamStats `json:"away_stats,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
	Stale     bool      `json:"stale"`
}

// Live reports whether the match is in play.
func (s MatchSnapshot) Live() bool {
	return s.Status == StatusLive
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

// UpstreamError wraps any provider failure: timeout, non-2xx status, or a
// malformed payload. It is recoverable — the ingestor serves the cache.
type UpstreamError struct {
	Op     string
	Status int // HTTP status when applicable, 0 otherwise
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream %s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("upstream %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
