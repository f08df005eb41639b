package feed

import (
	"sync"
)

// Cache holds the most recent known-good snapshot per match plus a short
// rolling history used by the momentum computation. Write ownership is the
// ingestor's, once per tick; workers only read.
type Cache struct {
	mu      sync.RWMutex
	latest  map[string]MatchSnapshot
	history map[string][]MatchSnapshot
	window  int
}

// NewCache creates a cache keeping `window` trailing snapshots per match.
func NewCache(window int) *Cache {
	if window < 1 {
		window = 1
	}
	return &Cache{
		latest:  make(map[string]MatchSnapshot),
		history: make(map[string][]MatchSnapshot),
		window:  window,
	}
}

// Update replaces the cached snapshot for every match in the batch and
// appends to each match's rolling history. Matches absent from the batch
// keep their last known snapshot — a partial feed response must not make
// matches vanish mid-game.
func (c *Cache) Update(snapshots []MatchSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range snapshots {
		s.Stale = false
		c.latest[s.MatchID] = s

		h := append(c.history[s.MatchID], s)
		if len(h) > c.window {
			h = h[len(h)-c.window:]
		}
		c.history[s.MatchID] = h
	}
}

// Snapshots returns the latest snapshot for every cached match. When
// stale is true each snapshot is marked as served from cache.
func (c *Cache) Snapshots(stale bool) []MatchSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]MatchSnapshot, 0, len(c.latest))
	for _, s := range c.latest {
		s.Stale = stale
		out = append(out, s)
	}
	return out
}

// History returns the rolling snapshot window for one match, oldest first.
// The returned slice is a copy; callers may not observe later writes.
func (c *Cache) History(matchID string) []MatchSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h := c.history[matchID]
	out := make([]MatchSnapshot, len(h))
	copy(out, h)
	return out
}

// Forget drops a match once it has finished and its trigger pairs have
// been discarded.
func (c *Cache) Forget(matchID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.latest, matchID)
	delete(c.history, matchID)
}

// Len returns the number of cached matches.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.latest)
}
