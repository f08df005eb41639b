package feed

import (
	"testing"
	"time"
)

func liveSnap(matchID string, elapsed int) MatchSnapshot {
	return MatchSnapshot{
		MatchID:   matchID,
		HomeTeam:  "Arsenal",
		AwayTeam:  "Chelsea",
		Elapsed:   elapsed,
		Status:    StatusLive,
		FetchedAt: time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC).Add(time.Duration(elapsed) * time.Minute),
	}
}

func TestCacheSupersede(t *testing.T) {
	c := NewCache(10)
	c.Update([]MatchSnapshot{liveSnap("m1", 10)})
	c.Update([]MatchSnapshot{liveSnap("m1", 11)})

	snaps := c.Snapshots(false)
	if len(snaps) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(snaps))
	}
	if snaps[0].Elapsed != 11 {
		t.Errorf("elapsed = %d, want latest snapshot to win", snaps[0].Elapsed)
	}
}

func TestCachePartialUpdateRetainsMatches(t *testing.T) {
	c := NewCache(10)
	c.Update([]MatchSnapshot{liveSnap("m1", 10), liveSnap("m2", 20)})

	// m2 missing from the next batch must not drop it from the cache.
	c.Update([]MatchSnapshot{liveSnap("m1", 11)})
	if c.Len() != 2 {
		t.Errorf("cache len = %d, want 2 after partial update", c.Len())
	}
}

func TestCacheStaleFlag(t *testing.T) {
	c := NewCache(10)
	c.Update([]MatchSnapshot{liveSnap("m1", 10)})

	for _, s := range c.Snapshots(true) {
		if !s.Stale {
			t.Error("snapshot should be marked stale")
		}
	}
	for _, s := range c.Snapshots(false) {
		if s.Stale {
			t.Error("snapshot should be marked fresh")
		}
	}
}

func TestCacheHistoryWindow(t *testing.T) {
	c := NewCache(3)
	for i := 0; i < 6; i++ {
		c.Update([]MatchSnapshot{liveSnap("m1", i)})
	}

	h := c.History("m1")
	if len(h) != 3 {
		t.Fatalf("history len = %d, want window of 3", len(h))
	}
	// Oldest first, trimmed from the front.
	if h[0].Elapsed != 3 || h[2].Elapsed != 5 {
		t.Errorf("history window = [%d..%d], want [3..5]", h[0].Elapsed, h[2].Elapsed)
	}
}

func TestCacheHistoryIsCopy(t *testing.T) {
	c := NewCache(5)
	c.Update([]MatchSnapshot{liveSnap("m1", 1)})

	h := c.History("m1")
	h[0].Elapsed = 99

	if got := c.History("m1")[0].Elapsed; got != 1 {
		t.Errorf("cache history mutated through returned slice: elapsed = %d", got)
	}
}

func TestCacheForget(t *testing.T) {
	c := NewCache(5)
	c.Update([]MatchSnapshot{liveSnap("m1", 1), liveSnap("m2", 1)})

	c.Forget("m1")
	if c.Len() != 1 {
		t.Errorf("cache len = %d, want 1 after Forget", c.Len())
	}
	if h := c.History("m1"); len(h) != 0 {
		t.Errorf("history len = %d, want 0 after Forget", len(h))
	}
}
