package metrics

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/albapepper/matchpulse/internal/feed"
)

func snapshotAt(minute int, homeShots, awayShots float64) feed.MatchSnapshot {
	return feed.MatchSnapshot{
		MatchID:   "m1",
		HomeTeam:  "Arsenal",
		AwayTeam:  "Chelsea",
		HomeScore: 2,
		AwayScore: 1,
		Elapsed:   minute,
		Status:    feed.StatusLive,
		HomeStats: feed.TeamStats{
			"possession":        55,
			"shots_total":       homeShots,
			"shots_on_target":   homeShots / 2,
			"dangerous_attacks": 30,
			"corners":           4,
		},
		AwayStats: feed.TeamStats{
			"possession":        45,
			"shots_total":       awayShots,
			"shots_on_target":   awayShots / 2,
			"dangerous_attacks": 18,
			"corners":           2,
		},
		FetchedAt: time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC).Add(time.Duration(minute) * time.Minute),
	}
}

func TestComputeBasics(t *testing.T) {
	c := NewComputer(DefaultWeights())
	set := c.Compute(snapshotAt(70, 12, 6), nil)

	tests := []struct {
		metric string
		want   float64
	}{
		{"goals_home", 2},
		{"goals_away", 1},
		{"goals_total", 3},
		{"score_difference", 1},
		{"elapsed_minutes", 70},
		{"possession_home", 55},
		{"shots_home", 12},
		{"shots_on_target_away", 3},
	}
	for _, tt := range tests {
		got, ok := set.Get(tt.metric)
		if !ok {
			t.Fatalf("metric %s missing from set", tt.metric)
		}
		if got != tt.want {
			t.Errorf("%s = %g, want %g", tt.metric, got, tt.want)
		}
	}

	// Every registered metric must be present — the evaluator treats a
	// missing name as an invalid condition.
	for _, name := range Names {
		if _, ok := set.Get(name); !ok {
			t.Errorf("registered metric %s absent from computed set", name)
		}
	}
}

func TestComputeMissingStatsDefaultToZero(t *testing.T) {
	c := NewComputer(DefaultWeights())
	snap := feed.MatchSnapshot{
		MatchID:  "m2",
		HomeTeam: "Lyon",
		AwayTeam: "Lille",
		Elapsed:  10,
		Status:   feed.StatusLive,
		// No stats at all — common early in a match.
	}
	set := c.Compute(snap, nil)

	for _, name := range []string{"xg_home", "xg_away", "pressure_home", "possession_away", "momentum_home"} {
		if v, _ := set.Get(name); v != 0 {
			t.Errorf("%s = %g, want 0 for missing stats", name, v)
		}
	}
}

func TestComputeDeterministic(t *testing.T) {
	c := NewComputer(DefaultWeights())
	history := []feed.MatchSnapshot{snapshotAt(60, 8, 5), snapshotAt(65, 10, 5)}
	snap := snapshotAt(70, 13, 6)

	a := c.Compute(snap, history)
	b := c.Compute(snap, history)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("compute not deterministic:\n%v\n%v", a, b)
	}
}

func TestMomentumFavorsActiveSide(t *testing.T) {
	c := NewComputer(DefaultWeights())
	// Home adds five shots across the window, away none.
	history := []feed.MatchSnapshot{
		snapshotAt(60, 8, 5),
		snapshotAt(65, 11, 5),
		snapshotAt(70, 13, 5),
	}
	set := c.Compute(history[len(history)-1], history)

	home, _ := set.Get("momentum_home")
	away, _ := set.Get("momentum_away")
	if home <= away {
		t.Errorf("momentum_home %g should exceed momentum_away %g", home, away)
	}
}

func TestXGSampleOutput(t *testing.T) {
	// 6 on target, 6 off, 2 big chances with default weights:
	// 6*0.30 + 6*0.05 + 2*0.15 = 2.40
	c := NewComputer(DefaultWeights())
	stats := feed.TeamStats{"shots_total": 12, "shots_on_target": 6, "big_chances": 2}
	if got := c.expectedGoals(stats); got != 2.40 {
		t.Errorf("expectedGoals = %g, want 2.40", got)
	}
}

func TestLoadWeights(t *testing.T) {
	t.Run("empty path keeps defaults", func(t *testing.T) {
		w, err := LoadWeights("")
		if err != nil {
			t.Fatalf("LoadWeights: %v", err)
		}
		if w != DefaultWeights() {
			t.Errorf("weights = %+v, want defaults", w)
		}
	})

	t.Run("partial file overrides", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "weights.toml")
		if err := os.WriteFile(path, []byte("xg_on_target = 0.5\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		w, err := LoadWeights(path)
		if err != nil {
			t.Fatalf("LoadWeights: %v", err)
		}
		if w.XGOnTarget != 0.5 {
			t.Errorf("XGOnTarget = %g, want 0.5", w.XGOnTarget)
		}
		if w.MomentumDecay != DefaultWeights().MomentumDecay {
			t.Errorf("MomentumDecay = %g, want default", w.MomentumDecay)
		}
	})

	t.Run("bad decay rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "weights.toml")
		if err := os.WriteFile(path, []byte("momentum_decay = 1.5\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadWeights(path); err == nil {
			t.Error("expected error for momentum_decay > 1")
		}
	})
}
