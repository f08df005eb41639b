package rules

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/albapepper/matchpulse/internal/metrics"
)

func baseSet() metrics.Set {
	// 2-1 home lead at 70 minutes.
	return metrics.Set{
		"goals_home":           2,
		"goals_away":           1,
		"goals_total":          3,
		"score_difference":     1,
		"elapsed_minutes":      70,
		"possession_home":      55,
		"possession_away":      45,
		"shots_home":           11,
		"shots_away":           6,
		"shots_on_target_home": 5,
		"shots_on_target_away": 2,
		"xg_home":              1.8,
		"xg_away":              0.6,
		"pressure_home":        62,
		"pressure_away":        38,
		"momentum_home":        12,
		"momentum_away":        -12,
	}
}

func TestEvaluateComparisons(t *testing.T) {
	tests := []struct {
		name string
		cond *Condition
		want bool
	}{
		{"close game", Cmp("score_difference", OpLTE, 1), true},
		{"home hat trick not yet", Cmp("goals_home", OpGTE, 3), false},
		{"strict greater", Cmp("goals_home", OpGT, 2), false},
		{"strict less", Cmp("goals_away", OpLT, 2), true},
		{"equality within epsilon", Cmp("xg_home", OpEQ, 1.8+1e-9), true},
		{"equality outside epsilon", Cmp("xg_home", OpEQ, 1.81), false},
		{"negation", Not(Cmp("goals_total", OpGTE, 4)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := Evaluate(tt.cond, baseSet())
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateShortCircuitAnd(t *testing.T) {
	// xg_home >= 1.5 holds, possession_home >= 60 does not: the AND is
	// false and only the first predicate is reported matched.
	cond := And(
		Cmp("xg_home", OpGTE, 1.5),
		Cmp("possession_home", OpGTE, 60),
	)
	ok, matched, err := Evaluate(cond, baseSet())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if ok {
		t.Fatal("expected false for AND with failing child")
	}
	want := []string{"xg_home >= 1.5"}
	if !reflect.DeepEqual(matched, want) {
		t.Errorf("matched = %v, want %v", matched, want)
	}
}

func TestEvaluateShortCircuitOr(t *testing.T) {
	// OR stops at the first true child; later children contribute nothing.
	cond := Or(
		Cmp("goals_total", OpGTE, 3),
		Cmp("goals_home", OpGTE, 99),
	)
	ok, matched, err := Evaluate(cond, baseSet())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !ok {
		t.Fatal("expected true for OR with passing first child")
	}
	if len(matched) != 1 || matched[0] != "goals_total >= 3" {
		t.Errorf("matched = %v", matched)
	}
}

func TestEvaluateIdempotent(t *testing.T) {
	cond := And(
		Or(Cmp("pressure_home", OpGT, 50), Cmp("momentum_home", OpGT, 20)),
		Cmp("score_difference", OpLTE, 1),
	)
	set := baseSet()

	ok1, matched1, err1 := Evaluate(cond, set)
	ok2, matched2, err2 := Evaluate(cond, set)
	if err1 != nil || err2 != nil {
		t.Fatalf("errors: %v, %v", err1, err2)
	}
	if ok1 != ok2 || !reflect.DeepEqual(matched1, matched2) {
		t.Errorf("evaluation not idempotent: (%v, %v) vs (%v, %v)", ok1, matched1, ok2, matched2)
	}
}

func TestEvaluateMissingMetric(t *testing.T) {
	cond := Cmp("goals_home", OpGTE, 1)
	_, _, err := Evaluate(cond, metrics.Set{"goals_away": 1})
	if !errors.Is(err, ErrInvalidCondition) {
		t.Errorf("expected ErrInvalidCondition, got %v", err)
	}
}

func TestParseCondition(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr bool
	}{
		{
			"valid comparison",
			`{"type":"cmp","metric":"score_difference","op":"<=","value":1}`,
			false,
		},
		{
			"valid nested tree",
			`{"type":"and","children":[
				{"type":"cmp","metric":"xg_home","op":">=","value":1.5},
				{"type":"not","child":{"type":"cmp","metric":"goals_away","op":">","value":0}}
			]}`,
			false,
		},
		{
			"unknown metric",
			`{"type":"cmp","metric":"corner_count","op":">=","value":5}`,
			true,
		},
		{
			"unknown operator",
			`{"type":"cmp","metric":"goals_home","op":"!=","value":1}`,
			true,
		},
		{
			"unknown node type",
			`{"type":"xor","children":[]}`,
			true,
		},
		{
			"and without children",
			`{"type":"and"}`,
			true,
		},
		{
			"not without child",
			`{"type":"not"}`,
			true,
		},
		{
			"not json",
			`{{`,
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCondition([]byte(tt.json))
			if tt.wantErr && !errors.Is(err, ErrInvalidCondition) {
				t.Errorf("expected ErrInvalidCondition, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateDepthBound(t *testing.T) {
	cond := Cmp("goals_home", OpGTE, 1)
	for i := 0; i < maxDepth+2; i++ {
		cond = Not(cond)
	}
	if err := cond.Validate(); !errors.Is(err, ErrInvalidCondition) {
		t.Errorf("expected depth rejection, got %v", err)
	}
}

func TestWatchesMatch(t *testing.T) {
	tests := []struct {
		name string
		team string
		side string
		want bool
	}{
		{"no filter", "", SideAny, true},
		{"home side match", "Arsenal", SideHome, true},
		{"home side mismatch", "Chelsea", SideHome, false},
		{"away side match", "Chelsea", SideAway, true},
		{"any side match", "Chelsea", SideAny, true},
		{"any side absent", "Liverpool", SideAny, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Alert{Team: tt.team, Side: tt.side, Cooldown: time.Minute}
			if got := a.WatchesMatch("Arsenal", "Chelsea"); got != tt.want {
				t.Errorf("WatchesMatch() = %v, want %v", got, tt.want)
			}
		})
	}
}
