package metrics

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Weights holds the tuning constants behind the derived metrics. These are
// product parameters, not structure — operators override them from a TOML
// file without recompiling.
type Weights struct {
	XGOnTarget  float64 `toml:"xg_on_target"`
	XGOffTarget float64 `toml:"xg_off_target"`
	XGBigChance float64 `toml:"xg_big_chance"`

	PressurePossession float64 `toml:"pressure_possession"`
	PressureShotRate   float64 `toml:"pressure_shot_rate"`
	PressureAttackRate float64 `toml:"pressure_attack_rate"`
	PressureCorners    float64 `toml:"pressure_corners"`

	MomentumGoal   float64 `toml:"momentum_goal"`
	MomentumShot   float64 `toml:"momentum_shot"`
	MomentumAttack float64 `toml:"momentum_attack"`
	MomentumDecay  float64 `toml:"momentum_decay"` // weight multiplier per step back in time
}

// DefaultWeights returns the baseline tuning.
func DefaultWeights() Weights {
	return Weights{
		XGOnTarget:  0.30,
		XGOffTarget: 0.05,
		XGBigChance: 0.15,

		PressurePossession: 0.35,
		PressureShotRate:   1.80,
		PressureAttackRate: 0.45,
		PressureCorners:    1.20,

		MomentumGoal:   40.0,
		MomentumShot:   8.0,
		MomentumAttack: 1.5,
		MomentumDecay:  0.6,
	}
}

// LoadWeights reads weight overrides from a TOML file. Fields missing from
// the file keep their defaults; path == "" returns the defaults untouched.
func LoadWeights(path string) (Weights, error) {
	w := DefaultWeights()
	if path == "" {
		return w, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return w, fmt.Errorf("read weights file: %w", err)
	}
	if err := toml.Unmarshal(data, &w); err != nil {
		return w, fmt.Errorf("parse weights file: %w", err)
	}
	if w.MomentumDecay <= 0 || w.MomentumDecay > 1 {
		return w, fmt.Errorf("momentum_decay must be in (0, 1], got %g", w.MomentumDecay)
	}
	return w, nil
}
