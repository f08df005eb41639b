package rules

import (
	"fmt"
	"math"

	"github.com/albapepper/matchpulse/internal/metrics"
)

// Evaluate walks the condition tree against one match's metric set with
// short-circuit semantics: AND stops at the first false child, OR at the
// first true child. The returned slice lists every comparison leaf that
// evaluated true along the walked path, for inclusion in the notification.
//
// Referentially transparent: identical (tree, set) inputs always produce
// identical output. The only error case is a leaf referencing a metric
// absent from the set, which wraps ErrInvalidCondition.
func Evaluate(c *Condition, set metrics.Set) (bool, []string, error) {
	var matched []string
	ok, err := eval(c, set, &matched)
	if err != nil {
		return false, nil, err
	}
	return ok, matched, nil
}

func eval(c *Condition, set metrics.Set, matched *[]string) (bool, error) {
	switch c.Type {
	case nodeCmp:
		value, ok := set.Get(c.Metric)
		if !ok {
			return false, fmt.Errorf("%w: metric %q not in metric set", ErrInvalidCondition, c.Metric)
		}
		if compare(value, c.Op, c.Value) {
			*matched = append(*matched, c.String())
			return true, nil
		}
		return false, nil
	case nodeAnd:
		for _, child := range c.Children {
			ok, err := eval(child, set, matched)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case nodeOr:
		for _, child := range c.Children {
			ok, err := eval(child, set, matched)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case nodeNot:
		ok, err := eval(c.Child, set, matched)
		if err != nil {
			return false, err
		}
		return !ok, nil
	default:
		return false, fmt.Errorf("%w: unknown node type %q", ErrInvalidCondition, c.Type)
	}
}

// compare applies one operator with absolute-epsilon equality.
func compare(value float64, op string, target float64) bool {
	switch op {
	case OpGTE:
		return value >= target
	case OpLTE:
		return value <= target
	case OpGT:
		return value > target
	case OpLT:
		return value < target
	case OpEQ:
		return math.Abs(value-target) <= Epsilon
	default:
		return false
	}
}
