package rules

import (
	"encoding/json"
	"fmt"

	"github.com/albapepper/matchpulse/internal/metrics"
)

// Node type tags as they appear in the stored JSON.
const (
	nodeCmp = "cmp"
	nodeAnd = "and"
	nodeOr  = "or"
	nodeNot = "not"
)

// Condition is one node of an alert's condition expression tree: either a
// comparison leaf or a boolean combinator over children. Exactly one shape
// is populated per node, discriminated by Type.
type Condition struct {
	Type string `json:"type"`

	// cmp
	Metric string  `json:"metric,omitempty"`
	Op     string  `json:"op,omitempty"`
	Value  float64 `json:"value,omitempty"`

	// and / or
	Children []*Condition `json:"children,omitempty"`

	// not
	Child *Condition `json:"child,omitempty"`
}

// ParseCondition decodes and validates a stored condition document.
func ParseCondition(data []byte) (*Condition, error) {
	var c Condition
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidCondition, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the whole tree: known node types, known metric names,
// known operators, non-empty child lists, bounded depth.
func (c *Condition) Validate() error {
	return c.validate(0)
}

func (c *Condition) validate(depth int) error {
	if c == nil {
		return fmt.Errorf("%w: nil node", ErrInvalidCondition)
	}
	if depth > maxDepth {
		return fmt.Errorf("%w: tree deeper than %d", ErrInvalidCondition, maxDepth)
	}

	switch c.Type {
	case nodeCmp:
		if !metrics.Known(c.Metric) {
			return fmt.Errorf("%w: unknown metric %q", ErrInvalidCondition, c.Metric)
		}
		switch c.Op {
		case OpGTE, OpLTE, OpGT, OpLT, OpEQ:
		default:
			return fmt.Errorf("%w: unknown operator %q", ErrInvalidCondition, c.Op)
		}
		return nil
	case nodeAnd, nodeOr:
		if len(c.Children) == 0 {
			return fmt.Errorf("%w: %s node with no children", ErrInvalidCondition, c.Type)
		}
		for _, child := range c.Children {
			if err := child.validate(depth + 1); err != nil {
				return err
			}
		}
		return nil
	case nodeNot:
		if c.Child == nil {
			return fmt.Errorf("%w: not node with no child", ErrInvalidCondition)
		}
		return c.Child.validate(depth + 1)
	default:
		return fmt.Errorf("%w: unknown node type %q", ErrInvalidCondition, c.Type)
	}
}

// String renders the node for logs and matched-predicate reporting.
func (c *Condition) String() string {
	if c == nil {
		return "<nil>"
	}
	switch c.Type {
	case nodeCmp:
		return fmt.Sprintf("%s %s %g", c.Metric, c.Op, c.Value)
	case nodeAnd, nodeOr:
		return fmt.Sprintf("%s(%d)", c.Type, len(c.Children))
	case nodeNot:
		return "not(" + c.Child.String() + ")"
	default:
		return c.Type
	}
}

// Cmp builds a comparison leaf. Test and seeding helper.
func Cmp(metric, op string, value float64) *Condition {
	return &Condition{Type: nodeCmp, Metric: metric, Op: op, Value: value}
}

// And combines children conjunctively.
func And(children ...*Condition) *Condition {
	return &Condition{Type: nodeAnd, Children: children}
}

// Or combines children disjunctively.
func Or(children ...*Condition) *Condition {
	return &Condition{Type: nodeOr, Children: children}
}

// Not negates a child.
func Not(child *Condition) *Condition {
	return &Condition{Type: nodeNot, Child: child}
}
