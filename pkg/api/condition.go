package api

import "fmt"

// ConditionOp names a Choice rule operator.
type ConditionOp string

const (
	OpStringEquals  ConditionOp = "StringEquals"
	OpBooleanEquals ConditionOp = "BooleanEquals"
	OpNumericEquals ConditionOp = "NumericEquals"
	OpIsPresent     ConditionOp = "IsPresent"
	OpNot           ConditionOp = "Not"
	OpAnd           ConditionOp = "And"
	OpOr            ConditionOp = "Or"
)

// Condition is a declarative predicate over a Payload. It is plain data so
// that definitions stay comparable and exportable.
type Condition struct {
	Op       ConditionOp `json:"op" yaml:"op"`
	Path     string      `json:"path,omitempty" yaml:"path,omitempty"`
	Value    any         `json:"value,omitempty" yaml:"value,omitempty"`
	Operands []Condition `json:"operands,omitempty" yaml:"operands,omitempty"`
}

// StringEquals matches when the string at path equals value.
func StringEquals(path, value string) Condition {
	return Condition{Op: OpStringEquals, Path: path, Value: value}
}

// BooleanEquals matches when the bool at path equals value.
func BooleanEquals(path string, value bool) Condition {
	return Condition{Op: OpBooleanEquals, Path: path, Value: value}
}

// NumericEquals matches when the number at path equals value.
func NumericEquals(path string, value float64) Condition {
	return Condition{Op: OpNumericEquals, Path: path, Value: value}
}

// IsPresent matches when path resolves to a value.
func IsPresent(path string) Condition {
	return Condition{Op: OpIsPresent, Path: path}
}

// Not inverts c.
func Not(c Condition) Condition {
	return Condition{Op: OpNot, Operands: []Condition{c}}
}

// And matches when every operand matches.
func And(cs ...Condition) Condition {
	return Condition{Op: OpAnd, Operands: cs}
}

// Or matches when at least one operand matches.
func Or(cs ...Condition) Condition {
	return Condition{Op: OpOr, Operands: cs}
}

// Eval evaluates c against p. Unknown operators never match.
func (c Condition) Eval(p Payload) bool {
	switch c.Op {
	case OpStringEquals:
		s, ok := p.String(c.Path)
		return ok && s == c.Value
	case OpBooleanEquals:
		v, ok := p.Get(c.Path)
		if !ok {
			return false
		}
		b, ok := v.(bool)
		return ok && b == c.Value
	case OpNumericEquals:
		v, ok := p.Get(c.Path)
		if !ok {
			return false
		}
		n, ok := toFloat(v)
		want, wok := toFloat(c.Value)
		return ok && wok && n == want
	case OpIsPresent:
		return p.Has(c.Path)
	case OpNot:
		return len(c.Operands) == 1 && !c.Operands[0].Eval(p)
	case OpAnd:
		for _, o := range c.Operands {
			if !o.Eval(p) {
				return false
			}
		}
		return len(c.Operands) > 0
	case OpOr:
		for _, o := range c.Operands {
			if o.Eval(p) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// String renders c for logs and error messages.
func (c Condition) String() string {
	switch c.Op {
	case OpIsPresent:
		return fmt.Sprintf("IsPresent(%s)", c.Path)
	case OpNot, OpAnd, OpOr:
		return fmt.Sprintf("%s%v", c.Op, c.Operands)
	default:
		return fmt.Sprintf("%s(%s, %v)", c.Op, c.Path, c.Value)
	}
}

func (c Condition) validate() error {
	switch c.Op {
	case OpStringEquals, OpBooleanEquals, OpNumericEquals, OpIsPresent:
		if c.Path == "" {
			return fmt.Errorf("condition %s has no path", c.Op)
		}
	case OpNot:
		if len(c.Operands) != 1 {
			return fmt.Errorf("condition Not needs exactly one operand, got %d", len(c.Operands))
		}
	case OpAnd, OpOr:
		if len(c.Operands) == 0 {
			return fmt.Errorf("condition %s has no operands", c.Op)
		}
	default:
		return fmt.Errorf("unknown condition operator %q", c.Op)
	}
	for _, o := range c.Operands {
		if err := o.validate(); err != nil {
			return err
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
