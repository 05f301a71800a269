package executor

import (
	apperrors "github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/errors"
)

// Op is a comparison applied to one posting field.
type Op string

const (
	OpEq Op = "="
	OpNe Op = "!="
	OpLt Op = "<"
	OpLe Op = "<="
	OpGt Op = ">"
	OpGe Op = ">="
	OpIn Op = "in"
)

// Constraint keeps a posting row only if its Field value satisfies the
// predicate. Match, when set, replaces Op and Values.
type Constraint struct {
	Field  string           `json:"field"`
	Op     Op               `json:"op"`
	Values []int64          `json:"values"`
	Match  func(int64) bool `json:"-"`
}

// Term is one query element: a lexicon id plus optional row constraints.
// A negative ID denotes a term missing from the lexicon.
type Term struct {
	ID          int64        `json:"id"`
	Constraints []Constraint `json:"constraints,omitempty"`
}

// Query is an ordered list of terms. ReturnField names the column whose
// values form the result; empty means the primary field.
type Query struct {
	Terms       []Term `json:"terms"`
	ReturnField string `json:"return_field,omitempty"`
}

// Predicate compiles c into a function.
func (c Constraint) Predicate() (func(int64) bool, error) {
	if c.Match != nil {
		return c.Match, nil
	}
	if c.Op == OpIn {
		set := make(map[int64]struct{}, len(c.Values))
		for _, v := range c.Values {
			set[v] = struct{}{}
		}
		return func(v int64) bool {
			_, ok := set[v]
			return ok
		}, nil
	}
	if len(c.Values) != 1 {
		return nil, apperrors.Invalidf("constraint on %q: %s takes one value, got %d", c.Field, c.Op, len(c.Values))
	}
	x := c.Values[0]
	switch c.Op {
	case OpEq:
		return func(v int64) bool { return v == x }, nil
	case OpNe:
		return func(v int64) bool { return v != x }, nil
	case OpLt:
		return func(v int64) bool { return v < x }, nil
	case OpLe:
		return func(v int64) bool { return v <= x }, nil
	case OpGt:
		return func(v int64) bool { return v > x }, nil
	case OpGe:
		return func(v int64) bool { return v >= x }, nil
	default:
		return nil, apperrors.Invalidf("constraint on %q: unknown operator %q", c.Field, c.Op)
	}
}

// Eq is shorthand for an equality constraint.
func Eq(field string, v int64) Constraint {
	return Constraint{Field: field, Op: OpEq, Values: []int64{v}}
}
