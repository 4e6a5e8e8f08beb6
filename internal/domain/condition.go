package domain

import (
	"fmt"
	"strings"
)

// Condition is one declarative eligibility test. The concrete types are
// ColumnEqualsColumn, ColumnCompare and ColumnContainsAny.
type Condition interface {
	condition()
	Columns() []string
}

// ColumnEqualsColumn matches rows where two columns hold the same value.
type ColumnEqualsColumn struct {
	Left  string
	Right string
}

// Comparison operator for ColumnCompare.
type Comparison string

const (
	LessThan    Comparison = "<"
	GreaterThan Comparison = ">"
)

// ColumnCompare compares a column against a literal.
type ColumnCompare struct {
	Column  string
	Op      Comparison
	Literal string
}

// ColumnContainsAny matches rows whose column contains any of the words.
type ColumnContainsAny struct {
	Column string
	Words  []string
}

func (ColumnEqualsColumn) condition() {}
func (ColumnCompare) condition()      {}
func (ColumnContainsAny) condition()  {}

func (c ColumnEqualsColumn) Columns() []string { return []string{c.Left, c.Right} }
func (c ColumnCompare) Columns() []string      { return []string{c.Column} }
func (c ColumnContainsAny) Columns() []string  { return []string{c.Column} }

// Condition type discriminators used on the wire.
const (
	ConditionColumnColumn = "column_equals_column"
	ConditionColumnValue  = "column_compare"
	ConditionColumnWords  = "column_contains_any"
)

// ConditionSpec is the serialized form of a Condition.
type ConditionSpec struct {
	Type     string   `json:"type" yaml:"type"`
	Column   string   `json:"column,omitempty" yaml:"column,omitempty"`
	Column2  string   `json:"column2,omitempty" yaml:"column2,omitempty"`
	Operator string   `json:"operator,omitempty" yaml:"operator,omitempty"`
	Value    *string  `json:"value,omitempty" yaml:"value,omitempty"`
	Words    []string `json:"words,omitempty" yaml:"words,omitempty"`
}

// Condition decodes the spec. Incomplete specs return ErrIncompleteCondition.
func (s ConditionSpec) Condition() (Condition, error) {
	switch s.Type {
	case ConditionColumnColumn:
		if s.Column == "" || s.Column2 == "" {
			return nil, fmt.Errorf("%w: %s needs column and column2", ErrIncompleteCondition, s.Type)
		}
		return ColumnEqualsColumn{Left: s.Column, Right: s.Column2}, nil

	case ConditionColumnValue:
		if s.Column == "" || s.Value == nil || s.Operator == "" {
			return nil, fmt.Errorf("%w: %s needs column, operator and value", ErrIncompleteCondition, s.Type)
		}
		op := Comparison(s.Operator)
		if op != LessThan && op != GreaterThan {
			return nil, fmt.Errorf("%w: operator %q", ErrIncompleteCondition, s.Operator)
		}
		return ColumnCompare{Column: s.Column, Op: op, Literal: *s.Value}, nil

	case ConditionColumnWords:
		if s.Column == "" || len(s.Words) == 0 {
			return nil, fmt.Errorf("%w: %s needs column and words", ErrIncompleteCondition, s.Type)
		}
		return ColumnContainsAny{Column: s.Column, Words: s.Words}, nil

	default:
		return nil, fmt.Errorf("%w: unknown condition type %q", ErrIncompleteCondition, s.Type)
	}
}

// SpecOf is the inverse of ConditionSpec.Condition.
func SpecOf(c Condition) ConditionSpec {
	switch c := c.(type) {
	case ColumnEqualsColumn:
		return ConditionSpec{Type: ConditionColumnColumn, Column: c.Left, Column2: c.Right}
	case ColumnCompare:
		lit := c.Literal
		return ConditionSpec{Type: ConditionColumnValue, Column: c.Column, Operator: string(c.Op), Value: &lit}
	case ColumnContainsAny:
		return ConditionSpec{Type: ConditionColumnWords, Column: c.Column, Words: c.Words}
	}
	return ConditionSpec{}
}

// Combinator joins condition masks.
type Combinator string

const (
	CombineAnd Combinator = "AND"
	CombineOr  Combinator = "OR"
)

// ParseCombinator accepts AND/OR in any case plus the "E (AND)" / "Ou (OR)" labels.
// Empty input defaults to AND.
func ParseCombinator(s string) (Combinator, bool) {
	u := strings.ToUpper(strings.TrimSpace(s))
	switch {
	case u == "", u == "AND", u == "E", strings.Contains(u, "(AND)"):
		return CombineAnd, true
	case u == "OR", u == "OU", strings.Contains(u, "(OR)"):
		return CombineOr, true
	}
	return Combinator(s), false
}
