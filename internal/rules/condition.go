// Package rules evaluates declarative eligibility conditions over a table
// and compiles the finalizer's cutoff policy into CEL programs.
package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Evaluate returns the rows of table matching cond.
// A condition that references a missing column yields an all-false mask
// together with an error wrapping domain.ErrUnknownColumn.
func Evaluate(table *domain.Table, cond domain.Condition) (Mask, error) {
	n := table.Len()
	for _, col := range cond.Columns() {
		if !table.HasColumn(col) {
			return NewMask(n, false), fmt.Errorf("%w: %q", domain.ErrUnknownColumn, col)
		}
	}

	switch c := cond.(type) {
	case domain.ColumnEqualsColumn:
		return evalEquals(table, c), nil
	case domain.ColumnCompare:
		return evalCompare(table, c), nil
	case domain.ColumnContainsAny:
		return evalContains(table, c), nil
	}
	return NewMask(n, false), fmt.Errorf("%w: unsupported condition %T", domain.ErrIncompleteCondition, cond)
}

// evalEquals matches numerically equal cells, falling back to raw text equality.
func evalEquals(table *domain.Table, c domain.ColumnEqualsColumn) Mask {
	m := NewMask(table.Len(), false)
	for i, r := range table.Records {
		left, _ := r.Value(c.Left)
		right, _ := r.Value(c.Right)
		ln, rn := domain.ParseNumber(left), domain.ParseNumber(right)
		if ln != nil && rn != nil && *ln == *rn {
			m[i] = true
			continue
		}
		m[i] = left == right
	}
	return m
}

// evalCompare picks numeric, date or text comparison from the literal and the column contents.
func evalCompare(table *domain.Table, c domain.ColumnCompare) Mask {
	m := NewMask(table.Len(), false)
	lit := strings.TrimSpace(c.Literal)

	if num := domain.ParseNumber(lit); num != nil {
		for i, r := range table.Records {
			v, _ := r.Value(c.Column)
			if cell := domain.ParseNumber(v); cell != nil {
				m[i] = compareOrdered(*cell, *num, c.Op)
			}
		}
		return m
	}

	if date, ok := ParseDate(lit); ok {
		cells := make([]time.Time, table.Len())
		parsed := make([]bool, table.Len())
		found := false
		for i, r := range table.Records {
			v, _ := r.Value(c.Column)
			cells[i], parsed[i] = ParseDate(v)
			found = found || parsed[i]
		}
		if found {
			for i := range cells {
				if !parsed[i] {
					continue
				}
				switch c.Op {
				case domain.LessThan:
					m[i] = cells[i].Before(date)
				case domain.GreaterThan:
					m[i] = cells[i].After(date)
				}
			}
			return m
		}
	}

	for i, r := range table.Records {
		v, ok := r.Value(c.Column)
		if !ok {
			continue
		}
		m[i] = compareOrdered(v, lit, c.Op)
	}
	return m
}

// evalContains matches rows whose cell contains any non-blank word, ignoring case.
func evalContains(table *domain.Table, c domain.ColumnContainsAny) Mask {
	m := NewMask(table.Len(), false)
	words := make([]string, 0, len(c.Words))
	for _, w := range c.Words {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, strings.ToLower(w))
		}
	}
	if len(words) == 0 {
		return m
	}
	for i, r := range table.Records {
		v, ok := r.Value(c.Column)
		if !ok {
			continue
		}
		v = strings.ToLower(v)
		for _, w := range words {
			if strings.Contains(v, w) {
				m[i] = true
				break
			}
		}
	}
	return m
}

func compareOrdered[T float64 | string](a, b T, op domain.Comparison) bool {
	switch op {
	case domain.LessThan:
		return a < b
	case domain.GreaterThan:
		return a > b
	}
	return false
}

// dateLayouts are tried in order; day-first wins for ambiguous dates.
var dateLayouts = []string{
	"2/1/2006",
	"2006-01-02",
	"2-1-2006",
	"2.1.2006",
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2-1-2006 15:04:05",
	"2006/1/2",
	"20060102",
}

// ParseDate parses a day-first date. Blank text does not parse.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	// Explicit dd/mm/yyyy retry on the leading token, for values carrying trailing noise.
	if head, _, ok := strings.Cut(s, " "); ok {
		if t, err := time.Parse("02/01/2006", head); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
