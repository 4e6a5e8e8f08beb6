package rules

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Mask is a per-row boolean selection aligned with Table.Records.
type Mask []bool

// NewMask returns a mask of n rows all set to v.
func NewMask(n int, v bool) Mask {
	m := make(Mask, n)
	if v {
		for i := range m {
			m[i] = true
		}
	}
	return m
}

// And intersects o into m.
func (m Mask) And(o Mask) Mask {
	for i := range m {
		m[i] = m[i] && o[i]
	}
	return m
}

// Or unions o into m.
func (m Mask) Or(o Mask) Mask {
	for i := range m {
		m[i] = m[i] || o[i]
	}
	return m
}

// Count returns the number of selected rows.
func (m Mask) Count() int {
	n := 0
	for _, v := range m {
		if v {
			n++
		}
	}
	return n
}

// Untreated selects the rows not yet treated for p.
func Untreated(table *domain.Table, p domain.Product) Mask {
	m := make(Mask, table.Len())
	for i, r := range table.Records {
		m[i] = !r.Offers[p].Treated
	}
	return m
}

// Eligibility computes NOT treated(p) AND combine(conditions).
// Broken conditions contribute an all-false mask and a warning. An unknown
// combinator selects nothing.
func Eligibility(table *domain.Table, specs []domain.ConditionSpec, combinator string, p domain.Product) (Mask, []error) {
	base := Untreated(table, p)
	if len(specs) == 0 {
		return base, nil
	}

	comb, ok := domain.ParseCombinator(combinator)
	if !ok {
		return NewMask(table.Len(), false), []error{fmt.Errorf("unknown logical operator %q", combinator)}
	}

	var warns []error
	masks := make([]Mask, 0, len(specs))
	for i, spec := range specs {
		cond, err := spec.Condition()
		if err != nil {
			warns = append(warns, fmt.Errorf("condition %d skipped: %w", i+1, err))
			masks = append(masks, NewMask(table.Len(), false))
			continue
		}
		m, err := Evaluate(table, cond)
		if err != nil {
			warns = append(warns, fmt.Errorf("condition %d skipped: %w", i+1, err))
		}
		masks = append(masks, m)
	}

	var combined Mask
	switch comb {
	case domain.CombineAnd:
		combined = NewMask(table.Len(), true)
		for _, m := range masks {
			combined.And(m)
		}
	case domain.CombineOr:
		combined = NewMask(table.Len(), false)
		for _, m := range masks {
			combined.Or(m)
		}
	}
	return base.And(combined), warns
}
