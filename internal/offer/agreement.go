package offer

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Agreement codes with dedicated rules.
const (
	AgreementGovSP = "govsp"
	AgreementGovMT = "govmt"
)

type strategyKey struct {
	agreement string
	product   domain.Product
}

// Registry resolves the calculator for an (agreement, product) pair,
// falling back to the generic product calculator.
type Registry struct {
	strategies map[strategyKey]Calculator
	// zeroUsed lists agreements whose used allowances are zeroed after all configurations.
	zeroUsed map[string]bool
}

// NewRegistry returns a registry with the built-in agreement strategies.
func NewRegistry() *Registry {
	r := &Registry{
		strategies: make(map[strategyKey]Calculator),
		zeroUsed:   make(map[string]bool),
	}
	r.Register(AgreementGovSP, domain.ProductLoan, NonNegativeMargin{Column: domain.ColLoanAvailable})
	r.Register(AgreementGovSP, domain.ProductBenefit, ZeroUsedAllowance{Product: domain.ProductBenefit})
	r.Register(AgreementGovSP, domain.ProductCard, ZeroUsedAllowance{Product: domain.ProductCard})
	r.Register(AgreementGovMT, domain.ProductLoan, NonNegativeMargin{Column: domain.ColCompulsoryAvailable})
	r.zeroUsed[AgreementGovSP] = true
	return r
}

// Register installs a strategy for an agreement and product.
func (r *Registry) Register(agreement string, p domain.Product, c Calculator) {
	r.strategies[strategyKey{strings.ToLower(agreement), p}] = c
}

// Lookup returns the strategy for the pair or the generic calculator.
func (r *Registry) Lookup(agreement string, p domain.Product) Calculator {
	if c, ok := r.strategies[strategyKey{strings.ToLower(agreement), p}]; ok {
		return c
	}
	return ProductCalculator{Product: p}
}

// ZeroesUsedAllowance reports whether the agreement gets the global used-allowance pass.
func (r *Registry) ZeroesUsedAllowance(agreement string) bool {
	return r.zeroUsed[strings.ToLower(agreement)]
}

// NonNegativeMargin drops rows whose Column is missing or negative, then
// runs the generic loan calculator. When Column is absent from the table
// the pre-filter is skipped with a warning.
type NonNegativeMargin struct {
	Column string
}

func (s NonNegativeMargin) Apply(table *domain.Table, cfg domain.BankConfig) (Outcome, error) {
	var out Outcome
	if err := cfg.Validate(); err != nil {
		return out, err
	}
	if table.HasColumn(s.Column) {
		out.Dropped = table.Filter(func(r *domain.Record) bool {
			v, _ := r.Value(s.Column)
			n := domain.ParseNumber(v)
			return n != nil && *n >= 0
		})
	} else {
		out.Warnings = append(out.Warnings, fmt.Errorf("%w: %q, margin pre-filter skipped", domain.ErrUnknownColumn, s.Column))
	}

	calc, err := ProductCalculator{Product: domain.ProductLoan}.Apply(table, cfg)
	calc.Dropped = out.Dropped
	calc.Warnings = append(out.Warnings, calc.Warnings...)
	return calc, err
}

// ZeroUsedAllowance runs the generic calculator and zeroes the offer of
// treated rows that already consumed part of the product's margin.
type ZeroUsedAllowance struct {
	Product domain.Product
}

func (s ZeroUsedAllowance) Apply(table *domain.Table, cfg domain.BankConfig) (Outcome, error) {
	out, err := ProductCalculator{Product: s.Product}.Apply(table, cfg)
	if err != nil {
		return out, err
	}
	for _, r := range table.Records {
		o := r.Offer(s.Product)
		if o.Treated && r.UsedAllowance(s.Product) {
			zeroOffer(o)
			out.Zeroed++
		}
	}
	return out, nil
}

// UsedAllowanceSnapshot holds, per product, the employee ids that had
// already used part of their margin before any configuration ran.
type UsedAllowanceSnapshot map[domain.Product]map[string]struct{}

// SnapshotUsedAllowance records the employee ids with total > available
// for benefit and card.
func SnapshotUsedAllowance(table *domain.Table) UsedAllowanceSnapshot {
	snap := make(UsedAllowanceSnapshot, 2)
	for _, p := range []domain.Product{domain.ProductBenefit, domain.ProductCard} {
		ids := make(map[string]struct{})
		for _, r := range table.Records {
			if r.EmployeeID != "" && r.UsedAllowance(p) {
				ids[r.EmployeeID] = struct{}{}
			}
		}
		snap[p] = ids
	}
	return snap
}

// Apply zeroes amount, commission and installment for every snapshotted
// employee id, treated or not, and returns how many positive offers were
// zeroed per product. Treated flags are left alone.
func (s UsedAllowanceSnapshot) Apply(table *domain.Table) map[domain.Product]int {
	zeroed := make(map[domain.Product]int, len(s))
	for p, ids := range s {
		if len(ids) == 0 {
			slog.Debug("no employee ids marked for zeroing", "product", p)
			continue
		}
		for _, r := range table.Records {
			if _, ok := ids[r.EmployeeID]; !ok {
				continue
			}
			o := r.Offer(p)
			if o.Amount > 0 {
				zeroed[p]++
			}
			zeroOffer(o)
		}
	}
	return zeroed
}

func zeroOffer(o *domain.Offer) {
	o.Amount = 0
	o.Commission = 0
	o.Installment = 0
}
