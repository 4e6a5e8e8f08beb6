package offer

import (
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// Outcome summarizes what one configuration did to the table.
type Outcome struct {
	// Treated counts rows newly treated by this configuration.
	Treated int
	// Dropped counts rows removed from the table by a pre-filter.
	Dropped int
	// Zeroed counts treated rows whose offer was reset by an override.
	Zeroed int
	// Warnings are non-fatal problems, e.g. skipped conditions.
	Warnings []error
}

// Calculator applies one configuration to the table in place.
type Calculator interface {
	Apply(table *domain.Table, cfg domain.BankConfig) (Outcome, error)
}

// ProductCalculator is the generic calculator of one product.
type ProductCalculator struct {
	Product domain.Product
}

// Apply selects the eligible rows and writes their offers.
//
// Loan: installment is the adjusted margin. Benefit and card: rows need
// available >= MinMargin and installment is the offer divided by the
// installment coefficient.
func (c ProductCalculator) Apply(table *domain.Table, cfg domain.BankConfig) (Outcome, error) {
	var out Outcome
	if err := cfg.Validate(); err != nil {
		return out, err
	}

	mask, warns := rules.Eligibility(table, cfg.Conditions, cfg.Combinator, c.Product)
	out.Warnings = warns

	instCoef := cfg.InstallmentCoefficient
	if instCoef == 0 {
		instCoef = 1
	}

	for i, r := range table.Records {
		if !mask[i] {
			continue
		}
		avail := r.Available(c.Product)
		if c.Product != domain.ProductLoan && (avail == nil || *avail < cfg.MinMargin) {
			continue
		}

		adjusted := ApplySafetyMargin(avail, cfg.SafetyMargin)
		o := r.Offer(c.Product)
		o.Amount = Round(adjusted * cfg.Coefficient)
		if c.Product == domain.ProductLoan {
			o.Installment = Round(adjusted)
		} else {
			o.Installment = Round(o.Amount / instCoef)
		}
		o.Commission = Round(o.Amount * cfg.CommissionPercent / 100)
		o.Bank = cfg.Bank
		o.Term = cfg.Term
		o.Treated = true
		out.Treated++
	}
	return out, nil
}
