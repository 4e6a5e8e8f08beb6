// Package offer computes per-product credit offers and holds the
// agreement-specific strategies that wrap them.
package offer

import (
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ApplySafetyMargin returns the margin left after the configured haircut.
// A missing margin counts as 0. A nil or unrecognized safety margin leaves it unchanged.
func ApplySafetyMargin(margin *float64, sm *domain.SafetyMargin) float64 {
	if margin == nil {
		return 0
	}
	m := *margin
	if sm == nil {
		return m
	}
	v := float64(sm.Value)
	switch sm.Mode {
	case domain.SafetyPercent:
		return m * (1 - v/100)
	case domain.SafetyFixed:
		return max(m-v, 0)
	}
	return m
}

// Round rounds to two decimals, half to even, on the scaled binary value:
// 1.015 is stored below the midpoint and rounds to 1.01.
func Round(v float64) float64 {
	return decimal.NewFromFloat(v * 100).RoundBank(0).Div(hundred).InexactFloat64()
}

var hundred = decimal.NewFromInt(100)
