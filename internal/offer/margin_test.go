package offer

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestApplySafetyMargin(t *testing.T) {
	tests := []struct {
		name   string
		margin *float64
		sm     *domain.SafetyMargin
		want   float64
	}{
		{"missing margin", nil, nil, 0},
		{"missing margin with haircut", nil, &domain.SafetyMargin{Mode: domain.SafetyFixed, Value: 10}, 0},
		{"disabled", domain.Float(250), nil, 250},
		{"percent", domain.Float(200), &domain.SafetyMargin{Mode: domain.SafetyPercent, Value: 10}, 180},
		{"fixed", domain.Float(200), &domain.SafetyMargin{Mode: domain.SafetyFixed, Value: 50}, 150},
		{"fixed clipped at zero", domain.Float(30), &domain.SafetyMargin{Mode: domain.SafetyFixed, Value: 50}, 0},
		{"unknown mode", domain.Float(200), &domain.SafetyMargin{Mode: "other", Value: 50}, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ApplySafetyMargin(tt.margin, tt.sm), 1e-9)
		})
	}
}

func TestRound(t *testing.T) {
	assert.Equal(t, 1800.0, Round(1800.004))
	assert.Equal(t, 12.34, Round(12.345))
	assert.Equal(t, 12.36, Round(12.355))
	assert.Equal(t, 0.0, Round(0))
	assert.Equal(t, 1.01, Round(1.015))
	assert.Equal(t, 0.57, Round(0.575))
	assert.Equal(t, 2.68, Round(2.675))
	assert.Equal(t, 0.12, Round(0.125))
}

func TestSafetyMarginBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("percent haircut never increases the margin", prop.ForAll(
		func(m, v float64) bool {
			out := ApplySafetyMargin(&m, &domain.SafetyMargin{Mode: domain.SafetyPercent, Value: domain.LenientFloat(v)})
			return out <= m && out >= 0
		},
		gen.Float64Range(0, 1e6),
		gen.Float64Range(0, 100),
	))

	properties.Property("fixed haircut stays within [0, margin]", prop.ForAll(
		func(m, v float64) bool {
			out := ApplySafetyMargin(&m, &domain.SafetyMargin{Mode: domain.SafetyFixed, Value: domain.LenientFloat(v)})
			return out >= 0 && out <= m
		},
		gen.Float64Range(0, 1e6),
		gen.Float64Range(0, 1e6),
	))

	properties.TestingRun(t)
}
