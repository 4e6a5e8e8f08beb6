package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func recordWith(loan *float64, commissions ...float64) *domain.Record {
	r := &domain.Record{LoanAvailable: loan}
	for i, c := range commissions {
		r.Offers[i].Commission = c
	}
	return r
}

func TestCutoffPolicyCommissionBand(t *testing.T) {
	policy, err := NewCutoffPolicy(domain.RunParameters{Campaign: domain.CampaignCard, CommissionMin: 50, CommissionMax: 500})
	require.NoError(t, err)

	tests := []struct {
		name string
		rec  *domain.Record
		want bool
	}{
		{"below floor", recordWith(nil, 10, 20), false},
		{"at floor", recordWith(nil, 25, 25), true},
		{"inside", recordWith(nil, 100, 100, 100), true},
		{"at ceiling", recordWith(nil, 500), true},
		{"above ceiling", recordWith(nil, 400, 200), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := policy.KeepCommission(tt.rec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("zero ceiling keeps only zero commission", func(t *testing.T) {
		closed, err := NewCutoffPolicy(domain.RunParameters{})
		require.NoError(t, err)
		got, err := closed.KeepCommission(recordWith(nil, 1))
		require.NoError(t, err)
		assert.False(t, got)
	})

	t.Run("default ceiling", func(t *testing.T) {
		def, err := NewCutoffPolicy(domain.DefaultRunParameters(domain.CampaignCard))
		require.NoError(t, err)
		got, err := def.KeepCommission(recordWith(nil, 99999))
		require.NoError(t, err)
		assert.True(t, got)
		got, err = def.KeepCommission(recordWith(nil, 100001))
		require.NoError(t, err)
		assert.False(t, got)
	})
}

func TestCutoffPolicyMargin(t *testing.T) {
	newCampaign, err := NewCutoffPolicy(domain.RunParameters{Campaign: domain.CampaignNew, LoanMarginCutoff: 20})
	require.NoError(t, err)
	cardCampaign, err := NewCutoffPolicy(domain.RunParameters{Campaign: domain.CampaignCard, LoanMarginCutoff: 20})
	require.NoError(t, err)

	assert.Equal(t, MarginAboveExpr, newCampaign.MarginExpr())
	assert.Equal(t, MarginAtMostExpr, cardCampaign.MarginExpr())

	tests := []struct {
		name    string
		margin  *float64
		wantNew bool
		wantOld bool
	}{
		{"above", domain.Float(21), true, false},
		{"equal", domain.Float(20), false, true},
		{"below", domain.Float(5), false, true},
		{"missing", nil, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := newCampaign.KeepMargin(recordWith(tt.margin))
			require.NoError(t, err)
			assert.Equal(t, tt.wantNew, got)

			got, err = cardCampaign.KeepMargin(recordWith(tt.margin))
			require.NoError(t, err)
			assert.Equal(t, tt.wantOld, got)
		})
	}
}
