package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/offer"
)

func newTestPipeline() *Pipeline {
	p := New()
	p.Now = fixedNow
	return p
}

var leadColumns = []string{
	domain.ColName, domain.ColTaxID, domain.ColEmployeeID, domain.ColBirthDate,
	domain.ColLoanAvailable, domain.ColBenefitTotal, domain.ColBenefitAvailable,
	domain.ColCardTotal, domain.ColCardAvailable, domain.ColBond, domain.ColWorkplace,
}

func TestRunLoanScenario(t *testing.T) {
	table := buildTable(t, leadColumns,
		[]string{"ana", "111", "M1", "01/01/1980", "100", "", "", "", "", "EFETIVO", "SAUDE"},
	)
	params := domain.RunParameters{CommissionMax: 100000, Campaign: domain.CampaignNew, LoanMarginCutoff: 20, MaxAge: 72}
	configs := []domain.BankConfig{{Bank: "318", Coefficient: 0.9, CommissionPercent: 5, Term: 96}}

	res := newTestPipeline().Run(context.Background(), table, params, configs)
	require.Equal(t, domain.StatusOK, res.Status, res.Warnings)
	require.Len(t, res.Rows, 1)

	o := res.Rows[0].Offers[domain.ProductLoan]
	assert.Equal(t, 90.0, o.Amount)
	assert.Equal(t, 100.0, o.Installment)
	assert.Equal(t, 4.5, o.Commission)
	assert.Equal(t, "Ana", res.Rows[0].Name)
	assert.Equal(t, []domain.Stat{{Bank: "318", Product: domain.ProductLoan, Affected: 1}}, res.Stats)
	assert.Equal(t, domain.OutputHeader(), res.Columns)
	assert.NotEmpty(t, res.RunID)
}

func TestRunBenefitBelowMinimumMargin(t *testing.T) {
	table := buildTable(t, leadColumns,
		[]string{"ana", "111", "M1", "", "10", "200", "200", "", "", "", ""},
	)
	params := domain.RunParameters{CommissionMax: 100000, Campaign: domain.CampaignBenefit, LoanMarginCutoff: 20}
	configs := []domain.BankConfig{{Bank: "318", Coefficient: 20, CommissionPercent: 5, MinMargin: 250}}

	res := newTestPipeline().Run(context.Background(), table, params, configs)
	assert.Equal(t, domain.StatusEmpty, res.Status)
	assert.Empty(t, res.Rows)
	assert.Equal(t, 0, res.Stats[0].Affected)
}

func TestRunFirstConfigurationWins(t *testing.T) {
	table := buildTable(t, leadColumns,
		[]string{"a", "1", "M1", "", "10", "", "", "", "500", "EFETIVO", ""},
		[]string{"b", "2", "M2", "", "10", "", "", "", "500", "TEMPORARIO", ""},
	)
	params := domain.RunParameters{CommissionMax: 100000, Campaign: domain.CampaignCard, LoanMarginCutoff: 20}
	configs := []domain.BankConfig{
		{
			Bank: "243", Coefficient: 10, CommissionPercent: 10,
			Conditions: []domain.ConditionSpec{{Type: domain.ConditionColumnWords, Column: domain.ColBond, Words: []string{"efetivo"}}},
		},
		{Bank: "955", Coefficient: 1, CommissionPercent: 10},
		{Bank: "6613", Coefficient: 100, CommissionPercent: 10},
	}

	res := newTestPipeline().Run(context.Background(), table, params, configs)
	require.Equal(t, domain.StatusOK, res.Status)

	banks := map[string]string{}
	for _, r := range res.Rows {
		o := r.Offers[domain.ProductCard]
		assert.True(t, o.Treated)
		banks[r.TaxID] = o.Bank
	}
	assert.Equal(t, map[string]string{"1": "243", "2": "955"}, banks)

	require.Len(t, res.Stats, 3)
	assert.Equal(t, 1, res.Stats[0].Affected)
	assert.Equal(t, 1, res.Stats[1].Affected)
	assert.Equal(t, 0, res.Stats[2].Affected)
}

func TestRunDropsAllZeroRows(t *testing.T) {
	table := buildTable(t, leadColumns,
		[]string{"a", "1", "M1", "", "10", "", "", "", "0", "", ""},
		[]string{"b", "2", "M2", "", "10", "", "", "", "100", "", ""},
	)
	params := domain.RunParameters{CommissionMax: 100000, Campaign: domain.CampaignCard, LoanMarginCutoff: 20}
	configs := []domain.BankConfig{{Bank: "243", Coefficient: 10, CommissionPercent: 10}}

	res := newTestPipeline().Run(context.Background(), table, params, configs)
	require.Equal(t, domain.StatusOK, res.Status)
	assert.Equal(t, []string{"2"}, taxIDs(res.Rows))
}

func TestRunGovSPUsedAllowance(t *testing.T) {
	table := buildTable(t, leadColumns,
		[]string{"a", "1", "M1", "", "10", "300", "100", "", "", "", ""},
		[]string{"b", "2", "M2", "", "10", "100", "100", "", "", "", ""},
	)
	params := domain.RunParameters{CommissionMax: 100000, Campaign: domain.CampaignBenefit, Convenio: offer.AgreementGovSP, LoanMarginCutoff: 20}
	configs := []domain.BankConfig{{Bank: "318", Coefficient: 20, CommissionPercent: 5}}

	res := newTestPipeline().Run(context.Background(), table, params, configs)
	require.Equal(t, domain.StatusOK, res.Status)
	assert.Equal(t, []string{"2"}, taxIDs(res.Rows), "used allowance is zeroed, then dropped as a zero offer")
	assert.Equal(t, 2, res.Stats[0].Affected)
}

func TestRunGlobalUsedAllowancePass(t *testing.T) {
	// Card margin consumed on M1; a generic card configuration would treat it,
	// the global pass still zeroes it.
	table := buildTable(t, leadColumns,
		[]string{"a", "1", "M1", "", "10", "", "", "300", "100", "", ""},
		[]string{"b", "2", "M2", "", "10", "", "", "100", "100", "", ""},
	)
	params := domain.RunParameters{CommissionMax: 100000, Campaign: domain.CampaignBenefitCard, Convenio: "GOVSP", LoanMarginCutoff: 20}

	p := newTestPipeline()
	p.Registry = offer.NewRegistry()
	p.Registry.Register("govsp", domain.ProductCard, offer.ProductCalculator{Product: domain.ProductCard})

	res := p.Run(context.Background(), table, params, []domain.BankConfig{{Product: domain.ProductCard, Bank: "6613", Coefficient: 10}})
	require.Equal(t, domain.StatusOK, res.Status)
	assert.Equal(t, []string{"2"}, taxIDs(res.Rows))
}

func TestRunRollsBackInvalidConfiguration(t *testing.T) {
	table := buildTable(t, leadColumns,
		[]string{"a", "1", "M1", "", "10", "", "", "", "100", "", ""},
	)
	params := domain.RunParameters{CommissionMax: 100000, Campaign: domain.CampaignCard, LoanMarginCutoff: 20}
	configs := []domain.BankConfig{
		{Bank: "243", Coefficient: -1},
		{Bank: "955", Coefficient: 2, CommissionPercent: 10},
	}

	res := newTestPipeline().Run(context.Background(), table, params, configs)
	require.Equal(t, domain.StatusOK, res.Status)
	require.Len(t, res.Stats, 1)
	assert.Equal(t, "955", res.Stats[0].Bank)
	assert.Equal(t, "955", res.Rows[0].Offers[domain.ProductCard].Bank)

	var rolledBack bool
	for _, w := range res.Warnings {
		if w.Config == 1 && w.Stage == stageConfig {
			rolledBack = true
		}
	}
	assert.True(t, rolledBack)
}

type panickingCalculator struct{}

func (panickingCalculator) Apply(*domain.Table, domain.BankConfig) (offer.Outcome, error) {
	panic("boom")
}

func TestRunRecoversConfigurationPanic(t *testing.T) {
	table := buildTable(t, leadColumns,
		[]string{"a", "1", "M1", "", "10", "", "", "", "100", "", ""},
	)
	p := newTestPipeline()
	p.Registry.Register("crash", domain.ProductLoan, panickingCalculator{})

	res := p.Run(context.Background(), table,
		domain.RunParameters{CommissionMax: 100000, Campaign: domain.CampaignBenefitCard, Convenio: "crash", LoanMarginCutoff: 20},
		[]domain.BankConfig{
			{Product: domain.ProductLoan, Bank: "33", Coefficient: 1},
			{Product: domain.ProductCard, Bank: "33", Coefficient: 1},
		},
	)
	require.Equal(t, domain.StatusOK, res.Status)
	require.Len(t, res.Stats, 1)
	assert.Equal(t, domain.ProductCard, res.Stats[0].Product)
	assert.False(t, res.Rows[0].Offers[domain.ProductLoan].Treated)
}

func TestRunMonotonicTreatedFlags(t *testing.T) {
	rows := make([][]string, 20)
	for i := range rows {
		rows[i] = []string{"x", fmt.Sprint(i), fmt.Sprint("M", i), "", "10", "", "", "", fmt.Sprint(i * 10), "", ""}
	}
	table := buildTable(t, leadColumns, rows...)
	params := domain.RunParameters{CommissionMax: 100000, Campaign: domain.CampaignCard, LoanMarginCutoff: 20}

	configs := make([]domain.BankConfig, 0, 4)
	for _, cut := range []string{"150", "100", "50", "0"} {
		configs = append(configs, domain.BankConfig{
			Bank: "33", Coefficient: 1,
			Conditions: []domain.ConditionSpec{{Type: domain.ConditionColumnValue, Column: domain.ColCardAvailable, Operator: ">", Value: strp(cut)}},
		})
	}

	res := newTestPipeline().Run(context.Background(), table, params, configs)
	require.Equal(t, domain.StatusOK, res.Status)

	total := 0
	for _, s := range res.Stats {
		total += s.Affected
	}
	assert.Equal(t, len(res.Rows), total, "each customer is treated by exactly one configuration")
	assert.Equal(t, 19, total)
}

func TestRunStructuralOutcomes(t *testing.T) {
	p := newTestPipeline()

	res := p.Run(context.Background(), nil, domain.RunParameters{}, nil)
	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Empty(t, res.Stats)

	res = p.Run(context.Background(), domain.NewTable(leadColumns), domain.RunParameters{}, nil)
	assert.Equal(t, domain.StatusEmpty, res.Status)

	excluded := buildTable(t, leadColumns, []string{"a", "1", "M1", "", "10", "", "", "", "100", "TEMP", ""})
	res = p.Run(context.Background(), excluded, domain.RunParameters{ExcludeBonds: []string{"TEMP"}}, nil)
	assert.Equal(t, domain.StatusEmpty, res.Status)
}

func TestRunCompletesAfterCancellation(t *testing.T) {
	table := buildTable(t, leadColumns, []string{"a", "1", "M1", "", "10", "", "", "", "100", "", ""})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	params := domain.RunParameters{CommissionMax: 100000, Campaign: domain.CampaignCard, LoanMarginCutoff: 20}
	res := newTestPipeline().Run(ctx, table, params, []domain.BankConfig{{Bank: "33", Coefficient: 1}, {Bank: "318", Coefficient: 2}})
	assert.Equal(t, domain.StatusOK, res.Status)
	require.Len(t, res.Rows, 1)
	assert.Len(t, res.Stats, 2)
}
