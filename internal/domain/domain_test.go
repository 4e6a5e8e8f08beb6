package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestCellUnmarshal(t *testing.T) {
	var row []Cell
	require.NoError(t, json.Unmarshal([]byte(`["ana", 1500.5, 42, null, true]`), &row))
	assert.Equal(t, []Cell{"ana", "1500.5", "42", "", "true"}, row)
}

func TestRawTableStrings(t *testing.T) {
	raw := RawTable{Columns: []string{"a", "b"}, Rows: [][]Cell{{"1", "x"}, {"2"}}}
	assert.Equal(t, [][]string{{"1", "x"}, {"2"}}, raw.Strings())
}

func TestNewRunResponseNeverNull(t *testing.T) {
	resp := NewRunResponse(&RunResult{RunID: "r1", Status: StatusEmpty})
	b, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, []any{}, decoded["rows"])
	assert.Equal(t, []any{}, decoded["stats"])
	assert.Equal(t, []any{}, decoded["warnings"])
	assert.Equal(t, "empty", decoded["status"])
}

func TestAuditQueryNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   AuditQuery
		want AuditQuery
	}{
		{"defaults", AuditQuery{}, AuditQuery{Limit: DefaultAuditLimit}},
		{"all wildcards", AuditQuery{Convenio: "Todos", Product: "all", Limit: 10}, AuditQuery{Limit: 10}},
		{"product label", AuditQuery{Convenio: "govsp", Product: "Cartão"}, AuditQuery{Convenio: "govsp", Product: "card", Limit: DefaultAuditLimit}},
		{"unknown product kept", AuditQuery{Product: "mortgage"}, AuditQuery{Product: "mortgage", Limit: DefaultAuditLimit}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize())
		})
	}
}

func TestLenientFloat(t *testing.T) {
	var s struct {
		A LenientFloat `json:"a"`
		B LenientFloat `json:"b"`
		C LenientFloat `json:"c"`
		D LenientFloat `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 5, "b": "2,5", "c": "abc", "d": [1]}`), &s))
	assert.Equal(t, LenientFloat(5), s.A)
	assert.Equal(t, LenientFloat(2.5), s.B)
	assert.Zero(t, s.C)
	assert.Zero(t, s.D)
}

func TestBankConfigFromYAML(t *testing.T) {
	src := `
product: cartão
bank: "243"
coefficient: 22.5
commissionPercent: 10
term: 96
safetyMargin:
  mode: Percentual (%)
  value: "5"
conditions:
  - type: column_compare
    column: MG_Cartao_Disponivel
    operator: ">"
    value: "100"
`
	var cfg BankConfig
	require.NoError(t, yaml.Unmarshal([]byte(src), &cfg))
	assert.Equal(t, ProductCard, cfg.Product)
	assert.Equal(t, "243", cfg.Bank)
	require.NotNil(t, cfg.SafetyMargin)
	assert.Equal(t, SafetyPercent, cfg.SafetyMargin.Mode)
	assert.Equal(t, LenientFloat(5), cfg.SafetyMargin.Value)
	require.Len(t, cfg.Conditions, 1)
	assert.Equal(t, "100", *cfg.Conditions[0].Value)
}

func TestCampaignTypeRejectsUnknown(t *testing.T) {
	var p RunParameters
	err := json.Unmarshal([]byte(`{"campaign": "mortgage"}`), &p)
	var unknown *UnknownValueError
	assert.ErrorAs(t, err, &unknown)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"KESTREL_PORT":           "9090",
		"KESTREL_SQLITE_PATH":    "/tmp/k.db",
		"KESTREL_DEBUG":          "true",
		"KESTREL_ASYNC_WORKER":   "1",
		"KESTREL_TENANTS":        "a, b,,c",
		"KESTREL_MAX_BODY_BYTES": "1024",
		"KESTREL_LOG_FORMAT":     "text",
	}
	cfg := DefaultConfig()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/tmp/k.db", cfg.Repository.SQLitePath)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.True(t, cfg.Worker.Enabled)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Worker.TenantIDs)
	assert.Equal(t, int64(1024), cfg.Server.MaxBodyBytes)
}

func TestProConfig(t *testing.T) {
	cfg := ProConfig()
	assert.Equal(t, TierPro, cfg.Tier)
	assert.Equal(t, "postgres", cfg.Repository.Driver)
	assert.Equal(t, "redis", cfg.Cache.Type)
	assert.Equal(t, "nats", cfg.EventBus.Type)
	assert.True(t, cfg.Worker.Enabled)
}

func TestParseNumber(t *testing.T) {
	for _, in := range []string{"", "  ", "abc", "NaN", "nan", "Inf", "-Inf", "Infinity", "+infinity"} {
		assert.Nil(t, ParseNumber(in), "input %q", in)
	}
	v := ParseNumber(" 350.5 ")
	require.NotNil(t, v)
	assert.Equal(t, 350.5, *v)
}

func TestOutputRowNonFiniteMargin(t *testing.T) {
	r := &Record{}
	r.SetValue(ColBenefitTotal, "NaN")
	r.SetValue(ColBenefitAvailable, "Inf")
	assert.Nil(t, r.BenefitTotal)
	assert.Nil(t, r.BenefitAvailable)

	_, err := json.Marshal(r.OutputRow())
	require.NoError(t, err)
}

func TestRunParametersDefaults(t *testing.T) {
	t.Run("JSON", func(t *testing.T) {
		var p RunParameters
		require.NoError(t, json.Unmarshal([]byte(`{"campaign":"benefit"}`), &p))
		assert.Equal(t, DefaultRunParameters(CampaignBenefit), p)
		assert.Equal(t, 20.0, p.LoanMarginCutoff)
		assert.Equal(t, 74, p.MaxAge)
		assert.Equal(t, 100000.0, p.CommissionMax)
	})

	t.Run("ExplicitZeroWins", func(t *testing.T) {
		var p RunParameters
		require.NoError(t, json.Unmarshal([]byte(`{"campaign":"novo","maxAge":0,"loanMarginCutoff":0}`), &p))
		assert.Equal(t, CampaignNew, p.Campaign)
		assert.Equal(t, 0, p.MaxAge)
		assert.Equal(t, 0.0, p.LoanMarginCutoff)
		assert.Equal(t, 100000.0, p.CommissionMax)
	})

	t.Run("YAML", func(t *testing.T) {
		var p RunParameters
		require.NoError(t, yaml.Unmarshal([]byte("campaign: novo\nteam: csapp\n"), &p))
		assert.Equal(t, 72, p.MaxAge)
		assert.Equal(t, 20.0, p.LoanMarginCutoff)
		assert.Equal(t, "csapp", p.Team)
	})

	t.Run("RequestWithoutParams", func(t *testing.T) {
		req := NewRunRequest()
		require.NoError(t, json.Unmarshal([]byte(`{"table":{"columns":["CPF"]}}`), &req))
		assert.Equal(t, 100000.0, req.Params.CommissionMax)
		assert.Equal(t, 20.0, req.Params.LoanMarginCutoff)
	})

	t.Run("UnknownCampaign", func(t *testing.T) {
		var p RunParameters
		assert.Error(t, json.Unmarshal([]byte(`{"campaign":"mortgage"}`), &p))
	})
}

func TestBankConfigDefaultMinMargin(t *testing.T) {
	var cfgs []BankConfig
	require.NoError(t, json.Unmarshal([]byte(`[{"bank":"243"},{"bank":"318","minMargin":0}]`), &cfgs))
	require.Len(t, cfgs, 2)
	assert.Equal(t, DefaultMinMargin, cfgs[0].MinMargin)
	assert.Equal(t, 0.0, cfgs[1].MinMargin)

	var fromYAML BankConfig
	require.NoError(t, yaml.Unmarshal([]byte("bank: \"243\"\n"), &fromYAML))
	assert.Equal(t, DefaultMinMargin, fromYAML.MinMargin)

	raw, err := json.Marshal(cfgs[1])
	require.NoError(t, err)
	var back BankConfig
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, 0.0, back.MinMargin)
}

func TestReportStatus(t *testing.T) {
	for in, want := range map[string]ReportStatus{
		"open":        ReportOpen,
		"Aberto":      ReportOpen,
		"in_review":   ReportInReview,
		"Em Análise":  ReportInReview,
		" RESOLVIDO ": ReportResolved,
	} {
		got, ok := ParseReportStatus(in)
		assert.True(t, ok, "input %q", in)
		assert.Equal(t, want, got, "input %q", in)
	}

	_, ok := ParseReportStatus("closed")
	assert.False(t, ok)

	var body struct {
		Status ReportStatus `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"status":"Resolvido"}`), &body))
	assert.Equal(t, ReportResolved, body.Status)
	assert.Error(t, json.Unmarshal([]byte(`{"status":"closed"}`), &body))

	assert.Equal(t, "Em Análise", ReportInReview.Label())
	assert.Equal(t, "Aberto", ReportOpen.Label())
	assert.Equal(t, 200, ReportQuery{}.Normalize().Limit)
}
