package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// CampaignType selects which product family a run is aimed at.
type CampaignType string

const (
	CampaignNew         CampaignType = "new"
	CampaignBenefit     CampaignType = "benefit"
	CampaignCard        CampaignType = "card"
	CampaignBenefitCard CampaignType = "benefit_card"
)

// ParseCampaignType accepts the wire names and the operators' labels.
func ParseCampaignType(s string) (CampaignType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "new", "novo":
		return CampaignNew, true
	case "benefit", "beneficio", "benefício":
		return CampaignBenefit, true
	case "card", "cartao", "cartão":
		return CampaignCard, true
	case "benefit_card", "benefit&card", "beneficio & cartao", "benefício & cartão":
		return CampaignBenefitCard, true
	}
	return CampaignType(s), false
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *CampaignType) UnmarshalText(b []byte) error {
	v, ok := ParseCampaignType(string(b))
	if !ok {
		return &UnknownValueError{Field: "campaign type", Value: string(b)}
	}
	*c = v
	return nil
}

// ShortCode is the campaign code embedded in labels.
func (c CampaignType) ShortCode() string {
	switch c {
	case CampaignNew:
		return "novo"
	case CampaignBenefit:
		return "benef"
	case CampaignCard:
		return "cartao"
	case CampaignBenefitCard:
		return "benef&cartao"
	}
	return "campanha"
}

// ProductFor returns the product a configuration is recorded under.
// Single-product campaigns force their product; the mixed campaign keeps the configuration's.
func (c CampaignType) ProductFor(cfg BankConfig) Product {
	switch c {
	case CampaignNew:
		return ProductLoan
	case CampaignBenefit:
		return ProductBenefit
	case CampaignCard:
		return ProductCard
	}
	return cfg.Product
}

// DefaultMaxAge is the age ceiling used when the caller leaves it unset.
func (c CampaignType) DefaultMaxAge() int {
	if c == CampaignNew {
		return 72
	}
	return 74
}

// RunParameters are the global settings of one run.
type RunParameters struct {
	Campaign         CampaignType `json:"campaign" yaml:"campaign"`
	CommissionMin    float64      `json:"commissionMin" yaml:"commissionMin"`
	CommissionMax    float64      `json:"commissionMax" yaml:"commissionMax"`
	LoanMarginCutoff float64      `json:"loanMarginCutoff" yaml:"loanMarginCutoff"`
	MaxAge           int          `json:"maxAge" yaml:"maxAge"`

	ExcludeWorkplaces        []string `json:"excludeWorkplaces,omitempty" yaml:"excludeWorkplaces,omitempty"`
	ExcludeWorkplaceKeywords []string `json:"excludeWorkplaceKeywords,omitempty" yaml:"excludeWorkplaceKeywords,omitempty"`
	ExcludeBonds             []string `json:"excludeBonds,omitempty" yaml:"excludeBonds,omitempty"`
	ExcludeBondKeywords      []string `json:"excludeBondKeywords,omitempty" yaml:"excludeBondKeywords,omitempty"`

	Team          string  `json:"team,omitempty" yaml:"team,omitempty"`
	Convenio      string  `json:"convenio,omitempty" yaml:"convenio,omitempty"`
	ConvaiPercent float64 `json:"convaiPercent,omitempty" yaml:"convaiPercent,omitempty"`
}

// DefaultRunParameters mirrors the defaults offered to operators.
func DefaultRunParameters(c CampaignType) RunParameters {
	return RunParameters{
		Campaign:         c,
		CommissionMax:    100000,
		LoanMarginCutoff: 20,
		MaxAge:           c.DefaultMaxAge(),
		Team:             "outbound",
	}
}

// UnmarshalJSON decodes params on top of the campaign's defaults, so an
// omitted field keeps its default and an explicit zero stays zero.
func (p *RunParameters) UnmarshalJSON(data []byte) error {
	var head struct {
		Campaign CampaignType `json:"campaign"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	type plain RunParameters
	v := plain(DefaultRunParameters(head.Campaign))
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = RunParameters(v)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler with the same defaults as UnmarshalJSON.
func (p *RunParameters) UnmarshalYAML(node *yaml.Node) error {
	var head struct {
		Campaign CampaignType `yaml:"campaign"`
	}
	if err := node.Decode(&head); err != nil {
		return err
	}
	type plain RunParameters
	v := plain(DefaultRunParameters(head.Campaign))
	if err := node.Decode(&v); err != nil {
		return err
	}
	*p = RunParameters(v)
	return nil
}

// TeamOrDefault returns the team, or "outbound" when unset.
func (p RunParameters) TeamOrDefault() string {
	if p.Team == "" {
		return "outbound"
	}
	return p.Team
}

// ConvenioOrDefault returns the convenio, or "geral" when unset.
func (p RunParameters) ConvenioOrDefault() string {
	if p.Convenio == "" {
		return "geral"
	}
	return p.Convenio
}

// SafetyMode selects how the safety margin is applied.
type SafetyMode string

const (
	SafetyPercent SafetyMode = "percent"
	SafetyFixed   SafetyMode = "fixed"
)

// UnmarshalText accepts the wire names and the operators' labels.
// Unrecognized modes are kept as-is and behave as disabled.
func (m *SafetyMode) UnmarshalText(b []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(b)))
	switch {
	case s == "percent", strings.HasPrefix(s, "percentual"):
		*m = SafetyPercent
	case s == "fixed", strings.HasPrefix(s, "valor fixo"):
		*m = SafetyFixed
	default:
		*m = SafetyMode(s)
	}
	return nil
}

// SafetyMargin is an optional haircut on the available margin. A nil
// *SafetyMargin means disabled.
type SafetyMargin struct {
	Mode  SafetyMode   `json:"mode" yaml:"mode"`
	Value LenientFloat `json:"value" yaml:"value"`
}

// LenientFloat decodes numbers and numeric strings. Anything else decodes to 0.
type LenientFloat float64

// UnmarshalJSON implements json.Unmarshaler.
func (f *LenientFloat) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		*f = 0
		return nil
	}
	*f = lenient(v)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (f *LenientFloat) UnmarshalYAML(node *yaml.Node) error {
	*f = lenient(node.Value)
	return nil
}

func lenient(v any) LenientFloat {
	switch v := v.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		return LenientFloat(v)
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(v, ",", ".")), 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0
		}
		return LenientFloat(n)
	}
	return 0
}

// BankConfig is one bank/product setup, applied in list order.
type BankConfig struct {
	Product     Product         `json:"product" yaml:"product"`
	Conditions  []ConditionSpec `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Combinator  string          `json:"combinator,omitempty" yaml:"combinator,omitempty"`
	Bank        string          `json:"bank" yaml:"bank"`
	Coefficient float64         `json:"coefficient" yaml:"coefficient"`
	// InstallmentCoefficient is ignored for loans.
	InstallmentCoefficient float64       `json:"installmentCoefficient,omitempty" yaml:"installmentCoefficient,omitempty"`
	CommissionPercent      float64       `json:"commissionPercent" yaml:"commissionPercent"`
	Term                   int           `json:"term" yaml:"term"`
	MinMargin              float64       `json:"minMargin" yaml:"minMargin"`
	SafetyMargin           *SafetyMargin `json:"safetyMargin,omitempty" yaml:"safetyMargin,omitempty"`
}

// DefaultMinMargin is the benefit and card margin floor of a configuration
// that leaves minMargin unset.
const DefaultMinMargin = 30.0

// UnmarshalJSON applies DefaultMinMargin when minMargin is omitted.
func (c *BankConfig) UnmarshalJSON(data []byte) error {
	type plain BankConfig
	v := plain{MinMargin: DefaultMinMargin}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*c = BankConfig(v)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler with the same defaults as UnmarshalJSON.
func (c *BankConfig) UnmarshalYAML(node *yaml.Node) error {
	type plain BankConfig
	v := plain{MinMargin: DefaultMinMargin}
	if err := node.Decode(&v); err != nil {
		return err
	}
	*c = BankConfig(v)
	return nil
}

// Validate rejects non-finite or negative numeric fields.
func (c BankConfig) Validate() error {
	nums := []struct {
		name string
		v    float64
	}{
		{"coefficient", c.Coefficient},
		{"installmentCoefficient", c.InstallmentCoefficient},
		{"commissionPercent", c.CommissionPercent},
		{"minMargin", c.MinMargin},
	}
	for _, n := range nums {
		if math.IsNaN(n.v) || math.IsInf(n.v, 0) || n.v < 0 {
			return fmt.Errorf("%w: %s must be a non-negative number, got %v", ErrInvalidConfig, n.name, n.v)
		}
	}
	if c.Term < 0 {
		return fmt.Errorf("%w: term must not be negative", ErrInvalidConfig)
	}
	return nil
}
