package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Cutoff expressions evaluated per finalized row.
const (
	CommissionBandExpr = `total_commission >= commission_min && total_commission <= commission_max`
	MarginAboveExpr    = `has_loan_margin && loan_margin > margin_cutoff`
	MarginAtMostExpr   = `has_loan_margin && loan_margin <= margin_cutoff`
)

// CutoffPolicy holds the compiled commission band and loan-margin cutoff of one run.
type CutoffPolicy struct {
	commission cel.Program
	margin     cel.Program
	marginExpr string
	params     map[string]any
}

// NewCutoffPolicy compiles the cutoffs for params. New-credit campaigns keep
// rows above the margin cutoff; every other campaign keeps rows at or below it.
func NewCutoffPolicy(params domain.RunParameters) (*CutoffPolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("total_commission", cel.DoubleType),
		cel.Variable("has_loan_margin", cel.BoolType),
		cel.Variable("loan_margin", cel.DoubleType),
		cel.Variable("commission_min", cel.DoubleType),
		cel.Variable("commission_max", cel.DoubleType),
		cel.Variable("margin_cutoff", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	marginExpr := MarginAtMostExpr
	if params.Campaign == domain.CampaignNew {
		marginExpr = MarginAboveExpr
	}

	commission, err := compile(env, CommissionBandExpr)
	if err != nil {
		return nil, err
	}
	margin, err := compile(env, marginExpr)
	if err != nil {
		return nil, err
	}

	return &CutoffPolicy{
		commission: commission,
		margin:     margin,
		marginExpr: marginExpr,
		params: map[string]any{
			"commission_min": params.CommissionMin,
			"commission_max": params.CommissionMax,
			"margin_cutoff":  params.LoanMarginCutoff,
		},
	}, nil
}

// MarginExpr returns the loan-margin expression in use.
func (p *CutoffPolicy) MarginExpr() string { return p.marginExpr }

// KeepCommission reports whether the record's total commission is within the band.
func (p *CutoffPolicy) KeepCommission(r *domain.Record) (bool, error) {
	return p.eval(p.commission, r)
}

// KeepMargin reports whether the record passes the loan-margin cutoff.
// Records without a loan margin never pass.
func (p *CutoffPolicy) KeepMargin(r *domain.Record) (bool, error) {
	return p.eval(p.margin, r)
}

func (p *CutoffPolicy) eval(prg cel.Program, r *domain.Record) (bool, error) {
	activation := make(map[string]any, len(p.params)+3)
	for k, v := range p.params {
		activation[k] = v
	}
	activation["total_commission"] = r.TotalCommission()
	activation["has_loan_margin"] = r.LoanAvailable != nil
	activation["loan_margin"] = 0.0
	if r.LoanAvailable != nil {
		activation["loan_margin"] = *r.LoanAvailable
	}

	out, _, err := prg.Eval(activation)
	if err != nil {
		return false, fmt.Errorf("evaluation error: %w", err)
	}
	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("cutoff returned %v, want bool", out.Type())
	}
	return bool(b), nil
}

func compile(env *cel.Env, expr string) (cel.Program, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile cutoff %q: %w", expr, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("cutoff %q must return bool, got %s", expr, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for cutoff %q: %w", expr, err)
	}
	return prg, nil
}
