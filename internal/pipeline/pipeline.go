// Package pipeline runs a campaign: preprocess the leads, apply every bank
// configuration in order, then finalize the campaign list.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/offer"
)

// ErrNoInput is returned when a run is started without a table.
var ErrNoInput = errors.New("no input table")

const stageConfig = "config"

var tracer = otel.Tracer("kestrel-pipeline")

// Pipeline holds the collaborators of a run. It keeps no per-run state and
// is safe for concurrent use.
type Pipeline struct {
	// Registry resolves agreement strategies.
	Registry *offer.Registry

	// Now returns the run date used for age limits and labels.
	Now func() time.Time
}

// New returns a pipeline with the built-in agreement strategies.
func New() *Pipeline {
	return &Pipeline{
		Registry: offer.NewRegistry(),
		Now:      time.Now,
	}
}

// Run processes table with params and configs. It never panics and never
// returns a nil result: failures are reported through Status and Warnings.
// A started run always completes; ctx only carries trace and log context.
func (p *Pipeline) Run(ctx context.Context, table *domain.Table, params domain.RunParameters, configs []domain.BankConfig) (result *domain.RunResult) {
	result = &domain.RunResult{
		RunID:   uuid.New().String(),
		Status:  domain.StatusOK,
		Columns: domain.OutputHeader(),
	}
	ctx, span := tracer.Start(ctx, "pipeline.Run",
		trace.WithAttributes(
			attribute.String("kestrel.run_id", result.RunID),
			attribute.String("kestrel.campaign", string(params.Campaign)),
			attribute.String("kestrel.convenio", params.Convenio),
			attribute.Int("kestrel.configs", len(configs)),
		),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("campaign run panicked",
				"run_id", result.RunID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			span.SetStatus(codes.Error, "panic")
			result.Status = domain.StatusFailed
			result.Rows = nil
			result.Stats = nil
			result.Warnings = append(result.Warnings, domain.Warning{Stage: "run", Message: fmt.Sprintf("unexpected failure: %v", r)})
		}
	}()

	start := time.Now()
	now := p.now()
	logger := slog.With("run_id", result.RunID)

	if table == nil {
		result.Status = domain.StatusFailed
		result.Warnings = append(result.Warnings, domain.Warning{Stage: stagePreprocess, Message: ErrNoInput.Error()})
		return result
	}
	if table.Len() == 0 {
		result.Status = domain.StatusEmpty
		result.Warnings = append(result.Warnings, domain.Warning{Stage: stagePreprocess, Message: "input table is empty"})
		return result
	}

	base, warns, err := Preprocess(table, params, now)
	result.Warnings = append(result.Warnings, warns...)
	if err != nil {
		result.Status = domain.StatusFailed
		result.Warnings = append(result.Warnings, domain.Warning{Stage: stagePreprocess, Message: err.Error()})
		return result
	}
	logger.Info("preprocessed", "rows_before", table.Len(), "rows_after", base.Len())
	if base.Len() == 0 {
		result.Status = domain.StatusEmpty
		result.Warnings = append(result.Warnings, domain.Warning{Stage: stagePreprocess, Message: "no rows left after exclusion and age filters"})
		return result
	}

	reg := p.Registry
	if reg == nil {
		reg = offer.NewRegistry()
	}

	var snapshot offer.UsedAllowanceSnapshot
	zeroUsed := reg.ZeroesUsedAllowance(params.Convenio)
	if zeroUsed {
		snapshot = offer.SnapshotUsedAllowance(base)
		logger.Info("used allowance snapshot",
			"benefit_ids", len(snapshot[domain.ProductBenefit]),
			"card_ids", len(snapshot[domain.ProductCard]),
		)
	}

	for i, cfg := range configs {
		next, stat, warns := applyConfig(ctx, reg, base, params, cfg, i)
		result.Warnings = append(result.Warnings, warns...)
		if next == nil {
			continue
		}
		base = next
		result.Stats = append(result.Stats, stat)
	}

	if zeroUsed {
		zeroed := snapshot.Apply(base)
		logger.Info("used allowance zeroed",
			"benefit_rows", zeroed[domain.ProductBenefit],
			"card_rows", zeroed[domain.ProductCard],
		)
	}

	rows, warns, err := Finalize(base, params, now)
	result.Warnings = append(result.Warnings, warns...)
	if err != nil {
		result.Status = domain.StatusFailed
		result.Warnings = append(result.Warnings, domain.Warning{Stage: stageFinalize, Message: err.Error()})
		return result
	}
	result.Rows = rows
	if len(rows) == 0 {
		result.Status = domain.StatusEmpty
	}

	span.SetAttributes(attribute.Int("kestrel.rows", len(rows)))
	logger.Info("campaign run finished",
		"status", result.Status,
		"rows", len(rows),
		"warnings", len(result.Warnings),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result
}

// applyConfig runs one configuration against a clone of base. On error or
// panic the clone is discarded and next is nil.
func applyConfig(ctx context.Context, reg *offer.Registry, base *domain.Table, params domain.RunParameters, cfg domain.BankConfig, idx int) (next *domain.Table, stat domain.Stat, warns []domain.Warning) {
	product := params.Campaign.ProductFor(cfg)
	cfg.Product = product

	_, span := tracer.Start(ctx, "pipeline.applyConfig",
		trace.WithAttributes(
			attribute.Int("kestrel.config_index", idx+1),
			attribute.String("kestrel.bank", cfg.Bank),
			attribute.String("kestrel.product", product.String()),
		),
	)
	defer span.End()

	logger := slog.With("config_index", idx+1, "bank", cfg.Bank, "product", product.String())
	warn := func(msg string) {
		logger.Warn(msg)
		warns = append(warns, domain.Warning{Stage: stageConfig, Config: idx + 1, Message: msg})
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("configuration panicked, rolled back", "panic", r, "stack", string(debug.Stack()))
			span.SetStatus(codes.Error, "panic")
			warn(fmt.Sprintf("configuration failed and was rolled back: %v", r))
			next = nil
		}
	}()

	if _, ok := offer.LookupBank(cfg.Bank); !ok {
		warn(fmt.Sprintf("bank code %q is not in the catalogue", cfg.Bank))
	}

	before := base.TreatedTaxIDs(product)
	work := base.Clone()

	calc := reg.Lookup(params.Convenio, product)
	out, err := calc.Apply(work, cfg)
	for _, w := range out.Warnings {
		warn(w.Error())
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		warn(fmt.Sprintf("configuration rolled back: %v", err))
		return nil, stat, warns
	}

	after := work.TreatedTaxIDs(product)
	affected := 0
	for id := range after {
		if _, ok := before[id]; !ok {
			affected++
		}
	}

	stat = domain.Stat{Bank: cfg.Bank, Product: product, Affected: affected}
	span.SetAttributes(attribute.Int("kestrel.affected", affected))
	logger.Info("configuration applied",
		"treated", out.Treated,
		"affected", affected,
		"dropped", out.Dropped,
		"zeroed", out.Zeroed,
	)
	return work, stat, warns
}

func (p *Pipeline) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}
