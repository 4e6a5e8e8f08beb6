package pipeline

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
)

const stageFinalize = "finalize"

// convaiSeed fixes the sample of rows routed to the automated channel.
const convaiSeed = 42

// Finalize cuts, deduplicates and labels the treated table. The table is
// filtered in place; the surviving rows are returned in output order.
// An empty result carries a warning naming the step that emptied it.
func Finalize(table *domain.Table, params domain.RunParameters, now time.Time) ([]*domain.Record, []domain.Warning, error) {
	var warns []domain.Warning
	warn := func(format string, args ...any) {
		w := domain.Warning{Stage: stageFinalize, Message: fmt.Sprintf(format, args...)}
		slog.Warn(w.Message, "stage", w.Stage)
		warns = append(warns, w)
	}
	if table.Len() == 0 {
		warn("table empty before finalization")
		return nil, warns, nil
	}

	policy, err := rules.NewCutoffPolicy(params)
	if err != nil {
		return nil, warns, err
	}

	step := func(name string, keep func(*domain.Record) bool) bool {
		before := table.Len()
		table.Filter(keep)
		slog.Info("finalize step",
			"step", name,
			"rows_before", before,
			"rows_after", table.Len(),
			"removed", before-table.Len(),
		)
		return table.Len() > 0
	}

	if !step("positive_offer", (*domain.Record).HasOffer) {
		warn("no customer with a released amount above zero")
		return nil, warns, nil
	}

	var evalErr error
	guard := func(check func(*domain.Record) (bool, error)) func(*domain.Record) bool {
		return func(r *domain.Record) bool {
			ok, err := check(r)
			if err != nil && evalErr == nil {
				evalErr = err
			}
			return ok
		}
	}

	if !step("commission_band", guard(policy.KeepCommission)) {
		if evalErr != nil {
			return nil, warns, evalErr
		}
		warn("no customer within the commission band [%v, %v]", params.CommissionMin, params.CommissionMax)
		return nil, warns, nil
	}

	if table.HasColumn(domain.ColLoanAvailable) {
		slog.Info("loan margin cutoff", "expr", policy.MarginExpr(), "cutoff", params.LoanMarginCutoff)
		if !step("loan_margin_cutoff", guard(policy.KeepMargin)) {
			if evalErr != nil {
				return nil, warns, evalErr
			}
			warn("no customer passed the loan margin cutoff (%s)", policy.MarginExpr())
			return nil, warns, nil
		}
	} else {
		warn("column %q not found, loan margin cutoff skipped", domain.ColLoanAvailable)
	}
	if evalErr != nil {
		return nil, warns, evalErr
	}

	if !step("tax_id_present", func(r *domain.Record) bool { return r.TaxID != "" }) {
		warn("no customer with a tax id")
		return nil, warns, nil
	}

	rows := Deduplicate(table.Records)
	table.Records = rows
	slog.Info("deduplicated by tax id", "rows_after", len(rows))

	Label(rows, params, now)
	return rows, warns, nil
}

// Deduplicate keeps, for every tax id, the record with the highest total
// commission. Ties keep the earliest record. The result is sorted by total
// commission, descending.
func Deduplicate(records []*domain.Record) []*domain.Record {
	sorted := make([]*domain.Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TotalCommission() > sorted[j].TotalCommission()
	})

	seen := make(map[string]struct{}, len(sorted))
	out := sorted[:0]
	for _, r := range sorted {
		if _, dup := seen[r.TaxID]; dup {
			continue
		}
		seen[r.TaxID] = struct{}{}
		out = append(out, r)
	}
	return out
}

// CampaignLabel builds "{convenio}_{ddmmyyyy}_{code}_{suffix}".
func CampaignLabel(params domain.RunParameters, now time.Time, suffix string) string {
	return fmt.Sprintf("%s_%s_%s_%s", params.ConvenioOrDefault(), now.Format("02012006"), params.Campaign.ShortCode(), suffix)
}

// Label assigns the team label to every record, then routes
// floor(ConvaiPercent% of the rows) to the convai label using a fixed seed.
func Label(rows []*domain.Record, params domain.RunParameters, now time.Time) {
	team := CampaignLabel(params, now, params.TeamOrDefault())
	for _, r := range rows {
		r.Campaign = team
	}
	if params.ConvaiPercent <= 0 {
		return
	}
	n := min(int(params.ConvaiPercent/100*float64(len(rows))), len(rows))
	if n <= 0 {
		return
	}
	convai := CampaignLabel(params, now, "convai")
	rng := rand.New(rand.NewPCG(convaiSeed, convaiSeed))
	for _, i := range rng.Perm(len(rows))[:n] {
		rows[i].Campaign = convai
	}
	slog.Info("convai carve-out", "rows", n, "label", convai)
}
