package pipeline

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
)

const stagePreprocess = "preprocess"

// Preprocess returns a normalized copy of table: essential columns exist,
// names are title-cased, tax ids are cleaned, excluded workplaces, bonds and
// ages are dropped, and every offer is reset.
func Preprocess(table *domain.Table, params domain.RunParameters, now time.Time) (*domain.Table, []domain.Warning, error) {
	if table == nil {
		return nil, nil, ErrNoInput
	}
	base := table.Clone()
	var warns []domain.Warning
	warn := func(format string, args ...any) {
		w := domain.Warning{Stage: stagePreprocess, Message: fmt.Sprintf(format, args...)}
		slog.Warn(w.Message, "stage", w.Stage)
		warns = append(warns, w)
	}

	for _, col := range domain.EssentialColumns {
		if !base.HasColumn(col) {
			warn("essential column %q not found, created empty", col)
			base.AddColumn(col)
		}
	}

	title := cases.Title(language.BrazilianPortuguese)
	for _, r := range base.Records {
		if r.Name != "" {
			r.Name = title.String(r.Name)
		}
		r.TaxID = NormalizeTaxID(r.TaxID)
		r.Offers = [3]domain.Offer{}
	}

	before := base.Len()
	base.Filter(func(r *domain.Record) bool {
		return !excluded(r.Workplace, params.ExcludeWorkplaces, params.ExcludeWorkplaceKeywords) &&
			!excluded(r.Bond, params.ExcludeBonds, params.ExcludeBondKeywords)
	})
	slog.Debug("exclusion filters applied", "rows_before", before, "rows_after", base.Len())

	if params.MaxAge > 0 && hasBirthDates(base) {
		before = base.Len()
		limit := AgeLimit(now, params.MaxAge)
		base.Filter(func(r *domain.Record) bool {
			born, ok := rules.ParseDate(r.BirthDate)
			return ok && !born.Before(limit)
		})
		slog.Debug("age filter applied",
			"max_age", params.MaxAge,
			"limit", limit.Format(time.DateOnly),
			"rows_before", before,
			"rows_after", base.Len(),
		)
	}

	return base, warns, nil
}

// NormalizeTaxID strips dots and dashes. Placeholder values become empty.
func NormalizeTaxID(s string) string {
	s = strings.TrimSpace(strings.NewReplacer(".", "", "-", "").Replace(s))
	switch s {
	case "nan", "None", "NaN", "<NA>":
		return ""
	}
	return s
}

// AgeLimit is the earliest birth date still accepted for maxAge, at midnight UTC.
func AgeLimit(now time.Time, maxAge int) time.Time {
	y, m, d := now.AddDate(-maxAge, 0, 0).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func excluded(value string, exact, keywords []string) bool {
	if len(exact) > 0 && slices.Contains(exact, value) {
		return true
	}
	if value == "" {
		return false
	}
	lower := strings.ToLower(value)
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" && strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func hasBirthDates(t *domain.Table) bool {
	for _, r := range t.Records {
		if r.BirthDate != "" {
			return true
		}
	}
	return false
}
