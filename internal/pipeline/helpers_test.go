package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var runDate = time.Date(2025, time.March, 10, 14, 30, 0, 0, time.UTC)

func fixedNow() time.Time { return runDate }

func strp(s string) *string { return &s }

func buildTable(t *testing.T, columns []string, rows ...[]string) *domain.Table {
	t.Helper()
	table := domain.NewTable(columns)
	for _, row := range rows {
		require.Len(t, row, len(columns))
		r := &domain.Record{}
		for i, c := range columns {
			r.SetValue(c, row[i])
		}
		table.Records = append(table.Records, r)
	}
	return table
}

func taxIDs(rows []*domain.Record) []string {
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.TaxID
	}
	return ids
}
