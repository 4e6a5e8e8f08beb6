// Package ingest loads hygiene CSV files into a table and writes campaign
// results back out in the dialer's CSV layout.
package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const stageIngest = "ingest"

// bom is the UTF-8 byte order mark spreadsheet tools prepend to CSV exports.
const bom = "\ufeff"

// ErrNoData is returned when no source produced a single row.
var ErrNoData = errors.New("no csv file could be read")

// Source is one named CSV input.
type Source struct {
	Name string
	R    io.Reader
}

// ReadCSV merges sources into one table. Columns are the union of every
// file's header in first-seen order; rows keep file order. Empty or
// unreadable files are skipped with a warning. ErrNoData is returned when
// nothing was read.
func ReadCSV(sources ...Source) (*domain.Table, []domain.Warning, error) {
	var warns []domain.Warning
	warn := func(format string, args ...any) {
		w := domain.Warning{Stage: stageIngest, Message: fmt.Sprintf(format, args...)}
		slog.Warn(w.Message, "stage", w.Stage)
		warns = append(warns, w)
	}

	if len(sources) == 0 {
		warn("no csv file was given")
		return domain.NewTable(nil), warns, ErrNoData
	}

	table := domain.NewTable(nil)
	read := 0
	for _, src := range sources {
		columns, rows, err := parse(src.R)
		if err != nil {
			warn("file %s could not be read: %v", src.Name, err)
			continue
		}
		if len(rows) == 0 {
			warn("file %s is empty and was skipped", src.Name)
			continue
		}
		appendRows(table, columns, rows)
		read++
		slog.Debug("csv file loaded", "file", src.Name, "columns", len(columns), "rows", len(rows))
	}

	if read == 0 {
		return table, warns, ErrNoData
	}
	return table, warns, nil
}

// FromRows builds a table from a header and raw string rows. Short rows
// leave the trailing columns blank; cells past the header are ignored.
func FromRows(columns []string, rows [][]string) *domain.Table {
	table := domain.NewTable(nil)
	appendRows(table, columns, rows)
	return table
}

// DetectConvenio returns the agreement of the first record as written, if
// any. Strategy lookups fold case on their own.
func DetectConvenio(table *domain.Table) string {
	if table.Len() == 0 {
		return ""
	}
	return strings.TrimSpace(table.Records[0].Agreement)
}

func appendRows(table *domain.Table, header []string, rows [][]string) {
	columns := make([]string, len(header))
	for i, c := range header {
		columns[i] = strings.TrimSpace(c)
		if columns[i] != "" {
			table.AddColumn(columns[i])
		}
	}
	for _, row := range rows {
		r := &domain.Record{}
		for i, c := range columns {
			if i >= len(row) || c == "" {
				continue
			}
			r.SetValue(c, row[i])
		}
		table.Records = append(table.Records, r)
	}
}

func parse(r io.Reader) ([]string, [][]string, error) {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(bom)); err == nil && string(b) == bom {
		br.Discard(len(bom))
	}

	cr := csv.NewReader(br)
	cr.Comma = sniffDelimiter(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = false

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	var rows [][]string
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		if blank(row) {
			continue
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

// sniffDelimiter picks ';' when the header line holds more semicolons than commas.
func sniffDelimiter(br *bufio.Reader) rune {
	line, _ := br.Peek(br.Size())
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if bytes.Count(line, []byte{';'}) > bytes.Count(line, []byte{','}) {
		return ';'
	}
	return ','
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// WriteCSV writes result in the dialer layout: UTF-8 BOM, ';' separator,
// canonical header, empty text for missing cells.
func WriteCSV(w io.Writer, result *domain.RunResult) error {
	return WriteRows(w, result.Columns, result.OutputRows())
}

// WriteRows writes already rendered rows in the campaign file format. An
// empty header falls back to the canonical output header.
func WriteRows(w io.Writer, header []string, rows [][]any) error {
	if _, err := io.WriteString(w, bom); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	cw.Comma = ';'

	if len(header) == 0 {
		header = domain.OutputHeader()
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, len(header))
	for _, row := range rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = FormatCell(row[i])
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FormatCell renders one output cell as text.
func FormatCell(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	case int:
		return strconv.Itoa(c)
	case bool:
		return strconv.FormatBool(c)
	default:
		return fmt.Sprint(c)
	}
}

// DefaultFileName names a result that has no campaign label.
const DefaultFileName = "campanha_filtrada.csv"

// FileName is the download name of a result: the first row's campaign label.
func FileName(result *domain.RunResult) string {
	if len(result.Rows) > 0 && result.Rows[0].Campaign != "" {
		return result.Rows[0].Campaign + ".csv"
	}
	return DefaultFileName
}
