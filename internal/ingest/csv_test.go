package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func src(name, body string) Source {
	return Source{Name: name, R: strings.NewReader(body)}
}

func TestReadCSV(t *testing.T) {
	t.Run("comma separated", func(t *testing.T) {
		table, warns, err := ReadCSV(src("a.csv", "Nome_Cliente,CPF,MG_Emprestimo_Disponivel\nana silva,123.456.789-00,350.5\n"))
		require.NoError(t, err)
		assert.Empty(t, warns)
		require.Equal(t, 1, table.Len())
		r := table.Records[0]
		assert.Equal(t, "ana silva", r.Name)
		assert.Equal(t, "123.456.789-00", r.TaxID)
		require.NotNil(t, r.LoanAvailable)
		assert.Equal(t, 350.5, *r.LoanAvailable)
	})

	t.Run("semicolon separated with bom", func(t *testing.T) {
		table, _, err := ReadCSV(src("b.csv", "\ufeffNome_Cliente;CPF;Lotacao\nBia;111;ESCOLA A, CENTRO\n"))
		require.NoError(t, err)
		require.Equal(t, 1, table.Len())
		assert.True(t, table.HasColumn(domain.ColName), "bom must not leak into the first header")
		assert.Equal(t, "ESCOLA A, CENTRO", table.Records[0].Workplace)
	})

	t.Run("column union across files", func(t *testing.T) {
		table, warns, err := ReadCSV(
			src("a.csv", "CPF,Nome_Cliente\n1,Ana\n"),
			src("b.csv", "CPF,Matricula,Extra_Col\n2,M-2,x\n"),
		)
		require.NoError(t, err)
		assert.Empty(t, warns)
		assert.Equal(t, []string{"CPF", "Nome_Cliente", "Matricula", "Extra_Col"}, table.Columns)
		require.Equal(t, 2, table.Len())
		assert.Equal(t, "", table.Records[0].EmployeeID)
		assert.Equal(t, "M-2", table.Records[1].EmployeeID)
		v, ok := table.Records[1].Value("Extra_Col")
		assert.True(t, ok)
		assert.Equal(t, "x", v)
	})

	t.Run("empty files are skipped with a warning", func(t *testing.T) {
		table, warns, err := ReadCSV(
			src("empty.csv", ""),
			src("header-only.csv", "CPF,Nome_Cliente\n"),
			src("ok.csv", "CPF\n1\n"),
		)
		require.NoError(t, err)
		assert.Equal(t, 1, table.Len())
		require.Len(t, warns, 2)
		assert.Contains(t, warns[0].Message, "empty.csv")
		assert.Contains(t, warns[1].Message, "header-only.csv")
	})

	t.Run("blank lines are ignored", func(t *testing.T) {
		table, _, err := ReadCSV(src("a.csv", "CPF,Nome_Cliente\n1,Ana\n,\n2,Bia\n"))
		require.NoError(t, err)
		assert.Equal(t, 2, table.Len())
	})

	t.Run("nothing readable", func(t *testing.T) {
		_, warns, err := ReadCSV(src("empty.csv", ""))
		assert.ErrorIs(t, err, ErrNoData)
		assert.Len(t, warns, 1)

		_, _, err = ReadCSV()
		assert.ErrorIs(t, err, ErrNoData)
	})

	t.Run("malformed file is skipped", func(t *testing.T) {
		table, warns, err := ReadCSV(
			Source{Name: "bad.csv", R: io.MultiReader(strings.NewReader("CPF\n1\n"), iotest.ErrReader(errors.New("disk gone")))},
			src("ok.csv", "CPF\n1\n"),
		)
		require.NoError(t, err)
		assert.Equal(t, 1, table.Len())
		require.Len(t, warns, 1)
		assert.Contains(t, warns[0].Message, "bad.csv")
	})
}

func TestFromRows(t *testing.T) {
	header := []string{" CPF ", "Nome_Cliente", "MG_Cartao_Disponivel"}
	table := FromRows(header, [][]string{
		{"1", "Ana", "120"},
		{"2"},
		{"3", "Caio", "", "ignored"},
	})

	assert.Equal(t, " CPF ", header[0], "caller's header must not be modified")
	assert.Equal(t, []string{"CPF", "Nome_Cliente", "MG_Cartao_Disponivel"}, table.Columns)
	require.Equal(t, 3, table.Len())
	assert.Equal(t, "2", table.Records[1].TaxID)
	assert.Nil(t, table.Records[1].CardAvailable)
	assert.Nil(t, table.Records[2].CardAvailable)
	require.NotNil(t, table.Records[0].CardAvailable)
	assert.Equal(t, 120.0, *table.Records[0].CardAvailable)
}

func TestDetectConvenio(t *testing.T) {
	assert.Equal(t, "", DetectConvenio(domain.NewTable(nil)))

	table := FromRows([]string{"Convenio"}, [][]string{{" GOVSP "}, {"govmt"}})
	assert.Equal(t, "GOVSP", DetectConvenio(table))
}

func TestWriteCSV(t *testing.T) {
	rec := &domain.Record{Name: "Ana Silva", TaxID: "12345678900", Campaign: "geral_10032025_novo_outbound"}
	rec.LoanAvailable = domain.Float(350)
	rec.Offers[domain.ProductLoan] = domain.Offer{Amount: 7000, Installment: 350, Commission: 700, Bank: "243", Term: 96}

	result := &domain.RunResult{
		Status:  domain.StatusOK,
		Columns: domain.OutputHeader(),
		Rows:    []*domain.Record{rec},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, result))

	out := buf.String()
	require.True(t, strings.HasPrefix(out, "\ufeff"), "output must start with a bom")

	cr := csv.NewReader(strings.NewReader(strings.TrimPrefix(out, "\ufeff")))
	cr.Comma = ';'
	lines, err := cr.ReadAll()
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, domain.OutputHeader(), lines[0])

	row := map[string]string{}
	for i, c := range lines[0] {
		row[c] = lines[1][i]
	}
	assert.Equal(t, "Ana Silva", row[domain.ColName])
	assert.Equal(t, "350", row["Mg_Emprestimo_Disponivel"])
	assert.Equal(t, "", row["Mg_Cartao_Disponivel"])
	assert.Equal(t, "7000", row["valor_liberado_emprestimo"])
	assert.Equal(t, "243", row["banco_emprestimo"])
	assert.Equal(t, "", row["banco_cartao"])
	assert.Equal(t, "96", row["prazo_emprestimo"])
	assert.Equal(t, "0", row["prazo_cartao"])
	assert.Equal(t, "geral_10032025_novo_outbound", row[domain.ColCampaign])
}

func TestWriteCSVEmptyResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, &domain.RunResult{Status: domain.StatusEmpty}))

	out := strings.TrimPrefix(buf.String(), "\ufeff")
	assert.Equal(t, strings.Join(domain.OutputHeader(), ";")+"\n", out)
}

func TestFormatCell(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{12.5, "12.5"},
		{7000.0, "7000"},
		{96, "96"},
		{true, "true"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatCell(tt.in))
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, DefaultFileName, FileName(&domain.RunResult{}))

	result := &domain.RunResult{Rows: []*domain.Record{{Campaign: "govsp_10032025_novo_outbound"}}}
	assert.Equal(t, "govsp_10032025_novo_outbound.csv", FileName(result))
}
