// Command kestrel-run runs one campaign from the command line.
//
// Usage:
//
//	kestrel-run -spec campaign.yaml -csv leads1.csv -csv leads2.csv [-out campaign.csv]
//	kestrel-run -spec campaign.yaml -csv leads.csv -url http://localhost:8080 -tenant ops
//
// The spec file holds the run parameters and the ordered bank configurations:
//
//	params:
//	  campaign: new
//	  loanMarginCutoff: 20
//	configs:
//	  - bank: "318"
//	    coefficient: 0.9
//	    commissionPercent: 5
//	    term: 96
//
// Without -url the run happens in-process; with -url the leads are posted to
// a running server's /campaigns/run endpoint.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ingest"
	"github.com/opensource-finance/kestrel/internal/pipeline"
)

// RunSpec is the YAML description of a campaign run.
type RunSpec struct {
	Params  domain.RunParameters `yaml:"params"`
	Configs []domain.BankConfig  `yaml:"configs"`
}

type csvFlag []string

func (f *csvFlag) String() string     { return strings.Join(*f, ",") }
func (f *csvFlag) Set(v string) error { *f = append(*f, v); return nil }

func main() {
	var csvPaths csvFlag
	flag.Var(&csvPaths, "csv", "Lead CSV file (repeatable)")
	specPath := flag.String("spec", "", "YAML file with params and configs")
	outPath := flag.String("out", "", "Output CSV path (default: campaign label)")
	baseURL := flag.String("url", "", "Kestrel server URL; empty runs in-process")
	tenantID := flag.String("tenant", "cli", "Tenant ID for server runs")
	timeout := flag.Duration("timeout", 5*time.Minute, "Run timeout")
	verbose := flag.Bool("verbose", false, "Debug logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if len(csvPaths) == 0 || *specPath == "" {
		fmt.Println("Usage: kestrel-run -spec campaign.yaml -csv leads.csv [-csv more.csv] [-out file.csv]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	spec, err := loadSpec(*specPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}

	table, warns, err := readLeads(csvPaths)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	for _, w := range warns {
		fmt.Fprintf(os.Stderr, "WARNING: %s\n", w)
	}
	if spec.Params.Convenio == "" {
		spec.Params.Convenio = ingest.DetectConvenio(table)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	var run *outcome
	if *baseURL != "" {
		run, err = runRemote(ctx, *baseURL, *tenantID, table, spec)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			os.Exit(1)
		}
	} else {
		result := pipeline.New().Run(ctx, table, spec.Params, spec.Configs)
		run = &outcome{RunResult: result, Rows: result.OutputRows()}
	}
	result := run.RunResult

	printSummary(result, len(run.Rows), table.Len(), time.Since(start))

	if result.Status != domain.StatusOK {
		if result.Status == domain.StatusFailed {
			os.Exit(2)
		}
		return
	}

	out := *outPath
	if out == "" {
		out = run.fileName()
	}
	if err := writeResult(out, run); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nWrote %d rows to %s\n", len(run.Rows), out)
}

func loadSpec(path string) (*RunSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spec: %w", err)
	}
	spec := RunSpec{Params: domain.DefaultRunParameters("")}
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("parse spec %s: %w", path, err)
	}
	if len(spec.Configs) == 0 {
		return nil, fmt.Errorf("spec %s has no configs", path)
	}
	return &spec, nil
}

func readLeads(paths []string) (*domain.Table, []domain.Warning, error) {
	sources := make([]ingest.Source, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", p, err)
		}
		defer f.Close()
		sources = append(sources, ingest.Source{Name: filepath.Base(p), R: f})
	}
	return ingest.ReadCSV(sources...)
}

// outcome is a run result with its rows rendered in output order. Remote
// runs only ever see rendered rows.
type outcome struct {
	*domain.RunResult
	Rows [][]any `json:"rows"`
}

func (o *outcome) fileName() string {
	col := -1
	for i, c := range domain.OutputColumns {
		if c == domain.ColCampaign {
			col = i
		}
	}
	if len(o.Rows) > 0 && col >= 0 && col < len(o.Rows[0]) {
		if label, ok := o.Rows[0][col].(string); ok && label != "" {
			return label + ".csv"
		}
	}
	return ingest.DefaultFileName
}

// runRemote posts the table to a server's /campaigns/run endpoint.
func runRemote(ctx context.Context, baseURL, tenantID string, table *domain.Table, spec *RunSpec) (*outcome, error) {
	req := domain.RunRequest{
		Table:   rawTable(table),
		Params:  spec.Params,
		Configs: spec.Configs,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/campaigns/run", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post run: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusUnprocessableEntity {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	run := &outcome{RunResult: &domain.RunResult{}}
	if err := json.NewDecoder(resp.Body).Decode(run); err != nil {
		return nil, fmt.Errorf("decode run response: %w", err)
	}
	return run, nil
}

func rawTable(t *domain.Table) domain.RawTable {
	raw := domain.RawTable{Columns: t.Columns, Rows: make([][]domain.Cell, t.Len())}
	for i, r := range t.Records {
		row := make([]domain.Cell, len(t.Columns))
		for j, c := range t.Columns {
			v, _ := r.Value(c)
			row[j] = domain.Cell(v)
		}
		raw.Rows[i] = row
	}
	return raw
}

func writeResult(path string, run *outcome) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := ingest.WriteRows(f, run.Columns, run.Rows); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func printSummary(result *domain.RunResult, outputRows, inputRows int, elapsed time.Duration) {
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println("                        CAMPAIGN RUN")
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Printf("Run ID:      %s\n", result.RunID)
	fmt.Printf("Status:      %s\n", result.Status)
	fmt.Printf("Input rows:  %d\n", inputRows)
	fmt.Printf("Output rows: %d\n", outputRows)
	fmt.Printf("Elapsed:     %v\n", elapsed.Round(time.Millisecond))

	if len(result.Stats) > 0 {
		fmt.Println("\nConfigurations:")
		for i, s := range result.Stats {
			fmt.Printf("  #%d  bank %-5s %-8s %6d new customers\n", i+1, s.Bank, s.Product, s.Affected)
		}
	}
	if len(result.Warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range result.Warnings {
			fmt.Printf("  - %s\n", w)
		}
	}
}
