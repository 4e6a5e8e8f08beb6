package domain

import "fmt"

// Status is the outcome of a run.
type Status string

const (
	StatusOK     Status = "ok"
	StatusEmpty  Status = "empty"
	StatusFailed Status = "failed"
)

// Stat reports how many new customers one configuration treated.
type Stat struct {
	Bank     string  `json:"bank"`
	Product  Product `json:"product"`
	Affected int     `json:"affected"`
}

// Warning is a non-fatal, human-readable problem raised during a run.
type Warning struct {
	Stage   string `json:"stage"`
	Config  int    `json:"config,omitempty"` // 1-based, 0 when not tied to a configuration
	Message string `json:"message"`
}

func (w Warning) String() string {
	if w.Config > 0 {
		return fmt.Sprintf("%s (config #%d): %s", w.Stage, w.Config, w.Message)
	}
	return w.Stage + ": " + w.Message
}

// RunResult is everything a run produces.
type RunResult struct {
	RunID    string    `json:"runId"`
	Status   Status    `json:"status"`
	Columns  []string  `json:"columns"`
	Rows     []*Record `json:"-"`
	Stats    []Stat    `json:"stats"`
	Warnings []Warning `json:"warnings"`
}

// OutputRows renders every row in OutputColumns order.
func (r *RunResult) OutputRows() [][]any {
	out := make([][]any, len(r.Rows))
	for i, rec := range r.Rows {
		out[i] = rec.OutputRow()
	}
	return out
}
