package domain

import (
	"encoding/json"
	"strconv"
)

// GlobalTenant is the bus tenant the async worker listens on for run
// requests from every tenant. The real tenant travels in RunRequest.TenantID.
const GlobalTenant = "_global"

// Cell is one raw input cell. JSON strings, numbers and booleans decode to
// their text; null decodes to the empty string.
type Cell string

// UnmarshalJSON implements json.Unmarshaler.
func (c *Cell) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch v := v.(type) {
	case nil:
		*c = ""
	case string:
		*c = Cell(v)
	case float64:
		*c = Cell(strconv.FormatFloat(v, 'f', -1, 64))
	case bool:
		*c = Cell(strconv.FormatBool(v))
	default:
		*c = Cell(b)
	}
	return nil
}

// RawTable is an input table as sent by clients: a header and rows of cells.
type RawTable struct {
	Columns []string `json:"columns"`
	Rows    [][]Cell `json:"rows"`
}

// Strings returns the rows as plain strings.
func (t RawTable) Strings() [][]string {
	out := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = make([]string, len(row))
		for j, c := range row {
			out[i][j] = string(c)
		}
	}
	return out
}

// RunRequest is one campaign run, synchronous over HTTP or queued on the bus.
type RunRequest struct {
	// RequestID correlates a queued run with its run.completed event.
	RequestID string        `json:"requestId,omitempty"`
	TenantID  string        `json:"tenantId,omitempty"`
	Table     RawTable      `json:"table"`
	Params    RunParameters `json:"params"`
	Configs   []BankConfig  `json:"configs"`

	// Save records the configurations in the audit log after the run.
	Save bool `json:"save,omitempty"`
}

// NewRunRequest returns a request ready for decoding: a body that omits
// params still runs with the default parameters.
func NewRunRequest() RunRequest {
	return RunRequest{Params: DefaultRunParameters("")}
}

// RunResponse is a RunResult with its rows rendered in output order.
type RunResponse struct {
	*RunResult
	RequestID string   `json:"requestId,omitempty"`
	TenantID  string   `json:"tenantId,omitempty"`
	Rows      [][]any  `json:"rows"`
	AuditIDs  []string `json:"auditIds,omitempty"`
}

// NewRunResponse renders result for the wire.
func NewRunResponse(result *RunResult) *RunResponse {
	rows := result.OutputRows()
	if result.Stats == nil {
		result.Stats = []Stat{}
	}
	if result.Warnings == nil {
		result.Warnings = []Warning{}
	}
	return &RunResponse{RunResult: result, Rows: rows}
}
