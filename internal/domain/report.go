package domain

import (
	"strings"
	"time"
)

// ReportStatus tracks a bug report through triage.
type ReportStatus string

const (
	ReportOpen     ReportStatus = "open"
	ReportInReview ReportStatus = "in_review"
	ReportResolved ReportStatus = "resolved"
)

// ReportStatuses lists the statuses in triage order.
var ReportStatuses = [...]ReportStatus{ReportOpen, ReportInReview, ReportResolved}

// ParseReportStatus accepts the wire names and the operators' labels.
func ParseReportStatus(s string) (ReportStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open", "aberto":
		return ReportOpen, true
	case "in_review", "em análise", "em analise":
		return ReportInReview, true
	case "resolved", "resolvido":
		return ReportResolved, true
	}
	return ReportStatus(s), false
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ReportStatus) UnmarshalText(b []byte) error {
	v, ok := ParseReportStatus(string(b))
	if !ok {
		return &UnknownValueError{Field: "report status", Value: string(b)}
	}
	*s = v
	return nil
}

// Label is the operator-facing name of the status.
func (s ReportStatus) Label() string {
	switch s {
	case ReportInReview:
		return "Em Análise"
	case ReportResolved:
		return "Resolvido"
	}
	return "Aberto"
}

// Defaults for report fields the operator left blank.
const (
	ReportNotApplicable = "other"
	DefaultReportPage   = "campaign"
)

// BugReport is an operator's report of a wrong result or a failure.
type BugReport struct {
	ID          string       `json:"id"`
	TenantID    string       `json:"tenantId"`
	Convenio    string       `json:"convenio"`
	Product     string       `json:"product"`
	Description string       `json:"description"`
	Page        string       `json:"page"`
	Status      ReportStatus `json:"status"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// ReportQuery filters the report listing. An empty status lists every report.
type ReportQuery struct {
	Status ReportStatus
	Limit  int
}

// Normalize applies the default limit.
func (q ReportQuery) Normalize() ReportQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultAuditLimit
	}
	return q
}
