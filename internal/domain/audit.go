package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// AuditRecord is one saved configuration, kept for later reference by operators.
type AuditRecord struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenantId"`
	Convenio    string          `json:"convenio"`
	Campaign    CampaignType    `json:"campaign"`
	Team        string          `json:"team"`
	Product     Product         `json:"product"`
	Conditions  json.RawMessage `json:"conditions"`
	Combinator  string          `json:"combinator"`
	Bank        string          `json:"bank"`
	Coefficient float64         `json:"coefficient"`
	Commission  float64         `json:"commission"`
	Term        int             `json:"term"`
	InstallCoef float64         `json:"installmentCoefficient"`
	MinMargin   float64         `json:"minMargin"`
	SafetyOn    bool            `json:"safetyMarginEnabled"`
	SafetyMode  string          `json:"safetyMarginMode,omitempty"`
	SafetyValue float64         `json:"safetyMarginValue,omitempty"`
	Params      json.RawMessage `json:"params"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// AuditQuery filters the audit history. Empty, "all" or "todos" disables a filter.
type AuditQuery struct {
	Convenio string
	Product  string
	Limit    int
}

// DefaultAuditLimit caps history listings when no limit is given.
const DefaultAuditLimit = 200

// Normalize resolves "all" filters and the default limit.
func (q AuditQuery) Normalize() AuditQuery {
	q.Convenio = wildcard(q.Convenio)
	q.Product = wildcard(q.Product)
	if p, ok := ParseProduct(q.Product); ok {
		q.Product = p.String()
	}
	if q.Limit <= 0 {
		q.Limit = DefaultAuditLimit
	}
	return q
}

func wildcard(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "todos":
		return ""
	}
	return strings.TrimSpace(s)
}
