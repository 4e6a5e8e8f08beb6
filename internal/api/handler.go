package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/audit"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ingest"
	"github.com/opensource-finance/kestrel/internal/offer"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/report"
	"github.com/opensource-finance/kestrel/internal/repository"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	pipeline *pipeline.Pipeline
	audit    *audit.Service
	reports  *report.Service
	version  string
	maxBody  int64
}

// NewHandler creates a new API handler. repo, cache and bus may be nil;
// endpoints needing them answer 503.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, p *pipeline.Pipeline, auditSvc *audit.Service, reportSvc *report.Service, version string) *Handler {
	if p == nil {
		p = pipeline.New()
	}
	return &Handler{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		pipeline: p,
		audit:    auditSvc,
		reports:  reportSvc,
		version:  version,
	}
}

// SaveConfigsRequest is the request body for POST /audit/configs.
type SaveConfigsRequest struct {
	Params  domain.RunParameters `json:"params"`
	Configs []domain.BankConfig  `json:"configs"`
}

// QueuedResponse is returned by POST /campaigns/runs.
type QueuedResponse struct {
	RequestID string `json:"requestId"`
	Topic     string `json:"topic"`
}

// RunCampaign handles POST /campaigns/run. The run is synchronous; with
// "Accept: text/csv" the campaign file is returned instead of JSON.
func (h *Handler) RunCampaign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	req := domain.NewRunRequest()
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Table.Columns) == 0 {
		writeError(w, http.StatusBadRequest, "table.columns is required")
		return
	}

	table := ingest.FromRows(req.Table.Columns, req.Table.Strings())
	if req.Params.Convenio == "" {
		req.Params.Convenio = ingest.DetectConvenio(table)
	}

	result := h.pipeline.Run(ctx, table, req.Params, req.Configs)
	resp := domain.NewRunResponse(result)

	if req.Save && result.Status != domain.StatusFailed {
		if h.audit == nil {
			resp.Warnings = append(resp.Warnings, domain.Warning{Stage: "audit", Message: "audit log not available, configuration not saved"})
		} else if records, err := h.audit.Save(ctx, tenantID, req.Params, req.Configs); err != nil {
			slog.Error("failed to save audit records", "run_id", result.RunID, "error", err)
			resp.Warnings = append(resp.Warnings, domain.Warning{Stage: "audit", Message: "configuration not saved: " + err.Error()})
		} else {
			for _, rec := range records {
				resp.AuditIDs = append(resp.AuditIDs, rec.ID)
			}
		}
	}

	status := http.StatusOK
	if result.Status == domain.StatusFailed {
		status = http.StatusUnprocessableEntity
	}

	if wantsCSV(r) && result.Status != domain.StatusFailed {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ingest.FileName(result)))
		w.Header().Set("X-Run-ID", result.RunID)
		w.WriteHeader(status)
		if err := ingest.WriteCSV(w, result); err != nil {
			slog.Error("failed to write campaign csv", "run_id", result.RunID, "error", err)
		}
		return
	}

	writeJSON(w, status, resp)
}

// QueueCampaign handles POST /campaigns/runs: the request is published for
// the async worker and the result arrives on the run.completed topic.
func (h *Handler) QueueCampaign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event bus not available")
		return
	}

	req := domain.NewRunRequest()
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Table.Columns) == 0 {
		writeError(w, http.StatusBadRequest, "table.columns is required")
		return
	}
	req.TenantID = GetTenantID(ctx)
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}

	payload, err := json.Marshal(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "request could not be encoded")
		return
	}
	if err := h.bus.Publish(ctx, domain.GlobalTenant, domain.TopicRunRequested, payload); err != nil {
		slog.Error("failed to queue campaign run", "tenant_id", req.TenantID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "campaign run could not be queued")
		return
	}

	writeJSON(w, http.StatusAccepted, QueuedResponse{
		RequestID: req.RequestID,
		Topic:     domain.TopicRunCompleted,
	})
}

// SaveConfigs handles POST /audit/configs.
func (h *Handler) SaveConfigs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit log not available")
		return
	}

	req := SaveConfigsRequest{Params: domain.DefaultRunParameters("")}
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Configs) == 0 {
		writeError(w, http.StatusBadRequest, "at least one configuration is required")
		return
	}

	records, err := h.audit.Save(ctx, GetTenantID(ctx), req.Params, req.Configs)
	if err != nil {
		slog.Error("failed to save audit records", "error", err)
		writeError(w, statusFor(err), "configuration could not be saved")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"saved":   len(records),
		"records": records,
	})
}

// ListConfigs handles GET /audit/configs?convenio=&product=&limit=.
func (h *Handler) ListConfigs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit log not available")
		return
	}

	q := domain.AuditQuery{
		Convenio: r.URL.Query().Get("convenio"),
		Product:  r.URL.Query().Get("product"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		q.Limit = limit
	}

	records, err := h.audit.History(ctx, GetTenantID(ctx), q)
	if err != nil {
		slog.Error("failed to list audit records", "error", err)
		writeError(w, statusFor(err), "audit history not available")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}

// GetConfig handles GET /audit/configs/{id}.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit log not available")
		return
	}

	id := chi.URLParam(r, "id")
	rec, err := h.audit.Get(ctx, GetTenantID(ctx), id)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to get audit record", "id", id, "error", err)
		}
		writeError(w, statusFor(err), "audit record not found")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// FileReportRequest is the request body for POST /reports.
type FileReportRequest struct {
	Convenio    string `json:"convenio"`
	Product     string `json:"product"`
	Description string `json:"description"`
	Page        string `json:"page"`
}

// StatusRequest is the request body for PATCH /reports/{id}.
type StatusRequest struct {
	Status domain.ReportStatus `json:"status"`
}

// FileReport handles POST /reports.
func (h *Handler) FileReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reports == nil {
		writeError(w, http.StatusServiceUnavailable, "bug reports not available")
		return
	}

	var req FileReportRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}

	rep := &domain.BugReport{
		Convenio:    req.Convenio,
		Product:     req.Product,
		Description: req.Description,
		Page:        req.Page,
	}
	if err := h.reports.File(ctx, GetTenantID(ctx), rep); err != nil {
		slog.Error("failed to file bug report", "error", err)
		writeError(w, statusFor(err), "bug report could not be saved")
		return
	}
	writeJSON(w, http.StatusCreated, rep)
}

// ListReports handles GET /reports?status=&limit=.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reports == nil {
		writeError(w, http.StatusServiceUnavailable, "bug reports not available")
		return
	}

	var q domain.ReportQuery
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := domain.ParseReportStatus(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown report status %q", raw))
			return
		}
		q.Status = status
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		q.Limit = limit
	}

	reports, err := h.reports.List(ctx, GetTenantID(ctx), q)
	if err != nil {
		slog.Error("failed to list bug reports", "error", err)
		writeError(w, statusFor(err), "bug reports not available")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reports": reports,
		"count":   len(reports),
	})
}

// GetReport handles GET /reports/{id}.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reports == nil {
		writeError(w, http.StatusServiceUnavailable, "bug reports not available")
		return
	}

	rep, err := h.reports.Get(ctx, GetTenantID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), "bug report not found")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// UpdateReportStatus handles PATCH /reports/{id}.
func (h *Handler) UpdateReportStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reports == nil {
		writeError(w, http.StatusServiceUnavailable, "bug reports not available")
		return
	}

	var req StatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	id := chi.URLParam(r, "id")
	rep, err := h.reports.SetStatus(ctx, GetTenantID(ctx), id, req.Status)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to update bug report", "id", id, "error", err)
		}
		writeError(w, statusFor(err), "bug report status not updated")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// ListBanks handles GET /banks.
func (h *Handler) ListBanks(w http.ResponseWriter, r *http.Request) {
	type bankView struct {
		Code  string `json:"code"`
		Name  string `json:"name"`
		Label string `json:"label"`
	}
	banks := make([]bankView, len(offer.Banks))
	for i, b := range offer.Banks {
		banks[i] = bankView{Code: b.Code, Name: b.Name, Label: b.Label()}
	}
	writeJSON(w, http.StatusOK, map[string]any{"banks": banks})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// decode reads a JSON body, bounded by the configured size. It writes the
// error response itself and reports whether decoding succeeded.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := r.Body
	if h.maxBody > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON request body: "+err.Error())
		return false
	}
	return true
}

func wantsCSV(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/csv")
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrInvalidInput):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "status", status, "error", err)
	}
}
