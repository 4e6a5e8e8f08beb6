// Package worker runs queued campaign runs from the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/kestrel/internal/audit"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ingest"
	"github.com/opensource-finance/kestrel/internal/pipeline"
)

// Worker consumes run.requested messages, runs the pipeline and publishes
// the result on run.completed for the requesting tenant.
type Worker struct {
	bus      domain.EventBus
	pipeline *pipeline.Pipeline
	audit    *audit.Service

	mu            sync.Mutex
	subscriptions []domain.Subscription
	tenants       map[string]struct{}
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
}

// errNotServed marks a global request for a tenant this worker does not serve.
var errNotServed = errors.New("tenant not served by this worker")

// Config holds worker configuration.
type Config struct {
	// TenantIDs limits the worker to these tenants. The global topic is
	// always consumed; requests for other tenants are skipped. Empty serves
	// every tenant.
	TenantIDs []string
}

// NewWorker creates a new async worker. auditSvc may be nil, in which case
// requests asking to save their configurations get a warning instead.
func NewWorker(b domain.EventBus, p *pipeline.Pipeline, auditSvc *audit.Service) *Worker {
	if p == nil {
		p = pipeline.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      b,
		pipeline: p,
		audit:    auditSvc,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to run requests on the global topic, which the API
// publishes to, and on each configured tenant's topic.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) > 0 {
		tenants := make(map[string]struct{}, len(cfg.TenantIDs))
		for _, id := range cfg.TenantIDs {
			tenants[id] = struct{}{}
		}
		w.mu.Lock()
		w.tenants = tenants
		w.mu.Unlock()
	}

	if err := w.subscribe(domain.GlobalTenant); err != nil {
		return err
	}
	slog.Info("global worker started", "topic", domain.TopicRunRequested)
	if len(cfg.TenantIDs) == 0 {
		return nil
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.subscribe(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		slog.Info("tenant worker started",
			"tenant_id", tenantID,
			"topic", domain.TopicRunRequested,
		)
	}

	slog.Info("workers started", "tenant_count", len(cfg.TenantIDs))
	return nil
}

func (w *Worker) subscribe(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicRunRequested, w.handleMessage)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()
	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	w.wg.Add(1)
	defer w.wg.Done()

	err := w.processRun(ctx, msg)
	switch {
	case errors.Is(err, errNotServed):
		w.skipped.Add(1)
		return nil
	case err != nil:
		w.failed.Add(1)
	default:
		w.processed.Add(1)
	}
	return err
}

// serves reports whether tenantID is in the worker's tenant list. A worker
// without a list serves every tenant.
func (w *Worker) serves(tenantID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.tenants == nil {
		return true
	}
	_, ok := w.tenants[tenantID]
	return ok
}

// processRun decodes a RunRequest, runs it and publishes the response. The
// payload's tenant wins over the subscription tenant, so the global worker
// answers each tenant on its own topic.
func (w *Worker) processRun(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	req := domain.NewRunRequest()
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse run request",
			"message_id", msg.ID,
			"error", err,
		)
		w.replyFailure(ctx, msg, "invalid run request: "+err.Error())
		return err
	}

	tenantID := req.TenantID
	if tenantID == "" {
		tenantID = msg.TenantID
	}
	if tenantID == "" || tenantID == domain.GlobalTenant {
		err := errors.New("run request without a tenant")
		slog.Error("rejected run request", "message_id", msg.ID, "error", err)
		w.replyFailure(ctx, msg, err.Error())
		return err
	}

	if !w.serves(tenantID) {
		slog.Debug("skipping run request for another tenant", "message_id", msg.ID, "tenant_id", tenantID)
		return errNotServed
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = msg.ID
	}
	logger := slog.With("request_id", requestID, "tenant_id", tenantID)
	logger.Debug("processing run request", "rows", len(req.Table.Rows), "configs", len(req.Configs))

	table := ingest.FromRows(req.Table.Columns, req.Table.Strings())
	if req.Params.Convenio == "" {
		req.Params.Convenio = ingest.DetectConvenio(table)
	}

	result := w.pipeline.Run(ctx, table, req.Params, req.Configs)
	resp := domain.NewRunResponse(result)
	resp.RequestID = requestID
	resp.TenantID = tenantID

	if req.Save && result.Status != domain.StatusFailed {
		w.save(ctx, tenantID, req, resp)
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		logger.Error("failed to encode run response", "run_id", result.RunID, "error", err)
		return err
	}

	if err := w.bus.Publish(ctx, tenantID, domain.TopicRunCompleted, payload); err != nil {
		logger.Error("failed to publish run result",
			"run_id", result.RunID,
			"error", err,
		)
	}
	if msg.Metadata[domain.MetaReplyTo] != "" {
		if err := bus.Reply(ctx, w.bus, msg, payload); err != nil {
			logger.Error("failed to reply to run request", "run_id", result.RunID, "error", err)
		}
	}

	logger.Info("run request processed",
		"run_id", result.RunID,
		"status", result.Status,
		"rows", len(result.Rows),
		"warnings", len(result.Warnings),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (w *Worker) save(ctx context.Context, tenantID string, req domain.RunRequest, resp *domain.RunResponse) {
	if w.audit == nil {
		resp.Warnings = append(resp.Warnings, domain.Warning{Stage: "audit", Message: "audit log not available, configuration not saved"})
		return
	}
	records, err := w.audit.Save(ctx, tenantID, req.Params, req.Configs)
	if err != nil {
		slog.Error("failed to save audit records", "tenant_id", tenantID, "error", err)
		resp.Warnings = append(resp.Warnings, domain.Warning{Stage: "audit", Message: "configuration not saved: " + err.Error()})
		return
	}
	for _, rec := range records {
		resp.AuditIDs = append(resp.AuditIDs, rec.ID)
	}
}

// replyFailure answers a request-reply caller that would otherwise time out.
func (w *Worker) replyFailure(ctx context.Context, msg *domain.Message, reason string) {
	if msg.Metadata[domain.MetaReplyTo] == "" {
		return
	}
	payload, _ := json.Marshal(domain.NewRunResponse(&domain.RunResult{
		Status:   domain.StatusFailed,
		Columns:  domain.OutputHeader(),
		Warnings: []domain.Warning{{Stage: "worker", Message: reason}},
	}))
	if err := bus.Reply(ctx, w.bus, msg, payload); err != nil {
		slog.Error("failed to reply to run request", "message_id", msg.ID, "error", err)
	}
}

// Stop gracefully stops all workers and waits for in-flight runs.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	subs := w.subscriptions
	w.subscriptions = nil
	w.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}

	w.wg.Wait()

	slog.Info("workers stopped",
		"processed", w.processed.Load(),
		"failed", w.failed.Load(),
	)
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Failed            int64    `json:"failed"`
	Skipped           int64    `json:"skipped"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Failed:            w.failed.Load(),
		Skipped:           w.skipped.Load(),
	}
}
