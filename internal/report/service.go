// Package report collects operators' bug reports and tracks their triage status.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// listPrefix namespaces report listings in the tenant's cache.
const listPrefix = "reports:"

// DefaultListTTL is how long a report listing is served from cache.
const DefaultListTTL = 5 * time.Minute

// Event is published on report.filed and report.status.
type Event struct {
	ID     string              `json:"id"`
	Status domain.ReportStatus `json:"status"`
	At     time.Time           `json:"at"`
}

// Service files reports and serves the cached listing.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
	bus   domain.EventBus
	ttl   time.Duration
}

// NewService wires the report log. cache and bus may be nil.
func NewService(repo domain.Repository, c domain.Cache, bus domain.EventBus, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultListTTL
	}
	return &Service{repo: repo, cache: c, bus: bus, ttl: ttl}
}

// File stores a new report, opened, and drops the cached listings.
func (s *Service) File(ctx context.Context, tenantID string, rep *domain.BugReport) error {
	rep.ID = ""
	rep.Status = domain.ReportOpen
	rep.CreatedAt = time.Time{}
	if err := s.repo.SaveBugReport(ctx, tenantID, rep); err != nil {
		return fmt.Errorf("save bug report: %w", err)
	}
	s.changed(ctx, tenantID, domain.TopicReportFiled, rep)
	slog.Info("bug report filed",
		"tenant_id", tenantID,
		"report_id", rep.ID,
		"convenio", rep.Convenio,
		"product", rep.Product,
	)
	return nil
}

// List returns reports, newest first, reading through the cache.
func (s *Service) List(ctx context.Context, tenantID string, q domain.ReportQuery) ([]*domain.BugReport, error) {
	q = q.Normalize()
	key := listPrefix + string(q.Status) + ":" + strconv.Itoa(q.Limit)

	if s.cache != nil {
		cached, ok, err := cache.GetJSON[[]*domain.BugReport](ctx, s.cache, tenantID, key)
		if err != nil {
			slog.Warn("report list cache read failed", "tenant_id", tenantID, "key", key, "error", err)
		}
		if ok {
			return cached, nil
		}
	}

	reports, err := s.repo.ListBugReports(ctx, tenantID, q)
	if err != nil {
		return nil, fmt.Errorf("list bug reports: %w", err)
	}
	if reports == nil {
		reports = []*domain.BugReport{}
	}

	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, tenantID, key, reports, s.ttl); err != nil {
			slog.Warn("report list cache write failed", "tenant_id", tenantID, "key", key, "error", err)
		}
	}
	return reports, nil
}

// Get returns one report.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*domain.BugReport, error) {
	return s.repo.GetBugReport(ctx, tenantID, id)
}

// SetStatus moves a report through triage.
func (s *Service) SetStatus(ctx context.Context, tenantID, id string, status domain.ReportStatus) (*domain.BugReport, error) {
	rep, err := s.repo.UpdateBugReportStatus(ctx, tenantID, id, status)
	if err != nil {
		return nil, err
	}
	s.changed(ctx, tenantID, domain.TopicReportStatus, rep)
	slog.Info("bug report status changed",
		"tenant_id", tenantID,
		"report_id", id,
		"status", rep.Status,
	)
	return rep, nil
}

func (s *Service) changed(ctx context.Context, tenantID, topic string, rep *domain.BugReport) {
	if s.cache != nil {
		if err := s.cache.DeletePrefix(ctx, tenantID, listPrefix); err != nil {
			slog.Warn("report list cache not invalidated", "tenant_id", tenantID, "error", err)
		}
	}
	if s.bus == nil {
		return
	}
	payload, _ := json.Marshal(Event{ID: rep.ID, Status: rep.Status, At: rep.UpdatedAt})
	if err := s.bus.Publish(ctx, tenantID, topic, payload); err != nil {
		slog.Warn("report event not published", "tenant_id", tenantID, "topic", topic, "error", err)
	}
}
