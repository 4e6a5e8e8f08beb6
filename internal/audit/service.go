// Package audit records the configurations used for a campaign and serves
// the history back to operators.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// historyPrefix namespaces history entries in the tenant's cache.
const historyPrefix = "audit:"

// DefaultHistoryTTL is how long a history listing is served from cache.
const DefaultHistoryTTL = 5 * time.Minute

// SavedEvent is published on domain.TopicAuditSaved after a save.
type SavedEvent struct {
	Convenio string    `json:"convenio"`
	Campaign string    `json:"campaign"`
	IDs      []string  `json:"ids"`
	SavedAt  time.Time `json:"savedAt"`
}

// Service saves audit records and serves cached history.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
	bus   domain.EventBus
	ttl   time.Duration
	now   func() time.Time
}

// NewService wires the audit log. cache and bus may be nil.
func NewService(repo domain.Repository, c domain.Cache, bus domain.EventBus, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultHistoryTTL
	}
	return &Service{
		repo:  repo,
		cache: c,
		bus:   bus,
		ttl:   ttl,
		now:   time.Now,
	}
}

// BuildRecords turns one run's parameters and configurations into one
// audit record per configuration, in configuration order.
func BuildRecords(params domain.RunParameters, configs []domain.BankConfig, now time.Time) ([]*domain.AuditRecord, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}

	records := make([]*domain.AuditRecord, 0, len(configs))
	for _, cfg := range configs {
		condJSON, err := json.Marshal(canonicalConditions(cfg.Conditions))
		if err != nil {
			return nil, fmt.Errorf("encode conditions: %w", err)
		}

		rec := &domain.AuditRecord{
			ID:          uuid.New().String(),
			Convenio:    params.ConvenioOrDefault(),
			Campaign:    params.Campaign,
			Team:        params.TeamOrDefault(),
			Product:     params.Campaign.ProductFor(cfg),
			Conditions:  condJSON,
			Combinator:  cfg.Combinator,
			Bank:        cfg.Bank,
			Coefficient: cfg.Coefficient,
			Commission:  cfg.CommissionPercent,
			Term:        cfg.Term,
			InstallCoef: cfg.InstallmentCoefficient,
			MinMargin:   cfg.MinMargin,
			Params:      paramsJSON,
			CreatedAt:   now,
		}
		if sm := cfg.SafetyMargin; sm != nil {
			rec.SafetyOn = true
			rec.SafetyMode = string(sm.Mode)
			rec.SafetyValue = float64(sm.Value)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Save records every configuration of a run, drops the tenant's cached
// history and announces the save. Cache and bus failures are logged only.
func (s *Service) Save(ctx context.Context, tenantID string, params domain.RunParameters, configs []domain.BankConfig) ([]*domain.AuditRecord, error) {
	now := s.now().UTC()
	records, err := BuildRecords(params, configs, now)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return records, nil
	}

	if err := s.repo.SaveAuditRecords(ctx, tenantID, records); err != nil {
		return nil, fmt.Errorf("save audit records: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.DeletePrefix(ctx, tenantID, historyPrefix); err != nil {
			slog.Warn("audit history cache not invalidated", "tenant_id", tenantID, "error", err)
		}
	}

	if s.bus != nil {
		ids := make([]string, len(records))
		for i, r := range records {
			ids[i] = r.ID
		}
		payload, _ := json.Marshal(SavedEvent{
			Convenio: params.ConvenioOrDefault(),
			Campaign: string(params.Campaign),
			IDs:      ids,
			SavedAt:  now,
		})
		if err := s.bus.Publish(ctx, tenantID, domain.TopicAuditSaved, payload); err != nil {
			slog.Warn("audit saved event not published", "tenant_id", tenantID, "error", err)
		}
	}

	slog.Info("audit records saved",
		"tenant_id", tenantID,
		"convenio", params.ConvenioOrDefault(),
		"count", len(records),
	)
	return records, nil
}

// History lists saved records, newest first, reading through the cache.
func (s *Service) History(ctx context.Context, tenantID string, q domain.AuditQuery) ([]*domain.AuditRecord, error) {
	q = q.Normalize()
	key := historyKey(q)

	if s.cache != nil {
		cached, ok, err := cache.GetJSON[[]*domain.AuditRecord](ctx, s.cache, tenantID, key)
		if err != nil {
			slog.Warn("audit history cache read failed", "tenant_id", tenantID, "key", key, "error", err)
		}
		if ok {
			return cached, nil
		}
	}

	records, err := s.repo.ListAuditRecords(ctx, tenantID, q)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	if records == nil {
		records = []*domain.AuditRecord{}
	}

	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, tenantID, key, records, s.ttl); err != nil {
			slog.Warn("audit history cache write failed", "tenant_id", tenantID, "key", key, "error", err)
		}
	}
	return records, nil
}

// Get returns one saved record.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*domain.AuditRecord, error) {
	return s.repo.GetAuditRecord(ctx, tenantID, id)
}

func historyKey(q domain.AuditQuery) string {
	return historyPrefix + q.Convenio + ":" + q.Product + ":" + strconv.Itoa(q.Limit)
}

// canonicalConditions drops the fields a condition type does not use.
// Incomplete specs are kept verbatim so the record shows what was sent.
func canonicalConditions(specs []domain.ConditionSpec) []domain.ConditionSpec {
	out := make([]domain.ConditionSpec, 0, len(specs))
	for _, s := range specs {
		if c, err := s.Condition(); err == nil {
			s = domain.SpecOf(c)
		}
		out = append(out, s)
	}
	return out
}
