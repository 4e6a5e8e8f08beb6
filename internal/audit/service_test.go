package audit

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
)

type countingRepo struct {
	domain.Repository
	lists atomic.Int32
}

func (r *countingRepo) ListAuditRecords(ctx context.Context, tenantID string, q domain.AuditQuery) ([]*domain.AuditRecord, error) {
	r.lists.Add(1)
	return r.Repository.ListAuditRecords(ctx, tenantID, q)
}

func newRepo(t *testing.T) *countingRepo {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: path})
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
		os.Remove(path)
	})
	return &countingRepo{Repository: repo}
}

func mixedRun() (domain.RunParameters, []domain.BankConfig) {
	params := domain.DefaultRunParameters(domain.CampaignBenefitCard)
	params.Convenio = "govsp"
	configs := []domain.BankConfig{
		{
			Product:                domain.ProductBenefit,
			Bank:                   "243",
			Coefficient:            22.5,
			InstallmentCoefficient: 0.045,
			CommissionPercent:      10,
			Term:                   96,
			MinMargin:              50,
			Combinator:             "and",
			Conditions: []domain.ConditionSpec{
				{Type: domain.ConditionColumnValue, Column: domain.ColBenefitAvailable, Operator: ">", Value: strp("100")},
			},
		},
		{
			Product:           domain.ProductCard,
			Bank:              "318",
			Coefficient:       20,
			CommissionPercent: 8,
			Term:              84,
			SafetyMargin:      &domain.SafetyMargin{Mode: domain.SafetyPercent, Value: 5},
		},
	}
	return params, configs
}

func strp(s string) *string { return &s }

func TestBuildRecords(t *testing.T) {
	now := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	params, configs := mixedRun()

	records, err := BuildRecords(params, configs, now)
	require.NoError(t, err)
	require.Len(t, records, 2)

	first, second := records[0], records[1]
	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "govsp", first.Convenio)
	assert.Equal(t, "outbound", first.Team)
	assert.Equal(t, domain.ProductBenefit, first.Product)
	assert.Equal(t, domain.ProductCard, second.Product)
	assert.Equal(t, now, first.CreatedAt)
	assert.False(t, first.SafetyOn)
	assert.True(t, second.SafetyOn)
	assert.Equal(t, "percent", second.SafetyMode)
	assert.Equal(t, 5.0, second.SafetyValue)
	assert.JSONEq(t, "[]", string(second.Conditions))

	var conds []domain.ConditionSpec
	require.NoError(t, json.Unmarshal(first.Conditions, &conds))
	require.Len(t, conds, 1)
	assert.Equal(t, domain.ColBenefitAvailable, conds[0].Column)

	var decoded domain.RunParameters
	require.NoError(t, json.Unmarshal(first.Params, &decoded))
	assert.Equal(t, domain.CampaignBenefitCard, decoded.Campaign)
}

func TestBuildRecordsCanonicalConditions(t *testing.T) {
	params := domain.DefaultRunParameters(domain.CampaignCard)
	configs := []domain.BankConfig{{
		Bank: "318",
		Conditions: []domain.ConditionSpec{
			{Type: domain.ConditionColumnWords, Column: domain.ColBond, Column2: domain.ColWorkplace, Operator: ">", Words: []string{"efetivo"}},
			{Type: domain.ConditionColumnValue, Column: domain.ColCardAvailable},
		},
	}}

	records, err := BuildRecords(params, configs, time.Now())
	require.NoError(t, err)
	require.Len(t, records, 1)

	var stored []domain.ConditionSpec
	require.NoError(t, json.Unmarshal(records[0].Conditions, &stored))
	require.Len(t, stored, 2)
	assert.Equal(t, domain.ConditionSpec{Type: domain.ConditionColumnWords, Column: domain.ColBond, Words: []string{"efetivo"}}, stored[0])
	assert.Equal(t, configs[0].Conditions[1], stored[1])

	records, err = BuildRecords(params, []domain.BankConfig{{Bank: "318"}}, time.Now())
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(records[0].Conditions))
}

func TestBuildRecordsForcesCampaignProduct(t *testing.T) {
	params := domain.DefaultRunParameters(domain.CampaignNew)
	records, err := BuildRecords(params, []domain.BankConfig{{Product: domain.ProductCard, Bank: "001"}}, time.Now())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.ProductLoan, records[0].Product)
	assert.Equal(t, "geral", records[0].Convenio)
}

func TestServiceSaveAndHistory(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	lru := cache.NewLRUCache(100)
	events := bus.NewChannelBus(10)
	defer events.Close()

	saved := make(chan *domain.Message, 1)
	_, err := events.Subscribe(ctx, "tenant-001", domain.TopicAuditSaved, func(ctx context.Context, msg *domain.Message) error {
		saved <- msg
		return nil
	})
	require.NoError(t, err)

	svc := NewService(repo, lru, events, time.Minute)
	params, configs := mixedRun()

	history, err := svc.History(ctx, "tenant-001", domain.AuditQuery{})
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.EqualValues(t, 1, repo.lists.Load())

	records, err := svc.Save(ctx, "tenant-001", params, configs)
	require.NoError(t, err)
	require.Len(t, records, 2)

	select {
	case msg := <-saved:
		var ev SavedEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &ev))
		assert.Equal(t, "govsp", ev.Convenio)
		assert.Len(t, ev.IDs, 2)
	case <-time.After(time.Second):
		t.Fatal("expected an audit saved event")
	}

	history, err = svc.History(ctx, "tenant-001", domain.AuditQuery{Convenio: "todos"})
	require.NoError(t, err)
	assert.Len(t, history, 2, "save must invalidate the cached empty listing")
	assert.EqualValues(t, 2, repo.lists.Load())

	again, err := svc.History(ctx, "tenant-001", domain.AuditQuery{Convenio: "all"})
	require.NoError(t, err)
	assert.Len(t, again, 2)
	assert.EqualValues(t, 2, repo.lists.Load(), "second listing must come from cache")

	cards, err := svc.History(ctx, "tenant-001", domain.AuditQuery{Product: "cartão"})
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "318", cards[0].Bank)

	got, err := svc.Get(ctx, "tenant-001", records[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "243", got.Bank)
}

func TestServiceWithoutCacheOrBus(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	svc := NewService(repo, nil, nil, 0)
	params, configs := mixedRun()

	_, err := svc.Save(ctx, "tenant-001", params, configs)
	require.NoError(t, err)

	history, err := svc.History(ctx, "tenant-001", domain.AuditQuery{Convenio: "govsp"})
	require.NoError(t, err)
	assert.Len(t, history, 2)

	_, err = svc.Save(ctx, "", params, configs)
	assert.ErrorIs(t, err, repository.ErrInvalidInput)
}

func TestServiceSaveNothing(t *testing.T) {
	svc := NewService(newRepo(t), nil, nil, 0)
	records, err := svc.Save(context.Background(), "tenant-001", domain.DefaultRunParameters(domain.CampaignNew), nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}
