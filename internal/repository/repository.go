// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

const auditColumns = `id, tenant_id, convenio, campaign, team, product, conditions, combinator,
	bank, coefficient, commission, term, installment_coefficient, min_margin,
	safety_enabled, safety_mode, safety_value, params, created_at`

// SaveAuditRecords stores every record in one transaction. Missing ids and
// timestamps are filled in on the records themselves.
func (r *SQLRepository) SaveAuditRecords(ctx context.Context, tenantID string, records []*domain.AuditRecord) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, r.rebind(`
		INSERT INTO audit_configs (`+auditColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, rec := range records {
		if rec == nil {
			return fmt.Errorf("%w: record %d is nil", ErrInvalidInput, i+1)
		}
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		rec.TenantID = tenantID

		safetyOn := 0
		var safetyMode sql.NullString
		var safetyValue sql.NullFloat64
		if rec.SafetyOn {
			safetyOn = 1
			safetyMode = sql.NullString{String: rec.SafetyMode, Valid: true}
			safetyValue = sql.NullFloat64{Float64: rec.SafetyValue, Valid: true}
		}

		if _, err := stmt.ExecContext(ctx,
			rec.ID, tenantID, rec.Convenio, string(rec.Campaign), rec.Team, rec.Product.String(),
			jsonText(rec.Conditions, "[]"), rec.Combinator,
			rec.Bank, rec.Coefficient, rec.Commission, rec.Term, rec.InstallCoef, rec.MinMargin,
			safetyOn, safetyMode, safetyValue, jsonText(rec.Params, "{}"), rec.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to save audit record %d: %w", i+1, err)
		}
	}

	return tx.Commit()
}

// ListAuditRecords returns the tenant's records, newest first, filtered by
// convenio and product when set.
func (r *SQLRepository) ListAuditRecords(ctx context.Context, tenantID string, q domain.AuditQuery) ([]*domain.AuditRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	q = q.Normalize()

	var sb strings.Builder
	sb.WriteString("SELECT " + auditColumns + " FROM audit_configs WHERE tenant_id = ?")
	args := []any{tenantID}
	if q.Convenio != "" {
		sb.WriteString(" AND convenio = ?")
		args = append(args, q.Convenio)
	}
	if q.Product != "" {
		sb.WriteString(" AND product = ?")
		args = append(args, q.Product)
	}
	sb.WriteString(" ORDER BY created_at DESC, id LIMIT ?")
	args = append(args, q.Limit)

	rows, err := r.db.QueryContext(ctx, r.rebind(sb.String()), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.AuditRecord
	for rows.Next() {
		rec, err := scanAuditRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// GetAuditRecord retrieves a single record with tenant isolation.
func (r *SQLRepository) GetAuditRecord(ctx context.Context, tenantID string, id string) (*domain.AuditRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := "SELECT " + auditColumns + " FROM audit_configs WHERE tenant_id = ? AND id = ?"
	rec, err := scanAuditRecord(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAuditRecord(s scanner) (*domain.AuditRecord, error) {
	var rec domain.AuditRecord
	var campaign, product, conditions, params string
	var safetyOn int
	var safetyMode sql.NullString
	var safetyValue sql.NullFloat64

	if err := s.Scan(
		&rec.ID, &rec.TenantID, &rec.Convenio, &campaign, &rec.Team, &product,
		&conditions, &rec.Combinator,
		&rec.Bank, &rec.Coefficient, &rec.Commission, &rec.Term, &rec.InstallCoef, &rec.MinMargin,
		&safetyOn, &safetyMode, &safetyValue, &params, &rec.CreatedAt,
	); err != nil {
		return nil, err
	}

	rec.Campaign = domain.CampaignType(campaign)
	if p, ok := domain.ParseProduct(product); ok {
		rec.Product = p
	}
	rec.Conditions = []byte(conditions)
	rec.Params = []byte(params)
	rec.SafetyOn = safetyOn == 1
	rec.SafetyMode = safetyMode.String
	rec.SafetyValue = safetyValue.Float64
	return &rec, nil
}

func jsonText(raw []byte, empty string) string {
	if len(raw) == 0 {
		return empty
	}
	return string(raw)
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
