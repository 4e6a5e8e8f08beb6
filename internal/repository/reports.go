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

const reportColumns = `id, tenant_id, convenio, product, description, page, status, created_at, updated_at`

// SaveBugReport stores a new report. Blank convenio, product and page get
// their defaults; a blank description is rejected.
func (r *SQLRepository) SaveBugReport(ctx context.Context, tenantID string, report *domain.BugReport) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if report == nil {
		return fmt.Errorf("%w: report is nil", ErrInvalidInput)
	}
	report.Description = strings.TrimSpace(report.Description)
	if report.Description == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidInput)
	}

	report.TenantID = tenantID
	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	if report.Status == "" {
		report.Status = domain.ReportOpen
	}
	report.Convenio = orDefault(report.Convenio, domain.ReportNotApplicable)
	report.Product = orDefault(report.Product, domain.ReportNotApplicable)
	report.Page = orDefault(report.Page, domain.DefaultReportPage)
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	report.UpdatedAt = report.CreatedAt

	_, err := r.db.ExecContext(ctx, r.rebind(`
		INSERT INTO bug_reports (`+reportColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		report.ID, tenantID, report.Convenio, report.Product, report.Description,
		report.Page, string(report.Status), report.CreatedAt, report.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save bug report: %w", err)
	}
	return nil
}

// ListBugReports returns the tenant's reports, newest first.
func (r *SQLRepository) ListBugReports(ctx context.Context, tenantID string, q domain.ReportQuery) ([]*domain.BugReport, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	q = q.Normalize()

	query := "SELECT " + reportColumns + " FROM bug_reports WHERE tenant_id = ?"
	args := []any{tenantID}
	if q.Status != "" {
		query += " AND status = ?"
		args = append(args, string(q.Status))
	}
	query += " ORDER BY created_at DESC, id LIMIT ?"
	args = append(args, q.Limit)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*domain.BugReport
	for rows.Next() {
		rep, err := scanBugReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	return reports, rows.Err()
}

// GetBugReport retrieves a single report with tenant isolation.
func (r *SQLRepository) GetBugReport(ctx context.Context, tenantID string, id string) (*domain.BugReport, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := "SELECT " + reportColumns + " FROM bug_reports WHERE tenant_id = ? AND id = ?"
	rep, err := scanBugReport(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rep, err
}

// UpdateBugReportStatus moves a report to status.
func (r *SQLRepository) UpdateBugReportStatus(ctx context.Context, tenantID string, id string, status domain.ReportStatus) (*domain.BugReport, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if _, ok := domain.ParseReportStatus(string(status)); !ok {
		return nil, fmt.Errorf("%w: unknown report status %q", ErrInvalidInput, status)
	}

	res, err := r.db.ExecContext(ctx, r.rebind(`
		UPDATE bug_reports SET status = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`), string(status), time.Now().UTC(), tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update bug report: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return r.GetBugReport(ctx, tenantID, id)
}

func scanBugReport(s scanner) (*domain.BugReport, error) {
	var rep domain.BugReport
	var status string
	if err := s.Scan(
		&rep.ID, &rep.TenantID, &rep.Convenio, &rep.Product, &rep.Description,
		&rep.Page, &status, &rep.CreatedAt, &rep.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rep.Status = domain.ReportStatus(status)
	return &rep, nil
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}
