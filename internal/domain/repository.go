// Package domain defines the core types and interfaces for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository persists the audit log of saved configurations and the
// operators' bug reports. All methods require tenantID for strict
// multi-tenancy isolation.
type Repository interface {
	// SaveAuditRecords stores every record in a single transaction.
	SaveAuditRecords(ctx context.Context, tenantID string, records []*AuditRecord) error

	// ListAuditRecords returns the tenant's records, newest first.
	ListAuditRecords(ctx context.Context, tenantID string, q AuditQuery) ([]*AuditRecord, error)

	// GetAuditRecord returns a single record by id.
	GetAuditRecord(ctx context.Context, tenantID string, id string) (*AuditRecord, error)

	// SaveBugReport stores a new report. Missing id, status and timestamps
	// are filled in on the report itself.
	SaveBugReport(ctx context.Context, tenantID string, report *BugReport) error

	// ListBugReports returns the tenant's reports, newest first.
	ListBugReports(ctx context.Context, tenantID string, q ReportQuery) ([]*BugReport, error)

	// GetBugReport returns a single report by id.
	GetBugReport(ctx context.Context, tenantID string, id string) (*BugReport, error)

	// UpdateBugReportStatus moves a report to status and returns it.
	UpdateBugReportStatus(ctx context.Context, tenantID string, id string, status ReportStatus) (*BugReport, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
