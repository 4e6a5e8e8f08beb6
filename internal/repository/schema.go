package repository

// Schema definitions for the Kestrel audit log and bug reports.
// Compatible with both SQLite and PostgreSQL.

const schemaAuditConfigs = `
CREATE TABLE IF NOT EXISTS audit_configs (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    convenio TEXT NOT NULL,
    campaign TEXT NOT NULL,
    team TEXT NOT NULL,
    product TEXT NOT NULL,
    conditions TEXT NOT NULL,
    combinator TEXT NOT NULL,
    bank TEXT NOT NULL,
    coefficient REAL NOT NULL,
    commission REAL NOT NULL,
    term INTEGER NOT NULL,
    installment_coefficient REAL NOT NULL,
    min_margin REAL NOT NULL,
    safety_enabled INTEGER NOT NULL DEFAULT 0,
    safety_mode TEXT,
    safety_value REAL,
    params TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_configs_tenant ON audit_configs(tenant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_audit_configs_convenio ON audit_configs(tenant_id, convenio);
CREATE INDEX IF NOT EXISTS idx_audit_configs_product ON audit_configs(tenant_id, product);
`

const schemaBugReports = `
CREATE TABLE IF NOT EXISTS bug_reports (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    convenio TEXT NOT NULL,
    product TEXT NOT NULL,
    description TEXT NOT NULL,
    page TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'open',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bug_reports_tenant ON bug_reports(tenant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_bug_reports_status ON bug_reports(tenant_id, status);
`

// AllSchemas returns all schema definitions in order.
func AllSchemas() []string {
	return []string{
		schemaAuditConfigs,
		schemaBugReports,
	}
}
