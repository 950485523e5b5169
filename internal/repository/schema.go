package repository

// Schema definitions for the Sentinel database.
// Compatible with both SQLite and PostgreSQL.

const schemaScores = `
CREATE TABLE IF NOT EXISTS scores (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    request_id TEXT,
    trace_id TEXT,
    model_version TEXT NOT NULL,
    probability REAL NOT NULL,
    threshold REAL NOT NULL,
    decision TEXT NOT NULL,
    risk_level TEXT NOT NULL,
    transaction_data TEXT NOT NULL,
    reasons TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scores_tenant ON scores(tenant_id);
CREATE INDEX IF NOT EXISTS idx_scores_request ON scores(tenant_id, request_id);
CREATE INDEX IF NOT EXISTS idx_scores_decision ON scores(tenant_id, decision);
CREATE INDEX IF NOT EXISTS idx_scores_created ON scores(tenant_id, created_at);
`

// schemaDriftReports stores one row per monitoring run. The full report,
// including per-feature results, is kept as JSON.
const schemaDriftReports = `
CREATE TABLE IF NOT EXISTS drift_reports (
    id TEXT PRIMARY KEY,
    verdict TEXT NOT NULL,
    alert_count INTEGER NOT NULL,
    alert_ratio REAL NOT NULL,
    report TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_drift_reports_created ON drift_reports(created_at);
`

const schemaOptimizationRuns = `
CREATE TABLE IF NOT EXISTS optimization_runs (
    id TEXT PRIMARY KEY,
    model_version TEXT,
    best_threshold REAL NOT NULL,
    best_cost REAL NOT NULL,
    baseline_cost REAL NOT NULL,
    savings REAL NOT NULL,
    records INTEGER NOT NULL,
    result TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_optimization_runs_created ON optimization_runs(created_at);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    reason TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_tenant ON rule_configs(tenant_id);
CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaScores,
		schemaDriftReports,
		schemaOptimizationRuns,
		schemaRuleConfigs,
	}
}
