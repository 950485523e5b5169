// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/sentinel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = fmt.Errorf("%w: invalid input", domain.ErrValidation)
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	db, err := open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
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

	// Run migrations
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

// SaveScore stores a scoring result with tenant isolation.
func (r *SQLRepository) SaveScore(ctx context.Context, tenantID string, rec *domain.ScoreRecord) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	txData, _ := json.Marshal(rec.Transaction)
	reasons, _ := json.Marshal(rec.Reasons)

	query := `
		INSERT INTO scores (
			id, tenant_id, request_id, trace_id, model_version,
			probability, threshold, decision, risk_level,
			transaction_data, reasons, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, tenantID, rec.RequestID, rec.TraceID, rec.ModelVersion,
		rec.Result.Probability, rec.Result.ThresholdApplied,
		string(rec.Result.Decision), string(rec.Result.RiskLevel),
		string(txData), string(reasons), rec.CreatedAt,
	)
	return err
}

// GetScore retrieves a scoring result by ID with tenant isolation.
func (r *SQLRepository) GetScore(ctx context.Context, tenantID string, scoreID string) (*domain.ScoreRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, request_id, trace_id, model_version,
			   probability, threshold, decision, risk_level,
			   transaction_data, reasons, created_at
		FROM scores
		WHERE tenant_id = ? AND id = ?
	`

	var rec domain.ScoreRecord
	var requestID, traceID sql.NullString
	var decision, risk, txData, reasons string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, scoreID).Scan(
		&rec.ID, &rec.TenantID, &requestID, &traceID, &rec.ModelVersion,
		&rec.Result.Probability, &rec.Result.ThresholdApplied, &decision, &risk,
		&txData, &reasons, &rec.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rec.RequestID = requestID.String
	rec.TraceID = traceID.String
	rec.Result.Decision = domain.Decision(decision)
	rec.Result.RiskLevel = domain.RiskLevel(risk)
	if err := json.Unmarshal([]byte(txData), &rec.Transaction); err != nil {
		return nil, fmt.Errorf("failed to parse score transaction: %w", err)
	}
	json.Unmarshal([]byte(reasons), &rec.Reasons)

	return &rec, nil
}

// SaveDriftReport stores a monitoring run.
func (r *SQLRepository) SaveDriftReport(ctx context.Context, report *domain.DriftReport) error {
	if report == nil || report.ID == "" {
		return fmt.Errorf("%w: report ID is required", ErrInvalidInput)
	}

	data, err := json.Marshal(report)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO drift_reports (id, verdict, alert_count, alert_ratio, report, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		report.ID, string(report.Verdict), report.AlertCount, report.AlertRatio,
		string(data), report.CreatedAt,
	)
	return err
}

// LatestDriftReport retrieves the most recent monitoring run.
func (r *SQLRepository) LatestDriftReport(ctx context.Context) (*domain.DriftReport, error) {
	query := `
		SELECT report
		FROM drift_reports
		ORDER BY created_at DESC
		LIMIT 1
	`

	var data string
	err := r.db.QueryRowContext(ctx, query).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var report domain.DriftReport
	if err := json.Unmarshal([]byte(data), &report); err != nil {
		return nil, fmt.Errorf("failed to parse drift report: %w", err)
	}
	return &report, nil
}

// SaveOptimization stores a threshold optimization run.
func (r *SQLRepository) SaveOptimization(ctx context.Context, run *domain.OptimizationResult) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("%w: run ID is required", ErrInvalidInput)
	}

	data, err := json.Marshal(run)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO optimization_runs (
			id, model_version, best_threshold, best_cost, baseline_cost,
			savings, records, result, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		run.ID, run.ModelVersion, run.BestThreshold, run.BestCost, run.BaselineCost,
		run.Savings, run.Records, string(data), run.CreatedAt,
	)
	return err
}

// LatestOptimization retrieves the most recent optimization run.
func (r *SQLRepository) LatestOptimization(ctx context.Context) (*domain.OptimizationResult, error) {
	query := `
		SELECT result
		FROM optimization_runs
		ORDER BY created_at DESC
		LIMIT 1
	`

	var data string
	err := r.db.QueryRowContext(ctx, query).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var run domain.OptimizationResult
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return nil, fmt.Errorf("failed to parse optimization run: %w", err)
	}
	return &run, nil
}

// SaveRuleConfig stores a rule configuration with tenant isolation.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, tenantID string, rule *domain.RuleConfig) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()
	created := rule.CreatedAt
	if created.IsZero() {
		created = now
	}

	query := `
		INSERT INTO rule_configs (
			id, tenant_id, name, description, version, expression, reason, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			reason = excluded.reason,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Version, rule.Expression, rule.Reason, enabled,
		created, now,
	)
	return err
}

// GetRuleConfig retrieves the latest enabled version of a rule with tenant isolation.
func (r *SQLRepository) GetRuleConfig(ctx context.Context, tenantID string, ruleID string) (*domain.RuleConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, reason, enabled, created_at
		FROM rule_configs
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	cfg, err := scanRule(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return cfg, err
}

// ListRuleConfigs retrieves all active rule configurations for a tenant.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context, tenantID string) ([]*domain.RuleConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, reason, enabled, created_at
		FROM rule_configs
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.RuleConfig
	for rows.Next() {
		cfg, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}

	return configs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*domain.RuleConfig, error) {
	var cfg domain.RuleConfig
	var description sql.NullString
	var enabled int

	if err := row.Scan(
		&cfg.ID, &cfg.TenantID, &cfg.Name, &description,
		&cfg.Version, &cfg.Expression, &cfg.Reason, &enabled, &cfg.CreatedAt,
	); err != nil {
		return nil, err
	}

	cfg.Description = description.String
	cfg.Enabled = enabled == 1
	return &cfg, nil
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

	// Convert ? to $1, $2, etc.
	var sb strings.Builder
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			n++
		} else {
			sb.WriteByte(query[i])
		}
	}
	return sb.String()
}
