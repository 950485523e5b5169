// Package domain defines the core interfaces and types for Sentinel.
package domain

import (
	"context"
	"time"
)

// GlobalTenant owns records shared by every tenant, such as explanation rules
// and monitoring runs.
const GlobalTenant = "*"

// Repository defines the interface for data persistence.
// Score methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Scoring results
	SaveScore(ctx context.Context, tenantID string, rec *ScoreRecord) error
	GetScore(ctx context.Context, tenantID string, scoreID string) (*ScoreRecord, error)

	// Monitoring runs
	SaveDriftReport(ctx context.Context, report *DriftReport) error
	LatestDriftReport(ctx context.Context) (*DriftReport, error)

	// Threshold optimization runs
	SaveOptimization(ctx context.Context, run *OptimizationResult) error
	LatestOptimization(ctx context.Context) (*OptimizationResult, error)

	// Explanation rule configuration
	SaveRuleConfig(ctx context.Context, tenantID string, rule *RuleConfig) error
	GetRuleConfig(ctx context.Context, tenantID string, ruleID string) (*RuleConfig, error)
	ListRuleConfigs(ctx context.Context, tenantID string) ([]*RuleConfig, error)

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
