package domain

import (
	"context"
	"time"
)

// Cache holds short-lived state shared by API instances: replayable score
// responses keyed by client request ID, and the latest drift verdict.
// Misses are reported as nil, nil.
type Cache interface {
	// GetScore retrieves a previously returned score response by request ID.
	GetScore(ctx context.Context, tenantID string, requestID string) (*ScoreResponse, error)

	// SetScore remembers a score response so a retried request replays it.
	SetScore(ctx context.Context, tenantID string, requestID string, resp *ScoreResponse, ttl time.Duration) error

	// GetVerdict retrieves the latest drift verdict, shared by every tenant.
	GetVerdict(ctx context.Context) (*VerdictSummary, error)

	// SetVerdict caches the latest drift verdict.
	SetVerdict(ctx context.Context, v *VerdictSummary, ttl time.Duration) error

	Ping(ctx context.Context) error
	Close() error
}

// VerdictSummary is the compact drift state surfaced on health probes.
type VerdictSummary struct {
	ReportID   string    `json:"reportId"`
	Verdict    Verdict   `json:"verdict"`
	AlertRatio float64   `json:"alertRatio"`
	Drifting   []string  `json:"drifting,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Summary returns the compact form of a drift report.
func (r *DriftReport) Summary() *VerdictSummary {
	return &VerdictSummary{
		ReportID:   r.ID,
		Verdict:    r.Verdict,
		AlertRatio: r.AlertRatio,
		Drifting:   r.Drifting(),
		CreatedAt:  r.CreatedAt,
	}
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
