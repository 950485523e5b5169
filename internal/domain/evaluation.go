package domain

import (
	"time"
)

// Decision is the business outcome for a scored transaction.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionBlock   Decision = "BLOCK"
)

// RiskLevel buckets a scored transaction for downstream handling.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// CriticalProbability is the probability above which a transaction is CRITICAL
// regardless of the active threshold.
const CriticalProbability = 0.8

// ScoringResult is the outcome of scoring a single transaction.
type ScoringResult struct {
	Probability      float64   `json:"probability"`
	ThresholdApplied float64   `json:"thresholdApplied"`
	Decision         Decision  `json:"decision"`
	RiskLevel        RiskLevel `json:"riskLevel"`
}

// ScoreRecord is a persisted scoring result with its correlation metadata.
type ScoreRecord struct {
	ID           string        `json:"id"`
	TenantID     string        `json:"tenantId"`
	RequestID    string        `json:"requestId,omitempty"`
	TraceID      string        `json:"traceId,omitempty"`
	ModelVersion string        `json:"modelVersion"`
	Transaction  Transaction   `json:"transaction"`
	Result       ScoringResult `json:"result"`
	Reasons      []string      `json:"reasons,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// ScoreResponse is the API response for a scoring request.
type ScoreResponse struct {
	ScoringResult
	Reasons  []string      `json:"reasons,omitempty"`
	Metadata ScoreMetadata `json:"metadata"`
}

// ScoreMetadata carries correlation data back to the caller.
type ScoreMetadata struct {
	ScoreID      string `json:"scoreId"`
	TenantID     string `json:"tenantId"`
	RequestID    string `json:"requestId,omitempty"`
	TraceID      string `json:"traceId,omitempty"`
	ModelVersion string `json:"modelVersion"`
	TotalMs      int64  `json:"totalMs"`
	Replayed     bool   `json:"replayed,omitempty"`
}

// ToResponse converts a stored record into the API response shape.
func (r *ScoreRecord) ToResponse() *ScoreResponse {
	return &ScoreResponse{
		ScoringResult: r.Result,
		Reasons:       r.Reasons,
		Metadata: ScoreMetadata{
			ScoreID:      r.ID,
			TenantID:     r.TenantID,
			RequestID:    r.RequestID,
			TraceID:      r.TraceID,
			ModelVersion: r.ModelVersion,
		},
	}
}
