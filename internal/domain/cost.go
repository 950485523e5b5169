package domain

import (
	"fmt"
	"time"
)

// CostTable holds the business cost of each error type.
type CostTable struct {
	// FalseNegative is the loss for a missed fraud (chargeback).
	FalseNegative float64 `json:"costFalseNegative"`

	// FalsePositive is the friction cost of blocking a legitimate customer.
	FalsePositive float64 `json:"costFalsePositive"`
}

// DefaultCostTable returns the reference business costs.
func DefaultCostTable() CostTable {
	return CostTable{FalseNegative: 100, FalsePositive: 2}
}

// Validate checks that both costs are usable.
func (c CostTable) Validate() error {
	if c.FalseNegative <= 0 {
		return fmt.Errorf("%w: cost_false_negative must be > 0, got %v", ErrValidation, c.FalseNegative)
	}
	if c.FalsePositive < 0 {
		return fmt.Errorf("%w: cost_false_positive must be >= 0, got %v", ErrValidation, c.FalsePositive)
	}
	return nil
}

// Cost returns the total cost of a confusion matrix under this table.
func (c CostTable) Cost(m Confusion) float64 {
	return float64(m.FalseNegatives)*c.FalseNegative + float64(m.FalsePositives)*c.FalsePositive
}

// Confusion is a binary confusion matrix.
type Confusion struct {
	TruePositives  int `json:"tp"`
	FalsePositives int `json:"fp"`
	TrueNegatives  int `json:"tn"`
	FalseNegatives int `json:"fn"`
}

// Add records one prediction against its label.
func (m *Confusion) Add(predicted, actual bool) {
	switch {
	case predicted && actual:
		m.TruePositives++
	case predicted && !actual:
		m.FalsePositives++
	case !predicted && actual:
		m.FalseNegatives++
	default:
		m.TrueNegatives++
	}
}

// CostPoint is one point of a cost curve.
type CostPoint struct {
	Threshold float64   `json:"threshold"`
	Cost      float64   `json:"cost"`
	Confusion Confusion `json:"confusion"`
}

// OptimizationResult is the output of a threshold optimization run.
type OptimizationResult struct {
	ID                string      `json:"id"`
	BestThreshold     float64     `json:"bestThreshold"`
	BestCost          float64     `json:"bestCost"`
	BestConfusion     Confusion   `json:"bestConfusion"`
	BaselineThreshold float64     `json:"baselineThreshold"`
	BaselineCost      float64     `json:"baselineCost"`
	Savings           float64     `json:"savings"`
	Costs             CostTable   `json:"costs"`
	Records           int         `json:"records"`
	Curve             []CostPoint `json:"curve"`
	ModelVersion      string      `json:"modelVersion,omitempty"`
	CreatedAt         time.Time   `json:"createdAt"`
}
