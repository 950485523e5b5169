// Package scoring turns a fraud probability into a business decision.
package scoring

import (
	"fmt"
	"math"

	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/features"
)

// ValidateThreshold checks that t is a usable decision cutoff.
func ValidateThreshold(t float64) error {
	if math.IsNaN(t) || t < 0 || t > 1 {
		return fmt.Errorf("%w: threshold must be in [0,1], got %v", domain.ErrValidation, t)
	}
	return nil
}

// Decide maps a probability to a decision and risk level.
// A transaction is blocked when p >= threshold. Risk is CRITICAL above
// domain.CriticalProbability regardless of threshold, HIGH when blocked,
// LOW otherwise.
func Decide(p, threshold float64) (domain.Decision, domain.RiskLevel) {
	decision := domain.DecisionApprove
	if p >= threshold {
		decision = domain.DecisionBlock
	}

	switch {
	case p > domain.CriticalProbability:
		return decision, domain.RiskCritical
	case decision == domain.DecisionBlock:
		return decision, domain.RiskHigh
	default:
		return decision, domain.RiskLow
	}
}

// Round rounds a probability to 4 decimals for reporting.
func Round(p float64) float64 {
	return math.Round(p*1e4) / 1e4
}

// Result builds the scoring result for probability p. Decision and risk
// are taken on the unrounded probability.
func Result(p, threshold float64) domain.ScoringResult {
	decision, risk := Decide(p, threshold)
	return domain.ScoringResult{
		Probability:      Round(p),
		ThresholdApplied: threshold,
		Decision:         decision,
		RiskLevel:        risk,
	}
}

// Evaluate scores a single transaction against m at the given threshold.
// It does not retain or mutate anything.
func Evaluate(tx domain.Transaction, m domain.Model, threshold float64) (*domain.ScoringResult, error) {
	if m == nil {
		return nil, domain.ErrModelUnavailable
	}
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	layout, err := features.Compile(m.ExpectedFeatures())
	if err != nil {
		return nil, err
	}
	fv, err := features.Transform(tx)
	if err != nil {
		return nil, err
	}
	p, err := predict(m, layout, &fv)
	if err != nil {
		return nil, err
	}
	res := Result(p, threshold)
	return &res, nil
}

// predict runs the model on the layout-selected values and checks the
// probability is usable.
func predict(m domain.Model, layout *features.Layout, fv *domain.FeatureVector) (float64, error) {
	p, err := m.Predict(layout.Select(fv))
	if err != nil {
		return 0, err
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, fmt.Errorf("%w: model returned probability %v outside [0,1]", domain.ErrCompute, p)
	}
	return p, nil
}

// ShouldAlert reports whether a result needs to be published as an alert.
func ShouldAlert(r *domain.ScoringResult) bool {
	return r.Decision == domain.DecisionBlock
}
