package model

import (
	"fmt"
	"math"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// Logistic is a standard-scaled logistic regression:
// p = sigmoid(Intercept + sum(Weights[i] * (x[i] - Means[i]) / Scales[i])).
type Logistic struct {
	Intercept float64   `json:"intercept"`
	Weights   []float64 `json:"weights"`
	Means     []float64 `json:"means"`
	Scales    []float64 `json:"scales"`

	features []string
}

// ExpectedFeatures implements domain.Model.
func (l *Logistic) ExpectedFeatures() []string {
	return l.features
}

// Predict implements domain.Model.
func (l *Logistic) Predict(x []float64) (float64, error) {
	if len(x) != len(l.Weights) {
		return 0, fmt.Errorf("%w: logistic model expects %d features, got %d", domain.ErrSchemaMismatch, len(l.Weights), len(x))
	}
	z := l.Intercept
	for i, w := range l.Weights {
		z += w * (x[i] - l.Means[i]) / l.Scales[i]
	}
	p := 1 / (1 + math.Exp(-z))
	if math.IsNaN(p) {
		return 0, fmt.Errorf("%w: logistic output is NaN", domain.ErrCompute)
	}
	return p, nil
}

func (l *Logistic) validate() error {
	n := len(l.features)
	if len(l.Weights) != n {
		return fmt.Errorf("%d weights for %d features", len(l.Weights), n)
	}
	if l.Means == nil {
		l.Means = make([]float64, n)
	}
	if l.Scales == nil {
		l.Scales = make([]float64, n)
		for i := range l.Scales {
			l.Scales[i] = 1
		}
	}
	if len(l.Means) != n || len(l.Scales) != n {
		return fmt.Errorf("scaler has %d means and %d scales for %d features", len(l.Means), len(l.Scales), n)
	}
	for i, s := range l.Scales {
		if s == 0 || math.IsNaN(s) {
			return fmt.Errorf("scale of feature %q must be non-zero", l.features[i])
		}
	}
	return nil
}
