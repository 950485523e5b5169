package domain

import "time"

// Model is a pre-trained fraud probability scorer.
// Implementations are immutable once loaded and safe for concurrent use.
type Model interface {
	// ExpectedFeatures returns the ordered feature names Predict expects.
	ExpectedFeatures() []string

	// Predict returns the fraud probability in [0,1] for x, where x is ordered
	// as ExpectedFeatures.
	Predict(x []float64) (float64, error)
}

// ModelInfo describes a loaded model artifact.
type ModelInfo struct {
	Format           string    `json:"format"`
	Version          string    `json:"version"`
	Source           string    `json:"source,omitempty"`
	ExpectedFeatures []string  `json:"expectedFeatures"`
	LoadedAt         time.Time `json:"loadedAt"`
}
