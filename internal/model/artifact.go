// Package model loads persisted fraud model artifacts.
//
// An artifact is a JSON envelope declaring its format, version and the
// ordered feature names it scores, plus the format-specific parameters:
//
//	{"format": "forest", "version": "rf-2025-01", "expectedFeatures": [...], "forest": {"trees": [...]}}
//	{"format": "logistic", "version": "lr-2025-01", "expectedFeatures": [...], "logistic": {...}}
package model

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// Supported artifact formats.
const (
	FormatForest   = "forest"
	FormatLogistic = "logistic"
)

// Envelope is the persisted form of a model artifact.
type Envelope struct {
	Format           string    `json:"format"`
	Version          string    `json:"version"`
	ExpectedFeatures []string  `json:"expectedFeatures"`
	Forest           *Forest   `json:"forest,omitempty"`
	Logistic         *Logistic `json:"logistic,omitempty"`
}

// Artifact is a loaded, validated model with its metadata.
type Artifact struct {
	domain.Model
	Info domain.ModelInfo
}

// Load decodes and validates an artifact.
func Load(r io.Reader) (*Artifact, error) {
	var env Envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: decode model artifact: %v", domain.ErrValidation, err)
	}
	return env.Build()
}

// LoadFile loads an artifact from disk.
func LoadFile(path string) (*Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
	}
	defer f.Close()

	a, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	a.Info.Source = path
	return a, nil
}

// Build validates the envelope and returns the model it describes.
func (e *Envelope) Build() (*Artifact, error) {
	if len(e.ExpectedFeatures) == 0 {
		return nil, fmt.Errorf("%w: artifact declares no expected features", domain.ErrValidation)
	}

	var m domain.Model
	switch e.Format {
	case FormatForest:
		if e.Forest == nil {
			return nil, fmt.Errorf("%w: forest artifact has no forest section", domain.ErrValidation)
		}
		e.Forest.features = e.ExpectedFeatures
		if err := e.Forest.validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		m = e.Forest
	case FormatLogistic:
		if e.Logistic == nil {
			return nil, fmt.Errorf("%w: logistic artifact has no logistic section", domain.ErrValidation)
		}
		e.Logistic.features = e.ExpectedFeatures
		if err := e.Logistic.validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		m = e.Logistic
	default:
		return nil, fmt.Errorf("%w: unsupported model format %q", domain.ErrValidation, e.Format)
	}

	version := e.Version
	if version == "" {
		version = e.Format
	}
	return &Artifact{
		Model: m,
		Info: domain.ModelInfo{
			Format:           e.Format,
			Version:          version,
			ExpectedFeatures: append([]string(nil), e.ExpectedFeatures...),
			LoadedAt:         time.Now().UTC(),
		},
	}, nil
}

// Save writes the envelope as indented JSON.
func (e *Envelope) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}
