package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/features"
	"github.com/opensource-finance/sentinel/internal/model"
)

var tracer = otel.Tracer("sentinel-scoring")

// Context is an immutable snapshot of everything a scoring call needs.
// A nil Model means the service is degraded.
type Context struct {
	Model     domain.Model
	Layout    *features.Layout
	Info      domain.ModelInfo
	Threshold float64
}

// Loaded reports whether the context carries a model.
func (c *Context) Loaded() bool {
	return c.Model != nil
}

// Outcome is the result of scoring one transaction through the service.
type Outcome struct {
	Result       domain.ScoringResult
	Vector       domain.FeatureVector
	Probability  float64 // unrounded
	ModelVersion string
}

// Service scores transactions against the current Context.
// Reads are lock-free; reconfiguration builds a new Context and swaps it in.
type Service struct {
	mu      sync.Mutex // serializes writers
	current atomic.Pointer[Context]
}

// NewService creates a degraded service with the given initial threshold.
func NewService(threshold float64) (*Service, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	s := &Service{}
	s.current.Store(&Context{Threshold: threshold})
	return s, nil
}

// Current returns the active context.
func (s *Service) Current() *Context {
	return s.current.Load()
}

// Install validates an artifact's schema against the feature transform and
// makes it the active model. The threshold is preserved.
func (s *Service) Install(a *model.Artifact) error {
	if a == nil || a.Model == nil {
		return domain.ErrModelUnavailable
	}
	layout, err := features.Compile(a.ExpectedFeatures())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current.Load()
	s.current.Store(&Context{
		Model:     a.Model,
		Layout:    layout,
		Info:      a.Info,
		Threshold: prev.Threshold,
	})

	slog.Info("model installed",
		"model_version", a.Info.Version,
		"format", a.Info.Format,
		"features", layout.Len(),
		"threshold", prev.Threshold,
	)
	return nil
}

// Reload loads the artifact at path off to the side and installs it.
// On failure the active model is left untouched.
func (s *Service) Reload(path string) (*domain.ModelInfo, error) {
	a, err := model.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := s.Install(a); err != nil {
		return nil, err
	}
	info := a.Info
	return &info, nil
}

// SetThreshold applies a new decision threshold. Re-applying the active
// threshold is a no-op and reports changed=false.
func (s *Service) SetThreshold(t float64) (changed bool, err error) {
	if err := ValidateThreshold(t); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current.Load()
	if prev.Threshold == t {
		return false, nil
	}
	next := *prev
	next.Threshold = t
	s.current.Store(&next)

	slog.Info("threshold updated",
		"previous", prev.Threshold,
		"threshold", t,
		"model_version", prev.Info.Version,
	)
	return true, nil
}

// Score transforms and scores a transaction against the active context.
func (s *Service) Score(ctx context.Context, tx domain.Transaction) (*Outcome, error) {
	_, span := tracer.Start(ctx, "scoring.Score")
	defer span.End()

	c := s.current.Load()
	if !c.Loaded() {
		return nil, domain.ErrModelUnavailable
	}

	start := time.Now()
	fv, err := features.Transform(tx)
	if err != nil {
		return nil, err
	}
	p, err := predict(c.Model, c.Layout, &fv)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", c.Info.Version, err)
	}

	out := &Outcome{
		Result:       Result(p, c.Threshold),
		Vector:       fv,
		Probability:  p,
		ModelVersion: c.Info.Version,
	}
	span.SetAttributes(
		attribute.String("model.version", c.Info.Version),
		attribute.Float64("scoring.probability", out.Result.Probability),
		attribute.String("scoring.decision", string(out.Result.Decision)),
		attribute.Int64("scoring.duration_us", time.Since(start).Microseconds()),
	)
	return out, nil
}
