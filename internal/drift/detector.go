// Package drift compares feature distributions between a reference dataset
// and a current dataset and decides whether the model can still be trusted.
package drift

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/features"
)

var tracer = otel.Tracer("sentinel-drift")

// Config tunes a drift run.
type Config struct {
	// SignificanceLevel is the p-value under which a feature is drifting.
	SignificanceLevel float64

	// CriticalRatio is the share of drifting features above which the
	// verdict is CRITICAL.
	CriticalRatio float64

	// SampleFraction of the current rows compared against the reference.
	SampleFraction float64

	// MaxSamples caps each side after sampling. Zero disables the cap.
	MaxSamples int

	Seed    int64
	Workers int
}

// DefaultConfig returns the standard monitoring settings.
func DefaultConfig() Config {
	return ConfigFrom(domain.DefaultMonitoringConfig())
}

// ConfigFrom builds a Config from monitoring settings. Values are taken as
// given; defaults belong to domain.DefaultMonitoringConfig, so a zero
// significance is rejected by Detect rather than replaced.
func ConfigFrom(mc domain.MonitoringConfig) Config {
	return Config{
		SignificanceLevel: mc.SignificanceLevel,
		CriticalRatio:     mc.CriticalRatio,
		SampleFraction:    mc.SampleFraction,
		MaxSamples:        mc.MaxSamples,
		Seed:              mc.Seed,
		Workers:           mc.Workers,
	}
}

func (c Config) validate() error {
	if math.IsNaN(c.SignificanceLevel) || c.SignificanceLevel <= 0 || c.SignificanceLevel >= 1 {
		return fmt.Errorf("%w: significance level %v outside (0,1)", domain.ErrValidation, c.SignificanceLevel)
	}
	if math.IsNaN(c.CriticalRatio) || c.CriticalRatio < 0 || c.CriticalRatio > 1 {
		return fmt.Errorf("%w: critical ratio %v outside [0,1]", domain.ErrValidation, c.CriticalRatio)
	}
	if math.IsNaN(c.SampleFraction) || c.SampleFraction <= 0 || c.SampleFraction > 1 {
		return fmt.Errorf("%w: sample fraction %v outside (0,1]", domain.ErrValidation, c.SampleFraction)
	}
	if c.MaxSamples < 0 {
		return fmt.Errorf("%w: max samples %d is negative", domain.ErrValidation, c.MaxSamples)
	}
	return nil
}

// Detect tests every monitored feature of current against reference and
// aggregates the outcomes into a report. Both frames must already carry the
// derived feature columns (see features.TransformFrame). Missing values are
// dropped per feature. Sampling is seeded, so equal inputs give equal reports.
func Detect(ctx context.Context, reference, current *features.Frame, monitored []string, cfg Config) (*domain.DriftReport, error) {
	ctx, span := tracer.Start(ctx, "drift.Detect")
	defer span.End()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if reference == nil || current == nil {
		return nil, fmt.Errorf("%w: reference and current datasets are required", domain.ErrValidation)
	}
	if len(monitored) == 0 {
		return nil, fmt.Errorf("%w: no monitored features", domain.ErrValidation)
	}
	names := make([]string, len(monitored))
	for i, name := range monitored {
		names[i] = features.NormalizeName(name)
		if !reference.Has(names[i]) {
			return nil, fmt.Errorf("%w: feature %q absent from reference dataset", domain.ErrValidation, names[i])
		}
		if !current.Has(names[i]) {
			return nil, fmt.Errorf("%w: feature %q absent from current dataset", domain.ErrValidation, names[i])
		}
	}

	start := time.Now()
	rng := rand.New(rand.NewSource(cfg.Seed))
	current = sample(current, cfg.SampleFraction, rng)
	if cfg.MaxSamples > 0 {
		reference = capRows(reference, cfg.MaxSamples, rng)
		current = capRows(current, cfg.MaxSamples, rng)
	}

	results, err := testFeatures(ctx, reference, current, names, cfg)
	if err != nil {
		return nil, err
	}

	report := &domain.DriftReport{
		ID:                uuid.New().String(),
		Features:          results,
		SignificanceLevel: cfg.SignificanceLevel,
		CriticalRatio:     cfg.CriticalRatio,
		Seed:              cfg.Seed,
		CreatedAt:         time.Now().UTC(),
	}
	for _, r := range results {
		if r.IsDrifting {
			report.AlertCount++
		}
	}
	report.AlertRatio = float64(report.AlertCount) / float64(len(results))
	report.Verdict = domain.VerdictStable
	if report.AlertRatio > cfg.CriticalRatio {
		report.Verdict = domain.VerdictCritical
	}

	span.SetAttributes(
		attribute.Int("drift.alert_count", report.AlertCount),
		attribute.Float64("drift.alert_ratio", report.AlertRatio),
		attribute.String("drift.verdict", string(report.Verdict)),
	)
	slog.Info("drift detection complete",
		"reference_rows", reference.Len(),
		"current_rows", current.Len(),
		"features", len(results),
		"alert_count", report.AlertCount,
		"alert_ratio", report.AlertRatio,
		"verdict", report.Verdict,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return report, nil
}

// testFeatures runs one KS test per feature with a bounded worker pool.
// Results keep the order of names.
func testFeatures(ctx context.Context, reference, current *features.Frame, names []string, cfg Config) ([]domain.FeatureDrift, error) {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}

	results := make([]domain.FeatureDrift, len(names))
	errs := make([]error, len(names))
	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)

	for i, name := range names {
		wg.Add(1)
		go func(idx int, feature string) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			if err := ctx.Err(); err != nil {
				errs[idx] = err
				return
			}
			refCol, _ := reference.Column(feature)
			curCol, _ := current.Column(feature)
			results[idx], errs[idx] = testFeature(feature, refCol, curCol, cfg.SignificanceLevel)
		}(i, name)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	for _, r := range results {
		slog.Debug("feature drift",
			"feature", r.Feature,
			"statistic", r.Statistic,
			"p_value", r.PValue,
			"is_drifting", r.IsDrifting,
		)
	}
	return results, nil
}

func testFeature(name string, refCol, curCol []float64, alpha float64) (domain.FeatureDrift, error) {
	ref := dropMissing(refCol)
	cur := dropMissing(curCol)
	if len(ref) == 0 || len(cur) == 0 {
		return domain.FeatureDrift{}, fmt.Errorf("%w: feature %q has no values after dropping missing (reference %d, current %d)",
			domain.ErrCompute, name, len(ref), len(cur))
	}

	ks, err := KSTest(ref, cur)
	if err != nil {
		return domain.FeatureDrift{}, fmt.Errorf("feature %q: %w", name, err)
	}

	fd := domain.FeatureDrift{
		Feature:       name,
		Statistic:     ks.Statistic,
		PValue:        ks.PValue,
		IsDrifting:    ks.PValue < alpha,
		ReferenceSize: len(ref),
		CurrentSize:   len(cur),
	}
	// Inputs are non-empty, so the summaries cannot fail.
	fd.ReferenceMean, _ = stats.Mean(ref)
	fd.CurrentMean, _ = stats.Mean(cur)
	fd.ReferenceMedian, _ = stats.Median(ref)
	fd.CurrentMedian, _ = stats.Median(cur)
	return fd, nil
}

func dropMissing(col []float64) []float64 {
	out := make([]float64, 0, len(col))
	for _, v := range col {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// sample keeps round(fraction*n) rows chosen without replacement.
func sample(f *features.Frame, fraction float64, rng *rand.Rand) *features.Frame {
	if fraction >= 1 {
		return f
	}
	k := int(math.Round(fraction * float64(f.Len())))
	return f.Take(pick(f.Len(), k, rng))
}

func capRows(f *features.Frame, max int, rng *rand.Rand) *features.Frame {
	if f.Len() <= max {
		return f
	}
	return f.Take(pick(f.Len(), max, rng))
}

// pick returns k distinct row indices in ascending order.
func pick(n, k int, rng *rand.Rand) []int {
	rows := rng.Perm(n)[:k]
	sort.Ints(rows)
	return rows
}
