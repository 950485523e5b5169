// Package optimizer searches the decision threshold that minimizes the
// expected business cost of a model on a labeled dataset.
package optimizer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/features"
)

var tracer = otel.Tracer("sentinel-optimizer")

// BaselineThreshold is the naive cutoff savings are reported against.
const BaselineThreshold = 0.5

// DefaultGrid returns the thresholds 0.01, 0.02, ..., 0.99.
func DefaultGrid() []float64 {
	grid := make([]float64, 0, 99)
	for i := 1; i <= 99; i++ {
		grid = append(grid, float64(i)/100)
	}
	return grid
}

// Options tunes an optimization run.
type Options struct {
	// Grid holds candidate thresholds in increasing order. Empty means DefaultGrid.
	Grid []float64

	// Workers bounds how many grid points are evaluated at once.
	Workers int

	// ModelVersion is recorded on the result.
	ModelVersion string
}

// Optimize scores every record once, evaluates the cost of every grid
// threshold and returns the cheapest one. Ties go to the smallest threshold.
func Optimize(ctx context.Context, set *domain.LabeledSet, m domain.Model, costs domain.CostTable, opts Options) (*domain.OptimizationResult, error) {
	ctx, span := tracer.Start(ctx, "optimizer.Optimize")
	defer span.End()

	if m == nil {
		return nil, domain.ErrModelUnavailable
	}
	if set == nil || set.Len() == 0 {
		return nil, fmt.Errorf("%w: dataset is empty", domain.ErrValidation)
	}
	if len(set.Labels) != set.Len() {
		return nil, fmt.Errorf("%w: %d vectors but %d labels", domain.ErrValidation, set.Len(), len(set.Labels))
	}
	if err := costs.Validate(); err != nil {
		return nil, err
	}
	grid := opts.Grid
	if len(grid) == 0 {
		grid = DefaultGrid()
	}
	if err := validateGrid(grid); err != nil {
		return nil, err
	}

	start := time.Now()
	probs, err := Probabilities(set.Vectors, m)
	if err != nil {
		return nil, err
	}

	curve, err := costCurve(ctx, probs, set.Labels, costs, grid, opts.Workers)
	if err != nil {
		return nil, err
	}

	best := curve[0]
	for _, pt := range curve[1:] {
		if pt.Cost < best.Cost {
			best = pt
		}
	}

	baseline := Confusion(probs, set.Labels, BaselineThreshold)
	baselineCost := costs.Cost(baseline)

	result := &domain.OptimizationResult{
		ID:                uuid.New().String(),
		BestThreshold:     best.Threshold,
		BestCost:          best.Cost,
		BestConfusion:     best.Confusion,
		BaselineThreshold: BaselineThreshold,
		BaselineCost:      baselineCost,
		Savings:           baselineCost - best.Cost,
		Costs:             costs,
		Records:           set.Len(),
		Curve:             curve,
		ModelVersion:      opts.ModelVersion,
		CreatedAt:         time.Now().UTC(),
	}

	span.SetAttributes(
		attribute.Float64("optimizer.best_threshold", result.BestThreshold),
		attribute.Float64("optimizer.best_cost", result.BestCost),
		attribute.Int("optimizer.records", result.Records),
	)
	slog.Info("threshold optimization complete",
		"records", result.Records,
		"grid_points", len(grid),
		"best_threshold", result.BestThreshold,
		"best_cost", result.BestCost,
		"baseline_cost", result.BaselineCost,
		"savings", result.Savings,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, nil
}

// Probabilities scores every vector once in the model's feature order.
func Probabilities(vectors []domain.FeatureVector, m domain.Model) ([]float64, error) {
	layout, err := features.Compile(m.ExpectedFeatures())
	if err != nil {
		return nil, err
	}
	probs := make([]float64, len(vectors))
	for i := range vectors {
		p, err := m.Predict(layout.Select(&vectors[i]))
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if math.IsNaN(p) || p < 0 || p > 1 {
			return nil, fmt.Errorf("%w: record %d: probability %v outside [0,1]", domain.ErrCompute, i, p)
		}
		probs[i] = p
	}
	return probs, nil
}

// Confusion counts outcomes of blocking every record with p >= threshold.
func Confusion(probs []float64, labels []bool, threshold float64) domain.Confusion {
	var m domain.Confusion
	for i, p := range probs {
		m.Add(p >= threshold, labels[i])
	}
	return m
}

// costCurve evaluates every grid point with a bounded worker pool.
// The curve keeps grid order.
func costCurve(ctx context.Context, probs []float64, labels []bool, costs domain.CostTable, grid []float64, workers int) ([]domain.CostPoint, error) {
	if workers <= 0 {
		workers = 4
	}

	curve := make([]domain.CostPoint, len(grid))
	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)

	for i, th := range grid {
		wg.Add(1)
		go func(idx int, threshold float64) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			m := Confusion(probs, labels, threshold)
			curve[idx] = domain.CostPoint{
				Threshold: threshold,
				Cost:      costs.Cost(m),
				Confusion: m,
			}
		}(i, th)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return curve, nil
}

func validateGrid(grid []float64) error {
	for i, th := range grid {
		if math.IsNaN(th) || th < 0 || th > 1 {
			return fmt.Errorf("%w: grid threshold %v outside [0,1]", domain.ErrValidation, th)
		}
		if i > 0 && th <= grid[i-1] {
			return fmt.Errorf("%w: grid must be strictly increasing at index %d", domain.ErrValidation, i)
		}
	}
	return nil
}
