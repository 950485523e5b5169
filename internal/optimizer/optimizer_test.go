package optimizer

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/features"
)

// v1Model uses v1 as the fraud probability.
type v1Model struct{}

func (v1Model) ExpectedFeatures() []string { return []string{"v1", "amount"} }

func (v1Model) Predict(x []float64) (float64, error) { return x[0], nil }

func labeledSet(t *testing.T, probs []float64, labels []bool) *domain.LabeledSet {
	t.Helper()
	set := &domain.LabeledSet{Labels: labels}
	for _, p := range probs {
		tx := domain.Transaction{Time: 100, Amount: 10}
		tx.V[0] = p
		fv, err := features.Transform(tx)
		if err != nil {
			t.Fatal(err)
		}
		set.Vectors = append(set.Vectors, fv)
	}
	return set
}

func TestDefaultGrid(t *testing.T) {
	grid := DefaultGrid()
	if len(grid) != 99 {
		t.Fatalf("expected 99 points, got %d", len(grid))
	}
	if grid[0] != 0.01 || grid[98] != 0.99 || grid[49] != 0.5 {
		t.Errorf("unexpected grid bounds %v %v %v", grid[0], grid[49], grid[98])
	}
}

func TestCostLiteral(t *testing.T) {
	m := domain.Confusion{TruePositives: 10, FalsePositives: 2, TrueNegatives: 80, FalseNegatives: 3}
	costs := domain.CostTable{FalseNegative: 100, FalsePositive: 2}
	if got := costs.Cost(m); got != 304 {
		t.Errorf("expected 304, got %v", got)
	}
}

func TestOptimizePerfectSeparation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	var probs []float64
	var labels []bool
	for i := 0; i < 500; i++ {
		fraud := rng.Float64() < 0.1
		labels = append(labels, fraud)
		if fraud {
			probs = append(probs, 1)
		} else {
			probs = append(probs, 0)
		}
	}

	res, err := Optimize(context.Background(), labeledSet(t, probs, labels), v1Model{}, domain.DefaultCostTable(), Options{})
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if res.BestCost != 0 {
		t.Errorf("expected zero cost, got %v", res.BestCost)
	}
	if res.BestThreshold != 0.01 {
		t.Errorf("expected smallest tied threshold 0.01, got %v", res.BestThreshold)
	}
	for _, pt := range res.Curve {
		if pt.Cost != 0 {
			t.Errorf("threshold %v: expected zero cost, got %v", pt.Threshold, pt.Cost)
		}
	}
	if len(res.Curve) != 99 {
		t.Errorf("expected 99 curve points, got %d", len(res.Curve))
	}
}

func TestOptimizeFindsMinimum(t *testing.T) {
	// Frauds score 0.3 and 0.6, legit records score 0.1, 0.2 and 0.4.
	probs := []float64{0.3, 0.6, 0.1, 0.2, 0.4}
	labels := []bool{true, true, false, false, false}
	costs := domain.CostTable{FalseNegative: 100, FalsePositive: 2}

	res, err := Optimize(context.Background(), labeledSet(t, probs, labels), v1Model{}, costs, Options{Workers: 3})
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}

	// Any threshold in (0.2, 0.3] catches both frauds with one false positive.
	if res.BestThreshold != 0.21 {
		t.Errorf("expected best threshold 0.21, got %v", res.BestThreshold)
	}
	if res.BestCost != 2 {
		t.Errorf("expected best cost 2, got %v", res.BestCost)
	}
	if res.BestConfusion.FalsePositives != 1 || res.BestConfusion.FalseNegatives != 0 {
		t.Errorf("unexpected confusion %+v", res.BestConfusion)
	}

	// At 0.5 the 0.3 fraud is missed.
	if res.BaselineCost != 100 {
		t.Errorf("expected baseline cost 100, got %v", res.BaselineCost)
	}
	if res.Savings != 98 {
		t.Errorf("expected savings 98, got %v", res.Savings)
	}

	for i := 1; i < len(res.Curve); i++ {
		if res.Curve[i].Threshold <= res.Curve[i-1].Threshold {
			t.Fatal("curve not in grid order")
		}
	}
}

func TestOptimizeCustomGrid(t *testing.T) {
	probs := []float64{0.3, 0.6, 0.1}
	labels := []bool{true, true, false}
	res, err := Optimize(context.Background(), labeledSet(t, probs, labels), v1Model{}, domain.DefaultCostTable(), Options{Grid: []float64{0.5, 0.7}})
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if len(res.Curve) != 2 || res.BestThreshold != 0.5 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestOptimizeValidation(t *testing.T) {
	set := labeledSet(t, []float64{0.2}, []bool{true})
	ctx := context.Background()

	tests := []struct {
		name  string
		set   *domain.LabeledSet
		costs domain.CostTable
		grid  []float64
		want  error
	}{
		{"EmptyDataset", &domain.LabeledSet{}, domain.DefaultCostTable(), nil, domain.ErrValidation},
		{"NegativeFalsePositiveCost", set, domain.CostTable{FalseNegative: 100, FalsePositive: -1}, nil, domain.ErrValidation},
		{"NegativeFalseNegativeCost", set, domain.CostTable{FalseNegative: -100, FalsePositive: 2}, nil, domain.ErrValidation},
		{"UnorderedGrid", set, domain.DefaultCostTable(), []float64{0.5, 0.4}, domain.ErrValidation},
		{"GridOutOfRange", set, domain.DefaultCostTable(), []float64{0.5, 1.5}, domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Optimize(ctx, tt.set, v1Model{}, tt.costs, Options{Grid: tt.grid})
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	t.Run("NoModel", func(t *testing.T) {
		_, err := Optimize(ctx, set, nil, domain.DefaultCostTable(), Options{})
		if !errors.Is(err, domain.ErrModelUnavailable) {
			t.Errorf("expected model unavailable, got %v", err)
		}
	})

	t.Run("BadProbability", func(t *testing.T) {
		bad := &domain.LabeledSet{Vectors: make([]domain.FeatureVector, 1), Labels: []bool{true}}
		bad.Vectors[0].V[0] = 2
		_, err := Optimize(ctx, bad, v1Model{}, domain.DefaultCostTable(), Options{})
		if !errors.Is(err, domain.ErrCompute) {
			t.Errorf("expected compute error, got %v", err)
		}
	})
}
