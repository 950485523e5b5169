package features

import (
	"fmt"

	"github.com/opensource-finance/sentinel/internal/domain"
)

var featureIndex = func() map[string]int {
	m := make(map[string]int, len(domain.FeatureNames))
	for i, name := range domain.FeatureNames {
		m[name] = i
	}
	return m
}()

// Layout maps a model's expected feature order onto FeatureVector values.
// It is compiled once when a model is loaded.
type Layout struct {
	names   []string
	indices []int
}

// Compile resolves every expected feature name against the canonical
// feature set. An unknown name is a schema mismatch.
func Compile(expected []string) (*Layout, error) {
	if len(expected) == 0 {
		return nil, fmt.Errorf("%w: model declares no expected features", domain.ErrSchemaMismatch)
	}
	l := &Layout{
		names:   make([]string, len(expected)),
		indices: make([]int, len(expected)),
	}
	for i, name := range expected {
		norm := NormalizeName(name)
		idx, ok := featureIndex[norm]
		if !ok {
			return nil, fmt.Errorf("%w: feature %q is not produced by the transform", domain.ErrSchemaMismatch, name)
		}
		l.names[i] = norm
		l.indices[i] = idx
	}
	return l, nil
}

// Names returns the feature names in model order.
func (l *Layout) Names() []string {
	out := make([]string, len(l.names))
	copy(out, l.names)
	return out
}

// Len returns the number of selected features.
func (l *Layout) Len() int {
	return len(l.indices)
}

// Select returns the vector's values in model order. Features the model
// does not expect are dropped.
func (l *Layout) Select(fv *domain.FeatureVector) []float64 {
	all := fv.Values()
	out := make([]float64, len(l.indices))
	for i, idx := range l.indices {
		out[i] = all[idx]
	}
	return out
}

// Map returns every canonical feature of fv keyed by name.
func Map(fv *domain.FeatureVector) map[string]float64 {
	values := fv.Values()
	out := make(map[string]float64, len(values))
	for i, name := range domain.FeatureNames {
		out[name] = values[i]
	}
	return out
}
