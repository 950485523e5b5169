package features

import (
	"fmt"
	"math"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// TransformFrame returns a copy of f with the derived hour, is_night and
// amount_log columns added. Missing time or amount values propagate as
// missing derived values; present values are validated as in Transform.
func TransformFrame(f *Frame) (*Frame, error) {
	timeCol, ok := f.Column(domain.FeatureTime)
	if !ok {
		return nil, fmt.Errorf("%w: missing column %q", domain.ErrValidation, domain.FeatureTime)
	}
	amountCol, ok := f.Column(domain.FeatureAmount)
	if !ok {
		return nil, fmt.Errorf("%w: missing column %q", domain.ErrValidation, domain.FeatureAmount)
	}

	n := f.Len()
	hours := make([]float64, n)
	nights := make([]float64, n)
	logs := make([]float64, n)
	for i := 0; i < n; i++ {
		t, amt := timeCol[i], amountCol[i]

		switch {
		case math.IsNaN(t):
			hours[i], nights[i] = math.NaN(), math.NaN()
		case t < 0 || math.IsInf(t, 0):
			return nil, fmt.Errorf("%w: row %d: invalid time %v", domain.ErrValidation, i, t)
		default:
			h := Hour(t)
			hours[i] = float64(h)
			nights[i] = boolValue(IsNight(h))
		}

		switch {
		case math.IsNaN(amt):
			logs[i] = math.NaN()
		case amt+AmountEpsilon <= 0 || math.IsInf(amt, 0):
			return nil, fmt.Errorf("%w: row %d: amount %v makes amount_log undefined", domain.ErrValidation, i, amt)
		default:
			logs[i] = AmountLog(amt)
		}
	}

	out := f.Clone()
	for _, c := range []struct {
		name   string
		values []float64
	}{
		{domain.FeatureHour, hours},
		{domain.FeatureIsNight, nights},
		{domain.FeatureAmountLog, logs},
	} {
		if err := out.SetColumn(c.name, c.values); err != nil {
			return nil, err
		}
	}
	return out, nil
}
