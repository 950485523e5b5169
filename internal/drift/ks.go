package drift

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// exactLimit bounds n*m for the exact p-value. Larger samples use the
// asymptotic Kolmogorov distribution.
const exactLimit = 10000

// KSResult is the outcome of a two-sample Kolmogorov-Smirnov test.
type KSResult struct {
	Statistic float64
	PValue    float64
}

// KSTest runs a two-sample Kolmogorov-Smirnov test of the null hypothesis
// that a and b come from the same continuous distribution. Inputs must be
// free of NaN; they are not modified.
func KSTest(a, b []float64) (KSResult, error) {
	if len(a) == 0 || len(b) == 0 {
		return KSResult{}, fmt.Errorf("%w: KS test needs non-empty samples, got %d and %d", domain.ErrCompute, len(a), len(b))
	}
	x := sortedCopy(a)
	y := sortedCopy(b)

	d := stat.KolmogorovSmirnov(x, nil, y, nil)
	if math.IsNaN(d) {
		return KSResult{}, fmt.Errorf("%w: KS statistic is undefined", domain.ErrCompute)
	}

	if len(x)*len(y) <= exactLimit {
		return KSResult{Statistic: d, PValue: exactPValue(d, len(x), len(y))}, nil
	}

	n, m := float64(len(x)), float64(len(y))
	ne := math.Sqrt(n * m / (n + m))
	return KSResult{
		Statistic: d,
		PValue:    kolmogorovQ((ne + 0.12 + 0.11/ne) * d),
	}, nil
}

// exactPValue returns P(D >= d) for samples of size n and m under the null
// hypothesis. It counts the monotone lattice paths from (0,0) to (n,m) that
// touch a point with |i/n - j/m| >= d, out of all C(n+m, n) paths.
func exactPValue(d float64, n, m int) float64 {
	if d <= 0 {
		return 1
	}
	// D is a multiple of 1/(n*m); the slack absorbs rounding in d.
	h := d*float64(n)*float64(m) - 1e-6

	total := make([]float64, m+1)
	outside := make([]float64, m+1)
	for i := 0; i <= n; i++ {
		for j := 0; j <= m; j++ {
			if i == 0 || j == 0 {
				total[j] = 1
			} else {
				total[j] += total[j-1]
			}
			if math.Abs(float64(i*m-j*n)) >= h {
				outside[j] = total[j]
				continue
			}
			if j > 0 {
				outside[j] += outside[j-1]
			}
		}
	}
	return clamp01(outside[m] / total[m])
}

// kolmogorovQ returns the survival function of the Kolmogorov distribution,
// Q(l) = 2 * sum_{k>=1} (-1)^(k-1) exp(-2 k^2 l^2).
func kolmogorovQ(lambda float64) float64 {
	if lambda <= 0 {
		return 1
	}
	a2 := -2 * lambda * lambda
	fac := 2.0
	sum := 0.0
	prev := 0.0
	for k := 1; k <= 100; k++ {
		term := fac * math.Exp(a2*float64(k*k))
		sum += term
		if math.Abs(term) <= 1e-3*prev || math.Abs(term) <= 1e-8*sum {
			return clamp01(sum)
		}
		fac = -fac
		prev = math.Abs(term)
	}
	// The series only fails to converge for tiny lambda, where Q is 1.
	return 1
}

func sortedCopy(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	sort.Float64s(out)
	return out
}

func clamp01(p float64) float64 {
	return math.Max(0, math.Min(1, p))
}
