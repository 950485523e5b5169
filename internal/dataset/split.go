package dataset

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/features"
)

// DefaultTrainRatio is the share of rows, oldest first, kept for training.
const DefaultTrainRatio = 0.8

// SplitOptions tunes Split.
type SplitOptions struct {
	// TrainRatio is the share of rows kept for training. Zero means DefaultTrainRatio.
	TrainRatio float64

	// FillMissing replaces missing values with zero before splitting.
	FillMissing bool
}

// SplitSummary describes a completed split.
type SplitSummary struct {
	InputRows         int `csv:"input_rows"`
	DuplicatesRemoved int `csv:"duplicates_removed"`
	MissingFilled     int `csv:"missing_filled"`
	TrainRows         int `csv:"train_rows"`
	TestRows          int `csv:"test_rows"`
	TrainFrauds       int `csv:"train_frauds"`
	TestFrauds        int `csv:"test_frauds"`
}

// Split removes duplicate rows, orders the rest by time and cuts them into an
// older training part and a newer test part. It fails if any test row is
// older than the newest training row.
func Split(f *features.Frame, opts SplitOptions) (train, test *features.Frame, summary SplitSummary, err error) {
	ratio := opts.TrainRatio
	if ratio == 0 {
		ratio = DefaultTrainRatio
	}
	if math.IsNaN(ratio) || ratio <= 0 || ratio >= 1 {
		return nil, nil, summary, fmt.Errorf("%w: train ratio %v outside (0,1)", domain.ErrValidation, ratio)
	}
	times, ok := f.Column(domain.FeatureTime)
	if !ok {
		return nil, nil, summary, fmt.Errorf("%w: missing column %q", domain.ErrValidation, domain.FeatureTime)
	}
	for i, t := range times {
		if math.IsNaN(t) {
			return nil, nil, summary, fmt.Errorf("%w: row %d: missing %s", domain.ErrValidation, i, domain.FeatureTime)
		}
	}
	summary.InputRows = f.Len()

	rows := dedupe(f)
	summary.DuplicatesRemoved = f.Len() - len(rows)
	sort.SliceStable(rows, func(i, j int) bool { return times[rows[i]] < times[rows[j]] })

	cut := int(float64(len(rows)) * ratio)
	train = f.Take(rows[:cut])
	test = f.Take(rows[cut:])

	if opts.FillMissing {
		summary.MissingFilled = fillMissing(train) + fillMissing(test)
	}

	if train.Len() > 0 && test.Len() > 0 {
		trainTimes, _ := train.Column(domain.FeatureTime)
		testTimes, _ := test.Column(domain.FeatureTime)
		if testTimes[0] < trainTimes[len(trainTimes)-1] {
			return nil, nil, summary, fmt.Errorf("%w: time leakage, test starts at %v before training ends at %v",
				domain.ErrValidation, testTimes[0], trainTimes[len(trainTimes)-1])
		}
	}

	summary.TrainRows = train.Len()
	summary.TestRows = test.Len()
	summary.TrainFrauds = countFrauds(train)
	summary.TestFrauds = countFrauds(test)

	if summary.DuplicatesRemoved > 0 {
		slog.Warn("duplicate rows removed", "count", summary.DuplicatesRemoved)
	}
	slog.Info("dataset split",
		"input_rows", summary.InputRows,
		"train_rows", summary.TrainRows,
		"test_rows", summary.TestRows,
		"train_frauds", summary.TrainFrauds,
		"test_frauds", summary.TestFrauds,
	)
	return train, test, summary, nil
}

// dedupe returns the indices of the first occurrence of every distinct row.
func dedupe(f *features.Frame) []int {
	seen := make(map[string]struct{}, f.Len())
	rows := make([]int, 0, f.Len())
	var sb strings.Builder
	for r := 0; r < f.Len(); r++ {
		sb.Reset()
		for _, v := range f.Row(r) {
			sb.WriteString(strconv.FormatUint(math.Float64bits(canonical(v)), 16))
			sb.WriteByte(',')
		}
		key := sb.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		rows = append(rows, r)
	}
	return rows
}

// canonical maps every NaN to one bit pattern and -0 to 0.
func canonical(v float64) float64 {
	if math.IsNaN(v) {
		return math.NaN()
	}
	if v == 0 {
		return 0
	}
	return v
}

func fillMissing(f *features.Frame) int {
	filled := 0
	for _, name := range f.Columns() {
		col, _ := f.Column(name)
		var out []float64
		for i, v := range col {
			if !math.IsNaN(v) {
				continue
			}
			if out == nil {
				out = append([]float64(nil), col...)
			}
			out[i] = 0
			filled++
		}
		if out != nil {
			_ = f.SetColumn(name, out)
		}
	}
	return filled
}

func countFrauds(f *features.Frame) int {
	labels, ok := f.Column(domain.LabelColumn)
	if !ok {
		return 0
	}
	n := 0
	for _, v := range labels {
		if v == 1 {
			n++
		}
	}
	return n
}
