package dataset

import (
	"bytes"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/features"
)

const sample = `Time,V1,V2,Amount,Class
0,-1.35,-0.07,149.62,0
0,1.19,0.26,2.69,0
3600,-1.35,,378.66,1
`

func TestReadFrame(t *testing.T) {
	f, err := ReadFrame(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}

	if got := f.Columns(); strings.Join(got, ",") != "time,v1,v2,amount,class" {
		t.Errorf("expected lower-cased header, got %v", got)
	}
	if f.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", f.Len())
	}
	v2, _ := f.Column("v2")
	if !math.IsNaN(v2[2]) {
		t.Errorf("expected empty cell to be missing, got %v", v2[2])
	}
	amounts, _ := f.Column("amount")
	if amounts[0] != 149.62 {
		t.Errorf("expected 149.62, got %v", amounts[0])
	}
}

func TestReadFrameRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"Empty", ""},
		{"NotANumber", "time,amount\n0,abc\n"},
		{"RaggedRow", "time,amount\n0,1,2\n"},
		{"DuplicateColumn", "Time,time\n0,1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFrame(strings.NewReader(tt.input))
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestWriteFrameRoundTrip(t *testing.T) {
	f, err := ReadFrame(strings.NewReader(sample))
	if err != nil {
		t.Fatal(err)
	}
	gold, err := features.TransformFrame(f)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "gold.csv")
	if err := WriteFrameFile(path, gold); err != nil {
		t.Fatalf("WriteFrameFile failed: %v", err)
	}
	back, err := ReadFrameFile(path)
	if err != nil {
		t.Fatalf("ReadFrameFile failed: %v", err)
	}

	if !back.Has("amount_log") || !back.Has("is_night") || back.Len() != 3 {
		t.Fatalf("unexpected columns %v", back.Columns())
	}
	hours, _ := back.Column("hour")
	if hours[2] != 1 {
		t.Errorf("expected hour 1, got %v", hours[2])
	}
	v2, _ := back.Column("v2")
	if !math.IsNaN(v2[2]) {
		t.Error("expected missing value to survive the round trip")
	}
}

func TestWriteRecords(t *testing.T) {
	var buf bytes.Buffer
	rows := []*SplitSummary{{InputRows: 10, TrainRows: 8, TestRows: 2}}
	if err := WriteRecords(&buf, &rows); err != nil {
		t.Fatalf("WriteRecords failed: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "input_rows,") {
		t.Errorf("unexpected header %q", buf.String())
	}
}

func splitFrame(t *testing.T) *features.Frame {
	t.Helper()
	f, err := features.NewFrame([]string{"time", "amount", "class"})
	if err != nil {
		t.Fatal(err)
	}
	rows := [][]float64{
		{90, 5, 0},
		{10, 1, 0},
		{50, 3, 1},
		{10, 1, 0}, // duplicate of row 1
		{30, 2, 0},
		{70, 4, 0},
		{110, 6, 1},
		{130, math.NaN(), 0},
		{150, 8, 0},
		{170, 9, 0},
		{190, 10, 1},
	}
	for _, r := range rows {
		if err := f.AppendRow(r); err != nil {
			t.Fatal(err)
		}
	}
	return f
}

func TestSplit(t *testing.T) {
	train, test, summary, err := Split(splitFrame(t), SplitOptions{FillMissing: true})
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	if summary.DuplicatesRemoved != 1 {
		t.Errorf("expected 1 duplicate removed, got %d", summary.DuplicatesRemoved)
	}
	if train.Len() != 8 || test.Len() != 2 {
		t.Fatalf("expected 8/2 split, got %d/%d", train.Len(), test.Len())
	}
	if summary.MissingFilled != 1 {
		t.Errorf("expected 1 missing value filled, got %d", summary.MissingFilled)
	}

	trainTimes, _ := train.Column("time")
	for i := 1; i < len(trainTimes); i++ {
		if trainTimes[i] < trainTimes[i-1] {
			t.Fatalf("train not ordered by time: %v", trainTimes)
		}
	}
	testTimes, _ := test.Column("time")
	if testTimes[0] != 170 || testTimes[1] != 190 {
		t.Errorf("expected newest rows in test, got %v", testTimes)
	}
	if summary.TrainFrauds != 2 || summary.TestFrauds != 1 {
		t.Errorf("unexpected fraud counts %+v", summary)
	}
}

func TestSplitValidation(t *testing.T) {
	t.Run("BadRatio", func(t *testing.T) {
		_, _, _, err := Split(splitFrame(t), SplitOptions{TrainRatio: 1.2})
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("MissingTime", func(t *testing.T) {
		f, _ := features.NewFrame([]string{"amount"})
		_ = f.AppendRow([]float64{1})
		_, _, _, err := Split(f, SplitOptions{})
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})
}
