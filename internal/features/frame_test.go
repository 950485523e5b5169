package features

import (
	"errors"
	"math"
	"testing"

	"github.com/opensource-finance/sentinel/internal/domain"
)

func TestFrame(t *testing.T) {
	f, err := NewFrame([]string{"Time", " Amount ", "V1", "Class"})
	if err != nil {
		t.Fatalf("NewFrame failed: %v", err)
	}
	rows := [][]float64{
		{0, 10, 0.5, 0},
		{7200, 0, -1.5, 1},
		{90000, 250, 2, 0},
	}
	for _, r := range rows {
		if err := f.AppendRow(r); err != nil {
			t.Fatalf("AppendRow failed: %v", err)
		}
	}

	t.Run("NormalizedColumns", func(t *testing.T) {
		if !f.Has("amount") || !f.Has("V1") {
			t.Errorf("expected normalized column lookup, got %v", f.Columns())
		}
		if f.Len() != 3 {
			t.Errorf("expected 3 rows, got %d", f.Len())
		}
	})

	t.Run("RejectsShortRow", func(t *testing.T) {
		if err := f.Clone().AppendRow([]float64{1}); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("RejectsDuplicateColumn", func(t *testing.T) {
		if _, err := NewFrame([]string{"v1", "V1"}); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("Transactions", func(t *testing.T) {
		txs, err := f.Transactions()
		if err != nil {
			t.Fatalf("Transactions failed: %v", err)
		}
		if txs[1].V[0] != -1.5 || txs[1].V[1] != 0 {
			t.Errorf("unexpected components %v", txs[1].V[:2])
		}
		if txs[1].Class == nil || !*txs[1].Class {
			t.Error("expected row 1 labeled fraud")
		}
	})

	t.Run("LabeledSet", func(t *testing.T) {
		set, err := f.LabeledSet()
		if err != nil {
			t.Fatalf("LabeledSet failed: %v", err)
		}
		if set.Len() != 3 || set.Labels[0] || !set.Labels[1] {
			t.Errorf("unexpected labels %v", set.Labels)
		}
		if set.Vectors[2].Hour != 1 {
			t.Errorf("expected hour 1, got %d", set.Vectors[2].Hour)
		}
	})

	t.Run("MissingValueRejected", func(t *testing.T) {
		g := f.Clone()
		_ = g.AppendRow([]float64{100, math.NaN(), 0, 0})
		_, err := g.Transactions()
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("BadLabelRejected", func(t *testing.T) {
		g := f.Clone()
		_ = g.AppendRow([]float64{100, 1, 0, 2})
		if _, err := g.LabeledSet(); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})
}

func TestTransformFrame(t *testing.T) {
	f, _ := NewFrame([]string{"time", "amount"})
	_ = f.AppendRow([]float64{3600, 0})
	_ = f.AppendRow([]float64{math.NaN(), 5})
	_ = f.AppendRow([]float64{8 * 3600, math.NaN()})

	out, err := TransformFrame(f)
	if err != nil {
		t.Fatalf("TransformFrame failed: %v", err)
	}
	if f.Has(domain.FeatureHour) {
		t.Error("input frame was mutated")
	}

	hours, _ := out.Column(domain.FeatureHour)
	nights, _ := out.Column(domain.FeatureIsNight)
	logs, _ := out.Column(domain.FeatureAmountLog)

	if hours[0] != 1 || nights[0] != 1 || logs[0] != math.Log(0.001) {
		t.Errorf("row 0: got hour=%v night=%v log=%v", hours[0], nights[0], logs[0])
	}
	if !math.IsNaN(hours[1]) || !math.IsNaN(nights[1]) {
		t.Errorf("row 1: missing time should propagate, got hour=%v night=%v", hours[1], nights[1])
	}
	if hours[2] != 8 || nights[2] != 0 || !math.IsNaN(logs[2]) {
		t.Errorf("row 2: got hour=%v night=%v log=%v", hours[2], nights[2], logs[2])
	}

	t.Run("MatchesSingleTransform", func(t *testing.T) {
		fv, _ := Transform(domain.Transaction{Time: 3600, Amount: 0})
		if float64(fv.Hour) != hours[0] || fv.AmountLog != logs[0] {
			t.Error("frame and single-record transform disagree")
		}
	})

	t.Run("RejectsNegativeAmount", func(t *testing.T) {
		g, _ := NewFrame([]string{"time", "amount"})
		_ = g.AppendRow([]float64{0, -3})
		if _, err := TransformFrame(g); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("RequiresColumns", func(t *testing.T) {
		g, _ := NewFrame([]string{"time"})
		if _, err := TransformFrame(g); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})
}

func TestLayout(t *testing.T) {
	l, err := Compile([]string{"amount_log", "V14", "is_night", "hour"})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	tx := domain.Transaction{Time: 2 * 3600, Amount: 9}
	tx.V[13] = 4.2
	fv, _ := Transform(tx)

	got := l.Select(&fv)
	want := []float64{AmountLog(9), 4.2, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("expected %d values, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("value %d (%s): got %v, want %v", i, l.Names()[i], got[i], want[i])
		}
	}

	t.Run("UnknownFeature", func(t *testing.T) {
		_, err := Compile([]string{"amount", "merchant_risk"})
		if !errors.Is(err, domain.ErrSchemaMismatch) {
			t.Errorf("expected schema mismatch, got %v", err)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		if _, err := Compile(nil); !errors.Is(err, domain.ErrSchemaMismatch) {
			t.Errorf("expected schema mismatch, got %v", err)
		}
	})

	t.Run("Map", func(t *testing.T) {
		m := Map(&fv)
		if m["v14"] != 4.2 || m["hour"] != 2 || len(m) != len(domain.FeatureNames) {
			t.Errorf("unexpected feature map %v", m)
		}
	})
}
