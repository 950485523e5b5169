package model

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opensource-finance/sentinel/internal/domain"
)

const forestJSON = `{
  "format": "forest",
  "version": "rf-test",
  "expectedFeatures": ["amount_log", "v14"],
  "forest": {
    "trees": [
      {
        "nodes": [
          {"feature_index": 1, "threshold": -3, "left_child": 0, "left_is_leaf": true, "right_child": 1, "right_is_leaf": false},
          {"feature_index": 0, "threshold": 5, "left_child": 1, "left_is_leaf": true, "right_child": 2, "right_is_leaf": true}
        ],
        "outputs": [0.9, 0.05, 0.3],
        "depth": 2
      },
      {
        "nodes": [
          {"feature_index": 1, "threshold": -2, "left_child": 0, "left_is_leaf": true, "right_child": 1, "right_is_leaf": true}
        ],
        "outputs": [0.7, 0.1],
        "depth": 1
      }
    ]
  }
}`

func TestLoadForest(t *testing.T) {
	a, err := Load(strings.NewReader(forestJSON))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if a.Info.Version != "rf-test" || a.Info.Format != FormatForest {
		t.Errorf("unexpected info %+v", a.Info)
	}
	if got := a.ExpectedFeatures(); len(got) != 2 || got[1] != "v14" {
		t.Errorf("unexpected expected features %v", got)
	}

	tests := []struct {
		name string
		x    []float64
		want float64
	}{
		{"StrongSignal", []float64{1, -4}, (0.9 + 0.7) / 2},
		{"SmallAmount", []float64{1, 0}, (0.05 + 0.1) / 2},
		{"LargeAmount", []float64{6, 0}, (0.3 + 0.1) / 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := a.Predict(tt.x)
			if err != nil {
				t.Fatalf("Predict failed: %v", err)
			}
			if math.Abs(p-tt.want) > 1e-12 {
				t.Errorf("got %v, want %v", p, tt.want)
			}
		})
	}

	t.Run("WrongArity", func(t *testing.T) {
		_, err := a.Predict([]float64{1})
		if !errors.Is(err, domain.ErrSchemaMismatch) {
			t.Errorf("expected schema mismatch, got %v", err)
		}
	})
}

func TestLoadLogistic(t *testing.T) {
	env := &Envelope{
		Format:           FormatLogistic,
		Version:          "lr-test",
		ExpectedFeatures: []string{"amount", "v4"},
		Logistic: &Logistic{
			Intercept: -1,
			Weights:   []float64{0.5, 2},
			Means:     []float64{100, 0},
			Scales:    []float64{50, 1},
		},
	}
	var buf bytes.Buffer
	if err := env.Save(&buf); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	a, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	p, err := a.Predict([]float64{100, 0.5})
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	// z = -1 + 0.5*0 + 2*0.5 = 0
	if math.Abs(p-0.5) > 1e-12 {
		t.Errorf("expected 0.5, got %v", p)
	}

	p, _ = a.Predict([]float64{1000, 10})
	if p <= 0.99 {
		t.Errorf("expected near-certain fraud, got %v", p)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"Garbage", `not json`},
		{"UnknownFormat", `{"format":"xgboost","expectedFeatures":["amount"]}`},
		{"NoFeatures", `{"format":"logistic","logistic":{"weights":[]}}`},
		{"MissingSection", `{"format":"forest","expectedFeatures":["amount"]}`},
		{"WeightArity", `{"format":"logistic","expectedFeatures":["amount","v1"],"logistic":{"weights":[1]}}`},
		{"ZeroScale", `{"format":"logistic","expectedFeatures":["amount"],"logistic":{"weights":[1],"means":[0],"scales":[0]}}`},
		{"FeatureIndexRange", `{"format":"forest","expectedFeatures":["amount"],"forest":{"trees":[{"nodes":[{"feature_index":3,"threshold":1,"left_child":0,"left_is_leaf":true,"right_child":0,"right_is_leaf":true}],"outputs":[0.5],"depth":1}]}}`},
		{"LeafRange", `{"format":"forest","expectedFeatures":["amount"],"forest":{"trees":[{"nodes":[{"feature_index":0,"threshold":1,"left_child":0,"left_is_leaf":true,"right_child":4,"right_is_leaf":true}],"outputs":[0.5],"depth":1}]}}`},
		{"OutputRange", `{"format":"forest","expectedFeatures":["amount"],"forest":{"trees":[{"nodes":[{"feature_index":0,"threshold":1,"left_child":0,"left_is_leaf":true,"right_child":0,"right_is_leaf":true}],"outputs":[1.5],"depth":1}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.body))
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	t.Run("Missing", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), "absent.json"))
		if !errors.Is(err, domain.ErrModelUnavailable) {
			t.Errorf("expected model unavailable, got %v", err)
		}
	})

	t.Run("Present", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "model.json")
		if err := os.WriteFile(path, []byte(forestJSON), 0o644); err != nil {
			t.Fatal(err)
		}
		a, err := LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile failed: %v", err)
		}
		if a.Info.Source != path {
			t.Errorf("expected source %s, got %s", path, a.Info.Source)
		}
	})
}
