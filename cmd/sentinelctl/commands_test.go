package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opensource-finance/sentinel/internal/dataset"
	"github.com/opensource-finance/sentinel/internal/domain"
)

const rawCSV = `Time,V14,Amount,Class
3600,-6.2,500,1
3700,0.3,5,1
50000,0.1,200,0
50100,1.2,1,0
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestTransformCommand(t *testing.T) {
	in := writeFile(t, "raw.csv", rawCSV)
	out := filepath.Join(t.TempDir(), "gold.csv")

	if err := (&transformArgs{In: in, Out: out}).Handle(); err != nil {
		t.Fatalf("transform failed: %v", err)
	}

	gold, err := dataset.ReadFrameFile(out)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	for _, col := range []string{domain.FeatureHour, domain.FeatureIsNight, domain.FeatureAmountLog} {
		if !gold.Has(col) {
			t.Errorf("expected derived column %s in %v", col, gold.Columns())
		}
	}
	night, _ := gold.Column(domain.FeatureIsNight)
	if night[0] != 1 || night[2] != 0 {
		t.Errorf("unexpected is_night column %v", night)
	}
}

func TestSplitValidate(t *testing.T) {
	for _, ratio := range []float64{0, 1, 1.5, -0.2} {
		if err := (&splitArgs{Ratio: ratio}).Validate(); err == nil {
			t.Errorf("expected ratio %v to be rejected", ratio)
		}
	}
	if err := newSplitArgs().Validate(); err != nil {
		t.Errorf("default ratio rejected: %v", err)
	}
}

func TestWriteCurve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "curve.csv")
	curve := []domain.CostPoint{
		{Threshold: 0.1, Cost: 24, Confusion: domain.Confusion{TruePositives: 2, FalsePositives: 12, TrueNegatives: 80}},
		{Threshold: 0.2, Cost: 116, Confusion: domain.Confusion{TruePositives: 1, FalsePositives: 8, TrueNegatives: 84, FalseNegatives: 1}},
	}
	if err := writeCurve(path, curve); err != nil {
		t.Fatalf("writeCurve failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read curve: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != "threshold,cost,tp,fp,tn,fn" {
		t.Errorf("unexpected header %q", lines[0])
	}
	if len(lines) != 3 {
		t.Errorf("expected 2 rows, got %d", len(lines)-1)
	}
}

// fakeServer blocks amounts above 100 and checks the tenant header.
func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/score", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Tenant-ID") != "replay-test" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var body map[string]float64
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if _, ok := body["v28"]; !ok {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		resp := domain.ScoreResponse{ScoringResult: domain.ScoringResult{Decision: domain.DecisionApprove}}
		if body["amount"] > 100 {
			resp.Decision = domain.DecisionBlock
		}
		json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestReplay(t *testing.T) {
	srv := fakeServer(t)
	path := writeFile(t, "test.csv", rawCSV)

	args := newReplayArgs()
	args.URL = srv.URL
	args.Tenant = "replay-test"
	args.Dataset = path
	args.Workers = 3

	t.Run("Confusion", func(t *testing.T) {
		frame, err := dataset.ReadFrameFile(path)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		txs, err := labeledTransactions(frame)
		if err != nil {
			t.Fatalf("labels failed: %v", err)
		}

		stats := args.run(txs)
		want := domain.Confusion{TruePositives: 1, FalseNegatives: 1, FalsePositives: 1, TrueNegatives: 1}
		if stats.confusion != want || stats.errors != 0 {
			t.Errorf("confusion = %+v errors = %d, want %+v", stats.confusion, stats.errors, want)
		}
	})

	t.Run("Handle", func(t *testing.T) {
		if err := args.Handle(); err != nil {
			t.Fatalf("replay failed: %v", err)
		}
	})

	t.Run("RequiresLabels", func(t *testing.T) {
		frame, _ := dataset.ReadFrameFile(writeFile(t, "unlabeled.csv", "Time,Amount\n1,2\n"))
		if _, err := labeledTransactions(frame); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("ServerErrorsCounted", func(t *testing.T) {
		bad := *args
		bad.Tenant = "someone-else"
		frame, _ := dataset.ReadFrameFile(path)
		txs, _ := labeledTransactions(frame)

		stats := bad.run(txs)
		if stats.errors != len(txs) {
			t.Errorf("expected %d errors, got %d", len(txs), stats.errors)
		}
	})
}

func TestDriftDryRun(t *testing.T) {
	path := writeFile(t, "raw.csv", rawCSV)
	args := func() *driftArgs {
		cfg := domain.DefaultConfig()
		return &driftArgs{
			Reference:    path,
			Current:      path,
			Features:     []string{domain.FeatureAmountLog},
			Significance: cfg.Monitoring.SignificanceLevel,
			Critical:     cfg.Monitoring.CriticalRatio,
			Fraction:     1,
			Seed:         cfg.Monitoring.Seed,
			DryRun:       true,
			cfg:          cfg,
		}
	}

	t.Run("Runs", func(t *testing.T) {
		a := args()
		a.Critical = 0
		if err := a.Handle(); err != nil {
			t.Fatalf("drift failed: %v", err)
		}
	})

	t.Run("ZeroSignificanceRejected", func(t *testing.T) {
		a := args()
		a.Significance = 0
		if err := a.Handle(); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})
}
