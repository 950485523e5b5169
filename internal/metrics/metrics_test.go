package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/sentinel/internal/domain"
)

func TestStatusBucket(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{100, "1xx"},
		{200, "2xx"},
		{201, "2xx"},
		{301, "3xx"},
		{400, "4xx"},
		{422, "4xx"},
		{500, "5xx"},
		{503, "5xx"},
	}

	for _, tt := range tests {
		if got := statusBucket(tt.code); got != tt.want {
			t.Errorf("statusBucket(%d) = %s, want %s", tt.code, got, tt.want)
		}
	}
}

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	return w.Body.String()
}

func TestMetricsEndpoint(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/scores/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", Handler())

	// Gauges always appear; counters and histograms only after first observation.
	body := scrape(t, r)
	for _, name := range []string{"sentinel_model_loaded", "sentinel_active_threshold", "sentinel_drift_alert_ratio"} {
		if !strings.Contains(body, name) {
			t.Errorf("expected metrics output to contain %s", name)
		}
	}

	RecordModel(true, 0.2)
	RecordDecision(&domain.ScoringResult{Decision: domain.DecisionBlock, RiskLevel: domain.RiskHigh}, "api", 0)
	RecordDrift(&domain.DriftReport{
		AlertRatio: 0.5,
		Features:   []domain.FeatureDrift{{Feature: "v14", IsDrifting: true}},
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/scores/abc", nil))

	body = scrape(t, r)
	for _, want := range []string{
		"sentinel_model_loaded 1",
		"sentinel_active_threshold 0.2",
		`sentinel_decisions_total{decision="BLOCK",risk_level="HIGH",source="api"} 1`,
		`sentinel_drift_features_drifting{feature="v14"} 1`,
		`path="/scores/{id}"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics output to contain %s", want)
		}
	}
}
