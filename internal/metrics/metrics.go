// Package metrics provides Prometheus instrumentation for Sentinel.
package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opensource-finance/sentinel/internal/domain"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sentinel",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// DecisionsTotal counts scoring decisions by outcome and risk level.
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "decisions_total",
			Help:      "Total scoring decisions by decision and risk level.",
		},
		[]string{"decision", "risk_level", "source"},
	)

	// ScoringErrorsTotal counts failed scoring calls by error kind.
	ScoringErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "scoring_errors_total",
			Help:      "Total failed scoring calls by error kind.",
		},
		[]string{"kind"},
	)

	// ScoringDuration observes model scoring latency.
	ScoringDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sentinel",
		Name:      "scoring_duration_seconds",
		Help:      "Time to transform and score one transaction in seconds.",
		Buckets:   []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
	})

	// ModelLoaded is 1 when a model artifact is serving.
	ModelLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentinel",
		Name:      "model_loaded",
		Help:      "1 if a model artifact is loaded, 0 if scoring is degraded.",
	})

	// ActiveThreshold tracks the decision threshold in use.
	ActiveThreshold = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentinel",
		Name:      "active_threshold",
		Help:      "Decision threshold currently applied by the scoring service.",
	})

	// DriftAlertRatio tracks the alert ratio of the latest drift report.
	DriftAlertRatio = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentinel",
		Name:      "drift_alert_ratio",
		Help:      "Share of monitored features drifting in the latest report.",
	})

	// DriftFeaturesDrifting tracks which features drift in the latest report.
	DriftFeaturesDrifting = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "sentinel",
			Name:      "drift_features_drifting",
			Help:      "1 if the feature drifted in the latest report, 0 otherwise.",
		},
		[]string{"feature"},
	)

	// BusMessagesTotal counts published bus messages by topic.
	BusMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "bus_messages_total",
			Help:      "Total messages published on the event bus by topic.",
		},
		[]string{"topic"},
	)

	// BusDroppedTotal counts messages a subscriber could not keep up with.
	BusDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "bus_dropped_total",
			Help:      "Total messages dropped for slow subscribers by topic or subject.",
		},
		[]string{"topic"},
	)

	// CacheLookupsTotal counts cache reads by kind and outcome.
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "cache_lookups_total",
			Help:      "Total cache lookups by kind (score, verdict) and result (hit, miss).",
		},
		[]string{"kind", "result"},
	)

	// OptimizationSavings tracks the projected savings of the latest optimization run.
	OptimizationSavings = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentinel",
		Name:      "optimization_projected_savings",
		Help:      "Baseline cost minus optimized cost of the latest optimization run.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		DecisionsTotal,
		ScoringErrorsTotal,
		ScoringDuration,
		ModelLoaded,
		ActiveThreshold,
		DriftAlertRatio,
		DriftFeaturesDrifting,
		OptimizationSavings,
		BusMessagesTotal,
		BusDroppedTotal,
		CacheLookupsTotal,
	)
}

// RecordDecision counts a scoring decision. source is "api" or "worker".
func RecordDecision(r *domain.ScoringResult, source string, took time.Duration) {
	DecisionsTotal.WithLabelValues(string(r.Decision), string(r.RiskLevel), source).Inc()
	ScoringDuration.Observe(took.Seconds())
}

// RecordScoringError counts a failed scoring call.
func RecordScoringError(kind string) {
	ScoringErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordModel publishes the serving state of the scoring service.
func RecordModel(loaded bool, threshold float64) {
	if loaded {
		ModelLoaded.Set(1)
	} else {
		ModelLoaded.Set(0)
	}
	ActiveThreshold.Set(threshold)
}

// RecordDrift publishes the outcome of a drift report.
func RecordDrift(r *domain.DriftReport) {
	DriftAlertRatio.Set(r.AlertRatio)
	for _, f := range r.Features {
		v := 0.0
		if f.IsDrifting {
			v = 1
		}
		DriftFeaturesDrifting.WithLabelValues(f.Feature).Set(v)
	}
}

// RecordOptimization publishes the outcome of an optimization run.
func RecordOptimization(r *domain.OptimizationResult) {
	OptimizationSavings.Set(r.Savings)
}

// RecordPublish counts a published bus message.
func RecordPublish(topic string) {
	BusMessagesTotal.WithLabelValues(topic).Inc()
}

// RecordDrop counts a message dropped for a slow subscriber.
func RecordDrop(topic string) {
	BusDroppedTotal.WithLabelValues(topic).Inc()
}

// RecordCacheLookup counts a cache read.
func RecordCacheLookup(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookupsTotal.WithLabelValues(kind, result).Inc()
}

// Middleware records request metrics using the chi route pattern as path.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		HTTPRequestsTotal.WithLabelValues(r.Method, path, statusBucket(sw.status)).Inc()
	})
}

// Handler returns the Prometheus metrics HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
