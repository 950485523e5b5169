package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/sentinel/internal/bus"
	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/drift"
	"github.com/opensource-finance/sentinel/internal/features"
	"github.com/opensource-finance/sentinel/internal/repository"
	"github.com/opensource-finance/sentinel/internal/rules"
	"github.com/opensource-finance/sentinel/internal/scoring"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Dependencies are the components the API serves. Only Service is required.
type Dependencies struct {
	Service *scoring.Service
	Engine  *rules.Engine
	Repo    domain.Repository
	Cache   domain.Cache
	Bus     domain.EventBus
}

// Handler holds dependencies for API handlers.
type Handler struct {
	pipeline  *scoring.Pipeline
	service   *scoring.Service
	engine    *rules.Engine
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	modelPath string
	replayTTL time.Duration
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(deps Dependencies, cfg *domain.Config, version string) *Handler {
	return &Handler{
		pipeline:  scoring.NewPipeline(deps.Service, deps.Engine, deps.Repo, deps.Bus),
		service:   deps.Service,
		engine:    deps.Engine,
		repo:      deps.Repo,
		cache:     deps.Cache,
		bus:       deps.Bus,
		modelPath: cfg.Model.Path,
		replayTTL: cfg.Scoring.ReplayTTL,
		version:   version,
	}
}

// componentIndex maps "v1".."v28" to their position in Transaction.V.
var componentIndex = func() map[string]int {
	m := make(map[string]int, domain.NumComponents)
	for i := 1; i <= domain.NumComponents; i++ {
		m[domain.ComponentName(i)] = i - 1
	}
	return m
}()

// decodeJSON decodes one JSON value. The decode error stays wrapped so an
// oversized body still maps to 413.
func decodeJSON(r io.Reader, v any) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON request body: %w", domain.ErrValidation, err)
	}
	return nil
}

// decodeTransaction reads a flat {time, amount, v1..v28} body. Keys are
// case-insensitive and v-fields default to 0. Other keys are ignored; known
// keys must be numbers.
func decodeTransaction(r io.Reader) (domain.Transaction, error) {
	var tx domain.Transaction

	var fields map[string]json.RawMessage
	if err := decodeJSON(r, &fields); err != nil {
		return tx, err
	}

	seen := make(map[string]bool, len(fields))
	for key, raw := range fields {
		name := features.NormalizeName(key)
		idx, isComponent := componentIndex[name]
		if !isComponent && name != domain.FeatureTime && name != domain.FeatureAmount {
			continue
		}
		if seen[name] {
			return tx, fmt.Errorf("%w: duplicate field %q", domain.ErrValidation, name)
		}
		seen[name] = true

		var value *float64
		if err := json.Unmarshal(raw, &value); err != nil || value == nil {
			return tx, fmt.Errorf("%w: %s must be a number", domain.ErrValidation, name)
		}

		switch name {
		case domain.FeatureTime:
			tx.Time = *value
		case domain.FeatureAmount:
			tx.Amount = *value
		default:
			tx.V[idx] = *value
		}
	}

	for _, required := range []string{domain.FeatureTime, domain.FeatureAmount} {
		if !seen[required] {
			return tx, fmt.Errorf("%w: %s is required", domain.ErrValidation, required)
		}
	}
	return tx, nil
}

// Score handles POST /score requests.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	requestID := GetRequestID(ctx)
	replayable := h.cache != nil && r.Header.Get(RequestIDHeader) != ""

	if replayable {
		cached, err := h.cache.GetScore(ctx, tenantID, requestID)
		if err != nil {
			slog.Warn("score replay lookup failed",
				"tenant_id", tenantID,
				"request_id", requestID,
				"error", err,
			)
		} else if cached != nil {
			cached.Metadata.Replayed = true
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	tx, err := decodeTransaction(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, err)
		return
	}

	rec, err := h.pipeline.Run(ctx, scoring.Request{
		TenantID:    tenantID,
		RequestID:   requestID,
		TraceID:     GetTraceID(ctx),
		Transaction: tx,
		Source:      "api",
	})
	if err != nil {
		respondError(w, err)
		return
	}

	resp := rec.ToResponse()
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()

	if replayable {
		if err := h.cache.SetScore(ctx, tenantID, requestID, resp, h.replayTTL); err != nil {
			slog.Warn("failed to cache score for replay",
				"tenant_id", tenantID,
				"request_id", requestID,
				"error", err,
			)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Ingest handles POST /ingest: the transaction is queued on the event bus and
// scored by the async worker.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	requestID := GetRequestID(ctx)

	if h.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event bus not available")
		return
	}

	tx, err := decodeTransaction(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, err)
		return
	}
	if err := features.Validate(tx); err != nil {
		respondError(w, err)
		return
	}

	payload := domain.IngestedTransaction{RequestID: requestID, Transaction: tx}
	if err := bus.PublishJSON(ctx, h.bus, tenantID, domain.TopicTransactionIngested, payload); err != nil {
		slog.Error("failed to publish ingested transaction",
			"tenant_id", tenantID,
			"request_id", requestID,
			"error", err,
		)
		writeError(w, http.StatusServiceUnavailable, "failed to queue transaction")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"requestId": requestID,
		"status":    "queued",
	})
}

// GetScore retrieves a stored score by ID.
func (h *Handler) GetScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scoreID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	rec, err := h.repo.GetScore(ctx, GetTenantID(ctx), scoreID)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// ModelStatus describes the serving model.
type ModelStatus struct {
	Loaded bool              `json:"loaded"`
	Info   *domain.ModelInfo `json:"info,omitempty"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status             string                 `json:"status"`
	Version            string                 `json:"version"`
	Model              ModelStatus            `json:"model"`
	Threshold          float64                `json:"threshold"`
	Drift              *domain.VerdictSummary `json:"drift"`
	ThresholdCertified bool                   `json:"thresholdCertified"`
}

func modelStatus(c *scoring.Context) ModelStatus {
	if !c.Loaded() {
		return ModelStatus{}
	}
	info := c.Info
	return ModelStatus{Loaded: true, Info: &info}
}

// Health returns server health: model state, active threshold and the
// latest drift verdict. The threshold is certified only while drift is STABLE.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	current := h.service.Current()

	resp := HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Model:     modelStatus(current),
		Threshold: current.Threshold,
		Drift:     h.latestVerdict(r),
	}
	resp.ThresholdCertified = resp.Drift != nil && resp.Drift.Verdict == domain.VerdictStable

	if !current.Loaded() {
		resp.Status = "degraded"
	}
	if h.repo != nil {
		if err := h.repo.Ping(ctx); err != nil {
			resp.Status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			resp.Status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// latestVerdict reads the drift verdict from the latest stored report. Drift
// runs write reports from other processes, so the repository is the source of
// truth; the cached verdict is only served when the repository is unavailable.
func (h *Handler) latestVerdict(r *http.Request) *domain.VerdictSummary {
	ctx := r.Context()

	if h.repo != nil {
		report, err := h.repo.LatestDriftReport(ctx)
		switch {
		case err == nil:
			v := report.Summary()
			if h.cache != nil {
				if err := h.cache.SetVerdict(ctx, v, drift.DefaultVerdictTTL); err != nil {
					slog.Warn("failed to cache drift verdict", "error", err)
				}
			}
			return v
		case errors.Is(err, repository.ErrNotFound):
			return nil
		default:
			slog.Warn("failed to load latest drift report, using cached verdict", "error", err)
		}
	}

	if h.cache == nil {
		return nil
	}
	v, err := h.cache.GetVerdict(ctx)
	if err != nil {
		slog.Warn("verdict cache lookup failed", "error", err)
		return nil
	}
	return v
}

// Ready reports whether the server can score traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.service.Current().Loaded() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready":  "false",
			"reason": "no model loaded",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// LatestDrift returns the most recent drift report.
func (h *Handler) LatestDrift(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	report, err := h.repo.LatestDriftReport(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// LatestOptimization returns the most recent threshold optimization run.
func (h *Handler) LatestOptimization(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	run, err := h.repo.LatestOptimization(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSchemaMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		if !errors.Is(err, domain.ErrCompute) {
			msg = "internal server error"
		}
	}
	writeError(w, status, msg)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
