package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/opensource-finance/sentinel/internal/bus"
	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/metrics"
)

// ThresholdRequest is the request body for PUT /admin/threshold.
// Exactly one of Threshold or FromOptimization must be set.
type ThresholdRequest struct {
	Threshold        *float64 `json:"threshold,omitempty"`
	FromOptimization bool     `json:"fromOptimization,omitempty"`
}

// ThresholdResponse reports the threshold after an update.
type ThresholdResponse struct {
	Threshold    float64 `json:"threshold"`
	Changed      bool    `json:"changed"`
	ModelVersion string  `json:"modelVersion,omitempty"`
}

// SetThreshold handles PUT /admin/threshold. Setting the active value again
// is a no-op.
func (h *Handler) SetThreshold(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ThresholdRequest
	if err := decodeJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes), &req); err != nil {
		respondError(w, err)
		return
	}

	var threshold float64
	switch {
	case req.FromOptimization && req.Threshold != nil:
		writeError(w, http.StatusBadRequest, "set either threshold or fromOptimization, not both")
		return
	case req.FromOptimization:
		if h.repo == nil {
			writeError(w, http.StatusServiceUnavailable, "repository not available")
			return
		}
		run, err := h.repo.LatestOptimization(ctx)
		if err != nil {
			respondError(w, err)
			return
		}
		threshold = run.BestThreshold
	case req.Threshold != nil:
		threshold = *req.Threshold
	default:
		writeError(w, http.StatusBadRequest, "threshold is required")
		return
	}

	changed, err := h.service.SetThreshold(threshold)
	if err != nil {
		respondError(w, err)
		return
	}

	current := h.service.Current()
	if changed {
		metrics.RecordModel(current.Loaded(), current.Threshold)
		h.publishModelUpdated(r, current.Info.Version, current.Threshold, "threshold")
		slog.Info("threshold updated",
			"threshold", current.Threshold,
			"from_optimization", req.FromOptimization,
		)
	}

	writeJSON(w, http.StatusOK, ThresholdResponse{
		Threshold:    current.Threshold,
		Changed:      changed,
		ModelVersion: current.Info.Version,
	})
}

// ModelResponse reports the serving model and threshold.
type ModelResponse struct {
	ModelStatus
	Threshold float64 `json:"threshold"`
	Changed   bool    `json:"changed,omitempty"`
}

// GetModel handles GET /admin/model.
func (h *Handler) GetModel(w http.ResponseWriter, r *http.Request) {
	current := h.service.Current()
	writeJSON(w, http.StatusOK, ModelResponse{
		ModelStatus: modelStatus(current),
		Threshold:   current.Threshold,
	})
}

// ReloadModel handles POST /admin/model/reload. The artifact is re-read from
// the configured path; on failure the serving model is kept.
func (h *Handler) ReloadModel(w http.ResponseWriter, r *http.Request) {
	if h.modelPath == "" {
		respondError(w, fmt.Errorf("%w: no model path configured", domain.ErrModelUnavailable))
		return
	}

	previous := h.service.Current()
	info, err := h.service.Reload(h.modelPath)
	if err != nil {
		slog.Error("model reload failed",
			"path", h.modelPath,
			"error", err,
		)
		respondError(w, err)
		return
	}

	current := h.service.Current()
	changed := !previous.Loaded() || previous.Info.Version != info.Version
	metrics.RecordModel(true, current.Threshold)
	if changed {
		h.publishModelUpdated(r, info.Version, current.Threshold, "reload")
	}

	slog.Info("model reloaded",
		"model_version", info.Version,
		"format", info.Format,
		"changed", changed,
	)
	writeJSON(w, http.StatusOK, ModelResponse{
		ModelStatus: modelStatus(current),
		Threshold:   current.Threshold,
		Changed:     changed,
	})
}

func (h *Handler) publishModelUpdated(r *http.Request, version string, threshold float64, reason string) {
	if h.bus == nil {
		return
	}
	event := domain.ModelUpdated{Version: version, Threshold: threshold, Reason: reason}
	if err := bus.PublishJSON(r.Context(), h.bus, domain.GlobalTenant, domain.TopicModelUpdated, event); err != nil {
		slog.Error("failed to publish model update",
			"reason", reason,
			"error", err,
		)
	}
}

// ListRules returns the rules loaded in the engine.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "rule engine not available")
		return
	}

	loaded := h.engine.GetLoadedRules()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": loaded,
		"count": len(loaded),
	})
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`
	Expression  string `json:"expression"`
	Reason      string `json:"reason"`
	Enabled     bool   `json:"enabled"`
}

// CreateRule validates a rule and stores it for all tenants.
// Stored rules take effect on POST /rules/reload.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.engine == nil || h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "rule store not available")
		return
	}

	var req CreateRuleRequest
	if err := decodeJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes), &req); err != nil {
		respondError(w, err)
		return
	}
	if req.ID == "" || req.Name == "" || req.Expression == "" || req.Reason == "" {
		writeError(w, http.StatusBadRequest, "id, name, expression and reason are required")
		return
	}
	if req.Version == "" {
		req.Version = "1.0.0"
	}

	rule := &domain.RuleConfig{
		ID:          req.ID,
		TenantID:    domain.GlobalTenant,
		Name:        req.Name,
		Description: req.Description,
		Version:     req.Version,
		Expression:  req.Expression,
		Reason:      req.Reason,
		Enabled:     req.Enabled,
	}

	if err := h.engine.ValidateRule(rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid CEL expression: "+err.Error())
		return
	}

	if err := h.repo.SaveRuleConfig(ctx, domain.GlobalTenant, rule); err != nil {
		slog.Error("failed to save rule config", "id", rule.ID, "error", err)
		respondError(w, err)
		return
	}

	slog.Info("rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    rule,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules reloads the enabled rules from the database into the engine.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.engine == nil || h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "rule store not available")
		return
	}

	stored, err := h.repo.ListRuleConfigs(ctx, domain.GlobalTenant)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		respondError(w, err)
		return
	}

	if err := h.engine.ReloadRules(stored); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrValidation) {
			status = http.StatusBadRequest
		}
		writeError(w, status, "failed to reload rules: "+err.Error())
		return
	}

	slog.Info("rules reloaded from database", "count", len(stored))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(stored),
	})
}
