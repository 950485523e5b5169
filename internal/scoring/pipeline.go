package scoring

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/sentinel/internal/bus"
	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/metrics"
	"github.com/opensource-finance/sentinel/internal/rules"
)

// Request identifies one transaction to score.
type Request struct {
	TenantID    string
	RequestID   string
	TraceID     string
	Transaction domain.Transaction

	// Source labels metrics: "api" or "worker".
	Source string
}

// Pipeline scores a transaction, explains it with rules, stores the result
// and publishes the decision. Everything except the service may be nil.
type Pipeline struct {
	service *Service
	engine  *rules.Engine
	repo    domain.Repository
	bus     domain.EventBus
}

// NewPipeline creates a decision pipeline.
func NewPipeline(service *Service, engine *rules.Engine, repo domain.Repository, eventBus domain.EventBus) *Pipeline {
	return &Pipeline{
		service: service,
		engine:  engine,
		repo:    repo,
		bus:     eventBus,
	}
}

// Service returns the scoring service behind the pipeline.
func (p *Pipeline) Service() *Service {
	return p.service
}

// Run processes req. Scoring errors are returned; rule, storage and bus
// failures are logged and do not change the decision.
func (p *Pipeline) Run(ctx context.Context, req Request) (*domain.ScoreRecord, error) {
	start := time.Now()

	out, err := p.service.Score(ctx, req.Transaction)
	if err != nil {
		metrics.RecordScoringError(errorKind(err))
		return nil, err
	}
	metrics.RecordDecision(&out.Result, req.Source, time.Since(start))

	rec := &domain.ScoreRecord{
		ID:           uuid.New().String(),
		TenantID:     req.TenantID,
		RequestID:    req.RequestID,
		TraceID:      req.TraceID,
		ModelVersion: out.ModelVersion,
		Transaction:  req.Transaction,
		Result:       out.Result,
		CreatedAt:    time.Now().UTC(),
	}

	if p.engine != nil && p.engine.RulesCount() > 0 {
		results, err := p.engine.EvaluateAll(ctx, &rules.EvaluateInput{
			Vector:      &out.Vector,
			Probability: out.Probability,
		})
		if err != nil {
			slog.Error("rule evaluation failed",
				"score_id", rec.ID,
				"error", err,
			)
		} else {
			rec.Reasons = rules.Reasons(results)
		}
	}

	if p.repo != nil {
		if err := p.repo.SaveScore(ctx, req.TenantID, rec); err != nil {
			slog.Error("failed to save score",
				"score_id", rec.ID,
				"tenant_id", req.TenantID,
				"error", err,
			)
		}
	}

	if p.bus != nil {
		ctx := bus.WithRequestID(ctx, req.RequestID)
		if err := bus.PublishJSON(ctx, p.bus, req.TenantID, domain.TopicDecision, rec); err != nil {
			slog.Error("failed to publish decision",
				"score_id", rec.ID,
				"error", err,
			)
		}
		if ShouldAlert(&rec.Result) {
			if err := bus.PublishJSON(ctx, p.bus, req.TenantID, domain.TopicAlert, rec); err != nil {
				slog.Error("failed to publish alert",
					"score_id", rec.ID,
					"error", err,
				)
			}
		}
	}

	slog.Debug("transaction scored",
		"score_id", rec.ID,
		"tenant_id", req.TenantID,
		"request_id", req.RequestID,
		"decision", rec.Result.Decision,
		"risk_level", rec.Result.RiskLevel,
		"probability", rec.Result.Probability,
		"source", req.Source,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return rec, nil
}

// errorKind labels a scoring error for metrics.
func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrSchemaMismatch):
		return "schema"
	case errors.Is(err, domain.ErrModelUnavailable):
		return "model_unavailable"
	case errors.Is(err, domain.ErrCompute):
		return "compute"
	default:
		return "internal"
	}
}
