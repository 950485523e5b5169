package drift

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/features"
	"github.com/opensource-finance/sentinel/internal/metrics"
)

// DefaultVerdictTTL bounds how long a cached verdict is served on /health.
const DefaultVerdictTTL = 24 * time.Hour

// Monitor runs drift detection and fans the report out to storage, cache and
// the event bus. Any of them may be nil.
type Monitor struct {
	repo       domain.Repository
	cache      domain.Cache
	bus        domain.EventBus
	verdictTTL time.Duration
}

// NewMonitor creates a monitor.
func NewMonitor(repo domain.Repository, cache domain.Cache, bus domain.EventBus) *Monitor {
	return &Monitor{
		repo:       repo,
		cache:      cache,
		bus:        bus,
		verdictTTL: DefaultVerdictTTL,
	}
}

// Run detects drift and publishes the report. A failure to persist the report
// is returned; cache and bus failures are logged.
func (m *Monitor) Run(ctx context.Context, reference, current *features.Frame, monitored []string, cfg Config) (*domain.DriftReport, error) {
	report, err := Detect(ctx, reference, current, monitored, cfg)
	if err != nil {
		return nil, err
	}
	metrics.RecordDrift(report)

	if m.repo != nil {
		if err := m.repo.SaveDriftReport(ctx, report); err != nil {
			return report, err
		}
	}

	if m.cache != nil {
		if err := m.cache.SetVerdict(ctx, report.Summary(), m.verdictTTL); err != nil {
			slog.Error("failed to cache drift verdict",
				"report_id", report.ID,
				"error", err,
			)
		}
	}

	if m.bus != nil {
		payload, _ := json.Marshal(report)
		if err := m.bus.Publish(ctx, domain.GlobalTenant, domain.TopicDriftReport, payload); err != nil {
			slog.Error("failed to publish drift report",
				"report_id", report.ID,
				"error", err,
			)
		}
	}

	if report.Verdict == domain.VerdictCritical {
		slog.Warn("model health critical, threshold no longer certified",
			"report_id", report.ID,
			"alert_ratio", report.AlertRatio,
			"drifting", report.Drifting(),
		)
	}

	return report, nil
}
