// Package worker scores transactions published on the event bus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/scoring"
)

// Worker consumes TopicTransactionIngested and runs each transaction through
// the decision pipeline.
type Worker struct {
	bus      domain.EventBus
	pipeline *scoring.Pipeline

	mu            sync.Mutex
	subscriptions []domain.Subscription
	sem           chan struct{}
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Int64
	failed    atomic.Int64
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs limits processing to these tenants; empty subscribes to all.
	TenantIDs []string

	// WorkerCount bounds concurrent processing across subscriptions.
	WorkerCount int
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, pipeline *scoring.Pipeline) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		pipeline: pipeline,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins processing messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	w.sem = make(chan struct{}, cfg.WorkerCount)

	if len(cfg.TenantIDs) == 0 {
		return w.subscribe(domain.GlobalTenant)
	}

	started := 0
	for _, tenantID := range cfg.TenantIDs {
		if err := w.subscribe(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		started++
	}
	if started == 0 {
		return fmt.Errorf("no tenant subscriptions started")
	}

	slog.Info("workers started",
		"tenant_count", started,
		"worker_count", cfg.WorkerCount,
	)
	return nil
}

func (w *Worker) subscribe(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicTransactionIngested, w.handleMessage)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("worker subscribed",
		"tenant_id", tenantID,
		"topic", domain.TopicTransactionIngested,
	)
	return nil
}

// handleMessage bounds concurrency and processes one message.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	select {
	case w.sem <- struct{}{}:
	case <-w.ctx.Done():
		return w.ctx.Err()
	}
	w.wg.Add(1)
	defer func() {
		<-w.sem
		w.wg.Done()
	}()

	if err := w.processTransaction(ctx, msg); err != nil {
		w.failed.Add(1)
		return err
	}
	w.processed.Add(1)
	return nil
}

// processTransaction scores a single ingested transaction. The message
// carries the owning tenant even when received on a global subscription.
func (w *Worker) processTransaction(ctx context.Context, msg *domain.Message) error {
	var in domain.IngestedTransaction
	if err := json.Unmarshal(msg.Payload, &in); err != nil {
		slog.Error("failed to parse ingested transaction",
			"message_id", msg.ID,
			"error", err,
		)
		return fmt.Errorf("%w: ingested transaction: %v", domain.ErrValidation, err)
	}

	rec, err := w.pipeline.Run(ctx, scoring.Request{
		TenantID:    msg.TenantID,
		RequestID:   in.RequestID,
		TraceID:     msg.ID,
		Transaction: in.Transaction,
		Source:      "worker",
	})
	if err != nil {
		slog.Error("failed to score transaction",
			"message_id", msg.ID,
			"tenant_id", msg.TenantID,
			"request_id", in.RequestID,
			"error", err,
		)
		return err
	}

	slog.Info("transaction processed",
		"score_id", rec.ID,
		"tenant_id", msg.TenantID,
		"request_id", in.RequestID,
		"decision", rec.Result.Decision,
		"probability", rec.Result.Probability,
	)
	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	subs := w.subscriptions
	w.subscriptions = nil
	w.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}

	w.wg.Wait()

	slog.Info("workers stopped",
		"processed", w.processed.Load(),
		"failed", w.failed.Load(),
	)
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Failed            int64    `json:"failed"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Failed:            w.failed.Load(),
	}
}
