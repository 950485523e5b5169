package bus

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// collect subscribes and forwards every message to the returned channel.
func collect(t *testing.T, b *ChannelBus, tenantID, topic string) (<-chan *domain.Message, domain.Subscription) {
	t.Helper()
	ch := make(chan *domain.Message, 16)
	sub, err := b.Subscribe(context.Background(), tenantID, topic, func(ctx context.Context, msg *domain.Message) error {
		ch <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	return ch, sub
}

func receive(t *testing.T, ch <-chan *domain.Message) *domain.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func expectNone(t *testing.T, ch <-chan *domain.Message) {
	t.Helper()
	select {
	case msg := <-ch:
		t.Errorf("unexpected message %s on %s", msg.ID, msg.Topic)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("PublishJSON", func(t *testing.T) {
		ch, sub := collect(t, bus, tenantID, domain.TopicDecision)
		defer sub.Unsubscribe()

		payload := domain.ScoringResult{Probability: 0.95, Decision: domain.DecisionBlock, RiskLevel: domain.RiskCritical}
		if err := PublishJSON(ctx, bus, tenantID, domain.TopicDecision, payload); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		msg := receive(t, ch)
		if msg.TenantID != tenantID || msg.Topic != domain.TopicDecision || msg.ID == "" {
			t.Errorf("unexpected envelope %+v", msg)
		}
		var got domain.ScoringResult
		if err := json.Unmarshal(msg.Payload, &got); err != nil {
			t.Fatalf("bad payload: %v", err)
		}
		if got != payload {
			t.Errorf("expected %+v, got %+v", payload, got)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		ch1, sub1 := collect(t, bus, "tenant-001", domain.TopicAlert)
		ch2, sub2 := collect(t, bus, "tenant-002", domain.TopicAlert)
		defer sub1.Unsubscribe()
		defer sub2.Unsubscribe()

		_ = bus.Publish(ctx, "tenant-001", domain.TopicAlert, []byte("alert"))

		receive(t, ch1)
		expectNone(t, ch2)
	})

	t.Run("GlobalSubscriber", func(t *testing.T) {
		ch, sub := collect(t, bus, domain.GlobalTenant, domain.TopicTransactionIngested)
		defer sub.Unsubscribe()

		_ = bus.Publish(ctx, "tenant-a", domain.TopicTransactionIngested, []byte("a"))
		_ = bus.Publish(ctx, "tenant-b", domain.TopicTransactionIngested, []byte("b"))

		first, second := receive(t, ch), receive(t, ch)
		if first.TenantID != "tenant-a" || second.TenantID != "tenant-b" {
			t.Errorf("expected messages from both tenants, got %s and %s", first.TenantID, second.TenantID)
		}
	})

	t.Run("GlobalPublishNotDuplicated", func(t *testing.T) {
		ch, sub := collect(t, bus, domain.GlobalTenant, domain.TopicDriftReport)
		defer sub.Unsubscribe()

		_ = bus.Publish(ctx, domain.GlobalTenant, domain.TopicDriftReport, []byte("report"))
		receive(t, ch)
		expectNone(t, ch)
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		err := bus.Publish(ctx, "", domain.TopicDecision, []byte("data"))
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}

		_, err = bus.Subscribe(ctx, "", domain.TopicDecision, func(ctx context.Context, msg *domain.Message) error {
			return nil
		})
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		ch, sub := collect(t, bus, tenantID, domain.TopicModelUpdated)

		_ = bus.Publish(ctx, tenantID, domain.TopicModelUpdated, []byte("v1"))
		receive(t, ch)

		if err := sub.Unsubscribe(); err != nil {
			t.Fatalf("unsubscribe failed: %v", err)
		}
		_ = bus.Publish(ctx, tenantID, domain.TopicModelUpdated, []byte("v2"))
		expectNone(t, ch)

		bus.mu.RLock()
		_, ok := bus.routes[route{tenantID, domain.TopicModelUpdated}]
		bus.mu.RUnlock()
		if ok {
			t.Error("expected subscription to be detached from the bus")
		}
	})

	t.Run("HandlerErrorKeepsSubscription", func(t *testing.T) {
		var calls atomic.Int32
		done := make(chan struct{}, 2)
		sub, _ := bus.Subscribe(ctx, tenantID, "flaky.topic", func(ctx context.Context, msg *domain.Message) error {
			calls.Add(1)
			done <- struct{}{}
			return errors.New("boom")
		})
		defer sub.Unsubscribe()

		_ = bus.Publish(ctx, tenantID, "flaky.topic", []byte("1"))
		_ = bus.Publish(ctx, tenantID, "flaky.topic", []byte("2"))
		for i := 0; i < 2; i++ {
			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatalf("timeout after %d calls", calls.Load())
			}
		}
	})

	t.Run("CorrelationMetadata", func(t *testing.T) {
		ch, sub := collect(t, bus, tenantID, domain.TopicAlert)
		defer sub.Unsubscribe()

		traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
		spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
		sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
		pubCtx := WithRequestID(trace.ContextWithSpanContext(ctx, sc), "req-42")

		if err := bus.Publish(pubCtx, tenantID, domain.TopicAlert, []byte("x")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
		msg := receive(t, ch)
		if got := msg.Metadata[domain.MetaTraceID]; got != traceID.String() {
			t.Errorf("trace_id = %q, want %q", got, traceID.String())
		}
		if got := msg.Metadata[domain.MetaRequestID]; got != "req-42" {
			t.Errorf("request_id = %q, want req-42", got)
		}
	})

	t.Run("SlowSubscriberDropsWithoutBlocking", func(t *testing.T) {
		small := NewChannelBus(1)
		defer small.Close()

		release := make(chan struct{})
		sub, _ := small.Subscribe(ctx, tenantID, domain.TopicDecision, func(ctx context.Context, msg *domain.Message) error {
			<-release
			return nil
		})
		defer sub.Unsubscribe()

		done := make(chan struct{})
		go func() {
			for i := 0; i < 10; i++ {
				_ = small.Publish(ctx, tenantID, domain.TopicDecision, []byte("x"))
			}
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("publish blocked on a slow subscriber")
		}
		close(release)
	})

	t.Run("SubscriptionTopic", func(t *testing.T) {
		_, sub := collect(t, bus, tenantID, domain.TopicDriftReport)
		defer sub.Unsubscribe()
		if sub.Topic() != domain.TopicDriftReport {
			t.Errorf("expected topic %s, got %s", domain.TopicDriftReport, sub.Topic())
		}
	})
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(100)
	ctx := context.Background()

	collect(t, bus, "tenant-001", domain.TopicDecision)

	if err := bus.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
	if err := bus.Publish(ctx, "tenant-001", domain.TopicDecision, []byte("data")); err == nil {
		t.Error("expected error after close")
	}
	if err := bus.Ping(ctx); err == nil {
		t.Error("expected ping error after close")
	}
}

func TestNewBus(t *testing.T) {
	t.Run("ChannelType", func(t *testing.T) {
		bus, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 50})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer bus.Close()

		if _, ok := bus.(*ChannelBus); !ok {
			t.Error("expected ChannelBus for channel type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

func TestNATSSubjects(t *testing.T) {
	tests := []struct {
		name      string
		tenantID  string
		publish   string
		subscribe string
	}{
		{"Tenant", "tenant-001", "sentinel.score.decision.tenant-001", "sentinel.score.decision.tenant-001"},
		{"Global", domain.GlobalTenant, "sentinel.score.decision._global", "sentinel.score.decision.*"},
		{"UnsafeTokens", "acme.eu>*", "sentinel.score.decision.acme_eu__", "sentinel.score.decision.acme_eu__"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := publishSubject(tt.tenantID, domain.TopicDecision); got != tt.publish {
				t.Errorf("publishSubject = %s, want %s", got, tt.publish)
			}
			if got := subscribeSubject(tt.tenantID, domain.TopicDecision); got != tt.subscribe {
				t.Errorf("subscribeSubject = %s, want %s", got, tt.subscribe)
			}
		})
	}
}
