package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/sentinel/internal/domain"
)

var (
	errTenantRequired = fmt.Errorf("%w: tenantID is required", domain.ErrValidation)
	errClosed         = errors.New("bus is closed")
)

// New creates a new event bus based on configuration.
// For Community tier: returns ChannelBus.
// For Pro tier: returns NATSBus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil
	case "nats":
		return NewNATSBus(cfg)
	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// PublishJSON marshals v and publishes it on topic.
func PublishJSON(ctx context.Context, b domain.EventBus, tenantID, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", topic, err)
	}
	return b.Publish(ctx, tenantID, topic, payload)
}

type requestIDKey struct{}

// WithRequestID returns a context whose published messages carry requestID
// in their metadata.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// newMessage wraps payload in an envelope, copying correlation data from ctx.
func newMessage(ctx context.Context, tenantID, topic string, payload []byte) *domain.Message {
	meta := make(map[string]string, 2)
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		meta[domain.MetaTraceID] = sc.TraceID().String()
	}
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		meta[domain.MetaRequestID] = id
	}

	return &domain.Message{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  meta,
		Timestamp: time.Now().UnixNano(),
	}
}
