package domain

import (
	"context"
)

// EventBus carries pipeline events between the API, the async worker and
// downstream consumers. Every message belongs to a tenant; subscribing with
// GlobalTenant receives a topic for all tenants.
type EventBus interface {
	// Publish sends a message to a topic. Delivery is at-most-once.
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	Ping(ctx context.Context) error
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Metadata keys set on published messages.
const (
	MetaTraceID   = "trace_id"
	MetaRequestID = "request_id"
)

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings (Community tier)
	ChannelBufferSize int

	// NATS settings (Pro tier)
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds

	// NATSQueueGroup, when set, load-balances each subscription across all
	// instances subscribed with the same group.
	NATSQueueGroup string
}

// Standard topic names for the decision pipeline.
const (
	TopicTransactionIngested = "sentinel.transaction.ingested"
	TopicDecision            = "sentinel.score.decision"
	TopicAlert               = "sentinel.score.alert"
	TopicDriftReport         = "sentinel.drift.report"
	TopicModelUpdated        = "sentinel.model.updated"
)

// IngestedTransaction is the payload published on TopicTransactionIngested.
type IngestedTransaction struct {
	RequestID   string      `json:"requestId"`
	Transaction Transaction `json:"transaction"`
}

// ModelUpdated is the payload published on TopicModelUpdated.
type ModelUpdated struct {
	Version   string  `json:"version"`
	Threshold float64 `json:"threshold"`
	Reason    string  `json:"reason"`
}
