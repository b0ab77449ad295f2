package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siteproof/throttle-service/internal/core/domain"
	"github.com/siteproof/throttle-service/internal/core/port"
	"github.com/siteproof/throttle-service/internal/infra/config"
	"github.com/siteproof/throttle-service/internal/infra/logger"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, log *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: log}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	Key       string           `json:"key"`
	Scope     string           `json:"scope"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, key, scope string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		Key:       key,
		Scope:     scope,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishKeyBlocked publishes throttle.key.blocked events.
func (p *EventPublisher) PublishKeyBlocked(ctx context.Context, event domain.KeyBlockedEvent) error {
	payload := struct {
		Key          string         `json:"key"`
		Scope        string         `json:"scope"`
		Attempts     int            `json:"attempts"`
		BlockedAt    time.Time      `json:"blocked_at"`
		BlockedUntil time.Time      `json:"blocked_until"`
		Metadata     map[string]any `json:"metadata,omitempty"`
	}{
		Key:          event.Key,
		Scope:        event.Scope,
		Attempts:     event.Attempts,
		BlockedAt:    event.BlockedAt.UTC(),
		BlockedUntil: event.BlockedUntil.UTC(),
		Metadata:     event.Metadata,
	}

	return p.publish(ctx, event.EventID, "throttle.key.blocked", event.Key, event.Scope, event.BlockedAt, payload)
}

// PublishKeyReset publishes throttle.key.reset events.
func (p *EventPublisher) PublishKeyReset(ctx context.Context, event domain.KeyResetEvent) error {
	payload := struct {
		Key      string         `json:"key"`
		Scope    string         `json:"scope"`
		ResetAt  time.Time      `json:"reset_at"`
		Metadata map[string]any `json:"metadata,omitempty"`
	}{
		Key:      event.Key,
		Scope:    event.Scope,
		ResetAt:  event.ResetAt.UTC(),
		Metadata: event.Metadata,
	}

	return p.publish(ctx, event.EventID, "throttle.key.reset", event.Key, event.Scope, event.ResetAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)

// logMaskedKey keeps raw keys out of producer-side logs.
func logMaskedKey(key string) zap.Field {
	return zap.String("key", logger.MaskKey(key))
}
