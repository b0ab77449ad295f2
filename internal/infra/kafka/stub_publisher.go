package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/siteproof/throttle-service/internal/core/domain"
	"github.com/siteproof/throttle-service/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, key, scope string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		logMaskedKey(key),
		zap.String("scope", scope),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishKeyBlocked logs throttle.key.blocked events.
func (p *StubPublisher) PublishKeyBlocked(_ context.Context, event domain.KeyBlockedEvent) error {
	payload := map[string]any{
		"attempts":      event.Attempts,
		"blocked_at":    event.BlockedAt,
		"blocked_until": event.BlockedUntil,
		"metadata":      event.Metadata,
	}
	p.logEvent("throttle.key.blocked", event.Key, event.Scope, event.BlockedAt, payload)
	return nil
}

// PublishKeyReset logs throttle.key.reset events.
func (p *StubPublisher) PublishKeyReset(_ context.Context, event domain.KeyResetEvent) error {
	payload := map[string]any{
		"reset_at": event.ResetAt,
		"metadata": event.Metadata,
	}
	p.logEvent("throttle.key.reset", event.Key, event.Scope, event.ResetAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
