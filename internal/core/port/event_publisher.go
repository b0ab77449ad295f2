package port

import (
	"context"

	"github.com/siteproof/throttle-service/internal/core/domain"
)

// EventPublisher broadcasts throttle lifecycle events to interested consumers.
type EventPublisher interface {
	PublishKeyBlocked(ctx context.Context, event domain.KeyBlockedEvent) error
	PublishKeyReset(ctx context.Context, event domain.KeyResetEvent) error
}
