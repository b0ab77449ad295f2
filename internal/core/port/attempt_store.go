package port

import (
	"context"
	"time"

	"github.com/siteproof/throttle-service/internal/core/domain"
)

// AttemptStore defines the per-key state operations required to enforce
// windowed limits with lockout escalation.
//
// RecordAttempt must be atomic per key: appending the attempt, counting the
// window, and establishing the block when the count reaches the threshold
// happen in one critical section so concurrent callers cannot both observe
// a pre-threshold count and miss the blocked transition.
type AttemptStore interface {
	// Peek returns the current state for a key without mutating it.
	Peek(ctx context.Context, key string, window time.Duration, ref time.Time) (domain.AttemptState, error)
	// RecordAttempt appends an attempt and returns the post-record state.
	RecordAttempt(ctx context.Context, key string, params domain.RecordParams) (domain.AttemptState, error)
	// Reset clears all state for a key, including any active block.
	Reset(ctx context.Context, key string) error
	// RemoveExpired drops records whose window and block have both elapsed.
	// Pure memory hygiene; it must never change an allow/deny outcome.
	RemoveExpired(ctx context.Context, ref time.Time) (int, error)
}
