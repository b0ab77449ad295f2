package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siteproof/throttle-service/internal/core/domain"
	"github.com/siteproof/throttle-service/internal/core/port"
	"github.com/siteproof/throttle-service/internal/infra/logger"
)

// Limiter enforces one scope's attempt limits over an AttemptStore.
//
// Check is side-effect free; RecordFailure appends an attempt and escalates
// to a hard lockout once the windowed count reaches the scope's maximum.
// The block duration is independent of, and typically longer than, the
// counting window.
type Limiter struct {
	scope  string
	cfg    domain.ScopeConfig
	store  port.AttemptStore
	events port.EventPublisher
	logger *zap.Logger
	now    func() time.Time
}

// NewLimiter validates the scope configuration and builds a limiter.
func NewLimiter(scope string, cfg domain.ScopeConfig, store port.AttemptStore, log *zap.Logger) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scope %q: %w", scope, err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Limiter{
		scope:  scope,
		cfg:    cfg,
		store:  store,
		logger: log,
		now:    time.Now,
	}, nil
}

// WithEventPublisher attaches a publisher notified on block and reset transitions.
func (l *Limiter) WithEventPublisher(events port.EventPublisher) *Limiter {
	l.events = events
	return l
}

// WithClock allows injection of a custom clock (primarily for testing).
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	if now != nil {
		l.now = now
	}
	return l
}

// Scope returns the scope name this limiter enforces.
func (l *Limiter) Scope() string {
	return l.scope
}

// Config returns the immutable scope configuration.
func (l *Limiter) Config() domain.ScopeConfig {
	return l.cfg
}

// Check evaluates a key without mutating its state. An active block
// dominates the windowed count; a pure check never establishes one.
func (l *Limiter) Check(ctx context.Context, key string) (domain.Decision, error) {
	if key == "" {
		return domain.Decision{}, domain.ErrEmptyKey
	}

	now := l.now()
	state, err := l.store.Peek(ctx, key, l.cfg.Window, now)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("peek attempts: %w", err)
	}

	return l.decide(state, now), nil
}

// RecordFailure records one failed attempt for a key and returns the
// updated decision. The attempt that pushes the windowed count to the
// scope maximum trips the block in the same store mutation.
func (l *Limiter) RecordFailure(ctx context.Context, key string) (domain.Decision, error) {
	if key == "" {
		return domain.Decision{}, domain.ErrEmptyKey
	}

	now := l.now()
	state, err := l.store.RecordAttempt(ctx, key, domain.RecordParams{
		At:        now,
		Window:    l.cfg.Window,
		Threshold: l.cfg.MaxAttempts,
		BlockFor:  l.cfg.BlockDuration,
	})
	if err != nil {
		return domain.Decision{}, fmt.Errorf("record attempt: %w", err)
	}

	if state.BlockStarted {
		l.logger.Warn("key blocked",
			zap.String("scope", l.scope),
			zap.String("key", logger.MaskKey(key)),
			zap.Int("attempts", state.Count),
			zap.Time("blocked_until", state.BlockedUntil),
		)
		l.publishBlocked(ctx, key, state, now)
	}

	return l.decide(state, now), nil
}

// Reset forgives all recorded attempts and any active block for a key,
// typically after a successful authentication.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if key == "" {
		return domain.ErrEmptyKey
	}

	if err := l.store.Reset(ctx, key); err != nil {
		return fmt.Errorf("reset key: %w", err)
	}

	l.logger.Info("key reset",
		zap.String("scope", l.scope),
		zap.String("key", logger.MaskKey(key)),
	)

	if l.events != nil {
		event := domain.KeyResetEvent{
			EventID: uuid.NewString(),
			Key:     key,
			Scope:   l.scope,
			ResetAt: l.now(),
		}
		if err := l.events.PublishKeyReset(ctx, event); err != nil {
			l.logger.Warn("publish key reset failed", zap.String("scope", l.scope), zap.Error(err))
		}
	}

	return nil
}

// RemoveExpired sweeps store records whose window and block have elapsed.
func (l *Limiter) RemoveExpired(ctx context.Context) (int, error) {
	return l.store.RemoveExpired(ctx, l.now())
}

func (l *Limiter) decide(state domain.AttemptState, now time.Time) domain.Decision {
	decision := domain.Decision{
		Scope:        l.scope,
		Limit:        l.cfg.MaxAttempts,
		BlockStarted: state.BlockStarted,
	}

	if state.Blocked {
		decision.Allowed = false
		decision.Remaining = 0
		decision.RetryAfter = state.BlockedUntil.Sub(now)
		decision.ResetAt = state.BlockedUntil
		return decision
	}

	reset := now.Add(l.cfg.Window)
	if state.HasAttempts {
		reset = state.Oldest.Add(l.cfg.Window)
	}
	decision.ResetAt = reset

	if state.Count >= l.cfg.MaxAttempts {
		decision.Allowed = false
		decision.Remaining = 0
		decision.RetryAfter = reset.Sub(now)
		if decision.RetryAfter < 0 {
			decision.RetryAfter = 0
		}
		return decision
	}

	decision.Allowed = true
	decision.Remaining = l.cfg.MaxAttempts - state.Count
	return decision
}

func (l *Limiter) publishBlocked(ctx context.Context, key string, state domain.AttemptState, now time.Time) {
	if l.events == nil {
		return
	}

	event := domain.KeyBlockedEvent{
		EventID:      uuid.NewString(),
		Key:          key,
		Scope:        l.scope,
		Attempts:     state.Count,
		BlockedAt:    now,
		BlockedUntil: state.BlockedUntil,
	}
	if err := l.events.PublishKeyBlocked(ctx, event); err != nil {
		l.logger.Warn("publish key blocked failed", zap.String("scope", l.scope), zap.Error(err))
	}
}
