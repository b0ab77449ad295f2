package redis

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/siteproof/throttle-service/internal/core/domain"
	"github.com/siteproof/throttle-service/internal/core/port"
	"github.com/siteproof/throttle-service/internal/repository"
)

//go:embed record_attempt.lua
var recordAttemptScript string

// AttemptStoreConfig configures key layout for the shared store.
type AttemptStoreConfig struct {
	KeyPrefix string
}

// AttemptStore persists attempt windows in Redis sorted sets and blocks in
// plain keys, making the limit shared across all replicas pointing at the
// same Redis. The record-and-maybe-block step runs as a Lua script so the
// blocked transition stays atomic across processes.
type AttemptStore struct {
	client *redis.Client
	cfg    AttemptStoreConfig
	record *redis.Script
}

// NewAttemptStore constructs a store using the provided Redis client.
func NewAttemptStore(client *redis.Client, cfg AttemptStoreConfig) *AttemptStore {
	return &AttemptStore{
		client: client,
		cfg:    cfg,
		record: redis.NewScript(recordAttemptScript),
	}
}

// Peek reads the current state for a key without recording an attempt.
func (s *AttemptStore) Peek(ctx context.Context, key string, window time.Duration, ref time.Time) (domain.AttemptState, error) {
	if key == "" {
		return domain.AttemptState{}, repository.ErrEmptyKey
	}
	if window <= 0 {
		return domain.AttemptState{}, repository.ErrInvalidWindow
	}

	var state domain.AttemptState

	blockedRaw, err := s.client.Get(ctx, s.blockKey(key)).Result()
	if err != nil && err != redis.Nil {
		return domain.AttemptState{}, fmt.Errorf("redis get block: %w", err)
	}
	if err == nil {
		until, parseErr := strconv.ParseInt(blockedRaw, 10, 64)
		if parseErr != nil {
			return domain.AttemptState{}, fmt.Errorf("parse block timestamp: %w", parseErr)
		}
		state.BlockedUntil = time.UnixMilli(until)
		state.Blocked = state.BlockedUntil.After(ref)
	}

	min := strconv.FormatInt(ref.Add(-window).UnixMilli(), 10)
	max := strconv.FormatInt(ref.UnixMilli(), 10)

	count, err := s.client.ZCount(ctx, s.windowKey(key), min, max).Result()
	if err != nil {
		return domain.AttemptState{}, fmt.Errorf("redis zcount: %w", err)
	}
	state.Count = int(count)

	if count > 0 {
		oldest, err := s.client.ZRangeByScoreWithScores(ctx, s.windowKey(key), &redis.ZRangeBy{
			Min:    min,
			Max:    max,
			Offset: 0,
			Count:  1,
		}).Result()
		if err != nil {
			return domain.AttemptState{}, fmt.Errorf("redis zrangebyscore: %w", err)
		}
		if len(oldest) > 0 {
			state.Oldest = time.UnixMilli(int64(oldest[0].Score))
			state.HasAttempts = true
		}
	}

	return state, nil
}

// RecordAttempt appends an attempt and, when the windowed count reaches the
// threshold, establishes the block in the same script invocation.
func (s *AttemptStore) RecordAttempt(ctx context.Context, key string, params domain.RecordParams) (domain.AttemptState, error) {
	if key == "" {
		return domain.AttemptState{}, repository.ErrEmptyKey
	}
	if params.Window <= 0 {
		return domain.AttemptState{}, repository.ErrInvalidWindow
	}

	// The window set outlives the window itself so Peek can still report a
	// freshly trimmed state; twice the window is plenty.
	ttl := 2 * params.Window

	result, err := s.record.Run(ctx, s.client,
		[]string{s.windowKey(key), s.blockKey(key)},
		params.At.UnixMilli(),
		params.Window.Milliseconds(),
		params.Threshold,
		params.BlockFor.Milliseconds(),
		ttl.Milliseconds(),
		uuid.NewString(),
	).Result()
	if err != nil {
		return domain.AttemptState{}, fmt.Errorf("redis record attempt: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 4 {
		return domain.AttemptState{}, fmt.Errorf("unexpected script reply %T", result)
	}

	state := domain.AttemptState{}

	if count, ok := values[0].(int64); ok {
		state.Count = int(count)
	}

	if raw, ok := values[1].(string); ok && raw != "" {
		ms, parseErr := strconv.ParseFloat(raw, 64)
		if parseErr != nil {
			return domain.AttemptState{}, fmt.Errorf("parse oldest score: %w", parseErr)
		}
		state.Oldest = time.UnixMilli(int64(ms))
		state.HasAttempts = true
	}

	if raw, ok := values[2].(string); ok && raw != "" {
		until, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil {
			return domain.AttemptState{}, fmt.Errorf("parse block timestamp: %w", parseErr)
		}
		state.BlockedUntil = time.UnixMilli(until)
		state.Blocked = state.BlockedUntil.After(params.At)
	}

	if started, ok := values[3].(int64); ok {
		state.BlockStarted = started == 1
	}

	return state, nil
}

// Reset clears the window and any block for a key.
func (s *AttemptStore) Reset(ctx context.Context, key string) error {
	if key == "" {
		return repository.ErrEmptyKey
	}

	if err := s.client.Del(ctx, s.windowKey(key), s.blockKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// RemoveExpired is satisfied by key TTLs on the Redis side; nothing to sweep.
func (s *AttemptStore) RemoveExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (s *AttemptStore) windowKey(key string) string {
	return fmt.Sprintf("%s:win:%s", s.prefix(), key)
}

func (s *AttemptStore) blockKey(key string) string {
	return fmt.Sprintf("%s:blk:%s", s.prefix(), key)
}

func (s *AttemptStore) prefix() string {
	if s.cfg.KeyPrefix == "" {
		return "throttle"
	}
	return s.cfg.KeyPrefix
}

var _ port.AttemptStore = (*AttemptStore)(nil)
