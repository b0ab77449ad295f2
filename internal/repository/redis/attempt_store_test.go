package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"

	"github.com/siteproof/throttle-service/internal/core/domain"
	"github.com/siteproof/throttle-service/internal/repository"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(server.Close)

	client := red.NewClient(&red.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return client, server
}

func testParams(at time.Time) domain.RecordParams {
	return domain.RecordParams{
		At:        at,
		Window:    time.Minute,
		Threshold: 5,
		BlockFor:  15 * time.Minute,
	}
}

func TestAttemptStoreRecordUntilBlocked(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewAttemptStore(client, AttemptStoreConfig{KeyPrefix: "throttle:test"})

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	key := "auth:192.0.2.1"

	var state domain.AttemptState
	var err error
	for i := 0; i < 5; i++ {
		state, err = store.RecordAttempt(context.Background(), key, testParams(now.Add(time.Duration(i)*time.Second)))
		if err != nil {
			t.Fatalf("RecordAttempt %d returned error: %v", i+1, err)
		}
	}

	if state.Count != 5 {
		t.Fatalf("expected count 5, got %d", state.Count)
	}
	if !state.Blocked {
		t.Fatalf("expected block after threshold attempts")
	}
	expected := now.Add(4 * time.Second).Add(15 * time.Minute)
	if !state.BlockedUntil.Equal(expected) {
		t.Fatalf("expected block until %v, got %v", expected, state.BlockedUntil)
	}
}

func TestAttemptStoreBlockStablePastThreshold(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewAttemptStore(client, AttemptStoreConfig{})

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	key := "auth:192.0.2.1"

	for i := 0; i < 5; i++ {
		if _, err := store.RecordAttempt(context.Background(), key, testParams(now)); err != nil {
			t.Fatalf("RecordAttempt returned error: %v", err)
		}
	}

	state, err := store.RecordAttempt(context.Background(), key, testParams(now.Add(30*time.Second)))
	if err != nil {
		t.Fatalf("RecordAttempt returned error: %v", err)
	}
	if !state.BlockedUntil.Equal(now.Add(15 * time.Minute)) {
		t.Fatalf("block must stay anchored at the tripping attempt, got %v", state.BlockedUntil)
	}
	if state.Count != 6 {
		t.Fatalf("expected all 6 attempts tracked, got %d", state.Count)
	}
}

func TestAttemptStorePeek(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewAttemptStore(client, AttemptStoreConfig{})

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	key := "api:user-42"

	empty, err := store.Peek(context.Background(), key, time.Minute, now)
	if err != nil {
		t.Fatalf("Peek returned error: %v", err)
	}
	if empty.HasAttempts || empty.Blocked {
		t.Fatalf("expected zero state, got %+v", empty)
	}

	for i := 0; i < 3; i++ {
		if _, err := store.RecordAttempt(context.Background(), key, testParams(now.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("RecordAttempt returned error: %v", err)
		}
	}

	state, err := store.Peek(context.Background(), key, time.Minute, now.Add(3*time.Second))
	if err != nil {
		t.Fatalf("Peek returned error: %v", err)
	}
	if state.Count != 3 {
		t.Fatalf("expected count 3, got %d", state.Count)
	}
	if !state.HasAttempts || !state.Oldest.Equal(now) {
		t.Fatalf("expected oldest attempt %v, got %+v", now, state)
	}

	// Attempts age out of the counting window without any mutation.
	aged, err := store.Peek(context.Background(), key, time.Minute, now.Add(62*time.Second))
	if err != nil {
		t.Fatalf("Peek returned error: %v", err)
	}
	if aged.Count != 0 {
		t.Fatalf("expected aged-out attempts excluded, got %d", aged.Count)
	}
}

func TestAttemptStoreReset(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewAttemptStore(client, AttemptStoreConfig{})

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	key := "auth:192.0.2.1"

	params := testParams(now)
	params.Threshold = 1
	if _, err := store.RecordAttempt(context.Background(), key, params); err != nil {
		t.Fatalf("RecordAttempt returned error: %v", err)
	}

	if err := store.Reset(context.Background(), key); err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}

	state, err := store.Peek(context.Background(), key, time.Minute, now)
	if err != nil {
		t.Fatalf("Peek returned error: %v", err)
	}
	if state.Count != 0 || state.Blocked {
		t.Fatalf("expected clean state after reset, got %+v", state)
	}
}

func TestAttemptStoreInvalidInput(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewAttemptStore(client, AttemptStoreConfig{})

	now := time.Now()
	if _, err := store.Peek(context.Background(), "", time.Minute, now); !errors.Is(err, repository.ErrEmptyKey) {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
	if _, err := store.Peek(context.Background(), "k", 0, now); !errors.Is(err, repository.ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
	if _, err := store.RecordAttempt(context.Background(), "", testParams(now)); !errors.Is(err, repository.ErrEmptyKey) {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
	if err := store.Reset(context.Background(), ""); !errors.Is(err, repository.ErrEmptyKey) {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
}
