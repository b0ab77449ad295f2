package memory

import (
	"context"
	"sync"
	"time"

	"github.com/siteproof/throttle-service/internal/core/domain"
	"github.com/siteproof/throttle-service/internal/core/port"
	"github.com/siteproof/throttle-service/internal/repository"
)

// AttemptStore keeps per-key attempt records in a process-local map.
// State lives for the process lifetime only; in a horizontally scaled
// deployment each replica enforces its own limit.
type AttemptStore struct {
	mu      sync.Mutex
	records map[string]*entry
}

// entry pairs a record with the widest window it has been evaluated under,
// so the sweep can judge staleness without scope knowledge.
type entry struct {
	rec    domain.AttemptRecord
	window time.Duration
}

// NewAttemptStore builds an empty in-memory store.
func NewAttemptStore() *AttemptStore {
	return &AttemptStore{records: make(map[string]*entry)}
}

// Peek returns the current state for a key without recording anything.
// Aged-out timestamps are trimmed in place while the lock is held; the
// trim never changes an outcome, only reclaims memory early.
func (s *AttemptStore) Peek(_ context.Context, key string, window time.Duration, ref time.Time) (domain.AttemptState, error) {
	if key == "" {
		return domain.AttemptState{}, repository.ErrEmptyKey
	}
	if window <= 0 {
		return domain.AttemptState{}, repository.ErrInvalidWindow
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[key]
	if !ok {
		return domain.AttemptState{}, nil
	}
	if window > e.window {
		e.window = window
	}

	e.rec.Trim(window, ref)
	if e.rec.Expired(window, ref) {
		delete(s.records, key)
		return domain.AttemptState{}, nil
	}

	return snapshot(&e.rec, ref), nil
}

// RecordAttempt appends an attempt and trips the block when the windowed
// count reaches the threshold, all under the store lock so concurrent
// callers for the same key cannot race past the blocked transition.
func (s *AttemptStore) RecordAttempt(_ context.Context, key string, params domain.RecordParams) (domain.AttemptState, error) {
	if key == "" {
		return domain.AttemptState{}, repository.ErrEmptyKey
	}
	if params.Window <= 0 {
		return domain.AttemptState{}, repository.ErrInvalidWindow
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[key]
	if !ok {
		e = &entry{rec: domain.AttemptRecord{Key: key}}
		s.records[key] = e
	}
	if params.Window > e.window {
		e.window = params.Window
	}

	e.rec.Trim(params.Window, params.At)
	e.rec.Timestamps = append(e.rec.Timestamps, params.At)

	started := false
	if len(e.rec.Timestamps) >= params.Threshold && !e.rec.Blocked(params.At) {
		e.rec.BlockedUntil = params.At.Add(params.BlockFor)
		started = true
	}

	state := snapshot(&e.rec, params.At)
	state.BlockStarted = started
	return state, nil
}

// Reset drops all state for a key, including any active block.
func (s *AttemptStore) Reset(_ context.Context, key string) error {
	if key == "" {
		return repository.ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, key)
	return nil
}

// RemoveExpired sweeps records whose window has fully elapsed and whose
// block, if any, is in the past. Runs under the same lock as foreground
// mutations so it cannot race a record that was just recreated.
func (s *AttemptStore) RemoveExpired(_ context.Context, ref time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.records {
		if e.rec.Expired(e.window, ref) {
			delete(s.records, key)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of live records, for tests and gauges.
func (s *AttemptStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func snapshot(rec *domain.AttemptRecord, ref time.Time) domain.AttemptState {
	state := domain.AttemptState{
		Count:        len(rec.Timestamps),
		BlockedUntil: rec.BlockedUntil,
		Blocked:      rec.Blocked(ref),
	}
	if len(rec.Timestamps) > 0 {
		state.Oldest = rec.Timestamps[0]
		state.HasAttempts = true
	}
	return state
}

var _ port.AttemptStore = (*AttemptStore)(nil)
