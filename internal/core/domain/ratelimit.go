package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrEmptyKey indicates the caller supplied a missing or empty throttle key.
	ErrEmptyKey = errors.New("throttle: key must not be empty")
	// ErrInvalidConfig indicates a scope configuration that cannot enforce a limit.
	ErrInvalidConfig = errors.New("throttle: invalid scope configuration")
	// ErrUnknownScope indicates a request referenced a scope that was never configured.
	ErrUnknownScope = errors.New("throttle: unknown scope")
)

// ScopeConfig holds the knobs for a single named rate-limit profile.
// MaxAttempts of zero is a valid "always block" configuration.
type ScopeConfig struct {
	MaxAttempts   int
	Window        time.Duration
	BlockDuration time.Duration
}

// Validate reports whether the configuration can be enforced.
func (c ScopeConfig) Validate() error {
	if c.MaxAttempts < 0 {
		return fmt.Errorf("%w: max attempts must not be negative", ErrInvalidConfig)
	}
	if c.Window <= 0 {
		return fmt.Errorf("%w: window must be positive", ErrInvalidConfig)
	}
	if c.BlockDuration <= 0 {
		return fmt.Errorf("%w: block duration must be positive", ErrInvalidConfig)
	}
	return nil
}

// AttemptRecord is the per-key tracking state held by a store: the attempt
// instants inside the current window plus an optional hard block.
type AttemptRecord struct {
	Key          string
	Timestamps   []time.Time
	BlockedUntil time.Time
}

// Blocked reports whether the record carries an active block at the supplied moment.
func (r AttemptRecord) Blocked(at time.Time) bool {
	return r.BlockedUntil.After(at)
}

// Trim drops timestamps older than the window relative to the reference
// instant and returns the number of attempts that remain.
func (r *AttemptRecord) Trim(window time.Duration, ref time.Time) int {
	cutoff := ref.Add(-window)
	kept := r.Timestamps[:0]
	for _, ts := range r.Timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	r.Timestamps = kept
	return len(kept)
}

// Expired reports whether the record carries no live state: the window has
// fully elapsed and any block is in the past. Expired records are eligible
// for removal without changing any allow/deny outcome.
func (r AttemptRecord) Expired(window time.Duration, ref time.Time) bool {
	if r.Blocked(ref) {
		return false
	}
	cutoff := ref.Add(-window)
	for _, ts := range r.Timestamps {
		if ts.After(cutoff) {
			return false
		}
	}
	return true
}

// AttemptState is the point-in-time view of a key a store reports back:
// the windowed attempt count, the oldest attempt still inside the window,
// and the block if one is active.
type AttemptState struct {
	Count        int
	Oldest       time.Time
	HasAttempts  bool
	BlockedUntil time.Time
	Blocked      bool
	// BlockStarted is true only on the mutation that established the block,
	// so callers can react to the transition exactly once.
	BlockStarted bool
}

// RecordParams carries the inputs for an atomic record-attempt mutation.
// When the windowed count reaches Threshold the store must establish a
// block until At.Add(BlockFor) in the same critical section.
type RecordParams struct {
	At        time.Time
	Window    time.Duration
	Threshold int
	BlockFor  time.Duration
}

// Decision is the outcome of evaluating a key against its scope limits.
type Decision struct {
	Scope      string
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
	// BlockStarted marks the decision produced by the attempt that tripped
	// the block; read-only checks never set it.
	BlockStarted bool
}

// RetryAfterSeconds returns the retry hint rounded up to whole seconds, the
// granularity exposed on the wire and in Retry-After style headers.
func (d Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(d.RetryAfter.Seconds()))
}
