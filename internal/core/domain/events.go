package domain

import "time"

// KeyBlockedEvent represents the payload for throttle.key.blocked messages,
// emitted when a key transitions into the blocked state.
type KeyBlockedEvent struct {
	EventID      string
	Key          string
	Scope        string
	Attempts     int
	BlockedAt    time.Time
	BlockedUntil time.Time
	Metadata     map[string]any
}

// KeyResetEvent represents the payload for throttle.key.reset messages,
// emitted when a key's state is explicitly forgiven.
type KeyResetEvent struct {
	EventID  string
	Key      string
	Scope    string
	ResetAt  time.Time
	Metadata map[string]any
}
