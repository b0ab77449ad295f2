package repository

import "errors"

var (
	// ErrEmptyKey indicates a store operation was invoked without a key.
	ErrEmptyKey = errors.New("repository: key must not be empty")
	// ErrInvalidWindow indicates a non-positive counting window.
	ErrInvalidWindow = errors.New("repository: window must be positive")
)
