package ratelimiter

import "errors"

// Package-level error definitions for rate limiter operations.
var (
	ErrInvalidRule      = errors.New("invalid rate limit rule")
	ErrDuplicateRule    = errors.New("duplicate rate limit rule name")
	ErrInvalidPolicy    = errors.New("invalid rate limit policy")
	ErrNilStore         = errors.New("rate limit store is nil")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrAlreadyStarted   = errors.New("memory store already started")
	ErrNotStarted       = errors.New("memory store not started")
	ErrCleanupDisabled  = errors.New("memory store cleanup not configured")
)
