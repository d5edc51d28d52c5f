package ratelimiter

import (
	"context"
	"time"
)

// Store persists buckets. Hit must apply the request atomically with
// respect to other Hit calls on the same key.
type Store interface {
	// Hit applies one request at now to the bucket under key and returns the
	// updated bucket and whether the request was admitted.
	Hit(ctx context.Context, key string, rule Rule, now time.Time) (Bucket, bool, error)
	// Reset drops the bucket under key.
	Reset(ctx context.Context, key string) error
}
