package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/starter/core/logger"
)

// memoryBucket is a Bucket plus the bookkeeping needed for eviction.
type memoryBucket struct {
	Bucket
	expiresAt  time.Time
	lastAccess time.Time
}

// MemoryStore implements Store interface using in-memory storage.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]*memoryBucket

	// Configuration
	cleanupInterval time.Duration
	shutdownTimeout time.Duration
	maxKeys         int
	now             func() time.Time
	logger          *slog.Logger

	// State management
	cancel context.CancelFunc
	runID  uint64
	wg     sync.WaitGroup

	// Observability metrics
	bucketsCreated atomic.Int64
	bucketsRemoved atomic.Int64
	bucketsEvicted atomic.Int64
}

// MemoryStoreStats provides observability metrics for monitoring and debugging
type MemoryStoreStats struct {
	BucketsCreated int64 // Total number of buckets created
	BucketsRemoved int64 // Total number of expired buckets removed by sweeps
	BucketsEvicted int64 // Total number of live buckets evicted by the key cap
	ActiveBuckets  int   // Current number of active buckets
	IsRunning      bool  // Whether the cleanup goroutine is running
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets the cleanup interval for removing expired buckets.
// Set to 0 to disable automatic cleanup.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(ms *MemoryStore) {
		ms.cleanupInterval = interval
	}
}

// WithMemoryStoreShutdownTimeout sets the graceful shutdown timeout.
func WithMemoryStoreShutdownTimeout(timeout time.Duration) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if timeout > 0 {
			ms.shutdownTimeout = timeout
		}
	}
}

// WithMemoryStoreLogger sets the logger for internal operations.
func WithMemoryStoreLogger(logger *slog.Logger) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if logger != nil {
			ms.logger = logger
		}
	}
}

// WithMaxKeys caps the number of buckets held at once. When a new key
// arrives at the cap, expired buckets are swept first, then the least
// recently used bucket is evicted. Zero means no cap.
func WithMaxKeys(n int) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if n >= 0 {
			ms.maxKeys = n
		}
	}
}

// WithMemoryStoreClock overrides the clock used by the background sweep.
func WithMemoryStoreClock(now func() time.Time) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if now != nil {
			ms.now = now
		}
	}
}

// NewMemoryStore creates a new in-memory store.
// Call Start() to begin background cleanup.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	ms := &MemoryStore{
		buckets:         make(map[string]*memoryBucket),
		cleanupInterval: time.Minute,
		shutdownTimeout: 30 * time.Second,
		now:             time.Now,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(ms)
	}

	return ms
}

// Hit applies one request to the bucket under key.
func (ms *MemoryStore) Hit(ctx context.Context, key string, rule Rule, now time.Time) (Bucket, bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	b, exists := ms.buckets[key]
	if !exists {
		if ms.maxKeys > 0 && len(ms.buckets) >= ms.maxKeys {
			ms.makeRoomLocked(ctx, now)
		}
		b = &memoryBucket{}
		ms.buckets[key] = b
		ms.bucketsCreated.Add(1)
	}

	allowed := b.hit(rule, now)
	b.expiresAt = b.ExpiresAt(rule.Window)
	b.lastAccess = now

	return b.Bucket, allowed, nil
}

// Reset drops the bucket under key.
func (ms *MemoryStore) Reset(ctx context.Context, key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	delete(ms.buckets, key)
	return nil
}

// makeRoomLocked frees at least one slot. Caller holds ms.mu.
func (ms *MemoryStore) makeRoomLocked(ctx context.Context, now time.Time) {
	if ms.removeExpiredLocked(now) > 0 && len(ms.buckets) < ms.maxKeys {
		return
	}

	var (
		oldestKey string
		oldest    time.Time
	)
	for key, b := range ms.buckets {
		if oldestKey == "" || b.lastAccess.Before(oldest) {
			oldestKey, oldest = key, b.lastAccess
		}
	}
	if oldestKey == "" {
		return
	}

	delete(ms.buckets, oldestKey)
	ms.bucketsEvicted.Add(1)
	ms.logger.DebugContext(ctx, "rate limit bucket evicted at key cap",
		logger.Component("ratelimiter"),
		slog.Int("max_keys", ms.maxKeys),
	)
}

// Start begins the background cleanup goroutine. This is a blocking operation
// that runs until the context is cancelled. Use Run() for errgroup pattern or call this in a goroutine.
func (ms *MemoryStore) Start(ctx context.Context) error {
	ms.mu.Lock()
	if ms.cancel != nil {
		ms.mu.Unlock()
		return ErrAlreadyStarted
	}

	if ms.cleanupInterval <= 0 {
		ms.mu.Unlock()
		return ErrCleanupDisabled
	}

	runCtx, cancel := context.WithCancel(ctx)
	ms.cancel = cancel
	ms.runID++
	id := ms.runID
	ms.mu.Unlock()

	// Clear the state when the parent context ends without Stop, unless a
	// later Start already owns it.
	defer func() {
		ms.mu.Lock()
		if ms.cancel != nil && ms.runID == id {
			ms.cancel = nil
		}
		ms.mu.Unlock()
		cancel()
	}()

	ms.logger.InfoContext(runCtx, "memory store cleanup started",
		logger.Component("ratelimiter"),
		slog.Duration("cleanup_interval", ms.cleanupInterval))

	ticker := time.NewTicker(ms.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-runCtx.Done():
			ms.logger.InfoContext(context.Background(), "memory store cleanup stopping", logger.Component("ratelimiter"))
			return runCtx.Err()
		case <-ticker.C:
			ms.cleanupWithWait()
		}
	}
}

// Stop gracefully shuts down the background cleanup with a timeout.
// Returns an error if the shutdown timeout is exceeded.
func (ms *MemoryStore) Stop() error {
	ms.mu.Lock()
	if ms.cancel == nil {
		ms.mu.Unlock()
		return ErrNotStarted
	}

	cancel := ms.cancel
	ms.cancel = nil
	ms.mu.Unlock()

	cancel()

	ctx, ctxCancel := context.WithTimeout(context.Background(), ms.shutdownTimeout)
	defer ctxCancel()

	done := make(chan struct{})
	go func() {
		ms.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		ms.logger.InfoContext(ctx, "memory store stopped cleanly", logger.Component("ratelimiter"))
		return nil
	case <-ctx.Done():
		ms.logger.WarnContext(context.Background(), "memory store shutdown timeout exceeded",
			logger.Component("ratelimiter"),
			slog.Duration("timeout", ms.shutdownTimeout))
		return fmt.Errorf("shutdown timeout exceeded after %s", ms.shutdownTimeout)
	}
}

// Run provides errgroup compatibility for coordinated lifecycle management.
// Returns a function that starts the cleanup, monitors context cancellation,
// and performs graceful shutdown when the context is cancelled.
// With cleanup disabled the function returns nil right away.
func (ms *MemoryStore) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- ms.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = ms.Stop()
			<-errCh
			return nil
		case err := <-errCh:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
				errors.Is(err, ErrCleanupDisabled) {
				return nil
			}
			return err
		}
	}
}

// Sweep removes every bucket whose window and lockout have both ended at now.
// It returns the number of removed buckets.
func (ms *MemoryStore) Sweep(now time.Time) int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.removeExpiredLocked(now)
}

// cleanupWithWait is a wrapper around Sweep that tracks the operation with WaitGroup
func (ms *MemoryStore) cleanupWithWait() {
	ms.mu.RLock()
	if ms.cancel == nil {
		ms.mu.RUnlock()
		return
	}
	ms.wg.Add(1)
	ms.mu.RUnlock()

	defer ms.wg.Done()
	if removed := ms.Sweep(ms.now()); removed > 0 {
		ms.logger.Debug("expired rate limit buckets removed",
			logger.Component("ratelimiter"),
			logger.Count("removed", removed),
		)
	}
}

func (ms *MemoryStore) removeExpiredLocked(now time.Time) int {
	removed := 0
	for key, b := range ms.buckets {
		if !now.Before(b.expiresAt) {
			delete(ms.buckets, key)
			removed++
		}
	}

	if removed > 0 {
		ms.bucketsRemoved.Add(int64(removed))
	}
	return removed
}

// Stats returns current memory store statistics for observability and monitoring.
// This method is thread-safe and can be called at any time.
func (ms *MemoryStore) Stats() MemoryStoreStats {
	ms.mu.RLock()
	isRunning := ms.cancel != nil
	activeBuckets := len(ms.buckets)
	ms.mu.RUnlock()

	return MemoryStoreStats{
		BucketsCreated: ms.bucketsCreated.Load(),
		BucketsRemoved: ms.bucketsRemoved.Load(),
		BucketsEvicted: ms.bucketsEvicted.Load(),
		ActiveBuckets:  activeBuckets,
		IsRunning:      isRunning,
	}
}

// Healthcheck validates that the memory store is operational.
// Returns nil if healthy, or an error describing the health issue.
func (ms *MemoryStore) Healthcheck(ctx context.Context) error {
	if ms.cleanupInterval > 0 && !ms.Stats().IsRunning {
		return fmt.Errorf("%w: cleanup is configured but not running", ErrStoreUnavailable)
	}
	return nil
}
