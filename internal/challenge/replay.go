package challenge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// minReplayTTL keeps a redeemed id blocked even when it is redeemed in its
// last instant of validity.
const minReplayTTL = time.Second

// ReplayStore records redeemed challenge ids.
type ReplayStore interface {
	// MarkUsed records id for ttl and reports whether this was its first use.
	MarkUsed(ctx context.Context, id string, ttl time.Duration) (bool, error)
}

// MemoryReplayStore keeps redeemed ids in process memory.
type MemoryReplayStore struct {
	mu   sync.Mutex
	used map[string]time.Time
	now  func() time.Time
}

// NewMemoryReplayStore creates an empty in-memory replay store.
func NewMemoryReplayStore() *MemoryReplayStore {
	return &MemoryReplayStore{
		used: make(map[string]time.Time),
		now:  time.Now,
	}
}

// MarkUsed implements ReplayStore.
func (m *MemoryReplayStore) MarkUsed(_ context.Context, id string, ttl time.Duration) (bool, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if until, ok := m.used[id]; ok && now.Before(until) {
		return false, nil
	}
	m.used[id] = now.Add(max(ttl, minReplayTTL))
	return true, nil
}

// Sweep drops ids whose challenges can no longer be redeemed and returns how
// many were removed.
func (m *MemoryReplayStore) Sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, until := range m.used {
		if !now.Before(until) {
			delete(m.used, id)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done. It matches the errgroup
// signature used by the server lifecycle. A non-positive interval disables
// sweeping and the function returns nil at once.
func (m *MemoryReplayStore) Run(ctx context.Context, interval time.Duration) func() error {
	return func() error {
		if interval <= 0 {
			return nil
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				m.Sweep()
			}
		}
	}
}

// DefaultReplayPrefix namespaces replay keys in Redis.
const DefaultReplayPrefix = "challenge:used"

// RedisReplayStore records redeemed ids with SET NX EX so that every
// instance sharing the Redis server rejects the same replay.
type RedisReplayStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisReplayStore creates a replay store on client. An empty prefix
// falls back to DefaultReplayPrefix.
func NewRedisReplayStore(client redis.UniversalClient, prefix string) *RedisReplayStore {
	if prefix == "" {
		prefix = DefaultReplayPrefix
	}
	return &RedisReplayStore{client: client, prefix: prefix}
}

// MarkUsed implements ReplayStore.
func (r *RedisReplayStore) MarkUsed(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.prefix+":"+id, 1, max(ttl, minReplayTTL)).Result()
	if err != nil {
		return false, fmt.Errorf("mark %s used: %w", id, err)
	}
	return ok, nil
}
