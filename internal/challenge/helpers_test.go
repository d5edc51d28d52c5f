package challenge_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/starter/internal/challenge"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

const testDifficulty = 8

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T, clock *fakeClock, replay challenge.ReplayStore) *challenge.Service {
	t.Helper()
	if replay == nil {
		replay = challenge.NewMemoryReplayStore()
	}
	svc, err := challenge.NewService(testSecret, replay,
		challenge.WithDifficulty(testDifficulty),
		challenge.WithTTL(time.Minute),
		challenge.WithClock(clock.Now),
	)
	require.NoError(t, err)
	return svc
}

func solve(ch challenge.Challenge) challenge.Solution {
	return challenge.Solution{Challenge: ch, Nonce: challenge.Solve(ch.Salt, ch.Difficulty)}
}

// weakNonce returns a nonce that does not meet difficulty for salt.
func weakNonce(salt string, difficulty int) string {
	for i := 0; ; i++ {
		nonce := strconv.Itoa(i)
		if challenge.LeadingZeroBits(salt, nonce) < difficulty {
			return nonce
		}
	}
}

type brokenReplayStore struct{}

func (brokenReplayStore) MarkUsed(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}
