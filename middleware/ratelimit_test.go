package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/starter/core/handler"
	"github.com/dmitrymomot/starter/core/response"
	"github.com/dmitrymomot/starter/core/router"
	"github.com/dmitrymomot/starter/middleware"
	"github.com/dmitrymomot/starter/pkg/ratelimiter"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newRateLimitRouter(t *testing.T, clock *testClock, cfg middleware.RateLimitConfig) router.Router[*router.Context] {
	t.Helper()

	if cfg.Limiter == nil {
		limiter, err := ratelimiter.New(ratelimiter.NewMemoryStore(), []ratelimiter.Rule{{
			Name:    "issue",
			Match:   ratelimiter.ExactPaths("/api/challenge"),
			Window:  time.Minute,
			Max:     3,
			Penalty: 2 * time.Minute,
		}}, ratelimiter.WithClock(clock.Now))
		require.NoError(t, err)
		cfg.Limiter = limiter
	}

	r := router.New[*router.Context]()
	r.Use(middleware.ClientIP[*router.Context](), middleware.RateLimit[*router.Context](cfg))

	ok := func(ctx *router.Context) handler.Response {
		return response.JSON(map[string]string{"status": "ok"})
	}
	r.Post("/api/challenge", ok)
	r.Get("/healthz", ok)
	return r
}

func doRequest(r http.Handler, method, path, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = ip + ":54321"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitBasicFunctionality(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	r := newRateLimitRouter(t, clock, middleware.RateLimitConfig{})
	reset := strconv.FormatInt(clock.Now().Add(time.Minute).Unix(), 10)

	for i := range 3 {
		w := doRequest(r, http.MethodPost, "/api/challenge", "192.168.1.100")
		assert.Equal(t, http.StatusOK, w.Code, "Request %d should succeed", i+1)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, strconv.Itoa(2-i), w.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, reset, w.Header().Get("X-RateLimit-Reset"))
		assert.Empty(t, w.Header().Get("Retry-After"))
	}

	w := doRequest(r, http.MethodPost, "/api/challenge", "192.168.1.100")
	assert.Equal(t, http.StatusTooManyRequests, w.Code, "4th request should be rate limited")
	assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, strconv.FormatInt(clock.Now().Add(2*time.Minute).Unix(), 10), w.Header().Get("X-RateLimit-Reset"))
	assert.Equal(t, "120", w.Header().Get("Retry-After"))
	assert.Equal(t, "private, no-store", w.Header().Get("Cache-Control"))
}

func TestRateLimitPenaltyExpires(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	r := newRateLimitRouter(t, clock, middleware.RateLimitConfig{})

	for range 4 {
		doRequest(r, http.MethodPost, "/api/challenge", "10.0.0.1")
	}

	clock.Advance(90 * time.Second)
	w := doRequest(r, http.MethodPost, "/api/challenge", "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))

	clock.Advance(3 * time.Minute)
	w = doRequest(r, http.MethodPost, "/api/challenge", "10.0.0.1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimitPerClient(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	r := newRateLimitRouter(t, clock, middleware.RateLimitConfig{})

	for range 4 {
		doRequest(r, http.MethodPost, "/api/challenge", "10.0.0.1")
	}
	assert.Equal(t, http.StatusTooManyRequests, doRequest(r, http.MethodPost, "/api/challenge", "10.0.0.1").Code)

	w := doRequest(r, http.MethodPost, "/api/challenge", "10.0.0.2")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimitIgnoresSpoofedForwardingHeaders(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	r := newRateLimitRouter(t, clock, middleware.RateLimitConfig{})

	send := func(i int) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/challenge", nil)
		req.RemoteAddr = "192.0.2.50:" + strconv.Itoa(40000+i)
		req.Header.Set("X-Forwarded-For", "198.51.100."+strconv.Itoa(i))
		req.Header.Set("CF-Connecting-IP", "203.0.113."+strconv.Itoa(i))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	for i := range 3 {
		require.Equal(t, http.StatusOK, send(i).Code, "request %d", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, send(3).Code)
}

func TestRateLimitDefaultKeyWithoutClientIP(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	limiter, err := ratelimiter.New(ratelimiter.NewMemoryStore(), []ratelimiter.Rule{{
		Name:    "issue",
		Match:   ratelimiter.ExactPaths("/api/challenge"),
		Window:  time.Minute,
		Max:     1,
		Penalty: time.Minute,
	}}, ratelimiter.WithClock(clock.Now))
	require.NoError(t, err)

	r := router.New[*router.Context]()
	r.Use(middleware.RateLimit[*router.Context](middleware.RateLimitConfig{Limiter: limiter}))
	r.Post("/api/challenge", func(ctx *router.Context) handler.Response {
		return response.String("ok")
	})

	// A new source port is the same client.
	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodPost, "/api/challenge", "10.0.0.1").Code)
	req := httptest.NewRequest(http.MethodPost, "/api/challenge", nil)
	req.RemoteAddr = "10.0.0.1:60000"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimitNoMatchingRuleOmitsHeaders(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	r := newRateLimitRouter(t, clock, middleware.RateLimitConfig{})

	for range 10 {
		w := doRequest(r, http.MethodGet, "/healthz", "10.0.0.1")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
		assert.Empty(t, w.Header().Get("X-RateLimit-Remaining"))
		assert.Empty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimitCustomKeyAndErrorHandler(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	r := newRateLimitRouter(t, clock, middleware.RateLimitConfig{
		KeyExtractor: func(ctx handler.Context) string {
			return ctx.Request().Header.Get("X-API-Key")
		},
		ErrorHandler: func(_ handler.Context, res ratelimiter.Result) handler.Response {
			return response.StringWithStatus("slow down: "+res.Rule, http.StatusTooManyRequests)
		},
	})

	send := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/challenge", nil)
		req.Header.Set("X-API-Key", key)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	for range 3 {
		assert.Equal(t, http.StatusOK, send("key-a").Code)
	}
	w := send("key-a")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "slow down: issue", w.Body.String())
	assert.Equal(t, http.StatusOK, send("key-b").Code)
}

func TestRateLimitSkipFunction(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	r := newRateLimitRouter(t, clock, middleware.RateLimitConfig{
		Skip: func(ctx handler.Context) bool {
			return ctx.Request().Header.Get("X-Internal") == "1"
		},
	})

	for range 10 {
		req := httptest.NewRequest(http.MethodPost, "/api/challenge", nil)
		req.Header.Set("X-Internal", "1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

type brokenStore struct{}

func (brokenStore) Hit(context.Context, string, ratelimiter.Rule, time.Time) (ratelimiter.Bucket, bool, error) {
	return ratelimiter.Bucket{}, false, errors.New("redis down")
}

func (brokenStore) Reset(context.Context, string) error { return nil }

func TestRateLimitStoreFailure(t *testing.T) {
	t.Parallel()

	limiter, err := ratelimiter.New(brokenStore{}, []ratelimiter.Rule{{
		Name: "all", Match: ratelimiter.MatchAll, Window: time.Second, Max: 1,
	}})
	require.NoError(t, err)

	t.Run("fails open by default", func(t *testing.T) {
		t.Parallel()
		r := newRateLimitRouter(t, nil, middleware.RateLimitConfig{Limiter: limiter})
		w := doRequest(r, http.MethodPost, "/api/challenge", "10.0.0.1")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	})

	t.Run("fails closed when configured", func(t *testing.T) {
		t.Parallel()
		r := newRateLimitRouter(t, nil, middleware.RateLimitConfig{Limiter: limiter, FailClosed: true})
		w := doRequest(r, http.MethodPost, "/api/challenge", "10.0.0.1")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestRateLimitRequiresLimiter(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		middleware.RateLimit[*router.Context](middleware.RateLimitConfig{})
	})
}

func TestSetRateLimitHeaders(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	resp := middleware.SetRateLimitHeaders(response.String("ok"), ratelimiter.Result{Allowed: true})
	require.NoError(t, resp(w, httptest.NewRequest(http.MethodGet, "/", nil)))
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}
