package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/starter/app"
	"github.com/dmitrymomot/starter/core/server"
	"github.com/dmitrymomot/starter/internal/challenge"
)

func testConfig() app.Config {
	return app.Config{
		Server:                   server.Config{Addr: "127.0.0.1:0", ShutdownTimeout: 5 * time.Second},
		AppName:                  "starter-test",
		Env:                      "test",
		MaxBodySize:              1024,
		RateLimitMaxKeys:         100,
		RateLimitCleanupInterval: time.Minute,
		ChallengeSecret:          "0123456789abcdef0123456789abcdef",
		ChallengeDifficulty:      4,
		ChallengeTTL:             time.Minute,
	}
}

func newTestApp(t *testing.T, cfg app.Config, logs io.Writer) *app.App {
	t.Helper()
	if logs == nil {
		logs = io.Discard
	}
	a, err := app.NewApp(context.Background(),
		app.WithConfig(cfg),
		app.WithLogger(slog.New(slog.NewJSONHandler(logs, nil))),
	)
	require.NoError(t, err)
	return a
}

func post(h http.Handler, path string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestChallengeFlow(t *testing.T) {
	t.Parallel()

	h := newTestApp(t, testConfig(), nil).Handler()

	w := post(h, "/api/challenge", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	var ch challenge.Challenge
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ch))

	body, err := json.Marshal(challenge.Solution{Challenge: ch, Nonce: challenge.Solve(ch.Salt, ch.Difficulty)})
	require.NoError(t, err)
	jsonHeader := map[string]string{"Content-Type": "application/json"}

	w = post(h, "/api/challenge/redeem", body, jsonHeader)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "20", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "19", w.Header().Get("X-RateLimit-Remaining"))

	w = post(h, "/api/challenge/redeem", body, jsonHeader)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestIssueRateLimited(t *testing.T) {
	t.Parallel()

	h := newTestApp(t, testConfig(), nil).Handler()

	for i := range 10 {
		w := post(h, "/api/challenge", nil, nil)
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}

	w := post(h, "/api/challenge", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "300", w.Header().Get("Retry-After"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	// Redemption is a separate bucket.
	w = post(h, "/api/challenge/redeem", []byte(`{}`), map[string]string{"Content-Type": "application/json"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "19", w.Header().Get("X-RateLimit-Remaining"))
}

func TestBodyGuardRunsBeforeRateLimit(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	h := newTestApp(t, testConfig(), &logs).Handler()

	w := post(h, "/api/challenge/redeem", nil, map[string]string{
		"Content-Length": "4096",
		"X-Request-ID":   "guard-1",
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "Payload Too Large", w.Body.String())
	assert.Equal(t, "guard-1", w.Header().Get("X-Request-ID"))
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	assert.Contains(t, logs.String(), `"request_id":"guard-1"`)

	w = post(h, "/api/challenge/redeem", nil, map[string]string{"Content-Length": "12abc"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Bad Request", w.Body.String())
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	h := newTestApp(t, testConfig(), nil).Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ALIVE", w.Body.String())

	// The memory store sweeper only runs inside App.Run.
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestPolicyFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ratelimit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.TrimSpace(`
actions:
  - name: challenge-issue
    paths: ["/api/challenge"]
    window: 1m
    max: 1
    penalty: 30s
`)), 0o600))

	cfg := testConfig()
	cfg.RateLimitPolicyFile = path
	h := newTestApp(t, cfg, nil).Handler()

	assert.Equal(t, http.StatusOK, post(h, "/api/challenge", nil, nil).Code)
	w := post(h, "/api/challenge", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))

	// No rule covers redemption in this policy.
	w = post(h, "/api/challenge/redeem", []byte(`{}`), map[string]string{"Content-Type": "application/json"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestNewAppErrors(t *testing.T) {
	t.Parallel()

	t.Run("production requires secret", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig()
		cfg.Env = "production"
		cfg.ChallengeSecret = ""
		_, err := app.NewApp(context.Background(), app.WithConfig(cfg), app.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
		assert.ErrorIs(t, err, app.ErrMissingChallengeSecret)
	})

	t.Run("ephemeral secret outside production", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig()
		cfg.ChallengeSecret = ""
		_, err := app.NewApp(context.Background(), app.WithConfig(cfg), app.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
		assert.NoError(t, err)
	})

	t.Run("missing policy file", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig()
		cfg.RateLimitPolicyFile = filepath.Join(t.TempDir(), "missing.yaml")
		_, err := app.NewApp(context.Background(), app.WithConfig(cfg), app.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
		assert.Error(t, err)
	})

	t.Run("nil logger", func(t *testing.T) {
		t.Parallel()

		_, err := app.NewApp(context.Background(), app.WithConfig(testConfig()), app.WithLogger(nil))
		assert.Error(t, err)
	})
}

func TestRunAndShutdown(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		return !strings.HasSuffix(a.Addr(), ":0")
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + a.Addr() + "/health/ready")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunWithCleanupDisabled(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.RateLimitCleanupInterval = 0
	a := newTestApp(t, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		return !strings.HasSuffix(a.Addr(), ":0")
	}, 2*time.Second, 10*time.Millisecond)

	// With no sweeper to wait for, the store reports ready.
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + a.Addr() + "/health/ready")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRateLimitKeyIgnoresSpoofedForwardedFor(t *testing.T) {
	t.Parallel()

	h := newTestApp(t, testConfig(), nil).Handler()

	for i := range 10 {
		w := post(h, "/api/challenge", nil, map[string]string{"X-Forwarded-For": fmt.Sprintf("10.0.0.%d", i)})
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}

	w := post(h, "/api/challenge", nil, map[string]string{"X-Forwarded-For": "10.0.0.99"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimitTrustProxy(t *testing.T) {
	t.Parallel()

	t.Run("trust all", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig()
		cfg.RateLimitTrustProxy = true
		h := newTestApp(t, cfg, nil).Handler()

		for i := range 11 {
			w := post(h, "/api/challenge", nil, map[string]string{"X-Forwarded-For": fmt.Sprintf("198.51.100.%d", i)})
			assert.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		}
	})

	t.Run("trusted proxy list", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig()
		cfg.RateLimitTrustedProxies = "192.0.2.0/24"
		h := newTestApp(t, cfg, nil).Handler()

		// httptest requests come from 192.0.2.1.
		for i := range 11 {
			w := post(h, "/api/challenge", nil, map[string]string{"X-Forwarded-For": fmt.Sprintf("198.51.100.%d", i)})
			assert.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		}
	})

	t.Run("untrusted peer", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig()
		cfg.RateLimitTrustedProxies = "10.0.0.0/8"
		h := newTestApp(t, cfg, nil).Handler()

		for i := range 10 {
			post(h, "/api/challenge", nil, map[string]string{"X-Forwarded-For": fmt.Sprintf("198.51.100.%d", i)})
		}
		w := post(h, "/api/challenge", nil, map[string]string{"X-Forwarded-For": "198.51.100.200"})
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
	})

	t.Run("invalid list", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig()
		cfg.RateLimitTrustedProxies = "not-a-cidr"
		_, err := app.NewApp(context.Background(), app.WithConfig(cfg), app.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
		assert.Error(t, err)
	})
}
