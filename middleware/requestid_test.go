package middleware_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/starter/core/handler"
	"github.com/dmitrymomot/starter/core/logger"
	"github.com/dmitrymomot/starter/core/response"
	"github.com/dmitrymomot/starter/core/router"
	"github.com/dmitrymomot/starter/middleware"
	"github.com/dmitrymomot/starter/pkg/idscope"
)

func TestValidRequestID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id   string
		want bool
	}{
		{"abc-123", true},
		{"A", true},
		{strings.Repeat("a", 64), true},
		{strings.Repeat("a", 65), false},
		{"", false},
		{"bad id!", false},
		{"with_underscore", false},
		{"line\nbreak", false},
		{"abc-123\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, middleware.ValidRequestID(tt.id))
		})
	}
}

func TestRequestIDDefaultConfiguration(t *testing.T) {
	t.Parallel()

	r := router.New[*router.Context]()
	r.Use(middleware.RequestID[*router.Context]())

	var capturedID string
	r.Get("/test", func(ctx *router.Context) handler.Response {
		id, ok := middleware.GetRequestID(ctx)
		assert.True(t, ok, "Request ID should be present in context")
		capturedID = id
		return response.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, capturedID, 36, "Default ID should be UUID v4 format")
	assert.Equal(t, capturedID, w.Header().Get("X-Request-ID"))
	assert.True(t, middleware.ValidRequestID(capturedID))
}

func TestRequestIDInbound(t *testing.T) {
	t.Parallel()

	r := router.New[*router.Context]()
	r.Use(middleware.RequestID[*router.Context]())
	r.Get("/test", func(ctx *router.Context) handler.Response {
		return response.String("ok")
	})

	t.Run("valid id is echoed verbatim", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("X-Request-ID", "abc-123")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
	})

	t.Run("invalid id is replaced", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("X-Request-ID", "bad id!")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		got := w.Header().Get("X-Request-ID")
		assert.NotEmpty(t, got)
		assert.NotEqual(t, "bad id!", got)
		assert.True(t, middleware.ValidRequestID(got))
	})

	t.Run("too long id is replaced", func(t *testing.T) {
		t.Parallel()

		long := strings.Repeat("x", 65)
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("X-Request-ID", long)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.NotEqual(t, long, w.Header().Get("X-Request-ID"))
	})

	t.Run("echoed on not found", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("X-Request-ID", "nf-1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, "nf-1", w.Header().Get("X-Request-ID"))
	})
}

func TestRequestIDCustomGenerator(t *testing.T) {
	t.Parallel()

	t.Run("valid generated id is used", func(t *testing.T) {
		t.Parallel()

		r := router.New[*router.Context]()
		r.Use(middleware.RequestIDWithConfig[*router.Context](middleware.RequestIDConfig{
			Generator:  func() string { return "custom-123-456" },
			HeaderName: "X-Correlation-ID",
		}))
		r.Get("/test", func(ctx *router.Context) handler.Response {
			return response.String("ok")
		})

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, "custom-123-456", w.Header().Get("X-Correlation-ID"))
		assert.Empty(t, w.Header().Get("X-Request-ID"))
	})

	t.Run("invalid generated id falls back to uuid", func(t *testing.T) {
		t.Parallel()

		r := router.New[*router.Context]()
		r.Use(middleware.RequestIDWithConfig[*router.Context](middleware.RequestIDConfig{
			Generator: func() string { return "not valid" },
		}))
		r.Get("/test", func(ctx *router.Context) handler.Response {
			return response.String("ok")
		})

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		got := w.Header().Get("X-Request-ID")
		assert.Len(t, got, 36)
		assert.True(t, middleware.ValidRequestID(got))
	})
}

func TestRequestIDIgnoreIncoming(t *testing.T) {
	t.Parallel()

	r := router.New[*router.Context]()
	r.Use(middleware.RequestIDWithConfig[*router.Context](middleware.RequestIDConfig{
		IgnoreIncoming: true,
	}))
	r.Get("/test", func(ctx *router.Context) handler.Response {
		return response.String("ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.NotEqual(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestRequestIDInstallsScope(t *testing.T) {
	t.Parallel()

	r := router.New[*router.Context]()
	r.Use(middleware.RequestID[*router.Context]())
	r.Get("/test", func(ctx *router.Context) handler.Response {
		require.True(t, idscope.HasScope(ctx))

		ids := []string{idscope.Use(ctx, "ds")}
		done := make(chan string)
		go func(ctx context.Context) { done <- idscope.Use(ctx, "ds") }(ctx.Request().Context())
		ids = append(ids, <-done, idscope.Use(ctx, "ds"))

		return response.String(strings.Join(ids, ","))
	})

	for range 3 {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
		assert.Equal(t, "ds-1,ds-2,ds-3", w.Body.String())
	}
}

func TestRequestIDSkip(t *testing.T) {
	t.Parallel()

	r := router.New[*router.Context]()
	r.Use(middleware.RequestIDWithConfig[*router.Context](middleware.RequestIDConfig{
		Skip: func(ctx handler.Context) bool { return ctx.Request().URL.Path == "/healthz" },
	}))
	r.Get("/healthz", func(ctx *router.Context) handler.Response {
		_, ok := middleware.GetRequestID(ctx)
		assert.False(t, ok)
		return response.String("ok")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Empty(t, w.Header().Get("X-Request-ID"))
}

func TestRequestIDExtractor(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(
		logger.WithJSONFormatter(),
		logger.WithOutput(&buf),
		logger.WithContextExtractors(middleware.RequestIDExtractor),
	)

	r := router.New[*router.Context]()
	r.Use(middleware.RequestID[*router.Context]())
	r.Get("/test", func(ctx *router.Context) handler.Response {
		log.InfoContext(ctx, "handled")
		return response.String("ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Request-ID", "trace-42")
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.Contains(t, buf.String(), `"request_id":"trace-42"`)

	_, ok := middleware.RequestIDExtractor(context.Background())
	assert.False(t, ok)

	attr, ok := middleware.RequestIDExtractor(context.WithValue(context.Background(), struct{}{}, "x"))
	assert.False(t, ok)
	assert.Equal(t, slog.Attr{}, attr)
}
