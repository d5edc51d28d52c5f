package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/dmitrymomot/starter/core/handler"
	"github.com/dmitrymomot/starter/core/logger"
	"github.com/dmitrymomot/starter/core/response"
	"github.com/dmitrymomot/starter/pkg/clientip"
	"github.com/dmitrymomot/starter/pkg/ratelimiter"
)

// Rate limit response headers.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
)

// RateLimitConfig configures the rate limiting middleware.
type RateLimitConfig struct {
	// Skip defines a function to skip middleware execution for specific requests
	Skip func(ctx handler.Context) bool
	// Limiter checks the request path against its rules. Required.
	Limiter *ratelimiter.Limiter
	// KeyExtractor defines how to extract the rate limiting key from requests (default: client IP)
	KeyExtractor func(ctx handler.Context) string
	// ErrorHandler defines how to handle rate limit violations (default: 429 Too Many Requests)
	ErrorHandler func(ctx handler.Context, result ratelimiter.Result) handler.Response
	// FailClosed rejects requests with 503 when the store fails (default: admit and log)
	FailClosed bool
	// Logger receives store failures (default: slog.Default())
	Logger *slog.Logger
}

// RateLimit creates a rate limiting middleware with the provided configuration.
// The X-RateLimit-* headers are set whenever a rule matched the request path.
// Rejections get 429 with Retry-After. Panics if no limiter is provided.
//
//	rules, _ := ratelimiter.DefaultPolicy().Rules()
//	limiter, _ := ratelimiter.New(ratelimiter.NewMemoryStore(), rules)
//	r.Use(middleware.RateLimit[*router.Context](middleware.RateLimitConfig{
//		Limiter: limiter,
//	}))
func RateLimit[C handler.Context](cfg RateLimitConfig) handler.Middleware[C] {
	if cfg.Limiter == nil {
		panic("ratelimit middleware: limiter is required")
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	// Default to the IP stored by ClientIP, else the peer address without its port.
	if cfg.KeyExtractor == nil {
		cfg.KeyExtractor = func(ctx handler.Context) string {
			if ip, ok := GetClientIP(ctx); ok {
				return ip
			}
			return clientip.GetIP(ctx.Request())
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(_ handler.Context, result ratelimiter.Result) handler.Response {
			return response.NoStore(response.Error(response.ErrTooManyRequests.WithDetails(map[string]any{
				"retry_after": retryAfterSeconds(result),
			})))
		}
	}

	return func(next handler.HandlerFunc[C]) handler.HandlerFunc[C] {
		return func(ctx C) handler.Response {
			if cfg.Skip != nil && cfg.Skip(ctx) {
				return next(ctx)
			}

			req := ctx.Request()
			result, err := cfg.Limiter.Check(ctx, cfg.KeyExtractor(ctx), req.URL.Path)
			if err != nil {
				cfg.Logger.WarnContext(ctx, "rate limit store failed",
					logger.Component("ratelimit"),
					logger.Path(req.URL.Path),
					logger.Error(err),
					slog.Bool("fail_closed", cfg.FailClosed),
				)
				if cfg.FailClosed {
					return response.Error(response.ErrServiceUnavailable.WithError(err))
				}
				return next(ctx)
			}

			if !result.Allowed {
				return SetRateLimitHeaders(cfg.ErrorHandler(ctx, result), result)
			}

			return SetRateLimitHeaders(next(ctx), result)
		}
	}
}

// SetRateLimitHeaders wraps resp so the X-RateLimit-* headers, and Retry-After on
// rejection, are written with it. A result with Limit 0 leaves resp untouched.
func SetRateLimitHeaders(resp handler.Response, result ratelimiter.Result) handler.Response {
	if result.Limit <= 0 {
		return resp
	}

	return func(w http.ResponseWriter, r *http.Request) error {
		h := w.Header()
		h.Set(HeaderRateLimitLimit, strconv.Itoa(result.Limit))
		h.Set(HeaderRateLimitRemaining, strconv.Itoa(max(0, result.Remaining)))
		h.Set(HeaderRateLimitReset, strconv.FormatInt(result.Reset(), 10))

		if !result.Allowed {
			h.Set(HeaderRetryAfter, strconv.FormatInt(retryAfterSeconds(result), 10))
		}

		return resp(w, r)
	}
}

// retryAfterSeconds rounds up so clients never retry before the reset.
func retryAfterSeconds(result ratelimiter.Result) int64 {
	return int64(math.Ceil(result.RetryAfter().Seconds()))
}
