package middleware

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/dmitrymomot/starter/core/handler"
	"github.com/dmitrymomot/starter/core/logger"
	"github.com/dmitrymomot/starter/core/response"
	"github.com/dmitrymomot/starter/core/sanitizer"
)

// Common size constants for convenience
const (
	// KB represents 1 kilobyte
	KB int64 = 1024
	// MB represents 1 megabyte
	MB = 1024 * KB
	// GB represents 1 gigabyte
	GB = 1024 * MB
)

// DefaultMaxBodySize is used when BodyLimitConfig.MaxSize is not set.
const DefaultMaxBodySize = 4 * MB

// maxContentLengthChars rejects absurd magnitudes before numeric parsing.
const maxContentLengthChars = 32

// BodySizeDecision is the verdict of CheckContentLength.
type BodySizeDecision struct {
	// Pass is true when the request may proceed.
	Pass bool
	// Status is 400 for a malformed header or 413 for an oversized one. Zero on pass.
	Status int
	// SafeValue is the header value made safe to log. Empty when the header is absent.
	SafeValue string
}

// CheckContentLength validates the declared Content-Length of a mutating request
// against maxSize before any body bytes are read. Other methods and requests
// without the header always pass.
func CheckContentLength(method string, header http.Header, maxSize int64) BodySizeDecision {
	if !isMutating(method) {
		return BodySizeDecision{Pass: true}
	}

	values, ok := header["Content-Length"]
	if !ok || len(values) == 0 {
		return BodySizeDecision{Pass: true}
	}

	raw := values[0]
	safe := sanitizer.LogValue(raw)
	if len(values) > 1 {
		return BodySizeDecision{Status: http.StatusBadRequest, SafeValue: safe}
	}

	v := sanitizer.StripLineBreaks(raw)
	if len(v) > maxContentLengthChars || !sanitizer.IsDigits(v) {
		return BodySizeDecision{Status: http.StatusBadRequest, SafeValue: safe}
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		// 20+ digit values overflow int64 and are far beyond any limit.
		return BodySizeDecision{Status: http.StatusRequestEntityTooLarge, SafeValue: safe}
	}
	if n > maxSize {
		return BodySizeDecision{Status: http.StatusRequestEntityTooLarge, SafeValue: safe}
	}

	return BodySizeDecision{Pass: true, SafeValue: safe}
}

// rejectionText returns the fixed body for a guard rejection.
func rejectionText(status int) string {
	if status == http.StatusRequestEntityTooLarge {
		return "Payload Too Large"
	}
	return "Bad Request"
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// BodyLimitConfig configures the request body limit middleware.
type BodyLimitConfig struct {
	// Skip defines a function to skip middleware execution for specific requests
	Skip func(ctx handler.Context) bool

	// MaxSize is the maximum allowed size in bytes (default: 4MB)
	MaxSize int64

	// Logger receives one warning per rejected request (default: slog.Default())
	Logger *slog.Logger

	// LogEvery and LogBurst throttle rejection logs (default: 10 per second, burst 20).
	// A negative LogEvery disables throttling.
	LogEvery time.Duration
	LogBurst int

	// ErrorHandler renders rejections (default: plain-text 400 / 413, not cached)
	ErrorHandler func(ctx handler.Context, decision BodySizeDecision) handler.Response

	// DisableReadLimit skips wrapping the body in a reader capped at MaxSize
	DisableReadLimit bool
}

// BodyLimit creates a body limit middleware with default configuration (4MB limit).
func BodyLimit[C handler.Context]() handler.Middleware[C] {
	return BodyLimitWithConfig[C](BodyLimitConfig{})
}

// BodyLimitWithSize creates a body limit middleware with a specified size limit.
func BodyLimitWithSize[C handler.Context](maxSize int64) handler.Middleware[C] {
	return BodyLimitWithConfig[C](BodyLimitConfig{
		MaxSize: maxSize,
	})
}

// BodyLimitWithConfig creates a body limit middleware with custom configuration.
// Requests declaring a malformed or oversized Content-Length are rejected before
// the body is read. Bodies of admitted requests are capped at MaxSize while read.
func BodyLimitWithConfig[C handler.Context](cfg BodyLimitConfig) handler.Middleware[C] {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxBodySize
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.LogEvery == 0 {
		cfg.LogEvery = 100 * time.Millisecond
	}
	if cfg.LogBurst <= 0 {
		cfg.LogBurst = 20
	}

	var logLimiter *rate.Limiter
	if cfg.LogEvery > 0 {
		logLimiter = rate.NewLimiter(rate.Every(cfg.LogEvery), cfg.LogBurst)
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(_ handler.Context, d BodySizeDecision) handler.Response {
			return response.NoStore(response.StringWithStatus(rejectionText(d.Status), d.Status))
		}
	}

	return func(next handler.HandlerFunc[C]) handler.HandlerFunc[C] {
		return func(ctx C) handler.Response {
			if cfg.Skip != nil && cfg.Skip(ctx) {
				return next(ctx)
			}

			req := ctx.Request()

			decision := CheckContentLength(req.Method, req.Header, cfg.MaxSize)
			if !decision.Pass {
				if logLimiter == nil || logLimiter.Allow() {
					requestID, _ := GetRequestID(ctx)
					cfg.Logger.WarnContext(ctx, "request rejected by body size guard",
						logger.Component("bodylimit"),
						logger.RequestID(requestID),
						logger.Method(req.Method),
						logger.Path(sanitizer.LogValue(req.URL.Path)),
						logger.StatusCode(decision.Status),
						slog.String("content_length", decision.SafeValue),
						slog.Int64("limit", cfg.MaxSize),
					)
				}
				return cfg.ErrorHandler(ctx, decision)
			}

			if !cfg.DisableReadLimit && req.Body != nil && req.Body != http.NoBody {
				req.Body = &limitedReader{
					reader: req.Body,
					limit:  cfg.MaxSize,
				}
			}

			return next(ctx)
		}
	}
}

// ErrBodyTooLarge is returned by the capped body reader once MaxSize is exceeded.
// The concrete error reports status 413 to the error handler.
var ErrBodyTooLarge = errors.New("request body too large")

type bodyTooLargeError struct {
	limit int64
}

func (e bodyTooLargeError) Error() string {
	return fmt.Sprintf("%s: limit is %d bytes", ErrBodyTooLarge, e.limit)
}

func (e bodyTooLargeError) StatusCode() int { return http.StatusRequestEntityTooLarge }

func (e bodyTooLargeError) Is(target error) bool { return target == ErrBodyTooLarge }

// limitedReader wraps an io.ReadCloser to enforce a size limit.
// It reads one byte past the limit so a body of exactly limit bytes still succeeds.
type limitedReader struct {
	reader io.ReadCloser
	limit  int64
	read   int64
}

// Read implements io.Reader
func (lr *limitedReader) Read(p []byte) (int, error) {
	if lr.read > lr.limit {
		return 0, bodyTooLargeError{limit: lr.limit}
	}

	if remaining := lr.limit + 1 - lr.read; int64(len(p)) > remaining {
		p = p[:remaining]
	}

	n, err := lr.reader.Read(p)
	lr.read += int64(n)

	if lr.read > lr.limit {
		return n - int(lr.read-lr.limit), bodyTooLargeError{limit: lr.limit}
	}

	return n, err
}

// Close implements io.Closer
func (lr *limitedReader) Close() error {
	return lr.reader.Close()
}
