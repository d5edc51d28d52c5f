package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"github.com/dmitrymomot/starter/core/handler"
	"github.com/dmitrymomot/starter/core/logger"
	"github.com/dmitrymomot/starter/pkg/idscope"
)

// DefaultRequestIDHeader carries the correlation id in both directions.
const DefaultRequestIDHeader = "X-Request-ID"

// requestIDContextKey is used as a key for storing request ID in request context.
type requestIDContextKey struct{}

var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,64}$`)

// ValidRequestID reports whether id may be reused as a correlation id.
func ValidRequestID(id string) bool {
	return requestIDPattern.MatchString(id)
}

// RequestIDConfig configures the request ID middleware.
type RequestIDConfig struct {
	// Skip defines a function to skip middleware execution for specific requests
	Skip func(ctx handler.Context) bool
	// Generator creates new request IDs (default: UUID v4).
	// Generated ids that fail ValidRequestID are replaced with a UUID.
	Generator func() string
	// HeaderName specifies the header name for the request ID (default: "X-Request-ID")
	HeaderName string
	// IgnoreIncoming always generates a fresh id, even for a valid inbound one
	IgnoreIncoming bool
	// DisableScope skips installing an idscope counter on the request
	DisableScope bool
}

// RequestID creates a request ID middleware with default configuration.
// A valid inbound id is reused, otherwise a UUID is generated. The id is
// stored in context and echoed on the response.
func RequestID[C handler.Context]() handler.Middleware[C] {
	return RequestIDWithConfig[C](RequestIDConfig{})
}

// RequestIDWithConfig creates a request ID middleware with custom configuration.
func RequestIDWithConfig[C handler.Context](cfg RequestIDConfig) handler.Middleware[C] {
	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultRequestIDHeader
	}

	if cfg.Generator == nil {
		cfg.Generator = uuid.NewString
	}

	generate := func() string {
		if id := cfg.Generator(); ValidRequestID(id) {
			return id
		}
		return uuid.NewString()
	}

	return func(next handler.HandlerFunc[C]) handler.HandlerFunc[C] {
		return func(ctx C) handler.Response {
			if cfg.Skip != nil && cfg.Skip(ctx) {
				return next(ctx)
			}

			var requestID string
			if !cfg.IgnoreIncoming {
				if inbound := ctx.Request().Header.Get(cfg.HeaderName); ValidRequestID(inbound) {
					requestID = inbound
				}
			}
			if requestID == "" {
				requestID = generate()
			}

			ctx.SetValue(requestIDContextKey{}, requestID)
			if !cfg.DisableScope {
				idscope.Attach(ctx)
			}

			resp := next(ctx)

			return func(w http.ResponseWriter, r *http.Request) error {
				w.Header().Set(cfg.HeaderName, requestID)
				return resp(w, r)
			}
		}
	}
}

// GetRequestID retrieves the request ID from the request context.
// Returns the request ID and a boolean indicating whether it was found.
func GetRequestID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(requestIDContextKey{}).(string)
	return id, ok
}

// RequestIDExtractor adds request_id to log records written with a request context.
//
//	log := logger.New(logger.WithContextExtractors(middleware.RequestIDExtractor))
func RequestIDExtractor(ctx context.Context) (slog.Attr, bool) {
	id, ok := GetRequestID(ctx)
	if !ok {
		return slog.Attr{}, false
	}
	return logger.RequestID(id), true
}
