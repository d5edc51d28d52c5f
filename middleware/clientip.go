package middleware

import (
	"net/http"
	"net/netip"

	"github.com/dmitrymomot/starter/core/handler"
	"github.com/dmitrymomot/starter/core/response"
	"github.com/dmitrymomot/starter/pkg/clientip"
)

// clientIPContextKey is used as a key for storing client IP in request context.
type clientIPContextKey struct{}

// ClientIPConfig configures the client IP extraction middleware.
type ClientIPConfig struct {
	// Skip defines a function to skip middleware execution for specific requests
	Skip func(ctx handler.Context) bool
	// HeaderName specifies the response header name for the client IP (default: "X-Client-IP")
	HeaderName string
	// StoreInHeader determines whether to include the IP in response headers
	StoreInHeader bool
	// ValidateFunc allows custom validation of the extracted IP address
	ValidateFunc func(ctx handler.Context, ip string) error
	// TrustForwardedHeaders honors proxy headers on every request.
	// Enable only when all traffic passes through a proxy that overwrites them.
	TrustForwardedHeaders bool
	// TrustedProxies lists peers whose proxy headers are honored.
	// Requests from any other peer are identified by RemoteAddr.
	TrustedProxies []netip.Prefix
}

// ClientIP creates a client IP extraction middleware with default configuration.
// The extracted IP is stored in the request context and used as the default
// rate limiting key. By default it is the RemoteAddr host; forwarding headers
// are read only when ClientIPConfig trusts the peer.
func ClientIP[C handler.Context]() handler.Middleware[C] {
	return ClientIPWithConfig[C](ClientIPConfig{})
}

// ClientIPWithConfig creates a client IP extraction middleware with custom configuration.
func ClientIPWithConfig[C handler.Context](cfg ClientIPConfig) handler.Middleware[C] {
	if cfg.HeaderName == "" {
		cfg.HeaderName = "X-Client-IP"
	}

	return func(next handler.HandlerFunc[C]) handler.HandlerFunc[C] {
		return func(ctx C) handler.Response {
			if cfg.Skip != nil && cfg.Skip(ctx) {
				return next(ctx)
			}

			ip := clientIP(ctx.Request(), cfg)
			ctx.SetValue(clientIPContextKey{}, ip)

			if cfg.ValidateFunc != nil {
				if err := cfg.ValidateFunc(ctx, ip); err != nil {
					return response.Error(response.ErrForbidden.WithError(err))
				}
			}

			resp := next(ctx)

			if cfg.StoreInHeader {
				return func(w http.ResponseWriter, r *http.Request) error {
					w.Header().Set(cfg.HeaderName, ip)
					return resp(w, r)
				}
			}

			return resp
		}
	}
}

func clientIP(r *http.Request, cfg ClientIPConfig) string {
	if cfg.TrustForwardedHeaders || clientip.FromTrustedProxy(r, cfg.TrustedProxies) {
		return clientip.GetForwardedIP(r)
	}
	return clientip.GetIP(r)
}

// GetClientIP retrieves the client IP address from the request context.
// Returns the IP address and a boolean indicating whether it was found.
func GetClientIP(ctx handler.Context) (string, bool) {
	ip, ok := ctx.Value(clientIPContextKey{}).(string)
	return ip, ok
}
