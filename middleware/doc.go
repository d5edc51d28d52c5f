// Package middleware provides the admission control chain for HTTP services
// built on core/router.
//
// Every middleware follows the same shape: a default constructor, a
// WithConfig constructor taking an XxxConfig struct with a Skip hook, and
// context helpers for values it stores.
//
//   - RequestID assigns the correlation id, echoes it in the response and
//     opens the per-request id scope from pkg/idscope.
//   - BodyLimit rejects oversized or malformed Content-Length declarations
//     before the body is read and caps the bytes a handler can read.
//   - RateLimit consults a ratelimiter.Limiter and emits the X-RateLimit-*
//     headers, answering 429 with Retry-After while a client is locked out.
//   - ClientIP resolves the caller address used as the default rate key.
//   - Logging writes one structured record per request.
//   - SecurityHeaders sets the usual API response headers.
//
// A typical chain:
//
//	r.Use(
//		middleware.RequestID[*router.Context](),
//		middleware.BodyLimit[*router.Context](),
//		middleware.Logging[*router.Context](),
//		middleware.ClientIP[*router.Context](),
//	)
//	r.With(middleware.RateLimit[*router.Context](middleware.RateLimitConfig{Limiter: limiter})).Post("/api/challenge", issue)
package middleware
