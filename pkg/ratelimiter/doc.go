// Package ratelimiter implements fixed-window rate limiting with a penalty
// lockout, keyed by client identity and rule.
//
// A Rule counts requests per key in windows of Window length. The first Max
// requests in a window are admitted. The next one is rejected and locks the
// key for Penalty; while locked, requests are rejected without being counted.
// Once the window has passed and the lockout has ended, counting starts over.
//
//	store := ratelimiter.NewMemoryStore(ratelimiter.WithMaxKeys(100_000))
//	rules, _ := ratelimiter.DefaultPolicy().Rules()
//	limiter, err := ratelimiter.New(store, rules)
//	if err != nil {
//		return err
//	}
//
//	res, err := limiter.Check(ctx, clientip.GetIP(r), r.URL.Path)
//	if err == nil && !res.Allowed {
//		// 429, Retry-After: res.RetryAfter()
//	}
//
// When several rules match a path each one is charged. The result reports the
// first rule that rejected, or the last matching rule when all admitted.
// With no matching rule the request is allowed and Result.Limit is zero.
//
// Fixed windows admit up to twice Max across a window boundary. That is
// acceptable for the endpoints this guards.
//
// # Stores
//
// MemoryStore keeps buckets in process. Buckets whose window and lockout have
// both ended are removed by a periodic sweep (Start, Stop, Run), and
// WithMaxKeys puts a hard ceiling on their number. RedisStore shares buckets
// between instances and applies each hit in one Lua script.
//
// # Policy files
//
//	actions:
//	  - name: challenge-issue
//	    paths: ["/api/challenge"]
//	    window: 60s
//	    max: 10
//	    penalty: 5m
package ratelimiter
