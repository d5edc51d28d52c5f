package ratelimiter

import "time"

// Result is the outcome of Limiter.Check.
type Result struct {
	// Allowed is false if any matching rule rejected the request.
	Allowed bool
	// Rule names the rule the other fields describe. Empty when no rule matched.
	Rule string
	// Limit is the rule's Max. Zero means no rule matched and no headers apply.
	Limit int
	// Remaining is the budget left in the current window. Zero when rejected.
	Remaining int
	// ResetAt is when the window ends, or when the lockout ends if that is later.
	ResetAt time.Time

	checkedAt time.Time
}

// Reset returns ResetAt as epoch seconds, rounded up.
func (r Result) Reset() int64 {
	if r.ResetAt.IsZero() {
		return 0
	}
	sec := r.ResetAt.Unix()
	if r.ResetAt.Nanosecond() > 0 {
		sec++
	}
	return sec
}

// RetryAfter returns how long a rejected client should wait. Zero when allowed.
func (r Result) RetryAfter() time.Duration {
	if r.Allowed || r.ResetAt.IsZero() {
		return 0
	}
	return max(r.ResetAt.Sub(r.checkedAt), 0)
}

func newResult(rule Rule, b Bucket, allowed bool, now time.Time) Result {
	res := Result{
		Allowed:   allowed,
		Rule:      rule.Name,
		Limit:     rule.Max,
		ResetAt:   b.ExpiresAt(rule.Window),
		checkedAt: now,
	}
	if allowed {
		res.Remaining = max(rule.Max-b.Count, 0)
	}
	return res
}
