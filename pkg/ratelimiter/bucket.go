package ratelimiter

import "time"

// Bucket is the counting state for one (identity, rule) pair.
type Bucket struct {
	WindowStart time.Time
	Count       int
	LockedUntil time.Time
}

// Locked reports whether requests are rejected outright at now.
func (b Bucket) Locked(now time.Time) bool {
	return now.Before(b.LockedUntil)
}

// ExpiresAt is the moment after which the bucket carries no state worth keeping:
// the later of the window end and the lockout end.
func (b Bucket) ExpiresAt(window time.Duration) time.Time {
	end := b.WindowStart.Add(window)
	if b.LockedUntil.After(end) {
		return b.LockedUntil
	}
	return end
}

// hit applies one request to b and reports whether it is admitted.
// A locked bucket rejects without counting. An elapsed window starts over at now.
func (b *Bucket) hit(rule Rule, now time.Time) bool {
	if b.Locked(now) {
		return false
	}

	if !now.Before(b.WindowStart.Add(rule.Window)) {
		b.WindowStart = now
		b.Count = 0
	}

	b.Count++
	if b.Count > rule.Max {
		b.LockedUntil = now.Add(rule.Penalty)
		return false
	}
	return true
}
