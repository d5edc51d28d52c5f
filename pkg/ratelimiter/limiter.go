package ratelimiter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dmitrymomot/starter/core/logger"
)

// Limiter checks requests against an ordered list of rules.
type Limiter struct {
	store  Store
	rules  []Rule
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock sets the time source. Tests use it to step through windows.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger used for rejections.
func WithLogger(log *slog.Logger) Option {
	return func(l *Limiter) {
		if log != nil {
			l.logger = log
		}
	}
}

// New creates a Limiter. Every rule is validated and names must be unique.
func New(store Store, rules []Rule, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	seen := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[r.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRule, r.Name)
		}
		seen[r.Name] = struct{}{}
	}

	l := &Limiter{
		store:  store,
		rules:  append([]Rule(nil), rules...),
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Rules returns a copy of the configured rules.
func (l *Limiter) Rules() []Rule {
	return append([]Rule(nil), l.rules...)
}

// Check counts one request from identity to path against every matching rule.
//
// Every matching rule is charged. The result describes the first rejecting
// rule, or the last matching rule when all admit. With no matching rule the
// request is allowed and Limit is 0. An error is returned only when the
// store fails.
func (l *Limiter) Check(ctx context.Context, identity, path string) (Result, error) {
	now := l.now()
	res := Result{Allowed: true, checkedAt: now}

	var rejected bool
	for _, rule := range l.rules {
		if !rule.Match(path) {
			continue
		}

		b, allowed, err := l.store.Hit(ctx, bucketKey(identity, rule.Name), rule, now)
		if err != nil {
			return Result{Allowed: true, checkedAt: now}, fmt.Errorf("rule %s: %w", rule.Name, err)
		}

		if rejected {
			continue
		}

		res = newResult(rule, b, allowed, now)
		if !allowed {
			rejected = true
			l.logger.InfoContext(ctx, "rate limit exceeded",
				logger.Component("ratelimiter"),
				logger.Key("rule", rule.Name),
				logger.Path(path),
				logger.Count("count", b.Count),
				slog.Time("locked_until", b.LockedUntil),
			)
		}
	}

	return res, nil
}

// Reset clears the buckets of identity for every rule.
func (l *Limiter) Reset(ctx context.Context, identity string) error {
	for _, rule := range l.rules {
		if err := l.store.Reset(ctx, bucketKey(identity, rule.Name)); err != nil {
			return fmt.Errorf("rule %s: %w", rule.Name, err)
		}
	}
	return nil
}
