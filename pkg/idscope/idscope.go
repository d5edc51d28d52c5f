package idscope

import (
	"context"
	"strconv"
	"sync/atomic"
)

type scopeKey struct{}

// scope is one counter cell. Goroutines sharing a context share the cell.
type scope struct {
	n atomic.Int64
}

// global serves calls made outside any scope.
var global scope

// Setter stores a value on a request-scoped context, as handler.Context does.
type Setter interface {
	SetValue(key, val any)
}

// WithScope returns a child of ctx carrying a fresh counter.
func WithScope(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, scopeKey{}, &scope{})
}

// Attach installs a fresh counter on s.
func Attach(s Setter) {
	s.SetValue(scopeKey{}, &scope{})
}

// Run calls body with a context carrying a fresh counter and returns its result.
func Run[R any](ctx context.Context, body func(ctx context.Context) R) R {
	return body(WithScope(ctx))
}

// Use returns "prefix-n" where n counts up from 1 within the scope on ctx,
// or within the process when ctx has no scope.
func Use(ctx context.Context, prefix string) string {
	n := from(ctx).n.Add(1)
	return prefix + "-" + strconv.FormatInt(n, 10)
}

// Reset sets the counter of the scope on ctx, or the process counter, back to zero.
func Reset(ctx context.Context) {
	from(ctx).n.Store(0)
}

// HasScope reports whether ctx carries a counter.
func HasScope(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	_, ok := ctx.Value(scopeKey{}).(*scope)
	return ok
}

func from(ctx context.Context) *scope {
	if ctx != nil {
		if s, ok := ctx.Value(scopeKey{}).(*scope); ok {
			return s
		}
	}
	return &global
}
