// Package idscope hands out per-request sequential identifiers such as
// "field-1", "field-2" for markup that needs ids unique within one response.
//
// Each scope owns its own counter and travels on a context.Context, so every
// goroutine handed that context draws from the same sequence while concurrent
// requests never see each other's numbers. Calls without a scope fall back to
// a process-wide counter, which keeps startup code and tests working.
//
//	html := idscope.Run(ctx, func(ctx context.Context) string {
//		return render(idscope.Use(ctx, "ds"), idscope.Use(ctx, "ds"))
//	})
//
// The RequestID middleware installs a scope on every request. Ids are unique
// within a scope only; combine them with the request id when global
// uniqueness matters.
package idscope
