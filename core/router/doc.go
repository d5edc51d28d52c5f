// Package router maps HTTP requests onto typed handlers and runs them through
// a middleware chain.
//
// Matching is done by the standard library's method-aware ServeMux patterns
// ("GET /items/{id}", "/static/"), so the pattern syntax is the one documented
// in net/http. Use "/{$}" to match only the root path; a bare "/" is reserved
// for the router's own not-found handling.
//
//	r := router.New[*router.Context]()
//	r.Use(middleware.RequestID[*router.Context]())
//
//	r.Get("/healthz", func(ctx *router.Context) handler.Response {
//		return response.String("ok")
//	})
//
//	r.Route("/api", func(api router.Router[*router.Context]) {
//		api.With(limit).Post("/challenge", issue)
//	})
//
// Middlewares registered with Use run for every matched route and must be
// added before any route. With, Group and Route return inline routers whose
// middlewares apply only to the routes registered through them.
//
// Unmatched paths are reported as ErrNotFound; a path registered for other
// methods is reported as ErrMethodNotAllowed with an Allow header. Both go
// through the configured error handler, as do panics recovered while serving.
package router
