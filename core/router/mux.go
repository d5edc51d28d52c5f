package router

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/dmitrymomot/starter/core/handler"
)

// probeMethods are tried when a path has no handler for the request method,
// to tell 405 apart from 404.
var probeMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodOptions,
}

// mux is the private implementation of Router interface.
// Route matching is delegated to http.ServeMux method-aware patterns.
type mux[C handler.Context] struct {
	serveMux     *http.ServeMux
	middlewares  []handler.Middleware[C]
	errorHandler handler.ErrorHandler[C]
	newContext   func(http.ResponseWriter, *http.Request) C
	logger       *slog.Logger

	parent *mux[C] // set for inline routers created by With/Group/Route
	prefix string

	mu        *sync.RWMutex
	routes    *[]Route
	hasRoutes bool
}

// newMux creates a new router instance.
func newMux[C handler.Context](opts ...Option[C]) *mux[C] {
	m := &mux[C]{
		serveMux:     http.NewServeMux(),
		errorHandler: defaultErrorHandler[C],
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		mu:           &sync.RWMutex{},
		routes:       &[]Route{},
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.newContext == nil {
		m.newContext = func(w http.ResponseWriter, r *http.Request) C {
			// Only the default *Context works without a factory.
			var zero C
			if _, ok := any(zero).(*Context); ok {
				return any(NewContext(w, r)).(C)
			}
			panic(ErrNoContextFactory)
		}
	}

	// Unmatched requests land here and go through the error handler.
	m.serveMux.HandleFunc("/", m.notFound)

	return m
}

// ServeHTTP implements http.Handler interface.
func (m *mux[C]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.serveMux.ServeHTTP(w, r)
}

// Get registers a handler for GET requests.
func (m *mux[C]) Get(pattern string, h handler.HandlerFunc[C]) {
	m.handle(http.MethodGet, pattern, h)
}

// Post registers a handler for POST requests.
func (m *mux[C]) Post(pattern string, h handler.HandlerFunc[C]) {
	m.handle(http.MethodPost, pattern, h)
}

// Put registers a handler for PUT requests.
func (m *mux[C]) Put(pattern string, h handler.HandlerFunc[C]) {
	m.handle(http.MethodPut, pattern, h)
}

// Patch registers a handler for PATCH requests.
func (m *mux[C]) Patch(pattern string, h handler.HandlerFunc[C]) {
	m.handle(http.MethodPatch, pattern, h)
}

// Delete registers a handler for DELETE requests.
func (m *mux[C]) Delete(pattern string, h handler.HandlerFunc[C]) {
	m.handle(http.MethodDelete, pattern, h)
}

// Handle registers a handler for all HTTP methods.
func (m *mux[C]) Handle(pattern string, h handler.HandlerFunc[C]) {
	m.handle("", pattern, h)
}

// Use appends middleware to the router.
func (m *mux[C]) Use(middlewares ...handler.Middleware[C]) {
	if m.hasRoutes {
		panic("router: all middlewares must be defined before routes on a mux")
	}
	m.middlewares = append(m.middlewares, middlewares...)
}

// With creates a new inline router with additional middleware.
func (m *mux[C]) With(middlewares ...handler.Middleware[C]) Router[C] {
	return &mux[C]{
		serveMux:     m.serveMux,
		middlewares:  middlewares,
		errorHandler: m.errorHandler,
		newContext:   m.newContext,
		logger:       m.logger,
		parent:       m,
		prefix:       m.prefix,
		mu:           m.mu,
		routes:       m.routes,
	}
}

// Group creates a new inline router for grouping routes.
func (m *mux[C]) Group(fn func(r Router[C])) Router[C] {
	im := m.With()
	if fn != nil {
		fn(im)
	}
	return im
}

// Route creates a new inline router whose patterns are prefixed with pattern.
func (m *mux[C]) Route(pattern string, fn func(r Router[C])) Router[C] {
	if fn == nil {
		panic(fmt.Errorf("%w on '%s'", ErrNilSubrouter, pattern))
	}
	if len(pattern) == 0 || pattern[0] != '/' {
		panic(fmt.Errorf("%w: '%s'", ErrInvalidPattern, pattern))
	}

	sub := m.With().(*mux[C])
	sub.prefix = m.prefix + strings.TrimSuffix(pattern, "/")
	fn(sub)
	return sub
}

// Routes returns all registered routes.
func (m *mux[C]) Routes() []Route {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Route(nil), (*m.routes)...)
}

// handle registers a handler on the shared ServeMux.
// Middlewares of inline routers are bound now; root middlewares run at request time.
func (m *mux[C]) handle(method, pattern string, fn handler.HandlerFunc[C]) {
	if len(pattern) == 0 || pattern[0] != '/' {
		panic(fmt.Errorf("%w: '%s'", ErrInvalidPattern, pattern))
	}

	full := m.prefix + pattern
	if m.prefix != "" && pattern == "/" {
		full = m.prefix
	}

	var inline []handler.Middleware[C]
	root := m
	for root.parent != nil {
		inline = append(append([]handler.Middleware[C]{}, root.middlewares...), inline...)
		root = root.parent
	}
	root.hasRoutes = true

	h := fn
	if len(inline) > 0 {
		h = chain(inline, fn)
	}

	muxPattern := full
	if method != "" {
		muxPattern = method + " " + full
	}

	m.mu.Lock()
	*m.routes = append(*m.routes, Route{Method: method, Pattern: full})
	m.mu.Unlock()

	m.serveMux.HandleFunc(muxPattern, func(w http.ResponseWriter, r *http.Request) {
		root.serve(w, r, h)
	})
}

// serve runs the root middleware chain and the endpoint, then renders the response.
func (m *mux[C]) serve(w http.ResponseWriter, r *http.Request, fn handler.HandlerFunc[C]) {
	ww := newResponseWriter(w)
	ctx := m.newContext(ww, r)

	// Recover from panics to prevent server crashes
	defer func() {
		if p := recover(); p != nil {
			panicErr := &panicError{
				value: p,
				stack: debug.Stack(),
			}

			if ww.Written() {
				m.logger.Error("panic after response written",
					"value", panicErr.value,
					"stack", string(panicErr.stack),
					"path", r.URL.Path,
					"method", r.Method,
					"status", ww.Status(),
				)
				return
			}
			m.errorHandler(ctx, panicErr)
		}
	}()

	if len(m.middlewares) > 0 {
		fn = chain(m.middlewares, fn)
	}

	resp := fn(ctx)
	if resp == nil {
		m.errorHandler(ctx, ErrNilResponse)
		return
	}

	// Middlewares may have replaced the request (SetValue), so render with the latest one.
	if err := resp(ww, ctx.Request()); err != nil {
		m.errorHandler(ctx, err)
	}
}

// notFound is the catch-all route. It runs the root middlewares like any other
// route, then answers 405 with an Allow header when another method is
// registered for the path, 404 otherwise.
func (m *mux[C]) notFound(w http.ResponseWriter, r *http.Request) {
	var allowed []string
	for _, method := range probeMethods {
		if method == r.Method {
			continue
		}
		probe := r.WithContext(r.Context())
		probe.Method = method
		if _, pattern := m.serveMux.Handler(probe); pattern != "/" && pattern != "" {
			allowed = append(allowed, method)
		}
	}

	m.serve(w, r, func(C) handler.Response {
		return func(w http.ResponseWriter, _ *http.Request) error {
			if len(allowed) > 0 {
				w.Header().Set("Allow", strings.Join(allowed, ", "))
				return ErrMethodNotAllowed
			}
			return ErrNotFound
		}
	})
}
