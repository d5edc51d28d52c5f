// Package handler defines the request-processing contract shared by the router,
// the middleware chain and application handlers.
//
// A handler receives a typed context and returns a Response closure instead of
// writing to the http.ResponseWriter directly. Middleware can therefore decide
// to short-circuit (return its own Response) or decorate the downstream
// Response, for example to add headers after the handler has run:
//
//	func Stamp[C handler.Context]() handler.Middleware[C] {
//		return func(next handler.HandlerFunc[C]) handler.HandlerFunc[C] {
//			return func(ctx C) handler.Response {
//				resp := next(ctx)
//				return func(w http.ResponseWriter, r *http.Request) error {
//					w.Header().Set("X-Stamp", "1")
//					return resp(w, r)
//				}
//			}
//		}
//	}
package handler
