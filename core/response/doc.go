// Package response builds handler.Response values: plain text, JSON, bare
// status codes and errors.
//
// Handlers return errors through Error so the router's error handler decides
// how they are rendered:
//
//	func redeem(ctx *router.Context) handler.Response {
//		if err := check(ctx); err != nil {
//			return response.Error(response.ErrForbidden.WithError(err))
//		}
//		return response.JSON(map[string]bool{"ok": true})
//	}
//
// HTTPError values carry a status, a machine-readable code and optional
// details. ToHTTPError maps any error onto one, using a StatusCode() method
// when the error has it. ErrorHandler renders plain text and JSONErrorHandler
// renders {"code","message","details"}.
//
// NoStore marks a response as uncacheable. Rejections produced by the
// admission middlewares use it.
package response
