package health

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/starter/core/handler"
	"github.com/dmitrymomot/starter/core/logger"
	"github.com/dmitrymomot/starter/core/response"
)

// Liveness indicates if the service process is running.
// Always returns "ALIVE" with 200 OK. No dependency checks.
func Liveness[C handler.Context](C) handler.Response {
	return response.String("ALIVE")
}

// Readiness verifies all service dependencies are functioning.
// Returns "READY" if all checks pass, 503 Service Unavailable if any fail.
//
//	r.Get("/health/ready", health.Readiness[*router.Context](log, store.Healthcheck))
func Readiness[C handler.Context](log *slog.Logger, fn ...func(context.Context) error) handler.HandlerFunc[C] {
	return func(ctx C) handler.Response {
		for _, f := range fn {
			if err := f(ctx); err != nil {
				log.ErrorContext(ctx, "readiness check failed",
					logger.Component("health"),
					logger.Error(err),
				)
				return response.Error(response.ErrServiceUnavailable)
			}
		}

		return response.String("READY")
	}
}
