package app

import (
	"strings"

	"github.com/dmitrymomot/starter/core/handler"
	"github.com/dmitrymomot/starter/core/health"
	"github.com/dmitrymomot/starter/core/router"
	"github.com/dmitrymomot/starter/internal/challenge"
	"github.com/dmitrymomot/starter/middleware"
)

// routes installs the global chain and the endpoints.
//
// RequestID runs first so every later rejection, body guard included, carries
// the correlation id. The body guard still runs before anything reads the body.
func (app *App) routes() {
	r := app.router

	r.Use(
		middleware.RequestID[*router.Context](),
		middleware.SecurityHeadersWithConfig[*router.Context](app.securityHeaders()),
		middleware.BodyLimitWithConfig[*router.Context](middleware.BodyLimitConfig{
			MaxSize: app.config.MaxBodySize,
			Logger:  app.logger,
		}),
		middleware.LoggingWithConfig[*router.Context](middleware.LoggingConfig{
			Logger: app.logger,
			Skip:   isHealthProbe,
		}),
		middleware.ClientIPWithConfig[*router.Context](middleware.ClientIPConfig{
			TrustForwardedHeaders: app.config.RateLimitTrustProxy,
			TrustedProxies:        app.proxies,
		}),
	)

	r.Get("/health/live", health.Liveness[*router.Context])
	r.Get("/health/ready", health.Readiness[*router.Context](app.logger, app.checks...))

	r.Route("/api", func(api router.Router[*router.Context]) {
		limited := api.With(middleware.RateLimit[*router.Context](middleware.RateLimitConfig{
			Limiter:    app.limiter,
			Logger:     app.logger,
			FailClosed: app.config.RateLimitFailClosed,
		}))
		limited.Post("/challenge", challenge.IssueHandler[*router.Context](app.challenges))
		limited.Post("/challenge/redeem", challenge.RedeemHandler[*router.Context](app.challenges))
	})
}

func (app *App) securityHeaders() middleware.SecurityHeadersConfig {
	cfg := middleware.APISecurity
	cfg.IsDevelopment = !app.config.IsProduction()
	return cfg
}

func isHealthProbe(ctx handler.Context) bool {
	return strings.HasPrefix(ctx.Request().URL.Path, "/health/")
}
