// Package logger builds slog loggers and provides attribute helpers with
// consistent key names across the application.
//
//	log := logger.New(
//		logger.WithProduction("starter"),
//		logger.WithContextExtractors(middleware.RequestIDExtractor),
//	)
//
//	log.WarnContext(ctx, "rate limit exceeded",
//		logger.Component("ratelimit"),
//		logger.ClientIP(ip),
//		logger.Path(r.URL.Path),
//	)
//
// Context extractors run on every *Context call (InfoContext, LogAttrs, ...)
// and let request-scoped values such as the request id appear on every line
// logged while serving that request.
package logger
