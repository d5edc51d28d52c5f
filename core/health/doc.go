// Package health provides HTTP handlers for service health monitoring.
//
//   - Liveness: the process is running, no dependency checks.
//   - Readiness: every dependency check passes, 503 otherwise.
//
// Dependency checks use the func(context.Context) error signature, which the
// rate limit stores and the redis integration already expose as Healthcheck.
package health
