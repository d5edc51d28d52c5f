package handler

import (
	"context"
	"net/http"
)

// Context is the request context every handler and middleware receives.
// It embeds context.Context so request-scoped values (request id, id scope,
// client IP) travel with it into goroutines started by the handler.
type Context interface {
	context.Context
	Request() *http.Request
	ResponseWriter() http.ResponseWriter
	Param(key string) string
	SetValue(key, val any)
}
