/*
Package tracing correlates an API request with the backend calls it makes.

Middleware gives each inbound request a trace ID (reusing a valid
X-Trace-ID header when the caller sends one) and stores it in the request
context. The backend client copies it onto outbound requests with Inject,
and components add it to log lines with Field:

	router.Use(tracing.Middleware(logger.Component("http")))

	log.Info("Sync finished", tracing.Field(ctx))

There are no spans or exporters; the trace ID is the only propagated state.
*/
package tracing
