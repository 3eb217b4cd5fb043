// Package httpclient is the authenticated HTTP client shared by the catalog,
// token issuer and bundle downloader.
//
// It wraps resty over a pooled retryablehttp transport with an optional
// client-side rate limit. Retries are off unless HTTP_RETRY_COUNT is set.
//
// Every call runs through a circuit breaker. Transport errors and 5xx
// responses count against it; once open, calls fail fast with
// resilience.ErrCircuitOpen until the cooldown passes. The request's trace
// ID, if any, is forwarded in X-Trace-ID.
package httpclient
