package tracing

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/LSFLK/superapp-mobile-sub000/internal/shared/id"
)

// Header carries the trace ID on inbound API requests and outbound
// backend calls.
const Header = "X-Trace-ID"

const maxTraceIDLen = 128

type traceIDKey struct{}

// WithTraceID returns a context carrying traceID.
func WithTraceID(ctx context.Context, traceID id.TraceID) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// FromContext returns the trace ID in ctx, or "" if there is none.
func FromContext(ctx context.Context) id.TraceID {
	if ctx == nil {
		return ""
	}
	traceID, _ := ctx.Value(traceIDKey{}).(id.TraceID)
	return traceID
}

// Field is a zap field for the trace ID in ctx. It is a no-op field when
// ctx carries none.
func Field(ctx context.Context) zap.Field {
	traceID := FromContext(ctx)
	if traceID == "" {
		return zap.Skip()
	}
	return zap.String("trace_id", string(traceID))
}

// Inject copies the trace ID in ctx onto outbound request headers.
func Inject(ctx context.Context, h http.Header) {
	if traceID := FromContext(ctx); traceID != "" {
		h.Set(Header, string(traceID))
	}
}

// Extract reads a caller-supplied trace ID. Empty, oversized or
// non-printable values are rejected so they never reach log lines.
func Extract(h http.Header) (id.TraceID, bool) {
	v := h.Get(Header)
	if v == "" || len(v) > maxTraceIDLen {
		return "", false
	}
	for i := 0; i < len(v); i++ {
		if v[i] < 0x21 || v[i] > 0x7e {
			return "", false
		}
	}
	return id.TraceID(v), true
}
