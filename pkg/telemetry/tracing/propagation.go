package tracing

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Trace context propagation follows W3C Trace Context:
//
//	traceparent: 00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01
//
// A caller's traceparent is extracted on the way in, the gateway's request
// span becomes its child, and the forwarder injects the current span into
// every upstream request.

// Extract extracts trace context from inbound headers using the global
// propagator. Without a traceparent the original context is returned.
func Extract(ctx context.Context, headers http.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(headers))
}

// Inject writes the trace context in ctx into outbound headers.
func Inject(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}

// HTTPMiddleware extracts inbound trace context into the request context so
// that spans started further down become children of the caller's span.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(Extract(r.Context(), r.Header)))
	})
}

// ValidateTraceParent reports whether traceparent is a well-formed version
// 00 header with non-zero trace and parent ids.
func ValidateTraceParent(traceparent string) bool {
	parts := strings.Split(traceparent, "-")
	if len(parts) != 4 {
		return false
	}
	for i, want := range []int{2, 32, 16, 2} {
		if len(parts[i]) != want || !isHexString(parts[i]) {
			return false
		}
	}
	if strings.Trim(parts[1], "0") == "" || strings.Trim(parts[2], "0") == "" {
		return false
	}
	return true
}

// IsSampledFromTraceParent reports whether the sampled flag is set.
func IsSampledFromTraceParent(traceparent string) bool {
	if !ValidateTraceParent(traceparent) {
		return false
	}
	flags, err := strconv.ParseUint(traceparent[len(traceparent)-2:], 16, 8)
	return err == nil && flags&0x01 == 0x01
}

func isHexString(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
