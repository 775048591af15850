package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Gateway attribute keys. Standard HTTP attributes use semconv; gateway
// specific ones live under "kate.".
const (
	AttrService   = "kate.service"
	AttrRoute     = "kate.route"
	AttrRequestID = "kate.request_id"
	AttrStage     = "kate.stage"
	AttrUpstream  = "kate.upstream"
	AttrQueue     = "kate.queue"
	AttrAuthType  = "kate.auth.type"
	AttrRateLimit = "kate.ratelimit.remaining"

	AttrErrorMessage = "error.message"
)

// SetRouteAttributes tags a request span with the binding it matched.
func SetRouteAttributes(span trace.Span, service, route, requestID string) {
	span.SetAttributes(
		attribute.String(AttrService, service),
		attribute.String(AttrRoute, route),
		attribute.String(AttrRequestID, requestID),
	)
}

// SetUpstreamAttributes records where the request was forwarded.
func SetUpstreamAttributes(span trace.Span, upstream string) {
	span.SetAttributes(attribute.String(AttrUpstream, upstream))
}

// SetQueueAttributes records the queue a body was published to.
func SetQueueAttributes(span trace.Span, queue string) {
	span.SetAttributes(attribute.String(AttrQueue, queue))
}

// SetAuthAttributes records how the caller authenticated.
func SetAuthAttributes(span trace.Span, authType string) {
	span.SetAttributes(attribute.String(AttrAuthType, authType))
}

// SetRateLimitAttributes records the tokens left after the request.
func SetRateLimitAttributes(span trace.Span, remaining int) {
	span.SetAttributes(attribute.Int(AttrRateLimit, remaining))
}

// AddEvent adds an event to the span.
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
