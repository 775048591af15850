package logging

import (
	"context"
	"log/slog"
)

// Context keys for common log fields.
type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// ServiceKey is the context key for the service owning the route.
	ServiceKey contextKey = "service"

	// RouteKey is the context key for the matched route template.
	RouteKey contextKey = "route"

	// TraceIDKey is the context key for trace IDs.
	TraceIDKey contextKey = "trace_id"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithRoute adds the owning service and matched template to the context.
func WithRoute(ctx context.Context, service, route string) context.Context {
	ctx = context.WithValue(ctx, ServiceKey, service)
	return context.WithValue(ctx, RouteKey, route)
}

// GetService retrieves the service name from the context.
func GetService(ctx context.Context) string {
	if service, ok := ctx.Value(ServiceKey).(string); ok {
		return service
	}
	return ""
}

// GetRoute retrieves the route template from the context.
func GetRoute(ctx context.Context) string {
	if route, ok := ctx.Value(RouteKey).(string); ok {
		return route
	}
	return ""
}

// WithTraceID adds a trace ID to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// contextAttrs extracts the log fields stored in ctx.
func contextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if v := GetRequestID(ctx); v != "" {
		attrs = append(attrs, slog.String("request_id", v))
	}
	if v := GetService(ctx); v != "" {
		attrs = append(attrs, slog.String("service", v))
	}
	if v := GetRoute(ctx); v != "" {
		attrs = append(attrs, slog.String("route", v))
	}
	if v := GetTraceID(ctx); v != "" {
		attrs = append(attrs, slog.String("trace_id", v))
	}
	return attrs
}
