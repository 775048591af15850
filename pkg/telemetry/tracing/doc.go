// Package tracing provides OpenTelemetry tracing for the kate gateway.
//
// Every proxied request gets a server span, and each pipeline stage runs in
// a child span named after the stage. Upstream calls carry the current span
// as a W3C traceparent header, so traces continue through forwarded
// services:
//
//	traceparent: 00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01
//
// # Sampling
//
// The sampler is "always", "never" or "ratio" and is always parent based:
// an inbound sampled traceparent keeps the request sampled whatever the
// local strategy says.
//
// # Exporters
//
// Spans are exported over OTLP/gRPC. The "none" exporter still creates and
// samples spans, which keeps trace ids in logs and upstream headers without
// running a collector.
//
// # Usage
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, tracing.WithVersion(version))
//	if err != nil {
//		return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "GET /users/{id}")
//	defer span.End()
//	tracing.SetRouteAttributes(span, "users", "/users/{id}", requestID)
package tracing
