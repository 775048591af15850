// Package telemetry groups the gateway's observability.
//
// # Components
//
//   - logging: slog setup with level, format and redaction patterns
//   - metrics: Prometheus collector for requests, upstreams, auth and publishing
//   - tracing: OpenTelemetry tracer with an OTLP gRPC exporter
//   - health: liveness, readiness and version endpoints
//
// # Usage
//
//	cfg := config.GetConfig()
//	logger, err := logging.Setup(logging.FromConfig(cfg.Telemetry.Logging))
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.RecordRequest("/users/{id}", "GET", 200, time.Since(start))
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, tracing.WithVersion(version))
//	defer tracer.Shutdown(ctx)
//
// Log attribute values matching a redaction pattern are masked before they
// are written.
package telemetry
