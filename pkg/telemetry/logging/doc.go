// Package logging configures structured logging on top of log/slog.
//
// # Overview
//
//   - JSON or text output with a configurable level
//   - Request fields (request_id, service, route, trace_id) taken from the
//     record's context, so handlers only need slog.InfoContext
//   - Redaction of credentials: bearer and basic tokens, signed tokens,
//     passwords and attributes whose key names a secret
//
// # Usage
//
//	logger, err := logging.Setup(logging.FromConfig(cfg.Telemetry.Logging))
//	if err != nil {
//	    return err
//	}
//
//	ctx = logging.WithRequestID(ctx, "req-123")
//	slog.InfoContext(ctx, "request forwarded", "upstream", "users:8080")
//	// {"level":"INFO","msg":"request forwarded","upstream":"users:8080","request_id":"req-123"}
//
// Packages log through a component logger:
//
//	logger := logging.Component("gateway")
package logging
