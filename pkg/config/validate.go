package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateUpstream(&cfg.Upstream)...)
	errs = append(errs, validateGateway(&cfg.Gateway)...)
	errs = append(errs, validateServices(&cfg.Services)...)
	errs = append(errs, validateRequestLog(&cfg.RequestLog)...)
	errs = append(errs, validateCache(&cfg.Cache)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)
	errs = append(errs, validateSecurity(&cfg.Security)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid address %q: must be host:port", cfg.ListenAddress),
		})
	}

	errs = append(errs, nonNegative("server.read_timeout", cfg.ReadTimeout)...)
	errs = append(errs, nonNegative("server.write_timeout", cfg.WriteTimeout)...)
	errs = append(errs, nonNegative("server.idle_timeout", cfg.IdleTimeout)...)
	errs = append(errs, nonNegative("server.shutdown_timeout", cfg.ShutdownTimeout)...)

	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes must be non-negative",
		})
	}
	if cfg.MaxHeaderBytes > 10*1024*1024 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes exceeds reasonable limit (10MB)",
		})
	}

	if cfg.CORS.Enabled && len(cfg.CORS.AllowedOrigins) == 0 {
		errs = append(errs, FieldError{
			Field:   "server.cors.allowed_origins",
			Message: "at least one origin is required when CORS is enabled",
		})
	}

	return errs
}

func validateUpstream(cfg *UpstreamConfig) []FieldError {
	var errs []FieldError

	if cfg.RequestTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "upstream.request_timeout",
			Message: "request timeout must be positive",
		})
	}
	errs = append(errs, nonNegative("upstream.dial_timeout", cfg.DialTimeout)...)
	errs = append(errs, nonNegative("upstream.response_header_timeout", cfg.ResponseHeaderTimeout)...)
	errs = append(errs, nonNegative("upstream.stream_idle_timeout", cfg.StreamIdleTimeout)...)
	if cfg.MaxIdleConnsPerHost < 0 {
		errs = append(errs, FieldError{
			Field:   "upstream.max_idle_conns_per_host",
			Message: "must be non-negative",
		})
	}
	if cfg.MaxResponseBytes <= 0 {
		errs = append(errs, FieldError{
			Field:   "upstream.max_response_bytes",
			Message: "must be positive",
		})
	}

	return errs
}

func validateGateway(cfg *GatewayConfig) []FieldError {
	var errs []FieldError

	if cfg.MaxBodyBytes <= 0 {
		errs = append(errs, FieldError{
			Field:   "gateway.max_body_bytes",
			Message: "must be positive",
		})
	}
	if cfg.DefaultRateLimit.Limit < 1 {
		errs = append(errs, FieldError{
			Field:   "gateway.default_rate_limit.limit",
			Message: "limit must be at least 1",
		})
	}
	errs = append(errs, nonNegative("gateway.default_rate_limit.refill_period", cfg.DefaultRateLimit.RefillPeriod)...)

	return errs
}

func validateServices(cfg *ServicesConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case BackendFile:
		if cfg.FilePath == "" {
			errs = append(errs, FieldError{
				Field:   "services.file_path",
				Message: "file path is required for the file backend",
			})
		}
	case BackendSQLite:
		if cfg.SQLitePath == "" {
			errs = append(errs, FieldError{
				Field:   "services.sqlite_path",
				Message: "sqlite path is required for the sqlite backend",
			})
		}
		if cfg.Watch {
			errs = append(errs, FieldError{
				Field:   "services.watch",
				Message: "watch is only supported by the file backend",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "services.backend",
			Message: fmt.Sprintf("invalid backend %q: must be one of file, sqlite", cfg.Backend),
		})
	}

	return errs
}

func validateRequestLog(cfg *RequestLogConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return nil
	}

	switch cfg.Backend {
	case BackendMemory:
	case BackendSQLite:
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "request_log.sqlite.path",
				Message: "sqlite path is required",
			})
		}
	case BackendPostgres:
		if cfg.Postgres.DSN == "" {
			errs = append(errs, FieldError{
				Field:   "request_log.postgres.dsn",
				Message: "dsn is required for the postgres backend",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "request_log.backend",
			Message: fmt.Sprintf("invalid backend %q: must be one of memory, sqlite, postgres", cfg.Backend),
		})
	}

	if cfg.Recorder.AsyncBuffer < 0 {
		errs = append(errs, FieldError{
			Field:   "request_log.recorder.async_buffer",
			Message: "must be non-negative",
		})
	}
	if cfg.Retention.Days < 0 {
		errs = append(errs, FieldError{
			Field:   "request_log.retention.days",
			Message: "must be non-negative",
		})
	}
	if cfg.Retention.MaxRecords < 0 {
		errs = append(errs, FieldError{
			Field:   "request_log.retention.max_records",
			Message: "must be non-negative",
		})
	}
	if cfg.Retention.PruneSchedule != "" {
		if _, err := cron.ParseStandard(cfg.Retention.PruneSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "request_log.retention.prune_schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	return errs
}

func validateCache(cfg *CacheConfig) []FieldError {
	switch cfg.Backend {
	case BackendMemory:
		return nil
	case BackendRedis:
		if len(cfg.Redis.Addresses) == 0 {
			return []FieldError{{
				Field:   "cache.redis.addresses",
				Message: "at least one address is required for the redis backend",
			}}
		}
		return nil
	}
	return []FieldError{{
		Field:   "cache.backend",
		Message: fmt.Sprintf("invalid backend %q: must be one of memory, redis", cfg.Backend),
	}}
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q: must be one of debug, info, warn, error", cfg.Logging.Level),
		})
	}

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q: must be json or text", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with /",
		})
	}

	if cfg.Tracing.Enabled {
		switch cfg.Tracing.Sampler {
		case "always", "never", "ratio":
		default:
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sampler",
				Message: fmt.Sprintf("invalid sampler %q: must be one of always, never, ratio", cfg.Tracing.Sampler),
			})
		}
		if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sample_ratio",
				Message: "sample ratio must be between 0.0 and 1.0",
			})
		}
		switch cfg.Tracing.Exporter {
		case "otlp", "none":
		default:
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.exporter",
				Message: fmt.Sprintf("invalid exporter %q: must be otlp or none", cfg.Tracing.Exporter),
			})
		}
		if cfg.Tracing.Exporter == "otlp" && cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.endpoint",
				Message: "endpoint is required for the otlp exporter",
			})
		}
	}

	return errs
}

func validateSecurity(cfg *SecurityConfig) []FieldError {
	var errs []FieldError

	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" {
			errs = append(errs, FieldError{
				Field:   "security.tls.cert_file",
				Message: "certificate file is required when TLS is enabled",
			})
		}
		if cfg.TLS.KeyFile == "" {
			errs = append(errs, FieldError{
				Field:   "security.tls.key_file",
				Message: "key file is required when TLS is enabled",
			})
		}
		if cfg.TLS.MinVersion != "1.2" && cfg.TLS.MinVersion != "1.3" {
			errs = append(errs, FieldError{
				Field:   "security.tls.min_version",
				Message: fmt.Sprintf("invalid TLS version %q: must be 1.2 or 1.3", cfg.TLS.MinVersion),
			})
		}
		if _, err := time.ParseDuration(cfg.TLS.ReloadInterval); err != nil {
			errs = append(errs, FieldError{
				Field:   "security.tls.cert_reload_interval",
				Message: fmt.Sprintf("invalid duration %q", cfg.TLS.ReloadInterval),
			})
		}
	}

	errs = append(errs, nonNegative("security.secrets.cache_ttl", cfg.Secrets.CacheTTL)...)

	for i, key := range cfg.Admin.APIKeys {
		if strings.TrimSpace(key) == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("security.admin.api_keys[%d]", i),
				Message: "admin API key cannot be empty",
			})
		}
	}

	return errs
}

func nonNegative(field string, d time.Duration) []FieldError {
	if d < 0 {
		return []FieldError{{Field: field, Message: "duration must be non-negative"}}
	}
	return nil
}
