package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "KATE_"

// LoadConfig loads configuration from a YAML file at the specified path.
// The file is decoded over NewDefaultConfig, so omitted fields keep their
// defaults. The result is validated. Environment variables are not read;
// use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes a YAML document over the defaults without validating it.
func Parse(data []byte) (*Config, error) {
	cfg := NewDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention KATE_SECTION_FIELD (e.g., KATE_SERVER_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
// An empty path starts from the defaults.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = NewDefaultConfig()
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		cfg, err = Parse(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	envString("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	envDuration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("SERVER_IDLE_TIMEOUT", &cfg.Server.IdleTimeout)
	envDuration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	envInt("SERVER_MAX_HEADER_BYTES", &cfg.Server.MaxHeaderBytes)
	envBool("SERVER_CORS_ENABLED", &cfg.Server.CORS.Enabled)
	envList("SERVER_CORS_ALLOWED_ORIGINS", &cfg.Server.CORS.AllowedOrigins)

	// Upstream overrides
	envDuration("UPSTREAM_DIAL_TIMEOUT", &cfg.Upstream.DialTimeout)
	envDuration("UPSTREAM_REQUEST_TIMEOUT", &cfg.Upstream.RequestTimeout)
	envDuration("UPSTREAM_RESPONSE_HEADER_TIMEOUT", &cfg.Upstream.ResponseHeaderTimeout)
	envDuration("UPSTREAM_STREAM_IDLE_TIMEOUT", &cfg.Upstream.StreamIdleTimeout)

	// Gateway overrides
	envInt("GATEWAY_DEFAULT_RATE_LIMIT_LIMIT", &cfg.Gateway.DefaultRateLimit.Limit)
	envDuration("GATEWAY_DEFAULT_RATE_LIMIT_REFILL_PERIOD", &cfg.Gateway.DefaultRateLimit.RefillPeriod)

	// Services overrides
	envString("SERVICES_BACKEND", &cfg.Services.Backend)
	envString("SERVICES_FILE_PATH", &cfg.Services.FilePath)
	envString("SERVICES_SQLITE_PATH", &cfg.Services.SQLitePath)
	envBool("SERVICES_WATCH", &cfg.Services.Watch)

	// Request log overrides
	envBool("REQUEST_LOG_ENABLED", &cfg.RequestLog.Enabled)
	envString("REQUEST_LOG_BACKEND", &cfg.RequestLog.Backend)
	envString("REQUEST_LOG_SQLITE_PATH", &cfg.RequestLog.SQLite.Path)
	envString("REQUEST_LOG_POSTGRES_DSN", &cfg.RequestLog.Postgres.DSN)
	envInt("REQUEST_LOG_RETENTION_DAYS", &cfg.RequestLog.Retention.Days)
	envString("REQUEST_LOG_RETENTION_PRUNE_SCHEDULE", &cfg.RequestLog.Retention.PruneSchedule)

	// Cache overrides
	envString("CACHE_BACKEND", &cfg.Cache.Backend)
	envList("CACHE_REDIS_ADDRESSES", &cfg.Cache.Redis.Addresses)
	envString("CACHE_REDIS_PASSWORD", &cfg.Cache.Redis.Password)

	// Broker overrides
	envDuration("BROKER_CONNECT_TIMEOUT", &cfg.Broker.ConnectTimeout)
	envString("BROKER_STREAM_PREFIX", &cfg.Broker.StreamPrefix)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envString("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	envBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	if val := os.Getenv(EnvPrefix + "TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}

	// Security overrides
	envBool("SECURITY_TLS_ENABLED", &cfg.Security.TLS.Enabled)
	envString("SECURITY_TLS_CERT_FILE", &cfg.Security.TLS.CertFile)
	envString("SECURITY_TLS_KEY_FILE", &cfg.Security.TLS.KeyFile)
	envString("SECURITY_SECRETS_FILE_DIR", &cfg.Security.Secrets.FileDir)
	envList("SECURITY_ADMIN_API_KEYS", &cfg.Security.Admin.APIKeys)
}

func envString(name string, dst *string) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		*dst = val
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envInt(name string, dst *int) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

// envList reads a comma-separated list. Empty items are dropped.
func envList(name string, dst *[]string) {
	val := os.Getenv(EnvPrefix + name)
	if val == "" {
		return
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}
