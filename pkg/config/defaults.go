package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "0.0.0.0:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB

	// CORS defaults
	DefaultCORSMaxAge = 3600 // 1 hour

	// Upstream defaults
	DefaultUpstreamDialTimeout           = 10 * time.Second
	DefaultUpstreamRequestTimeout        = 10 * time.Second
	DefaultUpstreamResponseHeaderTimeout = 10 * time.Second
	DefaultUpstreamStreamIdleTimeout     = 60 * time.Second
	DefaultUpstreamIdleConnTimeout       = 90 * time.Second
	DefaultUpstreamMaxIdleConnsPerHost   = 32
	DefaultUpstreamMaxResponseBytes      = int64(10 << 20)

	// Gateway defaults
	DefaultMaxBodyBytes     = int64(10 << 20)
	DefaultRateLimit        = 10
	DefaultRateLimitRefill  = time.Duration(0)
	DefaultServicesBackend  = "file"
	DefaultServicesFilePath = "services.json"
	DefaultServicesSQLite   = "data/services.db"
	DefaultWatchDebounce    = 500 * time.Millisecond

	// Request log defaults
	DefaultRequestLogEnabled       = true
	DefaultRequestLogBackend       = "sqlite"
	DefaultRequestLogSQLitePath    = "data/requests.db"
	DefaultRequestLogSQLiteMaxOpen = 10
	DefaultRequestLogSQLiteMaxIdle = 5
	DefaultRequestLogSQLiteBusy    = 5 * time.Second
	DefaultPostgresMaxConns        = int32(10)
	DefaultRecorderAsyncBuffer     = 1000
	DefaultRecorderWriteTimeout    = 5 * time.Second
	DefaultRecorderMaxBodyLength   = 2048
	DefaultRetentionDays           = 30
	DefaultRetentionSchedule       = "0 3 * * *"
	DefaultRetentionArchivePath    = "data/archives/"

	// Cache defaults
	DefaultCacheBackend = "memory"
	DefaultRedisAddress = "127.0.0.1:6379"
	DefaultRedisPrefix  = "kate:key:"

	// Broker defaults
	DefaultBrokerConnectTimeout = 5 * time.Second
	DefaultBrokerReconnectWait  = 2 * time.Second
	DefaultBrokerStreamPrefix   = "KATE"
	DefaultBrokerClientName     = "kate"

	// Telemetry defaults
	DefaultLoggingLevel        = "info"
	DefaultLoggingFormat       = "json"
	DefaultMetricsEnabled      = true
	DefaultPrometheusPath      = "/metrics"
	DefaultMetricsNamespace    = "kate"
	DefaultTracingSampler      = "ratio"
	DefaultTracingSamplingRate = 1.0
	DefaultTracingExporter     = "otlp"
	DefaultTracingEndpoint     = "localhost:4317"
	DefaultTracingServiceName  = "kate"
	DefaultOTLPTimeout         = 10 * time.Second
	DefaultHealthEnabled       = true
	DefaultLivenessPath        = "/health"
	DefaultReadinessPath       = "/ready"
	DefaultVersionPath         = "/version"
	DefaultHealthCheckTimeout  = 5 * time.Second

	// Security defaults
	DefaultTLSMinVersion      = "1.3"
	DefaultTLSReloadInterval  = "5m"
	DefaultSecretsFileDir     = "/run/secrets"
	DefaultSecretsCacheTTL    = 5 * time.Minute
	DefaultSecretsCacheMaxLen = 1000
)

// Backend names accepted by services.backend, request_log.backend and
// cache.backend.
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
//
// Booleans whose default is true (request_log.enabled, metrics.enabled,
// health.enabled, sqlite.wal_mode) are only defaulted by NewDefaultConfig,
// since a zero value cannot be told apart from an explicit false.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Server.CORS.MaxAge == 0 {
		cfg.Server.CORS.MaxAge = DefaultCORSMaxAge
	}
	if len(cfg.Server.CORS.AllowedMethods) == 0 {
		cfg.Server.CORS.AllowedMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	}
	if len(cfg.Server.CORS.AllowedHeaders) == 0 {
		cfg.Server.CORS.AllowedHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
	}

	// Upstream defaults
	if cfg.Upstream.DialTimeout == 0 {
		cfg.Upstream.DialTimeout = DefaultUpstreamDialTimeout
	}
	if cfg.Upstream.RequestTimeout == 0 {
		cfg.Upstream.RequestTimeout = DefaultUpstreamRequestTimeout
	}
	if cfg.Upstream.StreamIdleTimeout == 0 {
		cfg.Upstream.StreamIdleTimeout = DefaultUpstreamStreamIdleTimeout
	}
	if cfg.Upstream.ResponseHeaderTimeout == 0 {
		cfg.Upstream.ResponseHeaderTimeout = DefaultUpstreamResponseHeaderTimeout
	}
	if cfg.Upstream.IdleConnTimeout == 0 {
		cfg.Upstream.IdleConnTimeout = DefaultUpstreamIdleConnTimeout
	}
	if cfg.Upstream.MaxIdleConnsPerHost == 0 {
		cfg.Upstream.MaxIdleConnsPerHost = DefaultUpstreamMaxIdleConnsPerHost
	}
	if cfg.Upstream.MaxResponseBytes == 0 {
		cfg.Upstream.MaxResponseBytes = DefaultUpstreamMaxResponseBytes
	}

	// Gateway defaults
	if cfg.Gateway.MaxBodyBytes == 0 {
		cfg.Gateway.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Gateway.DefaultRateLimit.Limit == 0 {
		cfg.Gateway.DefaultRateLimit.Limit = DefaultRateLimit
	}

	// Services defaults
	if cfg.Services.Backend == "" {
		cfg.Services.Backend = DefaultServicesBackend
	}
	if cfg.Services.FilePath == "" {
		cfg.Services.FilePath = DefaultServicesFilePath
	}
	if cfg.Services.SQLitePath == "" {
		cfg.Services.SQLitePath = DefaultServicesSQLite
	}
	if cfg.Services.WatchDebounce == 0 {
		cfg.Services.WatchDebounce = DefaultWatchDebounce
	}

	// Request log defaults
	rl := &cfg.RequestLog
	if rl.Backend == "" {
		rl.Backend = DefaultRequestLogBackend
	}
	if rl.SQLite.Path == "" {
		rl.SQLite.Path = DefaultRequestLogSQLitePath
	}
	if rl.SQLite.MaxOpenConns == 0 {
		rl.SQLite.MaxOpenConns = DefaultRequestLogSQLiteMaxOpen
	}
	if rl.SQLite.MaxIdleConns == 0 {
		rl.SQLite.MaxIdleConns = DefaultRequestLogSQLiteMaxIdle
	}
	if rl.SQLite.BusyTimeout == 0 {
		rl.SQLite.BusyTimeout = DefaultRequestLogSQLiteBusy
	}
	if rl.Postgres.MaxConns == 0 {
		rl.Postgres.MaxConns = DefaultPostgresMaxConns
	}
	if rl.Recorder.AsyncBuffer == 0 {
		rl.Recorder.AsyncBuffer = DefaultRecorderAsyncBuffer
	}
	if rl.Recorder.WriteTimeout == 0 {
		rl.Recorder.WriteTimeout = DefaultRecorderWriteTimeout
	}
	if rl.Recorder.MaxBodyLength == 0 {
		rl.Recorder.MaxBodyLength = DefaultRecorderMaxBodyLength
	}
	if rl.Retention.PruneSchedule == "" {
		rl.Retention.PruneSchedule = DefaultRetentionSchedule
	}
	if rl.Retention.ArchivePath == "" {
		rl.Retention.ArchivePath = DefaultRetentionArchivePath
	}

	// Cache defaults
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = DefaultCacheBackend
	}
	if len(cfg.Cache.Redis.Addresses) == 0 {
		cfg.Cache.Redis.Addresses = []string{DefaultRedisAddress}
	}
	if cfg.Cache.Redis.Prefix == "" {
		cfg.Cache.Redis.Prefix = DefaultRedisPrefix
	}

	// Broker defaults
	if cfg.Broker.ConnectTimeout == 0 {
		cfg.Broker.ConnectTimeout = DefaultBrokerConnectTimeout
	}
	if cfg.Broker.ReconnectWait == 0 {
		cfg.Broker.ReconnectWait = DefaultBrokerReconnectWait
	}
	if cfg.Broker.StreamPrefix == "" {
		cfg.Broker.StreamPrefix = DefaultBrokerStreamPrefix
	}
	if cfg.Broker.ClientName == "" {
		cfg.Broker.ClientName = DefaultBrokerClientName
	}

	// Telemetry defaults
	t := &cfg.Telemetry
	if t.Logging.Level == "" {
		t.Logging.Level = DefaultLoggingLevel
	}
	if t.Logging.Format == "" {
		t.Logging.Format = DefaultLoggingFormat
	}
	if t.Metrics.Path == "" {
		t.Metrics.Path = DefaultPrometheusPath
	}
	if t.Metrics.Namespace == "" {
		t.Metrics.Namespace = DefaultMetricsNamespace
	}
	if t.Tracing.Sampler == "" {
		t.Tracing.Sampler = DefaultTracingSampler
	}
	if t.Tracing.SampleRatio == 0 {
		t.Tracing.SampleRatio = DefaultTracingSamplingRate
	}
	if t.Tracing.Exporter == "" {
		t.Tracing.Exporter = DefaultTracingExporter
	}
	if t.Tracing.Endpoint == "" {
		t.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if t.Tracing.ServiceName == "" {
		t.Tracing.ServiceName = DefaultTracingServiceName
	}
	if t.Tracing.OTLP.Timeout == 0 {
		t.Tracing.OTLP.Timeout = DefaultOTLPTimeout
	}
	if t.Health.LivenessPath == "" {
		t.Health.LivenessPath = DefaultLivenessPath
	}
	if t.Health.ReadinessPath == "" {
		t.Health.ReadinessPath = DefaultReadinessPath
	}
	if t.Health.VersionPath == "" {
		t.Health.VersionPath = DefaultVersionPath
	}
	if t.Health.CheckTimeout == 0 {
		t.Health.CheckTimeout = DefaultHealthCheckTimeout
	}

	// Security defaults
	if cfg.Security.TLS.MinVersion == "" {
		cfg.Security.TLS.MinVersion = DefaultTLSMinVersion
	}
	if cfg.Security.TLS.ReloadInterval == "" {
		cfg.Security.TLS.ReloadInterval = DefaultTLSReloadInterval
	}
	if cfg.Security.Secrets.FileDir == "" {
		cfg.Security.Secrets.FileDir = DefaultSecretsFileDir
	}
	if cfg.Security.Secrets.CacheMaxSize == 0 {
		cfg.Security.Secrets.CacheMaxSize = DefaultSecretsCacheMaxLen
	}
}

// NewDefaultConfig returns a configuration with every default applied,
// including the boolean defaults ApplyDefaults cannot infer. LoadConfig
// decodes the file on top of it.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	cfg.RequestLog.Enabled = DefaultRequestLogEnabled
	cfg.RequestLog.SQLite.WALMode = true
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	cfg.Telemetry.Health.Enabled = DefaultHealthEnabled
	cfg.Security.Secrets.CacheTTL = DefaultSecretsCacheTTL
	cfg.Gateway.DefaultRateLimit.RefillPeriod = DefaultRateLimitRefill
	cfg.RequestLog.Retention.Days = DefaultRetentionDays
	ApplyDefaults(cfg)
	return cfg
}
