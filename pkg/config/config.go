package config

import "time"

// Config is the root configuration structure for the Kate gateway.
// It contains the listener, upstream transport, service definition source,
// request log, key cache, broker, telemetry and security sections.
type Config struct {
	// Server contains HTTP listener configuration including listen address,
	// timeouts, and CORS.
	Server ServerConfig `yaml:"server"`

	// Upstream contains the shared HTTP client settings used for forwarding,
	// aggregation and key verification.
	Upstream UpstreamConfig `yaml:"upstream"`

	// Gateway contains request pipeline settings.
	Gateway GatewayConfig `yaml:"gateway"`

	// Services selects where service definitions are loaded from.
	Services ServicesConfig `yaml:"services"`

	// RequestLog contains configuration for the request trace log and the
	// dashboard read-models built on it.
	RequestLog RequestLogConfig `yaml:"request_log"`

	// Cache selects the opaque-key cache backend.
	Cache CacheConfig `yaml:"cache"`

	// Broker contains message broker connection settings shared by all
	// services that publish.
	Broker BrokerConfig `yaml:"broker"`

	// Telemetry contains configuration for observability including logging,
	// metrics, and distributed tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Security contains TLS, secret resolution and admin API credentials.
	Security SecurityConfig `yaml:"security"`
}

// ServerConfig contains configuration for the HTTP listener.
type ServerConfig struct {
	// ListenAddress is the address and port for the gateway to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Default: "0.0.0.0:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. Streamed upstream responses must complete within it.
	// Default: 60s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown. In-flight requests still
	// running after it are cut off.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits request header size.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS settings applied in front of the gateway.
type CORSConfig struct {
	// Enabled turns CORS handling on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins lists origins allowed to call the gateway. "*" allows any.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods lists methods allowed in preflight responses.
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders lists request headers allowed in preflight responses.
	AllowedHeaders []string `yaml:"allowed_headers"`

	// ExposedHeaders lists response headers browsers may read.
	ExposedHeaders []string `yaml:"exposed_headers"`

	// MaxAge is the preflight cache duration in seconds.
	// Default: 3600
	MaxAge int `yaml:"max_age"`

	// AllowCredentials allows cookies and Authorization on cross-origin calls.
	AllowCredentials bool `yaml:"allow_credentials"`
}

// UpstreamConfig contains the shared upstream HTTP client settings.
type UpstreamConfig struct {
	// DialTimeout bounds connection establishment.
	// Default: 10s
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// RequestTimeout bounds an upstream request up to its response headers,
	// and a buffered response in full.
	// Default: 10s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// StreamIdleTimeout cuts off a streamed response after this long without data.
	// Default: 60s
	StreamIdleTimeout time.Duration `yaml:"stream_idle_timeout"`

	// ResponseHeaderTimeout bounds the wait for upstream response headers.
	// Default: 10s
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout"`

	// IdleConnTimeout closes pooled upstream connections after inactivity.
	// Default: 90s
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`

	// MaxIdleConnsPerHost sizes the per-upstream connection pool.
	// Default: 32
	MaxIdleConnsPerHost int `yaml:"max_idle_conns_per_host"`

	// MaxResponseBytes bounds buffered aggregate and verification responses.
	// Default: 10485760 (10MB)
	MaxResponseBytes int64 `yaml:"max_response_bytes"`
}

// GatewayConfig contains request pipeline settings.
type GatewayConfig struct {
	// MaxBodyBytes bounds request bodies buffered by the publish stage.
	// Default: 10485760 (10MB)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// DefaultRateLimit is applied to routes without a rate_limit_policy.
	DefaultRateLimit DefaultRateLimitConfig `yaml:"default_rate_limit"`
}

// DefaultRateLimitConfig is the rate limit of routes that declare none.
type DefaultRateLimitConfig struct {
	// Limit is the bucket capacity.
	// Default: 10
	Limit int `yaml:"limit"`

	// RefillPeriod is the bucket window. Zero refills on every request.
	// Default: 0
	RefillPeriod time.Duration `yaml:"refill_period"`
}

// ServicesConfig selects the service definition store.
type ServicesConfig struct {
	// Backend is "file" or "sqlite".
	// Default: "file"
	Backend string `yaml:"backend"`

	// FilePath is the JSON or YAML service list for the file backend.
	// Default: "services.json"
	FilePath string `yaml:"file_path"`

	// SQLitePath is the database path for the sqlite backend.
	// Default: "data/services.db"
	SQLitePath string `yaml:"sqlite_path"`

	// Watch reloads the gateway when the services file changes.
	// Only supported by the file backend.
	Watch bool `yaml:"watch"`

	// WatchDebounce coalesces bursts of file events.
	// Default: 500ms
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

// RequestLogConfig contains configuration for the request trace log.
type RequestLogConfig struct {
	// Enabled turns request tracing on.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Backend is "memory", "sqlite" or "postgres".
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite-specific configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Postgres contains PostgreSQL-specific configuration.
	Postgres PostgresConfig `yaml:"postgres"`

	// Recorder contains async recorder settings.
	Recorder RecorderConfig `yaml:"recorder"`

	// Retention contains pruning settings.
	Retention RetentionConfig `yaml:"retention"`
}

// SQLiteConfig contains configuration for the SQLite request log backend.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/requests.db"
	Path string `yaml:"path"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables Write-Ahead Logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long to wait on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// PostgresConfig contains configuration for the PostgreSQL request log backend.
type PostgresConfig struct {
	// DSN is a postgres:// connection string. Secret references are allowed.
	DSN string `yaml:"dsn"`

	// MaxConns bounds the connection pool.
	// Default: 10
	MaxConns int32 `yaml:"max_conns"`
}

// RecorderConfig contains async recorder settings.
type RecorderConfig struct {
	// AsyncBuffer is the recorder channel capacity.
	// Default: 1000
	AsyncBuffer int `yaml:"async_buffer"`

	// WriteTimeout bounds one storage write.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// MaxBodyLength truncates captured bodies.
	// Default: 2048
	MaxBodyLength int `yaml:"max_body_length"`

	// RedactHeaders are stored as a hash. Key policy headers are added
	// automatically.
	RedactHeaders []string `yaml:"redact_headers"`
}

// RetentionConfig contains request log pruning settings.
type RetentionConfig struct {
	// Days keeps records this many days. 0 keeps them forever.
	// Default: 30
	Days int `yaml:"days"`

	// PruneSchedule is a cron expression.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`

	// ArchiveBeforeDelete writes pruned records to ArchivePath first.
	ArchiveBeforeDelete bool `yaml:"archive_before_delete"`

	// ArchivePath is the archive directory.
	// Default: "data/archives/"
	ArchivePath string `yaml:"archive_path"`

	// MaxRecords caps the record count. 0 is unlimited.
	MaxRecords int64 `yaml:"max_records"`
}

// CacheConfig selects the opaque-key cache backend.
type CacheConfig struct {
	// Backend is "memory" or "redis".
	// Default: "memory"
	Backend string `yaml:"backend"`

	// Redis contains Redis connection settings.
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	// Addresses lists Redis endpoints. More than one selects cluster mode.
	// Default: ["127.0.0.1:6379"]
	Addresses []string `yaml:"addresses"`

	// Username and Password authenticate the connection. Password may be a
	// secret reference.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// DB selects the logical database in single-node mode.
	DB int `yaml:"db"`

	// Prefix namespaces cache keys.
	// Default: "kate:key:"
	Prefix string `yaml:"prefix"`
}

// BrokerConfig contains message broker connection settings.
type BrokerConfig struct {
	// ConnectTimeout bounds the initial connection attempt.
	// Default: 5s
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// ReconnectWait is the delay between reconnect attempts.
	// Default: 2s
	ReconnectWait time.Duration `yaml:"reconnect_wait"`

	// StreamPrefix prefixes JetStream stream names created for queues.
	// Default: "KATE"
	StreamPrefix string `yaml:"stream_prefix"`

	// ClientName identifies the gateway to the broker.
	// Default: "kate"
	ClientName string `yaml:"client_name"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains structured logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains OpenTelemetry tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Health contains health endpoint configuration.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig contains configuration for structured logging.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line in log records.
	AddSource bool `yaml:"add_source"`

	// RedactPatterns are applied to logged string values.
	RedactPatterns []RedactPattern `yaml:"redact_patterns"`
}

// RedactPattern is a named regular expression replaced in log output.
type RedactPattern struct {
	// Name identifies the pattern.
	Name string `yaml:"name"`

	// Pattern is a Go regular expression.
	Pattern string `yaml:"pattern"`

	// Replacement replaces each match.
	Replacement string `yaml:"replacement"`
}

// MetricsConfig contains configuration for Prometheus metrics.
type MetricsConfig struct {
	// Enabled turns metric collection on.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the scrape path.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace prefixes metric names.
	// Default: "kate"
	Namespace string `yaml:"namespace"`

	// Subsystem is inserted between namespace and name when set.
	Subsystem string `yaml:"subsystem"`

	// RequestDurationBuckets are histogram buckets in seconds.
	RequestDurationBuckets []float64 `yaml:"request_duration_buckets"`
}

// TracingConfig contains configuration for OpenTelemetry tracing.
type TracingConfig struct {
	// Enabled turns tracing on. When false a noop tracer is used.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler is "always", "never" or "ratio".
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is used by the ratio sampler.
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// Exporter is "otlp", or "none" to sample spans without exporting them.
	// Default: "otlp"
	Exporter string `yaml:"exporter"`

	// Endpoint is the OTLP gRPC collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is reported as service.name.
	// Default: "kate"
	ServiceName string `yaml:"service_name"`

	// OTLP contains exporter transport settings.
	OTLP OTLPConfig `yaml:"otlp"`
}

// OTLPConfig contains OTLP exporter settings.
type OTLPConfig struct {
	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure"`

	// Timeout bounds one export.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// HealthConfig contains health endpoint configuration.
type HealthConfig struct {
	// Enabled mounts the health endpoints.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// LivenessPath is the liveness probe path.
	// Default: "/health"
	LivenessPath string `yaml:"liveness_path"`

	// ReadinessPath is the readiness probe path.
	// Default: "/ready"
	ReadinessPath string `yaml:"readiness_path"`

	// VersionPath serves build information.
	// Default: "/version"
	VersionPath string `yaml:"version_path"`

	// CheckTimeout bounds each readiness check.
	// Default: 5s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}

// SecurityConfig contains security-related configuration.
type SecurityConfig struct {
	// TLS contains listener TLS settings.
	TLS TLSConfig `yaml:"tls"`

	// Secrets contains secret reference resolution settings.
	Secrets SecretsConfig `yaml:"secrets"`

	// Admin contains admin API credentials.
	Admin AdminConfig `yaml:"admin"`
}

// TLSConfig contains listener TLS settings.
type TLSConfig struct {
	// Enabled serves HTTPS.
	Enabled bool `yaml:"enabled"`

	// CertFile is the PEM certificate path.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the PEM private key path.
	KeyFile string `yaml:"key_file"`

	// MinVersion is "1.2" or "1.3".
	// Default: "1.3"
	MinVersion string `yaml:"min_version"`

	// CipherSuites restricts TLS 1.2 cipher suites.
	CipherSuites []string `yaml:"cipher_suites"`

	// ReloadInterval is how often certificate files are checked for changes.
	// Default: "5m"
	ReloadInterval string `yaml:"cert_reload_interval"`
}

// SecretsConfig contains secret reference resolution settings.
type SecretsConfig struct {
	// EnvPrefix is prepended to names resolved by ${env:NAME}.
	EnvPrefix string `yaml:"env_prefix"`

	// FileDir is the directory ${file:NAME} references are read from.
	// Default: "/run/secrets"
	FileDir string `yaml:"file_dir"`

	// WatchFiles invalidates cached file secrets when they change.
	WatchFiles bool `yaml:"watch_files"`

	// CacheTTL is how long resolved values are cached. 0 disables caching.
	// Default: 5m
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// CacheMaxSize bounds the number of cached values.
	// Default: 1000
	CacheMaxSize int `yaml:"cache_max_size"`
}

// AdminConfig contains admin API credentials.
type AdminConfig struct {
	// APIKeys are accepted as "Authorization: Bearer <key>" on /_ endpoints.
	// Secret references are allowed. With no keys the admin API refuses
	// every request.
	APIKeys []string `yaml:"api_keys"`
}
