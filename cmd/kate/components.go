package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"mercator-hq/kate/pkg/admin"
	"mercator-hq/kate/pkg/config"
	"mercator-hq/kate/pkg/gateway"
	"mercator-hq/kate/pkg/limits/ratelimit"
	"mercator-hq/kate/pkg/proxy"
	"mercator-hq/kate/pkg/queue"
	"mercator-hq/kate/pkg/requestlog"
	"mercator-hq/kate/pkg/requestlog/recorder"
	"mercator-hq/kate/pkg/requestlog/retention"
	"mercator-hq/kate/pkg/requestlog/storage"
	"mercator-hq/kate/pkg/security/auth"
	"mercator-hq/kate/pkg/security/secrets"
	"mercator-hq/kate/pkg/server"
	"mercator-hq/kate/pkg/service/store"
	"mercator-hq/kate/pkg/telemetry/health"
	"mercator-hq/kate/pkg/telemetry/metrics"
	"mercator-hq/kate/pkg/telemetry/tracing"
)

// serviceStore is a service store that can be probed for readiness.
type serviceStore interface {
	store.Store
	health.Pinger
}

// components is everything kate run builds from the configuration, in the
// order it must be torn down in reverse.
type components struct {
	metrics   *metrics.Collector
	tracer    *tracing.Tracer
	secrets   *secrets.Manager
	services  serviceStore
	dashboard *requestlog.Dashboard
	gateway   *gateway.Gateway
	health    *health.Checker
	adminKeys *auth.AdminKeys

	closers []func() error
}

// buildComponents wires the gateway and its collaborators. On error every
// component built so far is closed.
func buildComponents(ctx context.Context, cfg *config.Config) (_ *components, err error) {
	c := &components{health: health.New(cfg.Telemetry.Health.CheckTimeout)}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()
	logger := slog.Default()

	var (
		gwMetrics   gateway.Metrics
		upstreamObs proxy.Observer
		cacheObs    auth.CacheObserver
		publishObs  queue.Observer
	)
	if cfg.Telemetry.Metrics.Enabled {
		c.metrics = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
		gwMetrics, upstreamObs, cacheObs, publishObs = c.metrics, c.metrics, c.metrics, c.metrics
	}

	c.tracer, err = tracing.New(&cfg.Telemetry.Tracing, tracing.WithVersion(Version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	c.onClose(func() error { return c.tracer.Shutdown(context.Background()) })

	c.secrets, err = secrets.NewManagerFromConfig(cfg.Security.Secrets)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize secrets: %w", err)
	}
	c.onClose(c.secrets.Close)

	adminKeys := make([]string, 0, len(cfg.Security.Admin.APIKeys))
	for _, k := range cfg.Security.Admin.APIKeys {
		v, err := c.secrets.Resolve(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve admin key: %w", err)
		}
		adminKeys = append(adminKeys, v)
	}
	if len(adminKeys) == 0 {
		logger.Warn("no admin API keys configured, the admin API rejects every request")
	}
	c.adminKeys = auth.NewAdminKeys(adminKeys...)

	keyCache, err := c.openKeyCache(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}

	forwarderOpts := []proxy.Option{proxy.WithPropagator(c.tracer.Propagator())}
	if upstreamObs != nil {
		forwarderOpts = append(forwarderOpts, proxy.WithObserver(upstreamObs))
	}
	forwarder := proxy.NewForwarder(upstreamConfig(cfg.Upstream), forwarderOpts...)

	conns := queue.NewConnections(queue.NewJetStreamDialer(queue.Options{
		ConnectTimeout: cfg.Broker.ConnectTimeout,
		ReconnectWait:  cfg.Broker.ReconnectWait,
		StreamPrefix:   cfg.Broker.StreamPrefix,
		ClientName:     cfg.Broker.ClientName,
	}))

	var (
		rec  gateway.Recorder
		logs requestlog.Storage
	)
	if cfg.RequestLog.Enabled {
		logs, err = c.openRequestLog(ctx, cfg.RequestLog)
		if err != nil {
			return nil, err
		}
		r := recorder.NewRecorder(logs, &recorder.Config{
			Enabled:       true,
			AsyncBuffer:   cfg.RequestLog.Recorder.AsyncBuffer,
			WriteTimeout:  cfg.RequestLog.Recorder.WriteTimeout,
			MaxBodyLength: cfg.RequestLog.Recorder.MaxBodyLength,
			RedactHeaders: cfg.RequestLog.Recorder.RedactHeaders,
		})
		c.onClose(r.Close)
		rec = r

		if err := c.startRetention(ctx, logs, cfg.RequestLog.Retention); err != nil {
			return nil, err
		}
	}

	c.gateway = gateway.New(gateway.Options{
		Forwarder:       forwarder,
		Keys:            auth.NewKeyAuthenticator(keyCache, forwarder, cacheObs),
		Limiter:         ratelimit.NewRegistry(),
		Connections:     conns,
		PublishObserver: publishObs,
		Metrics:         gwMetrics,
		Tracer:          c.tracer.Tracer(),
		Recorder:        rec,
		Secrets:         c.secrets,
		DefaultRateLimit: ratelimit.Policy{
			Limit:        cfg.Gateway.DefaultRateLimit.Limit,
			RefillPeriod: cfg.Gateway.DefaultRateLimit.RefillPeriod,
			Strategy:     ratelimit.StrategyIP,
		},
		MaxBodyBytes: cfg.Gateway.MaxBodyBytes,
		Logger:       logger,
	})
	c.onClose(c.gateway.Close)

	if logs != nil {
		c.dashboard = requestlog.NewDashboard(logs, c.gateway.Table().Len)
		c.health.Register("request_log", health.PingCheck(logs))
	}

	if err := c.loadServices(ctx, cfg.Services); err != nil {
		return nil, err
	}
	return c, nil
}

// handlers returns what the server mounts.
func (c *components) handlers() server.Handlers {
	h := server.Handlers{
		Gateway: c.gateway,
		Admin:   admin.NewHandler(c.gateway, c.services, c.dashboard, c.adminKeys),
		Health:  c.health,
		Version: versionInfo(),
	}
	if c.metrics != nil {
		h.Metrics = c.metrics.Handler()
	}
	return h
}

// Close tears components down in reverse construction order.
func (c *components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *components) onClose(fn func() error) {
	c.closers = append(c.closers, fn)
}

func (c *components) openKeyCache(ctx context.Context, cfg config.CacheConfig) (auth.KeyCache, error) {
	if cfg.Backend != "redis" {
		return auth.NewMemoryKeyCache(), nil
	}

	password, err := c.secrets.Resolve(ctx, cfg.Redis.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve redis password: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Redis.Addresses,
		Username: cfg.Redis.Username,
		Password: password,
		DB:       cfg.Redis.DB,
	})
	c.onClose(client.Close)

	cache := auth.NewRedisKeyCache(client, cfg.Redis.Prefix)
	c.health.Register("key_cache", health.PingCheck(cache))
	slog.Info("key cache", "backend", "redis", "addresses", cfg.Redis.Addresses)
	return cache, nil
}

func (c *components) openRequestLog(ctx context.Context, cfg config.RequestLogConfig) (requestlog.Storage, error) {
	var (
		logs requestlog.Storage
		err  error
	)
	switch cfg.Backend {
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create request log directory: %w", err)
			}
		}
		logs, err = storage.NewSQLiteStorage(&storage.SQLiteConfig{
			Path:         cfg.SQLite.Path,
			MaxOpenConns: cfg.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.SQLite.MaxIdleConns,
			WALMode:      cfg.SQLite.WALMode,
			BusyTimeout:  cfg.SQLite.BusyTimeout,
		})
	case "postgres":
		dsn, rerr := c.secrets.Resolve(ctx, cfg.Postgres.DSN)
		if rerr != nil {
			return nil, fmt.Errorf("failed to resolve postgres DSN: %w", rerr)
		}
		logs, err = storage.NewPostgresStorage(ctx, &storage.PostgresConfig{
			DSN:      dsn,
			MaxConns: cfg.Postgres.MaxConns,
		})
	case "memory":
		logs = storage.NewMemoryStorage()
	default:
		return nil, fmt.Errorf("unsupported request log backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s request log: %w", cfg.Backend, err)
	}
	c.onClose(logs.Close)
	slog.Info("request log enabled", "backend", cfg.Backend)
	return logs, nil
}

func (c *components) startRetention(ctx context.Context, logs requestlog.Storage, cfg config.RetentionConfig) error {
	if cfg.PruneSchedule == "" || (cfg.Days <= 0 && cfg.MaxRecords <= 0) {
		return nil
	}
	pruner := retention.NewPruner(logs, &retention.Config{
		RetentionDays:       cfg.Days,
		PruneSchedule:       cfg.PruneSchedule,
		ArchiveBeforeDelete: cfg.ArchiveBeforeDelete,
		ArchivePath:         cfg.ArchivePath,
		MaxRecords:          cfg.MaxRecords,
	})
	if err := pruner.Start(ctx); err != nil {
		return fmt.Errorf("failed to start retention scheduler: %w", err)
	}
	c.onClose(func() error {
		pruner.Stop()
		return nil
	})
	if next := pruner.NextPruning(); next != nil {
		slog.Debug("retention scheduler started", "next_pruning", next)
	}
	return nil
}

// loadServices opens the service store, registers the stored services and,
// for a watched file, keeps the gateway in sync with it.
func (c *components) loadServices(ctx context.Context, cfg config.ServicesConfig) error {
	switch cfg.Backend {
	case "sqlite":
		s, err := store.NewSQLiteStore(store.SQLiteConfig{Path: cfg.SQLitePath})
		if err != nil {
			return fmt.Errorf("failed to open service store: %w", err)
		}
		c.services = s
		c.onClose(s.Close)
	default:
		s, err := store.NewFileStore(cfg.FilePath)
		if err != nil {
			return fmt.Errorf("failed to open service store: %w", err)
		}
		c.services = s
		c.onClose(s.Close)
		if cfg.Watch {
			if err := c.watch(ctx, s, cfg); err != nil {
				return err
			}
		}
	}
	c.health.Register("services", health.PingCheck(c.services))

	services, err := c.services.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load services: %w", err)
	}
	if err := c.gateway.Replace(ctx, services); err != nil {
		return fmt.Errorf("failed to register services: %w", err)
	}
	slog.Info("services registered",
		"backend", cfg.Backend,
		"services", len(services),
		"routes", c.gateway.Table().Len(),
	)
	return nil
}

func (c *components) watch(ctx context.Context, s *store.FileStore, cfg config.ServicesConfig) error {
	w, err := store.NewWatcher(s, cfg.WatchDebounce, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to watch services file: %w", err)
	}
	go func() {
		if err := w.Watch(ctx, c.gateway.Replace); err != nil {
			slog.Error("services watcher stopped", "error", err)
		}
	}()
	c.onClose(w.Stop)
	return nil
}

func upstreamConfig(cfg config.UpstreamConfig) proxy.Config {
	return proxy.Config{
		DialTimeout:           cfg.DialTimeout,
		RequestTimeout:        cfg.RequestTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		StreamIdleTimeout:     cfg.StreamIdleTimeout,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		MaxResponseBytes:      cfg.MaxResponseBytes,
	}
}
