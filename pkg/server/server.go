package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-chi/chi/v5"

	"mercator-hq/kate/pkg/admin"
	"mercator-hq/kate/pkg/config"
	"mercator-hq/kate/pkg/proxy/middleware"
	ktls "mercator-hq/kate/pkg/security/tls"
	"mercator-hq/kate/pkg/telemetry/health"
)

// Handlers are the components served on the listener. Gateway receives
// every request no other handler claims. Nil components are not mounted.
type Handlers struct {
	Gateway http.Handler
	Admin   *admin.Handler
	Metrics http.Handler
	Health  *health.Checker
	Version health.VersionInfo
}

// Server is the gateway HTTP server.
type Server struct {
	config       *config.ServerConfig
	telemetry    *config.TelemetryConfig
	tlsConfig    *config.TLSConfig
	handlers     Handlers
	httpServer   *http.Server
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
	addr         net.Addr
}

// New creates a server from the loaded configuration.
func New(cfg *config.Config, handlers Handlers) *Server {
	return &Server{
		config:       &cfg.Server,
		telemetry:    &cfg.Telemetry,
		tlsConfig:    &cfg.Security.TLS,
		handlers:     handlers,
		shutdownChan: make(chan struct{}),
	}
}

// Start serves until ctx is cancelled, a SIGINT or SIGTERM arrives, or
// Stop is called, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return errors.New("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddress,
		Handler:        s.Handler(),
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	tlsCtx, stopTLS := context.WithCancel(ctx)
	defer stopTLS()
	if s.tlsConfig.Enabled {
		reloader, err := ktls.NewReloader(s.tlsConfig.CertFile, s.tlsConfig.KeyFile, ktls.ReloadInterval(*s.tlsConfig))
		if err != nil {
			return fmt.Errorf("failed to configure TLS: %w", err)
		}
		tc, err := ktls.ServerConfig(*s.tlsConfig, reloader)
		if err != nil {
			return fmt.Errorf("failed to configure TLS: %w", err)
		}
		s.httpServer.TLSConfig = tc
		go reloader.Run(tlsCtx)
	}

	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.ListenAddress, err)
	}
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		slog.Info("gateway listening",
			"address", ln.Addr().String(),
			"tls_enabled", s.tlsConfig.Enabled,
		)
		var err error
		if s.tlsConfig.Enabled {
			err = s.httpServer.ServeTLS(ln, "", "")
		} else {
			err = s.httpServer.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		slog.Info("context cancelled, initiating shutdown")
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errChan:
		s.setRunning(false)
		return err
	case <-s.shutdownChan:
		slog.Info("shutdown requested")
	}
	return s.Shutdown(context.Background())
}

// Stop asks a running Start to shut down.
func (s *Server) Stop() {
	s.shutdownOnce.Do(func() { close(s.shutdownChan) })
}

// Shutdown drains in-flight requests for at most the configured shutdown
// timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.IsRunning() {
		return nil
	}
	slog.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	var err error
	if s.httpServer != nil {
		if serr := s.httpServer.Shutdown(ctx); serr != nil {
			slog.Error("error during server shutdown", "error", serr)
			err = fmt.Errorf("server shutdown error: %w", serr)
		}
	}
	s.setRunning(false)
	slog.Info("gateway stopped")
	return err
}

// Handler builds the middleware chain and mux:
//
//	Recovery → RequestID → Logging → CORS → {health, metrics, admin, gateway}
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recovery,
		middleware.RequestID,
		middleware.Logging,
		middleware.CORS(s.corsConfig()),
	)

	if s.handlers.Health != nil {
		s.handlers.Health.Mount(r, s.telemetry.Health, s.handlers.Version)
	}
	if s.handlers.Metrics != nil && s.telemetry.Metrics.Enabled {
		r.Method(http.MethodGet, s.telemetry.Metrics.Path, s.handlers.Metrics)
	}
	if s.handlers.Admin != nil {
		s.handlers.Admin.Mount(r)
	}
	if s.handlers.Gateway != nil {
		r.NotFound(s.handlers.Gateway.ServeHTTP)
		r.MethodNotAllowed(s.handlers.Gateway.ServeHTTP)
	}
	return r
}

// IsRunning reports whether Start is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Addr returns the bound listener address once Start is serving.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

func (s *Server) setRunning(v bool) {
	s.mu.Lock()
	s.isRunning = v
	s.mu.Unlock()
}

func (s *Server) corsConfig() *middleware.CORSConfig {
	c := s.config.CORS
	return &middleware.CORSConfig{
		Enabled:          c.Enabled,
		AllowedOrigins:   c.AllowedOrigins,
		AllowedMethods:   c.AllowedMethods,
		AllowedHeaders:   c.AllowedHeaders,
		ExposedHeaders:   c.ExposedHeaders,
		MaxAge:           c.MaxAge,
		AllowCredentials: c.AllowCredentials,
	}
}
