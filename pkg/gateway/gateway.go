package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"mercator-hq/kate/pkg/limits/ratelimit"
	"mercator-hq/kate/pkg/proxy"
	"mercator-hq/kate/pkg/queue"
	"mercator-hq/kate/pkg/requestlog"
	"mercator-hq/kate/pkg/routing"
	"mercator-hq/kate/pkg/security/auth"
	"mercator-hq/kate/pkg/service"
)

// Metrics receives per-request measurements.
type Metrics interface {
	RecordRequest(route, method string, status int, duration time.Duration)
	RecordRateLimited(route string)
	RecordAuthFailure(route, kind string)
	SetRoutesRegistered(n int)
}

// Recorder receives finished request log records.
type Recorder interface {
	Record(ctx context.Context, record *requestlog.Record) error
	Headers(h http.Header) map[string]string
	Body(b []byte) string
	RedactHeader(name string)
}

// SecretResolver expands ${scheme:name} references.
type SecretResolver interface {
	Resolve(ctx context.Context, s string) (string, error)
}

// Options wires the collaborators of a Gateway. Nil fields get working
// defaults, except Recorder and Secrets which are optional.
type Options struct {
	Forwarder   *proxy.Forwarder
	Keys        *auth.KeyAuthenticator
	Limiter     *ratelimit.Registry
	Connections *queue.Connections

	// PublishObserver is handed to every per-service publisher.
	PublishObserver queue.Observer

	Metrics  Metrics
	Tracer   trace.Tracer
	Recorder Recorder
	Secrets  SecretResolver

	// DefaultRateLimit applies to routes that declare no rate limit policy.
	DefaultRateLimit ratelimit.Policy

	// MaxBodyBytes bounds bodies buffered by the publish stage.
	MaxBodyBytes int64

	Logger *slog.Logger
}

// Gateway owns the routing table and every piece of state the request
// pipelines share: rate limit buckets, the key cache, upstream transport,
// broker connections and per-service publishers.
type Gateway struct {
	table       *routing.Table
	forwarder   *proxy.Forwarder
	aggregator  *proxy.Aggregator
	keys        *auth.KeyAuthenticator
	limiter     *ratelimit.Registry
	conns       *queue.Connections
	pubObserver queue.Observer
	metrics     Metrics
	tracer      trace.Tracer
	recorder    Recorder
	secrets     SecretResolver
	defaultRL   ratelimit.Policy
	maxBody     int64
	logger      *slog.Logger

	// mu serializes registration changes. Dispatch never takes it.
	mu         sync.Mutex
	services   map[string]service.Service
	publishers map[string]*queue.Publisher
}

// New creates a gateway with an empty routing table.
func New(opts Options) *Gateway {
	if opts.Forwarder == nil {
		opts.Forwarder = proxy.NewForwarder(proxy.DefaultConfig())
	}
	if opts.Keys == nil {
		opts.Keys = auth.NewKeyAuthenticator(auth.NewMemoryKeyCache(), opts.Forwarder, nil)
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.NewRegistry()
	}
	if opts.Connections == nil {
		opts.Connections = queue.NewConnections(queue.NewJetStreamDialer(queue.Options{}))
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("kate/gateway")
	}
	if opts.DefaultRateLimit.Limit <= 0 {
		opts.DefaultRateLimit = ratelimit.DefaultPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Gateway{
		table:       routing.NewTable(),
		forwarder:   opts.Forwarder,
		aggregator:  proxy.NewAggregator(opts.Forwarder),
		keys:        opts.Keys,
		limiter:     opts.Limiter,
		conns:       opts.Connections,
		pubObserver: opts.PublishObserver,
		metrics:     opts.Metrics,
		tracer:      opts.Tracer,
		recorder:    opts.Recorder,
		secrets:     opts.Secrets,
		defaultRL:   opts.DefaultRateLimit,
		maxBody:     opts.MaxBodyBytes,
		logger:      opts.Logger.With("component", "gateway"),
		services:    make(map[string]service.Service),
		publishers:  make(map[string]*queue.Publisher),
	}
}

// Table returns the routing table.
func (g *Gateway) Table() *routing.Table {
	return g.table
}

// Keys returns the opaque-key authenticator, for cache invalidation.
func (g *Gateway) Keys() *auth.KeyAuthenticator {
	return g.keys
}

// Register validates svc and binds a pipeline for every route method and
// aggregate. Pairs that are already bound are skipped, so registering the
// same service twice changes nothing. An invalid service binds nothing and
// fails with a *service.ConfigurationError.
func (g *Gateway) Register(ctx context.Context, svc service.Service) (routing.RegisterReport, error) {
	if err := service.Validate(&svc); err != nil {
		return routing.RegisterReport{}, err
	}
	resolved, err := g.resolveSecrets(ctx, svc)
	if err != nil {
		return routing.RegisterReport{}, fmt.Errorf("service %s: %w", svc.Name, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.registerLocked(resolved, svc), nil
}

func (g *Gateway) registerLocked(resolved, declared service.Service) routing.RegisterReport {
	pub := g.publisherLocked(resolved)
	bindings := g.build(resolved, pub)
	report := g.table.Register(bindings...)

	g.services[declared.Name] = declared
	g.metrics.SetRoutesRegistered(g.table.Len())

	for _, c := range report.Conflicts {
		g.logger.Warn("route conflict", "service", declared.Name, "error", c.Error())
	}
	g.logger.Info("service registered",
		"service", declared.Name,
		"bound", len(report.Bound),
		"skipped", len(report.Skipped),
		"conflicts", len(report.Conflicts),
	)
	return report
}

// publisherLocked returns the service's publisher, creating it when the
// service declares a broker and at least one route publishes.
func (g *Gateway) publisherLocked(svc service.Service) *queue.Publisher {
	if svc.MessageQueue == nil || !publishes(svc) {
		return nil
	}
	if pub, ok := g.publishers[svc.Name]; ok {
		return pub
	}
	var opts []queue.PublisherOption
	if g.pubObserver != nil {
		opts = append(opts, queue.WithObserver(g.pubObserver))
	}
	pub := queue.NewPublisher(svc.Name, svc.MessageQueue, g.conns, opts...)
	g.publishers[svc.Name] = pub
	return pub
}

func publishes(svc service.Service) bool {
	for _, r := range svc.Routes {
		if r.Queue != "" {
			return true
		}
	}
	return false
}

// Deregister removes every binding of the named service, stops its
// publisher (cancelling pending retries) and closes its broker connection.
func (g *Gateway) Deregister(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.deregisterLocked(name)
}

func (g *Gateway) deregisterLocked(name string) int {
	removed := g.table.Remove(name)
	if pub, ok := g.publishers[name]; ok {
		pub.Close()
		delete(g.publishers, name)
	}
	g.conns.Drop(name)
	delete(g.services, name)
	g.metrics.SetRoutesRegistered(g.table.Len())

	g.logger.Info("service deregistered", "service", name, "routes_removed", removed)
	return removed
}

// Replace makes services the registered set. Services that disappeared or
// changed are deregistered first; new and changed ones are registered.
// Invalid services are skipped and reported together in the error.
func (g *Gateway) Replace(ctx context.Context, services []service.Service) error {
	type prepared struct {
		declared service.Service
		resolved service.Service
	}

	var (
		errs  []error
		ready []prepared
		seen  = make(map[string]bool, len(services))
	)
	for _, svc := range services {
		seen[svc.Name] = true
		if err := service.Validate(&svc); err != nil {
			errs = append(errs, err)
			continue
		}
		resolved, err := g.resolveSecrets(ctx, svc)
		if err != nil {
			errs = append(errs, fmt.Errorf("service %s: %w", svc.Name, err))
			continue
		}
		ready = append(ready, prepared{declared: svc, resolved: resolved})
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for name, current := range g.services {
		if !seen[name] {
			g.deregisterLocked(name)
			continue
		}
		for _, p := range ready {
			if p.declared.Name == name && !reflect.DeepEqual(p.declared, current) {
				g.deregisterLocked(name)
				break
			}
		}
	}
	for _, p := range ready {
		if _, ok := g.services[p.declared.Name]; ok {
			continue
		}
		g.registerLocked(p.resolved, p.declared)
	}
	return errors.Join(errs...)
}

// Services returns the registered definitions, sorted by name, as declared
// (secret references unresolved).
func (g *Gateway) Services() []service.Service {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]service.Service, 0, len(g.services))
	for _, svc := range g.services {
		out = append(out, svc.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RouteInfo describes one bound (path, method) pair.
type RouteInfo struct {
	Path      string   `json:"path"`
	Method    string   `json:"method"`
	Service   string   `json:"service"`
	Tag       string   `json:"tag,omitempty"`
	Aggregate bool     `json:"aggregate,omitempty"`
	Stages    []string `json:"stages"`
}

// Routes lists the routing table in registration order.
func (g *Gateway) Routes() []RouteInfo {
	bindings := g.table.Bindings()
	out := make([]RouteInfo, len(bindings))
	for i, b := range bindings {
		out[i] = RouteInfo{
			Path:      b.Template,
			Method:    b.Method,
			Service:   b.Service,
			Tag:       b.Tag,
			Aggregate: b.Aggregate,
			Stages:    b.Pipeline.Names(),
		}
	}
	return out
}

// Close deregisters every service and closes the remaining broker connections.
func (g *Gateway) Close() error {
	g.mu.Lock()
	for name := range g.services {
		g.deregisterLocked(name)
	}
	g.mu.Unlock()
	return g.conns.Close()
}

type nopMetrics struct{}

func (nopMetrics) RecordRequest(string, string, int, time.Duration) {}
func (nopMetrics) RecordRateLimited(string)                         {}
func (nopMetrics) RecordAuthFailure(string, string)                 {}
func (nopMetrics) SetRoutesRegistered(int)                          {}
