package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"mercator-hq/kate/pkg/config"
)

// OtherLabel replaces label values once a metric reaches its cardinality limit.
const OtherLabel = "other"

// Collector owns every Prometheus metric the gateway exports. It implements
// the observer interfaces of the forwarder, the key authenticator and the
// queue publisher, so one instance can be handed to each of them.
//
// A collector built from a disabled config records nothing but still serves
// an empty registry.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	requestMetrics  *RequestMetrics
	upstreamMetrics *UpstreamMetrics
	authMetrics     *AuthMetrics
	publishMetrics  *PublishMetrics

	// Route templates are bounded by configuration, but upstream hosts and
	// queue names come from service definitions that can change at runtime.
	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a collector with the specified configuration and
// Prometheus registry. If registry is nil, a new registry with the Go
// runtime and process collectors is created.
//
// Example:
//
//	cfg := &config.MetricsConfig{Enabled: true, Namespace: "kate"}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		// Gateway overhead plus a typical upstream call (5ms - 10s).
		cfg.RequestDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	}

	return &Collector{
		config:             cfg,
		registry:           registry,
		requestMetrics:     NewRequestMetrics(cfg, registry),
		upstreamMetrics:    NewUpstreamMetrics(cfg, registry),
		authMetrics:        NewAuthMetrics(cfg, registry),
		publishMetrics:     NewPublishMetrics(cfg, registry),
		cardinalityLimiter: NewCardinalityLimiter(10000),
	}
}

// RecordRequest records a completed request.
//
// Parameters:
//   - route: matched route template, or "unmatched"
//   - method: HTTP method
//   - status: response status code
//   - duration: total time spent serving the request
func (c *Collector) RecordRequest(route, method string, status int, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.requestMetrics.RecordRequest(route, method, strconv.Itoa(status), duration)
}

// RecordRateLimited counts a request rejected by the rate limiter.
func (c *Collector) RecordRateLimited(route string) {
	if !c.config.Enabled {
		return
	}
	c.requestMetrics.RecordRateLimited(route)
}

// SetRoutesRegistered sets the number of bound (template, method) pairs.
func (c *Collector) SetRoutesRegistered(n int) {
	if !c.config.Enabled {
		return
	}
	c.requestMetrics.SetRoutes(n)
}

// ObserveUpstream records one upstream exchange. A non-nil err counts as
// an upstream error regardless of status.
func (c *Collector) ObserveUpstream(upstream string, status int, duration time.Duration, err error) {
	if !c.config.Enabled {
		return
	}
	if !c.cardinalityLimiter.Allow("upstream:" + upstream) {
		upstream = OtherLabel
	}
	c.upstreamMetrics.Observe(upstream, status, duration, err)
}

// RecordAuthFailure counts a failed authentication or authorization.
//
// Parameters:
//   - route: matched route template
//   - kind: "authentication" or "authorization"
func (c *Collector) RecordAuthFailure(route, kind string) {
	if !c.config.Enabled {
		return
	}
	c.authMetrics.RecordFailure(route, kind)
}

// KeyCacheHit counts a key found in the key cache.
func (c *Collector) KeyCacheHit() {
	if !c.config.Enabled {
		return
	}
	c.authMetrics.RecordCacheHit()
}

// KeyCacheMiss counts a key that had to be verified upstream.
func (c *Collector) KeyCacheMiss() {
	if !c.config.Enabled {
		return
	}
	c.authMetrics.RecordCacheMiss()
}

// ObservePublish counts a finished publish by outcome.
func (c *Collector) ObservePublish(queue, outcome string) {
	if !c.config.Enabled {
		return
	}
	if !c.cardinalityLimiter.Allow("queue:" + queue) {
		queue = OtherLabel
	}
	c.publishMetrics.RecordPublish(queue, outcome)
}

// ObservePublishRetry counts a failed publish attempt that will be retried.
func (c *Collector) ObservePublishRetry(queue string) {
	if !c.config.Enabled {
		return
	}
	if !c.cardinalityLimiter.Allow("queue:" + queue) {
		queue = OtherLabel
	}
	c.publishMetrics.RecordRetry(queue)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether labelSet may be used: it was seen before or the
// limit has not been reached yet.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[labelSet]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
