package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/kate/pkg/config"
)

// Auth failure kinds.
const (
	FailureAuthentication = "authentication"
	FailureAuthorization  = "authorization"
)

// AuthMetrics tracks caller authentication.
//
// Metrics:
//   - kate_auth_failures_total: Rejected callers by route and kind
//   - kate_keycache_hits_total: Opaque keys served from the cache
//   - kate_keycache_misses_total: Opaque keys verified upstream
type AuthMetrics struct {
	failuresTotal *prometheus.CounterVec
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
}

// NewAuthMetrics creates and registers auth metrics with the provided registry.
func NewAuthMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *AuthMetrics {
	am := &AuthMetrics{
		failuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "auth_failures_total",
				Help:      "Total number of rejected callers",
			},
			[]string{"route", "kind"},
		),

		cacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "keycache_hits_total",
				Help:      "Total number of key cache hits",
			},
		),

		cacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "keycache_misses_total",
				Help:      "Total number of key cache misses",
			},
		),
	}

	registry.MustRegister(am.failuresTotal, am.cacheHits, am.cacheMisses)
	return am
}

// RecordFailure counts a rejected caller.
func (am *AuthMetrics) RecordFailure(route, kind string) {
	am.failuresTotal.WithLabelValues(route, kind).Inc()
}

// RecordCacheHit counts a key cache hit.
func (am *AuthMetrics) RecordCacheHit() {
	am.cacheHits.Inc()
}

// RecordCacheMiss counts a key cache miss.
func (am *AuthMetrics) RecordCacheMiss() {
	am.cacheMisses.Inc()
}
