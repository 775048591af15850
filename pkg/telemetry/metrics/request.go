package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/kate/pkg/config"
)

// RequestMetrics tracks requests served by the gateway.
//
// Metrics:
//   - kate_requests_total: Requests by route, method and status
//   - kate_request_duration_seconds: Request duration histogram
//   - kate_ratelimit_rejections_total: Requests rejected with 429
//   - kate_routes_registered: Bound (template, method) pairs
type RequestMetrics struct {
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	rateLimitRejections *prometheus.CounterVec
	routesRegistered    prometheus.Gauge
}

// NewRequestMetrics creates and registers request metrics with the provided registry.
func NewRequestMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "requests_total",
				Help:      "Total number of requests served",
			},
			[]string{"route", "method", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_duration_seconds",
				Help:      "Duration of requests in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"route", "method"},
		),

		rateLimitRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "ratelimit_rejections_total",
				Help:      "Total number of requests rejected by the rate limiter",
			},
			[]string{"route"},
		),

		routesRegistered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "routes_registered",
				Help:      "Number of bound route and method pairs",
			},
		),
	}

	registry.MustRegister(
		rm.requestsTotal,
		rm.requestDuration,
		rm.rateLimitRejections,
		rm.routesRegistered,
	)

	return rm
}

// RecordRequest records a completed request.
func (rm *RequestMetrics) RecordRequest(route, method, status string, duration time.Duration) {
	rm.requestsTotal.WithLabelValues(route, method, status).Inc()
	rm.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordRateLimited counts one rejected request.
func (rm *RequestMetrics) RecordRateLimited(route string) {
	rm.rateLimitRejections.WithLabelValues(route).Inc()
}

// SetRoutes sets the registered route gauge.
func (rm *RequestMetrics) SetRoutes(n int) {
	rm.routesRegistered.Set(float64(n))
}
