package metrics

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/kate/pkg/config"
)

// UpstreamMetrics tracks calls from the gateway to upstream services.
//
// Metrics:
//   - kate_upstream_duration_seconds: Upstream call latency by host and status
//   - kate_upstream_errors_total: Transport failures by host and error type
type UpstreamMetrics struct {
	duration    *prometheus.HistogramVec
	errorsTotal *prometheus.CounterVec
}

// NewUpstreamMetrics creates and registers upstream metrics with the provided registry.
func NewUpstreamMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *UpstreamMetrics {
	um := &UpstreamMetrics{
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "upstream_duration_seconds",
				Help:      "Duration of upstream calls in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"upstream", "status"},
		),

		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "upstream_errors_total",
				Help:      "Total number of failed upstream calls",
			},
			[]string{"upstream", "error_type"},
		),
	}

	registry.MustRegister(um.duration, um.errorsTotal)
	return um
}

// Observe records one upstream exchange. Status 0 means no response.
func (um *UpstreamMetrics) Observe(upstream string, status int, duration time.Duration, err error) {
	um.duration.WithLabelValues(upstream, strconv.Itoa(status)).Observe(duration.Seconds())
	if err != nil {
		um.errorsTotal.WithLabelValues(upstream, ErrorType(err)).Inc()
	}
}

// ErrorType classifies a transport error for the error_type label.
func ErrorType(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return "connection"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns"
	}
	return "other"
}
