package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/kate/pkg/config"
)

// PublishMetrics tracks messages handed to the broker.
//
// Metrics:
//   - kate_publish_total: Finished publishes by queue and outcome
//   - kate_publish_retries_total: Failed attempts that were retried
type PublishMetrics struct {
	publishTotal *prometheus.CounterVec
	retriesTotal *prometheus.CounterVec
}

// NewPublishMetrics creates and registers publish metrics with the provided registry.
func NewPublishMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *PublishMetrics {
	pm := &PublishMetrics{
		publishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "publish_total",
				Help:      "Total number of finished publishes",
			},
			[]string{"queue", "outcome"},
		),

		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "publish_retries_total",
				Help:      "Total number of retried publish attempts",
			},
			[]string{"queue"},
		),
	}

	registry.MustRegister(pm.publishTotal, pm.retriesTotal)
	return pm
}

// RecordPublish counts a finished publish.
func (pm *PublishMetrics) RecordPublish(queue, outcome string) {
	pm.publishTotal.WithLabelValues(queue, outcome).Inc()
}

// RecordRetry counts a retried attempt.
func (pm *PublishMetrics) RecordRetry(queue string) {
	pm.retriesTotal.WithLabelValues(queue).Inc()
}
