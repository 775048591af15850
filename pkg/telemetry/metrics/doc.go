// Package metrics provides Prometheus metrics collection for the gateway.
//
// # Metrics Categories
//
//   - Request Metrics: request count and duration by route, rate limit
//     rejections, registered routes
//   - Upstream Metrics: upstream latency and transport errors by host
//   - Auth Metrics: rejected callers and key cache efficiency
//   - Publish Metrics: broker publishes by outcome and retries
//
// All names are prefixed with the configured namespace ("kate" by default).
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	forwarder := proxy.NewForwarder(proxyCfg, proxy.WithObserver(collector))
//	publisher := queue.NewPublisher(name, mq, conns, queue.WithObserver(collector))
//
//	collector.RecordRequest("/users/{id}", "GET", 200, 12*time.Millisecond)
//
//	mux.Handle("/metrics", collector.Handler())
//
// # Cardinality
//
// Upstream hosts and queue names are capped by a CardinalityLimiter; values
// past the limit are reported under the "other" label.
package metrics
