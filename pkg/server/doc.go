// Package server runs the gateway HTTP listener.
//
// The server owns the listener and the middleware chain shared by every
// handler on it. Health probes, the metrics endpoint and the admin API are
// routed by a chi mux; everything else falls through to the gateway, which
// does its own dispatch against the routing table.
//
// Start blocks until the context is cancelled or SIGINT/SIGTERM arrives and
// then drains in-flight requests for server.shutdown_timeout. With
// security.tls enabled the listener serves TLS from a certificate reloader
// that picks up renewed files without a restart.
package server
