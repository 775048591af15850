// Package proxy talks to upstream services on behalf of the gateway.
//
// A Forwarder relays one inbound request to one upstream:
//
//	resp, err := fwd.Forward(ctx, r, ex.BodyReader(), "http://users:8080")
//	if proxy.IsUpstreamError(err) {
//	    // 500 "upstream service unavailable"
//	}
//
// The method and request URI are kept. All request headers except
// Content-Length are copied and the caller is appended to X-Forwarded-For.
// Redirects are never followed and non-2xx statuses are ordinary responses.
// Only X-* and Content-* response headers are passed back, and the body is
// streamed.
//
// An Aggregator GETs several child URLs concurrently and combines their
// bodies under each child's tag. The first failing child, in declaration
// order, is returned verbatim instead.
//
// Both propagate the W3C trace context of ctx to the upstream.
package proxy
