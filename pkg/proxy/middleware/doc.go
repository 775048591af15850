// Package middleware provides the HTTP middleware wrapped around the gateway.
//
// The chain, outermost first:
//
//	handler = Recovery(RequestID(Logging(CORS(cfg)(gateway))))
//
// Recovery turns panics into 500 {"error": ...} responses. RequestID assigns
// or reuses X-Request-ID and stores it in the context, so Logging can write
// one structured line per request with the ID attached. CORS answers
// preflights and decorates cross-origin responses.
//
// Pipeline stages recover their own panics; Recovery only catches failures
// outside the pipelines, such as in the admin API.
package middleware
