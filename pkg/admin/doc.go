// Package admin serves the administrative API of the gateway.
//
// Every endpoint requires an admin key passed as a bearer token and answers
// with the envelope {"success", "message", "data"}:
//
//	GET    /_services            stored service definitions
//	POST   /_services            merge, save and register a list of services
//	DELETE /_services            delete the store and deregister everything
//	GET    /_routes              bound (path, method) pairs
//	POST   /_invalidate/{key}    evict an opaque key from the key cache
//	GET    /_dashboard/home      request log overview
//	GET    /_dashboard/traces    paged request log (?page=&count=)
//	GET    /_dashboard/consumers traffic per route (?hours=)
//	GET    /_dashboard/logs      request log search
//
// /_dashboard/logs filters on method, path, route, service, client_ip,
// status (success, error, rate_limited) and an RFC 3339 start/end window.
// limit, offset, sort (timestamp, latency_ms, status) and order page the
// result. format=csv returns the page as CSV with the total match count in
// X-Total-Count.
package admin
