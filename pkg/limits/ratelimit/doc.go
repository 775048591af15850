// Package ratelimit implements the gateway's per-route token bucket limiter.
//
// # Overview
//
// Every route carries a Policy (limit, refill period, key strategy). The
// Registry keeps one TokenBucket per (policy identity, derived key) and
// mutates each bucket under its own lock, so concurrent requests from the
// same caller race safely while unrelated callers never contend.
//
//	reg := ratelimit.NewRegistry()
//	policy := ratelimit.Policy{Limit: 100, RefillPeriod: time.Minute, Strategy: ratelimit.StrategyIP}
//
//	d := reg.TryConsume("GET /users/{id}", ratelimit.KeyFor(policy, r), policy, 1)
//	if !d.Allowed {
//	    w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfterSeconds()))
//	    w.WriteHeader(http.StatusTooManyRequests)
//	    return
//	}
//
// # Key strategies
//
//   - IP: the first X-Forwarded-For entry, else the connection address
//   - HEADER_VALUE: a named header, else IP
//   - BEARER_TOKEN: the Authorization header with spaces replaced by "-", else IP
//
// # Memory
//
// A bucket is removed when its window ends without further successful
// consumptions, so keys with no recent traffic hold no state.
package ratelimit
