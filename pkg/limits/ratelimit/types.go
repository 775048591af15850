package ratelimit

import (
	"math"
	"strings"
	"time"
)

// Strategy selects how the bucket key is derived from a request.
type Strategy string

const (
	// StrategyIP keys buckets by the caller address.
	StrategyIP Strategy = "IP"

	// StrategyHeader keys buckets by a named header, falling back to the caller address.
	StrategyHeader Strategy = "HEADER_VALUE"

	// StrategyBearer keys buckets by the Authorization header, falling back to the caller address.
	StrategyBearer Strategy = "BEARER_TOKEN"
)

// Default policy values used when a route declares no rate limit.
const (
	DefaultLimit        = 10
	DefaultRefillPeriod = time.Duration(0)
)

// ParseStrategy normalizes a strategy name. The historical names API_KEY and
// BEARER are accepted as aliases. Unknown or empty values mean IP.
func ParseStrategy(s string) Strategy {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HEADER_VALUE", "HEADER", "API_KEY":
		return StrategyHeader
	case "BEARER_TOKEN", "BEARER":
		return StrategyBearer
	default:
		return StrategyIP
	}
}

// Policy is the rate limit applied to one route.
type Policy struct {
	// Limit is the bucket capacity.
	Limit int

	// RefillPeriod is the window length. Zero refills on every request.
	RefillPeriod time.Duration

	// Strategy derives the bucket key.
	Strategy Strategy

	// Header is the header read by StrategyHeader.
	Header string
}

// DefaultPolicy returns the permissive policy applied to routes without one.
func DefaultPolicy() Policy {
	return Policy{
		Limit:        DefaultLimit,
		RefillPeriod: DefaultRefillPeriod,
		Strategy:     StrategyIP,
	}
}

// Decision is the outcome of one consumption attempt.
type Decision struct {
	// Allowed is true in the Available state.
	Allowed bool

	// Limit is the bucket capacity.
	Limit int

	// Remaining is the number of tokens left after this attempt.
	Remaining int

	// RefillAt is when the current window ends.
	RefillAt time.Time

	// RetryAfter is how long the caller should wait (Exhausted only).
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, never below one.
func (d Decision) RetryAfterSeconds() int {
	secs := int(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
