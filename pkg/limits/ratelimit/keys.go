package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the caller address. The first X-Forwarded-For entry is
// trusted when present; otherwise the host part of RemoteAddr is used.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// KeyFor derives the bucket key for r under policy p.
func KeyFor(p Policy, r *http.Request) string {
	switch p.Strategy {
	case StrategyHeader:
		if p.Header != "" {
			if v := r.Header.Get(p.Header); v != "" {
				return v
			}
		}
	case StrategyBearer:
		if v := r.Header.Get("Authorization"); v != "" {
			return strings.ReplaceAll(v, " ", "-")
		}
	}
	return ClientIP(r)
}
