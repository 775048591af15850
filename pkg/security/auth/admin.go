package auth

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"sync"
)

// AdminKeys validates bearer keys for the administrative API.
type AdminKeys struct {
	mu   sync.RWMutex
	keys [][]byte
}

// NewAdminKeys creates a validator accepting any of keys. Empty keys are ignored.
func NewAdminKeys(keys ...string) *AdminKeys {
	a := &AdminKeys{}
	a.Set(keys...)
	return a
}

// Set replaces the accepted keys, for example after a config reload.
func (a *AdminKeys) Set(keys ...string) {
	accepted := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			accepted = append(accepted, []byte(k))
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys = accepted
}

// Valid reports whether key is accepted. Comparison is constant time.
func (a *AdminKeys) Valid(key string) bool {
	if key == "" {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()

	ok := false
	for _, k := range a.keys {
		if subtle.ConstantTimeCompare(k, []byte(key)) == 1 {
			ok = true
		}
	}
	return ok
}

// Configured reports whether at least one key is set.
func (a *AdminKeys) Configured() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.keys) > 0
}

// RequireAdmin rejects requests without a valid admin bearer key. deny
// writes the rejection; it receives 401 for a missing or unknown key.
func RequireAdmin(keys *AdminKeys, deny func(w http.ResponseWriter, r *http.Request, status int)) func(http.Handler) http.Handler {
	logger := slog.Default().With("component", "auth.admin")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				logger.Warn("missing admin key",
					"remote_addr", r.RemoteAddr,
					"path", r.URL.Path,
				)
				deny(w, r, http.StatusUnauthorized)
				return
			}
			if !keys.Valid(token) {
				logger.Warn("invalid admin key",
					"remote_addr", r.RemoteAddr,
					"path", r.URL.Path,
				)
				deny(w, r, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
