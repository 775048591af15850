package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/singleflight"

	"mercator-hq/kate/pkg/service"
)

// Fetcher performs the verification GET. It is implemented by the proxy
// forwarder so that key checks share the upstream transport and timeouts.
type Fetcher interface {
	Get(ctx context.Context, url string, header http.Header) (status int, body []byte, err error)
}

// CacheObserver is notified of key cache lookups.
type CacheObserver interface {
	KeyCacheHit()
	KeyCacheMiss()
}

// KeyAuthenticator verifies opaque keys against their policy's endpoint and
// caches successful payloads. Concurrent misses for the same key share one
// verification call.
type KeyAuthenticator struct {
	cache    KeyCache
	fetcher  Fetcher
	observer CacheObserver
	logger   *slog.Logger
	inflight singleflight.Group
}

// NewKeyAuthenticator creates a key authenticator. observer may be nil.
func NewKeyAuthenticator(cache KeyCache, fetcher Fetcher, observer CacheObserver) *KeyAuthenticator {
	return &KeyAuthenticator{
		cache:    cache,
		fetcher:  fetcher,
		observer: observer,
		logger:   slog.Default().With("component", "auth.key"),
	}
}

// Cache returns the key cache.
func (a *KeyAuthenticator) Cache() KeyCache {
	return a.cache
}

// Authenticate reads the key header named by policy and returns the
// verified principal. Keys are verified in both modes.
func (a *KeyAuthenticator) Authenticate(ctx context.Context, r *http.Request, policy *service.KeyPolicy) (*Principal, error) {
	key := r.Header.Get(policy.KeyHeader)
	if key == "" {
		return nil, forbidden(MsgMissingKey, nil)
	}

	payload, ok, err := a.cache.Get(ctx, key)
	if err != nil {
		// A broken cache backend degrades to verifying upstream.
		a.logger.Warn("key cache lookup failed", "error", err)
	}
	if ok {
		a.hit()
		return &Principal{Kind: service.KindKey, Verified: true, Key: key, Payload: payload}, nil
	}
	a.miss()

	// The call is shared, so one caller going away must not fail the rest.
	// The fetcher's own timeout still bounds it.
	v, err, _ := a.inflight.Do(policy.VerifyEndpoint+"\x00"+key, func() (any, error) {
		return a.verify(context.WithoutCancel(ctx), policy, key)
	})
	if err != nil {
		return nil, err
	}
	return &Principal{Kind: service.KindKey, Verified: true, Key: key, Payload: v.(map[string]any)}, nil
}

func (a *KeyAuthenticator) verify(ctx context.Context, policy *service.KeyPolicy, key string) (map[string]any, error) {
	header := http.Header{}
	header.Set(policy.KeyHeader, key)
	status, body, err := a.fetcher.Get(ctx, policy.VerifyEndpoint, header)
	if err != nil {
		return nil, forbidden(MsgInvalidKey, fmt.Errorf("verify endpoint unreachable: %w", err))
	}
	if status < 200 || status > 299 {
		return nil, forbidden(MsgInvalidKey, fmt.Errorf("verify endpoint returned %d", status))
	}

	payload := map[string]any{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, forbidden(MsgInvalidKey, fmt.Errorf("verify payload is not a JSON object: %w", err))
	}

	if err := a.cache.Set(ctx, key, payload); err != nil {
		a.logger.Warn("failed to cache key payload", "error", err)
	}
	return payload, nil
}

// Invalidate evicts key from the cache.
func (a *KeyAuthenticator) Invalidate(ctx context.Context, key string) error {
	return a.cache.Invalidate(ctx, key)
}

func (a *KeyAuthenticator) hit() {
	if a.observer != nil {
		a.observer.KeyCacheHit()
	}
}

func (a *KeyAuthenticator) miss() {
	if a.observer != nil {
		a.observer.KeyCacheMiss()
	}
}
