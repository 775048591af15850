package ratelimit

import (
	"log/slog"
	"sync"
	"time"
)

// stopper is the part of *time.Timer the registry needs.
type stopper interface {
	Stop() bool
}

type bucketKey struct {
	policy string
	key    string
}

// Registry owns one TokenBucket per (policy identity, derived key).
//
// Buckets are created lazily on first use. After every successful
// consumption a cleanup is armed for the end of the bucket's window; when it
// fires and the bucket has not been used since, the bucket is dropped so idle
// callers do not accumulate memory. Buckets of different policies are never
// shared even when their derived keys are equal.
type Registry struct {
	buckets   sync.Map // bucketKey -> *TokenBucket
	now       func() time.Time
	afterFunc func(time.Duration, func()) stopper
	logger    *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

// WithAfterFunc overrides how cleanups are scheduled. Intended for tests.
func WithAfterFunc(fn func(time.Duration, func()) stopper) RegistryOption {
	return func(r *Registry) {
		r.afterFunc = fn
	}
}

// NewRegistry creates an empty bucket registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		now: time.Now,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
		logger: slog.Default().With("component", "ratelimit.registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TryConsume takes weight tokens from the bucket of (policyID, key).
func (r *Registry) TryConsume(policyID, key string, p Policy, weight int) Decision {
	k := bucketKey{policy: policyID, key: key}

	for {
		now := r.now()

		v, ok := r.buckets.Load(k)
		if !ok {
			v, _ = r.buckets.LoadOrStore(k, NewTokenBucket(p.Limit, p.RefillPeriod, now))
		}
		tb := v.(*TokenBucket)

		tb.mu.Lock()
		if tb.removed {
			// Lost a race with cleanup; retry on a fresh bucket.
			tb.mu.Unlock()
			continue
		}

		tb.capacity = p.Limit
		tb.period = p.RefillPeriod
		if tb.remaining > tb.capacity {
			tb.remaining = tb.capacity
		}

		d := tb.consumeLocked(weight, now)
		if d.Allowed {
			r.armCleanupLocked(k, tb, now)
		}
		tb.mu.Unlock()
		return d
	}
}

// armCleanupLocked replaces the bucket's pending cleanup with one firing at
// the end of the current window. Caller must hold tb.mu.
func (r *Registry) armCleanupLocked(k bucketKey, tb *TokenBucket, now time.Time) {
	if tb.cleanup != nil {
		tb.cleanup.Stop()
	}
	gen := tb.generation
	delay := tb.refillAt.Sub(now)
	if delay < 0 {
		delay = 0
	}
	tb.cleanup = r.afterFunc(delay, func() {
		r.expire(k, tb, gen)
	})
}

// expire drops the bucket if it has not been touched since gen.
func (r *Registry) expire(k bucketKey, tb *TokenBucket, gen uint64) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if tb.removed || tb.generation != gen {
		return
	}
	tb.removed = true
	r.buckets.CompareAndDelete(k, tb)
}

// Len returns the number of live buckets.
func (r *Registry) Len() int {
	n := 0
	r.buckets.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Reset drops every bucket and cancels pending cleanups.
func (r *Registry) Reset() {
	r.buckets.Range(func(k, v any) bool {
		tb := v.(*TokenBucket)
		tb.mu.Lock()
		if tb.cleanup != nil {
			tb.cleanup.Stop()
		}
		tb.removed = true
		tb.mu.Unlock()
		r.buckets.Delete(k)
		return true
	})
	r.logger.Debug("rate limit buckets reset")
}
