package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket implements a fixed-window token bucket.
//
// The bucket starts full. Each consumption removes weight tokens. Once the
// refill deadline has passed, the next consumption resets the bucket to its
// capacity and moves the deadline one refill period into the future.
//
// # State machine
//
//	if now >= refillAt:   remaining = capacity, refillAt = now + period
//	if remaining >= weight: remaining -= weight  -> Available
//	otherwise:                                   -> Exhausted(refillAt - now)
//
// A refill period of zero makes every consumption start a new window, which
// is effectively unlimited for weights not exceeding the capacity.
//
// # Thread Safety
//
// TokenBucket is guarded by its own mutex. The Registry locks each bucket
// individually so concurrent callers with different keys never contend.
type TokenBucket struct {
	mu        sync.Mutex
	capacity  int
	remaining int
	period    time.Duration
	refillAt  time.Time

	// generation increments on every successful consumption so a pending
	// cleanup can tell whether the bucket was touched after it was armed.
	generation uint64
	cleanup    stopper
	removed    bool
}

// NewTokenBucket creates a full bucket whose first window ends at now+period.
func NewTokenBucket(capacity int, period time.Duration, now time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:  capacity,
		remaining: capacity,
		period:    period,
		refillAt:  now.Add(period),
	}
}

// TryConsume takes weight tokens if available.
func (tb *TokenBucket) TryConsume(weight int, now time.Time) Decision {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.consumeLocked(weight, now)
}

// Remaining returns the tokens left in the current window.
func (tb *TokenBucket) Remaining() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.remaining
}

// Capacity returns the maximum bucket capacity.
func (tb *TokenBucket) Capacity() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.capacity
}

// RefillAt returns the end of the current window.
func (tb *TokenBucket) RefillAt() time.Time {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.refillAt
}

// consumeLocked applies the state machine. Caller must hold the lock.
func (tb *TokenBucket) consumeLocked(weight int, now time.Time) Decision {
	if !now.Before(tb.refillAt) {
		tb.remaining = tb.capacity
		tb.refillAt = now.Add(tb.period)
	}

	if tb.remaining >= weight {
		tb.remaining -= weight
		tb.generation++
		return Decision{
			Allowed:   true,
			Limit:     tb.capacity,
			Remaining: tb.remaining,
			RefillAt:  tb.refillAt,
		}
	}

	return Decision{
		Allowed:    false,
		Limit:      tb.capacity,
		Remaining:  tb.remaining,
		RefillAt:   tb.refillAt,
		RetryAfter: tb.refillAt.Sub(now),
	}
}
