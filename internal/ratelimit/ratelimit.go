// Package ratelimit throttles authenticated callers with an in-memory token
// bucket per user.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// bucket tracks the token state for a single key.
type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// Decision is the outcome of a single Take.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt is when the bucket will be full again.
	ResetAt time.Time
	// RetryAfter is how long until one token is available. Zero when allowed.
	RetryAfter time.Duration
}

// Limiter is a token-bucket rate limiter keyed by user id. Each key may make
// rate requests per window, refilling continuously.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    int
	window  time.Duration
	now     func() time.Time
}

// New creates a Limiter that allows rate requests per window.
func New(rate int, window time.Duration) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		window:  window,
		now:     time.Now,
	}
}

// perSecond is the refill rate in tokens per second.
func (l *Limiter) perSecond() float64 {
	return float64(l.rate) / l.window.Seconds()
}

// getBucket returns the bucket for key, creating a full one if needed.
// Must be called with l.mu held.
func (l *Limiter) getBucket(key string) *bucket {
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.rate), lastRefill: l.now()}
		l.buckets[key] = b
	}
	return b
}

// refill adds tokens for the time elapsed since the last refill.
// Must be called with l.mu held.
func (l *Limiter) refill(b *bucket) {
	now := l.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = math.Min(float64(l.rate), b.tokens+elapsed*l.perSecond())
	b.lastRefill = now
}

// Take consumes one token for key if available and reports the resulting
// quota. The check and the consumption happen under one lock.
func (l *Limiter) Take(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.getBucket(key)
	l.refill(b)

	d := Decision{Limit: l.rate}
	if b.tokens >= 1 {
		b.tokens--
		d.Allowed = true
	} else {
		d.RetryAfter = time.Duration((1 - b.tokens) / l.perSecond() * float64(time.Second))
	}
	d.Remaining = int(b.tokens)
	d.ResetAt = l.now().Add(time.Duration((float64(l.rate) - b.tokens) / l.perSecond() * float64(time.Second)))
	return d
}

// Prune drops buckets that have been idle long enough to be full again, and
// returns how many were removed. A pruned key starts over with a full bucket,
// so pruning never changes a decision.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		l.refill(b)
		if b.tokens >= float64(l.rate) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
