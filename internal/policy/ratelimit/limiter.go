// Package ratelimit keeps one token bucket per chat.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds rate limiter configuration.
type Config struct {
	// Interval is the minimum spacing between allowed events per key; <= 0 disables limiting.
	Interval time.Duration
	Burst    int
}

type bucket struct {
	limiter *rate.Limiter
	last    time.Time
}

// Limiter manages per-chat rate limits. Buckets idle long enough to have refilled are
// dropped, so the map only holds chats seen within the last Interval*Burst.
type Limiter struct {
	mu        sync.Mutex
	buckets   map[int64]*bucket
	every     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	every := rate.Inf
	if cfg.Interval > 0 {
		every = rate.Every(cfg.Interval)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		buckets: make(map[int64]*bucket),
		every:   every,
		burst:   burst,
		idle:    cfg.Interval * time.Duration(burst),
	}
}

// Allow reports whether key may proceed at now and consumes a token if so.
func (l *Limiter) Allow(key int64, now time.Time) bool {
	if l.every == rate.Inf {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)
	b, exists := l.buckets[key]
	if !exists {
		b = &bucket{limiter: rate.NewLimiter(l.every, l.burst)}
		l.buckets[key] = b
	}
	b.last = now
	return b.limiter.AllowN(now, 1)
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// sweep drops buckets that are full again; a fresh bucket behaves identically.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idle {
		return
	}
	for key, b := range l.buckets {
		if now.Sub(b.last) >= l.idle {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}
