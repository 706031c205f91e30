// Package ratelimit implements fixed-window request limits keyed by client
// fingerprint. The memory backend serves a single instance; the Redis
// backend shares counters between instances.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter defines the rate limiting interface
type Limiter interface {
	// Allow counts one request against key and reports whether it fits in
	// limit requests per window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

// MemoryLimiter is an in-memory rate limiter implementation
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	count     int
	resetTime time.Time
}

// NewMemoryLimiter creates a new in-memory rate limiter
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]

	if !ok || !now.Before(b.resetTime) {
		l.buckets[key] = &bucket{
			count:     1,
			resetTime: now.Add(window),
		}
		return Decision{Allowed: true, Remaining: max(limit-1, 0)}, nil
	}

	if b.count >= limit {
		return Decision{RetryAfter: b.resetTime.Sub(now)}, nil
	}

	b.count++
	return Decision{Allowed: true, Remaining: limit - b.count}, nil
}

// Cleanup removes expired buckets to prevent memory leaks
func (l *MemoryLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, b := range l.buckets {
		if !now.Before(b.resetTime) {
			delete(l.buckets, key)
		}
	}
}

// StartCleanup periodically drops expired buckets until ctx is done.
func (l *MemoryLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Cleanup()
			}
		}
	}()
}

var _ Limiter = (*MemoryLimiter)(nil)
