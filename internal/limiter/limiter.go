// Package limiter provides a per-key fixed-window rate limiter used to
// throttle generation requests per user.
package limiter

import (
	"sync"
	"time"
)

type bucket struct {
	count  int
	window time.Time
}

// Limiter allows up to max requests per key within each window.
type Limiter struct {
	max    int
	window time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
}

func New(max int, window time.Duration) *Limiter {
	return &Limiter{
		max:     max,
		window:  window,
		buckets: make(map[string]*bucket),
	}
}

// Allow reports whether a request for key fits in the current window.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[key]
	if !ok || now.Sub(b.window) > l.window {
		l.buckets[key] = &bucket{count: 1, window: now}
		return true
	}
	if b.count >= l.max {
		return false
	}
	b.count++
	return true
}

// Cleanup removes buckets idle longer than maxAge to prevent memory leaks.
func (l *Limiter) Cleanup(maxAge time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for key, b := range l.buckets {
		if now.Sub(b.window) > maxAge {
			delete(l.buckets, key)
		}
	}
}
