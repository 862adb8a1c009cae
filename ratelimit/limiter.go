// Package ratelimit provides per-endpoint delivery rate limiting.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per endpoint, keyed by endpoint ID.
// A rate limit of 0 means unlimited.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// New creates a new rate limiter registry.
func New() *Limiter {
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether a delivery to the endpoint may proceed now.
func (l *Limiter) Allow(endpointID string, perSecond int) bool {
	if perSecond <= 0 {
		return true
	}
	return l.bucket(endpointID, perSecond).Allow()
}

// Wait blocks until the endpoint's bucket permits a delivery or the context
// is cancelled.
func (l *Limiter) Wait(ctx context.Context, endpointID string, perSecond int) error {
	if perSecond <= 0 {
		return nil
	}
	return l.bucket(endpointID, perSecond).Wait(ctx)
}

// Reset clears the rate limit state for an endpoint. Called when an
// endpoint's configuration changes or the endpoint is deleted.
func (l *Limiter) Reset(endpointID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, endpointID)
}

func (l *Limiter) bucket(endpointID string, perSecond int) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[endpointID]
	if !ok || b.Limit() != rate.Limit(perSecond) {
		// Burst equals the per-second rate, matching a bucket that starts full.
		b = rate.NewLimiter(rate.Limit(perSecond), perSecond)
		l.buckets[endpointID] = b
	}
	return b
}
