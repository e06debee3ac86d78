// Package ratelimit throttles AgentExecutor invocations per agent klass, so
// a runaway AI loop for one klass cannot starve the external LLM service for
// everyone else. Adapted from the teacher's internal/auth/ratelimit.go
// (per-token rate limiter); the HTTP middleware wrapper is dropped since
// this runtime has no HTTP surface to guard (the concern moves to guarding
// AgentExecutor.Run instead of guarding a handler).
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter rate-limits AgentExecutor.Run calls, keyed by agent klass.
type Limiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
}

// New creates a Limiter allowing requestsPerSecond sustained calls per
// klass, with the given burst allowance.
func New(requestsPerSecond float64, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

// Default returns a limiter with conservative defaults: 5 executor
// invocations/second per klass, burst of 10.
func Default() *Limiter {
	return New(5, 10)
}

func (l *Limiter) limiterFor(klass string) *rate.Limiter {
	l.mu.RLock()
	lim, ok := l.limiters[klass]
	l.mu.RUnlock()
	if ok {
		return lim
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok = l.limiters[klass]; ok {
		return lim
	}
	lim = rate.NewLimiter(l.rate, l.burst)
	l.limiters[klass] = lim
	return lim
}

// Allow reports whether an executor call for klass may proceed now.
func (l *Limiter) Allow(klass string) bool {
	return l.limiterFor(klass).Allow()
}

// Wait blocks until an executor call for klass is permitted or ctx is done.
func (l *Limiter) Wait(ctx context.Context, klass string) error {
	return l.limiterFor(klass).Wait(ctx)
}
