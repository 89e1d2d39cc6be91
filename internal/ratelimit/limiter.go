// Package ratelimit paces outbound requests to external providers.
// Each source adapter owns one Limiter; Wait blocks until the next
// request may be sent, so callers never exceed the configured rate on
// average no matter how many goroutines share the limiter.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is a token bucket with continuous refill. The zero value is not
// usable; construct with New or NewWithBurst.
type Limiter struct {
	mu       sync.Mutex
	tokens   float64
	maxBurst float64
	rate     float64 // tokens per second
	last     time.Time
}

// New returns a limiter that releases callers at most requestsPerSecond
// times per second with no burst (capacity one token, smooth pacing).
// A non-positive rate disables pacing.
func New(requestsPerSecond float64) *Limiter {
	return NewWithBurst(requestsPerSecond, 1)
}

// NewWithBurst returns a limiter with the given burst capacity. The
// bucket starts full, so the first burst proceeds immediately.
func NewWithBurst(requestsPerSecond float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		tokens:   float64(burst),
		maxBurst: float64(burst),
		rate:     requestsPerSecond,
		last:     time.Now(),
	}
}

// Wait blocks until a token is available or ctx is done. It returns
// ctx.Err() on cancellation; the caller's slot is not consumed in that
// case.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.rate <= 0 {
		return ctx.Err()
	}
	for {
		l.mu.Lock()
		now := time.Now()
		l.tokens += now.Sub(l.last).Seconds() * l.rate
		if l.tokens > l.maxBurst {
			l.tokens = l.maxBurst
		}
		l.last = now
		if l.tokens >= 1 {
			l.tokens--
			l.mu.Unlock()
			return nil
		}
		// Sleep until the next token accrues, then re-check: another
		// waiter may have taken it first.
		wait := time.Duration((1 - l.tokens) / l.rate * float64(time.Second))
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Rate returns the configured refill rate in tokens per second.
func (l *Limiter) Rate() float64 {
	return l.rate
}
