// Package retry runs operations that may fail transiently, with bounded
// exponential backoff. Errors opt in to retry by implementing
// Retryable() bool; a server-provided Retry-After hint is honoured when
// it exceeds the computed backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Config bounds the retry loop. MaxRetries counts retries after the
// first attempt, so MaxRetries+1 attempts run in total.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// Jitter, when set, maps a computed delay to the actual sleep.
	// Deterministic (identity) when nil.
	Jitter func(time.Duration) time.Duration
}

// DefaultConfig matches the providers this engine talks to: three
// retries, one-second base, one-minute ceiling.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   60 * time.Second,
	}
}

// Error is the terminal failure of a retried operation.
type Error struct {
	Op       string
	Source   string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s failed after %d attempt(s): %v", e.Source, e.Op, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type retryableErr interface {
	Retryable() bool
}

type retryAfterErr interface {
	RetryAfterHint() (time.Duration, bool)
}

// IsRetryable reports whether err opts in to retry anywhere in its chain.
func IsRetryable(err error) bool {
	var r retryableErr
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}

func retryAfterOf(err error) (time.Duration, bool) {
	var r retryAfterErr
	if errors.As(err, &r) {
		return r.RetryAfterHint()
	}
	return 0, false
}

// Executor retries operations under one Config.
type Executor struct {
	cfg Config
}

// New returns an Executor. Zero-value config fields fall back to
// DefaultConfig values.
func New(cfg Config) *Executor {
	def := DefaultConfig()
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Executor{cfg: cfg}
}

// Do runs fn up to MaxRetries+1 times. Non-retryable failures and
// exhaustion propagate as *Error carrying the operation name, the source
// identifier, and the wrapped cause. Cancellation during a backoff sleep
// joins ctx.Err() into the cause so callers can detect it with errors.Is.
func (e *Executor) Do(ctx context.Context, op, source string, fn func(context.Context) error) error {
	attempts := e.cfg.MaxRetries + 1
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) || attempt == attempts {
			return &Error{Op: op, Source: source, Attempts: attempt, Err: err}
		}

		delay := e.backoff(attempt)
		if hint, ok := retryAfterOf(err); ok && hint > delay {
			delay = hint
		}
		slog.Warn("retry: operation failed, backing off",
			"operation", op, "source", source,
			"attempt", attempt, "delay", delay, "error", err)

		if serr := sleep(ctx, delay); serr != nil {
			return &Error{Op: op, Source: source, Attempts: attempt, Err: errors.Join(err, serr)}
		}
	}
	return &Error{Op: op, Source: source, Attempts: attempts, Err: err}
}

// backoff computes base * 2^(attempt-1) capped at MaxDelay, before jitter.
func (e *Executor) backoff(attempt int) time.Duration {
	d := e.cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= e.cfg.MaxDelay {
			d = e.cfg.MaxDelay
			break
		}
	}
	if d > e.cfg.MaxDelay {
		d = e.cfg.MaxDelay
	}
	if e.cfg.Jitter != nil {
		d = e.cfg.Jitter(d)
	}
	if d < 0 {
		d = 0
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
