package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ConnError is a transport-level failure: refused connection, DNS miss,
// broken pipe, or an open circuit breaker. Always retryable.
type ConnError struct {
	URL string
	Err error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("connection error fetching %s: %v", e.URL, e.Err)
}

func (e *ConnError) Unwrap() error   { return e.Err }
func (e *ConnError) Retryable() bool { return true }

// TimeoutError is a deadline expiry while dialing, sending, or reading.
// Always retryable.
type TimeoutError struct {
	URL string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout fetching %s: %v", e.URL, e.Err)
}

func (e *TimeoutError) Unwrap() error   { return e.Err }
func (e *TimeoutError) Retryable() bool { return true }

// HTTPError is a non-2xx response promoted to an error by callers that
// require success. 429 and 5xx are retryable; other client errors are
// not.
type HTTPError struct {
	URL        string
	Status     int
	RetryAfter *float64 // seconds, from the Retry-After header
	Snippet    string   // leading bytes of the body, for error messages
}

func (e *HTTPError) Error() string {
	if e.Snippet != "" {
		return fmt.Sprintf("HTTP %d from %s: %s", e.Status, e.URL, e.Snippet)
	}
	return fmt.Sprintf("HTTP %d from %s", e.Status, e.URL)
}

func (e *HTTPError) Retryable() bool {
	return e.Status == 429 || (e.Status >= 500 && e.Status <= 599)
}

// RetryAfterHint exposes the server's Retry-After wish to the retry
// executor.
func (e *HTTPError) RetryAfterHint() (time.Duration, bool) {
	if e.RetryAfter == nil {
		return 0, false
	}
	d := time.Duration(*e.RetryAfter * float64(time.Second))
	if d < 0 {
		d = 0
	}
	return d, true
}

// classify wraps a transport error from net/http into the package
// taxonomy.
func classify(url string, err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return &TimeoutError{URL: url, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{URL: url, Err: err}
	}
	return &ConnError{URL: url, Err: err}
}
