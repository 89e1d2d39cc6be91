// Package fetch is the pooled HTTP layer under every source adapter.
// It returns typed responses, classifies transport failures into a
// retryable taxonomy, and guards each upstream with a circuit breaker so
// a dead provider fails fast instead of burning the rate budget.
package fetch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// maxBodyBytes caps response reads so a misbehaving provider cannot
// exhaust memory.
const maxBodyBytes = 10 << 20

// Config enumerates every knob of the client. Construct with
// DefaultConfig to get the documented defaults (30s timeout, TLS
// verification on).
type Config struct {
	UserAgent       string        // required
	Timeout         time.Duration // per-request deadline, default 30s
	ConnectTimeout  time.Duration // dial deadline, default 10s
	MaxConns        int           // pool-wide idle cap, default 100
	MaxConnsPerHost int           // per-host cap, default 10
	EnableCookies   bool          // cookie jar for session-issuing HTML sources
	VerifySSL       bool          // TLS certificate verification
	DisableBreaker  bool          // skip the circuit breaker (tests)
}

// DefaultConfig returns a Config with the standard defaults for the
// given User-Agent.
func DefaultConfig(userAgent string) Config {
	return Config{
		UserAgent:       userAgent,
		Timeout:         30 * time.Second,
		ConnectTimeout:  10 * time.Second,
		MaxConns:        100,
		MaxConnsPerHost: 10,
		VerifySSL:       true,
	}
}

// RequestOptions carries per-request overrides.
type RequestOptions struct {
	Params  map[string]string // query parameters appended to the URL
	Headers map[string]string
	Timeout time.Duration // overrides Config.Timeout when positive
}

// Client is a pooled HTTP client for one upstream. Safe for concurrent
// use; Close is idempotent.
type Client struct {
	cfg       Config
	http      *http.Client
	transport *http.Transport
	breaker   *gobreaker.CircuitBreaker
	closeOnce sync.Once
}

// errUpstreamStatus marks 429/5xx responses inside the breaker so they
// count as failures while the response still reaches the caller.
var errUpstreamStatus = errors.New("upstream returned failure status")

// New builds a Client. The User-Agent is required: providers in this
// corpus reject anonymous clients.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("fetch: user agent is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 100
	}
	if cfg.MaxConnsPerHost <= 0 {
		cfg.MaxConnsPerHost = 10
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		MaxIdleConns:          cfg.MaxConns,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if !cfg.VerifySSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	httpClient := &http.Client{Transport: transport}
	if cfg.EnableCookies {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("fetch: create cookie jar: %w", err)
		}
		httpClient.Jar = jar
	}

	c := &Client{cfg: cfg, http: httpClient, transport: transport}
	if !cfg.DisableBreaker {
		c.breaker = newBreaker()
	}
	return c, nil
}

func newBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "fetch",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 3 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("fetch: circuit breaker state change", "from", from.String(), "to", to.String())
		},
	})
}

// Get issues a GET and returns the typed response. Non-2xx statuses are
// returned in the Response, not as errors; transport failures come back
// as *ConnError or *TimeoutError.
func (c *Client) Get(ctx context.Context, rawurl string, opts *RequestOptions) (*Response, error) {
	return c.request(ctx, http.MethodGet, rawurl, nil, "", opts)
}

// Post issues a POST. A url.Values body is form-encoded, []byte is sent
// raw, anything else non-nil is JSON-encoded.
func (c *Client) Post(ctx context.Context, rawurl string, body any, opts *RequestOptions) (*Response, error) {
	var (
		payload     []byte
		contentType string
	)
	switch b := body.(type) {
	case nil:
	case url.Values:
		payload = []byte(b.Encode())
		contentType = "application/x-www-form-urlencoded"
	case []byte:
		payload = b
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("fetch: encode request body: %w", err)
		}
		payload = encoded
		contentType = "application/json"
	}
	return c.request(ctx, http.MethodPost, rawurl, payload, contentType, opts)
}

func (c *Client) request(ctx context.Context, method, rawurl string, body []byte, contentType string, opts *RequestOptions) (*Response, error) {
	rawurl, err := withParams(rawurl, opts)
	if err != nil {
		return nil, err
	}

	if c.breaker == nil {
		return c.do(ctx, method, rawurl, body, contentType, opts)
	}

	res, err := c.breaker.Execute(func() (any, error) {
		resp, err := c.do(ctx, method, rawurl, body, contentType, opts)
		if err != nil {
			return nil, err
		}
		if resp.IsRateLimited() || resp.IsServerError() {
			return resp, errUpstreamStatus
		}
		return resp, nil
	})
	if err != nil {
		if resp, ok := res.(*Response); ok && errors.Is(err, errUpstreamStatus) {
			return resp, nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &ConnError{URL: rawurl, Err: err}
		}
		return nil, err
	}
	return res.(*Response), nil
}

func (c *Client) do(ctx context.Context, method, rawurl string, body []byte, contentType string, opts *RequestOptions) (*Response, error) {
	timeout := c.cfg.Timeout
	if opts != nil && opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawurl, reader)
	if err != nil {
		return nil, fmt.Errorf("fetch: build request for %s: %w", rawurl, err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if opts != nil {
		for k, v := range opts.Headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classify(rawurl, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classify(rawurl, err)
	}

	return &Response{
		Status:      resp.StatusCode,
		Header:      resp.Header,
		URL:         rawurl,
		Body:        data,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

func withParams(rawurl string, opts *RequestOptions) (string, error) {
	if opts == nil || len(opts.Params) == 0 {
		return rawurl, nil
	}
	u, err := url.Parse(rawurl)
	if err != nil {
		return "", fmt.Errorf("fetch: parse url %s: %w", rawurl, err)
	}
	q := u.Query()
	for k, v := range opts.Params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// HealthCheck reports whether a GET on the URL yields a 2xx. Transport
// errors map to false, never to an error.
func (c *Client) HealthCheck(ctx context.Context, rawurl string) bool {
	resp, err := c.Get(ctx, rawurl, &RequestOptions{Timeout: 10 * time.Second})
	if err != nil {
		return false
	}
	return resp.IsSuccess()
}

// Close releases pooled connections. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.transport.CloseIdleConnections()
	})
}

// BaseJoin joins a base URL and a path, tolerating stray slashes.
func BaseJoin(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
