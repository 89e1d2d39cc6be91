package fetch

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Response is the typed result of one request. Body is fully read and
// the connection returned to the pool before Response is handed out.
type Response struct {
	Status      int
	Header      http.Header
	URL         string
	Body        []byte
	ContentType string
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

func (r *Response) IsSuccess() bool     { return r.Status >= 200 && r.Status <= 299 }
func (r *Response) IsRateLimited() bool { return r.Status == http.StatusTooManyRequests }
func (r *Response) IsServerError() bool { return r.Status >= 500 && r.Status <= 599 }
func (r *Response) IsClientError() bool { return r.Status >= 400 && r.Status <= 499 }

// RetryAfter parses the Retry-After header into seconds. Both the
// delta-seconds and HTTP-date forms are accepted; nil when absent or
// unparsable. Dates in the past yield zero, never a negative wait.
func (r *Response) RetryAfter() *float64 {
	v := r.Header.Get("Retry-After")
	if v == "" {
		return nil
	}
	if secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
		if secs < 0 {
			secs = 0
		}
		return &secs
	}
	if t, err := http.ParseTime(v); err == nil {
		secs := time.Until(t).Seconds()
		if secs < 0 {
			secs = 0
		}
		return &secs
	}
	return nil
}

// AsError promotes a non-success response to an *HTTPError carrying the
// status, Retry-After hint, and a short body snippet. Returns nil for
// successful responses.
func (r *Response) AsError() error {
	if r.IsSuccess() {
		return nil
	}
	const snippetLen = 200
	snippet := strings.TrimSpace(r.Text())
	if len(snippet) > snippetLen {
		snippet = snippet[:snippetLen]
	}
	return &HTTPError{
		URL:        r.URL,
		Status:     r.Status,
		RetryAfter: r.RetryAfter(),
		Snippet:    snippet,
	}
}
