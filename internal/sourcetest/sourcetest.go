// Package sourcetest provides test doubles for adapter and coordinator
// tests: a chi-routed fake upstream and an in-memory EntityStore. Not
// imported by production code.
package sourcetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

// Upstream is a fake provider. Tests mount handlers on Router and point
// adapter base URLs at URL.
type Upstream struct {
	Server *httptest.Server
	Router chi.Router
}

// NewUpstream starts a fake upstream torn down with the test.
func NewUpstream(t *testing.T) *Upstream {
	t.Helper()
	r := chi.NewRouter()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &Upstream{Server: srv, Router: r}
}

// URL returns the upstream's base URL.
func (u *Upstream) URL() string { return u.Server.URL }

// JSON mounts a GET handler answering with an encoded body.
func (u *Upstream) JSON(pattern string, status int, body any) {
	u.Router.Get(pattern, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	})
}

// HTML mounts a GET handler answering with a raw HTML body.
func (u *Upstream) HTML(pattern string, status int, body string) {
	u.Router.Get(pattern, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

// Status mounts a GET handler answering with a bare status code.
func (u *Upstream) Status(pattern string, status int) {
	u.Router.Get(pattern, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
}
