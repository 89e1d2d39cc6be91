package sources_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rinkdata/rink/internal/fetch"
	"github.com/rinkdata/rink/internal/ratelimit"
	"github.com/rinkdata/rink/internal/retry"
	"github.com/rinkdata/rink/internal/sources"
)

func testFetcher(t *testing.T, maxRetries int) *sources.Fetcher {
	t.Helper()

	cfg := fetch.DefaultConfig("rink-test/1.0")
	cfg.DisableBreaker = true
	client, err := fetch.New(cfg)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	retrier := retry.New(retry.Config{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
	})
	return sources.NewFetcher("test_source", client, ratelimit.New(1000), retrier)
}

func TestFetcher_Get_RetriesRateLimitThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := testFetcher(t, 3)
	resp, err := f.Get(context.Background(), "item", srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.EqualValues(t, 3, calls.Load())
	assert.Equal(t, 3, f.LastFetchAttempts())
	assert.Equal(t, len(`{"ok":true}`), f.LastFetchBytes())
}

func TestFetcher_Get_ExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := testFetcher(t, 2)
	_, err := f.Get(context.Background(), "item", srv.URL, nil)
	require.Error(t, err)

	var rerr *retry.Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 3, rerr.Attempts)
	assert.Equal(t, 3, f.LastFetchAttempts(), "failed fetches report their attempts too")
	assert.False(t, sources.IsCritical(err))
}

func TestFetcher_Get_ClientErrorIsTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := testFetcher(t, 3)
	_, err := f.Get(context.Background(), "item", srv.URL, nil)
	require.Error(t, err)

	var herr *fetch.HTTPError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, http.StatusNotFound, herr.Status)
	assert.EqualValues(t, 1, calls.Load(), "4xx must not retry")
}

func TestFetcher_Get_AuthFailureIsCritical(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := testFetcher(t, 3)
	_, err := f.Get(context.Background(), "item", srv.URL, nil)
	require.Error(t, err)
	assert.True(t, sources.IsCritical(err))
}

func TestFetcher_GetJSON_ParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	}))
	defer srv.Close()

	f := testFetcher(t, 0)
	var out map[string]any
	err := f.GetJSON(context.Background(), "item", srv.URL, nil, &out)
	require.Error(t, err)

	var perr *sources.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Snippet, "<html>")
}

func TestFetcher_Get_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	f := testFetcher(t, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.Get(ctx, "item", srv.URL, nil)
	require.Error(t, err)
}

func TestFetcher_HealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := testFetcher(t, 0)
	assert.True(t, f.HealthCheck(context.Background(), srv.URL))
	assert.True(t, f.HealthCheck(context.Background(), ""), "no URL means healthy")

	srv.Close()
	assert.False(t, f.HealthCheck(context.Background(), srv.URL))
}
