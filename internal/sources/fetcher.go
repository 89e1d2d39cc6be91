package sources

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rinkdata/rink/internal/fetch"
	"github.com/rinkdata/rink/internal/ratelimit"
	"github.com/rinkdata/rink/internal/retry"
)

// Fetcher is the download spine shared by every adapter: rate limit,
// request, promote failure statuses, retry. One Fetcher per adapter, used
// by one goroutine at a time (items within a batch run sequentially).
type Fetcher struct {
	source       string
	client       *fetch.Client
	limiter      *ratelimit.Limiter
	retrier      *retry.Executor
	archive      Archive
	ownClient    bool
	lastBytes    int
	lastAttempts int
}

// NewFetcher builds a Fetcher around an injected client. The client is
// shared infrastructure and is not closed by Close.
func NewFetcher(source string, client *fetch.Client, limiter *ratelimit.Limiter, retrier *retry.Executor) *Fetcher {
	return &Fetcher{source: source, client: client, limiter: limiter, retrier: retrier}
}

// OwnClient marks the client as owned by this Fetcher, so Close releases
// it. Used when an adapter constructs its own client.
func (f *Fetcher) OwnClient() *Fetcher {
	f.ownClient = true
	return f
}

// WithArchive attaches a raw-payload archive.
func (f *Fetcher) WithArchive(a Archive) *Fetcher {
	f.archive = a
	return f
}

// Source returns the catalogue name this Fetcher downloads for.
func (f *Fetcher) Source() string { return f.source }

// Get performs a paced, retried GET and returns the successful response.
// 429/5xx and transport failures cycle through the retry loop; other
// non-2xx statuses surface as a terminal *fetch.HTTPError, with 401/403
// additionally wrapped in *CriticalError.
func (f *Fetcher) Get(ctx context.Context, op, url string, opts *fetch.RequestOptions) (*fetch.Response, error) {
	var (
		resp     *fetch.Response
		attempts int
	)
	err := f.retrier.Do(ctx, op, f.source, func(ctx context.Context) error {
		attempts++
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}
		r, err := f.client.Get(ctx, url, opts)
		if err != nil {
			return err
		}
		if aerr := r.AsError(); aerr != nil {
			return aerr
		}
		resp = r
		return nil
	})
	f.lastAttempts = attempts
	if err != nil {
		var herr *fetch.HTTPError
		if errors.As(err, &herr) &&
			(herr.Status == http.StatusUnauthorized || herr.Status == http.StatusForbidden) {
			return nil, &CriticalError{Err: err}
		}
		return nil, err
	}
	f.lastBytes = len(resp.Body)
	return resp, nil
}

// GetJSON performs Get and decodes the body. Decode failures become
// *ParseError.
func (f *Fetcher) GetJSON(ctx context.Context, op, url string, opts *fetch.RequestOptions, v any) error {
	resp, err := f.Get(ctx, op, url, opts)
	if err != nil {
		return err
	}
	if err := resp.JSON(v); err != nil {
		return NewParseError(f.source, op, "invalid JSON: "+err.Error(), resp.Body)
	}
	return nil
}

// LastFetchBytes returns the body size of the most recent successful Get.
func (f *Fetcher) LastFetchBytes() int { return f.lastBytes }

// LastFetchAttempts returns the number of requests the most recent Get
// issued: one plus any retries, whether or not it ultimately succeeded.
func (f *Fetcher) LastFetchAttempts() int { return f.lastAttempts }

// ArchiveRaw preserves a raw payload, best-effort. Archiving failures are
// logged and swallowed: the parse already succeeded and the item must not
// fail over its audit copy.
func (f *Fetcher) ArchiveRaw(ctx context.Context, season int, itemKey string, data []byte) {
	if f.archive == nil || len(data) == 0 {
		return
	}
	if err := f.archive.Put(ctx, f.source, season, itemKey, data); err != nil {
		slog.Warn("sources: archive write failed",
			"source", f.source, "item", itemKey, "error", err)
	}
}

// HealthCheck probes a URL through the underlying client. An empty URL
// reports healthy.
func (f *Fetcher) HealthCheck(ctx context.Context, url string) bool {
	if url == "" {
		return true
	}
	return f.client.HealthCheck(ctx, url)
}

// Close releases an owned client. Safe to call on every exit path.
func (f *Fetcher) Close() {
	if f.ownClient && f.client != nil {
		f.client.Close()
	}
}
