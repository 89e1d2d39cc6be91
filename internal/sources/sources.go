// Package sources defines the adapter framework every data provider
// plugs into: the Adapter interface, the season download driver, and the
// shared Fetcher that paces, retries, and classifies HTTP work. Concrete
// providers live in the subpackages (nhlapi, htmlreport, scrape) and are
// catalogued by the registry subpackage.
package sources

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rinkdata/rink/internal/cache"
	"github.com/rinkdata/rink/internal/config"
	"github.com/rinkdata/rink/internal/domain"
	"github.com/rinkdata/rink/internal/fetch"
)

// Adapter is one data provider. Adapters are constructed per batch and
// used by a single goroutine; they do not need to be concurrency-safe.
type Adapter interface {
	// SourceName returns the stable catalogue name (matches data_sources).
	SourceName() string

	// EnumerateItems streams the item keys for one season in download
	// order. fn returning an error stops enumeration and propagates.
	EnumerateItems(ctx context.Context, season int, fn func(itemKey string) error) error

	// FetchOne downloads and parses a single item.
	FetchOne(ctx context.Context, itemKey string) (domain.Parsed, error)

	// Persist upserts a parsed entity by its natural key. Returns rows
	// affected.
	Persist(ctx context.Context, store EntityStore, parsed domain.Parsed) (int64, error)

	// HealthCheck reports whether the upstream answers. Adapters with no
	// configured URL return true.
	HealthCheck(ctx context.Context) bool
}

// EntityStore is the persistence surface adapters write to. Implemented
// by *postgres.GameStore; coordinator and worker tests substitute
// in-memory fakes.
type EntityStore interface {
	UpsertBoxscore(ctx context.Context, box *domain.GameBoxscore) (int64, error)
	UpsertPlayByPlay(ctx context.Context, pbp *domain.GamePlayByPlay) (int64, error)
	UpsertShiftChart(ctx context.Context, chart *domain.ShiftChart) (int64, error)
	UpsertReport(ctx context.Context, gameID int64, seasonID int, code domain.ReportCode, report any) (int64, error)
	UpsertScheduleGames(ctx context.Context, games []domain.ScheduleGame) (int64, error)
	UpsertStandings(ctx context.Context, snap *domain.StandingsSnapshot) (int64, error)
	UpsertRoster(ctx context.Context, roster *domain.TeamRoster) (int64, error)
	UpsertPlayerGameLog(ctx context.Context, log *domain.PlayerGameLog) (int64, error)
	UpsertTeamLines(ctx context.Context, lines *domain.TeamLines) (int64, error)
	UpsertInjuryReport(ctx context.Context, report *domain.InjuryReport) (int64, error)
	UpsertStartingGoalies(ctx context.Context, starts *domain.StartingGoalies) (int64, error)
	ScheduledGameIDs(ctx context.Context, seasonID int, gameTypes []int) ([]int64, error)
}

// ProgressTracker is the per-run progress surface the download driver
// writes through. Implemented by *tracker.Tracker.
type ProgressTracker interface {
	ShouldDownload(itemKey string) bool
	Start(ctx context.Context, itemKey string) error
	RecordRetries(ctx context.Context, itemKey string, extra int) error
	Complete(ctx context.Context, itemKey string, responseSizeBytes, responseTimeMs *int) error
	Fail(ctx context.Context, itemKey string, errorMessage string) error
	Skip(ctx context.Context, itemKey string, reason *string) error
}

// Archive preserves raw payloads for reprocessing. A nil Archive in Deps
// disables archiving.
type Archive interface {
	Put(ctx context.Context, source string, season int, itemKey string, data []byte) error
}

// Deps carries everything adapter factories need. Clients are injected
// and shared across batches; adapters must not close them.
type Deps struct {
	Config       *config.Config
	Store        EntityStore
	Archive      Archive
	APIClient    *fetch.Client
	HTMLClient   *fetch.Client
	ScrapeClient *fetch.Client

	// Rosters memoizes team rosters across adapter instances, keyed
	// "ABBREV/season". Optional.
	Rosters *cache.Cache[string, *domain.TeamRoster]
}

// ItemResult reports the outcome of one item in a download stream.
type ItemResult struct {
	ItemKey  string
	Status   domain.ProgressStatus // success, failed, or skipped
	Rows     int64
	Err      error
	Critical bool // a failure that terminated the stream
	Elapsed  time.Duration
}

// CollectItems drains an adapter's enumeration into a slice, so the
// caller knows the item total before downloading.
func CollectItems(ctx context.Context, a Adapter, season int) ([]string, error) {
	var keys []string
	err := a.EnumerateItems(ctx, season, func(itemKey string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		keys = append(keys, itemKey)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: enumerate season %d: %w", a.SourceName(), season, err)
	}
	return keys, nil
}

// DownloadSeason enumerates a season and streams one ItemResult per item.
// It returns the planned item count alongside the stream. The stream is
// driven by a single goroutine and closed when the season is exhausted,
// the context is cancelled, or a critical failure ends the run early.
func DownloadSeason(ctx context.Context, a Adapter, tr ProgressTracker, store EntityStore, season int, force bool) (int, <-chan ItemResult, error) {
	keys, err := CollectItems(ctx, a, season)
	if err != nil {
		return 0, nil, err
	}
	return len(keys), DownloadItems(ctx, a, tr, store, keys, force), nil
}

// DownloadItems runs the per-item pipeline over the given keys in order.
// Per item: skip when the tracker says the item is already landed (unless
// force), otherwise Start → FetchOne → Persist → Complete, failing the
// single item on any error. A critical error (auth-class) emits its
// failure and ends the stream.
func DownloadItems(ctx context.Context, a Adapter, tr ProgressTracker, store EntityStore, keys []string, force bool) <-chan ItemResult {
	results := make(chan ItemResult)

	go func() {
		defer close(results)
		for _, key := range keys {
			if ctx.Err() != nil {
				return
			}
			res := downloadOne(ctx, a, tr, store, key, force)
			select {
			case results <- res:
			case <-ctx.Done():
				return
			}
			if res.Critical {
				return
			}
		}
	}()

	return results
}

func downloadOne(ctx context.Context, a Adapter, tr ProgressTracker, store EntityStore, key string, force bool) ItemResult {
	if !force && !tr.ShouldDownload(key) {
		reason := "already downloaded"
		if err := tr.Skip(ctx, key, &reason); err != nil {
			return ItemResult{ItemKey: key, Status: domain.ProgressFailed, Err: err}
		}
		return ItemResult{ItemKey: key, Status: domain.ProgressSkipped}
	}

	if err := tr.Start(ctx, key); err != nil {
		return ItemResult{ItemKey: key, Status: domain.ProgressFailed, Err: err}
	}

	started := time.Now()
	parsed, err := a.FetchOne(ctx, key)
	elapsed := time.Since(started)

	// Retries happen inside the fetch; book them so the progress row
	// counts requests actually sent, not items started.
	if counter, ok := a.(interface{ LastFetchAttempts() int }); ok {
		if extra := counter.LastFetchAttempts() - 1; extra > 0 {
			if rerr := tr.RecordRetries(ctx, key, extra); rerr != nil {
				return ItemResult{ItemKey: key, Status: domain.ProgressFailed, Err: rerr, Elapsed: elapsed}
			}
		}
	}

	if err != nil {
		_ = tr.Fail(ctx, key, err.Error())
		return ItemResult{
			ItemKey:  key,
			Status:   domain.ProgressFailed,
			Err:      err,
			Critical: IsCritical(err),
			Elapsed:  elapsed,
		}
	}

	rows, err := a.Persist(ctx, store, parsed)
	if err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
		_ = tr.Fail(ctx, key, err.Error())
		return ItemResult{ItemKey: key, Status: domain.ProgressFailed, Err: err, Elapsed: elapsed}
	}

	elapsedMs := int(elapsed.Milliseconds())
	var sizeBytes *int
	if sizer, ok := a.(interface{ LastFetchBytes() int }); ok {
		n := sizer.LastFetchBytes()
		sizeBytes = &n
	}
	if err := tr.Complete(ctx, key, sizeBytes, &elapsedMs); err != nil {
		return ItemResult{ItemKey: key, Status: domain.ProgressFailed, Err: err, Elapsed: elapsed}
	}
	return ItemResult{ItemKey: key, Status: domain.ProgressSuccess, Rows: rows, Elapsed: elapsed}
}
