// Package batch runs ingestion batches: one batch downloads one source
// for one season. The coordinator owns the background run goroutines, an
// in-memory registry of active batches for cancellation and inspection,
// and the hand-off of completed games to the validation worker.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rinkdata/rink/internal/domain"
	"github.com/rinkdata/rink/internal/sources"
	"github.com/rinkdata/rink/internal/sources/registry"
	"github.com/rinkdata/rink/internal/tracker"
)

// BatchStore is the persistence surface for batch rows. Implemented by
// *postgres.BatchStore.
type BatchStore interface {
	CreateBatch(ctx context.Context, sourceID int16, seasonID *int, metadata map[string]any) (*domain.Batch, error)
	SetItemsTotal(ctx context.Context, batchID int64, total int) error
	IncrementSuccess(ctx context.Context, batchID int64) error
	IncrementFailed(ctx context.Context, batchID int64) error
	IncrementSkipped(ctx context.Context, batchID int64) error
	FinishBatch(ctx context.Context, batchID int64, status domain.BatchStatus, errorMessage *string) (bool, error)
}

// AdapterSource resolves a source name to a fresh adapter plus its
// catalogue identity.
type AdapterSource interface {
	Resolve(name string) (sources.Adapter, int16, domain.SourceType, error)
}

// RegistryResolver is the production AdapterSource, backed by the closed
// source catalogue.
type RegistryResolver struct {
	Deps sources.Deps
}

func (r RegistryResolver) Resolve(name string) (sources.Adapter, int16, domain.SourceType, error) {
	d, err := registry.ForName(name)
	if err != nil {
		return nil, 0, "", err
	}
	a, err := d.Factory(r.Deps)
	if err != nil {
		return nil, 0, "", fmt.Errorf("construct %s adapter: %w", name, err)
	}
	return a, d.SourceID, d.Type, nil
}

// ValidationQueue accepts games whose ingestion just finished. EnqueueGame
// must not block; false means the queue was full and the game dropped.
type ValidationQueue interface {
	EnqueueGame(gameID int64, seasonID int, sourceType domain.SourceType) bool
}

// ActiveBatch is a point-in-time snapshot of one running batch.
type ActiveBatch struct {
	BatchID      int64      `json:"batch_id"`
	Source       string     `json:"source"`
	SeasonID     *int       `json:"season_id,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	ItemsTotal   int        `json:"items_total"`
	ItemsSuccess int        `json:"items_success"`
	ItemsFailed  int        `json:"items_failed"`
	ItemsSkipped int        `json:"items_skipped"`
}

type activeBatch struct {
	snapshot ActiveBatch
	cancel   context.CancelFunc
}

// Coordinator starts, tracks, and cancels ingestion batches.
type Coordinator struct {
	batches  BatchStore
	progress tracker.Store
	store    sources.EntityStore
	resolver AdapterSource
	validate ValidationQueue // optional
	onEvent  func(tracker.ProgressEvent)

	mu     sync.Mutex
	active map[int64]*activeBatch
	wg     sync.WaitGroup
}

// Options carries the coordinator's optional collaborators.
type Options struct {
	// Validate receives games from terminal batches. Nil disables the
	// hand-off.
	Validate ValidationQueue
	// OnProgress observes per-item tracker events. Nil disables.
	OnProgress func(tracker.ProgressEvent)
}

// New builds a Coordinator.
func New(batches BatchStore, progress tracker.Store, store sources.EntityStore, resolver AdapterSource, opts Options) *Coordinator {
	return &Coordinator{
		batches:  batches,
		progress: progress,
		store:    store,
		resolver: resolver,
		validate: opts.Validate,
		onEvent:  opts.OnProgress,
		active:   make(map[int64]*activeBatch),
	}
}

// StartBatch creates a batch row for (source, season) and dispatches the
// download to a background goroutine, returning the batch id immediately.
// An unreachable source aborts the start: no batch row is created.
// A season of zero records NULL, for sources whose items are not
// season-scoped.
func (c *Coordinator) StartBatch(ctx context.Context, sourceName string, season int, force bool) (int64, error) {
	adapter, sourceID, sourceType, err := c.resolver.Resolve(sourceName)
	if err != nil {
		return 0, err
	}
	if !adapter.HealthCheck(ctx) {
		return 0, fmt.Errorf("source %s failed health check", sourceName)
	}

	var seasonID *int
	if season > 0 {
		seasonID = &season
	}

	meta := map[string]any{"force": force}
	row, err := c.batches.CreateBatch(ctx, sourceID, seasonID, meta)
	if err != nil {
		return 0, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	ab := &activeBatch{
		snapshot: ActiveBatch{
			BatchID:   row.BatchID,
			Source:    sourceName,
			SeasonID:  seasonID,
			StartedAt: row.StartedAt,
		},
		cancel: cancel,
	}
	c.mu.Lock()
	c.active[row.BatchID] = ab
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run(runCtx, adapter, sourceID, sourceType, sourceName, row.BatchID, season, seasonID, force)

	slog.Info("batch started",
		"batch_id", row.BatchID, "source", sourceName, "season", season, "force", force)
	return row.BatchID, nil
}

// CancelBatch requests cooperative cancellation of an active batch.
// Returns false when the batch is not active (unknown or already
// terminal). The in-flight item finishes; the run goroutine records the
// cancelled status.
func (c *Coordinator) CancelBatch(batchID int64) bool {
	c.mu.Lock()
	ab, ok := c.active[batchID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	ab.cancel()
	slog.Info("batch cancellation requested", "batch_id", batchID)
	return true
}

// ListActive snapshots the running batches, ordered by batch id.
func (c *Coordinator) ListActive() []ActiveBatch {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ActiveBatch, 0, len(c.active))
	for _, ab := range c.active {
		out = append(out, ab.snapshot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BatchID < out[j].BatchID })
	return out
}

// Shutdown cancels every active batch and waits for the run goroutines to
// record their terminal status, or for ctx to expire.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	for _, ab := range c.active {
		ab.cancel()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) run(ctx context.Context, adapter sources.Adapter, sourceID int16, sourceType domain.SourceType, sourceName string, batchID int64, season int, seasonID *int, force bool) {
	defer c.wg.Done()
	// Store writes outlive the run context so a cancelled batch still
	// records its terminal status.
	storeCtx := context.Background()

	tr := tracker.New(c.progress, sourceID, sourceName, seasonID, &batchID, c.onEvent)
	if err := tr.Load(ctx); err != nil {
		c.finish(storeCtx, batchID, domain.BatchStatusFailed, err, nil, sourceType, seasonID)
		return
	}

	total, results, err := sources.DownloadSeason(ctx, adapter, tr, c.store, season, force)
	if err != nil {
		status := domain.BatchStatusFailed
		if ctx.Err() != nil {
			status = domain.BatchStatusCancelled
		}
		c.finish(storeCtx, batchID, status, err, nil, sourceType, seasonID)
		return
	}
	if err := c.batches.SetItemsTotal(storeCtx, batchID, total); err != nil {
		slog.Error("set items total", "batch_id", batchID, "error", err)
	}
	c.updateSnapshot(batchID, func(s *ActiveBatch) { s.ItemsTotal = total })

	var (
		criticalErr error
		landedGames = make(map[int64]bool)
	)
	for res := range results {
		switch res.Status {
		case domain.ProgressSuccess:
			if err := c.batches.IncrementSuccess(storeCtx, batchID); err != nil {
				slog.Error("increment success", "batch_id", batchID, "error", err)
			}
			c.updateSnapshot(batchID, func(s *ActiveBatch) { s.ItemsSuccess++ })
			if gameID, ok := gameIDFromItemKey(res.ItemKey); ok {
				landedGames[gameID] = true
			}
		case domain.ProgressSkipped:
			if err := c.batches.IncrementSkipped(storeCtx, batchID); err != nil {
				slog.Error("increment skipped", "batch_id", batchID, "error", err)
			}
			c.updateSnapshot(batchID, func(s *ActiveBatch) { s.ItemsSkipped++ })
		default:
			if err := c.batches.IncrementFailed(storeCtx, batchID); err != nil {
				slog.Error("increment failed", "batch_id", batchID, "error", err)
			}
			c.updateSnapshot(batchID, func(s *ActiveBatch) { s.ItemsFailed++ })
			slog.Warn("item failed",
				"batch_id", batchID, "source", sourceName, "item", res.ItemKey, "error", res.Err)
			if res.Critical {
				criticalErr = res.Err
			}
		}
	}

	status := domain.BatchStatusCompleted
	var cause error
	switch {
	case ctx.Err() != nil:
		status = domain.BatchStatusCancelled
	case criticalErr != nil:
		status = domain.BatchStatusFailed
		cause = criticalErr
	}
	c.finish(storeCtx, batchID, status, cause, landedGames, sourceType, seasonID)
}

// finish records the terminal transition, drops the batch from the active
// registry, and hands landed games to the validation queue.
func (c *Coordinator) finish(ctx context.Context, batchID int64, status domain.BatchStatus, cause error, landedGames map[int64]bool, sourceType domain.SourceType, seasonID *int) {
	var errMsg *string
	if cause != nil {
		msg := cause.Error()
		errMsg = &msg
	}
	if _, err := c.batches.FinishBatch(ctx, batchID, status, errMsg); err != nil {
		slog.Error("finish batch", "batch_id", batchID, "status", status, "error", err)
	}

	c.mu.Lock()
	delete(c.active, batchID)
	c.mu.Unlock()

	slog.Info("batch finished", "batch_id", batchID, "status", status, "games", len(landedGames))

	// Only a completed batch feeds validation. Games landed before a
	// cancel or a critical failure stay out of the queue; the next
	// completed run picks them up.
	if c.validate == nil || status != domain.BatchStatusCompleted || seasonID == nil || len(landedGames) == 0 {
		return
	}
	ids := make([]int64, 0, len(landedGames))
	for id := range landedGames {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, gameID := range ids {
		if !c.validate.EnqueueGame(gameID, *seasonID, sourceType) {
			slog.Warn("validation queue full, dropping game",
				"batch_id", batchID, "game_id", gameID)
		}
	}
}

func (c *Coordinator) updateSnapshot(batchID int64, fn func(*ActiveBatch)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ab, ok := c.active[batchID]; ok {
		fn(&ab.snapshot)
	}
}

// gameIDFromItemKey recovers a game id from game-keyed items: plain ids
// ("2024020500") and report keys ("ES/2024020500"). Team slugs, dates,
// and player ids return false.
func gameIDFromItemKey(key string) (int64, bool) {
	if i := strings.IndexByte(key, '/'); i >= 0 {
		key = key[i+1:]
	}
	id, err := strconv.ParseInt(key, 10, 64)
	if err != nil || !domain.ValidGameID(id) {
		return 0, false
	}
	return id, true
}
