package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rinkdata/rink/internal/domain"
	"github.com/rinkdata/rink/internal/sources"
	"github.com/rinkdata/rink/internal/sourcetest"
)

// memBatchStore is an in-memory BatchStore recording every transition.
type memBatchStore struct {
	mu      sync.Mutex
	nextID  int64
	batches map[int64]*domain.Batch
}

func newMemBatchStore() *memBatchStore {
	return &memBatchStore{batches: make(map[int64]*domain.Batch)}
}

func (s *memBatchStore) CreateBatch(ctx context.Context, sourceID int16, seasonID *int, metadata map[string]any) (*domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	b := &domain.Batch{
		BatchID:   s.nextID,
		SourceID:  sourceID,
		SeasonID:  seasonID,
		Status:    domain.BatchStatusRunning,
		StartedAt: time.Now(),
		Metadata:  metadata,
	}
	s.batches[b.BatchID] = b
	return b, nil
}

func (s *memBatchStore) get(batchID int64) domain.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.batches[batchID]
}

func (s *memBatchStore) SetItemsTotal(ctx context.Context, batchID int64, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[batchID].ItemsTotal = &total
	return nil
}

func (s *memBatchStore) IncrementSuccess(ctx context.Context, batchID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[batchID].ItemsSuccess++
	return nil
}

func (s *memBatchStore) IncrementFailed(ctx context.Context, batchID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[batchID].ItemsFailed++
	return nil
}

func (s *memBatchStore) IncrementSkipped(ctx context.Context, batchID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[batchID].ItemsSkipped++
	return nil
}

func (s *memBatchStore) FinishBatch(ctx context.Context, batchID int64, status domain.BatchStatus, errorMessage *string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.batches[batchID]
	if b.Status != domain.BatchStatusRunning {
		return false, nil
	}
	now := time.Now()
	b.Status = status
	b.CompletedAt = &now
	b.ErrorMessage = errorMessage
	return true, nil
}

// memProgressStore is a minimal tracker.Store.
type memProgressStore struct {
	mu      sync.Mutex
	nextID  int64
	entries map[int64]*domain.ProgressEntry
}

func newMemProgressStore() *memProgressStore {
	return &memProgressStore{entries: make(map[int64]*domain.ProgressEntry)}
}

// seed inserts a landed entry so resume behaviour can be exercised.
func (s *memProgressStore) seed(sourceID int16, itemKey string, seasonID *int, status domain.ProgressStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.entries[s.nextID] = &domain.ProgressEntry{
		ProgressID: s.nextID, SourceID: sourceID, SeasonID: seasonID,
		ItemKey: itemKey, Status: status, Attempts: 1,
	}
}

func (s *memProgressStore) UpsertProgress(ctx context.Context, sourceID int16, itemKey string, seasonID *int, batchID *int64, status domain.ProgressStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		if e.SourceID == sourceID && e.ItemKey == itemKey {
			e.BatchID = batchID
			return id, nil
		}
	}
	s.nextID++
	s.entries[s.nextID] = &domain.ProgressEntry{
		ProgressID: s.nextID, SourceID: sourceID, SeasonID: seasonID,
		ItemKey: itemKey, Status: status, BatchID: batchID,
	}
	return s.nextID, nil
}

func (s *memProgressStore) GetAll(ctx context.Context, sourceID int16, seasonID *int) ([]domain.ProgressEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ProgressEntry
	for _, e := range s.entries {
		if e.SourceID == sourceID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *memProgressStore) IncrementAttempts(ctx context.Context, progressID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[progressID]
	e.Attempts++
	e.Status = domain.ProgressInProgress
	return e.Attempts, nil
}

func (s *memProgressStore) MarkSuccess(ctx context.Context, progressID int64, sizeBytes, timeMs *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[progressID].Status = domain.ProgressSuccess
	return nil
}

func (s *memProgressStore) MarkFailed(ctx context.Context, progressID int64, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[progressID].Status = domain.ProgressFailed
	return nil
}

func (s *memProgressStore) MarkSkipped(ctx context.Context, progressID int64, reason *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[progressID].Status = domain.ProgressSkipped
	return nil
}

// fakeAdapter yields fixed keys; fetch behaviour is scripted per key.
type fakeAdapter struct {
	name     string
	keys     []string
	fetchErr map[string]error
	healthy  bool
	slow     chan struct{} // when set, FetchOne blocks until closed or ctx done
	slowKey  string        // when set, only this key blocks

	mu      sync.Mutex
	fetched []string
}

func (f *fakeAdapter) SourceName() string { return f.name }

func (f *fakeAdapter) EnumerateItems(ctx context.Context, season int, fn func(string) error) error {
	for _, k := range f.keys {
		if err := fn(k); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeAdapter) FetchOne(ctx context.Context, itemKey string) (domain.Parsed, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, itemKey)
	f.mu.Unlock()
	if f.slow != nil && (f.slowKey == "" || f.slowKey == itemKey) {
		select {
		case <-f.slow:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.fetchErr[itemKey]; err != nil {
		return nil, err
	}
	return &domain.StandingsSnapshot{SeasonID: 20242025}, nil
}

func (f *fakeAdapter) Persist(ctx context.Context, store sources.EntityStore, parsed domain.Parsed) (int64, error) {
	return 1, nil
}

func (f *fakeAdapter) HealthCheck(ctx context.Context) bool { return f.healthy }

func (f *fakeAdapter) fetchedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

// fakeResolver serves one adapter under one name.
type fakeResolver struct {
	adapter    *fakeAdapter
	sourceID   int16
	sourceType domain.SourceType
}

func (r fakeResolver) Resolve(name string) (sources.Adapter, int16, domain.SourceType, error) {
	if name != r.adapter.name {
		return nil, 0, "", errors.New("unknown source " + name)
	}
	return r.adapter, r.sourceID, r.sourceType, nil
}

type recordingQueue struct {
	mu    sync.Mutex
	games []int64
	full  bool
}

func (q *recordingQueue) EnqueueGame(gameID int64, seasonID int, sourceType domain.SourceType) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full {
		return false
	}
	q.games = append(q.games, gameID)
	return true
}

func (q *recordingQueue) enqueued() []int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]int64(nil), q.games...)
}

func waitTerminal(t *testing.T, store *memBatchStore, batchID int64) domain.Batch {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if b := store.get(batchID); b.Status.Terminal() {
			return b
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("batch %d never reached a terminal status", batchID)
	return domain.Batch{}
}

func newTestCoordinator(adapter *fakeAdapter, queue ValidationQueue) (*Coordinator, *memBatchStore, *memProgressStore) {
	batches := newMemBatchStore()
	progress := newMemProgressStore()
	c := New(batches, progress, sourcetest.NewStore(),
		fakeResolver{adapter: adapter, sourceID: 1, sourceType: domain.SourceTypeAPIJSON},
		Options{Validate: queue})
	return c, batches, progress
}

func TestStartBatch_AllItemsSucceed(t *testing.T) {
	adapter := &fakeAdapter{
		name: "nhl_boxscore", healthy: true,
		keys: []string{"2024020500", "2024020501"},
	}
	queue := &recordingQueue{}
	c, batches, _ := newTestCoordinator(adapter, queue)

	batchID, err := c.StartBatch(context.Background(), "nhl_boxscore", 20242025, false)
	require.NoError(t, err)

	b := waitTerminal(t, batches, batchID)
	assert.Equal(t, domain.BatchStatusCompleted, b.Status)
	require.NotNil(t, b.ItemsTotal)
	assert.Equal(t, 2, *b.ItemsTotal)
	assert.Equal(t, 2, b.ItemsSuccess)
	assert.Zero(t, b.ItemsFailed)

	// Landed games flow to validation in order.
	assert.Equal(t, []int64{2024020500, 2024020501}, queue.enqueued())
	assert.Empty(t, c.ListActive())
}

func TestStartBatch_ResumeSkipsLandedItems(t *testing.T) {
	adapter := &fakeAdapter{
		name: "nhl_boxscore", healthy: true,
		keys: []string{"2024020500", "2024020501", "2024020502"},
	}
	c, batches, progress := newTestCoordinator(adapter, nil)
	season := 20242025
	progress.seed(1, "2024020500", &season, domain.ProgressSuccess)

	batchID, err := c.StartBatch(context.Background(), "nhl_boxscore", season, false)
	require.NoError(t, err)

	b := waitTerminal(t, batches, batchID)
	assert.Equal(t, domain.BatchStatusCompleted, b.Status)
	assert.Equal(t, 2, b.ItemsSuccess)
	assert.Equal(t, 1, b.ItemsSkipped)
	assert.NotContains(t, adapter.fetchedKeys(), "2024020500")
}

func TestStartBatch_ForceRedownloadsLandedItems(t *testing.T) {
	adapter := &fakeAdapter{
		name: "nhl_boxscore", healthy: true,
		keys: []string{"2024020500", "2024020501"},
	}
	c, batches, progress := newTestCoordinator(adapter, nil)
	season := 20242025
	progress.seed(1, "2024020500", &season, domain.ProgressSuccess)

	batchID, err := c.StartBatch(context.Background(), "nhl_boxscore", season, true)
	require.NoError(t, err)

	b := waitTerminal(t, batches, batchID)
	assert.Equal(t, 2, b.ItemsSuccess)
	assert.Zero(t, b.ItemsSkipped)
	assert.Contains(t, adapter.fetchedKeys(), "2024020500")
}

func TestStartBatch_EmptySeasonCompletesWithZeroCounters(t *testing.T) {
	adapter := &fakeAdapter{name: "nhl_boxscore", healthy: true}
	c, batches, _ := newTestCoordinator(adapter, nil)

	batchID, err := c.StartBatch(context.Background(), "nhl_boxscore", 20242025, false)
	require.NoError(t, err)

	b := waitTerminal(t, batches, batchID)
	assert.Equal(t, domain.BatchStatusCompleted, b.Status)
	require.NotNil(t, b.ItemsTotal)
	assert.Zero(t, *b.ItemsTotal)
	assert.Zero(t, b.ItemsSuccess)
}

func TestStartBatch_UnknownSource(t *testing.T) {
	adapter := &fakeAdapter{name: "nhl_boxscore", healthy: true}
	c, batches, _ := newTestCoordinator(adapter, nil)

	_, err := c.StartBatch(context.Background(), "nhl_draft", 20242025, false)
	assert.ErrorContains(t, err, "unknown source")
	assert.Empty(t, batches.batches)
}

func TestStartBatch_HealthCheckFailureAborts(t *testing.T) {
	adapter := &fakeAdapter{name: "nhl_boxscore", healthy: false, keys: []string{"2024020500"}}
	c, batches, _ := newTestCoordinator(adapter, nil)

	_, err := c.StartBatch(context.Background(), "nhl_boxscore", 20242025, false)
	assert.ErrorContains(t, err, "health check")
	assert.Empty(t, batches.batches, "no batch row on aborted start")
	assert.Empty(t, adapter.fetchedKeys())
}

func TestStartBatch_ItemFailureContinues(t *testing.T) {
	adapter := &fakeAdapter{
		name: "nhl_boxscore", healthy: true,
		keys:     []string{"2024020500", "2024020501", "2024020502"},
		fetchErr: map[string]error{"2024020501": errors.New("boom")},
	}
	queue := &recordingQueue{}
	c, batches, _ := newTestCoordinator(adapter, queue)

	batchID, err := c.StartBatch(context.Background(), "nhl_boxscore", 20242025, false)
	require.NoError(t, err)

	b := waitTerminal(t, batches, batchID)
	assert.Equal(t, domain.BatchStatusCompleted, b.Status)
	assert.Equal(t, 2, b.ItemsSuccess)
	assert.Equal(t, 1, b.ItemsFailed)
	assert.Equal(t, []int64{2024020500, 2024020502}, queue.enqueued())
}

func TestStartBatch_CriticalFailureFailsBatch(t *testing.T) {
	adapter := &fakeAdapter{
		name: "nhl_boxscore", healthy: true,
		keys: []string{"2024020500", "2024020501", "2024020502"},
		fetchErr: map[string]error{
			"2024020501": &sources.CriticalError{Err: errors.New("403 forbidden")},
		},
	}
	c, batches, _ := newTestCoordinator(adapter, nil)

	batchID, err := c.StartBatch(context.Background(), "nhl_boxscore", 20242025, false)
	require.NoError(t, err)

	b := waitTerminal(t, batches, batchID)
	assert.Equal(t, domain.BatchStatusFailed, b.Status)
	require.NotNil(t, b.ErrorMessage)
	assert.Contains(t, *b.ErrorMessage, "403")
	// The third item was never attempted.
	assert.NotContains(t, adapter.fetchedKeys(), "2024020502")
}

func TestCancelBatch_StopsNewWorkAndRecordsCancelled(t *testing.T) {
	adapter := &fakeAdapter{
		name: "nhl_boxscore", healthy: true,
		keys:    []string{"2024020500", "2024020501", "2024020502"},
		slow:    make(chan struct{}),
		slowKey: "2024020501",
	}
	queue := &recordingQueue{}
	c, batches, _ := newTestCoordinator(adapter, queue)

	batchID, err := c.StartBatch(context.Background(), "nhl_boxscore", 20242025, false)
	require.NoError(t, err)

	// The first item lands; cancel while the second is in flight.
	require.Eventually(t, func() bool { return len(adapter.fetchedKeys()) == 2 },
		5*time.Second, 5*time.Millisecond)
	require.True(t, c.CancelBatch(batchID))
	close(adapter.slow)

	b := waitTerminal(t, batches, batchID)
	assert.Equal(t, domain.BatchStatusCancelled, b.Status)
	assert.Less(t, len(adapter.fetchedKeys()), 3)
	assert.GreaterOrEqual(t, b.ItemsSuccess, 1)

	// Games that landed before the cancel must not reach validation.
	assert.Empty(t, queue.enqueued())

	// Cancelling again reports not active.
	assert.False(t, c.CancelBatch(batchID))
}

func TestListActive_SnapshotsRunningBatch(t *testing.T) {
	adapter := &fakeAdapter{
		name: "nhl_boxscore", healthy: true,
		keys: []string{"2024020500"},
		slow: make(chan struct{}),
	}
	c, batches, _ := newTestCoordinator(adapter, nil)

	batchID, err := c.StartBatch(context.Background(), "nhl_boxscore", 20242025, false)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		active := c.ListActive()
		return len(active) == 1 && active[0].ItemsTotal == 1
	}, 5*time.Second, 5*time.Millisecond)

	active := c.ListActive()
	assert.Equal(t, batchID, active[0].BatchID)
	assert.Equal(t, "nhl_boxscore", active[0].Source)

	close(adapter.slow)
	waitTerminal(t, batches, batchID)
	assert.Empty(t, c.ListActive())
}

func TestShutdown_CancelsActiveBatches(t *testing.T) {
	adapter := &fakeAdapter{
		name: "nhl_boxscore", healthy: true,
		keys: []string{"2024020500", "2024020501"},
		slow: make(chan struct{}),
	}
	c, batches, _ := newTestCoordinator(adapter, nil)

	batchID, err := c.StartBatch(context.Background(), "nhl_boxscore", 20242025, false)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(adapter.fetchedKeys()) == 1 },
		5*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Shutdown(ctx))

	b := batches.get(batchID)
	assert.Equal(t, domain.BatchStatusCancelled, b.Status)
}

func TestGameIDFromItemKey(t *testing.T) {
	id, ok := gameIDFromItemKey("2024020500")
	require.True(t, ok)
	assert.Equal(t, int64(2024020500), id)

	id, ok = gameIDFromItemKey("ES/2024020500")
	require.True(t, ok)
	assert.Equal(t, int64(2024020500), id)

	for _, key := range []string{"colorado-avalanche", "2024-12-15", "now", "8477492"} {
		_, ok := gameIDFromItemKey(key)
		assert.False(t, ok, "key %q", key)
	}
}
