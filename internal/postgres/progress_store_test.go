package postgres_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rinkdata/rink/internal/domain"
	"github.com/rinkdata/rink/internal/postgres"
)

func intp(n int) *int             { return &n }
func strp(s string) *string       { return &s }
func float64p(f float64) *float64 { return &f }

// Seeded data_sources ids used across the store tests.
const (
	srcBoxscore int16 = 1
	srcSchedule int16 = 4
	srcGoalies  int16 = 11
)

func TestUpsertProgress_CreatesAndIsIdempotent(t *testing.T) {
	pool := testPool(t)
	store := postgres.NewProgressStore(pool)
	ctx := context.Background()
	season := 20242025

	id1, err := store.UpsertProgress(ctx, srcBoxscore, "2024020500", &season, nil, "")
	require.NoError(t, err)
	assert.Greater(t, id1, int64(0))

	// Same key again returns the same row.
	id2, err := store.UpsertProgress(ctx, srcBoxscore, "2024020500", &season, nil, "")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	entry, err := store.GetByID(ctx, id1)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, domain.ProgressPending, entry.Status)
	assert.Equal(t, 0, entry.Attempts)
	require.NotNil(t, entry.SeasonID)
	assert.Equal(t, season, *entry.SeasonID)
}

func TestUpsertProgress_NullSeasonIsDistinctKey(t *testing.T) {
	pool := testPool(t)
	store := postgres.NewProgressStore(pool)
	ctx := context.Background()
	season := 20242025

	idNull, err := store.UpsertProgress(ctx, srcGoalies, "2026-08-26", nil, nil, "")
	require.NoError(t, err)
	idSeason, err := store.UpsertProgress(ctx, srcGoalies, "2026-08-26", &season, nil, "")
	require.NoError(t, err)
	assert.NotEqual(t, idNull, idSeason)

	// GetByKey with nil season matches only the NULL-season row.
	entry, err := store.GetByKey(ctx, srcGoalies, nil, "2026-08-26")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, idNull, entry.ProgressID)
	assert.Nil(t, entry.SeasonID)
}

func TestUpsertProgress_UpdatesBatchIDOnly(t *testing.T) {
	pool := testPool(t)
	progress := postgres.NewProgressStore(pool)
	batches := postgres.NewBatchStore(pool)
	ctx := context.Background()
	season := 20242025

	id, err := progress.UpsertProgress(ctx, srcBoxscore, "2024020001", &season, nil, "")
	require.NoError(t, err)
	_, err = progress.IncrementAttempts(ctx, id)
	require.NoError(t, err)
	require.NoError(t, progress.MarkSuccess(ctx, id, nil, nil))

	batch, err := batches.CreateBatch(ctx, srcBoxscore, &season, nil)
	require.NoError(t, err)

	// A later batch re-upserting the key attaches its id without
	// disturbing the terminal status.
	id2, err := progress.UpsertProgress(ctx, srcBoxscore, "2024020001", &season, &batch.BatchID, "")
	require.NoError(t, err)
	assert.Equal(t, id, id2)

	entry, err := progress.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ProgressSuccess, entry.Status)
	require.NotNil(t, entry.BatchID)
	assert.Equal(t, batch.BatchID, *entry.BatchID)
}

func TestProgressLifecycle_SuccessPath(t *testing.T) {
	pool := testPool(t)
	store := postgres.NewProgressStore(pool)
	ctx := context.Background()
	season := 20242025

	id, err := store.UpsertProgress(ctx, srcBoxscore, "2024020002", &season, nil, "")
	require.NoError(t, err)

	attempts, err := store.IncrementAttempts(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)

	entry, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ProgressInProgress, entry.Status)
	assert.NotNil(t, entry.LastAttemptAt)

	require.NoError(t, store.MarkSuccess(ctx, id, intp(20480), intp(350)))

	entry, err = store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ProgressSuccess, entry.Status)
	assert.NotNil(t, entry.CompletedAt)
	require.NotNil(t, entry.ResponseSizeBytes)
	assert.Equal(t, 20480, *entry.ResponseSizeBytes)
	require.NotNil(t, entry.ResponseTimeMs)
	assert.Equal(t, 350, *entry.ResponseTimeMs)
}

func TestMarkFailed_DoesNotTouchTerminalEntries(t *testing.T) {
	pool := testPool(t)
	store := postgres.NewProgressStore(pool)
	ctx := context.Background()
	season := 20242025

	id, err := store.UpsertProgress(ctx, srcBoxscore, "2024020003", &season, nil, "")
	require.NoError(t, err)
	_, err = store.IncrementAttempts(ctx, id)
	require.NoError(t, err)
	require.NoError(t, store.MarkSuccess(ctx, id, nil, nil))

	// A late failure report must not demote a successful entry.
	require.NoError(t, store.MarkFailed(ctx, id, "connection reset"))

	entry, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ProgressSuccess, entry.Status)
	assert.Nil(t, entry.ErrorMessage)
}

func TestResetFailed_ReopensOnlyFailedEntries(t *testing.T) {
	pool := testPool(t)
	store := postgres.NewProgressStore(pool)
	ctx := context.Background()
	season := 20242025

	failedID, err := store.UpsertProgress(ctx, srcBoxscore, "2024020004", &season, nil, "")
	require.NoError(t, err)
	_, err = store.IncrementAttempts(ctx, failedID)
	require.NoError(t, err)
	require.NoError(t, store.MarkFailed(ctx, failedID, "HTTP 503"))

	okID, err := store.UpsertProgress(ctx, srcBoxscore, "2024020005", &season, nil, "")
	require.NoError(t, err)
	_, err = store.IncrementAttempts(ctx, okID)
	require.NoError(t, err)
	require.NoError(t, store.MarkSuccess(ctx, okID, nil, nil))

	n, err := store.ResetFailed(ctx, srcBoxscore, &season)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entry, err := store.GetByID(ctx, failedID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProgressPending, entry.Status)
	assert.Nil(t, entry.ErrorMessage)
	assert.Equal(t, 1, entry.Attempts, "attempts history survives the reset")
}

func TestGetIncomplete_ReturnsPendingAndFailed(t *testing.T) {
	pool := testPool(t)
	store := postgres.NewProgressStore(pool)
	ctx := context.Background()
	season := 20242025

	pendingID, err := store.UpsertProgress(ctx, srcBoxscore, "2024020010", &season, nil, "")
	require.NoError(t, err)

	failedID, err := store.UpsertProgress(ctx, srcBoxscore, "2024020011", &season, nil, "")
	require.NoError(t, err)
	_, err = store.IncrementAttempts(ctx, failedID)
	require.NoError(t, err)
	require.NoError(t, store.MarkFailed(ctx, failedID, "HTTP 500"))

	doneID, err := store.UpsertProgress(ctx, srcBoxscore, "2024020012", &season, nil, "")
	require.NoError(t, err)
	_, err = store.IncrementAttempts(ctx, doneID)
	require.NoError(t, err)
	require.NoError(t, store.MarkSuccess(ctx, doneID, nil, nil))

	incomplete, err := store.GetIncomplete(ctx, srcBoxscore, &season)
	require.NoError(t, err)
	require.Len(t, incomplete, 2)
	assert.Equal(t, pendingID, incomplete[0].ProgressID)
	assert.Equal(t, failedID, incomplete[1].ProgressID)

	all, err := store.GetAll(ctx, srcBoxscore, &season)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	pending, err := store.GetPending(ctx, srcBoxscore, &season, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, pendingID, pending[0].ProgressID)
}

func TestMarkSkipped_TerminalWithoutError(t *testing.T) {
	pool := testPool(t)
	store := postgres.NewProgressStore(pool)
	ctx := context.Background()
	season := 20242025

	id, err := store.UpsertProgress(ctx, srcBoxscore, "2024020013", &season, nil, "")
	require.NoError(t, err)
	require.NoError(t, store.MarkSkipped(ctx, id, strp("already downloaded")))

	entry, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ProgressSkipped, entry.Status)
	assert.NotNil(t, entry.CompletedAt)
	assert.Nil(t, entry.ErrorMessage)
}

func TestGetBatchStats_AggregatesStatuses(t *testing.T) {
	pool := testPool(t)
	progress := postgres.NewProgressStore(pool)
	batches := postgres.NewBatchStore(pool)
	ctx := context.Background()
	season := 20242025

	batch, err := batches.CreateBatch(ctx, srcBoxscore, &season, nil)
	require.NoError(t, err)

	for i, finish := range []func(id int64){
		func(id int64) { _ = progress.MarkSuccess(ctx, id, nil, nil) },
		func(id int64) { _ = progress.MarkSuccess(ctx, id, nil, nil) },
		func(id int64) { _ = progress.MarkFailed(ctx, id, "HTTP 500") },
		func(id int64) { _ = progress.MarkSkipped(ctx, id, nil) },
		func(id int64) {}, // stays pending
	} {
		key := fmt.Sprintf("20240201%02d", i)
		id, err := progress.UpsertProgress(ctx, srcBoxscore, key, &season, &batch.BatchID, "")
		require.NoError(t, err)
		finish(id)
	}

	stats, err := progress.GetBatchStats(ctx, batch.BatchID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStats{Pending: 1, Success: 2, Failed: 1, Skipped: 1, Total: 5}, stats)
}

func TestGetByID_Missing_ReturnsNil(t *testing.T) {
	pool := testPool(t)
	store := postgres.NewProgressStore(pool)

	entry, err := store.GetByID(context.Background(), 999999)
	require.NoError(t, err)
	assert.Nil(t, entry)
}
