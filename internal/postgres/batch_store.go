package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rinkdata/rink/internal/domain"
)

// batchColumns is the full column list for batch queries.
const batchColumns = `batch_id, source_id, season_id, status, started_at, completed_at,
	items_total, items_success, items_failed, items_skipped, error_message, metadata`

// BatchFilter narrows ListBatches. Zero values mean "any".
type BatchFilter struct {
	SourceID int16
	SeasonID *int
	Status   domain.BatchStatus
	Limit    int
	Offset   int
}

// BatchStore persists ingestion batches. Counter updates are
// single-statement increments; the terminal transition is guarded so it
// happens exactly once.
type BatchStore struct {
	pool     *pgxpool.Pool
	EventBus EventBus // optional — publishes batch_completed events when set
}

// NewBatchStore creates a BatchStore backed by the given pool.
func NewBatchStore(pool *pgxpool.Pool) *BatchStore {
	return &BatchStore{pool: pool}
}

// scanBatch scans a single batch row into domain.Batch.
func scanBatch(row pgx.Row) (*domain.Batch, error) {
	var (
		batchID      int64
		sourceID     int16
		seasonID     pgtype.Int4
		status       string
		startedAt    time.Time
		completedAt  *time.Time
		itemsTotal   pgtype.Int4
		success      int
		failed       int
		skipped      int
		errorMessage pgtype.Text
		metadata     []byte
	)

	err := row.Scan(&batchID, &sourceID, &seasonID, &status, &startedAt, &completedAt,
		&itemsTotal, &success, &failed, &skipped, &errorMessage, &metadata)
	if err != nil {
		return nil, err
	}

	return &domain.Batch{
		BatchID:      batchID,
		SourceID:     sourceID,
		SeasonID:     nullableInt4ToPtr(seasonID),
		Status:       domain.BatchStatus(status),
		StartedAt:    startedAt,
		CompletedAt:  completedAt,
		ItemsTotal:   nullableInt4ToPtr(itemsTotal),
		ItemsSuccess: success,
		ItemsFailed:  failed,
		ItemsSkipped: skipped,
		ErrorMessage: nullableTextToPtr(errorMessage),
		Metadata:     jsonToMeta(metadata),
	}, nil
}

// CreateBatch opens a new running batch and returns the stored row.
func (s *BatchStore) CreateBatch(ctx context.Context, sourceID int16, seasonID *int, metadata map[string]any) (*domain.Batch, error) {
	metaJSON, err := metaToJSON(metadata)
	if err != nil {
		return nil, err
	}

	batch, err := scanBatch(s.pool.QueryRow(ctx,
		`INSERT INTO batches (source_id, season_id, metadata)
		 VALUES ($1, $2, $3)
		 RETURNING `+batchColumns,
		sourceID, intPtrToNullable(seasonID), metaJSON))
	if err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}
	return batch, nil
}

// GetBatch returns the batch with the given id, or (nil, nil) if absent.
func (s *BatchStore) GetBatch(ctx context.Context, batchID int64) (*domain.Batch, error) {
	batch, err := scanBatch(s.pool.QueryRow(ctx,
		`SELECT `+batchColumns+` FROM batches WHERE batch_id = $1`, batchID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return batch, nil
}

// batchWhereClause builds the shared WHERE clause and args for batch
// list queries.
func batchWhereClause(filter BatchFilter) (string, []interface{}, int) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	argN := 1

	if filter.SourceID != 0 {
		where += fmt.Sprintf(" AND source_id = $%d", argN)
		args = append(args, filter.SourceID)
		argN++
	}
	if filter.SeasonID != nil {
		where += fmt.Sprintf(" AND season_id = $%d", argN)
		args = append(args, *filter.SeasonID)
		argN++
	}
	if filter.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argN)
		args = append(args, string(filter.Status))
		argN++
	}
	return where, args, argN
}

// ListBatches returns batches matching the filter, newest first.
func (s *BatchStore) ListBatches(ctx context.Context, filter BatchFilter) ([]domain.Batch, error) {
	where, args, argN := batchWhereClause(filter)
	query := `SELECT ` + batchColumns + ` FROM batches` + where + ` ORDER BY started_at DESC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argN, argN+1)
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var result []domain.Batch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		result = append(result, *batch)
	}
	return result, rows.Err()
}

// HasRunningBatch reports whether the source has a batch in flight.
// The scheduler uses this to avoid stacking runs for the same source.
func (s *BatchStore) HasRunningBatch(ctx context.Context, sourceID int16) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM batches WHERE source_id = $1 AND status = 'running')`,
		sourceID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has running batch: %w", err)
	}
	return exists, nil
}

// SetItemsTotal records the enumerated item count once it is known.
func (s *BatchStore) SetItemsTotal(ctx context.Context, batchID int64, total int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE batches SET items_total = $2 WHERE batch_id = $1`, batchID, total)
	if err != nil {
		return fmt.Errorf("set items total: %w", err)
	}
	return nil
}

// IncrementSuccess adds one finished item to the success counter.
func (s *BatchStore) IncrementSuccess(ctx context.Context, batchID int64) error {
	return s.increment(ctx, batchID, "items_success")
}

// IncrementFailed adds one finished item to the failure counter.
func (s *BatchStore) IncrementFailed(ctx context.Context, batchID int64) error {
	return s.increment(ctx, batchID, "items_failed")
}

// IncrementSkipped adds one skipped item to the skip counter.
func (s *BatchStore) IncrementSkipped(ctx context.Context, batchID int64) error {
	return s.increment(ctx, batchID, "items_skipped")
}

func (s *BatchStore) increment(ctx context.Context, batchID int64, column string) error {
	// column is one of the three fixed counter names above, never user input.
	_, err := s.pool.Exec(ctx,
		`UPDATE batches SET `+column+` = `+column+` + 1 WHERE batch_id = $1`, batchID)
	if err != nil {
		return fmt.Errorf("increment %s: %w", column, err)
	}
	return nil
}

// FinishBatch moves a running batch to a terminal status. Returns true if
// this call performed the transition, false if the batch was already
// terminal (or unknown). Publishes a batch_completed event on transition
// when an EventBus is configured; publishing is best-effort.
func (s *BatchStore) FinishBatch(ctx context.Context, batchID int64, status domain.BatchStatus, errorMessage *string) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("finish batch: %q is not a terminal status", status)
	}

	var (
		sourceID int16
		seasonID pgtype.Int4
	)
	err := s.pool.QueryRow(ctx,
		`UPDATE batches
		 SET status = $2, completed_at = now(), error_message = $3
		 WHERE batch_id = $1 AND status = 'running'
		 RETURNING source_id, season_id`,
		batchID, string(status), textPtrToNullable(errorMessage)).Scan(&sourceID, &seasonID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("finish batch: %w", err)
	}

	if s.EventBus != nil {
		_ = s.EventBus.Publish(ctx, ChannelBatchCompleted, BatchCompletedPayload{
			BatchID:  batchID,
			SourceID: sourceID,
			SeasonID: nullableInt4ToPtr(seasonID),
			Status:   string(status),
		})
	}
	return true, nil
}

// DeleteTerminalBatchesBefore removes terminal batches older than the
// cutoff. Progress entries keep their history; their batch_id reference is
// nulled by the schema. Returns the number of batches removed.
func (s *BatchStore) DeleteTerminalBatchesBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM batches
		 WHERE status IN ('completed', 'failed', 'cancelled') AND completed_at < $1`,
		olderThan)
	if err != nil {
		return 0, fmt.Errorf("delete terminal batches: %w", err)
	}
	return tag.RowsAffected(), nil
}
