package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rinkdata/rink/internal/domain"
)

// progressColumns is the full column list for progress-entry queries.
const progressColumns = `progress_id, source_id, season_id, item_key, status, attempts,
	batch_id, last_attempt_at, completed_at, error_message,
	response_size_bytes, response_time_ms, created_at`

// ProgressStore tracks per-item download state. All mutations are
// single-statement atomic updates against the (source_id, season_id,
// item_key) uniqueness key; no application-level locking.
type ProgressStore struct {
	pool *pgxpool.Pool
}

// NewProgressStore creates a ProgressStore backed by the given pool.
func NewProgressStore(pool *pgxpool.Pool) *ProgressStore {
	return &ProgressStore{pool: pool}
}

// scanProgress scans a single progress row into domain.ProgressEntry.
func scanProgress(row pgx.Row) (*domain.ProgressEntry, error) {
	var (
		progressID    int64
		sourceID      int16
		seasonID      pgtype.Int4
		itemKey       string
		status        string
		attempts      int
		batchID       pgtype.Int8
		lastAttemptAt *time.Time
		completedAt   *time.Time
		errorMessage  pgtype.Text
		respSize      pgtype.Int4
		respTime      pgtype.Int4
		createdAt     time.Time
	)

	err := row.Scan(&progressID, &sourceID, &seasonID, &itemKey, &status, &attempts,
		&batchID, &lastAttemptAt, &completedAt, &errorMessage,
		&respSize, &respTime, &createdAt)
	if err != nil {
		return nil, err
	}

	return &domain.ProgressEntry{
		ProgressID:        progressID,
		SourceID:          sourceID,
		SeasonID:          nullableInt4ToPtr(seasonID),
		ItemKey:           itemKey,
		Status:            domain.ProgressStatus(status),
		Attempts:          attempts,
		BatchID:           nullableInt8ToPtr(batchID),
		LastAttemptAt:     lastAttemptAt,
		CompletedAt:       completedAt,
		ErrorMessage:      nullableTextToPtr(errorMessage),
		ResponseSizeBytes: nullableInt4ToPtr(respSize),
		ResponseTimeMs:    nullableInt4ToPtr(respTime),
		CreatedAt:         createdAt,
	}, nil
}

// UpsertProgress creates the entry if missing and returns its progress_id.
// On an existing entry only batch_id is updated (when non-nil): status is
// owned by the Mark* transitions, so repeated upserts are idempotent and
// never disturb an entry's lifecycle. The status argument applies to newly
// created rows only; the zero value means pending.
//
// The ON CONFLICT arbiter must name one of the two partial unique indexes,
// so the query branches on seasonID.
func (s *ProgressStore) UpsertProgress(ctx context.Context, sourceID int16, itemKey string, seasonID *int, batchID *int64, status domain.ProgressStatus) (int64, error) {
	if status == "" {
		status = domain.ProgressPending
	}

	var query string
	if seasonID == nil {
		query = `INSERT INTO progress_entries (source_id, season_id, item_key, status, batch_id)
			VALUES ($1, NULL, $2, $3, $4)
			ON CONFLICT (source_id, item_key) WHERE season_id IS NULL
			DO UPDATE SET batch_id = COALESCE(EXCLUDED.batch_id, progress_entries.batch_id)
			RETURNING progress_id`
	} else {
		query = `INSERT INTO progress_entries (source_id, season_id, item_key, status, batch_id)
			VALUES ($1, $5, $2, $3, $4)
			ON CONFLICT (source_id, season_id, item_key) WHERE season_id IS NOT NULL
			DO UPDATE SET batch_id = COALESCE(EXCLUDED.batch_id, progress_entries.batch_id)
			RETURNING progress_id`
	}

	args := []interface{}{sourceID, itemKey, string(status), int64PtrToNullable(batchID)}
	if seasonID != nil {
		args = append(args, *seasonID)
	}

	var progressID int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&progressID); err != nil {
		return 0, fmt.Errorf("upsert progress %q: %w", itemKey, err)
	}
	return progressID, nil
}

// GetByID returns the entry with the given id, or (nil, nil) if absent.
func (s *ProgressStore) GetByID(ctx context.Context, progressID int64) (*domain.ProgressEntry, error) {
	query := `SELECT ` + progressColumns + ` FROM progress_entries WHERE progress_id = $1`

	entry, err := scanProgress(s.pool.QueryRow(ctx, query, progressID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get progress by id: %w", err)
	}
	return entry, nil
}

// GetByKey returns the entry for (source, season, item), or (nil, nil) if
// absent. A nil season matches only rows whose season_id IS NULL.
func (s *ProgressStore) GetByKey(ctx context.Context, sourceID int16, seasonID *int, itemKey string) (*domain.ProgressEntry, error) {
	query := `SELECT ` + progressColumns + ` FROM progress_entries
		WHERE source_id = $1 AND season_id IS NOT DISTINCT FROM $2 AND item_key = $3`

	entry, err := scanProgress(s.pool.QueryRow(ctx, query, sourceID, intPtrToNullable(seasonID), itemKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get progress by key: %w", err)
	}
	return entry, nil
}

// GetPending returns up to limit pending entries for (source, season) in
// insertion order. limit <= 0 means no limit.
func (s *ProgressStore) GetPending(ctx context.Context, sourceID int16, seasonID *int, limit int) ([]domain.ProgressEntry, error) {
	query := `SELECT ` + progressColumns + ` FROM progress_entries
		WHERE source_id = $1 AND season_id IS NOT DISTINCT FROM $2 AND status = 'pending'
		ORDER BY progress_id`
	args := []interface{}{sourceID, intPtrToNullable(seasonID)}

	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	return s.queryEntries(ctx, "get pending", query, args...)
}

// GetAll returns every entry for (source, season) in insertion order.
// Batch trackers load this at start so landed items are skipped on resume.
func (s *ProgressStore) GetAll(ctx context.Context, sourceID int16, seasonID *int) ([]domain.ProgressEntry, error) {
	query := `SELECT ` + progressColumns + ` FROM progress_entries
		WHERE source_id = $1 AND season_id IS NOT DISTINCT FROM $2
		ORDER BY progress_id`

	return s.queryEntries(ctx, "get all", query, sourceID, intPtrToNullable(seasonID))
}

// GetIncomplete returns pending and failed entries for (source, season),
// the set a resuming batch still has to download.
func (s *ProgressStore) GetIncomplete(ctx context.Context, sourceID int16, seasonID *int) ([]domain.ProgressEntry, error) {
	query := `SELECT ` + progressColumns + ` FROM progress_entries
		WHERE source_id = $1 AND season_id IS NOT DISTINCT FROM $2 AND status IN ('pending', 'failed')
		ORDER BY progress_id`

	return s.queryEntries(ctx, "get incomplete", query, sourceID, intPtrToNullable(seasonID))
}

func (s *ProgressStore) queryEntries(ctx context.Context, op, query string, args ...interface{}) ([]domain.ProgressEntry, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var result []domain.ProgressEntry
	for rows.Next() {
		entry, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		result = append(result, *entry)
	}
	return result, rows.Err()
}

// IncrementAttempts opens a new attempt: bumps the attempt counter, stamps
// last_attempt_at, and moves the entry to in_progress, clearing completion
// fields from any prior attempt. Returns the new attempt count. This is the
// only transition that re-opens a terminal entry (force re-download).
func (s *ProgressStore) IncrementAttempts(ctx context.Context, progressID int64) (int, error) {
	var attempts int
	err := s.pool.QueryRow(ctx,
		`UPDATE progress_entries
		 SET attempts = attempts + 1, last_attempt_at = now(),
		     status = 'in_progress', completed_at = NULL, error_message = NULL
		 WHERE progress_id = $1
		 RETURNING attempts`,
		progressID).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("increment attempts: %w", err)
	}
	return attempts, nil
}

// MarkSuccess finalises an entry as successfully downloaded. Terminal
// entries (success, skipped) are left untouched.
func (s *ProgressStore) MarkSuccess(ctx context.Context, progressID int64, responseSizeBytes, responseTimeMs *int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE progress_entries
		 SET status = 'success', completed_at = now(), error_message = NULL,
		     response_size_bytes = $2, response_time_ms = $3
		 WHERE progress_id = $1 AND status NOT IN ('success', 'skipped')`,
		progressID, intPtrToNullable(responseSizeBytes), intPtrToNullable(responseTimeMs))
	if err != nil {
		return fmt.Errorf("mark success: %w", err)
	}
	return nil
}

// MarkFailed records a failed download attempt with its error message.
// Terminal entries are left untouched.
func (s *ProgressStore) MarkFailed(ctx context.Context, progressID int64, errorMessage string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE progress_entries
		 SET status = 'failed', error_message = $2, completed_at = NULL
		 WHERE progress_id = $1 AND status NOT IN ('success', 'skipped')`,
		progressID, errorMessage)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// MarkSkipped marks an entry skipped from any non-terminal state. The
// reason is logged and travels in tracker events; the row itself keeps
// error_message NULL (that column belongs to failed entries).
func (s *ProgressStore) MarkSkipped(ctx context.Context, progressID int64, reason *string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE progress_entries
		 SET status = 'skipped', completed_at = now(), error_message = NULL
		 WHERE progress_id = $1 AND status NOT IN ('success', 'skipped')`,
		progressID)
	if err != nil {
		return fmt.Errorf("mark skipped: %w", err)
	}
	if reason != nil {
		slog.Debug("progress entry skipped", "progress_id", progressID, "reason", *reason)
	}
	return nil
}

// ResetFailed transitions all failed entries for (source, season) back to
// pending, clearing error messages. Returns the number of entries reset.
func (s *ProgressStore) ResetFailed(ctx context.Context, sourceID int16, seasonID *int) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE progress_entries
		 SET status = 'pending', error_message = NULL
		 WHERE source_id = $1 AND season_id IS NOT DISTINCT FROM $2 AND status = 'failed'`,
		sourceID, intPtrToNullable(seasonID))
	if err != nil {
		return 0, fmt.Errorf("reset failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetBatchStats aggregates entry statuses for one batch. In-progress
// entries count toward Total only.
func (s *ProgressStore) GetBatchStats(ctx context.Context, batchID int64) (domain.BatchStats, error) {
	var stats domain.BatchStats
	err := s.pool.QueryRow(ctx,
		`SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'success'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'skipped'),
			COUNT(*)
		 FROM progress_entries WHERE batch_id = $1`,
		batchID).Scan(&stats.Pending, &stats.Success, &stats.Failed, &stats.Skipped, &stats.Total)
	if err != nil {
		return domain.BatchStats{}, fmt.Errorf("get batch stats: %w", err)
	}
	return stats, nil
}
