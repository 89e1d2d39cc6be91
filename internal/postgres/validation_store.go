package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rinkdata/rink/internal/domain"
)

// ValidationStore persists rule definitions, reconciliation runs, their
// results, and cross-source discrepancies.
type ValidationStore struct {
	pool *pgxpool.Pool
}

// NewValidationStore creates a ValidationStore backed by the given pool.
func NewValidationStore(pool *pgxpool.Pool) *ValidationStore {
	return &ValidationStore{pool: pool}
}

// ListActiveRules returns all active rules in stable (category, name)
// order — the order the engine evaluates them in.
func (s *ValidationStore) ListActiveRules(ctx context.Context) ([]domain.ValidationRule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT rule_id, name, category, severity, is_active, config, created_at
		 FROM validation_rules
		 WHERE is_active
		 ORDER BY category, name`)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	defer rows.Close()

	var result []domain.ValidationRule
	for rows.Next() {
		var (
			rule   domain.ValidationRule
			config []byte
		)
		if err := rows.Scan(&rule.RuleID, &rule.Name, &rule.Category, &rule.Severity,
			&rule.IsActive, &config, &rule.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rule.Config = jsonToMeta(config)
		result = append(result, rule)
	}
	return result, rows.Err()
}

// SetRuleActive flips a rule on or off by name.
func (s *ValidationStore) SetRuleActive(ctx context.Context, name string, active bool) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE validation_rules SET is_active = $2 WHERE name = $1`, name, active)
	if err != nil {
		return fmt.Errorf("set rule active: %w", err)
	}
	return nil
}

// CreateRun inserts a new running validation run. The caller supplies the
// run id; StartedAt and Status are filled in from the stored row.
func (s *ValidationStore) CreateRun(ctx context.Context, run *domain.ValidationRun) error {
	metaJSON, err := metaToJSON(run.Metadata)
	if err != nil {
		return err
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO validation_runs (run_id, season_id, metadata)
		 VALUES ($1, $2, $3)
		 RETURNING status, started_at`,
		run.RunID, intPtrToNullable(run.SeasonID), metaJSON).Scan(&run.Status, &run.StartedAt)
	if err != nil {
		return fmt.Errorf("create validation run: %w", err)
	}
	return nil
}

// FinishRun moves a running run to completed or failed with its final
// counters. The guard keeps the transition single-shot.
func (s *ValidationStore) FinishRun(ctx context.Context, runID uuid.UUID, status domain.ValidationRunStatus, rulesChecked, passed, failed, warnings int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE validation_runs
		 SET status = $2, completed_at = now(),
		     rules_checked = $3, total_passed = $4, total_failed = $5, total_warnings = $6
		 WHERE run_id = $1 AND status = 'running'`,
		runID, string(status), rulesChecked, passed, failed, warnings)
	if err != nil {
		return fmt.Errorf("finish validation run: %w", err)
	}
	return nil
}

// GetRun returns the run with the given id, or (nil, nil) if absent.
func (s *ValidationStore) GetRun(ctx context.Context, runID uuid.UUID) (*domain.ValidationRun, error) {
	var (
		run      domain.ValidationRun
		seasonID pgtype.Int4
		metadata []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT run_id, season_id, status, started_at, completed_at,
			rules_checked, total_passed, total_failed, total_warnings, metadata
		 FROM validation_runs WHERE run_id = $1`,
		runID).Scan(&run.RunID, &seasonID, &run.Status, &run.StartedAt, &run.CompletedAt,
		&run.RulesChecked, &run.TotalPassed, &run.TotalFailed, &run.TotalWarnings, &metadata)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get validation run: %w", err)
	}
	run.SeasonID = nullableInt4ToPtr(seasonID)
	run.Metadata = jsonToMeta(metadata)
	return &run, nil
}

// SaveGameResults lands one game's results and discrepancy updates in a
// single transaction, so a reader never sees a partial game.
func (s *ValidationStore) SaveGameResults(ctx context.Context, results []domain.ValidationResult, discrepancies []domain.Discrepancy) error {
	if len(results) == 0 && len(discrepancies) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save results tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	batch := &pgx.Batch{}
	for i := range results {
		r := &results[i]
		details, err := metaToJSON(r.Details)
		if err != nil {
			return err
		}
		sourceValues, err := metaToJSON(r.SourceValues)
		if err != nil {
			return err
		}
		batch.Queue(
			`INSERT INTO validation_results (run_id, rule_id, game_id, passed, severity, message, details, source_values)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			r.RunID, r.RuleID, int64PtrToNullable(r.GameID), r.Passed,
			string(r.Severity), r.Message, details, sourceValues)
	}
	for i := range discrepancies {
		d := &discrepancies[i]
		sourceValues, err := metaToJSON(d.SourceValues)
		if err != nil {
			return err
		}
		// A resolved discrepancy reopens only when the source values
		// changed since it was resolved; ignored ones stay ignored.
		batch.Queue(
			`INSERT INTO discrepancies (rule_name, entity_type, entity_id, field_name, severity, source_values, difference)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (rule_name, entity_type, entity_id, field_name) DO UPDATE SET
				severity = EXCLUDED.severity,
				last_seen_at = now(),
				resolution = CASE
					WHEN discrepancies.resolution = 'resolved'
					     AND discrepancies.source_values IS DISTINCT FROM EXCLUDED.source_values
					THEN 'open'
					ELSE discrepancies.resolution END,
				resolved_at = CASE
					WHEN discrepancies.resolution = 'resolved'
					     AND discrepancies.source_values IS DISTINCT FROM EXCLUDED.source_values
					THEN NULL
					ELSE discrepancies.resolved_at END,
				source_values = EXCLUDED.source_values,
				difference = EXCLUDED.difference`,
			d.RuleName, d.EntityType, d.EntityID, d.FieldName,
			string(d.Severity), sourceValues, float64PtrToNullable(d.Difference))
	}

	results2 := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results2.Exec(); err != nil {
			_ = results2.Close()
			return fmt.Errorf("save game results: %w", err)
		}
	}
	if err := results2.Close(); err != nil {
		return fmt.Errorf("save game results: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save results tx: %w", err)
	}
	return nil
}

// scanDiscrepancy scans one discrepancy row.
func scanDiscrepancy(row pgx.Row) (*domain.Discrepancy, error) {
	var (
		d            domain.Discrepancy
		sourceValues []byte
		difference   pgtype.Float8
		note         pgtype.Text
	)
	err := row.Scan(&d.DiscrepancyID, &d.RuleName, &d.EntityType, &d.EntityID, &d.FieldName,
		&d.Severity, &sourceValues, &difference, &d.Resolution,
		&d.FirstSeenAt, &d.LastSeenAt, &d.ResolvedAt, &note)
	if err != nil {
		return nil, err
	}
	d.SourceValues = jsonToMeta(sourceValues)
	d.Difference = nullableFloat8ToPtr(difference)
	d.ResolutionNote = nullableTextToPtr(note)
	return &d, nil
}

const discrepancyColumns = `discrepancy_id, rule_name, entity_type, entity_id, field_name,
	severity, source_values, difference, resolution,
	first_seen_at, last_seen_at, resolved_at, resolution_note`

// GetDiscrepancy returns the discrepancy with the given natural key, or
// (nil, nil) if absent.
func (s *ValidationStore) GetDiscrepancy(ctx context.Context, ruleName, entityType, entityID, fieldName string) (*domain.Discrepancy, error) {
	d, err := scanDiscrepancy(s.pool.QueryRow(ctx,
		`SELECT `+discrepancyColumns+` FROM discrepancies
		 WHERE rule_name = $1 AND entity_type = $2 AND entity_id = $3 AND field_name = $4`,
		ruleName, entityType, entityID, fieldName))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get discrepancy: %w", err)
	}
	return d, nil
}

// ListOpenDiscrepancies returns open discrepancies, most recently seen
// first. limit <= 0 means no limit.
func (s *ValidationStore) ListOpenDiscrepancies(ctx context.Context, limit int) ([]domain.Discrepancy, error) {
	query := `SELECT ` + discrepancyColumns + ` FROM discrepancies
		WHERE resolution = 'open' ORDER BY last_seen_at DESC`
	args := []interface{}{}

	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list open discrepancies: %w", err)
	}
	defer rows.Close()

	var result []domain.Discrepancy
	for rows.Next() {
		d, err := scanDiscrepancy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan discrepancy: %w", err)
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}

// SetResolution updates a discrepancy's workflow state. Resolved and
// ignored states stamp resolved_at; reopening clears it.
func (s *ValidationStore) SetResolution(ctx context.Context, discrepancyID int64, resolution domain.ResolutionStatus, note *string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE discrepancies
		 SET resolution = $2,
		     resolved_at = CASE WHEN $2 = 'open' THEN NULL ELSE now() END,
		     resolution_note = $3
		 WHERE discrepancy_id = $1`,
		discrepancyID, string(resolution), textPtrToNullable(note))
	if err != nil {
		return fmt.Errorf("set resolution: %w", err)
	}
	return nil
}

// ListRunResults returns all results for a run in insertion order.
func (s *ValidationStore) ListRunResults(ctx context.Context, runID uuid.UUID) ([]domain.ValidationResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT result_id, run_id, rule_id, game_id, passed, severity, message,
			details, source_values, created_at
		 FROM validation_results WHERE run_id = $1 ORDER BY result_id`,
		runID)
	if err != nil {
		return nil, fmt.Errorf("list run results: %w", err)
	}
	defer rows.Close()

	var result []domain.ValidationResult
	for rows.Next() {
		var (
			r            domain.ValidationResult
			gameID       pgtype.Int8
			details      []byte
			sourceValues []byte
		)
		if err := rows.Scan(&r.ResultID, &r.RunID, &r.RuleID, &gameID, &r.Passed,
			&r.Severity, &r.Message, &details, &sourceValues, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.GameID = nullableInt8ToPtr(gameID)
		r.Details = jsonToMeta(details)
		r.SourceValues = jsonToMeta(sourceValues)
		result = append(result, r)
	}
	return result, rows.Err()
}

// DeleteRunsBefore removes terminal runs completed before the cutoff;
// their results cascade. Returns the number of runs removed.
func (s *ValidationStore) DeleteRunsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM validation_runs
		 WHERE status IN ('completed', 'failed') AND completed_at < $1`,
		olderThan)
	if err != nil {
		return 0, fmt.Errorf("delete validation runs: %w", err)
	}
	return tag.RowsAffected(), nil
}
