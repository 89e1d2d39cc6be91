package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rinkdata/rink/internal/postgres"
)

// testPool returns a pgxpool.Pool connected to the test database.
// It skips the test if DATABASE_URL is not set (so `make test-go` stays fast).
// It runs migrations and cleans all tables before returning.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, url)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := postgres.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cleanTables(t, pool)

	return pool
}

// cleanTables truncates all mutable tables. Seeded catalogues
// (data_sources, validation_rules) are left in place.
func cleanTables(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx := context.Background()
	// Order matters — FK constraints
	tables := []string{
		"validation_results", "validation_runs", "discrepancies",
		"progress_entries", "batches",
		"game_boxscores", "game_play_by_play", "game_shift_charts",
		"game_reports", "schedule_games", "standings_snapshots",
		"team_rosters", "player_game_logs",
		"team_line_charts", "team_injury_reports", "goalie_starts",
	}
	for _, table := range tables {
		if _, err := pool.Exec(ctx, "TRUNCATE "+table+" CASCADE"); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}

	// Restore any rules tests may have deactivated.
	if _, err := pool.Exec(ctx, "UPDATE validation_rules SET is_active = true"); err != nil {
		t.Fatalf("reset validation rules: %v", err)
	}
}
