package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rinkdata/rink/internal/domain"
	"github.com/rinkdata/rink/internal/postgres"
)

func TestListActiveRules_ReturnsSeededCatalogue(t *testing.T) {
	pool := testPool(t)
	store := postgres.NewValidationStore(pool)

	rules, err := store.ListActiveRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 16)

	// Stable (category, name) order: cross_source sorts before internal.
	assert.Equal(t, domain.RuleCategoryCrossSource, rules[0].Category)
	assert.Equal(t, domain.RuleCategoryInternal, rules[15].Category)
	for i := 1; i < len(rules); i++ {
		prev, cur := rules[i-1], rules[i]
		if prev.Category == cur.Category {
			assert.Less(t, prev.Name, cur.Name)
		}
	}

	byName := make(map[string]domain.ValidationRule, len(rules))
	for _, r := range rules {
		byName[r.Name] = r
	}
	shots := byName["cross_source_pbp_boxscore_shots_home"]
	assert.Equal(t, domain.SeverityWarning, shots.Severity)
	assert.Equal(t, float64(2), shots.Config["tolerance"])
	toi := byName["cross_source_shift_boxscore_toi"]
	assert.Equal(t, float64(5), toi.Config["tolerance_seconds"])
}

func TestSetRuleActive_FiltersRuleOut(t *testing.T) {
	pool := testPool(t)
	store := postgres.NewValidationStore(pool)
	ctx := context.Background()

	require.NoError(t, store.SetRuleActive(ctx, "skater_faceoff_pct_range", false))

	rules, err := store.ListActiveRules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 15)
	for _, r := range rules {
		assert.NotEqual(t, "skater_faceoff_pct_range", r.Name)
	}
}

func TestCreateRun_RoundTrip(t *testing.T) {
	pool := testPool(t)
	store := postgres.NewValidationStore(pool)
	ctx := context.Background()
	season := 20242025

	run := &domain.ValidationRun{
		RunID:    uuid.New(),
		SeasonID: &season,
		Metadata: map[string]any{"game_id": float64(2024020500)},
	}
	require.NoError(t, store.CreateRun(ctx, run))
	assert.Equal(t, domain.ValidationRunRunning, run.Status)
	assert.False(t, run.StartedAt.IsZero())

	got, err := store.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.SeasonID)
	assert.Equal(t, season, *got.SeasonID)
	assert.Equal(t, float64(2024020500), got.Metadata["game_id"])
	assert.Nil(t, got.CompletedAt)
}

func TestGetRun_Missing_ReturnsNil(t *testing.T) {
	pool := testPool(t)
	store := postgres.NewValidationStore(pool)

	got, err := store.GetRun(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFinishRun_TransitionsOnce(t *testing.T) {
	pool := testPool(t)
	store := postgres.NewValidationStore(pool)
	ctx := context.Background()
	season := 20242025

	run := &domain.ValidationRun{RunID: uuid.New(), SeasonID: &season}
	require.NoError(t, store.CreateRun(ctx, run))

	require.NoError(t, store.FinishRun(ctx, run.RunID, domain.ValidationRunCompleted, 16, 40, 2, 5))

	got, err := store.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.ValidationRunCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, 16, got.RulesChecked)
	assert.Equal(t, 40, got.TotalPassed)
	assert.Equal(t, 2, got.TotalFailed)
	assert.Equal(t, 5, got.TotalWarnings)

	// A second transition is a silent no-op: the run is already terminal.
	require.NoError(t, store.FinishRun(ctx, run.RunID, domain.ValidationRunFailed, 0, 0, 0, 0))
	got, err = store.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.ValidationRunCompleted, got.Status)
	assert.Equal(t, 40, got.TotalPassed)
}

func newRun(t *testing.T, store *postgres.ValidationStore) uuid.UUID {
	t.Helper()
	season := 20242025
	run := &domain.ValidationRun{RunID: uuid.New(), SeasonID: &season}
	require.NoError(t, store.CreateRun(context.Background(), run))
	return run.RunID
}

func TestSaveGameResults_PersistsResultsAndDiscrepancy(t *testing.T) {
	pool := testPool(t)
	store := postgres.NewValidationStore(pool)
	ctx := context.Background()
	runID := newRun(t, store)
	gameID := int64(2024020500)

	results := []domain.ValidationResult{
		{RunID: runID, RuleID: 1, GameID: &gameID, Passed: true,
			Severity: domain.SeverityError, Message: "points arithmetic holds for 36 skaters"},
		{RunID: runID, RuleID: 9, GameID: &gameID, Passed: false,
			Severity: domain.SeverityError,
			Message:  "home goals disagree: play-by-play 3, boxscore 4",
			SourceValues: map[string]any{
				"play_by_play": float64(3), "boxscore": float64(4),
			}},
	}
	discrepancies := []domain.Discrepancy{
		{RuleName: "cross_source_pbp_boxscore_goals_home",
			EntityType: "game", EntityID: "2024020500", FieldName: "home_goals",
			Severity: domain.SeverityError,
			SourceValues: map[string]any{
				"play_by_play": float64(3), "boxscore": float64(4),
			},
			Difference: float64p(1)},
	}
	require.NoError(t, store.SaveGameResults(ctx, results, discrepancies))

	saved, err := store.ListRunResults(ctx, runID)
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, "points arithmetic holds for 36 skaters", saved[0].Message)
	assert.False(t, saved[1].Passed)
	assert.Equal(t, float64(4), saved[1].SourceValues["boxscore"])

	d, err := store.GetDiscrepancy(ctx, "cross_source_pbp_boxscore_goals_home", "game", "2024020500", "home_goals")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, domain.ResolutionOpen, d.Resolution)
	require.NotNil(t, d.Difference)
	assert.Equal(t, float64(1), *d.Difference)
	assert.Nil(t, d.ResolvedAt)
}

func TestSaveGameResults_RepeatSightingUpdatesLastSeen(t *testing.T) {
	pool := testPool(t)
	store := postgres.NewValidationStore(pool)
	ctx := context.Background()

	disc := domain.Discrepancy{
		RuleName:   "cross_source_pbp_boxscore_goals_home",
		EntityType: "game", EntityID: "2024020500", FieldName: "home_goals",
		Severity:     domain.SeverityError,
		SourceValues: map[string]any{"play_by_play": float64(3), "boxscore": float64(4)},
	}
	require.NoError(t, store.SaveGameResults(ctx, nil, []domain.Discrepancy{disc}))

	first, err := store.GetDiscrepancy(ctx, disc.RuleName, disc.EntityType, disc.EntityID, disc.FieldName)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, store.SaveGameResults(ctx, nil, []domain.Discrepancy{disc}))

	second, err := store.GetDiscrepancy(ctx, disc.RuleName, disc.EntityType, disc.EntityID, disc.FieldName)
	require.NoError(t, err)
	assert.Equal(t, first.DiscrepancyID, second.DiscrepancyID, "same row, not a new one")
	assert.Equal(t, first.FirstSeenAt, second.FirstSeenAt)
	assert.True(t, second.LastSeenAt.After(first.LastSeenAt))
}

func TestSaveGameResults_ReopensResolvedOnChangedValues(t *testing.T) {
	pool := testPool(t)
	store := postgres.NewValidationStore(pool)
	ctx := context.Background()

	disc := domain.Discrepancy{
		RuleName:   "cross_source_pbp_boxscore_goals_home",
		EntityType: "game", EntityID: "2024020500", FieldName: "home_goals",
		Severity:     domain.SeverityError,
		SourceValues: map[string]any{"play_by_play": float64(3), "boxscore": float64(4)},
	}
	require.NoError(t, store.SaveGameResults(ctx, nil, []domain.Discrepancy{disc}))

	saved, err := store.GetDiscrepancy(ctx, disc.RuleName, disc.EntityType, disc.EntityID, disc.FieldName)
	require.NoError(t, err)
	require.NoError(t, store.SetResolution(ctx, saved.DiscrepancyID, domain.ResolutionResolved, strp("stats correction applied")))

	// Re-sighting with identical values keeps it resolved.
	require.NoError(t, store.SaveGameResults(ctx, nil, []domain.Discrepancy{disc}))
	same, err := store.GetDiscrepancy(ctx, disc.RuleName, disc.EntityType, disc.EntityID, disc.FieldName)
	require.NoError(t, err)
	assert.Equal(t, domain.ResolutionResolved, same.Resolution)
	assert.NotNil(t, same.ResolvedAt)

	// A sighting with different source values reopens it.
	disc.SourceValues = map[string]any{"play_by_play": float64(3), "boxscore": float64(5)}
	require.NoError(t, store.SaveGameResults(ctx, nil, []domain.Discrepancy{disc}))
	reopened, err := store.GetDiscrepancy(ctx, disc.RuleName, disc.EntityType, disc.EntityID, disc.FieldName)
	require.NoError(t, err)
	assert.Equal(t, domain.ResolutionOpen, reopened.Resolution)
	assert.Nil(t, reopened.ResolvedAt)
	assert.Equal(t, float64(5), reopened.SourceValues["boxscore"])
}

func TestSaveGameResults_IgnoredStaysIgnored(t *testing.T) {
	pool := testPool(t)
	store := postgres.NewValidationStore(pool)
	ctx := context.Background()

	disc := domain.Discrepancy{
		RuleName:   "cross_source_shift_boxscore_toi",
		EntityType: "player", EntityID: "2024020500:8477492", FieldName: "toi_seconds",
		Severity:     domain.SeverityWarning,
		SourceValues: map[string]any{"shift_chart": float64(1273), "boxscore": float64(1280)},
	}
	require.NoError(t, store.SaveGameResults(ctx, nil, []domain.Discrepancy{disc}))

	saved, err := store.GetDiscrepancy(ctx, disc.RuleName, disc.EntityType, disc.EntityID, disc.FieldName)
	require.NoError(t, err)
	require.NoError(t, store.SetResolution(ctx, saved.DiscrepancyID, domain.ResolutionIgnored, strp("known shift feed jitter")))

	// Ignored discrepancies never reopen, even when the values drift.
	disc.SourceValues = map[string]any{"shift_chart": float64(1260), "boxscore": float64(1280)}
	require.NoError(t, store.SaveGameResults(ctx, nil, []domain.Discrepancy{disc}))

	got, err := store.GetDiscrepancy(ctx, disc.RuleName, disc.EntityType, disc.EntityID, disc.FieldName)
	require.NoError(t, err)
	assert.Equal(t, domain.ResolutionIgnored, got.Resolution)
	require.NotNil(t, got.ResolutionNote)
	assert.Equal(t, "known shift feed jitter", *got.ResolutionNote)
}

func TestGetDiscrepancy_Missing_ReturnsNil(t *testing.T) {
	pool := testPool(t)
	store := postgres.NewValidationStore(pool)

	d, err := store.GetDiscrepancy(context.Background(),
		"cross_source_pbp_boxscore_goals_home", "game", "999", "home_goals")
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestListOpenDiscrepancies_OrdersAndLimits(t *testing.T) {
	pool := testPool(t)
	store := postgres.NewValidationStore(pool)
	ctx := context.Background()

	mk := func(entityID string) domain.Discrepancy {
		return domain.Discrepancy{
			RuleName:   "cross_source_pbp_boxscore_goals_home",
			EntityType: "game", EntityID: entityID, FieldName: "home_goals",
			Severity:     domain.SeverityError,
			SourceValues: map[string]any{"play_by_play": float64(1), "boxscore": float64(2)},
		}
	}
	require.NoError(t, store.SaveGameResults(ctx, nil, []domain.Discrepancy{mk("2024020500")}))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, store.SaveGameResults(ctx, nil, []domain.Discrepancy{mk("2024020501")}))

	// Resolve the older one; only the newer stays in the open list.
	older, err := store.GetDiscrepancy(ctx, "cross_source_pbp_boxscore_goals_home", "game", "2024020500", "home_goals")
	require.NoError(t, err)
	require.NoError(t, store.SetResolution(ctx, older.DiscrepancyID, domain.ResolutionResolved, nil))

	open, err := store.ListOpenDiscrepancies(ctx, 0)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "2024020501", open[0].EntityID)

	// Reopen and check ordering: most recently seen first.
	require.NoError(t, store.SetResolution(ctx, older.DiscrepancyID, domain.ResolutionOpen, nil))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, store.SaveGameResults(ctx, nil, []domain.Discrepancy{mk("2024020500")}))

	open, err = store.ListOpenDiscrepancies(ctx, 0)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "2024020500", open[0].EntityID)

	limited, err := store.ListOpenDiscrepancies(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestDeleteRunsBefore_RemovesTerminalRunsOnly(t *testing.T) {
	pool := testPool(t)
	store := postgres.NewValidationStore(pool)
	ctx := context.Background()

	oldRun := newRun(t, store)
	require.NoError(t, store.FinishRun(ctx, oldRun, domain.ValidationRunCompleted, 16, 10, 0, 0))
	// Age the run past the cutoff.
	_, err := pool.Exec(ctx,
		`UPDATE validation_runs SET completed_at = now() - interval '60 days' WHERE run_id = $1`,
		oldRun)
	require.NoError(t, err)

	recentRun := newRun(t, store)
	require.NoError(t, store.FinishRun(ctx, recentRun, domain.ValidationRunCompleted, 16, 10, 0, 0))

	runningRun := newRun(t, store)

	n, err := store.DeleteRunsBefore(ctx, time.Now().AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	gone, err := store.GetRun(ctx, oldRun)
	require.NoError(t, err)
	assert.Nil(t, gone)
	kept, err := store.GetRun(ctx, recentRun)
	require.NoError(t, err)
	assert.NotNil(t, kept)
	still, err := store.GetRun(ctx, runningRun)
	require.NoError(t, err)
	assert.NotNil(t, still)
}
