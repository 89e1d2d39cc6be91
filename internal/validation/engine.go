package validation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rinkdata/rink/internal/domain"
)

// RuleStore is the persistence surface the engine writes through.
// Implemented by *postgres.ValidationStore.
type RuleStore interface {
	ListActiveRules(ctx context.Context) ([]domain.ValidationRule, error)
	CreateRun(ctx context.Context, run *domain.ValidationRun) error
	SaveGameResults(ctx context.Context, results []domain.ValidationResult, discrepancies []domain.Discrepancy) error
	FinishRun(ctx context.Context, runID uuid.UUID, status domain.ValidationRunStatus, rulesChecked, passed, failed, warnings int) error
}

// GameSource loads the parsed entities rules run against. Implemented by
// *postgres.GameStore.
type GameSource interface {
	GamesPendingValidation(ctx context.Context, seasonID *int, limit int) ([]int64, error)
	GetBoxscore(ctx context.Context, gameID int64) (*domain.GameBoxscore, error)
	GetPlayByPlay(ctx context.Context, gameID int64) (*domain.GamePlayByPlay, error)
	GetShiftChart(ctx context.Context, gameID int64) (*domain.ShiftChart, error)
	GetScheduleGame(ctx context.Context, gameID int64) (*domain.ScheduleGame, error)
	GetGameSummaryReport(ctx context.Context, gameID int64) (*domain.GameSummary, error)
}

// Engine runs the active validation rules over the games in scope.
type Engine struct {
	store  RuleStore
	games  GameSource
	checks map[string]CheckFunc
}

// NewEngine builds an Engine bound to the built-in rule checks.
func NewEngine(store RuleStore, games GameSource) *Engine {
	return &Engine{store: store, games: games, checks: builtinChecks()}
}

// Run executes one validation run. A non-nil gameID scopes the run to a
// single game; otherwise every game of the season with the full JSON
// entity set and no prior results is evaluated. The rule set comes from
// the store in stable (category, name) order; each game's results and
// discrepancy updates land in one transaction. A failed game load skips
// that game without failing the run; a failed save fails the run.
func (e *Engine) Run(ctx context.Context, runID uuid.UUID, season int, gameID *int64) error {
	rules, err := e.store.ListActiveRules(ctx)
	if err != nil {
		return fmt.Errorf("list active rules: %w", err)
	}

	var seasonID *int
	if season > 0 {
		seasonID = &season
	}
	run := &domain.ValidationRun{RunID: runID, SeasonID: seasonID}
	if gameID != nil {
		run.Metadata = map[string]any{"game_id": *gameID}
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	var scope []int64
	if gameID != nil {
		scope = []int64{*gameID}
	} else {
		scope, err = e.games.GamesPendingValidation(ctx, seasonID, 0)
		if err != nil {
			e.finish(ctx, runID, domain.ValidationRunFailed, 0, 0, 0, 0)
			return fmt.Errorf("games pending validation: %w", err)
		}
	}

	var (
		rulesChecked, totalPassed, totalFailed, totalWarnings int
		runErr                                                error
	)
	for _, game := range scope {
		if ctx.Err() != nil {
			runErr = ctx.Err()
			break
		}
		facts, err := e.loadFacts(ctx, game)
		if err != nil {
			slog.Error("load game facts", "run_id", runID, "game_id", game, "error", err)
			continue
		}

		var (
			results       []domain.ValidationResult
			discrepancies []domain.Discrepancy
		)
		for _, rule := range rules {
			check, ok := e.checks[rule.Name]
			if !ok {
				slog.Warn("no check bound for rule", "rule", rule.Name)
				continue
			}
			rulesChecked++
			for _, rr := range check(facts, rule.Config) {
				results = append(results, domain.ValidationResult{
					RunID:        runID,
					RuleID:       rule.RuleID,
					GameID:       &game,
					Passed:       rr.Passed,
					Severity:     rule.Severity,
					Message:      rr.Message,
					Details:      rr.Details,
					SourceValues: rr.SourceValues,
				})
				switch {
				case rr.Passed:
					totalPassed++
				case rule.Severity == domain.SeverityError:
					totalFailed++
				default:
					totalWarnings++
				}
				if !rr.Passed && rule.Category == domain.RuleCategoryCrossSource && rr.EntityID != "" {
					discrepancies = append(discrepancies, domain.Discrepancy{
						RuleName:     rule.Name,
						EntityType:   rr.EntityType,
						EntityID:     rr.EntityID,
						FieldName:    rr.FieldName,
						Severity:     rule.Severity,
						SourceValues: rr.SourceValues,
						Difference:   rr.Difference,
					})
				}
			}
		}

		if err := e.store.SaveGameResults(ctx, results, discrepancies); err != nil {
			slog.Error("save game results", "run_id", runID, "game_id", game, "error", err)
			runErr = err
			break
		}
	}

	status := domain.ValidationRunCompleted
	if runErr != nil {
		status = domain.ValidationRunFailed
	}
	e.finish(ctx, runID, status, rulesChecked, totalPassed, totalFailed, totalWarnings)
	slog.Info("validation run finished",
		"run_id", runID, "status", status, "games", len(scope),
		"rules_checked", rulesChecked, "passed", totalPassed,
		"failed", totalFailed, "warnings", totalWarnings)
	return runErr
}

func (e *Engine) finish(ctx context.Context, runID uuid.UUID, status domain.ValidationRunStatus, rulesChecked, passed, failed, warnings int) {
	if err := e.store.FinishRun(ctx, runID, status, rulesChecked, passed, failed, warnings); err != nil {
		slog.Error("finish validation run", "run_id", runID, "error", err)
	}
}

// loadFacts loads every parsed entity for one game concurrently. Absent
// entities come back nil; a store error fails the whole load.
func (e *Engine) loadFacts(ctx context.Context, gameID int64) (*GameFacts, error) {
	f := &GameFacts{GameID: gameID}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { f.Boxscore, err = e.games.GetBoxscore(ctx, gameID); return })
	g.Go(func() (err error) { f.PlayByPlay, err = e.games.GetPlayByPlay(ctx, gameID); return })
	g.Go(func() (err error) { f.ShiftChart, err = e.games.GetShiftChart(ctx, gameID); return })
	g.Go(func() (err error) { f.Schedule, err = e.games.GetScheduleGame(ctx, gameID); return })
	g.Go(func() (err error) { f.GameSummary, err = e.games.GetGameSummaryReport(ctx, gameID); return })
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return f, nil
}
