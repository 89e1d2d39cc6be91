package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rinkdata/rink/internal/domain"
)

// GameStore persists parsed entities. Each table keeps its join keys as
// relational columns and the full parsed document as JSONB, so the
// reconciliation engine reloads exactly what the parser produced. All
// writes are natural-key upserts: the latest successful parse wins.
type GameStore struct {
	pool *pgxpool.Pool
}

// NewGameStore creates a GameStore backed by the given pool.
func NewGameStore(pool *pgxpool.Pool) *GameStore {
	return &GameStore{pool: pool}
}

// UpsertBoxscore stores one game boxscore. Returns rows affected.
func (s *GameStore) UpsertBoxscore(ctx context.Context, box *domain.GameBoxscore) (int64, error) {
	payload, err := json.Marshal(box)
	if err != nil {
		return 0, fmt.Errorf("marshal boxscore %d: %w", box.GameID, err)
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO game_boxscores (game_id, season_id, home_team, away_team, home_score, away_score, payload)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (game_id) DO UPDATE SET
			season_id = EXCLUDED.season_id,
			home_team = EXCLUDED.home_team,
			away_team = EXCLUDED.away_team,
			home_score = EXCLUDED.home_score,
			away_score = EXCLUDED.away_score,
			payload = EXCLUDED.payload,
			updated_at = now()`,
		box.GameID, box.SeasonID, box.HomeTeam.Abbrev, box.AwayTeam.Abbrev,
		box.HomeTeam.Score, box.AwayTeam.Score, payload)
	if err != nil {
		return 0, fmt.Errorf("upsert boxscore %d: %w", box.GameID, err)
	}
	return tag.RowsAffected(), nil
}

// UpsertPlayByPlay stores one play-by-play feed. Returns rows affected.
func (s *GameStore) UpsertPlayByPlay(ctx context.Context, pbp *domain.GamePlayByPlay) (int64, error) {
	payload, err := json.Marshal(pbp)
	if err != nil {
		return 0, fmt.Errorf("marshal play-by-play %d: %w", pbp.GameID, err)
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO game_play_by_play (game_id, season_id, home_team, away_team, event_count, payload)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (game_id) DO UPDATE SET
			season_id = EXCLUDED.season_id,
			home_team = EXCLUDED.home_team,
			away_team = EXCLUDED.away_team,
			event_count = EXCLUDED.event_count,
			payload = EXCLUDED.payload,
			updated_at = now()`,
		pbp.GameID, pbp.SeasonID, pbp.HomeAbbrev, pbp.AwayAbbrev, len(pbp.Events), payload)
	if err != nil {
		return 0, fmt.Errorf("upsert play-by-play %d: %w", pbp.GameID, err)
	}
	return tag.RowsAffected(), nil
}

// UpsertShiftChart stores one shift chart. Returns rows affected.
func (s *GameStore) UpsertShiftChart(ctx context.Context, chart *domain.ShiftChart) (int64, error) {
	payload, err := json.Marshal(chart)
	if err != nil {
		return 0, fmt.Errorf("marshal shift chart %d: %w", chart.GameID, err)
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO game_shift_charts (game_id, season_id, shift_count, payload)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (game_id) DO UPDATE SET
			season_id = EXCLUDED.season_id,
			shift_count = EXCLUDED.shift_count,
			payload = EXCLUDED.payload,
			updated_at = now()`,
		chart.GameID, chart.SeasonID, len(chart.Shifts), payload)
	if err != nil {
		return 0, fmt.Errorf("upsert shift chart %d: %w", chart.GameID, err)
	}
	return tag.RowsAffected(), nil
}

// UpsertReport stores one parsed HTML report under its genre code.
// Returns rows affected.
func (s *GameStore) UpsertReport(ctx context.Context, gameID int64, seasonID int, code domain.ReportCode, report any) (int64, error) {
	payload, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("marshal %s report %d: %w", code, gameID, err)
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO game_reports (game_id, report_code, season_id, payload)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (game_id, report_code) DO UPDATE SET
			season_id = EXCLUDED.season_id,
			payload = EXCLUDED.payload,
			updated_at = now()`,
		gameID, string(code), seasonID, payload)
	if err != nil {
		return 0, fmt.Errorf("upsert %s report %d: %w", code, gameID, err)
	}
	return tag.RowsAffected(), nil
}

// UpsertScheduleGames stores one row per scheduled game in a single
// round trip. Returns rows affected.
func (s *GameStore) UpsertScheduleGames(ctx context.Context, games []domain.ScheduleGame) (int64, error) {
	if len(games) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for i := range games {
		g := &games[i]
		payload, err := json.Marshal(g)
		if err != nil {
			return 0, fmt.Errorf("marshal schedule game %d: %w", g.GameID, err)
		}
		batch.Queue(
			`INSERT INTO schedule_games (game_id, season_id, game_type, game_date, game_state,
				home_team, away_team, home_score, away_score, payload)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (game_id) DO UPDATE SET
				season_id = EXCLUDED.season_id,
				game_type = EXCLUDED.game_type,
				game_date = EXCLUDED.game_date,
				game_state = EXCLUDED.game_state,
				home_team = EXCLUDED.home_team,
				away_team = EXCLUDED.away_team,
				home_score = EXCLUDED.home_score,
				away_score = EXCLUDED.away_score,
				payload = EXCLUDED.payload,
				updated_at = now()`,
			g.GameID, g.SeasonID, g.GameType, g.GameDate, g.GameState,
			g.HomeAbbrev, g.AwayAbbrev, intPtrToNullable(g.HomeScore), intPtrToNullable(g.AwayScore), payload)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	var affected int64
	for range games {
		tag, err := results.Exec()
		if err != nil {
			return affected, fmt.Errorf("upsert schedule games: %w", err)
		}
		affected += tag.RowsAffected()
	}
	return affected, nil
}

// UpsertStandings stores one standings snapshot, keyed by capture date so
// repeat fetches within a day overwrite rather than accumulate.
func (s *GameStore) UpsertStandings(ctx context.Context, snap *domain.StandingsSnapshot) (int64, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("marshal standings: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO standings_snapshots (season_id, captured_on, captured_at, payload)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (season_id, captured_on) DO UPDATE SET
			captured_at = EXCLUDED.captured_at,
			payload = EXCLUDED.payload,
			updated_at = now()`,
		snap.SeasonID, snap.CapturedAt.UTC().Format("2006-01-02"), snap.CapturedAt, payload)
	if err != nil {
		return 0, fmt.Errorf("upsert standings: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UpsertRoster stores one team-season roster. Returns rows affected.
func (s *GameStore) UpsertRoster(ctx context.Context, roster *domain.TeamRoster) (int64, error) {
	payload, err := json.Marshal(roster)
	if err != nil {
		return 0, fmt.Errorf("marshal roster %s: %w", roster.TeamAbbrev, err)
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO team_rosters (season_id, team_abbrev, payload)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (season_id, team_abbrev) DO UPDATE SET
			payload = EXCLUDED.payload,
			updated_at = now()`,
		roster.SeasonID, roster.TeamAbbrev, payload)
	if err != nil {
		return 0, fmt.Errorf("upsert roster %s: %w", roster.TeamAbbrev, err)
	}
	return tag.RowsAffected(), nil
}

// UpsertPlayerGameLog stores one player's season game log.
func (s *GameStore) UpsertPlayerGameLog(ctx context.Context, log *domain.PlayerGameLog) (int64, error) {
	payload, err := json.Marshal(log)
	if err != nil {
		return 0, fmt.Errorf("marshal game log %d: %w", log.PlayerID, err)
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO player_game_logs (player_id, season_id, game_type, payload)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (player_id, season_id, game_type) DO UPDATE SET
			payload = EXCLUDED.payload,
			updated_at = now()`,
		log.PlayerID, log.SeasonID, log.GameType, payload)
	if err != nil {
		return 0, fmt.Errorf("upsert game log %d: %w", log.PlayerID, err)
	}
	return tag.RowsAffected(), nil
}

// UpsertTeamLines stores one team's current line combinations.
func (s *GameStore) UpsertTeamLines(ctx context.Context, lines *domain.TeamLines) (int64, error) {
	payload, err := json.Marshal(lines)
	if err != nil {
		return 0, fmt.Errorf("marshal team lines %s: %w", lines.TeamSlug, err)
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO team_line_charts (team_slug, payload)
		 VALUES ($1, $2)
		 ON CONFLICT (team_slug) DO UPDATE SET
			payload = EXCLUDED.payload,
			updated_at = now()`,
		lines.TeamSlug, payload)
	if err != nil {
		return 0, fmt.Errorf("upsert team lines %s: %w", lines.TeamSlug, err)
	}
	return tag.RowsAffected(), nil
}

// UpsertInjuryReport stores one team's current injury list.
func (s *GameStore) UpsertInjuryReport(ctx context.Context, report *domain.InjuryReport) (int64, error) {
	payload, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("marshal injury report %s: %w", report.TeamSlug, err)
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO team_injury_reports (team_slug, payload)
		 VALUES ($1, $2)
		 ON CONFLICT (team_slug) DO UPDATE SET
			payload = EXCLUDED.payload,
			updated_at = now()`,
		report.TeamSlug, payload)
	if err != nil {
		return 0, fmt.Errorf("upsert injury report %s: %w", report.TeamSlug, err)
	}
	return tag.RowsAffected(), nil
}

// UpsertStartingGoalies stores one date's projected starters.
func (s *GameStore) UpsertStartingGoalies(ctx context.Context, starts *domain.StartingGoalies) (int64, error) {
	payload, err := json.Marshal(starts)
	if err != nil {
		return 0, fmt.Errorf("marshal starting goalies %s: %w", starts.Date, err)
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO goalie_starts (start_date, payload)
		 VALUES ($1, $2)
		 ON CONFLICT (start_date) DO UPDATE SET
			payload = EXCLUDED.payload,
			updated_at = now()`,
		starts.Date, payload)
	if err != nil {
		return 0, fmt.Errorf("upsert starting goalies %s: %w", starts.Date, err)
	}
	return tag.RowsAffected(), nil
}

// loadPayload reads one JSONB payload column into dst. Returns false when
// the row is absent.
func (s *GameStore) loadPayload(ctx context.Context, query string, dst any, args ...interface{}) (bool, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, query, args...).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return false, fmt.Errorf("unmarshal payload: %w", err)
	}
	return true, nil
}

// GetBoxscore returns the stored boxscore for a game, or (nil, nil) if absent.
func (s *GameStore) GetBoxscore(ctx context.Context, gameID int64) (*domain.GameBoxscore, error) {
	var box domain.GameBoxscore
	ok, err := s.loadPayload(ctx,
		`SELECT payload FROM game_boxscores WHERE game_id = $1`, &box, gameID)
	if err != nil {
		return nil, fmt.Errorf("get boxscore %d: %w", gameID, err)
	}
	if !ok {
		return nil, nil
	}
	return &box, nil
}

// GetPlayByPlay returns the stored play-by-play for a game, or (nil, nil) if absent.
func (s *GameStore) GetPlayByPlay(ctx context.Context, gameID int64) (*domain.GamePlayByPlay, error) {
	var pbp domain.GamePlayByPlay
	ok, err := s.loadPayload(ctx,
		`SELECT payload FROM game_play_by_play WHERE game_id = $1`, &pbp, gameID)
	if err != nil {
		return nil, fmt.Errorf("get play-by-play %d: %w", gameID, err)
	}
	if !ok {
		return nil, nil
	}
	return &pbp, nil
}

// GetShiftChart returns the stored shift chart for a game, or (nil, nil) if absent.
func (s *GameStore) GetShiftChart(ctx context.Context, gameID int64) (*domain.ShiftChart, error) {
	var chart domain.ShiftChart
	ok, err := s.loadPayload(ctx,
		`SELECT payload FROM game_shift_charts WHERE game_id = $1`, &chart, gameID)
	if err != nil {
		return nil, fmt.Errorf("get shift chart %d: %w", gameID, err)
	}
	if !ok {
		return nil, nil
	}
	return &chart, nil
}

// GetScheduleGame returns the stored schedule row for a game, or (nil, nil) if absent.
func (s *GameStore) GetScheduleGame(ctx context.Context, gameID int64) (*domain.ScheduleGame, error) {
	var game domain.ScheduleGame
	ok, err := s.loadPayload(ctx,
		`SELECT payload FROM schedule_games WHERE game_id = $1`, &game, gameID)
	if err != nil {
		return nil, fmt.Errorf("get schedule game %d: %w", gameID, err)
	}
	if !ok {
		return nil, nil
	}
	return &game, nil
}

// GetGameSummaryReport returns the parsed GS report for a game, or (nil, nil) if absent.
func (s *GameStore) GetGameSummaryReport(ctx context.Context, gameID int64) (*domain.GameSummary, error) {
	var gs domain.GameSummary
	ok, err := s.loadPayload(ctx,
		`SELECT payload FROM game_reports WHERE game_id = $1 AND report_code = 'GS'`, &gs, gameID)
	if err != nil {
		return nil, fmt.Errorf("get game summary %d: %w", gameID, err)
	}
	if !ok {
		return nil, nil
	}
	return &gs, nil
}

// GetEventSummaryReport returns the parsed ES report for a game, or (nil, nil) if absent.
func (s *GameStore) GetEventSummaryReport(ctx context.Context, gameID int64) (*domain.EventSummary, error) {
	var es domain.EventSummary
	ok, err := s.loadPayload(ctx,
		`SELECT payload FROM game_reports WHERE game_id = $1 AND report_code = 'ES'`, &es, gameID)
	if err != nil {
		return nil, fmt.Errorf("get event summary %d: %w", gameID, err)
	}
	if !ok {
		return nil, nil
	}
	return &es, nil
}

// Presence reports which parsed entities exist for a game.
func (s *GameStore) Presence(ctx context.Context, gameID int64) (domain.GameDataPresence, error) {
	var p domain.GameDataPresence
	err := s.pool.QueryRow(ctx,
		`SELECT
			EXISTS (SELECT 1 FROM game_boxscores WHERE game_id = $1),
			EXISTS (SELECT 1 FROM game_play_by_play WHERE game_id = $1),
			EXISTS (SELECT 1 FROM game_shift_charts WHERE game_id = $1),
			COALESCE((SELECT array_agg(report_code ORDER BY report_code)
			          FROM game_reports WHERE game_id = $1), '{}')`,
		gameID).Scan(&p.Boxscore, &p.PlayByPlay, &p.ShiftChart, &p.ReportCodes)
	if err != nil {
		return domain.GameDataPresence{}, fmt.Errorf("game presence %d: %w", gameID, err)
	}
	return p, nil
}

// GamesPendingValidation returns game ids that have the full JSON entity
// set persisted but no validation results yet, oldest game first.
// A nil season means all seasons. limit <= 0 means no limit.
func (s *GameStore) GamesPendingValidation(ctx context.Context, seasonID *int, limit int) ([]int64, error) {
	query := `SELECT b.game_id
		FROM game_boxscores b
		JOIN game_play_by_play p USING (game_id)
		JOIN game_shift_charts c USING (game_id)
		WHERE ($1::integer IS NULL OR b.season_id = $1)
		  AND NOT EXISTS (SELECT 1 FROM validation_results vr WHERE vr.game_id = b.game_id)
		ORDER BY b.game_id`
	args := []interface{}{intPtrToNullable(seasonID)}

	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("games pending validation: %w", err)
	}
	defer rows.Close()

	var result []int64
	for rows.Next() {
		var gameID int64
		if err := rows.Scan(&gameID); err != nil {
			return nil, fmt.Errorf("scan pending game: %w", err)
		}
		result = append(result, gameID)
	}
	return result, rows.Err()
}

// ScheduledGameIDs returns the persisted schedule's game ids for a season,
// filtered by game type, in id order. Game-keyed adapters use this to
// enumerate their work items.
func (s *GameStore) ScheduledGameIDs(ctx context.Context, seasonID int, gameTypes []int) ([]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT game_id FROM schedule_games
		 WHERE season_id = $1 AND game_type = ANY($2)
		 ORDER BY game_id`,
		seasonID, gameTypes)
	if err != nil {
		return nil, fmt.Errorf("scheduled game ids: %w", err)
	}
	defer rows.Close()

	var result []int64
	for rows.Next() {
		var gameID int64
		if err := rows.Scan(&gameID); err != nil {
			return nil, fmt.Errorf("scan game id: %w", err)
		}
		result = append(result, gameID)
	}
	return result, rows.Err()
}
