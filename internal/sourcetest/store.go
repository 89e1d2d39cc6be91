package sourcetest

import (
	"context"
	"sort"
	"sync"

	"github.com/rinkdata/rink/internal/domain"
)

// Store is an in-memory EntityStore. ScheduledGameIDs derives from
// upserted schedule rows, so seeding a schedule is enough to drive
// game-keyed adapter enumeration.
type Store struct {
	mu sync.Mutex

	Boxscores     map[int64]*domain.GameBoxscore
	PlayByPlays   map[int64]*domain.GamePlayByPlay
	ShiftCharts   map[int64]*domain.ShiftChart
	Reports       map[int64]map[domain.ReportCode]any
	ScheduleGames map[int64]domain.ScheduleGame
	Standings     []*domain.StandingsSnapshot
	Rosters       map[string]*domain.TeamRoster
	GameLogs      map[int64]*domain.PlayerGameLog
	TeamLines     map[string]*domain.TeamLines
	Injuries      map[string]*domain.InjuryReport
	GoalieStarts  map[string]*domain.StartingGoalies
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		Boxscores:     make(map[int64]*domain.GameBoxscore),
		PlayByPlays:   make(map[int64]*domain.GamePlayByPlay),
		ShiftCharts:   make(map[int64]*domain.ShiftChart),
		Reports:       make(map[int64]map[domain.ReportCode]any),
		ScheduleGames: make(map[int64]domain.ScheduleGame),
		Rosters:       make(map[string]*domain.TeamRoster),
		GameLogs:      make(map[int64]*domain.PlayerGameLog),
		TeamLines:     make(map[string]*domain.TeamLines),
		Injuries:      make(map[string]*domain.InjuryReport),
		GoalieStarts:  make(map[string]*domain.StartingGoalies),
	}
}

// SeedSchedule registers schedule rows directly.
func (s *Store) SeedSchedule(games ...domain.ScheduleGame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range games {
		s.ScheduleGames[g.GameID] = g
	}
}

func (s *Store) UpsertBoxscore(ctx context.Context, box *domain.GameBoxscore) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Boxscores[box.GameID] = box
	return 1, nil
}

func (s *Store) UpsertPlayByPlay(ctx context.Context, pbp *domain.GamePlayByPlay) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PlayByPlays[pbp.GameID] = pbp
	return 1, nil
}

func (s *Store) UpsertShiftChart(ctx context.Context, chart *domain.ShiftChart) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ShiftCharts[chart.GameID] = chart
	return 1, nil
}

func (s *Store) UpsertReport(ctx context.Context, gameID int64, seasonID int, code domain.ReportCode, report any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Reports[gameID] == nil {
		s.Reports[gameID] = make(map[domain.ReportCode]any)
	}
	s.Reports[gameID][code] = report
	return 1, nil
}

func (s *Store) UpsertScheduleGames(ctx context.Context, games []domain.ScheduleGame) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range games {
		s.ScheduleGames[g.GameID] = g
	}
	return int64(len(games)), nil
}

func (s *Store) UpsertStandings(ctx context.Context, snap *domain.StandingsSnapshot) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Standings = append(s.Standings, snap)
	return 1, nil
}

func (s *Store) UpsertRoster(ctx context.Context, roster *domain.TeamRoster) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Rosters[roster.TeamAbbrev] = roster
	return 1, nil
}

func (s *Store) UpsertPlayerGameLog(ctx context.Context, log *domain.PlayerGameLog) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GameLogs[log.PlayerID] = log
	return 1, nil
}

func (s *Store) UpsertTeamLines(ctx context.Context, lines *domain.TeamLines) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TeamLines[lines.TeamSlug] = lines
	return 1, nil
}

func (s *Store) UpsertInjuryReport(ctx context.Context, report *domain.InjuryReport) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Injuries[report.TeamSlug] = report
	return 1, nil
}

func (s *Store) UpsertStartingGoalies(ctx context.Context, starts *domain.StartingGoalies) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GoalieStarts[starts.Date] = starts
	return 1, nil
}

func (s *Store) ScheduledGameIDs(ctx context.Context, seasonID int, gameTypes []int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[int]bool, len(gameTypes))
	for _, t := range gameTypes {
		wanted[t] = true
	}

	var ids []int64
	for id, g := range s.ScheduleGames {
		if g.SeasonID == seasonID && wanted[g.GameType] {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
