package nhlapi

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rinkdata/rink/internal/cache"
	"github.com/rinkdata/rink/internal/domain"
	"github.com/rinkdata/rink/internal/fetch"
	"github.com/rinkdata/rink/internal/sources"
)

// GameLogAdapter downloads per-player season game logs. Enumeration walks
// every team roster, memoized through the shared roster cache so a run
// costs one roster fetch per team at most.
type GameLogAdapter struct {
	fetcher  *sources.Fetcher
	baseURL  string
	season   int
	gameType int
	rosters  *cache.Cache[string, *domain.TeamRoster]
}

// NewGameLog constructs the player game-log adapter.
func NewGameLog(deps sources.Deps) (sources.Adapter, error) {
	return &GameLogAdapter{
		fetcher:  newFetcher(deps, SourcePlayerGameLog),
		baseURL:  deps.Config.NHLAPI.BaseURL,
		gameType: domain.GameTypeRegular,
		rosters:  deps.Rosters,
	}, nil
}

func (a *GameLogAdapter) SourceName() string { return SourcePlayerGameLog }

func (a *GameLogAdapter) EnumerateItems(ctx context.Context, season int, fn func(string) error) error {
	a.season = season
	for _, abbrev := range TeamAbbrevs {
		roster, err := a.teamRoster(ctx, abbrev, season)
		if err != nil {
			return fmt.Errorf("roster %s: %w", abbrev, err)
		}
		for _, p := range roster.Players {
			if err := fn(strconv.FormatInt(p.PlayerID, 10)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *GameLogAdapter) teamRoster(ctx context.Context, abbrev string, season int) (*domain.TeamRoster, error) {
	key := rosterCacheKey(abbrev, season)
	if a.rosters != nil {
		if roster, ok := a.rosters.Get(key); ok {
			return roster, nil
		}
	}
	roster, err := fetchRoster(ctx, a.fetcher, a.baseURL, abbrev, season)
	if err != nil {
		return nil, err
	}
	if a.rosters != nil {
		a.rosters.Set(key, roster)
	}
	return roster, nil
}

func (a *GameLogAdapter) FetchOne(ctx context.Context, itemKey string) (domain.Parsed, error) {
	playerID, err := strconv.ParseInt(itemKey, 10, 64)
	if err != nil || playerID <= 0 {
		return nil, fmt.Errorf("invalid player id %q", itemKey)
	}

	var wire wireGameLog
	url := fetch.BaseJoin(a.baseURL,
		fmt.Sprintf("v1/player/%d/game-log/%d/%d", playerID, a.season, a.gameType))
	if err := a.fetcher.GetJSON(ctx, itemKey, url, nil, &wire); err != nil {
		return nil, err
	}
	return convertGameLog(playerID, a.season, a.gameType, &wire), nil
}

func (a *GameLogAdapter) Persist(ctx context.Context, store sources.EntityStore, parsed domain.Parsed) (int64, error) {
	log, ok := parsed.(*domain.PlayerGameLog)
	if !ok {
		return 0, fmt.Errorf("%s: unexpected entity %T", SourcePlayerGameLog, parsed)
	}
	return store.UpsertPlayerGameLog(ctx, log)
}

func (a *GameLogAdapter) HealthCheck(ctx context.Context) bool {
	return a.fetcher.HealthCheck(ctx, fetch.BaseJoin(a.baseURL, "v1/schedule/now"))
}

func (a *GameLogAdapter) LastFetchBytes() int { return a.fetcher.LastFetchBytes() }

func (a *GameLogAdapter) LastFetchAttempts() int { return a.fetcher.LastFetchAttempts() }

type wireGameLogEntry struct {
	GameID         int64  `json:"gameId"`
	GameDate       string `json:"gameDate"`
	TeamAbbrev     string `json:"teamAbbrev"`
	OpponentAbbrev string `json:"opponentAbbrev"`
	HomeRoadFlag   string `json:"homeRoadFlag"`
	Goals          int    `json:"goals"`
	Assists        int    `json:"assists"`
	Points         int    `json:"points"`
	PlusMinus      *int   `json:"plusMinus"`
	Shots          int    `json:"shots"`
	Shifts         *int   `json:"shifts"`
	TOI            string `json:"toi"`
}

type wireGameLog struct {
	GameLog []wireGameLogEntry `json:"gameLog"`
}

// convertGameLog accepts an empty log: players who dressed for no games
// still get a row, so re-runs skip them.
func convertGameLog(playerID int64, season, gameType int, wire *wireGameLog) *domain.PlayerGameLog {
	out := &domain.PlayerGameLog{
		PlayerID: playerID,
		SeasonID: season,
		GameType: gameType,
		Games:    make([]domain.GameLogEntry, 0, len(wire.GameLog)),
	}
	for _, g := range wire.GameLog {
		out.Games = append(out.Games, domain.GameLogEntry{
			GameID:         g.GameID,
			GameDate:       g.GameDate,
			TeamAbbrev:     g.TeamAbbrev,
			OpponentAbbrev: g.OpponentAbbrev,
			HomeRoad:       g.HomeRoadFlag,
			Goals:          g.Goals,
			Assists:        g.Assists,
			Points:         g.Points,
			PlusMinus:      g.PlusMinus,
			Shots:          g.Shots,
			Shifts:         g.Shifts,
			TOI:            g.TOI,
		})
	}
	return out
}
