package nhlapi

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rinkdata/rink/internal/domain"
	"github.com/rinkdata/rink/internal/fetch"
	"github.com/rinkdata/rink/internal/sources"
)

// BoxscoreAdapter downloads per-game boxscores.
type BoxscoreAdapter struct {
	fetcher *sources.Fetcher
	baseURL string
	store   sources.EntityStore
}

// NewBoxscore constructs the boxscore adapter.
func NewBoxscore(deps sources.Deps) (sources.Adapter, error) {
	return &BoxscoreAdapter{
		fetcher: newFetcher(deps, SourceBoxscore),
		baseURL: deps.Config.NHLAPI.BaseURL,
		store:   deps.Store,
	}, nil
}

func (a *BoxscoreAdapter) SourceName() string { return SourceBoxscore }

func (a *BoxscoreAdapter) EnumerateItems(ctx context.Context, season int, fn func(string) error) error {
	return enumerateScheduledGames(ctx, a.store, season, fn)
}

func (a *BoxscoreAdapter) FetchOne(ctx context.Context, itemKey string) (domain.Parsed, error) {
	gameID, err := parseGameKey(itemKey)
	if err != nil {
		return nil, err
	}

	var wire wireBoxscore
	url := fetch.BaseJoin(a.baseURL, fmt.Sprintf("v1/gamecenter/%d/boxscore", gameID))
	if err := a.fetcher.GetJSON(ctx, itemKey, url, nil, &wire); err != nil {
		return nil, err
	}
	return convertBoxscore(itemKey, gameID, &wire)
}

func (a *BoxscoreAdapter) Persist(ctx context.Context, store sources.EntityStore, parsed domain.Parsed) (int64, error) {
	box, ok := parsed.(*domain.GameBoxscore)
	if !ok {
		return 0, fmt.Errorf("%s: unexpected entity %T", SourceBoxscore, parsed)
	}
	return store.UpsertBoxscore(ctx, box)
}

func (a *BoxscoreAdapter) HealthCheck(ctx context.Context) bool {
	return a.fetcher.HealthCheck(ctx, fetch.BaseJoin(a.baseURL, "v1/schedule/now"))
}

func (a *BoxscoreAdapter) LastFetchBytes() int { return a.fetcher.LastFetchBytes() }

func (a *BoxscoreAdapter) LastFetchAttempts() int { return a.fetcher.LastFetchAttempts() }

// Wire shapes, field names as served.

type wireBoxTeam struct {
	ID     int    `json:"id"`
	Abbrev string `json:"abbrev"`
	Score  int    `json:"score"`
	SOG    int    `json:"sog"`
}

type wireSkater struct {
	PlayerID           int64    `json:"playerId"`
	Name               wireName `json:"name"`
	SweaterNumber      *int     `json:"sweaterNumber"`
	Position           string   `json:"position"`
	Goals              int      `json:"goals"`
	Assists            int      `json:"assists"`
	Points             int      `json:"points"`
	PlusMinus          *int     `json:"plusMinus"`
	PIM                int      `json:"pim"`
	SOG                int      `json:"sog"`
	Hits               *int     `json:"hits"`
	BlockedShots       *int     `json:"blockedShots"`
	PowerPlayGoals     int      `json:"powerPlayGoals"`
	ShorthandedGoals   int      `json:"shorthandedGoals"`
	FaceoffWinningPctg *float64 `json:"faceoffWinningPctg"`
	TOI                string   `json:"toi"`
	Shifts             *int     `json:"shifts"`
}

type wireGoalie struct {
	PlayerID         int64    `json:"playerId"`
	Name             wireName `json:"name"`
	SweaterNumber    *int     `json:"sweaterNumber"`
	SaveShotsAgainst string   `json:"saveShotsAgainst"`
	GoalsAgainst     int      `json:"goalsAgainst"`
	SavePctg         *float64 `json:"savePctg"`
	TOI              string   `json:"toi"`
	Starter          bool     `json:"starter"`
}

type wireTeamPlayers struct {
	Forwards []wireSkater `json:"forwards"`
	Defense  []wireSkater `json:"defense"`
	Goalies  []wireGoalie `json:"goalies"`
}

type wireBoxscore struct {
	ID                int64       `json:"id"`
	Season            int         `json:"season"`
	GameDate          string      `json:"gameDate"`
	GameState         string      `json:"gameState"`
	HomeTeam          wireBoxTeam `json:"homeTeam"`
	AwayTeam          wireBoxTeam `json:"awayTeam"`
	PlayerByGameStats struct {
		HomeTeam wireTeamPlayers `json:"homeTeam"`
		AwayTeam wireTeamPlayers `json:"awayTeam"`
	} `json:"playerByGameStats"`
}

func convertBoxscore(itemKey string, gameID int64, wire *wireBoxscore) (*domain.GameBoxscore, error) {
	if wire.ID == 0 || wire.HomeTeam.Abbrev == "" || wire.AwayTeam.Abbrev == "" {
		return nil, &sources.ParseError{
			Source: SourceBoxscore, Item: itemKey,
			Msg: "missing required fields (id, team abbrevs)",
		}
	}
	if wire.ID != gameID {
		return nil, &sources.ParseError{
			Source: SourceBoxscore, Item: itemKey,
			Msg: fmt.Sprintf("payload is for game %d", wire.ID),
		}
	}

	season := wire.Season
	if season == 0 {
		season = domain.SeasonOfGame(gameID)
	}

	return &domain.GameBoxscore{
		GameID:    gameID,
		SeasonID:  season,
		GameDate:  wire.GameDate,
		GameState: wire.GameState,
		HomeTeam:  convertTeamBoxscore(wire.HomeTeam, wire.PlayerByGameStats.HomeTeam),
		AwayTeam:  convertTeamBoxscore(wire.AwayTeam, wire.PlayerByGameStats.AwayTeam),
	}, nil
}

func convertTeamBoxscore(team wireBoxTeam, players wireTeamPlayers) domain.TeamBoxscore {
	out := domain.TeamBoxscore{
		TeamID:      team.ID,
		Abbrev:      team.Abbrev,
		Score:       team.Score,
		ShotsOnGoal: team.SOG,
	}
	for _, group := range [][]wireSkater{players.Forwards, players.Defense} {
		for _, sk := range group {
			out.Skaters = append(out.Skaters, convertSkater(sk))
		}
	}
	for _, g := range players.Goalies {
		out.Goalies = append(out.Goalies, convertGoalie(g))
	}
	return out
}

func convertSkater(sk wireSkater) domain.SkaterLine {
	line := domain.SkaterLine{
		PlayerID:         sk.PlayerID,
		Name:             sk.Name.Default,
		SweaterNumber:    sk.SweaterNumber,
		Position:         sk.Position,
		Goals:            sk.Goals,
		Assists:          sk.Assists,
		Points:           sk.Points,
		PlusMinus:        sk.PlusMinus,
		PenaltyMinutes:   sk.PIM,
		Shots:            sk.SOG,
		Hits:             sk.Hits,
		BlockedShots:     sk.BlockedShots,
		PowerPlayGoals:   sk.PowerPlayGoals,
		ShorthandedGoals: sk.ShorthandedGoals,
		TOI:              sk.TOI,
		Shifts:           sk.Shifts,
	}
	// The feed reports faceoff success as a fraction; the canonical form
	// is a percentage.
	if sk.FaceoffWinningPctg != nil {
		pct := *sk.FaceoffWinningPctg * 100
		line.FaceoffPct = &pct
	}
	return line
}

func convertGoalie(g wireGoalie) domain.GoalieLine {
	line := domain.GoalieLine{
		PlayerID:      g.PlayerID,
		Name:          g.Name.Default,
		SweaterNumber: g.SweaterNumber,
		GoalsAgainst:  g.GoalsAgainst,
		SavePct:       g.SavePctg,
		TOI:           g.TOI,
		Starter:       g.Starter,
	}
	// saveShotsAgainst is served as "saves/shots".
	if saves, shots, ok := splitFraction(g.SaveShotsAgainst); ok {
		line.Saves = saves
		line.ShotsAgainst = shots
	}
	return line
}

func splitFraction(s string) (int, int, bool) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	a, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	b, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return a, b, true
}
