package nhlapi

import (
	"context"
	"fmt"

	"github.com/rinkdata/rink/internal/domain"
	"github.com/rinkdata/rink/internal/fetch"
	"github.com/rinkdata/rink/internal/sources"
)

// PlayByPlayAdapter downloads per-game event feeds.
type PlayByPlayAdapter struct {
	fetcher *sources.Fetcher
	baseURL string
	store   sources.EntityStore
}

// NewPlayByPlay constructs the play-by-play adapter.
func NewPlayByPlay(deps sources.Deps) (sources.Adapter, error) {
	return &PlayByPlayAdapter{
		fetcher: newFetcher(deps, SourcePlayByPlay),
		baseURL: deps.Config.NHLAPI.BaseURL,
		store:   deps.Store,
	}, nil
}

func (a *PlayByPlayAdapter) SourceName() string { return SourcePlayByPlay }

func (a *PlayByPlayAdapter) EnumerateItems(ctx context.Context, season int, fn func(string) error) error {
	return enumerateScheduledGames(ctx, a.store, season, fn)
}

func (a *PlayByPlayAdapter) FetchOne(ctx context.Context, itemKey string) (domain.Parsed, error) {
	gameID, err := parseGameKey(itemKey)
	if err != nil {
		return nil, err
	}

	var wire wirePlayByPlay
	url := fetch.BaseJoin(a.baseURL, fmt.Sprintf("v1/gamecenter/%d/play-by-play", gameID))
	if err := a.fetcher.GetJSON(ctx, itemKey, url, nil, &wire); err != nil {
		return nil, err
	}
	return convertPlayByPlay(itemKey, gameID, &wire)
}

func (a *PlayByPlayAdapter) Persist(ctx context.Context, store sources.EntityStore, parsed domain.Parsed) (int64, error) {
	pbp, ok := parsed.(*domain.GamePlayByPlay)
	if !ok {
		return 0, fmt.Errorf("%s: unexpected entity %T", SourcePlayByPlay, parsed)
	}
	return store.UpsertPlayByPlay(ctx, pbp)
}

func (a *PlayByPlayAdapter) HealthCheck(ctx context.Context) bool {
	return a.fetcher.HealthCheck(ctx, fetch.BaseJoin(a.baseURL, "v1/schedule/now"))
}

func (a *PlayByPlayAdapter) LastFetchBytes() int { return a.fetcher.LastFetchBytes() }

func (a *PlayByPlayAdapter) LastFetchAttempts() int { return a.fetcher.LastFetchAttempts() }

type wirePlay struct {
	EventID          int `json:"eventId"`
	PeriodDescriptor struct {
		Number     int    `json:"number"`
		PeriodType string `json:"periodType"`
	} `json:"periodDescriptor"`
	TimeInPeriod string         `json:"timeInPeriod"`
	TypeCode     int            `json:"typeCode"`
	TypeDescKey  string         `json:"typeDescKey"`
	Details      map[string]any `json:"details"`
}

type wirePlayByPlay struct {
	ID       int64       `json:"id"`
	Season   int         `json:"season"`
	HomeTeam wireBoxTeam `json:"homeTeam"`
	AwayTeam wireBoxTeam `json:"awayTeam"`
	Plays    []wirePlay  `json:"plays"`
}

func convertPlayByPlay(itemKey string, gameID int64, wire *wirePlayByPlay) (*domain.GamePlayByPlay, error) {
	if wire.ID == 0 || wire.HomeTeam.Abbrev == "" || wire.AwayTeam.Abbrev == "" {
		return nil, &sources.ParseError{
			Source: SourcePlayByPlay, Item: itemKey,
			Msg: "missing required fields (id, team abbrevs)",
		}
	}

	season := wire.Season
	if season == 0 {
		season = domain.SeasonOfGame(gameID)
	}

	out := &domain.GamePlayByPlay{
		GameID:     gameID,
		SeasonID:   season,
		HomeTeamID: wire.HomeTeam.ID,
		AwayTeamID: wire.AwayTeam.ID,
		HomeAbbrev: wire.HomeTeam.Abbrev,
		AwayAbbrev: wire.AwayTeam.Abbrev,
		Events:     make([]domain.PlayEvent, 0, len(wire.Plays)),
	}
	for _, p := range wire.Plays {
		ev := domain.PlayEvent{
			EventID:      p.EventID,
			Period:       p.PeriodDescriptor.Number,
			PeriodType:   p.PeriodDescriptor.PeriodType,
			TimeInPeriod: p.TimeInPeriod,
			TypeCode:     p.TypeCode,
			TypeKey:      p.TypeDescKey,
			Details:      p.Details,
		}
		// The owning team travels inside details as a JSON number.
		if owner, ok := p.Details["eventOwnerTeamId"].(float64); ok {
			teamID := int(owner)
			ev.TeamID = &teamID
		}
		out.Events = append(out.Events, ev)
	}
	return out, nil
}
