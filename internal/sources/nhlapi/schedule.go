package nhlapi

import (
	"context"
	"fmt"
	"time"

	"github.com/rinkdata/rink/internal/domain"
	"github.com/rinkdata/rink/internal/fetch"
	"github.com/rinkdata/rink/internal/sources"
)

// ScheduleAdapter downloads the season schedule week by week. It is the
// seed source: game-keyed adapters enumerate from what it persists.
type ScheduleAdapter struct {
	fetcher *sources.Fetcher
	baseURL string
}

// NewSchedule constructs the schedule adapter.
func NewSchedule(deps sources.Deps) (sources.Adapter, error) {
	return &ScheduleAdapter{
		fetcher: newFetcher(deps, SourceSchedule),
		baseURL: deps.Config.NHLAPI.BaseURL,
	}, nil
}

func (a *ScheduleAdapter) SourceName() string { return SourceSchedule }

// EnumerateItems yields one week-start date per item from September 1 of
// the season's start year through July 1 of the following year. The feed
// returns a full game week per date, so a 7-day stride covers the season
// without overlap.
func (a *ScheduleAdapter) EnumerateItems(ctx context.Context, season int, fn func(string) error) error {
	year := season / 10000
	start := time.Date(year, time.September, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year+1, time.July, 1, 0, 0, 0, 0, time.UTC)

	for d := start; d.Before(end); d = d.AddDate(0, 0, 7) {
		if err := fn(d.Format("2006-01-02")); err != nil {
			return err
		}
	}
	return nil
}

func (a *ScheduleAdapter) FetchOne(ctx context.Context, itemKey string) (domain.Parsed, error) {
	if _, err := time.Parse("2006-01-02", itemKey); err != nil {
		return nil, fmt.Errorf("invalid schedule date %q", itemKey)
	}

	var wire wireScheduleWeek
	url := fetch.BaseJoin(a.baseURL, "v1/schedule/"+itemKey)
	if err := a.fetcher.GetJSON(ctx, itemKey, url, nil, &wire); err != nil {
		return nil, err
	}
	return convertScheduleWeek(itemKey, &wire), nil
}

func (a *ScheduleAdapter) Persist(ctx context.Context, store sources.EntityStore, parsed domain.Parsed) (int64, error) {
	day, ok := parsed.(*domain.ScheduleDay)
	if !ok {
		return 0, fmt.Errorf("%s: unexpected entity %T", SourceSchedule, parsed)
	}
	return store.UpsertScheduleGames(ctx, day.Games)
}

func (a *ScheduleAdapter) HealthCheck(ctx context.Context) bool {
	return a.fetcher.HealthCheck(ctx, fetch.BaseJoin(a.baseURL, "v1/schedule/now"))
}

func (a *ScheduleAdapter) LastFetchBytes() int { return a.fetcher.LastFetchBytes() }

func (a *ScheduleAdapter) LastFetchAttempts() int { return a.fetcher.LastFetchAttempts() }

type wireScheduleGame struct {
	ID           int64  `json:"id"`
	Season       int    `json:"season"`
	GameType     int    `json:"gameType"`
	StartTimeUTC string `json:"startTimeUTC"`
	GameState    string `json:"gameState"`
	HomeTeam     struct {
		Abbrev string `json:"abbrev"`
		Score  *int   `json:"score"`
	} `json:"homeTeam"`
	AwayTeam struct {
		Abbrev string `json:"abbrev"`
		Score  *int   `json:"score"`
	} `json:"awayTeam"`
	Venue wireName `json:"venue"`
}

type wireScheduleWeek struct {
	GameWeek []struct {
		Date  string             `json:"date"`
		Games []wireScheduleGame `json:"games"`
	} `json:"gameWeek"`
}

func convertScheduleWeek(itemKey string, wire *wireScheduleWeek) *domain.ScheduleDay {
	day := &domain.ScheduleDay{Date: itemKey}
	for _, wd := range wire.GameWeek {
		for _, g := range wd.Games {
			if g.ID == 0 {
				continue
			}
			season := g.Season
			if season == 0 {
				season = domain.SeasonOfGame(g.ID)
			}
			game := domain.ScheduleGame{
				GameID:     g.ID,
				SeasonID:   season,
				GameType:   g.GameType,
				GameDate:   wd.Date,
				GameState:  g.GameState,
				HomeAbbrev: g.HomeTeam.Abbrev,
				AwayAbbrev: g.AwayTeam.Abbrev,
				HomeScore:  g.HomeTeam.Score,
				AwayScore:  g.AwayTeam.Score,
				Venue:      g.Venue.Default,
			}
			if ts, err := time.Parse(time.RFC3339, g.StartTimeUTC); err == nil {
				game.StartTimeUTC = &ts
			}
			day.Games = append(day.Games, game)
		}
	}
	return day
}
