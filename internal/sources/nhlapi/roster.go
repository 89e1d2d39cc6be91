package nhlapi

import (
	"context"
	"fmt"

	"github.com/rinkdata/rink/internal/cache"
	"github.com/rinkdata/rink/internal/domain"
	"github.com/rinkdata/rink/internal/fetch"
	"github.com/rinkdata/rink/internal/sources"
)

// RosterAdapter downloads team-season rosters. Parsed rosters also feed
// the shared roster cache, which the game-log adapter enumerates from.
type RosterAdapter struct {
	fetcher *sources.Fetcher
	baseURL string
	season  int
	rosters *cache.Cache[string, *domain.TeamRoster]
}

// NewRoster constructs the roster adapter.
func NewRoster(deps sources.Deps) (sources.Adapter, error) {
	return &RosterAdapter{
		fetcher: newFetcher(deps, SourceRoster),
		baseURL: deps.Config.NHLAPI.BaseURL,
		rosters: deps.Rosters,
	}, nil
}

func (a *RosterAdapter) SourceName() string { return SourceRoster }

func (a *RosterAdapter) EnumerateItems(ctx context.Context, season int, fn func(string) error) error {
	a.season = season
	for _, abbrev := range TeamAbbrevs {
		if err := fn(abbrev); err != nil {
			return err
		}
	}
	return nil
}

func (a *RosterAdapter) FetchOne(ctx context.Context, itemKey string) (domain.Parsed, error) {
	roster, err := fetchRoster(ctx, a.fetcher, a.baseURL, itemKey, a.season)
	if err != nil {
		return nil, err
	}
	if a.rosters != nil {
		a.rosters.Set(rosterCacheKey(itemKey, a.season), roster)
	}
	return roster, nil
}

func (a *RosterAdapter) Persist(ctx context.Context, store sources.EntityStore, parsed domain.Parsed) (int64, error) {
	roster, ok := parsed.(*domain.TeamRoster)
	if !ok {
		return 0, fmt.Errorf("%s: unexpected entity %T", SourceRoster, parsed)
	}
	return store.UpsertRoster(ctx, roster)
}

func (a *RosterAdapter) HealthCheck(ctx context.Context) bool {
	return a.fetcher.HealthCheck(ctx, fetch.BaseJoin(a.baseURL, "v1/schedule/now"))
}

func (a *RosterAdapter) LastFetchBytes() int { return a.fetcher.LastFetchBytes() }

func (a *RosterAdapter) LastFetchAttempts() int { return a.fetcher.LastFetchAttempts() }

func rosterCacheKey(abbrev string, season int) string {
	return fmt.Sprintf("%s/%d", abbrev, season)
}

type wireRosterPlayer struct {
	ID            int64    `json:"id"`
	FirstName     wireName `json:"firstName"`
	LastName      wireName `json:"lastName"`
	SweaterNumber *int     `json:"sweaterNumber"`
	PositionCode  string   `json:"positionCode"`
	ShootsCatches string   `json:"shootsCatches"`
}

type wireRoster struct {
	Forwards   []wireRosterPlayer `json:"forwards"`
	Defensemen []wireRosterPlayer `json:"defensemen"`
	Goalies    []wireRosterPlayer `json:"goalies"`
}

// fetchRoster downloads and converts one team-season roster. Shared with
// the game-log adapter's enumeration.
func fetchRoster(ctx context.Context, f *sources.Fetcher, baseURL, abbrev string, season int) (*domain.TeamRoster, error) {
	var wire wireRoster
	url := fetch.BaseJoin(baseURL, fmt.Sprintf("v1/roster/%s/%d", abbrev, season))
	if err := f.GetJSON(ctx, abbrev, url, nil, &wire); err != nil {
		return nil, err
	}

	out := &domain.TeamRoster{TeamAbbrev: abbrev, SeasonID: season}
	for _, group := range [][]wireRosterPlayer{wire.Forwards, wire.Defensemen, wire.Goalies} {
		for _, p := range group {
			if p.ID == 0 {
				continue
			}
			out.Players = append(out.Players, domain.RosterPlayer{
				PlayerID:      p.ID,
				FirstName:     p.FirstName.Default,
				LastName:      p.LastName.Default,
				Position:      p.PositionCode,
				SweaterNumber: p.SweaterNumber,
				ShootsCatches: p.ShootsCatches,
			})
		}
	}
	if len(out.Players) == 0 {
		return nil, &sources.ParseError{
			Source: SourceRoster, Item: abbrev, Msg: "empty roster payload",
		}
	}
	return out, nil
}
