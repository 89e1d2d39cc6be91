package nhlapi

import (
	"context"
	"fmt"
	"time"

	"github.com/rinkdata/rink/internal/domain"
	"github.com/rinkdata/rink/internal/fetch"
	"github.com/rinkdata/rink/internal/sources"
)

// StandingsAdapter captures the current standings as a dated snapshot.
// One item per run; repeated runs on the same day overwrite the snapshot.
type StandingsAdapter struct {
	fetcher *sources.Fetcher
	baseURL string
	now     func() time.Time
}

// NewStandings constructs the standings adapter.
func NewStandings(deps sources.Deps) (sources.Adapter, error) {
	return &StandingsAdapter{
		fetcher: newFetcher(deps, SourceStandings),
		baseURL: deps.Config.NHLAPI.BaseURL,
		now:     time.Now,
	}, nil
}

func (a *StandingsAdapter) SourceName() string { return SourceStandings }

func (a *StandingsAdapter) EnumerateItems(ctx context.Context, season int, fn func(string) error) error {
	return fn("now")
}

func (a *StandingsAdapter) FetchOne(ctx context.Context, itemKey string) (domain.Parsed, error) {
	var wire wireStandings
	url := fetch.BaseJoin(a.baseURL, "v1/standings/now")
	if err := a.fetcher.GetJSON(ctx, itemKey, url, nil, &wire); err != nil {
		return nil, err
	}
	if len(wire.Standings) == 0 {
		return nil, &sources.ParseError{
			Source: SourceStandings, Item: itemKey, Msg: "empty standings payload",
		}
	}
	return convertStandings(a.now().UTC(), &wire), nil
}

func (a *StandingsAdapter) Persist(ctx context.Context, store sources.EntityStore, parsed domain.Parsed) (int64, error) {
	snap, ok := parsed.(*domain.StandingsSnapshot)
	if !ok {
		return 0, fmt.Errorf("%s: unexpected entity %T", SourceStandings, parsed)
	}
	return store.UpsertStandings(ctx, snap)
}

func (a *StandingsAdapter) HealthCheck(ctx context.Context) bool {
	return a.fetcher.HealthCheck(ctx, fetch.BaseJoin(a.baseURL, "v1/standings/now"))
}

func (a *StandingsAdapter) LastFetchBytes() int { return a.fetcher.LastFetchBytes() }

func (a *StandingsAdapter) LastFetchAttempts() int { return a.fetcher.LastFetchAttempts() }

type wireStandingsRow struct {
	TeamAbbrev  wireName `json:"teamAbbrev"`
	SeasonID    int      `json:"seasonId"`
	GamesPlayed int      `json:"gamesPlayed"`
	Wins        int      `json:"wins"`
	Losses      int      `json:"losses"`
	OTLosses    int      `json:"otLosses"`
	Points      int      `json:"points"`
	GoalFor     int      `json:"goalFor"`
	GoalAgainst int      `json:"goalAgainst"`
}

type wireStandings struct {
	Standings []wireStandingsRow `json:"standings"`
}

func convertStandings(capturedAt time.Time, wire *wireStandings) *domain.StandingsSnapshot {
	snap := &domain.StandingsSnapshot{
		SeasonID:   wire.Standings[0].SeasonID,
		CapturedAt: capturedAt,
		Rows:       make([]domain.StandingsRow, 0, len(wire.Standings)),
	}
	for _, r := range wire.Standings {
		snap.Rows = append(snap.Rows, domain.StandingsRow{
			TeamAbbrev:   r.TeamAbbrev.Default,
			GamesPlayed:  r.GamesPlayed,
			Wins:         r.Wins,
			Losses:       r.Losses,
			OTLosses:     r.OTLosses,
			Points:       r.Points,
			GoalsFor:     r.GoalFor,
			GoalsAgainst: r.GoalAgainst,
		})
	}
	return snap
}
