package nhlapi

import (
	"context"
	"fmt"

	"github.com/rinkdata/rink/internal/domain"
	"github.com/rinkdata/rink/internal/fetch"
	"github.com/rinkdata/rink/internal/parse"
	"github.com/rinkdata/rink/internal/sources"
)

// ShiftsAdapter downloads per-game shift charts from the stats API host.
type ShiftsAdapter struct {
	fetcher *sources.Fetcher
	baseURL string
	store   sources.EntityStore
}

// NewShifts constructs the shift-chart adapter.
func NewShifts(deps sources.Deps) (sources.Adapter, error) {
	return &ShiftsAdapter{
		fetcher: newFetcher(deps, SourceShifts),
		baseURL: deps.Config.NHLAPI.StatsBaseURL,
		store:   deps.Store,
	}, nil
}

func (a *ShiftsAdapter) SourceName() string { return SourceShifts }

func (a *ShiftsAdapter) EnumerateItems(ctx context.Context, season int, fn func(string) error) error {
	return enumerateScheduledGames(ctx, a.store, season, fn)
}

func (a *ShiftsAdapter) FetchOne(ctx context.Context, itemKey string) (domain.Parsed, error) {
	gameID, err := parseGameKey(itemKey)
	if err != nil {
		return nil, err
	}

	var wire wireShiftChart
	url := fetch.BaseJoin(a.baseURL, "en/shiftcharts")
	opts := &fetch.RequestOptions{
		Params: map[string]string{"cayenneExp": fmt.Sprintf("gameId=%d", gameID)},
	}
	if err := a.fetcher.GetJSON(ctx, itemKey, url, opts, &wire); err != nil {
		return nil, err
	}
	return convertShiftChart(gameID, &wire), nil
}

func (a *ShiftsAdapter) Persist(ctx context.Context, store sources.EntityStore, parsed domain.Parsed) (int64, error) {
	chart, ok := parsed.(*domain.ShiftChart)
	if !ok {
		return 0, fmt.Errorf("%s: unexpected entity %T", SourceShifts, parsed)
	}
	return store.UpsertShiftChart(ctx, chart)
}

func (a *ShiftsAdapter) HealthCheck(ctx context.Context) bool {
	return a.fetcher.HealthCheck(ctx, fetch.BaseJoin(a.baseURL, "en/shiftcharts?cayenneExp=gameId=0"))
}

func (a *ShiftsAdapter) LastFetchBytes() int { return a.fetcher.LastFetchBytes() }

func (a *ShiftsAdapter) LastFetchAttempts() int { return a.fetcher.LastFetchAttempts() }

type wireShift struct {
	PlayerID         int64   `json:"playerId"`
	FirstName        string  `json:"firstName"`
	LastName         string  `json:"lastName"`
	TeamID           int     `json:"teamId"`
	TeamAbbrev       string  `json:"teamAbbrev"`
	Period           int     `json:"period"`
	StartTime        string  `json:"startTime"`
	EndTime          string  `json:"endTime"`
	Duration         *string `json:"duration"`
	ShiftNumber      int     `json:"shiftNumber"`
	TypeCode         int     `json:"typeCode"`
	EventDescription *string `json:"eventDescription"`
}

type wireShiftChart struct {
	Data  []wireShift `json:"data"`
	Total int         `json:"total"`
}

// convertShiftChart keeps every row, goal markers included; consumers
// filter on TypeCode. An empty data set is a valid chart (pre-game).
func convertShiftChart(gameID int64, wire *wireShiftChart) *domain.ShiftChart {
	out := &domain.ShiftChart{
		GameID:   gameID,
		SeasonID: domain.SeasonOfGame(gameID),
		Shifts:   make([]domain.Shift, 0, len(wire.Data)),
	}
	for _, s := range wire.Data {
		shift := domain.Shift{
			PlayerID:         s.PlayerID,
			FirstName:        s.FirstName,
			LastName:         s.LastName,
			TeamID:           s.TeamID,
			TeamAbbrev:       s.TeamAbbrev,
			Period:           s.Period,
			StartTime:        s.StartTime,
			EndTime:          s.EndTime,
			ShiftNumber:      s.ShiftNumber,
			TypeCode:         s.TypeCode,
			EventDescription: s.EventDescription,
		}
		if s.Duration != nil {
			shift.DurationSeconds = parse.MMSS(*s.Duration)
		}
		out.Shifts = append(out.Shifts, shift)
	}
	return out
}
