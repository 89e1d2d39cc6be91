// Package nhlapi implements the JSON API source family: boxscores,
// play-by-play, shift charts, schedule, standings, rosters, and player
// game logs. All adapters share one paced fetcher per batch and decode
// the provider's camelCase payloads into the canonical snake_case domain
// entities.
package nhlapi

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rinkdata/rink/internal/domain"
	"github.com/rinkdata/rink/internal/ratelimit"
	"github.com/rinkdata/rink/internal/retry"
	"github.com/rinkdata/rink/internal/sources"
)

// Source names in the registry catalogue.
const (
	SourceBoxscore      = "nhl_boxscore"
	SourcePlayByPlay    = "nhl_playbyplay"
	SourceShifts        = "nhl_shifts"
	SourceSchedule      = "nhl_schedule"
	SourceStandings     = "nhl_standings"
	SourceRoster        = "nhl_roster"
	SourcePlayerGameLog = "nhl_player_gamelog"
)

// TeamAbbrevs is the current league, in alphabetical order. Rosters and
// game logs enumerate from it.
var TeamAbbrevs = []string{
	"ANA", "BOS", "BUF", "CAR", "CBJ", "CGY", "CHI", "COL",
	"DAL", "DET", "EDM", "FLA", "LAK", "MIN", "MTL", "NJD",
	"NSH", "NYI", "NYR", "OTT", "PHI", "PIT", "SEA", "SJS",
	"STL", "TBL", "TOR", "UTA", "VAN", "VGK", "WPG", "WSH",
}

// newFetcher builds the family fetcher for one adapter from the shared
// API client and the nhl_api config block.
func newFetcher(deps sources.Deps, sourceName string) *sources.Fetcher {
	cfg := deps.Config.NHLAPI
	return sources.NewFetcher(
		sourceName,
		deps.APIClient,
		ratelimit.New(cfg.RequestsPerSecond),
		retry.New(retry.Config{MaxRetries: cfg.MaxRetries}),
	)
}

// parseGameKey converts an item key to a validated game id.
func parseGameKey(itemKey string) (int64, error) {
	gameID, err := strconv.ParseInt(itemKey, 10, 64)
	if err != nil || !domain.ValidGameID(gameID) {
		return 0, fmt.Errorf("invalid game id %q", itemKey)
	}
	return gameID, nil
}

// enumerateScheduledGames walks the persisted schedule's regular-season
// and playoff game ids for one season. Game-keyed adapters depend on the
// schedule source having run first; an empty schedule yields zero items.
func enumerateScheduledGames(ctx context.Context, store sources.EntityStore, season int, fn func(string) error) error {
	ids, err := store.ScheduledGameIDs(ctx, season, []int{domain.GameTypeRegular, domain.GameTypePlayoffs})
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := fn(strconv.FormatInt(id, 10)); err != nil {
			return err
		}
	}
	return nil
}

// wireName is the provider's localized-string wrapper.
type wireName struct {
	Default string `json:"default"`
}
