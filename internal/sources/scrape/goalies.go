package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/rinkdata/rink/internal/domain"
	"github.com/rinkdata/rink/internal/fetch"
	"github.com/rinkdata/rink/internal/sources"
)

// GoaliesAdapter scrapes the projected starting goalies page. Items are
// dates; a normal run covers today only, so the snapshot tracks the page
// as it firms up through the day.
type GoaliesAdapter struct {
	fetcher *sources.Fetcher
	baseURL string
	now     func() time.Time
}

// NewGoalies constructs the starting-goalies adapter.
func NewGoalies(deps sources.Deps) (sources.Adapter, error) {
	return &GoaliesAdapter{
		fetcher: newFetcher(deps, SourceStartingGoalies),
		baseURL: deps.Config.Scrape.BaseURL,
		now:     time.Now,
	}, nil
}

func (a *GoaliesAdapter) SourceName() string { return SourceStartingGoalies }

func (a *GoaliesAdapter) EnumerateItems(ctx context.Context, season int, fn func(string) error) error {
	return fn(a.now().UTC().Format("2006-01-02"))
}

func (a *GoaliesAdapter) FetchOne(ctx context.Context, itemKey string) (domain.Parsed, error) {
	if _, err := time.Parse("2006-01-02", itemKey); err != nil {
		return nil, fmt.Errorf("invalid date key %q", itemKey)
	}

	url := fetch.BaseJoin(a.baseURL, "starting-goalies/"+itemKey)
	resp, err := a.fetcher.Get(ctx, itemKey, url, nil)
	if err != nil {
		return nil, err
	}

	starts := &domain.StartingGoalies{Date: itemKey, CapturedAt: a.now().UTC()}
	if raw := extractNextData(resp.Body); raw != nil && parseGoaliesJSON(raw, starts) {
		return starts, nil
	}
	if err := parseGoaliesDOM(itemKey, resp.Body, starts); err != nil {
		return nil, err
	}
	return starts, nil
}

func (a *GoaliesAdapter) Persist(ctx context.Context, store sources.EntityStore, parsed domain.Parsed) (int64, error) {
	starts, ok := parsed.(*domain.StartingGoalies)
	if !ok {
		return 0, fmt.Errorf("%s: unexpected entity %T", SourceStartingGoalies, parsed)
	}
	return store.UpsertStartingGoalies(ctx, starts)
}

func (a *GoaliesAdapter) HealthCheck(ctx context.Context) bool {
	return a.fetcher.HealthCheck(ctx, a.baseURL)
}

func (a *GoaliesAdapter) LastFetchBytes() int { return a.fetcher.LastFetchBytes() }

func (a *GoaliesAdapter) LastFetchAttempts() int { return a.fetcher.LastFetchAttempts() }

type nextDataGoalies struct {
	Props struct {
		PageProps struct {
			Games []struct {
				HomeTeam   string `json:"homeTeam"`
				AwayTeam   string `json:"awayTeam"`
				HomeGoalie struct {
					Name       string `json:"name"`
					Confidence string `json:"confidence"`
				} `json:"homeGoalie"`
				AwayGoalie struct {
					Name       string `json:"name"`
					Confidence string `json:"confidence"`
				} `json:"awayGoalie"`
			} `json:"games"`
		} `json:"pageProps"`
	} `json:"props"`
}

func parseGoaliesJSON(raw []byte, starts *domain.StartingGoalies) bool {
	var wire nextDataGoalies
	if err := json.Unmarshal(raw, &wire); err != nil {
		return false
	}
	if len(wire.Props.PageProps.Games) == 0 {
		return false
	}
	for _, g := range wire.Props.PageProps.Games {
		starts.Games = append(starts.Games, domain.GoalieStart{
			HomeTeam:       cleanName(g.HomeTeam),
			AwayTeam:       cleanName(g.AwayTeam),
			HomeGoalie:     cleanName(g.HomeGoalie.Name),
			AwayGoalie:     cleanName(g.AwayGoalie.Name),
			HomeConfidence: g.HomeGoalie.Confidence,
			AwayConfidence: g.AwayGoalie.Confidence,
		})
	}
	return true
}

// Fallback: one div.goalie-matchup per game with class-tagged spans. An
// off-day page with no matchups parses to an empty snapshot.
func parseGoaliesDOM(itemKey string, body []byte, starts *domain.StartingGoalies) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return sources.NewParseError(SourceStartingGoalies, itemKey, "unparsable HTML: "+err.Error(), body)
	}
	doc.Find("div.goalie-matchup").Each(func(_ int, m *goquery.Selection) {
		starts.Games = append(starts.Games, domain.GoalieStart{
			HomeTeam:       cleanName(m.Find("span.home-team").Text()),
			AwayTeam:       cleanName(m.Find("span.away-team").Text()),
			HomeGoalie:     cleanName(m.Find("span.home-goalie").Text()),
			AwayGoalie:     cleanName(m.Find("span.away-goalie").Text()),
			HomeConfidence: cleanName(m.Find("span.home-confidence").Text()),
			AwayConfidence: cleanName(m.Find("span.away-confidence").Text()),
		})
	})
	return nil
}
