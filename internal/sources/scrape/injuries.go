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

// InjuriesAdapter scrapes injury reports, one item per team slug. An
// injury-free team parses to an empty report, which still lands so re-runs
// skip it.
type InjuriesAdapter struct {
	fetcher *sources.Fetcher
	baseURL string
	slugs   []string
	now     func() time.Time
}

// NewInjuries constructs the injury-report adapter.
func NewInjuries(deps sources.Deps) (sources.Adapter, error) {
	cfg := deps.Config.Scrape
	return &InjuriesAdapter{
		fetcher: newFetcher(deps, SourceTeamInjuries),
		baseURL: cfg.BaseURL,
		slugs:   teamSlugs(cfg.TeamSlugs),
		now:     time.Now,
	}, nil
}

func (a *InjuriesAdapter) SourceName() string { return SourceTeamInjuries }

func (a *InjuriesAdapter) EnumerateItems(ctx context.Context, season int, fn func(string) error) error {
	for _, slug := range a.slugs {
		if err := fn(slug); err != nil {
			return err
		}
	}
	return nil
}

func (a *InjuriesAdapter) FetchOne(ctx context.Context, itemKey string) (domain.Parsed, error) {
	url := fetch.BaseJoin(a.baseURL, fmt.Sprintf("teams/%s/injuries", itemKey))
	resp, err := a.fetcher.Get(ctx, itemKey, url, nil)
	if err != nil {
		return nil, err
	}

	report := &domain.InjuryReport{TeamSlug: itemKey, CapturedAt: a.now().UTC()}
	if raw := extractNextData(resp.Body); raw != nil && parseInjuriesJSON(raw, report) {
		return report, nil
	}
	if err := parseInjuriesDOM(itemKey, resp.Body, report); err != nil {
		return nil, err
	}
	return report, nil
}

func (a *InjuriesAdapter) Persist(ctx context.Context, store sources.EntityStore, parsed domain.Parsed) (int64, error) {
	report, ok := parsed.(*domain.InjuryReport)
	if !ok {
		return 0, fmt.Errorf("%s: unexpected entity %T", SourceTeamInjuries, parsed)
	}
	return store.UpsertInjuryReport(ctx, report)
}

func (a *InjuriesAdapter) HealthCheck(ctx context.Context) bool {
	return a.fetcher.HealthCheck(ctx, a.baseURL)
}

func (a *InjuriesAdapter) LastFetchBytes() int { return a.fetcher.LastFetchBytes() }

func (a *InjuriesAdapter) LastFetchAttempts() int { return a.fetcher.LastFetchAttempts() }

type nextDataInjuries struct {
	Props struct {
		PageProps struct {
			Injuries []struct {
				Name     string `json:"name"`
				Position string `json:"position"`
				Status   string `json:"status"`
				Note     string `json:"note"`
			} `json:"injuries"`
		} `json:"pageProps"`
	} `json:"props"`
}

func parseInjuriesJSON(raw []byte, report *domain.InjuryReport) bool {
	var wire nextDataInjuries
	if err := json.Unmarshal(raw, &wire); err != nil {
		return false
	}
	for _, row := range wire.Props.PageProps.Injuries {
		name := cleanName(row.Name)
		if name == "" {
			continue
		}
		report.Injuries = append(report.Injuries, domain.PlayerInjury{
			PlayerName: name,
			Position:   row.Position,
			Status:     row.Status,
			Note:       row.Note,
		})
	}
	return true
}

// Fallback row layout: name, position, status, note.
func parseInjuriesDOM(itemKey string, body []byte, report *domain.InjuryReport) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return sources.NewParseError(SourceTeamInjuries, itemKey, "unparsable HTML: "+err.Error(), body)
	}
	doc.Find("table.injury-table tr.injury-row").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		name := cleanName(cells.Eq(0).Text())
		if name == "" {
			return
		}
		report.Injuries = append(report.Injuries, domain.PlayerInjury{
			PlayerName: name,
			Position:   cleanName(cells.Eq(1).Text()),
			Status:     cleanName(cells.Eq(2).Text()),
			Note:       cleanName(cells.Eq(3).Text()),
		})
	})
	return nil
}
