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

// LinesAdapter scrapes line combinations, one item per team slug.
type LinesAdapter struct {
	fetcher *sources.Fetcher
	baseURL string
	slugs   []string
	now     func() time.Time
}

// NewLines constructs the line-combinations adapter.
func NewLines(deps sources.Deps) (sources.Adapter, error) {
	cfg := deps.Config.Scrape
	return &LinesAdapter{
		fetcher: newFetcher(deps, SourceTeamLines),
		baseURL: cfg.BaseURL,
		slugs:   teamSlugs(cfg.TeamSlugs),
		now:     time.Now,
	}, nil
}

func (a *LinesAdapter) SourceName() string { return SourceTeamLines }

func (a *LinesAdapter) EnumerateItems(ctx context.Context, season int, fn func(string) error) error {
	for _, slug := range a.slugs {
		if err := fn(slug); err != nil {
			return err
		}
	}
	return nil
}

func (a *LinesAdapter) FetchOne(ctx context.Context, itemKey string) (domain.Parsed, error) {
	url := fetch.BaseJoin(a.baseURL, fmt.Sprintf("teams/%s/line-combinations", itemKey))
	resp, err := a.fetcher.Get(ctx, itemKey, url, nil)
	if err != nil {
		return nil, err
	}

	lines := &domain.TeamLines{TeamSlug: itemKey, CapturedAt: a.now().UTC()}
	if raw := extractNextData(resp.Body); raw != nil && parseLinesJSON(raw, lines) {
		return lines, nil
	}
	if err := parseLinesDOM(itemKey, resp.Body, lines); err != nil {
		return nil, err
	}
	return lines, nil
}

func (a *LinesAdapter) Persist(ctx context.Context, store sources.EntityStore, parsed domain.Parsed) (int64, error) {
	lines, ok := parsed.(*domain.TeamLines)
	if !ok {
		return 0, fmt.Errorf("%s: unexpected entity %T", SourceTeamLines, parsed)
	}
	return store.UpsertTeamLines(ctx, lines)
}

func (a *LinesAdapter) HealthCheck(ctx context.Context) bool {
	return a.fetcher.HealthCheck(ctx, a.baseURL)
}

func (a *LinesAdapter) LastFetchBytes() int { return a.fetcher.LastFetchBytes() }

func (a *LinesAdapter) LastFetchAttempts() int { return a.fetcher.LastFetchAttempts() }

type nextDataLines struct {
	Props struct {
		PageProps struct {
			Combinations struct {
				Forwards  [][]string `json:"forwards"`
				Defense   [][]string `json:"defense"`
				PowerPlay [][]string `json:"powerPlay"`
				Goalies   []string   `json:"goalies"`
			} `json:"combinations"`
		} `json:"pageProps"`
	} `json:"props"`
}

// parseLinesJSON fills lines from the embedded payload. False means the
// JSON was malformed or empty and the caller should fall back to the DOM.
func parseLinesJSON(raw []byte, lines *domain.TeamLines) bool {
	var wire nextDataLines
	if err := json.Unmarshal(raw, &wire); err != nil {
		return false
	}
	combos := wire.Props.PageProps.Combinations
	if len(combos.Forwards) == 0 && len(combos.Defense) == 0 {
		return false
	}
	lines.ForwardLines = cleanGroups(combos.Forwards)
	lines.DefensePairs = cleanGroups(combos.Defense)
	lines.PowerPlayUnits = cleanGroups(combos.PowerPlay)
	for _, g := range combos.Goalies {
		if g = cleanName(g); g != "" {
			lines.Goalies = append(lines.Goalies, g)
		}
	}
	return true
}

func cleanGroups(groups [][]string) [][]string {
	var out [][]string
	for _, group := range groups {
		var names []string
		for _, name := range group {
			if name = cleanName(name); name != "" {
				names = append(names, name)
			}
		}
		if len(names) > 0 {
			out = append(out, names)
		}
	}
	return out
}

// parseLinesDOM is the CSS-class fallback for pages rendered without the
// embedded payload.
func parseLinesDOM(itemKey string, body []byte, lines *domain.TeamLines) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return sources.NewParseError(SourceTeamLines, itemKey, "unparsable HTML: "+err.Error(), body)
	}

	lines.ForwardLines = domGroups(doc, "section.forwards div.line")
	lines.DefensePairs = domGroups(doc, "section.defense div.pair")
	lines.PowerPlayUnits = domGroups(doc, "section.powerplay div.unit")
	doc.Find("section.goalies span.player-name").Each(func(_ int, s *goquery.Selection) {
		if name := cleanName(s.Text()); name != "" {
			lines.Goalies = append(lines.Goalies, name)
		}
	})

	if len(lines.ForwardLines) == 0 && len(lines.DefensePairs) == 0 {
		return sources.NewParseError(SourceTeamLines, itemKey, "no line combinations found", body)
	}
	return nil
}

func domGroups(doc *goquery.Document, selector string) [][]string {
	var out [][]string
	doc.Find(selector).Each(func(_ int, group *goquery.Selection) {
		var names []string
		group.Find("span.player-name").Each(func(_ int, s *goquery.Selection) {
			if name := cleanName(s.Text()); name != "" {
				names = append(names, name)
			}
		})
		if len(names) > 0 {
			out = append(out, names)
		}
	})
	return out
}
