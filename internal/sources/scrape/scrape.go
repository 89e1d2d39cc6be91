// Package scrape implements the analytics-site sources: line combinations,
// injury reports, and projected starting goalies. Pages are server-rendered
// with an embedded __NEXT_DATA__ script; parsers probe that JSON first and
// fall back to DOM extraction when it is missing or malformed, emitting the
// same canonical entity either way.
package scrape

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"

	"github.com/rinkdata/rink/internal/ratelimit"
	"github.com/rinkdata/rink/internal/retry"
	"github.com/rinkdata/rink/internal/sources"
)

// Source names as seeded in the catalogue.
const (
	SourceTeamLines       = "team_lines"
	SourceTeamInjuries    = "team_injuries"
	SourceStartingGoalies = "starting_goalies"
)

// defaultTeamSlugs covers the league when the config does not narrow the
// set of teams to scrape.
var defaultTeamSlugs = []string{
	"anaheim-ducks", "boston-bruins", "buffalo-sabres", "calgary-flames",
	"carolina-hurricanes", "chicago-blackhawks", "colorado-avalanche",
	"columbus-blue-jackets", "dallas-stars", "detroit-red-wings",
	"edmonton-oilers", "florida-panthers", "los-angeles-kings",
	"minnesota-wild", "montreal-canadiens", "nashville-predators",
	"new-jersey-devils", "new-york-islanders", "new-york-rangers",
	"ottawa-senators", "philadelphia-flyers", "pittsburgh-penguins",
	"san-jose-sharks", "seattle-kraken", "st-louis-blues",
	"tampa-bay-lightning", "toronto-maple-leafs", "utah-mammoth",
	"vancouver-canucks", "vegas-golden-knights", "washington-capitals",
	"winnipeg-jets",
}

func newFetcher(deps sources.Deps, sourceName string) *sources.Fetcher {
	cfg := deps.Config.Scrape
	return sources.NewFetcher(
		sourceName,
		deps.ScrapeClient,
		ratelimit.New(cfg.RequestsPerSecond),
		retry.New(retry.Config{MaxRetries: cfg.MaxRetries}),
	)
}

func teamSlugs(configured []string) []string {
	if len(configured) > 0 {
		return configured
	}
	return defaultTeamSlugs
}

// extractNextData returns the body of the page's __NEXT_DATA__ script, or
// nil when the page carries none. Tokenizing avoids building a DOM for the
// common JSON-first path.
func extractNextData(body []byte) []byte {
	z := html.NewTokenizer(bytes.NewReader(body))
	inTarget := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			return nil
		case html.StartTagToken:
			name, hasAttr := z.TagName()
			if !strings.EqualFold(string(name), "script") {
				inTarget = false
				continue
			}
			found := false
			for hasAttr {
				var k, v []byte
				k, v, hasAttr = z.TagAttr()
				if string(k) == "id" && string(v) == "__NEXT_DATA__" {
					found = true
				}
			}
			inTarget = found
		case html.TextToken:
			if inTarget {
				text := z.Text()
				out := make([]byte, len(text))
				copy(out, text)
				return out
			}
		case html.EndTagToken:
			inTarget = false
		}
	}
}

// cleanName trims whitespace and the position suffix some page variants
// append in parentheses.
func cleanName(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, " ("); i > 0 && strings.HasSuffix(s, ")") {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
