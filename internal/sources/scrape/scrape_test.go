package scrape

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rinkdata/rink/internal/config"
	"github.com/rinkdata/rink/internal/domain"
	"github.com/rinkdata/rink/internal/fetch"
	"github.com/rinkdata/rink/internal/sources"
	"github.com/rinkdata/rink/internal/sourcetest"
)

func testDeps(t *testing.T, upstream *sourcetest.Upstream, slugs ...string) sources.Deps {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Scrape.BaseURL = upstream.URL()
	cfg.Scrape.RequestsPerSecond = 10000
	cfg.Scrape.MaxRetries = 0
	cfg.Scrape.TeamSlugs = slugs

	clientCfg := fetch.DefaultConfig("rink-test/1.0")
	clientCfg.DisableBreaker = true
	client, err := fetch.New(clientCfg)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return sources.Deps{Config: cfg, Store: sourcetest.NewStore(), ScrapeClient: client}
}

const linesNextData = `<html><body>
<script id="__NEXT_DATA__" type="application/json">
{"props":{"pageProps":{"combinations":{
"forwards":[["Nathan MacKinnon","Mikko Rantanen","Artturi Lehkonen"],["Casey Mittelstadt","Valeri Nichushkin","Jonathan Drouin"]],
"defense":[["Cale Makar","Devon Toews"]],
"powerPlay":[["Nathan MacKinnon","Cale Makar"]],
"goalies":["Mackenzie Blackwood","Scott Wedgewood"]}}}}
</script>
</body></html>`

const linesDOMOnly = `<html><body>
<section class="forwards">
<div class="line"><span class="player-name">Nathan MacKinnon</span><span class="player-name">Mikko Rantanen</span></div>
</section>
<section class="defense">
<div class="pair"><span class="player-name">Cale Makar</span><span class="player-name">Devon Toews</span></div>
</section>
<section class="goalies"><span class="player-name">Mackenzie Blackwood</span></section>
</body></html>`

func TestLinesAdapter_FetchOne_EmbeddedJSON(t *testing.T) {
	upstream := sourcetest.NewUpstream(t)
	upstream.HTML("/teams/colorado-avalanche/line-combinations", 200, linesNextData)
	a, err := NewLines(testDeps(t, upstream, "colorado-avalanche"))
	require.NoError(t, err)

	parsed, err := a.FetchOne(context.Background(), "colorado-avalanche")
	require.NoError(t, err)

	lines := parsed.(*domain.TeamLines)
	assert.Equal(t, "colorado-avalanche", lines.TeamSlug)
	require.Len(t, lines.ForwardLines, 2)
	assert.Equal(t, []string{"Nathan MacKinnon", "Mikko Rantanen", "Artturi Lehkonen"}, lines.ForwardLines[0])
	require.Len(t, lines.DefensePairs, 1)
	assert.Equal(t, []string{"Mackenzie Blackwood", "Scott Wedgewood"}, lines.Goalies)
	assert.False(t, lines.CapturedAt.IsZero())
}

func TestLinesAdapter_FetchOne_DOMFallback(t *testing.T) {
	upstream := sourcetest.NewUpstream(t)
	upstream.HTML("/teams/colorado-avalanche/line-combinations", 200, linesDOMOnly)
	a, err := NewLines(testDeps(t, upstream, "colorado-avalanche"))
	require.NoError(t, err)

	parsed, err := a.FetchOne(context.Background(), "colorado-avalanche")
	require.NoError(t, err)

	lines := parsed.(*domain.TeamLines)
	require.Len(t, lines.ForwardLines, 1)
	assert.Equal(t, []string{"Nathan MacKinnon", "Mikko Rantanen"}, lines.ForwardLines[0])
	assert.Equal(t, []string{"Mackenzie Blackwood"}, lines.Goalies)
}

func TestLinesAdapter_FetchOne_MalformedJSONFallsBackToDOM(t *testing.T) {
	page := `<html><body>
<script id="__NEXT_DATA__" type="application/json">{not json</script>
<section class="forwards"><div class="line"><span class="player-name">Nathan MacKinnon</span></div></section>
<section class="defense"><div class="pair"><span class="player-name">Cale Makar</span></div></section>
</body></html>`
	upstream := sourcetest.NewUpstream(t)
	upstream.HTML("/teams/colorado-avalanche/line-combinations", 200, page)
	a, err := NewLines(testDeps(t, upstream, "colorado-avalanche"))
	require.NoError(t, err)

	parsed, err := a.FetchOne(context.Background(), "colorado-avalanche")
	require.NoError(t, err)
	assert.Len(t, parsed.(*domain.TeamLines).ForwardLines, 1)
}

func TestLinesAdapter_FetchOne_NoLinesAnywhere(t *testing.T) {
	upstream := sourcetest.NewUpstream(t)
	upstream.HTML("/teams/colorado-avalanche/line-combinations", 200, "<html><body>maintenance</body></html>")
	a, err := NewLines(testDeps(t, upstream, "colorado-avalanche"))
	require.NoError(t, err)

	_, err = a.FetchOne(context.Background(), "colorado-avalanche")
	var perr *sources.ParseError
	require.ErrorAs(t, err, &perr)
}

func TestLinesAdapter_EnumerateItems_DefaultsToLeague(t *testing.T) {
	upstream := sourcetest.NewUpstream(t)
	a, err := NewLines(testDeps(t, upstream))
	require.NoError(t, err)

	var keys []string
	require.NoError(t, a.EnumerateItems(context.Background(), 20242025, func(key string) error {
		keys = append(keys, key)
		return nil
	}))
	assert.Len(t, keys, 32)
	assert.Contains(t, keys, "utah-mammoth")
}

func TestInjuriesAdapter_FetchOne_EmbeddedJSON(t *testing.T) {
	page := `<html><body><script id="__NEXT_DATA__" type="application/json">
{"props":{"pageProps":{"injuries":[
{"name":"Gabriel Landeskog","position":"LW","status":"IR","note":"knee"},
{"name":"Tucker Poolman","position":"D","status":"Out","note":""}]}}}
</script></body></html>`
	upstream := sourcetest.NewUpstream(t)
	upstream.HTML("/teams/colorado-avalanche/injuries", 200, page)
	a, err := NewInjuries(testDeps(t, upstream, "colorado-avalanche"))
	require.NoError(t, err)

	parsed, err := a.FetchOne(context.Background(), "colorado-avalanche")
	require.NoError(t, err)

	report := parsed.(*domain.InjuryReport)
	require.Len(t, report.Injuries, 2)
	assert.Equal(t, "Gabriel Landeskog", report.Injuries[0].PlayerName)
	assert.Equal(t, "IR", report.Injuries[0].Status)
}

func TestInjuriesAdapter_FetchOne_HealthyTeamIsEmptyReport(t *testing.T) {
	page := `<html><body><script id="__NEXT_DATA__" type="application/json">
{"props":{"pageProps":{"injuries":[]}}}
</script></body></html>`
	upstream := sourcetest.NewUpstream(t)
	upstream.HTML("/teams/colorado-avalanche/injuries", 200, page)
	a, err := NewInjuries(testDeps(t, upstream, "colorado-avalanche"))
	require.NoError(t, err)

	parsed, err := a.FetchOne(context.Background(), "colorado-avalanche")
	require.NoError(t, err)
	assert.Empty(t, parsed.(*domain.InjuryReport).Injuries)
}

func TestInjuriesAdapter_FetchOne_DOMFallback(t *testing.T) {
	page := `<html><body><table class="injury-table">
<tr class="injury-row"><td>Gabriel Landeskog</td><td>LW</td><td>IR</td><td>knee</td></tr>
</table></body></html>`
	upstream := sourcetest.NewUpstream(t)
	upstream.HTML("/teams/colorado-avalanche/injuries", 200, page)
	a, err := NewInjuries(testDeps(t, upstream, "colorado-avalanche"))
	require.NoError(t, err)

	parsed, err := a.FetchOne(context.Background(), "colorado-avalanche")
	require.NoError(t, err)

	report := parsed.(*domain.InjuryReport)
	require.Len(t, report.Injuries, 1)
	assert.Equal(t, "knee", report.Injuries[0].Note)
}

func TestGoaliesAdapter_FetchOne_EmbeddedJSON(t *testing.T) {
	page := `<html><body><script id="__NEXT_DATA__" type="application/json">
{"props":{"pageProps":{"games":[
{"homeTeam":"COL","awayTeam":"CHI",
"homeGoalie":{"name":"Mackenzie Blackwood","confidence":"Confirmed"},
"awayGoalie":{"name":"Petr Mrazek","confidence":"Likely"}}]}}}
</script></body></html>`
	upstream := sourcetest.NewUpstream(t)
	upstream.HTML("/starting-goalies/2024-12-15", 200, page)
	a, err := NewGoalies(testDeps(t, upstream))
	require.NoError(t, err)

	parsed, err := a.FetchOne(context.Background(), "2024-12-15")
	require.NoError(t, err)

	starts := parsed.(*domain.StartingGoalies)
	assert.Equal(t, "2024-12-15", starts.Date)
	require.Len(t, starts.Games, 1)
	assert.Equal(t, "Mackenzie Blackwood", starts.Games[0].HomeGoalie)
	assert.Equal(t, "Likely", starts.Games[0].AwayConfidence)
}

func TestGoaliesAdapter_FetchOne_DOMFallback(t *testing.T) {
	page := `<html><body>
<div class="goalie-matchup">
<span class="away-team">CHI</span><span class="home-team">COL</span>
<span class="away-goalie">Petr Mrazek</span><span class="home-goalie">Mackenzie Blackwood</span>
<span class="home-confidence">Confirmed</span>
</div>
</body></html>`
	upstream := sourcetest.NewUpstream(t)
	upstream.HTML("/starting-goalies/2024-12-15", 200, page)
	a, err := NewGoalies(testDeps(t, upstream))
	require.NoError(t, err)

	parsed, err := a.FetchOne(context.Background(), "2024-12-15")
	require.NoError(t, err)

	starts := parsed.(*domain.StartingGoalies)
	require.Len(t, starts.Games, 1)
	assert.Equal(t, "COL", starts.Games[0].HomeTeam)
	assert.Equal(t, "Confirmed", starts.Games[0].HomeConfidence)
}

func TestGoaliesAdapter_FetchOne_InvalidDateKey(t *testing.T) {
	upstream := sourcetest.NewUpstream(t)
	a, err := NewGoalies(testDeps(t, upstream))
	require.NoError(t, err)

	_, err = a.FetchOne(context.Background(), "not-a-date")
	assert.Error(t, err)
}

func TestAdapters_Persist(t *testing.T) {
	upstream := sourcetest.NewUpstream(t)
	deps := testDeps(t, upstream, "colorado-avalanche")
	store := deps.Store.(*sourcetest.Store)
	ctx := context.Background()

	lines, err := NewLines(deps)
	require.NoError(t, err)
	_, err = lines.Persist(ctx, store, &domain.TeamLines{TeamSlug: "colorado-avalanche"})
	require.NoError(t, err)
	assert.Contains(t, store.TeamLines, "colorado-avalanche")

	injuries, err := NewInjuries(deps)
	require.NoError(t, err)
	_, err = injuries.Persist(ctx, store, &domain.InjuryReport{TeamSlug: "colorado-avalanche"})
	require.NoError(t, err)
	assert.Contains(t, store.Injuries, "colorado-avalanche")

	goalies, err := NewGoalies(deps)
	require.NoError(t, err)
	_, err = goalies.Persist(ctx, store, &domain.StartingGoalies{Date: "2024-12-15"})
	require.NoError(t, err)
	assert.Contains(t, store.GoalieStarts, "2024-12-15")

	_, err = goalies.Persist(ctx, store, &domain.TeamLines{})
	assert.Error(t, err)
}

func TestExtractNextData(t *testing.T) {
	assert.Nil(t, extractNextData([]byte("<html><body>plain</body></html>")))
	assert.Nil(t, extractNextData([]byte(`<html><script>var x=1</script></html>`)))

	raw := extractNextData([]byte(`<html><script id="__NEXT_DATA__" type="application/json">{"a":1}</script></html>`))
	assert.JSONEq(t, `{"a":1}`, string(raw))
}

func TestCleanName(t *testing.T) {
	assert.Equal(t, "Nathan MacKinnon", cleanName("  Nathan MacKinnon (C) "))
	assert.Equal(t, "Cale Makar", cleanName("Cale Makar"))
	assert.Equal(t, "", cleanName("   "))
}
