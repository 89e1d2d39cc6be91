package htmlreport

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rinkdata/rink/internal/config"
	"github.com/rinkdata/rink/internal/domain"
	"github.com/rinkdata/rink/internal/fetch"
	"github.com/rinkdata/rink/internal/sources"
	"github.com/rinkdata/rink/internal/sourcetest"
)

const (
	testGameID = int64(2024020500)
	testSeason = 20242025
)

func testAdapter(t *testing.T, upstream *sourcetest.Upstream, mutate func(*config.Config)) (*Adapter, *sourcetest.Store) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.HTMLReports.BaseURL = upstream.URL()
	cfg.HTMLReports.RequestsPerSecond = 10000
	cfg.HTMLReports.MaxRetries = 0
	if mutate != nil {
		mutate(cfg)
	}

	clientCfg := fetch.DefaultConfig("rink-test/1.0")
	clientCfg.DisableBreaker = true
	client, err := fetch.New(clientCfg)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	store := sourcetest.NewStore()
	a, err := New(sources.Deps{Config: cfg, Store: store, HTMLClient: client})
	require.NoError(t, err)
	return a.(*Adapter), store
}

func docFrom(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func headingTable(name string) string {
	return fmt.Sprintf(`<table><tr><td class="teamHeading">%s</td></tr></table>`, name)
}

// esFixture renders one skater table per team with the given row count
// plus a trailing TEAM TOTALS row.
func esFixture(skatersPerTeam int) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	team := func(name string, offset int) {
		b.WriteString(headingTable(name))
		b.WriteString(`<table class="playerTable">`)
		for i := 0; i < skatersPerTeam; i++ {
			cls := "evenColor"
			if i%2 == 1 {
				cls = "oddColor"
			}
			n := offset + i + 1
			fmt.Fprintf(&b,
				`<tr class="%s"><td>%d</td><td>C</td><td>PLAYER, NO%d</td><td>1</td><td>1</td><td>2</td><td>1</td><td>0</td><td>15:30</td><td>22</td><td>2:10</td><td>0:45</td><td>3</td><td>5</td><td>4</td><td>55.6</td></tr>`,
				cls, n, n)
		}
		b.WriteString(`<tr class="evenColor"><td>&nbsp;</td><td>&nbsp;</td><td>TEAM TOTALS</td><td>3</td><td>5</td><td>8</td><td>0</td><td>10</td><td>290:45</td><td>350</td><td>8:20</td><td>6:10</td><td>31</td><td>30</td><td>28</td><td>51.7</td></tr>`)
		b.WriteString(`</table>`)
	}
	team("CHICAGO BLACKHAWKS", 0)
	team("COLORADO AVALANCHE", 100)
	b.WriteString("</body></html>")
	return b.String()
}

func TestAdapter_FetchOne_EventSummary(t *testing.T) {
	upstream := sourcetest.NewUpstream(t)
	upstream.HTML("/20242025/ES020500.HTM", 200, esFixture(18))
	a, _ := testAdapter(t, upstream, nil)

	parsed, err := a.FetchOne(context.Background(), "ES/2024020500")
	require.NoError(t, err)

	es, ok := parsed.(*domain.EventSummary)
	require.True(t, ok)
	assert.Equal(t, testGameID, es.GameID)
	assert.Equal(t, testSeason, es.SeasonID)
	assert.Equal(t, "CHICAGO BLACKHAWKS", es.Away.TeamName)
	assert.Equal(t, "COLORADO AVALANCHE", es.Home.TeamName)

	require.Len(t, es.Home.Skaters, 18)
	require.Len(t, es.Away.Skaters, 18)

	first := es.Away.Skaters[0]
	assert.Equal(t, 1, first.Number)
	assert.Equal(t, "PLAYER, NO1", first.Name)
	assert.Equal(t, 15*60+30, first.TOISeconds)
	assert.Equal(t, 2*60+10, first.PPSeconds)
	assert.Equal(t, 5, first.FaceoffWins)
	require.NotNil(t, first.FaceoffPct)
	assert.InDelta(t, 55.6, *first.FaceoffPct, 0.001)

	require.NotNil(t, es.Home.Totals)
	assert.Equal(t, "TEAM TOTALS", es.Home.Totals.Name)
	assert.Equal(t, 290*60+45, es.Home.Totals.TOISeconds)
	assert.Equal(t, 31, es.Home.Totals.Shots)
}

func TestAdapter_FetchOne_GzipPayloadIsInflated(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(esFixture(2)))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	upstream := sourcetest.NewUpstream(t)
	upstream.Router.Get("/20242025/ES020500.HTM", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(buf.Bytes())
	})
	a, _ := testAdapter(t, upstream, nil)

	parsed, err := a.FetchOne(context.Background(), "ES/2024020500")
	require.NoError(t, err)
	assert.Len(t, parsed.(*domain.EventSummary).Away.Skaters, 2)
}

func TestAdapter_FetchOne_NonHTMLPayloadFails(t *testing.T) {
	upstream := sourcetest.NewUpstream(t)
	upstream.HTML("/20242025/ES020500.HTM", 200, "Game not found")
	a, _ := testAdapter(t, upstream, nil)

	_, err := a.FetchOne(context.Background(), "ES/2024020500")
	var perr *sources.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Msg, "not HTML")
}

func TestAdapter_FetchOne_InvalidItemKey(t *testing.T) {
	upstream := sourcetest.NewUpstream(t)
	a, _ := testAdapter(t, upstream, nil)

	for _, key := range []string{"ES", "XX/2024020500", "ES/12345", "ES/abc"} {
		_, err := a.FetchOne(context.Background(), key)
		assert.Error(t, err, "key %q", key)
	}
}

func TestAdapter_EnumerateItems_NineCodesPerScheduledGame(t *testing.T) {
	upstream := sourcetest.NewUpstream(t)
	a, store := testAdapter(t, upstream, nil)
	store.SeedSchedule(
		domain.ScheduleGame{GameID: 2024020500, SeasonID: testSeason, GameType: domain.GameTypeRegular},
		domain.ScheduleGame{GameID: 2024010021, SeasonID: testSeason, GameType: domain.GameTypePreseason},
	)

	var keys []string
	err := a.EnumerateItems(context.Background(), testSeason, func(key string) error {
		keys = append(keys, key)
		return nil
	})
	require.NoError(t, err)

	// Nine codes for the regular-season game, nothing for preseason.
	require.Len(t, keys, 9)
	assert.Equal(t, "GS/2024020500", keys[0])
	assert.Contains(t, keys, "TV/2024020500")
	assert.NotContains(t, keys, "GS/2024010021")
}

func TestAdapter_Persist_RoutesOnEntityType(t *testing.T) {
	upstream := sourcetest.NewUpstream(t)
	a, store := testAdapter(t, upstream, nil)

	rows, err := a.Persist(context.Background(), store,
		&domain.EventSummary{GameID: testGameID, SeasonID: testSeason})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
	assert.Contains(t, store.Reports[testGameID], domain.ReportEventSummary)

	_, err = a.Persist(context.Background(), store,
		&domain.TOIReport{GameID: testGameID, SeasonID: testSeason, Side: "visitor"})
	require.NoError(t, err)
	assert.Contains(t, store.Reports[testGameID], domain.ReportTOIVisitor)

	_, err = a.Persist(context.Background(), store, &domain.GameBoxscore{})
	assert.Error(t, err)
}

type recordingArchive struct {
	source  string
	season  int
	itemKey string
	data    []byte
}

func (r *recordingArchive) Put(ctx context.Context, source string, season int, itemKey string, data []byte) error {
	r.source, r.season, r.itemKey, r.data = source, season, itemKey, data
	return nil
}

func TestAdapter_FetchOne_ArchivesRawPayloadWhenEnabled(t *testing.T) {
	upstream := sourcetest.NewUpstream(t)
	upstream.HTML("/20242025/ES020500.HTM", 200, esFixture(2))

	cfg := config.DefaultConfig()
	cfg.HTMLReports.BaseURL = upstream.URL()
	cfg.HTMLReports.RequestsPerSecond = 10000
	cfg.HTMLReports.MaxRetries = 0
	cfg.HTMLReports.KeepRawPayloads = true

	clientCfg := fetch.DefaultConfig("rink-test/1.0")
	clientCfg.DisableBreaker = true
	client, err := fetch.New(clientCfg)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	arc := &recordingArchive{}
	a, err := New(sources.Deps{Config: cfg, Store: sourcetest.NewStore(), HTMLClient: client, Archive: arc})
	require.NoError(t, err)

	_, err = a.FetchOne(context.Background(), "ES/2024020500")
	require.NoError(t, err)

	assert.Equal(t, SourceName, arc.source)
	assert.Equal(t, testSeason, arc.season)
	assert.Equal(t, "ES/2024020500", arc.itemKey)
	assert.NotEmpty(t, arc.data)
}

func TestReportURL(t *testing.T) {
	assert.Equal(t,
		"https://www.nhl.com/scores/htmlreports/20242025/TH020500.HTM",
		ReportURL("https://www.nhl.com/scores/htmlreports", domain.ReportTOIHome, 2024020500))
	assert.Equal(t,
		"https://www.nhl.com/scores/htmlreports/20242025/GS030111.HTM",
		ReportURL("https://www.nhl.com/scores/htmlreports/", domain.ReportGameSummary, 2024030111))
}

func TestParseGameSummary(t *testing.T) {
	doc := docFrom(t, `<html><body>
<table id="Visitor"><tr><td class="teamName">CHICAGO BLACKHAWKS</td><td class="score">2</td></tr></table>
<table id="Home"><tr><td class="teamName">COLORADO AVALANCHE</td><td class="score">3</td></tr></table>
<table class="goalSummary">
<tr class="evenColor"><td>1</td><td>1</td><td>4:12</td><td>EV</td><td>COL</td><td>29 N.MACKINNON(12)</td><td>8 C.MAKAR(20), 96 M.RANTANEN(15)</td></tr>
<tr class="oddColor"><td>2</td><td>2</td><td>11:03</td><td>PP</td><td>CHI</td><td>98 C.BEDARD(9)</td><td>unassisted</td></tr>
</table>
<table class="penaltySummary">
<tr class="evenColor"><td>1</td><td>1</td><td>9:45</td><td>CHI</td><td>98 C.BEDARD</td><td>2</td><td>Tripping</td></tr>
</table>
</body></html>`)

	gs, err := parseGameSummary(testGameID, testSeason, doc)
	require.NoError(t, err)

	assert.Equal(t, "COLORADO AVALANCHE", gs.HomeTeam)
	assert.Equal(t, 3, gs.HomeGoals)
	assert.Equal(t, 2, gs.AwayGoals)

	require.Len(t, gs.Goals, 2)
	assert.Equal(t, "29 N.MACKINNON(12)", gs.Goals[0].Scorer)
	assert.Equal(t, []string{"8 C.MAKAR(20)", "96 M.RANTANEN(15)"}, gs.Goals[0].Assists)
	assert.Nil(t, gs.Goals[1].Assists)

	require.Len(t, gs.Penalties, 1)
	assert.Equal(t, "Tripping", gs.Penalties[0].Infraction)
	assert.Equal(t, 2, gs.Penalties[0].Minutes)
}

func TestParseGameSummary_MissingBanners(t *testing.T) {
	doc := docFrom(t, `<html><body><p>coming soon</p></body></html>`)
	_, err := parseGameSummary(testGameID, testSeason, doc)
	var perr *sources.ParseError
	require.ErrorAs(t, err, &perr)
}

func TestParseReportPlays(t *testing.T) {
	doc := docFrom(t, `<html><body><table class="playsTable">
<tr class="evenColor"><td>1</td><td>1</td><td>EV</td><td>0:00</td><td>FAC</td><td>COL won Neu. Zone</td></tr>
<tr class="oddColor"><td>2</td><td>1</td><td>EV</td><td>0:43</td><td>SHOT</td><td>COL #29 MACKINNON, Wrist</td></tr>
<tr class="evenColor"><td>3</td><td>1</td><td>PP</td><td>4:12</td><td>GOAL</td><td>COL #29 MACKINNON(12)</td></tr>
</table></body></html>`)

	pl, err := parseReportPlays(testGameID, testSeason, doc)
	require.NoError(t, err)
	require.Len(t, pl.Plays, 3)
	assert.Equal(t, "GOAL", pl.Plays[2].EventType)
	assert.Equal(t, 1, pl.Plays[2].Period)
	assert.Equal(t, "PP", pl.Plays[2].Strength)
}

func TestParseReportPlays_Empty(t *testing.T) {
	doc := docFrom(t, `<html><body><table class="playsTable"></table></body></html>`)
	_, err := parseReportPlays(testGameID, testSeason, doc)
	var perr *sources.ParseError
	require.ErrorAs(t, err, &perr)
}

func TestParseReportRoster(t *testing.T) {
	doc := docFrom(t, `<html><body>`+
		headingTable("CHICAGO BLACKHAWKS")+
		`<table class="rosterTable">
<tr class="evenColor"><td>98</td><td>C</td><td>BEDARD, CONNOR</td></tr>
<tr class="oddColor"><td>2</td><td>D</td><td>JONES, SETH (A)</td></tr>
</table>`+
		headingTable("COLORADO AVALANCHE")+
		`<table class="rosterTable">
<tr class="evenColor"><td>29</td><td>C</td><td>MACKINNON, NATHAN (C)</td></tr>
</table>
<table class="scratchTable">
<tr class="evenColor"><td>17</td><td>C</td><td>FOLIGNO, NICK</td></tr>
</table>
<table class="scratchTable">
<tr class="evenColor"><td>62</td><td>L</td><td>WOOD, MILES</td></tr>
</table>
</body></html>`)

	ro, err := parseReportRoster(testGameID, testSeason, doc)
	require.NoError(t, err)

	assert.Equal(t, "CHICAGO BLACKHAWKS", ro.AwayTeam)
	require.Len(t, ro.Away, 3)
	assert.Equal(t, "JONES, SETH", ro.Away[1].Name)
	assert.False(t, ro.Away[1].Captain)
	assert.True(t, ro.Away[2].Scratch)

	require.Len(t, ro.Home, 2)
	assert.True(t, ro.Home[0].Captain)
	assert.Equal(t, "MACKINNON, NATHAN", ro.Home[0].Name)
	assert.True(t, ro.Home[1].Scratch)
}

func TestParseShotSummary(t *testing.T) {
	doc := docFrom(t, `<html><body>`+
		headingTable("CHICAGO BLACKHAWKS")+
		`<table class="shotsTable">
<tr class="evenColor"><td>1</td><td>8</td></tr>
<tr class="oddColor"><td>2</td><td>10</td></tr>
<tr class="evenColor"><td>3</td><td>7</td></tr>
<tr class="oddColor"><td>TOT</td><td>25</td></tr>
</table>`+
		headingTable("COLORADO AVALANCHE")+
		`<table class="shotsTable">
<tr class="evenColor"><td>1</td><td>12</td></tr>
<tr class="oddColor"><td>2</td><td>9</td></tr>
<tr class="evenColor"><td>3</td><td>9</td></tr>
</table>
</body></html>`)

	ss, err := parseShotSummary(testGameID, testSeason, doc)
	require.NoError(t, err)

	// TOT row is dropped.
	require.Len(t, ss.Away, 3)
	assert.Equal(t, domain.PeriodShots{Period: 2, Shots: 10}, ss.Away[1])
	require.Len(t, ss.Home, 3)
	assert.Equal(t, "COLORADO AVALANCHE", ss.HomeTeam)
}

func TestParseTOIReport(t *testing.T) {
	doc := docFrom(t, `<html><body>`+
		headingTable("COLORADO AVALANCHE")+
		`<table class="toiPlayer">
<tr><td class="playerHeading">29 MACKINNON, NATHAN</td></tr>
<tr class="evenColor"><td>1</td><td>1</td><td>0:00</td><td>0:45</td><td>0:45</td><td></td></tr>
<tr class="oddColor"><td>2</td><td>1</td><td>2:10</td><td>3:02</td><td>0:52</td><td>G</td></tr>
<tr class="totalRow"><td>TOT</td><td>21:33</td></tr>
</table>
<table class="toiPlayer">
<tr><td class="playerHeading">8 MAKAR, CALE</td></tr>
<tr class="evenColor"><td>1</td><td>1</td><td>0:45</td><td>1:30</td><td>0:45</td><td></td></tr>
</table>
</body></html>`)

	toi, err := parseTOIReport(domain.ReportTOIHome, testGameID, testSeason, doc)
	require.NoError(t, err)

	assert.Equal(t, "home", toi.Side)
	assert.Equal(t, "COLORADO AVALANCHE", toi.Team)
	require.Len(t, toi.Players, 2)

	mackinnon := toi.Players[0]
	assert.Equal(t, 29, mackinnon.Number)
	assert.Equal(t, "MACKINNON, NATHAN", mackinnon.Name)
	assert.Equal(t, 2, mackinnon.ShiftCount)
	assert.Equal(t, 21*60+33, mackinnon.TotalSeconds)
	assert.Equal(t, "G", mackinnon.Shifts[1].Event)

	// No TOT row: total falls back to summed shift durations.
	assert.Equal(t, 45, toi.Players[1].TotalSeconds)
}

func TestParseFaceoffSummary(t *testing.T) {
	doc := docFrom(t, `<html><body>
<table class="faceoffTable">
<tr class="evenColor"><td>98</td><td>BEDARD, CONNOR</td><td>9</td><td>11</td><td>45.0</td></tr>
</table>
<table class="faceoffTable">
<tr class="evenColor"><td>29</td><td>MACKINNON, NATHAN</td><td>12</td><td>10</td><td>54.5</td></tr>
</table>
</body></html>`)

	fs, err := parseFaceoffSummary(testGameID, testSeason, doc)
	require.NoError(t, err)
	require.Len(t, fs.Away, 1)
	require.Len(t, fs.Home, 1)
	assert.Equal(t, 12, fs.Home[0].Wins)
	require.NotNil(t, fs.Away[0].Pct)
	assert.InDelta(t, 45.0, *fs.Away[0].Pct, 0.001)
}

func TestParseFaceoffComparison(t *testing.T) {
	doc := docFrom(t, `<html><body><table class="faceoffComparison">
<tr class="evenColor"><td>MACKINNON, NATHAN</td><td>BEDARD, CONNOR</td><td>5</td><td>8</td></tr>
<tr class="oddColor"><td>NELSON, CASEY</td><td>DICKINSON, JASON</td><td>2</td><td>6</td></tr>
</table></body></html>`)

	fc, err := parseFaceoffComparison(testGameID, testSeason, doc)
	require.NoError(t, err)
	require.Len(t, fc.Matchups, 2)
	assert.Equal(t, 5, fc.Matchups[0].HomeWins)
	assert.Equal(t, 8, fc.Matchups[0].Total)
}

func TestEnsureHTML_GzipRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write([]byte("<html><body>ok</body></html>"))
	require.NoError(t, zw.Close())

	body, err := ensureHTML("ES/2024020500", buf.Bytes())
	require.NoError(t, err)
	assert.Contains(t, string(body), "<body>ok</body>")
}

func TestEnsureHTML_CorruptGzip(t *testing.T) {
	_, err := ensureHTML("ES/2024020500", []byte{0x1f, 0x8b, 0x00, 0x01})
	var perr *sources.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Msg, "gzip")
}
