// Package htmlreport implements the HTML game-report source. One adapter
// covers the nine report genres; item keys are "{CODE}/{game_id}" and
// each genre has its own goquery extractor keyed off the report tables'
// class names.
package htmlreport

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rinkdata/rink/internal/domain"
	"github.com/rinkdata/rink/internal/fetch"
	"github.com/rinkdata/rink/internal/parse"
	"github.com/rinkdata/rink/internal/ratelimit"
	"github.com/rinkdata/rink/internal/retry"
	"github.com/rinkdata/rink/internal/sources"
)

// SourceName is the catalogue name of this family.
const SourceName = "html_reports"

// reportCodes is the download order within one game.
var reportCodes = []domain.ReportCode{
	domain.ReportGameSummary,
	domain.ReportEventSummary,
	domain.ReportPlayByPlay,
	domain.ReportFaceoffSummary,
	domain.ReportFaceoffComparison,
	domain.ReportRosterCode,
	domain.ReportShotSummary,
	domain.ReportTOIHome,
	domain.ReportTOIVisitor,
}

// Adapter downloads and parses the HTML game reports.
type Adapter struct {
	fetcher *sources.Fetcher
	baseURL string
	keepRaw bool
	store   sources.EntityStore
}

// New constructs the HTML report adapter.
func New(deps sources.Deps) (sources.Adapter, error) {
	cfg := deps.Config.HTMLReports
	f := sources.NewFetcher(
		SourceName,
		deps.HTMLClient,
		ratelimit.New(cfg.RequestsPerSecond),
		retry.New(retry.Config{MaxRetries: cfg.MaxRetries}),
	)
	if deps.Archive != nil {
		f = f.WithArchive(deps.Archive)
	}
	return &Adapter{
		fetcher: f,
		baseURL: cfg.BaseURL,
		keepRaw: cfg.KeepRawPayloads,
		store:   deps.Store,
	}, nil
}

func (a *Adapter) SourceName() string { return SourceName }

// EnumerateItems yields every (code, game) pair for the season's
// scheduled regular-season and playoff games, grouped by game.
func (a *Adapter) EnumerateItems(ctx context.Context, season int, fn func(string) error) error {
	ids, err := a.store.ScheduledGameIDs(ctx, season, []int{domain.GameTypeRegular, domain.GameTypePlayoffs})
	if err != nil {
		return err
	}
	for _, id := range ids {
		for _, code := range reportCodes {
			if err := fn(ItemKey(code, id)); err != nil {
				return err
			}
		}
	}
	return nil
}

// ItemKey builds the "{CODE}/{game_id}" item key.
func ItemKey(code domain.ReportCode, gameID int64) string {
	return fmt.Sprintf("%s/%d", code, gameID)
}

// splitKey parses an item key back into its code and game id.
func splitKey(itemKey string) (domain.ReportCode, int64, error) {
	code, rest, ok := strings.Cut(itemKey, "/")
	if !ok || !domain.ValidReportCode(code) {
		return "", 0, fmt.Errorf("invalid report item key %q", itemKey)
	}
	gameID, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || !domain.ValidGameID(gameID) {
		return "", 0, fmt.Errorf("invalid report item key %q", itemKey)
	}
	return domain.ReportCode(code), gameID, nil
}

// ReportURL builds the report location:
// {base}/{season}/{CODE}{last-6-digits}.HTM.
func ReportURL(baseURL string, code domain.ReportCode, gameID int64) string {
	return fetch.BaseJoin(baseURL, fmt.Sprintf("%d/%s%s.HTM",
		domain.SeasonOfGame(gameID), code, domain.GameSuffix(gameID)))
}

func (a *Adapter) FetchOne(ctx context.Context, itemKey string) (domain.Parsed, error) {
	code, gameID, err := splitKey(itemKey)
	if err != nil {
		return nil, err
	}

	resp, err := a.fetcher.Get(ctx, itemKey, ReportURL(a.baseURL, code, gameID), nil)
	if err != nil {
		return nil, err
	}

	body, err := ensureHTML(itemKey, resp.Body)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, sources.NewParseError(SourceName, itemKey, "unparsable HTML: "+err.Error(), body)
	}

	parsed, err := parseReport(code, gameID, doc)
	if err != nil {
		return nil, err
	}

	if a.keepRaw {
		a.fetcher.ArchiveRaw(ctx, domain.SeasonOfGame(gameID), itemKey, body)
	}
	return parsed, nil
}

func parseReport(code domain.ReportCode, gameID int64, doc *goquery.Document) (domain.Parsed, error) {
	season := domain.SeasonOfGame(gameID)
	switch code {
	case domain.ReportEventSummary:
		return parseEventSummary(gameID, season, doc)
	case domain.ReportGameSummary:
		return parseGameSummary(gameID, season, doc)
	case domain.ReportPlayByPlay:
		return parseReportPlays(gameID, season, doc)
	case domain.ReportRosterCode:
		return parseReportRoster(gameID, season, doc)
	case domain.ReportShotSummary:
		return parseShotSummary(gameID, season, doc)
	case domain.ReportTOIHome, domain.ReportTOIVisitor:
		return parseTOIReport(code, gameID, season, doc)
	case domain.ReportFaceoffSummary:
		return parseFaceoffSummary(gameID, season, doc)
	case domain.ReportFaceoffComparison:
		return parseFaceoffComparison(gameID, season, doc)
	}
	return nil, fmt.Errorf("unhandled report code %q", code)
}

func (a *Adapter) Persist(ctx context.Context, store sources.EntityStore, parsed domain.Parsed) (int64, error) {
	gameID, code, err := reportKeyOf(parsed)
	if err != nil {
		return 0, err
	}
	return store.UpsertReport(ctx, gameID, domain.SeasonOfGame(gameID), code, parsed)
}

// reportKeyOf recovers the natural key from a parsed report entity.
func reportKeyOf(parsed domain.Parsed) (int64, domain.ReportCode, error) {
	switch r := parsed.(type) {
	case *domain.EventSummary:
		return r.GameID, domain.ReportEventSummary, nil
	case *domain.GameSummary:
		return r.GameID, domain.ReportGameSummary, nil
	case *domain.ReportPlays:
		return r.GameID, domain.ReportPlayByPlay, nil
	case *domain.ReportRoster:
		return r.GameID, domain.ReportRosterCode, nil
	case *domain.ShotSummary:
		return r.GameID, domain.ReportShotSummary, nil
	case *domain.TOIReport:
		if r.Side == "home" {
			return r.GameID, domain.ReportTOIHome, nil
		}
		return r.GameID, domain.ReportTOIVisitor, nil
	case *domain.FaceoffSummary:
		return r.GameID, domain.ReportFaceoffSummary, nil
	case *domain.FaceoffComparison:
		return r.GameID, domain.ReportFaceoffComparison, nil
	}
	return 0, "", fmt.Errorf("%s: unexpected entity %T", SourceName, parsed)
}

func (a *Adapter) HealthCheck(ctx context.Context) bool {
	return a.fetcher.HealthCheck(ctx, a.baseURL)
}

func (a *Adapter) LastFetchBytes() int { return a.fetcher.LastFetchBytes() }

func (a *Adapter) LastFetchAttempts() int { return a.fetcher.LastFetchAttempts() }

// ensureHTML decompresses a gzip payload the transport did not unwrap
// (magic-number sniff) and verifies the HTML sentinel appears within the
// first 500 bytes. Error pages and empty payloads fail here rather than
// in the extractors.
func ensureHTML(itemKey string, body []byte) ([]byte, error) {
	if len(body) >= 2 && body[0] == 0x1f && body[1] == 0x8b {
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, sources.NewParseError(SourceName, itemKey, "corrupt gzip payload", body)
		}
		defer zr.Close()
		inflated, err := io.ReadAll(zr)
		if err != nil {
			return nil, sources.NewParseError(SourceName, itemKey, "corrupt gzip payload", body)
		}
		body = inflated
	}

	head := body
	if len(head) > 500 {
		head = head[:500]
	}
	lower := bytes.ToLower(head)
	if !bytes.Contains(lower, []byte("<html")) && !bytes.Contains(lower, []byte("<!doctype")) {
		return nil, sources.NewParseError(SourceName, itemKey, "payload is not HTML", body)
	}
	return body, nil
}

// Cell helpers shared by the extractors. Blank cells and dashes read as
// zero; the reports print "&nbsp;" for empty stats.

func cellText(row *goquery.Selection, i int) string {
	text := row.Find("td").Eq(i).Text()
	return strings.TrimSpace(strings.ReplaceAll(text, "\u00a0", " "))
}

func cellInt(row *goquery.Selection, i int) int {
	if v := parse.Int(cellText(row, i)); v != nil {
		return *v
	}
	return 0
}

func cellSeconds(row *goquery.Selection, i int) int {
	if v := parse.TotalMMSS(cellText(row, i)); v != nil {
		return *v
	}
	return 0
}
