package htmlreport

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/rinkdata/rink/internal/domain"
	"github.com/rinkdata/rink/internal/parse"
	"github.com/rinkdata/rink/internal/sources"
)

// parseShotSummary extracts the per-period team shot counts of the SS
// report. Visitor table first. The trailing TOT row has no numeric period
// and is dropped; period totals are recomputable from the rows.
func parseShotSummary(gameID int64, season int, doc *goquery.Document) (*domain.ShotSummary, error) {
	tables := doc.Find("table.shotsTable")
	if tables.Length() < 2 {
		return nil, sources.NewParseError(SourceName, ItemKey(domain.ReportShotSummary, gameID),
			"expected visitor and home shot tables", nil)
	}
	headings := doc.Find("td.teamHeading")

	out := &domain.ShotSummary{
		GameID:   gameID,
		SeasonID: season,
		AwayTeam: teamHeading(headings, 0),
		HomeTeam: teamHeading(headings, 1),
		Away:     periodShots(tables.Eq(0)),
		Home:     periodShots(tables.Eq(1)),
	}
	if len(out.Away) == 0 && len(out.Home) == 0 {
		return nil, sources.NewParseError(SourceName, ItemKey(domain.ReportShotSummary, gameID),
			"no period rows", nil)
	}
	return out, nil
}

// Row layout: Period, Shots.
func periodShots(table *goquery.Selection) []domain.PeriodShots {
	var out []domain.PeriodShots
	table.Find("tr.evenColor, tr.oddColor").Each(func(_ int, row *goquery.Selection) {
		period := parse.Int(cellText(row, 0))
		if period == nil {
			return
		}
		out = append(out, domain.PeriodShots{Period: *period, Shots: cellInt(row, 1)})
	})
	return out
}
