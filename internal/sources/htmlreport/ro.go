package htmlreport

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rinkdata/rink/internal/domain"
	"github.com/rinkdata/rink/internal/sources"
)

// parseReportRoster extracts dressed players and scratches from the RO
// report. Visitor tables come first. The captaincy letter is printed as a
// suffix on the name cell and is stripped into a flag.
func parseReportRoster(gameID int64, season int, doc *goquery.Document) (*domain.ReportRoster, error) {
	rosters := doc.Find("table.rosterTable")
	if rosters.Length() < 2 {
		return nil, sources.NewParseError(SourceName, ItemKey(domain.ReportRosterCode, gameID),
			"expected visitor and home roster tables", nil)
	}
	headings := doc.Find("td.teamHeading")
	scratches := doc.Find("table.scratchTable")

	out := &domain.ReportRoster{
		GameID:   gameID,
		SeasonID: season,
		AwayTeam: teamHeading(headings, 0),
		HomeTeam: teamHeading(headings, 1),
		Away:     rosterRows(rosters.Eq(0), false),
		Home:     rosterRows(rosters.Eq(1), false),
	}
	if scratches.Length() >= 2 {
		out.Away = append(out.Away, rosterRows(scratches.Eq(0), true)...)
		out.Home = append(out.Home, rosterRows(scratches.Eq(1), true)...)
	}
	if len(out.Away) == 0 && len(out.Home) == 0 {
		return nil, sources.NewParseError(SourceName, ItemKey(domain.ReportRosterCode, gameID),
			"no roster rows", nil)
	}
	return out, nil
}

// Row layout: #, Pos, Name.
func rosterRows(table *goquery.Selection, scratch bool) []domain.ReportRosterPlayer {
	var out []domain.ReportRosterPlayer
	table.Find("tr.evenColor, tr.oddColor").Each(func(_ int, row *goquery.Selection) {
		name := cellText(row, 2)
		if name == "" {
			return
		}
		captain := strings.HasSuffix(name, "(C)")
		name = strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(name, "(C)"), "(A)"))
		out = append(out, domain.ReportRosterPlayer{
			Number:   cellInt(row, 0),
			Position: cellText(row, 1),
			Name:     name,
			Captain:  captain,
			Scratch:  scratch,
		})
	})
	return out
}
