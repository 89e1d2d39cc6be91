package htmlreport

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rinkdata/rink/internal/domain"
	"github.com/rinkdata/rink/internal/parse"
	"github.com/rinkdata/rink/internal/sources"
)

// parseEventSummary extracts the per-skater stat tables of the ES report.
// The visitor table comes first, then the home table. Each table carries a
// trailing TEAM TOTALS row which is kept separately from the skater rows.
func parseEventSummary(gameID int64, season int, doc *goquery.Document) (*domain.EventSummary, error) {
	tables := doc.Find("table.playerTable")
	if tables.Length() < 2 {
		return nil, sources.NewParseError(SourceName, ItemKey(domain.ReportEventSummary, gameID),
			"expected visitor and home skater tables", nil)
	}
	headings := doc.Find("td.teamHeading")

	away := parseTeamEventSummary(teamHeading(headings, 0), tables.Eq(0))
	home := parseTeamEventSummary(teamHeading(headings, 1), tables.Eq(1))
	if len(away.Skaters) == 0 && len(home.Skaters) == 0 {
		return nil, sources.NewParseError(SourceName, ItemKey(domain.ReportEventSummary, gameID),
			"no skater rows", nil)
	}

	return &domain.EventSummary{
		GameID:   gameID,
		SeasonID: season,
		Home:     home,
		Away:     away,
	}, nil
}

// Column layout of one skater row:
// #, Pos, Name, G, A, P, +/-, PIM, TOI, SHF, PP, SH, S, FW, FL, F%
func parseTeamEventSummary(teamName string, table *goquery.Selection) domain.TeamEventSummary {
	out := domain.TeamEventSummary{TeamName: teamName}
	table.Find("tr.evenColor, tr.oddColor").Each(func(_ int, row *goquery.Selection) {
		name := cellText(row, 2)
		if name == "" {
			return
		}
		sk := domain.ReportSkater{
			Number:         cellInt(row, 0),
			Position:       cellText(row, 1),
			Name:           name,
			Goals:          cellInt(row, 3),
			Assists:        cellInt(row, 4),
			Points:         cellInt(row, 5),
			PlusMinus:      cellInt(row, 6),
			PenaltyMinutes: cellInt(row, 7),
			TOISeconds:     cellSeconds(row, 8),
			Shifts:         cellInt(row, 9),
			PPSeconds:      cellSeconds(row, 10),
			SHSeconds:      cellSeconds(row, 11),
			Shots:          cellInt(row, 12),
			FaceoffWins:    cellInt(row, 13),
			FaceoffLosses:  cellInt(row, 14),
			FaceoffPct:     parse.Float(cellText(row, 15)),
		}
		if strings.EqualFold(name, "TEAM TOTALS") {
			out.Totals = &sk
			return
		}
		out.Skaters = append(out.Skaters, sk)
	})
	return out
}

func teamHeading(headings *goquery.Selection, i int) string {
	return strings.TrimSpace(headings.Eq(i).Text())
}
