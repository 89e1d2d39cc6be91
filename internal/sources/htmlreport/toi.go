package htmlreport

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rinkdata/rink/internal/domain"
	"github.com/rinkdata/rink/internal/parse"
	"github.com/rinkdata/rink/internal/sources"
)

// parseTOIReport extracts the per-player shift blocks of a TH or TV
// report. Each player is one table: a heading cell with the sweater number
// and name, shift rows, then a totals row.
func parseTOIReport(code domain.ReportCode, gameID int64, season int, doc *goquery.Document) (*domain.TOIReport, error) {
	side := "home"
	if code == domain.ReportTOIVisitor {
		side = "visitor"
	}

	out := &domain.TOIReport{
		GameID:   gameID,
		SeasonID: season,
		Side:     side,
		Team:     strings.TrimSpace(doc.Find("td.teamHeading").First().Text()),
	}

	doc.Find("table.toiPlayer").Each(func(_ int, table *goquery.Selection) {
		number, name := splitPlayerHeading(table.Find("td.playerHeading").First().Text())
		if name == "" {
			return
		}
		player := domain.PlayerTOI{Number: number, Name: name}

		// Shift rows: #, Per, Start, End, Dur, Event.
		table.Find("tr.evenColor, tr.oddColor").Each(func(_ int, row *goquery.Selection) {
			player.Shifts = append(player.Shifts, domain.ReportShift{
				ShiftNumber: cellInt(row, 0),
				Period:      cellText(row, 1),
				Start:       cellText(row, 2),
				End:         cellText(row, 3),
				Duration:    cellText(row, 4),
				Event:       cellText(row, 5),
			})
		})
		player.ShiftCount = len(player.Shifts)
		player.TotalSeconds = playerTotalSeconds(table, player.Shifts)

		out.Players = append(out.Players, player)
	})

	if len(out.Players) == 0 {
		return nil, sources.NewParseError(SourceName, ItemKey(code, gameID), "no player blocks", nil)
	}
	return out, nil
}

// playerTotalSeconds reads the printed TOT row, falling back to summing
// shift durations when the row is missing or unparsable.
func playerTotalSeconds(table *goquery.Selection, shifts []domain.ReportShift) int {
	if v := parse.MMSS(cellText(table.Find("tr.totalRow").First(), 1)); v != nil {
		return *v
	}
	total := 0
	for _, s := range shifts {
		if v := parse.MMSS(s.Duration); v != nil {
			total += *v
		}
	}
	return total
}

// splitPlayerHeading splits "29 MACKINNON, NATHAN" into number and name.
func splitPlayerHeading(s string) (int, string) {
	s = strings.TrimSpace(s)
	numStr, name, ok := strings.Cut(s, " ")
	if !ok {
		return 0, s
	}
	if v := parse.Int(numStr); v != nil {
		return *v, strings.TrimSpace(name)
	}
	return 0, s
}
