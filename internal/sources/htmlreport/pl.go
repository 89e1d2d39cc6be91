package htmlreport

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/rinkdata/rink/internal/domain"
	"github.com/rinkdata/rink/internal/sources"
)

// parseReportPlays extracts the event log of the PL report.
// Row layout: #, Per, Str, Time, Event, Description.
func parseReportPlays(gameID int64, season int, doc *goquery.Document) (*domain.ReportPlays, error) {
	out := &domain.ReportPlays{GameID: gameID, SeasonID: season}
	doc.Find("table.playsTable").Find("tr.evenColor, tr.oddColor").Each(func(_ int, row *goquery.Selection) {
		event := cellText(row, 4)
		if event == "" {
			return
		}
		out.Plays = append(out.Plays, domain.ReportPlay{
			EventNumber: cellInt(row, 0),
			Period:      cellInt(row, 1),
			Strength:    cellText(row, 2),
			Time:        cellText(row, 3),
			EventType:   event,
			Description: cellText(row, 5),
		})
	})
	if len(out.Plays) == 0 {
		return nil, sources.NewParseError(SourceName, ItemKey(domain.ReportPlayByPlay, gameID),
			"no play rows", nil)
	}
	return out, nil
}
