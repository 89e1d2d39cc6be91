package htmlreport

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/rinkdata/rink/internal/domain"
	"github.com/rinkdata/rink/internal/parse"
	"github.com/rinkdata/rink/internal/sources"
)

// parseFaceoffSummary extracts the per-player faceoff lines of the FS
// report. Visitor table first.
func parseFaceoffSummary(gameID int64, season int, doc *goquery.Document) (*domain.FaceoffSummary, error) {
	tables := doc.Find("table.faceoffTable")
	if tables.Length() < 2 {
		return nil, sources.NewParseError(SourceName, ItemKey(domain.ReportFaceoffSummary, gameID),
			"expected visitor and home faceoff tables", nil)
	}

	out := &domain.FaceoffSummary{
		GameID:   gameID,
		SeasonID: season,
		Away:     faceoffRows(tables.Eq(0)),
		Home:     faceoffRows(tables.Eq(1)),
	}
	if len(out.Away) == 0 && len(out.Home) == 0 {
		return nil, sources.NewParseError(SourceName, ItemKey(domain.ReportFaceoffSummary, gameID),
			"no faceoff rows", nil)
	}
	return out, nil
}

// Row layout: #, Name, W, L, Pct.
func faceoffRows(table *goquery.Selection) []domain.PlayerFaceoffs {
	var out []domain.PlayerFaceoffs
	table.Find("tr.evenColor, tr.oddColor").Each(func(_ int, row *goquery.Selection) {
		name := cellText(row, 1)
		if name == "" {
			return
		}
		out = append(out, domain.PlayerFaceoffs{
			Number: cellInt(row, 0),
			Name:   name,
			Wins:   cellInt(row, 2),
			Losses: cellInt(row, 3),
			Pct:    parse.Float(cellText(row, 4)),
		})
	})
	return out
}

// parseFaceoffComparison extracts the head-to-head matchup grid of the FC
// report. Row layout: home player, away player, home wins, total draws.
func parseFaceoffComparison(gameID int64, season int, doc *goquery.Document) (*domain.FaceoffComparison, error) {
	out := &domain.FaceoffComparison{GameID: gameID, SeasonID: season}
	doc.Find("table.faceoffComparison").Find("tr.evenColor, tr.oddColor").Each(func(_ int, row *goquery.Selection) {
		homePlayer := cellText(row, 0)
		awayPlayer := cellText(row, 1)
		if homePlayer == "" || awayPlayer == "" {
			return
		}
		out.Matchups = append(out.Matchups, domain.FaceoffMatchup{
			HomePlayer: homePlayer,
			AwayPlayer: awayPlayer,
			HomeWins:   cellInt(row, 2),
			Total:      cellInt(row, 3),
		})
	})
	if len(out.Matchups) == 0 {
		return nil, sources.NewParseError(SourceName, ItemKey(domain.ReportFaceoffComparison, gameID),
			"no matchup rows", nil)
	}
	return out, nil
}
