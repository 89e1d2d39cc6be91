package htmlreport

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rinkdata/rink/internal/domain"
	"github.com/rinkdata/rink/internal/parse"
	"github.com/rinkdata/rink/internal/sources"
)

// parseGameSummary extracts the team banners, scoring summary, and penalty
// summary of the GS report.
func parseGameSummary(gameID int64, season int, doc *goquery.Document) (*domain.GameSummary, error) {
	awayName := strings.TrimSpace(doc.Find("#Visitor td.teamName").Text())
	homeName := strings.TrimSpace(doc.Find("#Home td.teamName").Text())
	if awayName == "" || homeName == "" {
		return nil, sources.NewParseError(SourceName, ItemKey(domain.ReportGameSummary, gameID),
			"missing team banners", nil)
	}

	out := &domain.GameSummary{
		GameID:    gameID,
		SeasonID:  season,
		HomeTeam:  homeName,
		AwayTeam:  awayName,
		HomeGoals: headerScore(doc, "#Home"),
		AwayGoals: headerScore(doc, "#Visitor"),
	}

	// Goal rows: G#, Per, Time, Str, Team, Scorer, Assists.
	doc.Find("table.goalSummary").Find("tr.evenColor, tr.oddColor").Each(func(_ int, row *goquery.Selection) {
		scorer := cellText(row, 5)
		if scorer == "" {
			return
		}
		out.Goals = append(out.Goals, domain.ReportGoal{
			GoalNumber: cellInt(row, 0),
			Period:     cellText(row, 1),
			Time:       cellText(row, 2),
			Strength:   cellText(row, 3),
			Team:       cellText(row, 4),
			Scorer:     scorer,
			Assists:    splitAssists(cellText(row, 6)),
		})
	})

	// Penalty rows: #, Per, Time, Team, Player, Min, Infraction.
	doc.Find("table.penaltySummary").Find("tr.evenColor, tr.oddColor").Each(func(_ int, row *goquery.Selection) {
		player := cellText(row, 4)
		if player == "" {
			return
		}
		out.Penalties = append(out.Penalties, domain.ReportPenalty{
			Number:     cellInt(row, 0),
			Period:     cellText(row, 1),
			Time:       cellText(row, 2),
			Team:       cellText(row, 3),
			Player:     player,
			Minutes:    cellInt(row, 5),
			Infraction: cellText(row, 6),
		})
	})

	return out, nil
}

func headerScore(doc *goquery.Document, sel string) int {
	if v := parse.Int(doc.Find(sel + " td.score").Text()); v != nil {
		return *v
	}
	return 0
}

// splitAssists splits the assists cell on commas; "unassisted" and blank
// cells yield nil.
func splitAssists(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "unassisted") {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
