package validation

import (
	"fmt"
	"strconv"

	"github.com/rinkdata/rink/internal/domain"
	"github.com/rinkdata/rink/internal/names"
	"github.com/rinkdata/rink/internal/parse"
)

// Cross-source rules: the same fact as reported by two sources, compared
// under the rule's tolerance. Failed results carry the discrepancy key
// (entity type, entity id, field) so the engine can upsert the
// persistent discrepancy row.

// teamEntityID keys a per-team discrepancy. Game id first so one team's
// rows across games stay distinct.
func teamEntityID(gameID int64, abbrev string) string {
	return fmt.Sprintf("%d/%s", gameID, abbrev)
}

// pbpGoals counts a team's goal events, excluding the shootout: SO
// "goals" are decided by the shootout winner rule, not summed.
func pbpGoals(pbp *domain.GamePlayByPlay, teamID int) int {
	n := 0
	for _, ev := range pbp.Events {
		if ev.TypeCode != domain.EventTypeGoal || ev.PeriodType == "SO" {
			continue
		}
		if ev.TeamID != nil && *ev.TeamID == teamID {
			n++
		}
	}
	return n
}

// pbpShots counts a team's shots on goal: SOG events plus goal events
// (a goal is a shot that went in), excluding the shootout.
func pbpShots(pbp *domain.GamePlayByPlay, teamID int) int {
	n := 0
	for _, ev := range pbp.Events {
		if ev.TypeCode != domain.EventTypeGoal && ev.TypeCode != domain.EventTypeShotOnGoal {
			continue
		}
		if ev.PeriodType == "SO" {
			continue
		}
		if ev.TeamID != nil && *ev.TeamID == teamID {
			n++
		}
	}
	return n
}

func checkPBPGoals(rule string, home bool) CheckFunc {
	return func(f *GameFacts, _ map[string]any) []RuleResult {
		if f.Boxscore == nil || f.PlayByPlay == nil {
			return skipped(rule)
		}
		team, teamID := &f.Boxscore.AwayTeam, f.PlayByPlay.AwayTeamID
		if home {
			team, teamID = &f.Boxscore.HomeTeam, f.PlayByPlay.HomeTeamID
		}
		got := pbpGoals(f.PlayByPlay, teamID)
		if got == team.Score {
			return []RuleResult{passed(rule, "%s goals agree at %d", team.Abbrev, got)}
		}
		diff := float64(got - team.Score)
		return []RuleResult{{
			RuleName:     rule,
			Message:      fmt.Sprintf("%s goals: play-by-play %d, boxscore %d", team.Abbrev, got, team.Score),
			SourceValues: map[string]any{"play_by_play": got, "boxscore": team.Score},
			EntityType:   "team",
			EntityID:     teamEntityID(f.GameID, team.Abbrev),
			FieldName:    "goals",
			Difference:   &diff,
		}}
	}
}

func checkPBPShots(rule string, home bool) CheckFunc {
	return func(f *GameFacts, cfg map[string]any) []RuleResult {
		if f.Boxscore == nil || f.PlayByPlay == nil {
			return skipped(rule)
		}
		tol := cfgInt(cfg, "tolerance", 2)
		team, teamID := &f.Boxscore.AwayTeam, f.PlayByPlay.AwayTeamID
		if home {
			team, teamID = &f.Boxscore.HomeTeam, f.PlayByPlay.HomeTeamID
		}
		got := pbpShots(f.PlayByPlay, teamID)
		if absInt(got-team.ShotsOnGoal) <= tol {
			return []RuleResult{passed(rule, "%s shots within tolerance: play-by-play %d, boxscore %d",
				team.Abbrev, got, team.ShotsOnGoal)}
		}
		diff := float64(got - team.ShotsOnGoal)
		return []RuleResult{{
			RuleName: rule,
			Message: fmt.Sprintf("%s shots: play-by-play %d, boxscore %d (tolerance %d)",
				team.Abbrev, got, team.ShotsOnGoal, tol),
			SourceValues: map[string]any{"play_by_play": got, "boxscore": team.ShotsOnGoal},
			EntityType:   "team",
			EntityID:     teamEntityID(f.GameID, team.Abbrev),
			FieldName:    "shots_on_goal",
			Difference:   &diff,
		}}
	}
}

// shiftTotal accumulates one player's shift chart lines. Goal-marker
// rows are excluded from both the duration sum and the shift count.
type shiftTotal struct {
	name    string
	seconds int
	shifts  int
}

func shiftTotals(chart *domain.ShiftChart) map[int64]*shiftTotal {
	totals := make(map[int64]*shiftTotal)
	for i := range chart.Shifts {
		sh := &chart.Shifts[i]
		if sh.TypeCode == domain.EventTypeGoal {
			continue
		}
		t := totals[sh.PlayerID]
		if t == nil {
			t = &shiftTotal{name: sh.FirstName + " " + sh.LastName}
			totals[sh.PlayerID] = t
		}
		if sh.DurationSeconds != nil {
			t.seconds += *sh.DurationSeconds
		}
		t.shifts++
	}
	return totals
}

// chartTotalFor finds a boxscore player's shift totals: by player id
// when the chart carries one, by fuzzy name match otherwise. Sources
// disagree on name spelling, so the match goes through the names
// package rather than string equality.
func chartTotalFor(totals map[int64]*shiftTotal, playerID int64, name string) *shiftTotal {
	if t, ok := totals[playerID]; ok {
		return t
	}
	for id, t := range totals {
		if id <= 0 && names.Match(name, t.name, names.DefaultThreshold) {
			return t
		}
	}
	return nil
}

func checkShiftTOI(f *GameFacts, cfg map[string]any) []RuleResult {
	if f.Boxscore == nil || f.ShiftChart == nil {
		return skipped(RuleShiftTOI)
	}
	tol := cfgInt(cfg, "tolerance_seconds", 5)
	totals := shiftTotals(f.ShiftChart)

	var out []RuleResult
	checked := 0
	report := func(playerID int64, name, toi string) {
		boxSeconds := parse.MMSS(toi)
		if boxSeconds == nil {
			return
		}
		t := chartTotalFor(totals, playerID, name)
		if t == nil {
			return
		}
		checked++
		if absInt(t.seconds-*boxSeconds) <= tol {
			return
		}
		diff := float64(t.seconds - *boxSeconds)
		out = append(out, RuleResult{
			RuleName: RuleShiftTOI,
			Message: fmt.Sprintf("%s: shift chart TOI %ds, boxscore %ds (tolerance %ds)",
				name, t.seconds, *boxSeconds, tol),
			SourceValues: map[string]any{"shift_chart": t.seconds, "boxscore": *boxSeconds},
			EntityType:   "player",
			EntityID:     strconv.FormatInt(playerID, 10),
			FieldName:    "toi_seconds",
			Difference:   &diff,
		})
	}
	eachTeam(f.Boxscore, func(team *domain.TeamBoxscore) {
		for i := range team.Skaters {
			report(team.Skaters[i].PlayerID, team.Skaters[i].Name, team.Skaters[i].TOI)
		}
		for i := range team.Goalies {
			report(team.Goalies[i].PlayerID, team.Goalies[i].Name, team.Goalies[i].TOI)
		}
	})
	if len(out) == 0 {
		out = append(out, passed(RuleShiftTOI, "shift chart TOI within %ds for %d players", tol, checked))
	}
	return out
}

func checkShiftCount(f *GameFacts, cfg map[string]any) []RuleResult {
	if f.Boxscore == nil || f.ShiftChart == nil {
		return skipped(RuleShiftCount)
	}
	tol := cfgInt(cfg, "tolerance", 1)
	totals := shiftTotals(f.ShiftChart)

	var out []RuleResult
	checked := 0
	eachTeam(f.Boxscore, func(team *domain.TeamBoxscore) {
		for i := range team.Skaters {
			sk := &team.Skaters[i]
			if sk.Shifts == nil {
				continue
			}
			t := chartTotalFor(totals, sk.PlayerID, sk.Name)
			if t == nil {
				continue
			}
			checked++
			if absInt(t.shifts-*sk.Shifts) <= tol {
				continue
			}
			diff := float64(t.shifts - *sk.Shifts)
			out = append(out, RuleResult{
				RuleName: RuleShiftCount,
				Message: fmt.Sprintf("%s: shift chart counts %d shifts, boxscore %d (tolerance %d)",
					sk.Name, t.shifts, *sk.Shifts, tol),
				SourceValues: map[string]any{"shift_chart": t.shifts, "boxscore": *sk.Shifts},
				EntityType:   "player",
				EntityID:     strconv.FormatInt(sk.PlayerID, 10),
				FieldName:    "shifts",
				Difference:   &diff,
			})
		}
	})
	if len(out) == 0 {
		out = append(out, passed(RuleShiftCount, "shift counts within %d for %d skaters", tol, checked))
	}
	return out
}

func checkScheduleFinalScore(f *GameFacts, _ map[string]any) []RuleResult {
	if f.Boxscore == nil || f.Schedule == nil {
		return skipped(RuleScheduleFinalScore)
	}
	// Pre-game schedule rows carry null scores; nothing to compare yet.
	if f.Schedule.HomeScore == nil || f.Schedule.AwayScore == nil {
		return skipped(RuleScheduleFinalScore)
	}

	var out []RuleResult
	compare := func(abbrev string, scheduled, box int) {
		if scheduled == box {
			return
		}
		diff := float64(scheduled - box)
		out = append(out, RuleResult{
			RuleName:     RuleScheduleFinalScore,
			Message:      fmt.Sprintf("%s final score: schedule %d, boxscore %d", abbrev, scheduled, box),
			SourceValues: map[string]any{"schedule": scheduled, "boxscore": box},
			EntityType:   "team",
			EntityID:     teamEntityID(f.GameID, abbrev),
			FieldName:    "final_score",
			Difference:   &diff,
		})
	}
	compare(f.Boxscore.HomeTeam.Abbrev, *f.Schedule.HomeScore, f.Boxscore.HomeTeam.Score)
	compare(f.Boxscore.AwayTeam.Abbrev, *f.Schedule.AwayScore, f.Boxscore.AwayTeam.Score)
	if len(out) == 0 {
		out = append(out, passed(RuleScheduleFinalScore, "final scores agree %d-%d",
			f.Boxscore.HomeTeam.Score, f.Boxscore.AwayTeam.Score))
	}
	return out
}

func checkHTMLGoals(f *GameFacts, _ map[string]any) []RuleResult {
	if f.Boxscore == nil || f.GameSummary == nil {
		return skipped(RuleHTMLGoals)
	}

	var out []RuleResult
	compare := func(abbrev string, html, box int) {
		if html == box {
			return
		}
		diff := float64(html - box)
		out = append(out, RuleResult{
			RuleName:     RuleHTMLGoals,
			Message:      fmt.Sprintf("%s goals: game summary report %d, boxscore %d", abbrev, html, box),
			SourceValues: map[string]any{"html_report": html, "boxscore": box},
			EntityType:   "team",
			EntityID:     teamEntityID(f.GameID, abbrev),
			FieldName:    "goals",
			Difference:   &diff,
		})
	}
	compare(f.Boxscore.HomeTeam.Abbrev, f.GameSummary.HomeGoals, f.Boxscore.HomeTeam.Score)
	compare(f.Boxscore.AwayTeam.Abbrev, f.GameSummary.AwayGoals, f.Boxscore.AwayTeam.Score)
	if len(out) == 0 {
		out = append(out, passed(RuleHTMLGoals, "report and boxscore goals agree"))
	}
	return out
}
