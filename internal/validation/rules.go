package validation

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/rinkdata/rink/internal/domain"
)

// Internal rules: arithmetic and range consistency within a single
// boxscore. Each rule emits one result per offending player or team and
// a single passed result when nothing is wrong.

func checkSkaterPoints(f *GameFacts, _ map[string]any) []RuleResult {
	if f.Boxscore == nil {
		return skipped(RuleSkaterPoints)
	}
	var out []RuleResult
	checked := 0
	eachTeam(f.Boxscore, func(team *domain.TeamBoxscore) {
		for i := range team.Skaters {
			sk := &team.Skaters[i]
			checked++
			if sk.Points == sk.Goals+sk.Assists {
				continue
			}
			out = append(out, RuleResult{
				RuleName: RuleSkaterPoints,
				Message: fmt.Sprintf("%s: points %d != goals %d + assists %d",
					sk.Name, sk.Points, sk.Goals, sk.Assists),
				Details: map[string]any{
					"player_id": sk.PlayerID,
					"goals":     sk.Goals,
					"assists":   sk.Assists,
					"points":    sk.Points,
				},
				EntityID: strconv.FormatInt(sk.PlayerID, 10),
			})
		}
	})
	if len(out) == 0 {
		out = append(out, passed(RuleSkaterPoints, "points arithmetic holds for %d skaters", checked))
	}
	return out
}

func checkSkaterSpecialTeams(f *GameFacts, _ map[string]any) []RuleResult {
	if f.Boxscore == nil {
		return skipped(RuleSkaterSpecialTeams)
	}
	var out []RuleResult
	checked := 0
	eachTeam(f.Boxscore, func(team *domain.TeamBoxscore) {
		for i := range team.Skaters {
			sk := &team.Skaters[i]
			checked++
			if sk.PowerPlayGoals+sk.ShorthandedGoals <= sk.Goals {
				continue
			}
			out = append(out, RuleResult{
				RuleName: RuleSkaterSpecialTeams,
				Message: fmt.Sprintf("%s: PP %d + SH %d exceeds %d goals",
					sk.Name, sk.PowerPlayGoals, sk.ShorthandedGoals, sk.Goals),
				Details: map[string]any{
					"player_id":         sk.PlayerID,
					"power_play_goals":  sk.PowerPlayGoals,
					"shorthanded_goals": sk.ShorthandedGoals,
					"goals":             sk.Goals,
				},
				EntityID: strconv.FormatInt(sk.PlayerID, 10),
			})
		}
	})
	if len(out) == 0 {
		out = append(out, passed(RuleSkaterSpecialTeams, "special-teams goals bounded for %d skaters", checked))
	}
	return out
}

func checkSkaterFaceoffPct(f *GameFacts, _ map[string]any) []RuleResult {
	if f.Boxscore == nil {
		return skipped(RuleSkaterFaceoffPct)
	}
	var out []RuleResult
	checked := 0
	eachTeam(f.Boxscore, func(team *domain.TeamBoxscore) {
		for i := range team.Skaters {
			sk := &team.Skaters[i]
			if sk.FaceoffPct == nil {
				continue
			}
			checked++
			if *sk.FaceoffPct >= 0 && *sk.FaceoffPct <= 100 {
				continue
			}
			out = append(out, RuleResult{
				RuleName: RuleSkaterFaceoffPct,
				Message:  fmt.Sprintf("%s: faceoff pct %.1f outside [0, 100]", sk.Name, *sk.FaceoffPct),
				Details:  map[string]any{"player_id": sk.PlayerID, "faceoff_pct": *sk.FaceoffPct},
				EntityID: strconv.FormatInt(sk.PlayerID, 10),
			})
		}
	})
	if len(out) == 0 {
		out = append(out, passed(RuleSkaterFaceoffPct, "faceoff pct in range for %d skaters", checked))
	}
	return out
}

var toiRe = regexp.MustCompile(`^\d{1,2}:\d{2}$`)

func checkPlayerTOIFormat(f *GameFacts, _ map[string]any) []RuleResult {
	if f.Boxscore == nil {
		return skipped(RulePlayerTOIFormat)
	}
	var out []RuleResult
	checked := 0
	report := func(playerID int64, name, toi string) {
		checked++
		if toiRe.MatchString(toi) {
			return
		}
		out = append(out, RuleResult{
			RuleName: RulePlayerTOIFormat,
			Message:  fmt.Sprintf("%s: TOI %q is not MM:SS", name, toi),
			Details:  map[string]any{"player_id": playerID, "toi": toi},
			EntityID: strconv.FormatInt(playerID, 10),
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
		out = append(out, passed(RulePlayerTOIFormat, "TOI well-formed for %d players", checked))
	}
	return out
}

func checkGoalieSavePct(f *GameFacts, _ map[string]any) []RuleResult {
	if f.Boxscore == nil {
		return skipped(RuleGoalieSavePct)
	}
	var out []RuleResult
	checked := 0
	eachTeam(f.Boxscore, func(team *domain.TeamBoxscore) {
		for i := range team.Goalies {
			g := &team.Goalies[i]
			if g.SavePct == nil {
				continue
			}
			checked++
			if *g.SavePct >= 0 && *g.SavePct <= 1 {
				continue
			}
			out = append(out, RuleResult{
				RuleName: RuleGoalieSavePct,
				Message:  fmt.Sprintf("%s: save pct %.3f outside [0, 1]", g.Name, *g.SavePct),
				Details:  map[string]any{"player_id": g.PlayerID, "save_pct": *g.SavePct},
				EntityID: strconv.FormatInt(g.PlayerID, 10),
			})
		}
	})
	if len(out) == 0 {
		out = append(out, passed(RuleGoalieSavePct, "save pct in range for %d goalies", checked))
	}
	return out
}

func checkGoalieShots(f *GameFacts, _ map[string]any) []RuleResult {
	if f.Boxscore == nil {
		return skipped(RuleGoalieShots)
	}
	var out []RuleResult
	checked := 0
	eachTeam(f.Boxscore, func(team *domain.TeamBoxscore) {
		for i := range team.Goalies {
			g := &team.Goalies[i]
			checked++
			if g.Saves+g.GoalsAgainst == g.ShotsAgainst {
				continue
			}
			out = append(out, RuleResult{
				RuleName: RuleGoalieShots,
				Message: fmt.Sprintf("%s: saves %d + goals against %d != shots against %d",
					g.Name, g.Saves, g.GoalsAgainst, g.ShotsAgainst),
				Details: map[string]any{
					"player_id":     g.PlayerID,
					"saves":         g.Saves,
					"goals_against": g.GoalsAgainst,
					"shots_against": g.ShotsAgainst,
				},
				EntityID: strconv.FormatInt(g.PlayerID, 10),
			})
		}
	})
	if len(out) == 0 {
		out = append(out, passed(RuleGoalieShots, "shot arithmetic holds for %d goalies", checked))
	}
	return out
}

func checkTeamGoalsSkaterSum(f *GameFacts, _ map[string]any) []RuleResult {
	if f.Boxscore == nil {
		return skipped(RuleTeamGoalsSkaterSum)
	}
	var out []RuleResult
	eachTeam(f.Boxscore, func(team *domain.TeamBoxscore) {
		sum := 0
		for i := range team.Skaters {
			sum += team.Skaters[i].Goals
		}
		if sum == team.Score {
			return
		}
		out = append(out, RuleResult{
			RuleName: RuleTeamGoalsSkaterSum,
			Message:  fmt.Sprintf("%s: team score %d != skater goal sum %d", team.Abbrev, team.Score, sum),
			Details:  map[string]any{"team": team.Abbrev, "score": team.Score, "skater_goals": sum},
			EntityID: team.Abbrev,
		})
	})
	if len(out) == 0 {
		out = append(out, passed(RuleTeamGoalsSkaterSum, "team scores match skater goal sums"))
	}
	return out
}

func checkTeamShotsVsGoals(f *GameFacts, _ map[string]any) []RuleResult {
	if f.Boxscore == nil {
		return skipped(RuleTeamShotsVsGoals)
	}
	var out []RuleResult
	eachTeam(f.Boxscore, func(team *domain.TeamBoxscore) {
		if team.ShotsOnGoal >= team.Score {
			return
		}
		out = append(out, RuleResult{
			RuleName: RuleTeamShotsVsGoals,
			Message:  fmt.Sprintf("%s: %d shots on goal below %d goals", team.Abbrev, team.ShotsOnGoal, team.Score),
			Details:  map[string]any{"team": team.Abbrev, "shots_on_goal": team.ShotsOnGoal, "score": team.Score},
			EntityID: team.Abbrev,
		})
	})
	if len(out) == 0 {
		out = append(out, passed(RuleTeamShotsVsGoals, "shot counts cover goal counts"))
	}
	return out
}
