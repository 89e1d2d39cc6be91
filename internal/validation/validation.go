// Package validation reconciles parsed game data. Rules are total
// functions over one game's parsed entities: internal rules check a
// single entity for arithmetic consistency, cross-source rules compare
// the same fact as reported by two sources. The engine evaluates the
// active rules for every game in scope and persists results and
// discrepancies through the validation store.
package validation

import (
	"fmt"

	"github.com/rinkdata/rink/internal/domain"
)

// Rule names, matching the rows seeded by the schema migration. The
// engine binds each stored rule to its check function by name.
const (
	RuleSkaterPoints       = "skater_points_arithmetic"
	RuleSkaterSpecialTeams = "skater_special_teams_goals"
	RuleSkaterFaceoffPct   = "skater_faceoff_pct_range"
	RulePlayerTOIFormat    = "player_toi_format"
	RuleGoalieSavePct      = "goalie_save_pct_range"
	RuleGoalieShots        = "goalie_shot_arithmetic"
	RuleTeamGoalsSkaterSum = "team_goals_skater_sum"
	RuleTeamShotsVsGoals   = "team_shots_vs_goals"

	RulePBPGoalsHome       = "cross_source_pbp_boxscore_goals_home"
	RulePBPGoalsAway       = "cross_source_pbp_boxscore_goals_away"
	RulePBPShotsHome       = "cross_source_pbp_boxscore_shots_home"
	RulePBPShotsAway       = "cross_source_pbp_boxscore_shots_away"
	RuleShiftTOI           = "cross_source_shift_boxscore_toi"
	RuleShiftCount         = "cross_source_shift_boxscore_shift_count"
	RuleScheduleFinalScore = "cross_source_schedule_boxscore_final_score"
	RuleHTMLGoals          = "cross_source_html_boxscore_goals"
)

// skippedMessage marks a rule that could not run because a required
// input is missing. Skipped results pass: absent data is the downloader's
// problem, not a data-quality finding.
const skippedMessage = "skipped: insufficient data"

// GameFacts bundles every parsed entity one game can contribute to
// validation. Any field may be nil; rules skip what they cannot check.
type GameFacts struct {
	GameID      int64
	Boxscore    *domain.GameBoxscore
	PlayByPlay  *domain.GamePlayByPlay
	ShiftChart  *domain.ShiftChart
	Schedule    *domain.ScheduleGame
	GameSummary *domain.GameSummary
}

// RuleResult is one finding from one rule evaluation. Failed
// cross-source results carry the entity key fields that identify the
// discrepancy row; internal rules leave them empty.
type RuleResult struct {
	RuleName     string
	Passed       bool
	Message      string
	Details      map[string]any
	SourceValues map[string]any

	EntityType string
	EntityID   string
	FieldName  string
	Difference *float64
}

// CheckFunc evaluates one rule against one game. cfg is the rule row's
// operator-editable config (tolerances). Checks are total: missing input
// yields a single skipped result, never an error.
type CheckFunc func(f *GameFacts, cfg map[string]any) []RuleResult

// builtinChecks binds every seeded rule name to its check function.
func builtinChecks() map[string]CheckFunc {
	return map[string]CheckFunc{
		RuleSkaterPoints:       checkSkaterPoints,
		RuleSkaterSpecialTeams: checkSkaterSpecialTeams,
		RuleSkaterFaceoffPct:   checkSkaterFaceoffPct,
		RulePlayerTOIFormat:    checkPlayerTOIFormat,
		RuleGoalieSavePct:      checkGoalieSavePct,
		RuleGoalieShots:        checkGoalieShots,
		RuleTeamGoalsSkaterSum: checkTeamGoalsSkaterSum,
		RuleTeamShotsVsGoals:   checkTeamShotsVsGoals,

		RulePBPGoalsHome:       checkPBPGoals(RulePBPGoalsHome, true),
		RulePBPGoalsAway:       checkPBPGoals(RulePBPGoalsAway, false),
		RulePBPShotsHome:       checkPBPShots(RulePBPShotsHome, true),
		RulePBPShotsAway:       checkPBPShots(RulePBPShotsAway, false),
		RuleShiftTOI:           checkShiftTOI,
		RuleShiftCount:         checkShiftCount,
		RuleScheduleFinalScore: checkScheduleFinalScore,
		RuleHTMLGoals:          checkHTMLGoals,
	}
}

func skipped(rule string) []RuleResult {
	return []RuleResult{{RuleName: rule, Passed: true, Message: skippedMessage}}
}

func passed(rule, format string, args ...any) RuleResult {
	return RuleResult{RuleName: rule, Passed: true, Message: fmt.Sprintf(format, args...)}
}

// cfgInt reads an integer tolerance from a rule config. JSON decoding
// hands numbers over as float64.
func cfgInt(cfg map[string]any, key string, def int) int {
	switch v := cfg[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// eachTeam visits both sides of a boxscore, home first.
func eachTeam(box *domain.GameBoxscore, fn func(team *domain.TeamBoxscore)) {
	fn(&box.HomeTeam)
	fn(&box.AwayTeam)
}
