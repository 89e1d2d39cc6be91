package domain

import "time"

// TeamLines is the parsed line-combination page for one team. Line slices
// hold player names in slot order.
type TeamLines struct {
	TeamSlug       string     `json:"team_slug"`
	CapturedAt     time.Time  `json:"captured_at"`
	ForwardLines   [][]string `json:"forward_lines"`
	DefensePairs   [][]string `json:"defense_pairs"`
	PowerPlayUnits [][]string `json:"power_play_units,omitempty"`
	Goalies        []string   `json:"goalies,omitempty"`
}

func (*TeamLines) Kind() EntityKind { return KindTeamLines }

// PlayerInjury is one row of a team injury page.
type PlayerInjury struct {
	PlayerName string `json:"player_name"`
	Position   string `json:"position,omitempty"`
	Status     string `json:"status"`
	Note       string `json:"note,omitempty"`
}

// InjuryReport is the parsed injury page for one team.
type InjuryReport struct {
	TeamSlug   string         `json:"team_slug"`
	CapturedAt time.Time      `json:"captured_at"`
	Injuries   []PlayerInjury `json:"injuries"`
}

func (*InjuryReport) Kind() EntityKind { return KindInjuries }

// GoalieStart is one game's projected starters.
type GoalieStart struct {
	HomeTeam       string `json:"home_team"`
	AwayTeam       string `json:"away_team"`
	HomeGoalie     string `json:"home_goalie"`
	AwayGoalie     string `json:"away_goalie"`
	HomeConfidence string `json:"home_confidence,omitempty"`
	AwayConfidence string `json:"away_confidence,omitempty"`
}

// StartingGoalies is the parsed starting-goalies page for one date.
type StartingGoalies struct {
	Date       string        `json:"date"`
	CapturedAt time.Time     `json:"captured_at"`
	Games      []GoalieStart `json:"games"`
}

func (*StartingGoalies) Kind() EntityKind { return KindStartingGoalies }
