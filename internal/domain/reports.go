package domain

// ReportCode identifies one HTML report genre.
type ReportCode string

const (
	ReportGameSummary       ReportCode = "GS"
	ReportEventSummary      ReportCode = "ES"
	ReportPlayByPlay        ReportCode = "PL"
	ReportFaceoffSummary    ReportCode = "FS"
	ReportFaceoffComparison ReportCode = "FC"
	ReportRosterCode        ReportCode = "RO"
	ReportShotSummary       ReportCode = "SS"
	ReportTOIHome           ReportCode = "TH"
	ReportTOIVisitor        ReportCode = "TV"
)

// ValidReportCode checks if a string is a known report code.
func ValidReportCode(s string) bool {
	switch ReportCode(s) {
	case ReportGameSummary, ReportEventSummary, ReportPlayByPlay,
		ReportFaceoffSummary, ReportFaceoffComparison, ReportRosterCode,
		ReportShotSummary, ReportTOIHome, ReportTOIVisitor:
		return true
	}
	return false
}

// ReportSkater is one skater row of an event summary. Counting stats are
// zero when the report prints a blank cell; FaceoffPct is nil for players
// who took no draws.
type ReportSkater struct {
	Number         int      `json:"number"`
	Position       string   `json:"position"`
	Name           string   `json:"name"`
	Goals          int      `json:"goals"`
	Assists        int      `json:"assists"`
	Points         int      `json:"points"`
	PlusMinus      int      `json:"plus_minus"`
	PenaltyMinutes int      `json:"penalty_minutes"`
	TOISeconds     int      `json:"toi_seconds"`
	Shifts         int      `json:"shifts"`
	PPSeconds      int      `json:"pp_seconds"`
	SHSeconds      int      `json:"sh_seconds"`
	Shots          int      `json:"shots"`
	FaceoffWins    int      `json:"faceoff_wins"`
	FaceoffLosses  int      `json:"faceoff_losses"`
	FaceoffPct     *float64 `json:"faceoff_pct,omitempty"`
}

// TeamEventSummary is one side of an event summary report, including the
// TEAM TOTALS row when present.
type TeamEventSummary struct {
	TeamName string         `json:"team_name"`
	Skaters  []ReportSkater `json:"skaters"`
	Totals   *ReportSkater  `json:"totals,omitempty"`
}

// EventSummary is the parsed ES report.
type EventSummary struct {
	GameID   int64            `json:"game_id"`
	SeasonID int              `json:"season_id"`
	Home     TeamEventSummary `json:"home"`
	Away     TeamEventSummary `json:"away"`
}

func (*EventSummary) Kind() EntityKind { return KindEventSummary }

// ReportGoal is one scoring line of a game summary.
type ReportGoal struct {
	GoalNumber int      `json:"goal_number"`
	Period     string   `json:"period"`
	Time       string   `json:"time"`
	Strength   string   `json:"strength"`
	Team       string   `json:"team"`
	Scorer     string   `json:"scorer"`
	Assists    []string `json:"assists,omitempty"`
}

// ReportPenalty is one penalty line of a game summary.
type ReportPenalty struct {
	Number     int    `json:"number"`
	Period     string `json:"period"`
	Time       string `json:"time"`
	Team       string `json:"team"`
	Player     string `json:"player"`
	Minutes    int    `json:"minutes"`
	Infraction string `json:"infraction"`
}

// GameSummary is the parsed GS report.
type GameSummary struct {
	GameID    int64           `json:"game_id"`
	SeasonID  int             `json:"season_id"`
	HomeTeam  string          `json:"home_team"`
	AwayTeam  string          `json:"away_team"`
	HomeGoals int             `json:"home_goals"`
	AwayGoals int             `json:"away_goals"`
	Goals     []ReportGoal    `json:"goals"`
	Penalties []ReportPenalty `json:"penalties"`
}

func (*GameSummary) Kind() EntityKind { return KindGameSummary }

// ReportPlay is one event row of the PL report.
type ReportPlay struct {
	EventNumber int    `json:"event_number"`
	Period      int    `json:"period"`
	Strength    string `json:"strength"`
	Time        string `json:"time"`
	EventType   string `json:"event_type"`
	Description string `json:"description"`
}

// ReportPlays is the parsed PL report.
type ReportPlays struct {
	GameID   int64        `json:"game_id"`
	SeasonID int          `json:"season_id"`
	Plays    []ReportPlay `json:"plays"`
}

func (*ReportPlays) Kind() EntityKind { return KindReportPlays }

// ReportRosterPlayer is one player row of the RO report.
type ReportRosterPlayer struct {
	Number   int    `json:"number"`
	Position string `json:"position"`
	Name     string `json:"name"`
	Captain  bool   `json:"captain"`
	Scratch  bool   `json:"scratch"`
}

// ReportRoster is the parsed RO report.
type ReportRoster struct {
	GameID   int64                `json:"game_id"`
	SeasonID int                  `json:"season_id"`
	HomeTeam string               `json:"home_team"`
	AwayTeam string               `json:"away_team"`
	Home     []ReportRosterPlayer `json:"home"`
	Away     []ReportRosterPlayer `json:"away"`
}

func (*ReportRoster) Kind() EntityKind { return KindReportRoster }

// PeriodShots is one team's shot count for one period in the SS report.
type PeriodShots struct {
	Period int `json:"period"`
	Shots  int `json:"shots"`
}

// ShotSummary is the parsed SS report (team-level per-period totals).
type ShotSummary struct {
	GameID   int64         `json:"game_id"`
	SeasonID int           `json:"season_id"`
	HomeTeam string        `json:"home_team"`
	AwayTeam string        `json:"away_team"`
	Home     []PeriodShots `json:"home"`
	Away     []PeriodShots `json:"away"`
}

func (*ShotSummary) Kind() EntityKind { return KindShotSummary }

// ReportShift is one shift row of a TH/TV report.
type ReportShift struct {
	ShiftNumber int    `json:"shift_number"`
	Period      string `json:"period"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Duration    string `json:"duration"`
	Event       string `json:"event,omitempty"`
}

// PlayerTOI is one player's block in a TH/TV report.
type PlayerTOI struct {
	Number       int           `json:"number"`
	Name         string        `json:"name"`
	ShiftCount   int           `json:"shift_count"`
	TotalSeconds int           `json:"total_seconds"`
	Shifts       []ReportShift `json:"shifts"`
}

// TOIReport is the parsed TH or TV report. Side is "home" for TH and
// "visitor" for TV.
type TOIReport struct {
	GameID   int64       `json:"game_id"`
	SeasonID int         `json:"season_id"`
	Side     string      `json:"side"`
	Team     string      `json:"team"`
	Players  []PlayerTOI `json:"players"`
}

func (*TOIReport) Kind() EntityKind { return KindTOIReport }

// PlayerFaceoffs is one player's faceoff line in the FS report.
type PlayerFaceoffs struct {
	Number int      `json:"number"`
	Name   string   `json:"name"`
	Wins   int      `json:"wins"`
	Losses int      `json:"losses"`
	Pct    *float64 `json:"pct,omitempty"`
}

// FaceoffSummary is the parsed FS report.
type FaceoffSummary struct {
	GameID   int64            `json:"game_id"`
	SeasonID int              `json:"season_id"`
	Home     []PlayerFaceoffs `json:"home"`
	Away     []PlayerFaceoffs `json:"away"`
}

func (*FaceoffSummary) Kind() EntityKind { return KindFaceoffSummary }

// FaceoffMatchup is one head-to-head cell in the FC report.
type FaceoffMatchup struct {
	HomePlayer string `json:"home_player"`
	AwayPlayer string `json:"away_player"`
	HomeWins   int    `json:"home_wins"`
	Total      int    `json:"total"`
}

// FaceoffComparison is the parsed FC report.
type FaceoffComparison struct {
	GameID   int64            `json:"game_id"`
	SeasonID int              `json:"season_id"`
	Matchups []FaceoffMatchup `json:"matchups"`
}

func (*FaceoffComparison) Kind() EntityKind { return KindFaceoffMatchups }
