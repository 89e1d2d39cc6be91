package domain

import "time"

// EntityKind names one kind of downloaded unit. The game store keys its
// tables by kind, and the auto-validation worker uses kinds to decide
// whether a game has enough data to reconcile.
type EntityKind string

const (
	KindBoxscore        EntityKind = "boxscore"
	KindPlayByPlay      EntityKind = "play_by_play"
	KindShiftChart      EntityKind = "shift_chart"
	KindSchedule        EntityKind = "schedule"
	KindStandings       EntityKind = "standings"
	KindRoster          EntityKind = "roster"
	KindPlayerGameLog   EntityKind = "player_game_log"
	KindEventSummary    EntityKind = "report_es"
	KindGameSummary     EntityKind = "report_gs"
	KindReportPlays     EntityKind = "report_pl"
	KindReportRoster    EntityKind = "report_ro"
	KindShotSummary     EntityKind = "report_ss"
	KindTOIReport       EntityKind = "report_toi"
	KindFaceoffSummary  EntityKind = "report_fs"
	KindFaceoffMatchups EntityKind = "report_fc"
	KindTeamLines       EntityKind = "team_lines"
	KindInjuries        EntityKind = "injuries"
	KindStartingGoalies EntityKind = "starting_goalies"
)

// Parsed is the result of one successful fetch+parse: a typed entity the
// owning adapter knows how to persist.
type Parsed interface {
	Kind() EntityKind
}

// GameDataPresence reports which parsed entities exist for one game. The
// auto-validation worker reads it to decide whether a game has enough data
// for each validator family.
type GameDataPresence struct {
	Boxscore    bool     `json:"boxscore"`
	PlayByPlay  bool     `json:"play_by_play"`
	ShiftChart  bool     `json:"shift_chart"`
	ReportCodes []string `json:"report_codes,omitempty"`
}

// SkaterLine is one skater's stat line in a boxscore. FaceoffPct is a
// percentage in [0, 100]; TOI is the raw "MM:SS" string from the source.
type SkaterLine struct {
	PlayerID         int64    `json:"player_id"`
	Name             string   `json:"name"`
	SweaterNumber    *int     `json:"sweater_number,omitempty"`
	Position         string   `json:"position"`
	Goals            int      `json:"goals"`
	Assists          int      `json:"assists"`
	Points           int      `json:"points"`
	PlusMinus        *int     `json:"plus_minus,omitempty"`
	PenaltyMinutes   int      `json:"penalty_minutes"`
	Shots            int      `json:"shots"`
	Hits             *int     `json:"hits,omitempty"`
	BlockedShots     *int     `json:"blocked_shots,omitempty"`
	PowerPlayGoals   int      `json:"power_play_goals"`
	ShorthandedGoals int      `json:"shorthanded_goals"`
	FaceoffPct       *float64 `json:"faceoff_pct,omitempty"`
	TOI              string   `json:"toi"`
	Shifts           *int     `json:"shifts,omitempty"`
}

// GoalieLine is one goalie's stat line in a boxscore. SavePct is a
// fraction in [0, 1].
type GoalieLine struct {
	PlayerID      int64    `json:"player_id"`
	Name          string   `json:"name"`
	SweaterNumber *int     `json:"sweater_number,omitempty"`
	Saves         int      `json:"saves"`
	ShotsAgainst  int      `json:"shots_against"`
	GoalsAgainst  int      `json:"goals_against"`
	SavePct       *float64 `json:"save_pct,omitempty"`
	TOI           string   `json:"toi"`
	Starter       bool     `json:"starter"`
}

// TeamBoxscore is one side of a boxscore.
type TeamBoxscore struct {
	TeamID       int          `json:"team_id"`
	Abbrev       string       `json:"abbrev"`
	Score        int          `json:"score"`
	ShotsOnGoal  int          `json:"shots_on_goal"`
	Skaters      []SkaterLine `json:"skaters"`
	Goalies      []GoalieLine `json:"goalies"`
	PowerPlayPct *float64     `json:"power_play_pct,omitempty"`
}

// GameBoxscore is the parsed form of one JSON API boxscore.
type GameBoxscore struct {
	GameID    int64        `json:"game_id"`
	SeasonID  int          `json:"season_id"`
	GameDate  string       `json:"game_date"`
	GameState string       `json:"game_state"`
	HomeTeam  TeamBoxscore `json:"home_team"`
	AwayTeam  TeamBoxscore `json:"away_team"`
}

func (*GameBoxscore) Kind() EntityKind { return KindBoxscore }

// Event type codes shared by the play-by-play feed and shift charts.
const (
	EventTypeGoal       = 505
	EventTypeShotOnGoal = 506
)

// PlayEvent is one event in a play-by-play feed.
type PlayEvent struct {
	EventID      int            `json:"event_id"`
	Period       int            `json:"period"`
	PeriodType   string         `json:"period_type"`
	TimeInPeriod string         `json:"time_in_period"`
	TypeCode     int            `json:"type_code"`
	TypeKey      string         `json:"type_key"`
	TeamID       *int           `json:"team_id,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
}

// GamePlayByPlay is the parsed form of one play-by-play feed. Home and
// away team ids let rules attribute events to a side.
type GamePlayByPlay struct {
	GameID     int64       `json:"game_id"`
	SeasonID   int         `json:"season_id"`
	HomeTeamID int         `json:"home_team_id"`
	AwayTeamID int         `json:"away_team_id"`
	HomeAbbrev string      `json:"home_abbrev"`
	AwayAbbrev string      `json:"away_abbrev"`
	Events     []PlayEvent `json:"events"`
}

func (*GamePlayByPlay) Kind() EntityKind { return KindPlayByPlay }

// Shift is one row of a shift chart. Goal-marker rows carry
// EventTypeGoal in TypeCode and a nil duration; they are decorative and
// excluded from TOI and shift-count sums.
type Shift struct {
	PlayerID         int64   `json:"player_id"`
	FirstName        string  `json:"first_name"`
	LastName         string  `json:"last_name"`
	TeamID           int     `json:"team_id"`
	TeamAbbrev       string  `json:"team_abbrev"`
	Period           int     `json:"period"`
	StartTime        string  `json:"start_time"`
	EndTime          string  `json:"end_time"`
	DurationSeconds  *int    `json:"duration_seconds,omitempty"`
	ShiftNumber      int     `json:"shift_number"`
	TypeCode         int     `json:"type_code"`
	EventDescription *string `json:"event_description,omitempty"`
}

// ShiftChart is the parsed form of one game's shift chart.
type ShiftChart struct {
	GameID   int64   `json:"game_id"`
	SeasonID int     `json:"season_id"`
	Shifts   []Shift `json:"shifts"`
}

func (*ShiftChart) Kind() EntityKind { return KindShiftChart }

// ScheduleGame is one game row from the schedule feed. Scores are nil
// before the game has been played.
type ScheduleGame struct {
	GameID       int64      `json:"game_id"`
	SeasonID     int        `json:"season_id"`
	GameType     int        `json:"game_type"`
	GameDate     string     `json:"game_date"`
	StartTimeUTC *time.Time `json:"start_time_utc,omitempty"`
	GameState    string     `json:"game_state"`
	HomeAbbrev   string     `json:"home_abbrev"`
	AwayAbbrev   string     `json:"away_abbrev"`
	HomeScore    *int       `json:"home_score,omitempty"`
	AwayScore    *int       `json:"away_score,omitempty"`
	Venue        string     `json:"venue,omitempty"`
}

func (*ScheduleGame) Kind() EntityKind { return KindSchedule }

// ScheduleDay groups the schedule games fetched for one date.
type ScheduleDay struct {
	Date  string         `json:"date"`
	Games []ScheduleGame `json:"games"`
}

func (*ScheduleDay) Kind() EntityKind { return KindSchedule }

// StandingsRow is one team's line in a standings snapshot.
type StandingsRow struct {
	TeamAbbrev   string `json:"team_abbrev"`
	GamesPlayed  int    `json:"games_played"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
	OTLosses     int    `json:"ot_losses"`
	Points       int    `json:"points"`
	GoalsFor     int    `json:"goals_for"`
	GoalsAgainst int    `json:"goals_against"`
}

// StandingsSnapshot is the parsed form of one standings fetch.
type StandingsSnapshot struct {
	SeasonID   int            `json:"season_id"`
	CapturedAt time.Time      `json:"captured_at"`
	Rows       []StandingsRow `json:"rows"`
}

func (*StandingsSnapshot) Kind() EntityKind { return KindStandings }

// RosterPlayer is one player on a team roster.
type RosterPlayer struct {
	PlayerID      int64  `json:"player_id"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Position      string `json:"position"`
	SweaterNumber *int   `json:"sweater_number,omitempty"`
	ShootsCatches string `json:"shoots_catches,omitempty"`
}

// TeamRoster is the parsed form of one team-season roster.
type TeamRoster struct {
	TeamAbbrev string         `json:"team_abbrev"`
	SeasonID   int            `json:"season_id"`
	Players    []RosterPlayer `json:"players"`
}

func (*TeamRoster) Kind() EntityKind { return KindRoster }

// GameLogEntry is one game in a player's game log.
type GameLogEntry struct {
	GameID         int64  `json:"game_id"`
	GameDate       string `json:"game_date"`
	TeamAbbrev     string `json:"team_abbrev"`
	OpponentAbbrev string `json:"opponent_abbrev"`
	HomeRoad       string `json:"home_road"`
	Goals          int    `json:"goals"`
	Assists        int    `json:"assists"`
	Points         int    `json:"points"`
	PlusMinus      *int   `json:"plus_minus,omitempty"`
	Shots          int    `json:"shots"`
	Shifts         *int   `json:"shifts,omitempty"`
	TOI            string `json:"toi"`
}

// PlayerGameLog is the parsed form of one player's season game log.
type PlayerGameLog struct {
	PlayerID int64          `json:"player_id"`
	SeasonID int            `json:"season_id"`
	GameType int            `json:"game_type"`
	Games    []GameLogEntry `json:"games"`
}

func (*PlayerGameLog) Kind() EntityKind { return KindPlayerGameLog }
