package domain

import "fmt"

// Game ids are 10-digit integers of the form YYYYGGNNNN: YYYY is the
// season start year, GG the game type, NNNN the game number.
const (
	GameTypePreseason = 1
	GameTypeRegular   = 2
	GameTypePlayoffs  = 3
)

// SeasonForYear derives the season id from its start year
// (2024 → 20242025).
func SeasonForYear(year int) int {
	return year*10000 + year + 1
}

// SeasonOfGame derives the season id from a game id
// (2024020500 → 20242025).
func SeasonOfGame(gameID int64) int {
	return SeasonForYear(int(gameID / 1_000_000))
}

// GameTypeOf extracts the game-type digits from a game id
// (2024020500 → 2).
func GameTypeOf(gameID int64) int {
	return int(gameID / 10_000 % 100)
}

// GameSuffix returns the last six digits of a game id zero-padded, as
// used in HTML report filenames (2024020500 → "020500").
func GameSuffix(gameID int64) string {
	return fmt.Sprintf("%06d", gameID%1_000_000)
}

// ValidGameID reports whether a game id has the expected ten-digit shape
// and a known game type.
func ValidGameID(gameID int64) bool {
	if gameID < 1_000_000_000 || gameID > 9_999_999_999 {
		return false
	}
	switch GameTypeOf(gameID) {
	case GameTypePreseason, GameTypeRegular, GameTypePlayoffs:
		return true
	}
	return false
}
