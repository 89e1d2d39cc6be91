// Package parse holds the lenient numeric parsers shared by all source
// parsers. External providers pad cells with commas, percent signs, and
// whitespace; these helpers strip that and return nil instead of an error
// so callers can substitute defaults for optional fields.
package parse

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	mmssRe  = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	totalRe = regexp.MustCompile(`^(\d{1,4}):(\d{2})$`)
)

func clean(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSuffix(s, "%")
	return strings.TrimSpace(s)
}

// Int parses s as an integer after stripping commas, a trailing percent
// sign, and whitespace. Returns nil when the remainder is empty or not a
// number.
func Int(s string) *int {
	s = clean(s)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

// Float parses s as a float after the same cleanup as Int. Returns nil on
// failure.
func Float(s string) *float64 {
	s = clean(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

// MMSS parses a "MM:SS" or "M:SS" duration into seconds. Seconds must be
// two digits; returns nil otherwise.
func MMSS(s string) *int {
	m := mmssRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return nil
	}
	mins, _ := strconv.Atoi(m[1])
	secs, _ := strconv.Atoi(m[2])
	if secs > 59 {
		return nil
	}
	total := mins*60 + secs
	return &total
}

// TotalMMSS parses a "MMMM:SS" duration into seconds. Team-total rows run
// past two-digit minutes, so this accepts up to four.
func TotalMMSS(s string) *int {
	m := totalRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return nil
	}
	mins, _ := strconv.Atoi(m[1])
	secs, _ := strconv.Atoi(m[2])
	if secs > 59 {
		return nil
	}
	total := mins*60 + secs
	return &total
}
