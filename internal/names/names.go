// Package names normalizes player names and scores the similarity of two
// names for cross-source matching. Providers disagree on accents,
// initials, hyphenation, and nicknames ("N. MacKinnon", "Nathan
// MacKinnon", "Nate MacKinnon" are the same player), so reconciliation
// matches players through this package rather than by string equality.
package names

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultThreshold gates match decisions unless the caller overrides it.
const DefaultThreshold = 0.85

// Scores assigned to structural matches that plain sequence similarity
// underrates. Both sit above the default threshold and below an exact
// match, so a 0.99 threshold still rejects them.
const (
	initialScore  = 0.95
	nicknameScore = 0.90
)

var suffixes = map[string]bool{
	"jr": true, "sr": true, "ii": true, "iii": true, "iv": true, "v": true,
}

var deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases, strips accents and punctuation, collapses hyphens
// to spaces, and drops trailing generational suffixes.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if out, _, err := transform.String(deaccent, s); err == nil {
		s = out
	}
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.ReplaceAll(s, ".", " ")
	s = strings.ReplaceAll(s, "'", "")
	fields := strings.Fields(s)
	for len(fields) > 1 && suffixes[fields[len(fields)-1]] {
		fields = fields[:len(fields)-1]
	}
	return strings.Join(fields, " ")
}

// Similarity scores two names in [0, 1]. Identical normalized names score
// 1.0 and an empty side scores 0.0. Otherwise the score is the larger of
// the Ratcliff/Obershelp sequence ratio and a structural score for
// initial-vs-full ("n mackinnon" / "nathan mackinnon") or shared-prefix
// nickname ("nate" / "nathan") first names with an equal last name.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	score := ratio(na, nb)
	if s := structuralScore(na, nb); s > score {
		score = s
	}
	return score
}

// Match reports whether two names score at or above the threshold.
func Match(a, b string, threshold float64) bool {
	return Similarity(a, b) >= threshold
}

func structuralScore(a, b string) float64 {
	at, bt := strings.Fields(a), strings.Fields(b)
	if len(at) < 2 || len(bt) < 2 {
		return 0
	}
	if at[len(at)-1] != bt[len(bt)-1] {
		return 0
	}
	fa, fb := at[0], bt[0]
	if fa == fb {
		return nicknameScore
	}
	if len(fa) == 1 || len(fb) == 1 {
		if fa[0] == fb[0] {
			return initialScore
		}
		return 0
	}
	if commonPrefixLen(fa, fb) >= 3 {
		return nicknameScore
	}
	return 0
}

func commonPrefixLen(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

// ratio is the Ratcliff/Obershelp matching ratio: twice the total length
// of recursively matched common substrings over the combined length.
func ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra)+len(rb) == 0 {
		return 0
	}
	return 2 * float64(matched(ra, rb)) / float64(len(ra)+len(rb))
}

func matched(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	size, ai, bi := longestCommon(a, b)
	if size == 0 {
		return 0
	}
	return size + matched(a[:ai], b[:bi]) + matched(a[ai+size:], b[bi+size:])
}

func longestCommon(a, b []rune) (size, ai, bi int) {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > size {
					size = cur[j]
					ai = i - size
					bi = j - size
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return size, ai, bi
}
