package service

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Honorifics stripped from the front of a name. Dots are removed before lookup
// so "Dr." and "dr" are the same token.
var honorificPrefixes = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {},
	"shri": {}, "smt": {}, "kumari": {},
}

// Honorifics stripped from the end of a name.
var honorificSuffixes = map[string]struct{}{
	"sir": {}, "mam": {}, "ma'am": {}, "ma’am": {}, "madam": {}, "mem": {},
	"ji": {}, "g": {}, "sahab": {}, "sahib": {},
}

// Normalize cleans a raw name: case-folds, drops abbreviation dots, collapses
// whitespace, strips honorifics while another token remains, and title-cases
// what is left. Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	s := strings.ToLower(norm.NFKC.String(raw))
	s = strings.ReplaceAll(s, ".", " ")
	tokens := strings.Fields(s)

	for len(tokens) > 1 && isHonorific(honorificPrefixes, tokens[0]) {
		tokens = tokens[1:]
	}
	for len(tokens) > 1 && isHonorific(honorificSuffixes, tokens[len(tokens)-1]) {
		tokens = tokens[:len(tokens)-1]
	}

	// Caser is stateful; one per call.
	caser := cases.Title(language.Und)
	for i, t := range tokens {
		tokens[i] = caser.String(t)
	}
	return strings.Join(tokens, " ")
}

func isHonorific(set map[string]struct{}, token string) bool {
	_, ok := set[token]
	return ok
}

// Similarity returns 1 - levenshtein(a, b) / max(len(a), len(b)) over runes.
// Callers normalize first.
func Similarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1.0
	}
	distance := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(distance)/float64(longest)
}

// minSubstringRunes guards the containment rule: a first name alone matches
// "first last" only when it is at least this long.
const minSubstringRunes = 4

// SameEntity is the grouping predicate over two normalized names.
func SameEntity(a, b string, threshold float64) bool {
	if Similarity(a, b) >= threshold {
		return true
	}
	return containsName(a, b)
}

func containsName(a, b string) bool {
	short, long := a, b
	if utf8.RuneCountInString(short) > utf8.RuneCountInString(long) {
		short, long = long, short
	}
	if utf8.RuneCountInString(short) < minSubstringRunes {
		return false
	}
	return strings.Contains(long, short)
}
