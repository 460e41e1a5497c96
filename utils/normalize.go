package utils

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonAlnumRegexp = regexp.MustCompile(`[^A-Z0-9 ]+`)

// Normalize canonicalizes a vehicle name for comparison: diacritics removed,
// upper-cased, anything outside [A-Z0-9 ] turned into a space, whitespace
// collapsed and trimmed. Two strings denote the same token when their
// normalized forms are equal.
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	// transform.Chain keeps state, so it is built per call.
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}

	upper := nonAlnumRegexp.ReplaceAllString(strings.ToUpper(stripped), " ")
	return strings.Join(strings.Fields(upper), " ")
}

// Tokens splits a normalized term into its words, keeping only those longer
// than minLen characters.
func Tokens(term string, minLen int) []string {
	fields := strings.Fields(term)
	out := fields[:0]
	for _, f := range fields {
		if len(f) > minLen {
			out = append(out, f)
		}
	}
	return out
}
