// Package genre normalizes genre strings returned by upstream music APIs.
// Upstream payloads occasionally carry malformed serialization artifacts
// (surrounding brackets and quotes from stringified lists), so every genre is
// cleaned before it is cached or persisted.
package genre

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	bracketQuoteRegex = regexp.MustCompile(`^[\[\]"'` + "`" + `\s]+|[\[\]"'` + "`" + `\s]+$`)
	whitespaceRegex   = regexp.MustCompile(`\s+`)
)

// Normalize cleans a single genre string: NFKD fold, strip combining marks,
// trim surrounding bracket/quote junk, collapse whitespace, lowercase.
// Returns "" when nothing meaningful remains.
func Normalize(genre string) string {
	genre = norm.NFKD.String(genre)

	var result strings.Builder
	for _, r := range genre {
		if !unicode.IsMark(r) {
			result.WriteRune(r)
		}
	}
	genre = result.String()

	genre = bracketQuoteRegex.ReplaceAllString(genre, "")
	genre = whitespaceRegex.ReplaceAllString(genre, " ")

	genre = strings.ToLower(genre)
	genre = strings.TrimSpace(genre)

	return genre
}

// NormalizeAll cleans a list of genres, dropping entries that normalize to
// nothing and de-duplicating while preserving upstream order.
func NormalizeAll(genres []string) []string {
	seen := make(map[string]struct{}, len(genres))
	result := make([]string, 0, len(genres))

	for _, g := range genres {
		cleaned := Normalize(g)
		if cleaned == "" {
			continue
		}
		if _, dup := seen[cleaned]; dup {
			continue
		}
		seen[cleaned] = struct{}{}
		result = append(result, cleaned)
	}

	return result
}
