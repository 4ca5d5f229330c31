// Package normalize canonicalizes free-text names, cities, venues, and dates
// coming out of source adapters. All functions are pure and deterministic:
// identical input always yields identical output.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	yearToken   = regexp.MustCompile(`\b\d{4}\b`)
	nonAlnumRun = regexp.MustCompile(`[^a-z0-9]+`)

	// stripMarks decomposes and drops combining marks, so "édition" and
	// "edition" canonicalize identically.
	stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// stopTokens are generic words that carry no identity: every festival page
// contains them.
var stopTokens = map[string]struct{}{
	"festival": {},
	"fest":     {},
	"edition":  {},
}

// Text produces the canonical form of a raw string: lowercase, diacritics
// stripped, stop tokens and four-digit years removed, non-alphanumeric runs
// collapsed to single spaces, trimmed.
func Text(raw string) string {
	lowered := strings.ToLower(raw)

	folded, _, err := transform.String(stripMarks, lowered)
	if err != nil {
		// Transform only fails on malformed UTF-8; fall back to the
		// lowered input rather than dropping the record.
		folded = lowered
	}

	folded = yearToken.ReplaceAllString(folded, " ")
	folded = nonAlnumRun.ReplaceAllString(folded, " ")

	tokens := strings.Fields(folded)
	kept := tokens[:0]
	for _, token := range tokens {
		if _, skip := stopTokens[token]; skip {
			continue
		}
		kept = append(kept, token)
	}
	return strings.Join(kept, " ")
}

// FirstTokens returns the first n tokens of an already-normalized string.
func FirstTokens(normalized string, n int) string {
	tokens := strings.Fields(normalized)
	if len(tokens) > n {
		tokens = tokens[:n]
	}
	return strings.Join(tokens, " ")
}

// Slug builds a URL-safe slug from a name. Unlike Text it keeps year tokens,
// since slugs for recurring events need the year to stay unique.
func Slug(raw string) string {
	lowered := strings.ToLower(raw)
	folded, _, err := transform.String(stripMarks, lowered)
	if err != nil {
		folded = lowered
	}
	folded = nonAlnumRun.ReplaceAllString(folded, "-")
	return strings.Trim(folded, "-")
}
