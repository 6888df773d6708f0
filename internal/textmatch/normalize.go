// Package textmatch holds the string transforms every matching component relies on.
// All functions are pure and safe for concurrent use.
package textmatch

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Package-level compiled regex patterns
var (
	nonWordRegex        = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	multipleSpacesRegex = regexp.MustCompile(`\s+`)
	yearRegex           = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	parenYearRegex      = regexp.MustCompile(`\(\s*(?:19|20)\d{2}\s*\)`)
	sizeRegex           = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(cl|ml)\b`)
)

// lowercase letters NFD does not decompose; applied after mark removal
var foldReplacer = strings.NewReplacer(
	"ø", "o",
	"æ", "ae",
	"œ", "oe",
	"ß", "ss",
	"đ", "d",
	"ł", "l",
)

// stopWords are dropped when tokenizing for overlap scores
var stopWords = map[string]bool{
	"de": true, "du": true, "des": true, "la": true, "le": true, "les": true,
	"di": true, "del": true, "della": true, "da": true, "el": true,
	"the": true, "and": true, "et": true, "of": true, "y": true, "und": true,
}

// NormalizeForMatch lowercases, strips accents, replaces punctuation with spaces
// and collapses whitespace. Empty input yields empty output.
func NormalizeForMatch(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}

	result := s
	// Transformers carry state, so build the chain per call
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if out, _, err := transform.String(t, result); err == nil {
		result = out
	}
	// Fold after mark removal: "ǽ" only becomes "æ" once its accent is gone.
	result = foldReplacer.Replace(strings.ToLower(result))
	result = nonWordRegex.ReplaceAllString(result, " ")
	result = multipleSpacesRegex.ReplaceAllString(result, " ")
	return strings.TrimSpace(result)
}

// ExtractYear returns the first 19xx/20xx year in s, or "".
func ExtractYear(s string) string {
	return yearRegex.FindString(s)
}

// ExtractSize returns a bottle size like "750ml" or "75cl", or "".
func ExtractSize(s string) string {
	m := sizeRegex.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return strings.ReplaceAll(m[1], ",", ".") + strings.ToLower(m[2])
}

// StripYear removes a parenthesized or bare year so "Wine (2020)" and "Wine 2020" compare equal.
func StripYear(s string) string {
	result := parenYearRegex.ReplaceAllString(s, " ")
	result = yearRegex.ReplaceAllString(result, " ")
	result = multipleSpacesRegex.ReplaceAllString(result, " ")
	return strings.TrimSpace(result)
}

// StripSize removes a bottle-size token like "750 ml"
func StripSize(s string) string {
	result := sizeRegex.ReplaceAllString(s, " ")
	result = multipleSpacesRegex.ReplaceAllString(result, " ")
	return strings.TrimSpace(result)
}

// NormalizeWineName normalizes a catalog wine name with its year removed
func NormalizeWineName(s string) string {
	return NormalizeForMatch(StripYear(s))
}

// NormalizePDPTitle drops a trailing "| Store Name" suffix before normalizing
func NormalizePDPTitle(s string) string {
	if idx := strings.LastIndex(s, "|"); idx > 0 {
		s = s[:idx]
	}
	return NormalizeForMatch(s)
}

// Tokens splits an already-normalized string into comparison tokens,
// skipping stop words and single characters.
func Tokens(normalized string) []string {
	words := strings.Fields(normalized)
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) <= 1 || stopWords[w] {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}
