// Package matching resolves client identity against noisy spreadsheet data:
// accent-insensitive name comparison, tax-ID containment and an ordered list of
// named strategies whose outcome is reported with a reason code.
package matching

import (
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// minTokenLength excludes articles and prepositions ("DA", "DE", "E") from
// token comparison.
const minTokenLength = 3

// NormalizeName folds accents, uppercases s and collapses its whitespace.
func NormalizeName(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(func(r rune) bool {
		return unicode.Is(unicode.Mn, r)
	}), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		result = s
	}
	return strings.Join(strings.Fields(strings.ToUpper(result)), " ")
}

// Tokens returns the distinct words of a normalized name that are long enough
// to be meaningful, in order of first appearance.
func Tokens(normalized string) []string {
	seen := make(map[string]struct{})
	var tokens []string
	for _, w := range strings.Fields(normalized) {
		if len([]rune(w)) < minTokenLength {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		tokens = append(tokens, w)
	}
	return tokens
}

// Similarity returns |A∩B| / max(|A|,|B|) over the token sets of a and b, or
// 1 when both names normalize to the same string. The ratio is symmetric.
func Similarity(a, b string) float64 {
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}

	ta, tb := Tokens(na), Tokens(nb)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	inB := make(map[string]struct{}, len(tb))
	for _, w := range tb {
		inB[w] = struct{}{}
	}
	common := 0
	for _, w := range ta {
		if _, ok := inB[w]; ok {
			common++
		}
	}

	denom := len(ta)
	if len(tb) > denom {
		denom = len(tb)
	}
	return float64(common) / float64(denom)
}

// Similar reports whether a and b are at least threshold similar. The threshold
// is part of the caller's contract.
func Similar(a, b string, threshold float64) bool {
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	return Similarity(a, b) >= threshold
}

// ContainsFolded reports whether needle occurs in haystack ignoring case and accents.
func ContainsFolded(haystack, needle string) bool {
	n := NormalizeName(needle)
	if n == "" {
		return false
	}
	return strings.Contains(NormalizeName(haystack), n)
}
