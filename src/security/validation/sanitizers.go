// backend/src/security/validation/sanitizers.go
package validation

import (
	"errors"
	"strings"
	"unicode"
)

// maxQueryLength bounds free-text lookups coming from the web layer.
const maxQueryLength = 200

// ErrEmptyQuery is the reason of a ValidationError for a blank name search.
var ErrEmptyQuery = errors.New("search query is empty")

// StripUnprintable removes non-printable characters, allowing common whitespace
// like space, tab, newline, and carriage return.
func StripUnprintable(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		return -1 // Drop the rune
	}, s)
}

// SanitizeQuery cleans a user-supplied lookup string: unprintable runes are
// dropped, whitespace is collapsed and the result is truncated.
func SanitizeQuery(s string) string {
	cleaned := strings.Join(strings.Fields(StripUnprintable(s)), " ")
	if runes := []rune(cleaned); len(runes) > maxQueryLength {
		cleaned = string(runes[:maxQueryLength])
	}
	return cleaned
}

// IsSafeFilename reports whether name is a plain file name without any path
// component, suitable for serving from a fixed directory.
func IsSafeFilename(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return false
	}
	return StripUnprintable(name) == name
}
