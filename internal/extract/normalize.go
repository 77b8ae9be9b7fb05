package extract

import (
	"strings"
	"unicode"
)

// NormalizeText lowercases, drops punctuation and collapses whitespace.
func NormalizeText(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == ',' || r == '-' || r == '/':
			space = true
		}
	}
	return b.String()
}
