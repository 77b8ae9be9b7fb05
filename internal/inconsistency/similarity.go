package inconsistency

import (
	"unicode/utf8"

	"github.com/agext/levenshtein"

	"github.com/joseph-ayodele/loan-docintel/internal/extract"
	"github.com/joseph-ayodele/loan-docintel/internal/llm"
)

// Similarity is the normalized Levenshtein ratio 1 - distance/maxLen over
// normalized text. It is symmetric and Similarity(a, a) == 1.
func Similarity(a, b string) float64 {
	a, b = extract.NormalizeText(a), extract.NormalizeText(b)
	if a == b {
		return 1
	}
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	d := levenshtein.Distance(a, b, nil)
	return 1 - float64(d)/float64(longest)
}

// digitsEqual compares identifiers ignoring formatting. Values without digits never match.
func digitsEqual(a, b string) bool {
	da, db := llm.DigitsOnly(a), llm.DigitsOnly(b)
	return da != "" && da == db
}

func lastFour(s string) string {
	d := llm.DigitsOnly(s)
	if len(d) < 4 {
		return ""
	}
	return d[len(d)-4:]
}
