package antispam

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// Normalize folds full-width forms, then keeps only CJK ideographs, ASCII
// letters and digits, lower-cased.
func Normalize(text string) string {
	folded := width.Fold.String(text)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(unicode.ToLower(r))
		case r >= 0x4E00 && r <= 0x9FA5:
			b.WriteRune(r)
		}
	}
	return b.String()
}
