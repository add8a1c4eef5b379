package compare

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize folds a value for comparison: NFKC, lower case, punctuation
// dropped, whitespace collapsed.
func Normalize(text string) string {
	normed := norm.NFKC.String(text)
	normed = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsNumber(r):
			return unicode.ToLower(r)
		case unicode.IsSpace(r), r == '-', r == '/', r == ',':
			return ' '
		}
		return -1
	}, normed)
	return strings.Join(strings.Fields(normed), " ")
}

// Tokens splits a normalized value into words.
func Tokens(text string) []string {
	return strings.Fields(Normalize(text))
}
