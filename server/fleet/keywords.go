package fleet

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// CanonicalKeyword returns the form under which a keyword or label name is
// stored and compared: valid UTF-8 in Unicode normalization form C. Invalid
// byte sequences are replaced with U+FFFD.
func CanonicalKeyword(s string) string {
	if !utf8.ValidString(s) {
		s = string([]rune(s))
	}
	return norm.NFC.String(s)
}

// CanonicalKeywordBytes is CanonicalKeyword for a UTF-8 encoded byte slice.
func CanonicalKeywordBytes(b []byte) string {
	return CanonicalKeyword(string(b))
}

// MaxKeywordLength is the maximum length, in characters, of a keyword, a
// label owner or a label name. It matches the width of the indexed MySQL
// columns.
const MaxKeywordLength = 255

// ValidateKeywordLength returns an *InvalidArgumentError if the canonical
// form of s is longer than MaxKeywordLength characters.
func ValidateKeywordLength(name, s string) error {
	if n := utf8.RuneCountInString(s); n > MaxKeywordLength {
		return &InvalidArgumentError{
			Name:   name,
			Reason: fmt.Sprintf("%d characters, at most %d allowed", n, MaxKeywordLength),
		}
	}
	return nil
}
