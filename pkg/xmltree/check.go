package xmltree

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"
)

var (
	// ErrInvalidName is returned when an element or attribute name is not an
	// XML name.
	ErrInvalidName = errors.New("invalid XML name")
	// ErrIllegalChar is returned for text holding a character XML 1.0 does
	// not allow, or bytes that are not UTF-8.
	ErrIllegalChar = errors.New("character not allowed in XML")
)

// IsName reports whether s is a valid XML name. Prefixed names such as
// xml:lang are accepted.
func IsName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == utf8.RuneError {
			return false
		}
		if r == '_' || r == ':' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && (r == '-' || r == '.' || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r) || r == '·') {
			continue
		}
		return false
	}
	return true
}

// CheckText returns an error wrapping ErrIllegalChar when s cannot be
// written as XML character data.
func CheckText(s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: invalid UTF-8", ErrIllegalChar)
	}
	for _, r := range s {
		if !isChar(r) {
			return fmt.Errorf("%w: %U", ErrIllegalChar, r)
		}
	}
	return nil
}

// isChar follows the Char production of XML 1.0.
func isChar(r rune) bool {
	return r == 0x09 || r == 0x0A || r == 0x0D ||
		r >= 0x20 && r <= 0xD7FF ||
		r >= 0xE000 && r <= 0xFFFD ||
		r >= 0x10000 && r <= 0x10FFFF
}
