// Package plate normalizes vehicle registration identifiers into the form the
// upstream lookup site expects.
package plate

import (
	"errors"
	"strings"
)

// MaxLength bounds a normalized plate. Brazilian plates (both the legacy
// LLLNNNN and the Mercosul LLLNLNN layouts) are seven characters; the slack
// keeps the check permissive for odd historical formats.
const MaxLength = 10

var (
	ErrEmpty   = errors.New("plate is empty after normalization")
	ErrTooLong = errors.New("plate is too long")
)

// Normalize uppercases raw and drops every character that is not an ASCII
// letter or digit, so "abc-1234", " ABC 1234 " and "ABC1234" all map to
// "ABC1234". It is idempotent.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 'a' + 'A')
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Validate reports whether an already-normalized plate can be looked up.
func Validate(normalized string) error {
	switch {
	case normalized == "":
		return ErrEmpty
	case len(normalized) > MaxLength:
		return ErrTooLong
	}
	return nil
}

// Parse normalizes raw and validates the result.
func Parse(raw string) (string, error) {
	p := Normalize(raw)
	if err := Validate(p); err != nil {
		return "", err
	}
	return p, nil
}
