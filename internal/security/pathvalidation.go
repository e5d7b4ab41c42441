// Package security guards the identifiers that end up as path components of
// the product and light-curve trees.
package security

import (
	"errors"
	"fmt"
	"strings"
)

// MaxIdentifierLen bounds observation IDs and marker file names.
const MaxIdentifierLen = 128

var ErrUnsafeIdentifier = errors.New("unsafe identifier")

// ValidateIdentifier accepts only names that are safe as a single path
// component: ASCII letters, digits, '.', '-' and single underscores, not
// starting with '.' or '_' and not ending with either.
func ValidateIdentifier(s string) error {
	switch {
	case s == "":
		return fmt.Errorf("%w: empty", ErrUnsafeIdentifier)
	case len(s) > MaxIdentifierLen:
		return fmt.Errorf("%w: %q is longer than %d bytes", ErrUnsafeIdentifier, s, MaxIdentifierLen)
	case strings.Trim(s, "._") != s:
		return fmt.Errorf("%w: %q starts or ends with '.' or '_'", ErrUnsafeIdentifier, s)
	case strings.Contains(s, "__"):
		return fmt.Errorf("%w: %q has repeated underscores", ErrUnsafeIdentifier, s)
	}
	if i := strings.IndexFunc(s, func(r rune) bool { return !identRune(r) }); i >= 0 {
		return fmt.Errorf("%w: %q has disallowed character %q at %d", ErrUnsafeIdentifier, s, s[i:i+1], i)
	}
	return nil
}

func identRune(r rune) bool {
	return ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') ||
		r == '.' || r == '-' || r == '_'
}
