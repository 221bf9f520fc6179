package phone

import (
	"errors"
	"strings"
)

const CountryPrefix = "62"

var (
	ErrCountryPrefix = errors.New("phone number must use Indonesian format (62)")
	ErrLength        = errors.New("phone number must have 10 to 15 digits")
)

// Normalize strips every non-digit and requires the result to start with the
// country prefix. Local formats with a leading zero are rejected, not rewritten.
func Normalize(raw string) (string, error) {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if !strings.HasPrefix(digits, CountryPrefix) {
		return "", ErrCountryPrefix
	}
	if len(digits) < 10 || len(digits) > 15 {
		return "", ErrLength
	}
	return digits, nil
}
