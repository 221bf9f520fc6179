package phone

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw     string
		want    string
		wantErr error
	}{
		{"+62 812 345 6789", "628123456789", nil},
		{"62-812-345-6789", "628123456789", nil},
		{"628123456789", "628123456789", nil},
		{"0812-345-6789", "", ErrCountryPrefix},
		{"+1 555 0100", "", ErrCountryPrefix},
		{"", "", ErrCountryPrefix},
		{"62812", "", ErrLength},
		{"6281234567890123", "", ErrLength},
	}

	for _, tc := range cases {
		got, err := Normalize(tc.raw)
		if !errors.Is(err, tc.wantErr) {
			t.Fatalf("Normalize(%q) error = %v, expected %v", tc.raw, err, tc.wantErr)
		}
		if got != tc.want {
			t.Fatalf("Normalize(%q) = %q, expected %q", tc.raw, got, tc.want)
		}
	}
}
