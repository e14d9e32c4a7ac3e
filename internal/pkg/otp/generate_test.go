package otp

import (
	"errors"
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {

	t.Run("LengthAndAlphabetMembership", func(t *testing.T) {

		// Arrange
		cases := []struct {
			length  int
			charset Charset
		}{
			{1, CharsetNumeric},
			{6, CharsetNumeric},
			{8, CharsetAlpha},
			{10, CharsetAlphanumeric},
			{12, CharsetAll},
			{64, CharsetAll},
		}

		for _, c := range cases {
			// Act
			code, err := Generate(c.length, c.charset)

			// Assert
			if err != nil {
				t.Fatalf("Generate(%d, %s) returned error: %v", c.length, c.charset, err)
			}
			if len(code) != c.length {
				t.Fatalf("Generate(%d, %s) length = %d", c.length, c.charset, len(code))
			}
			alphabet := c.charset.Alphabet()
			for _, r := range code {
				if !strings.ContainsRune(alphabet, r) {
					t.Fatalf("Generate(%d, %s) produced %q outside alphabet", c.length, c.charset, r)
				}
			}
		}
	})

	t.Run("NumericCodesAreDigitsOnly", func(t *testing.T) {

		// The numeric alphabet backs the default policy, so drive it harder
		// than the table above.
		for range 50 {
			code, err := Generate(6, CharsetNumeric)
			if err != nil {
				t.Fatalf("Generate returned error: %v", err)
			}
			for _, r := range code {
				if r < '0' || r > '9' {
					t.Fatalf("numeric code %q contains %q", code, r)
				}
			}
		}
	})

	t.Run("LengthTooShort", func(t *testing.T) {

		// Act
		_, err := Generate(0, CharsetNumeric)

		// Assert
		if !errors.Is(err, ErrLengthTooShort) {
			t.Fatalf("expected ErrLengthTooShort, got %v", err)
		}
	})

	t.Run("UnknownCharset", func(t *testing.T) {

		// Act
		_, err := Generate(6, CharsetUnknown)

		// Assert
		if !errors.Is(err, ErrUnknownCharset) {
			t.Fatalf("expected ErrUnknownCharset, got %v", err)
		}
	})
}

func TestCharsetFromString(t *testing.T) {

	cases := []struct {
		in   string
		want Charset
	}{
		{"NUMERIC", CharsetNumeric},
		{"numeric", CharsetNumeric},
		{"  Alpha  ", CharsetAlpha},
		{"alphanumeric", CharsetAlphanumeric},
		{"ALL", CharsetAll},
		{"", CharsetUnknown},
		{"hex", CharsetUnknown},
	}

	for _, c := range cases {
		if got := CharsetFromString(c.in); got != c.want {
			t.Fatalf("CharsetFromString(%q) = %s, want %s", c.in, got, c.want)
		}
	}
}
