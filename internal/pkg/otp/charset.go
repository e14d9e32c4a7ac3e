package otp

import "strings"

const (
	upperLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerLetters = "abcdefghijklmnopqrstuvwxyz"
	digits       = "1234567890"
	symbols      = "!@#$%^&*()[]{}:<>-+="
)

// Charset selects the classes of characters a generated code may contain.
type Charset int

const (
	// CharsetUnknown is the zero value and is not a valid charset.
	CharsetUnknown Charset = iota
	// CharsetNumeric restricts codes to decimal digits.
	CharsetNumeric
	// CharsetAlpha restricts codes to upper- and lower-case letters.
	CharsetAlpha
	// CharsetAlphanumeric allows digits and letters.
	CharsetAlphanumeric
	// CharsetAll allows digits, letters and a fixed symbol set.
	CharsetAll
)

// String returns the canonical name of the charset.
func (c Charset) String() string {
	switch c {
	case CharsetNumeric:
		return "NUMERIC"
	case CharsetAlpha:
		return "ALPHA"
	case CharsetAlphanumeric:
		return "ALPHANUMERIC"
	case CharsetAll:
		return "ALL"
	default:
		return "UNKNOWN"
	}
}

// Alphabet returns the characters the charset draws from.
func (c Charset) Alphabet() string {
	switch c {
	case CharsetNumeric:
		return digits
	case CharsetAlpha:
		return upperLetters + lowerLetters
	case CharsetAlphanumeric:
		return digits + upperLetters + lowerLetters
	case CharsetAll:
		return digits + upperLetters + lowerLetters + symbols
	default:
		return ""
	}
}

// CharsetFromString parses a charset name, case-insensitively.
// Unrecognized values map to CharsetUnknown.
func CharsetFromString(s string) Charset {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NUMERIC":
		return CharsetNumeric
	case "ALPHA":
		return CharsetAlpha
	case "ALPHANUMERIC":
		return CharsetAlphanumeric
	case "ALL":
		return CharsetAll
	default:
		return CharsetUnknown
	}
}
