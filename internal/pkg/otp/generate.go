package otp

import (
	"crypto/rand"
	"errors"
	"fmt"
)

var (
	// ErrLengthTooShort is returned when the requested code length is below 1.
	ErrLengthTooShort = errors.New("otp: code length must be at least 1")
	// ErrUnknownCharset is returned when the charset has no alphabet.
	ErrUnknownCharset = errors.New("otp: unknown charset")
)

// Generate returns a random code of the given length whose characters are
// drawn independently and uniformly from the charset alphabet, using
// crypto/rand. Rejection sampling avoids modulo bias.
func Generate(length int, charset Charset) (string, error) {
	if length < 1 {
		return "", ErrLengthTooShort
	}

	alphabet := charset.Alphabet()
	if alphabet == "" {
		return "", fmt.Errorf("%w: %s", ErrUnknownCharset, charset)
	}

	// Largest multiple of len(alphabet) that fits in a byte; values at or
	// above it are rejected so every character stays equally likely.
	limit := byte(256 - (256 % len(alphabet)))

	code := make([]byte, length)
	buf := make([]byte, length)

	for filled := 0; filled < length; {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("otp: read random source: %w", err)
		}

		for _, b := range buf {
			if b >= limit && limit != 0 {
				continue
			}

			code[filled] = alphabet[int(b)%len(alphabet)]
			filled++
			if filled == length {
				break
			}
		}
	}

	return string(code), nil
}
