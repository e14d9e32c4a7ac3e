// Package uid provides small identifier generators behind two interfaces:
// one for numeric identifiers and one for string identifiers.
package uid

// NumberID generates int64 identifiers.
type NumberID interface {
	// Generate returns a new numeric identifier.
	Generate() int64
}

// StringID generates string identifiers.
type StringID interface {
	// Generate returns a new string identifier.
	Generate() string
}
