package validator

// Validator checks a value against its declared validation rules.
//
// Implementations return nil when the value is valid, or an error describing
// every failed rule.
type Validator interface {
	Validate(data any) error
}
