package cronexpr

import (
	"errors"
	"fmt"
)

var (
	// ErrWrongFieldCount is returned when an expression does not have exactly six fields
	ErrWrongFieldCount = errors.New("cron expression must have exactly 6 fields")

	// ErrInvalidField is returned when a field cannot be parsed or is out of range
	ErrInvalidField = errors.New("invalid cron field")
)

// FieldError describes why a single field of an expression was rejected.
type FieldError struct {
	Index  int
	Name   string
	Token  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s field (#%d) %q: %s", e.Name, e.Index, e.Token, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidField.
func (e *FieldError) Unwrap() error {
	return ErrInvalidField
}
