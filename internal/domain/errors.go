package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrFutureTimestamp is returned when an activity is dated beyond the allowed clock skew.
	ErrFutureTimestamp = errors.New("date/time cannot be in the future")
	// ErrEmptyMessage is returned when a chat message is empty or whitespace.
	ErrEmptyMessage = errors.New("message is required")
	// ErrInternalFault wraps unexpected failures from collaborators such as the store.
	ErrInternalFault = errors.New("internal fault")
)

// ValidationError reports the first field of a submission that failed validation.
type ValidationError struct {
	Field string
}

// InvalidField builds a ValidationError for the named field.
func InvalidField(field string) *ValidationError {
	return &ValidationError{Field: field}
}

func (e *ValidationError) Error() string {
	if msg, ok := fieldMessages[e.Field]; ok {
		return msg
	}
	return fmt.Sprintf("invalid %s", e.Field)
}

var fieldMessages = map[string]string{
	"petName":   "pet name is required (max 50 characters)",
	"type":      "type must be one of walk, meal, medication",
	"amount":    "amount must be a number > 0",
	"timestamp": "invalid date/time",
	"date":      "date must be formatted YYYY-MM-DD",
}

// IsValidation reports whether err belongs to the client-error class of the taxonomy.
func IsValidation(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr) || errors.Is(err, ErrFutureTimestamp) || errors.Is(err, ErrEmptyMessage)
}

func internalFault(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrInternalFault, op, err)
}
