package models

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrUnavailable  = errors.New("store unavailable")
	// ErrNoValidPoints is also an ErrInvalidInput: the request shape was fine
	// but nothing survived coordinate filtering.
	ErrNoValidPoints = fmt.Errorf("%w: no valid route points", ErrInvalidInput)
)

// Invalid builds an ErrInvalidInput with a field-level message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Unavailable marks a backing store failure while keeping the driver error
// reachable through errors.Is/As.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
