package core

import (
	"errors"
	"fmt"
)

// Error classes raised by the engine. Every construction or attachment failure wraps one of them.
var (
	// ErrValidation is returned for malformed input: out-of-range percentages, bad hash lengths,
	// invalid enum values or a missing required field.
	ErrValidation = errors.New("validation error")

	// ErrType is returned when a value of the wrong kind is supplied, e.g. a nil context or audit entry.
	ErrType = errors.New("type error")

	// ErrFatal signals that an internally computed value turned out inconsistent.
	// It indicates a programming error rather than bad input.
	ErrFatal = errors.New("internal invariant violated")
)

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func typef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrType, fmt.Sprintf(format, args...))
}

func fatalf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrFatal, fmt.Sprintf(format, args...))
}
