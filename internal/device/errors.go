// internal/device/errors.go
package device

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidValue is matched by every *ValidationError.
	ErrInvalidValue = errors.New("device: invalid value")

	ErrUnknownProperty = errors.New("device: unknown property")
	ErrReadOnly        = errors.New("device: property is read-only")
)

// ValidationError rejects a value before any I/O is issued.
type ValidationError struct {
	Property Property
	Value    any
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("device: invalid %s value %v: %s", e.Property, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidValue
}

func invalid(p Property, v any, format string, args ...any) error {
	return &ValidationError{Property: p, Value: v, Reason: fmt.Sprintf(format, args...)}
}
