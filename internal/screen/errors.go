package screen

import (
	"errors"
	"fmt"
)

// Error classes. Concrete errors wrap one of these so callers can classify
// with errors.Is.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrFetch         = errors.New("fetch error")
	ErrValidation    = errors.New("validation error")
	ErrDecode        = errors.New("decode error")
	ErrEmptyResult   = errors.New("no active screens")
)

// ValidationError describes why one raw playlist entry was rejected.
type ValidationError struct {
	Index  int
	Name   string // friendly name, empty when not yet known
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("Item: %d - %s, skipping", e.Index, e.Reason)
	}
	return fmt.Sprintf("Item: %d (%s) - %s, skipping", e.Index, e.Name, e.Reason)
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// DecodeError reports image bytes that could not be turned into an Image.
type DecodeError struct {
	Resource string
	Reason   string
	Err      error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %s: %s: %v", e.Resource, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode %s: %s", e.Resource, e.Reason)
}

// Is matches ErrDecode.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
