package models

import (
	"errors"
	"strings"
)

var (
	ErrNotFound         = errors.New("profile not found")
	ErrAlreadyExists    = errors.New("profile already exists")
	ErrStoreUnavailable = errors.New("profile store unavailable")

	// ErrCacheUnavailable is never returned to API callers. Cache faults are
	// logged and handled as a miss.
	ErrCacheUnavailable = errors.New("profile cache unavailable")
)

// ValidationError lists the required fields that were missing or empty, and
// those longer than their column allows.
type ValidationError struct {
	Fields  []string
	TooLong []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Fields) > 0 {
		parts = append(parts, "missing required fields: "+strings.Join(e.Fields, ", "))
	}
	if len(e.TooLong) > 0 {
		parts = append(parts, "fields too long: "+strings.Join(e.TooLong, ", "))
	}
	return strings.Join(parts, "; ")
}

// Missing reports whether any required field was empty.
func (e *ValidationError) Missing() bool {
	return len(e.Fields) > 0
}

func IsValidation(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}
