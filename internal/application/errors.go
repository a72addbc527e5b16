package application

import "errors"

var (
	// ErrUnauthorized is returned when the acting principal lacks the role an
	// operation requires within the target room.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyExists is returned when a write collides with an existing record.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrInvalidRange is returned when a booking's end does not fall strictly
	// after its start.
	ErrInvalidRange = errors.New("application: invalid time range")
	// ErrSchedulingConflict is returned when a booking would overlap another
	// live booking in the same room.
	ErrSchedulingConflict = errors.New("application: scheduling conflict")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}
