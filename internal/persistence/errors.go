package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrConstraintViolation is returned when a check constraint rejects a write.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrForeignKeyViolation is returned when a write references a missing parent record.
	ErrForeignKeyViolation = errors.New("persistence: foreign key violation")
	// ErrBookingConflict is returned when an atomic check-and-write detects an
	// overlapping booking inside the same room.
	ErrBookingConflict = errors.New("persistence: booking conflict")
	// ErrInvalidTimeRange is returned when a booking write carries a range
	// whose end does not come strictly after its start.
	ErrInvalidTimeRange = errors.New("persistence: invalid time range")
)
