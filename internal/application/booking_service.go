package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/room-booking/internal/persistence"
	"github.com/example/room-booking/internal/scheduler"
)

// RoomAccess resolves a principal's role within a room. It is implemented by
// RoomService and narrowed here so booking tests can stub authorization.
type RoomAccess interface {
	EffectiveRole(ctx context.Context, principal Principal, roomID string) (persistence.Role, bool, error)
}

// BookingService orchestrates validation, authorization, conflict detection,
// and persistence for bookings.
type BookingService struct {
	bookings    persistence.BookingRepository
	access      RoomAccess
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewBookingService constructs a booking service with the provided dependencies.
func NewBookingService(bookings persistence.BookingRepository, access RoomAccess, idGenerator func() string, now func() time.Time) *BookingService {
	return NewBookingServiceWithLogger(bookings, access, idGenerator, now, nil)
}

// NewBookingServiceWithLogger constructs a booking service with a specified logger.
func NewBookingServiceWithLogger(bookings persistence.BookingRepository, access RoomAccess, idGenerator func() string, now func() time.Time, logger *slog.Logger) *BookingService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &BookingService{
		bookings:    bookings,
		access:      access,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *BookingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "BookingService", operation, attrs...)
}

// CreateBooking reserves a time slot in a room for the acting principal. Any
// member of the room may book; overlapping live bookings are rejected.
func (s *BookingService) CreateBooking(ctx context.Context, params CreateBookingParams) (booking persistence.Booking, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateBooking",
		"principal_id", params.Principal.UserID,
		"room_id", params.RoomID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("booking_id", booking.ID).InfoContext(ctx, "booking created")
	}()

	if _, ok, accessErr := s.access.EffectiveRole(ctx, params.Principal, params.RoomID); accessErr != nil {
		err = accessErr
		return
	} else if !ok {
		err = ErrUnauthorized
		return
	}

	start := normalizeInstant(params.Input.Start)
	end := normalizeInstant(params.Input.End)
	if err = validateRange(start, end); err != nil {
		return
	}

	createdAt := s.now()
	candidate := persistence.Booking{
		ID:          s.idGenerator(),
		RoomID:      params.RoomID,
		Start:       start,
		End:         end,
		Description: normalizeOptionalString(params.Input.Description),
		CreatedBy:   params.Principal.UserID,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}

	if err = s.ensureNoConflict(ctx, candidate); err != nil {
		return
	}

	// The repository re-checks inside its transaction; a concurrent create
	// that slipped past the read above still comes back as a conflict.
	if err = s.bookings.CreateBooking(ctx, candidate); err != nil {
		err = mapBookingRepoError(err)
		return
	}

	booking = candidate
	return
}

// UpdateBooking applies a partial patch to a booking. Unset fields keep their
// stored values, and the resulting range is validated and conflict-checked
// with the booking's own slot excluded.
func (s *BookingService) UpdateBooking(ctx context.Context, params UpdateBookingParams) (booking persistence.Booking, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateBooking",
		"principal_id", params.Principal.UserID,
		"room_id", params.RoomID,
		"booking_id", params.BookingID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "booking updated")
	}()

	var existing persistence.Booking
	existing, err = s.bookings.GetBooking(ctx, params.RoomID, params.BookingID)
	if err != nil {
		err = mapBookingRepoError(err)
		return
	}

	if err = s.requireOwnerOrAdmin(ctx, params.Principal, existing); err != nil {
		return
	}

	updated := existing
	if params.Patch.Start != nil {
		updated.Start = normalizeInstant(*params.Patch.Start)
	}
	if params.Patch.End != nil {
		updated.End = normalizeInstant(*params.Patch.End)
	}
	if params.Patch.Description != nil {
		updated.Description = normalizeOptionalString(params.Patch.Description)
	}
	updated.UpdatedAt = s.now()

	if err = validateRange(updated.Start, updated.End); err != nil {
		return
	}

	if err = s.ensureNoConflict(ctx, updated); err != nil {
		return
	}

	if err = s.bookings.UpdateBooking(ctx, updated); err != nil {
		err = mapBookingRepoError(err)
		return
	}

	booking = updated
	return
}

// DeleteBooking removes a booking. The creator or a room admin may delete.
func (s *BookingService) DeleteBooking(ctx context.Context, params DeleteBookingParams) (err error) {
	if s == nil {
		return fmt.Errorf("BookingService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteBooking",
		"principal_id", params.Principal.UserID,
		"room_id", params.RoomID,
		"booking_id", params.BookingID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "booking deleted")
	}()

	existing, err := s.bookings.GetBooking(ctx, params.RoomID, params.BookingID)
	if err != nil {
		return mapBookingRepoError(err)
	}

	if err = s.requireOwnerOrAdmin(ctx, params.Principal, existing); err != nil {
		return err
	}

	if err = s.bookings.DeleteBooking(ctx, params.RoomID, params.BookingID); err != nil {
		return mapBookingRepoError(err)
	}
	return nil
}

// ListBookings returns a room's bookings, ordered by start time, to any of
// its members.
func (s *BookingService) ListBookings(ctx context.Context, principal Principal, roomID string) ([]persistence.Booking, error) {
	if s == nil {
		return nil, fmt.Errorf("BookingService is nil")
	}

	if _, ok, err := s.access.EffectiveRole(ctx, principal, roomID); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrUnauthorized
	}

	bookings, err := s.bookings.ListBookingsForRoom(ctx, roomID)
	if err != nil {
		return nil, mapBookingRepoError(err)
	}
	return bookings, nil
}

func (s *BookingService) requireOwnerOrAdmin(ctx context.Context, principal Principal, booking persistence.Booking) error {
	if principal.UserID != "" && booking.CreatedBy == principal.UserID {
		return nil
	}
	role, ok, err := s.access.EffectiveRole(ctx, principal, booking.RoomID)
	if err != nil {
		return err
	}
	if !ok || role != persistence.RoleAdmin {
		return ErrUnauthorized
	}
	return nil
}

func (s *BookingService) ensureNoConflict(ctx context.Context, candidate persistence.Booking) error {
	existing, err := s.bookings.ListBookingsForRoom(ctx, candidate.RoomID)
	if err != nil {
		return mapBookingRepoError(err)
	}

	slots := make([]scheduler.Booking, 0, len(existing))
	for _, b := range existing {
		slots = append(slots, scheduler.Booking{ID: b.ID, Start: b.Start, End: b.End})
	}

	if scheduler.HasConflict(slots, scheduler.Booking{ID: candidate.ID, Start: candidate.Start, End: candidate.End}) {
		return ErrSchedulingConflict
	}
	return nil
}

// normalizeInstant converts a caller-supplied instant to stored granularity:
// UTC, whole seconds. Validation runs on the normalized values, so a range
// that only exists below one second collapses and is rejected as invalid
// rather than truncated into an equal-endpoint row.
func normalizeInstant(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func validateRange(start, end time.Time) error {
	vErr := &ValidationError{}
	if start.IsZero() {
		vErr.add("start", "start is required")
	}
	if end.IsZero() {
		vErr.add("end", "end is required")
	}
	if vErr.HasErrors() {
		return vErr
	}
	if !end.After(start) {
		return ErrInvalidRange
	}
	return nil
}

func mapBookingRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrBookingConflict) {
		return ErrSchedulingConflict
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return ErrAlreadyExists
	}
	if errors.Is(err, persistence.ErrForeignKeyViolation) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrInvalidTimeRange) {
		return ErrInvalidRange
	}
	return err
}
