package sqlite

import (
	"context"
	"database/sql"

	"github.com/example/room-booking/internal/livequery"
	"github.com/example/room-booking/internal/persistence"
)

// BookingRepository implements persistence.BookingRepository using SQLite.
//
// Writes are check-and-commit: the overlap query and the insert/update run
// inside one transaction, so two concurrent writers for the same room cannot
// both commit overlapping ranges — the loser fails with ErrBookingConflict.
type BookingRepository struct {
	pool *ConnectionPool
	feed *livequery.Bus
}

// NewBookingRepository creates a new SQLite booking repository.
func NewBookingRepository(pool *ConnectionPool, feed *livequery.Bus) *BookingRepository {
	return &BookingRepository{pool: pool, feed: feed}
}

// CreateBooking inserts a booking after verifying no live booking in the same
// room overlaps its [start, end) range.
func (r *BookingRepository) CreateBooking(ctx context.Context, booking persistence.Booking) error {
	if booking.ID == "" || booking.RoomID == "" {
		return persistence.ErrConstraintViolation
	}
	if !booking.End.After(booking.Start) {
		return persistence.ErrInvalidTimeRange
	}

	err := r.pool.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			if err := checkOverlapTx(tx, booking, ""); err != nil {
				return err
			}

			query := `
				INSERT INTO bookings (id, room_id, start_time, end_time, description, created_by, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`
			_, err := tx.Exec(query,
				booking.ID,
				booking.RoomID,
				formatTime(booking.Start),
				formatTime(booking.End),
				nullString(booking.Description),
				booking.CreatedBy,
				formatTime(booking.CreatedAt),
				formatTime(booking.UpdatedAt),
			)
			if err != nil {
				return mapSQLiteError(err)
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	r.feed.Publish(persistence.BookingsTopic(booking.RoomID))
	return nil
}

// UpdateBooking rewrites a booking's mutable fields after re-running the
// overlap check with the booking's own row excluded.
func (r *BookingRepository) UpdateBooking(ctx context.Context, booking persistence.Booking) error {
	if booking.ID == "" || booking.RoomID == "" {
		return persistence.ErrNotFound
	}
	if !booking.End.After(booking.Start) {
		return persistence.ErrInvalidTimeRange
	}

	err := r.pool.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			var exists int
			err := tx.QueryRow(`SELECT 1 FROM bookings WHERE id = ? AND room_id = ?`, booking.ID, booking.RoomID).Scan(&exists)
			if err == sql.ErrNoRows {
				return persistence.ErrNotFound
			}
			if err != nil {
				return mapSQLiteError(err)
			}

			if err := checkOverlapTx(tx, booking, booking.ID); err != nil {
				return err
			}

			query := `
				UPDATE bookings
				SET start_time = ?, end_time = ?, description = ?, updated_at = ?
				WHERE id = ? AND room_id = ?
			`
			_, err = tx.Exec(query,
				formatTime(booking.Start),
				formatTime(booking.End),
				nullString(booking.Description),
				formatTime(booking.UpdatedAt),
				booking.ID,
				booking.RoomID,
			)
			if err != nil {
				return mapSQLiteError(err)
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	r.feed.Publish(persistence.BookingsTopic(booking.RoomID))
	return nil
}

// GetBooking retrieves one booking scoped to a room.
func (r *BookingRepository) GetBooking(ctx context.Context, roomID, bookingID string) (persistence.Booking, error) {
	query := `
		SELECT id, room_id, start_time, end_time, description, created_by, created_at, updated_at
		FROM bookings
		WHERE id = ? AND room_id = ?
	`
	return scanBooking(r.pool.DB().QueryRowContext(ctx, query, bookingID, roomID))
}

// DeleteBooking removes a booking row.
func (r *BookingRepository) DeleteBooking(ctx context.Context, roomID, bookingID string) error {
	var rowsAffected int64
	err := r.pool.WithRetry(ctx, func() error {
		result, err := r.pool.DB().ExecContext(ctx,
			`DELETE FROM bookings WHERE id = ? AND room_id = ?`,
			bookingID, roomID,
		)
		if err != nil {
			return err
		}
		rowsAffected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return mapSQLiteError(err)
	}

	if rowsAffected == 0 {
		return persistence.ErrNotFound
	}

	r.feed.Publish(persistence.BookingsTopic(roomID))
	return nil
}

// ListBookingsForRoom returns the room's bookings ordered by start then ID.
func (r *BookingRepository) ListBookingsForRoom(ctx context.Context, roomID string) ([]persistence.Booking, error) {
	query := `
		SELECT id, room_id, start_time, end_time, description, created_by, created_at, updated_at
		FROM bookings
		WHERE room_id = ?
		ORDER BY start_time ASC, id ASC
	`

	rows, err := r.pool.DB().QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	defer rows.Close()

	var bookings []persistence.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, booking)
	}
	if err := rows.Err(); err != nil {
		return nil, mapSQLiteError(err)
	}
	return bookings, nil
}

// checkOverlapTx fails with ErrBookingConflict when any booking in the same
// room other than excludeID intersects the candidate's half-open range.
func checkOverlapTx(tx *sql.Tx, candidate persistence.Booking, excludeID string) error {
	query := `
		SELECT COUNT(*)
		FROM bookings
		WHERE room_id = ? AND id <> ? AND start_time < ? AND end_time > ?
	`

	var overlapping int
	err := tx.QueryRow(query,
		candidate.RoomID,
		excludeID,
		formatTime(candidate.End),
		formatTime(candidate.Start),
	).Scan(&overlapping)
	if err != nil {
		return mapSQLiteError(err)
	}
	if overlapping > 0 {
		return persistence.ErrBookingConflict
	}
	return nil
}

func scanBooking(row rowScanner) (persistence.Booking, error) {
	var booking persistence.Booking
	var description sql.NullString
	var start, end, createdAt, updatedAt string

	err := row.Scan(
		&booking.ID,
		&booking.RoomID,
		&start,
		&end,
		&description,
		&booking.CreatedBy,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.Booking{}, mapSQLiteError(err)
	}

	booking.Description = stringPtr(description)
	if booking.Start, err = parseTime(start); err != nil {
		return persistence.Booking{}, err
	}
	if booking.End, err = parseTime(end); err != nil {
		return persistence.Booking{}, err
	}
	if booking.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Booking{}, err
	}
	if booking.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Booking{}, err
	}
	return booking, nil
}
