package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/room-booking/internal/livequery"
	"github.com/example/room-booking/internal/persistence"
)

// RoomRepository implements persistence.RoomRepository using SQLite.
type RoomRepository struct {
	pool *ConnectionPool
	feed *livequery.Bus
}

// NewRoomRepository creates a new SQLite room repository.
func NewRoomRepository(pool *ConnectionPool, feed *livequery.Bus) *RoomRepository {
	return &RoomRepository{pool: pool, feed: feed}
}

// CreateRoom inserts a new room.
func (r *RoomRepository) CreateRoom(ctx context.Context, room persistence.Room) error {
	if room.ID == "" {
		return persistence.ErrConstraintViolation
	}

	query := `
		INSERT INTO rooms (id, name, description, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	err := r.pool.WithRetry(ctx, func() error {
		_, err := r.pool.DB().ExecContext(ctx, query,
			room.ID,
			room.Name,
			nullString(room.Description),
			room.CreatedBy,
			formatTime(room.CreatedAt),
			formatTime(room.UpdatedAt),
		)
		return err
	})
	if err != nil {
		return mapSQLiteError(err)
	}

	r.feed.Publish(persistence.TopicRooms)
	return nil
}

// UpdateRoom updates an existing room's mutable fields.
func (r *RoomRepository) UpdateRoom(ctx context.Context, room persistence.Room) error {
	if room.ID == "" {
		return persistence.ErrNotFound
	}

	query := `
		UPDATE rooms
		SET name = ?, description = ?, updated_at = ?
		WHERE id = ?
	`

	var rowsAffected int64
	err := r.pool.WithRetry(ctx, func() error {
		result, err := r.pool.DB().ExecContext(ctx, query,
			room.Name,
			nullString(room.Description),
			formatTime(room.UpdatedAt),
			room.ID,
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

	r.feed.Publish(persistence.TopicRooms)
	return nil
}

// GetRoom retrieves a room by ID.
func (r *RoomRepository) GetRoom(ctx context.Context, id string) (persistence.Room, error) {
	if id == "" {
		return persistence.Room{}, persistence.ErrNotFound
	}

	query := `
		SELECT id, name, description, created_by, created_at, updated_at
		FROM rooms
		WHERE id = ?
	`

	room, err := scanRoom(r.pool.DB().QueryRowContext(ctx, query, id))
	if err != nil {
		return persistence.Room{}, err
	}
	return room, nil
}

// DeleteRoom removes a room together with its memberships and bookings in one
// transaction. Dependents are deleted explicitly so listeners on the
// membership and booking feeds observe the cascade.
func (r *RoomRepository) DeleteRoom(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}

	err := r.pool.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.Exec(`DELETE FROM bookings WHERE room_id = ?`, id); err != nil {
				return mapSQLiteError(err)
			}
			if _, err := tx.Exec(`DELETE FROM memberships WHERE room_id = ?`, id); err != nil {
				return mapSQLiteError(err)
			}

			result, err := tx.Exec(`DELETE FROM rooms WHERE id = ?`, id)
			if err != nil {
				return mapSQLiteError(err)
			}
			rowsAffected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			if rowsAffected == 0 {
				return persistence.ErrNotFound
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	r.feed.Publish(persistence.TopicRooms)
	r.feed.Publish(persistence.TopicMemberships)
	r.feed.Publish(persistence.BookingsTopic(id))
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (persistence.Room, error) {
	var room persistence.Room
	var description sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&room.ID,
		&room.Name,
		&description,
		&room.CreatedBy,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.Room{}, mapSQLiteError(err)
	}

	room.Description = stringPtr(description)
	if room.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Room{}, err
	}
	if room.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Room{}, err
	}
	return room, nil
}
