package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/example/room-booking/internal/livequery"
	"github.com/example/room-booking/internal/persistence"
)

// MembershipRepository implements persistence.MembershipRepository using SQLite.
type MembershipRepository struct {
	pool *ConnectionPool
	feed *livequery.Bus
}

// NewMembershipRepository creates a new SQLite membership repository.
func NewMembershipRepository(pool *ConnectionPool, feed *livequery.Bus) *MembershipRepository {
	return &MembershipRepository{pool: pool, feed: feed}
}

// CreateMembership inserts a new membership row.
func (r *MembershipRepository) CreateMembership(ctx context.Context, membership persistence.Membership) error {
	if membership.ID == "" || membership.RoomID == "" {
		return persistence.ErrConstraintViolation
	}

	query := `
		INSERT INTO memberships (id, room_id, user_id, email, role, added_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	err := r.pool.WithRetry(ctx, func() error {
		_, err := r.pool.DB().ExecContext(ctx, query,
			membership.ID,
			membership.RoomID,
			nullString(membership.UserID),
			strings.ToLower(membership.Email),
			string(membership.Role),
			formatTime(membership.AddedAt),
		)
		return err
	})
	if err != nil {
		return mapSQLiteError(err)
	}

	r.feed.Publish(persistence.TopicMemberships)
	return nil
}

// UpdateMembershipRole changes the role of an existing membership.
func (r *MembershipRepository) UpdateMembershipRole(ctx context.Context, roomID, membershipID string, role persistence.Role) error {
	var rowsAffected int64
	err := r.pool.WithRetry(ctx, func() error {
		result, err := r.pool.DB().ExecContext(ctx,
			`UPDATE memberships SET role = ? WHERE id = ? AND room_id = ?`,
			string(role), membershipID, roomID,
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

	r.feed.Publish(persistence.TopicMemberships)
	return nil
}

// GetMembership retrieves one membership scoped to a room.
func (r *MembershipRepository) GetMembership(ctx context.Context, roomID, membershipID string) (persistence.Membership, error) {
	query := `
		SELECT id, room_id, user_id, email, role, added_at
		FROM memberships
		WHERE id = ? AND room_id = ?
	`
	return scanMembership(r.pool.DB().QueryRowContext(ctx, query, membershipID, roomID))
}

// DeleteMembership removes a membership row.
func (r *MembershipRepository) DeleteMembership(ctx context.Context, roomID, membershipID string) error {
	var rowsAffected int64
	err := r.pool.WithRetry(ctx, func() error {
		result, err := r.pool.DB().ExecContext(ctx,
			`DELETE FROM memberships WHERE id = ? AND room_id = ?`,
			membershipID, roomID,
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

	r.feed.Publish(persistence.TopicMemberships)
	return nil
}

// ListMembershipsForRoom returns the members of one room ordered by AddedAt.
func (r *MembershipRepository) ListMembershipsForRoom(ctx context.Context, roomID string) ([]persistence.Membership, error) {
	query := `
		SELECT id, room_id, user_id, email, role, added_at
		FROM memberships
		WHERE room_id = ?
		ORDER BY added_at ASC, id ASC
	`
	return r.list(ctx, query, roomID)
}

// ListMembershipsByUserID returns every membership referencing the user id,
// across all rooms.
func (r *MembershipRepository) ListMembershipsByUserID(ctx context.Context, userID string) ([]persistence.Membership, error) {
	query := `
		SELECT id, room_id, user_id, email, role, added_at
		FROM memberships
		WHERE user_id = ?
		ORDER BY added_at ASC, id ASC
	`
	return r.list(ctx, query, userID)
}

// ListMembershipsByEmail returns every membership referencing the contact
// address, across all rooms. Matching is case-insensitive.
func (r *MembershipRepository) ListMembershipsByEmail(ctx context.Context, email string) ([]persistence.Membership, error) {
	query := `
		SELECT id, room_id, user_id, email, role, added_at
		FROM memberships
		WHERE email = ?
		ORDER BY added_at ASC, id ASC
	`
	return r.list(ctx, query, strings.ToLower(email))
}

func (r *MembershipRepository) list(ctx context.Context, query string, args ...any) ([]persistence.Membership, error) {
	rows, err := r.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	defer rows.Close()

	var memberships []persistence.Membership
	for rows.Next() {
		membership, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		memberships = append(memberships, membership)
	}
	if err := rows.Err(); err != nil {
		return nil, mapSQLiteError(err)
	}
	return memberships, nil
}

func scanMembership(row rowScanner) (persistence.Membership, error) {
	var membership persistence.Membership
	var userID sql.NullString
	var role, addedAt string

	err := row.Scan(
		&membership.ID,
		&membership.RoomID,
		&userID,
		&membership.Email,
		&role,
		&addedAt,
	)
	if err != nil {
		return persistence.Membership{}, mapSQLiteError(err)
	}

	membership.UserID = stringPtr(userID)
	membership.Role = persistence.Role(role)
	if membership.AddedAt, err = parseTime(addedAt); err != nil {
		return persistence.Membership{}, err
	}
	return membership, nil
}
