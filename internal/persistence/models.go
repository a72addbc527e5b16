package persistence

import "time"

// Role identifies the privilege level a membership grants inside a room.
type Role string

const (
	// RoleAdmin may manage the room, its members, and every booking.
	RoleAdmin Role = "admin"
	// RoleUser may view the room and manage their own bookings.
	RoleUser Role = "user"
)

// Valid reports whether the role is one of the known privilege levels.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// Room represents a shared booking space.
type Room struct {
	ID          string
	Name        string
	Description *string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Membership associates a user with a room under a role. UserID is nil for
// invites granted before the invitee has an account; such rows are matched by
// email until the account exists.
type Membership struct {
	ID      string
	RoomID  string
	UserID  *string
	Email   string
	Role    Role
	AddedAt time.Time
}

// Booking represents a reserved half-open time range scoped to one room.
type Booking struct {
	ID          string
	RoomID      string
	Start       time.Time
	End         time.Time
	Description *string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
