package application

import (
	"time"

	"github.com/example/room-booking/internal/persistence"
)

// Principal represents the authenticated user invoking a service method, as
// established by the external identity provider. Authorisation is per room:
// the caller's effective role is resolved from the room's memberships, never
// carried on the principal itself.
type Principal struct {
	UserID string
	Email  string
}

// RoomInput captures caller provided room fields.
type RoomInput struct {
	Name        string
	Description *string
}

// CreateRoomParams wraps the data required to create a room.
type CreateRoomParams struct {
	Principal Principal
	Input     RoomInput
}

// UpdateRoomParams wraps the data required to update a room.
type UpdateRoomParams struct {
	Principal Principal
	RoomID    string
	Input     RoomInput
}

// MemberInput captures caller provided membership fields. UserID may be nil
// when inviting somebody who has no account yet; the row is then matched by
// email once the invitee signs in.
type MemberInput struct {
	UserID *string
	Email  string
	Role   persistence.Role
}

// AddMemberParams wraps the data required to add a member to a room.
type AddMemberParams struct {
	Principal Principal
	RoomID    string
	Input     MemberInput
}

// SetRoleParams wraps the data required to change a member's role.
type SetRoleParams struct {
	Principal    Principal
	RoomID       string
	MembershipID string
	Role         persistence.Role
}

// RemoveMemberParams wraps the data required to remove a member from a room.
type RemoveMemberParams struct {
	Principal    Principal
	RoomID       string
	MembershipID string
}

// BookingInput captures caller provided booking fields.
type BookingInput struct {
	Start       time.Time
	End         time.Time
	Description *string
}

// CreateBookingParams wraps the data required to create a booking.
type CreateBookingParams struct {
	Principal Principal
	RoomID    string
	Input     BookingInput
}

// BookingPatch carries a partial booking update. Nil fields keep their
// stored value.
type BookingPatch struct {
	Start       *time.Time
	End         *time.Time
	Description *string
}

// UpdateBookingParams wraps the data required to update a booking.
type UpdateBookingParams struct {
	Principal Principal
	RoomID    string
	BookingID string
	Patch     BookingPatch
}

// DeleteBookingParams wraps the data required to delete a booking.
type DeleteBookingParams struct {
	Principal Principal
	RoomID    string
	BookingID string
}
