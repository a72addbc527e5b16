package persistence

import "context"

// Change-feed topics. Every committed mutation publishes the topic of the
// collection it touched; live queries re-read on notification.
const (
	// TopicRooms is notified when any room document changes.
	TopicRooms = "rooms"
	// TopicMemberships is notified when any membership changes, regardless of
	// the room it belongs to. The cross-room granularity is what lets a
	// single subscription find every membership for a user.
	TopicMemberships = "memberships"
)

// BookingsTopic returns the change-feed topic for one room's bookings.
func BookingsTopic(roomID string) string {
	return "bookings/" + roomID
}

// RoomRepository exposes CRUD operations for rooms.
type RoomRepository interface {
	CreateRoom(ctx context.Context, room Room) error
	UpdateRoom(ctx context.Context, room Room) error
	GetRoom(ctx context.Context, id string) (Room, error)
	// DeleteRoom removes the room together with every membership and booking
	// scoped to it. Dependent deletion is explicit, not delegated to the
	// engine, so stale listeners never observe orphaned documents.
	DeleteRoom(ctx context.Context, id string) error
}

// MembershipRepository stores user-to-room associations.
type MembershipRepository interface {
	CreateMembership(ctx context.Context, membership Membership) error
	UpdateMembershipRole(ctx context.Context, roomID, membershipID string, role Role) error
	GetMembership(ctx context.Context, roomID, membershipID string) (Membership, error)
	DeleteMembership(ctx context.Context, roomID, membershipID string) error
	ListMembershipsForRoom(ctx context.Context, roomID string) ([]Membership, error)
	// ListMembershipsByUserID and ListMembershipsByEmail query across all
	// rooms. Email matching is case-insensitive.
	ListMembershipsByUserID(ctx context.Context, userID string) ([]Membership, error)
	ListMembershipsByEmail(ctx context.Context, email string) ([]Membership, error)
}

// BookingRepository stores reservations scoped to rooms.
//
// CreateBooking and UpdateBooking hold a write transaction across the overlap
// check and the write: when another live booking in the same room intersects
// the candidate's [start, end) range, the write is rejected with
// ErrBookingConflict and nothing is persisted. UpdateBooking excludes the
// booking's own row from the check.
type BookingRepository interface {
	CreateBooking(ctx context.Context, booking Booking) error
	UpdateBooking(ctx context.Context, booking Booking) error
	GetBooking(ctx context.Context, roomID, bookingID string) (Booking, error)
	DeleteBooking(ctx context.Context, roomID, bookingID string) error
	ListBookingsForRoom(ctx context.Context, roomID string) ([]Booking, error)
}
