package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/room-booking/internal/persistence"
	"github.com/example/room-booking/internal/scheduler"
)

var (
	roomCounter       uint64
	membershipCounter uint64
	bookingCounter    uint64
)

var referenceTime = time.Date(2024, time.June, 3, 9, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- Room fixtures -----------------------------

// RoomFixture represents a deterministic room record.
type RoomFixture struct {
	ID          string
	Name        string
	Description *string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RoomOption configures the generated room fixture.
type RoomOption func(*RoomFixture)

// NewRoomFixture returns a deterministic room fixture with optional overrides.
func NewRoomFixture(opts ...RoomOption) RoomFixture {
	idx := atomic.AddUint64(&roomCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Hour)
	fixture := RoomFixture{
		ID:        fmt.Sprintf("room-%03d", idx),
		Name:      fmt.Sprintf("Room %03d", idx),
		CreatedBy: fmt.Sprintf("user-%03d", idx),
		CreatedAt: created,
		UpdatedAt: created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithRoomID overrides the generated room ID.
func WithRoomID(id string) RoomOption {
	return func(f *RoomFixture) {
		f.ID = id
	}
}

// WithRoomName overrides the generated room name.
func WithRoomName(name string) RoomOption {
	return func(f *RoomFixture) {
		f.Name = name
	}
}

// WithRoomDescription sets the description on the fixture.
func WithRoomDescription(description string) RoomOption {
	return func(f *RoomFixture) {
		value := description
		f.Description = &value
	}
}

// WithRoomCreator sets the creating user's ID.
func WithRoomCreator(userID string) RoomOption {
	return func(f *RoomFixture) {
		f.CreatedBy = userID
	}
}

// WithRoomTimestamps sets both created and updated timestamps.
func WithRoomTimestamps(created, updated time.Time) RoomOption {
	return func(f *RoomFixture) {
		f.CreatedAt = created
		f.UpdatedAt = updated
	}
}

// Persistence returns the fixture as a persistence.Room value.
func (f RoomFixture) Persistence() persistence.Room {
	return persistence.Room{
		ID:          f.ID,
		Name:        f.Name,
		Description: copyStringPtr(f.Description),
		CreatedBy:   f.CreatedBy,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

// -------------------------- Membership fixtures --------------------------

// MembershipFixture represents a deterministic membership record.
type MembershipFixture struct {
	ID      string
	RoomID  string
	UserID  *string
	Email   string
	Role    persistence.Role
	AddedAt time.Time
}

// MembershipOption configures the generated membership fixture.
type MembershipOption func(*MembershipFixture)

// NewMembershipFixture returns a deterministic membership fixture with
// optional overrides.
func NewMembershipFixture(opts ...MembershipOption) MembershipFixture {
	idx := atomic.AddUint64(&membershipCounter, 1)
	userID := fmt.Sprintf("user-%03d", idx)
	fixture := MembershipFixture{
		ID:      fmt.Sprintf("membership-%03d", idx),
		RoomID:  fmt.Sprintf("room-%03d", idx),
		UserID:  &userID,
		Email:   fmt.Sprintf("%s@example.com", userID),
		Role:    persistence.RoleUser,
		AddedAt: referenceTime.Add(time.Duration(idx) * time.Minute),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithMembershipID overrides the membership ID.
func WithMembershipID(id string) MembershipOption {
	return func(f *MembershipFixture) {
		f.ID = id
	}
}

// WithMembershipRoom sets the room the membership belongs to.
func WithMembershipRoom(roomID string) MembershipOption {
	return func(f *MembershipFixture) {
		f.RoomID = roomID
	}
}

// WithMembershipUser sets the member's user ID.
func WithMembershipUser(userID string) MembershipOption {
	return func(f *MembershipFixture) {
		id := userID
		f.UserID = &id
	}
}

// WithoutMembershipUser clears the user ID, leaving an email-only invite.
func WithoutMembershipUser() MembershipOption {
	return func(f *MembershipFixture) {
		f.UserID = nil
	}
}

// WithMembershipEmail sets the member's email address.
func WithMembershipEmail(email string) MembershipOption {
	return func(f *MembershipFixture) {
		f.Email = email
	}
}

// WithMembershipRole sets the membership role.
func WithMembershipRole(role persistence.Role) MembershipOption {
	return func(f *MembershipFixture) {
		f.Role = role
	}
}

// WithMembershipAddedAt sets the added timestamp.
func WithMembershipAddedAt(t time.Time) MembershipOption {
	return func(f *MembershipFixture) {
		f.AddedAt = t
	}
}

// Persistence returns the fixture as a persistence.Membership value.
func (f MembershipFixture) Persistence() persistence.Membership {
	return persistence.Membership{
		ID:      f.ID,
		RoomID:  f.RoomID,
		UserID:  copyStringPtr(f.UserID),
		Email:   f.Email,
		Role:    f.Role,
		AddedAt: f.AddedAt,
	}
}

// --------------------------- Booking fixtures ----------------------------

// BookingFixture represents a deterministic booking record.
type BookingFixture struct {
	ID          string
	RoomID      string
	Start       time.Time
	End         time.Time
	Description *string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BookingOption configures the generated booking fixture.
type BookingOption func(*BookingFixture)

// NewBookingFixture returns a deterministic booking fixture with optional
// overrides. Successive fixtures occupy successive non-overlapping hours.
func NewBookingFixture(opts ...BookingOption) BookingFixture {
	idx := atomic.AddUint64(&bookingCounter, 1)
	start := referenceTime.Add(time.Duration(idx) * 2 * time.Hour)
	fixture := BookingFixture{
		ID:        fmt.Sprintf("booking-%03d", idx),
		RoomID:    fmt.Sprintf("room-%03d", idx),
		Start:     start,
		End:       start.Add(time.Hour),
		CreatedBy: fmt.Sprintf("user-%03d", idx),
		CreatedAt: referenceTime,
		UpdatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithBookingID overrides the booking ID.
func WithBookingID(id string) BookingOption {
	return func(f *BookingFixture) {
		f.ID = id
	}
}

// WithBookingRoom sets the room the booking belongs to.
func WithBookingRoom(roomID string) BookingOption {
	return func(f *BookingFixture) {
		f.RoomID = roomID
	}
}

// WithBookingRange sets the start and end times.
func WithBookingRange(start, end time.Time) BookingOption {
	return func(f *BookingFixture) {
		f.Start = start
		f.End = end
	}
}

// WithBookingDescription sets the description on the fixture.
func WithBookingDescription(description string) BookingOption {
	return func(f *BookingFixture) {
		value := description
		f.Description = &value
	}
}

// WithBookingCreator sets the creating user's ID.
func WithBookingCreator(userID string) BookingOption {
	return func(f *BookingFixture) {
		f.CreatedBy = userID
	}
}

// WithBookingTimestamps sets both created and updated timestamps.
func WithBookingTimestamps(created, updated time.Time) BookingOption {
	return func(f *BookingFixture) {
		f.CreatedAt = created
		f.UpdatedAt = updated
	}
}

// Persistence returns the fixture as a persistence.Booking value.
func (f BookingFixture) Persistence() persistence.Booking {
	return persistence.Booking{
		ID:          f.ID,
		RoomID:      f.RoomID,
		Start:       f.Start,
		End:         f.End,
		Description: copyStringPtr(f.Description),
		CreatedBy:   f.CreatedBy,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

// Scheduler returns the fixture as a scheduler.Booking value.
func (f BookingFixture) Scheduler() scheduler.Booking {
	return scheduler.Booking{
		ID:    f.ID,
		Start: f.Start,
		End:   f.End,
	}
}

// helper to deep copy optional strings.
func copyStringPtr(src *string) *string {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}
