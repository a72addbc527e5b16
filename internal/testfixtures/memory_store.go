package testfixtures

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/example/room-booking/internal/livequery"
	"github.com/example/room-booking/internal/persistence"
	"github.com/example/room-booking/internal/scheduler"
)

// MemoryStore is an in-memory implementation of the persistence repositories
// backed by a change feed. It mirrors the sqlite store's observable
// behaviour, including atomic overlap checks, explicit cascade deletion, and
// change-feed publication, so service and watch tests run without a database.
type MemoryStore struct {
	mu          sync.Mutex
	feed        *livequery.Bus
	rooms       map[string]persistence.Room
	memberships map[string]persistence.Membership
	bookings    map[string]persistence.Booking
	readErr     error
}

// NewMemoryStore returns an empty store publishing to the given feed.
func NewMemoryStore(feed *livequery.Bus) *MemoryStore {
	return &MemoryStore{
		feed:        feed,
		rooms:       make(map[string]persistence.Room),
		memberships: make(map[string]persistence.Membership),
		bookings:    make(map[string]persistence.Booking),
	}
}

// SetReadError makes every subsequent read fail with err until cleared with
// nil. Writes are unaffected.
func (s *MemoryStore) SetReadError(err error) {
	s.mu.Lock()
	s.readErr = err
	s.mu.Unlock()
}

func (s *MemoryStore) CreateRoom(_ context.Context, room persistence.Room) error {
	s.mu.Lock()
	if _, ok := s.rooms[room.ID]; ok {
		s.mu.Unlock()
		return persistence.ErrDuplicate
	}
	s.rooms[room.ID] = room
	s.mu.Unlock()

	s.feed.Publish(persistence.TopicRooms)
	return nil
}

func (s *MemoryStore) UpdateRoom(_ context.Context, room persistence.Room) error {
	s.mu.Lock()
	if _, ok := s.rooms[room.ID]; !ok {
		s.mu.Unlock()
		return persistence.ErrNotFound
	}
	s.rooms[room.ID] = room
	s.mu.Unlock()

	s.feed.Publish(persistence.TopicRooms)
	return nil
}

func (s *MemoryStore) GetRoom(_ context.Context, id string) (persistence.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return persistence.Room{}, s.readErr
	}
	room, ok := s.rooms[id]
	if !ok {
		return persistence.Room{}, persistence.ErrNotFound
	}
	return room, nil
}

func (s *MemoryStore) DeleteRoom(_ context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.rooms[id]; !ok {
		s.mu.Unlock()
		return persistence.ErrNotFound
	}
	delete(s.rooms, id)
	for membershipID, membership := range s.memberships {
		if membership.RoomID == id {
			delete(s.memberships, membershipID)
		}
	}
	for bookingID, booking := range s.bookings {
		if booking.RoomID == id {
			delete(s.bookings, bookingID)
		}
	}
	s.mu.Unlock()

	s.feed.Publish(persistence.TopicRooms)
	s.feed.Publish(persistence.TopicMemberships)
	s.feed.Publish(persistence.BookingsTopic(id))
	return nil
}

func (s *MemoryStore) CreateMembership(_ context.Context, membership persistence.Membership) error {
	membership.Email = strings.ToLower(membership.Email)

	s.mu.Lock()
	if _, ok := s.memberships[membership.ID]; ok {
		s.mu.Unlock()
		return persistence.ErrDuplicate
	}
	if membership.Email != "" {
		for _, existing := range s.memberships {
			if existing.RoomID == membership.RoomID && existing.Email == membership.Email {
				s.mu.Unlock()
				return persistence.ErrDuplicate
			}
		}
	}
	if _, ok := s.rooms[membership.RoomID]; !ok {
		s.mu.Unlock()
		return persistence.ErrForeignKeyViolation
	}
	s.memberships[membership.ID] = membership
	s.mu.Unlock()

	s.feed.Publish(persistence.TopicMemberships)
	return nil
}

func (s *MemoryStore) UpdateMembershipRole(_ context.Context, roomID, membershipID string, role persistence.Role) error {
	s.mu.Lock()
	membership, ok := s.memberships[membershipID]
	if !ok || membership.RoomID != roomID {
		s.mu.Unlock()
		return persistence.ErrNotFound
	}
	membership.Role = role
	s.memberships[membershipID] = membership
	s.mu.Unlock()

	s.feed.Publish(persistence.TopicMemberships)
	return nil
}

func (s *MemoryStore) GetMembership(_ context.Context, roomID, membershipID string) (persistence.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return persistence.Membership{}, s.readErr
	}
	membership, ok := s.memberships[membershipID]
	if !ok || membership.RoomID != roomID {
		return persistence.Membership{}, persistence.ErrNotFound
	}
	return membership, nil
}

func (s *MemoryStore) DeleteMembership(_ context.Context, roomID, membershipID string) error {
	s.mu.Lock()
	membership, ok := s.memberships[membershipID]
	if !ok || membership.RoomID != roomID {
		s.mu.Unlock()
		return persistence.ErrNotFound
	}
	delete(s.memberships, membershipID)
	s.mu.Unlock()

	s.feed.Publish(persistence.TopicMemberships)
	return nil
}

func (s *MemoryStore) ListMembershipsForRoom(_ context.Context, roomID string) ([]persistence.Membership, error) {
	return s.listMemberships(func(m persistence.Membership) bool {
		return m.RoomID == roomID
	})
}

func (s *MemoryStore) ListMembershipsByUserID(_ context.Context, userID string) ([]persistence.Membership, error) {
	return s.listMemberships(func(m persistence.Membership) bool {
		return m.UserID != nil && *m.UserID == userID
	})
}

func (s *MemoryStore) ListMembershipsByEmail(_ context.Context, email string) ([]persistence.Membership, error) {
	lowered := strings.ToLower(email)
	return s.listMemberships(func(m persistence.Membership) bool {
		return m.Email != "" && m.Email == lowered
	})
}

func (s *MemoryStore) listMemberships(match func(persistence.Membership) bool) ([]persistence.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	var result []persistence.Membership
	for _, membership := range s.memberships {
		if match(membership) {
			result = append(result, membership)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].AddedAt.Equal(result[j].AddedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].AddedAt.Before(result[j].AddedAt)
	})
	return result, nil
}

func (s *MemoryStore) CreateBooking(_ context.Context, booking persistence.Booking) error {
	s.mu.Lock()
	if _, ok := s.bookings[booking.ID]; ok {
		s.mu.Unlock()
		return persistence.ErrDuplicate
	}
	if _, ok := s.rooms[booking.RoomID]; !ok {
		s.mu.Unlock()
		return persistence.ErrForeignKeyViolation
	}
	if !booking.End.After(booking.Start) {
		s.mu.Unlock()
		return persistence.ErrInvalidTimeRange
	}
	if s.hasOverlapLocked(booking) {
		s.mu.Unlock()
		return persistence.ErrBookingConflict
	}
	s.bookings[booking.ID] = booking
	s.mu.Unlock()

	s.feed.Publish(persistence.BookingsTopic(booking.RoomID))
	return nil
}

func (s *MemoryStore) UpdateBooking(_ context.Context, booking persistence.Booking) error {
	s.mu.Lock()
	existing, ok := s.bookings[booking.ID]
	if !ok || existing.RoomID != booking.RoomID {
		s.mu.Unlock()
		return persistence.ErrNotFound
	}
	if !booking.End.After(booking.Start) {
		s.mu.Unlock()
		return persistence.ErrInvalidTimeRange
	}
	if s.hasOverlapLocked(booking) {
		s.mu.Unlock()
		return persistence.ErrBookingConflict
	}
	s.bookings[booking.ID] = booking
	s.mu.Unlock()

	s.feed.Publish(persistence.BookingsTopic(booking.RoomID))
	return nil
}

func (s *MemoryStore) GetBooking(_ context.Context, roomID, bookingID string) (persistence.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return persistence.Booking{}, s.readErr
	}
	booking, ok := s.bookings[bookingID]
	if !ok || booking.RoomID != roomID {
		return persistence.Booking{}, persistence.ErrNotFound
	}
	return booking, nil
}

func (s *MemoryStore) DeleteBooking(_ context.Context, roomID, bookingID string) error {
	s.mu.Lock()
	booking, ok := s.bookings[bookingID]
	if !ok || booking.RoomID != roomID {
		s.mu.Unlock()
		return persistence.ErrNotFound
	}
	delete(s.bookings, bookingID)
	s.mu.Unlock()

	s.feed.Publish(persistence.BookingsTopic(roomID))
	return nil
}

func (s *MemoryStore) ListBookingsForRoom(_ context.Context, roomID string) ([]persistence.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	var result []persistence.Booking
	for _, booking := range s.bookings {
		if booking.RoomID == roomID {
			result = append(result, booking)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Start.Equal(result[j].Start) {
			return result[i].ID < result[j].ID
		}
		return result[i].Start.Before(result[j].Start)
	})
	return result, nil
}

func (s *MemoryStore) hasOverlapLocked(candidate persistence.Booking) bool {
	for _, existing := range s.bookings {
		if existing.RoomID != candidate.RoomID || existing.ID == candidate.ID {
			continue
		}
		if scheduler.Overlaps(candidate.Start, candidate.End, existing.Start, existing.End) {
			return true
		}
	}
	return false
}
