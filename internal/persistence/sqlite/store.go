// Package sqlite implements the document store behind the booking service:
// plain CRUD repositories over modernc.org/sqlite plus a change-feed bus that
// live queries re-read from on every committed mutation.
package sqlite

import (
	"github.com/example/room-booking/internal/livequery"
)

// Store bundles the repositories sharing one connection pool and change feed.
type Store struct {
	pool        *ConnectionPool
	feed        *livequery.Bus
	rooms       *RoomRepository
	memberships *MembershipRepository
	bookings    *BookingRepository
}

// Open connects to the database identified by the DSN. Mutations publish to
// the supplied feed after commit; a nil feed disables notifications.
func Open(dsn string, feed *livequery.Bus) (*Store, error) {
	pool, err := NewConnectionPool(dsn)
	if err != nil {
		return nil, err
	}

	store := &Store{pool: pool, feed: feed}
	store.rooms = NewRoomRepository(pool, feed)
	store.memberships = NewMembershipRepository(pool, feed)
	store.bookings = NewBookingRepository(pool, feed)
	return store, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Feed returns the change-notification bus mutations publish to.
func (s *Store) Feed() *livequery.Bus {
	return s.feed
}

// Rooms returns the room repository.
func (s *Store) Rooms() *RoomRepository {
	return s.rooms
}

// Memberships returns the membership repository.
func (s *Store) Memberships() *MembershipRepository {
	return s.memberships
}

// Bookings returns the booking repository.
func (s *Store) Bookings() *BookingRepository {
	return s.bookings
}
