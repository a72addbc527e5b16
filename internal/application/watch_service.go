package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/example/room-booking/internal/livequery"
	"github.com/example/room-booking/internal/persistence"
)

// WatchService exposes the live views of the data model: a user's
// memberships, the rooms those memberships grant, and a room's bookings.
// Every stream emits full snapshots and stays open across read errors.
type WatchService struct {
	feed        *livequery.Bus
	rooms       persistence.RoomRepository
	memberships persistence.MembershipRepository
	bookings    persistence.BookingRepository
	logger      *slog.Logger
}

// NewWatchService constructs a watch service over the given repositories and
// change feed.
func NewWatchService(feed *livequery.Bus, rooms persistence.RoomRepository, memberships persistence.MembershipRepository, bookings persistence.BookingRepository) *WatchService {
	return NewWatchServiceWithLogger(feed, rooms, memberships, bookings, nil)
}

// NewWatchServiceWithLogger constructs a watch service with a specified logger.
func NewWatchServiceWithLogger(feed *livequery.Bus, rooms persistence.RoomRepository, memberships persistence.MembershipRepository, bookings persistence.BookingRepository, logger *slog.Logger) *WatchService {
	return &WatchService{
		feed:        feed,
		rooms:       rooms,
		memberships: memberships,
		bookings:    bookings,
		logger:      defaultLogger(logger),
	}
}

// MembershipStream is a live view of every membership row referencing one
// user, merged across the id and email match legs.
type MembershipStream struct {
	events chan livequery.Event[persistence.Membership]
	done   chan struct{}
	stop   func()
	once   sync.Once
}

// Events returns the merged snapshot stream. The channel is closed after
// Unsubscribe once the merge goroutine drains.
func (m *MembershipStream) Events() <-chan livequery.Event[persistence.Membership] {
	return m.events
}

// Unsubscribe synchronously detaches both underlying watches and stops the
// stream. It is safe to call more than once.
func (m *MembershipStream) Unsubscribe() {
	m.once.Do(func() {
		m.stop()
		close(m.done)
	})
}

// WatchMembershipsForUser opens a live query over the memberships matching
// the principal by stable user id or by contact address. The two legs are
// merged into one stream, deduplicated by membership id with the id match
// taking precedence. A principal with no identity gets a single empty
// snapshot and no live subscription.
func (s *WatchService) WatchMembershipsForUser(ctx context.Context, principal Principal) *MembershipStream {
	stream := &MembershipStream{
		events: make(chan livequery.Event[persistence.Membership], 1),
		done:   make(chan struct{}),
		stop:   func() {},
	}

	if principal.UserID == "" && principal.Email == "" {
		stream.events <- livequery.Event[persistence.Membership]{}
		close(stream.events)
		return stream
	}

	var byID, byEmail *livequery.Subscription[persistence.Membership]
	if principal.UserID != "" {
		byID = livequery.Watch(ctx, s.feed, persistence.TopicMemberships, func(ctx context.Context) ([]persistence.Membership, error) {
			return s.memberships.ListMembershipsByUserID(ctx, principal.UserID)
		})
	}
	if principal.Email != "" {
		byEmail = livequery.Watch(ctx, s.feed, persistence.TopicMemberships, func(ctx context.Context) ([]persistence.Membership, error) {
			return s.memberships.ListMembershipsByEmail(ctx, principal.Email)
		})
	}

	stream.stop = func() {
		if byID != nil {
			byID.Unsubscribe()
		}
		if byEmail != nil {
			byEmail.Unsubscribe()
		}
	}

	go s.runMembershipMerge(ctx, stream, byID, byEmail)
	return stream
}

func (s *WatchService) runMembershipMerge(ctx context.Context, stream *MembershipStream, byID, byEmail *livequery.Subscription[persistence.Membership]) {
	defer close(stream.events)

	var idEvents, emailEvents <-chan livequery.Event[persistence.Membership]
	if byID != nil {
		idEvents = byID.Events()
	}
	if byEmail != nil {
		emailEvents = byEmail.Events()
	}

	var idDocs, emailDocs []persistence.Membership
	// A leg that has not reported yet must not force an empty merge on the
	// other leg's first snapshot.
	idReady := byID == nil
	emailReady := byEmail == nil

	emit := func(event livequery.Event[persistence.Membership]) bool {
		select {
		case stream.events <- event:
			return true
		case <-stream.done:
			return false
		case <-ctx.Done():
			return false
		}
	}

	for idEvents != nil || emailEvents != nil {
		select {
		case event, ok := <-idEvents:
			if !ok {
				idEvents = nil
				continue
			}
			if event.Err != nil {
				if !emit(livequery.Event[persistence.Membership]{Err: event.Err}) {
					return
				}
				continue
			}
			idDocs = event.Docs
			idReady = true
		case event, ok := <-emailEvents:
			if !ok {
				emailEvents = nil
				continue
			}
			if event.Err != nil {
				if !emit(livequery.Event[persistence.Membership]{Err: event.Err}) {
					return
				}
				continue
			}
			emailDocs = event.Docs
			emailReady = true
		case <-stream.done:
			return
		case <-ctx.Done():
			stream.Unsubscribe()
			return
		}

		if !idReady || !emailReady {
			continue
		}
		if !emit(livequery.Event[persistence.Membership]{Docs: mergeMemberships(idDocs, emailDocs)}) {
			return
		}
	}
}

func mergeMemberships(byID, byEmail []persistence.Membership) []persistence.Membership {
	merged := make([]persistence.Membership, 0, len(byID)+len(byEmail))
	seen := make(map[string]struct{}, len(byID))
	for _, membership := range byID {
		seen[membership.ID] = struct{}{}
		merged = append(merged, membership)
	}
	for _, membership := range byEmail {
		if _, ok := seen[membership.ID]; ok {
			continue
		}
		merged = append(merged, membership)
	}
	return merged
}

// RoomStream is a live view of the rooms a user belongs to, kept in sync
// with the user's memberships.
type RoomStream struct {
	events chan livequery.Event[persistence.Room]
	done   chan struct{}
	once   sync.Once

	mu          sync.Mutex
	closed      bool
	memberships *MembershipStream
	roomWatches map[string]*livequery.Subscription[persistence.Room]
}

// Events returns the aggregated room snapshot stream.
func (r *RoomStream) Events() <-chan livequery.Event[persistence.Room] {
	return r.events
}

// Unsubscribe synchronously detaches the membership stream and every
// per-room watch, then stops the aggregate stream. Safe to call more than
// once.
func (r *RoomStream) Unsubscribe() {
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		if r.memberships != nil {
			r.memberships.Unsubscribe()
		}
		for _, sub := range r.roomWatches {
			sub.Unsubscribe()
		}
		r.mu.Unlock()
		close(r.done)
	})
}

// track registers a per-room watch. When the stream was unsubscribed while
// the watch was being opened, the registration is refused and the watch is
// closed on the spot, so no subscription can outlive the disposer.
func (r *RoomStream) track(roomID string, sub *livequery.Subscription[persistence.Room]) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		sub.Unsubscribe()
		return false
	}
	r.roomWatches[roomID] = sub
	r.mu.Unlock()
	return true
}

func (r *RoomStream) untrack(roomID string) *livequery.Subscription[persistence.Room] {
	r.mu.Lock()
	sub := r.roomWatches[roomID]
	delete(r.roomWatches, roomID)
	r.mu.Unlock()
	return sub
}

func (r *RoomStream) tracked(roomID string) bool {
	r.mu.Lock()
	_, ok := r.roomWatches[roomID]
	r.mu.Unlock()
	return ok
}

type roomUpdate struct {
	roomID string
	event  livequery.Event[persistence.Room]
}

// WatchRoomsForUser opens a live query over the rooms the principal belongs
// to. The stream follows the principal's memberships: gaining a membership
// opens a watch on that room, losing one closes it, and unchanged rooms keep
// their existing watch. Every emission is the full room set ordered by name
// then id.
func (s *WatchService) WatchRoomsForUser(ctx context.Context, principal Principal) *RoomStream {
	stream := &RoomStream{
		events:      make(chan livequery.Event[persistence.Room], 1),
		done:        make(chan struct{}),
		roomWatches: make(map[string]*livequery.Subscription[persistence.Room]),
	}

	if principal.UserID == "" && principal.Email == "" {
		stream.events <- livequery.Event[persistence.Room]{}
		close(stream.events)
		return stream
	}

	stream.memberships = s.WatchMembershipsForUser(ctx, principal)

	go s.runRoomAggregate(ctx, stream)
	return stream
}

func (s *WatchService) runRoomAggregate(ctx context.Context, stream *RoomStream) {
	defer close(stream.events)

	updates := make(chan roomUpdate)
	roomDocs := make(map[string][]persistence.Room)

	emit := func(event livequery.Event[persistence.Room]) bool {
		select {
		case stream.events <- event:
			return true
		case <-stream.done:
			return false
		case <-ctx.Done():
			return false
		}
	}

	emitMerged := func() bool {
		var rooms []persistence.Room
		for _, docs := range roomDocs {
			rooms = append(rooms, docs...)
		}
		SortRooms(rooms)
		return emit(livequery.Event[persistence.Room]{Docs: rooms})
	}

	openRoomWatch := func(roomID string) {
		sub := livequery.Watch(ctx, s.feed, persistence.TopicRooms, func(ctx context.Context) ([]persistence.Room, error) {
			room, err := s.rooms.GetRoom(ctx, roomID)
			if errors.Is(err, persistence.ErrNotFound) {
				// The room row vanished while the membership still points at
				// it; report an empty doc set instead of a broken read.
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			return []persistence.Room{room}, nil
		})
		if !stream.track(roomID, sub) {
			return
		}

		go func() {
			for event := range sub.Events() {
				select {
				case updates <- roomUpdate{roomID: roomID, event: event}:
				case <-stream.done:
					return
				}
			}
		}()
	}

	for {
		select {
		case event, ok := <-stream.memberships.Events():
			if !ok {
				return
			}
			if event.Err != nil {
				if !emit(livequery.Event[persistence.Room]{Err: event.Err}) {
					return
				}
				continue
			}

			desired := make(map[string]struct{}, len(event.Docs))
			for _, membership := range event.Docs {
				desired[membership.RoomID] = struct{}{}
			}

			removed := false
			for roomID := range roomDocs {
				if _, keep := desired[roomID]; keep {
					continue
				}
				if sub := stream.untrack(roomID); sub != nil {
					sub.Unsubscribe()
				}
				delete(roomDocs, roomID)
				removed = true
			}

			opened := false
			for roomID := range desired {
				if stream.tracked(roomID) {
					continue
				}
				openRoomWatch(roomID)
				opened = true
			}

			// New watches announce themselves through their initial fetch;
			// emit here only when the set shrank or stayed empty.
			if removed || (!opened && len(desired) == 0) {
				if !emitMerged() {
					return
				}
			}
		case update := <-updates:
			if !stream.tracked(update.roomID) {
				continue
			}
			if update.event.Err != nil {
				if !emit(livequery.Event[persistence.Room]{Err: update.event.Err}) {
					return
				}
				continue
			}
			roomDocs[update.roomID] = update.event.Docs
			if !emitMerged() {
				return
			}
		case <-stream.done:
			return
		case <-ctx.Done():
			stream.Unsubscribe()
			return
		}
	}
}

// WatchBookingsForRoom opens a live query over a room's bookings, ordered by
// start time. The caller must be a member of the room.
func (s *WatchService) WatchBookingsForRoom(ctx context.Context, principal Principal, roomID string) (*livequery.Subscription[persistence.Booking], error) {
	if s == nil {
		return nil, fmt.Errorf("WatchService is nil")
	}

	members, err := s.memberships.ListMembershipsForRoom(ctx, roomID)
	if err != nil {
		return nil, mapMembershipRepoError(err)
	}
	authorized := false
	for _, membership := range members {
		if MatchesIdentity(membership, principal.UserID, principal.Email) {
			authorized = true
			break
		}
	}
	if !authorized {
		return nil, ErrUnauthorized
	}

	return livequery.Watch(ctx, s.feed, persistence.BookingsTopic(roomID), func(ctx context.Context) ([]persistence.Booking, error) {
		return s.bookings.ListBookingsForRoom(ctx, roomID)
	}), nil
}
