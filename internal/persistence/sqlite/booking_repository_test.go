package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/room-booking/internal/persistence"
	"github.com/example/room-booking/internal/testfixtures"
)

func bookingAt(roomID, id string, startHour, endHour int) persistence.Booking {
	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	return testfixtures.NewBookingFixture(
		testfixtures.WithBookingID(id),
		testfixtures.WithBookingRoom(roomID),
		testfixtures.WithBookingRange(day.Add(time.Duration(startHour)*time.Hour), day.Add(time.Duration(endHour)*time.Hour)),
	).Persistence()
}

func TestBookingRepository_CreateBooking(t *testing.T) {
	store := setupStoreTest(t)
	ctx := context.Background()
	room := seedTestRoom(t, store)

	booking := bookingAt(room.ID, "booking-a", 10, 11)
	if err := store.Bookings().CreateBooking(ctx, booking); err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}

	retrieved, err := store.Bookings().GetBooking(ctx, room.ID, booking.ID)
	if err != nil {
		t.Fatalf("GetBooking failed: %v", err)
	}
	if !retrieved.Start.Equal(booking.Start) || !retrieved.End.Equal(booking.End) {
		t.Errorf("expected range %v-%v, got %v-%v", booking.Start, booking.End, retrieved.Start, retrieved.End)
	}
	if retrieved.CreatedBy != booking.CreatedBy {
		t.Errorf("expected creator %q, got %q", booking.CreatedBy, retrieved.CreatedBy)
	}
}

func TestBookingRepository_CreateBooking_Overlap(t *testing.T) {
	store := setupStoreTest(t)
	ctx := context.Background()
	room := seedTestRoom(t, store)

	if err := store.Bookings().CreateBooking(ctx, bookingAt(room.ID, "booking-a", 10, 12)); err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}

	cases := map[string][2]int{
		"identical":       {10, 12},
		"contained":       {10, 11},
		"overlaps start":  {9, 11},
		"overlaps end":    {11, 13},
		"spans the whole": {9, 13},
	}
	for name, hours := range cases {
		t.Run(name, func(t *testing.T) {
			err := store.Bookings().CreateBooking(ctx, bookingAt(room.ID, "booking-"+name, hours[0], hours[1]))
			if !errors.Is(err, persistence.ErrBookingConflict) {
				t.Fatalf("expected ErrBookingConflict, got %v", err)
			}
		})
	}
}

func TestBookingRepository_CreateBooking_AdjacentRanges(t *testing.T) {
	store := setupStoreTest(t)
	ctx := context.Background()
	room := seedTestRoom(t, store)

	if err := store.Bookings().CreateBooking(ctx, bookingAt(room.ID, "booking-a", 10, 11)); err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}

	// [9,10) and [11,12) touch the boundaries of [10,11) without conflict.
	if err := store.Bookings().CreateBooking(ctx, bookingAt(room.ID, "booking-before", 9, 10)); err != nil {
		t.Fatalf("CreateBooking before failed: %v", err)
	}
	if err := store.Bookings().CreateBooking(ctx, bookingAt(room.ID, "booking-after", 11, 12)); err != nil {
		t.Fatalf("CreateBooking after failed: %v", err)
	}
}

func TestBookingRepository_CreateBooking_OtherRoomUnaffected(t *testing.T) {
	store := setupStoreTest(t)
	ctx := context.Background()
	roomA := seedTestRoom(t, store)
	roomB := seedTestRoom(t, store)

	if err := store.Bookings().CreateBooking(ctx, bookingAt(roomA.ID, "booking-a", 10, 11)); err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}
	if err := store.Bookings().CreateBooking(ctx, bookingAt(roomB.ID, "booking-b", 10, 11)); err != nil {
		t.Fatalf("expected no cross-room conflict, got %v", err)
	}
}

func TestBookingRepository_CreateBooking_InvalidRange(t *testing.T) {
	store := setupStoreTest(t)
	room := seedTestRoom(t, store)

	err := store.Bookings().CreateBooking(context.Background(), bookingAt(room.ID, "booking-a", 11, 11))
	if !errors.Is(err, persistence.ErrInvalidTimeRange) {
		t.Fatalf("expected ErrInvalidTimeRange for empty range, got %v", err)
	}
}

func TestBookingRepository_ConcurrentCreates_OneWins(t *testing.T) {
	store := setupStoreTest(t)
	ctx := context.Background()
	room := seedTestRoom(t, store)

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			booking := bookingAt(room.ID, "booking-"+string(rune('a'+i)), 10, 11)
			errs[i] = store.Bookings().CreateBooking(ctx, booking)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, persistence.ErrBookingConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one writer to win, got %d", succeeded)
	}

	bookings, err := store.Bookings().ListBookingsForRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("ListBookingsForRoom failed: %v", err)
	}
	if len(bookings) != 1 {
		t.Fatalf("expected 1 committed booking, got %d", len(bookings))
	}
}

func TestBookingRepository_UpdateBooking(t *testing.T) {
	store := setupStoreTest(t)
	ctx := context.Background()
	room := seedTestRoom(t, store)

	booking := bookingAt(room.ID, "booking-a", 10, 11)
	if err := store.Bookings().CreateBooking(ctx, booking); err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}

	t.Run("excludes its own row from the overlap check", func(t *testing.T) {
		moved := booking
		moved.Start = booking.Start.Add(30 * time.Minute)
		moved.End = booking.End.Add(30 * time.Minute)
		if err := store.Bookings().UpdateBooking(ctx, moved); err != nil {
			t.Fatalf("UpdateBooking failed: %v", err)
		}

		retrieved, err := store.Bookings().GetBooking(ctx, room.ID, booking.ID)
		if err != nil {
			t.Fatalf("GetBooking failed: %v", err)
		}
		if !retrieved.Start.Equal(moved.Start) {
			t.Errorf("expected start %v, got %v", moved.Start, retrieved.Start)
		}
	})

	t.Run("rejects a move onto another booking", func(t *testing.T) {
		other := bookingAt(room.ID, "booking-b", 14, 15)
		if err := store.Bookings().CreateBooking(ctx, other); err != nil {
			t.Fatalf("CreateBooking failed: %v", err)
		}

		collision := other
		collision.Start = booking.Start
		collision.End = booking.End.Add(30 * time.Minute)
		err := store.Bookings().UpdateBooking(ctx, collision)
		if !errors.Is(err, persistence.ErrBookingConflict) {
			t.Fatalf("expected ErrBookingConflict, got %v", err)
		}
	})

	t.Run("returns not found for unknown bookings", func(t *testing.T) {
		missing := bookingAt(room.ID, "missing", 16, 17)
		err := store.Bookings().UpdateBooking(ctx, missing)
		if !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestBookingRepository_DeleteBooking(t *testing.T) {
	store := setupStoreTest(t)
	ctx := context.Background()
	room := seedTestRoom(t, store)

	booking := bookingAt(room.ID, "booking-a", 10, 11)
	if err := store.Bookings().CreateBooking(ctx, booking); err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}

	if err := store.Bookings().DeleteBooking(ctx, room.ID, booking.ID); err != nil {
		t.Fatalf("DeleteBooking failed: %v", err)
	}
	if _, err := store.Bookings().GetBooking(ctx, room.ID, booking.ID); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected booking to be gone, got %v", err)
	}

	err := store.Bookings().DeleteBooking(ctx, room.ID, booking.ID)
	if !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestBookingRepository_ListBookingsForRoom_Order(t *testing.T) {
	store := setupStoreTest(t)
	ctx := context.Background()
	room := seedTestRoom(t, store)

	for _, spec := range []struct {
		id    string
		start int
		end   int
	}{
		{"booking-late", 14, 15},
		{"booking-early", 8, 9},
		{"booking-mid", 11, 12},
	} {
		if err := store.Bookings().CreateBooking(ctx, bookingAt(room.ID, spec.id, spec.start, spec.end)); err != nil {
			t.Fatalf("CreateBooking %s failed: %v", spec.id, err)
		}
	}

	bookings, err := store.Bookings().ListBookingsForRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("ListBookingsForRoom failed: %v", err)
	}
	want := []string{"booking-early", "booking-mid", "booking-late"}
	if len(bookings) != len(want) {
		t.Fatalf("expected %d bookings, got %d", len(want), len(bookings))
	}
	for i, id := range want {
		if bookings[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, bookings[i].ID)
		}
	}
}

func TestBookingRepository_PublishesChangeFeed(t *testing.T) {
	store := setupStoreTest(t)
	ctx := context.Background()
	room := seedTestRoom(t, store)

	notify, cancel := store.Feed().Subscribe(persistence.BookingsTopic(room.ID))
	defer cancel()

	if err := store.Bookings().CreateBooking(ctx, bookingAt(room.ID, "booking-a", 10, 11)); err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}

	select {
	case <-notify:
	case <-time.After(time.Second):
		t.Fatal("expected a change notification after CreateBooking")
	}
}
