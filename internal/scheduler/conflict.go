package scheduler

import "time"

// Booking represents a reserved time range inside one room.
type Booking struct {
	ID    string
	Start time.Time
	End   time.Time
}

// Conflict details an overlapping booking relation that callers can present to users.
type Conflict struct {
	WithBookingID string
	Start         time.Time
	End           time.Time
}

// Overlaps reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect. Adjacent intervals sharing an endpoint do not
// overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// DetectConflicts identifies every existing booking whose interval overlaps
// the candidate's. A booking never conflicts with itself: entries sharing the
// candidate's ID are skipped, which keeps in-place updates valid.
func DetectConflicts(existing []Booking, candidate Booking) []Conflict {
	var conflicts []Conflict
	for _, booking := range existing {
		if candidate.ID != "" && booking.ID == candidate.ID {
			continue
		}
		if !Overlaps(candidate.Start, candidate.End, booking.Start, booking.End) {
			continue
		}
		conflicts = append(conflicts, Conflict{
			WithBookingID: booking.ID,
			Start:         booking.Start,
			End:           booking.End,
		})
	}
	return conflicts
}

// HasConflict reports whether the candidate overlaps any existing booking.
func HasConflict(existing []Booking, candidate Booking) bool {
	return len(DetectConflicts(existing, candidate)) > 0
}
