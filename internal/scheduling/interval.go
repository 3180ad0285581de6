package scheduling

import (
	"time"

	"airline_scheduler/internal/models"
)

// Interval is a half-open span [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether a and b share any instant. Intervals that only
// touch (a.End == b.Start) do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && a.End.After(b.Start)
}

func assignmentInterval(a models.Assignment) Interval {
	return Interval{Start: a.Departure, End: a.Arrival()}
}

// Busy reports whether any non-cancelled assignment in history overlaps the
// proposed interval.
func Busy(history []models.Assignment, proposed Interval) bool {
	for _, a := range history {
		if a.Status == models.FlightCancelled {
			continue
		}
		if Overlaps(assignmentInterval(a), proposed) {
			return true
		}
	}
	return false
}

// CurrentLocation returns where a resource stands at instant t: the
// destination of its latest non-cancelled flight departing before t, or home
// when there is none. Equal departures keep the first one in history order.
func CurrentLocation(history []models.Assignment, t time.Time, home string) string {
	loc := home
	var latest time.Time
	found := false
	for _, a := range history {
		if a.Status == models.FlightCancelled || !a.Departure.Before(t) {
			continue
		}
		if !found || a.Departure.After(latest) {
			latest = a.Departure
			loc = a.Destination
			found = true
		}
	}
	return loc
}
