package scheduling

import (
	"strings"
	"time"

	"airline_scheduler/internal/apperr"
)

// DepartureLayout is the canonical departure form.
const DepartureLayout = "2006-01-02 15:04:05"

// ArrivalLayout is how reports render the derived arrival.
const ArrivalLayout = "2006-01-02 15:04"

// ParseDeparture reads "YYYY-MM-DD HH:MM:SS" or the same with a "T"
// separator. Minute-precision input gets ":00" appended first. Times are UTC.
func ParseDeparture(s string) (time.Time, error) {
	v := strings.Replace(strings.TrimSpace(s), "T", " ", 1)
	if len(v) == len("2006-01-02 15:04") {
		v += ":00"
	}
	t, err := time.ParseInLocation(DepartureLayout, v, time.UTC)
	if err != nil {
		return time.Time{}, apperr.Newf(apperr.Malformed, "invalid departure time %q", s)
	}
	return t, nil
}
