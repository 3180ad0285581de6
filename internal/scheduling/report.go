package scheduling

import (
	"time"

	"airline_scheduler/internal/models"
)

// ResourceStatus is one plane or crew member as evaluated for a proposed
// flight.
type ResourceStatus struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Size     models.PlaneSize `json:"size,omitempty"`
	Location string           `json:"location"`
	Busy     bool             `json:"busy"`
	Eligible bool             `json:"eligible"`
	Valid    bool             `json:"valid"`
	Reason   string           `json:"reason,omitempty"`
}

const (
	reasonPlaneBusy    = "Time Overlap (Busy)"
	reasonCrewBusy     = "Time Overlap"
	reasonNotQualified = "Not Qualified"
)

func locatedIn(code string) string {
	return "Located in " + code
}

// Report is the feasibility of one route at one departure instant. It is
// built fresh for every check.
type Report struct {
	RouteID     int64            `json:"route_id"`
	Origin      string           `json:"origin"`
	Destination string           `json:"destination"`
	Departure   time.Time        `json:"departure"`
	Arrival     time.Time        `json:"-"`
	ArrivalText string           `json:"arrival_time"`
	LongHaul    bool             `json:"is_long_haul"`
	Planes      []ResourceStatus `json:"planes"`
	Pilots      []ResourceStatus `json:"pilots"`
	Attendants  []ResourceStatus `json:"attendants"`
}

func countValid(list []ResourceStatus) int {
	n := 0
	for _, s := range list {
		if s.Valid {
			n++
		}
	}
	return n
}

func (r *Report) list(kind models.ResourceKind) []ResourceStatus {
	switch kind {
	case models.KindPlane:
		return r.Planes
	case models.KindPilot:
		return r.Pilots
	default:
		return r.Attendants
	}
}

// Lookup finds the status of a resource in the report.
func (r *Report) Lookup(kind models.ResourceKind, id string) (ResourceStatus, bool) {
	for _, s := range r.list(kind) {
		if s.ID == id {
			return s, true
		}
	}
	return ResourceStatus{}, false
}
