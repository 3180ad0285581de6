package scheduling

import "fmt"

// Minimums is the least number of valid resources a flight needs.
type Minimums struct {
	Planes     int `json:"planes"`
	Pilots     int `json:"pilots"`
	Attendants int `json:"attendants"`
}

type Policy struct {
	ShortHaul Minimums
	LongHaul  Minimums
}

var DefaultPolicy = Policy{
	ShortHaul: Minimums{Planes: 1, Pilots: 2, Attendants: 3},
	LongHaul:  Minimums{Planes: 1, Pilots: 3, Attendants: 6},
}

const reasonNoAircraft = "No available aircraft (or the aircraft is too small for a long-haul flight)"

// Decision is the gate's verdict on a report. The report's lists are passed
// through unfiltered.
type Decision struct {
	CanProceed bool   `json:"can_proceed"`
	ErrorMsg   string `json:"error_msg"`
	*Report
}

func (p Policy) For(longHaul bool) Minimums {
	if longHaul {
		return p.LongHaul
	}
	return p.ShortHaul
}

// Decide counts the valid resources in r against the policy. Only the first
// unmet minimum, checked in the order planes, pilots, attendants, is named.
func (p Policy) Decide(r *Report) Decision {
	need := p.For(r.LongHaul)
	d := Decision{CanProceed: true, Report: r}

	if got := countValid(r.Planes); got < need.Planes {
		d.CanProceed = false
		d.ErrorMsg = reasonNoAircraft
	} else if got := countValid(r.Pilots); got < need.Pilots {
		d.CanProceed = false
		d.ErrorMsg = fmt.Sprintf("Pilot shortage. Required %d, found available: %d.", need.Pilots, got)
	} else if got := countValid(r.Attendants); got < need.Attendants {
		d.CanProceed = false
		d.ErrorMsg = fmt.Sprintf("Flight attendant shortage. Required %d, found available: %d.", need.Attendants, got)
	}
	return d
}

// Decide applies DefaultPolicy.
func Decide(r *Report) Decision {
	return DefaultPolicy.Decide(r)
}
