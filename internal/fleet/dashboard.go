package fleet

import (
	"context"
	"strings"
	"time"

	"airline_scheduler/internal/ledger"
	"airline_scheduler/internal/models"
)

// DashboardFlight is one row of the manager's flight board.
type DashboardFlight struct {
	models.FlightView
	ArrivalTime time.Time `json:"arrival_time"`
	Pilots      string    `json:"pilots"`
	Attendants  string    `json:"attendants"`
	CanCancel   bool      `json:"can_cancel"`
}

type Dashboard struct {
	Flights []DashboardFlight `json:"flights"`
	Routes  []models.Route    `json:"routes"`
}

// Dashboard lists every flight, latest departure first, with its crew and
// whether it can still be cancelled.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	now := s.opts.Now()
	var out Dashboard
	err := s.store.View(ctx, func(r ledger.Reader) error {
		flights, err := r.Flights(ctx, ledger.FlightFilter{})
		if err != nil {
			return err
		}
		out.Flights = make([]DashboardFlight, 0, len(flights))
		for i := len(flights) - 1; i >= 0; i-- {
			f := flights[i]
			crew, err := r.FlightCrew(ctx, f.ID)
			if err != nil {
				return err
			}
			var pilots, attendants []string
			for _, c := range crew {
				if c.Role == models.RolePilot {
					pilots = append(pilots, c.FullName())
				} else {
					attendants = append(attendants, c.FullName())
				}
			}
			out.Flights = append(out.Flights, DashboardFlight{
				FlightView:  f,
				ArrivalTime: f.Arrival(),
				Pilots:      strings.Join(pilots, ", "),
				Attendants:  strings.Join(attendants, ", "),
				CanCancel:   s.CanCancel(f.Flight, now),
			})
		}
		out.Routes, err = r.Routes(ctx)
		return err
	})
	return out, err
}
