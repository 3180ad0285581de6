package booking

import (
	"context"
	"strings"

	"airline_scheduler/internal/apperr"
	"airline_scheduler/internal/ledger"
	"airline_scheduler/internal/models"
)

// History is a customer's bookings, newest departure first within each
// group.
type History struct {
	Upcoming          []models.BookingDetail `json:"upcoming"`
	Completed         []models.BookingDetail `json:"completed"`
	CancelledByClient []models.BookingDetail `json:"cancelled_by_customer"`
	CancelledBySystem []models.BookingDetail `json:"cancelled_by_system"`
}

func newHistory() History {
	return History{
		Upcoming:          []models.BookingDetail{},
		Completed:         []models.BookingDetail{},
		CancelledByClient: []models.BookingDetail{},
		CancelledBySystem: []models.BookingDetail{},
	}
}

func (s *Service) History(ctx context.Context, email string) (History, error) {
	email = strings.TrimSpace(email)
	if err := s.validator.Var(email, "required,email"); err != nil {
		return History{}, apperr.Wrap(err, apperr.Malformed, "a valid email is required")
	}
	now := s.opts.Now()
	h := newHistory()
	err := s.store.View(ctx, func(r ledger.Reader) error {
		details, err := r.BookingDetails(ctx, email)
		if err != nil {
			return err
		}
		for _, d := range details {
			switch {
			case d.Status == models.BookingCancelledClient:
				h.CancelledByClient = append(h.CancelledByClient, d)
			case d.Status == models.BookingCancelledSystem:
				h.CancelledBySystem = append(h.CancelledBySystem, d)
			case d.Status == models.BookingConfirmed && d.Departure.After(now):
				h.Upcoming = append(h.Upcoming, d)
			default:
				h.Completed = append(h.Completed, d)
			}
		}
		return nil
	})
	return h, err
}
