// Package fleet schedules and cancels flights on behalf of managers.
package fleet

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"airline_scheduler/internal/apperr"
	"airline_scheduler/internal/ledger"
	"airline_scheduler/internal/models"
	"airline_scheduler/internal/scheduling"
)

const DefaultManagerNotice = 72 * time.Hour

type Options struct {
	// CommitRecheck re-runs the availability check inside the commit
	// transaction, after the chosen plane and crew rows are locked.
	CommitRecheck bool
	// ManagerNotice is how far ahead of departure a flight may still be
	// cancelled.
	ManagerNotice time.Duration
	Policy        scheduling.Policy
	Now           func() time.Time
}

type Service struct {
	store     ledger.Store
	engine    *scheduling.Engine
	opts      Options
	validator *validator.Validate
	logger    *zap.Logger
}

func NewService(store ledger.Store, engine *scheduling.Engine, opts Options, validate *validator.Validate, logger *zap.Logger) *Service {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ManagerNotice <= 0 {
		opts.ManagerNotice = DefaultManagerNotice
	}
	if opts.Policy == (scheduling.Policy{}) {
		opts.Policy = scheduling.DefaultPolicy
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{store: store, engine: engine, opts: opts, validator: validate, logger: logger}
}

// CommitRequest is a flight a manager has picked resources for.
type CommitRequest struct {
	RouteID      int64         `json:"route_id" validate:"required,gt=0"`
	PlaneID      string        `json:"plane_id" validate:"required"`
	Departure    string        `json:"departure" validate:"required"`
	PilotIDs     []string      `json:"pilot_ids" validate:"required,min=1,unique,dive,required"`
	AttendantIDs []string      `json:"attendant_ids" validate:"required,min=1,unique,dive,required"`
	ManagerID    string        `json:"manager_id" validate:"required"`
	EconomyFare  models.Money  `json:"economy_price" validate:"gt=0"`
	BusinessFare *models.Money `json:"business_price,omitempty" validate:"omitempty,gt=0"`
}

func (r CommitRequest) crew() map[models.CrewRole][]string {
	return map[models.CrewRole][]string{
		models.RolePilot:     r.PilotIDs,
		models.RoleAttendant: r.AttendantIDs,
	}
}

// CommitFlight writes the flight, its crew and its fares in one
// transaction and returns the new flight id.
func (s *Service) CommitFlight(ctx context.Context, req CommitRequest) (int64, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, apperr.Wrap(err, apperr.Malformed, "invalid flight request")
	}
	departure, err := scheduling.ParseDeparture(req.Departure)
	if err != nil {
		return 0, err
	}

	var flightID int64
	err = s.store.WithTx(ctx, func(tx ledger.Tx) error {
		if _, err := tx.Route(ctx, req.RouteID); err != nil {
			return err
		}
		plane, err := tx.Plane(ctx, req.PlaneID)
		if err != nil {
			return err
		}
		if req.BusinessFare != nil && !plane.Size.Supports(models.CabinBusiness) {
			return apperr.Newf(apperr.Malformed, "plane %s has no business cabin", plane.ID)
		}
		if err := tx.LockResources(ctx, req.PlaneID, req.crew()); err != nil {
			return err
		}
		if s.opts.CommitRecheck {
			if err := s.recheck(ctx, tx, req, departure); err != nil {
				return err
			}
		}

		flightID, err = tx.InsertFlight(ctx, models.Flight{
			RouteID:   req.RouteID,
			PlaneID:   req.PlaneID,
			Departure: departure,
			Status:    models.FlightScheduled,
			ManagerID: req.ManagerID,
		})
		if err != nil {
			return err
		}
		for _, id := range req.PilotIDs {
			if err := tx.AssignCrew(ctx, flightID, models.RolePilot, id); err != nil {
				return err
			}
		}
		for _, id := range req.AttendantIDs {
			if err := tx.AssignCrew(ctx, flightID, models.RoleAttendant, id); err != nil {
				return err
			}
		}
		if err := tx.InsertFare(ctx, models.Fare{FlightID: flightID, Class: models.CabinEconomy, Price: req.EconomyFare}); err != nil {
			return err
		}
		if req.BusinessFare != nil {
			return tx.InsertFare(ctx, models.Fare{FlightID: flightID, Class: models.CabinBusiness, Price: *req.BusinessFare})
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("flight commit failed",
			zap.Int64("route_id", req.RouteID),
			zap.String("plane_id", req.PlaneID),
			zap.Error(err))
		return 0, err
	}

	s.logger.Info("flight committed",
		zap.Int64("flight_id", flightID),
		zap.Int64("route_id", req.RouteID),
		zap.String("plane_id", req.PlaneID),
		zap.Time("departure", departure),
		zap.String("manager_id", req.ManagerID))
	return flightID, nil
}

// recheck confirms every chosen resource is still valid and that enough of
// them were chosen.
func (s *Service) recheck(ctx context.Context, tx ledger.Tx, req CommitRequest, departure time.Time) error {
	report, err := s.engine.Evaluate(ctx, tx, req.RouteID, departure)
	if err != nil {
		return err
	}

	if st, ok := report.Lookup(models.KindPlane, req.PlaneID); !ok {
		return apperr.Newf(apperr.PolicyViolation, "plane %s is too small for a long-haul flight", req.PlaneID)
	} else if !st.Valid {
		return apperr.Newf(apperr.PolicyViolation, "plane %s is no longer available: %s", req.PlaneID, st.Reason)
	}
	checks := []struct {
		kind models.ResourceKind
		ids  []string
	}{
		{models.KindPilot, req.PilotIDs},
		{models.KindAttendant, req.AttendantIDs},
	}
	for _, c := range checks {
		for _, id := range c.ids {
			st, ok := report.Lookup(c.kind, id)
			if !ok {
				return apperr.Newf(apperr.NotFound, "%s %s not found", c.kind, id)
			}
			if !st.Valid {
				return apperr.Newf(apperr.PolicyViolation, "%s %s is no longer available: %s", c.kind, id, st.Reason)
			}
		}
	}

	need := s.opts.Policy.For(report.LongHaul)
	if len(req.PilotIDs) < need.Pilots {
		return apperr.Newf(apperr.PolicyViolation, "Pilot shortage. Required %d, found available: %d.", need.Pilots, len(req.PilotIDs))
	}
	if len(req.AttendantIDs) < need.Attendants {
		return apperr.Newf(apperr.PolicyViolation, "Flight attendant shortage. Required %d, found available: %d.", need.Attendants, len(req.AttendantIDs))
	}
	return nil
}

type CancelResult struct {
	FlightID          int64 `json:"flight_id"`
	BookingsCancelled int   `json:"bookings_cancelled"`
}

// CanCancel reports whether a manager may still cancel f at now.
func (s *Service) CanCancel(f models.Flight, now time.Time) bool {
	return f.Status == models.FlightScheduled && f.Departure.Sub(now) > s.opts.ManagerNotice
}

// CancelFlight cancels a scheduled flight and every live booking on it. The
// flight and its bookings change together or not at all.
func (s *Service) CancelFlight(ctx context.Context, flightID int64) (CancelResult, error) {
	res := CancelResult{FlightID: flightID}
	now := s.opts.Now()
	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		if err := tx.LockFlight(ctx, flightID); err != nil {
			return err
		}
		f, err := tx.Flight(ctx, flightID)
		if err != nil {
			return err
		}
		if f.Status != models.FlightScheduled {
			return apperr.Newf(apperr.PolicyViolation, "flight %d is %s and cannot be cancelled", flightID, f.Status)
		}
		if !s.CanCancel(f, now) {
			return apperr.Newf(apperr.PolicyViolation, "flights can only be cancelled more than %s before departure", formatHours(s.opts.ManagerNotice))
		}
		if err := tx.SetFlightStatus(ctx, flightID, models.FlightCancelled); err != nil {
			return err
		}

		bookings, err := tx.BookingsOnFlight(ctx, flightID)
		if err != nil {
			return err
		}
		for _, b := range bookings {
			if b.Status.Cancelled() {
				continue
			}
			if err := tx.SetBookingStatus(ctx, b.ID, models.BookingCancelledSystem, b.Total); err != nil {
				return err
			}
			res.BookingsCancelled++
		}
		return nil
	})
	if err != nil {
		return CancelResult{}, err
	}
	s.logger.Info("flight cancelled",
		zap.Int64("flight_id", flightID),
		zap.Int("bookings_cancelled", res.BookingsCancelled))
	return res, nil
}

func formatHours(d time.Duration) string {
	return fmt.Sprintf("%d hours", int(d/time.Hour))
}
