// Package booking sells seats on scheduled flights and handles the
// customer's side of a booking: search, seat selection, history and
// cancellation.
package booking

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"airline_scheduler/internal/apperr"
	"airline_scheduler/internal/ledger"
	"airline_scheduler/internal/models"
)

const (
	DefaultCancelWindow = 36 * time.Hour
	DefaultFeePercent   = 5
)

type Options struct {
	// CancelWindow is the minimum time before departure at which a customer
	// may still cancel.
	CancelWindow time.Duration
	// FeePercent of the booking total is retained on a customer cancellation.
	FeePercent int64
	Now        func() time.Time
}

type Service struct {
	store     ledger.Store
	opts      Options
	validator *validator.Validate
	logger    *zap.Logger
}

func NewService(store ledger.Store, opts Options, validate *validator.Validate, logger *zap.Logger) *Service {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CancelWindow <= 0 {
		opts.CancelWindow = DefaultCancelWindow
	}
	if opts.FeePercent <= 0 {
		opts.FeePercent = DefaultFeePercent
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{store: store, opts: opts, validator: validate, logger: logger}
}

// Destinations lists every airport, ordered by city.
func (s *Service) Destinations(ctx context.Context) ([]models.Airport, error) {
	var out []models.Airport
	err := s.store.View(ctx, func(r ledger.Reader) error {
		var err error
		out, err = r.Airports(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].City != out[j].City {
			return out[i].City < out[j].City
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

// SearchQuery selects flights by departure day and city pair.
type SearchQuery struct {
	Date        string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	// After restricts the suggestion to dates on or after Date, as used for
	// the return leg of a round trip.
	After bool `json:"after"`
}

type SearchResult struct {
	Flights []models.FlightView `json:"flights"`
	// Suggestion is the nearest day with a flight on the same city pair,
	// set only when Flights is empty.
	Suggestion string `json:"suggested_date,omitempty"`
}

// Search returns the scheduled flights matching q. When none match and the
// query names a day and both cities, the nearest other flight day is
// suggested.
func (s *Service) Search(ctx context.Context, q SearchQuery) (SearchResult, error) {
	if err := s.validator.Struct(q); err != nil {
		return SearchResult{}, apperr.Wrap(err, apperr.Malformed, "date must be YYYY-MM-DD")
	}
	res := SearchResult{Flights: []models.FlightView{}}
	err := s.store.View(ctx, func(r ledger.Reader) error {
		flights, err := r.Flights(ctx, ledger.FlightFilter{
			Date:            q.Date,
			OriginCity:      strings.TrimSpace(q.Origin),
			DestinationCity: strings.TrimSpace(q.Destination),
			Status:          models.FlightScheduled,
		})
		if err != nil {
			return err
		}
		if len(flights) > 0 {
			res.Flights = flights
			return nil
		}
		if q.Date == "" || q.Origin == "" || q.Destination == "" {
			return nil
		}
		target, err := time.Parse(time.DateOnly, q.Date)
		if err != nil {
			return apperr.Wrap(err, apperr.Malformed, "date must be YYYY-MM-DD")
		}
		day, ok, err := r.NearestFlightDate(ctx, q.Origin, q.Destination, target, q.After)
		if err != nil || !ok {
			return err
		}
		res.Suggestion = day.Format(time.DateOnly)
		return nil
	})
	return res, err
}

// CabinMap is one cabin of a seat map.
type CabinMap struct {
	models.CabinLayout
	Letters  []string     `json:"letters"`
	Fare     models.Money `json:"fare"`
	Occupied []string     `json:"occupied"`
}

type SeatMap struct {
	Flight models.FlightView `json:"flight"`
	Cabins []CabinMap        `json:"cabins"`
}

// SeatMap lays out every cabin of the flight's plane with its fare and the
// seats already held by confirmed bookings.
func (s *Service) SeatMap(ctx context.Context, flightID int64) (SeatMap, error) {
	var out SeatMap
	err := s.store.View(ctx, func(r ledger.Reader) error {
		view, plane, err := loadFlight(ctx, r, flightID)
		if err != nil {
			return err
		}
		out.Flight = view
		fares, err := fareTable(ctx, r, flightID)
		if err != nil {
			return err
		}
		occupied, err := r.OccupiedSeats(ctx, flightID)
		if err != nil {
			return err
		}
		for _, class := range plane.Size.Cabins() {
			layout, ok := plane.Layout(class)
			if !ok {
				return apperr.Newf(apperr.Internal, "plane %s has no %s dimensions", plane.ID, class)
			}
			cm := CabinMap{CabinLayout: layout, Letters: layout.Letters(), Fare: fares[class], Occupied: []string{}}
			for _, seat := range occupied {
				if seat.Class == class {
					cm.Occupied = append(cm.Occupied, seat.String())
				}
			}
			sort.Strings(cm.Occupied)
			out.Cabins = append(out.Cabins, cm)
		}
		return nil
	})
	return out, err
}

func loadFlight(ctx context.Context, r ledger.Reader, flightID int64) (models.FlightView, models.Plane, error) {
	views, err := r.Flights(ctx, ledger.FlightFilter{ID: flightID})
	if err != nil {
		return models.FlightView{}, models.Plane{}, err
	}
	if len(views) == 0 {
		return models.FlightView{}, models.Plane{}, apperr.Newf(apperr.NotFound, "flight %d not found", flightID)
	}
	plane, err := r.Plane(ctx, views[0].PlaneID)
	if err != nil {
		return models.FlightView{}, models.Plane{}, err
	}
	return views[0], plane, nil
}

func fareTable(ctx context.Context, r ledger.Reader, flightID int64) (map[models.CabinClass]models.Money, error) {
	fares, err := r.Fares(ctx, flightID)
	if err != nil {
		return nil, err
	}
	out := make(map[models.CabinClass]models.Money, len(fares))
	for _, f := range fares {
		out[f.Class] = f.Price
	}
	return out, nil
}

// Passenger is one traveller and the seat chosen for them.
type Passenger struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Passport  string `json:"passport" validate:"required,alphanum"`
	Seat      string `json:"seat" validate:"required"`
}

type Request struct {
	FlightID   int64       `json:"flight_id" validate:"required,gt=0"`
	Email      string      `json:"email" validate:"required,email"`
	Registered bool        `json:"registered"`
	Passengers []Passenger `json:"passengers" validate:"required,min=1,dive"`
}

type Confirmation struct {
	BookingID int64        `json:"booking_id"`
	Total     models.Money `json:"total_price"`
	Seats     []string     `json:"seats"`
}

// Book sells the requested seats in one transaction. Every seat must exist
// on the plane and be free when the flight row is locked; otherwise nothing
// is written.
func (s *Service) Book(ctx context.Context, req Request) (Confirmation, error) {
	if err := s.validator.Struct(req); err != nil {
		return Confirmation{}, apperr.Wrap(err, apperr.Malformed, "invalid booking request")
	}
	seats := make([]models.Seat, len(req.Passengers))
	chosen := make(map[models.Seat]bool, len(seats))
	for i, p := range req.Passengers {
		seat, err := models.ParseSeat(p.Seat)
		if err != nil {
			return Confirmation{}, apperr.Wrap(err, apperr.Malformed, "invalid seat")
		}
		if chosen[seat] {
			return Confirmation{}, apperr.Newf(apperr.Malformed, "seat %s selected twice", seat)
		}
		chosen[seat] = true
		seats[i] = seat
	}

	var conf Confirmation
	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		if err := tx.LockFlight(ctx, req.FlightID); err != nil {
			return err
		}
		flight, err := tx.Flight(ctx, req.FlightID)
		if err != nil {
			return err
		}
		if flight.Status != models.FlightScheduled {
			return apperr.Newf(apperr.PolicyViolation, "flight %d is %s and is not open for booking", flight.ID, flight.Status)
		}
		if !flight.Departure.After(s.opts.Now()) {
			return apperr.Newf(apperr.PolicyViolation, "flight %d has already departed", flight.ID)
		}
		plane, err := tx.Plane(ctx, flight.PlaneID)
		if err != nil {
			return err
		}
		fares, err := fareTable(ctx, tx, flight.ID)
		if err != nil {
			return err
		}

		var total models.Money
		for _, seat := range seats {
			layout, ok := plane.Layout(seat.Class)
			if !ok || !layout.Contains(seat) {
				return apperr.Newf(apperr.Malformed, "seat %s does not exist on plane %s", seat, plane.ID)
			}
			price, ok := fares[seat.Class]
			if !ok {
				return apperr.Newf(apperr.Malformed, "no %s fare on flight %d", seat.Class, flight.ID)
			}
			total += price
		}

		occupied, err := tx.OccupiedSeats(ctx, flight.ID)
		if err != nil {
			return err
		}
		var taken []string
		for _, o := range occupied {
			if chosen[o] {
				taken = append(taken, o.String())
			}
		}
		if len(taken) > 0 {
			sort.Strings(taken)
			return apperr.Newf(apperr.PolicyViolation, "seats already taken: %s", strings.Join(taken, ", "))
		}

		id, err := tx.InsertBooking(ctx, models.Booking{
			Email:      strings.ToLower(strings.TrimSpace(req.Email)),
			Registered: req.Registered,
			FlightID:   flight.ID,
			BookedAt:   s.opts.Now().UTC(),
			Status:     models.BookingConfirmed,
			Total:      total,
		})
		if err != nil {
			return err
		}
		for i, p := range req.Passengers {
			err := tx.InsertTicket(ctx, models.Ticket{
				BookingID:     id,
				FlightID:      flight.ID,
				PlaneID:       plane.ID,
				PassengerName: strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName),
				Passport:      p.Passport,
				Seat:          seats[i],
			})
			if err != nil {
				return err
			}
			conf.Seats = append(conf.Seats, seats[i].String())
		}
		conf.BookingID = id
		conf.Total = total
		return nil
	})
	if err != nil {
		s.logger.Warn("booking failed", zap.Int64("flight_id", req.FlightID), zap.Error(err))
		return Confirmation{}, err
	}
	s.logger.Info("booking confirmed",
		zap.Int64("booking_id", conf.BookingID),
		zap.Int64("flight_id", req.FlightID),
		zap.Int("seats", len(seats)),
		zap.Stringer("total", conf.Total))
	return conf, nil
}

type CancelResult struct {
	BookingID int64        `json:"booking_id"`
	Fee       models.Money `json:"fee"`
	Message   string       `json:"message"`
}

// CancelByCustomer cancels a booking at the customer's request. The
// retained fee becomes the booking's new total.
func (s *Service) CancelByCustomer(ctx context.Context, bookingID int64) (CancelResult, error) {
	now := s.opts.Now()
	var res CancelResult
	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		b, err := tx.Booking(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.Status.Cancelled() {
			return apperr.New(apperr.PolicyViolation, "This booking is already cancelled.")
		}
		if b.Status != models.BookingConfirmed {
			return apperr.Newf(apperr.PolicyViolation, "booking %d is %s and cannot be cancelled", b.ID, b.Status)
		}
		f, err := tx.Flight(ctx, b.FlightID)
		if err != nil {
			return err
		}
		if f.Departure.Sub(now) < s.opts.CancelWindow {
			return apperr.Newf(apperr.PolicyViolation, "Too late to cancel (under %d hours before departure).", int(s.opts.CancelWindow/time.Hour))
		}
		fee := b.Total.Percent(s.opts.FeePercent)
		if err := tx.SetBookingStatus(ctx, b.ID, models.BookingCancelledClient, fee); err != nil {
			return err
		}
		res = CancelResult{
			BookingID: b.ID,
			Fee:       fee,
			Message:   fmt.Sprintf("Booking cancelled. A %d%% fee (%s) was charged.", s.opts.FeePercent, fee),
		}
		return nil
	})
	if err != nil {
		return CancelResult{}, err
	}
	s.logger.Info("booking cancelled by customer",
		zap.Int64("booking_id", bookingID),
		zap.Stringer("fee", res.Fee))
	return res, nil
}
