// Package ledger is the storage layer: routes, fleet, crew, flights, fares,
// bookings and tickets. Callers read through a Reader and mutate only inside
// Store.WithTx, which applies all writes of one call or none of them.
package ledger

import (
	"context"
	"time"

	"airline_scheduler/internal/models"
)

// DefaultFirstBookingID is where booking numbering starts on an empty ledger.
const DefaultFirstBookingID = 1001

// FlightFilter narrows Reader.Flights. Zero fields match everything.
type FlightFilter struct {
	ID              int64
	Date            string // YYYY-MM-DD of departure
	OriginCity      string
	DestinationCity string
	Status          models.FlightStatus
}

type Reader interface {
	Airports(ctx context.Context) ([]models.Airport, error)
	Routes(ctx context.Context) ([]models.Route, error)
	Route(ctx context.Context, id int64) (models.Route, error)
	Planes(ctx context.Context) ([]models.Plane, error)
	Plane(ctx context.Context, id string) (models.Plane, error)
	Crew(ctx context.Context, role models.CrewRole) ([]models.CrewMember, error)
	// Assignments lists every flight each resource of the given kind has
	// been put on, cancelled ones included.
	Assignments(ctx context.Context, kind models.ResourceKind) ([]models.Assignment, error)

	Flight(ctx context.Context, id int64) (models.Flight, error)
	Flights(ctx context.Context, f FlightFilter) ([]models.FlightView, error)
	FlightCrew(ctx context.Context, flightID int64) ([]models.CrewMember, error)
	Fares(ctx context.Context, flightID int64) ([]models.Fare, error)
	// OccupiedSeats returns seats held by confirmed bookings.
	OccupiedSeats(ctx context.Context, flightID int64) ([]models.Seat, error)
	// NearestFlightDate finds the non-cancelled departure on a city pair
	// closest to target. With after set, only dates on or after target count.
	NearestFlightDate(ctx context.Context, originCity, destCity string, target time.Time, after bool) (time.Time, bool, error)

	Booking(ctx context.Context, id int64) (models.Booking, error)
	BookingDetails(ctx context.Context, email string) ([]models.BookingDetail, error)
	BookingsOnFlight(ctx context.Context, flightID int64) ([]models.Booking, error)
}

type Writer interface {
	InsertFlight(ctx context.Context, f models.Flight) (int64, error)
	AssignCrew(ctx context.Context, flightID int64, role models.CrewRole, workerID string) error
	InsertFare(ctx context.Context, fare models.Fare) error
	SetFlightStatus(ctx context.Context, id int64, status models.FlightStatus) error
	// CompleteDeparted marks scheduled flights departed at or before now as
	// completed and returns how many changed.
	CompleteDeparted(ctx context.Context, now time.Time) (int64, error)

	InsertBooking(ctx context.Context, b models.Booking) (int64, error)
	InsertTicket(ctx context.Context, t models.Ticket) error
	SetBookingStatus(ctx context.Context, id int64, status models.BookingStatus, total models.Money) error

	// LockResources holds the plane and crew rows until the transaction
	// ends so a concurrent commit cannot claim them.
	LockResources(ctx context.Context, planeID string, crew map[models.CrewRole][]string) error
	// LockFlight serializes seat sales on one flight.
	LockFlight(ctx context.Context, flightID int64) error
}

type Tx interface {
	Reader
	Writer
}

type Store interface {
	// View runs fn against a consistent read-only view of the ledger.
	View(ctx context.Context, fn func(r Reader) error) error
	// WithTx runs fn in a transaction. If fn returns an error every write
	// it made is discarded and the error is returned.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}
