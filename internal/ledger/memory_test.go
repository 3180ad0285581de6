package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airline_scheduler/internal/apperr"
	"airline_scheduler/internal/models"
)

func mustHMS(t *testing.T, s string) models.HMS {
	t.Helper()
	h, err := models.ParseHMS(s)
	require.NoError(t, err)
	return h
}

func seedStore(t *testing.T) *MemoryStore {
	t.Helper()
	m := NewMemoryStore()
	m.SetAirports([]models.Airport{
		{Code: "TLV", Name: "Ben Gurion", City: "Tel Aviv", Country: "Israel"},
		{Code: "ATH", Name: "Eleftherios Venizelos", City: "Athens", Country: "Greece"},
		{Code: "JFK", Name: "John F. Kennedy", City: "New York", Country: "USA"},
	})
	m.AddRoute(models.Route{ID: 1, Origin: "TLV", Destination: "ATH", Duration: mustHMS(t, "2:00:00")})
	m.AddRoute(models.Route{ID: 2, Origin: "ATH", Destination: "TLV", Duration: mustHMS(t, "2:00:00")})
	m.AddRoute(models.Route{ID: 3, Origin: "TLV", Destination: "JFK", Duration: mustHMS(t, "12:00:00")})
	m.AddPlane(models.Plane{ID: "P1", Manufacturer: "Boeing", Size: models.PlaneLarge, Cabins: []models.CabinLayout{
		{Class: models.CabinEconomy, Rows: 20, Cols: 6},
		{Class: models.CabinBusiness, Rows: 4, Cols: 4},
	}})
	m.AddPlane(models.Plane{ID: "P2", Manufacturer: "Dassault", Size: models.PlaneSmall, Cabins: []models.CabinLayout{
		{Class: models.CabinEconomy, Rows: 10, Cols: 4},
	}})
	m.AddCrew(models.CrewMember{ID: "PL1", Role: models.RolePilot, FirstName: "Dana", LastName: "Levi", LongHaul: true})
	m.AddCrew(models.CrewMember{ID: "FA1", Role: models.RoleAttendant, FirstName: "Noa", LastName: "Cohen"})
	return m
}

func insertFlight(t *testing.T, m *MemoryStore, routeID int64, plane string, dep time.Time) int64 {
	t.Helper()
	var id int64
	err := m.WithTx(context.Background(), func(tx Tx) error {
		var err error
		id, err = tx.InsertFlight(context.Background(), models.Flight{
			RouteID: routeID, PlaneID: plane, Departure: dep, Status: models.FlightScheduled, ManagerID: "M1",
		})
		return err
	})
	require.NoError(t, err)
	return id
}

func TestWithTxDiscardsWritesOnError(t *testing.T) {
	m := seedStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := m.WithTx(ctx, func(tx Tx) error {
		id, err := tx.InsertFlight(ctx, models.Flight{RouteID: 1, PlaneID: "P1", Departure: time.Now(), Status: models.FlightScheduled})
		require.NoError(t, err)
		require.NoError(t, tx.AssignCrew(ctx, id, models.RolePilot, "PL1"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = m.View(ctx, func(r Reader) error {
		flights, err := r.Flights(ctx, FlightFilter{})
		require.NoError(t, err)
		assert.Empty(t, flights)
		as, err := r.Assignments(ctx, models.KindPilot)
		require.NoError(t, err)
		assert.Empty(t, as)
		return nil
	})
	require.NoError(t, err)

	// The counter rolled back with everything else.
	assert.Equal(t, int64(1), insertFlight(t, m, 1, "P1", time.Now()))
}

func TestWithTxCancelledContext(t *testing.T) {
	m := seedStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	err := m.WithTx(ctx, func(tx Tx) error {
		_, err := tx.InsertFlight(ctx, models.Flight{RouteID: 1, PlaneID: "P1", Status: models.FlightScheduled})
		cancel()
		return err
	})
	assert.True(t, apperr.Is(err, apperr.TransactionFailure))
	assert.Equal(t, int64(1), insertFlight(t, m, 1, "P1", time.Now()))
}

func TestInsertFlightUnknownRoute(t *testing.T) {
	m := seedStore(t)
	err := m.WithTx(context.Background(), func(tx Tx) error {
		_, err := tx.InsertFlight(context.Background(), models.Flight{RouteID: 99, PlaneID: "P1"})
		return err
	})
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestBookingIDsStartAt1001(t *testing.T) {
	m := seedStore(t)
	ctx := context.Background()
	fid := insertFlight(t, m, 1, "P1", time.Date(2030, 1, 1, 8, 0, 0, 0, time.UTC))

	var ids []int64
	for i := 0; i < 2; i++ {
		err := m.WithTx(ctx, func(tx Tx) error {
			id, err := tx.InsertBooking(ctx, models.Booking{Email: "a@b.c", FlightID: fid, Status: models.BookingConfirmed})
			ids = append(ids, id)
			return err
		})
		require.NoError(t, err)
	}
	assert.Equal(t, []int64{1001, 1002}, ids)
}

func TestInsertTicketSeatTaken(t *testing.T) {
	m := seedStore(t)
	ctx := context.Background()
	fid := insertFlight(t, m, 1, "P1", time.Date(2030, 1, 1, 8, 0, 0, 0, time.UTC))
	seat := models.Seat{Class: models.CabinEconomy, Row: 3, Letter: "C"}

	book := func() error {
		return m.WithTx(ctx, func(tx Tx) error {
			id, err := tx.InsertBooking(ctx, models.Booking{Email: "a@b.c", FlightID: fid, Status: models.BookingConfirmed})
			if err != nil {
				return err
			}
			return tx.InsertTicket(ctx, models.Ticket{BookingID: id, FlightID: fid, PlaneID: "P1", Seat: seat})
		})
	}
	require.NoError(t, book())

	err := book()
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.PolicyViolation))
	assert.Contains(t, err.Error(), "Economy-3-C")

	// A cancelled booking frees its seat.
	require.NoError(t, m.WithTx(ctx, func(tx Tx) error {
		return tx.SetBookingStatus(ctx, 1001, models.BookingCancelledClient, models.Dollars(1))
	}))
	require.NoError(t, book())

	require.NoError(t, m.View(ctx, func(r Reader) error {
		seats, err := r.OccupiedSeats(ctx, fid)
		require.NoError(t, err)
		assert.Equal(t, []models.Seat{seat}, seats)
		on, err := r.BookingsOnFlight(ctx, fid)
		require.NoError(t, err)
		assert.Len(t, on, 2)
		return nil
	}))
}

func TestFlightsFilter(t *testing.T) {
	m := seedStore(t)
	ctx := context.Background()
	day := time.Date(2030, 3, 10, 9, 0, 0, 0, time.UTC)
	f1 := insertFlight(t, m, 1, "P1", day)
	insertFlight(t, m, 2, "P2", day.Add(6*time.Hour))
	insertFlight(t, m, 1, "P2", day.Add(48*time.Hour))

	require.NoError(t, m.WithTx(ctx, func(tx Tx) error {
		if err := tx.InsertFare(ctx, models.Fare{FlightID: f1, Class: models.CabinEconomy, Price: models.Dollars(250)}); err != nil {
			return err
		}
		return tx.InsertFare(ctx, models.Fare{FlightID: f1, Class: models.CabinBusiness, Price: models.Dollars(900)})
	}))

	require.NoError(t, m.View(ctx, func(r Reader) error {
		got, err := r.Flights(ctx, FlightFilter{Date: "2030-03-10", OriginCity: "tel aviv", DestinationCity: "Athens"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, f1, got[0].ID)
		assert.Equal(t, models.Dollars(250), got[0].MinFare)
		assert.Equal(t, "Athens", got[0].DestinationCity)
		assert.Equal(t, day.Add(2*time.Hour), got[0].Arrival())

		byCode, err := r.Flights(ctx, FlightFilter{OriginCity: "TLV"})
		require.NoError(t, err)
		assert.Len(t, byCode, 2)
		return nil
	}))
}

func TestNearestFlightDate(t *testing.T) {
	m := seedStore(t)
	ctx := context.Background()
	insertFlight(t, m, 1, "P1", time.Date(2030, 3, 5, 9, 0, 0, 0, time.UTC))
	insertFlight(t, m, 1, "P1", time.Date(2030, 3, 14, 9, 0, 0, 0, time.UTC))
	cancelled := insertFlight(t, m, 1, "P1", time.Date(2030, 3, 11, 9, 0, 0, 0, time.UTC))
	require.NoError(t, m.WithTx(ctx, func(tx Tx) error {
		return tx.SetFlightStatus(ctx, cancelled, models.FlightCancelled)
	}))

	target := time.Date(2030, 3, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, m.View(ctx, func(r Reader) error {
		d, ok, err := r.NearestFlightDate(ctx, "Tel Aviv", "Athens", target, false)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "2030-03-14", d.Format(time.DateOnly))

		d, ok, err = r.NearestFlightDate(ctx, "Tel Aviv", "Athens", time.Date(2030, 3, 6, 0, 0, 0, 0, time.UTC), true)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "2030-03-14", d.Format(time.DateOnly))

		_, ok, err = r.NearestFlightDate(ctx, "Athens", "Tel Aviv", target, false)
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))
}

func TestCompleteDeparted(t *testing.T) {
	m := seedStore(t)
	ctx := context.Background()
	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	past := insertFlight(t, m, 1, "P1", now.Add(-time.Hour))
	future := insertFlight(t, m, 1, "P1", now.Add(time.Hour))

	var n int64
	require.NoError(t, m.WithTx(ctx, func(tx Tx) error {
		var err error
		n, err = tx.CompleteDeparted(ctx, now)
		return err
	}))
	assert.Equal(t, int64(1), n)

	require.NoError(t, m.View(ctx, func(r Reader) error {
		f, err := r.Flight(ctx, past)
		require.NoError(t, err)
		assert.Equal(t, models.FlightCompleted, f.Status)
		f, err = r.Flight(ctx, future)
		require.NoError(t, err)
		assert.Equal(t, models.FlightScheduled, f.Status)
		return nil
	}))
}

func TestBookingDetailsNewestFirst(t *testing.T) {
	m := seedStore(t)
	ctx := context.Background()
	early := insertFlight(t, m, 1, "P1", time.Date(2030, 1, 1, 8, 0, 0, 0, time.UTC))
	late := insertFlight(t, m, 2, "P1", time.Date(2030, 2, 1, 8, 0, 0, 0, time.UTC))
	for _, fid := range []int64{early, late} {
		fid := fid
		require.NoError(t, m.WithTx(ctx, func(tx Tx) error {
			id, err := tx.InsertBooking(ctx, models.Booking{Email: "dana@example.com", FlightID: fid, Status: models.BookingConfirmed})
			if err != nil {
				return err
			}
			return tx.InsertTicket(ctx, models.Ticket{BookingID: id, FlightID: fid, PlaneID: "P1", PassengerName: "Dana",
				Seat: models.Seat{Class: models.CabinEconomy, Row: 1, Letter: "A"}})
		}))
	}

	require.NoError(t, m.View(ctx, func(r Reader) error {
		got, err := r.BookingDetails(ctx, " DANA@example.com ")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, late, got[0].FlightID)
		assert.Equal(t, "Athens", got[0].OriginCity)
		assert.Len(t, got[0].Tickets, 1)
		return nil
	}))
}
