package booking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airline_scheduler/internal/apperr"
	"airline_scheduler/internal/ledger"
	"airline_scheduler/internal/models"
)

var now = time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)

func newBookingStore(t *testing.T) *ledger.MemoryStore {
	t.Helper()
	m := ledger.NewMemoryStore()
	m.SetAirports([]models.Airport{
		{Code: "TLV", City: "Tel Aviv"}, {Code: "ATH", City: "Athens"}, {Code: "BER", City: "Berlin"},
	})
	m.AddRoute(models.Route{ID: 1, Origin: "TLV", Destination: "ATH", Duration: models.HMS(2 * time.Hour)})
	m.AddRoute(models.Route{ID: 2, Origin: "ATH", Destination: "TLV", Duration: models.HMS(2 * time.Hour)})
	m.AddPlane(models.Plane{ID: "LARGE1", Size: models.PlaneLarge, Cabins: []models.CabinLayout{
		{Class: models.CabinEconomy, Rows: 20, Cols: 6}, {Class: models.CabinBusiness, Rows: 2, Cols: 4},
	}})
	m.AddPlane(models.Plane{ID: "SMALL1", Size: models.PlaneSmall, Cabins: []models.CabinLayout{
		{Class: models.CabinEconomy, Rows: 10, Cols: 4},
	}})
	return m
}

// addFlight schedules a flight with an economy fare and, on large planes, a
// business fare.
func addFlight(t *testing.T, m *ledger.MemoryStore, route int64, plane string, dep time.Time, economy float64) int64 {
	t.Helper()
	ctx := context.Background()
	var id int64
	err := m.WithTx(ctx, func(tx ledger.Tx) error {
		var err error
		id, err = tx.InsertFlight(ctx, models.Flight{RouteID: route, PlaneID: plane, Departure: dep, Status: models.FlightScheduled, ManagerID: "M1"})
		if err != nil {
			return err
		}
		if err := tx.InsertFare(ctx, models.Fare{FlightID: id, Class: models.CabinEconomy, Price: models.Dollars(economy)}); err != nil {
			return err
		}
		if plane == "LARGE1" {
			return tx.InsertFare(ctx, models.Fare{FlightID: id, Class: models.CabinBusiness, Price: models.Dollars(economy * 3)})
		}
		return nil
	})
	require.NoError(t, err)
	return id
}

func newBookingService(store ledger.Store) *Service {
	return NewService(store, Options{Now: func() time.Time { return now }}, nil, nil)
}

func request(flightID int64, seats ...string) Request {
	req := Request{FlightID: flightID, Email: "Dana@Example.com"}
	for i, s := range seats {
		req.Passengers = append(req.Passengers, Passenger{
			FirstName: "Pax", LastName: string(rune('A' + i)), Passport: "P1234567" + string(rune('0'+i)), Seat: s,
		})
	}
	return req
}

func bookingOf(t *testing.T, store ledger.Store, id int64) models.Booking {
	t.Helper()
	var b models.Booking
	err := store.View(context.Background(), func(r ledger.Reader) error {
		var err error
		b, err = r.Booking(context.Background(), id)
		return err
	})
	require.NoError(t, err)
	return b
}

func TestBookSumsCabinFares(t *testing.T) {
	store := newBookingStore(t)
	svc := newBookingService(store)
	flight := addFlight(t, store, 1, "LARGE1", now.Add(72*time.Hour), 100)

	conf, err := svc.Book(context.Background(), request(flight, "Economy-3-A", "business-1-b"))
	require.NoError(t, err)
	assert.Equal(t, int64(ledger.DefaultFirstBookingID), conf.BookingID)
	assert.Equal(t, models.Dollars(400), conf.Total)
	assert.Equal(t, []string{"Economy-3-A", "Business-1-B"}, conf.Seats)

	b := bookingOf(t, store, conf.BookingID)
	assert.Equal(t, models.BookingConfirmed, b.Status)
	assert.Equal(t, "dana@example.com", b.Email)
	assert.Equal(t, now, b.BookedAt)

	conf2, err := svc.Book(context.Background(), request(flight, "Economy-4-A"))
	require.NoError(t, err)
	assert.Equal(t, conf.BookingID+1, conf2.BookingID)
}

func TestBookRejectsTakenSeatsAtomically(t *testing.T) {
	store := newBookingStore(t)
	svc := newBookingService(store)
	ctx := context.Background()
	flight := addFlight(t, store, 1, "LARGE1", now.Add(72*time.Hour), 100)

	_, err := svc.Book(ctx, request(flight, "Economy-3-A"))
	require.NoError(t, err)

	_, err = svc.Book(ctx, request(flight, "Economy-3-B", "Economy-3-A"))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.PolicyViolation))
	assert.Contains(t, apperr.Message(err), "Economy-3-A")

	seats, err := svc.SeatMap(ctx, flight)
	require.NoError(t, err)
	assert.Equal(t, []string{"Economy-3-A"}, seats.Cabins[0].Occupied, "3-B must not be held by the failed booking")
}

func TestBookValidatesSeats(t *testing.T) {
	store := newBookingStore(t)
	svc := newBookingService(store)
	ctx := context.Background()
	small := addFlight(t, store, 1, "SMALL1", now.Add(72*time.Hour), 100)

	cases := map[string]Request{
		"business on small plane": request(small, "Business-1-A"),
		"row out of range":        request(small, "Economy-11-A"),
		"letter out of range":     request(small, "Economy-1-E"),
		"malformed":               request(small, "Economy-1"),
		"duplicate":               request(small, "Economy-1-A", "Economy-1-A"),
		"no passengers":           {FlightID: small, Email: "a@b.com"},
		"bad email":               func() Request { r := request(small, "Economy-1-A"); r.Email = "nope"; return r }(),
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Book(ctx, req)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.Malformed), "got %v", err)
		})
	}
}

func TestBookRejectsClosedFlights(t *testing.T) {
	store := newBookingStore(t)
	svc := newBookingService(store)
	ctx := context.Background()
	departed := addFlight(t, store, 1, "SMALL1", now.Add(-time.Hour), 100)
	cancelled := addFlight(t, store, 1, "SMALL1", now.Add(96*time.Hour), 100)
	require.NoError(t, store.WithTx(ctx, func(tx ledger.Tx) error {
		return tx.SetFlightStatus(ctx, cancelled, models.FlightCancelled)
	}))

	for _, id := range []int64{departed, cancelled} {
		_, err := svc.Book(ctx, request(id, "Economy-1-A"))
		assert.True(t, apperr.Is(err, apperr.PolicyViolation), "flight %d: %v", id, err)
	}
	_, err := svc.Book(ctx, request(999, "Economy-1-A"))
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestCancelByCustomerChargesFee(t *testing.T) {
	store := newBookingStore(t)
	svc := newBookingService(store)
	ctx := context.Background()
	flight := addFlight(t, store, 1, "SMALL1", now.Add(40*time.Hour), 250)

	conf, err := svc.Book(ctx, request(flight, "Economy-1-A", "Economy-1-B"))
	require.NoError(t, err)
	require.Equal(t, models.Dollars(500), conf.Total)

	res, err := svc.CancelByCustomer(ctx, conf.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.Dollars(25), res.Fee)
	assert.Equal(t, "Booking cancelled. A 5% fee ($25.00) was charged.", res.Message)

	b := bookingOf(t, store, conf.BookingID)
	assert.Equal(t, models.BookingCancelledClient, b.Status)
	assert.Equal(t, models.Dollars(25), b.Total)

	_, err = svc.CancelByCustomer(ctx, conf.BookingID)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.PolicyViolation))
	assert.Equal(t, "This booking is already cancelled.", apperr.Message(err))
	assert.Equal(t, models.Dollars(25), bookingOf(t, store, conf.BookingID).Total, "no second fee")

	seats, err := svc.SeatMap(ctx, flight)
	require.NoError(t, err)
	assert.Empty(t, seats.Cabins[0].Occupied, "cancelled seats are released")
}

func TestCancelByCustomerWindow(t *testing.T) {
	store := newBookingStore(t)
	svc := newBookingService(store)
	ctx := context.Background()
	soon := addFlight(t, store, 1, "SMALL1", now.Add(35*time.Hour+59*time.Minute), 100)
	edge := addFlight(t, store, 1, "LARGE1", now.Add(36*time.Hour), 100)

	a, err := svc.Book(ctx, request(soon, "Economy-1-A"))
	require.NoError(t, err)
	b, err := svc.Book(ctx, request(edge, "Economy-1-A"))
	require.NoError(t, err)

	_, err = svc.CancelByCustomer(ctx, a.BookingID)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.PolicyViolation))
	assert.Equal(t, models.BookingConfirmed, bookingOf(t, store, a.BookingID).Status)

	_, err = svc.CancelByCustomer(ctx, b.BookingID)
	assert.NoError(t, err, "exactly 36 hours out is still allowed")

	_, err = svc.CancelByCustomer(ctx, 4242)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestSearchSuggestsNearestDate(t *testing.T) {
	store := newBookingStore(t)
	svc := newBookingService(store)
	ctx := context.Background()
	addFlight(t, store, 1, "SMALL1", time.Date(2030, 6, 10, 8, 0, 0, 0, time.UTC), 120)
	addFlight(t, store, 1, "LARGE1", time.Date(2030, 6, 10, 18, 0, 0, 0, time.UTC), 90)
	addFlight(t, store, 1, "SMALL1", time.Date(2030, 6, 4, 8, 0, 0, 0, time.UTC), 100)

	res, err := svc.Search(ctx, SearchQuery{Date: "2030-06-10", Origin: "Tel Aviv", Destination: "Athens"})
	require.NoError(t, err)
	require.Len(t, res.Flights, 2)
	assert.Empty(t, res.Suggestion)
	assert.Equal(t, models.Dollars(120), res.Flights[0].MinFare)
	assert.Equal(t, models.Dollars(90), res.Flights[1].MinFare)

	res, err = svc.Search(ctx, SearchQuery{Date: "2030-06-06", Origin: "Tel Aviv", Destination: "Athens"})
	require.NoError(t, err)
	assert.Empty(t, res.Flights)
	assert.Equal(t, "2030-06-04", res.Suggestion)

	res, err = svc.Search(ctx, SearchQuery{Date: "2030-06-06", Origin: "Tel Aviv", Destination: "Athens", After: true})
	require.NoError(t, err)
	assert.Equal(t, "2030-06-10", res.Suggestion)

	res, err = svc.Search(ctx, SearchQuery{Date: "2030-06-06", Origin: "Athens", Destination: "Tel Aviv"})
	require.NoError(t, err)
	assert.Empty(t, res.Suggestion)

	_, err = svc.Search(ctx, SearchQuery{Date: "10/06/2030"})
	assert.True(t, apperr.Is(err, apperr.Malformed))
}

func TestSeatMapAndDestinations(t *testing.T) {
	store := newBookingStore(t)
	svc := newBookingService(store)
	ctx := context.Background()
	flight := addFlight(t, store, 1, "LARGE1", now.Add(72*time.Hour), 100)
	_, err := svc.Book(ctx, request(flight, "Business-2-D"))
	require.NoError(t, err)

	m, err := svc.SeatMap(ctx, flight)
	require.NoError(t, err)
	require.Len(t, m.Cabins, 2)
	assert.Equal(t, models.CabinEconomy, m.Cabins[0].Class)
	assert.Equal(t, []string{"A", "B", "C", "D", "E", "F"}, m.Cabins[0].Letters)
	assert.Equal(t, models.Dollars(100), m.Cabins[0].Fare)
	assert.Equal(t, models.Dollars(300), m.Cabins[1].Fare)
	assert.Equal(t, []string{"Business-2-D"}, m.Cabins[1].Occupied)

	_, err = svc.SeatMap(ctx, 999)
	assert.True(t, apperr.Is(err, apperr.NotFound))

	dests, err := svc.Destinations(ctx)
	require.NoError(t, err)
	var cities []string
	for _, a := range dests {
		cities = append(cities, a.City)
	}
	assert.Equal(t, []string{"Athens", "Berlin", "Tel Aviv"}, cities)
}

func TestHistoryGroups(t *testing.T) {
	store := newBookingStore(t)
	ctx := context.Background()
	early := NewService(store, Options{Now: func() time.Time { return now.Add(-240 * time.Hour) }}, nil, nil)
	svc := newBookingService(store)

	past := addFlight(t, store, 1, "SMALL1", now.Add(-48*time.Hour), 100)
	future := addFlight(t, store, 1, "LARGE1", now.Add(96*time.Hour), 100)
	dropped := addFlight(t, store, 2, "SMALL1", now.Add(120*time.Hour), 100)

	done, err := early.Book(ctx, request(past, "Economy-1-A"))
	require.NoError(t, err)
	up, err := svc.Book(ctx, request(future, "Economy-1-A"))
	require.NoError(t, err)
	mine, err := svc.Book(ctx, request(future, "Economy-1-B"))
	require.NoError(t, err)
	_, err = svc.CancelByCustomer(ctx, mine.BookingID)
	require.NoError(t, err)
	sys, err := svc.Book(ctx, request(dropped, "Economy-1-A"))
	require.NoError(t, err)
	require.NoError(t, store.WithTx(ctx, func(tx ledger.Tx) error {
		return tx.SetBookingStatus(ctx, sys.BookingID, models.BookingCancelledSystem, sys.Total)
	}))
	other := request(future, "Economy-2-A")
	other.Email = "someone@else.com"
	_, err = svc.Book(ctx, other)
	require.NoError(t, err)

	h, err := svc.History(ctx, " dana@example.com ")
	require.NoError(t, err)
	ids := func(list []models.BookingDetail) []int64 {
		out := []int64{}
		for _, d := range list {
			out = append(out, d.ID)
		}
		return out
	}
	assert.Equal(t, []int64{up.BookingID}, ids(h.Upcoming))
	assert.Equal(t, []int64{done.BookingID}, ids(h.Completed))
	assert.Equal(t, []int64{mine.BookingID}, ids(h.CancelledByClient))
	assert.Equal(t, []int64{sys.BookingID}, ids(h.CancelledBySystem))
	require.Len(t, h.Upcoming[0].Tickets, 1)
	assert.Equal(t, "Athens", h.Upcoming[0].DestinationCity)

	_, err = svc.History(ctx, "")
	assert.True(t, apperr.Is(err, apperr.Malformed))
}
