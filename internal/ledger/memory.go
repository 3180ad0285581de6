package ledger

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"airline_scheduler/internal/apperr"
	"airline_scheduler/internal/models"
)

// CrewLink records one crew member working one flight.
type CrewLink struct {
	WorkerID string `json:"worker_id"`
	FlightID int64  `json:"flight_id"`
}

// Snapshot is the whole content of a MemoryStore. It is also the on-disk
// save format.
type Snapshot struct {
	Airports       []models.Airport             `json:"airports"`
	Routes         map[int64]models.Route       `json:"routes"`
	Planes         map[string]models.Plane      `json:"planes"`
	Pilots         map[string]models.CrewMember `json:"pilots"`
	Attendants     map[string]models.CrewMember `json:"attendants"`
	Flights        map[int64]models.Flight      `json:"flights"`
	PilotLinks     []CrewLink                   `json:"pilots_in_flights"`
	AttendantLinks []CrewLink                   `json:"attendants_in_flights"`
	Fares          []models.Fare                `json:"fares"`
	Bookings       map[int64]models.Booking     `json:"bookings"`
	Tickets        []models.Ticket              `json:"tickets"`
	NextFlightID   int64                        `json:"next_flight_id"`
	NextBookingID  int64                        `json:"next_booking_id"`
}

func newSnapshot() *Snapshot {
	return &Snapshot{
		Routes:        make(map[int64]models.Route),
		Planes:        make(map[string]models.Plane),
		Pilots:        make(map[string]models.CrewMember),
		Attendants:    make(map[string]models.CrewMember),
		Flights:       make(map[int64]models.Flight),
		Bookings:      make(map[int64]models.Booking),
		NextFlightID:  1,
		NextBookingID: DefaultFirstBookingID,
	}
}

// normalize fills in maps and counters a decoded snapshot may lack.
func (s *Snapshot) normalize() {
	if s.Routes == nil {
		s.Routes = make(map[int64]models.Route)
	}
	if s.Planes == nil {
		s.Planes = make(map[string]models.Plane)
	}
	if s.Pilots == nil {
		s.Pilots = make(map[string]models.CrewMember)
	}
	if s.Attendants == nil {
		s.Attendants = make(map[string]models.CrewMember)
	}
	if s.Flights == nil {
		s.Flights = make(map[int64]models.Flight)
	}
	if s.Bookings == nil {
		s.Bookings = make(map[int64]models.Booking)
	}
	for id, c := range s.Pilots {
		c.Role = models.RolePilot
		s.Pilots[id] = c
	}
	for id, c := range s.Attendants {
		c.Role = models.RoleAttendant
		s.Attendants[id] = c
	}
	for id := range s.Flights {
		if id >= s.NextFlightID {
			s.NextFlightID = id + 1
		}
	}
	if s.NextBookingID < DefaultFirstBookingID {
		s.NextBookingID = DefaultFirstBookingID
	}
	for id := range s.Bookings {
		if id >= s.NextBookingID {
			s.NextBookingID = id + 1
		}
	}
}

func (s *Snapshot) clone() *Snapshot {
	out := &Snapshot{
		Airports:       slices.Clone(s.Airports),
		Routes:         make(map[int64]models.Route, len(s.Routes)),
		Planes:         make(map[string]models.Plane, len(s.Planes)),
		Pilots:         make(map[string]models.CrewMember, len(s.Pilots)),
		Attendants:     make(map[string]models.CrewMember, len(s.Attendants)),
		Flights:        make(map[int64]models.Flight, len(s.Flights)),
		PilotLinks:     slices.Clone(s.PilotLinks),
		AttendantLinks: slices.Clone(s.AttendantLinks),
		Fares:          slices.Clone(s.Fares),
		Bookings:       make(map[int64]models.Booking, len(s.Bookings)),
		Tickets:        slices.Clone(s.Tickets),
		NextFlightID:   s.NextFlightID,
		NextBookingID:  s.NextBookingID,
	}
	for k, v := range s.Routes {
		out.Routes[k] = v
	}
	for k, v := range s.Planes {
		v.Cabins = slices.Clone(v.Cabins)
		out.Planes[k] = v
	}
	for k, v := range s.Pilots {
		out.Pilots[k] = v
	}
	for k, v := range s.Attendants {
		out.Attendants[k] = v
	}
	for k, v := range s.Flights {
		out.Flights[k] = v
	}
	for k, v := range s.Bookings {
		out.Bookings[k] = v
	}
	return out
}

// MemoryStore keeps the ledger in process memory. Transactions run against
// a private copy that replaces the live state only when they succeed.
type MemoryStore struct {
	mu       sync.RWMutex
	st       *Snapshot
	savePath string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{st: newSnapshot()}
}

// SetSavePath configures where Close writes the snapshot. Empty disables it.
func (m *MemoryStore) SetSavePath(path string) {
	m.savePath = path
}

func (m *MemoryStore) SetAirports(list []models.Airport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.Airports = slices.Clone(list)
}

func (m *MemoryStore) AddRoute(r models.Route) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.Routes[r.ID] = r
}

func (m *MemoryStore) AddPlane(p models.Plane) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.Planes[p.ID] = p
}

func (m *MemoryStore) AddCrew(c models.CrewMember) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.Role == models.RolePilot {
		m.st.Pilots[c.ID] = c
	} else {
		c.Role = models.RoleAttendant
		m.st.Attendants[c.ID] = c
	}
}

func (m *MemoryStore) View(ctx context.Context, fn func(r Reader) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&memTx{st: m.st})
}

func (m *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.st.clone()
	if err := fn(&memTx{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return apperr.Wrap(err, apperr.TransactionFailure, "transaction aborted")
	}
	m.st = work
	return nil
}

func (m *MemoryStore) Close() error {
	if m.savePath == "" {
		return nil
	}
	return m.Save(m.savePath)
}

// memTx reads and writes one Snapshot. Locking is the caller's job.
type memTx struct {
	st *Snapshot
}

func (t *memTx) airport(code string) models.Airport {
	for _, a := range t.st.Airports {
		if strings.EqualFold(a.Code, code) {
			return a
		}
	}
	return models.Airport{Code: code}
}

func (t *memTx) Airports(ctx context.Context) ([]models.Airport, error) {
	out := slices.Clone(t.st.Airports)
	sort.Slice(out, func(i, j int) bool { return out[i].City < out[j].City })
	return out, nil
}

func (t *memTx) Routes(ctx context.Context) ([]models.Route, error) {
	out := make([]models.Route, 0, len(t.st.Routes))
	for _, r := range t.st.Routes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) Route(ctx context.Context, id int64) (models.Route, error) {
	r, ok := t.st.Routes[id]
	if !ok {
		return models.Route{}, apperr.Newf(apperr.NotFound, "route %d not found", id)
	}
	return r, nil
}

func (t *memTx) Planes(ctx context.Context) ([]models.Plane, error) {
	out := make([]models.Plane, 0, len(t.st.Planes))
	for _, p := range t.st.Planes {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) Plane(ctx context.Context, id string) (models.Plane, error) {
	p, ok := t.st.Planes[id]
	if !ok {
		return models.Plane{}, apperr.Newf(apperr.NotFound, "plane %s not found", id)
	}
	return p, nil
}

func (t *memTx) roster(role models.CrewRole) map[string]models.CrewMember {
	if role == models.RolePilot {
		return t.st.Pilots
	}
	return t.st.Attendants
}

func (t *memTx) links(role models.CrewRole) *[]CrewLink {
	if role == models.RolePilot {
		return &t.st.PilotLinks
	}
	return &t.st.AttendantLinks
}

func (t *memTx) Crew(ctx context.Context, role models.CrewRole) ([]models.CrewMember, error) {
	roster := t.roster(role)
	out := make([]models.CrewMember, 0, len(roster))
	for _, c := range roster {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) assignment(resourceID string, f models.Flight) models.Assignment {
	r := t.st.Routes[f.RouteID]
	return models.Assignment{
		ResourceID:  resourceID,
		FlightID:    f.ID,
		Departure:   f.Departure,
		Duration:    r.Duration,
		Destination: r.Destination,
		Status:      f.Status,
	}
}

func (t *memTx) Assignments(ctx context.Context, kind models.ResourceKind) ([]models.Assignment, error) {
	var out []models.Assignment
	switch kind {
	case models.KindPlane:
		for _, f := range t.st.Flights {
			out = append(out, t.assignment(f.PlaneID, f))
		}
	case models.KindPilot, models.KindAttendant:
		role := models.RolePilot
		if kind == models.KindAttendant {
			role = models.RoleAttendant
		}
		for _, l := range *t.links(role) {
			if f, ok := t.st.Flights[l.FlightID]; ok {
				out = append(out, t.assignment(l.WorkerID, f))
			}
		}
	default:
		return nil, apperr.Newf(apperr.Malformed, "unknown resource kind %q", kind)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Departure.Equal(out[j].Departure) {
			return out[i].Departure.Before(out[j].Departure)
		}
		return out[i].FlightID < out[j].FlightID
	})
	return out, nil
}

func (t *memTx) Flight(ctx context.Context, id int64) (models.Flight, error) {
	f, ok := t.st.Flights[id]
	if !ok {
		return models.Flight{}, apperr.Newf(apperr.NotFound, "flight %d not found", id)
	}
	return f, nil
}

func (t *memTx) view(f models.Flight) models.FlightView {
	r := t.st.Routes[f.RouteID]
	v := models.FlightView{
		Flight:          f,
		OriginCode:      r.Origin,
		OriginCity:      t.airport(r.Origin).City,
		DestinationCode: r.Destination,
		DestinationCity: t.airport(r.Destination).City,
		Duration:        r.Duration,
		PlaneSize:       t.st.Planes[f.PlaneID].Size,
	}
	first := true
	for _, fare := range t.st.Fares {
		if fare.FlightID == f.ID && (first || fare.Price < v.MinFare) {
			v.MinFare = fare.Price
			first = false
		}
	}
	for _, tk := range t.st.Tickets {
		if tk.FlightID == f.ID {
			v.Passengers++
		}
	}
	return v
}

func matchPlace(want, code, city string) bool {
	return want == "" || strings.EqualFold(want, code) || strings.EqualFold(want, city)
}

func (t *memTx) Flights(ctx context.Context, filter FlightFilter) ([]models.FlightView, error) {
	var out []models.FlightView
	for _, f := range t.st.Flights {
		if filter.ID != 0 && f.ID != filter.ID {
			continue
		}
		if filter.Status != "" && f.Status != filter.Status {
			continue
		}
		if filter.Date != "" && f.Departure.Format(time.DateOnly) != filter.Date {
			continue
		}
		v := t.view(f)
		if !matchPlace(filter.OriginCity, v.OriginCode, v.OriginCity) ||
			!matchPlace(filter.DestinationCity, v.DestinationCode, v.DestinationCity) {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Departure.Equal(out[j].Departure) {
			return out[i].Departure.Before(out[j].Departure)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *memTx) FlightCrew(ctx context.Context, flightID int64) ([]models.CrewMember, error) {
	var out []models.CrewMember
	for _, role := range []models.CrewRole{models.RolePilot, models.RoleAttendant} {
		roster := t.roster(role)
		for _, l := range *t.links(role) {
			if l.FlightID == flightID {
				if c, ok := roster[l.WorkerID]; ok {
					out = append(out, c)
				}
			}
		}
	}
	return out, nil
}

func (t *memTx) Fares(ctx context.Context, flightID int64) ([]models.Fare, error) {
	var out []models.Fare
	for _, f := range t.st.Fares {
		if f.FlightID == flightID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (t *memTx) OccupiedSeats(ctx context.Context, flightID int64) ([]models.Seat, error) {
	var out []models.Seat
	for _, tk := range t.st.Tickets {
		if tk.FlightID != flightID {
			continue
		}
		if b, ok := t.st.Bookings[tk.BookingID]; ok && b.Status == models.BookingConfirmed {
			out = append(out, tk.Seat)
		}
	}
	return out, nil
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func (t *memTx) NearestFlightDate(ctx context.Context, originCity, destCity string, target time.Time, after bool) (time.Time, bool, error) {
	targetDay := dayOf(target)
	var best time.Time
	var bestDist time.Duration
	found := false
	for _, f := range t.st.Flights {
		if f.Status == models.FlightCancelled {
			continue
		}
		v := t.view(f)
		if !strings.EqualFold(v.OriginCity, originCity) || !strings.EqualFold(v.DestinationCity, destCity) {
			continue
		}
		day := dayOf(f.Departure)
		var dist time.Duration
		if after {
			if day.Before(targetDay) {
				continue
			}
			dist = f.Departure.Sub(targetDay)
		} else {
			if day.Equal(targetDay) {
				continue
			}
			dist = day.Sub(targetDay)
			if dist < 0 {
				dist = -dist
			}
		}
		if !found || dist < bestDist || (dist == bestDist && f.Departure.Before(best)) {
			best, bestDist, found = f.Departure, dist, true
		}
	}
	if !found {
		return time.Time{}, false, nil
	}
	return dayOf(best), true, nil
}

func (t *memTx) Booking(ctx context.Context, id int64) (models.Booking, error) {
	b, ok := t.st.Bookings[id]
	if !ok {
		return models.Booking{}, apperr.Newf(apperr.NotFound, "booking %d not found", id)
	}
	return b, nil
}

func (t *memTx) BookingDetails(ctx context.Context, email string) ([]models.BookingDetail, error) {
	var out []models.BookingDetail
	for _, b := range t.st.Bookings {
		if !strings.EqualFold(b.Email, strings.TrimSpace(email)) {
			continue
		}
		d := models.BookingDetail{Booking: b}
		if f, ok := t.st.Flights[b.FlightID]; ok {
			v := t.view(f)
			d.Departure = f.Departure
			d.OriginCity = v.OriginCity
			d.DestinationCity = v.DestinationCity
		}
		for _, tk := range t.st.Tickets {
			if tk.BookingID == b.ID {
				d.Tickets = append(d.Tickets, tk)
			}
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Departure.Equal(out[j].Departure) {
			return out[i].Departure.After(out[j].Departure)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (t *memTx) BookingsOnFlight(ctx context.Context, flightID int64) ([]models.Booking, error) {
	seen := make(map[int64]bool)
	var out []models.Booking
	for _, tk := range t.st.Tickets {
		if tk.FlightID != flightID || seen[tk.BookingID] {
			continue
		}
		if b, ok := t.st.Bookings[tk.BookingID]; ok {
			seen[b.ID] = true
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) InsertFlight(ctx context.Context, f models.Flight) (int64, error) {
	if _, ok := t.st.Routes[f.RouteID]; !ok {
		return 0, apperr.Newf(apperr.NotFound, "route %d not found", f.RouteID)
	}
	if _, ok := t.st.Planes[f.PlaneID]; !ok {
		return 0, apperr.Newf(apperr.NotFound, "plane %s not found", f.PlaneID)
	}
	f.ID = t.st.NextFlightID
	t.st.NextFlightID++
	t.st.Flights[f.ID] = f
	return f.ID, nil
}

func (t *memTx) AssignCrew(ctx context.Context, flightID int64, role models.CrewRole, workerID string) error {
	if _, ok := t.st.Flights[flightID]; !ok {
		return apperr.Newf(apperr.NotFound, "flight %d not found", flightID)
	}
	if _, ok := t.roster(role)[workerID]; !ok {
		return apperr.Newf(apperr.NotFound, "%s %s not found", role, workerID)
	}
	links := t.links(role)
	for _, l := range *links {
		if l.FlightID == flightID && l.WorkerID == workerID {
			return apperr.Newf(apperr.Malformed, "%s %s already assigned to flight %d", role, workerID, flightID)
		}
	}
	*links = append(*links, CrewLink{WorkerID: workerID, FlightID: flightID})
	return nil
}

func (t *memTx) InsertFare(ctx context.Context, fare models.Fare) error {
	if _, ok := t.st.Flights[fare.FlightID]; !ok {
		return apperr.Newf(apperr.NotFound, "flight %d not found", fare.FlightID)
	}
	t.st.Fares = append(t.st.Fares, fare)
	return nil
}

func (t *memTx) SetFlightStatus(ctx context.Context, id int64, status models.FlightStatus) error {
	f, ok := t.st.Flights[id]
	if !ok {
		return apperr.Newf(apperr.NotFound, "flight %d not found", id)
	}
	f.Status = status
	t.st.Flights[id] = f
	return nil
}

func (t *memTx) CompleteDeparted(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	for id, f := range t.st.Flights {
		if f.Status == models.FlightScheduled && !f.Departure.After(now) {
			f.Status = models.FlightCompleted
			t.st.Flights[id] = f
			n++
		}
	}
	return n, nil
}

func (t *memTx) InsertBooking(ctx context.Context, b models.Booking) (int64, error) {
	if _, ok := t.st.Flights[b.FlightID]; !ok {
		return 0, apperr.Newf(apperr.NotFound, "flight %d not found", b.FlightID)
	}
	b.ID = t.st.NextBookingID
	t.st.NextBookingID++
	t.st.Bookings[b.ID] = b
	return b.ID, nil
}

func (t *memTx) InsertTicket(ctx context.Context, tk models.Ticket) error {
	if _, ok := t.st.Bookings[tk.BookingID]; !ok {
		return apperr.Newf(apperr.NotFound, "booking %d not found", tk.BookingID)
	}
	for _, other := range t.st.Tickets {
		if other.FlightID != tk.FlightID || other.Seat != tk.Seat {
			continue
		}
		if b := t.st.Bookings[other.BookingID]; b.Status == models.BookingConfirmed {
			return apperr.Newf(apperr.PolicyViolation, "seat %s already taken", tk.Seat)
		}
	}
	t.st.Tickets = append(t.st.Tickets, tk)
	return nil
}

func (t *memTx) SetBookingStatus(ctx context.Context, id int64, status models.BookingStatus, total models.Money) error {
	b, ok := t.st.Bookings[id]
	if !ok {
		return apperr.Newf(apperr.NotFound, "booking %d not found", id)
	}
	b.Status = status
	b.Total = total
	t.st.Bookings[id] = b
	return nil
}

// The store-wide write lock already covers the whole transaction.
func (t *memTx) LockResources(ctx context.Context, planeID string, crew map[models.CrewRole][]string) error {
	return nil
}

func (t *memTx) LockFlight(ctx context.Context, flightID int64) error {
	return nil
}
