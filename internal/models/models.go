package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Airport struct {
	Code    string `json:"code" db:"airport_code"`
	Name    string `json:"name" db:"airport_name"`
	City    string `json:"city" db:"city"`
	Country string `json:"country" db:"country"`
}

type Route struct {
	ID          int64  `json:"id" db:"id_route"`
	Origin      string `json:"origin" db:"origin_code"`
	Destination string `json:"destination" db:"destination_code"`
	Duration    HMS    `json:"duration" db:"duration"`
}

// Arrival derives the landing instant of a flight on this route.
func (r Route) Arrival(departure time.Time) time.Time {
	return departure.Add(time.Duration(r.Duration))
}

type FlightStatus string

const (
	FlightScheduled FlightStatus = "Scheduled"
	FlightCancelled FlightStatus = "Cancelled"
	FlightCompleted FlightStatus = "Completed"
)

type Flight struct {
	ID        int64        `json:"id" db:"id_flight"`
	RouteID   int64        `json:"route_id" db:"id_route"`
	PlaneID   string       `json:"plane_id" db:"id_plane"`
	Departure time.Time    `json:"departure" db:"departure_time"`
	Status    FlightStatus `json:"status" db:"flight_status"`
	ManagerID string       `json:"manager_id" db:"managers_id_worker"`
}

// FlightView is a flight joined with its route and cheapest fare, as shown
// in search results and on the manager dashboard.
type FlightView struct {
	Flight
	OriginCode      string    `json:"origin_code" db:"origin_code"`
	OriginCity      string    `json:"origin_city" db:"origin_city"`
	DestinationCode string    `json:"destination_code" db:"destination_code"`
	DestinationCity string    `json:"destination_city" db:"destination_city"`
	Duration        HMS       `json:"duration" db:"duration"`
	PlaneSize       PlaneSize `json:"plane_size" db:"plane_size"`
	MinFare         Money     `json:"min_fare" db:"min_price"`
	Passengers      int       `json:"passengers" db:"passenger_count"`
}

func (v FlightView) Arrival() time.Time {
	return v.Departure.Add(time.Duration(v.Duration))
}

type PlaneSize string

const (
	PlaneSmall PlaneSize = "Small"
	PlaneLarge PlaneSize = "Large"
)

type CabinClass string

const (
	CabinEconomy  CabinClass = "Economy"
	CabinBusiness CabinClass = "Business"
)

// sizeCabins lists the cabins each aircraft size carries.
var sizeCabins = map[PlaneSize][]CabinClass{
	PlaneSmall: {CabinEconomy},
	PlaneLarge: {CabinEconomy, CabinBusiness},
}

// Cabins returns the cabin classes an aircraft of this size supports.
func (s PlaneSize) Cabins() []CabinClass {
	return sizeCabins[s]
}

func (s PlaneSize) Supports(c CabinClass) bool {
	for _, have := range sizeCabins[s] {
		if have == c {
			return true
		}
	}
	return false
}

func (s PlaneSize) Valid() bool {
	_, ok := sizeCabins[s]
	return ok
}

type CabinLayout struct {
	Class CabinClass `json:"class" db:"class_type"`
	Rows  int        `json:"rows" db:"num_rows"`
	Cols  int        `json:"cols" db:"num_cols"`
}

// Letters returns the seat letters of one row, starting at A.
func (l CabinLayout) Letters() []string {
	out := make([]string, 0, l.Cols)
	for i := 0; i < l.Cols && i < 26; i++ {
		out = append(out, string(rune('A'+i)))
	}
	return out
}

func (l CabinLayout) Contains(s Seat) bool {
	if s.Class != l.Class || s.Row < 1 || s.Row > l.Rows || len(s.Letter) != 1 {
		return false
	}
	idx := int(s.Letter[0] - 'A')
	return idx >= 0 && idx < l.Cols
}

type Plane struct {
	ID           string        `json:"id" db:"id_plane"`
	Manufacturer string        `json:"manufacturer" db:"manufacturer"`
	Size         PlaneSize     `json:"size" db:"size"`
	PurchaseDate time.Time     `json:"purchase_date" db:"purchase_date"`
	Cabins       []CabinLayout `json:"cabins" db:"-"`
}

// Layout returns the dimensions of the given cabin, if the plane has it.
func (p Plane) Layout(c CabinClass) (CabinLayout, bool) {
	if !p.Size.Supports(c) {
		return CabinLayout{}, false
	}
	for _, l := range p.Cabins {
		if l.Class == c {
			return l, true
		}
	}
	return CabinLayout{}, false
}

type CrewRole string

const (
	RolePilot     CrewRole = "pilot"
	RoleAttendant CrewRole = "attendant"
)

type CrewMember struct {
	ID        string   `json:"id" db:"id_worker"`
	Role      CrewRole `json:"role" db:"-"`
	FirstName string   `json:"first_name" db:"first_name"`
	LastName  string   `json:"last_name" db:"last_name"`
	LongHaul  bool     `json:"long_haul" db:"long_flights"`
}

func (c CrewMember) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// ResourceKind names the three schedulable resource pools.
type ResourceKind string

const (
	KindPlane     ResourceKind = "plane"
	KindPilot     ResourceKind = "pilot"
	KindAttendant ResourceKind = "attendant"
)

// Assignment is one flight in a resource's history: the flight's timing and
// where it lands.
type Assignment struct {
	ResourceID  string       `json:"resource_id" db:"resource_id"`
	FlightID    int64        `json:"flight_id" db:"id_flight"`
	Departure   time.Time    `json:"departure" db:"departure_time"`
	Duration    HMS          `json:"duration" db:"duration"`
	Destination string       `json:"destination" db:"destination_code"`
	Status      FlightStatus `json:"status" db:"flight_status"`
}

func (a Assignment) Arrival() time.Time {
	return a.Departure.Add(time.Duration(a.Duration))
}

type Fare struct {
	FlightID int64      `json:"flight_id" db:"id_flight"`
	Class    CabinClass `json:"class" db:"class_type"`
	Price    Money      `json:"price" db:"price"`
}

type BookingStatus string

const (
	BookingConfirmed       BookingStatus = "Confirmed"
	BookingCompleted       BookingStatus = "Completed"
	BookingCancelledClient BookingStatus = "Cancelled_Client"
	BookingCancelledSystem BookingStatus = "Cancelled_System"
)

func (s BookingStatus) Cancelled() bool {
	return s == BookingCancelledClient || s == BookingCancelledSystem
}

type Booking struct {
	ID         int64         `json:"id" db:"id_booking"`
	Email      string        `json:"email" db:"customers_email"`
	Registered bool          `json:"registered" db:"registered"`
	FlightID   int64         `json:"flight_id" db:"id_flight"`
	BookedAt   time.Time     `json:"booked_at" db:"booking_date"`
	Status     BookingStatus `json:"status" db:"status"`
	Total      Money         `json:"total_price" db:"total_price"`
}

type Seat struct {
	Class  CabinClass `json:"class" db:"class_type"`
	Row    int        `json:"row" db:"row_number"`
	Letter string     `json:"letter" db:"seat_letter"`
}

// String renders the seat as Class-Row-Letter, e.g. "Business-1-A".
func (s Seat) String() string {
	return fmt.Sprintf("%s-%d-%s", s.Class, s.Row, s.Letter)
}

// ParseSeat reads the Class-Row-Letter form produced by Seat.String.
func ParseSeat(str string) (Seat, error) {
	parts := strings.Split(strings.TrimSpace(str), "-")
	if len(parts) != 3 {
		return Seat{}, fmt.Errorf("seat %q: want Class-Row-Letter", str)
	}
	var class CabinClass
	switch strings.ToLower(parts[0]) {
	case "economy":
		class = CabinEconomy
	case "business":
		class = CabinBusiness
	default:
		return Seat{}, fmt.Errorf("seat %q: unknown cabin %q", str, parts[0])
	}
	row, err := strconv.Atoi(parts[1])
	if err != nil || row < 1 {
		return Seat{}, fmt.Errorf("seat %q: bad row", str)
	}
	letter := strings.ToUpper(parts[2])
	if len(letter) != 1 || letter[0] < 'A' || letter[0] > 'Z' {
		return Seat{}, fmt.Errorf("seat %q: bad letter", str)
	}
	return Seat{Class: class, Row: row, Letter: letter}, nil
}

type Ticket struct {
	BookingID     int64  `json:"booking_id" db:"id_booking"`
	FlightID      int64  `json:"flight_id" db:"id_flight"`
	PlaneID       string `json:"plane_id" db:"id_plane"`
	PassengerName string `json:"passenger_name" db:"passenger_name"`
	Passport      string `json:"passport" db:"passenger_passport"`
	Seat
}

// BookingDetail is a booking joined with its flight and tickets.
type BookingDetail struct {
	Booking
	Departure       time.Time `json:"departure"`
	OriginCity      string    `json:"origin_city"`
	DestinationCity string    `json:"destination_city"`
	Tickets         []Ticket  `json:"tickets"`
}
