package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"airline_scheduler/internal/apperr"
	"airline_scheduler/internal/models"
)

//go:embed schema.sql
var Schema string

const mysqlDuplicateEntry = 1062

// SQLStore is the ledger on a MySQL database.
type SQLStore struct {
	db *sqlx.DB
}

// OpenMySQL connects with the given DSN. Time parsing is always enabled.
func OpenMySQL(ctx context.Context, dsn string) (*SQLStore, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	db, err := sqlx.ConnectContext(ctx, "mysql", cfg.FormatDSN())
	if err != nil {
		return nil, err
	}
	return NewSQLStore(db), nil
}

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Migrate creates any missing tables.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(Schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) View(ctx context.Context, fn func(r Reader) error) error {
	return fn(&sqlTx{q: s.db})
}

func (s *SQLStore) WithTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Wrap(err, apperr.TransactionFailure, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(&sqlTx{q: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return apperr.Wrap(err, apperr.TransactionFailure, "failed to commit transaction")
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// sqlTx runs queries on a DB or a Tx. A Tx owns one connection, so queries
// are serialized.
type sqlTx struct {
	mu sync.Mutex
	q  sqlx.ExtContext
}

func (t *sqlTx) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := sqlx.SelectContext(ctx, t.q, dest, query, args...); err != nil {
		return apperr.Wrap(err, apperr.Internal, "ledger query failed")
	}
	return nil
}

// getOne returns sql.ErrNoRows unwrapped so callers can name what is missing.
func (t *sqlTx) getOne(ctx context.Context, dest any, query string, args ...any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	err := sqlx.GetContext(ctx, t.q, dest, query, args...)
	if err == nil || errors.Is(err, sql.ErrNoRows) {
		return err
	}
	return apperr.Wrap(err, apperr.Internal, "ledger query failed")
}

func (t *sqlTx) exec(ctx context.Context, what string, query string, args ...any) (sql.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	res, err := t.q.ExecContext(ctx, query, args...)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
			return nil, apperr.Wrap(err, apperr.PolicyViolation, what+": duplicate entry")
		}
		return nil, apperr.Wrap(err, apperr.TransactionFailure, what)
	}
	return res, nil
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Newf(apperr.NotFound, format, args...)
	}
	return err
}

func crewTables(role models.CrewRole) (roster, link string) {
	if role == models.RolePilot {
		return "pilots", "pilots_in_flights"
	}
	return "flight_attendants", "flight_attendants_in_flights"
}

func (t *sqlTx) Airports(ctx context.Context) ([]models.Airport, error) {
	var out []models.Airport
	err := t.selectAll(ctx, &out, `SELECT airport_code, airport_name, city, country FROM airports ORDER BY city`)
	return out, err
}

const routeColumns = `id_route, origin_code, destination_code, duration`

func (t *sqlTx) Routes(ctx context.Context) ([]models.Route, error) {
	var out []models.Route
	err := t.selectAll(ctx, &out, `SELECT `+routeColumns+` FROM routes ORDER BY id_route`)
	return out, err
}

func (t *sqlTx) Route(ctx context.Context, id int64) (models.Route, error) {
	var r models.Route
	err := t.getOne(ctx, &r, `SELECT `+routeColumns+` FROM routes WHERE id_route = ?`, id)
	return r, notFound(err, "route %d not found", id)
}

type cabinRow struct {
	PlaneID string `db:"id_plane"`
	models.CabinLayout
}

func (t *sqlTx) Planes(ctx context.Context) ([]models.Plane, error) {
	var planes []models.Plane
	if err := t.selectAll(ctx, &planes, `SELECT id_plane, manufacturer, size, purchase_date FROM planes ORDER BY id_plane`); err != nil {
		return nil, err
	}
	var cabins []cabinRow
	if err := t.selectAll(ctx, &cabins, `SELECT id_plane, class_type, num_rows, num_cols FROM classes`); err != nil {
		return nil, err
	}
	byPlane := make(map[string][]models.CabinLayout)
	for _, c := range cabins {
		byPlane[c.PlaneID] = append(byPlane[c.PlaneID], c.CabinLayout)
	}
	for i := range planes {
		planes[i].Cabins = byPlane[planes[i].ID]
	}
	return planes, nil
}

func (t *sqlTx) Plane(ctx context.Context, id string) (models.Plane, error) {
	var p models.Plane
	err := t.getOne(ctx, &p, `SELECT id_plane, manufacturer, size, purchase_date FROM planes WHERE id_plane = ?`, id)
	if err != nil {
		return p, notFound(err, "plane %s not found", id)
	}
	err = t.selectAll(ctx, &p.Cabins, `SELECT class_type, num_rows, num_cols FROM classes WHERE id_plane = ?`, id)
	return p, err
}

func (t *sqlTx) Crew(ctx context.Context, role models.CrewRole) ([]models.CrewMember, error) {
	roster, _ := crewTables(role)
	var out []models.CrewMember
	if err := t.selectAll(ctx, &out, `SELECT id_worker, first_name, last_name, long_flights FROM `+roster+` ORDER BY id_worker`); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Role = role
	}
	return out, nil
}

const assignmentColumns = `f.id_flight, f.departure_time, r.duration, r.destination_code, f.flight_status`

func (t *sqlTx) Assignments(ctx context.Context, kind models.ResourceKind) ([]models.Assignment, error) {
	var query string
	switch kind {
	case models.KindPlane:
		query = `SELECT f.id_plane AS resource_id, ` + assignmentColumns + `
			FROM flights f
			JOIN routes r ON f.id_route = r.id_route
			ORDER BY f.departure_time, f.id_flight`
	case models.KindPilot, models.KindAttendant:
		role := models.RolePilot
		if kind == models.KindAttendant {
			role = models.RoleAttendant
		}
		_, link := crewTables(role)
		query = `SELECT l.id_worker AS resource_id, ` + assignmentColumns + `
			FROM ` + link + ` l
			JOIN flights f ON l.id_flight = f.id_flight
			JOIN routes r ON f.id_route = r.id_route
			ORDER BY f.departure_time, f.id_flight`
	default:
		return nil, apperr.Newf(apperr.Malformed, "unknown resource kind %q", kind)
	}
	var out []models.Assignment
	err := t.selectAll(ctx, &out, query)
	return out, err
}

const flightColumns = `id_flight, id_route, id_plane, departure_time, flight_status, managers_id_worker`

func (t *sqlTx) Flight(ctx context.Context, id int64) (models.Flight, error) {
	var f models.Flight
	err := t.getOne(ctx, &f, `SELECT `+flightColumns+` FROM flights WHERE id_flight = ?`, id)
	return f, notFound(err, "flight %d not found", id)
}

func (t *sqlTx) Flights(ctx context.Context, filter FlightFilter) ([]models.FlightView, error) {
	query := `SELECT f.id_flight, f.id_route, f.id_plane, f.departure_time, f.flight_status, f.managers_id_worker,
			r.origin_code, COALESCE(a1.city, '') AS origin_city,
			r.destination_code, COALESCE(a2.city, '') AS destination_city,
			r.duration, p.size AS plane_size,
			COALESCE(MIN(fp.price), 0) AS min_price,
			(SELECT COUNT(*) FROM tickets t WHERE t.id_flight = f.id_flight) AS passenger_count
		FROM flights f
		JOIN routes r ON f.id_route = r.id_route
		JOIN planes p ON f.id_plane = p.id_plane
		LEFT JOIN airports a1 ON r.origin_code = a1.airport_code
		LEFT JOIN airports a2 ON r.destination_code = a2.airport_code
		LEFT JOIN flight_pricing fp ON f.id_flight = fp.id_flight`
	var conds []string
	var args []any
	if filter.ID != 0 {
		conds = append(conds, "f.id_flight = ?")
		args = append(args, filter.ID)
	}
	if filter.Date != "" {
		conds = append(conds, "DATE(f.departure_time) = ?")
		args = append(args, filter.Date)
	}
	if filter.OriginCity != "" {
		conds = append(conds, "(a1.city = ? OR r.origin_code = ?)")
		args = append(args, filter.OriginCity, filter.OriginCity)
	}
	if filter.DestinationCity != "" {
		conds = append(conds, "(a2.city = ? OR r.destination_code = ?)")
		args = append(args, filter.DestinationCity, filter.DestinationCity)
	}
	if filter.Status != "" {
		conds = append(conds, "f.flight_status = ?")
		args = append(args, filter.Status)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " GROUP BY f.id_flight ORDER BY f.departure_time, f.id_flight"

	var out []models.FlightView
	err := t.selectAll(ctx, &out, query, args...)
	return out, err
}

func (t *sqlTx) FlightCrew(ctx context.Context, flightID int64) ([]models.CrewMember, error) {
	var out []models.CrewMember
	for _, role := range []models.CrewRole{models.RolePilot, models.RoleAttendant} {
		roster, link := crewTables(role)
		var members []models.CrewMember
		err := t.selectAll(ctx, &members, `SELECT w.id_worker, w.first_name, w.last_name, w.long_flights
			FROM `+roster+` w
			JOIN `+link+` l ON w.id_worker = l.id_worker
			WHERE l.id_flight = ?`, flightID)
		if err != nil {
			return nil, err
		}
		for i := range members {
			members[i].Role = role
		}
		out = append(out, members...)
	}
	return out, nil
}

func (t *sqlTx) Fares(ctx context.Context, flightID int64) ([]models.Fare, error) {
	var out []models.Fare
	err := t.selectAll(ctx, &out, `SELECT id_flight, class_type, price FROM flight_pricing WHERE id_flight = ?`, flightID)
	return out, err
}

func (t *sqlTx) OccupiedSeats(ctx context.Context, flightID int64) ([]models.Seat, error) {
	var out []models.Seat
	err := t.selectAll(ctx, &out, "SELECT t.class_type, t.`row_number`, t.seat_letter "+
		"FROM tickets t JOIN bookings b ON b.id_booking = t.id_booking "+
		"WHERE t.id_flight = ? AND b.status = ?", flightID, models.BookingConfirmed)
	return out, err
}

func (t *sqlTx) NearestFlightDate(ctx context.Context, originCity, destCity string, target time.Time, after bool) (time.Time, bool, error) {
	query := `SELECT DATE(f.departure_time) AS flight_date
		FROM flights f
		JOIN routes r ON f.id_route = r.id_route
		JOIN airports a1 ON r.origin_code = a1.airport_code
		JOIN airports a2 ON r.destination_code = a2.airport_code
		WHERE a1.city = ? AND a2.city = ? AND f.flight_status != ?`
	day := target.Format(time.DateOnly)
	args := []any{originCity, destCity, models.FlightCancelled, day}
	if after {
		query += ` AND DATE(f.departure_time) >= ? ORDER BY f.departure_time ASC LIMIT 1`
	} else {
		query += ` AND DATE(f.departure_time) != ? ORDER BY ABS(DATEDIFF(f.departure_time, ?)) ASC, f.departure_time ASC LIMIT 1`
		args = append(args, day)
	}
	var d time.Time
	err := t.getOne(ctx, &d, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return d, true, nil
}

const bookingColumns = `b.id_booking, b.customers_email, b.registered, b.id_flight, b.booking_date, b.status, b.total_price`

func (t *sqlTx) Booking(ctx context.Context, id int64) (models.Booking, error) {
	var b models.Booking
	err := t.getOne(ctx, &b, `SELECT `+bookingColumns+` FROM bookings b WHERE b.id_booking = ?`, id)
	return b, notFound(err, "booking %d not found", id)
}

type bookingDetailRow struct {
	models.Booking
	Departure       time.Time `db:"departure_time"`
	OriginCity      string    `db:"origin_city"`
	DestinationCity string    `db:"destination_city"`
}

const ticketColumns = "t.id_booking, t.id_flight, t.id_plane, t.passenger_name, t.passenger_passport, t.class_type, t.`row_number`, t.seat_letter"

func (t *sqlTx) BookingDetails(ctx context.Context, email string) ([]models.BookingDetail, error) {
	email = strings.TrimSpace(email)
	var rows []bookingDetailRow
	err := t.selectAll(ctx, &rows, `SELECT `+bookingColumns+`, f.departure_time,
			COALESCE(a1.city, '') AS origin_city, COALESCE(a2.city, '') AS destination_city
		FROM bookings b
		JOIN flights f ON b.id_flight = f.id_flight
		JOIN routes r ON f.id_route = r.id_route
		LEFT JOIN airports a1 ON r.origin_code = a1.airport_code
		LEFT JOIN airports a2 ON r.destination_code = a2.airport_code
		WHERE b.customers_email = ?
		ORDER BY f.departure_time DESC, b.id_booking DESC`, email)
	if err != nil {
		return nil, err
	}
	var tickets []models.Ticket
	err = t.selectAll(ctx, &tickets, "SELECT "+ticketColumns+
		" FROM tickets t JOIN bookings b ON b.id_booking = t.id_booking WHERE b.customers_email = ?", email)
	if err != nil {
		return nil, err
	}
	byBooking := make(map[int64][]models.Ticket)
	for _, tk := range tickets {
		byBooking[tk.BookingID] = append(byBooking[tk.BookingID], tk)
	}
	out := make([]models.BookingDetail, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.BookingDetail{
			Booking:         r.Booking,
			Departure:       r.Departure,
			OriginCity:      r.OriginCity,
			DestinationCity: r.DestinationCity,
			Tickets:         byBooking[r.ID],
		})
	}
	return out, nil
}

func (t *sqlTx) BookingsOnFlight(ctx context.Context, flightID int64) ([]models.Booking, error) {
	var out []models.Booking
	err := t.selectAll(ctx, &out, `SELECT DISTINCT `+bookingColumns+`
		FROM bookings b
		JOIN tickets t ON b.id_booking = t.id_booking
		WHERE t.id_flight = ?
		ORDER BY b.id_booking`, flightID)
	return out, err
}

func (t *sqlTx) InsertFlight(ctx context.Context, f models.Flight) (int64, error) {
	res, err := t.exec(ctx, "insert flight",
		`INSERT INTO flights (id_route, id_plane, departure_time, flight_status, managers_id_worker) VALUES (?, ?, ?, ?, ?)`,
		f.RouteID, f.PlaneID, f.Departure, f.Status, f.ManagerID)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperr.Wrap(err, apperr.TransactionFailure, "insert flight")
	}
	return id, nil
}

func (t *sqlTx) AssignCrew(ctx context.Context, flightID int64, role models.CrewRole, workerID string) error {
	_, link := crewTables(role)
	_, err := t.exec(ctx, "assign "+string(role),
		`INSERT INTO `+link+` (id_worker, id_flight) VALUES (?, ?)`, workerID, flightID)
	return err
}

func (t *sqlTx) InsertFare(ctx context.Context, fare models.Fare) error {
	_, err := t.exec(ctx, "insert fare",
		`INSERT INTO flight_pricing (id_flight, price, class_type) VALUES (?, ?, ?)`,
		fare.FlightID, fare.Price, fare.Class)
	return err
}

func (t *sqlTx) SetFlightStatus(ctx context.Context, id int64, status models.FlightStatus) error {
	_, err := t.exec(ctx, "update flight status",
		`UPDATE flights SET flight_status = ? WHERE id_flight = ?`, status, id)
	return err
}

func (t *sqlTx) CompleteDeparted(ctx context.Context, now time.Time) (int64, error) {
	res, err := t.exec(ctx, "complete departed flights",
		`UPDATE flights SET flight_status = ? WHERE flight_status = ? AND departure_time <= ?`,
		models.FlightCompleted, models.FlightScheduled, now)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Wrap(err, apperr.TransactionFailure, "complete departed flights")
	}
	return n, nil
}

func (t *sqlTx) InsertBooking(ctx context.Context, b models.Booking) (int64, error) {
	res, err := t.exec(ctx, "insert booking",
		`INSERT INTO bookings (customers_email, registered, id_flight, booking_date, status, total_price) VALUES (?, ?, ?, ?, ?, ?)`,
		b.Email, b.Registered, b.FlightID, b.BookedAt, b.Status, b.Total)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperr.Wrap(err, apperr.TransactionFailure, "insert booking")
	}
	return id, nil
}

func (t *sqlTx) InsertTicket(ctx context.Context, tk models.Ticket) error {
	_, err := t.exec(ctx, "insert ticket",
		"INSERT INTO tickets (id_booking, id_flight, id_plane, passenger_name, passenger_passport, class_type, `row_number`, seat_letter) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		tk.BookingID, tk.FlightID, tk.PlaneID, tk.PassengerName, tk.Passport, tk.Class, tk.Row, tk.Letter)
	if apperr.Is(err, apperr.PolicyViolation) {
		return apperr.Wrap(errors.Unwrap(err), apperr.PolicyViolation, "seat "+tk.Seat.String()+" already taken")
	}
	return err
}

func (t *sqlTx) SetBookingStatus(ctx context.Context, id int64, status models.BookingStatus, total models.Money) error {
	_, err := t.exec(ctx, "update booking status",
		`UPDATE bookings SET status = ?, total_price = ? WHERE id_booking = ?`, status, total, id)
	return err
}

func (t *sqlTx) LockResources(ctx context.Context, planeID string, crew map[models.CrewRole][]string) error {
	var locked []string
	if err := t.selectAll(ctx, &locked, `SELECT id_plane FROM planes WHERE id_plane = ? FOR UPDATE`, planeID); err != nil {
		return err
	}
	for _, role := range []models.CrewRole{models.RolePilot, models.RoleAttendant} {
		ids := crew[role]
		if len(ids) == 0 {
			continue
		}
		roster, _ := crewTables(role)
		query, args, err := sqlx.In(`SELECT id_worker FROM `+roster+` WHERE id_worker IN (?) FOR UPDATE`, ids)
		if err != nil {
			return apperr.Wrap(err, apperr.Internal, "build lock query")
		}
		locked = locked[:0]
		if err := t.selectAll(ctx, &locked, t.q.Rebind(query), args...); err != nil {
			return err
		}
	}
	return nil
}

func (t *sqlTx) LockFlight(ctx context.Context, flightID int64) error {
	var locked []int64
	return t.selectAll(ctx, &locked, `SELECT id_flight FROM flights WHERE id_flight = ? FOR UPDATE`, flightID)
}
