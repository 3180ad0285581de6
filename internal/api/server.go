package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"airline_scheduler/internal/apperr"
	"airline_scheduler/internal/booking"
	"airline_scheduler/internal/fleet"
	"airline_scheduler/internal/ledger"
	"airline_scheduler/internal/models"
	"airline_scheduler/internal/scheduling"
)

// Deps are the services the HTTP layer fronts.
type Deps struct {
	Store   ledger.Store
	Engine  *scheduling.Engine
	Policy  scheduling.Policy
	Fleet   *fleet.Service
	Booking *booking.Service
	Logger  *zap.Logger
}

type Server struct {
	Deps
}

// New constructs the HTTP router wired to the scheduling and booking
// services.
func New(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Policy == (scheduling.Policy{}) {
		deps.Policy = scheduling.DefaultPolicy
	}
	s := &Server{Deps: deps}
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/destinations", s.handleDestinations)
	r.Get("/routes", s.handleRoutes)
	r.Get("/flights", s.handleSearch)
	r.Get("/flights/{id}/seats", s.handleSeatMap)
	r.Post("/availability", s.handleAvailability)
	r.Post("/flights", s.handleCommitFlight)
	r.Post("/flights/{id}/cancel", s.handleCancelFlight)
	r.Get("/manager/flights", s.handleDashboard)
	r.Post("/bookings", s.handleBook)
	r.Get("/bookings", s.handleHistory)
	r.Post("/bookings/{id}/cancel", s.handleCancelBooking)

	return r
}

func (s *Server) handleDestinations(w http.ResponseWriter, r *http.Request) {
	list, err := s.Booking.Destinations(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	var routes []models.Route
	err := s.Store.View(r.Context(), func(rd ledger.Reader) error {
		var err error
		routes, err = rd.Routes(r.Context())
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, routes)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	after, _ := strconv.ParseBool(q.Get("after"))
	res, err := s.Booking.Search(r.Context(), booking.SearchQuery{
		Date:        q.Get("date"),
		Origin:      q.Get("origin"),
		Destination: q.Get("destination"),
		After:       after,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSeatMap(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	m, err := s.Booking.SeatMap(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type availabilityRequest struct {
	RouteID   int64  `json:"route_id"`
	Departure string `json:"departure"`
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if !s.decode(w, r, &req) {
		return
	}
	dep, err := scheduling.ParseDeparture(req.Departure)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	report, err := s.Engine.CheckAvailability(r.Context(), req.RouteID, dep)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Policy.Decide(report))
}

func (s *Server) handleCommitFlight(w http.ResponseWriter, r *http.Request) {
	var req fleet.CommitRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, err := s.Fleet.CommitFlight(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"flight_id": id})
}

func (s *Server) handleCancelFlight(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	res, err := s.Fleet.CancelFlight(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.Fleet.Dashboard(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	var req booking.Request
	if !s.decode(w, r, &req) {
		return
	}
	conf, err := s.Booking.Book(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, conf)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	h, err := s.Booking.History(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	res, err := s.Booking.CancelByCustomer(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ===== helpers =====

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		msg := "bad request"
		if !errors.Is(err, io.EOF) {
			msg = "bad request: " + err.Error()
		}
		writeJSONError(w, http.StatusBadRequest, msg)
		return false
	}
	return true
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSONError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// writeError renders err with the status of its kind. Internal failures are
// logged and their detail withheld from the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	msg := apperr.Message(err)
	if kind == apperr.Malformed {
		msg = err.Error()
	}
	if kind == apperr.Internal || kind == apperr.TransactionFailure {
		s.Logger.Error("request failed",
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		if kind == apperr.Internal {
			msg = ""
		}
	}
	writeJSONError(w, kind.HTTPStatus(), strings.TrimSpace(msg))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	if msg == "" {
		msg = http.StatusText(status)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
