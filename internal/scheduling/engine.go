// Package scheduling decides whether a flight can be flown: where every
// plane and crew member stands at the proposed departure, whether they are
// already flying, and whether enough of them qualify.
package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"airline_scheduler/internal/ledger"
	"airline_scheduler/internal/models"
)

const (
	DefaultHomeBase        = "TLV"
	DefaultLongHaulMinutes = 360
	defaultRouteCacheSize  = 256
)

type Options struct {
	// HomeBase is where a resource with no earlier flight is assumed to be.
	HomeBase string
	// LongHaulMinutes is the duration a route must exceed to be long-haul.
	LongHaulMinutes int
	RouteCacheSize  int
}

func (o Options) withDefaults() Options {
	if o.HomeBase == "" {
		o.HomeBase = DefaultHomeBase
	}
	if o.LongHaulMinutes <= 0 {
		o.LongHaulMinutes = DefaultLongHaulMinutes
	}
	if o.RouteCacheSize <= 0 {
		o.RouteCacheSize = defaultRouteCacheSize
	}
	return o
}

// Engine builds feasibility reports from the ledger. It keeps no state
// between checks except a cache of routes, which never change once flown.
type Engine struct {
	store  ledger.Store
	opts   Options
	routes *lru.Cache[int64, models.Route]
	log    *zap.Logger
}

func NewEngine(store ledger.Store, opts Options, log *zap.Logger) (*Engine, error) {
	opts = opts.withDefaults()
	cache, err := lru.New[int64, models.Route](opts.RouteCacheSize)
	if err != nil {
		return nil, fmt.Errorf("route cache: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: store, opts: opts, routes: cache, log: log}, nil
}

func (e *Engine) HomeBase() string {
	return e.opts.HomeBase
}

// IsLongHaul classifies a route duration. Seconds are ignored.
func (e *Engine) IsLongHaul(d models.HMS) bool {
	return d.Minutes() > e.opts.LongHaulMinutes
}

// CheckAvailability reports, for every plane and crew member, whether they
// could fly the route at departure. A missing route is a NotFound error;
// no available resources is a normal report.
func (e *Engine) CheckAvailability(ctx context.Context, routeID int64, departure time.Time) (*Report, error) {
	var report *Report
	err := e.store.View(ctx, func(r ledger.Reader) error {
		var err error
		report, err = e.Evaluate(ctx, r, routeID, departure)
		return err
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (e *Engine) route(ctx context.Context, r ledger.Reader, id int64) (models.Route, error) {
	if rt, ok := e.routes.Get(id); ok {
		return rt, nil
	}
	rt, err := r.Route(ctx, id)
	if err != nil {
		return models.Route{}, err
	}
	e.routes.Add(id, rt)
	return rt, nil
}

type rosters struct {
	planes     []models.Plane
	pilots     []models.CrewMember
	attendants []models.CrewMember
	history    map[models.ResourceKind]map[string][]models.Assignment
}

func (e *Engine) loadRosters(ctx context.Context, r ledger.Reader) (*rosters, error) {
	out := &rosters{history: make(map[models.ResourceKind]map[string][]models.Assignment)}
	kinds := []models.ResourceKind{models.KindPlane, models.KindPilot, models.KindAttendant}
	histories := make([][]models.Assignment, len(kinds))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		out.planes, err = r.Planes(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		out.pilots, err = r.Crew(gctx, models.RolePilot)
		return err
	})
	g.Go(func() error {
		var err error
		out.attendants, err = r.Crew(gctx, models.RoleAttendant)
		return err
	})
	for i, kind := range kinds {
		i, kind := i, kind
		g.Go(func() error {
			var err error
			histories[i], err = r.Assignments(gctx, kind)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, kind := range kinds {
		byID := make(map[string][]models.Assignment)
		for _, a := range histories[i] {
			byID[a.ResourceID] = append(byID[a.ResourceID], a)
		}
		out.history[kind] = byID
	}
	return out, nil
}

// Evaluate builds a report using r. Commits call it inside their
// transaction to re-check what an earlier report promised.
func (e *Engine) Evaluate(ctx context.Context, r ledger.Reader, routeID int64, departure time.Time) (*Report, error) {
	rt, err := e.route(ctx, r, routeID)
	if err != nil {
		return nil, err
	}
	ros, err := e.loadRosters(ctx, r)
	if err != nil {
		return nil, err
	}

	arrival := rt.Arrival(departure)
	proposed := Interval{Start: departure, End: arrival}
	report := &Report{
		RouteID:     rt.ID,
		Origin:      rt.Origin,
		Destination: rt.Destination,
		Departure:   departure,
		Arrival:     arrival,
		ArrivalText: arrival.Format(ArrivalLayout),
		LongHaul:    e.IsLongHaul(rt.Duration),
		Planes:      []ResourceStatus{},
		Pilots:      []ResourceStatus{},
		Attendants:  []ResourceStatus{},
	}

	for _, p := range ros.planes {
		if report.LongHaul && p.Size != models.PlaneLarge {
			continue
		}
		hist := ros.history[models.KindPlane][p.ID]
		st := ResourceStatus{
			ID:       p.ID,
			Name:     p.Manufacturer,
			Size:     p.Size,
			Location: CurrentLocation(hist, departure, e.opts.HomeBase),
			Busy:     Busy(hist, proposed),
			Eligible: true,
		}
		atOrigin := strings.EqualFold(st.Location, rt.Origin)
		st.Valid = !st.Busy && atOrigin
		switch {
		case st.Busy:
			st.Reason = reasonPlaneBusy
		case !atOrigin:
			st.Reason = locatedIn(st.Location)
		}
		report.Planes = append(report.Planes, st)
	}

	report.Pilots = e.crewStatuses(ros.pilots, ros.history[models.KindPilot], rt, proposed, report.LongHaul)
	report.Attendants = e.crewStatuses(ros.attendants, ros.history[models.KindAttendant], rt, proposed, report.LongHaul)

	e.log.Debug("availability evaluated",
		zap.Int64("route_id", rt.ID),
		zap.Time("departure", departure),
		zap.Bool("long_haul", report.LongHaul),
		zap.Int("valid_planes", countValid(report.Planes)),
		zap.Int("valid_pilots", countValid(report.Pilots)),
		zap.Int("valid_attendants", countValid(report.Attendants)),
	)
	return report, nil
}

func (e *Engine) crewStatuses(crew []models.CrewMember, history map[string][]models.Assignment, rt models.Route, proposed Interval, longHaul bool) []ResourceStatus {
	out := make([]ResourceStatus, 0, len(crew))
	for _, c := range crew {
		hist := history[c.ID]
		st := ResourceStatus{
			ID:       c.ID,
			Name:     c.FullName(),
			Location: CurrentLocation(hist, proposed.Start, e.opts.HomeBase),
			Busy:     Busy(hist, proposed),
			Eligible: !longHaul || c.LongHaul,
		}
		atOrigin := strings.EqualFold(st.Location, rt.Origin)
		st.Valid = !st.Busy && atOrigin && st.Eligible
		switch {
		case st.Busy:
			st.Reason = reasonCrewBusy
		case !atOrigin:
			st.Reason = locatedIn(st.Location)
		case !st.Eligible:
			st.Reason = reasonNotQualified
		}
		out = append(out, st)
	}
	return out
}
