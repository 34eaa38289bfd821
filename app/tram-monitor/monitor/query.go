package monitor

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/OpenTransitTools/tramcast/business/data/gtfs"
	"github.com/OpenTransitTools/tramcast/foundation/clock"
)

// QueryOptions selects and filters the vehicles returned by Engine.Query
type QueryOptions struct {
	// Time is the query time in epoch milliseconds, zero for now
	Time int64
	// TimeOffset shifts the query time, milliseconds
	TimeOffset int64
	ActiveOnly bool
	// Route keeps only vehicles of this public line name
	Route string
	// Station keeps only vehicles stopping at this public station code
	Station int
	// StaticOnly skips the realtime feed
	StaticOnly bool
	// Tracker, when set, keeps progress from decreasing between queries
	Tracker *ProgressTracker
}

// CatalogSource provides the schedule catalog, the trips operating on a day and historical records
type CatalogSource interface {
	Catalog(ctx context.Context) (*gtfs.Catalog, error)
	DayTrips(ctx context.Context, date time.Time) ([]gtfs.TripSchedule, error)
	HistoricalStops(ctx context.Context, date string) ([]gtfs.HistoricalStop, error)
	Location() *time.Location
}

// Engine answers vehicle queries
type Engine struct {
	log        *log.Logger
	catalogs   CatalogSource
	reconciler *Reconciler
	clock      clock.Clock
	metrics    *Metrics

	mu               sync.Mutex
	projectorCatalog *gtfs.Catalog
	projector        *Projector
}

// NewEngine creates an Engine. A nil reconciler answers every query from the schedule alone.
func NewEngine(log *log.Logger,
	catalogs CatalogSource,
	reconciler *Reconciler,
	clock clock.Clock,
	metrics *Metrics) *Engine {
	return &Engine{
		log:        log,
		catalogs:   catalogs,
		reconciler: reconciler,
		clock:      clock,
		metrics:    metrics,
	}
}

// queryTime resolves the query time of opts in epoch milliseconds
func (e *Engine) queryTime(opts QueryOptions) int64 {
	at := opts.Time
	if at == 0 {
		at = e.clock.NowUnixMilli()
	}
	return at + opts.TimeOffset
}

// Query estimates the vehicles of the trips operating at the query time, ordered by numeric trip name.
// Only catalog failures are returned as errors.
func (e *Engine) Query(ctx context.Context, opts QueryOptions) ([]gtfs.Vehicle, error) {
	start := time.Now()
	defer func() {
		e.metrics.observeQuery(time.Since(start))
	}()

	at := e.queryTime(opts)
	catalog, err := e.catalogs.Catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading schedule catalog: %w", err)
	}
	date := time.UnixMilli(at).In(e.catalogs.Location())
	trips, err := e.catalogs.DayTrips(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("selecting trips for %s: %w", date.Format("2006-01-02"), err)
	}

	updates := TripUpdates{}
	if !opts.StaticOnly && e.reconciler != nil {
		updates = e.reconciler.Reconcile(ctx, trips)
	}

	vehicles := filterVehicles(estimateVehicles(e.log, catalog, trips, updates, at, e.metrics), opts)
	if opts.Tracker != nil {
		opts.Tracker.Apply(vehicles, time.UnixMilli(at))
	}
	e.project(catalog, vehicles)
	sortByTripName(vehicles)
	return vehicles, nil
}

// project sets the coordinates of vehicles using the geometry of catalog
func (e *Engine) project(catalog *gtfs.Catalog, vehicles []gtfs.Vehicle) {
	projector := e.projectorFor(catalog)
	for i := range vehicles {
		vehicles[i].Coords = projector.Project(&vehicles[i])
	}
}

// projectorFor returns the Projector for catalog's lines, built once per catalog
func (e *Engine) projectorFor(catalog *gtfs.Catalog) *Projector {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.projector == nil || e.projectorCatalog != catalog {
		e.projector = NewProjector(e.log, catalog.Lines, e.metrics)
		e.projectorCatalog = catalog
	}
	return e.projector
}

// filterVehicles applies the active, route and station filters of opts
func filterVehicles(vehicles []gtfs.Vehicle, opts QueryOptions) []gtfs.Vehicle {
	filtered := vehicles[:0]
	for _, v := range vehicles {
		if opts.ActiveOnly && !v.Active {
			continue
		}
		if opts.Route != "" && v.RouteName != opts.Route {
			continue
		}
		if opts.Station != 0 && !v.ServesStation(opts.Station) {
			continue
		}
		filtered = append(filtered, v)
	}
	return filtered
}

// sortByTripName orders vehicles by the numeric value of their trip name, names that are not numbers last
func sortByTripName(vehicles []gtfs.Vehicle) {
	sort.SliceStable(vehicles, func(i, j int) bool {
		a, aErr := strconv.ParseFloat(vehicles[i].TripName, 64)
		b, bErr := strconv.ParseFloat(vehicles[j].TripName, 64)
		switch {
		case aErr == nil && bErr == nil:
			return a < b
		case aErr == nil:
			return true
		case bErr == nil:
			return false
		}
		return vehicles[i].TripName < vehicles[j].TripName
	})
}
