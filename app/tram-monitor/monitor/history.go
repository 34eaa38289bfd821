package monitor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/OpenTransitTools/tramcast/business/data/gtfs"
)

// Replay estimates vehicles from the actual-times records of date (YYYY-MM-DD), ordered by progress, furthest
// first. Without an explicit opts.Time the current time of day on date is used. Only opts.ActiveOnly and the
// route and station filters apply.
// Recorded times are not held back at first stops, trams recorded at a terminus together stay there together.
// Inner repair, progress and projection are the same as for Query.
func (e *Engine) Replay(ctx context.Context, date string, opts QueryOptions) ([]gtfs.Vehicle, error) {
	catalog, err := e.catalogs.Catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading schedule catalog: %w", err)
	}
	records, err := e.catalogs.HistoricalStops(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("loading historical data: %w", err)
	}
	at, err := e.replayTime(date, opts)
	if err != nil {
		return nil, err
	}

	vehicles := buildHistoricalVehicles(catalog, records, e.catalogs.Location())
	for i := range vehicles {
		repairInnerStops(&vehicles[i])
		clampDwellTimes(&vehicles[i])
		updateProgress(e.log, &vehicles[i], at, e.metrics)
	}
	vehicles = filterVehicles(vehicles, opts)
	e.project(catalog, vehicles)
	sort.SliceStable(vehicles, func(i, j int) bool {
		return vehicles[i].Progress > vehicles[j].Progress
	})
	return vehicles, nil
}

// replayTime resolves the query time of a replay in epoch milliseconds
func (e *Engine) replayTime(date string, opts QueryOptions) (int64, error) {
	if opts.Time != 0 {
		return opts.Time + opts.TimeOffset, nil
	}
	loc := e.catalogs.Location()
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return 0, fmt.Errorf("invalid historical date %q: %w", date, err)
	}
	now := e.clock.Now().In(loc)
	at := time.Date(day.Year(), day.Month(), day.Day(), now.Hour(), now.Minute(), now.Second(), 0, loc)
	return at.UnixMilli() + opts.TimeOffset, nil
}

// buildHistoricalVehicles groups records by trip in order of first appearance. Stops are ordered by scheduled
// time and numbered from 1, predicted times are the actual times.
func buildHistoricalVehicles(catalog *gtfs.Catalog, records []gtfs.HistoricalStop, loc *time.Location) []gtfs.Vehicle {
	var order []string
	byTrip := make(map[string][]gtfs.HistoricalStop)
	for _, r := range records {
		if _, present := byTrip[r.TripId]; !present {
			order = append(order, r.TripId)
		}
		byTrip[r.TripId] = append(byTrip[r.TripId], r)
	}

	vehicles := make([]gtfs.Vehicle, 0, len(order))
	for _, tripId := range order {
		tripRecords := byTrip[tripId]
		first := tripRecords[0]
		vehicle := gtfs.Vehicle{
			TripId:     tripId,
			TripName:   first.TripName,
			TripStatus: historicalTripStatus(tripRecords),
			RouteId:    first.RouteId,
			RouteName:  first.RouteName,
			Stops:      make([]gtfs.Stop, 0, len(tripRecords)),
		}
		for _, r := range tripRecords {
			vehicle.Stops = append(vehicle.Stops, historicalStop(catalog, r))
		}
		sort.SliceStable(vehicle.Stops, func(i, j int) bool {
			return vehicle.Stops[i].Arrival < vehicle.Stops[j].Arrival
		})
		for i := range vehicle.Stops {
			vehicle.Stops[i].StopSequence = i + 1
		}
		if firstArrival := vehicle.Stops[0].Arrival; firstArrival != 0 {
			vehicle.ServiceDate = gtfs.ServiceDateKey(time.UnixMilli(firstArrival).In(loc))
		}
		vehicles = append(vehicles, vehicle)
	}
	return vehicles
}

func historicalStop(catalog *gtfs.Catalog, r gtfs.HistoricalStop) gtfs.Stop {
	arrival := firstNonZero(r.Arrival, r.Departure)
	departure := firstNonZero(r.Departure, r.Arrival)
	stop := gtfs.Stop{
		StopId:        r.StopId,
		StopName:      r.StopName,
		StopStatus:    gtfs.StopScheduled,
		Arrival:       arrival,
		Departure:     departure,
		PredArrival:   firstNonZero(r.ArrivalActual, r.DepartureActual, arrival),
		PredDeparture: firstNonZero(r.DepartureActual, r.ArrivalActual, departure),
	}
	if r.ArrivalActual != 0 && r.Arrival != 0 {
		stop.ArrivalDelay = int((r.ArrivalActual - r.Arrival) / 1000)
	}
	if r.DepartureActual != 0 && r.Departure != 0 {
		stop.DepartureDelay = int((r.DepartureActual - r.Departure) / 1000)
	}
	if station, ok := catalog.StationForStop(r.StopId); ok {
		stop.StopDiva = station.Diva
		stop.StopName = station.Name
	}
	return stop
}

// historicalTripStatus marks a trip canceled when every record is canceled and added when any record is added
func historicalTripStatus(records []gtfs.HistoricalStop) string {
	canceled, added := true, false
	for _, r := range records {
		canceled = canceled && r.Canceled
		added = added || r.Added
	}
	switch {
	case canceled:
		return gtfs.TripCanceled
	case added:
		return gtfs.TripAdded
	}
	return gtfs.TripScheduled
}

func firstNonZero(values ...int64) int64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
