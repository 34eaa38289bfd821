package monitor

import (
	"log"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/OpenTransitTools/tramcast/business/data/gtfs"
)

const (
	// firstStopWaitWindow is how far back an earlier trip's arrival at a first stop is considered, milliseconds
	firstStopWaitWindow = int64(60 * 60 * 1000)
	// minimumGap separates repaired stop times, milliseconds
	minimumGap = int64(1000)
)

// maxFraction is the largest fractional progress, just below the next whole stop
var maxFraction = math.Nextafter(1, 0)

// estimateVehicles runs the per-trip estimation pipeline over trips at time (epoch milliseconds)
func estimateVehicles(log *log.Logger,
	catalog *gtfs.Catalog,
	trips []gtfs.TripSchedule,
	updates TripUpdates,
	time int64,
	metrics *Metrics) []gtfs.Vehicle {

	missingStations := make(map[string]bool)
	vehicles := make([]gtfs.Vehicle, 0, len(trips))
	for _, trip := range trips {
		if len(trip.StopTimes) == 0 {
			continue
		}
		update := updates.Lookup(trip.TripId, gtfs.ServiceDateKey(trip.ServiceDate))
		vehicle := buildVehicle(catalog, trip, update, missingStations)
		predictStopTimes(&vehicle)
		vehicles = append(vehicles, vehicle)
	}
	if len(missingStations) > 0 {
		log.Printf("warning: no station for stop ids %s", strings.Join(sortedKeys(missingStations), ","))
	}

	repairFirstStopWaits(vehicles)
	for i := range vehicles {
		repairInnerStops(&vehicles[i])
		clampDwellTimes(&vehicles[i])
		updateProgress(log, &vehicles[i], time, metrics)
	}
	return vehicles
}

// buildVehicle joins trip's stop times with their stations and with update. Stops without a station keep the
// stop id as name and a zero public code.
func buildVehicle(catalog *gtfs.Catalog,
	trip gtfs.TripSchedule,
	update *gtfs.TripUpdate,
	missingStations map[string]bool) gtfs.Vehicle {

	vehicle := gtfs.Vehicle{
		TripId:      trip.TripId,
		TripName:    trip.TripName,
		TripStatus:  gtfs.TripScheduled,
		Headsign:    trip.Headsign,
		Direction:   trip.Direction,
		RouteId:     trip.RouteId,
		RouteName:   trip.RouteName,
		ServiceId:   trip.ServiceId,
		ServiceDate: gtfs.ServiceDateKey(trip.ServiceDate),
		Stops:       make([]gtfs.Stop, 0, len(trip.StopTimes)),
	}
	if update != nil && update.TripStatus != "" {
		vehicle.TripStatus = update.TripStatus
	}
	for _, st := range trip.StopTimes {
		stop := gtfs.Stop{
			StopId:       st.StopId,
			StopName:     st.StopId,
			StopSequence: st.StopSequence,
			StopStatus:   gtfs.StopScheduled,
			Arrival:      gtfs.MakeScheduleTime(trip.ServiceDate, st.ArrivalTime).UnixMilli(),
			Departure:    gtfs.MakeScheduleTime(trip.ServiceDate, st.DepartureTime).UnixMilli(),
		}
		if station, ok := catalog.StationForStop(st.StopId); ok {
			stop.StopDiva = station.Diva
			stop.StopName = station.Name
		} else {
			missingStations[st.StopId] = true
		}
		if su := update.StopUpdate(st.StopId); su != nil {
			if su.StopStatus != "" {
				stop.StopStatus = su.StopStatus
			}
			stop.ArrivalDelay = su.ArrivalDelay
			stop.DepartureDelay = su.DepartureDelay
		}
		vehicle.Stops = append(vehicle.Stops, stop)
	}
	return vehicle
}

// predictStopTimes applies delays to scheduled times, a departure is never before its arrival
func predictStopTimes(v *gtfs.Vehicle) {
	for i := range v.Stops {
		s := &v.Stops[i]
		s.PredArrival = s.Arrival + int64(s.ArrivalDelay)*1000
		s.PredDeparture = s.Departure + int64(s.DepartureDelay)*1000
	}
	clampDwellTimes(v)
}

func clampDwellTimes(v *gtfs.Vehicle) {
	for i := range v.Stops {
		if v.Stops[i].PredDeparture < v.Stops[i].PredArrival {
			v.Stops[i].PredDeparture = v.Stops[i].PredArrival
		}
	}
}

// stopVisit is one trip's predicted presence at a station
type stopVisit struct {
	vehicle   int
	arrival   int64
	departure int64
}

type routeStation struct {
	routeName string
	station   string
}

func stationIdentity(s *gtfs.Stop) string {
	if s.StopDiva != 0 {
		return "diva:" + strconv.Itoa(s.StopDiva)
	}
	return s.StopId
}

// repairFirstStopWaits holds each trip at its first stop until an earlier trip of the same route, still at that
// station, has departed. Visits are indexed before any repair.
func repairFirstStopWaits(vehicles []gtfs.Vehicle) {
	visits := make(map[routeStation][]stopVisit)
	for i := range vehicles {
		if vehicles[i].IsCanceled() {
			continue
		}
		for j := range vehicles[i].Stops {
			s := &vehicles[i].Stops[j]
			key := routeStation{routeName: vehicles[i].RouteName, station: stationIdentity(s)}
			visits[key] = append(visits[key], stopVisit{vehicle: i, arrival: s.PredArrival, departure: s.PredDeparture})
		}
	}

	for i := range vehicles {
		first := &vehicles[i].Stops[0]
		key := routeStation{routeName: vehicles[i].RouteName, station: stationIdentity(first)}
		arrival := first.PredArrival
		latestDeparture := int64(0)
		found := false
		for _, visit := range visits[key] {
			if visit.vehicle == i || visit.arrival >= arrival || arrival-visit.arrival > firstStopWaitWindow {
				continue
			}
			if visit.departure < arrival {
				continue
			}
			if !found || visit.departure > latestDeparture {
				latestDeparture = visit.departure
				found = true
			}
		}
		if !found {
			continue
		}
		first.PredArrival = latestDeparture + minimumGap
		if first.PredDeparture < first.PredArrival {
			first.PredDeparture = first.PredArrival
		}
	}
}

// repairInnerStops replaces inverted times between consecutive stops, next arriving before the stop departs,
// with a 90/10 interpolation of the stop's arrival and the next stop's departure. Skipped stops are left as
// they are.
func repairInnerStops(v *gtfs.Vehicle) {
	for i := 0; i+1 < len(v.Stops); i++ {
		s, next := &v.Stops[i], &v.Stops[i+1]
		if s.StopStatus == gtfs.StopSkipped || next.StopStatus == gtfs.StopSkipped {
			continue
		}
		if next.PredArrival > s.PredDeparture {
			continue
		}
		departure := int64(math.Round(0.9*float64(s.PredArrival) + 0.1*float64(next.PredDeparture)))
		arrival := int64(math.Round(0.1*float64(s.PredArrival) + 0.9*float64(next.PredDeparture)))
		if arrival <= departure {
			s.PredDeparture = s.PredArrival
			next.PredArrival = s.PredArrival + minimumGap
			if next.PredDeparture < next.PredArrival {
				next.PredDeparture = next.PredArrival
			}
			continue
		}
		s.PredDeparture = departure
		next.PredArrival = arrival
	}
}

// updateProgress sets the arrived and departed flags of each stop at time, the vehicle's progress, delay and
// active state
func updateProgress(log *log.Logger, v *gtfs.Vehicle, time int64, metrics *Metrics) {
	reached := -1
	for i := range v.Stops {
		s := &v.Stops[i]
		s.Arrived = s.PredArrival <= time
		s.Departed = s.PredDeparture <= time
		if s.Arrived {
			reached = i
		}
	}

	if reached < 0 {
		v.Progress = float64(v.Stops[0].StopSequence)
	} else {
		v.Progress = float64(v.Stops[reached].StopSequence)
		if reached+1 < len(v.Stops) && v.Stops[reached].Departed {
			previous := v.Stops[reached].PredDeparture
			next := v.Stops[reached+1].PredArrival
			fraction := 1.0
			if next > previous {
				fraction = float64(time-previous) / float64(next-previous)
			}
			clamped := math.Max(0, math.Min(fraction, maxFraction))
			if clamped != fraction {
				log.Printf("warning: trip %s progress fraction %f between stops %d and %d clamped", v.TripId,
					fraction, v.Stops[reached].StopSequence, v.Stops[reached+1].StopSequence)
				metrics.progressClamped()
			}
			v.Progress += clamped
		}
	}

	last := &v.Stops[len(v.Stops)-1]
	if reached+1 < len(v.Stops) {
		v.Delay = v.Stops[reached+1].ArrivalDelay
	} else {
		v.Delay = last.DepartureDelay
	}

	v.Active = !v.IsCanceled() && time >= v.Stops[0].PredArrival && time <= last.PredDeparture
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
