package catalogmanager

import (
	"log"
	"sort"

	"github.com/OpenTransitTools/tramcast/business/data/gtfs"
)

// catalogBuilder collects the gtfs records of the configured route type and agencies while the archive is read.
// Files must be read in dependency order: routes, trips, stop times then calendars.
type catalogBuilder struct {
	log       *log.Logger
	routeType int
	agencyIds map[string]bool

	routes     map[string]gtfs.Route
	routeOrder []string
	trips      map[string]gtfs.Trip
	tripOrder  []string
	stopTimes  map[string][]gtfs.StopTime
	services   map[string]bool

	calendars     []gtfs.Calendar
	calendarDates []gtfs.CalendarDate
}

func newCatalogBuilder(log *log.Logger, routeType int, agencyIds []string) *catalogBuilder {
	agencies := make(map[string]bool, len(agencyIds))
	for _, id := range agencyIds {
		agencies[id] = true
	}
	return &catalogBuilder{
		log:       log,
		routeType: routeType,
		agencyIds: agencies,
		routes:    make(map[string]gtfs.Route),
		trips:     make(map[string]gtfs.Trip),
		stopTimes: make(map[string][]gtfs.StopTime),
		services:  make(map[string]bool),
	}
}

// addRoute keeps routes of the configured type operated by one of the configured agencies, any agency if none are configured
func (b *catalogBuilder) addRoute(route gtfs.Route) {
	if route.RouteType != b.routeType {
		return
	}
	if len(b.agencyIds) > 0 && !b.agencyIds[route.AgencyId] {
		return
	}
	if _, present := b.routes[route.RouteId]; !present {
		b.routeOrder = append(b.routeOrder, route.RouteId)
	}
	b.routes[route.RouteId] = route
}

func (b *catalogBuilder) addTrip(trip gtfs.Trip) {
	if _, present := b.routes[trip.RouteId]; !present {
		return
	}
	if _, present := b.trips[trip.TripId]; !present {
		b.tripOrder = append(b.tripOrder, trip.TripId)
	}
	b.trips[trip.TripId] = trip
	b.services[trip.ServiceId] = true
}

func (b *catalogBuilder) addStopTimes(stopTimes []gtfs.StopTime) {
	for _, st := range stopTimes {
		if _, present := b.trips[st.TripId]; !present {
			continue
		}
		b.stopTimes[st.TripId] = append(b.stopTimes[st.TripId], st)
	}
}

func (b *catalogBuilder) addCalendar(calendar gtfs.Calendar) {
	if b.services[calendar.ServiceId] {
		b.calendars = append(b.calendars, calendar)
	}
}

func (b *catalogBuilder) addCalendarDate(calendarDate gtfs.CalendarDate) {
	if b.services[calendarDate.ServiceId] {
		b.calendarDates = append(b.calendarDates, calendarDate)
	}
}

// buildRoutes returns kept routes in file order
func (b *catalogBuilder) buildRoutes() []gtfs.Route {
	routes := make([]gtfs.Route, 0, len(b.routeOrder))
	for _, id := range b.routeOrder {
		routes = append(routes, b.routes[id])
	}
	return routes
}

// buildTripSchedules joins kept trips with their route and stop times ordered by stop sequence.
// Trips without stop times and repeated stop sequences are dropped.
func (b *catalogBuilder) buildTripSchedules() []gtfs.TripSchedule {
	schedules := make([]gtfs.TripSchedule, 0, len(b.tripOrder))
	for _, tripId := range b.tripOrder {
		trip := b.trips[tripId]
		stopTimes := b.stopTimes[tripId]
		if len(stopTimes) == 0 {
			b.log.Printf("excluding trip %s, it has no stop times", tripId)
			continue
		}
		sort.SliceStable(stopTimes, func(i, j int) bool {
			return stopTimes[i].StopSequence < stopTimes[j].StopSequence
		})
		ordered := stopTimes[:1]
		for _, st := range stopTimes[1:] {
			if st.StopSequence == ordered[len(ordered)-1].StopSequence {
				b.log.Printf("trip %s repeats stop sequence %d, ignoring stop %s", tripId, st.StopSequence, st.StopId)
				continue
			}
			ordered = append(ordered, st)
		}
		route := b.routes[trip.RouteId]
		schedules = append(schedules, gtfs.TripSchedule{
			TripId:    trip.TripId,
			TripName:  trip.TripShortName,
			Headsign:  trip.TripHeadsign,
			Direction: trip.DirectionId,
			RouteId:   trip.RouteId,
			RouteName: route.ShortName,
			ServiceId: trip.ServiceId,
			StopTimes: ordered,
		})
	}
	return schedules
}
