package gtfs

import "time"

// Route contains data from a gtfs route definition in a routes.txt file
type Route struct {
	RouteId   string `json:"route_id"`
	AgencyId  string `json:"agency_id"`
	ShortName string `json:"route_short_name"`
	RouteType int    `json:"route_type"`
}

// Trip contains data from a gtfs trip definition in a trips.txt file
type Trip struct {
	TripId        string `json:"trip_id"`
	RouteId       string `json:"route_id"`
	ServiceId     string `json:"service_id"`
	TripHeadsign  string `json:"trip_headsign"`
	TripShortName string `json:"trip_short_name"`
	DirectionId   int    `json:"direction_id"`
}

// StopTime contains data from a gtfs stop_times.txt record. Arrival and departure are seconds from the reference
// midnight of the service date and may exceed 24 hours.
type StopTime struct {
	TripId        string `json:"trip_id"`
	StopId        string `json:"stop_id"`
	StopSequence  int    `json:"stop_sequence"`
	ArrivalTime   int    `json:"arrival_time"`
	DepartureTime int    `json:"departure_time"`
}

// TripSchedule is a trip joined with its route and its ordered stop times.
// ServiceDate is zero in the catalog and set to the local midnight of the operating date once the
// trip has been selected for a day.
type TripSchedule struct {
	TripId      string     `json:"trip_id"`
	TripName    string     `json:"trip_name"`
	Headsign    string     `json:"headsign"`
	Direction   int        `json:"direction"`
	RouteId     string     `json:"route_id"`
	RouteName   string     `json:"route_name"`
	ServiceId   string     `json:"service_id"`
	ServiceDate time.Time  `json:"service_date"`
	StopTimes   []StopTime `json:"stops"`
}

// CrossesMidnight reports whether any stop time of the trip is scheduled at or after 24:00:00
func (t *TripSchedule) CrossesMidnight() bool {
	for _, st := range t.StopTimes {
		if st.ArrivalTime >= SecondsPerDay || st.DepartureTime >= SecondsPerDay {
			return true
		}
	}
	return false
}

// Key returns the trip id and service date identifying this schedule on a given day
func (t *TripSchedule) Key() TripKey {
	return TripKey{TripId: t.TripId, ServiceDate: ServiceDateKey(t.ServiceDate)}
}

// TripKey identifies one operating instance of a trip
type TripKey struct {
	TripId      string
	ServiceDate string
}
