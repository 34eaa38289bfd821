package gtfs

// Vehicle is the estimated state of a scheduled trip at a point in time. Vehicles are rebuilt on every query.
type Vehicle struct {
	TripId      string     `json:"trip_id"`
	TripName    string     `json:"trip_name"`
	TripStatus  string     `json:"trip_status"`
	Headsign    string     `json:"headsign"`
	Direction   int        `json:"direction"`
	RouteId     string     `json:"route_id"`
	RouteName   string     `json:"route_name"`
	ServiceId   string     `json:"service_id"`
	ServiceDate string     `json:"service_date"`
	Progress    float64    `json:"progress"`
	Delay       int        `json:"delay"`
	Active      bool       `json:"active"`
	Coords      Coordinate `json:"coords"`
	Stops       []Stop     `json:"stops"`
}

// Stop is a stop on a Vehicle's trip. Times are epoch milliseconds, delays are seconds.
type Stop struct {
	StopId         string `json:"stop_id"`
	StopDiva       int    `json:"stop_diva"`
	StopName       string `json:"stop_name"`
	StopSequence   int    `json:"stop_sequence"`
	StopStatus     string `json:"stop_status"`
	Arrival        int64  `json:"arrival"`
	Departure      int64  `json:"departure"`
	ArrivalDelay   int    `json:"arrival_delay"`
	DepartureDelay int    `json:"departure_delay"`
	PredArrival    int64  `json:"pred_arrival"`
	PredDeparture  int64  `json:"pred_departure"`
	Arrived        bool   `json:"arrived"`
	Departed       bool   `json:"departed"`
}

// Key returns the trip id and service date identifying the vehicle's trip
func (v *Vehicle) Key() TripKey {
	return TripKey{TripId: v.TripId, ServiceDate: v.ServiceDate}
}

// StopIndex returns the position in Stops of the stop with sequence, -1 if absent
func (v *Vehicle) StopIndex(sequence int) int {
	for i := range v.Stops {
		if v.Stops[i].StopSequence == sequence {
			return i
		}
	}
	return -1
}

// ServesStation reports whether any stop of the vehicle is at the station with the public code diva
func (v *Vehicle) ServesStation(diva int) bool {
	for _, s := range v.Stops {
		if s.StopDiva == diva {
			return true
		}
	}
	return false
}

// IsCanceled reports whether the vehicle's trip has been removed from service
func (v *Vehicle) IsCanceled() bool {
	return v.TripStatus == TripCanceled || v.TripStatus == TripDeleted
}
