package gtfs

// HistoricalStop is one stop event of an actual-times record. Times are epoch milliseconds, zero when unknown.
type HistoricalStop struct {
	TripId          string `json:"trip_id"`
	RouteId         string `json:"route_id"`
	RouteName       string `json:"route_name"`
	TripName        string `json:"trip_name"`
	Added           bool   `json:"added"`
	Canceled        bool   `json:"canceled"`
	StopId          string `json:"stop_id"`
	StopName        string `json:"stop_name"`
	Arrival         int64  `json:"arrival"`
	ArrivalActual   int64  `json:"arrival_actual"`
	Departure       int64  `json:"departure"`
	DepartureActual int64  `json:"departure_actual"`
}
