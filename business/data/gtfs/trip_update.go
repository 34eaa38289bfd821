package gtfs

// Trip schedule relationships reported by the realtime feed
const (
	TripScheduled   = "scheduled"
	TripAdded       = "added"
	TripUnscheduled = "unscheduled"
	TripCanceled    = "canceled"
	TripReplacement = "replacement"
	TripDuplicated  = "duplicated"
	TripDeleted     = "deleted"
)

// Stop schedule relationships reported by the realtime feed
const (
	StopScheduled   = "scheduled"
	StopSkipped     = "skipped"
	StopNoData      = "no_data"
	StopUnscheduled = "unscheduled"
)

// TripUpdate holds realtime delay information for one trip
type TripUpdate struct {
	TripId     string           `json:"trip_id"`
	StartTime  string           `json:"trip_time,omitempty"`
	StartDate  string           `json:"trip_date,omitempty"`
	TripStatus string           `json:"trip_status"`
	Stops      []StopTimeUpdate `json:"stops"`
}

// StopTimeUpdate holds realtime delay information in seconds for a single stop on a trip
type StopTimeUpdate struct {
	StopId         string `json:"stop_id"`
	StopSequence   int    `json:"stop_sequence"`
	StopStatus     string `json:"stop_status"`
	ArrivalDelay   int    `json:"arrival_delay"`
	DepartureDelay int    `json:"departure_delay"`
}

// StopUpdate finds the update for stopId, nil if the feed has no data for the stop
func (t *TripUpdate) StopUpdate(stopId string) *StopTimeUpdate {
	if t == nil {
		return nil
	}
	for i := range t.Stops {
		if t.Stops[i].StopId == stopId {
			return &t.Stops[i]
		}
	}
	return nil
}

// AppliesTo reports whether the update can describe the trip operating on serviceDate (YYYYMMDD).
// An update without a start date applies to any service date.
func (t *TripUpdate) AppliesTo(serviceDate string) bool {
	return t.StartDate == "" || serviceDate == "" || t.StartDate == serviceDate
}
