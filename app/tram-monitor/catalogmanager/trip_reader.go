package catalogmanager

import (
	"github.com/OpenTransitTools/tramcast/business/data/gtfs"
)

// tripRowReader implements gtfsRowReader interface for gtfs.Trip
type tripRowReader struct{}

func (r *tripRowReader) addRow(parser *gtfsFileParser, builder *catalogBuilder) error {
	trip, err := buildTrip(parser)
	if err != nil {
		return err
	}
	builder.addTrip(*trip)
	return nil
}

func (r *tripRowReader) flush(_ *catalogBuilder) error {
	return nil
}

func buildTrip(parser *gtfsFileParser) (*gtfs.Trip, error) {
	trip := gtfs.Trip{
		TripId:        parser.getString("trip_id", false),
		RouteId:       parser.getString("route_id", false),
		ServiceId:     parser.getString("service_id", false),
		TripHeadsign:  parser.getString("trip_headsign", true),
		TripShortName: parser.getString("trip_short_name", true),
		DirectionId:   parser.getInt("direction_id", true),
	}
	return &trip, parser.getError()
}
