package catalogmanager

import (
	"github.com/OpenTransitTools/tramcast/business/data/gtfs"
)

// routeRowReader implements gtfsRowReader interface for gtfs.Route
type routeRowReader struct{}

func (r *routeRowReader) addRow(parser *gtfsFileParser, builder *catalogBuilder) error {
	route, err := buildRoute(parser)
	if err != nil {
		return err
	}
	builder.addRoute(*route)
	return nil
}

func (r *routeRowReader) flush(_ *catalogBuilder) error {
	return nil
}

func buildRoute(parser *gtfsFileParser) (*gtfs.Route, error) {
	route := gtfs.Route{
		RouteId:   parser.getString("route_id", false),
		AgencyId:  parser.getString("agency_id", true),
		ShortName: parser.getString("route_short_name", true),
		RouteType: parser.getInt("route_type", false),
	}
	return &route, parser.getError()
}
