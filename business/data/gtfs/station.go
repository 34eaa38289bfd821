package gtfs

import (
	"fmt"
	"strconv"
	"strings"
)

// Coordinate is a longitude, latitude pair in WGS84
type Coordinate [2]float64

// Station is a public stop place. Stations are keyed by Id for joins with gtfs stop ids and by Diva for public
// facing stop codes, which are also the endpoints of line Segments.
type Station struct {
	Id     int        `json:"id"`
	Diva   int        `json:"diva"`
	Name   string     `json:"name"`
	Type   string     `json:"type,omitempty"`
	Lines  string     `json:"lines,omitempty"`
	Coords Coordinate `json:"coords"`
}

// StationIdFromStopId extracts the station id encoded in the leading numeric part of a gtfs stop id,
// "8591123:0:A" belongs to station 8591123
func StationIdFromStopId(stopId string) (int, error) {
	prefix := stopId
	if i := strings.Index(stopId, ":"); i >= 0 {
		prefix = stopId[:i]
	}
	id, err := strconv.Atoi(strings.TrimSpace(prefix))
	if err != nil {
		return 0, fmt.Errorf("stop id %q has no numeric station prefix: %w", stopId, err)
	}
	return id, nil
}
