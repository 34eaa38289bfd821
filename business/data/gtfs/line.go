package gtfs

// LineString is a geojson LineString geometry
type LineString struct {
	Type        string       `json:"type"`
	Coordinates []Coordinate `json:"coordinates"`
}

// Segment is a directed piece of line geometry between two consecutive stops, identified by station Diva codes
type Segment struct {
	From      int        `json:"from"`
	To        int        `json:"to"`
	Direction int        `json:"direction"`
	Sequence  int        `json:"sequence"`
	Geometry  LineString `json:"geometry"`
}

// Start returns the first vertex of the segment geometry, false if the geometry is empty
func (s *Segment) Start() (Coordinate, bool) {
	if len(s.Geometry.Coordinates) == 0 {
		return Coordinate{}, false
	}
	return s.Geometry.Coordinates[0], true
}

// Line is a public tram line with its directed segments. Segments are not guaranteed to connect every adjacent
// stop pair served by the line.
type Line struct {
	Name     string    `json:"name"`
	Color    string    `json:"color"`
	Segments []Segment `json:"segments"`
}
