package monitor

import (
	"math"

	"github.com/OpenTransitTools/tramcast/business/data/gtfs"
)

// interpolate returns the point at fraction of the Euclidean length of coordinates. A line without length
// yields its first vertex, a fraction past the last sub segment yields the last vertex.
func interpolate(coordinates []gtfs.Coordinate, fraction float64) (gtfs.Coordinate, bool) {
	if len(coordinates) == 0 {
		return gtfs.Coordinate{}, false
	}
	lengths := make([]float64, len(coordinates)-1)
	total := 0.0
	for i := 0; i+1 < len(coordinates); i++ {
		lengths[i] = distance(coordinates[i], coordinates[i+1])
		total += lengths[i]
	}
	if total == 0 {
		return coordinates[0], true
	}
	start := 0.0
	for i, length := range lengths {
		pStart := start / total
		pEnd := (start + length) / total
		start += length
		if fraction < pStart || fraction >= pEnd {
			continue
		}
		scaled := (fraction - pStart) / (pEnd - pStart)
		a, b := coordinates[i], coordinates[i+1]
		return gtfs.Coordinate{
			a[0]*(1-scaled) + b[0]*scaled,
			a[1]*(1-scaled) + b[1]*scaled,
		}, true
	}
	return coordinates[len(coordinates)-1], true
}

func distance(a gtfs.Coordinate, b gtfs.Coordinate) float64 {
	return math.Sqrt((a[0]-b[0])*(a[0]-b[0]) + (a[1]-b[1])*(a[1]-b[1]))
}

// mergeGeometry concatenates the geometries of a chain of segments, dropping a vertex repeated where two
// segments meet
func mergeGeometry(chain []gtfs.Segment) []gtfs.Coordinate {
	var merged []gtfs.Coordinate
	for _, segment := range chain {
		coordinates := segment.Geometry.Coordinates
		if len(merged) > 0 && len(coordinates) > 0 && merged[len(merged)-1] == coordinates[0] {
			coordinates = coordinates[1:]
		}
		merged = append(merged, coordinates...)
	}
	return merged
}
