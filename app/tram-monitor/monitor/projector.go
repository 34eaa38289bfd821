package monitor

import (
	"log"
	"math"

	"github.com/OpenTransitTools/tramcast/business/data/gtfs"
)

// projection steps, in search order
const (
	stepExact    = "exact"
	stepTerminus = "terminus"
	stepShared   = "shared"
	stepChain    = "chain"
	stepFallback = "fallback"
	stepNone     = "none"
)

// Projector places vehicles on line geometry
type Projector struct {
	log     *log.Logger
	metrics *Metrics
	lines   map[string]*gtfs.Line
	graphs  map[string]segmentGraph
	all     []gtfs.Segment
}

// NewProjector indexes the segments of lines
func NewProjector(log *log.Logger, lines []gtfs.Line, metrics *Metrics) *Projector {
	p := &Projector{
		log:     log,
		metrics: metrics,
		lines:   make(map[string]*gtfs.Line, len(lines)),
		graphs:  make(map[string]segmentGraph, len(lines)),
	}
	for i := range lines {
		line := &lines[i]
		p.lines[line.Name] = line
		p.graphs[line.Name] = makeSegmentGraph(line.Segments)
		p.all = append(p.all, line.Segments...)
	}
	return p
}

// Project returns the coordinate of v along the segment between its last reached stop and the next stop.
// Missing geometry degrades to the start of a segment leaving the last reached stop, then to (0,0).
func (p *Projector) Project(v *gtfs.Vehicle) gtfs.Coordinate {
	coordinate, step := p.project(v)
	p.metrics.projected(step)
	if step == stepFallback || step == stepNone {
		p.log.Printf("warning: trip %s on line %s has no geometry after stop sequence %v, using %s position",
			v.TripId, v.RouteName, math.Floor(v.Progress), step)
	}
	return coordinate
}

func (p *Projector) project(v *gtfs.Vehicle) (gtfs.Coordinate, string) {
	index := v.StopIndex(int(math.Floor(v.Progress)))
	if index < 0 {
		return gtfs.Coordinate{}, stepNone
	}
	fraction := v.Progress - math.Floor(v.Progress)
	from := v.Stops[index].StopDiva
	var routeSegments []gtfs.Segment
	if line, ok := p.lines[v.RouteName]; ok {
		routeSegments = line.Segments
	}

	if index+1 >= len(v.Stops) {
		if start, ok := segmentStart(routeSegments, from); ok {
			return start, stepTerminus
		}
		return p.fallback(routeSegments, from)
	}
	to := v.Stops[index+1].StopDiva

	if segment := findSegment(routeSegments, from, to); segment != nil {
		if coordinate, ok := interpolate(segment.Geometry.Coordinates, fraction); ok {
			return coordinate, stepExact
		}
	}
	if segment := findSegment(p.all, from, to); segment != nil {
		if coordinate, ok := interpolate(segment.Geometry.Coordinates, fraction); ok {
			return coordinate, stepShared
		}
	}
	if chain, ok := p.graphs[v.RouteName].chain(from, to); ok {
		if coordinate, ok := interpolate(mergeGeometry(chain), fraction); ok {
			return coordinate, stepChain
		}
	}
	return p.fallback(routeSegments, from)
}

// fallback returns the start of a segment leaving from, preferring the vehicle's own route
func (p *Projector) fallback(routeSegments []gtfs.Segment, from int) (gtfs.Coordinate, string) {
	if start, ok := segmentStart(routeSegments, from); ok {
		return start, stepFallback
	}
	if start, ok := segmentStart(p.all, from); ok {
		return start, stepFallback
	}
	return gtfs.Coordinate{0, 0}, stepNone
}

func findSegment(segments []gtfs.Segment, from int, to int) *gtfs.Segment {
	for i := range segments {
		if segments[i].From == from && segments[i].To == to {
			return &segments[i]
		}
	}
	return nil
}

func segmentStart(segments []gtfs.Segment, from int) (gtfs.Coordinate, bool) {
	for i := range segments {
		if segments[i].From != from {
			continue
		}
		if start, ok := segments[i].Start(); ok {
			return start, true
		}
	}
	return gtfs.Coordinate{}, false
}
