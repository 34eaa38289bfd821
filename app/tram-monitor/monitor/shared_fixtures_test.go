package monitor

import (
	"context"
	"log"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/OpenTransitTools/tramcast/business/data/gtfs"
)

type testLogWriter struct {
	mu       sync.Mutex
	logLines []string
	log      *log.Logger
}

func makeTestLogWriter() *testLogWriter {
	logWriter := testLogWriter{
		logLines: make([]string, 0),
	}
	logger := log.New(&logWriter, "TRAM_MONITOR : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logWriter.log = logger
	return &logWriter
}

func (t *testLogWriter) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logLines = append(t.logLines, string(p))
	return len(p), nil
}

func (t *testLogWriter) contains(s string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, line := range t.logLines {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

func testLocation(t *testing.T) *time.Location {
	location, err := time.LoadLocation("Europe/Zurich")
	if err != nil {
		t.Fatalf("Unable to load \"Europe/Zurich\" timezone: %v", err)
	}
	return location
}

// testServiceDate is a wednesday without daylight saving transition
func testServiceDate(t *testing.T) time.Time {
	return time.Date(2024, 6, 5, 0, 0, 0, 0, testLocation(t))
}

func hms(hours, minutes, seconds int) int {
	return hours*3600 + minutes*60 + seconds
}

// at returns the epoch milliseconds of a schedule time on serviceDate
func at(serviceDate time.Time, hours, minutes, seconds int) int64 {
	return gtfs.MakeScheduleTime(serviceDate, hms(hours, minutes, seconds)).UnixMilli()
}

func near(a gtfs.Coordinate, b gtfs.Coordinate) bool {
	return math.Abs(a[0]-b[0]) < 1e-9 && math.Abs(a[1]-b[1]) < 1e-9
}

var (
	coordsA = gtfs.Coordinate{8.0, 47.0}
	coordsB = gtfs.Coordinate{8.1, 47.0}
	coordsC = gtfs.Coordinate{8.2, 47.0}
	coordsD = gtfs.Coordinate{8.3, 47.0}
)

func testStations() []gtfs.Station {
	return []gtfs.Station{
		{Id: 8591001, Diva: 1001, Name: "Alpha", Coords: coordsA},
		{Id: 8591002, Diva: 1002, Name: "Bravo", Coords: coordsB},
		{Id: 8591003, Diva: 1003, Name: "Charlie", Coords: coordsC},
		{Id: 8591004, Diva: 1004, Name: "Delta", Coords: coordsD},
	}
}

func testSegment(from, to, sequence int, coordinates ...gtfs.Coordinate) gtfs.Segment {
	return gtfs.Segment{
		From:     from,
		To:       to,
		Sequence: sequence,
		Geometry: gtfs.LineString{Type: "LineString", Coordinates: coordinates},
	}
}

// testLines has line 4 from Alpha to Charlie and line 2 from Charlie to Delta
func testLines() []gtfs.Line {
	return []gtfs.Line{
		{
			Name:  "4",
			Color: "#333399",
			Segments: []gtfs.Segment{
				testSegment(1001, 1002, 1, coordsA, coordsB),
				testSegment(1002, 1003, 2, coordsB, coordsC),
			},
		},
		{
			Name:  "2",
			Color: "#ff0000",
			Segments: []gtfs.Segment{
				testSegment(1003, 1004, 1, coordsC, coordsD),
			},
		},
	}
}

func stopTime(tripId string, stopId string, sequence int, arrival int, departure int) gtfs.StopTime {
	return gtfs.StopTime{
		TripId:        tripId,
		StopId:        stopId,
		StopSequence:  sequence,
		ArrivalTime:   arrival,
		DepartureTime: departure,
	}
}

func makeTestTrip(tripId string, tripName string, routeName string, serviceDate time.Time,
	stopTimes ...gtfs.StopTime) gtfs.TripSchedule {
	for i := range stopTimes {
		stopTimes[i].TripId = tripId
	}
	return gtfs.TripSchedule{
		TripId:      tripId,
		TripName:    tripName,
		RouteId:     "r" + routeName,
		RouteName:   routeName,
		ServiceId:   "wk",
		ServiceDate: serviceDate,
		StopTimes:   stopTimes,
	}
}

// testTrips are two line 4 trips half an hour apart and one line 2 trip
func testTrips(serviceDate time.Time) []gtfs.TripSchedule {
	return []gtfs.TripSchedule{
		makeTestTrip("t1", "4011", "4", serviceDate,
			stopTime("", "8591001:0:A", 1, hms(8, 0, 0), hms(8, 0, 30)),
			stopTime("", "8591002:0:A", 2, hms(8, 3, 0), hms(8, 3, 30)),
			stopTime("", "8591003:0:A", 3, hms(8, 6, 0), hms(8, 6, 30)),
		),
		makeTestTrip("t2", "4012", "4", serviceDate,
			stopTime("", "8591001:0:A", 1, hms(8, 30, 0), hms(8, 30, 30)),
			stopTime("", "8591002:0:A", 2, hms(8, 33, 0), hms(8, 33, 30)),
			stopTime("", "8591003:0:A", 3, hms(8, 36, 0), hms(8, 36, 30)),
		),
		makeTestTrip("t3", "211", "2", serviceDate,
			stopTime("", "8591003:0:B", 1, hms(8, 10, 0), hms(8, 10, 0)),
			stopTime("", "8591004:0:B", 2, hms(8, 15, 0), hms(8, 15, 0)),
		),
	}
}

func makeTestCatalog(trips []gtfs.TripSchedule) *gtfs.Catalog {
	return gtfs.NewCatalog(testStations(), testLines(), nil, trips, nil, nil)
}

// staticSource is a CatalogSource serving fixed data
type staticSource struct {
	mu        sync.Mutex
	catalog   *gtfs.Catalog
	trips     []gtfs.TripSchedule
	hist      []gtfs.HistoricalStop
	loc       *time.Location
	err       error
	dayDates  []time.Time
	histDates []string
}

func makeStaticSource(t *testing.T, trips []gtfs.TripSchedule) *staticSource {
	return &staticSource{
		catalog: makeTestCatalog(trips),
		trips:   trips,
		loc:     testLocation(t),
	}
}

func (s *staticSource) Catalog(_ context.Context) (*gtfs.Catalog, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.catalog, nil
}

func (s *staticSource) DayTrips(_ context.Context, date time.Time) ([]gtfs.TripSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dayDates = append(s.dayDates, date)
	return s.trips, nil
}

func (s *staticSource) HistoricalStops(_ context.Context, date string) ([]gtfs.HistoricalStop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histDates = append(s.histDates, date)
	return s.hist, nil
}

func (s *staticSource) Location() *time.Location {
	return s.loc
}

func findVehicle(vehicles []gtfs.Vehicle, tripId string) *gtfs.Vehicle {
	for i := range vehicles {
		if vehicles[i].TripId == tripId {
			return &vehicles[i]
		}
	}
	return nil
}
