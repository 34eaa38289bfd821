package catalogmanager

import (
	"archive/zip"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
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

var testFeedFiles = map[string]string{
	"routes.txt": "route_id,agency_id,route_short_name,route_long_name,route_type\n" +
		"r4,3849,4,,900\n" +
		"rbus,3849,31,,700\n" +
		"rother,11,2,,900\n",
	"trips.txt": "route_id,service_id,trip_id,trip_headsign,trip_short_name,direction_id\n" +
		"r4,wk,t1,Tiefenbrunnen,4011,0\n" +
		"r4,wk,t2,Altstetten,4012,1\n" +
		"rbus,wk,b1,Bus,3101,0\n" +
		"r4,wk,t3,Empty,4013,0\n",
	"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
		"t1,08:00:00,08:00:30,8591001:0:A,1\n" +
		"t1,08:03:00,08:03:30,8591002:0:A,2\n" +
		"t2,24:10:00,24:10:00,8591002:0:B,2\n" +
		"t2,24:00:00,24:00:30,8591001:0:B,1\n" +
		"b1,08:00:00,08:00:00,8591001:0:A,1\n",
	"calendar.txt": "service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date\n" +
		"wk,1,1,1,1,1,0,0,20240101,20241231\n" +
		"busonly,1,1,1,1,1,1,1,20240101,20241231\n",
	"calendar_dates.txt": "service_id,date,exception_type\n" +
		"wk,20240801,2\n" +
		"busonly,20240801,1\n",
}

//writeTestArchive writes files to a gtfs zip in dir and returns its path
func writeTestArchive(t *testing.T, dir string, files map[string]string) string {
	path := filepath.Join(dir, "gtfs.zip")
	out, err := os.Create(path)
	if err != nil {
		t.Fatalf("unable to create test archive: %v", err)
	}
	w := zip.NewWriter(out)
	for name, content := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("unable to add %s to test archive: %v", name, err)
		}
		if _, err = f.Write([]byte(content)); err != nil {
			t.Fatalf("unable to write %s to test archive: %v", name, err)
		}
	}
	if err = w.Close(); err != nil {
		t.Fatalf("unable to close test archive: %v", err)
	}
	if err = out.Close(); err != nil {
		t.Fatalf("unable to close test archive: %v", err)
	}
	return path
}

func writeTestJSON(t *testing.T, path string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("unable to marshal %s: %v", path, err)
	}
	if err = os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("unable to write %s: %v", path, err)
	}
}

//makeTestConfig writes a feed, stations and lines to a temporary directory and returns a Config reading them
func makeTestConfig(t *testing.T) Config {
	dir := t.TempDir()
	stationsFile := filepath.Join(dir, "stations.json")
	writeTestJSON(t, stationsFile, []gtfs.Station{
		{Id: 8591001, Diva: 1001, Name: "Bahnhofplatz", Coords: gtfs.Coordinate{8.54, 47.37}},
		{Id: 8591002, Diva: 1002, Name: "Central", Coords: gtfs.Coordinate{8.544, 47.377}},
	})
	linesFile := filepath.Join(dir, "lines.json")
	writeTestJSON(t, linesFile, []gtfs.Line{
		{
			Name:  "4",
			Color: "#fff",
			Segments: []gtfs.Segment{
				{From: 1001, To: 1002, Sequence: 1, Geometry: gtfs.LineString{
					Type:        "LineString",
					Coordinates: []gtfs.Coordinate{{8.54, 47.37}, {8.544, 47.377}},
				}},
			},
		},
	})
	return Config{
		DataDir:           filepath.Join(dir, "data"),
		StaticArchivePath: writeTestArchive(t, dir, testFeedFiles),
		StationsFile:      stationsFile,
		LinesFile:         linesFile,
		RouteType:         900,
		AgencyIds:         []string{"3849", "46"},
		Location:          testLocation(t),
		BakeDays:          3,
		Version:           3,
		UpdateWeekdays:    []time.Weekday{time.Monday, time.Thursday},
		UpdateHour:        15,
		HistDir:           filepath.Join(dir, "hist"),
		OperatorId:        "85:3849",
	}
}
