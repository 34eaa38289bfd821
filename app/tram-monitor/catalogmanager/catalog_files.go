package catalogmanager

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/OpenTransitTools/tramcast/business/data/gtfs"
	"github.com/OpenTransitTools/tramcast/business/data/rtcache"
)

const (
	stationsFileName          = "stations.json"
	linesFileName             = "lines.json"
	routesFileName            = "routes.json"
	tripsFileName             = "trips.json"
	servicesFileName          = "services.json"
	serviceExceptionsFileName = "serviceExceptions.json"
	lastUpdateFileName        = "lastUpdate.json"

	staticArchiveFileName     = "gtfs.zip"
	staticArchiveInfoFileName = "gtfs.zip.json"
)

// updateKey identifies the static feed a set of artifacts was built from
type updateKey struct {
	Date    string `json:"date"`
	Version int    `json:"version"`
}

// bakedTripsFileName names the file holding the trips selected for date
func bakedTripsFileName(date time.Time) string {
	return "trips_" + date.Format("2006-01-02") + ".json"
}

// writeJSONFile marshals v to path, replacing any previous file atomically
func writeJSONFile(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", filepath.Base(path), err)
	}
	if err = rtcache.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// readJSONFile unmarshals the json file at path into v
func readJSONFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err = json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// writeCatalogFiles persists each part of catalog in dir
func writeCatalogFiles(dir string, catalog *gtfs.Catalog) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	files := []struct {
		name  string
		value interface{}
	}{
		{name: stationsFileName, value: catalog.Stations},
		{name: linesFileName, value: catalog.Lines},
		{name: routesFileName, value: catalog.Routes},
		{name: tripsFileName, value: catalog.Trips},
		{name: servicesFileName, value: catalog.Calendars},
		{name: serviceExceptionsFileName, value: catalog.CalendarDates},
	}
	for _, f := range files {
		if err := writeJSONFile(filepath.Join(dir, f.name), f.value); err != nil {
			return err
		}
	}
	return nil
}

// readCatalogFiles loads a catalog previously written by writeCatalogFiles
func readCatalogFiles(dir string) (*gtfs.Catalog, error) {
	var stations []gtfs.Station
	var lines []gtfs.Line
	var routes []gtfs.Route
	var trips []gtfs.TripSchedule
	var calendars []gtfs.Calendar
	var calendarDates []gtfs.CalendarDate
	files := []struct {
		name  string
		value interface{}
	}{
		{name: stationsFileName, value: &stations},
		{name: linesFileName, value: &lines},
		{name: routesFileName, value: &routes},
		{name: tripsFileName, value: &trips},
		{name: servicesFileName, value: &calendars},
		{name: serviceExceptionsFileName, value: &calendarDates},
	}
	for _, f := range files {
		if err := readJSONFile(filepath.Join(dir, f.name), f.value); err != nil {
			return nil, err
		}
	}
	return gtfs.NewCatalog(stations, lines, routes, trips, calendars, calendarDates), nil
}

// bakedTrips is the content of a baked day file, stamped with the key of the catalog it was selected from
type bakedTrips struct {
	Key   updateKey           `json:"key"`
	Trips []gtfs.TripSchedule `json:"trips"`
}

// writeBakedTrips persists trips selected for a day by the catalog built for key
func writeBakedTrips(path string, key updateKey, trips []gtfs.TripSchedule) error {
	return writeJSONFile(path, bakedTrips{Key: key, Trips: trips})
}

// readBakedTrips loads the trips selected for a date and resolves their service dates in loc. A file baked from
// a catalog other than key is rejected.
func readBakedTrips(path string, key updateKey, loc *time.Location) ([]gtfs.TripSchedule, error) {
	var baked bakedTrips
	if err := readJSONFile(path, &baked); err != nil {
		return nil, err
	}
	if baked.Key != key {
		return nil, fmt.Errorf("%s was baked for %+v, expected %+v", filepath.Base(path), baked.Key, key)
	}
	trips := baked.Trips
	for i := range trips {
		serviceDate, err := gtfs.ParseServiceDate(gtfs.ServiceDateKey(trips[i].ServiceDate), loc)
		if err != nil {
			return nil, fmt.Errorf("trip %s in %s: %w", trips[i].TripId, path, err)
		}
		trips[i].ServiceDate = serviceDate
	}
	return trips, nil
}
