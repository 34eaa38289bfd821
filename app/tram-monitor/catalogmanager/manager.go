// Package catalogmanager builds, persists and serves the static schedule catalog and the trips selected for each
// service day
package catalogmanager

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/OpenTransitTools/tramcast/business/data/gtfs"
	"github.com/OpenTransitTools/tramcast/foundation/clock"
	"github.com/OpenTransitTools/tramcast/foundation/httpclient"
)

// Config is the static feed configuration of a Manager
type Config struct {
	// DataDir holds the downloaded archive and the parsed/ artifacts
	DataDir string
	// StaticArchivePath is a local gtfs zip, used instead of downloading StaticURL when set
	StaticArchivePath string
	StaticURL         string
	StationsFile      string
	LinesFile         string
	RouteType         int
	AgencyIds         []string
	Location          *time.Location
	// BakeDays is the number of days, starting today, whose trip selections are written when the catalog is built
	BakeDays       int
	Version        int
	UpdateWeekdays []time.Weekday
	UpdateHour     int
	// HistDir holds actual-times csv files named YYYY-MM-DD.csv, HistURL is a fmt pattern taking the date
	// used to download missing ones
	HistDir    string
	HistURL    string
	OperatorId string
}

// Manager owns the current gtfs.Catalog. At most one rebuild runs at a time, callers arriving during a rebuild
// wait for it and share its result.
type Manager struct {
	log      *log.Logger
	cfg      Config
	clock    clock.Clock
	holidays *transitHolidayCalendar

	mu      sync.Mutex
	catalog *gtfs.Catalog
	key     updateKey
	days    map[string][]gtfs.TripSchedule
}

// NewManager creates a Manager
func NewManager(log *log.Logger, cfg Config, c clock.Clock) *Manager {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Manager{
		log:      log,
		cfg:      cfg,
		clock:    c,
		holidays: makeTransitHolidayCalendar(),
		days:     make(map[string][]gtfs.TripSchedule),
	}
}

// Location returns the time zone service days are resolved in
func (m *Manager) Location() *time.Location {
	return m.cfg.Location
}

func (m *Manager) parsedDir() string {
	return filepath.Join(m.cfg.DataDir, "parsed")
}

// Catalog returns the catalog for the static feed currently in effect, loading or rebuilding it when the feed's
// effective date or the configured version changed
func (m *Manager) Catalog(ctx context.Context) (*gtfs.Catalog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentCatalog(ctx, false)
}

// Rebuild parses the static feed again regardless of persisted artifacts
func (m *Manager) Rebuild(ctx context.Context) (*gtfs.Catalog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentCatalog(ctx, true)
}

// DayTrips returns the trips operating on the calendar day of date, read from the baked file when one exists
func (m *Manager) DayTrips(ctx context.Context, date time.Time) ([]gtfs.TripSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	catalog, err := m.currentCatalog(ctx, false)
	if err != nil {
		return nil, err
	}
	day := gtfs.Get12AmTime(date.In(m.cfg.Location))
	dayKey := gtfs.ServiceDateKey(day)
	if trips, ok := m.days[dayKey]; ok {
		return trips, nil
	}
	path := filepath.Join(m.parsedDir(), bakedTripsFileName(day))
	trips, err := readBakedTrips(path, m.key, m.cfg.Location)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			m.log.Printf("discarding baked trips %s: %v", path, err)
		}
		trips = catalog.SelectTrips(day)
		if err = writeBakedTrips(path, m.key, trips); err != nil {
			m.log.Printf("unable to bake trips for %s: %v", dayKey, err)
		}
	}
	m.days[dayKey] = trips
	return trips, nil
}

// currentCatalog must be called with mu held
func (m *Manager) currentCatalog(ctx context.Context, force bool) (*gtfs.Catalog, error) {
	now := m.clock.Now()
	key := makeUpdateKey(now, m.cfg)
	if !force && m.catalog != nil && m.key == key {
		return m.catalog, nil
	}
	if !force {
		catalog, err := m.loadCatalog(key)
		if err == nil {
			m.setCatalog(catalog, key)
			return catalog, nil
		}
		m.log.Printf("rebuilding schedule catalog: %v", err)
	}

	start := time.Now()
	catalog, err := m.buildCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("building schedule catalog: %w", err)
	}
	if err = writeCatalogFiles(m.parsedDir(), catalog); err != nil {
		return nil, fmt.Errorf("saving schedule catalog: %w", err)
	}
	dates := m.bakeDays(catalog, key, now)
	auditHolidays(m.log, m.holidays, catalog, dates)
	if err = writeJSONFile(filepath.Join(m.parsedDir(), lastUpdateFileName), key); err != nil {
		return nil, fmt.Errorf("saving schedule catalog: %w", err)
	}
	m.log.Printf("built schedule catalog with %d trips, %d services and %d exceptions in %v",
		len(catalog.Trips), len(catalog.Calendars), len(catalog.CalendarDates), time.Since(start))
	m.setCatalog(catalog, key)
	return catalog, nil
}

func (m *Manager) setCatalog(catalog *gtfs.Catalog, key updateKey) {
	m.catalog = catalog
	m.key = key
	m.days = make(map[string][]gtfs.TripSchedule)
}

// loadCatalog reads persisted artifacts if they were built for key
func (m *Manager) loadCatalog(key updateKey) (*gtfs.Catalog, error) {
	var stored updateKey
	if err := readJSONFile(filepath.Join(m.parsedDir(), lastUpdateFileName), &stored); err != nil {
		return nil, fmt.Errorf("no usable %s: %w", lastUpdateFileName, err)
	}
	if stored != key {
		return nil, fmt.Errorf("artifacts were built for %+v, expected %+v", stored, key)
	}
	return readCatalogFiles(m.parsedDir())
}

// bakeDays writes the trip selections of BakeDays days starting with now's day, returns the dates baked
func (m *Manager) bakeDays(catalog *gtfs.Catalog, key updateKey, now time.Time) []time.Time {
	today := gtfs.Get12AmTime(now.In(m.cfg.Location))
	var dates []time.Time
	for i := 0; i < m.cfg.BakeDays; i++ {
		day := gtfs.Get12AmTime(today.AddDate(0, 0, i))
		path := filepath.Join(m.parsedDir(), bakedTripsFileName(day))
		if err := writeBakedTrips(path, key, catalog.SelectTrips(day)); err != nil {
			m.log.Printf("unable to bake trips for %s: %v", day.Format("2006-01-02"), err)
			continue
		}
		dates = append(dates, day)
	}
	return dates
}

// buildCatalog parses the static feed archive and the station and line catalogs
func (m *Manager) buildCatalog(ctx context.Context) (*gtfs.Catalog, error) {
	var stations []gtfs.Station
	if err := readJSONFile(m.cfg.StationsFile, &stations); err != nil {
		return nil, fmt.Errorf("loading stations: %w", err)
	}
	var lines []gtfs.Line
	if err := readJSONFile(m.cfg.LinesFile, &lines); err != nil {
		return nil, fmt.Errorf("loading lines: %w", err)
	}

	archive, err := m.staticArchive(ctx)
	if err != nil {
		return nil, err
	}

	builder := newCatalogBuilder(m.log, m.cfg.RouteType, m.cfg.AgencyIds)
	if err = loadGtfsZipFile(m.log, builder, archive); err != nil {
		return nil, fmt.Errorf("reading %s: %w", archive, err)
	}
	trips := builder.buildTripSchedules()
	if len(trips) == 0 {
		return nil, fmt.Errorf("no trips of route type %d for agencies %s in %s", m.cfg.RouteType,
			strings.Join(m.cfg.AgencyIds, ","), archive)
	}
	return gtfs.NewCatalog(stations, lines, builder.buildRoutes(), trips, builder.calendars, builder.calendarDates), nil
}

// staticArchive returns the path of the gtfs zip to read, downloading it when no local archive is configured.
// A previously downloaded archive is reused while the server reports it unchanged.
func (m *Manager) staticArchive(ctx context.Context) (string, error) {
	if m.cfg.StaticArchivePath != "" {
		return m.cfg.StaticArchivePath, nil
	}
	if m.cfg.StaticURL == "" {
		return "", errors.New("neither a static archive path nor a static url is configured")
	}
	if err := os.MkdirAll(m.cfg.DataDir, 0o755); err != nil {
		return "", err
	}
	localGtfsZipFile := filepath.Join(m.cfg.DataDir, staticArchiveFileName)
	infoFile := filepath.Join(m.cfg.DataDir, staticArchiveInfoFileName)
	if m.archiveUnchanged(ctx, localGtfsZipFile, infoFile) {
		m.log.Printf("static feed at %s unchanged, reusing %s", m.cfg.StaticURL, localGtfsZipFile)
		return localGtfsZipFile, nil
	}

	start := time.Now()
	m.log.Printf("Downloading file from %s to %s\n", m.cfg.StaticURL, localGtfsZipFile)
	downloadedFile, err := httpclient.DownloadRemoteFile(ctx, localGtfsZipFile, m.cfg.StaticURL)
	if err != nil {
		_ = os.Remove(localGtfsZipFile)
		_ = os.Remove(infoFile)
		return "", fmt.Errorf("downloading static feed: %w", err)
	}
	m.log.Printf("Downloaded %v bytes in %v seconds\n",
		downloadedFile.Size, downloadedFile.DownloadedAt.Unix()-start.Unix())
	if err = writeJSONFile(infoFile, downloadedFile.RemoteFileInfo); err != nil {
		m.log.Printf("unable to record static feed version: %v", err)
	}
	return localGtfsZipFile, nil
}

// archiveUnchanged reports whether archive was downloaded from the version of StaticURL the server currently
// offers, comparing the ETag or modification time recorded in infoFile
func (m *Manager) archiveUnchanged(ctx context.Context, archive string, infoFile string) bool {
	if _, err := os.Stat(archive); err != nil {
		return false
	}
	var previous httpclient.RemoteFileInfo
	if err := readJSONFile(infoFile, &previous); err != nil {
		return false
	}
	if previous.ETag == "" && previous.LastModifiedTimestamp == 0 {
		return false
	}
	current, err := httpclient.GetRemoteFileInfo(ctx, m.cfg.StaticURL)
	if err != nil {
		m.log.Printf("unable to check static feed %s: %v", m.cfg.StaticURL, err)
		return false
	}
	return !previous.IsDifferent(current.ETag, current.LastModifiedTimestamp)
}

// HistoricalStops reads the actual-times records of date (YYYY-MM-DD), downloading the file when it is missing
// and a HistURL is configured
func (m *Manager) HistoricalStops(ctx context.Context, date string) ([]gtfs.HistoricalStop, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, fmt.Errorf("invalid historical date %q: %w", date, err)
	}
	path := filepath.Join(m.cfg.HistDir, date+".csv")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if m.cfg.HistURL == "" {
			return nil, fmt.Errorf("no historical data for %s in %s", date, m.cfg.HistDir)
		}
		if err = os.MkdirAll(m.cfg.HistDir, 0o755); err != nil {
			return nil, err
		}
		url := fmt.Sprintf(m.cfg.HistURL, date)
		m.log.Printf("Downloading historical data from %s to %s\n", url, path)
		if _, err = httpclient.DownloadRemoteFile(ctx, path, url); err != nil {
			_ = os.Remove(path)
			return nil, fmt.Errorf("downloading historical data: %w", err)
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	return readHistoricalStops(m.log, f, filepath.Base(path), m.cfg.OperatorId, m.cfg.Location)
}
