package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	logger "log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/OpenTransitTools/tramcast/app/tram-monitor/catalogmanager"
	"github.com/OpenTransitTools/tramcast/app/tram-monitor/monitor"
	"github.com/OpenTransitTools/tramcast/business/data/rtcache"
	"github.com/OpenTransitTools/tramcast/foundation/clock"
	"github.com/OpenTransitTools/tramcast/foundation/database"
	"github.com/OpenTransitTools/tramcast/foundation/httpclient"
	"github.com/ardanlabs/conf"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
)

var build = "develop"

// maxFeedBytes bounds the size of a realtime feed response
const maxFeedBytes = 64 << 20

func main() {
	log := logger.New(os.Stdout, "TRAM_MONITOR : ", logger.LstdFlags|logger.Lmicroseconds|logger.Lshortfile)
	if err := run(log); err != nil {
		log.Printf("main: error: %v", err)
		os.Exit(1)
	}
}

type config struct {
	conf.Version
	Args conf.Args
	GTFS struct {
		StaticURL         string   `conf:"default:https://opentransportdata.swiss/dataset/timetable-2024-gtfs2020/permalink"`
		StaticArchivePath string
		DataDir           string   `conf:"default:data"`
		StationsFile      string   `conf:"default:data/stations.json"`
		LinesFile         string   `conf:"default:data/lines.json"`
		RouteType         int      `conf:"default:900"`
		AgencyIds         []string `conf:"default:3849;46"`
		TimeZone          string   `conf:"default:Europe/Zurich"`
		BakeDays          int      `conf:"default:5"`
		CatalogVersion    int      `conf:"default:3"`
		UpdateWeekdays    []string `conf:"default:Mon;Thu"`
		UpdateHour        int      `conf:"default:15"`
		ForceRebuild      bool     `conf:"default:false"`
	}
	Realtime struct {
		URL                   string
		AuthKey               string `conf:"noprint"`
		Format                string `conf:"default:json"`
		FetchTimeoutSeconds   int    `conf:"default:5"`
		CoalesceSeconds       int    `conf:"default:10"`
		FallbackMaxAgeSeconds int    `conf:"default:300"`
		SmoothingWindow       int    `conf:"default:3"`
		MaxSnapshotAgeSeconds int    `conf:"default:120"`
		CacheBackend          string `conf:"default:file"`
	}
	DB struct {
		User       string `conf:"default:postgres"`
		Password   string `conf:"default:postgres,noprint"`
		Host       string `conf:"default:0.0.0.0"`
		Name       string `conf:"default:postgres"`
		DisableTLS bool   `conf:"default:true"`
	}
	NATS struct {
		URL                 string `conf:"default:nats://localhost:4222"`
		Subject             string `conf:"default:tram-positions"`
		PublishEverySeconds int    `conf:"default:5"`
	}
	Web struct {
		Port int `conf:"default:8080"`
	}
	Hist struct {
		Dir        string `conf:"default:data/hist"`
		URL        string
		OperatorId string `conf:"default:85:3849"`
	}
	Query struct {
		Active     bool   `conf:"default:false"`
		Line       string
		Station    int    `conf:"default:0"`
		Static     bool   `conf:"default:false"`
		Time       int64  `conf:"default:0"`
		TimeOffset int64  `conf:"default:0"`

		// ClockOffsetSeconds shifts the clock of every component, replaying a session at another time
		ClockOffsetSeconds int64 `conf:"default:0"`
	}
}

func run(log *logger.Logger) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env file: %w", err)
	}

	var cfg config
	cfg.Version.SVN = build
	cfg.Version.Desc = "Estimate tram positions from gtfs schedules and realtime trip updates"
	const prefix = "TRAM_MONITOR"
	if err := conf.Parse(os.Args[1:], prefix, &cfg); err != nil {
		switch err {
		case conf.ErrHelpWanted:
			usage, err := conf.Usage(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config usage: %w", err)
			}
			printUsage(usage)
			return nil
		case conf.ErrVersionWanted:
			version, err := conf.VersionString(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config version: %w", err)
			}
			fmt.Println(version)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Printf("main : Started : Application initializing : version %s", build)
	defer log.Println("main: Completed")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Printf("main: Config :\n%v\n", out)

	location, err := time.LoadLocation(cfg.GTFS.TimeZone)
	if err != nil {
		return fmt.Errorf("loading time zone %s: %w", cfg.GTFS.TimeZone, err)
	}
	weekdays, err := parseWeekdays(cfg.GTFS.UpdateWeekdays)
	if err != nil {
		return err
	}

	var engineClock clock.Clock = clock.RealClock{}
	if cfg.Query.ClockOffsetSeconds != 0 {
		offset := time.Duration(cfg.Query.ClockOffsetSeconds) * time.Second
		engineClock = clock.OffsetClock{Base: engineClock, Offset: offset}
		log.Printf("main: clock shifted by %v", offset)
	}
	manager := catalogmanager.NewManager(log, catalogmanager.Config{
		DataDir:           cfg.GTFS.DataDir,
		StaticArchivePath: cfg.GTFS.StaticArchivePath,
		StaticURL:         cfg.GTFS.StaticURL,
		StationsFile:      cfg.GTFS.StationsFile,
		LinesFile:         cfg.GTFS.LinesFile,
		RouteType:         cfg.GTFS.RouteType,
		AgencyIds:         cfg.GTFS.AgencyIds,
		Location:          location,
		BakeDays:          cfg.GTFS.BakeDays,
		Version:           cfg.GTFS.CatalogVersion,
		UpdateWeekdays:    weekdays,
		UpdateHour:        cfg.GTFS.UpdateHour,
		HistDir:           cfg.Hist.Dir,
		HistURL:           cfg.Hist.URL,
		OperatorId:        cfg.Hist.OperatorId,
	}, engineClock)

	ctx := context.Background()
	command := cfg.Args.Num(0)
	if command == "load" {
		return loadCatalog(ctx, log, manager, cfg.GTFS.ForceRebuild)
	}
	if !isEngineCommand(command) {
		printCommands()
		usage, err := conf.Usage(prefix, &cfg)
		if err != nil {
			return fmt.Errorf("generating config usage: %w", err)
		}
		printUsage(usage)
		return nil
	}

	// =========================================================================
	// Start Realtime Feed

	metrics := monitor.NewMetrics()
	var reconciler *monitor.Reconciler
	if cfg.Realtime.URL != "" {
		store, closeStore, err := openCacheStore(ctx, log, &cfg)
		if err != nil {
			return err
		}
		defer closeStore()
		cache := monitor.NewSnapshotCache(log, store, cfg.Realtime.SmoothingWindow)
		fetchTimeout := time.Duration(cfg.Realtime.FetchTimeoutSeconds) * time.Second
		fetcher := monitor.NewHTTPFeedFetcher(httpclient.NewClient(fetchTimeout, maxFeedBytes),
			cfg.Realtime.URL, cfg.Realtime.AuthKey)
		reconciler = monitor.NewReconciler(log, fetcher, cache, engineClock, monitor.ReconcilerConfig{
			Format:       strings.ToLower(cfg.Realtime.Format),
			FetchTimeout: fetchTimeout,
			Policy: monitor.CachePolicy{
				Coalesce:       time.Duration(cfg.Realtime.CoalesceSeconds) * time.Second,
				FallbackMaxAge: time.Duration(cfg.Realtime.FallbackMaxAgeSeconds) * time.Second,
			},
			SmoothingMaxAge: time.Duration(cfg.Realtime.MaxSnapshotAgeSeconds) * time.Second,
		}, metrics)
	} else {
		log.Println("main: no realtime feed url configured, answering from the schedule")
	}
	engine := monitor.NewEngine(log, manager, reconciler, engineClock, metrics)

	opts := monitor.QueryOptions{
		Time:       cfg.Query.Time,
		TimeOffset: cfg.Query.TimeOffset,
		ActiveOnly: cfg.Query.Active,
		Route:      cfg.Query.Line,
		Station:    cfg.Query.Station,
		StaticOnly: cfg.Query.Static,
	}

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	switch command {
	case "query":
		vehicles, err := engine.Query(ctx, opts)
		if err != nil {
			return err
		}
		return printJSON(vehicles)
	case "hist":
		date := cfg.Args.Num(1)
		if len(date) < 1 {
			return fmt.Errorf("expected date (YYYY-MM-DD) with command hist")
		}
		vehicles, err := engine.Replay(ctx, date, opts)
		if err != nil {
			return err
		}
		return printJSON(vehicles)
	case "serve":
		return monitor.RunWebService(log, engine, cfg.Web.Port, shutdown)
	case "publish":
		log.Printf("main: Connecting to NATS %s", cfg.NATS.URL)
		natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name("tram-monitor"))
		if err != nil {
			return fmt.Errorf("connecting to nats: %w", err)
		}
		defer natsConnection.Close()
		return monitor.RunPublishLoop(log, engine, natsConnection, cfg.NATS.Subject, cfg.NATS.PublishEverySeconds,
			shutdown)
	}
	return nil
}

func isEngineCommand(command string) bool {
	switch command {
	case "query", "hist", "serve", "publish":
		return true
	}
	return false
}

// loadCatalog builds the schedule catalog, rebuilding from the static feed when force is set
func loadCatalog(ctx context.Context, log *logger.Logger, manager *catalogmanager.Manager, force bool) error {
	load := manager.Catalog
	if force {
		load = manager.Rebuild
	}
	catalog, err := load(ctx)
	if err != nil {
		return err
	}
	trips, err := manager.DayTrips(ctx, time.Now())
	if err != nil {
		return err
	}
	log.Printf("main: catalog has %d stations, %d lines, %d routes and %d trips, %d trips operate today",
		len(catalog.Stations), len(catalog.Lines), len(catalog.Routes), len(catalog.Trips), len(trips))
	return nil
}

// openCacheStore creates the realtime snapshot store selected by the cache backend, the returned function
// releases it
func openCacheStore(ctx context.Context, log *logger.Logger, cfg *config) (rtcache.Store, func(), error) {
	switch strings.ToLower(cfg.Realtime.CacheBackend) {
	case "memory":
		return rtcache.NewMemoryStore(), func() {}, nil
	case "db":
		log.Println("main: Initializing database support")
		db, err := database.Open(database.Config{
			User:       cfg.DB.User,
			Password:   cfg.DB.Password,
			Host:       cfg.DB.Host,
			Name:       cfg.DB.Name,
			DisableTLS: cfg.DB.DisableTLS,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to db: %w", err)
		}
		closeDb := func() {
			log.Printf("main: Database Stopping : %s", cfg.DB.Host)
			if err := db.Close(); err != nil {
				log.Printf("main: error closing database: %v", err)
			}
		}
		store := rtcache.NewDBStore(db)
		if err = store.EnsureSchema(ctx); err != nil {
			closeDb()
			return nil, nil, fmt.Errorf("creating realtime cache table: %w", err)
		}
		return store, closeDb, nil
	case "file":
		store, err := rtcache.NewFileStore(filepath.Join(cfg.GTFS.DataDir, "realtime"))
		if err != nil {
			return nil, nil, fmt.Errorf("creating realtime cache directory: %w", err)
		}
		return store, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown realtime cache backend %q", cfg.Realtime.CacheBackend)
}

func parseWeekdays(names []string) ([]time.Weekday, error) {
	weekdays := make([]time.Weekday, 0, len(names))
	for _, name := range names {
		found := false
		for d := time.Sunday; d <= time.Saturday; d++ {
			if strings.EqualFold(strings.TrimSpace(name), d.String()[:3]) ||
				strings.EqualFold(strings.TrimSpace(name), d.String()) {
				weekdays = append(weekdays, d)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown update weekday %q", name)
		}
	}
	return weekdays, nil
}

func printJSON(v interface{}) error {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling output: %w", err)
	}
	fmt.Println(string(jsonData))
	return nil
}

func printCommands() {
	fmt.Println("load: build (--gtfs-force-rebuild to rebuild) the schedule catalog and bake upcoming days")
	fmt.Println("query: print the estimated vehicles once as json")
	fmt.Println("serve: answer vehicle queries over http")
	fmt.Println("publish: publish active vehicles on a nats subject")
	fmt.Println("hist <YYYY-MM-DD>: replay the actual times of a past day")
}

func printUsage(confUsage string) {
	fmt.Println(confUsage)
}
