package monitor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/OpenTransitTools/tramcast/business/data/gtfs"
	"github.com/OpenTransitTools/tramcast/business/data/rtcache"
	"github.com/OpenTransitTools/tramcast/foundation/clock"
	"github.com/OpenTransitTools/tramcast/foundation/httpclient"
	"github.com/matryer/is"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/protobuf/proto"
)

// fakeFetcher returns a configured body or error, or blocks until the context ends
type fakeFetcher struct {
	mu    sync.Mutex
	body  []byte
	err   error
	block bool
	calls int
}

func (f *fakeFetcher) respond(body []byte, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.body = body
	f.err = err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFetcher) Fetch(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	body, err, block := f.body, f.err, f.block
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return body, err
}

func testReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		Format:          FeedFormatJSON,
		FetchTimeout:    50 * time.Millisecond,
		Policy:          CachePolicy{Coalesce: 10 * time.Second, FallbackMaxAge: 5 * time.Minute},
		SmoothingMaxAge: 2 * time.Minute,
	}
}

type reconcilerFixture struct {
	reconciler *Reconciler
	fetcher    *fakeFetcher
	store      *rtcache.MemoryStore
	cache      *SnapshotCache
	clock      *clock.MockClock
	metrics    *Metrics
	logWriter  *testLogWriter
}

func makeReconcilerFixture(t *testing.T, cfg ReconcilerConfig) *reconcilerFixture {
	logWriter := makeTestLogWriter()
	store := rtcache.NewMemoryStore()
	cache := NewSnapshotCache(logWriter.log, store, 3)
	mockClock := clock.NewMockClock(testServiceDate(t).Add(8 * time.Hour))
	fetcher := &fakeFetcher{}
	metrics := NewMetrics()
	return &reconcilerFixture{
		reconciler: NewReconciler(logWriter.log, fetcher, cache, mockClock, cfg, metrics),
		fetcher:    fetcher,
		store:      store,
		cache:      cache,
		clock:      mockClock,
		metrics:    metrics,
		logWriter:  logWriter,
	}
}

func (f *reconcilerFixture) outcomes(outcome string) float64 {
	return testutil.ToFloat64(f.metrics.FeedFetches.WithLabelValues(outcome))
}

func arrivalDelay(updates TripUpdates, tripId string, stopId string) int {
	update := updates.Lookup(tripId, "20240605")
	if su := update.StopUpdate(stopId); su != nil {
		return su.ArrivalDelay
	}
	return -1
}

func TestReconciler_Reconcile(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	f := makeReconcilerFixture(t, testReconcilerConfig())
	trips := testTrips(testServiceDate(t))
	start := f.clock.NowUnixMilli()
	f.fetcher.respond(feedJSON(t, testFeed(
		tripUpdateEntity("t1", "20240605", false, testStopUpdate{stopId: "8591002:0:A", arrivalDelay: 30}),
		tripUpdateEntity("unknown", "20240605", false, testStopUpdate{stopId: "8591002:0:A", arrivalDelay: 99}),
	)), nil)

	//fetched and filtered to the day's trips
	updates := f.reconciler.Reconcile(ctx, trips)
	is.Equal(updates.tripIds(), []string{"t1"})
	is.Equal(arrivalDelay(updates, "t1", "8591002:0:A"), 30)
	is.Equal(f.fetcher.callCount(), 1)
	cached, capturedAt, ok := f.cache.LastKnownGood(ctx)
	is.True(ok)
	is.Equal(capturedAt, start)
	is.Equal(len(cached.Entity), 1)
	is.Equal(len(f.cache.Snapshots(ctx)), 1)
	is.Equal(f.outcomes(fetchOk), 1.0)

	//recent cache is reused without fetching
	f.fetcher.respond(nil, errors.New("unreachable"))
	f.clock.Advance(5 * time.Second)
	updates = f.reconciler.Reconcile(ctx, trips)
	is.Equal(arrivalDelay(updates, "t1", "8591002:0:A"), 30)
	is.Equal(f.fetcher.callCount(), 1)
	is.Equal(f.outcomes(fetchCoalesced), 1.0)

	//failed fetch falls back to the usable cache
	f.clock.Advance(25 * time.Second)
	updates = f.reconciler.Reconcile(ctx, trips)
	is.Equal(arrivalDelay(updates, "t1", "8591002:0:A"), 30)
	is.Equal(f.fetcher.callCount(), 2)
	is.Equal(f.outcomes(fetchFallback), 1.0)
	is.True(f.logWriter.contains("using realtime feed cached 30s ago"))
	is.Equal(len(f.cache.Snapshots(ctx)), 1) // fallbacks add no smoothing snapshot

	//expired cache yields no updates
	f.clock.Advance(5 * time.Minute)
	updates = f.reconciler.Reconcile(ctx, trips)
	is.Equal(len(updates), 0)
	is.Equal(f.outcomes(fetchEmpty), 1.0)
	is.True(f.logWriter.contains("no usable realtime data, cache expired"))
}

func TestReconciler_Reconcile_smoothing(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	f := makeReconcilerFixture(t, testReconcilerConfig())
	trips := testTrips(testServiceDate(t))

	var got []int
	for _, delay := range []int32{30, 60, 90} {
		f.fetcher.respond(feedJSON(t, testFeed(
			tripUpdateEntity("t1", "20240605", false, testStopUpdate{stopId: "8591002:0:A", arrivalDelay: delay}),
		)), nil)
		got = append(got, arrivalDelay(f.reconciler.Reconcile(ctx, trips), "t1", "8591002:0:A"))
		f.clock.Advance(15 * time.Second)
	}
	is.Equal(got, []int{30, 45, 60})

	//ring snapshots keep the unsmoothed delays
	stored := make(map[int]bool)
	for _, s := range f.cache.Snapshots(ctx) {
		stored[arrivalDelay(s.tripUpdates(), "t1", "8591002:0:A")] = true
	}
	is.Equal(stored, map[int]bool{30: true, 60: true, 90: true})
}

func TestReconciler_Reconcile_feedErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       []byte
		err        error
		wantLogged string
	}{
		{name: "error payload", body: []byte(`{"error":"quota exceeded"}`),
			wantLogged: `realtime feed returned an error: "quota exceeded"`},
		{name: "malformed", body: []byte(`<html>`), wantLogged: "parsing json realtime feed"},
		{name: "transport", err: errors.New("connection refused"), wantLogged: "connection refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			ctx := context.Background()
			f := makeReconcilerFixture(t, testReconcilerConfig())
			f.fetcher.respond(tt.body, tt.err)
			updates := f.reconciler.Reconcile(ctx, testTrips(testServiceDate(t)))
			is.Equal(len(updates), 0)
			is.True(f.logWriter.contains(tt.wantLogged))
			is.True(f.logWriter.contains("cache absent"))
		})
	}
}

func TestReconciler_Reconcile_corruptCache(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	f := makeReconcilerFixture(t, testReconcilerConfig())
	is.NoErr(f.store.Write(ctx, lastKnownGoodKey, []byte("garbage")))
	f.fetcher.respond(nil, errors.New("unreachable"))

	updates := f.reconciler.Reconcile(ctx, testTrips(testServiceDate(t)))
	is.Equal(len(updates), 0)
	_, err := f.store.Read(ctx, lastKnownGoodKey)
	is.True(errors.Is(err, rtcache.ErrNotFound))
}

func TestReconciler_Reconcile_futureCache(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	f := makeReconcilerFixture(t, testReconcilerConfig())
	is.NoErr(f.cache.SaveLastKnownGood(ctx, testFeed(tripUpdateEntity("t1", "", true)),
		f.clock.NowUnixMilli()+60000))
	f.fetcher.respond(nil, errors.New("unreachable"))

	updates := f.reconciler.Reconcile(ctx, testTrips(testServiceDate(t)))
	is.Equal(len(updates), 0)
	is.Equal(f.fetcher.callCount(), 1)
}

func TestReconciler_timeoutRunsOnSchedule(t *testing.T) {
	is := is.New(t)
	cfg := testReconcilerConfig()
	cfg.FetchTimeout = 20 * time.Millisecond
	f := makeReconcilerFixture(t, cfg)
	f.fetcher.block = true

	serviceDate := testServiceDate(t)
	source := makeStaticSource(t, testTrips(serviceDate))
	engine := NewEngine(f.logWriter.log, source, f.reconciler, f.clock, f.metrics)
	vehicles, err := engine.Query(context.Background(), QueryOptions{Time: at(serviceDate, 8, 2, 0)})
	is.NoErr(err)
	is.Equal(len(vehicles), 3)
	for _, v := range vehicles {
		is.Equal(v.Delay, 0)
		for _, s := range v.Stops {
			is.Equal(s.PredArrival, s.Arrival)
			is.Equal(s.PredDeparture, s.Departure)
		}
	}
	is.True(f.logWriter.contains("context deadline exceeded"))
}

func TestHTTPFeedFetcher(t *testing.T) {
	is := is.New(t)
	feed := testFeed(tripUpdateEntity("t1", "20240605", false, testStopUpdate{stopId: "8591001:0:A", arrivalDelay: 12}))
	body, err := proto.Marshal(feed)
	is.NoErr(err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "api-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	cfg := testReconcilerConfig()
	cfg.Format = FeedFormatProtobuf
	f := makeReconcilerFixture(t, cfg)
	fetcher := NewHTTPFeedFetcher(httpclient.NewClient(time.Second, 1<<20), srv.URL, "api-key")
	reconciler := NewReconciler(f.logWriter.log, fetcher, f.cache, f.clock, cfg, nil)
	updates := reconciler.Reconcile(context.Background(), testTrips(testServiceDate(t)))
	is.Equal(arrivalDelay(updates, "t1", "8591001:0:A"), 12)

	unauthorized := NewHTTPFeedFetcher(httpclient.NewClient(time.Second, 1<<20), srv.URL, "")
	_, err = unauthorized.Fetch(context.Background())
	is.True(err != nil)
}

func TestReconciler_filtersCachedFeedToTrips(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	f := makeReconcilerFixture(t, testReconcilerConfig())
	is.NoErr(f.cache.SaveLastKnownGood(ctx, testFeed(
		tripUpdateEntity("t1", "", false, testStopUpdate{stopId: "8591002:0:A", arrivalDelay: 5}),
		tripUpdateEntity("t3", "", false, testStopUpdate{stopId: "8591003:0:B", arrivalDelay: 7}),
	), f.clock.NowUnixMilli()))

	onlyT3 := []gtfs.TripSchedule{testTrips(testServiceDate(t))[2]}
	updates := f.reconciler.Reconcile(ctx, onlyT3)
	is.Equal(updates.tripIds(), []string{"t3"})
}
