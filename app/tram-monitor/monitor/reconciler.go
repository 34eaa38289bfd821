package monitor

import (
	"context"
	"fmt"
	"log"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/OpenTransitTools/tramcast/business/data/gtfs"
	"github.com/OpenTransitTools/tramcast/foundation/clock"
	"github.com/OpenTransitTools/tramcast/foundation/httpclient"
)

// FeedFetcher retrieves the encoded realtime trip updates feed
type FeedFetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// HTTPFeedFetcher retrieves the realtime feed from a url, authenticating with an api key. Compressed responses
// are negotiated and decoded by the transport.
type HTTPFeedFetcher struct {
	client  *httpclient.Client
	url     string
	headers map[string]string
}

// NewHTTPFeedFetcher creates a HTTPFeedFetcher. authKey is sent as the Authorization header when present.
func NewHTTPFeedFetcher(client *httpclient.Client, url string, authKey string) *HTTPFeedFetcher {
	headers := make(map[string]string)
	if authKey != "" {
		headers["Authorization"] = authKey
	}
	return &HTTPFeedFetcher{
		client:  client,
		url:     url,
		headers: headers,
	}
}

func (h *HTTPFeedFetcher) Fetch(ctx context.Context) ([]byte, error) {
	return h.client.Get(ctx, h.url, h.headers)
}

// ReconcilerConfig holds the realtime feed settings of a Reconciler
type ReconcilerConfig struct {
	Format       string
	FetchTimeout time.Duration
	Policy       CachePolicy
	// SmoothingMaxAge is the oldest ring snapshot averaged into current delays
	SmoothingMaxAge time.Duration
}

// Reconciler matches the realtime feed to a day's scheduled trips
type Reconciler struct {
	log     *log.Logger
	fetcher FeedFetcher
	cache   *SnapshotCache
	clock   clock.Clock
	cfg     ReconcilerConfig
	metrics *Metrics
}

// NewReconciler creates a Reconciler
func NewReconciler(log *log.Logger,
	fetcher FeedFetcher,
	cache *SnapshotCache,
	clock clock.Clock,
	cfg ReconcilerConfig,
	metrics *Metrics) *Reconciler {
	return &Reconciler{
		log:     log,
		fetcher: fetcher,
		cache:   cache,
		clock:   clock,
		cfg:     cfg,
		metrics: metrics,
	}
}

// Reconcile returns smoothed realtime updates for trips. Feed failures fall back to the cached snapshot while
// it is usable, otherwise no updates are returned and trips run on schedule.
func (r *Reconciler) Reconcile(ctx context.Context, trips []gtfs.TripSchedule) TripUpdates {
	now := r.clock.NowUnixMilli()
	tripIds := make(map[string]bool, len(trips))
	for _, t := range trips {
		tripIds[t.TripId] = true
	}

	cached, capturedAt, ok := r.cache.LastKnownGood(ctx)
	if !ok {
		capturedAt = 0
	}
	freshness := r.cfg.Policy.Classify(capturedAt, now)

	var feed *gtfsrt.FeedMessage
	fresh := false
	if freshness == Recent {
		feed = cached
		r.metrics.feedFetched(fetchCoalesced)
	} else {
		fetched, err := r.fetch(ctx)
		switch {
		case err == nil:
			feed = filterFeed(fetched, tripIds)
			capturedAt = now
			fresh = true
			if err = r.cache.SaveLastKnownGood(ctx, feed, capturedAt); err != nil {
				r.log.Printf("unable to save realtime feed: %v", err)
			}
			r.metrics.feedFetched(fetchOk)
		case freshness == Usable:
			r.log.Printf("using realtime feed cached %v ago: %v", time.Duration(now-capturedAt)*time.Millisecond, err)
			feed = cached
			r.metrics.feedFetched(fetchFallback)
		default:
			r.log.Printf("no usable realtime data, cache %s: %v", freshness, err)
			r.metrics.feedFetched(fetchEmpty)
			return TripUpdates{}
		}
	}

	current := makeTripUpdates(filterFeed(feed, tripIds))
	snapshots := r.cache.Snapshots(ctx)
	if fresh {
		if err := r.cache.AddSnapshot(ctx, makeRingSnapshot(current, capturedAt)); err != nil {
			r.log.Printf("unable to save smoothing snapshot: %v", err)
		}
	}
	return smoothDelays(current, capturedAt, snapshots, r.cfg.SmoothingMaxAge.Milliseconds())
}

// fetch retrieves and decodes the feed, bounded by the fetch timeout
func (r *Reconciler) fetch(ctx context.Context) (*gtfsrt.FeedMessage, error) {
	if r.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.FetchTimeout)
		defer cancel()
	}
	body, err := r.fetcher.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching realtime feed: %w", err)
	}
	return decodeFeed(body, r.cfg.Format)
}
