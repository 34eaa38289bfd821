package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/OpenTransitTools/tramcast/business/data/gtfs"
	"github.com/OpenTransitTools/tramcast/business/data/rtcache"
	"google.golang.org/protobuf/encoding/protojson"
)

const lastKnownGoodKey = "lastKnownGood"

func ringSlotKey(slot int) string {
	return fmt.Sprintf("smoothing%d", slot)
}

// lastKnownGood is the persisted form of the latest successfully fetched feed subset
type lastKnownGood struct {
	Time int64           `json:"time"`
	Data json.RawMessage `json:"data"`
}

// ringSnapshot is one reconciliation kept for delay smoothing. Updates are stored unsmoothed.
type ringSnapshot struct {
	Time   int64       `json:"time"`
	Update []ringEntry `json:"update"`
}

// ringEntry is a trip id, update pair, persisted as a two element array
type ringEntry struct {
	TripId string
	Update gtfs.TripUpdate
}

func (e ringEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{e.TripId, e.Update})
}

func (e *ringEntry) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("expected [tripId, update] pair, found %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &e.TripId); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &e.Update)
}

// makeRingSnapshot flattens updates captured at capturedAt into a ringSnapshot
func makeRingSnapshot(updates TripUpdates, capturedAt int64) ringSnapshot {
	snapshot := ringSnapshot{Time: capturedAt, Update: make([]ringEntry, 0, len(updates))}
	for _, tripId := range updates.tripIds() {
		for _, update := range updates[tripId] {
			snapshot.Update = append(snapshot.Update, ringEntry{TripId: tripId, Update: update})
		}
	}
	return snapshot
}

// tripUpdates rebuilds the trip id index of the snapshot
func (s *ringSnapshot) tripUpdates() TripUpdates {
	updates := make(TripUpdates, len(s.Update))
	for _, entry := range s.Update {
		updates[entry.TripId] = append(updates[entry.TripId], entry.Update)
	}
	return updates
}

// SnapshotCache keeps the last known good feed and a ring of recent snapshots in a rtcache.Store.
// Unreadable entries are removed and treated as absent.
type SnapshotCache struct {
	log   *log.Logger
	store rtcache.Store
	slots int

	// serializes ring slot selection
	mu sync.Mutex
}

// NewSnapshotCache creates a SnapshotCache with slots smoothing slots
func NewSnapshotCache(log *log.Logger, store rtcache.Store, slots int) *SnapshotCache {
	return &SnapshotCache{
		log:   log,
		store: store,
		slots: slots,
	}
}

// read loads the entry under key into v, false if it is missing or unreadable
func (c *SnapshotCache) read(ctx context.Context, key string, v interface{}) bool {
	data, err := c.store.Read(ctx, key)
	if err != nil {
		if !errors.Is(err, rtcache.ErrNotFound) {
			c.log.Printf("unable to read realtime cache entry %s: %v", key, err)
		}
		return false
	}
	if err = json.Unmarshal(data, v); err != nil {
		c.discard(ctx, key, err)
		return false
	}
	return true
}

func (c *SnapshotCache) discard(ctx context.Context, key string, cause error) {
	c.log.Printf("discarding corrupt realtime cache entry %s: %v", key, cause)
	if err := c.store.Remove(ctx, key); err != nil {
		c.log.Printf("unable to remove realtime cache entry %s: %v", key, err)
	}
}

func (c *SnapshotCache) write(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling realtime cache entry %s: %w", key, err)
	}
	if err = c.store.Write(ctx, key, data); err != nil {
		return fmt.Errorf("writing realtime cache entry %s: %w", key, err)
	}
	return nil
}

// LastKnownGood returns the cached feed subset and its capture time in epoch milliseconds,
// false when nothing usable is cached
func (c *SnapshotCache) LastKnownGood(ctx context.Context) (*gtfsrt.FeedMessage, int64, bool) {
	var entry lastKnownGood
	if !c.read(ctx, lastKnownGoodKey, &entry) {
		return nil, 0, false
	}
	if entry.Time == 0 || len(entry.Data) == 0 {
		c.discard(ctx, lastKnownGoodKey, errors.New("missing time or data"))
		return nil, 0, false
	}
	feed := &gtfsrt.FeedMessage{}
	if err := (protojson.UnmarshalOptions{AllowPartial: true, DiscardUnknown: true}).Unmarshal(entry.Data, feed); err != nil {
		c.discard(ctx, lastKnownGoodKey, err)
		return nil, 0, false
	}
	return feed, entry.Time, true
}

// SaveLastKnownGood replaces the cached feed subset
func (c *SnapshotCache) SaveLastKnownGood(ctx context.Context, feed *gtfsrt.FeedMessage, capturedAt int64) error {
	data, err := encodeFeed(feed)
	if err != nil {
		return fmt.Errorf("encoding realtime feed: %w", err)
	}
	return c.write(ctx, lastKnownGoodKey, lastKnownGood{Time: capturedAt, Data: data})
}

// Snapshots returns the readable ring snapshots, skipping empty and corrupt slots
func (c *SnapshotCache) Snapshots(ctx context.Context) []ringSnapshot {
	var snapshots []ringSnapshot
	for slot := 0; slot < c.slots; slot++ {
		var snapshot ringSnapshot
		if c.read(ctx, ringSlotKey(slot), &snapshot) {
			snapshots = append(snapshots, snapshot)
		}
	}
	return snapshots
}

// AddSnapshot stores snapshot in an empty slot, or in place of the oldest snapshot when all slots are used
func (c *SnapshotCache) AddSnapshot(ctx context.Context, snapshot ringSnapshot) error {
	if c.slots <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	target := -1
	var oldest int64
	for slot := 0; slot < c.slots; slot++ {
		var stored ringSnapshot
		if !c.read(ctx, ringSlotKey(slot), &stored) {
			target = slot
			break
		}
		if target < 0 || stored.Time < oldest {
			target = slot
			oldest = stored.Time
		}
	}
	return c.write(ctx, ringSlotKey(target), snapshot)
}
