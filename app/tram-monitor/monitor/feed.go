package monitor

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/OpenTransitTools/tramcast/business/data/gtfs"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// Realtime feed encodings
const (
	FeedFormatJSON     = "json"
	FeedFormatProtobuf = "protobuf"
)

// FeedError is an explicit error payload returned by the realtime feed in place of trip updates
type FeedError struct {
	Payload string
}

func (e *FeedError) Error() string {
	return "realtime feed returned an error: " + e.Payload
}

// decodeFeed parses a realtime feed body. Header fields required by the protobuf schema may be missing.
func decodeFeed(body []byte, format string) (*gtfsrt.FeedMessage, error) {
	feed := &gtfsrt.FeedMessage{}
	if format == FeedFormatProtobuf {
		if err := (proto.UnmarshalOptions{AllowPartial: true, DiscardUnknown: true}).Unmarshal(body, feed); err != nil {
			return nil, fmt.Errorf("parsing protobuf realtime feed: %w", err)
		}
		return feed, nil
	}
	var topLevel map[string]json.RawMessage
	if err := json.Unmarshal(body, &topLevel); err != nil {
		return nil, fmt.Errorf("parsing json realtime feed: %w", err)
	}
	if payload, present := topLevel["error"]; present {
		return nil, &FeedError{Payload: string(payload)}
	}
	if err := (protojson.UnmarshalOptions{AllowPartial: true, DiscardUnknown: true}).Unmarshal(body, feed); err != nil {
		return nil, fmt.Errorf("parsing json realtime feed: %w", err)
	}
	return feed, nil
}

// encodeFeed marshals feed as protobuf json
func encodeFeed(feed *gtfsrt.FeedMessage) ([]byte, error) {
	return protojson.MarshalOptions{AllowPartial: true}.Marshal(feed)
}

// filterFeed keeps the trip update entities whose trip id is in tripIds
func filterFeed(feed *gtfsrt.FeedMessage, tripIds map[string]bool) *gtfsrt.FeedMessage {
	filtered := &gtfsrt.FeedMessage{Header: feed.GetHeader()}
	for _, entity := range feed.GetEntity() {
		if tripIds[entity.GetTripUpdate().GetTrip().GetTripId()] {
			filtered.Entity = append(filtered.Entity, entity)
		}
	}
	return filtered
}

// TripUpdates holds realtime updates by trip id. The same trip id may be reported for more than one start date.
type TripUpdates map[string][]gtfs.TripUpdate

// Lookup finds the update for the trip operating on serviceDate (YYYYMMDD). An update whose start date
// matches is preferred over one without a start date.
func (u TripUpdates) Lookup(tripId string, serviceDate string) *gtfs.TripUpdate {
	var undated *gtfs.TripUpdate
	updates := u[tripId]
	for i := range updates {
		if updates[i].StartDate != "" && updates[i].StartDate == serviceDate {
			return &updates[i]
		}
		if undated == nil && updates[i].AppliesTo(serviceDate) {
			undated = &updates[i]
		}
	}
	return undated
}

// tripIds returns the trip ids held in u in ascending order
func (u TripUpdates) tripIds() []string {
	ids := make([]string, 0, len(u))
	for id := range u {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// makeTripUpdates converts the trip update entities of feed
func makeTripUpdates(feed *gtfsrt.FeedMessage) TripUpdates {
	updates := make(TripUpdates)
	for _, entity := range feed.GetEntity() {
		tu := entity.GetTripUpdate()
		if tu == nil || tu.GetTrip().GetTripId() == "" {
			continue
		}
		update := convertTripUpdate(tu)
		updates[update.TripId] = append(updates[update.TripId], update)
	}
	return updates
}

func convertTripUpdate(tu *gtfsrt.TripUpdate) gtfs.TripUpdate {
	trip := tu.GetTrip()
	update := gtfs.TripUpdate{
		TripId:     trip.GetTripId(),
		StartTime:  trip.GetStartTime(),
		StartDate:  trip.GetStartDate(),
		TripStatus: strings.ToLower(trip.GetScheduleRelationship().String()),
		Stops:      make([]gtfs.StopTimeUpdate, 0, len(tu.GetStopTimeUpdate())),
	}
	for _, stu := range tu.GetStopTimeUpdate() {
		update.Stops = append(update.Stops, gtfs.StopTimeUpdate{
			StopId:         stu.GetStopId(),
			StopSequence:   int(stu.GetStopSequence()),
			StopStatus:     strings.ToLower(stu.GetScheduleRelationship().String()),
			ArrivalDelay:   int(stu.GetArrival().GetDelay()),
			DepartureDelay: int(stu.GetDeparture().GetDelay()),
		})
	}
	return update
}
