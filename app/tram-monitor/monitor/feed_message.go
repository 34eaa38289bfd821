package monitor

import (
	"strings"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/OpenTransitTools/tramcast/business/data/gtfs"
	"google.golang.org/protobuf/proto"
)

// buildFeedMessage creates a full dataset trip updates feed carrying the repaired predictions of vehicles,
// timestamp is in epoch seconds
func buildFeedMessage(vehicles []gtfs.Vehicle, timestamp uint64) *gtfsrt.FeedMessage {
	incrementality := gtfsrt.FeedHeader_FULL_DATASET
	feedMessage := gtfsrt.FeedMessage{
		Header: &gtfsrt.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      &incrementality,
			Timestamp:           proto.Uint64(timestamp),
		},
		Entity: make([]*gtfsrt.FeedEntity, 0, len(vehicles)),
	}
	for i := range vehicles {
		feedMessage.Entity = append(feedMessage.Entity, makeTripUpdateFeedEntity(&vehicles[i], timestamp))
	}
	return &feedMessage
}

// makeTripUpdateFeedEntity creates a gtfsrt.FeedEntity for vehicle, delays are predicted minus scheduled times
func makeTripUpdateFeedEntity(vehicle *gtfs.Vehicle, timestamp uint64) *gtfsrt.FeedEntity {
	tripRelationship := tripScheduleRelationship(vehicle.TripStatus)
	tripUpdate := gtfsrt.TripUpdate{
		Trip: &gtfsrt.TripDescriptor{
			TripId:               proto.String(vehicle.TripId),
			RouteId:              proto.String(vehicle.RouteId),
			StartDate:            proto.String(vehicle.ServiceDate),
			ScheduleRelationship: &tripRelationship,
		},
		Timestamp:      proto.Uint64(timestamp),
		Delay:          proto.Int32(int32(vehicle.Delay)),
		StopTimeUpdate: make([]*gtfsrt.TripUpdate_StopTimeUpdate, 0, len(vehicle.Stops)),
	}
	for _, stop := range vehicle.Stops {
		stopRelationship := stopScheduleRelationship(stop.StopStatus)
		tripUpdate.StopTimeUpdate = append(tripUpdate.StopTimeUpdate, &gtfsrt.TripUpdate_StopTimeUpdate{
			StopSequence:         proto.Uint32(uint32(stop.StopSequence)),
			StopId:               proto.String(stop.StopId),
			ScheduleRelationship: &stopRelationship,
			Arrival: &gtfsrt.TripUpdate_StopTimeEvent{
				Delay: proto.Int32(int32((stop.PredArrival - stop.Arrival) / 1000)),
				Time:  proto.Int64(stop.PredArrival / 1000),
			},
			Departure: &gtfsrt.TripUpdate_StopTimeEvent{
				Delay: proto.Int32(int32((stop.PredDeparture - stop.Departure) / 1000)),
				Time:  proto.Int64(stop.PredDeparture / 1000),
			},
		})
	}
	return &gtfsrt.FeedEntity{
		Id:         proto.String(vehicle.TripId + ":" + vehicle.ServiceDate),
		TripUpdate: &tripUpdate,
	}
}

func tripScheduleRelationship(status string) gtfsrt.TripDescriptor_ScheduleRelationship {
	if value, ok := gtfsrt.TripDescriptor_ScheduleRelationship_value[strings.ToUpper(status)]; ok {
		return gtfsrt.TripDescriptor_ScheduleRelationship(value)
	}
	return gtfsrt.TripDescriptor_SCHEDULED
}

func stopScheduleRelationship(status string) gtfsrt.TripUpdate_StopTimeUpdate_ScheduleRelationship {
	if value, ok := gtfsrt.TripUpdate_StopTimeUpdate_ScheduleRelationship_value[strings.ToUpper(status)]; ok {
		return gtfsrt.TripUpdate_StopTimeUpdate_ScheduleRelationship(value)
	}
	return gtfsrt.TripUpdate_StopTimeUpdate_SCHEDULED
}
