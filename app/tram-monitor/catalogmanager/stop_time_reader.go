package catalogmanager

import (
	"github.com/OpenTransitTools/tramcast/business/data/gtfs"
)

const batchedStopTimeCount = 250

// stopTimeRowReader implements gtfsRowReader interface for gtfs.StopTime
// batches stop times before handing them to the builder
type stopTimeRowReader struct {
	batchedStopTimes []gtfs.StopTime
}

func (s *stopTimeRowReader) addRow(parser *gtfsFileParser, builder *catalogBuilder) error {
	stopTime, err := buildStopTime(parser)
	if err != nil {
		return err
	}
	s.batchedStopTimes = append(s.batchedStopTimes, *stopTime)

	//check if its time to hand over the batch
	if len(s.batchedStopTimes) == batchedStopTimeCount {
		return s.flush(builder)
	}
	return nil
}

func (s *stopTimeRowReader) flush(builder *catalogBuilder) error {
	//check if there's something to do
	if len(s.batchedStopTimes) == 0 {
		return nil
	}
	builder.addStopTimes(s.batchedStopTimes)

	// truncate the batch
	s.batchedStopTimes = make([]gtfs.StopTime, 0, batchedStopTimeCount)
	return nil
}

func buildStopTime(parser *gtfsFileParser) (*gtfs.StopTime, error) {
	stopTime := gtfs.StopTime{}
	stopTime.TripId = parser.getString("trip_id", false)
	stopTime.StopId = parser.getString("stop_id", false)
	stopTime.StopSequence = parser.getInt("stop_sequence", false)
	stopTime.ArrivalTime = parser.getGTFSTime("arrival_time", false)
	stopTime.DepartureTime = parser.getGTFSTime("departure_time", false)
	return &stopTime, parser.getError()
}
