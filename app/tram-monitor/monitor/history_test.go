package monitor

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/OpenTransitTools/tramcast/business/data/gtfs"
	"github.com/OpenTransitTools/tramcast/foundation/clock"
	"github.com/matryer/is"
)

func testHistoricalStops(serviceDate time.Time) []gtfs.HistoricalStop {
	h1 := func(stopId string) gtfs.HistoricalStop {
		return gtfs.HistoricalStop{TripId: "h1", RouteId: "r4", RouteName: "4", TripName: "4011", StopId: stopId,
			StopName: "stop " + stopId}
	}
	b := h1("8591002:0:A")
	b.Arrival, b.ArrivalActual = at(serviceDate, 8, 3, 0), at(serviceDate, 8, 4, 0)
	b.Departure, b.DepartureActual = at(serviceDate, 8, 3, 30), at(serviceDate, 8, 4, 30)
	a := h1("8591001:0:A")
	a.Departure, a.DepartureActual = at(serviceDate, 8, 0, 30), at(serviceDate, 8, 1, 0)
	c := h1("8591003:0:A")
	c.Arrival = at(serviceDate, 8, 6, 0)

	h2 := func(stopId string, arrival int64) gtfs.HistoricalStop {
		return gtfs.HistoricalStop{TripId: "h2", RouteName: "2", TripName: "211", Canceled: true, StopId: stopId,
			Arrival: arrival, Departure: arrival}
	}
	h3 := func(stopId string, arrival int64, added bool) gtfs.HistoricalStop {
		return gtfs.HistoricalStop{TripId: "h3", RouteName: "4", TripName: "4013", Added: added, StopId: stopId,
			Arrival: arrival, Departure: arrival}
	}
	return []gtfs.HistoricalStop{
		b, a, c,
		h2("8591003:0:B", at(serviceDate, 8, 10, 0)),
		h2("8591004:0:B", at(serviceDate, 8, 15, 0)),
		h3("8591001:0:A", at(serviceDate, 8, 20, 0), false),
		h3("8591002:0:A", at(serviceDate, 8, 23, 0), true),
	}
}

func makeReplayEngine(t *testing.T, now time.Time) (*Engine, *staticSource) {
	source := makeStaticSource(t, nil)
	source.hist = testHistoricalStops(testServiceDate(t))
	logWriter := makeTestLogWriter()
	return NewEngine(logWriter.log, source, nil, clock.NewMockClock(now), nil), source
}

func TestEngine_Replay(t *testing.T) {
	is := is.New(t)
	serviceDate := testServiceDate(t)
	engine, source := makeReplayEngine(t, time.Now())

	vehicles, err := engine.Replay(context.Background(), "2024-06-05", QueryOptions{Time: at(serviceDate, 8, 5, 0)})
	is.NoErr(err)
	is.Equal(source.histDates, []string{"2024-06-05"})
	is.Equal(tripIdsOf(vehicles), []string{"h1", "h2", "h3"})

	h1 := vehicles[0]
	is.Equal(h1.ServiceDate, "20240605")
	is.Equal(h1.TripStatus, gtfs.TripScheduled)
	is.True(h1.Active)
	is.True(math.Abs(h1.Progress-(2+1.0/3)) < 1e-9)
	is.Equal(h1.Delay, 0)

	//stops are ordered by schedule and renumbered
	is.Equal(len(h1.Stops), 3)
	first, second, last := h1.Stops[0], h1.Stops[1], h1.Stops[2]
	is.Equal([]string{first.StopId, second.StopId, last.StopId},
		[]string{"8591001:0:A", "8591002:0:A", "8591003:0:A"})
	is.Equal([]int{first.StopSequence, second.StopSequence, last.StopSequence}, []int{1, 2, 3})
	is.Equal(first.StopName, "Alpha")
	is.Equal(first.StopDiva, 1001)

	//actual times become the predictions
	is.Equal(first.Arrival, at(serviceDate, 8, 0, 30))
	is.Equal(first.PredArrival, at(serviceDate, 8, 1, 0))
	is.Equal(first.PredDeparture, at(serviceDate, 8, 1, 0))
	is.Equal(first.DepartureDelay, 30)
	is.Equal(second.PredArrival, at(serviceDate, 8, 4, 0))
	is.Equal(second.ArrivalDelay, 60)
	is.Equal(last.PredArrival, at(serviceDate, 8, 6, 0))
	is.Equal(last.PredDeparture, at(serviceDate, 8, 6, 0))

	is.Equal(vehicles[1].TripStatus, gtfs.TripCanceled)
	is.True(!vehicles[1].Active)
	is.Equal(vehicles[2].TripStatus, gtfs.TripAdded)
}

func TestEngine_Replay_filters(t *testing.T) {
	is := is.New(t)
	serviceDate := testServiceDate(t)
	engine, _ := makeReplayEngine(t, time.Now())
	queryTime := at(serviceDate, 8, 5, 0)

	vehicles, err := engine.Replay(context.Background(), "2024-06-05", QueryOptions{Time: queryTime, ActiveOnly: true})
	is.NoErr(err)
	is.Equal(tripIdsOf(vehicles), []string{"h1"})

	vehicles, err = engine.Replay(context.Background(), "2024-06-05", QueryOptions{Time: queryTime, Route: "2"})
	is.NoErr(err)
	is.Equal(tripIdsOf(vehicles), []string{"h2"})
}

func TestEngine_Replay_timeOfDay(t *testing.T) {
	is := is.New(t)
	serviceDate := testServiceDate(t)
	//a later day at 08:05 replays 08:05 of the requested date
	engine, _ := makeReplayEngine(t, time.Date(2024, 6, 10, 8, 5, 0, 0, testLocation(t)))

	vehicles, err := engine.Replay(context.Background(), "2024-06-05", QueryOptions{ActiveOnly: true})
	is.NoErr(err)
	is.Equal(tripIdsOf(vehicles), []string{"h1"})

	replayAt, err := engine.replayTime("2024-06-05", QueryOptions{TimeOffset: 60000})
	is.NoErr(err)
	is.Equal(replayAt, serviceDate.Add(8*time.Hour+6*time.Minute).UnixMilli())

	_, err = engine.Replay(context.Background(), "05.06.2024", QueryOptions{})
	is.True(err != nil)
}

func TestHistoricalTripStatus(t *testing.T) {
	tests := []struct {
		name    string
		records []gtfs.HistoricalStop
		want    string
	}{
		{name: "scheduled", records: []gtfs.HistoricalStop{{}, {}}, want: gtfs.TripScheduled},
		{name: "partly canceled", records: []gtfs.HistoricalStop{{Canceled: true}, {}}, want: gtfs.TripScheduled},
		{name: "canceled", records: []gtfs.HistoricalStop{{Canceled: true}, {Canceled: true}}, want: gtfs.TripCanceled},
		{name: "added", records: []gtfs.HistoricalStop{{}, {Added: true}}, want: gtfs.TripAdded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := historicalTripStatus(tt.records); got != tt.want {
				t.Errorf("historicalTripStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestEngine_Replay_keepsRecordedFirstStopTimes(t *testing.T) {
	is := is.New(t)
	serviceDate := testServiceDate(t)
	record := func(tripId string, tripName string, stopId string, actual int64, dwell int64) gtfs.HistoricalStop {
		return gtfs.HistoricalStop{TripId: tripId, RouteName: "4", TripName: tripName, StopId: stopId,
			Arrival: actual, ArrivalActual: actual, Departure: actual + dwell, DepartureActual: actual + dwell}
	}
	engine, source := makeReplayEngine(t, time.Now())
	source.hist = []gtfs.HistoricalStop{
		record("x", "4011", "8591001:0:A", at(serviceDate, 8, 0, 0), 5*60*1000),
		record("x", "4011", "8591002:0:A", at(serviceDate, 8, 8, 0), 0),
		record("y", "4012", "8591001:0:A", at(serviceDate, 8, 2, 0), 4*60*1000),
		record("y", "4012", "8591002:0:A", at(serviceDate, 8, 10, 0), 0),
	}

	vehicles, err := engine.Replay(context.Background(), "2024-06-05", QueryOptions{Time: at(serviceDate, 8, 3, 0)})
	is.NoErr(err)
	is.Equal(tripIdsOf(vehicles), []string{"x", "y"})
	y := vehicles[1]
	is.Equal(y.Stops[0].PredArrival, at(serviceDate, 8, 2, 0)) // not held until x departs at 8:05
	is.True(y.Active)
	is.Equal(y.Progress, 1.0)
}
