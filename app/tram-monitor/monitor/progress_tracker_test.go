package monitor

import (
	"testing"
	"time"

	"github.com/OpenTransitTools/tramcast/business/data/gtfs"
	"github.com/matryer/is"
)

func TestProgressTracker_Apply(t *testing.T) {
	is := is.New(t)
	tracker := NewProgressTracker(time.Minute)
	now := time.Date(2024, 6, 5, 8, 0, 0, 0, time.UTC)
	vehicle := func(tripId string, serviceDate string, progress float64) gtfs.Vehicle {
		return gtfs.Vehicle{TripId: tripId, ServiceDate: serviceDate, Progress: progress}
	}

	vehicles := []gtfs.Vehicle{vehicle("t1", "20240605", 2.5), vehicle("t1", "20240604", 7)}
	tracker.Apply(vehicles, now)
	is.Equal(tracker.Len(), 2)

	//progress never decreases for the same trip and service date
	vehicles = []gtfs.Vehicle{vehicle("t1", "20240605", 2.1), vehicle("t1", "20240604", 7.5)}
	tracker.Apply(vehicles, now.Add(10*time.Second))
	is.Equal(vehicles[0].Progress, 2.5)
	is.Equal(vehicles[1].Progress, 7.5)

	//trips not seen within the retention are forgotten
	vehicles = []gtfs.Vehicle{vehicle("t1", "20240605", 1)}
	tracker.Apply(vehicles, now.Add(75*time.Second))
	is.Equal(vehicles[0].Progress, 2.5)
	is.Equal(tracker.Len(), 1)
}
