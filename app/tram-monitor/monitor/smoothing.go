package monitor

import (
	"math"

	"github.com/OpenTransitTools/tramcast/business/data/gtfs"
)

// smoothDelays averages the delays of every stop update in current, captured at capturedAt, with the delays of the
// same trip and stop in each snapshot at most maxAge milliseconds older. Snapshots captured at or after
// capturedAt are ignored. Averages are rounded to whole seconds.
func smoothDelays(current TripUpdates, capturedAt int64, snapshots []ringSnapshot, maxAge int64) TripUpdates {
	var window []TripUpdates
	for i := range snapshots {
		age := capturedAt - snapshots[i].Time
		if age <= 0 || age > maxAge {
			continue
		}
		window = append(window, snapshots[i].tripUpdates())
	}

	smoothed := make(TripUpdates, len(current))
	for tripId, updates := range current {
		for _, update := range updates {
			stops := make([]gtfs.StopTimeUpdate, len(update.Stops))
			for i, stop := range update.Stops {
				arrivalSum, departureSum, n := stop.ArrivalDelay, stop.DepartureDelay, 1
				for _, prior := range window {
					previous := priorStopUpdate(prior, &update, stop.StopId)
					if previous == nil {
						continue
					}
					arrivalSum += previous.ArrivalDelay
					departureSum += previous.DepartureDelay
					n++
				}
				stop.ArrivalDelay = roundedAverage(arrivalSum, n)
				stop.DepartureDelay = roundedAverage(departureSum, n)
				stops[i] = stop
			}
			update.Stops = stops
			smoothed[tripId] = append(smoothed[tripId], update)
		}
	}
	return smoothed
}

// priorStopUpdate finds stopId of the trip instance described by update within prior
func priorStopUpdate(prior TripUpdates, update *gtfs.TripUpdate, stopId string) *gtfs.StopTimeUpdate {
	candidates := prior[update.TripId]
	for i := range candidates {
		if candidates[i].StartDate == update.StartDate {
			return candidates[i].StopUpdate(stopId)
		}
	}
	return nil
}

func roundedAverage(sum int, n int) int {
	return int(math.Round(float64(sum) / float64(n)))
}
