package catalogmanager

import (
	"time"

	"github.com/OpenTransitTools/tramcast/business/data/gtfs"
)

// effectiveDate returns the publication day of the static feed in effect at now: the most recent of
// updateWeekdays whose updateHour has passed. The zero time is returned when no update weekdays are configured.
func effectiveDate(now time.Time, loc *time.Location, updateWeekdays []time.Weekday, updateHour int) time.Time {
	if len(updateWeekdays) == 0 {
		return time.Time{}
	}
	local := now.In(loc)
	today := gtfs.Get12AmTime(local)
	for daysBack := 0; daysBack <= 7; daysBack++ {
		day := today.AddDate(0, 0, -daysBack)
		if !containsWeekday(updateWeekdays, day.Weekday()) {
			continue
		}
		published := time.Date(day.Year(), day.Month(), day.Day(), updateHour, 0, 0, 0, loc)
		if !local.Before(published) {
			return day
		}
	}
	return time.Time{}
}

func containsWeekday(weekdays []time.Weekday, weekday time.Weekday) bool {
	for _, w := range weekdays {
		if w == weekday {
			return true
		}
	}
	return false
}

// makeUpdateKey creates the updateKey expected for artifacts built at now
func makeUpdateKey(now time.Time, cfg Config) updateKey {
	key := updateKey{Version: cfg.Version}
	if date := effectiveDate(now, cfg.Location, cfg.UpdateWeekdays, cfg.UpdateHour); !date.IsZero() {
		key.Date = date.Format("2006-01-02")
	}
	return key
}
