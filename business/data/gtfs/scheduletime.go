package gtfs

import (
	"time"
)

// SecondsPerDay is the length of a schedule day without daylight saving time transitions
const SecondsPerDay = 24 * 60 * 60

const serviceDateLayout = "20060102"

// getDLSTransitionSeconds provides the number of seconds offset for a 12am date later in the day after day light saving time is done
func getDLSTransitionSeconds(timeAt12 time.Time) int {
	before := time.Date(timeAt12.Year(), timeAt12.Month(), timeAt12.Day(), 0, 0, 0, 0, timeAt12.Location())
	after := time.Date(timeAt12.Year(), timeAt12.Month(), timeAt12.Day(), 5, 0, 0, 0, timeAt12.Location())
	_, beforeOffset := before.Zone()
	_, afterOffset := after.Zone()
	return afterOffset - beforeOffset
}

// MakeScheduleTime produces a time from by adding seconds to a 12am date. Takes into account day light saving time
func MakeScheduleTime(timeAt12 time.Time, scheduleSeconds int) time.Time {
	offset := getDLSTransitionSeconds(timeAt12)
	scheduleSeconds = scheduleSeconds + (0 - offset)
	return timeAt12.Add(time.Duration(scheduleSeconds) * time.Second)
}

// Get12AmTime returns midnight of date's calendar day in date's location
func Get12AmTime(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
}

// ServiceDateKey formats the calendar day of date as YYYYMMDD, empty for the zero time
func ServiceDateKey(date time.Time) string {
	if date.IsZero() {
		return ""
	}
	return date.Format(serviceDateLayout)
}

// ParseServiceDate parses a YYYYMMDD date as midnight in loc
func ParseServiceDate(key string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(serviceDateLayout, key, loc)
}
