package gtfs

import "time"

// Operates reports whether serviceId runs on the calendar day of serviceDate.
// The first exception declared for that exact date decides, otherwise the calendar validity range and weekday
// bit do.
func (c *Catalog) Operates(serviceId string, serviceDate time.Time) bool {
	key := ServiceDateKey(serviceDate)
	for _, e := range c.Exceptions(serviceId) {
		if ServiceDateKey(e.Date) != key {
			continue
		}
		switch e.ExceptionType {
		case ExceptionRemoved:
			return false
		case ExceptionAdded:
			return true
		}
	}
	calendar, ok := c.Calendar(serviceId)
	if !ok {
		return false
	}
	return calendar.Covers(serviceDate) && calendar.RunsOn(serviceDate.Weekday())
}

// SelectTrips returns the trips running on the local calendar day of date, each with ServiceDate set to the
// midnight its stop time offsets resolve against.
// Trips of the day itself come first. Trips of the previous service day that continue past midnight follow,
// evaluated against the previous day's calendar and exceptions.
func (c *Catalog) SelectTrips(date time.Time) []TripSchedule {
	day := Get12AmTime(date)
	previousDay := Get12AmTime(day.AddDate(0, 0, -1))

	seen := make(map[TripKey]bool)
	var results []TripSchedule
	add := func(t TripSchedule, serviceDate time.Time) {
		t.ServiceDate = serviceDate
		key := t.Key()
		if seen[key] {
			return
		}
		seen[key] = true
		results = append(results, t)
	}

	for _, t := range c.Trips {
		if c.Operates(t.ServiceId, day) {
			add(t, day)
		}
	}
	for _, t := range c.Trips {
		if t.CrossesMidnight() && c.Operates(t.ServiceId, previousDay) {
			add(t, previousDay)
		}
	}
	return results
}
