package gtfs

import "time"

// ExceptionType values from calendar_dates.txt
const (
	ExceptionAdded   = 1
	ExceptionRemoved = 2
)

// Calendar contains data from a record in a gtfs calendar.txt file
type Calendar struct {
	ServiceId string     `json:"service_id"`
	Monday    int        `json:"monday"`
	Tuesday   int        `json:"tuesday"`
	Wednesday int        `json:"wednesday"`
	Thursday  int        `json:"thursday"`
	Friday    int        `json:"friday"`
	Saturday  int        `json:"saturday"`
	Sunday    int        `json:"sunday"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
}

// Days returns the weekday bitset of the calendar, Monday first
func (c *Calendar) Days() [7]bool {
	return [7]bool{
		c.Monday == 1,
		c.Tuesday == 1,
		c.Wednesday == 1,
		c.Thursday == 1,
		c.Friday == 1,
		c.Saturday == 1,
		c.Sunday == 1,
	}
}

// RunsOn reports whether the calendar's weekday bit is set for weekday
func (c *Calendar) RunsOn(weekday time.Weekday) bool {
	return c.Days()[MondayIndex(weekday)]
}

// Covers reports whether date lies inside the calendar's validity range. Calendar dates are compared by
// their calendar day, so a local service date matches a calendar parsed in UTC.
func (c *Calendar) Covers(date time.Time) bool {
	key := ServiceDateKey(date)
	if c.StartDate != nil && key < ServiceDateKey(*c.StartDate) {
		return false
	}
	if c.EndDate != nil && key > ServiceDateKey(*c.EndDate) {
		return false
	}
	return true
}

// CalendarDate contains data from a record in a gtfs calendar_dates.txt file
type CalendarDate struct {
	ServiceId     string    `json:"service_id"`
	Date          time.Time `json:"date"`
	ExceptionType int       `json:"exception_type"`
}

// MondayIndex maps time.Weekday onto a Monday=0 index
func MondayIndex(weekday time.Weekday) int {
	return (int(weekday) + 6) % 7
}
