package catalogmanager

import (
	"log"
	"time"

	"github.com/OpenTransitTools/tramcast/business/data/gtfs"
	"github.com/rickar/cal/v2"
)

//transitHolidayCalendar holds the public holidays of the network's canton, days on which schedules usually
//differ from the regular weekday pattern
type transitHolidayCalendar struct {
	calendar *cal.BusinessCalendar
}

func fixedHoliday(name string, month time.Month, day int) *cal.Holiday {
	return &cal.Holiday{
		Name:  name,
		Type:  cal.ObservancePublic,
		Month: month,
		Day:   day,
		Func:  cal.CalcDayOfMonth,
	}
}

func easterHoliday(name string, offset int) *cal.Holiday {
	return &cal.Holiday{
		Name:   name,
		Type:   cal.ObservancePublic,
		Offset: offset,
		Func:   cal.CalcEasterOffset,
	}
}

//makeTransitHolidayCalendar builds transitHolidayCalendar with the public holidays of the canton of Zurich
func makeTransitHolidayCalendar() *transitHolidayCalendar {
	calendar := cal.NewBusinessCalendar()
	calendar.AddHoliday(
		fixedHoliday("Neujahrstag", time.January, 1),
		fixedHoliday("Berchtoldstag", time.January, 2),
		easterHoliday("Karfreitag", -2),
		easterHoliday("Ostermontag", 1),
		fixedHoliday("Tag der Arbeit", time.May, 1),
		easterHoliday("Auffahrt", 39),
		easterHoliday("Pfingstmontag", 50),
		fixedHoliday("Nationalfeiertag", time.August, 1),
		fixedHoliday("Weihnachtstag", time.December, 25),
		fixedHoliday("Stephanstag", time.December, 26),
	)
	return &transitHolidayCalendar{calendar: calendar}
}

//holiday returns the name of the holiday on at's calendar day
func (t *transitHolidayCalendar) holiday(at time.Time) (string, bool) {
	actual, _, h := t.calendar.IsHoliday(at)
	if !actual || h == nil {
		return "", false
	}
	return h.Name, true
}

//auditHolidays logs each of dates that is a public holiday without any calendar exception in catalog.
//Feeds normally publish exceptions for holidays, their absence usually means regular weekday trips are shown.
func auditHolidays(log *log.Logger, holidays *transitHolidayCalendar, catalog *gtfs.Catalog, dates []time.Time) int {
	withExceptions := make(map[string]bool)
	for _, cd := range catalog.CalendarDates {
		withExceptions[gtfs.ServiceDateKey(cd.Date)] = true
	}
	missing := 0
	for _, date := range dates {
		name, ok := holidays.holiday(date)
		if !ok || withExceptions[gtfs.ServiceDateKey(date)] {
			continue
		}
		missing++
		log.Printf("warning: %s on %s has no calendar exceptions in the static feed", name, date.Format("2006-01-02"))
	}
	return missing
}
