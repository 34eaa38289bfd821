package gtfs

// Catalog holds the static schedule data of one update cycle. It is read only once built and is safe to share
// between concurrent queries.
type Catalog struct {
	Stations      []Station
	Lines         []Line
	Routes        []Route
	Trips         []TripSchedule
	Calendars     []Calendar
	CalendarDates []CalendarDate

	stationsById map[int]*Station
	linesByName  map[string]*Line
	calendars    map[string]*Calendar
	exceptions   map[string][]CalendarDate
}

// NewCatalog builds a Catalog and its lookup indexes
func NewCatalog(stations []Station,
	lines []Line,
	routes []Route,
	trips []TripSchedule,
	calendars []Calendar,
	calendarDates []CalendarDate) *Catalog {
	c := &Catalog{
		Stations:      stations,
		Lines:         lines,
		Routes:        routes,
		Trips:         trips,
		Calendars:     calendars,
		CalendarDates: calendarDates,
		stationsById:  make(map[int]*Station, len(stations)),
		linesByName:   make(map[string]*Line, len(lines)),
		calendars:     make(map[string]*Calendar, len(calendars)),
		exceptions:    make(map[string][]CalendarDate),
	}
	for i := range c.Stations {
		c.stationsById[c.Stations[i].Id] = &c.Stations[i]
	}
	for i := range c.Lines {
		c.linesByName[c.Lines[i].Name] = &c.Lines[i]
	}
	for i := range c.Calendars {
		c.calendars[c.Calendars[i].ServiceId] = &c.Calendars[i]
	}
	//most recently declared exception first
	for _, cd := range c.CalendarDates {
		c.exceptions[cd.ServiceId] = append([]CalendarDate{cd}, c.exceptions[cd.ServiceId]...)
	}
	return c
}

// Station finds a station by its internal id
func (c *Catalog) Station(id int) (Station, bool) {
	s, ok := c.stationsById[id]
	if !ok {
		return Station{}, false
	}
	return *s, true
}

// StationForStop finds the station a gtfs stop id belongs to
func (c *Catalog) StationForStop(stopId string) (Station, bool) {
	id, err := StationIdFromStopId(stopId)
	if err != nil {
		return Station{}, false
	}
	return c.Station(id)
}

// Line finds a line by its public name
func (c *Catalog) Line(name string) (*Line, bool) {
	l, ok := c.linesByName[name]
	return l, ok
}

// Calendar finds the calendar for serviceId
func (c *Catalog) Calendar(serviceId string) (*Calendar, bool) {
	cal, ok := c.calendars[serviceId]
	return cal, ok
}

// Exceptions returns the calendar exceptions of serviceId, most recently declared first
func (c *Catalog) Exceptions(serviceId string) []CalendarDate {
	return c.exceptions[serviceId]
}
