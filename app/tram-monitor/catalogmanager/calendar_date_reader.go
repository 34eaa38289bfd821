package catalogmanager

import (
	"github.com/OpenTransitTools/tramcast/business/data/gtfs"
)

// calendarDateRowReader implements gtfsRowReader interface for gtfs.CalendarDate
type calendarDateRowReader struct{}

func (c calendarDateRowReader) addRow(parser *gtfsFileParser, builder *catalogBuilder) error {
	calendarDate, err := buildCalendarDate(parser)
	if err != nil {
		return err
	}
	builder.addCalendarDate(*calendarDate)
	return nil
}

func (c calendarDateRowReader) flush(_ *catalogBuilder) error {
	return nil
}

func buildCalendarDate(parser *gtfsFileParser) (*gtfs.CalendarDate, error) {
	calendarDate := gtfs.CalendarDate{
		ServiceId:     parser.getString("service_id", false),
		Date:          parser.getGTFSDate("date", false),
		ExceptionType: parser.getInt("exception_type", false),
	}

	return &calendarDate, parser.getError()
}
