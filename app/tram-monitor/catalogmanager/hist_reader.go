package catalogmanager

import (
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/OpenTransitTools/tramcast/business/data/gtfs"
)

// actual-times csv columns
const (
	histTripId          = "FAHRT_BEZEICHNER"
	histOperatorId      = "BETREIBER_ID"
	histProduct         = "PRODUKT_ID"
	histRouteId         = "LINIEN_ID"
	histRouteName       = "LINIEN_TEXT"
	histTripName        = "UMLAUF_ID"
	histAdded           = "ZUSATZFAHRT_TF"
	histCanceled        = "FAELLT_AUS_TF"
	histStopId          = "BPUIC"
	histStopName        = "HALTESTELLEN_NAME"
	histArrival         = "ANKUNFTSZEIT"
	histArrivalActual   = "AN_PROGNOSE"
	histDeparture       = "ABFAHRTSZEIT"
	histDepartureActual = "AB_PROGNOSE"

	histTramProduct = "Tram"
)

// readHistoricalStops reads the ';' separated actual-times csv in r, keeping tram rows of operatorId.
// Rows that fail to parse are logged and skipped.
func readHistoricalStops(log *log.Logger, r io.Reader, filename string, operatorId string,
	loc *time.Location) ([]gtfs.HistoricalStop, error) {
	parser, err := makeDelimitedFileParser(r, filename, ';')
	if err != nil {
		return nil, err
	}
	var stops []gtfs.HistoricalStop
	skipped := 0
	for {
		err = parser.nextLine()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s line %d: %w", filename, parser.line, err)
		}
		if parser.getString(histProduct, true) != histTramProduct ||
			parser.getString(histOperatorId, true) != operatorId {
			continue
		}
		stop, err := buildHistoricalStop(parser, loc)
		if err != nil {
			skipped++
			log.Printf("skipping historical record: %v", err)
			continue
		}
		stops = append(stops, *stop)
	}
	if skipped > 0 {
		log.Printf("skipped %d unreadable records in %s", skipped, filename)
	}
	return stops, nil
}

func buildHistoricalStop(parser *gtfsFileParser, loc *time.Location) (*gtfs.HistoricalStop, error) {
	stop := gtfs.HistoricalStop{
		TripId:    parser.getString(histTripId, false),
		RouteId:   strings.TrimSpace(parser.getString(histRouteId, true)),
		RouteName: parser.getString(histRouteName, true),
		TripName:  parser.getString(histTripName, true),
		Added:     parser.getBool(histAdded, true),
		Canceled:  parser.getBool(histCanceled, true),
		StopId:    parser.getString(histStopId, false),
		StopName:  parser.getString(histStopName, true),
	}
	times := []struct {
		column string
		value  *int64
	}{
		{column: histArrival, value: &stop.Arrival},
		{column: histArrivalActual, value: &stop.ArrivalActual},
		{column: histDeparture, value: &stop.Departure},
		{column: histDepartureActual, value: &stop.DepartureActual},
	}
	for _, t := range times {
		ms, err := histTimestamp(parser.getString(t.column, true), loc)
		if err != nil {
			parser.addParseError(csvError(t.column, err))
			continue
		}
		*t.value = ms
	}
	return &stop, parser.getError()
}

// histTimestamp parses "dd.MM.yyyy HH:mm" or "dd.MM.yyyy HH:mm:ss" local times into epoch milliseconds,
// returns 0 for an empty value
func histTimestamp(value string, loc *time.Location) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	for _, layout := range []string{"02.01.2006 15:04:05", "02.01.2006 15:04"} {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("unrecognized date time %q", value)
}
