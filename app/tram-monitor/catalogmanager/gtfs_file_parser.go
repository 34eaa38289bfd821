package catalogmanager

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// gtfsRowReader reads rows of one csv table into a catalogBuilder
type gtfsRowReader interface {
	// addRow reads the parser's current row, handing the record to builder or holding it until flush
	addRow(parser *gtfsFileParser, builder *catalogBuilder) error
	// flush hands pending records to builder
	flush(builder *catalogBuilder) error
}

// gtfsFileParser walks a delimited file row by row. Typed getters look columns up by header name, conversion
// problems are collected per row and reported by getError.
type gtfsFileParser struct {
	Filename string
	line     int
	reader   *csv.Reader
	columns  map[string]int
	row      []string
	errors   []error
}

// makeGTFSFileParser creates a gtfsFileParser for a comma separated gtfs table
func makeGTFSFileParser(r io.Reader, filename string) (*gtfsFileParser, error) {
	return makeDelimitedFileParser(r, filename, ',')
}

// makeDelimitedFileParser creates a gtfsFileParser for a file whose fields are separated by comma, reading its
// header row
func makeDelimitedFileParser(r io.Reader, filename string, comma rune) (*gtfsFileParser, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("unable to load header in %s file: %v", filename, err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\uFEFF")
		}
		name = strings.TrimSpace(name)
		if _, seen := columns[name]; !seen {
			columns[name] = i
		}
	}
	return &gtfsFileParser{
		Filename: filename,
		line:     1,
		reader:   reader,
		columns:  columns,
	}, nil
}

// nextLine advances to the next row and forgets the errors of the previous one
func (p *gtfsFileParser) nextLine() error {
	row, err := p.reader.Read()
	if err != nil {
		return err
	}
	p.row = row
	p.errors = nil
	p.line++
	return nil
}

// value returns the trimmed content of column name in the current row. ok is false when the column is absent
// or empty, which is an error unless optional.
func (p *gtfsFileParser) value(name string, optional bool) (string, bool) {
	i, found := p.columns[name]
	if !found {
		if !optional {
			p.addParseError(fmt.Errorf("unable to find header: %s", name))
		}
		return "", false
	}
	if i >= len(p.row) {
		p.addParseError(fmt.Errorf("row has %d columns, %s is column %d", len(p.row), name, i+1))
		return "", false
	}
	v := strings.TrimSpace(p.row[i])
	if v == "" {
		if !optional {
			p.addParseError(fmt.Errorf("missing required value in column %v", name))
		}
		return "", false
	}
	return v, true
}

// getString returns column name, empty when missing
func (p *gtfsFileParser) getString(name string, optional bool) string {
	v, _ := p.value(name, optional)
	return v
}

// getInt returns column name as an int, 0 when missing
func (p *gtfsFileParser) getInt(name string, optional bool) int {
	v, ok := p.value(name, optional)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.addParseError(csvError(name, err))
		return 0
	}
	return n
}

// getBool accepts "true"/"false" and "1"/"0", false when missing
func (p *gtfsFileParser) getBool(name string, optional bool) bool {
	v, _ := p.value(name, optional)
	v = strings.ToLower(v)
	return v == "true" || v == "1"
}

// getGTFSDatePointer returns a YYYYMMDD column, nil when missing or invalid
func (p *gtfsFileParser) getGTFSDatePointer(name string, optional bool) *time.Time {
	v, ok := p.value(name, optional)
	if !ok {
		return nil
	}
	date, err := time.Parse("20060102", v)
	if err != nil {
		p.addParseError(csvError(name, err))
		return nil
	}
	return &date
}

func (p *gtfsFileParser) getGTFSDate(name string, optional bool) time.Time {
	if date := p.getGTFSDatePointer(name, optional); date != nil {
		return *date
	}
	return time.Time{}
}

// getGTFSTime returns an H:MM:SS column as seconds from the start of the service day. Hours may exceed 23 for
// trips continuing past midnight.
func (p *gtfsFileParser) getGTFSTime(name string, optional bool) int {
	v, ok := p.value(name, optional)
	if !ok {
		return 0
	}
	seconds, err := secondsFromGTFSTime(v)
	if err != nil {
		p.addParseError(csvError(name, err))
		return 0
	}
	return seconds
}

func secondsFromGTFSTime(value string) (int, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("expected HH:MM:SS, got %s", value)
	}
	total := 0
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0, err
		}
		total = total*60 + n
	}
	return total, nil
}

func (p *gtfsFileParser) addParseError(err error) {
	p.errors = append(p.errors, err)
}

// getError reports the errors collected on the current row
func (p *gtfsFileParser) getError() error {
	if len(p.errors) == 0 {
		return nil
	}
	return fmt.Errorf("in file %v, line %v: %v", p.Filename, p.line, errors.Join(p.errors...))
}

func csvError(name string, err error) error {
	return fmt.Errorf("unable to parse column %s, error: %v", name, err)
}

// loadGTFSRows feeds every row of parser to rowReader, then flushes it. The first failing row stops reading.
func loadGTFSRows(builder *catalogBuilder, parser *gtfsFileParser, rowReader gtfsRowReader) error {
	for {
		err := parser.nextLine()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err = rowReader.addRow(parser, builder); err != nil {
			parser.addParseError(err)
			return parser.getError()
		}
	}
	return rowReader.flush(builder)
}
