package catalogmanager

import (
	"archive/zip"
	"fmt"
	"log"
	"strings"
	"time"
)

// gtfsFiles holds all gtfs files that we know how to load
type gtfsFiles struct {
	routeFile        *zip.File
	tripFile         *zip.File
	stopTimeFile     *zip.File
	calendarFile     *zip.File
	calendarDateFile *zip.File
}

// loadGtfsZipFile reads local zip file at localGTFSFilePath, uncompresses the files inside, if a gtfsRowReader
// is available for the file its used to read the file into builder.
// reading halts if an error occurs and the error is returned.
func loadGtfsZipFile(log *log.Logger, builder *catalogBuilder, localGTFSFilePath string) error {

	r, err := zip.OpenReader(localGTFSFilePath)
	if err != nil {
		return err
	}
	//close the file after we are done
	defer func() {
		err := r.Close()
		if err != nil {
			log.Printf("unable to close zip file %s, error: %v", localGTFSFilePath, err)
		}
	}()

	files, err := newGTFSFiles(&r.Reader)

	if err != nil {
		return err
	}

	return loadGtfsFiles(log, files, builder)
}

// newGTFSFiles finds the gtfs files in zipReader
// returns error if any required files are missing
func newGTFSFiles(zipReader *zip.Reader) (*gtfsFiles, error) {
	readers := gtfsFiles{}
	//iterate over each file
	for _, f := range zipReader.File {
		if f.FileInfo().IsDir() {
			//ignore folders
			continue
		}
		//some feeds nest the tables in a folder
		name := f.Name
		if i := strings.LastIndex(name, "/"); i >= 0 {
			name = name[i+1:]
		}
		switch name {
		case "routes.txt":
			readers.routeFile = f
		case "trips.txt":
			readers.tripFile = f
		case "stop_times.txt":
			readers.stopTimeFile = f
		case "calendar.txt":
			readers.calendarFile = f
		case "calendar_dates.txt":
			readers.calendarDateFile = f
		}
	}
	missingFiles := getMissingFiles(&readers)
	if len(missingFiles) > 0 {
		return nil, fmt.Errorf("gtfs zip file is missing the following file(s) %s",
			strings.Join(missingFiles, ","))
	}
	return &readers, nil
}

// getMissingFiles checks gtfsFiles for required files and returns string list of missing files
func getMissingFiles(readers *gtfsFiles) []string {
	missingFileNames := make([]string, 0)
	if readers.routeFile == nil {
		missingFileNames = append(missingFileNames, "routes.txt")
	}

	if readers.tripFile == nil {
		missingFileNames = append(missingFileNames, "trips.txt")
	}

	if readers.stopTimeFile == nil {
		missingFileNames = append(missingFileNames, "stop_times.txt")
	}

	if readers.calendarFile == nil {
		missingFileNames = append(missingFileNames, "calendar.txt")
	}
	//ok to be missing calendar_dates.txt
	return missingFileNames
}

//loadGtfsFiles loads gtfsFiles in order required by catalogBuilder
func loadGtfsFiles(log *log.Logger, files *gtfsFiles, builder *catalogBuilder) error {
	steps := []struct {
		file      *zip.File
		rowReader gtfsRowReader
	}{
		{file: files.routeFile, rowReader: &routeRowReader{}},
		{file: files.tripFile, rowReader: &tripRowReader{}},
		{file: files.stopTimeFile, rowReader: &stopTimeRowReader{}},
		{file: files.calendarFile, rowReader: &calendarRowReader{}},
		{file: files.calendarDateFile, rowReader: calendarDateRowReader{}},
	}
	for _, step := range steps {
		if step.file == nil {
			continue
		}
		if err := loadGtfsFile(log, builder, step.rowReader, step.file); err != nil {
			return err
		}
	}
	return nil
}

// loadGtfsFile loads gtfs zipped file and reads with gtfsRowReader
func loadGtfsFile(log *log.Logger, builder *catalogBuilder, rowReader gtfsRowReader, f *zip.File) error {
	start := time.Now()
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() {
		_ = rc.Close()
	}()
	parser, err := makeGTFSFileParser(rc, f.Name)
	if err != nil {
		return err
	}
	log.Printf("Loading %s\n", parser.Filename)
	err = loadGTFSRows(builder, parser, rowReader)
	if err != nil {
		return err
	}
	log.Printf("Loaded %d rows in file %s in %d seconds\n", parser.line, parser.Filename,
		time.Now().Unix()-start.Unix())
	return nil
}
