package parse

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"

	"github.com/gocarina/gocsv"
	"github.com/spkg/bom"

	"github.com/camsys/onebusaway-application-modules-sub000/storage"
)

func init() {
	// Lazy quoting survives sloppy feeds, and the BOM reader strips
	// unicode BOMs if present.
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		return gocsv.LazyCSVReader(bom.NewReader(in))
	})
}

// A file of the bundle, and how to load it.
type bundleFile struct {
	name     string
	required bool
	load     func(io.Reader) error

	// Brackets writes of large files, for batching.
	begin, end func() error
}

func (l *Loader) files() []bundleFile {
	w := l.writer
	return []bundleFile{
		{name: "agency.txt", required: true, load: l.LoadAgencies},
		{name: "routes.txt", required: true, load: l.LoadRoutes},
		{name: "calendar.txt", load: l.LoadCalendar},
		{name: "calendar_dates.txt", load: l.LoadCalendarDates},
		{name: "trips.txt", required: true, load: l.LoadTrips, begin: w.BeginTrips, end: w.EndTrips},
		{name: "stops.txt", required: true, load: l.LoadStops},
		{name: "stop_times.txt", required: true, load: l.LoadStopTimes, begin: w.BeginStopTimes, end: w.EndStopTimes},
		{name: "shapes.txt", load: l.LoadShapes, begin: w.BeginShapes, end: w.EndShapes},
		{name: "frequencies.txt", load: l.LoadFrequencies},
	}
}

// Indexes the archive's files by base name. Some agencies put their
// files in a subdirectory.
func openBundle(buf []byte) (map[string]*zip.File, error) {
	r, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return nil, fmt.Errorf("unzipping: %w", err)
	}

	entries := map[string]*zip.File{}
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		entries[path.Base(f.Name)] = f
	}
	return entries, nil
}

func (l *Loader) load(f bundleFile, data io.Reader) error {
	if f.begin != nil {
		if err := f.begin(); err != nil {
			return fmt.Errorf("beginning %s: %w", f.name, err)
		}
	}
	if err := f.load(data); err != nil {
		return fmt.Errorf("parsing %s: %w", f.name, err)
	}
	if f.end != nil {
		if err := f.end(); err != nil {
			return fmt.Errorf("ending %s: %w", f.name, err)
		}
	}
	return nil
}

// LoadFile loads a single bundle file, given its name within the
// bundle. Files it depends on must have been loaded already.
func (l *Loader) LoadFile(name string, data io.Reader) error {
	for _, f := range l.files() {
		if f.name == name {
			return l.load(f, data)
		}
	}
	return fmt.Errorf("unknown file %s", name)
}

// Bundle loads a zipped static GTFS bundle and closes the writer.
func (l *Loader) Bundle(buf []byte) (*storage.FeedMetadata, error) {
	entries, err := openBundle(buf)
	if err != nil {
		return nil, err
	}

	if entries["calendar.txt"] == nil && entries["calendar_dates.txt"] == nil {
		return nil, fmt.Errorf("missing calendar.txt and calendar_dates.txt")
	}

	files := l.files()
	for _, f := range files {
		if f.required && entries[f.name] == nil {
			return nil, fmt.Errorf("missing %s", f.name)
		}
	}

	for _, f := range files {
		entry := entries[f.name]
		if entry == nil {
			continue
		}
		rc, err := entry.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", entry.Name, err)
		}
		err = l.load(f, rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
	}

	l.checkShapeRefs()

	if err := l.writer.Close(); err != nil {
		return nil, fmt.Errorf("closing feed writer: %w", err)
	}

	return l.Metadata(), nil
}

// ParseStatic loads a zipped static GTFS bundle into writer, and
// returns the bundle's partial metadata.
func ParseStatic(writer storage.FeedWriter, buf []byte) (*storage.FeedMetadata, error) {
	return NewLoader(writer, nil).Bundle(buf)
}
