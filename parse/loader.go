package parse

import (
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"github.com/camsys/onebusaway-application-modules-sub000/storage"
)

// Loader writes the files of a single static bundle to storage. It
// remembers the ids seen in each file, so that later files can be
// checked against earlier ones, and accumulates the bundle's
// metadata along the way.
//
// Files must be loaded in dependency order: agencies before routes,
// routes and calendars before trips, trips and stops before
// stop_times and frequencies.
type Loader struct {
	writer storage.FeedWriter
	logger *slog.Logger

	agencies map[string]bool
	routes   map[string]bool
	services map[string]bool
	trips    map[string]bool
	stops    map[string]bool
	shapes   map[string]bool

	// shape_ids referenced from trips.txt
	shapeRefs map[string]bool

	metadata storage.FeedMetadata
}

func NewLoader(writer storage.FeedWriter, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}

	return &Loader{
		writer:   writer,
		logger:   logger.With("component", "parse"),
		agencies: map[string]bool{},
		routes:   map[string]bool{},
		services: map[string]bool{},
		trips:    map[string]bool{},
		stops:    map[string]bool{},
		shapes:   map[string]bool{},

		shapeRefs: map[string]bool{},

		metadata: storage.FeedMetadata{
			MaxArrival:   "000000",
			MaxDeparture: "000000",
		},
	}
}

// Metadata describes what has been loaded so far. URL, Hash and
// RetrievedAt are left for the caller.
func (l *Loader) Metadata() *storage.FeedMetadata {
	md := l.metadata
	return &md
}

func (l *Loader) widenCalendar(start, end string) {
	if l.metadata.CalendarStartDate == "" || start < l.metadata.CalendarStartDate {
		l.metadata.CalendarStartDate = start
	}
	if l.metadata.CalendarEndDate == "" || end > l.metadata.CalendarEndDate {
		l.metadata.CalendarEndDate = end
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Report violations by CSV column rather than struct field.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("csv"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	// route_color and route_text_color: six hex digits, no prefix.
	v.RegisterValidation("color", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if len(s) != 6 {
			return false
		}
		_, err := hex.DecodeString(s)
		return err == nil
	})

	return v
}

// Checks a decoded row against its struct tags.
func checkRow(rec any) error {
	err := validate.Struct(rec)
	if err == nil {
		return nil
	}

	var violations validator.ValidationErrors
	if !errors.As(err, &violations) || len(violations) == 0 {
		return err
	}

	v := violations[0]
	if strings.HasPrefix(v.Tag(), "required") {
		return fmt.Errorf("missing %s", v.Field())
	}
	return fmt.Errorf("invalid %s '%v'", v.Field(), v.Value())
}

// Streams the rows of a CSV file through fn, one at a time. Each row
// is validated first. Errors carry the 1-based row number. Returns
// the number of rows seen.
func eachRow[T any](data io.Reader, fn func(rec *T) error) (int, error) {
	rows := 0
	err := gocsv.UnmarshalToCallbackWithError(data, func(rec *T) error {
		rows++
		if err := checkRow(rec); err != nil {
			return errors.Wrapf(err, "row %d", rows)
		}
		if err := fn(rec); err != nil {
			return errors.Wrapf(err, "row %d", rows)
		}
		return nil
	})
	return rows, err
}
