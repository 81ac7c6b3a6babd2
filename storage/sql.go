package storage

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/camsys/onebusaway-application-modules-sub000/model"
)

// SQLStorage keeps feeds in a SQL database, with every GTFS table
// keyed by feed hash. The dialect covers what differs between SQLite
// and Postgres.
type SQLStorage struct {
	db      *sql.DB
	dialect dialect
}

type dialect struct {
	name      string
	timestamp string
	real      string

	// Rewrites '?' placeholders.
	rebind func(query string) string

	// Inserts buffered rows of one table in a single transaction.
	bulkInsert func(tx *sql.Tx, t table, rows [][]any) error

	batchSize int
}

type table struct {
	name    string
	columns []string
}

var (
	agencyTable       = table{"agency", []string{"hash", "id", "name", "url", "timezone"}}
	stopsTable        = table{"stops", []string{"hash", "id", "code", "name", "description", "lat", "lon", "url", "location_type", "parent_station", "platform_code", "wheelchair_boarding"}}
	routesTable       = table{"routes", []string{"hash", "id", "agency_id", "short_name", "long_name", "description", "type", "url", "color", "text_color"}}
	tripsTable        = table{"trips", []string{"hash", "id", "route_id", "service_id", "headsign", "short_name", "direction_id", "block_id", "shape_id"}}
	stopTimesTable    = table{"stop_times", []string{"hash", "trip_id", "stop_id", "stop_sequence", "arrival_time", "departure_time", "headsign", "shape_dist_traveled"}}
	calendarTable     = table{"calendar", []string{"hash", "service_id", "start_date", "end_date", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}}
	calendarDateTable = table{"calendar_dates", []string{"hash", "service_id", "date", "exception_type"}}
	shapesTable       = table{"shapes", []string{"hash", "shape_id", "lat", "lon", "sequence", "shape_dist_traveled"}}
	frequenciesTable  = table{"frequencies", []string{"hash", "trip_id", "start_time", "end_time", "headway_secs", "exact_times"}}

	feedTables = []table{
		agencyTable, stopsTable, routesTable, tripsTable, stopTimesTable,
		calendarTable, calendarDateTable, shapesTable, frequenciesTable,
	}
)

func (d dialect) schema() []string {
	return []string{`
CREATE TABLE IF NOT EXISTS feed (
    hash TEXT NOT NULL,
    url TEXT NOT NULL,
    retrieved_at ` + d.timestamp + ` NOT NULL,
    calendar_start TEXT NOT NULL,
    calendar_end TEXT NOT NULL,
    timezone TEXT NOT NULL,
    max_arrival TEXT NOT NULL,
    max_departure TEXT NOT NULL,
    PRIMARY KEY (hash, url)
)`, `
CREATE TABLE IF NOT EXISTS agency (
    hash TEXT NOT NULL,
    id TEXT NOT NULL,
    name TEXT NOT NULL,
    url TEXT NOT NULL,
    timezone TEXT NOT NULL,
    PRIMARY KEY (hash, id)
)`, `
CREATE TABLE IF NOT EXISTS stops (
    hash TEXT NOT NULL,
    id TEXT NOT NULL,
    code TEXT,
    name TEXT NOT NULL,
    description TEXT,
    lat ` + d.real + ` NOT NULL,
    lon ` + d.real + ` NOT NULL,
    url TEXT,
    location_type INTEGER NOT NULL,
    parent_station TEXT,
    platform_code TEXT,
    wheelchair_boarding INTEGER NOT NULL,
    PRIMARY KEY (hash, id)
)`, `
CREATE TABLE IF NOT EXISTS routes (
    hash TEXT NOT NULL,
    id TEXT NOT NULL,
    agency_id TEXT,
    short_name TEXT,
    long_name TEXT,
    description TEXT,
    type INTEGER NOT NULL,
    url TEXT,
    color TEXT,
    text_color TEXT,
    PRIMARY KEY (hash, id)
)`, `
CREATE TABLE IF NOT EXISTS trips (
    hash TEXT NOT NULL,
    id TEXT NOT NULL,
    route_id TEXT NOT NULL,
    service_id TEXT NOT NULL,
    headsign TEXT,
    short_name TEXT,
    direction_id INTEGER,
    block_id TEXT,
    shape_id TEXT,
    PRIMARY KEY (hash, id)
)`, `
CREATE TABLE IF NOT EXISTS stop_times (
    hash TEXT NOT NULL,
    trip_id TEXT NOT NULL,
    stop_id TEXT NOT NULL,
    stop_sequence INTEGER NOT NULL,
    arrival_time TEXT NOT NULL,
    departure_time TEXT NOT NULL,
    headsign TEXT,
    shape_dist_traveled ` + d.real + `,
    PRIMARY KEY (hash, trip_id, stop_sequence)
)`, `
CREATE TABLE IF NOT EXISTS calendar (
    hash TEXT NOT NULL,
    service_id TEXT NOT NULL,
    start_date TEXT NOT NULL,
    end_date TEXT NOT NULL,
    monday INTEGER NOT NULL,
    tuesday INTEGER NOT NULL,
    wednesday INTEGER NOT NULL,
    thursday INTEGER NOT NULL,
    friday INTEGER NOT NULL,
    saturday INTEGER NOT NULL,
    sunday INTEGER NOT NULL,
    PRIMARY KEY (hash, service_id)
)`, `
CREATE TABLE IF NOT EXISTS calendar_dates (
    hash TEXT NOT NULL,
    service_id TEXT NOT NULL,
    date TEXT NOT NULL,
    exception_type INTEGER NOT NULL,
    PRIMARY KEY (hash, service_id, date)
)`, `
CREATE TABLE IF NOT EXISTS shapes (
    hash TEXT NOT NULL,
    shape_id TEXT NOT NULL,
    lat ` + d.real + ` NOT NULL,
    lon ` + d.real + ` NOT NULL,
    sequence INTEGER NOT NULL,
    shape_dist_traveled ` + d.real + `,
    PRIMARY KEY (hash, shape_id, sequence)
)`, `
CREATE TABLE IF NOT EXISTS frequencies (
    hash TEXT NOT NULL,
    trip_id TEXT NOT NULL,
    start_time TEXT NOT NULL,
    end_time TEXT NOT NULL,
    headway_secs INTEGER NOT NULL,
    exact_times INTEGER NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS stop_times_trip_id ON stop_times (hash, trip_id)`,
		`CREATE INDEX IF NOT EXISTS shapes_shape_id ON shapes (hash, shape_id)`,
	}
}

func newSQLStorage(db *sql.DB, d dialect) (*SQLStorage, error) {
	for _, query := range d.schema() {
		if _, err := db.Exec(query); err != nil {
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}
	return &SQLStorage{db: db, dialect: d}, nil
}

func (s *SQLStorage) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("closing db: %w", err)
	}
	return nil
}

func (s *SQLStorage) query(query string, args ...any) (*sql.Rows, error) {
	return s.db.Query(s.dialect.rebind(query), args...)
}

func (s *SQLStorage) exec(query string, args ...any) error {
	_, err := s.db.Exec(s.dialect.rebind(query), args...)
	return err
}

func (s *SQLStorage) ListFeeds(filter ListFeedsFilter) ([]*FeedMetadata, error) {
	query := `
SELECT
    hash,
    url,
    retrieved_at,
    calendar_start,
    calendar_end,
    timezone,
    max_arrival,
    max_departure
FROM feed`

	conditions := []string{}
	params := []any{}
	if filter.URL != "" {
		conditions = append(conditions, "url = ?")
		params = append(params, filter.URL)
	}
	if filter.Hash != "" {
		conditions = append(conditions, "hash = ?")
		params = append(params, filter.Hash)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY retrieved_at DESC"

	rows, err := s.query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("listing feeds: %w", err)
	}
	defer rows.Close()

	feeds := []*FeedMetadata{}
	for rows.Next() {
		var feed FeedMetadata
		err := rows.Scan(
			&feed.Hash,
			&feed.URL,
			&feed.RetrievedAt,
			&feed.CalendarStartDate,
			&feed.CalendarEndDate,
			&feed.Timezone,
			&feed.MaxArrival,
			&feed.MaxDeparture,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning feed: %w", err)
		}
		feeds = append(feeds, &feed)
	}

	return feeds, rows.Err()
}

func (s *SQLStorage) WriteFeedMetadata(feed *FeedMetadata) error {
	err := s.exec(`
INSERT INTO feed (
    hash,
    url,
    retrieved_at,
    calendar_start,
    calendar_end,
    timezone,
    max_arrival,
    max_departure
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (hash, url) DO UPDATE SET
    retrieved_at = excluded.retrieved_at,
    calendar_start = excluded.calendar_start,
    calendar_end = excluded.calendar_end,
    timezone = excluded.timezone,
    max_arrival = excluded.max_arrival,
    max_departure = excluded.max_departure
`,
		feed.Hash,
		feed.URL,
		feed.RetrievedAt.UTC(),
		feed.CalendarStartDate,
		feed.CalendarEndDate,
		feed.Timezone,
		feed.MaxArrival,
		feed.MaxDeparture,
	)
	if err != nil {
		return fmt.Errorf("writing feed metadata: %w", err)
	}
	return nil
}

func (s *SQLStorage) DeleteFeedMetadata(url string, hash string) error {
	err := s.exec(`DELETE FROM feed WHERE url = ? AND hash = ?`, url, hash)
	if err != nil {
		return fmt.Errorf("deleting feed metadata: %w", err)
	}
	return nil
}

func (s *SQLStorage) GetReader(hash string) (FeedReader, error) {
	return &SQLFeedReader{s: s, hash: hash}, nil
}

func (s *SQLStorage) GetWriter(hash string) (FeedWriter, error) {
	// In case feed already exists, delete all records
	for _, t := range feedTables {
		err := s.exec(`DELETE FROM `+t.name+` WHERE hash = ?`, hash)
		if err != nil {
			return nil, fmt.Errorf("deleting %s records: %w", t.name, err)
		}
	}

	return &SQLFeedWriter{
		s:       s,
		hash:    hash,
		buffers: map[string][][]any{},
	}, nil
}

// Buffers rows per table and writes them in batches.
type SQLFeedWriter struct {
	s       *SQLStorage
	hash    string
	buffers map[string][][]any
}

func (w *SQLFeedWriter) add(t table, values ...any) error {
	row := append([]any{w.hash}, values...)
	if len(row) != len(t.columns) {
		return fmt.Errorf("%s: got %d values for %d columns", t.name, len(row), len(t.columns))
	}

	w.buffers[t.name] = append(w.buffers[t.name], row)
	if len(w.buffers[t.name]) >= w.s.dialect.batchSize {
		return w.flush(t)
	}
	return nil
}

func (w *SQLFeedWriter) flush(t table) error {
	rows := w.buffers[t.name]
	if len(rows) == 0 {
		return nil
	}

	tx, err := w.s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	err = w.s.dialect.bulkInsert(tx, t, rows)
	if err != nil {
		return fmt.Errorf("inserting %s: %w", t.name, err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("committing %s: %w", t.name, err)
	}

	w.buffers[t.name] = nil
	return nil
}

func (w *SQLFeedWriter) WriteAgency(a *model.Agency) error {
	return w.add(agencyTable, a.ID, a.Name, a.URL, a.Timezone)
}

func (w *SQLFeedWriter) WriteStop(stop *model.Stop) error {
	return w.add(stopsTable,
		stop.ID,
		stop.Code,
		stop.Name,
		stop.Desc,
		stop.Lat,
		stop.Lon,
		stop.URL,
		int(stop.LocationType),
		stop.ParentStation,
		stop.PlatformCode,
		int(stop.WheelchairBoarding),
	)
}

func (w *SQLFeedWriter) WriteRoute(route *model.Route) error {
	return w.add(routesTable,
		route.ID,
		route.AgencyID,
		route.ShortName,
		route.LongName,
		route.Desc,
		int(route.Type),
		route.URL,
		route.Color,
		route.TextColor,
	)
}

func (w *SQLFeedWriter) BeginTrips() error {
	return nil
}

func (w *SQLFeedWriter) WriteTrip(trip *model.Trip) error {
	return w.add(tripsTable,
		trip.ID,
		trip.RouteID,
		trip.ServiceID,
		trip.Headsign,
		trip.ShortName,
		int(trip.DirectionID),
		trip.BlockID,
		trip.ShapeID,
	)
}

func (w *SQLFeedWriter) EndTrips() error {
	return w.flush(tripsTable)
}

func (w *SQLFeedWriter) WriteCalendar(cal *model.Calendar) error {
	days := make([]any, 0, 7)
	for _, d := range []time.Weekday{
		time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
		time.Friday, time.Saturday, time.Sunday,
	} {
		if cal.Weekday&(1<<d) != 0 {
			days = append(days, 1)
		} else {
			days = append(days, 0)
		}
	}

	return w.add(calendarTable, append([]any{cal.ServiceID, cal.StartDate, cal.EndDate}, days...)...)
}

func (w *SQLFeedWriter) WriteCalendarDate(cd *model.CalendarDate) error {
	return w.add(calendarDateTable, cd.ServiceID, cd.Date, int(cd.ExceptionType))
}

func (w *SQLFeedWriter) BeginStopTimes() error {
	return nil
}

func (w *SQLFeedWriter) WriteStopTime(st *model.StopTime) error {
	return w.add(stopTimesTable,
		st.TripID,
		st.StopID,
		int64(st.StopSequence),
		st.Arrival,
		st.Departure,
		st.Headsign,
		nullDist(st.ShapeDistTraveled),
	)
}

func (w *SQLFeedWriter) EndStopTimes() error {
	return w.flush(stopTimesTable)
}

func (w *SQLFeedWriter) BeginShapes() error {
	return nil
}

func (w *SQLFeedWriter) WriteShapePoint(p *model.ShapePoint) error {
	return w.add(shapesTable, p.ShapeID, p.Lat, p.Lon, int64(p.Sequence), nullDist(p.ShapeDistTraveled))
}

func (w *SQLFeedWriter) EndShapes() error {
	return w.flush(shapesTable)
}

func (w *SQLFeedWriter) WriteFrequency(f *model.Frequency) error {
	return w.add(frequenciesTable, f.TripID, f.StartTime, f.EndTime, f.HeadwaySecs, int(f.ExactTimes))
}

func (w *SQLFeedWriter) Close() error {
	for _, t := range feedTables {
		if err := w.flush(t); err != nil {
			return err
		}
	}

	err := w.s.exec(`ANALYZE`)
	if err != nil {
		return fmt.Errorf("analyzing: %w", err)
	}
	return nil
}

func nullDist(d float64) sql.NullFloat64 {
	if d < 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: d, Valid: true}
}

func distOrNone(d sql.NullFloat64) float64 {
	if !d.Valid {
		return model.NoShapeDist
	}
	return d.Float64
}

type SQLFeedReader struct {
	s    *SQLStorage
	hash string
}

// Runs query and calls scan for each row.
func (r *SQLFeedReader) each(query string, scan func(rows *sql.Rows) error) error {
	rows, err := r.s.query(query, r.hash)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *SQLFeedReader) Agencies() ([]*model.Agency, error) {
	agencies := []*model.Agency{}
	err := r.each(`SELECT id, name, url, timezone FROM agency WHERE hash = ? ORDER BY id`, func(rows *sql.Rows) error {
		a := &model.Agency{}
		agencies = append(agencies, a)
		return rows.Scan(&a.ID, &a.Name, &a.URL, &a.Timezone)
	})
	if err != nil {
		return nil, fmt.Errorf("querying agencies: %w", err)
	}
	return agencies, nil
}

func (r *SQLFeedReader) Stops() ([]*model.Stop, error) {
	stops := []*model.Stop{}
	err := r.each(`
SELECT id, code, name, description, lat, lon, url, location_type, parent_station, platform_code, wheelchair_boarding
FROM stops
WHERE hash = ?
ORDER BY id`, func(rows *sql.Rows) error {
		s := &model.Stop{}
		var locationType, wheelchair int
		err := rows.Scan(
			&s.ID,
			&s.Code,
			&s.Name,
			&s.Desc,
			&s.Lat,
			&s.Lon,
			&s.URL,
			&locationType,
			&s.ParentStation,
			&s.PlatformCode,
			&wheelchair,
		)
		s.LocationType = model.LocationType(locationType)
		s.WheelchairBoarding = model.WheelchairBoarding(wheelchair)
		stops = append(stops, s)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("querying stops: %w", err)
	}
	return stops, nil
}

func (r *SQLFeedReader) Routes() ([]*model.Route, error) {
	routes := []*model.Route{}
	err := r.each(`
SELECT id, agency_id, short_name, long_name, description, type, url, color, text_color
FROM routes
WHERE hash = ?
ORDER BY id`, func(rows *sql.Rows) error {
		route := &model.Route{}
		var routeType int
		err := rows.Scan(
			&route.ID,
			&route.AgencyID,
			&route.ShortName,
			&route.LongName,
			&route.Desc,
			&routeType,
			&route.URL,
			&route.Color,
			&route.TextColor,
		)
		route.Type = model.RouteType(routeType)
		routes = append(routes, route)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("querying routes: %w", err)
	}
	return routes, nil
}

func (r *SQLFeedReader) Trips() ([]*model.Trip, error) {
	trips := []*model.Trip{}
	err := r.each(`
SELECT id, route_id, service_id, headsign, short_name, direction_id, block_id, shape_id
FROM trips
WHERE hash = ?
ORDER BY id`, func(rows *sql.Rows) error {
		t := &model.Trip{}
		var direction int
		err := rows.Scan(
			&t.ID,
			&t.RouteID,
			&t.ServiceID,
			&t.Headsign,
			&t.ShortName,
			&direction,
			&t.BlockID,
			&t.ShapeID,
		)
		t.DirectionID = int8(direction)
		trips = append(trips, t)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("querying trips: %w", err)
	}
	return trips, nil
}

func (r *SQLFeedReader) StopTimes() ([]*model.StopTime, error) {
	stopTimes := []*model.StopTime{}
	err := r.each(`
SELECT trip_id, stop_id, stop_sequence, arrival_time, departure_time, headsign, shape_dist_traveled
FROM stop_times
WHERE hash = ?
ORDER BY trip_id, stop_sequence`, func(rows *sql.Rows) error {
		st := &model.StopTime{}
		var seq int64
		var dist sql.NullFloat64
		err := rows.Scan(
			&st.TripID,
			&st.StopID,
			&seq,
			&st.Arrival,
			&st.Departure,
			&st.Headsign,
			&dist,
		)
		st.StopSequence = uint32(seq)
		st.ShapeDistTraveled = distOrNone(dist)
		stopTimes = append(stopTimes, st)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("querying stop_times: %w", err)
	}
	return stopTimes, nil
}

func (r *SQLFeedReader) Calendars() ([]*model.Calendar, error) {
	calendars := []*model.Calendar{}
	err := r.each(`
SELECT service_id, start_date, end_date, monday, tuesday, wednesday, thursday, friday, saturday, sunday
FROM calendar
WHERE hash = ?
ORDER BY service_id`, func(rows *sql.Rows) error {
		cal := &model.Calendar{}
		var mon, tue, wed, thu, fri, sat, sun int
		err := rows.Scan(&cal.ServiceID, &cal.StartDate, &cal.EndDate, &mon, &tue, &wed, &thu, &fri, &sat, &sun)
		for d, v := range map[time.Weekday]int{
			time.Monday:    mon,
			time.Tuesday:   tue,
			time.Wednesday: wed,
			time.Thursday:  thu,
			time.Friday:    fri,
			time.Saturday:  sat,
			time.Sunday:    sun,
		} {
			if v == 1 {
				cal.Weekday |= 1 << d
			}
		}
		calendars = append(calendars, cal)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("querying calendar: %w", err)
	}
	return calendars, nil
}

func (r *SQLFeedReader) CalendarDates() ([]*model.CalendarDate, error) {
	calendarDates := []*model.CalendarDate{}
	err := r.each(`
SELECT service_id, date, exception_type
FROM calendar_dates
WHERE hash = ?
ORDER BY service_id, date`, func(rows *sql.Rows) error {
		cd := &model.CalendarDate{}
		var exceptionType int
		err := rows.Scan(&cd.ServiceID, &cd.Date, &exceptionType)
		cd.ExceptionType = int8(exceptionType)
		calendarDates = append(calendarDates, cd)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("querying calendar_dates: %w", err)
	}
	return calendarDates, nil
}

func (r *SQLFeedReader) ShapePoints() ([]*model.ShapePoint, error) {
	points := []*model.ShapePoint{}
	err := r.each(`
SELECT shape_id, lat, lon, sequence, shape_dist_traveled
FROM shapes
WHERE hash = ?
ORDER BY shape_id, sequence`, func(rows *sql.Rows) error {
		p := &model.ShapePoint{}
		var seq int64
		var dist sql.NullFloat64
		err := rows.Scan(&p.ShapeID, &p.Lat, &p.Lon, &seq, &dist)
		p.Sequence = uint32(seq)
		p.ShapeDistTraveled = distOrNone(dist)
		points = append(points, p)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("querying shapes: %w", err)
	}
	return points, nil
}

func (r *SQLFeedReader) Frequencies() ([]*model.Frequency, error) {
	frequencies := []*model.Frequency{}
	err := r.each(`
SELECT trip_id, start_time, end_time, headway_secs, exact_times
FROM frequencies
WHERE hash = ?
ORDER BY trip_id, start_time`, func(rows *sql.Rows) error {
		f := &model.Frequency{}
		var exact int
		err := rows.Scan(&f.TripID, &f.StartTime, &f.EndTime, &f.HeadwaySecs, &exact)
		f.ExactTimes = int8(exact)
		frequencies = append(frequencies, f)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("querying frequencies: %w", err)
	}
	return frequencies, nil
}

func (r *SQLFeedReader) ActiveServices(date string) ([]string, error) {
	parsedDate, err := time.Parse("20060102", date)
	if err != nil {
		return nil, fmt.Errorf("invalid date: %s", date)
	}

	// Column name, not a parameter.
	weekday := strings.ToLower(parsedDate.Weekday().String())

	rows, err := r.s.query(`
WITH
Exceptions AS (
    SELECT service_id, exception_type
    FROM calendar_dates
    WHERE hash = ? AND date = ?
),
Regular AS (
    SELECT service_id
    FROM calendar
    WHERE hash = ? AND
          `+weekday+` = 1 AND
          start_date <= ? AND
          end_date >= ?
)
SELECT service_id
FROM Regular
WHERE service_id NOT IN (
    SELECT service_id FROM Exceptions WHERE exception_type = 2
)
UNION
SELECT service_id
FROM Exceptions
WHERE exception_type = 1
ORDER BY service_id
`, r.hash, date, r.hash, date, date)
	if err != nil {
		return nil, fmt.Errorf("querying for active services: %w", err)
	}
	defer rows.Close()

	activeServices := []string{}
	for rows.Next() {
		var serviceID string
		err = rows.Scan(&serviceID)
		if err != nil {
			return nil, fmt.Errorf("scanning active services: %w", err)
		}
		activeServices = append(activeServices, serviceID)
	}

	return activeServices, rows.Err()
}

// Rewrites '?' placeholders as $1, $2, ...
func numberedPlaceholders(query string) string {
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}
