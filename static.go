package transit

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/camsys/onebusaway-application-modules-sub000/calendar"
	"github.com/camsys/onebusaway-application-modules-sub000/geo"
	"github.com/camsys/onebusaway-application-modules-sub000/graph"
	"github.com/camsys/onebusaway-application-modules-sub000/model"
	"github.com/camsys/onebusaway-application-modules-sub000/storage"
)

// A static bundle loaded from storage, along with the schedule graph
// and calendar built from it.
type Static struct {
	Metadata *storage.FeedMetadata
	Reader   storage.FeedReader
	Graph    *graph.Graph
	Calendar *calendar.Store

	// The bundle's default agency. Stops, shapes and service ids
	// are qualified with it.
	Agency   string
	Location *time.Location
}

func NewStatic(reader storage.FeedReader, metadata *storage.FeedMetadata, logger *slog.Logger) (*Static, error) {
	location, err := model.Location(metadata.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone: %w", err)
	}

	g, agency, err := BuildGraph(reader, metadata, logger)
	if err != nil {
		return nil, fmt.Errorf("building graph: %w", err)
	}

	cal, err := calendar.FromReader(agency, reader)
	if err != nil {
		return nil, fmt.Errorf("loading calendar: %w", err)
	}

	return &Static{
		Metadata: metadata,
		Reader:   reader,
		Graph:    g,
		Calendar: cal,
		Agency:   agency,
		Location: location,
	}, nil
}

// Agencies without an agency_id are identified by name.
func agencyID(a *model.Agency) string {
	if a.ID != "" {
		return a.ID
	}
	return a.Name
}

// Builds a schedule graph from a stored bundle, and returns it with
// the bundle's default agency (the first one listed).
//
// Trips without a block_id get a block of their own. Routes of an
// agency sharing a short name are grouped into one route collection.
// Stop times without times are interpolated by distance between their
// timed neighbours.
func BuildGraph(reader storage.FeedReader, metadata *storage.FeedMetadata, logger *slog.Logger) (*graph.Graph, string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := graph.NewBuilder(logger)
	logger = logger.With("component", "loader")

	agencies, err := reader.Agencies()
	if err != nil {
		return nil, "", fmt.Errorf("getting agencies: %w", err)
	}
	if len(agencies) == 0 {
		return nil, "", fmt.Errorf("no agencies")
	}
	defaultAgency := agencyID(agencies[0])
	for _, a := range agencies {
		tz := a.Timezone
		if tz == "" {
			tz = metadata.Timezone
		}
		err = b.AddAgency(&model.AgencyEntry{
			ID:       agencyID(a),
			Name:     a.Name,
			URL:      a.URL,
			Timezone: tz,
		})
		if err != nil {
			return nil, "", fmt.Errorf("adding agency: %w", err)
		}
	}

	stops, err := reader.Stops()
	if err != nil {
		return nil, "", fmt.Errorf("getting stops: %w", err)
	}
	stopByID := make(map[string]*model.Stop, len(stops))
	for _, s := range stops {
		stopByID[s.ID] = s
		entry := &model.StopEntry{
			ID:                 model.NewID(defaultAgency, s.ID),
			Code:               s.Code,
			Name:               s.Name,
			Lat:                s.Lat,
			Lon:                s.Lon,
			LocationType:       s.LocationType,
			WheelchairBoarding: s.WheelchairBoarding,
		}
		if s.ParentStation != "" {
			entry.Parent = model.NewID(defaultAgency, s.ParentStation)
		}
		if err := b.AddStop(entry); err != nil {
			return nil, "", fmt.Errorf("adding stop: %w", err)
		}
	}

	routes, err := reader.Routes()
	if err != nil {
		return nil, "", fmt.Errorf("getting routes: %w", err)
	}
	routeAgency := make(map[string]string, len(routes))
	collections := map[string]model.ID{}
	for _, r := range routes {
		agency := r.AgencyID
		if agency == "" {
			agency = defaultAgency
		}
		routeAgency[r.ID] = agency

		id := model.NewID(agency, r.ID)
		collection := id
		if r.ShortName != "" {
			key := agency + "\x00" + r.ShortName
			if c, found := collections[key]; found {
				collection = c
			} else {
				collections[key] = id
			}
		}

		err = b.AddRoute(&model.RouteEntry{
			ID:           id,
			ShortName:    r.ShortName,
			LongName:     r.LongName,
			Type:         r.Type,
			CollectionID: collection,
		})
		if err != nil {
			return nil, "", fmt.Errorf("adding route: %w", err)
		}
	}

	points, err := reader.ShapePoints()
	if err != nil {
		return nil, "", fmt.Errorf("getting shapes: %w", err)
	}
	for _, shape := range shapePoints(defaultAgency, points) {
		if err := b.AddShape(shape); err != nil {
			return nil, "", fmt.Errorf("adding shape: %w", err)
		}
	}

	frequencies, err := reader.Frequencies()
	if err != nil {
		return nil, "", fmt.Errorf("getting frequencies: %w", err)
	}
	frequenciesByTrip := map[string][]model.FrequencyEntry{}
	for _, f := range frequencies {
		frequenciesByTrip[f.TripID] = append(frequenciesByTrip[f.TripID], model.FrequencyEntry{
			Start:      model.Seconds(f.StartTime),
			End:        model.Seconds(f.EndTime),
			Headway:    f.HeadwaySecs,
			ExactTimes: f.ExactTimes == 1,
		})
	}

	stopTimes, err := reader.StopTimes()
	if err != nil {
		return nil, "", fmt.Errorf("getting stop times: %w", err)
	}
	stopTimesByTrip := map[string][]*model.StopTime{}
	for _, st := range stopTimes {
		stopTimesByTrip[st.TripID] = append(stopTimesByTrip[st.TripID], st)
	}

	trips, err := reader.Trips()
	if err != nil {
		return nil, "", fmt.Errorf("getting trips: %w", err)
	}
	for _, t := range trips {
		agency, found := routeAgency[t.RouteID]
		if !found {
			return nil, "", fmt.Errorf("trip %s: unknown route %s", t.ID, t.RouteID)
		}

		sts, found := stopTimesByTrip[t.ID]
		if !found {
			logger.Warn("skipping trip without stop times", "trip", t.ID)
			continue
		}

		entries, err := stopTimeEntries(defaultAgency, sts, stopByID)
		if err != nil {
			return nil, "", fmt.Errorf("trip %s: %w", t.ID, err)
		}

		tz := metadata.Timezone
		for _, a := range agencies {
			if agencyID(a) == agency && a.Timezone != "" {
				tz = a.Timezone
			}
		}

		blockID := t.BlockID
		if blockID == "" {
			blockID = t.ID
		}

		trip := &model.TripEntry{
			ID:          model.NewID(agency, t.ID),
			RouteID:     model.NewID(agency, t.RouteID),
			BlockID:     model.NewID(agency, blockID),
			DirectionID: strconv.Itoa(int(t.DirectionID)),
			ServiceID: model.LocalizedServiceID{
				ServiceID: model.NewID(defaultAgency, t.ServiceID),
				Timezone:  tz,
			},
			Headsign:    t.Headsign,
			StopTimes:   entries,
			Frequencies: frequenciesByTrip[t.ID],
		}
		if t.ShapeID != "" {
			trip.ShapeID = model.NewID(defaultAgency, t.ShapeID)
		}

		if err := b.AddTrip(trip); err != nil {
			return nil, "", fmt.Errorf("adding trip: %w", err)
		}
	}

	return b.Build(), defaultAgency, nil
}

// Groups shape points, ordered by shape and sequence, into shapes.
// Distances are taken from shape_dist_traveled when every point of a
// shape has it, and accumulated along the points otherwise.
func shapePoints(agency string, points []*model.ShapePoint) []*model.ShapePoints {
	shapes := []*model.ShapePoints{}
	provided := []bool{}

	var current *model.ShapePoints
	for _, p := range points {
		if current == nil || current.ShapeID.ID != p.ShapeID {
			current = &model.ShapePoints{ShapeID: model.NewID(agency, p.ShapeID)}
			shapes = append(shapes, current)
			provided = append(provided, true)
		}
		current.Lats = append(current.Lats, p.Lat)
		current.Lons = append(current.Lons, p.Lon)
		current.Distances = append(current.Distances, p.ShapeDistTraveled)
		if p.ShapeDistTraveled < 0 {
			provided[len(provided)-1] = false
		}
	}

	for i, shape := range shapes {
		if provided[i] {
			continue
		}
		shape.Distances[0] = 0
		for j := 1; j < shape.Len(); j++ {
			shape.Distances[j] = shape.Distances[j-1] + geo.Distance(
				shape.Lats[j-1], shape.Lons[j-1],
				shape.Lats[j], shape.Lons[j],
			)
		}
	}

	return shapes
}

// Converts a trip's stop times, ordered by stop_sequence, into graph
// entries. Untimed stops get times interpolated between the closest
// timed stops on either side, proportionally to distance travelled.
// Distances come from shape_dist_traveled if all stops have it, and
// from straight lines between stops otherwise.
func stopTimeEntries(agency string, stopTimes []*model.StopTime, stops map[string]*model.Stop) ([]model.StopTimeEntry, error) {
	entries := make([]model.StopTimeEntry, len(stopTimes))
	timed := make([]bool, len(stopTimes))
	distances := make([]float64, len(stopTimes))

	useShapeDist := true
	for _, st := range stopTimes {
		if st.ShapeDistTraveled < 0 {
			useShapeDist = false
			break
		}
	}

	for i, st := range stopTimes {
		stop, found := stops[st.StopID]
		if !found {
			return nil, fmt.Errorf("unknown stop %s", st.StopID)
		}

		entries[i] = model.StopTimeEntry{
			StopID:            model.NewID(agency, st.StopID),
			ShapeDistTraveled: st.ShapeDistTraveled,
			Sequence:          int(st.StopSequence),
		}
		if st.Arrival != "" && st.Departure != "" {
			entries[i].Arrival = model.Seconds(st.Arrival)
			entries[i].Departure = model.Seconds(st.Departure)
			timed[i] = true
		}

		switch {
		case useShapeDist:
			distances[i] = st.ShapeDistTraveled
		case i > 0:
			prev := stops[stopTimes[i-1].StopID]
			distances[i] = distances[i-1] + geo.Distance(prev.Lat, prev.Lon, stop.Lat, stop.Lon)
		}
	}

	if !timed[0] || !timed[len(timed)-1] {
		return nil, fmt.Errorf("first and last stop times must have times")
	}

	last := 0
	for i := 1; i < len(entries); i++ {
		if !timed[i] {
			continue
		}
		if i-last > 1 {
			interpolate(entries[last:i+1], distances[last:i+1])
		}
		last = i
	}

	return entries, nil
}

// Fills in times of entries strictly between the first and last,
// which must be timed. Falls back to even spacing when the run has no
// length.
func interpolate(entries []model.StopTimeEntry, distances []float64) {
	n := len(entries) - 1
	from := entries[0].Departure
	span := entries[n].Arrival - from
	length := distances[n] - distances[0]

	for k := 1; k < n; k++ {
		ratio := float64(k) / float64(n)
		if length > 0 {
			ratio = (distances[k] - distances[0]) / length
		}
		t := from + int(ratio*float64(span))
		entries[k].Arrival = t
		entries[k].Departure = t
	}
}
