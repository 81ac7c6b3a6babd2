package dynamic

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/camsys/onebusaway-application-modules-sub000/cache"
	"github.com/camsys/onebusaway-application-modules-sub000/geo"
	"github.com/camsys/onebusaway-application-modules-sub000/model"
)

const (
	DefaultRouteTTL = time.Hour

	// Prefix of synthesized service ids, followed by the service date
	// as yyyy-MM-dd.
	ServiceIDPrefix = "DYN-"
)

var (
	ErrUnknownRoute = errors.New("unknown route")
	ErrNoStopTimes  = errors.New("no usable stop times")
)

// Schedule is the part of the graph synthesis needs.
type Schedule interface {
	Agency(id string) (*model.AgencyEntry, bool)
	Route(id model.ID) (*model.RouteEntry, bool)
	Stop(id model.ID) (*model.StopEntry, bool)
}

// An unscheduled trip as announced by a real-time feed.
type AddedTrip struct {
	AgencyID  string
	TripID    string
	RouteID   string
	Direction string

	// Midnight of the trip's service date. Its location is used when
	// the agency has no timezone.
	ServiceDate time.Time
	StartTime   string
	Stops       []AddedStop
}

// Zero times mean the feed didn't provide them.
type AddedStop struct {
	StopID    string
	Arrival   time.Time
	Departure time.Time
}

type Synthesizer struct {
	schedule Schedule
	routes   *cache.TTL[model.ID, *model.RouteEntry]
	index    *Index
	logger   *slog.Logger
}

func NewSynthesizer(schedule Schedule, index *Index, routeTTL time.Duration, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	if index == nil {
		index = NewIndex(DefaultBlockTTL)
	}
	if routeTTL <= 0 {
		routeTTL = DefaultRouteTTL
	}
	return &Synthesizer{
		schedule: schedule,
		routes:   cache.NewTTL[model.ID, *model.RouteEntry](routeTTL),
		index:    index,
		logger:   logger.With("component", "dynamic"),
	}
}

func (s *Synthesizer) Index() *Index {
	return s.index
}

// Builds a single-trip block instance for an added trip, or returns
// nil if no usable trip can be built. Repeat observations of the
// same trip return the cached instance, refreshed if its stop times
// changed.
func (s *Synthesizer) Synthesize(added AddedTrip) *model.BlockInstance {
	blockID := model.NewID(added.AgencyID, added.TripID)

	cached, haveCached := s.index.Instance(blockID)

	instance, route, err := s.build(added, blockID)
	if err != nil {
		if haveCached {
			s.index.Touch(blockID)
			return cached
		}
		s.logger.Debug("dropping added trip", "trip", blockID, "error", err)
		return nil
	}

	if haveCached && sameStopTimes(cached.Trips[0].StopTimes, instance.Trips[0].StopTimes) {
		s.index.Touch(blockID)
		return cached
	}

	s.index.Register(instance, route)
	s.logger.Debug("synthesized trip", "trip", blockID, "stops", len(instance.Trips[0].StopTimes), "refresh", haveCached)
	return instance
}

func (s *Synthesizer) build(added AddedTrip, blockID model.ID) (*model.BlockInstance, *model.RouteEntry, error) {
	if added.AgencyID == "" || added.TripID == "" {
		return nil, nil, fmt.Errorf("missing agency or trip id")
	}
	if added.ServiceDate.IsZero() {
		return nil, nil, fmt.Errorf("missing service date")
	}

	route, err := s.route(model.NewID(added.AgencyID, added.RouteID))
	if err != nil {
		return nil, nil, err
	}

	tz := added.ServiceDate.Location().String()
	if agency, ok := s.schedule.Agency(added.AgencyID); ok && agency.Timezone != "" {
		tz = agency.Timezone
	}
	loc, err := model.Location(tz)
	if err != nil {
		return nil, nil, err
	}
	local := added.ServiceDate.In(loc)
	serviceDate := model.ServiceDate(local.Year(), local.Month(), local.Day(), loc)

	trip := &model.TripEntry{
		ID:          blockID,
		RouteID:     route.ID,
		BlockID:     blockID,
		DirectionID: Direction(added.Direction),
		ServiceID: model.LocalizedServiceID{
			ServiceID: model.NewID(added.AgencyID, ServiceIDPrefix+serviceDate.Add(12*time.Hour).Format("2006-01-02")),
			Timezone:  tz,
		},
	}

	var prev *model.StopEntry
	distance := 0.0
	for _, as := range added.Stops {
		stop, ok := s.schedule.Stop(model.NewID(added.AgencyID, as.StopID))
		if !ok {
			s.logger.Debug("dropping unknown stop", "trip", blockID, "stop", as.StopID)
			continue
		}
		arrival, departure, ok := stopTimes(serviceDate, as)
		if !ok {
			continue
		}
		if prev != nil {
			distance += geo.Distance(prev.Lat, prev.Lon, stop.Lat, stop.Lon)
		}
		prev = stop

		trip.StopTimes = append(trip.StopTimes, model.StopTimeEntry{
			TripID:            blockID,
			StopID:            stop.ID,
			Arrival:           arrival,
			Departure:         departure,
			ShapeDistTraveled: distance,
			Sequence:          len(trip.StopTimes),
		})
	}
	if len(trip.StopTimes) == 0 {
		return nil, nil, ErrNoStopTimes
	}
	trip.TotalDistance = distance

	config := &model.BlockConfigurationEntry{
		BlockID:    blockID,
		ServiceIDs: model.NewServiceIDActivation(trip.ServiceID),
		Trips: []model.BlockTripEntry{{
			TripID:         trip.ID,
			RouteID:        trip.RouteID,
			FirstDeparture: trip.FirstDeparture(),
			LastArrival:    trip.LastArrival(),
			TripDistance:   distance,
		}},
		TotalBlockDistance: distance,
	}

	return &model.BlockInstance{
		Block:       config,
		ServiceDate: serviceDate,
		Trips:       []*model.TripEntry{trip},
		Dynamic:     true,
	}, route, nil
}

func (s *Synthesizer) route(id model.ID) (*model.RouteEntry, error) {
	return s.routes.GetOrCreate(id, func() (*model.RouteEntry, error) {
		route, ok := s.schedule.Route(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRoute, id)
		}
		return route, nil
	})
}

// Seconds since service date midnight. A stop with only one of its
// times set uses it for both; a stop with neither is unusable.
func stopTimes(serviceDate time.Time, as AddedStop) (int, int, bool) {
	arrival, departure := -1, -1
	if !as.Arrival.IsZero() && as.Arrival.After(serviceDate) {
		arrival = model.SecondsSince(serviceDate, as.Arrival)
	}
	if !as.Departure.IsZero() && as.Departure.After(serviceDate) {
		departure = model.SecondsSince(serviceDate, as.Departure)
	}

	switch {
	case arrival < 0 && departure < 0:
		return 0, 0, false
	case arrival < 0:
		arrival = departure
	case departure < 0:
		departure = arrival
	}
	return arrival, departure, true
}

// Maps compass directions to GTFS direction ids.
func Direction(d string) string {
	switch strings.ToUpper(d) {
	case "N":
		return "0"
	case "S":
		return "1"
	}
	return d
}

func sameStopTimes(a, b []model.StopTimeEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
