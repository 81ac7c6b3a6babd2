package matching

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/camsys/onebusaway-application-modules-sub000/cache"
	"github.com/camsys/onebusaway-application-modules-sub000/dynamic"
	"github.com/camsys/onebusaway-application-modules-sub000/geo"
	"github.com/camsys/onebusaway-application-modules-sub000/model"
	"github.com/camsys/onebusaway-application-modules-sub000/parse"
)

// Orchestrator runs matching cycles over parsed realtime feeds.
//
// Fuzzy, Dynamic and Projector are optional. Leave them nil (not a
// typed nil) to disable fuzzy trip matching, synthesis of added trips
// and location validation respectively.
type Orchestrator struct {
	cfg      Config
	schedule Schedule
	resolver DateResolver

	Fuzzy     TripMatcher
	Dynamic   Synthesizer
	Projector Projector

	TimeNow func() time.Time

	// Timestamp of the last record emitted per vehicle.
	vehicles *cache.TTL[string, time.Time]

	logger *slog.Logger
}

func New(cfg Config, schedule Schedule, resolver DateResolver, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxDeviation <= 0 {
		cfg.MaxDeviation = DefaultMaxDeviation
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}

	o := &Orchestrator{
		cfg:      cfg,
		schedule: schedule,
		resolver: resolver,
		TimeNow:  time.Now,
		vehicles: cache.NewTTL[string, time.Time](cfg.StaleAfter),
		logger:   logger.With("component", "matching"),
	}
	o.vehicles.TimeNow = func() time.Time { return o.TimeNow() }
	return o
}

// A vehicle's trip update and position, as far as the feed provides
// them.
type observation struct {
	vehicleID string
	trip      parse.TripDescriptor
	timestamp time.Time
	update    *parse.TripUpdate
	position  *parse.VehiclePosition
	index     int
}

func (obs *observation) key() string {
	if obs.vehicleID != "" {
		return obs.vehicleID
	}
	return "trip:" + obs.trip.TripID
}

// Pairs trip updates with vehicle positions of the same vehicle on the
// same trip. Observations come in feed order, a pair at the earlier of
// its two entities.
func observations(rt *parse.Realtime) []*observation {
	obs := make([]*observation, 0, len(rt.TripUpdates)+len(rt.VehiclePositions))

	type pair struct{ vehicle, trip string }
	byPair := map[pair]*observation{}

	for _, tu := range rt.TripUpdates {
		o := &observation{
			vehicleID: tu.VehicleID,
			trip:      tu.Trip,
			timestamp: tu.Timestamp,
			update:    tu,
			index:     tu.Index,
		}
		obs = append(obs, o)
		if tu.VehicleID != "" && tu.Trip.TripID != "" {
			if _, found := byPair[pair{tu.VehicleID, tu.Trip.TripID}]; !found {
				byPair[pair{tu.VehicleID, tu.Trip.TripID}] = o
			}
		}
	}

	for _, vp := range rt.VehiclePositions {
		if o, found := byPair[pair{vp.VehicleID, vp.Trip.TripID}]; found && o.position == nil {
			o.position = vp
			o.index = min(o.index, vp.Index)
			if o.timestamp.IsZero() {
				o.timestamp = vp.Timestamp
			}
			continue
		}
		obs = append(obs, &observation{
			vehicleID: vp.VehicleID,
			trip:      vp.Trip,
			timestamp: vp.Timestamp,
			position:  vp,
			index:     vp.Index,
		})
	}

	slices.SortStableFunc(obs, func(a, b *observation) int { return a.index - b.index })
	return obs
}

// Matches every entity of a feed. A nil feed is treated as empty.
// Entities are processed in feed order, and a failure in one doesn't
// affect the others.
func (o *Orchestrator) ProcessFeed(ctx context.Context, rt *parse.Realtime) *Result {
	now := o.TimeNow()
	result := &Result{
		CycleID:          uuid.NewString(),
		ProcessedAt:      now,
		Records:          []*Record{},
		UnmatchedTripIDs: []string{},
		Dropped:          map[Reason]int{},
	}

	if rt == nil {
		rt = parse.EmptyRealtime()
	}
	if rt.Timestamp > 0 {
		result.LastUpdate = time.Unix(int64(rt.Timestamp), 0).UTC()
	}

	if err := ctx.Err(); err != nil {
		o.logger.Warn("matching cycle abandoned", "cycle", result.CycleID, "error", err)
		result.Skipped = true
		return result
	}

	if !o.schedule.Ready() {
		o.logger.Info("schedule not ready, skipping cycle", "cycle", result.CycleID)
		result.Skipped = true
		return result
	}

	for _, obs := range observations(rt) {
		result.Total++
		o.process(obs, result)
	}

	evicted := o.vehicles.Sweep()
	result.ActiveVehicles = o.vehicles.Len()

	o.logger.Info(
		"matching cycle",
		"cycle", result.CycleID,
		"entities", result.Total,
		"matched", len(result.Records),
		"unmatched", len(result.UnmatchedTripIDs),
		"active_vehicles", result.ActiveVehicles,
		"evicted", len(evicted),
	)

	return result
}

func (o *Orchestrator) process(obs *observation, result *Result) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("processing entity", "vehicle", obs.vehicleID, "trip", obs.trip.TripID, "panic", r)
			result.Dropped[ReasonError]++
		}
	}()

	if obs.timestamp.IsZero() {
		obs.timestamp = result.LastUpdate
		if obs.timestamp.IsZero() {
			obs.timestamp = result.ProcessedAt
		}
	}

	record, reason := o.match(obs)
	if reason != "" {
		result.Dropped[reason]++
		if reason == ReasonUnmatchedTrip {
			result.UnmatchedTripIDs = append(result.UnmatchedTripIDs, obs.trip.TripID)
		}
		return
	}

	// Emission is monotonic per vehicle
	key := obs.key()
	o.vehicles.Touch(key)
	if last, found := o.vehicles.Get(key); found && !record.Timestamp.After(last) {
		o.logger.Debug("dropping out of order record", "vehicle", key, "timestamp", record.Timestamp, "last", last)
		result.Dropped[ReasonOutOfOrder]++
		return
	}
	o.vehicles.Put(key, record.Timestamp)

	result.Records = append(result.Records, record)
}

func (o *Orchestrator) match(obs *observation) (*Record, Reason) {
	if obs.trip.TripID == "" {
		o.logger.Debug("entity without trip", "vehicle", obs.vehicleID)
		return nil, ReasonNoTrip
	}

	instance, trip, reason := o.resolve(obs)
	if reason != "" {
		return nil, reason
	}

	dev, hasDev := scheduleDeviation(instance, trip, obs.update)
	if hasDev && (dev > o.cfg.MaxDeviation || dev < -o.cfg.MaxDeviation) {
		o.logger.Debug("deviation out of bounds", "trip", trip.ID.String(), "deviation", dev)
		return nil, ReasonDeviation
	}

	record := &Record{
		VehicleID:    obs.vehicleID,
		TripID:       trip.ID,
		BlockID:      instance.Block.BlockID,
		ServiceDate:  instance.ServiceDate,
		Timestamp:    obs.timestamp,
		Deviation:    dev,
		HasDeviation: hasDev,
		Phase:        blockPhase(instance, obs.timestamp, dev),
		Dynamic:      instance.Dynamic,
	}

	if obs.position != nil && obs.position.HasPosition {
		record.HasPosition = true
		record.Lat = obs.position.Lat
		record.Lon = obs.position.Lon

		if o.cfg.LocationTolerance > 0 && o.Projector != nil {
			lat, lon, ok := o.Projector.Project(instance, obs.timestamp.Add(-dev))
			if ok && geo.Distance(lat, lon, record.Lat, record.Lon) > o.cfg.LocationTolerance {
				o.logger.Debug("position too far from schedule", "trip", trip.ID.String(), "vehicle", obs.vehicleID)
				return nil, ReasonLocation
			}
		}
	}

	return record, ""
}

// Finds the trip and block instance of an observation. Added trips
// are synthesized. Others are looked up by id in each agency, then
// fuzzily, and then dated.
func (o *Orchestrator) resolve(obs *observation) (*model.BlockInstance, *model.TripEntry, Reason) {
	agencies := o.agencies()

	if obs.trip.Relationship == parse.TripAdded {
		if o.Dynamic == nil || obs.update == nil || len(obs.update.StopTimeUpdates) == 0 || len(agencies) == 0 {
			return nil, nil, ReasonUnmatchedTrip
		}
		instance := o.Dynamic.Synthesize(o.addedTrip(agencies[0], obs))
		if instance == nil {
			return nil, nil, ReasonUnmatchedTrip
		}
		return instance, instance.Trips[0], ""
	}

	var trip *model.TripEntry
	for _, agency := range agencies {
		if t, found := o.schedule.Trip(model.NewID(agency, obs.trip.TripID)); found {
			trip = t
			break
		}
	}
	if trip == nil && o.Fuzzy != nil {
		for _, agency := range agencies {
			if t, found := o.Fuzzy.Match(model.NewID(agency, obs.trip.TripID), obs.timestamp); found {
				trip = t
				break
			}
		}
	}
	if trip == nil {
		o.logger.Debug("unmatched trip", "trip", obs.trip.TripID)
		return nil, nil, ReasonUnmatchedTrip
	}

	instance, found := o.resolver.Resolve(trip, obs.timestamp)
	if !found {
		return nil, nil, ReasonNoServiceDate
	}

	// Instance trips are the graph's, so this is the same entry
	// unless the block changed under us.
	if t := instance.Trip(trip.ID); t != nil {
		trip = t
	}

	return instance, trip, ""
}

func (o *Orchestrator) agencies() []string {
	if len(o.cfg.Agencies) > 0 {
		return o.cfg.Agencies
	}
	agencies := []string{}
	for _, a := range o.schedule.Agencies() {
		agencies = append(agencies, a.ID)
	}
	return agencies
}

func (o *Orchestrator) addedTrip(agency string, obs *observation) dynamic.AddedTrip {
	loc := time.UTC
	if a, found := o.schedule.Agency(agency); found && a.Timezone != "" {
		if l, err := model.Location(a.Timezone); err == nil {
			loc = l
		}
	}

	serviceDate := model.ServiceDateOf(obs.timestamp, loc)
	if obs.trip.StartDate != "" {
		if sd, err := model.ParseServiceDate(obs.trip.StartDate, loc); err == nil {
			serviceDate = sd
		}
	}

	added := dynamic.AddedTrip{
		AgencyID:    agency,
		TripID:      obs.trip.TripID,
		RouteID:     obs.trip.RouteID,
		Direction:   obs.trip.DirectionID,
		ServiceDate: serviceDate,
		StartTime:   obs.trip.StartTime,
	}
	for _, u := range obs.update.StopTimeUpdates {
		if u.Type == parse.StopTimeUpdateSkipped {
			continue
		}
		added.Stops = append(added.Stops, dynamic.AddedStop{
			StopID:    u.StopID,
			Arrival:   u.ArrivalTime,
			Departure: u.DepartureTime,
		})
	}
	return added
}
