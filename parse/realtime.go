package parse

import (
	"context"
	"fmt"
	"strconv"
	"time"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	proto "google.golang.org/protobuf/proto"
)

type StopTimeUpdateScheduleRelationship int

const (
	StopTimeUpdateScheduled StopTimeUpdateScheduleRelationship = iota
	StopTimeUpdateSkipped
	StopTimeUpdateNoData
)

type TripScheduleRelationship int

const (
	TripScheduled TripScheduleRelationship = iota
	TripAdded
	TripUnscheduled
	TripCanceled
	TripDuplicated
)

var tripRelationships = map[gtfsproto.TripDescriptor_ScheduleRelationship]TripScheduleRelationship{
	gtfsproto.TripDescriptor_SCHEDULED:   TripScheduled,
	gtfsproto.TripDescriptor_ADDED:       TripAdded,
	gtfsproto.TripDescriptor_UNSCHEDULED: TripUnscheduled,
	gtfsproto.TripDescriptor_CANCELED:    TripCanceled,
	gtfsproto.TripDescriptor_DUPLICATED:  TripDuplicated,
}

// UNSCHEDULED stop time updates only apply to frequency based trips
// and are dropped.
var stopRelationships = map[gtfsproto.TripUpdate_StopTimeUpdate_ScheduleRelationship]StopTimeUpdateScheduleRelationship{
	gtfsproto.TripUpdate_StopTimeUpdate_SCHEDULED: StopTimeUpdateScheduled,
	gtfsproto.TripUpdate_StopTimeUpdate_SKIPPED:   StopTimeUpdateSkipped,
	gtfsproto.TripUpdate_StopTimeUpdate_NO_DATA:   StopTimeUpdateNoData,
}

type StopTimeUpdate struct {
	TripID         string
	StopID         string
	StopSequence   uint32
	ArrivalIsSet   bool
	ArrivalTime    time.Time
	ArrivalDelay   time.Duration
	DepartureIsSet bool
	DepartureTime  time.Time
	DepartureDelay time.Duration
	Type           StopTimeUpdateScheduleRelationship
}

type TripDescriptor struct {
	TripID    string
	RouteID   string
	StartDate string
	StartTime string

	// "0" or "1" when set in the feed, empty otherwise.
	DirectionID  string
	Relationship TripScheduleRelationship
}

type TripUpdate struct {
	Trip      TripDescriptor
	VehicleID string

	// Position of the entity among all entities of the merged feeds.
	Index int

	// Zero if the entity has no timestamp of its own.
	Timestamp time.Time

	DelayIsSet bool
	Delay      time.Duration

	StopTimeUpdates []*StopTimeUpdate
}

type VehiclePosition struct {
	Trip      TripDescriptor
	VehicleID string
	Timestamp time.Time
	Index     int

	HasPosition bool
	Lat         float64
	Lon         float64

	StopID string
}

// Realtime is the merged content of one or more GTFS-rt feeds.
type Realtime struct {
	// Header timestamp of the last feed merged.
	Timestamp uint64

	// Trips canceled by some feed. These have no TripUpdate.
	SkippedTrips map[string]bool

	// Scheduled and added trip updates, in feed order.
	TripUpdates      []*TripUpdate
	VehiclePositions []*VehiclePosition

	// Trip updates dropped for lack of support: unscheduled and
	// duplicated trips, and those with no trip_id.
	Ignored int
}

// A feed with nothing in it. Stands in for feeds that couldn't be
// retrieved or parsed.
func EmptyRealtime() *Realtime {
	return &Realtime{
		SkippedTrips:     map[string]bool{},
		TripUpdates:      []*TripUpdate{},
		VehiclePositions: []*VehiclePosition{},
	}
}

// ParseRealtime decodes and merges serialized FeedMessages. Only
// full datasets of version 1.0 or 2.0 are accepted.
func ParseRealtime(ctx context.Context, feeds [][]byte) (*Realtime, error) {
	rt := EmptyRealtime()

	n := 0
	for i, feed := range feeds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		msg := &gtfsproto.FeedMessage{}
		if err := proto.Unmarshal(feed, msg); err != nil {
			return nil, fmt.Errorf("feed %d: unmarshaling protobuf: %w", i, err)
		}
		if err := checkHeader(msg.GetHeader()); err != nil {
			return nil, fmt.Errorf("feed %d: %w", i, err)
		}
		rt.Timestamp = msg.GetHeader().GetTimestamp()

		for _, entity := range msg.GetEntity() {
			if v := entity.GetVehicle(); v != nil {
				rt.addVehiclePosition(v, n)
			}
			if tu := entity.GetTripUpdate(); tu != nil {
				if err := rt.addTripUpdate(tu, n); err != nil {
					return nil, fmt.Errorf("feed %d: entity '%s': %w", i, entity.GetId(), err)
				}
			}
			n++
		}
	}

	return rt, nil
}

func checkHeader(header *gtfsproto.FeedHeader) error {
	switch v := header.GetGtfsRealtimeVersion(); v {
	case "1.0", "2.0":
	default:
		return fmt.Errorf("version %s not supported", v)
	}

	// Incrementality defaults to FULL_DATASET when absent.
	if inc := header.GetIncrementality(); inc != gtfsproto.FeedHeader_FULL_DATASET {
		return fmt.Errorf("feed incrementality %s not supported", inc)
	}
	return nil
}

func (rt *Realtime) addTripUpdate(update *gtfsproto.TripUpdate, index int) error {
	trip := update.GetTrip()
	if trip == nil {
		return fmt.Errorf("trip_update missing trip")
	}

	// Trips identified by route, direction and start time alone
	// aren't supported.
	if trip.GetTripId() == "" {
		rt.Ignored++
		return nil
	}

	tu := &TripUpdate{
		Trip:      tripDescriptor(trip),
		VehicleID: vehicleID(update.GetVehicle()),
		Timestamp: unixTime(update.GetTimestamp()),
		Index:     index,
	}
	if update.Delay != nil {
		tu.DelayIsSet = true
		tu.Delay = time.Duration(update.GetDelay()) * time.Second
	}

	switch tu.Trip.Relationship {
	case TripCanceled:
		rt.SkippedTrips[tu.Trip.TripID] = true
		return nil
	case TripUnscheduled, TripDuplicated:
		rt.Ignored++
		return nil
	}

	// For added trips the updates are the only schedule there is.
	for _, u := range update.GetStopTimeUpdate() {
		stu, err := stopTimeUpdate(tu.Trip.TripID, u)
		if err != nil {
			return err
		}
		if stu != nil {
			tu.StopTimeUpdates = append(tu.StopTimeUpdates, stu)
		}
	}
	rt.TripUpdates = append(rt.TripUpdates, tu)
	return nil
}

func (rt *Realtime) addVehiclePosition(vehicle *gtfsproto.VehiclePosition, index int) {
	vp := &VehiclePosition{
		VehicleID: vehicleID(vehicle.GetVehicle()),
		Timestamp: unixTime(vehicle.GetTimestamp()),
		Index:     index,
		StopID:    vehicle.GetStopId(),
	}
	if trip := vehicle.GetTrip(); trip != nil {
		vp.Trip = tripDescriptor(trip)
	}
	if pos := vehicle.GetPosition(); pos != nil {
		vp.HasPosition = true
		vp.Lat = float64(pos.GetLatitude())
		vp.Lon = float64(pos.GetLongitude())
	}

	if vp.VehicleID == "" && vp.Trip.TripID == "" {
		return
	}
	rt.VehiclePositions = append(rt.VehiclePositions, vp)
}

func tripDescriptor(trip *gtfsproto.TripDescriptor) TripDescriptor {
	td := TripDescriptor{
		TripID:       trip.GetTripId(),
		RouteID:      trip.GetRouteId(),
		StartDate:    trip.GetStartDate(),
		StartTime:    trip.GetStartTime(),
		Relationship: tripRelationships[trip.GetScheduleRelationship()],
	}
	if trip.DirectionId != nil {
		td.DirectionID = strconv.Itoa(int(trip.GetDirectionId()))
	}
	return td
}

// Prefers the vehicle id, falling back on its label.
func vehicleID(vehicle *gtfsproto.VehicleDescriptor) string {
	if id := vehicle.GetId(); id != "" {
		return id
	}
	return vehicle.GetLabel()
}

func unixTime(ts uint64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(int64(ts), 0).UTC()
}

// Unpacks a stop time event. A zero absolute time is left unset.
func stopTimeEvent(ev *gtfsproto.TripUpdate_StopTimeEvent) (bool, time.Time, time.Duration) {
	if ev == nil {
		return false, time.Time{}, 0
	}
	var t time.Time
	if ev.GetTime() != 0 {
		t = time.Unix(ev.GetTime(), 0).UTC()
	}
	return true, t, time.Duration(ev.GetDelay()) * time.Second
}

// Returns nil for updates that carry nothing usable.
func stopTimeUpdate(tripID string, update *gtfsproto.TripUpdate_StopTimeUpdate) (*StopTimeUpdate, error) {
	kind, ok := stopRelationships[update.GetScheduleRelationship()]
	if !ok {
		return nil, nil
	}

	// stop_sequence 0 is legal, but indistinguishable from unset
	// here.
	if update.GetStopId() == "" && update.GetStopSequence() == 0 {
		return nil, fmt.Errorf("stop_time_update missing stop_id and stop_sequence")
	}

	stu := &StopTimeUpdate{
		TripID:       tripID,
		StopID:       update.GetStopId(),
		StopSequence: update.GetStopSequence(),
		Type:         kind,
	}
	stu.ArrivalIsSet, stu.ArrivalTime, stu.ArrivalDelay = stopTimeEvent(update.GetArrival())
	stu.DepartureIsSet, stu.DepartureTime, stu.DepartureDelay = stopTimeEvent(update.GetDeparture())
	return stu, nil
}
