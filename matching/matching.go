// Package matching ties realtime feed entities to the static
// schedule: it resolves trips, their service dates and block
// instances, validates the result and emits one record per vehicle
// per cycle.
package matching

import (
	"time"

	"github.com/camsys/onebusaway-application-modules-sub000/dynamic"
	"github.com/camsys/onebusaway-application-modules-sub000/model"
)

const (
	DefaultMaxDeviation = 60 * time.Minute
	DefaultStaleAfter   = 15 * time.Minute
)

type Config struct {
	// Agencies the feed reports on. Feed trip ids are qualified
	// with these, in order. All graph agencies when empty.
	Agencies []string

	// Records deviating more than this from the schedule are
	// dropped.
	MaxDeviation time.Duration

	// Max distance in meters between a reported position and the
	// scheduled one. Zero disables the check.
	LocationTolerance float64

	// Vehicles not seen for this long are forgotten.
	StaleAfter time.Duration
}

// Phase of a vehicle along its block.
type Phase int

const (
	PhaseInProgress Phase = iota
	PhaseLayoverBefore
	PhaseLayoverDuring
	PhaseDeadheadAfter
)

func (p Phase) String() string {
	switch p {
	case PhaseInProgress:
		return "IN_PROGRESS"
	case PhaseLayoverBefore:
		return "LAYOVER_BEFORE"
	case PhaseLayoverDuring:
		return "LAYOVER_DURING"
	case PhaseDeadheadAfter:
		return "DEADHEAD_AFTER"
	}
	return "UNKNOWN"
}

// Why an entity didn't produce a record.
type Reason string

const (
	ReasonNoTrip        Reason = "no_trip"
	ReasonUnmatchedTrip Reason = "unmatched_trip"
	ReasonNoServiceDate Reason = "no_service_date"
	ReasonDeviation     Reason = "deviation"
	ReasonLocation      Reason = "location"
	ReasonOutOfOrder    Reason = "out_of_order"
	ReasonError         Reason = "error"
)

// A matched vehicle.
type Record struct {
	VehicleID   string
	TripID      model.ID
	BlockID     model.ID
	ServiceDate time.Time
	Timestamp   time.Time

	// Actual minus scheduled. Only meaningful if HasDeviation.
	Deviation    time.Duration
	HasDeviation bool

	Phase Phase

	HasPosition bool
	Lat         float64
	Lon         float64

	// Trip was synthesized from an added trip.
	Dynamic bool
}

// Outcome of one matching cycle.
type Result struct {
	CycleID string

	// When the cycle ran, and the feed's own timestamp.
	ProcessedAt time.Time
	LastUpdate  time.Time

	// Entities considered.
	Total int

	Records          []*Record
	UnmatchedTripIDs []string
	Dropped          map[Reason]int

	// Vehicles tracked after the stale sweep.
	ActiveVehicles int

	// Set when the schedule wasn't ready and nothing was done.
	Skipped bool
}

type Schedule interface {
	Trip(id model.ID) (*model.TripEntry, bool)
	Agency(id string) (*model.AgencyEntry, bool)
	Agencies() []*model.AgencyEntry
	Ready() bool
}

type DateResolver interface {
	Resolve(trip *model.TripEntry, t time.Time) (*model.BlockInstance, bool)
}

type TripMatcher interface {
	Match(id model.ID, t time.Time) (*model.TripEntry, bool)
}

type Synthesizer interface {
	Synthesize(added dynamic.AddedTrip) *model.BlockInstance
}

// Projector gives the position a block instance is scheduled to be at,
// at time t.
type Projector interface {
	Project(instance *model.BlockInstance, t time.Time) (lat, lon float64, ok bool)
}
