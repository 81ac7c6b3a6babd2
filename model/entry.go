package model

import (
	"sort"
	"strings"
	"time"
)

// Graph entities. These reference each other by ID only, and are
// treated as immutable once handed out by the graph: mutations build
// replacements.

type AgencyEntry struct {
	ID       string
	Name     string
	URL      string
	Timezone string
}

type StopEntry struct {
	ID                 ID
	Code               string
	Name               string
	Lat                float64
	Lon                float64
	LocationType       LocationType
	Parent             ID
	WheelchairBoarding WheelchairBoarding

	// Position in the graph's stop list, assigned when the graph
	// is built. Used to correlate with the spatial index.
	Index int
}

type RouteEntry struct {
	ID           ID
	ShortName    string
	LongName     string
	Type         RouteType
	CollectionID ID
}

// Routes treated as one rider-facing route.
type RouteCollectionEntry struct {
	ID     ID
	Routes []ID
}

// A service id and the timezone its calendar is interpreted in.
type LocalizedServiceID struct {
	ServiceID ID
	Timezone  string
}

func (l LocalizedServiceID) String() string {
	return l.ServiceID.String() + "@" + l.Timezone
}

// The set of service ids that must be active (and inactive) together
// for a block configuration to run.
type ServiceIDActivation struct {
	Active   []LocalizedServiceID
	Inactive []LocalizedServiceID
}

func NewServiceIDActivation(active ...LocalizedServiceID) ServiceIDActivation {
	a := ServiceIDActivation{Active: append([]LocalizedServiceID{}, active...)}
	sortServiceIDs(a.Active)
	return a
}

// Stable key, independent of the order ids were added in.
func (a ServiceIDActivation) Key() string {
	active := make([]string, 0, len(a.Active))
	for _, s := range a.Active {
		active = append(active, s.String())
	}
	sort.Strings(active)

	inactive := make([]string, 0, len(a.Inactive))
	for _, s := range a.Inactive {
		inactive = append(inactive, s.String())
	}
	sort.Strings(inactive)

	return strings.Join(active, ",") + "|" + strings.Join(inactive, ",")
}

func sortServiceIDs(ids []LocalizedServiceID) {
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].String() < ids[j].String()
	})
}

type StopTimeEntry struct {
	TripID    ID
	StopID    ID
	Arrival   int
	Departure int

	// Cumulative distance along the trip in meters. NoShapeDist
	// when not provided.
	ShapeDistTraveled float64

	// GTFS stop_sequence. Kept for round-tripping only: position
	// in Trip.StopTimes is the ordering.
	Sequence int
}

func (st StopTimeEntry) HasShapeDist() bool {
	return st.ShapeDistTraveled >= 0
}

type FrequencyEntry struct {
	Start      int
	End        int
	Headway    int
	ExactTimes bool
}

type TripEntry struct {
	ID          ID
	RouteID     ID
	BlockID     ID
	ShapeID     ID
	DirectionID string
	ServiceID   LocalizedServiceID
	Headsign    string
	StopTimes   []StopTimeEntry
	Frequencies []FrequencyEntry

	// Total length of the trip in meters.
	TotalDistance float64
}

func (t *TripEntry) FirstDeparture() int {
	if len(t.StopTimes) == 0 {
		return 0
	}
	return t.StopTimes[0].Departure
}

func (t *TripEntry) LastArrival() int {
	if len(t.StopTimes) == 0 {
		return 0
	}
	return t.StopTimes[len(t.StopTimes)-1].Arrival
}

// Copy with its own stop time and frequency slices.
func (t *TripEntry) Clone() *TripEntry {
	c := *t
	c.StopTimes = append([]StopTimeEntry(nil), t.StopTimes...)
	c.Frequencies = append([]FrequencyEntry(nil), t.Frequencies...)
	return &c
}

type BlockTripEntry struct {
	TripID         ID
	RouteID        ID
	Sequence       int
	FirstDeparture int
	LastArrival    int

	// Distance from the start of the block to the first stop of
	// this trip, including gaps between trips.
	DistanceAlongBlock float64

	// Great-circle distance between the previous trip's last stop
	// and this trip's first stop.
	GapDistance float64

	TripDistance float64
}

type BlockConfigurationEntry struct {
	BlockID            ID
	ServiceIDs         ServiceIDActivation
	Trips              []BlockTripEntry
	TotalBlockDistance float64
	Frequency          bool
}

func (c *BlockConfigurationEntry) TripIndex(tripID ID) int {
	for i, bt := range c.Trips {
		if bt.TripID == tripID {
			return i
		}
	}
	return -1
}

type BlockEntry struct {
	ID             ID
	Configurations []*BlockConfigurationEntry
}

// A block configuration bound to a concrete service date.
type BlockInstance struct {
	Block       *BlockConfigurationEntry
	ServiceDate time.Time

	// Trips of the configuration, in block order. Synthesized
	// instances carry trips that don't exist in the graph.
	Trips   []*TripEntry
	Dynamic bool
}

func (b *BlockInstance) Trip(id ID) *TripEntry {
	for _, t := range b.Trips {
		if t.ID == id {
			return t
		}
	}
	return nil
}

type ShapePoints struct {
	ShapeID   ID
	Lats      []float64
	Lons      []float64
	Distances []float64
}

func (s *ShapePoints) Len() int {
	return len(s.Lats)
}
