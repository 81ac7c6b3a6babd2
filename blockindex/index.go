package blockindex

import (
	"github.com/camsys/onebusaway-application-modules-sub000/model"
)

// Read access to the schedule the indices are derived from.
type Source interface {
	Blocks() []*model.BlockEntry
	Block(id model.ID) (*model.BlockEntry, bool)
	Trip(id model.ID) (*model.TripEntry, bool)
	Route(id model.ID) (*model.RouteEntry, bool)
}

// One non-frequency block configuration.
type TripIndex struct {
	BlockID          model.ID
	Agency           string
	ServiceIDs       model.ServiceIDActivation
	Trips            []model.ID
	RouteCollections []model.ID
	Start            int
	End              int
	Distance         float64
}

// A gap between two consecutive trips of a configuration, spent at
// the last stop of the earlier trip.
type Layover struct {
	StopID   model.ID
	FromTrip model.ID
	ToTrip   model.ID
	Start    int
	End      int
}

type LayoverIndex struct {
	BlockID    model.ID
	Agency     string
	ServiceIDs model.ServiceIDActivation
	Layovers   []Layover
}

// A frequency-based (headway) block configuration.
type FrequencyIndex struct {
	BlockID          model.ID
	Agency           string
	ServiceIDs       model.ServiceIDActivation
	Trips            []model.ID
	RouteCollections []model.ID
	Frequencies      []model.FrequencyEntry
}

// One block configuration's run through a stop pattern.
type BlockSequence struct {
	BlockID    model.ID
	ServiceIDs model.ServiceIDActivation
	Trips      []model.ID
	Start      int
	End        int
}

// Block configurations, across blocks, that visit the same stops in
// the same order.
type SequenceIndex struct {
	Key       string
	Stops     []model.ID
	Sequences []BlockSequence
}

type StopTimeRef struct {
	BlockID   model.ID
	TripID    model.ID
	Arrival   int
	Departure int
	Position  int
}

// Stop times at one stop for one service activation, sorted by
// departure.
type StopTimeIndex struct {
	StopID     model.ID
	ServiceIDs model.ServiceIDActivation
	Entries    []StopTimeRef
}

// Index families keyed by one agency, route collection or block.
// Slices are never nil.
type Indices struct {
	Trips       []*TripIndex
	Layovers    []*LayoverIndex
	Frequencies []*FrequencyIndex
	Sequences   []*SequenceIndex
}

func (i Indices) Empty() bool {
	return len(i.Trips) == 0 && len(i.Layovers) == 0 && len(i.Frequencies) == 0 && len(i.Sequences) == 0
}

// True if any trip or frequency index lists the trip.
func (i Indices) HasTrip(id model.ID) bool {
	for _, ti := range i.Trips {
		for _, t := range ti.Trips {
			if t == id {
				return true
			}
		}
	}
	for _, fi := range i.Frequencies {
		for _, t := range fi.Trips {
			if t == id {
				return true
			}
		}
	}
	return false
}

// Empty indices with non-nil slices.
func NoIndices() Indices {
	return Indices{
		Trips:       []*TripIndex{},
		Layovers:    []*LayoverIndex{},
		Frequencies: []*FrequencyIndex{},
		Sequences:   []*SequenceIndex{},
	}
}
