package blockindex

import (
	"sort"

	"github.com/camsys/onebusaway-application-modules-sub000/model"
)

func (e *Engine) ForBlock(id model.ID) Indices {
	out := NoIndices()
	c, ok := e.blocks[id]
	if !ok {
		return out
	}

	keys := map[string]int{}
	for _, cc := range c.configs {
		if cc.trip != nil {
			out.Trips = append(out.Trips, cc.trip)
		}
		if cc.frequency != nil {
			out.Frequencies = append(out.Frequencies, cc.frequency)
		}
		if cc.layover != nil {
			out.Layovers = append(out.Layovers, cc.layover)
		}
		keys[cc.sequenceKey]++
	}
	out.Sequences = e.resolveSequences(keys)
	return out
}

func (e *Engine) ForRouteCollection(id model.ID) Indices {
	return e.fromBucket(e.byCollection[id])
}

func (e *Engine) ForAgency(agency string) Indices {
	return e.fromBucket(e.byAgency[agency])
}

// Stop time indices for a stop, one per service activation. Never
// nil.
func (e *Engine) ForStop(id model.ID) []*StopTimeIndex {
	byActivation := e.stops[id]
	out := make([]*StopTimeIndex, 0, len(byActivation))
	for _, idx := range byActivation {
		out = append(out, idx)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ServiceIDs.Key() < out[j].ServiceIDs.Key()
	})
	return out
}

// Ids of all blocks with indices.
func (e *Engine) Blocks() []model.ID {
	ids := make([]model.ID, 0, len(e.blocks))
	for id := range e.blocks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return model.CompareIDs(ids[i], ids[j]) < 0 })
	return ids
}

// Why a block was left out of the indices, or nil if it wasn't.
func (e *Engine) Excluded(id model.ID) error {
	return e.excluded[id]
}

func (e *Engine) ExcludedCount() int {
	return len(e.excluded)
}

func (e *Engine) fromBucket(b *bucket) Indices {
	out := NoIndices()
	if b == nil {
		return out
	}
	out.Trips = append(out.Trips, b.trips...)
	out.Frequencies = append(out.Frequencies, b.frequencies...)
	out.Layovers = append(out.Layovers, b.layovers...)
	out.Sequences = e.resolveSequences(b.sequences)

	sort.SliceStable(out.Trips, func(i, j int) bool {
		return lessBlock(out.Trips[i].BlockID, out.Trips[i].Start, out.Trips[j].BlockID, out.Trips[j].Start)
	})
	sort.SliceStable(out.Frequencies, func(i, j int) bool {
		return model.CompareIDs(out.Frequencies[i].BlockID, out.Frequencies[j].BlockID) < 0
	})
	sort.SliceStable(out.Layovers, func(i, j int) bool {
		return model.CompareIDs(out.Layovers[i].BlockID, out.Layovers[j].BlockID) < 0
	})
	return out
}

func (e *Engine) resolveSequences(keys map[string]int) []*SequenceIndex {
	out := []*SequenceIndex{}
	for key := range keys {
		if s, ok := e.sequences[key]; ok {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func lessBlock(a model.ID, aStart int, b model.ID, bStart int) bool {
	if c := model.CompareIDs(a, b); c != 0 {
		return c < 0
	}
	return aStart < bStart
}
