package blockindex

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/camsys/onebusaway-application-modules-sub000/model"
)

// Engine holds the derived block indices for a schedule. It is not
// safe for concurrent use on its own: the owning graph serializes
// writes and guards reads with its lock. Index values handed out are
// never modified afterwards.
type Engine struct {
	logger *slog.Logger

	blocks       map[model.ID]*contribution
	excluded     map[model.ID]error
	byAgency     map[string]*bucket
	byCollection map[model.ID]*bucket
	sequences    map[string]*SequenceIndex
	stops        map[model.ID]map[string]*StopTimeIndex
}

type bucket struct {
	trips       []*TripIndex
	layovers    []*LayoverIndex
	frequencies []*FrequencyIndex
	sequences   map[string]int
}

func newBucket() *bucket {
	return &bucket{sequences: map[string]int{}}
}

func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{logger: logger.With("component", "blockindex")}
	e.reset()
	return e
}

// Derives all indices for src in one pass over its blocks.
func Build(src Source, logger *slog.Logger) *Engine {
	e := New(logger)
	e.RebuildAll(src)
	return e
}

func (e *Engine) reset() {
	e.blocks = map[model.ID]*contribution{}
	e.excluded = map[model.ID]error{}
	e.byAgency = map[string]*bucket{}
	e.byCollection = map[model.ID]*bucket{}
	e.sequences = map[string]*SequenceIndex{}
	e.stops = map[model.ID]map[string]*StopTimeIndex{}
}

func (e *Engine) RebuildAll(src Source) {
	e.reset()
	for _, block := range src.Blocks() {
		e.index(src, block)
	}
	e.logger.Debug("rebuilt block indices", "blocks", len(e.blocks), "excluded", len(e.excluded))
}

// Re-derives the block of trip and every block sharing a stop with
// it. Pass the trip as it was before a mutation as well as after if
// its stops changed.
func (e *Engine) UpdateForTrip(src Source, trips ...*model.TripEntry) {
	touched := []model.ID{}
	for _, trip := range trips {
		if trip == nil {
			continue
		}
		touched = append(touched, trip.BlockID)
		for _, st := range trip.StopTimes {
			for _, idx := range e.stops[st.StopID] {
				for _, ref := range idx.Entries {
					touched = append(touched, ref.BlockID)
				}
			}
		}
	}
	e.UpdateForBlocks(src, touched...)
}

// Replaces the contributions of the given blocks. Blocks no longer in
// src are dropped.
func (e *Engine) UpdateForBlocks(src Source, blockIDs ...model.ID) {
	seen := map[model.ID]bool{}
	for _, id := range blockIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		if old, ok := e.blocks[id]; ok {
			e.remove(old)
		}
		delete(e.excluded, id)

		block, ok := src.Block(id)
		if !ok {
			continue
		}
		e.index(src, block)
	}
}

func (e *Engine) index(src Source, block *model.BlockEntry) {
	c, err := safeDerive(src, block)
	if err != nil {
		id := model.ID{}
		if block != nil {
			id = block.ID
		}
		e.excluded[id] = err
		e.logger.Warn("excluding block from indices", "block", id.String(), "error", err)
		return
	}
	e.add(c)
}

func safeDerive(src Source, block *model.BlockEntry) (c *contribution, err error) {
	defer func() {
		if r := recover(); r != nil {
			c = nil
			err = fmt.Errorf("deriving indices: %v", r)
		}
	}()
	return derive(src, block)
}

func (e *Engine) add(c *contribution) {
	e.blocks[c.blockID] = c

	agency := e.byAgency[c.agency]
	if agency == nil {
		agency = newBucket()
		e.byAgency[c.agency] = agency
	}

	for i := range c.configs {
		cc := &c.configs[i]

		buckets := []*bucket{agency}
		for _, rc := range cc.routeCollections {
			b := e.byCollection[rc]
			if b == nil {
				b = newBucket()
				e.byCollection[rc] = b
			}
			buckets = append(buckets, b)
		}

		for _, b := range buckets {
			if cc.trip != nil {
				b.trips = append(b.trips, cc.trip)
			}
			if cc.frequency != nil {
				b.frequencies = append(b.frequencies, cc.frequency)
			}
			if cc.layover != nil {
				b.layovers = append(b.layovers, cc.layover)
			}
			b.sequences[cc.sequenceKey]++
		}

		prev := e.sequences[cc.sequenceKey]
		next := &SequenceIndex{Key: cc.sequenceKey, Stops: cc.sequenceStops}
		if prev != nil {
			next.Sequences = append(next.Sequences, prev.Sequences...)
		}
		next.Sequences = append(next.Sequences, cc.sequence)
		e.sequences[cc.sequenceKey] = next
	}

	for key, refs := range c.stopTimes {
		byActivation := e.stops[key.stop]
		if byActivation == nil {
			byActivation = map[string]*StopTimeIndex{}
			e.stops[key.stop] = byActivation
		}

		next := &StopTimeIndex{StopID: key.stop, ServiceIDs: c.activations[key.activation]}
		if prev := byActivation[key.activation]; prev != nil {
			next.Entries = append(next.Entries, prev.Entries...)
		}
		next.Entries = append(next.Entries, refs...)
		sortStopTimeRefs(next.Entries)
		byActivation[key.activation] = next
	}
}

func (e *Engine) remove(c *contribution) {
	delete(e.blocks, c.blockID)

	agency := e.byAgency[c.agency]

	for i := range c.configs {
		cc := &c.configs[i]

		buckets := []*bucket{}
		if agency != nil {
			buckets = append(buckets, agency)
		}
		for _, rc := range cc.routeCollections {
			if b := e.byCollection[rc]; b != nil {
				buckets = append(buckets, b)
			}
		}

		for _, b := range buckets {
			b.trips = without(b.trips, cc.trip)
			b.frequencies = without(b.frequencies, cc.frequency)
			b.layovers = without(b.layovers, cc.layover)
			b.sequences[cc.sequenceKey]--
			if b.sequences[cc.sequenceKey] <= 0 {
				delete(b.sequences, cc.sequenceKey)
			}
		}

		if prev := e.sequences[cc.sequenceKey]; prev != nil {
			next := &SequenceIndex{Key: prev.Key, Stops: prev.Stops}
			for _, s := range prev.Sequences {
				if s.BlockID != c.blockID {
					next.Sequences = append(next.Sequences, s)
				}
			}
			if len(next.Sequences) == 0 {
				delete(e.sequences, cc.sequenceKey)
			} else {
				e.sequences[cc.sequenceKey] = next
			}
		}
	}

	for _, rc := range c.routeCollections() {
		if b := e.byCollection[rc]; b != nil && b.empty() {
			delete(e.byCollection, rc)
		}
	}
	if agency != nil && agency.empty() {
		delete(e.byAgency, c.agency)
	}

	for key := range c.stopTimes {
		byActivation := e.stops[key.stop]
		prev := byActivation[key.activation]
		if prev == nil {
			continue
		}
		next := &StopTimeIndex{StopID: prev.StopID, ServiceIDs: prev.ServiceIDs}
		for _, ref := range prev.Entries {
			if ref.BlockID != c.blockID {
				next.Entries = append(next.Entries, ref)
			}
		}
		if len(next.Entries) == 0 {
			delete(byActivation, key.activation)
			if len(byActivation) == 0 {
				delete(e.stops, key.stop)
			}
		} else {
			byActivation[key.activation] = next
		}
	}
}

func (c *contribution) routeCollections() []model.ID {
	var ids []model.ID
	for _, cc := range c.configs {
		ids = append(ids, cc.routeCollections...)
	}
	return ids
}

func (b *bucket) empty() bool {
	return len(b.trips) == 0 && len(b.frequencies) == 0 && len(b.layovers) == 0 && len(b.sequences) == 0
}

// Copy of s without x. Never modifies s in place.
func without[T comparable](s []T, x T) []T {
	var zero T
	if x == zero {
		return s
	}
	out := make([]T, 0, len(s))
	for _, v := range s {
		if v != x {
			out = append(out, v)
		}
	}
	return out
}

func sortStopTimeRefs(refs []StopTimeRef) {
	sort.SliceStable(refs, func(i, j int) bool {
		a, b := refs[i], refs[j]
		if a.Departure != b.Departure {
			return a.Departure < b.Departure
		}
		if a.Arrival != b.Arrival {
			return a.Arrival < b.Arrival
		}
		if c := model.CompareIDs(a.TripID, b.TripID); c != 0 {
			return c < 0
		}
		return a.Position < b.Position
	})
}
