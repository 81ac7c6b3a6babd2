package dynamic

import (
	"sort"
	"sync"
	"time"

	"github.com/camsys/onebusaway-application-modules-sub000/blockindex"
	"github.com/camsys/onebusaway-application-modules-sub000/cache"
	"github.com/camsys/onebusaway-application-modules-sub000/model"
)

const DefaultBlockTTL = 30 * time.Minute

// Index holds synthesized block instances for a limited time, along
// with block indices derived for each of them. Entries expire when
// their block hasn't been registered or touched within the TTL.
type Index struct {
	instances *cache.TTL[model.ID, *model.BlockInstance]

	mutex   sync.RWMutex
	engines map[model.ID]*blockindex.Engine
}

func NewIndex(ttl time.Duration) *Index {
	if ttl <= 0 {
		ttl = DefaultBlockTTL
	}
	return &Index{
		instances: cache.NewTTL[model.ID, *model.BlockInstance](ttl),
		engines:   map[model.ID]*blockindex.Engine{},
	}
}

// Adds or replaces a synthesized block instance.
func (x *Index) Register(instance *model.BlockInstance, route *model.RouteEntry) {
	id := instance.Block.BlockID
	engine := blockindex.Build(newInstanceSource(instance, route), nil)

	x.instances.Put(id, instance)

	x.mutex.Lock()
	x.engines[id] = engine
	x.mutex.Unlock()
}

// The live instance for a block, if any.
func (x *Index) Instance(blockID model.ID) (*model.BlockInstance, bool) {
	instance, ok := x.instances.Get(blockID)
	if !ok {
		x.mutex.Lock()
		delete(x.engines, blockID)
		x.mutex.Unlock()
	}
	return instance, ok
}

// Extends the lifetime of a live block.
func (x *Index) Touch(blockID model.ID) bool {
	return x.instances.Touch(blockID)
}

func (x *Index) ForBlock(blockID model.ID) blockindex.Indices {
	if _, ok := x.Instance(blockID); !ok {
		return blockindex.NoIndices()
	}

	x.mutex.RLock()
	defer x.mutex.RUnlock()
	return x.engines[blockID].ForBlock(blockID)
}

func (x *Index) ForRouteCollection(id model.ID) blockindex.Indices {
	out := blockindex.NoIndices()
	for _, engine := range x.live() {
		indices := engine.ForRouteCollection(id)
		out.Trips = append(out.Trips, indices.Trips...)
		out.Layovers = append(out.Layovers, indices.Layovers...)
		out.Frequencies = append(out.Frequencies, indices.Frequencies...)
		out.Sequences = append(out.Sequences, indices.Sequences...)
	}
	return out
}

func (x *Index) ForStop(stopID model.ID) []*blockindex.StopTimeIndex {
	out := []*blockindex.StopTimeIndex{}
	for _, engine := range x.live() {
		out = append(out, engine.ForStop(stopID)...)
	}
	return out
}

// Drops expired blocks and returns how many were removed.
func (x *Index) Sweep() int {
	removed := x.instances.Sweep()

	x.mutex.Lock()
	defer x.mutex.Unlock()
	for _, id := range removed {
		delete(x.engines, id)
	}
	return len(removed)
}

func (x *Index) Len() int {
	x.mutex.RLock()
	defer x.mutex.RUnlock()
	return len(x.engines)
}

// Engines of unexpired blocks, ordered by block id.
func (x *Index) live() []*blockindex.Engine {
	x.Sweep()

	x.mutex.RLock()
	defer x.mutex.RUnlock()

	ids := make([]model.ID, 0, len(x.engines))
	for id := range x.engines {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return model.CompareIDs(ids[i], ids[j]) < 0 })

	out := make([]*blockindex.Engine, 0, len(ids))
	for _, id := range ids {
		out = append(out, x.engines[id])
	}
	return out
}

// A single synthesized block, as seen by the index builder.
type instanceSource struct {
	block  *model.BlockEntry
	trips  map[model.ID]*model.TripEntry
	routes map[model.ID]*model.RouteEntry
}

func newInstanceSource(instance *model.BlockInstance, route *model.RouteEntry) *instanceSource {
	src := &instanceSource{
		block: &model.BlockEntry{
			ID:             instance.Block.BlockID,
			Configurations: []*model.BlockConfigurationEntry{instance.Block},
		},
		trips:  map[model.ID]*model.TripEntry{},
		routes: map[model.ID]*model.RouteEntry{},
	}
	for _, trip := range instance.Trips {
		src.trips[trip.ID] = trip
	}
	if route != nil {
		src.routes[route.ID] = route
	}
	return src
}

func (s *instanceSource) Blocks() []*model.BlockEntry {
	return []*model.BlockEntry{s.block}
}

func (s *instanceSource) Block(id model.ID) (*model.BlockEntry, bool) {
	if id == s.block.ID {
		return s.block, true
	}
	return nil, false
}

func (s *instanceSource) Trip(id model.ID) (*model.TripEntry, bool) {
	t, ok := s.trips[id]
	return t, ok
}

func (s *instanceSource) Route(id model.ID) (*model.RouteEntry, bool) {
	r, ok := s.routes[id]
	return r, ok
}
