package graph

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/tidwall/rtree"

	"github.com/camsys/onebusaway-application-modules-sub000/blockindex"
	"github.com/camsys/onebusaway-application-modules-sub000/model"
)

var (
	ErrInvalidTrip  = errors.New("invalid trip")
	ErrInvalidStop  = errors.New("invalid stop")
	ErrInvalidShape = errors.New("invalid shape")
	ErrDuplicate    = errors.New("duplicate id")
	ErrNotFound     = errors.New("not found")
	ErrUnknownStop  = errors.New("unknown stop")
	ErrUnknownTrip  = errors.New("unknown trip")
	ErrStopInUse    = errors.New("stop referenced by stop times")
)

// Graph is the in-memory static schedule. A single lock guards the
// entities together with their derived block indices, so readers
// never see one without the other.
//
// Entities handed out by the graph must not be modified. Mutations
// replace them.
type Graph struct {
	mutex  sync.RWMutex
	state  *state
	logger *slog.Logger

	// Unscoped, for the block index.
	base *slog.Logger
}

type state struct {
	agencies    map[string]*model.AgencyEntry
	stops       map[model.ID]*model.StopEntry
	stopList    []*model.StopEntry
	routes      map[model.ID]*model.RouteEntry
	collections map[model.ID]*model.RouteCollectionEntry
	trips       map[model.ID]*model.TripEntry
	blocks      map[model.ID]*model.BlockEntry
	blockTrips  map[model.ID]map[model.ID]bool
	stopRefs    map[model.ID]int
	shapes      map[model.ID]*model.ShapePoints
	tree        *rtree.RTreeG[model.ID]
	index       *blockindex.Engine
}

func newState(logger *slog.Logger) *state {
	return &state{
		agencies:    map[string]*model.AgencyEntry{},
		stops:       map[model.ID]*model.StopEntry{},
		routes:      map[model.ID]*model.RouteEntry{},
		collections: map[model.ID]*model.RouteCollectionEntry{},
		trips:       map[model.ID]*model.TripEntry{},
		blocks:      map[model.ID]*model.BlockEntry{},
		blockTrips:  map[model.ID]map[model.ID]bool{},
		stopRefs:    map[model.ID]int{},
		shapes:      map[model.ID]*model.ShapePoints{},
		tree:        &rtree.RTreeG[model.ID]{},
		index:       blockindex.New(logger),
	}
}

// Returns an empty graph.
func New(logger *slog.Logger) *Graph {
	if logger == nil {
		logger = slog.Default()
	}
	return &Graph{
		state:  newState(logger),
		logger: logger.With("component", "graph"),
		base:   logger,
	}
}

// Runs fn with a consistent, read-only view of the graph. The view
// must not be used after fn returns.
func (g *Graph) Read(fn func(v *View)) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	fn(&View{s: g.state})
}

// Replaces the whole contents of g with those of next. Readers see
// either the old graph or the new one. next must not be used
// afterwards.
//
// Each fn in along runs before readers are let back in, so state that
// Read callbacks consult together with the graph can be replaced in
// the same step.
func (g *Graph) Swap(next *Graph, along ...func()) {
	next.mutex.Lock()
	s := next.state
	next.state = newState(next.base)
	next.mutex.Unlock()

	g.mutex.Lock()
	g.state = s
	for _, fn := range along {
		fn()
	}
	g.mutex.Unlock()

	g.logger.Info("swapped graph", "trips", len(s.trips), "stops", len(s.stops), "blocks", len(s.blocks))
}

// Re-derives every block index from scratch.
func (g *Graph) RebuildIndices() {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	next := blockindex.New(g.base)
	next.RebuildAll(&View{s: g.state})
	g.state.index = next
}

func (g *Graph) Agency(id string) (*model.AgencyEntry, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.view().Agency(id)
}

func (g *Graph) Agencies() []*model.AgencyEntry {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.view().Agencies()
}

func (g *Graph) Stop(id model.ID) (*model.StopEntry, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.view().Stop(id)
}

func (g *Graph) Stops() []*model.StopEntry {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.view().Stops()
}

func (g *Graph) StopsByLocation(minLat, minLon, maxLat, maxLon float64) []*model.StopEntry {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.view().StopsByLocation(minLat, minLon, maxLat, maxLon)
}

func (g *Graph) Trip(id model.ID) (*model.TripEntry, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.view().Trip(id)
}

func (g *Graph) Trips() []*model.TripEntry {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.view().Trips()
}

func (g *Graph) Route(id model.ID) (*model.RouteEntry, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.view().Route(id)
}

func (g *Graph) Routes() []*model.RouteEntry {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.view().Routes()
}

func (g *Graph) RouteCollection(id model.ID) (*model.RouteCollectionEntry, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.view().RouteCollection(id)
}

func (g *Graph) Block(id model.ID) (*model.BlockEntry, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.view().Block(id)
}

func (g *Graph) Blocks() []*model.BlockEntry {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.view().Blocks()
}

func (g *Graph) Shape(id model.ID) (*model.ShapePoints, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.view().Shape(id)
}

func (g *Graph) IndicesForBlock(id model.ID) blockindex.Indices {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.view().IndicesForBlock(id)
}

func (g *Graph) IndicesForRouteCollection(id model.ID) blockindex.Indices {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.view().IndicesForRouteCollection(id)
}

func (g *Graph) IndicesForAgency(agency string) blockindex.Indices {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.view().IndicesForAgency(agency)
}

func (g *Graph) IndicesForStop(id model.ID) []*blockindex.StopTimeIndex {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.view().IndicesForStop(id)
}

// True once at least one route has been loaded.
func (g *Graph) Ready() bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.state.routes) > 0
}

func (g *Graph) view() *View {
	return &View{s: g.state}
}
