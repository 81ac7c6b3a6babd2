package graph

import (
	"sort"
	"time"

	"github.com/camsys/onebusaway-application-modules-sub000/blockindex"
	"github.com/camsys/onebusaway-application-modules-sub000/model"
)

// View is a read-only window onto the graph, valid only while the
// graph's read lock is held (see Graph.Read).
type View struct {
	s *state
}

func (v *View) Agency(id string) (*model.AgencyEntry, bool) {
	a, ok := v.s.agencies[id]
	return a, ok
}

func (v *View) Agencies() []*model.AgencyEntry {
	out := make([]*model.AgencyEntry, 0, len(v.s.agencies))
	for _, a := range v.s.agencies {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v *View) Stop(id model.ID) (*model.StopEntry, bool) {
	s, ok := v.s.stops[id]
	return s, ok
}

// All stops, ordered by index.
func (v *View) Stops() []*model.StopEntry {
	return append([]*model.StopEntry{}, v.s.stopList...)
}

// Stops whose position falls inside the bounding box, ordered by
// index.
func (v *View) StopsByLocation(minLat, minLon, maxLat, maxLon float64) []*model.StopEntry {
	out := []*model.StopEntry{}
	v.s.tree.Search(
		[2]float64{minLat, minLon},
		[2]float64{maxLat, maxLon},
		func(_, _ [2]float64, id model.ID) bool {
			if stop, ok := v.s.stops[id]; ok {
				out = append(out, stop)
			}
			return true
		},
	)
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func (v *View) Trip(id model.ID) (*model.TripEntry, bool) {
	t, ok := v.s.trips[id]
	return t, ok
}

func (v *View) Trips() []*model.TripEntry {
	out := make([]*model.TripEntry, 0, len(v.s.trips))
	for _, t := range v.s.trips {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return model.CompareIDs(out[i].ID, out[j].ID) < 0 })
	return out
}

func (v *View) Route(id model.ID) (*model.RouteEntry, bool) {
	r, ok := v.s.routes[id]
	return r, ok
}

func (v *View) Routes() []*model.RouteEntry {
	out := make([]*model.RouteEntry, 0, len(v.s.routes))
	for _, r := range v.s.routes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return model.CompareIDs(out[i].ID, out[j].ID) < 0 })
	return out
}

func (v *View) RouteCollection(id model.ID) (*model.RouteCollectionEntry, bool) {
	rc, ok := v.s.collections[id]
	return rc, ok
}

func (v *View) Block(id model.ID) (*model.BlockEntry, bool) {
	b, ok := v.s.blocks[id]
	return b, ok
}

func (v *View) Blocks() []*model.BlockEntry {
	out := make([]*model.BlockEntry, 0, len(v.s.blocks))
	for _, b := range v.s.blocks {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return model.CompareIDs(out[i].ID, out[j].ID) < 0 })
	return out
}

func (v *View) Shape(id model.ID) (*model.ShapePoints, bool) {
	s, ok := v.s.shapes[id]
	return s, ok
}

func (v *View) IndicesForBlock(id model.ID) blockindex.Indices {
	return v.s.index.ForBlock(id)
}

func (v *View) IndicesForRouteCollection(id model.ID) blockindex.Indices {
	return v.s.index.ForRouteCollection(id)
}

func (v *View) IndicesForAgency(agency string) blockindex.Indices {
	return v.s.index.ForAgency(agency)
}

func (v *View) IndicesForStop(id model.ID) []*blockindex.StopTimeIndex {
	return v.s.index.ForStop(id)
}

// Configurations of the trip's block that include the trip.
func (v *View) ConfigurationsForTrip(trip *model.TripEntry) []*model.BlockConfigurationEntry {
	block, ok := v.s.blocks[trip.BlockID]
	if !ok {
		return nil
	}
	var out []*model.BlockConfigurationEntry
	for _, config := range block.Configurations {
		if config.TripIndex(trip.ID) >= 0 {
			out = append(out, config)
		}
	}
	return out
}

// Binds a configuration to a service date.
func (v *View) BlockInstance(config *model.BlockConfigurationEntry, serviceDate time.Time) *model.BlockInstance {
	instance := &model.BlockInstance{
		Block:       config,
		ServiceDate: serviceDate,
		Trips:       make([]*model.TripEntry, 0, len(config.Trips)),
	}
	for _, bt := range config.Trips {
		if trip, ok := v.s.trips[bt.TripID]; ok {
			instance.Trips = append(instance.Trips, trip)
		}
	}
	return instance
}
