package graph

import (
	"fmt"

	"github.com/tidwall/rtree"

	"github.com/camsys/onebusaway-application-modules-sub000/model"
)

func (g *Graph) AddAgency(agency *model.AgencyEntry) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.state.addAgency(agency)
}

func (g *Graph) AddStop(stop *model.StopEntry) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if err := g.state.addStop(stop); err != nil {
		return err
	}
	g.state.rebuildTree()
	return nil
}

// Removes a stop. Stops still referenced by a stop time are refused.
func (g *Graph) RemoveStop(id model.ID) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	s := g.state
	if _, ok := s.stops[id]; !ok {
		return fmt.Errorf("%w: stop %s", ErrNotFound, id)
	}
	if s.stopRefs[id] > 0 {
		return fmt.Errorf("%w: %s", ErrStopInUse, id)
	}

	delete(s.stops, id)
	list := make([]*model.StopEntry, 0, len(s.stopList))
	for _, stop := range s.stopList {
		if stop.ID == id {
			continue
		}
		if stop.Index != len(list) {
			moved := *stop
			moved.Index = len(list)
			stop = &moved
			s.stops[stop.ID] = stop
		}
		list = append(list, stop)
	}
	s.stopList = list
	s.rebuildTree()
	return nil
}

// Corrects a stop's location, name or other attributes. The stop
// keeps its index. Distances of blocks serving the stop are
// re-derived.
func (g *Graph) UpdateStop(stop *model.StopEntry) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	s := g.state
	existing, ok := s.stops[stop.ID]
	if !ok {
		return fmt.Errorf("%w: stop %s", ErrNotFound, stop.ID)
	}

	updated := *stop
	updated.Index = existing.Index
	s.stops[stop.ID] = &updated
	s.stopList[updated.Index] = &updated
	s.rebuildTree()

	touched := map[model.ID]bool{}
	for _, idx := range s.index.ForStop(stop.ID) {
		for _, ref := range idx.Entries {
			touched[ref.TripID] = true
		}
	}
	blocks := []model.ID{}
	for tripID := range touched {
		trip, ok := s.trips[tripID]
		if !ok {
			continue
		}
		next := trip.Clone()
		next.TotalDistance = tripDistance(s, next)
		s.trips[tripID] = next
		blocks = append(blocks, trip.BlockID)
	}
	for _, blockID := range blocks {
		rebuildBlock(s, blockID)
	}
	s.index.UpdateForBlocks(&View{s: s}, blocks...)
	return nil
}

func (g *Graph) AddRoute(route *model.RouteEntry) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.state.addRoute(route)
}

// Adds a trip to the graph. The trip must name a route, a block and a
// service id, and have at least one stop time at a known stop. It is
// merged into its block, which is created if new, and its route and
// route collection are registered if missing. Only the indices of the
// affected blocks are re-derived.
func (g *Graph) AddTrip(trip *model.TripEntry) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	s := g.state
	added, err := s.addTrip(trip)
	if err != nil {
		g.logger.Debug("rejected trip", "trip", trip.ID.String(), "error", err)
		return err
	}

	rebuildBlock(s, added.BlockID)
	s.index.UpdateForTrip(&View{s: s}, added)
	return nil
}

// Removes a trip. Its block's configurations are rebuilt without it;
// configurations left empty are dropped, and so is the block if no
// configurations remain.
func (g *Graph) DeleteTrip(id model.ID) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	s := g.state
	trip, ok := s.trips[id]
	if !ok {
		return fmt.Errorf("%w: trip %s", ErrNotFound, id)
	}

	delete(s.trips, id)
	delete(s.blockTrips[trip.BlockID], id)
	s.releaseStops(trip)

	rebuildBlock(s, trip.BlockID)
	s.index.UpdateForTrip(&View{s: s}, trip)
	return nil
}

func (g *Graph) AddShape(shape *model.ShapePoints) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.state.addShape(shape)
}

func (g *Graph) RemoveShape(id model.ID) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, ok := g.state.shapes[id]; !ok {
		return fmt.Errorf("%w: shape %s", ErrNotFound, id)
	}
	delete(g.state.shapes, id)
	return nil
}

func (s *state) addAgency(agency *model.AgencyEntry) error {
	if agency.ID == "" {
		return fmt.Errorf("agency without id")
	}
	if _, ok := s.agencies[agency.ID]; ok {
		return fmt.Errorf("%w: agency %s", ErrDuplicate, agency.ID)
	}
	a := *agency
	s.agencies[a.ID] = &a
	return nil
}

// Adds a stop without touching the spatial tree.
func (s *state) addStop(stop *model.StopEntry) error {
	if stop.ID.IsZero() {
		return fmt.Errorf("%w: missing id", ErrInvalidStop)
	}
	if _, ok := s.stops[stop.ID]; ok {
		return fmt.Errorf("%w: stop %s", ErrDuplicate, stop.ID)
	}
	st := *stop
	st.Index = len(s.stopList)
	s.stops[st.ID] = &st
	s.stopList = append(s.stopList, &st)
	return nil
}

// The tree is never modified after being built; stop changes get a
// new one.
func (s *state) rebuildTree() {
	tree := &rtree.RTreeG[model.ID]{}
	for _, stop := range s.stopList {
		p := [2]float64{stop.Lat, stop.Lon}
		tree.Insert(p, p, stop.ID)
	}
	s.tree = tree
}

func (s *state) addRoute(route *model.RouteEntry) error {
	if route.ID.IsZero() {
		return fmt.Errorf("route without id")
	}
	if _, ok := s.routes[route.ID]; ok {
		return fmt.Errorf("%w: route %s", ErrDuplicate, route.ID)
	}
	r := *route
	if r.CollectionID.IsZero() {
		r.CollectionID = r.ID
	}
	s.routes[r.ID] = &r

	next := &model.RouteCollectionEntry{ID: r.CollectionID}
	if rc, ok := s.collections[r.CollectionID]; ok {
		next.Routes = append(next.Routes, rc.Routes...)
	}
	next.Routes = append(next.Routes, r.ID)
	s.collections[r.CollectionID] = next
	return nil
}

func validTrip(trip *model.TripEntry) error {
	switch {
	case trip == nil:
		return fmt.Errorf("%w: nil", ErrInvalidTrip)
	case trip.ID.IsZero():
		return fmt.Errorf("%w: missing id", ErrInvalidTrip)
	case trip.RouteID.IsZero():
		return fmt.Errorf("%w: %s has no route", ErrInvalidTrip, trip.ID)
	case trip.BlockID.IsZero():
		return fmt.Errorf("%w: %s has no block", ErrInvalidTrip, trip.ID)
	case trip.ServiceID.ServiceID.IsZero():
		return fmt.Errorf("%w: %s has no service id", ErrInvalidTrip, trip.ID)
	case len(trip.StopTimes) == 0:
		return fmt.Errorf("%w: %s has no stop times", ErrInvalidTrip, trip.ID)
	}
	return nil
}

// Validates and stores a trip, registering its route if needed. The
// block is left for the caller to rebuild.
func (s *state) addTrip(trip *model.TripEntry) (*model.TripEntry, error) {
	if err := validTrip(trip); err != nil {
		return nil, err
	}
	if _, ok := s.trips[trip.ID]; ok {
		return nil, fmt.Errorf("%w: trip %s", ErrDuplicate, trip.ID)
	}
	for _, st := range trip.StopTimes {
		if _, ok := s.stops[st.StopID]; !ok {
			return nil, fmt.Errorf("%w: %s on trip %s", ErrUnknownStop, st.StopID, trip.ID)
		}
	}

	if _, ok := s.routes[trip.RouteID]; !ok {
		if err := s.addRoute(&model.RouteEntry{ID: trip.RouteID}); err != nil {
			return nil, err
		}
	}

	t := trip.Clone()
	for i := range t.StopTimes {
		t.StopTimes[i].TripID = t.ID
	}
	t.TotalDistance = tripDistance(s, t)

	s.trips[t.ID] = t
	if s.blockTrips[t.BlockID] == nil {
		s.blockTrips[t.BlockID] = map[model.ID]bool{}
	}
	s.blockTrips[t.BlockID][t.ID] = true
	s.retainStops(t)

	return t, nil
}

func (s *state) retainStops(trip *model.TripEntry) {
	for _, st := range trip.StopTimes {
		s.stopRefs[st.StopID]++
	}
}

func (s *state) releaseStops(trip *model.TripEntry) {
	for _, st := range trip.StopTimes {
		s.stopRefs[st.StopID]--
		if s.stopRefs[st.StopID] <= 0 {
			delete(s.stopRefs, st.StopID)
		}
	}
}

func (s *state) addShape(shape *model.ShapePoints) error {
	if shape == nil || shape.ShapeID.IsZero() || shape.Len() == 0 {
		return fmt.Errorf("%w: missing id or points", ErrInvalidShape)
	}
	if len(shape.Lons) != shape.Len() || len(shape.Distances) != shape.Len() {
		return fmt.Errorf("%w: %s has mismatched point arrays", ErrInvalidShape, shape.ShapeID)
	}
	if _, ok := s.shapes[shape.ShapeID]; ok {
		return fmt.Errorf("%w: shape %s", ErrDuplicate, shape.ShapeID)
	}
	s.shapes[shape.ShapeID] = shape
	return nil
}
