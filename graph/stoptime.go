package graph

import (
	"fmt"

	"github.com/camsys/onebusaway-application-modules-sub000/model"
)

// Inserts a stop time into a trip and returns its position. The
// position is found by scanning the existing stop times from the end:
// the new stop time goes right after the first one it is later than.
// Its sequence is one past the highest in the trip, so sequences stay
// unique but no longer follow positions.
func (g *Graph) InsertStopTime(
	tripID model.ID,
	stopID model.ID,
	arrival int,
	departure int,
	shapeDistTraveled float64,
) (int, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	s := g.state
	trip, ok := s.trips[tripID]
	if !ok {
		return -1, fmt.Errorf("%w: %s", ErrUnknownTrip, tripID)
	}
	if _, ok := s.stops[stopID]; !ok {
		return -1, fmt.Errorf("%w: %s", ErrUnknownStop, stopID)
	}

	st := model.StopTimeEntry{
		TripID:            tripID,
		StopID:            stopID,
		Arrival:           arrival,
		Departure:         departure,
		ShapeDistTraveled: shapeDistTraveled,
	}
	if st.ShapeDistTraveled < 0 {
		st.ShapeDistTraveled = model.NoShapeDist
	}

	pos := InsertionPosition(trip.StopTimes, st)

	// Feeds refer to existing sequences.
	for _, existing := range trip.StopTimes {
		st.Sequence = max(st.Sequence, existing.Sequence+1)
	}

	next := trip.Clone()
	next.StopTimes = append(next.StopTimes, model.StopTimeEntry{})
	copy(next.StopTimes[pos+1:], next.StopTimes[pos:])
	next.StopTimes[pos] = st

	g.replaceTrip(trip, next)
	return pos, nil
}

// Removes the first stop time at stopID from a trip. A trip's last
// remaining stop time can't be removed.
func (g *Graph) DeleteStopTime(tripID model.ID, stopID model.ID) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	s := g.state
	trip, ok := s.trips[tripID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTrip, tripID)
	}

	pos := -1
	for i, st := range trip.StopTimes {
		if st.StopID == stopID {
			pos = i
			break
		}
	}
	if pos < 0 {
		return fmt.Errorf("%w: stop %s on trip %s", ErrNotFound, stopID, tripID)
	}
	if len(trip.StopTimes) == 1 {
		return fmt.Errorf("%w: removing last stop time of %s", ErrInvalidTrip, tripID)
	}

	next := trip.Clone()
	next.StopTimes = append(next.StopTimes[:pos], next.StopTimes[pos+1:]...)

	g.replaceTrip(trip, next)
	return nil
}

// Changes the times of the stop time at stopID with the given
// original times. The stop time keeps its position.
func (g *Graph) UpdateStopTime(
	tripID model.ID,
	stopID model.ID,
	originalArrival int,
	originalDeparture int,
	arrival int,
	departure int,
) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	s := g.state
	trip, ok := s.trips[tripID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTrip, tripID)
	}

	pos := -1
	for i, st := range trip.StopTimes {
		if st.StopID == stopID && st.Arrival == originalArrival && st.Departure == originalDeparture {
			pos = i
			break
		}
	}
	if pos < 0 {
		return fmt.Errorf("%w: stop %s at %d/%d on trip %s", ErrNotFound, stopID, originalArrival, originalDeparture, tripID)
	}

	next := trip.Clone()
	next.StopTimes[pos].Arrival = arrival
	next.StopTimes[pos].Departure = departure

	g.replaceTrip(trip, next)
	return nil
}

// Swaps in a modified trip and re-derives its block and the indices
// around both its old and new stops.
func (g *Graph) replaceTrip(old, next *model.TripEntry) {
	s := g.state
	next.TotalDistance = tripDistance(s, next)

	s.releaseStops(old)
	s.retainStops(next)
	s.trips[next.ID] = next

	rebuildBlock(s, next.BlockID)
	s.index.UpdateForTrip(&View{s: s}, old, next)
}

// Index at which st belongs in stopTimes. Compares shape distance
// when both sides have one, then arrival, then departure. Ties go
// before the existing entry.
func InsertionPosition(stopTimes []model.StopTimeEntry, st model.StopTimeEntry) int {
	for i := len(stopTimes) - 1; i >= 0; i-- {
		if after(st, stopTimes[i]) {
			return i + 1
		}
	}
	return 0
}

func after(st, existing model.StopTimeEntry) bool {
	if st.HasShapeDist() && existing.HasShapeDist() {
		return st.ShapeDistTraveled > existing.ShapeDistTraveled
	}
	if st.Arrival != existing.Arrival {
		return st.Arrival > existing.Arrival
	}
	return st.Departure > existing.Departure
}
