package graph

import (
	"sort"

	"github.com/camsys/onebusaway-application-modules-sub000/geo"
	"github.com/camsys/onebusaway-application-modules-sub000/model"
)

// Total length of a trip in meters. Uses shape_dist_traveled when
// every stop time has one, otherwise sums the great-circle legs
// between consecutive stops.
func tripDistance(s *state, trip *model.TripEntry) float64 {
	if len(trip.StopTimes) == 0 {
		return 0
	}

	withShapeDist := true
	for _, st := range trip.StopTimes {
		if !st.HasShapeDist() {
			withShapeDist = false
			break
		}
	}
	if withShapeDist {
		first := trip.StopTimes[0].ShapeDistTraveled
		last := trip.StopTimes[len(trip.StopTimes)-1].ShapeDistTraveled
		if last >= first {
			return last - first
		}
	}

	total := 0.0
	for i := 1; i < len(trip.StopTimes); i++ {
		total += stopDistance(s, trip.StopTimes[i-1].StopID, trip.StopTimes[i].StopID)
	}
	return total
}

func stopDistance(s *state, a, b model.ID) float64 {
	if a == b {
		return 0
	}
	sa, okA := s.stops[a]
	sb, okB := s.stops[b]
	if !okA || !okB {
		return 0
	}
	return geo.Distance(sa.Lat, sa.Lon, sb.Lat, sb.Lon)
}

// Rebuilds a block's configurations from its current trips. Trips
// are grouped by service id, with headway-based trips kept apart from
// scheduled ones. The block is dropped when it has no trips left.
func rebuildBlock(s *state, blockID model.ID) {
	ids := s.blockTrips[blockID]
	if len(ids) == 0 {
		delete(s.blocks, blockID)
		delete(s.blockTrips, blockID)
		return
	}

	type groupKey struct {
		service   string
		frequency bool
	}
	groups := map[groupKey][]*model.TripEntry{}
	activations := map[groupKey]model.ServiceIDActivation{}

	for id := range ids {
		trip, ok := s.trips[id]
		if !ok {
			continue
		}
		key := groupKey{service: trip.ServiceID.String(), frequency: len(trip.Frequencies) > 0}
		groups[key] = append(groups[key], trip)
		activations[key] = model.NewServiceIDActivation(trip.ServiceID)
	}

	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].service != keys[j].service {
			return keys[i].service < keys[j].service
		}
		return !keys[i].frequency && keys[j].frequency
	})

	block := &model.BlockEntry{ID: blockID}
	for _, k := range keys {
		block.Configurations = append(block.Configurations, buildConfiguration(s, blockID, activations[k], k.frequency, groups[k]))
	}
	s.blocks[blockID] = block
}

// Orders trips by first departure and lays them end to end. Each
// trip starts at the previous trip's distance plus its length plus
// the straight-line gap to the next first stop.
func buildConfiguration(
	s *state,
	blockID model.ID,
	activation model.ServiceIDActivation,
	frequency bool,
	trips []*model.TripEntry,
) *model.BlockConfigurationEntry {
	sort.SliceStable(trips, func(i, j int) bool {
		a, b := trips[i].FirstDeparture(), trips[j].FirstDeparture()
		if a != b {
			return a < b
		}
		return model.CompareIDs(trips[i].ID, trips[j].ID) < 0
	})

	config := &model.BlockConfigurationEntry{
		BlockID:    blockID,
		ServiceIDs: activation,
		Frequency:  frequency,
		Trips:      make([]model.BlockTripEntry, 0, len(trips)),
	}

	distance := 0.0
	for i, trip := range trips {
		gap := 0.0
		if i > 0 {
			prev := trips[i-1]
			gap = stopDistance(s, prev.StopTimes[len(prev.StopTimes)-1].StopID, trip.StopTimes[0].StopID)
			distance += prev.TotalDistance + gap
		}
		config.Trips = append(config.Trips, model.BlockTripEntry{
			TripID:             trip.ID,
			RouteID:            trip.RouteID,
			Sequence:           i,
			FirstDeparture:     trip.FirstDeparture(),
			LastArrival:        trip.LastArrival(),
			DistanceAlongBlock: distance,
			GapDistance:        gap,
			TripDistance:       trip.TotalDistance,
		})
	}

	if n := len(config.Trips); n > 0 {
		last := config.Trips[n-1]
		config.TotalBlockDistance = last.DistanceAlongBlock + last.TripDistance
	}
	return config
}
