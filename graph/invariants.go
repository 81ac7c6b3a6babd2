package graph

import (
	"errors"
	"fmt"

	"github.com/camsys/onebusaway-application-modules-sub000/model"
)

// Verifies that the entity maps, blocks and derived indices agree.
// Meant for tests and diagnostics; it walks the whole graph.
func (g *Graph) CheckInvariants() error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.view().CheckInvariants()
}

func (v *View) CheckInvariants() error {
	s := v.s
	var errs []error

	for id, trip := range s.trips {
		if trip.ID != id {
			errs = append(errs, fmt.Errorf("trip %s stored as %s", trip.ID, id))
		}
		block, ok := s.blocks[trip.BlockID]
		if !ok {
			errs = append(errs, fmt.Errorf("trip %s: block %s missing", id, trip.BlockID))
			continue
		}
		found := 0
		for _, config := range block.Configurations {
			if config.TripIndex(id) >= 0 {
				found++
			}
		}
		if found != 1 {
			errs = append(errs, fmt.Errorf("trip %s in %d configurations of block %s", id, found, trip.BlockID))
		}
		if s.index.Excluded(trip.BlockID) == nil && !s.index.ForBlock(trip.BlockID).HasTrip(id) {
			errs = append(errs, fmt.Errorf("trip %s missing from indices of block %s", id, trip.BlockID))
		}
	}

	for id, block := range s.blocks {
		if len(block.Configurations) == 0 {
			errs = append(errs, fmt.Errorf("block %s has no configurations", id))
		}
		for _, config := range block.Configurations {
			if len(config.Trips) == 0 {
				errs = append(errs, fmt.Errorf("block %s has an empty configuration", id))
			}
			errs = append(errs, checkConfiguration(s, config)...)
		}
	}

	for _, blockID := range s.index.Blocks() {
		indices := s.index.ForBlock(blockID)
		for _, ti := range indices.Trips {
			for _, tripID := range ti.Trips {
				if _, ok := s.trips[tripID]; !ok {
					errs = append(errs, fmt.Errorf("indexed trip %s not in graph", tripID))
				}
			}
		}
		for _, fi := range indices.Frequencies {
			for _, tripID := range fi.Trips {
				if _, ok := s.trips[tripID]; !ok {
					errs = append(errs, fmt.Errorf("indexed trip %s not in graph", tripID))
				}
			}
		}
	}

	if len(s.stopList) != len(s.stops) {
		errs = append(errs, fmt.Errorf("%d stops listed, %d mapped", len(s.stopList), len(s.stops)))
	}
	for i, stop := range s.stopList {
		if stop.Index != i {
			errs = append(errs, fmt.Errorf("stop %s has index %d at position %d", stop.ID, stop.Index, i))
		}
	}
	if s.tree.Len() != len(s.stops) {
		errs = append(errs, fmt.Errorf("spatial tree holds %d stops, graph %d", s.tree.Len(), len(s.stops)))
	}

	return errors.Join(errs...)
}

func checkConfiguration(s *state, config *model.BlockConfigurationEntry) []error {
	var errs []error
	for i, bt := range config.Trips {
		trip, ok := s.trips[bt.TripID]
		if !ok {
			errs = append(errs, fmt.Errorf("block %s references missing trip %s", config.BlockID, bt.TripID))
			continue
		}
		if trip.BlockID != config.BlockID {
			errs = append(errs, fmt.Errorf("trip %s listed in block %s", trip.ID, config.BlockID))
		}
		if i == 0 {
			continue
		}
		prev := config.Trips[i-1]
		if bt.DistanceAlongBlock < prev.DistanceAlongBlock+prev.TripDistance {
			errs = append(errs, fmt.Errorf("block %s: trip %s starts before %s ends", config.BlockID, bt.TripID, prev.TripID))
		}
	}
	return errs
}
