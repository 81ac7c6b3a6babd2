package blockindex

import (
	"fmt"
	"strings"

	"github.com/camsys/onebusaway-application-modules-sub000/model"
)

type stopKey struct {
	stop       model.ID
	activation string
}

type configContribution struct {
	routeCollections []model.ID
	trip             *TripIndex
	frequency        *FrequencyIndex
	layover          *LayoverIndex
	sequenceKey      string
	sequenceStops    []model.ID
	sequence         BlockSequence
}

// Everything one block adds to the aggregate indices.
type contribution struct {
	blockID     model.ID
	agency      string
	configs     []configContribution
	stopTimes   map[stopKey][]StopTimeRef
	activations map[string]model.ServiceIDActivation
}

// Derives a block's indices. Returns an error if the block is
// inconsistent with the source.
func derive(src Source, block *model.BlockEntry) (*contribution, error) {
	if block == nil || block.ID.IsZero() {
		return nil, fmt.Errorf("block without id")
	}
	if len(block.Configurations) == 0 {
		return nil, fmt.Errorf("block %s has no configurations", block.ID)
	}

	c := &contribution{
		blockID:     block.ID,
		agency:      block.ID.Agency,
		stopTimes:   map[stopKey][]StopTimeRef{},
		activations: map[string]model.ServiceIDActivation{},
	}

	for _, config := range block.Configurations {
		cc, err := deriveConfiguration(src, block.ID, config, c)
		if err != nil {
			return nil, fmt.Errorf("block %s: %w", block.ID, err)
		}
		c.configs = append(c.configs, cc)
	}

	return c, nil
}

func deriveConfiguration(
	src Source,
	blockID model.ID,
	config *model.BlockConfigurationEntry,
	c *contribution,
) (configContribution, error) {
	cc := configContribution{}

	if len(config.Trips) == 0 {
		return cc, fmt.Errorf("configuration %s has no trips", config.ServiceIDs.Key())
	}

	activation := config.ServiceIDs.Key()
	c.activations[activation] = config.ServiceIDs

	trips := make([]*model.TripEntry, 0, len(config.Trips))
	tripIDs := make([]model.ID, 0, len(config.Trips))
	seenCollections := map[model.ID]bool{}

	for i, bt := range config.Trips {
		trip, ok := src.Trip(bt.TripID)
		if !ok {
			return cc, fmt.Errorf("unknown trip %s", bt.TripID)
		}
		if trip.BlockID != blockID {
			return cc, fmt.Errorf("trip %s belongs to block %s", trip.ID, trip.BlockID)
		}
		if len(trip.StopTimes) == 0 {
			return cc, fmt.Errorf("trip %s has no stop times", trip.ID)
		}
		if i > 0 && bt.FirstDeparture < config.Trips[i-1].FirstDeparture {
			return cc, fmt.Errorf("trip %s departs before %s", trip.ID, config.Trips[i-1].TripID)
		}
		if i > 0 && bt.DistanceAlongBlock < config.Trips[i-1].DistanceAlongBlock {
			return cc, fmt.Errorf("distance along block decreases at trip %s", trip.ID)
		}

		collection := trip.RouteID
		if route, ok := src.Route(trip.RouteID); ok && !route.CollectionID.IsZero() {
			collection = route.CollectionID
		}
		if !seenCollections[collection] {
			seenCollections[collection] = true
			cc.routeCollections = append(cc.routeCollections, collection)
		}

		trips = append(trips, trip)
		tripIDs = append(tripIDs, trip.ID)
	}

	first := config.Trips[0]
	last := config.Trips[len(config.Trips)-1]

	if config.Frequency {
		var frequencies []model.FrequencyEntry
		for _, trip := range trips {
			frequencies = append(frequencies, trip.Frequencies...)
		}
		cc.frequency = &FrequencyIndex{
			BlockID:          blockID,
			Agency:           blockID.Agency,
			ServiceIDs:       config.ServiceIDs,
			Trips:            tripIDs,
			RouteCollections: cc.routeCollections,
			Frequencies:      frequencies,
		}
	} else {
		cc.trip = &TripIndex{
			BlockID:          blockID,
			Agency:           blockID.Agency,
			ServiceIDs:       config.ServiceIDs,
			Trips:            tripIDs,
			RouteCollections: cc.routeCollections,
			Start:            first.FirstDeparture,
			End:              last.LastArrival,
			Distance:         config.TotalBlockDistance,
		}
	}

	var layovers []Layover
	for i := 1; i < len(trips); i++ {
		prev := trips[i-1]
		layovers = append(layovers, Layover{
			StopID:   prev.StopTimes[len(prev.StopTimes)-1].StopID,
			FromTrip: prev.ID,
			ToTrip:   trips[i].ID,
			Start:    prev.LastArrival(),
			End:      trips[i].FirstDeparture(),
		})
	}
	if len(layovers) > 0 {
		cc.layover = &LayoverIndex{
			BlockID:    blockID,
			Agency:     blockID.Agency,
			ServiceIDs: config.ServiceIDs,
			Layovers:   layovers,
		}
	}

	// Stop pattern of the whole configuration. A trip starting where
	// the previous one ended contributes that stop once.
	var stops []model.ID
	for _, trip := range trips {
		for pos, st := range trip.StopTimes {
			if len(stops) == 0 || stops[len(stops)-1] != st.StopID {
				stops = append(stops, st.StopID)
			}
			key := stopKey{stop: st.StopID, activation: activation}
			c.stopTimes[key] = append(c.stopTimes[key], StopTimeRef{
				BlockID:   blockID,
				TripID:    trip.ID,
				Arrival:   st.Arrival,
				Departure: st.Departure,
				Position:  pos,
			})
		}
	}
	cc.sequenceStops = stops
	cc.sequenceKey = sequenceKey(stops)
	cc.sequence = BlockSequence{
		BlockID:    blockID,
		ServiceIDs: config.ServiceIDs,
		Trips:      tripIDs,
		Start:      first.FirstDeparture,
		End:        last.LastArrival,
	}

	return cc, nil
}

func sequenceKey(stops []model.ID) string {
	parts := make([]string, len(stops))
	for i, s := range stops {
		parts[i] = s.String()
	}
	return strings.Join(parts, ",")
}
