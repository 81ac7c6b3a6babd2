package parse

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/camsys/onebusaway-application-modules-sub000/model"
)

type stopTimeRow struct {
	TripID            string `csv:"trip_id" validate:"required"`
	StopID            string `csv:"stop_id" validate:"required"`
	StopSequence      uint32 `csv:"stop_sequence"`
	ArrivalTime       string `csv:"arrival_time"`
	DepartureTime     string `csv:"departure_time"`
	Headsign          string `csv:"stop_headsign"`
	ShapeDistTraveled string `csv:"shape_dist_traveled"`
}

// Converts a GTFS "H:MM:SS" time to "HHMMSS". Hours run to 99 to
// cover service past midnight.
func clockTime(s string) (string, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("malformed time '%s'", s)
	}

	limits := [3]int{99, 59, 59}
	var hms [3]int
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 || n > limits[i] {
			return "", fmt.Errorf("malformed time '%s'", s)
		}
		hms[i] = n
	}

	return fmt.Sprintf("%02d%02d%02d", hms[0], hms[1], hms[2]), nil
}

// Empty means not provided.
func shapeDist(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.NoShapeDist, nil
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid shape_dist_traveled '%s'", s)
	}
	return d, nil
}

// First and last stop of a trip, by stop_sequence.
type tripEnds struct {
	first, last           uint32
	firstTimed, lastTimed bool
}

func (e *tripEnds) see(seq uint32, timed bool) {
	if seq < e.first {
		e.first, e.firstTimed = seq, timed
	}
	if seq > e.last {
		e.last, e.lastTimed = seq, timed
	}
}

// LoadStopTimes reads stop_times.txt.
//
// Stops between timepoints may leave both times blank. They are
// written with empty times and interpolated when the graph is built.
// A blank arrival or departure alone copies the other. The first and
// last stop of each trip must be timed.
func (l *Loader) LoadStopTimes(data io.Reader) error {
	sequences := map[string]map[uint32]bool{}
	ends := map[string]*tripEnds{}

	rows, err := eachRow(data, func(st *stopTimeRow) error {
		if !l.trips[st.TripID] {
			return fmt.Errorf("unknown trip_id '%s'", st.TripID)
		}
		if !l.stops[st.StopID] {
			return fmt.Errorf("unknown stop_id '%s'", st.StopID)
		}

		if sequences[st.TripID] == nil {
			sequences[st.TripID] = map[uint32]bool{}
		}
		if sequences[st.TripID][st.StopSequence] {
			return fmt.Errorf("duplicate stop_sequence %d for trip_id '%s'", st.StopSequence, st.TripID)
		}
		sequences[st.TripID][st.StopSequence] = true

		arrival, departure := st.ArrivalTime, st.DepartureTime
		if arrival == "" {
			arrival = departure
		}
		if departure == "" {
			departure = arrival
		}

		if arrival != "" {
			var err error
			if arrival, err = clockTime(arrival); err != nil {
				return errors.Wrap(err, "arrival_time")
			}
			if departure, err = clockTime(departure); err != nil {
				return errors.Wrap(err, "departure_time")
			}
		}

		dist, err := shapeDist(st.ShapeDistTraveled)
		if err != nil {
			return err
		}

		timed := arrival != ""
		if e, found := ends[st.TripID]; found {
			e.see(st.StopSequence, timed)
		} else {
			ends[st.TripID] = &tripEnds{st.StopSequence, st.StopSequence, timed, timed}
		}

		if arrival > l.metadata.MaxArrival {
			l.metadata.MaxArrival = arrival
		}
		if departure > l.metadata.MaxDeparture {
			l.metadata.MaxDeparture = departure
		}

		return l.writer.WriteStopTime(&model.StopTime{
			TripID:            st.TripID,
			StopID:            st.StopID,
			Headsign:          st.Headsign,
			StopSequence:      st.StopSequence,
			Arrival:           arrival,
			Departure:         departure,
			ShapeDistTraveled: dist,
		})
	})
	if err != nil {
		return err
	}

	for tripID, e := range ends {
		if !e.firstTimed || !e.lastTimed {
			return fmt.Errorf("trip_id '%s' lacks times on first or last stop", tripID)
		}
	}

	l.logger.Debug("loaded stop times", "count", rows, "trips", len(ends))
	return nil
}
