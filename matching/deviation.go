package matching

import (
	"time"

	"github.com/camsys/onebusaway-application-modules-sub000/model"
	"github.com/camsys/onebusaway-application-modules-sub000/parse"
)

// Schedule deviation of a trip update against the instance it was
// matched to. A trip level delay wins. Otherwise the first stop time
// update that can be tied to a scheduled stop decides.
func scheduleDeviation(instance *model.BlockInstance, trip *model.TripEntry, tu *parse.TripUpdate) (time.Duration, bool) {
	if tu == nil {
		return 0, false
	}
	if tu.DelayIsSet {
		return tu.Delay, true
	}

	from := 0
	for _, u := range tu.StopTimeUpdates {
		if u.Type != parse.StopTimeUpdateScheduled {
			continue
		}

		idx := findStopTime(trip, u, from, instance.Dynamic)
		if idx < 0 {
			continue
		}
		from = idx
		st := trip.StopTimes[idx]

		if u.ArrivalIsSet {
			// Feeds can use the timestamp to communicate delays
			if !u.ArrivalTime.IsZero() && u.ArrivalDelay == 0 {
				return u.ArrivalTime.Sub(model.TimeAt(instance.ServiceDate, st.Arrival)), true
			}
			return u.ArrivalDelay, true
		}
		if u.DepartureIsSet {
			if !u.DepartureTime.IsZero() {
				return u.DepartureTime.Sub(model.TimeAt(instance.ServiceDate, st.Departure)), true
			}
			return u.DepartureDelay, true
		}
	}

	return 0, false
}

// Position of the stop time an update refers to, searching from
// position from onwards. Synthesized trips are numbered by us, so only
// stop ids can tie updates to them. A sequence match at another stop
// than the update names doesn't count.
func findStopTime(trip *model.TripEntry, u *parse.StopTimeUpdate, from int, byStopOnly bool) int {
	if !byStopOnly && u.StopSequence != 0 {
		for i := from; i < len(trip.StopTimes); i++ {
			st := trip.StopTimes[i]
			if st.Sequence != int(u.StopSequence) {
				continue
			}
			if u.StopID == "" || st.StopID.ID == u.StopID {
				return i
			}
		}
	}
	if u.StopID == "" {
		return -1
	}
	for i := from; i < len(trip.StopTimes); i++ {
		if trip.StopTimes[i].StopID.ID == u.StopID {
			return i
		}
	}
	return -1
}

// Where along its block a vehicle running with deviation dev is at t.
func blockPhase(instance *model.BlockInstance, t time.Time, dev time.Duration) Phase {
	secs := model.SecondsSince(instance.ServiceDate, t.Add(-dev))

	for i, trip := range instance.Trips {
		if len(trip.StopTimes) == 0 {
			continue
		}
		if secs > trip.LastArrival() {
			continue
		}
		if secs >= trip.FirstDeparture() {
			return PhaseInProgress
		}
		if i == 0 {
			return PhaseLayoverBefore
		}
		return PhaseLayoverDuring
	}
	return PhaseDeadheadAfter
}
