package matching

import (
	"time"

	"github.com/camsys/onebusaway-application-modules-sub000/geo"
	"github.com/camsys/onebusaway-application-modules-sub000/model"
)

type StopLocator interface {
	Stop(id model.ID) (*model.StopEntry, bool)
}

// ScheduleProjector places a block instance where its timetable says
// it should be: at a stop while dwelling, and linearly interpolated
// between consecutive stops otherwise. Before the first stop and after
// the last, the vehicle is at that stop.
type ScheduleProjector struct {
	Stops StopLocator
}

func NewScheduleProjector(stops StopLocator) *ScheduleProjector {
	return &ScheduleProjector{Stops: stops}
}

func (p *ScheduleProjector) Project(instance *model.BlockInstance, t time.Time) (float64, float64, bool) {
	var stopTimes []model.StopTimeEntry
	for _, trip := range instance.Trips {
		stopTimes = append(stopTimes, trip.StopTimes...)
	}
	if len(stopTimes) == 0 {
		return 0, 0, false
	}

	secs := model.SecondsSince(instance.ServiceDate, t)

	if secs <= stopTimes[0].Departure {
		return p.at(stopTimes[0].StopID)
	}

	for i := 0; i < len(stopTimes)-1; i++ {
		from, to := stopTimes[i], stopTimes[i+1]
		if secs <= from.Departure {
			return p.at(from.StopID)
		}
		if secs >= to.Arrival {
			continue
		}

		a, ok := p.Stops.Stop(from.StopID)
		if !ok {
			return 0, 0, false
		}
		b, ok := p.Stops.Stop(to.StopID)
		if !ok {
			return 0, 0, false
		}

		ratio := float64(secs-from.Departure) / float64(to.Arrival-from.Departure)
		lat, lon := geo.Interpolate(a.Lat, a.Lon, b.Lat, b.Lon, ratio)
		return lat, lon, true
	}

	return p.at(stopTimes[len(stopTimes)-1].StopID)
}

func (p *ScheduleProjector) at(id model.ID) (float64, float64, bool) {
	stop, ok := p.Stops.Stop(id)
	if !ok {
		return 0, 0, false
	}
	return stop.Lat, stop.Lon, true
}
