package graph

import (
	"log/slog"

	"github.com/camsys/onebusaway-application-modules-sub000/model"
)

// Patcher applies schedule changes and reports plain success, for
// callers that aggregate results and replay inverses to revert.
// Failures are logged at debug level.
type Patcher struct {
	Graph  *Graph
	Logger *slog.Logger
}

func (p *Patcher) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

func (p *Patcher) ok(op string, err error, args ...any) bool {
	if err != nil {
		p.logger().Debug("schedule patch failed", append([]any{"op", op, "error", err}, args...)...)
		return false
	}
	return true
}

func (p *Patcher) AddStop(stop *model.StopEntry) bool {
	return p.ok("add_stop", p.Graph.AddStop(stop), "stop", stop.ID.String())
}

func (p *Patcher) RemoveStop(id model.ID) bool {
	return p.ok("remove_stop", p.Graph.RemoveStop(id), "stop", id.String())
}

func (p *Patcher) UpdateStop(stop *model.StopEntry) bool {
	return p.ok("update_stop", p.Graph.UpdateStop(stop), "stop", stop.ID.String())
}

func (p *Patcher) AddTrip(trip *model.TripEntry) bool {
	return p.ok("add_trip", p.Graph.AddTrip(trip), "trip", trip.ID.String())
}

func (p *Patcher) DeleteTrip(id model.ID) bool {
	return p.ok("delete_trip", p.Graph.DeleteTrip(id), "trip", id.String())
}

// Replaces a trip, adding it if it didn't exist.
func (p *Patcher) UpdateTrip(trip *model.TripEntry) bool {
	if _, ok := p.Graph.Trip(trip.ID); ok {
		if !p.DeleteTrip(trip.ID) {
			return false
		}
	}
	return p.AddTrip(trip)
}

func (p *Patcher) InsertStopTime(tripID, stopID model.ID, arrival, departure int, shapeDistTraveled float64) bool {
	_, err := p.Graph.InsertStopTime(tripID, stopID, arrival, departure, shapeDistTraveled)
	return p.ok("insert_stop_time", err, "trip", tripID.String(), "stop", stopID.String())
}

func (p *Patcher) DeleteStopTime(tripID, stopID model.ID) bool {
	return p.ok("delete_stop_time", p.Graph.DeleteStopTime(tripID, stopID), "trip", tripID.String(), "stop", stopID.String())
}

func (p *Patcher) UpdateStopTime(tripID, stopID model.ID, originalArrival, originalDeparture, arrival, departure int) bool {
	err := p.Graph.UpdateStopTime(tripID, stopID, originalArrival, originalDeparture, arrival, departure)
	return p.ok("update_stop_time", err, "trip", tripID.String(), "stop", stopID.String())
}

func (p *Patcher) AddShape(shape *model.ShapePoints) bool {
	return p.ok("add_shape", p.Graph.AddShape(shape), "shape", shape.ShapeID.String())
}

func (p *Patcher) RemoveShape(id model.ID) bool {
	return p.ok("remove_shape", p.Graph.RemoveShape(id), "shape", id.String())
}
