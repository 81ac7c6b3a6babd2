// Package publish delivers matched vehicle records to downstream
// systems.
package publish

import (
	"context"
	"strings"
	"time"

	"github.com/camsys/onebusaway-application-modules-sub000/matching"
	"github.com/camsys/onebusaway-application-modules-sub000/model"
)

type Sink interface {
	Name() string
	Publish(ctx context.Context, result *matching.Result) error
	Close() error
}

// Wire form of a matched record.
type Message struct {
	CycleID      string    `json:"cycleId"`
	VehicleID    string    `json:"vehicleId,omitempty"`
	TripID       string    `json:"tripId"`
	BlockID      string    `json:"blockId"`
	ServiceDate  string    `json:"serviceDate"`
	Timestamp    time.Time `json:"timestamp"`
	DeviationSec *float64  `json:"deviationSec,omitempty"`
	Phase        string    `json:"phase"`
	Lat          *float64  `json:"lat,omitempty"`
	Lon          *float64  `json:"lon,omitempty"`
	Dynamic      bool      `json:"dynamic,omitempty"`
}

func NewMessage(cycleID string, r *matching.Record) Message {
	m := Message{
		CycleID:     cycleID,
		VehicleID:   r.VehicleID,
		TripID:      r.TripID.String(),
		BlockID:     r.BlockID.String(),
		ServiceDate: model.DateString(r.ServiceDate),
		Timestamp:   r.Timestamp.UTC(),
		Phase:       r.Phase.String(),
		Dynamic:     r.Dynamic,
	}
	if r.HasDeviation {
		d := r.Deviation.Seconds()
		m.DeviationSec = &d
	}
	if r.HasPosition {
		lat, lon := r.Lat, r.Lon
		m.Lat = &lat
		m.Lon = &lon
	}
	return m
}

// Records without a vehicle are keyed by trip.
func recordKey(r *matching.Record) string {
	if r.VehicleID != "" {
		return r.VehicleID
	}
	return "trip:" + r.TripID.String()
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS tokens can't contain spaces, '>', '*' or '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_", ":", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
