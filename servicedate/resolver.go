package servicedate

import (
	"log/slog"
	"time"

	"github.com/camsys/onebusaway-application-modules-sub000/calendar"
	"github.com/camsys/onebusaway-application-modules-sub000/graph"
	"github.com/camsys/onebusaway-application-modules-sub000/model"
)

const (
	// Before this local hour, yesterday's service may still be
	// running.
	DefaultEarlyHour = 4

	// After this local hour, tomorrow's service may already have
	// started.
	DefaultLateHour = 20
)

// Resolver works out which service date a trip observed at a given
// time belongs to. Blocks can run past midnight or start with
// negative offsets, so a small window of dates around the
// observation is probed.
type Resolver struct {
	Graph    *graph.Graph
	Calendar calendar.Service

	EarlyHour int
	LateHour  int

	logger *slog.Logger
}

func NewResolver(g *graph.Graph, cal calendar.Service, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		Graph:     g,
		Calendar:  cal,
		EarlyHour: DefaultEarlyHour,
		LateHour:  DefaultLateHour,
		logger:    logger.With("component", "servicedate"),
	}
}

// Service dates to probe for an observation at t, in probe order:
// yesterday if the local hour is before EarlyHour, always today, and
// tomorrow if the local hour is after LateHour.
func (r *Resolver) Candidates(t time.Time, loc *time.Location) []time.Time {
	local := t.In(loc)
	today := model.ServiceDate(local.Year(), local.Month(), local.Day(), loc)

	candidates := make([]time.Time, 0, 3)
	if local.Hour() < r.EarlyHour {
		candidates = append(candidates, model.AddDays(today, -1))
	}
	candidates = append(candidates, today)
	if local.Hour() > r.LateHour {
		candidates = append(candidates, model.AddDays(today, 1))
	}
	return candidates
}

// Finds the block instance of trip for the first candidate date on
// which one of its block configurations is active. Not finding one is
// a normal outcome.
func (r *Resolver) Resolve(trip *model.TripEntry, t time.Time) (*model.BlockInstance, bool) {
	loc, err := model.Location(trip.ServiceID.Timezone)
	if err != nil {
		r.logger.Debug("unresolvable timezone", "trip", trip.ID.String(), "error", err)
		return nil, false
	}

	var instance *model.BlockInstance
	r.Graph.Read(func(v *graph.View) {
		configs := v.ConfigurationsForTrip(trip)
		for _, serviceDate := range r.Candidates(t, loc) {
			for _, config := range configs {
				if r.Calendar.IsActive(config.ServiceIDs, serviceDate) {
					instance = v.BlockInstance(config, serviceDate)
					return
				}
			}
		}
	})

	if instance == nil {
		r.logger.Debug("no service date for trip", "trip", trip.ID.String(), "time", t)
		return nil, false
	}
	return instance, true
}
