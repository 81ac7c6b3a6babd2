package graph

import (
	"log/slog"

	"github.com/camsys/onebusaway-application-modules-sub000/blockindex"
	"github.com/camsys/onebusaway-application-modules-sub000/model"
)

// Builder bulk-loads a graph. Blocks, the spatial tree and the block
// indices are derived once, in Build, rather than after every trip.
type Builder struct {
	s      *state
	logger *slog.Logger
	base   *slog.Logger
}

func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		s:      newState(logger),
		logger: logger.With("component", "graph"),
		base:   logger,
	}
}

func (b *Builder) AddAgency(agency *model.AgencyEntry) error {
	return b.s.addAgency(agency)
}

func (b *Builder) AddStop(stop *model.StopEntry) error {
	return b.s.addStop(stop)
}

func (b *Builder) AddRoute(route *model.RouteEntry) error {
	return b.s.addRoute(route)
}

// Stops referenced by the trip must have been added first.
func (b *Builder) AddTrip(trip *model.TripEntry) error {
	_, err := b.s.addTrip(trip)
	return err
}

func (b *Builder) AddShape(shape *model.ShapePoints) error {
	return b.s.addShape(shape)
}

// Derives blocks and indices and returns the finished graph. The
// builder must not be used afterwards.
func (b *Builder) Build() *Graph {
	s := b.s
	b.s = nil

	s.rebuildTree()
	for blockID := range s.blockTrips {
		rebuildBlock(s, blockID)
	}
	s.index = blockindex.Build(&View{s: s}, b.base)

	b.logger.Info(
		"built graph",
		"stops", len(s.stops),
		"routes", len(s.routes),
		"trips", len(s.trips),
		"blocks", len(s.blocks),
		"excluded_blocks", s.index.ExcludedCount(),
	)

	return &Graph{state: s, logger: b.logger, base: b.base}
}
