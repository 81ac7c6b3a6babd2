package parse

import (
	"fmt"
	"io"

	"github.com/camsys/onebusaway-application-modules-sub000/model"
)

type tripRow struct {
	ID                   string `csv:"trip_id" validate:"required"`
	RouteID              string `csv:"route_id" validate:"required"`
	ServiceID            string `csv:"service_id" validate:"required"`
	Headsign             string `csv:"trip_headsign"`
	ShortName            string `csv:"trip_short_name"`
	DirectionID          int8   `csv:"direction_id" validate:"oneof=0 1"`
	BlockID              string `csv:"block_id"`
	ShapeID              string `csv:"shape_id"`
	WheelchairAccessible int8   `csv:"wheelchair_accessible" validate:"gte=0,lte=2"`
}

// LoadTrips reads trips.txt. Routes and service ids must already be
// known.
func (l *Loader) LoadTrips(data io.Reader) error {
	blocks := map[string]bool{}

	rows, err := eachRow(data, func(t *tripRow) error {
		if l.trips[t.ID] {
			return fmt.Errorf("repeated trip_id '%s'", t.ID)
		}
		l.trips[t.ID] = true

		if !l.routes[t.RouteID] {
			return fmt.Errorf("unknown route_id '%s'", t.RouteID)
		}
		if !l.services[t.ServiceID] {
			return fmt.Errorf("unknown service_id '%s'", t.ServiceID)
		}
		if t.BlockID != "" {
			blocks[t.BlockID] = true
		}
		if t.ShapeID != "" {
			l.shapeRefs[t.ShapeID] = true
		}

		return l.writer.WriteTrip(&model.Trip{
			ID:          t.ID,
			RouteID:     t.RouteID,
			ServiceID:   t.ServiceID,
			Headsign:    t.Headsign,
			ShortName:   t.ShortName,
			DirectionID: t.DirectionID,
			BlockID:     t.BlockID,
			ShapeID:     t.ShapeID,
		})
	})
	if err != nil {
		return err
	}

	l.logger.Debug("loaded trips", "count", rows, "blocks", len(blocks))
	return nil
}
