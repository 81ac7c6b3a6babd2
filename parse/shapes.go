package parse

import (
	"fmt"
	"io"

	"github.com/camsys/onebusaway-application-modules-sub000/model"
)

type shapePointRow struct {
	ShapeID           string  `csv:"shape_id" validate:"required"`
	Lat               float64 `csv:"shape_pt_lat" validate:"gte=-90,lte=90"`
	Lon               float64 `csv:"shape_pt_lon" validate:"gte=-180,lte=180"`
	Sequence          uint32  `csv:"shape_pt_sequence"`
	ShapeDistTraveled string  `csv:"shape_dist_traveled"`
}

// LoadShapes reads shapes.txt. Points may come in any order; the
// graph builder sorts them by sequence.
func (l *Loader) LoadShapes(data io.Reader) error {
	seen := map[string]map[uint32]bool{}

	rows, err := eachRow(data, func(s *shapePointRow) error {
		if seen[s.ShapeID] == nil {
			seen[s.ShapeID] = map[uint32]bool{}
		}
		if seen[s.ShapeID][s.Sequence] {
			return fmt.Errorf("duplicate shape_pt_sequence %d for shape_id '%s'", s.Sequence, s.ShapeID)
		}
		seen[s.ShapeID][s.Sequence] = true
		l.shapes[s.ShapeID] = true

		dist, err := shapeDist(s.ShapeDistTraveled)
		if err != nil {
			return err
		}

		return l.writer.WriteShapePoint(&model.ShapePoint{
			ShapeID:           s.ShapeID,
			Lat:               s.Lat,
			Lon:               s.Lon,
			Sequence:          s.Sequence,
			ShapeDistTraveled: dist,
		})
	})
	if err != nil {
		return err
	}

	l.logger.Debug("loaded shapes", "points", rows, "shapes", len(l.shapes))
	return nil
}

// Trips may name shapes that shapes.txt lacks. Their stops are then
// placed by distance between stops, so this is only logged.
func (l *Loader) checkShapeRefs() {
	missing := 0
	for shapeID := range l.shapeRefs {
		if !l.shapes[shapeID] {
			missing++
		}
	}
	if missing > 0 {
		l.logger.Warn("trips reference unknown shapes", "count", missing)
	}
}
