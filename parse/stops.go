package parse

import (
	"fmt"
	"io"

	"github.com/camsys/onebusaway-application-modules-sub000/model"
)

type stopRow struct {
	ID                 string  `csv:"stop_id" validate:"required"`
	Code               string  `csv:"stop_code"`
	Name               string  `csv:"stop_name"`
	Desc               string  `csv:"stop_desc"`
	Lat                float64 `csv:"stop_lat" validate:"gte=-90,lte=90"`
	Lon                float64 `csv:"stop_lon" validate:"gte=-180,lte=180"`
	URL                string  `csv:"stop_url"`
	LocationType       int8    `csv:"location_type" validate:"gte=0,lte=4"`
	ParentStation      string  `csv:"parent_station"`
	WheelchairBoarding int8    `csv:"wheelchair_boarding" validate:"gte=0,lte=2"`
	PlatformCode       string  `csv:"platform_code"`
}

// Generic nodes and boarding areas may go without name and
// coordinates. Everything else needs both.
func (s *stopRow) located() bool {
	t := model.LocationType(s.LocationType)
	return t != model.LocationTypeGenericNode && t != model.LocationTypeBoardingArea
}

// LoadStops reads stops.txt. Every parent_station must refer to a
// stop in the same file.
func (l *Loader) LoadStops(data io.Reader) error {
	parents := map[string]string{}

	rows, err := eachRow(data, func(s *stopRow) error {
		if l.stops[s.ID] {
			return fmt.Errorf("repeated stop_id '%s'", s.ID)
		}
		l.stops[s.ID] = true

		if s.located() {
			if s.Name == "" {
				return fmt.Errorf("empty stop_name for stop_id '%s'", s.ID)
			}
			if s.Lat == 0 || s.Lon == 0 {
				return fmt.Errorf("empty stop_lat or stop_lon for stop_id '%s'", s.ID)
			}
		}

		if s.ParentStation != "" {
			parents[s.ID] = s.ParentStation
		}

		return l.writer.WriteStop(&model.Stop{
			ID:                 s.ID,
			Code:               s.Code,
			Name:               s.Name,
			Desc:               s.Desc,
			Lat:                s.Lat,
			Lon:                s.Lon,
			URL:                s.URL,
			LocationType:       model.LocationType(s.LocationType),
			ParentStation:      s.ParentStation,
			PlatformCode:       s.PlatformCode,
			WheelchairBoarding: model.WheelchairBoarding(s.WheelchairBoarding),
		})
	})
	if err != nil {
		return err
	}

	for stopID, parentID := range parents {
		if !l.stops[parentID] {
			return fmt.Errorf("stop '%s' references unknown parent_station '%s'", stopID, parentID)
		}
	}

	l.logger.Debug("loaded stops", "count", rows, "with_parent", len(parents))
	return nil
}
