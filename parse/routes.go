package parse

import (
	"fmt"
	"io"

	"github.com/camsys/onebusaway-application-modules-sub000/model"
)

type routeRow struct {
	ID        string `csv:"route_id" validate:"required"`
	AgencyID  string `csv:"agency_id"`
	ShortName string `csv:"route_short_name" validate:"required_without=LongName"`
	LongName  string `csv:"route_long_name"`
	Desc      string `csv:"route_desc"`
	Type      *int   `csv:"route_type,omitempty" validate:"required"`
	URL       string `csv:"route_url"`
	Color     string `csv:"route_color" validate:"omitempty,color"`
	TextColor string `csv:"route_text_color" validate:"omitempty,color"`
}

var routeTypes = map[model.RouteType]bool{
	model.RouteTypeTram:       true,
	model.RouteTypeSubway:     true,
	model.RouteTypeRail:       true,
	model.RouteTypeBus:        true,
	model.RouteTypeFerry:      true,
	model.RouteTypeCable:      true,
	model.RouteTypeAerial:     true,
	model.RouteTypeFunicular:  true,
	model.RouteTypeTrolleybus: true,
	model.RouteTypeMonorail:   true,
}

// LoadRoutes reads routes.txt. Unset colors get the GTFS defaults.
func (l *Loader) LoadRoutes(data io.Reader) error {
	rows, err := eachRow(data, func(r *routeRow) error {
		if l.routes[r.ID] {
			return fmt.Errorf("repeated route_id '%s'", r.ID)
		}
		l.routes[r.ID] = true

		if r.AgencyID == "" && len(l.agencies) > 1 {
			return fmt.Errorf("route_id '%s' has no agency_id", r.ID)
		}
		if r.AgencyID != "" && !l.agencies[r.AgencyID] {
			return fmt.Errorf("unknown agency_id '%s'", r.AgencyID)
		}

		routeType := model.RouteType(*r.Type)
		if !routeTypes[routeType] {
			return fmt.Errorf("route_id '%s' has invalid route_type %d", r.ID, routeType)
		}

		route := &model.Route{
			ID:        r.ID,
			AgencyID:  r.AgencyID,
			ShortName: r.ShortName,
			LongName:  r.LongName,
			Desc:      r.Desc,
			Type:      routeType,
			URL:       r.URL,
			Color:     r.Color,
			TextColor: r.TextColor,
		}
		if route.Color == "" {
			route.Color = "FFFFFF"
		}
		if route.TextColor == "" {
			route.TextColor = "000000"
		}

		return l.writer.WriteRoute(route)
	})
	if err != nil {
		return err
	}

	l.logger.Debug("loaded routes", "count", rows)
	return nil
}
