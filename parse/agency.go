package parse

import (
	"fmt"
	"io"

	"github.com/camsys/onebusaway-application-modules-sub000/model"
)

type agencyRow struct {
	ID       string `csv:"agency_id"`
	Name     string `csv:"agency_name" validate:"required"`
	URL      string `csv:"agency_url" validate:"required"`
	Timezone string `csv:"agency_timezone" validate:"required,timezone"`
	Lang     string `csv:"agency_lang"`
	Phone    string `csv:"agency_phone"`
}

// LoadAgencies reads agency.txt. All agencies of a bundle share one
// timezone, which becomes the bundle's.
func (l *Loader) LoadAgencies(data io.Reader) error {
	tz := ""

	rows, err := eachRow(data, func(a *agencyRow) error {
		if tz == "" {
			tz = a.Timezone
		} else if a.Timezone != tz {
			return fmt.Errorf("agency_timezone '%s' differs from '%s'", a.Timezone, tz)
		}

		if l.agencies[a.ID] {
			return fmt.Errorf("duplicated agency_id '%s'", a.ID)
		}
		l.agencies[a.ID] = true

		return l.writer.WriteAgency(&model.Agency{
			ID:       a.ID,
			Name:     a.Name,
			URL:      a.URL,
			Timezone: a.Timezone,
		})
	})
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("no agency record found")
	}

	l.metadata.Timezone = tz
	l.logger.Debug("loaded agencies", "count", rows, "timezone", tz)
	return nil
}
