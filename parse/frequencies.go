package parse

import (
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/camsys/onebusaway-application-modules-sub000/model"
)

type frequencyRow struct {
	TripID      string `csv:"trip_id" validate:"required"`
	StartTime   string `csv:"start_time" validate:"required"`
	EndTime     string `csv:"end_time" validate:"required"`
	HeadwaySecs int    `csv:"headway_secs" validate:"gt=0"`
	ExactTimes  int8   `csv:"exact_times" validate:"oneof=0 1"`
}

// LoadFrequencies reads frequencies.txt.
func (l *Loader) LoadFrequencies(data io.Reader) error {
	rows, err := eachRow(data, func(f *frequencyRow) error {
		if !l.trips[f.TripID] {
			return fmt.Errorf("unknown trip_id '%s'", f.TripID)
		}

		start, err := clockTime(f.StartTime)
		if err != nil {
			return errors.Wrap(err, "start_time")
		}
		end, err := clockTime(f.EndTime)
		if err != nil {
			return errors.Wrap(err, "end_time")
		}
		if end <= start {
			return fmt.Errorf("end_time not after start_time for trip_id '%s'", f.TripID)
		}

		return l.writer.WriteFrequency(&model.Frequency{
			TripID:      f.TripID,
			StartTime:   start,
			EndTime:     end,
			HeadwaySecs: f.HeadwaySecs,
			ExactTimes:  f.ExactTimes,
		})
	})
	if err != nil {
		return err
	}

	l.logger.Debug("loaded frequencies", "count", rows)
	return nil
}
