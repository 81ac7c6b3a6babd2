package parse

import (
	"fmt"
	"io"
	"time"

	"github.com/camsys/onebusaway-application-modules-sub000/model"
)

type calendarRow struct {
	ServiceID string `csv:"service_id" validate:"required"`
	StartDate string `csv:"start_date" validate:"datetime=20060102"`
	EndDate   string `csv:"end_date" validate:"datetime=20060102"`
	Monday    int8   `csv:"monday" validate:"oneof=0 1"`
	Tuesday   int8   `csv:"tuesday" validate:"oneof=0 1"`
	Wednesday int8   `csv:"wednesday" validate:"oneof=0 1"`
	Thursday  int8   `csv:"thursday" validate:"oneof=0 1"`
	Friday    int8   `csv:"friday" validate:"oneof=0 1"`
	Saturday  int8   `csv:"saturday" validate:"oneof=0 1"`
	Sunday    int8   `csv:"sunday" validate:"oneof=0 1"`
}

// Bitmask of active days, indexed by time.Weekday.
func (c *calendarRow) weekdays() int8 {
	var mask int8
	for day, on := range map[time.Weekday]int8{
		time.Sunday:    c.Sunday,
		time.Monday:    c.Monday,
		time.Tuesday:   c.Tuesday,
		time.Wednesday: c.Wednesday,
		time.Thursday:  c.Thursday,
		time.Friday:    c.Friday,
		time.Saturday:  c.Saturday,
	} {
		if on == 1 {
			mask |= 1 << day
		}
	}
	return mask
}

type calendarDateRow struct {
	ServiceID     string `csv:"service_id" validate:"required"`
	Date          string `csv:"date" validate:"datetime=20060102"`
	ExceptionType int8   `csv:"exception_type" validate:"oneof=1 2"`
}

// LoadCalendar reads calendar.txt.
func (l *Loader) LoadCalendar(data io.Reader) error {
	seen := map[string]bool{}

	rows, err := eachRow(data, func(c *calendarRow) error {
		if seen[c.ServiceID] {
			return fmt.Errorf("repeated service_id '%s'", c.ServiceID)
		}
		seen[c.ServiceID] = true
		l.services[c.ServiceID] = true

		if c.EndDate < c.StartDate {
			return fmt.Errorf("service_id '%s' ends before it starts", c.ServiceID)
		}
		l.widenCalendar(c.StartDate, c.EndDate)

		return l.writer.WriteCalendar(&model.Calendar{
			ServiceID: c.ServiceID,
			StartDate: c.StartDate,
			EndDate:   c.EndDate,
			Weekday:   c.weekdays(),
		})
	})
	if err != nil {
		return err
	}

	l.logger.Debug("loaded calendar", "count", rows)
	return nil
}

// LoadCalendarDates reads calendar_dates.txt. Service ids may appear
// here without a calendar.txt entry.
func (l *Loader) LoadCalendarDates(data io.Reader) error {
	seen := map[string]bool{}

	rows, err := eachRow(data, func(cd *calendarDateRow) error {
		key := cd.ServiceID + "@" + cd.Date
		if seen[key] {
			return fmt.Errorf("duplicate date '%s' for service_id '%s'", cd.Date, cd.ServiceID)
		}
		seen[key] = true
		l.services[cd.ServiceID] = true

		l.widenCalendar(cd.Date, cd.Date)

		return l.writer.WriteCalendarDate(&model.CalendarDate{
			ServiceID:     cd.ServiceID,
			Date:          cd.Date,
			ExceptionType: cd.ExceptionType,
		})
	})
	if err != nil {
		return err
	}

	l.logger.Debug("loaded calendar dates", "count", rows)
	return nil
}
