package calendar

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/camsys/onebusaway-application-modules-sub000/model"
	"github.com/camsys/onebusaway-application-modules-sub000/storage"
)

// Service answers which dates a service id runs on.
type Service interface {
	// Service date midnights, in the service id's timezone, on
	// which the service is active. Ascending.
	ActiveDates(id model.LocalizedServiceID) []time.Time

	// Whether all active ids of the activation run on the given
	// service date and none of the inactive ones do.
	IsActive(activation model.ServiceIDActivation, serviceDate time.Time) bool
}

// Upper bound on a calendar's date range.
const maxCalendarDays = 366 * 5

// Store holds precomputed active dates per service id.
type Store struct {
	mutex sync.RWMutex
	dates map[model.ID]map[string]bool
}

func NewStore() *Store {
	return &Store{dates: map[model.ID]map[string]bool{}}
}

// Builds a store from calendar.txt and calendar_dates.txt records.
// Service ids are qualified with agency.
func FromRecords(agency string, calendars []*model.Calendar, calendarDates []*model.CalendarDate) (*Store, error) {
	s := NewStore()

	for _, cal := range calendars {
		start, err := time.Parse(model.DateFormat, cal.StartDate)
		if err != nil {
			return nil, fmt.Errorf("service %s: invalid start date: %s", cal.ServiceID, cal.StartDate)
		}
		end, err := time.Parse(model.DateFormat, cal.EndDate)
		if err != nil {
			return nil, fmt.Errorf("service %s: invalid end date: %s", cal.ServiceID, cal.EndDate)
		}
		if end.Sub(start) > maxCalendarDays*24*time.Hour {
			return nil, fmt.Errorf("service %s: date range too long", cal.ServiceID)
		}

		id := model.NewID(agency, cal.ServiceID)
		s.ensure(id)
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			if cal.Weekday&(1<<d.Weekday()) == 0 {
				continue
			}
			s.dates[id][d.Format(model.DateFormat)] = true
		}
	}

	for _, cd := range calendarDates {
		if _, err := time.Parse(model.DateFormat, cd.Date); err != nil {
			return nil, fmt.Errorf("service %s: invalid date: %s", cd.ServiceID, cd.Date)
		}
		id := model.NewID(agency, cd.ServiceID)
		s.ensure(id)
		switch cd.ExceptionType {
		case model.ExceptionTypeAdded:
			s.dates[id][cd.Date] = true
		case model.ExceptionTypeRemoved:
			delete(s.dates[id], cd.Date)
		}
	}

	return s, nil
}

// Loads calendars from a stored feed.
func FromReader(agency string, reader storage.FeedReader) (*Store, error) {
	calendars, err := reader.Calendars()
	if err != nil {
		return nil, fmt.Errorf("getting calendars: %w", err)
	}
	calendarDates, err := reader.CalendarDates()
	if err != nil {
		return nil, fmt.Errorf("getting calendar dates: %w", err)
	}
	return FromRecords(agency, calendars, calendarDates)
}

func (s *Store) ensure(id model.ID) {
	if s.dates[id] == nil {
		s.dates[id] = map[string]bool{}
	}
}

// Marks a service id active on the given YYYYMMDD dates.
func (s *Store) Add(id model.ID, dates ...string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.ensure(id)
	for _, d := range dates {
		s.dates[id][d] = true
	}
}

// Replaces the contents of s with those of next, which must not be
// used afterwards.
func (s *Store) Swap(next *Store) {
	next.mutex.Lock()
	dates := next.dates
	next.dates = map[model.ID]map[string]bool{}
	next.mutex.Unlock()

	s.mutex.Lock()
	s.dates = dates
	s.mutex.Unlock()
}

func (s *Store) ServiceIDs() []model.ID {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	ids := make([]model.ID, 0, len(s.dates))
	for id := range s.dates {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return model.CompareIDs(ids[i], ids[j]) < 0 })
	return ids
}

func (s *Store) ActiveDates(id model.LocalizedServiceID) []time.Time {
	loc, err := model.Location(id.Timezone)
	if err != nil {
		return []time.Time{}
	}

	s.mutex.RLock()
	days := make([]string, 0, len(s.dates[id.ServiceID]))
	for d := range s.dates[id.ServiceID] {
		days = append(days, d)
	}
	s.mutex.RUnlock()

	sort.Strings(days)
	out := make([]time.Time, 0, len(days))
	for _, d := range days {
		serviceDate, err := model.ParseServiceDate(d, loc)
		if err != nil {
			continue
		}
		out = append(out, serviceDate)
	}
	return out
}

// Active on a YYYYMMDD date.
func (s *Store) IsActiveOn(id model.ID, date string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.dates[id][date]
}

func (s *Store) IsActive(activation model.ServiceIDActivation, serviceDate time.Time) bool {
	if len(activation.Active) == 0 {
		return false
	}
	date := model.DateString(serviceDate)
	for _, id := range activation.Active {
		if !s.IsActiveOn(id.ServiceID, date) {
			return false
		}
	}
	for _, id := range activation.Inactive {
		if s.IsActiveOn(id.ServiceID, date) {
			return false
		}
	}
	return true
}

// Service ids active on a YYYYMMDD date.
func (s *Store) ActiveServices(date string) []model.ID {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	ids := []model.ID{}
	for id, dates := range s.dates {
		if dates[date] {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return model.CompareIDs(ids[i], ids[j]) < 0 })
	return ids
}
