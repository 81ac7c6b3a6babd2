package storage

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/camsys/onebusaway-application-modules-sub000/model"
)

// In memory implementation of Storage below

type memoryMetadataKey struct {
	URL  string
	Hash string
}

type MemoryStorage struct {
	mutex    sync.Mutex
	Feeds    map[string]*MemoryStorageFeed
	Metadata map[memoryMetadataKey]*FeedMetadata
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		Feeds:    map[string]*MemoryStorageFeed{},
		Metadata: map[memoryMetadataKey]*FeedMetadata{},
	}
}

func (s *MemoryStorage) ListFeeds(filter ListFeedsFilter) ([]*FeedMetadata, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	feeds := []*FeedMetadata{}
	for _, feed := range s.Metadata {
		if filter.URL != "" && feed.URL != filter.URL {
			continue
		}
		if filter.Hash != "" && feed.Hash != filter.Hash {
			continue
		}
		f := *feed
		feeds = append(feeds, &f)
	}

	sort.Slice(feeds, func(i, j int) bool {
		return feeds[i].RetrievedAt.After(feeds[j].RetrievedAt)
	})

	return feeds, nil
}

func (s *MemoryStorage) WriteFeedMetadata(metadata *FeedMetadata) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	m := *metadata
	s.Metadata[memoryMetadataKey{metadata.URL, metadata.Hash}] = &m
	return nil
}

func (s *MemoryStorage) DeleteFeedMetadata(url string, hash string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.Metadata, memoryMetadataKey{url, hash})
	return nil
}

func (s *MemoryStorage) GetReader(feed string) (FeedReader, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	f, found := s.Feeds[feed]
	if !found {
		return nil, fmt.Errorf("feed %s does not exist", feed)
	}
	return f, nil
}

func (s *MemoryStorage) GetWriter(feed string) (FeedWriter, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	f := &MemoryStorageFeed{}
	s.Feeds[feed] = f
	return f, nil
}

// Records of a single feed. Serves as both reader and writer.
type MemoryStorageFeed struct {
	agencies      []*model.Agency
	stops         []*model.Stop
	routes        []*model.Route
	trips         []*model.Trip
	calendars     []*model.Calendar
	calendarDates []*model.CalendarDate
	stopTimes     []*model.StopTime
	shapePoints   []*model.ShapePoint
	frequencies   []*model.Frequency
}

func (f *MemoryStorageFeed) WriteAgency(agency *model.Agency) error {
	a := *agency
	f.agencies = append(f.agencies, &a)
	return nil
}

func (f *MemoryStorageFeed) WriteStop(stop *model.Stop) error {
	s := *stop
	f.stops = append(f.stops, &s)
	return nil
}

func (f *MemoryStorageFeed) WriteRoute(route *model.Route) error {
	r := *route
	f.routes = append(f.routes, &r)
	return nil
}

func (f *MemoryStorageFeed) BeginTrips() error { return nil }

func (f *MemoryStorageFeed) WriteTrip(trip *model.Trip) error {
	t := *trip
	f.trips = append(f.trips, &t)
	return nil
}

func (f *MemoryStorageFeed) EndTrips() error { return nil }

func (f *MemoryStorageFeed) WriteCalendar(cal *model.Calendar) error {
	c := *cal
	f.calendars = append(f.calendars, &c)
	return nil
}

func (f *MemoryStorageFeed) WriteCalendarDate(caldate *model.CalendarDate) error {
	cd := *caldate
	f.calendarDates = append(f.calendarDates, &cd)
	return nil
}

func (f *MemoryStorageFeed) BeginStopTimes() error { return nil }

func (f *MemoryStorageFeed) WriteStopTime(stopTime *model.StopTime) error {
	st := *stopTime
	f.stopTimes = append(f.stopTimes, &st)
	return nil
}

func (f *MemoryStorageFeed) EndStopTimes() error { return nil }

func (f *MemoryStorageFeed) BeginShapes() error { return nil }

func (f *MemoryStorageFeed) WriteShapePoint(point *model.ShapePoint) error {
	p := *point
	f.shapePoints = append(f.shapePoints, &p)
	return nil
}

func (f *MemoryStorageFeed) EndShapes() error { return nil }

func (f *MemoryStorageFeed) WriteFrequency(frequency *model.Frequency) error {
	fr := *frequency
	f.frequencies = append(f.frequencies, &fr)
	return nil
}

func (f *MemoryStorageFeed) Close() error {
	sort.SliceStable(f.stopTimes, func(i, j int) bool {
		if f.stopTimes[i].TripID != f.stopTimes[j].TripID {
			return f.stopTimes[i].TripID < f.stopTimes[j].TripID
		}
		return f.stopTimes[i].StopSequence < f.stopTimes[j].StopSequence
	})
	sort.SliceStable(f.shapePoints, func(i, j int) bool {
		if f.shapePoints[i].ShapeID != f.shapePoints[j].ShapeID {
			return f.shapePoints[i].ShapeID < f.shapePoints[j].ShapeID
		}
		return f.shapePoints[i].Sequence < f.shapePoints[j].Sequence
	})
	return nil
}

func (f *MemoryStorageFeed) Agencies() ([]*model.Agency, error) {
	return f.agencies, nil
}

func (f *MemoryStorageFeed) Stops() ([]*model.Stop, error) {
	return f.stops, nil
}

func (f *MemoryStorageFeed) Routes() ([]*model.Route, error) {
	return f.routes, nil
}

func (f *MemoryStorageFeed) Trips() ([]*model.Trip, error) {
	return f.trips, nil
}

func (f *MemoryStorageFeed) StopTimes() ([]*model.StopTime, error) {
	return f.stopTimes, nil
}

func (f *MemoryStorageFeed) Calendars() ([]*model.Calendar, error) {
	return f.calendars, nil
}

func (f *MemoryStorageFeed) CalendarDates() ([]*model.CalendarDate, error) {
	return f.calendarDates, nil
}

func (f *MemoryStorageFeed) ShapePoints() ([]*model.ShapePoint, error) {
	return f.shapePoints, nil
}

func (f *MemoryStorageFeed) Frequencies() ([]*model.Frequency, error) {
	return f.frequencies, nil
}

func (f *MemoryStorageFeed) ActiveServices(date string) ([]string, error) {
	day, err := time.Parse("20060102", date)
	if err != nil {
		return nil, fmt.Errorf("invalid date: %s", date)
	}

	active := map[string]bool{}
	for _, cal := range f.calendars {
		if cal.StartDate <= date && date <= cal.EndDate && cal.Weekday&(1<<day.Weekday()) != 0 {
			active[cal.ServiceID] = true
		}
	}
	for _, cd := range f.calendarDates {
		if cd.Date != date {
			continue
		}
		switch cd.ExceptionType {
		case model.ExceptionTypeAdded:
			active[cd.ServiceID] = true
		case model.ExceptionTypeRemoved:
			delete(active, cd.ServiceID)
		}
	}

	services := make([]string, 0, len(active))
	for serviceID := range active {
		services = append(services, serviceID)
	}
	sort.Strings(services)
	return services, nil
}
