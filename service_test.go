package transit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	p "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camsys/onebusaway-application-modules-sub000/matching"
	"github.com/camsys/onebusaway-application-modules-sub000/metrics"
	"github.com/camsys/onebusaway-application-modules-sub000/model"
	"github.com/camsys/onebusaway-application-modules-sub000/publish"
	"github.com/camsys/onebusaway-application-modules-sub000/servicedate"
	"github.com/camsys/onebusaway-application-modules-sub000/storage"
)

type recordingSink struct {
	name string
	err  error

	mutex   sync.Mutex
	results []*matching.Result
	closed  bool
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Publish(ctx context.Context, result *matching.Result) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.results = append(s.results, result)
	return s.err
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func (s *recordingSink) published() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.results)
}

// 2024-02-12 08:05 in New York
const serviceTestTimestamp = 1707743100

func serviceBundle() map[string][]string {
	return map[string][]string{
		"agency.txt": {
			"agency_id,agency_timezone,agency_name,agency_url",
			"a,America/New_York,Agency,http://example.com",
		},
		"calendar.txt": {
			"service_id,monday,tuesday,wednesday,thursday,friday,start_date,end_date",
			"wk,1,1,1,1,1,20240101,20241231",
		},
		"routes.txt": {"route_id,route_short_name,route_type", "r1,1,3"},
		"stops.txt": {
			"stop_id,stop_name,stop_lat,stop_lon",
			"s1,S1,40.70,-74",
			"s2,S2,40.72,-74",
			"s3,S3,40.74,-74",
		},
		"trips.txt": {
			"trip_id,route_id,service_id,block_id",
			"t1,r1,wk,b1",
			"t2,r1,wk,b1",
		},
		"stop_times.txt": {
			"trip_id,arrival_time,departure_time,stop_id,stop_sequence",
			"t1,08:00:00,08:00:00,s1,1",
			"t1,08:10:00,08:10:00,s2,2",
			"t1,08:20:00,08:20:00,s3,3",
			"t2,09:00:00,09:00:00,s3,1",
			"t2,09:10:00,09:10:00,s2,2",
			"t2,09:20:00,09:20:00,s1,3",
		},
	}
}

type serviceFixture struct {
	Service *Service
	Server  *feedServer
	Sink    *recordingSink
}

func newServiceFixture(t *testing.T, load bool) *serviceFixture {
	server := newFeedServer()
	t.Cleanup(server.Server.Close)

	server.Feeds["/feed"] = buildFeed(t, serviceTestTimestamp, []*p.FeedEntity{
		tripUpdateEntity("1", "t1", "v1", 60),
		tripUpdateEntity("2", "nope", "v2", 0),
	})

	now := time.Unix(serviceTestTimestamp, 0)

	m := NewManager(storage.NewMemoryStorage(), nil)
	m.TimeNow = func() time.Time { return now }
	if load {
		_, err := m.LoadStaticFile("bundle.zip", zipFiles(t, serviceBundle()))
		require.NoError(t, err)
	}

	resolver := servicedate.NewResolver(m.Graph(), m.Calendar(), nil)
	orchestrator := matching.New(matching.Config{}, m.Graph(), resolver, nil)
	orchestrator.TimeNow = func() time.Time { return now }

	sink := &recordingSink{name: "recording"}

	s := NewService(m, testSource(server.Server.URL+"/feed"), orchestrator, nil)
	s.Metrics = metrics.NewCollector()
	s.Sinks = []publish.Sink{sink}

	return &serviceFixture{Service: s, Server: server, Sink: sink}
}

func TestServiceCycle(t *testing.T) {
	f := newServiceFixture(t, true)

	result := f.Service.Cycle(context.Background())
	require.False(t, result.Skipped)
	assert.Equal(t, 2, result.Total)
	require.Equal(t, 1, len(result.Records))

	record := result.Records[0]
	assert.Equal(t, "v1", record.VehicleID)
	assert.Equal(t, model.NewID("a", "t1"), record.TripID)
	assert.Equal(t, model.NewID("a", "b1"), record.BlockID)
	assert.True(t, record.HasDeviation)
	assert.Equal(t, time.Minute, record.Deviation)
	assert.Equal(t, "20240212", model.DateString(record.ServiceDate))

	assert.Equal(t, []string{"nope"}, result.UnmatchedTripIDs)

	assert.Equal(t, 1, f.Sink.published())

	c := f.Service.Metrics
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Cycles))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Entities))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Matched))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Dropped.WithLabelValues(string(matching.ReasonUnmatchedTrip))))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Published.WithLabelValues("recording")))
	assert.Equal(t, float64(serviceTestTimestamp), testutil.ToFloat64(c.LastUpdate))

	// The same feed again yields nothing new, and nothing is
	// published.
	result = f.Service.Cycle(context.Background())
	assert.Equal(t, 0, len(result.Records))
	assert.Equal(t, 1, result.Dropped[matching.ReasonOutOfOrder])
	assert.Equal(t, 1, f.Sink.published())
}

func TestServiceCycleScheduleNotReady(t *testing.T) {
	f := newServiceFixture(t, false)

	result := f.Service.Cycle(context.Background())
	assert.True(t, result.Skipped)
	assert.Equal(t, 0, f.Sink.published())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.Service.Metrics.SkippedCycles))
}

func TestServiceCycleSinkFailure(t *testing.T) {
	f := newServiceFixture(t, true)

	failing := &recordingSink{name: "failing", err: errors.New("unavailable")}
	f.Service.Sinks = []publish.Sink{failing, f.Sink}

	result := f.Service.Cycle(context.Background())
	assert.Equal(t, 1, len(result.Records))

	// A failing sink doesn't keep the others from publishing
	assert.Equal(t, 1, failing.published())
	assert.Equal(t, 1, f.Sink.published())

	c := f.Service.Metrics
	assert.Equal(t, 1.0, testutil.ToFloat64(c.PublishErrs.WithLabelValues("failing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Published.WithLabelValues("recording")))
}

func TestServiceRun(t *testing.T) {
	f := newServiceFixture(t, true)
	f.Service.CycleInterval = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	require.NoError(t, f.Service.Run(ctx))

	// Several cycles ran, but the vehicle was only published once
	assert.Greater(t, f.Server.Requests["/feed"], 1)
	assert.Equal(t, 1, f.Sink.published())
	assert.Equal(t, 3.0, testutil.ToFloat64(f.Service.Metrics.GraphStops))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.Service.Metrics.GraphTrips))

	require.NoError(t, f.Service.Close())
	assert.True(t, f.Sink.closed)
}
