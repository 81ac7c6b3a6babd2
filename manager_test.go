package transit

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camsys/onebusaway-application-modules-sub000/model"
	"github.com/camsys/onebusaway-application-modules-sub000/storage"
)

// Serves zipped bundles by path and records each request.
type bundleServer struct {
	*httptest.Server

	mu       sync.Mutex
	bundles  map[string][]byte
	requests []string
}

func newBundleServer(t *testing.T) *bundleServer {
	b := &bundleServer{bundles: map[string][]byte{}}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.requests = append(b.requests, r.URL.Path)
		body, ok := b.bundles[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(body)
	}))
	t.Cleanup(b.Close)
	return b
}

// Serves files zipped at path, and returns its URL.
func (b *bundleServer) serve(t *testing.T, path string, files map[string][]string) string {
	body := zipFiles(t, files)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bundles[path] = body
	return b.URL + path
}

func (b *bundleServer) hits() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string{}, b.requests...)
}

func validFeed() map[string][]string {
	return map[string][]string{
		"agency.txt": {
			"agency_id,agency_timezone,agency_name,agency_url",
			"fa,America/Los_Angeles,Fake Agency,http://agency/index.html",
		},
		"routes.txt": {
			"route_id,route_short_name,route_type",
			"r,R,3",
		},
		"calendar.txt": {
			"service_id,monday,start_date,end_date",
			"mondays,1,20190101,20190301",
		},
		"calendar_dates.txt": {
			"service_id,date,exception_type",
			"mondays,20190302,1",
		},
		"trips.txt": {
			"route_id,service_id,trip_id",
			"r,mondays,t",
		},
		"stops.txt": {
			"stop_id,stop_name,stop_lat,stop_lon",
			"s,S,12,34",
			"s9,S9,12.01,34",
		},
		"stop_times.txt": {
			"trip_id,arrival_time,departure_time,stop_id,stop_sequence",
			"t,12:00:00,12:00:00,s,1",
			"t,12:10:00,12:10:00,s9,2",
		},
	}
}

func zipFiles(t *testing.T, files map[string][]string) []byte {
	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)
	for name, lines := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(f, strings.Join(lines, "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func fa(id string) model.ID {
	return model.NewID("fa", id)
}

var feb1 = time.Date(2019, 2, 1, 0, 0, 0, 0, time.UTC)

func TestManagerLoadSingleFeed(t *testing.T) {
	server := newBundleServer(t)
	url := server.serve(t, "/static.zip", validFeed())

	m := NewManager(storage.NewMemoryStorage(), nil)
	assert.False(t, m.Graph().Ready())
	assert.Nil(t, m.Static())

	s, err := m.LoadStatic(context.Background(), url, nil, feb1)
	require.NoError(t, err)
	assert.Equal(t, "fa", s.Agency)
	assert.Equal(t, s, m.Static())

	assert.True(t, m.Graph().Ready())
	stop, found := m.Graph().Stop(fa("s"))
	require.True(t, found)
	assert.Equal(t, "S", stop.Name)
	_, found = m.Graph().Trip(fa("t"))
	assert.True(t, found)

	assert.True(t, m.Calendar().IsActiveOn(fa("mondays"), "20190204"))
	assert.True(t, m.Calendar().IsActiveOn(fa("mondays"), "20190302"))
	assert.False(t, m.Calendar().IsActiveOn(fa("mondays"), "20190205"))

	// Second load is served from storage
	_, err = m.LoadStatic(context.Background(), url, nil, feb1)
	require.NoError(t, err)
	assert.Equal(t, []string{"/static.zip"}, server.hits())
}

func TestManagerLoadMultipleURLs(t *testing.T) {
	server := newBundleServer(t)

	// Same bundle with stop s renamed to s2
	files := validFeed()
	files["stops.txt"][1] = "s2,S2,12,34"
	files["stop_times.txt"][1] = "t,12:00:00,12:00:00,s2,1"
	url1 := server.serve(t, "/static1.zip", validFeed())
	url2 := server.serve(t, "/static2.zip", files)

	s := storage.NewMemoryStorage()
	m := NewManager(s, nil)

	_, err := m.LoadStatic(context.Background(), url1, nil, feb1)
	require.NoError(t, err)
	_, found := m.Graph().Stop(fa("s"))
	assert.True(t, found)

	_, err = m.LoadStatic(context.Background(), url2, nil, feb1)
	require.NoError(t, err)
	_, found = m.Graph().Stop(fa("s"))
	assert.False(t, found)
	_, found = m.Graph().Stop(fa("s2"))
	assert.True(t, found)

	feeds, err := s.ListFeeds(storage.ListFeedsFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, len(feeds))
}

func TestManagerSameDataOnTwoURLs(t *testing.T) {
	server := newBundleServer(t)
	urlA := server.serve(t, "/a.zip", validFeed())
	urlB := server.serve(t, "/b.zip", validFeed())

	s := storage.NewMemoryStorage()
	m := NewManager(s, nil)

	s1, err := m.LoadStatic(context.Background(), urlA, nil, feb1)
	require.NoError(t, err)
	s2, err := m.LoadStatic(context.Background(), urlB, nil, feb1)
	require.NoError(t, err)

	assert.Equal(t, s1.Metadata.Hash, s2.Metadata.Hash)
	assert.Equal(t, urlB, s2.Metadata.URL)

	feeds, err := s.ListFeeds(storage.ListFeedsFilter{Hash: s1.Metadata.Hash})
	require.NoError(t, err)
	assert.Equal(t, 2, len(feeds))
}

// Broken bundles are neither stored nor swapped in, and a working
// graph survives a broken refresh.
func TestManagerBrokenData(t *testing.T) {
	server := newBundleServer(t)
	broken := map[string][]string{"parse": {"fail"}}
	url := server.serve(t, "/static.zip", broken)

	s, err := storage.NewSQLiteStorage()
	require.NoError(t, err)
	m := NewManager(s, nil)
	now := feb1
	m.TimeNow = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		_, err = m.LoadStatic(context.Background(), url, nil, now)
		require.Error(t, err)
	}
	assert.Equal(t, []string{"/static.zip", "/static.zip"}, server.hits())

	feeds, err := s.ListFeeds(storage.ListFeedsFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, len(feeds))
	assert.False(t, m.Graph().Ready())

	server.serve(t, "/static.zip", validFeed())
	_, err = m.LoadStatic(context.Background(), url, nil, now)
	require.NoError(t, err)
	_, found := m.Graph().Stop(fa("s"))
	assert.True(t, found)

	feeds, err = s.ListFeeds(storage.ListFeedsFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, len(feeds))

	now = now.Add(DefaultStaticRefreshInterval + time.Minute)
	server.serve(t, "/static.zip", broken)
	require.Error(t, m.Refresh(context.Background(), nil))
	_, found = m.Graph().Stop(fa("s"))
	assert.True(t, found)
}

func TestManagerRefresh(t *testing.T) {
	server := newBundleServer(t)
	url := server.serve(t, "/static.zip", validFeed())

	m := NewManager(storage.NewMemoryStorage(), nil)
	now := feb1
	m.TimeNow = func() time.Time { return now }

	assert.True(t, errors.Is(m.Refresh(context.Background(), nil), ErrNoActiveFeed))

	first, err := m.LoadStatic(context.Background(), url, nil, now)
	require.NoError(t, err)
	g := m.Graph()

	for _, step := range []struct {
		advance  time.Duration
		stopName string
		requests int
		same     bool
	}{
		// Too soon to check
		{time.Hour, "", 1, true},
		// Checked, but unchanged
		{DefaultStaticRefreshInterval, "", 2, true},
		// Checked and changed
		{DefaultStaticRefreshInterval + time.Minute, "Renamed", 3, false},
	} {
		if step.stopName != "" {
			files := validFeed()
			files["stops.txt"][1] = "s," + step.stopName + ",12,34"
			server.serve(t, "/static.zip", files)
		}
		now = now.Add(step.advance)
		require.NoError(t, m.Refresh(context.Background(), nil))
		assert.Equal(t, step.requests, len(server.hits()))
		if step.same {
			assert.Equal(t, first, m.Static())
		} else {
			assert.NotEqual(t, first, m.Static())
		}
	}

	// Swapped into the graph handed out earlier
	assert.Equal(t, g, m.Graph())
	stop, found := g.Stop(fa("s"))
	require.True(t, found)
	assert.Equal(t, "Renamed", stop.Name)
}

func TestManagerNoActiveFeed(t *testing.T) {
	server := newBundleServer(t)
	url := server.serve(t, "/static.zip", validFeed())

	m := NewManager(storage.NewMemoryStorage(), nil)

	_, err := m.LoadStatic(context.Background(), url, nil, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.True(t, errors.Is(err, ErrNoActiveFeed))
	assert.False(t, m.Graph().Ready())
}

// The calendar range is checked in the agency's timezone.
func TestManagerRespectTimezones(t *testing.T) {
	files := validFeed()
	delete(files, "calendar_dates.txt")
	server := newBundleServer(t)
	url := server.serve(t, "/static.zip", files)

	for _, tc := range []struct {
		when   time.Time
		active bool
	}{
		// March 2 in UTC, March 1 in Los Angeles
		{time.Date(2019, 3, 2, 5, 0, 0, 0, time.UTC), true},
		{time.Date(2019, 3, 2, 9, 0, 0, 0, time.UTC), false},
	} {
		m := NewManager(storage.NewMemoryStorage(), nil)
		_, err := m.LoadStatic(context.Background(), url, nil, tc.when)
		if tc.active {
			assert.NoError(t, err, tc.when)
		} else {
			assert.True(t, errors.Is(err, ErrNoActiveFeed), tc.when)
		}
	}
}

func TestManagerLoadStaticFile(t *testing.T) {
	m := NewManager(storage.NewMemoryStorage(), nil)

	s, err := m.LoadStaticFile("bundle.zip", zipFiles(t, validFeed()))
	require.NoError(t, err)
	assert.Equal(t, "bundle.zip", s.Metadata.URL)
	assert.NotEmpty(t, s.Metadata.Hash)
	assert.True(t, m.Graph().Ready())

	_, err = m.LoadStaticFile("broken.zip", []byte("not a zip"))
	assert.Error(t, err)
}
