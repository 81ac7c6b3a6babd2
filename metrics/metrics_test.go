package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camsys/onebusaway-application-modules-sub000/matching"
)

func TestObserveCycle(t *testing.T) {
	c := NewCollector()

	c.ObserveCycle(&matching.Result{
		Total:          3,
		Records:        []*matching.Record{{VehicleID: "v1"}},
		Dropped:        map[matching.Reason]int{matching.ReasonUnmatchedTrip: 2},
		ActiveVehicles: 4,
		LastUpdate:     time.Unix(1700000000, 0),
	}, 10*time.Millisecond)
	c.ObserveCycle(&matching.Result{Skipped: true}, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Cycles))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.SkippedCycles))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.Entities))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Matched))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Dropped.WithLabelValues("unmatched_trip")))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.ActiveVehicles))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(c.LastUpdate))
}

func TestObservePublish(t *testing.T) {
	c := NewCollector()

	c.ObservePublish("nats", 5, nil)
	c.ObservePublish("nats", 0, errors.New("down"))
	c.ObservePublish("redis", 2, nil)

	assert.Equal(t, 5.0, testutil.ToFloat64(c.Published.WithLabelValues("nats")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.PublishErrs.WithLabelValues("nats")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Published.WithLabelValues("redis")))
}

func TestHandler(t *testing.T) {
	c := NewCollector()
	c.ObserveGraph(10, 20)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "graph_trips 10"))
	assert.True(t, strings.Contains(body, "graph_stops 20"))
}
