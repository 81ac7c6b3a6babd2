// Package metrics exposes matching diagnostics to Prometheus.
package metrics

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/camsys/onebusaway-application-modules-sub000/matching"
)

type Collector struct {
	reg *prometheus.Registry

	Cycles        prometheus.Counter
	SkippedCycles prometheus.Counter
	Entities      prometheus.Counter
	Matched       prometheus.Counter
	Dropped       *prometheus.CounterVec // reason label

	ActiveVehicles prometheus.Gauge
	LastUpdate     prometheus.Gauge // unix seconds of the feed header

	CycleDuration prometheus.Histogram

	Published   *prometheus.CounterVec // sink label
	PublishErrs *prometheus.CounterVec // sink label

	GraphTrips prometheus.Gauge
	GraphStops prometheus.Gauge
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matching_cycles_total",
			Help: "Total matching cycles run.",
		}),
		SkippedCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matching_cycles_skipped_total",
			Help: "Cycles skipped because the schedule wasn't ready.",
		}),
		Entities: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matching_entities_total",
			Help: "Total realtime entities considered.",
		}),
		Matched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matching_records_total",
			Help: "Total matched records emitted.",
		}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "matching_dropped_total",
			Help: "Entities that produced no record, by reason.",
		}, []string{"reason"}),
		ActiveVehicles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "matching_active_vehicles",
			Help: "Vehicles tracked after the last stale sweep.",
		}),
		LastUpdate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "matching_feed_timestamp_seconds",
			Help: "Header timestamp of the last realtime feed.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "matching_cycle_duration_seconds",
			Help:    "Duration of fetching and matching a feed.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "publish_records_total",
			Help: "Records published, by sink.",
		}, []string{"sink"}),
		PublishErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "publish_errors_total",
			Help: "Publish errors, by sink.",
		}, []string{"sink"}),
		GraphTrips: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "graph_trips",
			Help: "Trips in the live schedule graph.",
		}),
		GraphStops: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "graph_stops",
			Help: "Stops in the live schedule graph.",
		}),
	}

	reg.MustRegister(
		c.Cycles, c.SkippedCycles, c.Entities, c.Matched, c.Dropped,
		c.ActiveVehicles, c.LastUpdate, c.CycleDuration,
		c.Published, c.PublishErrs, c.GraphTrips, c.GraphStops,
	)

	return c
}

// Records the outcome of a matching cycle.
func (c *Collector) ObserveCycle(result *matching.Result, elapsed time.Duration) {
	c.Cycles.Inc()
	if result.Skipped {
		c.SkippedCycles.Inc()
		return
	}

	c.Entities.Add(float64(result.Total))
	c.Matched.Add(float64(len(result.Records)))
	for reason, n := range result.Dropped {
		c.Dropped.WithLabelValues(string(reason)).Add(float64(n))
	}
	c.ActiveVehicles.Set(float64(result.ActiveVehicles))
	if !result.LastUpdate.IsZero() {
		c.LastUpdate.Set(float64(result.LastUpdate.Unix()))
	}
	c.CycleDuration.Observe(elapsed.Seconds())
}

func (c *Collector) ObservePublish(sink string, n int, err error) {
	if err != nil {
		c.PublishErrs.WithLabelValues(sink).Inc()
		return
	}
	c.Published.WithLabelValues(sink).Add(float64(n))
}

func (c *Collector) ObserveGraph(trips, stops int) {
	c.GraphTrips.Set(float64(trips))
	c.GraphStops.Set(float64(stops))
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, logger *slog.Logger) *http.Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "metrics")

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()
	logger.Info("metrics listening", "addr", addr)
	return srv
}
