package transit

import (
	"context"
	"log/slog"
	"time"

	"github.com/camsys/onebusaway-application-modules-sub000/dynamic"
	"github.com/camsys/onebusaway-application-modules-sub000/fuzzy"
	"github.com/camsys/onebusaway-application-modules-sub000/matching"
	"github.com/camsys/onebusaway-application-modules-sub000/metrics"
	"github.com/camsys/onebusaway-application-modules-sub000/publish"
)

const DefaultCycleInterval = 30 * time.Second

// Service runs matching cycles against a live schedule: fetch the
// realtime feeds, match them, report and publish the result. The
// static bundle is refreshed and the fuzzy index rebuilt on their own
// schedules.
type Service struct {
	Manager      *Manager
	Source       *RealtimeSource
	Orchestrator *matching.Orchestrator

	// Optional.
	Fuzzy   *fuzzy.Matcher
	Dynamic *dynamic.Synthesizer
	Metrics *metrics.Collector
	Sinks   []publish.Sink

	CycleInterval time.Duration
	StaticHeaders map[string]string

	logger *slog.Logger
}

func NewService(manager *Manager, source *RealtimeSource, orchestrator *matching.Orchestrator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Manager:       manager,
		Source:        source,
		Orchestrator:  orchestrator,
		CycleInterval: DefaultCycleInterval,
		logger:        logger.With("component", "service"),
	}
}

// Runs one matching cycle.
func (s *Service) Cycle(ctx context.Context) *matching.Result {
	start := time.Now()

	rt := s.Source.Fetch(ctx)
	result := s.Orchestrator.ProcessFeed(ctx, rt)

	if s.Dynamic != nil {
		if n := s.Dynamic.Index().Sweep(); n > 0 {
			s.logger.Debug("expired synthesized blocks", "count", n)
		}
	}

	if s.Metrics != nil {
		s.Metrics.ObserveCycle(result, time.Since(start))
	}

	if result.Skipped || len(result.Records) == 0 {
		return result
	}

	for _, sink := range s.Sinks {
		err := sink.Publish(ctx, result)
		if err != nil {
			s.logger.Error("publishing", "sink", sink.Name(), "cycle", result.CycleID, "error", err)
		}
		if s.Metrics != nil {
			s.Metrics.ObservePublish(sink.Name(), len(result.Records), err)
		}
	}

	return result
}

// Runs cycles every CycleInterval until ctx is done. The first cycle
// runs immediately.
func (s *Service) Run(ctx context.Context) error {
	if s.Fuzzy != nil {
		go s.Fuzzy.Run(ctx)
	}
	s.observeGraph()

	interval := s.CycleInterval
	if interval <= 0 {
		interval = DefaultCycleInterval
	}
	cycles := time.NewTicker(interval)
	defer cycles.Stop()

	refreshInterval := s.Manager.StaticRefreshInterval
	if refreshInterval <= 0 {
		refreshInterval = DefaultStaticRefreshInterval
	}
	refresh := time.NewTicker(refreshInterval)
	defer refresh.Stop()

	s.Cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping")
			return nil
		case <-cycles.C:
			s.Cycle(ctx)
		case <-refresh.C:
			s.refreshStatic(ctx)
		}
	}
}

func (s *Service) refreshStatic(ctx context.Context) {
	before := s.Manager.Static()

	if err := s.Manager.Refresh(ctx, s.StaticHeaders); err != nil {
		s.logger.Error("refreshing static bundle", "error", err)
		return
	}

	if after := s.Manager.Static(); after != before {
		if s.Fuzzy != nil {
			s.Fuzzy.Reset()
		}
		s.observeGraph()
	}
}

func (s *Service) observeGraph() {
	if s.Metrics == nil {
		return
	}
	g := s.Manager.Graph()
	s.Metrics.ObserveGraph(len(g.Trips()), len(g.Stops()))
}

// Closes all sinks.
func (s *Service) Close() error {
	var first error
	for _, sink := range s.Sinks {
		if err := sink.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
