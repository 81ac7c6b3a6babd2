package main

import (
	"fmt"
	"log/slog"

	transit "github.com/camsys/onebusaway-application-modules-sub000"
	"github.com/camsys/onebusaway-application-modules-sub000/config"
	"github.com/camsys/onebusaway-application-modules-sub000/dynamic"
	"github.com/camsys/onebusaway-application-modules-sub000/fuzzy"
	"github.com/camsys/onebusaway-application-modules-sub000/matching"
	"github.com/camsys/onebusaway-application-modules-sub000/publish"
	"github.com/camsys/onebusaway-application-modules-sub000/servicedate"
)

type pipeline struct {
	Orchestrator *matching.Orchestrator
	Fuzzy        *fuzzy.Matcher
	Dynamic      *dynamic.Synthesizer
}

// Wires the matching components on top of a loaded Manager.
func newPipeline(cfg *config.Config, manager *transit.Manager, logger *slog.Logger) (*pipeline, error) {
	g := manager.Graph()

	resolver := servicedate.NewResolver(g, manager.Calendar(), logger)
	resolver.EarlyHour = cfg.Matching.EarlyHour
	resolver.LateHour = cfg.Matching.LateHour

	orchestrator := matching.New(matching.Config{
		Agencies:          cfg.Realtime.Agencies,
		MaxDeviation:      cfg.Matching.MaxDeviation,
		LocationTolerance: cfg.Matching.LocationTolerance,
		StaleAfter:        cfg.Matching.StaleAfter,
	}, g, resolver, logger)
	orchestrator.Projector = matching.NewScheduleProjector(g)

	p := &pipeline{Orchestrator: orchestrator}

	if cfg.Matching.Fuzzy.Enabled {
		m, err := fuzzy.New(fuzzy.Config{
			Agencies:        cfg.Matching.Fuzzy.Agencies,
			Patterns:        cfg.Matching.Fuzzy.Patterns,
			RefreshInterval: cfg.Matching.Fuzzy.RefreshInterval,
			AnchorOffset:    cfg.Matching.Fuzzy.AnchorOffset,
		}, g, manager.Calendar(), logger)
		if err != nil {
			return nil, fmt.Errorf("creating fuzzy matcher: %w", err)
		}
		p.Fuzzy = m
		orchestrator.Fuzzy = m
	}

	if cfg.Matching.Dynamic.Enabled {
		p.Dynamic = dynamic.NewSynthesizer(g, dynamic.NewIndex(cfg.Matching.Dynamic.BlockTTL), cfg.Matching.Dynamic.RouteTTL, logger)
		orchestrator.Dynamic = p.Dynamic
	}

	return p, nil
}

// Connects the configured sinks. Sinks connected before a failure
// are closed.
func newSinks(cfg *config.Config, logger *slog.Logger) ([]publish.Sink, error) {
	sinks := []publish.Sink{}

	if cfg.Publish.NATSURL != "" {
		s, err := publish.NewNATSSink(cfg.Publish.NATSURL, cfg.Publish.NATSPrefix, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to nats: %w", err)
		}
		sinks = append(sinks, s)
	}

	if cfg.Publish.RedisAddr != "" {
		s, err := publish.NewRedisSink(
			cfg.Publish.RedisAddr,
			cfg.Publish.RedisPassword,
			cfg.Publish.RedisDB,
			cfg.Publish.RedisTTL,
			logger,
		)
		if err != nil {
			for _, sink := range sinks {
				sink.Close()
			}
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		sinks = append(sinks, s)
	}

	return sinks, nil
}
