package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	transit "github.com/camsys/onebusaway-application-modules-sub000"
	"github.com/camsys/onebusaway-application-modules-sub000/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Continuously matches realtime feeds and publishes the results",
	Args:  cobra.NoArgs,
	RunE:  serve,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	manager, err := loadManager(ctx, cfg, logger)
	if err != nil {
		return err
	}

	p, err := newPipeline(cfg, manager, logger)
	if err != nil {
		return err
	}

	realtime, err := mergeHeaders(cfg.Realtime.Headers, realtimeHeaders)
	if err != nil {
		return err
	}
	source := transit.NewRealtimeSource(cfg.RealtimeURLs(), realtime, logger)
	source.Timeout = cfg.Realtime.Timeout
	source.MaxSize = cfg.Realtime.MaxSize

	sinks, err := newSinks(cfg, logger)
	if err != nil {
		return err
	}

	service := transit.NewService(manager, source, p.Orchestrator, logger)
	service.Fuzzy = p.Fuzzy
	service.Dynamic = p.Dynamic
	service.Sinks = sinks
	service.CycleInterval = cfg.Realtime.Interval
	service.StaticHeaders, err = mergeHeaders(cfg.Static.Headers, staticHeaders)
	if err != nil {
		return err
	}
	defer service.Close()

	if cfg.Metrics.Addr != "" {
		service.Metrics = metrics.NewCollector()
		srv := service.Metrics.Serve(cfg.Metrics.Addr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("serving", "feeds", cfg.RealtimeURLs(), "sinks", len(sinks), "interval", service.CycleInterval)

	return service.Run(ctx)
}
