package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	transit "github.com/camsys/onebusaway-application-modules-sub000"
	"github.com/camsys/onebusaway-application-modules-sub000/downloader"
	"github.com/camsys/onebusaway-application-modules-sub000/parse"
	"github.com/camsys/onebusaway-application-modules-sub000/publish"
)

var matchCmd = &cobra.Command{
	Use:   "match [feed.pb...]",
	Short: "Matches GTFS-rt feeds against the schedule once",
	Long: "Matches the given GTFS-rt files, or the configured realtime URLs " +
		"if none are given, and prints one JSON record per matched vehicle",
	RunE: match,
}

var (
	cachePath string
	cacheTTL  time.Duration
)

func init() {
	matchCmd.Flags().StringVarP(&cachePath, "cache", "", "", "Cache realtime downloads in this file")
	matchCmd.Flags().DurationVarP(&cacheTTL, "cache-ttl", "", transit.DefaultRealtimeTTL, "How long cached realtime downloads are used")
	rootCmd.AddCommand(matchCmd)
}

func match(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

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
	if p.Fuzzy != nil {
		p.Fuzzy.Rebuild()
	}

	var rt *parse.Realtime
	if len(args) > 0 {
		feeds := make([][]byte, 0, len(args))
		for _, path := range args {
			buf, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			feeds = append(feeds, buf)
		}
		rt, err = parse.ParseRealtime(ctx, feeds)
		if err != nil {
			return fmt.Errorf("parsing realtime: %w", err)
		}
	} else {
		urls := cfg.RealtimeURLs()
		if len(urls) == 0 {
			return fmt.Errorf("no realtime feeds given or configured")
		}

		headers, err := mergeHeaders(cfg.Realtime.Headers, realtimeHeaders)
		if err != nil {
			return fmt.Errorf("invalid realtime header: %w", err)
		}

		source := transit.NewRealtimeSource(urls, headers, logger)
		source.Timeout = cfg.Realtime.Timeout
		source.MaxSize = cfg.Realtime.MaxSize
		if cachePath != "" {
			fs, err := downloader.NewFilesystem(cachePath, logger)
			if err != nil {
				return fmt.Errorf("creating realtime cache: %w", err)
			}
			source.Downloader = fs
			source.CacheTTL = cacheTTL
		}

		rt = source.Fetch(ctx)
	}

	result := p.Orchestrator.ProcessFeed(ctx, rt)

	enc := json.NewEncoder(os.Stdout)
	for _, record := range result.Records {
		if err := enc.Encode(publish.NewMessage(result.CycleID, record)); err != nil {
			return err
		}
	}

	logger.Info(
		"matched",
		"entities", result.Total,
		"records", len(result.Records),
		"unmatched_trips", result.UnmatchedTripIDs,
		"dropped", result.Dropped,
	)

	return nil
}
