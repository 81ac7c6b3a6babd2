package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	transit "github.com/camsys/onebusaway-application-modules-sub000"
	"github.com/camsys/onebusaway-application-modules-sub000/config"
	"github.com/camsys/onebusaway-application-modules-sub000/storage"
)

var rootCmd = &cobra.Command{
	Use:          "transit",
	Short:        "Transit schedule and realtime matching tool",
	Long:         "Loads GTFS bundles into a schedule graph and matches GTFS-rt feeds against it",
	SilenceUsage: true,
}

var (
	configPath      string
	staticSource    string
	storageBackend  string
	logLevel        string
	staticHeaders   []string
	realtimeHeaders []string
	sharedHeaders   []string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "YAML config file")
	flags.StringVar(&staticSource, "static", "", "GTFS bundle URL or path (overrides config)")
	flags.StringVar(&storageBackend, "storage", "", "Storage backend: memory, sqlite or postgres (overrides config)")
	flags.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides config)")

	for _, h := range []struct {
		dst  *[]string
		name string
		what string
	}{
		{&staticHeaders, "static-header", "bundle downloads"},
		{&realtimeHeaders, "realtime-header", "GTFS-rt downloads"},
		{&sharedHeaders, "header", "all downloads"},
	} {
		flags.StringSliceVar(h.dst, h.name, nil, "Key:Value HTTP header for "+h.what+" (repeatable)")
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Parses "Key: Value" headers.
func parseHeaders(headers []string) (map[string]string, error) {
	parsed := make(map[string]string, len(headers))
	for _, header := range headers {
		key, value, ok := strings.Cut(header, ":")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("header '%s' is not Key:Value", header)
		}
		parsed[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return parsed, nil
}

// Merges config headers, flag headers and shared flag headers, in
// increasing order of precedence.
func mergeHeaders(base map[string]string, flags []string) (map[string]string, error) {
	merged := map[string]string{}
	for k, v := range base {
		merged[k] = v
	}

	specific, err := parseHeaders(flags)
	if err != nil {
		return nil, err
	}
	shared, err := parseHeaders(sharedHeaders)
	if err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}

	for k, v := range specific {
		merged[k] = v
	}
	for k, v := range shared {
		merged[k] = v
	}
	return merged, nil
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath, func(c *config.Config) {
		if staticSource != "" {
			c.Static.Source = staticSource
		}
		if storageBackend != "" {
			c.Static.Storage = storageBackend
		}
		if logLevel != "" {
			c.Log.Level = logLevel
		}
	})
}

func newLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()}))
}

func openStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.Static.Storage {
	case "memory":
		return storage.NewMemoryStorage(), nil
	case "postgres":
		return storage.NewPSQLStorage(cfg.Static.PostgresDSN, false)
	}
	return storage.NewSQLiteStorage(storage.SQLiteConfig{
		OnDisk:    cfg.Static.SQLiteDir != "",
		Directory: cfg.Static.SQLiteDir,
	})
}

func isURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// Creates a Manager and loads the configured bundle into it.
func loadManager(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*transit.Manager, error) {
	s, err := openStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	manager := transit.NewManager(s, logger)
	manager.StaticRefreshInterval = cfg.Static.RefreshInterval

	if !isURL(cfg.Static.Source) {
		body, err := os.ReadFile(cfg.Static.Source)
		if err != nil {
			return nil, fmt.Errorf("reading bundle: %w", err)
		}
		if _, err := manager.LoadStaticFile(cfg.Static.Source, body); err != nil {
			return nil, err
		}
		return manager, nil
	}

	headers, err := mergeHeaders(cfg.Static.Headers, staticHeaders)
	if err != nil {
		return nil, fmt.Errorf("invalid static header: %w", err)
	}

	if _, err := manager.LoadStatic(ctx, cfg.Static.Source, headers, time.Now()); err != nil {
		return nil, err
	}
	return manager, nil
}
