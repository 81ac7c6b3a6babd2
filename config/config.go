// Package config loads the service configuration from a YAML file,
// with overrides from the environment (and a .env file, if present).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	transit "github.com/camsys/onebusaway-application-modules-sub000"
	"github.com/camsys/onebusaway-application-modules-sub000/dynamic"
	"github.com/camsys/onebusaway-application-modules-sub000/fuzzy"
	"github.com/camsys/onebusaway-application-modules-sub000/matching"
	"github.com/camsys/onebusaway-application-modules-sub000/publish"
	"github.com/camsys/onebusaway-application-modules-sub000/servicedate"
)

const (
	DefaultStorage     = "sqlite"
	DefaultCycle       = 30 * time.Second
	DefaultMetricsAddr = ":9090"
	DefaultLogLevel    = "info"
)

type Config struct {
	Static   StaticConfig   `yaml:"static"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Matching MatchingConfig `yaml:"matching"`
	Publish  PublishConfig  `yaml:"publish"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

type StaticConfig struct {
	// URL or local path of the bundle.
	Source          string            `yaml:"source" validate:"required"`
	Headers         map[string]string `yaml:"headers"`
	RefreshInterval time.Duration     `yaml:"refreshInterval" validate:"gte=0"`
	Storage         string            `yaml:"storage" validate:"oneof=memory sqlite postgres"`

	// SQLite is kept in memory unless a directory is given.
	SQLiteDir   string `yaml:"sqliteDir"`
	PostgresDSN string `yaml:"postgresDSN" validate:"required_if=Storage postgres"`
}

type RealtimeConfig struct {
	TripUpdatesURL      string            `yaml:"tripUpdatesURL" validate:"omitempty,url"`
	VehiclePositionsURL string            `yaml:"vehiclePositionsURL" validate:"omitempty,url"`
	Headers             map[string]string `yaml:"headers"`
	Interval            time.Duration     `yaml:"interval" validate:"gte=0"`
	Timeout             time.Duration     `yaml:"timeout" validate:"gte=0"`
	MaxSize             int               `yaml:"maxSize" validate:"gte=0"`
	Agencies            []string          `yaml:"agencies"`
}

type MatchingConfig struct {
	MaxDeviation      time.Duration `yaml:"maxDeviation" validate:"gte=0"`
	LocationTolerance float64       `yaml:"locationTolerance" validate:"gte=0"`
	StaleAfter        time.Duration `yaml:"staleAfter" validate:"gte=0"`
	EarlyHour         int           `yaml:"earlyHour" validate:"gte=0,lte=23"`
	LateHour          int           `yaml:"lateHour" validate:"gte=0,lte=23"`
	Fuzzy             FuzzyConfig   `yaml:"fuzzy"`
	Dynamic           DynamicConfig `yaml:"dynamic"`
}

type FuzzyConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Agencies        []string      `yaml:"agencies"`
	Patterns        []string      `yaml:"patterns"`
	RefreshInterval time.Duration `yaml:"refreshInterval" validate:"gte=0"`
	AnchorOffset    time.Duration `yaml:"anchorOffset" validate:"gte=0"`
}

type DynamicConfig struct {
	Enabled  bool          `yaml:"enabled"`
	RouteTTL time.Duration `yaml:"routeTTL" validate:"gte=0"`
	BlockTTL time.Duration `yaml:"blockTTL" validate:"gte=0"`
}

type PublishConfig struct {
	NATSURL       string        `yaml:"natsURL"`
	NATSPrefix    string        `yaml:"natsPrefix"`
	RedisAddr     string        `yaml:"redisAddr" validate:"omitempty,hostname_port"`
	RedisPassword string        `yaml:"redisPassword"`
	RedisDB       int           `yaml:"redisDB" validate:"gte=0"`
	RedisTTL      time.Duration `yaml:"redisTTL" validate:"gte=0"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// A configuration with every default filled in.
func Default() *Config {
	return &Config{
		Static: StaticConfig{
			RefreshInterval: transit.DefaultStaticRefreshInterval,
			Storage:         DefaultStorage,
		},
		Realtime: RealtimeConfig{
			Interval: DefaultCycle,
			Timeout:  transit.DefaultRealtimeTimeout,
			MaxSize:  transit.DefaultRealtimeMaxSize,
		},
		Matching: MatchingConfig{
			MaxDeviation: matching.DefaultMaxDeviation,
			StaleAfter:   matching.DefaultStaleAfter,
			EarlyHour:    servicedate.DefaultEarlyHour,
			LateHour:     servicedate.DefaultLateHour,
			Fuzzy: FuzzyConfig{
				RefreshInterval: fuzzy.DefaultRefreshInterval,
				AnchorOffset:    fuzzy.DefaultAnchorOffset,
			},
			Dynamic: DynamicConfig{
				Enabled:  true,
				RouteTTL: dynamic.DefaultRouteTTL,
				BlockTTL: dynamic.DefaultBlockTTL,
			},
		},
		Publish: PublishConfig{
			NATSPrefix: publish.DefaultSubjectPrefix,
			RedisTTL:   publish.DefaultRedisTTL,
		},
		Metrics: MetricsConfig{Addr: DefaultMetricsAddr},
		Log:     LogConfig{Level: DefaultLogLevel},
	}
}

// Loads the YAML file at path over the defaults, applies environment
// overrides, then the given overrides, and validates the result. An
// empty path skips the file.
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decoding config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	for _, override := range overrides {
		override(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	for name, dest := range map[string]*string{
		"TRANSIT_STATIC_SOURCE":         &c.Static.Source,
		"TRANSIT_STORAGE":               &c.Static.Storage,
		"TRANSIT_SQLITE_DIR":            &c.Static.SQLiteDir,
		"DATABASE_URL":                  &c.Static.PostgresDSN,
		"TRANSIT_TRIP_UPDATES_URL":      &c.Realtime.TripUpdatesURL,
		"TRANSIT_VEHICLE_POSITIONS_URL": &c.Realtime.VehiclePositionsURL,
		"NATS_URL":                      &c.Publish.NATSURL,
		"REDIS_ADDR":                    &c.Publish.RedisAddr,
		"REDIS_PASSWORD":                &c.Publish.RedisPassword,
		"METRICS_ADDR":                  &c.Metrics.Addr,
		"LOG_LEVEL":                     &c.Log.Level,
	} {
		if v := os.Getenv(name); v != "" {
			*dest = v
		}
	}

	if v := os.Getenv("TRANSIT_AGENCIES"); v != "" {
		c.Realtime.Agencies = splitList(v)
	}

	if v := os.Getenv("TRANSIT_CYCLE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid TRANSIT_CYCLE_INTERVAL: %q", v)
		}
		c.Realtime.Interval = d
	}

	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid REDIS_DB: %q", v)
		}
		c.Publish.RedisDB = db
	}

	return nil
}

func (c *Config) Validate() error {
	v := validator.New()
	for _, section := range []any{
		c.Static, c.Realtime, c.Matching, c.Matching.Fuzzy,
		c.Matching.Dynamic, c.Publish, c.Log,
	} {
		if err := v.Struct(section); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}

	if c.Matching.Fuzzy.Enabled && len(c.Matching.Fuzzy.Agencies) == 0 {
		return fmt.Errorf("invalid config: %w", fuzzy.ErrNoAgencies)
	}
	if c.Matching.EarlyHour > c.Matching.LateHour {
		return fmt.Errorf("invalid config: earlyHour after lateHour")
	}

	return nil
}

// Realtime feed URLs that are configured.
func (c *Config) RealtimeURLs() []string {
	urls := []string{}
	for _, u := range []string{c.Realtime.TripUpdatesURL, c.Realtime.VehiclePositionsURL} {
		if u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

func (c *Config) LogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
