package transit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/camsys/onebusaway-application-modules-sub000/downloader"
	"github.com/camsys/onebusaway-application-modules-sub000/parse"
)

const (
	DefaultRealtimeTTL           = 15 * time.Second
	DefaultRealtimeTimeout       = 30 * time.Second
	DefaultRealtimeMaxSize       = 1 << 20 // 1 MB
	DefaultRealtimeRetryInterval = 1 * time.Second
	DefaultRealtimeRetryElapsed  = 20 * time.Second
)

// RealtimeSource fetches and parses GTFS-rt feeds (typically trip
// updates and vehicle positions) as one combined feed.
type RealtimeSource struct {
	URLs    []string
	Headers map[string]string

	Timeout  time.Duration
	MaxSize  int
	CacheTTL time.Duration

	// Failed downloads are retried with exponential backoff,
	// starting at RetryInterval, for at most RetryElapsed.
	RetryInterval time.Duration
	RetryElapsed  time.Duration

	Downloader downloader.Downloader

	logger *slog.Logger
}

func NewRealtimeSource(urls []string, headers map[string]string, logger *slog.Logger) *RealtimeSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &RealtimeSource{
		URLs:          urls,
		Headers:       headers,
		Timeout:       DefaultRealtimeTimeout,
		MaxSize:       DefaultRealtimeMaxSize,
		CacheTTL:      DefaultRealtimeTTL,
		RetryInterval: DefaultRealtimeRetryInterval,
		RetryElapsed:  DefaultRealtimeRetryElapsed,
		Downloader:    downloader.NewMemoryDownloader(),
		logger:        logger.With("component", "realtime"),
	}
}

// Fetches and parses all feeds. Feeds that can't be fetched or parsed
// are logged and result in an empty feed, so the caller can carry on
// with its cycle.
func (s *RealtimeSource) Fetch(ctx context.Context) *parse.Realtime {
	rt, err := s.fetch(ctx)
	if err != nil {
		s.logger.Error("fetching realtime feeds", "error", err)
		return parse.EmptyRealtime()
	}
	return rt
}

func (s *RealtimeSource) fetch(ctx context.Context) (*parse.Realtime, error) {
	feeds := make([][]byte, 0, len(s.URLs))
	for _, url := range s.URLs {
		body, err := s.get(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("downloading %s: %w", url, err)
		}
		feeds = append(feeds, body)
	}

	rt, err := parse.ParseRealtime(ctx, feeds)
	if err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	s.logger.Debug(
		"parsed realtime feeds",
		"trip_updates", len(rt.TripUpdates),
		"vehicle_positions", len(rt.VehiclePositions),
		"canceled", len(rt.SkippedTrips),
		"ignored", rt.Ignored,
	)
	return rt, nil
}

func (s *RealtimeSource) get(ctx context.Context, url string) ([]byte, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.RetryInterval
	b.MaxElapsedTime = s.RetryElapsed

	return backoff.RetryNotifyWithData(
		func() ([]byte, error) {
			body, err := s.Downloader.Get(ctx, url, s.Headers, downloader.GetOptions{
				Cache:    s.CacheTTL > 0,
				CacheTTL: s.CacheTTL,
				Timeout:  s.Timeout,
				MaxSize:  s.MaxSize,
			})
			var status *downloader.StatusError
			if errors.As(err, &status) && !status.Retryable() {
				return nil, backoff.Permanent(err)
			}
			return body, err
		},
		backoff.WithContext(b, ctx),
		func(err error, d time.Duration) {
			s.logger.Warn("retrying realtime download", "url", url, "backoff", d, "error", err)
		},
	)
}
