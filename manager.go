package transit

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/camsys/onebusaway-application-modules-sub000/calendar"
	"github.com/camsys/onebusaway-application-modules-sub000/downloader"
	"github.com/camsys/onebusaway-application-modules-sub000/graph"
	"github.com/camsys/onebusaway-application-modules-sub000/model"
	"github.com/camsys/onebusaway-application-modules-sub000/parse"
	"github.com/camsys/onebusaway-application-modules-sub000/storage"
)

const (
	DefaultStaticRefreshInterval = 12 * time.Hour
	DefaultStaticTimeout         = 60 * time.Second
	DefaultStaticMaxSize         = 800 << 20 // 800 MB
)

var ErrNoActiveFeed = errors.New("no active feed found")

// Manager keeps a live schedule graph and calendar in sync with a
// static bundle. The graph and calendar it hands out stay valid for
// its lifetime: loading a newer bundle swaps their contents.
type Manager struct {
	StaticTimeout         time.Duration
	StaticMaxSize         int
	StaticRefreshInterval time.Duration
	Downloader            downloader.Downloader

	TimeNow func() time.Time

	storage  storage.Storage
	graph    *graph.Graph
	calendar *calendar.Store
	logger   *slog.Logger
	base     *slog.Logger

	mutex  sync.Mutex
	static *Static
}

// Creates a new Manager of static bundles, on top of the given
// storage. Downloads go through an in memory cache.
func NewManager(s storage.Storage, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		StaticTimeout:         DefaultStaticTimeout,
		StaticMaxSize:         DefaultStaticMaxSize,
		StaticRefreshInterval: DefaultStaticRefreshInterval,
		Downloader:            downloader.NewMemoryDownloader(),
		TimeNow:               time.Now,

		storage:  s,
		graph:    graph.New(logger),
		calendar: calendar.NewStore(),
		logger:   logger.With("component", "manager"),
		base:     logger,
	}
}

func (m *Manager) Graph() *graph.Graph {
	return m.graph
}

func (m *Manager) Calendar() *calendar.Store {
	return m.calendar
}

// The bundle currently loaded, or nil.
func (m *Manager) Static() *Static {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.static
}

// Makes the most recently retrieved bundle for url that is active at
// when the live one. If storage has no such bundle, it's downloaded
// first.
func (m *Manager) LoadStatic(ctx context.Context, url string, headers map[string]string, when time.Time) (*Static, error) {
	feeds, err := m.storage.ListFeeds(storage.ListFeedsFilter{URL: url})
	if err != nil {
		return nil, fmt.Errorf("listing feeds: %w", err)
	}

	metadata, err := mostRecentActive(feeds, when)
	if errors.Is(err, ErrNoActiveFeed) {
		metadata, err = m.download(ctx, url, headers)
		if err != nil {
			return nil, err
		}
		active, err := feedActive(metadata, when)
		if err != nil {
			return nil, fmt.Errorf("checking if feed is active: %w", err)
		}
		if !active {
			return nil, ErrNoActiveFeed
		}
	} else if err != nil {
		return nil, err
	}

	return m.activate(metadata)
}

// Loads bundles from a local file rather than a URL. The path is
// used as the bundle's URL in storage.
func (m *Manager) LoadStaticFile(path string, body []byte) (*Static, error) {
	metadata, err := m.store(path, body)
	if err != nil {
		return nil, err
	}
	return m.activate(metadata)
}

// Re-downloads the live bundle's URL if it was retrieved longer than
// StaticRefreshInterval ago, and swaps in the result if the content
// changed.
func (m *Manager) Refresh(ctx context.Context, headers map[string]string) error {
	current := m.Static()
	if current == nil {
		return ErrNoActiveFeed
	}

	if m.TimeNow().Sub(current.Metadata.RetrievedAt) < m.StaticRefreshInterval {
		return nil
	}

	metadata, err := m.download(ctx, current.Metadata.URL, headers)
	if err != nil {
		return fmt.Errorf("refreshing %s: %w", current.Metadata.URL, err)
	}
	if metadata.Hash == current.Metadata.Hash {
		m.mutex.Lock()
		current.Metadata = metadata
		m.mutex.Unlock()
		return nil
	}

	active, err := feedActive(metadata, m.TimeNow())
	if err != nil {
		return fmt.Errorf("checking if feed is active: %w", err)
	}
	if !active {
		m.logger.Warn("refreshed bundle not active yet", "url", metadata.URL, "hash", metadata.Hash)
		return nil
	}

	_, err = m.activate(metadata)
	return err
}

// Downloads url and stores the bundle, unless its content is already
// in storage.
func (m *Manager) download(ctx context.Context, url string, headers map[string]string) (*storage.FeedMetadata, error) {
	body, err := m.Downloader.Get(
		ctx,
		url,
		headers,
		downloader.GetOptions{
			Cache:   false,
			Timeout: m.StaticTimeout,
			MaxSize: m.StaticMaxSize,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("downloading feed at %s: %w", url, err)
	}

	return m.store(url, body)
}

func (m *Manager) store(url string, body []byte) (*storage.FeedMetadata, error) {
	hash := fmt.Sprintf("%x", sha256.Sum256(body))
	now := m.TimeNow().UTC()

	// The data may already exist in storage, possibly under a
	// different URL.
	feeds, err := m.storage.ListFeeds(storage.ListFeedsFilter{Hash: hash})
	if err != nil {
		return nil, fmt.Errorf("listing feeds: %w", err)
	}
	if len(feeds) > 0 {
		metadata := *feeds[0]
		metadata.URL = url
		metadata.RetrievedAt = now
		if err := m.storage.WriteFeedMetadata(&metadata); err != nil {
			return nil, fmt.Errorf("writing metadata: %w", err)
		}
		return &metadata, nil
	}

	writer, err := m.storage.GetWriter(hash)
	if err != nil {
		return nil, fmt.Errorf("getting writer: %w", err)
	}

	metadata, err := parse.NewLoader(writer, m.base).Bundle(body)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("parsing: %w", err)
	}

	metadata.Hash = hash
	metadata.URL = url
	metadata.RetrievedAt = now
	if err := m.storage.WriteFeedMetadata(metadata); err != nil {
		return nil, fmt.Errorf("writing metadata: %w", err)
	}

	m.logger.Info("stored bundle", "url", url, "hash", hash, "start", metadata.CalendarStartDate, "end", metadata.CalendarEndDate)
	return metadata, nil
}

// Builds the graph and calendar of a stored bundle and swaps them in.
func (m *Manager) activate(metadata *storage.FeedMetadata) (*Static, error) {
	reader, err := m.storage.GetReader(metadata.Hash)
	if err != nil {
		return nil, fmt.Errorf("getting reader: %w", err)
	}

	static, err := NewStatic(reader, metadata, m.base)
	if err != nil {
		return nil, fmt.Errorf("creating static: %w", err)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	// Resolvers consult the calendar from within graph reads.
	m.graph.Swap(static.Graph, func() { m.calendar.Swap(static.Calendar) })
	static.Graph = m.graph
	static.Calendar = m.calendar
	m.static = static

	return static, nil
}

// Selects the most recently retrieved feed that is also active at the
// given time.
func mostRecentActive(feeds []*storage.FeedMetadata, when time.Time) (*storage.FeedMetadata, error) {
	sort.Slice(feeds, func(i, j int) bool {
		return feeds[i].RetrievedAt.Before(feeds[j].RetrievedAt)
	})

	for i := len(feeds) - 1; i >= 0; i-- {
		ok, err := feedActive(feeds[i], when)
		if err != nil {
			return nil, fmt.Errorf("checking if feed is active: %w", err)
		}
		if ok {
			return feeds[i], nil
		}
	}

	return nil, ErrNoActiveFeed
}

func feedActive(feed *storage.FeedMetadata, now time.Time) (bool, error) {
	feedTz, err := model.Location(feed.Timezone)
	if err != nil {
		return false, fmt.Errorf("loading timezone: %w", err)
	}

	todayThere := model.DateString(model.ServiceDateOf(now, feedTz))

	if feed.CalendarStartDate > todayThere {
		return false, nil
	}
	if feed.CalendarEndDate < todayThere {
		return false, nil
	}

	return true, nil
}
