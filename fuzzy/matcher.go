package fuzzy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/camsys/onebusaway-application-modules-sub000/calendar"
	"github.com/camsys/onebusaway-application-modules-sub000/model"
)

const (
	DefaultRefreshInterval = 60 * time.Minute

	// Candidates are scored against this point of their service
	// day.
	DefaultAnchorOffset = 12 * time.Hour
)

var ErrNoAgencies = errors.New("fuzzy matching needs at least one agency")

type Config struct {
	// Only trips of these agencies are matched.
	Agencies []string

	// Regular expressions removed, in order, from trip ids to get
	// their base id.
	Patterns []string

	RefreshInterval time.Duration
	AnchorOffset    time.Duration
}

type TripSource interface {
	Trips() []*model.TripEntry
}

// Matcher maps realtime trip ids that don't exist in the schedule to
// static trips sharing the same base id. When several trips share a
// base id, the one whose nearest active service day is closest to the
// observation wins.
type Matcher struct {
	trips    TripSource
	calendar calendar.Service
	agencies map[string]bool
	patterns []*regexp.Regexp
	refresh  time.Duration
	anchor   time.Duration
	logger   *slog.Logger

	index atomic.Pointer[baseIndex]

	mutex    sync.Mutex
	positive map[model.ID]*model.TripEntry
	negative map[model.ID]bool
}

type baseIndex struct {
	trips map[model.ID][]*model.TripEntry
}

func New(cfg Config, trips TripSource, cal calendar.Service, logger *slog.Logger) (*Matcher, error) {
	if len(cfg.Agencies) == 0 {
		return nil, ErrNoAgencies
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Matcher{
		trips:    trips,
		calendar: cal,
		agencies: map[string]bool{},
		refresh:  cfg.RefreshInterval,
		anchor:   cfg.AnchorOffset,
		logger:   logger.With("component", "fuzzy"),
		positive: map[model.ID]*model.TripEntry{},
		negative: map[model.ID]bool{},
	}
	if m.refresh <= 0 {
		m.refresh = DefaultRefreshInterval
	}
	if m.anchor == 0 {
		m.anchor = DefaultAnchorOffset
	}

	for _, a := range cfg.Agencies {
		m.agencies[a] = true
	}
	for _, p := range cfg.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compiling trip id pattern '%s': %w", p, err)
		}
		m.patterns = append(m.patterns, re)
	}

	return m, nil
}

// Strips the configured patterns from a trip id.
func (m *Matcher) Normalize(id model.ID) model.ID {
	base := id.ID
	for _, re := range m.patterns {
		base = re.ReplaceAllString(base, "")
	}
	return model.NewID(id.Agency, base)
}

// Builds a new base id index from the current trips, swaps it in and
// clears cached results. Lookups in flight keep using the old index.
func (m *Matcher) Rebuild() {
	start := time.Now()

	idx := &baseIndex{trips: map[model.ID][]*model.TripEntry{}}
	count := 0
	for _, trip := range m.trips.Trips() {
		if !m.agencies[trip.ID.Agency] {
			continue
		}
		base := m.Normalize(trip.ID)
		idx.trips[base] = append(idx.trips[base], trip)
		count++
	}

	m.mutex.Lock()
	m.index.Store(idx)
	m.positive = map[model.ID]*model.TripEntry{}
	m.negative = map[model.ID]bool{}
	m.mutex.Unlock()

	m.logger.Info("built fuzzy trip index", "trips", count, "base_ids", len(idx.trips), "duration", time.Since(start))
}

// Invalidates everything, e.g. after a new schedule was swapped in.
func (m *Matcher) Reset() {
	m.Rebuild()
}

// Rebuilds immediately, then on every refresh interval until ctx is
// done.
func (m *Matcher) Run(ctx context.Context) {
	m.Rebuild()

	ticker := time.NewTicker(m.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Rebuild()
		}
	}
}

// Finds the best static trip for a realtime trip id observed at t.
// Results, including misses, are cached per incoming id until the
// next rebuild.
func (m *Matcher) Match(id model.ID, t time.Time) (*model.TripEntry, bool) {
	idx := m.index.Load()
	if idx == nil {
		return nil, false
	}

	m.mutex.Lock()
	if trip, ok := m.positive[id]; ok {
		m.mutex.Unlock()
		return trip, true
	}
	if m.negative[id] {
		m.mutex.Unlock()
		return nil, false
	}
	m.mutex.Unlock()

	trip := m.best(idx.trips[m.Normalize(id)], t)

	m.mutex.Lock()
	defer m.mutex.Unlock()

	// Don't cache results computed against a replaced index.
	if m.index.Load() != idx {
		return trip, trip != nil
	}
	if trip == nil {
		m.negative[id] = true
		m.logger.Debug("no fuzzy match", "trip", id.String())
		return nil, false
	}
	m.positive[id] = trip
	m.logger.Debug("fuzzy matched trip", "trip", id.String(), "match", trip.ID.String())
	return trip, true
}

// Candidate with the smallest absolute score. Ties go to the
// earliest candidate.
func (m *Matcher) best(candidates []*model.TripEntry, t time.Time) *model.TripEntry {
	var best *model.TripEntry
	bestScore := math.Inf(1)

	for _, trip := range candidates {
		score, ok := m.Score(trip, t)
		if !ok {
			continue
		}
		if math.Abs(score) < bestScore {
			best = trip
			bestScore = math.Abs(score)
		}
	}
	return best
}

// Signed minutes between the anchor of the trip's closest active
// service day and t. False if the service never runs.
func (m *Matcher) Score(trip *model.TripEntry, t time.Time) (float64, bool) {
	dates := m.calendar.ActiveDates(trip.ServiceID)
	if len(dates) == 0 {
		return 0, false
	}

	closest := dates[0].Add(m.anchor).Sub(t)
	for _, d := range dates[1:] {
		diff := d.Add(m.anchor).Sub(t)
		if absDuration(diff) < absDuration(closest) {
			closest = diff
		}
	}
	return closest.Minutes(), true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
