// Package location wraps the device location feed: deduplicated position
// fan-out and circular-region (geofence) monitoring. The core never computes
// geofences elsewhere; it registers stop coordinates here and reacts to
// entry events.
package location

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ridealert/ridealert/pkg/geo"
)

// minMovementMeters is the deduplication threshold: position updates that
// moved less than this since the last published update are dropped.
const minMovementMeters = 10

// Position is one device location fix.
type Position struct {
	Coordinate     geo.Coordinate
	AccuracyMeters float64
	Timestamp      time.Time
}

// RegionEvent reports entry into a monitored region.
type RegionEvent struct {
	RegionID string
	Position Position
}

// TrackerConfig holds configuration for the tracker.
type TrackerConfig struct {
	// Logger for tracker operations.
	Logger zerolog.Logger
}

// Tracker fans deduplicated position updates out to subscribers and fires
// edge-triggered entry events for monitored regions.
type Tracker struct {
	logger zerolog.Logger

	mu          sync.Mutex
	last        *Position
	nextSubID   int
	subscribers map[int]func(Position)
	regions     map[string]*region
	onEntry     func(RegionEvent)
}

type region struct {
	id           string
	center       geo.Coordinate
	radiusMeters float64
	inside       bool
}

// NewTracker creates a tracker.
func NewTracker(cfg TrackerConfig) *Tracker {
	return &Tracker{
		logger:      cfg.Logger,
		subscribers: make(map[int]func(Position)),
		regions:     make(map[string]*region),
	}
}

// Subscribe registers a callback for deduplicated position updates and
// returns an unsubscribe function.
func (t *Tracker) Subscribe(fn func(Position)) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextSubID
	t.nextSubID++
	t.subscribers[id] = fn

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subscribers, id)
	}
}

// OnRegionEntry registers the callback for region entry events.
func (t *Tracker) OnRegionEntry(fn func(RegionEvent)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEntry = fn
}

// StartMonitoring registers a circular region around center. Re-registering
// an id replaces the previous region.
func (t *Tracker) StartMonitoring(regionID string, center geo.Coordinate, radiusMeters float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.regions[regionID] = &region{
		id:           regionID,
		center:       center,
		radiusMeters: radiusMeters,
	}

	t.logger.Debug().
		Str("region_id", regionID).
		Float64("radius_m", radiusMeters).
		Msg("region monitoring started")
}

// StopMonitoringAll removes every monitored region.
func (t *Tracker) StopMonitoringAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.regions) > 0 {
		t.logger.Debug().Int("regions", len(t.regions)).Msg("region monitoring stopped")
	}
	t.regions = make(map[string]*region)
}

// Update feeds a raw device position into the tracker. Updates that moved
// less than 10m since the last published position are dropped. Accepted
// updates fan out to subscribers and are checked against monitored regions;
// entry events fire on the transition into a region, not while inside.
func (t *Tracker) Update(p Position) {
	t.mu.Lock()

	if t.last != nil && geo.Distance(t.last.Coordinate, p.Coordinate) < minMovementMeters {
		t.mu.Unlock()
		return
	}
	t.last = &p

	subs := make([]func(Position), 0, len(t.subscribers))
	for _, fn := range t.subscribers {
		subs = append(subs, fn)
	}

	var entries []RegionEvent
	for _, r := range t.regions {
		inside := geo.Distance(r.center, p.Coordinate) <= r.radiusMeters
		if inside && !r.inside {
			entries = append(entries, RegionEvent{RegionID: r.id, Position: p})
		}
		r.inside = inside
	}
	onEntry := t.onEntry
	t.mu.Unlock()

	for _, fn := range subs {
		fn(p)
	}
	if onEntry != nil {
		for _, ev := range entries {
			t.logger.Debug().Str("region_id", ev.RegionID).Msg("region entered")
			onEntry(ev)
		}
	}
}

// Current returns the last published position, or nil before the first
// accepted update.
func (t *Tracker) Current() *Position {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.last == nil {
		return nil
	}
	cpy := *t.last
	return &cpy
}
