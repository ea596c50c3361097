// Package destination implements the single-destination trip state machine:
// given polled stop-progress updates and device positions, it decides when to
// fire the "approaching" and "arrived" announcements exactly once per trip
// and when the trip clears itself.
package destination

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ridealert/ridealert/internal/announce"
	"github.com/ridealert/ridealert/internal/clock"
	"github.com/ridealert/ridealert/internal/location"
	"github.com/ridealert/ridealert/internal/notify"
	"github.com/ridealert/ridealert/internal/transit"
	"github.com/ridealert/ridealert/pkg/geo"
)

// State is the trip lifecycle position.
type State int

// Trip states. A trip advances monotonically and resets to idle when cleared.
const (
	StateIdle State = iota
	StateTracking
	StateApproachingNotified
	StateArrivedNotified
)

// String returns a log-friendly state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTracking:
		return "tracking"
	case StateApproachingNotified:
		return "approaching_notified"
	case StateArrivedNotified:
		return "arrived_notified"
	default:
		return "unknown"
	}
}

// Monitor timings and thresholds.
const (
	// DefaultLeadStops is how many stops ahead the approaching announcement
	// fires when the rider has not configured a lead distance.
	DefaultLeadStops = 2

	// NotFound is the remaining-stop sentinel when the destination does not
	// appear after the current position.
	NotFound = -1

	// autoClearDelay is how long after the arrived announcement the trip
	// clears itself.
	autoClearDelay = 5 * time.Second

	// suppressionWindow guards each (stop, remaining) pair against rapid
	// repeated polls re-firing the same decision.
	suppressionWindow = 30 * time.Second

	// suppressionMaxAge bounds the suppression map; older entries are pruned
	// on every write.
	suppressionMaxAge = 5 * time.Minute

	// GPS fallback thresholds, used when stop-sequence data is unavailable.
	arrivedRadiusMeters     = 100
	approachingRadiusMeters = 300
)

// Geofence region ids registered with the location tracker.
const (
	regionArrived     = "destination.region.arrived"
	regionApproaching = "destination.region.approaching"
)

// Announcement categories owned by the monitor. The waiting-alert registry
// uses its own "waiting." prefix so the two never cross-suppress.
const (
	categoryConfirm  = "destination.confirm"
	categoryCancel   = "destination.cancel"
	categoryApproach = "destination.approach"
	categoryArrive   = "destination.arrive"
)

// Update is one polled observation fed into the monitor.
type Update struct {
	// NearestIndex is the index into Stops of the stop the vehicle is
	// currently at or nearest to. NotFound when sequence data is unavailable.
	NearestIndex int

	// Stops is the ordered stop list for the tracked route and direction.
	Stops []transit.Stop

	// Position is the device position, when available. Used for the GPS
	// fallback signal.
	Position *location.Position
}

// MonitorConfig holds configuration for the destination monitor.
type MonitorConfig struct {
	// Gate is the shared announcement gate (required).
	Gate *announce.Gate

	// Notifier delivers local notifications (required).
	Notifier notify.Dispatcher

	// Tracker supplies geofence entry events for the GPS fallback. Optional.
	Tracker *location.Tracker

	// LeadStops returns the configured lead distance in stops. Nil means
	// DefaultLeadStops.
	LeadStops func() int

	// AudioEnabled gates spoken announcements. Nil means always enabled.
	AudioEnabled func() bool

	// Clock is the time source. Default: system clock.
	Clock clock.Clock

	// Logger for monitor transitions.
	Logger zerolog.Logger
}

// Monitor owns the destination trip. At most one trip is active; setting a
// new destination replaces the previous trip wholesale.
type Monitor struct {
	gate         *announce.Gate
	notifier     notify.Dispatcher
	tracker      *location.Tracker
	leadStops    func() int
	audioEnabled func() bool
	clock        clock.Clock
	logger       zerolog.Logger

	mu         sync.Mutex
	state      State
	routeName  string
	stopName   string
	tripSeq    uint64
	recent     map[string]time.Time
	clearTimer clock.Timer
	destCoord  geo.Coordinate
	regionsSet bool
}

// NewMonitor creates the monitor and, when a tracker is supplied, hooks its
// region-entry events into the GPS fallback signal.
func NewMonitor(cfg MonitorConfig) *Monitor {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.System()
	}

	m := &Monitor{
		gate:         cfg.Gate,
		notifier:     cfg.Notifier,
		tracker:      cfg.Tracker,
		leadStops:    cfg.LeadStops,
		audioEnabled: cfg.AudioEnabled,
		clock:        clk,
		logger:       cfg.Logger,
		recent:       make(map[string]time.Time),
	}

	if cfg.Tracker != nil {
		cfg.Tracker.OnRegionEntry(m.onRegionEntry)
	}
	return m
}

// SetDestination starts tracking a destination stop on a route. Setting the
// destination already being tracked is a logged no-op; anything else replaces
// the current trip: flags reset, trip-scoped announcement history cleared,
// and a confirmation spoken.
func (m *Monitor) SetDestination(ctx context.Context, routeName, stopName string) {
	m.mu.Lock()
	if m.state != StateIdle && m.routeName == routeName && m.stopName == stopName {
		m.mu.Unlock()
		m.logger.Info().
			Str("route", routeName).
			Str("stop", stopName).
			Msg("destination unchanged, ignoring")
		return
	}

	m.resetTripLocked()
	m.state = StateTracking
	m.routeName = routeName
	m.stopName = stopName
	m.mu.Unlock()

	m.gate.ClearHistory("destination.")
	m.logger.Info().
		Str("route", routeName).
		Str("stop", stopName).
		Msg("destination set")

	m.speak(fmt.Sprintf("Tracking %s on route %s. I'll tell you when you're close.",
		stopName, routeName), categoryConfirm, announce.PriorityNormal)
}

// ClearDestination stops tracking at the rider's request. Calling it with no
// active trip is a silent no-op, so a double tap never speaks twice.
func (m *Monitor) ClearDestination(ctx context.Context) {
	m.clear(ctx, false)
}

func (m *Monitor) clear(ctx context.Context, auto bool) {
	m.mu.Lock()
	if m.state == StateIdle {
		m.mu.Unlock()
		m.logger.Debug().Msg("no destination to clear")
		return
	}

	routeName, stopName := m.routeName, m.stopName
	m.resetTripLocked()
	m.state = StateIdle
	m.routeName = ""
	m.stopName = ""
	m.mu.Unlock()

	m.gate.ClearHistory("destination.")
	if m.tracker != nil {
		m.tracker.StopMonitoringAll()
	}

	m.logger.Info().
		Str("route", routeName).
		Str("stop", stopName).
		Bool("auto", auto).
		Msg("destination cleared")

	if !auto {
		m.speak(fmt.Sprintf("Stopped tracking %s.", stopName),
			categoryCancel, announce.PriorityNormal)
	}
}

// resetTripLocked invalidates the current trip: flags, suppression history,
// geofences, and any pending auto-clear. In-flight completions observe the
// bumped sequence and become no-ops. Caller holds the lock.
func (m *Monitor) resetTripLocked() {
	m.tripSeq++
	m.recent = make(map[string]time.Time)
	m.destCoord = geo.Coordinate{}
	m.regionsSet = false
	if m.clearTimer != nil {
		m.clearTimer.Stop()
		m.clearTimer = nil
	}
}

// State returns the current trip state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Destination returns the tracked route and stop names, empty when idle.
func (m *Monitor) Destination() (routeName, stopName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.routeName, m.stopName
}

// HandleTick feeds one polled observation into the state machine. Safe to
// call at any state; does nothing when idle.
func (m *Monitor) HandleTick(ctx context.Context, u Update) {
	m.mu.Lock()
	if m.state == StateIdle {
		m.mu.Unlock()
		return
	}
	stopName := m.stopName
	seq := m.tripSeq
	m.mu.Unlock()

	if u.NearestIndex != NotFound && u.NearestIndex >= 0 && u.NearestIndex < len(u.Stops) {
		m.handleSequence(ctx, u, stopName, seq)
		return
	}

	// No sequence data this cycle: fall back to raw GPS distance when both a
	// position and the destination coordinate are known.
	if u.Position != nil {
		m.handleProximity(ctx, u.Position.Coordinate, seq)
	}
}

// handleSequence applies the ordinal-stop-count signal.
func (m *Monitor) handleSequence(ctx context.Context, u Update, stopName string, seq uint64) {
	m.learnDestination(u.Stops, stopName, seq)

	current := u.Stops[u.NearestIndex]
	remaining := RemainingStops(u.Stops, u.NearestIndex, stopName)

	if remaining == m.lead() && m.passSuppression(current.ID, remaining) {
		m.fireApproaching(ctx, seq, remaining)
	}

	// The arrived check is independent of the approaching one: a vehicle can
	// jump past the lead window between polls.
	if strings.Contains(current.Name, stopName) {
		m.fireArrived(ctx, seq)
	}
}

// handleProximity applies the GPS fallback thresholds. It shares the trip
// flags with the ordinal signal, so whichever fires first wins.
func (m *Monitor) handleProximity(ctx context.Context, at geo.Coordinate, seq uint64) {
	m.mu.Lock()
	dest := m.destCoord
	m.mu.Unlock()
	if dest.IsZero() {
		return
	}

	d := geo.Distance(at, dest)
	switch {
	case d <= arrivedRadiusMeters:
		m.fireArrived(ctx, seq)
	case d <= approachingRadiusMeters:
		m.fireApproaching(ctx, seq, NotFound)
	}
}

// onRegionEntry receives geofence entry events from the location tracker and
// maps them onto the GPS fallback signal.
func (m *Monitor) onRegionEntry(ev location.RegionEvent) {
	m.mu.Lock()
	seq := m.tripSeq
	idle := m.state == StateIdle
	m.mu.Unlock()
	if idle {
		return
	}

	switch ev.RegionID {
	case regionArrived:
		m.fireArrived(context.Background(), seq)
	case regionApproaching:
		m.fireApproaching(context.Background(), seq, NotFound)
	}
}

// learnDestination caches the destination stop's coordinate the first time it
// appears in a stop list, and registers the fallback geofences.
func (m *Monitor) learnDestination(stops []transit.Stop, stopName string, seq uint64) {
	m.mu.Lock()
	if m.tripSeq != seq || m.regionsSet {
		m.mu.Unlock()
		return
	}

	var coord geo.Coordinate
	for _, s := range stops {
		if strings.Contains(s.Name, stopName) {
			coord = geo.Coordinate{Lat: s.Lat, Lon: s.Lon}
			break
		}
	}
	if coord.IsZero() {
		m.mu.Unlock()
		return
	}

	m.destCoord = coord
	m.regionsSet = true
	m.mu.Unlock()

	if m.tracker != nil {
		m.tracker.StartMonitoring(regionArrived, coord, arrivedRadiusMeters)
		m.tracker.StartMonitoring(regionApproaching, coord, approachingRadiusMeters)
	}
}

// fireApproaching fires the approaching announcement once per trip.
func (m *Monitor) fireApproaching(ctx context.Context, seq uint64, remaining int) {
	m.mu.Lock()
	if m.tripSeq != seq || m.state != StateTracking {
		m.mu.Unlock()
		return
	}
	m.state = StateApproachingNotified
	stopName := m.stopName
	m.mu.Unlock()

	m.logger.Info().
		Str("stop", stopName).
		Int("remaining", remaining).
		Msg("approaching destination")

	var message string
	if remaining > 0 {
		message = fmt.Sprintf("Your stop %s is %d stops away. Get ready.", stopName, remaining)
	} else {
		message = fmt.Sprintf("Your stop %s is coming up. Get ready.", stopName)
	}

	m.speak(message, categoryApproach, announce.PriorityHigh)
	m.deliver(ctx, "Almost there", message)
}

// fireArrived fires the arrived announcement once per trip and schedules the
// auto-clear.
func (m *Monitor) fireArrived(ctx context.Context, seq uint64) {
	m.mu.Lock()
	if m.tripSeq != seq || m.state == StateIdle || m.state == StateArrivedNotified {
		m.mu.Unlock()
		return
	}
	m.state = StateArrivedNotified
	stopName := m.stopName

	// The auto-clear re-validates the trip sequence: a rider clearing or
	// replacing the destination in the meantime wins.
	m.clearTimer = m.clock.AfterFunc(autoClearDelay, func() {
		m.mu.Lock()
		stale := m.tripSeq != seq
		m.mu.Unlock()
		if stale {
			return
		}
		m.clear(context.Background(), true)
	})
	m.mu.Unlock()

	m.logger.Info().Str("stop", stopName).Msg("arrived at destination")

	message := fmt.Sprintf("This is %s. Time to get off.", stopName)
	m.speak(message, categoryArrive, announce.PriorityUrgent)
	m.deliver(ctx, "Your stop", message)
}

// passSuppression reports whether the (stop, remaining) decision may fire,
// stamping it when it may. Entries older than the map bound are pruned on
// every write.
func (m *Monitor) passSuppression(stopID string, remaining int) bool {
	key := fmt.Sprintf("%s|%d", stopID, remaining)
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if last, ok := m.recent[key]; ok && now.Sub(last) < suppressionWindow {
		return false
	}
	m.recent[key] = now
	for k, at := range m.recent {
		if now.Sub(at) > suppressionMaxAge {
			delete(m.recent, k)
		}
	}
	return true
}

func (m *Monitor) lead() int {
	if m.leadStops == nil {
		return DefaultLeadStops
	}
	if n := m.leadStops(); n > 0 {
		return n
	}
	return DefaultLeadStops
}

func (m *Monitor) speak(message, category string, priority announce.Priority) {
	if m.audioEnabled != nil && !m.audioEnabled() {
		return
	}
	m.gate.Announce(message, category, priority)
}

func (m *Monitor) deliver(ctx context.Context, title, body string) {
	if err := m.notifier.Deliver(ctx, notify.New(title, body)); err != nil {
		m.logger.Error().Err(err).Msg("notification delivery failed")
	}
}

// RemainingStops counts the stops still to ride through, destination
// included: when the destination is the very next stop the count is 2.
// NotFound when no later stop matches. The match is deliberately a
// substring: upstream stop names carry suffixes like "(Main St Station)"
// that an exact comparison would miss.
func RemainingStops(stops []transit.Stop, currentIndex int, dest string) int {
	for i := currentIndex + 1; i < len(stops); i++ {
		if strings.Contains(stops[i].Name, dest) {
			return i - currentIndex + 1
		}
	}
	return NotFound
}
