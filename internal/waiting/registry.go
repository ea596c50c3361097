package waiting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ridealert/ridealert/internal/announce"
	"github.com/ridealert/ridealert/internal/clock"
	"github.com/ridealert/ridealert/internal/notify"
	"github.com/ridealert/ridealert/internal/transit"
)

// Registry timings.
const (
	// DefaultTickInterval is how often alerts are polled.
	DefaultTickInterval = 60 * time.Second

	// DefaultValidityWindow is the alert time-to-live: alerts older than
	// this are dropped regardless of whether they fired.
	DefaultValidityWindow = 30 * time.Minute

	// arrivedRemoveDelay is how long after an "arrived" fire the alert is
	// auto-removed.
	arrivedRemoveDelay = 30 * time.Second

	// approachRemoveSlack is added to the arrival estimate when scheduling
	// auto-removal after an "approaching" fire.
	approachRemoveSlack = 60 * time.Second

	// staleArrivedSeconds: a notified alert whose estimate drops to this or
	// below is treated as arrived-and-stale and removed on the spot.
	staleArrivedSeconds = 30
)

// Announcement categories owned by the registry. The destination monitor
// uses its own "destination." prefix so the two never cross-suppress.
const (
	categoryConfirm  = "waiting.confirm"
	categoryCancel   = "waiting.cancel"
	categoryApproach = "waiting.approach"
	categoryArrive   = "waiting.arrive"
)

// RegistryConfig holds configuration for the alert registry.
type RegistryConfig struct {
	// Gateway polls upstream arrival estimates (required).
	Gateway transit.Gateway

	// City scopes all upstream calls.
	City string

	// Gate is the shared announcement gate (required).
	Gate *announce.Gate

	// Notifier delivers push notifications (required).
	Notifier notify.Dispatcher

	// Repo persists the alert list (required).
	Repo Repository

	// AudioEnabled gates spoken announcements; push notifications are
	// delivered regardless. Nil means always enabled.
	AudioEnabled func() bool

	// TickInterval overrides the polling cadence. Default: 60s.
	TickInterval time.Duration

	// ValidityWindow overrides the alert TTL. Default: 30 minutes.
	ValidityWindow time.Duration

	// Clock is the time source. Default: system clock.
	Clock clock.Clock

	// Logger for registry operations.
	Logger zerolog.Logger
}

// Registry owns the waiting-alert collection. All state mutation happens
// under one mutex; upstream fetches run on the polling goroutine and their
// results re-validate alert presence before touching state.
type Registry struct {
	gateway        transit.Gateway
	city           string
	gate           *announce.Gate
	notifier       notify.Dispatcher
	repo           Repository
	audioEnabled   func() bool
	tickInterval   time.Duration
	validityWindow time.Duration
	clock          clock.Clock
	logger         zerolog.Logger

	mu       sync.Mutex
	alerts   []Alert
	notified map[string]struct{}
	timers   map[string]clock.Timer
	ticking  bool
}

// NewRegistry creates the registry and loads persisted alerts. A load
// failure starts the registry empty rather than failing startup.
func NewRegistry(ctx context.Context, cfg RegistryConfig) *Registry {
	tickInterval := cfg.TickInterval
	if tickInterval == 0 {
		tickInterval = DefaultTickInterval
	}
	validityWindow := cfg.ValidityWindow
	if validityWindow == 0 {
		validityWindow = DefaultValidityWindow
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.System()
	}

	r := &Registry{
		gateway:        cfg.Gateway,
		city:           cfg.City,
		gate:           cfg.Gate,
		notifier:       cfg.Notifier,
		repo:           cfg.Repo,
		audioEnabled:   cfg.AudioEnabled,
		tickInterval:   tickInterval,
		validityWindow: validityWindow,
		clock:          clk,
		logger:         cfg.Logger,
		notified:       make(map[string]struct{}),
		timers:         make(map[string]clock.Timer),
	}

	alerts, err := cfg.Repo.Load(ctx)
	if err != nil {
		cfg.Logger.Error().Err(err).Msg("loading persisted alerts failed, starting empty")
	} else {
		r.alerts = alerts
		if len(alerts) > 0 {
			cfg.Logger.Info().Int("alerts", len(alerts)).Msg("restored waiting alerts")
		}
	}

	return r
}

// Add creates a waiting alert for a stop. At most one active alert may
// exist per stop id; a duplicate add is a logged no-op returning
// ErrDuplicateStop with the registry unchanged.
func (r *Registry) Add(ctx context.Context, routeID, routeName, stopID, stopName string, direction transit.Direction, leadMinutes int) (Alert, error) {
	if leadMinutes <= 0 {
		leadMinutes = DefaultLeadMinutes
	}

	r.mu.Lock()
	if r.hasStopLocked(stopID) {
		r.mu.Unlock()
		r.logger.Info().
			Str("stop_id", stopID).
			Str("route", routeName).
			Msg("duplicate waiting alert ignored")
		return Alert{}, ErrDuplicateStop
	}

	alert := Alert{
		ID:          "wa_" + uuid.New().String()[:22],
		RouteID:     routeID,
		RouteName:   routeName,
		StopID:      stopID,
		StopName:    stopName,
		Direction:   direction,
		LeadMinutes: leadMinutes,
		CreatedAt:   r.clock.Now(),
	}
	r.alerts = append(r.alerts, alert)
	r.persistLocked(ctx)
	r.mu.Unlock()

	r.logger.Info().
		Str("alert_id", alert.ID).
		Str("route", routeName).
		Str("stop", stopName).
		Int("lead_minutes", leadMinutes).
		Msg("waiting alert added")

	// Confirmations ride at the highest priority so they are audible even
	// with the screen off.
	r.speak(fmt.Sprintf("Watching route %s at %s. You'll hear from me %d minutes before it arrives.",
		routeName, stopName, leadMinutes), categoryConfirm, announce.PriorityUrgent)

	return alert, nil
}

// Remove removes an alert by id at the rider's request, speaking a
// cancellation confirmation.
func (r *Registry) Remove(ctx context.Context, id string) error {
	return r.remove(ctx, id, false)
}

// remove removes an alert. auto suppresses the spoken confirmation during
// automatic expiry so an "arrived" announcement is not followed by an
// unrelated cancellation message.
func (r *Registry) remove(ctx context.Context, id string, auto bool) error {
	r.mu.Lock()
	idx := -1
	for i := range r.alerts {
		if r.alerts[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return ErrAlertNotFound
	}

	removed := r.alerts[idx]
	r.alerts = append(r.alerts[:idx], r.alerts[idx+1:]...)
	r.dropBookkeepingLocked(id)
	r.persistLocked(ctx)
	r.mu.Unlock()

	r.logger.Info().
		Str("alert_id", id).
		Str("stop", removed.StopName).
		Bool("auto", auto).
		Msg("waiting alert removed")

	if !auto {
		r.speak(fmt.Sprintf("Stopped watching route %s at %s.", removed.RouteName, removed.StopName),
			categoryCancel, announce.PriorityNormal)
	}
	return nil
}

// ClearAll removes every alert, speaking a single confirmation only when
// there was something to clear.
func (r *Registry) ClearAll(ctx context.Context) {
	r.mu.Lock()
	had := len(r.alerts) > 0
	for _, a := range r.alerts {
		r.dropBookkeepingLocked(a.ID)
	}
	r.alerts = nil
	r.notified = make(map[string]struct{})
	r.persistLocked(ctx)
	r.mu.Unlock()

	if had {
		r.logger.Info().Msg("all waiting alerts cleared")
		r.speak("All bus alerts cleared.", categoryCancel, announce.PriorityNormal)
	}
}

// HasAlert reports whether an active alert watches the stop.
func (r *Registry) HasAlert(stopID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasStopLocked(stopID)
}

// ActiveAlerts returns a copy of the current alert list.
func (r *Registry) ActiveAlerts() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Alert, len(r.alerts))
	copy(out, r.alerts)
	return out
}

// Run polls until the context is cancelled: one immediate tick, then one
// per tick interval. A tick whose fetches are still in flight causes the
// next to be skipped rather than overlapped.
func (r *Registry) Run(ctx context.Context) {
	r.Tick(ctx)

	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick runs one polling cycle: expiry, route-batched fetch, and per-alert
// notification decisions.
func (r *Registry) Tick(ctx context.Context) {
	r.mu.Lock()
	if r.ticking {
		r.mu.Unlock()
		r.logger.Debug().Msg("previous tick still in flight, skipping")
		return
	}
	r.ticking = true

	r.expireLocked(ctx)
	groups := r.pendingGroupsLocked()
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.ticking = false
		r.mu.Unlock()
	}()

	for routeID, group := range groups {
		estimates, err := r.gateway.FetchArrivals(ctx, r.city, routeID)
		if err != nil {
			// A failed fetch means no data this cycle. Alerts are never
			// dropped because of it.
			r.logger.Warn().Err(err).Str("route_id", routeID).Msg("arrival fetch failed, skipping group")
			continue
		}

		for _, alert := range group {
			est, ok := matchEstimate(estimates, alert)
			if !ok || !est.HasTime() {
				continue
			}
			r.evaluate(ctx, alert.ID, *est.Seconds)
		}
	}
}

// expireLocked drops alerts past the validity window. Caller holds the lock.
func (r *Registry) expireLocked(ctx context.Context) {
	now := r.clock.Now()
	kept := r.alerts[:0]
	expired := 0
	for _, a := range r.alerts {
		if a.Age(now) > r.validityWindow {
			r.dropBookkeepingLocked(a.ID)
			expired++
			continue
		}
		kept = append(kept, a)
	}
	r.alerts = kept

	if expired > 0 {
		r.persistLocked(ctx)
		r.logger.Info().Int("expired", expired).Msg("expired waiting alerts removed")
	}
}

// pendingGroupsLocked groups alerts by route, omitting groups whose alerts
// have all fired so settled routes are not re-queried. Caller holds the lock.
func (r *Registry) pendingGroupsLocked() map[string][]Alert {
	groups := make(map[string][]Alert)
	pending := make(map[string]bool)

	for _, a := range r.alerts {
		groups[a.RouteID] = append(groups[a.RouteID], a)
		if _, fired := r.notified[a.ID]; !fired {
			pending[a.RouteID] = true
		}
	}

	for routeID := range groups {
		if !pending[routeID] {
			delete(groups, routeID)
		}
	}
	return groups
}

// matchEstimate finds the estimate for an alert's stop and direction.
func matchEstimate(estimates []transit.ArrivalEstimate, alert Alert) (transit.ArrivalEstimate, bool) {
	for _, e := range estimates {
		if e.StopID == alert.StopID && e.Direction == alert.Direction {
			return e, true
		}
	}
	return transit.ArrivalEstimate{}, false
}

// evaluate applies the firing rules for one alert given a fresh estimate.
// It re-fetches the alert under the lock: the rider may have removed it
// while the fetch was in flight, in which case this is a no-op.
func (r *Registry) evaluate(ctx context.Context, alertID string, estimateSeconds int) {
	r.mu.Lock()
	alert, ok := r.findLocked(alertID)
	if !ok {
		r.mu.Unlock()
		return
	}

	_, alreadyNotified := r.notified[alertID]
	if alreadyNotified {
		r.mu.Unlock()
		if estimateSeconds <= staleArrivedSeconds {
			// The bus is effectively here and the rider was already told.
			_ = r.remove(ctx, alertID, true)
		}
		return
	}

	minutes := float64(estimateSeconds) / 60

	switch {
	case minutes > 0 && minutes <= float64(alert.LeadMinutes):
		r.notified[alertID] = struct{}{}
		removeAfter := time.Duration(estimateSeconds)*time.Second + approachRemoveSlack
		r.scheduleRemovalLocked(alertID, removeAfter)
		r.mu.Unlock()

		rounded := int(minutes + 0.5)
		if rounded < 1 {
			rounded = 1
		}
		r.fire(ctx, alert,
			fmt.Sprintf("Bus %s arrives at %s in about %d minutes. Time to head out.",
				alert.RouteName, alert.StopName, rounded),
			categoryApproach)

	case estimateSeconds <= 60:
		// Reached only when the estimate has collapsed to zero before the
		// approaching window was ever seen.
		r.notified[alertID] = struct{}{}
		r.scheduleRemovalLocked(alertID, arrivedRemoveDelay)
		r.mu.Unlock()

		r.fire(ctx, alert,
			fmt.Sprintf("Bus %s is pulling in at %s now.", alert.RouteName, alert.StopName),
			categoryArrive)

	default:
		r.mu.Unlock()
	}
}

// scheduleRemovalLocked schedules auto-removal, replacing any existing
// timer. The callback re-validates presence: a manual removal in the
// interim wins. Caller holds the lock.
func (r *Registry) scheduleRemovalLocked(alertID string, after time.Duration) {
	if t, ok := r.timers[alertID]; ok {
		t.Stop()
	}
	r.timers[alertID] = r.clock.AfterFunc(after, func() {
		r.mu.Lock()
		_, present := r.findLocked(alertID)
		delete(r.timers, alertID)
		r.mu.Unlock()
		if !present {
			return
		}
		_ = r.remove(context.Background(), alertID, true)
	})
}

// fire speaks the announcement and delivers a critical push notification.
func (r *Registry) fire(ctx context.Context, alert Alert, message, category string) {
	r.logger.Info().
		Str("alert_id", alert.ID).
		Str("category", category).
		Msg("waiting alert fired")

	r.speak(message, category, announce.PriorityUrgent)

	n := notify.New("Bus alert", message)
	n.Critical = true
	n.ThreadID = alert.ID
	if err := r.notifier.Deliver(ctx, n); err != nil {
		r.logger.Error().Err(err).Str("alert_id", alert.ID).Msg("notification delivery failed")
	}
}

func (r *Registry) speak(message, category string, priority announce.Priority) {
	if r.audioEnabled != nil && !r.audioEnabled() {
		return
	}
	r.gate.Announce(message, category, priority)
}

// dropBookkeepingLocked discards the notified mark and any pending timer
// for an alert id. An id must never outlive its alert in the notified set.
// Caller holds the lock.
func (r *Registry) dropBookkeepingLocked(id string) {
	delete(r.notified, id)
	if t, ok := r.timers[id]; ok {
		t.Stop()
		delete(r.timers, id)
	}
}

func (r *Registry) hasStopLocked(stopID string) bool {
	for _, a := range r.alerts {
		if a.StopID == stopID {
			return true
		}
	}
	return false
}

func (r *Registry) findLocked(id string) (Alert, bool) {
	for _, a := range r.alerts {
		if a.ID == id {
			return a, true
		}
	}
	return Alert{}, false
}

// persistLocked saves the alert list, logging rather than failing on error:
// in-memory state is authoritative for the session. Caller holds the lock.
func (r *Registry) persistLocked(ctx context.Context) {
	if err := r.repo.Save(ctx, r.alerts); err != nil {
		r.logger.Error().Err(err).Msg("persisting waiting alerts failed")
	}
}
