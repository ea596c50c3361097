package destination

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ridealert/ridealert/internal/location"
	"github.com/ridealert/ridealert/internal/transit"
	"github.com/ridealert/ridealert/pkg/geo"
)

// DefaultPollInterval is how often the poller refreshes the trip view.
const DefaultPollInterval = 15 * time.Second

// PollerConfig holds configuration for the trip poller.
type PollerConfig struct {
	// Monitor receives the assembled updates (required).
	Monitor *Monitor

	// Gateway serves route and stop data; a caching wrapper is expected so
	// polling does not burn the upstream request budget (required).
	Gateway transit.Gateway

	// City scopes upstream calls.
	City string

	// Tracker supplies the current device position. Optional.
	Tracker *location.Tracker

	// Interval overrides the poll cadence. Default: DefaultPollInterval.
	Interval time.Duration

	// Logger for poller operations.
	Logger zerolog.Logger
}

// Poller periodically assembles an Update for the active trip: the stop list
// of the tracked route and the nearest-stop index derived from the device
// position. It is the only goroutine that calls upstream on the monitor's
// behalf, so pacing delays never block state transitions.
type Poller struct {
	monitor  *Monitor
	gateway  transit.Gateway
	city     string
	tracker  *location.Tracker
	interval time.Duration
	logger   zerolog.Logger
}

// NewPoller creates a trip poller.
func NewPoller(cfg PollerConfig) *Poller {
	interval := cfg.Interval
	if interval == 0 {
		interval = DefaultPollInterval
	}

	return &Poller{
		monitor:  cfg.Monitor,
		gateway:  cfg.Gateway,
		city:     cfg.City,
		tracker:  cfg.Tracker,
		interval: interval,
		logger:   cfg.Logger,
	}
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick assembles and delivers one update for the active trip. A tick with no
// active trip, or whose fetches fail, is a no-op: the monitor simply waits
// for the next one.
func (p *Poller) Tick(ctx context.Context) {
	if p.monitor.State() == StateIdle {
		return
	}
	routeName, _ := p.monitor.Destination()

	routeID, err := p.resolveRoute(ctx, routeName)
	if err != nil {
		p.logger.Warn().Err(err).Str("route", routeName).Msg("route lookup failed, skipping tick")
		return
	}

	stops, err := p.gateway.FetchStops(ctx, p.city, routeID)
	if err != nil {
		p.logger.Warn().Err(err).Str("route", routeName).Msg("stop fetch failed, skipping tick")
		return
	}

	var position *location.Position
	if p.tracker != nil {
		position = p.tracker.Current()
	}

	p.monitor.HandleTick(ctx, Update{
		NearestIndex: nearestIndex(stops, position),
		Stops:        stops,
		Position:     position,
	})
}

// resolveRoute finds the route id whose name contains routeName.
func (p *Poller) resolveRoute(ctx context.Context, routeName string) (string, error) {
	routes, err := p.gateway.FetchRoutes(ctx, p.city)
	if err != nil {
		return "", err
	}
	for _, r := range routes {
		if strings.Contains(r.Name, routeName) {
			return r.ID, nil
		}
	}
	return "", transit.ErrNoData
}

// nearestIndex returns the index of the stop closest to the position, or
// NotFound when no position or no stop coordinates are available.
func nearestIndex(stops []transit.Stop, position *location.Position) int {
	if position == nil {
		return NotFound
	}

	best := NotFound
	bestDist := 0.0
	for i, s := range stops {
		c := geo.Coordinate{Lat: s.Lat, Lon: s.Lon}
		if c.IsZero() {
			continue
		}
		d := geo.Distance(position.Coordinate, c)
		if best == NotFound || d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}
