package transit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ServiceConfig holds configuration for the caching transit service.
type ServiceConfig struct {
	// Gateway is the upstream arrival-data client.
	Gateway Gateway

	// Logger for service operations.
	Logger zerolog.Logger

	// StaticTTL is how long to cache routes and stop lists (default: 24h).
	// Route shapes rarely change intraday.
	StaticTTL time.Duration

	// StaleIfErrorTTL allows serving stale static data when the upstream is
	// unavailable (default: 7 days). Arrival estimates are never cached.
	StaleIfErrorTTL time.Duration
}

// Service wraps a Gateway with caching for the static data (routes, stops)
// so the per-minute request budget is spent on arrival estimates.
// Arrival fetches always pass through.
type Service struct {
	gateway         Gateway
	logger          zerolog.Logger
	staticTTL       time.Duration
	staleIfErrorTTL time.Duration

	mu         sync.RWMutex
	routeCache map[string]*cachedRoutes // city -> routes
	stopCache  map[string]*cachedStops  // city:routeID -> stops
}

type cachedRoutes struct {
	routes    []Route
	fetchedAt time.Time
	expiresAt time.Time
}

type cachedStops struct {
	stops     []Stop
	fetchedAt time.Time
	expiresAt time.Time
}

// NewService creates a caching transit service.
func NewService(cfg ServiceConfig) *Service {
	staticTTL := cfg.StaticTTL
	if staticTTL == 0 {
		staticTTL = 24 * time.Hour
	}

	staleIfErrorTTL := cfg.StaleIfErrorTTL
	if staleIfErrorTTL == 0 {
		staleIfErrorTTL = 7 * 24 * time.Hour
	}

	return &Service{
		gateway:         cfg.Gateway,
		logger:          cfg.Logger,
		staticTTL:       staticTTL,
		staleIfErrorTTL: staleIfErrorTTL,
		routeCache:      make(map[string]*cachedRoutes),
		stopCache:       make(map[string]*cachedStops),
	}
}

// FetchRoutes returns the routes of a city, cached.
func (s *Service) FetchRoutes(ctx context.Context, city string) ([]Route, error) {
	s.mu.RLock()
	if c, ok := s.routeCache[city]; ok && time.Now().Before(c.expiresAt) {
		routes := c.routes
		s.mu.RUnlock()
		return routes, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check under the write lock.
	if c, ok := s.routeCache[city]; ok && time.Now().Before(c.expiresAt) {
		return c.routes, nil
	}

	routes, err := s.gateway.FetchRoutes(ctx, city)
	if err != nil {
		if c, ok := s.routeCache[city]; ok && time.Now().Before(c.fetchedAt.Add(s.staleIfErrorTTL)) {
			s.logger.Warn().Err(err).Str("city", city).
				Time("fetched_at", c.fetchedAt).
				Msg("serving stale route list due to upstream error")
			return c.routes, nil
		}
		return nil, err
	}

	now := time.Now()
	s.routeCache[city] = &cachedRoutes{
		routes:    routes,
		fetchedAt: now,
		expiresAt: now.Add(s.staticTTL),
	}

	s.logger.Debug().Str("city", city).Int("routes", len(routes)).Msg("route cache refreshed")
	return routes, nil
}

// FetchStops returns the stop list of a route, cached.
func (s *Service) FetchStops(ctx context.Context, city, routeID string) ([]Stop, error) {
	key := city + ":" + routeID

	s.mu.RLock()
	if c, ok := s.stopCache[key]; ok && time.Now().Before(c.expiresAt) {
		stops := c.stops
		s.mu.RUnlock()
		return stops, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.stopCache[key]; ok && time.Now().Before(c.expiresAt) {
		return c.stops, nil
	}

	stops, err := s.gateway.FetchStops(ctx, city, routeID)
	if err != nil {
		if c, ok := s.stopCache[key]; ok && time.Now().Before(c.fetchedAt.Add(s.staleIfErrorTTL)) {
			s.logger.Warn().Err(err).Str("route_id", routeID).
				Time("fetched_at", c.fetchedAt).
				Msg("serving stale stop list due to upstream error")
			return c.stops, nil
		}
		return nil, err
	}

	now := time.Now()
	s.stopCache[key] = &cachedStops{
		stops:     stops,
		fetchedAt: now,
		expiresAt: now.Add(s.staticTTL),
	}

	s.logger.Debug().Str("route_id", routeID).Int("stops", len(stops)).Msg("stop cache refreshed")
	return stops, nil
}

// FetchArrivals passes through to the gateway. Estimates are ephemeral and
// replaced wholesale on every poll, so they are never cached here.
func (s *Service) FetchArrivals(ctx context.Context, city, routeID string) ([]ArrivalEstimate, error) {
	return s.gateway.FetchArrivals(ctx, city, routeID)
}

// InvalidateCache clears all cached static data.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routeCache = make(map[string]*cachedRoutes)
	s.stopCache = make(map[string]*cachedStops)
}

// Ensure Service satisfies the Gateway contract.
var _ Gateway = (*Service)(nil)
