package destination_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridealert/ridealert/internal/destination"
	"github.com/ridealert/ridealert/internal/location"
	"github.com/ridealert/ridealert/internal/transit"
	"github.com/ridealert/ridealert/pkg/geo"
)

type stubGateway struct {
	mu         sync.Mutex
	routes     []transit.Route
	stops      []transit.Stop
	err        error
	stopCalls  int
	routeCalls int
}

func (g *stubGateway) FetchRoutes(context.Context, string) ([]transit.Route, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.routeCalls++
	return g.routes, g.err
}

func (g *stubGateway) FetchStops(context.Context, string, string) ([]transit.Stop, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopCalls++
	return g.stops, g.err
}

func (g *stubGateway) FetchArrivals(context.Context, string, string) ([]transit.ArrivalEstimate, error) {
	return nil, nil
}

func newPollerFixture(t *testing.T) (*fixture, *stubGateway, *destination.Poller) {
	t.Helper()
	f := newFixture(t)
	gw := &stubGateway{
		routes: []transit.Route{{ID: "r701", Name: "701", City: "ulsan"}},
		stops:  route701(),
	}
	poller := destination.NewPoller(destination.PollerConfig{
		Monitor: f.monitor,
		Gateway: gw,
		City:    "ulsan",
		Tracker: f.tracker,
		Logger:  zerolog.Nop(),
	})
	return f, gw, poller
}

func TestPoller_IdleTripSkipsUpstream(t *testing.T) {
	_, gw, poller := newPollerFixture(t)

	poller.Tick(context.Background())

	assert.Zero(t, gw.routeCalls)
	assert.Zero(t, gw.stopCalls)
}

func TestPoller_FeedsNearestStopIntoMonitor(t *testing.T) {
	f, _, poller := newPollerFixture(t)
	f.monitor.SetDestination(context.Background(), "701", "Cedar")
	f.engine.reset()

	// Device sits at Birch St: nearest index 1, two stops from Cedar.
	f.tracker.Update(location.Position{Coordinate: geo.Coordinate{Lat: 35.5050, Lon: 129.3000}})
	// The geofences are registered on the first sequenced tick; entering them
	// from a later position is covered elsewhere.
	poller.Tick(context.Background())

	spoken := f.engine.spoken()
	require.NotEmpty(t, spoken)
	assert.Contains(t, spoken[0], "stops away")
	assert.Equal(t, destination.StateApproachingNotified, f.monitor.State())
}

func TestPoller_FetchFailureLeavesTripUntouched(t *testing.T) {
	f, gw, poller := newPollerFixture(t)
	f.monitor.SetDestination(context.Background(), "701", "Cedar")
	f.engine.reset()

	gw.mu.Lock()
	gw.err = errors.New("upstream down")
	gw.mu.Unlock()

	poller.Tick(context.Background())

	assert.Equal(t, destination.StateTracking, f.monitor.State())
	assert.Empty(t, f.engine.spoken())
}

func TestPoller_UnknownRouteSkipsTick(t *testing.T) {
	f, gw, poller := newPollerFixture(t)
	f.monitor.SetDestination(context.Background(), "999", "Cedar")
	f.engine.reset()

	poller.Tick(context.Background())

	assert.NotZero(t, gw.routeCalls)
	assert.Zero(t, gw.stopCalls, "no stop fetch without a resolved route")
	assert.Equal(t, destination.StateTracking, f.monitor.State())
}
