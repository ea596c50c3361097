package destination_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridealert/ridealert/internal/announce"
	"github.com/ridealert/ridealert/internal/clock"
	"github.com/ridealert/ridealert/internal/destination"
	"github.com/ridealert/ridealert/internal/location"
	"github.com/ridealert/ridealert/internal/notify"
	"github.com/ridealert/ridealert/internal/speech"
	"github.com/ridealert/ridealert/internal/transit"
	"github.com/ridealert/ridealert/pkg/geo"
)

// captureEngine records spoken texts; utterances complete instantly.
type captureEngine struct {
	mu       sync.Mutex
	texts    []string
	finished func()
}

func (e *captureEngine) Speak(u speech.Utterance) error {
	e.mu.Lock()
	e.texts = append(e.texts, u.Text)
	finished := e.finished
	e.mu.Unlock()
	if finished != nil {
		finished()
	}
	return nil
}

func (e *captureEngine) Stop(speech.Boundary) error { return nil }
func (e *captureEngine) Speaking() bool             { return false }

func (e *captureEngine) OnFinished(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finished = fn
}

func (e *captureEngine) spoken() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.texts))
	copy(out, e.texts)
	return out
}

func (e *captureEngine) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.texts = nil
}

var _ speech.Engine = (*captureEngine)(nil)

// route701 is a four-stop line; coordinates step ~550m apart.
func route701() []transit.Stop {
	return []transit.Stop{
		{ID: "s0", Name: "Alder Ave", Lat: 35.5000, Lon: 129.3000, Sequence: 0},
		{ID: "s1", Name: "Birch St", Lat: 35.5050, Lon: 129.3000, Sequence: 1},
		{ID: "s2", Name: "Cedar Plaza", Lat: 35.5100, Lon: 129.3000, Sequence: 2},
		{ID: "s3", Name: "Dogwood Park", Lat: 35.5150, Lon: 129.3000, Sequence: 3},
	}
}

type fixture struct {
	monitor  *destination.Monitor
	engine   *captureEngine
	notifier *notify.Memory
	tracker  *location.Tracker
	clock    *clock.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	fake := clock.NewFake(time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC))
	engine := &captureEngine{}
	gate := announce.NewGate(announce.GateConfig{
		Engine: engine,
		Clock:  fake,
		Logger: zerolog.Nop(),
	})
	tracker := location.NewTracker(location.TrackerConfig{Logger: zerolog.Nop()})
	notifier := notify.NewMemory()

	monitor := destination.NewMonitor(destination.MonitorConfig{
		Gate:     gate,
		Notifier: notifier,
		Tracker:  tracker,
		Clock:    fake,
		Logger:   zerolog.Nop(),
	})

	return &fixture{
		monitor:  monitor,
		engine:   engine,
		notifier: notifier,
		tracker:  tracker,
		clock:    fake,
	}
}

func (f *fixture) tickAt(index int) {
	f.monitor.HandleTick(context.Background(), destination.Update{
		NearestIndex: index,
		Stops:        route701(),
	})
}

func TestRemainingStops(t *testing.T) {
	stops := route701()

	assert.Equal(t, 3, destination.RemainingStops(stops, 0, "Cedar"))
	assert.Equal(t, 2, destination.RemainingStops(stops, 1, "Cedar"))
	assert.Equal(t, destination.NotFound, destination.RemainingStops(stops, 2, "Cedar"),
		"only stops after the current index are considered")
	assert.Equal(t, destination.NotFound, destination.RemainingStops(stops, 0, "Elm"))

	// Substring matching: suffixed upstream names still match.
	assert.Equal(t, 2, destination.RemainingStops(stops, 0, "Birch"))
}

func TestMonitor_ScenarioRideToCedar(t *testing.T) {
	f := newFixture(t)
	f.monitor.SetDestination(context.Background(), "701", "Cedar")
	f.engine.reset()

	// Duplicate polls at each index must not duplicate announcements.
	for _, idx := range []int{0, 0, 1} {
		f.tickAt(idx)
	}

	spoken := f.engine.spoken()
	require.Len(t, spoken, 1, "approaching fires once, two stops out")
	assert.Contains(t, spoken[0], "2 stops away")
	assert.Equal(t, destination.StateApproachingNotified, f.monitor.State())

	f.tickAt(2)
	spoken = f.engine.spoken()
	require.Len(t, spoken, 2)
	assert.Contains(t, spoken[1], "This is Cedar")
	assert.Equal(t, destination.StateArrivedNotified, f.monitor.State())

	assert.Len(t, f.notifier.Delivered(), 2)

	// Five seconds later the trip clears itself, silently.
	f.clock.Advance(6 * time.Second)
	assert.Equal(t, destination.StateIdle, f.monitor.State())
	assert.Len(t, f.engine.spoken(), 2, "auto-clear speaks no cancellation")
}

func TestMonitor_SingleFirePerTrip(t *testing.T) {
	f := newFixture(t)
	f.monitor.SetDestination(context.Background(), "701", "Cedar")
	f.engine.reset()

	// Hammer the same observations; each announcement still fires once.
	for i := 0; i < 5; i++ {
		f.tickAt(1)
	}
	for i := 0; i < 5; i++ {
		f.tickAt(2)
	}

	spoken := f.engine.spoken()
	require.Len(t, spoken, 2)
	assert.Contains(t, spoken[0], "stops away")
	assert.Contains(t, spoken[1], "This is Cedar")
}

func TestMonitor_ArrivedWithoutApproaching(t *testing.T) {
	f := newFixture(t)
	f.monitor.SetDestination(context.Background(), "701", "Cedar")
	f.engine.reset()

	// The vehicle jumps past the lead window between polls.
	f.tickAt(2)

	spoken := f.engine.spoken()
	require.Len(t, spoken, 1)
	assert.Contains(t, spoken[0], "This is Cedar")
	assert.Equal(t, destination.StateArrivedNotified, f.monitor.State())
}

func TestMonitor_SetSameDestinationIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.monitor.SetDestination(context.Background(), "701", "Cedar")
	f.monitor.SetDestination(context.Background(), "701", "Cedar")

	assert.Len(t, f.engine.spoken(), 1, "one confirmation for two identical sets")
	assert.Equal(t, destination.StateTracking, f.monitor.State())
}

func TestMonitor_NewDestinationResetsTrip(t *testing.T) {
	f := newFixture(t)
	f.monitor.SetDestination(context.Background(), "701", "Cedar")
	f.tickAt(1)
	require.Equal(t, destination.StateApproachingNotified, f.monitor.State())

	f.monitor.SetDestination(context.Background(), "701", "Dogwood")
	assert.Equal(t, destination.StateTracking, f.monitor.State())

	// The new trip fires its own approaching announcement from scratch.
	f.engine.reset()
	f.tickAt(2)
	spoken := f.engine.spoken()
	require.Len(t, spoken, 1)
	assert.Contains(t, spoken[0], "Dogwood")
}

func TestMonitor_IdempotentClear(t *testing.T) {
	f := newFixture(t)
	f.monitor.SetDestination(context.Background(), "701", "Cedar")
	f.engine.reset()

	f.monitor.ClearDestination(context.Background())
	f.monitor.ClearDestination(context.Background())

	assert.Len(t, f.engine.spoken(), 1, "second clear is a silent no-op")
	assert.Equal(t, destination.StateIdle, f.monitor.State())
}

func TestMonitor_ClearCancelsAutoClearTimer(t *testing.T) {
	f := newFixture(t)
	f.monitor.SetDestination(context.Background(), "701", "Cedar")
	f.tickAt(2)
	require.Equal(t, destination.StateArrivedNotified, f.monitor.State())

	// A fresh trip starts before the auto-clear fires; the stale timer must
	// not tear it down.
	f.monitor.SetDestination(context.Background(), "701", "Dogwood")
	f.clock.Advance(10 * time.Second)

	assert.Equal(t, destination.StateTracking, f.monitor.State())
	route, stop := f.monitor.Destination()
	assert.Equal(t, "701", route)
	assert.Equal(t, "Dogwood", stop)
}

func TestMonitor_TicksWhileIdleAreIgnored(t *testing.T) {
	f := newFixture(t)
	f.tickAt(2)

	assert.Empty(t, f.engine.spoken())
	assert.Empty(t, f.notifier.Delivered())
	assert.Equal(t, destination.StateIdle, f.monitor.State())
}

func TestMonitor_GPSFallbackThresholds(t *testing.T) {
	f := newFixture(t)
	f.monitor.SetDestination(context.Background(), "701", "Cedar")

	// One sequenced tick teaches the monitor the destination coordinate.
	f.tickAt(0)
	f.engine.reset()

	cedar := geo.Coordinate{Lat: 35.5100, Lon: 129.3000}
	near := geo.Coordinate{Lat: 35.5120, Lon: 129.3000} // ~220m out

	// Sequence data drops out; a position inside 300m fires approaching.
	f.monitor.HandleTick(context.Background(), destination.Update{
		NearestIndex: destination.NotFound,
		Position:     &location.Position{Coordinate: near},
	})
	spoken := f.engine.spoken()
	require.Len(t, spoken, 1)
	assert.Contains(t, spoken[0], "coming up")
	assert.Equal(t, destination.StateApproachingNotified, f.monitor.State())

	// Inside 100m fires arrived.
	f.monitor.HandleTick(context.Background(), destination.Update{
		NearestIndex: destination.NotFound,
		Position:     &location.Position{Coordinate: cedar},
	})
	assert.Equal(t, destination.StateArrivedNotified, f.monitor.State())
	require.Len(t, f.engine.spoken(), 2)
	assert.Contains(t, f.engine.spoken()[1], "This is Cedar")
}

func TestMonitor_GPSAndSequenceShareFlags(t *testing.T) {
	f := newFixture(t)
	f.monitor.SetDestination(context.Background(), "701", "Cedar")
	f.tickAt(0)
	f.engine.reset()

	// GPS fires approaching first.
	f.monitor.HandleTick(context.Background(), destination.Update{
		NearestIndex: destination.NotFound,
		Position:     &location.Position{Coordinate: geo.Coordinate{Lat: 35.5120, Lon: 129.3000}},
	})
	require.Len(t, f.engine.spoken(), 1)

	// Sequence data comes back at the lead distance: no second approaching.
	f.tickAt(1)
	assert.Len(t, f.engine.spoken(), 1, "the two signals share one flag")
}

func TestMonitor_GeofenceEntryFiresArrived(t *testing.T) {
	f := newFixture(t)
	f.monitor.SetDestination(context.Background(), "701", "Cedar")
	f.tickAt(0) // registers the geofences
	f.engine.reset()

	// Walk the device into the 100m ring around Cedar Plaza.
	f.tracker.Update(location.Position{Coordinate: geo.Coordinate{Lat: 35.4000, Lon: 129.3000}})
	f.tracker.Update(location.Position{Coordinate: geo.Coordinate{Lat: 35.5100, Lon: 129.3000}})

	assert.Equal(t, destination.StateArrivedNotified, f.monitor.State())
	spoken := f.engine.spoken()
	require.NotEmpty(t, spoken)
	assert.Contains(t, spoken[len(spoken)-1], "This is Cedar")
}
