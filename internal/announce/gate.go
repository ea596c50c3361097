// Package announce implements the announcement gate: the single decision
// point for whether a candidate spoken message may be spoken now, and the
// ordering and preemption of speech requests. The destination monitor and
// the waiting-alert registry share one gate and must only touch its history
// through the exported operations.
package announce

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ridealert/ridealert/internal/clock"
	"github.com/ridealert/ridealert/internal/speech"
)

// Priority orders announcement urgency. Higher values preempt lower ones.
type Priority int

// Announcement priorities.
const (
	// PriorityNormal is the default: queued behind the current utterance,
	// spoken with the user's configured rate and volume.
	PriorityNormal Priority = iota

	// PriorityHigh preempts the current utterance at a word boundary.
	PriorityHigh

	// PriorityUrgent preempts immediately and bypasses all suppression.
	PriorityUrgent

	// PriorityTest bypasses suppression like urgent; used by the settings
	// screen's "test announcement" button.
	PriorityTest
)

// Default gate timings.
const (
	// DefaultMinInterval is the minimum re-announcement interval for an
	// identical (category, message) pair. Configurable between 5 and 10
	// seconds.
	DefaultMinInterval = 7 * time.Second

	// recordMaxAge bounds the dedup history: entries older than this are
	// pruned on every write.
	recordMaxAge = 5 * time.Minute
)

// UserParams are the rider-configured speech parameters applied to
// normal-priority announcements.
type UserParams struct {
	Rate     float64
	Volume   float64
	Language string
}

// DefaultUserParams returns the out-of-box speech parameters.
func DefaultUserParams() UserParams {
	return UserParams{Rate: 0.5, Volume: 1.0, Language: "en-US"}
}

// GateConfig holds configuration for the announcement gate.
type GateConfig struct {
	// Engine is the speech backend (required).
	Engine speech.Engine

	// Session activates the platform audio session before speaking.
	// Optional; activation failure is logged and speech still attempted.
	Session speech.SessionActivator

	// MinInterval is the re-announcement suppression window.
	// Default: DefaultMinInterval. Clamped to 5–10s.
	MinInterval time.Duration

	// UserParams are the speech parameters for normal priority.
	UserParams UserParams

	// Clock is the time source. Default: system clock.
	Clock clock.Clock

	// Logger for gate decisions.
	Logger zerolog.Logger
}

// Gate decides whether announcements may be spoken and drives the speech
// engine with priority preemption and a single FIFO pending queue.
type Gate struct {
	engine      speech.Engine
	session     speech.SessionActivator
	minInterval time.Duration
	clock       clock.Clock
	logger      zerolog.Logger

	mu         sync.Mutex
	records    map[string]time.Time
	queue      []speech.Utterance
	userParams UserParams

	spoken     metric.Int64Counter
	suppressed metric.Int64Counter
}

// NewGate creates an announcement gate.
func NewGate(cfg GateConfig) *Gate {
	minInterval := cfg.MinInterval
	if minInterval == 0 {
		minInterval = DefaultMinInterval
	}
	if minInterval < 5*time.Second {
		minInterval = 5 * time.Second
	}
	if minInterval > 10*time.Second {
		minInterval = 10 * time.Second
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.System()
	}

	params := cfg.UserParams
	if params == (UserParams{}) {
		params = DefaultUserParams()
	}

	meter := otel.Meter("ridealert/announce")
	spoken, _ := meter.Int64Counter("announcements.spoken",
		metric.WithDescription("Announcements dispatched to the speech engine"))
	suppressed, _ := meter.Int64Counter("announcements.suppressed",
		metric.WithDescription("Announcements suppressed by the gate"))

	g := &Gate{
		engine:      cfg.Engine,
		session:     cfg.Session,
		minInterval: minInterval,
		clock:       clk,
		logger:      cfg.Logger,
		records:     make(map[string]time.Time),
		userParams:  params,
		spoken:      spoken,
		suppressed:  suppressed,
	}

	cfg.Engine.OnFinished(g.onUtteranceFinished)
	return g
}

// dedupKey builds the suppression key for a message in a category.
func dedupKey(category, message string) string {
	return category + "|" + message
}

// MayAnnounce reports whether message may be spoken now in the given
// category at the given priority.
func (g *Gate) MayAnnounce(message, category string, priority Priority) bool {
	// Urgent and test bypass all suppression.
	if priority >= PriorityUrgent {
		return true
	}

	if g.engine.Speaking() && priority < PriorityHigh {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	last, ok := g.records[dedupKey(category, message)]
	if ok && g.clock.Now().Sub(last) < g.minInterval {
		return false
	}
	return true
}

// RecordAnnounced stamps the dedup key for a message. It must be called
// exactly once per successful speak, immediately before dispatching to the
// engine, so two near-simultaneous callers cannot both pass the gate.
func (g *Gate) RecordAnnounced(message, category string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recordLocked(message, category)
}

func (g *Gate) recordLocked(message, category string) {
	now := g.clock.Now()
	g.records[dedupKey(category, message)] = now
	g.pruneLocked(now)
}

// passesDedup applies only the re-announcement window; urgent and test
// bypass it.
func (g *Gate) passesDedup(message, category string, priority Priority) bool {
	if priority >= PriorityUrgent {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	last, ok := g.records[dedupKey(category, message)]
	return !ok || g.clock.Now().Sub(last) >= g.minInterval
}

// pruneLocked drops history entries older than recordMaxAge. Caller holds
// the lock.
func (g *Gate) pruneLocked(now time.Time) {
	for key, at := range g.records {
		if now.Sub(at) > recordMaxAge {
			delete(g.records, key)
		}
	}
}

// Announce runs the full path: dedup check, record, session activation, and
// dispatch with priority preemption. Unlike MayAnnounce, a normal-priority
// message arriving while something is speaking is not refused: it is queued
// FIFO and spoken once the current utterance finishes. Reports whether the
// message was spoken or queued.
func (g *Gate) Announce(message, category string, priority Priority) bool {
	if !g.passesDedup(message, category, priority) {
		g.suppressed.Add(context.Background(), 1, metric.WithAttributes(attribute.String("category", category)))
		g.logger.Debug().
			Str("category", category).
			Str("message", message).
			Msg("announcement suppressed")
		return false
	}

	g.mu.Lock()
	g.recordLocked(message, category)
	utterance := g.utteranceLocked(message, priority)
	g.mu.Unlock()

	if g.session != nil {
		if err := g.session.Activate(); err != nil {
			// Some platforms speak fine without an active session; a muted
			// utterance is an accepted degradation.
			g.logger.Warn().Err(err).Msg("audio session activation failed, speaking anyway")
		}
	}

	g.dispatch(utterance, priority)

	g.spoken.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("category", category),
		attribute.Int("priority", int(priority)),
	))
	return true
}

// dispatch hands the utterance to the engine, preempting or queueing based
// on priority.
func (g *Gate) dispatch(u speech.Utterance, priority Priority) {
	if g.engine.Speaking() {
		switch {
		case priority >= PriorityUrgent:
			_ = g.engine.Stop(speech.BoundaryImmediate)
		case priority == PriorityHigh:
			_ = g.engine.Stop(speech.BoundaryWord)
		default:
			// Normal waits its turn: single FIFO queue, no reordering.
			g.mu.Lock()
			g.queue = append(g.queue, u)
			g.mu.Unlock()
			return
		}
	}

	if err := g.engine.Speak(u); err != nil {
		g.logger.Error().Err(err).Msg("speech engine rejected utterance")
	}
}

// onUtteranceFinished drains the pending queue when the engine completes an
// utterance.
func (g *Gate) onUtteranceFinished() {
	g.mu.Lock()
	if len(g.queue) == 0 {
		g.mu.Unlock()
		return
	}
	next := g.queue[0]
	g.queue = g.queue[1:]
	g.mu.Unlock()

	if err := g.engine.Speak(next); err != nil {
		g.logger.Error().Err(err).Msg("speech engine rejected queued utterance")
	}
}

// utteranceLocked builds the utterance with the parameter policy for the
// priority. Caller holds the lock (reads userParams).
func (g *Gate) utteranceLocked(message string, priority Priority) speech.Utterance {
	u := speech.Utterance{
		Text:     message,
		Language: g.userParams.Language,
	}

	switch {
	case priority >= PriorityUrgent:
		u.Rate = 0.55
		u.Volume = 1.0
		u.PreDelay = 0.1
	case priority == PriorityHigh:
		u.Rate = 0.5
		u.Volume = 0.9
		u.PreDelay = 0.2
	default:
		u.Rate = g.userParams.Rate
		u.Volume = g.userParams.Volume
		u.PreDelay = 0.5
	}
	return u
}

// SetUserParams updates the rider-configured speech parameters.
func (g *Gate) SetUserParams(p UserParams) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.userParams = p
}

// ClearHistory removes dedup records whose category starts with prefix.
// The destination monitor uses this to reset trip-scoped history when the
// destination changes.
func (g *Gate) ClearHistory(categoryPrefix string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for key := range g.records {
		if strings.HasPrefix(key, categoryPrefix) {
			delete(g.records, key)
		}
	}
}
