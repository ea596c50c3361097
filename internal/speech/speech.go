// Package speech defines the synthesis engine contract consumed by the
// announcement gate. The platform speech engine itself is external; this
// package only describes what the core hands to it.
package speech

import (
	"sync"

	"github.com/rs/zerolog"
)

// Boundary controls how an in-progress utterance is stopped.
type Boundary int

// Stop boundaries.
const (
	// BoundaryImmediate cuts the utterance off mid-word.
	BoundaryImmediate Boundary = iota

	// BoundaryWord lets the current word finish before stopping.
	BoundaryWord
)

// Utterance is one spoken message with its delivery parameters.
type Utterance struct {
	Text     string
	Language string

	// Rate is the speech rate, 0..1 scaled to the engine's range.
	Rate float64

	// Volume is the output volume, 0..1.
	Volume float64

	// PreDelay is the pause before speaking begins, in seconds. Larger
	// values avoid clipping onto a UI transition sound.
	PreDelay float64
}

// Engine is a speech synthesis backend.
type Engine interface {
	// Speak starts speaking the utterance. It returns once the utterance is
	// accepted, not once it finishes; completion is signalled through the
	// callback registered with OnFinished.
	Speak(u Utterance) error

	// Stop halts the current utterance at the given boundary. No-op when
	// nothing is speaking.
	Stop(b Boundary) error

	// Speaking reports whether an utterance is currently being spoken.
	Speaking() bool

	// OnFinished registers the callback invoked when an utterance finishes
	// or is stopped.
	OnFinished(fn func())
}

// SessionActivator prepares the platform audio session before speech.
// Activation failure is a degradation, not an error: the gate logs it and
// attempts the utterance regardless.
type SessionActivator interface {
	Activate() error
}

// LogEngine is an Engine that writes utterances to the log and completes
// them instantly. It backs the daemon when no platform engine is attached,
// and doubles as a deterministic engine for local runs.
type LogEngine struct {
	logger zerolog.Logger

	mu       sync.Mutex
	finished func()
}

// NewLogEngine creates a log-backed engine.
func NewLogEngine(logger zerolog.Logger) *LogEngine {
	return &LogEngine{logger: logger}
}

// Speak logs the utterance and immediately reports completion.
func (e *LogEngine) Speak(u Utterance) error {
	e.logger.Info().
		Str("text", u.Text).
		Float64("rate", u.Rate).
		Float64("volume", u.Volume).
		Msg("speak")

	e.mu.Lock()
	finished := e.finished
	e.mu.Unlock()

	if finished != nil {
		finished()
	}
	return nil
}

// Stop is a no-op: utterances complete instantly.
func (e *LogEngine) Stop(Boundary) error { return nil }

// Speaking always reports false: utterances complete instantly.
func (e *LogEngine) Speaking() bool { return false }

// OnFinished registers the completion callback.
func (e *LogEngine) OnFinished(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finished = fn
}

var _ Engine = (*LogEngine)(nil)
