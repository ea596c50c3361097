package bis

import (
	"context"
	"sync"
	"time"
)

// PacerConfig holds configuration for the request pacer.
type PacerConfig struct {
	// MinSpacing is the minimum gap between consecutive requests.
	// Default: 3s.
	MinSpacing time.Duration

	// Window is the sliding window over which requests are counted.
	// Default: 60s.
	Window time.Duration

	// MaxPerWindow is the request cap within a window. Default: 18.
	MaxPerWindow int
}

// Pacer serializes upstream requests, enforcing a minimum spacing between
// consecutive calls and a sliding-window cap on total calls. Callers that
// would exceed either limit block until the quota clears. The pacer only
// ever blocks the polling goroutine that calls Wait, never the goroutine
// owning monitor or registry state.
type Pacer struct {
	minSpacing   time.Duration
	window       time.Duration
	maxPerWindow int

	mu   sync.Mutex
	last time.Time
	sent []time.Time
}

// NewPacer creates a request pacer.
func NewPacer(cfg PacerConfig) *Pacer {
	if cfg.MinSpacing == 0 {
		cfg.MinSpacing = 3 * time.Second
	}
	if cfg.Window == 0 {
		cfg.Window = 60 * time.Second
	}
	if cfg.MaxPerWindow == 0 {
		cfg.MaxPerWindow = 18
	}

	return &Pacer{
		minSpacing:   cfg.MinSpacing,
		window:       cfg.Window,
		maxPerWindow: cfg.MaxPerWindow,
	}
}

// Wait blocks until a request may be issued, then records it. Returns the
// context error if the context is cancelled while waiting.
func (p *Pacer) Wait(ctx context.Context) error {
	for {
		p.mu.Lock()
		now := time.Now()
		delay := p.requiredDelayLocked(now)
		if delay <= 0 {
			p.recordLocked(now)
			p.mu.Unlock()
			return nil
		}
		p.mu.Unlock()

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			// Re-check: another caller may have consumed the slot.
		}
	}
}

// requiredDelayLocked computes how long the caller must wait before the next
// request is allowed. Caller holds the lock.
func (p *Pacer) requiredDelayLocked(now time.Time) time.Duration {
	var delay time.Duration

	if !p.last.IsZero() {
		if gap := p.minSpacing - now.Sub(p.last); gap > delay {
			delay = gap
		}
	}

	p.pruneLocked(now)
	if len(p.sent) >= p.maxPerWindow {
		// Wait until the oldest request in the window ages out.
		if gap := p.sent[0].Add(p.window).Sub(now); gap > delay {
			delay = gap
		}
	}

	return delay
}

func (p *Pacer) recordLocked(now time.Time) {
	p.last = now
	p.sent = append(p.sent, now)
}

func (p *Pacer) pruneLocked(now time.Time) {
	cutoff := now.Add(-p.window)
	i := 0
	for i < len(p.sent) && !p.sent[i].After(cutoff) {
		i++
	}
	if i > 0 {
		p.sent = append(p.sent[:0], p.sent[i:]...)
	}
}

// InFlightWindow returns the number of requests recorded inside the current
// sliding window.
func (p *Pacer) InFlightWindow() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pruneLocked(time.Now())
	return len(p.sent)
}
