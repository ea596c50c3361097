// Package clock provides an injectable time source so timer-driven state
// machines can be tested without wall-clock waits.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop cancels the timer. It reports whether the call stopped the timer
	// before it fired.
	Stop() bool
}

// Clock abstracts the time source used by the monitors and registries.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc schedules fn to run after d and returns a handle to cancel it.
	AfterFunc(d time.Duration, fn func()) Timer
}

// System returns a Clock backed by the real time package.
func System() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Fake is a manually advanced Clock for tests. Scheduled callbacks run
// synchronously on the goroutine calling Advance, in firing order.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

// NewFake returns a Fake clock starting at the given time.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// AfterFunc schedules fn to run when the fake clock is advanced past d.
func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := &fakeTimer{
		clock: f,
		at:    f.now.Add(d),
		fn:    fn,
	}
	f.timers = append(f.timers, t)
	return t
}

// Advance moves the fake clock forward by d, firing due timers in order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)

	for {
		var next *fakeTimer
		for _, t := range f.timers {
			if t.stopped || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			break
		}

		next.stopped = true
		f.now = next.at
		fn := next.fn

		// Run the callback without holding the lock so it may schedule
		// further timers or read the clock.
		f.mu.Unlock()
		fn()
		f.mu.Lock()
	}

	f.now = target
	f.compact()
	f.mu.Unlock()
}

// compact drops fired/stopped timers. Caller holds the lock.
func (f *Fake) compact() {
	live := f.timers[:0]
	for _, t := range f.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	f.timers = live
	sort.Slice(f.timers, func(i, j int) bool { return f.timers[i].at.Before(f.timers[j].at) })
}

type fakeTimer struct {
	clock   *Fake
	at      time.Time
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}
