// Package timer holds the countdown and count-up state used while a workout
// is running. Timers keep no goroutines of their own: they read the clock when
// asked, and a Scheduler drives the one-second callback that lets the session
// react to expiry. Every value can be captured synchronously.
package timer

import (
	"sync"
	"time"
)

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// System is the wall clock.
type System struct{}

// Now returns time.Now.
func (System) Now() time.Time { return time.Now() }

// Manual is a Clock that only moves when told to. Safe for concurrent use.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual returns a Manual clock set to start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the current manual instant.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// stopwatch accumulates running time across pauses.
type stopwatch struct {
	base    time.Duration
	since   time.Time
	running bool
}

func (s *stopwatch) start(now time.Time) {
	if s.running {
		return
	}
	s.since = now
	s.running = true
}

// stop bakes the running delta into base.
func (s *stopwatch) stop(now time.Time) {
	if !s.running {
		return
	}
	s.base += delta(s.since, now)
	s.running = false
}

func (s *stopwatch) elapsed(now time.Time) time.Duration {
	if !s.running {
		return s.base
	}
	return s.base + delta(s.since, now)
}

func (s *stopwatch) reset() {
	*s = stopwatch{}
}

// countdown runs from total towards zero.
type countdown struct {
	total time.Duration
	sw    stopwatch
}

func (c *countdown) remaining(now time.Time) time.Duration {
	left := c.total - c.sw.elapsed(now)
	if left < 0 {
		return 0
	}
	return left
}

// delta never goes negative, so a clock stepping backwards cannot shrink
// accumulated time.
func delta(from, to time.Time) time.Duration {
	if d := to.Sub(from); d > 0 {
		return d
	}
	return 0
}

func seconds(d time.Duration) float64 {
	return d.Seconds()
}

func fromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
