package timer

import "time"

// SessionClock counts the time a session has spent playing. Pausing bakes
// the running delta into a base offset, so the value never double counts and
// never decreases.
type SessionClock struct {
	sw        stopwatch
	startedAt time.Time
}

// NewSessionClock returns a stopped clock carrying base seconds of prior
// play. startedAt may be zero when unknown.
func NewSessionClock(base time.Duration, startedAt time.Time) *SessionClock {
	if base < 0 {
		base = 0
	}
	return &SessionClock{sw: stopwatch{base: base}, startedAt: startedAt}
}

// Start begins or resumes accumulation at now.
func (c *SessionClock) Start(now time.Time) {
	if c.startedAt.IsZero() {
		c.startedAt = now
	}
	c.sw.start(now)
}

// Pause stops accumulation and bakes the delta into the base offset.
func (c *SessionClock) Pause(now time.Time) {
	c.sw.stop(now)
}

// Running reports whether the clock is accumulating.
func (c *SessionClock) Running() bool {
	return c.sw.running
}

// Elapsed returns the total playing time at now.
func (c *SessionClock) Elapsed(now time.Time) time.Duration {
	return c.sw.elapsed(now)
}

// StartedAt returns the wall-clock instant of the first Start, or zero.
func (c *SessionClock) StartedAt() time.Time {
	return c.startedAt
}
