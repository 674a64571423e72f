package timer

import "time"

// EmomState is the capturable view of an EMOM round timer.
type EmomState struct {
	Active           bool    `json:"active"`
	Running          bool    `json:"running"`
	RemainingSeconds float64 `json:"remainingSeconds"`
	IntervalSeconds  float64 `json:"intervalSeconds"`
	Round            int     `json:"round"`
	TotalRounds      int     `json:"totalRounds"`
}

// EmomTimer counts down one fixed interval per round. Round is 1-based. It is
// pausable by the operator independently of the session freeze.
type EmomTimer struct {
	cd          countdown
	active      bool
	held        bool
	round       int
	totalRounds int
}

// Arm prepares round of total without starting the countdown.
func (e *EmomTimer) Arm(interval time.Duration, round, total int) {
	*e = EmomTimer{
		cd:          countdown{total: interval},
		active:      true,
		held:        true,
		round:       round,
		totalRounds: total,
	}
}

// Start arms round of total and runs it from now.
func (e *EmomTimer) Start(now time.Time, interval time.Duration, round, total int) {
	e.Arm(interval, round, total)
	e.Resume(now)
}

// Active reports whether the timer is armed for a round.
func (e *EmomTimer) Active() bool {
	return e.active
}

// Running reports whether the operator has the round running.
func (e *EmomTimer) Running() bool {
	return e.active && !e.held
}

// Round returns the current 1-based round.
func (e *EmomTimer) Round() int {
	return e.round
}

// TotalRounds returns the number of rounds in the block.
func (e *EmomTimer) TotalRounds() int {
	return e.totalRounds
}

// Interval returns the round length.
func (e *EmomTimer) Interval() time.Duration {
	return e.cd.total
}

// Remaining returns the time left in the round at now.
func (e *EmomTimer) Remaining(now time.Time) time.Duration {
	if !e.active {
		return 0
	}
	return e.cd.remaining(now)
}

// Pause holds the round countdown.
func (e *EmomTimer) Pause(now time.Time) {
	e.held = true
	e.cd.sw.stop(now)
}

// Resume releases a held round.
func (e *EmomTimer) Resume(now time.Time) {
	e.held = false
	e.Thaw(now)
}

// Freeze stops the countdown without changing Running.
func (e *EmomTimer) Freeze(now time.Time) {
	e.cd.sw.stop(now)
}

// Thaw restarts a frozen countdown unless the operator holds it.
func (e *EmomTimer) Thaw(now time.Time) {
	if e.active && !e.held {
		e.cd.sw.start(now)
	}
}

// Tick reports whether the running round reached zero at now. The countdown
// stops; the caller restarts it for the next round or stops it for good.
func (e *EmomTimer) Tick(now time.Time) bool {
	if !e.active || !e.cd.sw.running || e.cd.remaining(now) > 0 {
		return false
	}
	e.cd.sw.stop(now)
	return true
}

// Stop disarms the timer.
func (e *EmomTimer) Stop() {
	*e = EmomTimer{}
}

// State captures the timer at now.
func (e *EmomTimer) State(now time.Time) EmomState {
	if !e.active {
		return EmomState{}
	}
	return EmomState{
		Active:           true,
		Running:          !e.held,
		RemainingSeconds: seconds(e.cd.remaining(now)),
		IntervalSeconds:  seconds(e.cd.total),
		Round:            e.round,
		TotalRounds:      e.totalRounds,
	}
}

// RestoreEmom rebuilds a timer from a captured state. It comes back frozen;
// the caller thaws it.
func RestoreEmom(s EmomState) *EmomTimer {
	e := &EmomTimer{}
	if !s.Active {
		return e
	}
	total := fromSeconds(s.IntervalSeconds)
	e.cd = countdown{total: total, sw: stopwatch{base: total - fromSeconds(s.RemainingSeconds)}}
	e.active = true
	e.held = !s.Running
	e.round = s.Round
	e.totalRounds = s.TotalRounds
	return e
}
