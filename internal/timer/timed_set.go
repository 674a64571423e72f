package timer

import "time"

// TimedSetMode is the sub-state of a timed set.
type TimedSetMode string

const (
	TimedIdle    TimedSetMode = "idle"
	TimedRunning TimedSetMode = "running"
	TimedPaused  TimedSetMode = "paused"
)

// Cue is an audible signal requested by a timer.
type Cue string

const (
	// CueCountdown fires once per second inside the countdown threshold.
	CueCountdown Cue = "countdown"
	// CueZero fires once when the remaining time reaches zero.
	CueZero Cue = "zero"
)

// TimedSetState is the capturable view of a timed set.
type TimedSetState struct {
	State          TimedSetMode `json:"state"`
	ElapsedSeconds float64      `json:"elapsedSeconds"`
	TargetSeconds  float64      `json:"targetSeconds,omitempty"`
}

// TimedSetTimer counts up for duration-based sets. With a target it also
// reports remaining and overtime and requests cues.
type TimedSetTimer struct {
	sw        stopwatch
	mode      TimedSetMode
	target    time.Duration
	threshold time.Duration
	lastCue   int
	zeroCued  bool
}

// NewTimedSetTimer returns an idle timer that cues when threshold or less
// remains.
func NewTimedSetTimer(threshold time.Duration) *TimedSetTimer {
	return &TimedSetTimer{mode: TimedIdle, threshold: threshold, lastCue: -1}
}

// Arm resets the timer to idle for a new set. target may be zero.
func (t *TimedSetTimer) Arm(target time.Duration) {
	t.Reset()
	t.target = target
}

// Start begins or continues counting.
func (t *TimedSetTimer) Start(now time.Time) {
	t.sw.start(now)
	t.mode = TimedRunning
}

// Pause freezes the count. Idle timers stay idle.
func (t *TimedSetTimer) Pause(now time.Time) {
	if t.mode != TimedRunning {
		return
	}
	t.sw.stop(now)
	t.mode = TimedPaused
}

// Freeze stops counting without changing the sub-state. The session pause
// uses it so a running timed set comes back running.
func (t *TimedSetTimer) Freeze(now time.Time) {
	t.sw.stop(now)
}

// Thaw restarts counting if the sub-state is running.
func (t *TimedSetTimer) Thaw(now time.Time) {
	if t.mode == TimedRunning {
		t.sw.start(now)
	}
}

// Reset returns to idle with zero elapsed, keeping the target.
func (t *TimedSetTimer) Reset() {
	t.sw.reset()
	t.mode = TimedIdle
	t.lastCue = -1
	t.zeroCued = false
}

// Mode returns the current sub-state.
func (t *TimedSetTimer) Mode() TimedSetMode {
	return t.mode
}

// Target returns the armed target duration.
func (t *TimedSetTimer) Target() time.Duration {
	return t.target
}

// Elapsed returns the counted time at now.
func (t *TimedSetTimer) Elapsed(now time.Time) time.Duration {
	return t.sw.elapsed(now)
}

// Remaining returns target minus elapsed, negative once in overtime. Zero
// without a target.
func (t *TimedSetTimer) Remaining(now time.Time) time.Duration {
	if t.target <= 0 {
		return 0
	}
	return t.target - t.Elapsed(now)
}

// Overtime returns how far elapsed exceeds the target.
func (t *TimedSetTimer) Overtime(now time.Time) time.Duration {
	if t.target <= 0 {
		return 0
	}
	if over := t.Elapsed(now) - t.target; over > 0 {
		return over
	}
	return 0
}

// Tick returns the cues due at now. Remaining time is rounded to whole
// seconds so one-second ticks that land slightly early or late still hit
// each mark once.
func (t *TimedSetTimer) Tick(now time.Time) []Cue {
	if t.mode != TimedRunning || !t.sw.running || t.target <= 0 {
		return nil
	}
	rem := int(t.Remaining(now).Round(time.Second) / time.Second)
	switch {
	case rem <= 0:
		if t.zeroCued {
			return nil
		}
		t.zeroCued = true
		return []Cue{CueZero}
	case time.Duration(rem)*time.Second <= t.threshold && rem != t.lastCue:
		t.lastCue = rem
		return []Cue{CueCountdown}
	}
	return nil
}

// State captures the timer at now.
func (t *TimedSetTimer) State(now time.Time) TimedSetState {
	return TimedSetState{
		State:          t.mode,
		ElapsedSeconds: seconds(t.Elapsed(now)),
		TargetSeconds:  seconds(t.target),
	}
}

// RestoreTimedSet rebuilds a timer from a captured state. It comes back
// frozen in its captured sub-state; the caller thaws it.
func RestoreTimedSet(s TimedSetState, threshold time.Duration) *TimedSetTimer {
	t := NewTimedSetTimer(threshold)
	t.target = fromSeconds(s.TargetSeconds)
	t.sw.base = fromSeconds(s.ElapsedSeconds)
	switch s.State {
	case TimedRunning, TimedPaused:
		t.mode = s.State
	default:
		t.mode = TimedIdle
	}
	if t.target > 0 && t.sw.base >= t.target {
		t.zeroCued = true
	}
	return t
}
