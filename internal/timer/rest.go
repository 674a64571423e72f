package timer

import "time"

// RestState is the capturable view of a rest countdown. Running reports the
// operator's intent; a frozen session still captures Running true.
type RestState struct {
	Visible          bool    `json:"visible"`
	Running          bool    `json:"running"`
	RemainingSeconds float64 `json:"remainingSeconds"`
	InitialSeconds   float64 `json:"initialSeconds"`
	MainText         string  `json:"mainText,omitempty"`
	NextText         string  `json:"nextText,omitempty"`
}

// RestResult describes a finished rest period.
type RestResult struct {
	Target  time.Duration
	Actual  time.Duration
	Skipped time.Duration
}

// RestTimer counts down between sets. It is visible from Start until it
// expires, is skipped, or is cancelled.
//
// Pause and Resume are operator controls. Freeze and Thaw are driven by the
// session pause and leave the operator's choice untouched.
type RestTimer struct {
	cd       countdown
	visible  bool
	held     bool
	mainText string
	nextText string
}

// Start shows the timer and begins a countdown of d.
func (r *RestTimer) Start(now time.Time, d time.Duration, mainText, nextText string) {
	r.cd = countdown{total: d}
	r.cd.sw.start(now)
	r.visible = true
	r.held = false
	r.mainText = mainText
	r.nextText = nextText
}

// Visible reports whether a rest period is in progress.
func (r *RestTimer) Visible() bool {
	return r.visible
}

// Running reports whether the operator has the countdown running.
func (r *RestTimer) Running() bool {
	return r.visible && !r.held
}

// Remaining returns the time left at now.
func (r *RestTimer) Remaining(now time.Time) time.Duration {
	if !r.visible {
		return 0
	}
	return r.cd.remaining(now)
}

// Pause holds the countdown until Resume.
func (r *RestTimer) Pause(now time.Time) {
	r.held = true
	r.cd.sw.stop(now)
}

// Resume releases a held countdown.
func (r *RestTimer) Resume(now time.Time) {
	r.held = false
	r.Thaw(now)
}

// Freeze stops the countdown without changing Running.
func (r *RestTimer) Freeze(now time.Time) {
	r.cd.sw.stop(now)
}

// Thaw restarts a frozen countdown unless the operator holds it.
func (r *RestTimer) Thaw(now time.Time) {
	if r.visible && !r.held {
		r.cd.sw.start(now)
	}
}

// Extend adds d to the countdown.
func (r *RestTimer) Extend(d time.Duration) {
	if r.visible {
		r.cd.total += d
	}
}

// Tick reports whether the countdown reached zero at now. Once expired the
// timer hides and returns the full rest as the result.
func (r *RestTimer) Tick(now time.Time) (RestResult, bool) {
	if !r.visible || !r.cd.sw.running || r.cd.remaining(now) > 0 {
		return RestResult{}, false
	}
	res := RestResult{Target: r.cd.total, Actual: r.cd.total}
	r.Cancel()
	return res, true
}

// Skip ends the rest early and captures the time skipped.
func (r *RestTimer) Skip(now time.Time) RestResult {
	if !r.visible {
		return RestResult{}
	}
	left := r.cd.remaining(now)
	res := RestResult{Target: r.cd.total, Actual: r.cd.total - left, Skipped: left}
	r.Cancel()
	return res
}

// Cancel hides the timer without producing a result.
func (r *RestTimer) Cancel() {
	*r = RestTimer{}
}

// State captures the timer at now.
func (r *RestTimer) State(now time.Time) RestState {
	if !r.visible {
		return RestState{}
	}
	return RestState{
		Visible:          true,
		Running:          !r.held,
		RemainingSeconds: seconds(r.cd.remaining(now)),
		InitialSeconds:   seconds(r.cd.total),
		MainText:         r.mainText,
		NextText:         r.nextText,
	}
}

// RestoreRest rebuilds a timer from a captured state. It comes back frozen;
// the caller thaws it.
func RestoreRest(s RestState) *RestTimer {
	r := &RestTimer{}
	if !s.Visible {
		return r
	}
	total := fromSeconds(s.InitialSeconds)
	r.cd = countdown{total: total, sw: stopwatch{base: total - fromSeconds(s.RemainingSeconds)}}
	r.visible = true
	r.held = !s.Running
	r.mainText = s.MainText
	r.nextText = s.NextText
	return r
}
