package timer

import (
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
	"pgregory.net/rapid"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// TestSessionClockPauseResume verifies that paused time is not counted and
// resuming does not double count the pre-pause offset.
func TestSessionClockPauseResume(t *testing.T) {
	c := NewSessionClock(0, time.Time{})
	c.Start(t0)
	c.Pause(t0.Add(90 * time.Second))
	if got := c.Elapsed(t0.Add(10 * time.Minute)); got != 90*time.Second {
		t.Errorf("elapsed while paused = %v, want 90s", got)
	}
	c.Start(t0.Add(10 * time.Minute))
	if got := c.Elapsed(t0.Add(11 * time.Minute)); got != 150*time.Second {
		t.Errorf("elapsed after resume = %v, want 150s", got)
	}
	if !c.StartedAt().Equal(t0) {
		t.Errorf("startedAt = %v, want %v", c.StartedAt(), t0)
	}
}

// TestSessionClockBackwardsStep verifies that a clock stepping backwards
// cannot shrink the elapsed value.
func TestSessionClockBackwardsStep(t *testing.T) {
	c := NewSessionClock(30*time.Second, t0)
	c.Start(t0)
	if got := c.Elapsed(t0.Add(-5 * time.Second)); got != 30*time.Second {
		t.Errorf("elapsed = %v, want 30s", got)
	}
}

// TestSessionClockMonotonic checks that elapsed time never decreases across
// arbitrary pause/resume sequences.
func TestSessionClockMonotonic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := NewSessionClock(0, time.Time{})
		now := t0
		var last time.Duration
		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			now = now.Add(time.Duration(rapid.IntRange(0, 5000).Draw(t, "ms")) * time.Millisecond)
			if rapid.Bool().Draw(t, "toggle") {
				if c.Running() {
					c.Pause(now)
				} else {
					c.Start(now)
				}
			}
			got := c.Elapsed(now)
			if got < last {
				t.Fatalf("elapsed went from %v to %v", last, got)
			}
			last = got
		}
	})
}

// TestRestTimerExpiry verifies that the rest countdown reports expiry once.
func TestRestTimerExpiry(t *testing.T) {
	var r RestTimer
	r.Start(t0, 60*time.Second, "Rest", "Squat")
	if _, done := r.Tick(t0.Add(59 * time.Second)); done {
		t.Fatal("expired early")
	}
	res, done := r.Tick(t0.Add(60 * time.Second))
	if !done {
		t.Fatal("did not expire at zero")
	}
	if res.Actual != 60*time.Second || res.Skipped != 0 {
		t.Errorf("result = %+v, want full rest", res)
	}
	if r.Visible() {
		t.Error("timer still visible after expiry")
	}
	if _, done := r.Tick(t0.Add(61 * time.Second)); done {
		t.Error("expired twice")
	}
}

// TestRestTimerSkip verifies that skipping captures the time not rested.
func TestRestTimerSkip(t *testing.T) {
	var r RestTimer
	r.Start(t0, 90*time.Second, "Rest", "")
	res := r.Skip(t0.Add(30 * time.Second))
	if res.Actual != 30*time.Second {
		t.Errorf("actual = %v, want 30s", res.Actual)
	}
	if res.Skipped != 60*time.Second {
		t.Errorf("skipped = %v, want 60s", res.Skipped)
	}
}

// TestRestTimerPauseAndRestore verifies that a paused countdown holds its
// remaining time and survives a capture round trip.
func TestRestTimerPauseAndRestore(t *testing.T) {
	var r RestTimer
	r.Start(t0, 120*time.Second, "Rest", "Bench")
	r.Extend(30 * time.Second)
	r.Pause(t0.Add(50 * time.Second))

	st := r.State(t0.Add(5 * time.Minute))
	if st.RemainingSeconds != 100 {
		t.Errorf("remaining = %v, want 100", st.RemainingSeconds)
	}
	if st.InitialSeconds != 150 {
		t.Errorf("initial = %v, want 150", st.InitialSeconds)
	}

	back := RestoreRest(st)
	if back.Running() {
		t.Error("restored timer should be paused")
	}
	got := back.State(t0.Add(time.Hour))
	if got != st {
		t.Errorf("restored state = %+v, want %+v", got, st)
	}
	back.Resume(t0)
	if rem := back.Remaining(t0.Add(40 * time.Second)); rem != 60*time.Second {
		t.Errorf("remaining after resume = %v, want 60s", rem)
	}
}

// TestTimedSetCues verifies the countdown cue inside the threshold and the
// single zero cue.
func TestTimedSetCues(t *testing.T) {
	ts := NewTimedSetTimer(3 * time.Second)
	ts.Arm(10 * time.Second)
	ts.Start(t0)

	var countdowns, zeros int
	for s := 1; s <= 14; s++ {
		for _, c := range ts.Tick(t0.Add(time.Duration(s) * time.Second)) {
			switch c {
			case CueCountdown:
				countdowns++
			case CueZero:
				zeros++
			}
		}
	}
	if countdowns != 3 {
		t.Errorf("countdown cues = %d, want 3", countdowns)
	}
	if zeros != 1 {
		t.Errorf("zero cues = %d, want 1", zeros)
	}
	if ot := ts.Overtime(t0.Add(14 * time.Second)); ot != 4*time.Second {
		t.Errorf("overtime = %v, want 4s", ot)
	}
}

// TestTimedSetSubStates verifies idle, running and paused transitions.
func TestTimedSetSubStates(t *testing.T) {
	ts := NewTimedSetTimer(0)
	ts.Pause(t0)
	if ts.Mode() != TimedIdle {
		t.Errorf("mode = %s, want idle", ts.Mode())
	}
	ts.Start(t0)
	ts.Pause(t0.Add(20 * time.Second))
	if ts.Mode() != TimedPaused {
		t.Errorf("mode = %s, want paused", ts.Mode())
	}
	if got := ts.Elapsed(t0.Add(time.Hour)); got != 20*time.Second {
		t.Errorf("elapsed = %v, want 20s", got)
	}
	if ts.Tick(t0.Add(time.Hour)) != nil {
		t.Error("untargeted timer emitted cues")
	}
	ts.Reset()
	if ts.Mode() != TimedIdle || ts.Elapsed(t0) != 0 {
		t.Errorf("after reset mode=%s elapsed=%v", ts.Mode(), ts.Elapsed(t0))
	}
}

// TestEmomRounds verifies that the round timer expires after its interval
// and stays stopped until restarted.
func TestEmomRounds(t *testing.T) {
	var e EmomTimer
	e.Start(t0, 45*time.Second, 1, 3)
	if e.Tick(t0.Add(44 * time.Second)) {
		t.Fatal("expired early")
	}
	if !e.Tick(t0.Add(45 * time.Second)) {
		t.Fatal("did not expire")
	}
	if e.Tick(t0.Add(46 * time.Second)) {
		t.Error("expired twice without restart")
	}
	e.Start(t0.Add(45*time.Second), 45*time.Second, 2, 3)
	e.Pause(t0.Add(60 * time.Second))
	st := e.State(t0.Add(10 * time.Minute))
	if st.RemainingSeconds != 30 || st.Round != 2 || st.Running {
		t.Errorf("state = %+v", st)
	}
	if got := RestoreEmom(st).State(t0); got != st {
		t.Errorf("restored = %+v, want %+v", got, st)
	}
}

// TestFreezeKeepsOperatorIntent verifies that a session-level freeze stops
// the countdown but still captures the timer as running.
func TestFreezeKeepsOperatorIntent(t *testing.T) {
	var r RestTimer
	r.Start(t0, 60*time.Second, "Rest", "")
	r.Freeze(t0.Add(10 * time.Second))
	st := r.State(t0.Add(time.Hour))
	if !st.Running || st.RemainingSeconds != 50 {
		t.Errorf("frozen state = %+v, want running with 50s left", st)
	}
	if _, done := r.Tick(t0.Add(time.Hour)); done {
		t.Error("frozen timer expired")
	}

	back := RestoreRest(st)
	back.Thaw(t0)
	if rem := back.Remaining(t0.Add(20 * time.Second)); rem != 30*time.Second {
		t.Errorf("remaining after thaw = %v, want 30s", rem)
	}

	ts := NewTimedSetTimer(0)
	ts.Start(t0)
	ts.Freeze(t0.Add(5 * time.Second))
	if ts.Mode() != TimedRunning {
		t.Errorf("mode = %s, want running", ts.Mode())
	}
	restored := RestoreTimedSet(ts.State(t0.Add(time.Minute)), 0)
	restored.Thaw(t0)
	if got := restored.Elapsed(t0.Add(5 * time.Second)); got != 10*time.Second {
		t.Errorf("elapsed = %v, want 10s", got)
	}
}

// TestTickerCancel verifies that a cancelled handle stops its goroutine.
func TestTickerCancel(t *testing.T) {
	var calls atomic.Int32
	h := Ticker{}.Every(5*time.Millisecond, func(*Handle) { calls.Add(1) })
	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	h.Cancel()
	h.Wait()
	n := calls.Load()
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != n {
		t.Error("callback ran after cancel")
	}
	if !h.Cancelled() {
		t.Error("handle not cancelled")
	}
}

// TestManualScheduler verifies that Fire runs live callbacks only.
func TestManualScheduler(t *testing.T) {
	var m ManualScheduler
	var a, b int
	ha := m.Every(time.Second, func(*Handle) { a++ })
	m.Every(time.Second, func(*Handle) { b++ })
	m.Fire()
	ha.Cancel()
	if n := m.Fire(); n != 1 {
		t.Errorf("fired %d, want 1", n)
	}
	if a != 1 || b != 2 {
		t.Errorf("a=%d b=%d, want 1 and 2", a, b)
	}
}
