// Package session runs a live workout. A Session owns the working copy of the
// routine, the log-so-far and the four timers, and exposes the operations an
// operator performs while training. Every operation runs under one mutex and
// writes a snapshot of the post-operation state before returning, so a
// session can be rebuilt from its store at any point.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/claude/setplayer/internal/models"
	"github.com/claude/setplayer/internal/sequencer"
	"github.com/claude/setplayer/internal/timer"
)

// State is the lifecycle phase of a session.
type State string

const (
	StateLoading State = "loading"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
	StateEnded   State = "ended"
	StateError   State = "error"
)

// StartOptions selects what a new session plays.
type StartOptions struct {
	Origin models.Origin
	// Name and Exercises seed an ad-hoc session; both are ignored for plans.
	Name      string
	Exercises []models.SessionExercise

	ProgramID   string
	IterationID string
}

// Session is one running workout. It is safe for concurrent use.
type Session struct {
	mu   sync.Mutex
	deps Deps
	cfg  Config
	log  *slog.Logger
	// bg outlives the request that started the session; ticks use it.
	bg context.Context

	id          string
	state       State
	err         error
	origin      models.Origin
	planName    string
	programID   string
	iterationID string
	workoutDate time.Time

	original  *models.Plan
	routine   []models.SessionExercise
	progress  *models.Progress
	cursor    sequencer.Cursor
	hasCursor bool

	clock   *timer.SessionClock
	rest    *timer.RestTimer
	restFor *SetRef
	timed   *timer.TimedSetTimer
	emom    *timer.EmomTimer

	suggestions map[string]models.Suggestion
	tick        *timer.Handle
	result      *Result
}

func newSession(ctx context.Context, deps Deps, cfg Config) *Session {
	deps.defaults()
	cfg.defaults()
	return &Session{
		deps:        deps,
		cfg:         cfg,
		log:         deps.Logger,
		bg:          context.WithoutCancel(ctx),
		state:       StateLoading,
		progress:    &models.Progress{},
		clock:       timer.NewSessionClock(0, time.Time{}),
		rest:        &timer.RestTimer{},
		timed:       timer.NewTimedSetTimer(cfg.CountdownCue),
		emom:        &timer.EmomTimer{},
		suggestions: make(map[string]models.Suggestion),
	}
}

// Start loads the plan named by opts (or seeds an ad-hoc routine), builds the
// working copy and begins playing. On a load failure the returned session is
// in StateError alongside the error, and no snapshot is written.
func Start(ctx context.Context, deps Deps, cfg Config, opts StartOptions) (*Session, error) {
	s := newSession(ctx, deps, cfg)
	s.id = s.deps.NewID()
	s.origin = opts.Origin
	s.programID = opts.ProgramID
	s.iterationID = opts.IterationID

	plan, err := s.loadPlan(ctx, opts)
	if err != nil {
		s.state = StateError
		s.err = err
		s.log.Error("loading plan", "origin", opts.Origin, "error", err)
		return s, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.planName = plan.Name
	if s.programID == "" {
		s.programID = plan.ProgramID
	}
	s.original = plan.Clone()
	s.routine = workingCopy(plan)

	now := s.now()
	s.workoutDate = now
	if c, ok := sequencer.FindFirstPending(s.routine, s.progress); ok {
		s.enter(ctx, c)
	}
	s.state = StatePlaying
	s.clock.Start(now)
	s.startTicker()
	if err := s.persist(ctx); err != nil {
		return s, err
	}
	s.log.Info("session started", "session", s.id, "origin", s.origin, "exercises", len(s.routine))
	return s, nil
}

func (s *Session) loadPlan(ctx context.Context, opts StartOptions) (*models.Plan, error) {
	var plan *models.Plan
	if id, ok := opts.Origin.PlanID(); ok {
		if s.deps.Plans == nil {
			return nil, fmt.Errorf("loading plan %s: %w", id, ErrPlanNotFound)
		}
		p, err := s.deps.Plans.GetPlan(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("loading plan %s: %w", id, err)
		}
		if p == nil {
			return nil, fmt.Errorf("loading plan %s: %w", id, ErrPlanNotFound)
		}
		plan = p.Clone()
	} else {
		plan = &models.Plan{Name: opts.Name}
		if plan.Name == "" {
			plan.Name = "Ad-hoc workout"
		}
		for _, ex := range opts.Exercises {
			ex = ex.Clone()
			if ex.ID == "" {
				ex.ID = s.deps.NewID()
			}
			for i := range ex.Sets {
				if ex.Sets[i].ID == "" {
					ex.Sets[i].ID = s.deps.NewID()
				}
			}
			plan.Exercises = append(plan.Exercises, ex)
		}
	}

	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPlan, err)
	}
	if err := sequencer.ValidateBlocks(plan.Exercises); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPlan, err)
	}
	return plan, nil
}

// workingCopy clones the plan's exercises and tags them pending, with
// warm-up sets moved ahead of working sets.
func workingCopy(plan *models.Plan) []models.SessionExercise {
	routine := make([]models.SessionExercise, len(plan.Exercises))
	for i, ex := range plan.Exercises {
		routine[i] = ex.Clone()
		routine[i].Status = models.StatusPending
		models.OrderWarmupsFirst(routine[i].Sets)
	}
	return routine
}

// Restore rebuilds the session stored for origin. A stored snapshot that is
// damaged, of another version, or for another origin is deleted and
// ErrSnapshotInvalid returned; the caller then starts fresh. A snapshot
// captured while playing resumes playing with the gap counted as session
// time; a paused snapshot comes back paused.
func Restore(ctx context.Context, deps Deps, cfg Config, origin models.Origin) (*Session, error) {
	s := newSession(ctx, deps, cfg)
	blob, err := s.deps.Store.Get(ctx, s.cfg.SnapshotKey)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	snap, err := DecodeSnapshot(blob, origin)
	if err != nil {
		s.log.Warn("discarding snapshot", "origin", origin, "error", err)
		if derr := s.deps.Store.Delete(ctx, s.cfg.SnapshotKey); derr != nil {
			s.log.Error("deleting snapshot", "error", derr)
		}
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.apply(snap)
	if snap.Paused {
		s.state = StatePaused
		s.log.Info("session restored", "session", s.id, "state", s.state)
		return s, nil
	}

	s.state = StatePlaying
	s.thaw(snap.CapturedAt)
	s.rederive(ctx)
	s.startTicker()
	s.tickLocked()
	if err := s.persist(ctx); err != nil {
		return s, err
	}
	s.log.Info("session restored", "session", s.id, "state", s.state,
		"gap", s.now().Sub(snap.CapturedAt).Round(time.Second))
	return s, nil
}

func (s *Session) apply(snap *Snapshot) {
	s.id = snap.SessionID
	s.origin = snap.PlanID
	s.planName = snap.PlanName
	s.programID = snap.ProgramID
	s.iterationID = snap.IterationID
	s.workoutDate = snap.WorkoutDateEstimate
	s.original = snap.Original
	s.routine = snap.Routine
	s.progress = snap.Progress
	if snap.Cursor != nil {
		s.cursor = *snap.Cursor
		s.hasCursor = true
	}
	s.clock = timer.NewSessionClock(fromSeconds(snap.SessionClockBaseSeconds), snap.StartedAt)
	s.rest = timer.RestoreRest(snap.RestTimer)
	s.restFor = snap.RestFor
	s.timed = timer.RestoreTimedSet(snap.TimedSetTimer, s.cfg.CountdownCue)
	s.emom = timer.RestoreEmom(snap.EmomTimer)
}

// Pause freezes every timer, stops the tick and writes a paused snapshot.
func (s *Session) Pause(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.require("pause", StatePlaying); err != nil {
		return err
	}
	s.stopTicker()
	s.freeze(s.now())
	s.state = StatePaused
	return s.persist(ctx)
}

// Resume continues a paused session. Accumulated time is preserved, timers
// the operator had running restart, and the cursor is re-derived from the
// log so edits made while paused are honoured.
func (s *Session) Resume(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.require("resume", StatePaused); err != nil {
		return err
	}
	s.state = StatePlaying
	s.thaw(s.now())
	s.rederive(ctx)
	s.startTicker()
	return s.persist(ctx)
}

// Flush writes a snapshot of the current state without changing it. A
// playing session restored from it counts the time in between.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePlaying && s.state != StatePaused {
		return nil
	}
	return s.persist(ctx)
}

// Close flushes and stops the tick. The session stays in its state and can
// be restored later.
func (s *Session) Close(ctx context.Context) error {
	err := s.Flush(ctx)
	s.mu.Lock()
	s.stopTicker()
	s.mu.Unlock()
	return err
}

// Tick runs one timer step: rest expiry, timed-set cues and EMOM round
// completion. It does nothing unless the session is playing.
func (s *Session) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickLocked()
}

// onTick is the scheduler callback. A tick that finds the session busy is
// dropped; timers read the clock, so the next tick catches up.
func (s *Session) onTick(h *timer.Handle) {
	if !s.mu.TryLock() {
		return
	}
	defer s.mu.Unlock()
	if h.Cancelled() || h != s.tick {
		return
	}
	s.tickLocked()
}

func (s *Session) tickLocked() {
	if s.state != StatePlaying {
		return
	}
	ctx := s.bg
	now := s.now()
	changed := false

	if res, done := s.rest.Tick(now); done {
		s.recordRest(res)
		s.emit(Event{Kind: EventRestFinished})
		changed = true
	}
	for _, cue := range s.timed.Tick(now) {
		s.emit(Event{Kind: EventCue, Cue: cue})
	}
	if s.emom.Tick(now) && s.hasCursor {
		s.completeRound(ctx)
		changed = true
	}

	if changed {
		if err := s.persist(ctx); err != nil {
			s.log.Error("persisting after tick", "session", s.id, "error", err)
		}
	}
}

func (s *Session) startTicker() {
	if s.tick != nil && !s.tick.Cancelled() {
		return
	}
	s.tick = s.deps.Scheduler.Every(s.cfg.TickInterval, s.onTick)
}

// stopTicker invalidates the tick token; a callback already waiting on the
// lock sees the cancelled handle and returns.
func (s *Session) stopTicker() {
	s.tick.Cancel()
	s.tick = nil
}

func (s *Session) freeze(now time.Time) {
	s.clock.Pause(now)
	s.rest.Freeze(now)
	s.timed.Freeze(now)
	s.emom.Freeze(now)
}

func (s *Session) thaw(at time.Time) {
	s.clock.Start(at)
	s.rest.Thaw(at)
	s.timed.Thaw(at)
	s.emom.Thaw(at)
}

// rederive checks the stored cursor against the log and moves it to the
// first pending position when it no longer points at owed work.
func (s *Session) rederive(ctx context.Context) {
	if s.hasCursor && sequencer.Valid(s.routine, s.progress, s.cursor) {
		s.fetchSuggestions(ctx, s.cursor.ExerciseIndex)
		return
	}
	if c, ok := sequencer.FindFirstPending(s.routine, s.progress); ok {
		s.hasCursor = false
		s.enter(ctx, c)
		return
	}
	s.hasCursor = false
}

func (s *Session) require(op string, states ...State) error {
	for _, st := range states {
		if s.state == st {
			return nil
		}
	}
	return fmt.Errorf("%s while %s: %w", op, s.state, ErrInvalidState)
}

func (s *Session) requireCursor(op string) error {
	if err := s.require(op, StatePlaying); err != nil {
		return err
	}
	if !s.hasCursor {
		return fmt.Errorf("%s: no active set: %w", op, ErrInvalidState)
	}
	return nil
}

// fail moves the session to the absorbing error state.
func (s *Session) fail(err error) error {
	s.stopTicker()
	s.state = StateError
	s.err = fmt.Errorf("%w: %v", ErrCorrupted, err)
	s.log.Error("session failed", "session", s.id, "error", err)
	return s.err
}

// enter makes c the active position. Suggestions for a newly entered
// exercise are fetched before returning.
func (s *Session) enter(ctx context.Context, c sequencer.Cursor) {
	prev, had := s.cursor, s.hasCursor
	s.cursor, s.hasCursor = c, true
	ex := &s.routine[c.ExerciseIndex]

	s.fetchSuggestions(ctx, c.ExerciseIndex)
	if ex.Status == "" || ex.Status == models.StatusPending {
		ex.Status = models.StatusStarted
	}
	if had && prev == c {
		return
	}

	if tmpl, ok := sequencer.TemplateSet(*ex, c.SetIndex); ok && tmpl.IsTimed() {
		v, _ := tmpl.Target.Duration.Value()
		s.timed.Arm(fromSeconds(v))
	} else {
		s.timed.Arm(0)
	}

	if !ex.IsEMOM() {
		s.emom.Stop()
		return
	}
	round := c.SetIndex + 1
	if s.emom.Active() && s.emom.Round() == round {
		return
	}
	sameBlock := had && prev.ExerciseIndex < len(s.routine) &&
		s.routine[prev.ExerciseIndex].SupersetID == ex.SupersetID
	running := sameBlock && s.emom.Running()
	interval := time.Duration(ex.EmomIntervalSeconds) * time.Second
	s.emom.Arm(interval, round, c.TotalBlockRounds)
	if running {
		s.emom.Resume(s.now())
	}
}

// moveTo applies a sequencer transition.
func (s *Session) moveTo(ctx context.Context, adv sequencer.Advance) {
	if !adv.Done {
		s.enter(ctx, adv.Cursor)
		return
	}
	s.hasCursor = false
	s.timed.Arm(0)
	s.emom.Stop()
	s.emit(Event{Kind: EventWorkoutComplete})
}

func (s *Session) fetchSuggestions(ctx context.Context, idx int) {
	if s.deps.History == nil {
		return
	}
	for _, m := range sequencer.BlockMembers(s.routine, idx) {
		catalogID := s.routine[m].ExerciseID
		if _, ok := s.suggestions[catalogID]; ok {
			continue
		}
		last, err := s.deps.History.LastPerformance(ctx, catalogID)
		if err != nil {
			s.log.Warn("fetching last performance", "exercise", catalogID, "error", err)
			continue
		}
		pb, err := s.deps.History.PersonalBests(ctx, catalogID)
		if err != nil {
			s.log.Warn("fetching personal bests", "exercise", catalogID, "error", err)
			continue
		}
		s.suggestions[catalogID] = models.Suggestion{LastPerformance: last, PersonalBests: pb}
	}
}

// markFinished closes every exercise of idx's block whose positions are all
// logged or skipped.
func (s *Session) markFinished(idx int) {
	for _, m := range sequencer.BlockMembers(s.routine, idx) {
		ex := &s.routine[m]
		if ex.Status.Open() && sequencer.ExerciseFinished(s.routine, s.progress, m) {
			ex.Status = models.StatusCompleted
		}
	}
}

// reopen puts a completed exercise back into the proposal cycle after sets
// were added or removed.
func (s *Session) reopen(idx int) {
	for _, m := range sequencer.BlockMembers(s.routine, idx) {
		ex := &s.routine[m]
		if ex.Status == models.StatusCompleted && !sequencer.ExerciseFinished(s.routine, s.progress, m) {
			ex.Status = models.StatusStarted
		}
	}
}

// startRest begins the rest that follows the set at done. Inside a block the
// default rest applies only after the last member of a round.
func (s *Session) startRest(now time.Time, done sequencer.Cursor, tmpl models.TargetSet, ref SetRef) {
	d := s.cfg.DefaultRest
	if v, ok := tmpl.Target.Rest.Value(); ok {
		d = fromSeconds(v)
	} else if s.routine[done.ExerciseIndex].InBlock() &&
		!sequencer.IsLastSetOfRound(s.routine, s.progress, done) {
		d = 0
	}
	if d <= 0 || !s.hasCursor {
		return
	}
	s.rest.Start(now, d, "Rest", s.nextText())
	s.restFor = &ref
}

func (s *Session) nextText() string {
	if !s.hasCursor {
		return ""
	}
	ex := s.routine[s.cursor.ExerciseIndex]
	if ex.InBlock() {
		return fmt.Sprintf("%s, round %d/%d", ex.ExerciseName, s.cursor.BlockRound, s.cursor.TotalBlockRounds)
	}
	return fmt.Sprintf("%s, set %d/%d", ex.ExerciseName, s.cursor.SetIndex+1, len(ex.Sets))
}

// recordRest stores the actual rest on the set it followed.
func (s *Session) recordRest(res timer.RestResult) {
	if s.restFor == nil {
		return
	}
	if ls := s.progress.Set(s.restFor.ExerciseID, s.restFor.PlannedSetID); ls != nil {
		ls.Rest = models.Float(math.Round(res.Actual.Seconds()))
	}
	s.restFor = nil
}

// endRest finishes a visible rest early, keeping the time actually rested.
func (s *Session) endRest(now time.Time) {
	if s.rest.Visible() {
		s.recordRest(s.rest.Skip(now))
	}
}

func (s *Session) persist(ctx context.Context) error {
	blob, err := EncodeSnapshot(s.snapshotLocked(s.now()))
	if err != nil {
		return err
	}
	if err := s.deps.Store.Set(ctx, s.cfg.SnapshotKey, blob); err != nil {
		s.log.Error("saving snapshot", "session", s.id, "error", err)
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

func (s *Session) snapshotLocked(now time.Time) *Snapshot {
	snap := &Snapshot{
		SessionID:               s.id,
		PlanID:                  s.origin,
		PlanName:                s.planName,
		ProgramID:               s.programID,
		IterationID:             s.iterationID,
		Routine:                 cloneRoutine(s.routine),
		Original:                s.original.Clone(),
		Progress:                s.progress.Clone(),
		SessionClockBaseSeconds: s.clock.Elapsed(now).Seconds(),
		StartedAt:               s.clock.StartedAt(),
		RestTimer:               s.rest.State(now),
		TimedSetTimer:           s.timed.State(now),
		EmomTimer:               s.emom.State(now),
		WorkoutDateEstimate:     s.workoutDate,
		Paused:                  s.state == StatePaused,
		CapturedAt:              now,
	}
	if s.hasCursor {
		c := s.cursor
		snap.Cursor = &c
	}
	if s.restFor != nil {
		r := *s.restFor
		snap.RestFor = &r
	}
	return snap
}

// Snapshot returns a capture of the current state.
func (s *Session) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(s.now())
}

// ID returns the session id.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// State returns the lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Origin returns the plan or ad-hoc origin the session was opened for.
func (s *Session) Origin() models.Origin {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.origin
}

// Err returns the error that moved the session to StateError.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Result returns the outcome of Finish, or nil before the session ends.
func (s *Session) Result() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

func (s *Session) emit(e Event) {
	if s.deps.Listener != nil {
		s.deps.Listener(e)
	}
}

func (s *Session) now() time.Time {
	return s.deps.Clock.Now()
}

func cloneRoutine(routine []models.SessionExercise) []models.SessionExercise {
	out := make([]models.SessionExercise, len(routine))
	for i, ex := range routine {
		out[i] = ex.Clone()
	}
	return out
}

func fromSeconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// IsDecisionRequired reports whether err asks for an operator decision and
// returns the prompt.
func IsDecisionRequired(err error) (Prompt, bool) {
	var dre *DecisionRequiredError
	if errors.As(err, &dre) {
		return dre.Prompt, true
	}
	return Prompt{}, false
}
