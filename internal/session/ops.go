package session

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/claude/setplayer/internal/models"
	"github.com/claude/setplayer/internal/sequencer"
)

// SetInput carries the performed values of one set. Nil fields are not
// recorded; a nil Duration takes the timed-set timer's elapsed time when it
// ran.
type SetInput struct {
	Reps     *float64 `json:"reps,omitempty"`
	Weight   *float64 `json:"weight,omitempty"`
	Duration *float64 `json:"duration,omitempty"`
	Distance *float64 `json:"distance,omitempty"`
	RPE      *float64 `json:"rpe,omitempty"`
	Notes    string   `json:"notes,omitempty"`
}

func (in SetInput) validate() error {
	fields := []struct {
		name string
		v    *float64
	}{
		{"reps", in.Reps},
		{"weight", in.Weight},
		{"duration", in.Duration},
		{"distance", in.Distance},
		{"rpe", in.RPE},
	}
	for _, f := range fields {
		if err := checkNumber(f.name, f.v); err != nil {
			return err
		}
	}
	if in.RPE != nil && *in.RPE > 10 {
		return invalid("rpe", "must be between 0 and 10, got %v", *in.RPE)
	}
	return nil
}

func checkNumber(name string, v *float64) error {
	switch {
	case v == nil:
		return nil
	case math.IsNaN(*v) || math.IsInf(*v, 0):
		return invalid(name, "must be a finite number")
	case *v < 0:
		return invalid(name, "must not be negative, got %v", *v)
	}
	return nil
}

// LogSet records the active set and advances. On an EMOM block it completes
// the round for every member instead. With no pending work it changes
// nothing and routes to completion.
func (s *Session) LogSet(ctx context.Context, in SetInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.require("log set", StatePlaying); err != nil {
		return err
	}
	if !s.hasCursor {
		return s.routeCompletion(ctx)
	}
	if err := in.validate(); err != nil {
		return err
	}

	cur := s.cursor
	ex := s.routine[cur.ExerciseIndex]
	if ex.IsEMOM() {
		s.completeRound(ctx)
		return s.commit(ctx)
	}
	tmpl, ok := sequencer.TemplateSet(ex, cur.SetIndex)
	if !ok {
		return s.fail(fmt.Errorf("no plan set %d for %q", cur.SetIndex, ex.ExerciseName))
	}

	now := s.now()
	s.endRest(now)

	duration := in.Duration
	if duration == nil {
		if el := s.timed.Elapsed(now); el > 0 {
			duration = models.Float(math.Round(el.Seconds()))
		}
	}
	pid := sequencer.PlannedSetID(ex, cur.SetIndex)
	ls := models.LoggedSet{
		ID:                 s.deps.NewID(),
		PlannedSetID:       pid,
		ExerciseInstanceID: ex.ID,
		Type:               tmpl.Type,
		Reps:               in.Reps,
		Weight:             in.Weight,
		Duration:           duration,
		Distance:           in.Distance,
		RPE:                in.RPE,
		Notes:              in.Notes,
		Timestamp:          now,
		Target:             tmpl.Target.Clone(),
	}
	if prev := s.progress.Set(ex.ID, pid); prev != nil {
		ls.ID = prev.ID
		ls.Rest = prev.Rest
	}
	s.progress.Record(ex, ls)
	s.markFinished(cur.ExerciseIndex)

	s.moveTo(ctx, sequencer.Next(s.routine, s.progress, cur, false))
	s.startRest(now, cur, tmpl, SetRef{ExerciseID: ex.ID, PlannedSetID: pid})
	return s.commit(ctx)
}

// completeRound logs the active EMOM round for every open member from its
// first plan set and moves to the next round or past the block.
func (s *Session) completeRound(ctx context.Context) {
	cur := s.cursor
	now := s.now()
	round := cur.SetIndex
	for _, m := range sequencer.BlockMembers(s.routine, cur.ExerciseIndex) {
		e := s.routine[m]
		pid := sequencer.PlannedSetID(e, round)
		if !e.Status.Open() || s.progress.IsLogged(e.ID, pid) {
			continue
		}
		tmpl, _ := sequencer.TemplateSet(e, round)
		s.progress.Record(e, models.LoggedSet{
			ID:                 s.deps.NewID(),
			PlannedSetID:       pid,
			ExerciseInstanceID: e.ID,
			Type:               tmpl.Type,
			Reps:               targetValue(tmpl.Target.Reps),
			Weight:             targetValue(tmpl.Target.Weight),
			Duration:           targetValue(tmpl.Target.Duration),
			Distance:           targetValue(tmpl.Target.Distance),
			Timestamp:          now,
			Target:             tmpl.Target.Clone(),
		})
	}
	s.markFinished(cur.ExerciseIndex)
	s.emit(Event{Kind: EventRoundCompleted, Round: round + 1})

	adv := sequencer.Next(s.routine, s.progress, cur, true)
	s.moveTo(ctx, adv)
	if adv.BlockChanged {
		tmpl, _ := sequencer.TemplateSet(s.routine[cur.ExerciseIndex], round)
		s.startRest(now, cur, tmpl, SetRef{})
	}
}

func targetValue(t *models.TargetValue) *float64 {
	if v, ok := t.Value(); ok {
		return models.Float(v)
	}
	return nil
}

// CompleteRound forces the active EMOM round to complete now.
func (s *Session) CompleteRound(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireCursor("complete round"); err != nil {
		return err
	}
	if !s.routine[s.cursor.ExerciseIndex].IsEMOM() {
		return fmt.Errorf("complete round: active exercise is not in an EMOM block: %w", ErrInvalidState)
	}
	s.completeRound(ctx)
	return s.commit(ctx)
}

// SkipSet discards the active set without logging it. On the last remaining
// set the operator may skip the whole exercise instead. In a block the whole
// round is skipped for every member, removing sets already logged for it.
func (s *Session) SkipSet(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireCursor("skip set"); err != nil {
		return err
	}
	cur := s.cursor
	ex := s.routine[cur.ExerciseIndex]

	last := sequencer.IsLastSetOfExercise(s.routine, s.progress, cur)
	if ex.InBlock() {
		last = sequencer.IsLastRoundOfBlock(s.routine, s.progress, cur)
	}
	if last {
		r, err := s.ask(ctx, skipLastSetPrompt(ex.ExerciseName))
		if err != nil {
			return err
		}
		if r.Role == RoleSkipExercise {
			return s.closeExercise(ctx, cur.ExerciseIndex, models.StatusSkipped)
		}
	}

	s.endRest(s.now())
	if ex.InBlock() {
		for _, m := range sequencer.BlockMembers(s.routine, cur.ExerciseIndex) {
			e := s.routine[m]
			pid := sequencer.PlannedSetID(e, cur.SetIndex)
			s.progress.RemoveSet(e.ID, pid)
			s.progress.MarkSkipped(e.ID, pid)
		}
		s.markFinished(cur.ExerciseIndex)
		s.moveTo(ctx, sequencer.Next(s.routine, s.progress, cur, true))
		return s.commit(ctx)
	}

	pid := sequencer.PlannedSetID(ex, cur.SetIndex)
	s.progress.RemoveSet(ex.ID, pid)
	s.progress.MarkSkipped(ex.ID, pid)
	s.markFinished(cur.ExerciseIndex)
	s.moveTo(ctx, sequencer.Next(s.routine, s.progress, cur, false))
	return s.commit(ctx)
}

// SkipExercise marks an exercise skipped. See closeExercise.
func (s *Session) SkipExercise(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.require("skip exercise", StatePlaying); err != nil {
		return err
	}
	if err := s.checkIndex(index); err != nil {
		return err
	}
	return s.closeExercise(ctx, index, models.StatusSkipped)
}

// DeferExercise marks an exercise to be done later. See closeExercise.
func (s *Session) DeferExercise(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.require("defer exercise", StatePlaying); err != nil {
		return err
	}
	if err := s.checkIndex(index); err != nil {
		return err
	}
	return s.closeExercise(ctx, index, models.StatusDoLater)
}

// closeExercise sets status on the exercise at idx, or on every member of
// its block when the block is active. Fully logged exercises keep their
// status. Sets already logged for the active, unfinished round of a closed
// block are removed, and the cursor moves past the block.
func (s *Session) closeExercise(ctx context.Context, idx int, status models.ExerciseStatus) error {
	activeBlock := s.hasCursor && s.routine[idx].InBlock() &&
		s.routine[s.cursor.ExerciseIndex].SupersetID == s.routine[idx].SupersetID
	targets := []int{idx}
	if activeBlock {
		targets = sequencer.BlockMembers(s.routine, idx)
	}

	var closing []int
	for _, m := range targets {
		if !sequencer.FullyLogged(s.routine, s.progress, m) {
			closing = append(closing, m)
		}
	}
	if len(closing) == 0 {
		return fmt.Errorf("%s is fully logged: %w", s.routine[idx].ExerciseName, ErrInvalidState)
	}

	if activeBlock {
		round := s.cursor.SetIndex
		for _, m := range closing {
			e := s.routine[m]
			s.progress.RemoveSet(e.ID, sequencer.PlannedSetID(e, round))
		}
	}
	for _, m := range closing {
		s.routine[m].Status = status
	}

	if s.hasCursor && (activeBlock || s.cursor.ExerciseIndex == idx) {
		s.endRest(s.now())
		s.moveTo(ctx, sequencer.Next(s.routine, s.progress, s.cursor, true))
	}
	s.log.Info("exercise closed", "session", s.id, "exercise", s.routine[idx].ExerciseName, "status", status)
	return s.commit(ctx)
}

// ResumeDeferred starts a new proposal cycle over the exercises left for
// later.
func (s *Session) ResumeDeferred(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.require("resume deferred", StatePlaying); err != nil {
		return err
	}
	return s.reopenDeferred(ctx)
}

func (s *Session) reopenDeferred(ctx context.Context) error {
	deferred := s.deferred()
	if len(deferred) == 0 {
		return fmt.Errorf("no deferred exercises: %w", ErrInvalidState)
	}
	for _, i := range deferred {
		s.routine[i].Status = models.StatusPending
	}
	if !s.hasCursor {
		if c, ok := sequencer.FindFirstPending(s.routine, s.progress); ok {
			s.enter(ctx, c)
		}
	}
	return s.persist(ctx)
}

func (s *Session) deferred() []int {
	var out []int
	for i, ex := range s.routine {
		if ex.Status == models.StatusDoLater {
			out = append(out, i)
		}
	}
	return out
}

// JumpTo makes the exercise at index active, overriding the sequencer. A
// deferred or skipped exercise is reopened. Jumping to an exercise with
// nothing owed asks to restart it, which deletes its logged sets; for a
// block member the whole block restarts so rounds stay complete.
func (s *Session) JumpTo(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.require("jump", StatePlaying); err != nil {
		return err
	}
	if err := s.checkIndex(index); err != nil {
		return err
	}
	members := sequencer.BlockMembers(s.routine, index)

	c, ok := sequencer.FirstOpenIn(s.routine, s.progress, index)
	if !ok {
		if _, err := s.ask(ctx, restartPrompt(s.routine[index].ExerciseName)); err != nil {
			return err
		}
		for _, m := range members {
			s.progress.RemoveExercise(s.routine[m].ID)
		}
		s.log.Info("exercise restarted", "session", s.id, "exercise", s.routine[index].ExerciseName)
		c, ok = sequencer.FirstOpenIn(s.routine, s.progress, index)
		if !ok {
			return s.fail(fmt.Errorf("no sets owed by %q after restart", s.routine[index].ExerciseName))
		}
	}
	for _, m := range members {
		s.routine[m].Status = models.StatusPending
	}

	s.endRest(s.now())
	s.enter(ctx, c)
	return s.persist(ctx)
}

// SwitchExercise replaces the catalog exercise of an instance, keeping its
// sets. Only unlogged instances qualify, and inside a block only the
// first-ordered member.
func (s *Session) SwitchExercise(ctx context.Context, index int, exerciseID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.require("switch exercise", StatePlaying, StatePaused); err != nil {
		return err
	}
	if err := s.checkIndex(index); err != nil {
		return err
	}
	if exerciseID == "" {
		return invalid("exerciseId", "required")
	}
	if name == "" {
		return invalid("exerciseName", "required")
	}
	ex := &s.routine[index]
	if n := s.progress.LoggedCount(ex.ID); n > 0 {
		return fmt.Errorf("switch %s: %d sets logged: %w", ex.ExerciseName, n, ErrStructureLocked)
	}
	if ex.InBlock() && sequencer.BlockMembers(s.routine, index)[0] != index {
		return fmt.Errorf("switch %s: only the first member of a block can be switched: %w", ex.ExerciseName, ErrInvalidState)
	}
	ex.ExerciseID = exerciseID
	ex.ExerciseName = name
	if s.hasCursor && s.cursor.ExerciseIndex == index {
		s.fetchSuggestions(ctx, index)
	}
	return s.persist(ctx)
}

// SkipRest ends the rest now; the time actually rested is logged.
func (s *Session) SkipRest(ctx context.Context) error {
	return s.restOp(ctx, "skip rest", func(now time.Time) error {
		s.endRest(now)
		s.emit(Event{Kind: EventRestFinished})
		return nil
	})
}

// ExtendRest adds d to the running rest.
func (s *Session) ExtendRest(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return invalid("seconds", "must be positive")
	}
	return s.restOp(ctx, "extend rest", func(time.Time) error {
		s.rest.Extend(d)
		return nil
	})
}

// PauseRest holds the rest countdown.
func (s *Session) PauseRest(ctx context.Context) error {
	return s.restOp(ctx, "pause rest", func(now time.Time) error {
		s.rest.Pause(now)
		return nil
	})
}

// ResumeRest releases a held rest countdown.
func (s *Session) ResumeRest(ctx context.Context) error {
	return s.restOp(ctx, "resume rest", func(now time.Time) error {
		s.rest.Resume(now)
		return nil
	})
}

func (s *Session) restOp(ctx context.Context, op string, fn func(time.Time) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.require(op, StatePlaying); err != nil {
		return err
	}
	if !s.rest.Visible() {
		return fmt.Errorf("%s: not resting: %w", op, ErrInvalidState)
	}
	if err := fn(s.now()); err != nil {
		return err
	}
	return s.persist(ctx)
}

// StartTimedSet starts or continues the timed-set count.
func (s *Session) StartTimedSet(ctx context.Context) error {
	return s.timedOp(ctx, "start timed set", func(now time.Time) { s.timed.Start(now) })
}

// PauseTimedSet holds the timed-set count.
func (s *Session) PauseTimedSet(ctx context.Context) error {
	return s.timedOp(ctx, "pause timed set", func(now time.Time) { s.timed.Pause(now) })
}

// ResetTimedSet returns the timed-set timer to idle.
func (s *Session) ResetTimedSet(ctx context.Context) error {
	return s.timedOp(ctx, "reset timed set", func(time.Time) { s.timed.Reset() })
}

func (s *Session) timedOp(ctx context.Context, op string, fn func(time.Time)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireCursor(op); err != nil {
		return err
	}
	fn(s.now())
	return s.persist(ctx)
}

// StartEmom runs the armed EMOM round timer.
func (s *Session) StartEmom(ctx context.Context) error {
	return s.emomOp(ctx, "start emom", func(now time.Time) error {
		s.emom.Resume(now)
		return nil
	})
}

// PauseEmom holds the EMOM round timer independently of the session.
func (s *Session) PauseEmom(ctx context.Context) error {
	return s.emomOp(ctx, "pause emom", func(now time.Time) error {
		if !s.emom.Running() {
			return fmt.Errorf("pause emom: not running: %w", ErrInvalidState)
		}
		s.emom.Pause(now)
		return nil
	})
}

// ResumeEmom continues a held EMOM round.
func (s *Session) ResumeEmom(ctx context.Context) error {
	return s.emomOp(ctx, "resume emom", func(now time.Time) error {
		if s.emom.Running() {
			return fmt.Errorf("resume emom: already running: %w", ErrInvalidState)
		}
		s.emom.Resume(now)
		return nil
	})
}

func (s *Session) emomOp(ctx context.Context, op string, fn func(time.Time) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireCursor(op); err != nil {
		return err
	}
	if !s.routine[s.cursor.ExerciseIndex].IsEMOM() || !s.emom.Active() {
		return fmt.Errorf("%s: active exercise is not in an EMOM block: %w", op, ErrInvalidState)
	}
	if err := fn(s.now()); err != nil {
		return err
	}
	return s.persist(ctx)
}

// commit persists and, when no pending work remains, routes to completion.
func (s *Session) commit(ctx context.Context) error {
	if err := s.persist(ctx); err != nil {
		return err
	}
	if !s.hasCursor && s.state == StatePlaying {
		return s.routeCompletion(ctx)
	}
	return nil
}

func (s *Session) checkIndex(index int) error {
	if index < 0 || index >= len(s.routine) {
		return invalid("index", "exercise %d out of range (%d exercises)", index, len(s.routine))
	}
	return nil
}
