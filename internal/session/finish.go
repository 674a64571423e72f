package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/claude/setplayer/internal/models"
)

// FinishMode selects how a session ends.
type FinishMode string

const (
	// FinishNormal ends a session with no pending work left.
	FinishNormal FinishMode = "normal"
	// FinishEarly ends with pending work; what was logged is kept.
	FinishEarly FinishMode = "early"
	// FinishQuit abandons the session without a log.
	FinishQuit FinishMode = "quit"
)

// ResultKind classifies how a session ended.
type ResultKind string

const (
	ResultDiscarded        ResultKind = "discarded"
	ResultQuit             ResultKind = "quit"
	ResultSummary          ResultKind = "summary"
	ResultProgramCompleted ResultKind = "program_completed"
)

// Result is the outcome of a finished session.
type Result struct {
	Kind ResultKind         `json:"kind"`
	Log  *models.WorkoutLog `json:"log,omitempty"`
	// Resolution is the reconcile choice applied, log_as_is when none was asked.
	Resolution string     `json:"resolution,omitempty"`
	PlanID     string     `json:"planId,omitempty"`
	Difference Difference `json:"difference"`
}

func (r *Result) clone() *Result {
	if r == nil {
		return nil
	}
	c := *r
	if r.Log != nil {
		c.Log = r.Log.Clone()
	}
	c.Difference.Reasons = append([]string(nil), r.Difference.Reasons...)
	return &c
}

// Finish ends the session. A normal finish needs every set done; an early
// finish keeps what was logged; quit discards everything. If nothing was
// logged no record is written. When the performed workout departs from its
// plan (or has no plan) the operator chooses how to record it. Any storage
// failure leaves the session running.
func (s *Session) Finish(ctx context.Context, mode FinishMode) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.require("finish", StatePlaying, StatePaused); err != nil {
		return nil, err
	}
	res, err := s.finish(ctx, mode)
	return res.clone(), err
}

func (s *Session) finish(ctx context.Context, mode FinishMode) (*Result, error) {
	switch mode {
	case FinishQuit:
		return s.end(ctx, &Result{Kind: ResultQuit}), nil
	case FinishNormal:
		if s.hasCursor {
			return nil, fmt.Errorf("finish: %d sets pending: %w", s.pending(), ErrInvalidState)
		}
	case FinishEarly:
	default:
		return nil, invalid("mode", "unknown finish mode %q", mode)
	}

	if s.progress.TotalSets() == 0 {
		return s.end(ctx, &Result{Kind: ResultDiscarded}), nil
	}

	diff := Diff(s.original, s.routine, s.progress)
	res := &Result{Kind: ResultSummary, Resolution: RoleLogAsIs, Difference: diff}
	name := s.defaultPlanName()
	if diff.Major || s.origin.IsAdHoc() {
		r, err := s.ask(ctx, reconcilePrompt(s.origin.IsAdHoc(), diff.Reasons, name))
		if err != nil {
			return nil, err
		}
		res.Resolution = r.Role
		if v := r.Data["name"]; v != "" {
			name = v
		}
	}

	now := s.now()
	log := BuildLog(s.deps.NewID(), Performed(s.routine, s.progress),
		s.clock.StartedAt(), now, s.clock.Elapsed(now))
	log.PlanID, _ = s.origin.PlanID()
	log.PlanName = s.planName
	log.ProgramID = s.programID
	log.IterationID = s.iterationID

	switch res.Resolution {
	case RoleUpdatePlan:
		if s.deps.Plans == nil {
			return nil, fmt.Errorf("updating plan: %w", ErrPlanNotFound)
		}
		exercises := PerformedExercises(s.routine, s.progress, s.deps.NewID)
		if err := s.deps.Plans.ReplaceExercises(ctx, log.PlanID, exercises); err != nil {
			return nil, fmt.Errorf("updating plan %s: %w", log.PlanID, err)
		}
		res.PlanID = log.PlanID
	case RoleForkPlan:
		if s.deps.Plans == nil {
			return nil, fmt.Errorf("creating plan: %w", ErrPlanNotFound)
		}
		plan := &models.Plan{
			ID:        s.deps.NewID(),
			Name:      name,
			Exercises: PerformedExercises(s.routine, s.progress, s.deps.NewID),
		}
		if err := s.deps.Plans.CreatePlan(ctx, plan); err != nil {
			return nil, fmt.Errorf("creating plan %q: %w", name, err)
		}
		log.PlanID = plan.ID
		log.PlanName = plan.Name
		res.PlanID = plan.ID
	}

	if s.deps.History != nil {
		if err := s.deps.History.AppendLog(ctx, log.Clone()); err != nil {
			return nil, fmt.Errorf("saving workout log: %w", err)
		}
	}
	res.Log = log

	if s.programID != "" && s.deps.Programs != nil {
		done, err := s.deps.Programs.CheckAndHandleCompletion(ctx, s.programID, log.Clone())
		if err != nil {
			s.log.Error("checking program completion", "program", s.programID, "error", err)
		} else if done {
			res.Kind = ResultProgramCompleted
		}
	}
	return s.end(ctx, res), nil
}

func (s *Session) defaultPlanName() string {
	date := s.workoutDate
	if date.IsZero() {
		date = s.now()
	}
	return fmt.Sprintf("%s (%s)", s.planName, date.Format("2006-01-02"))
}

// end moves the session to StateEnded. The tick is cancelled before any
// timer is read, and the snapshot is deleted.
func (s *Session) end(ctx context.Context, res *Result) *Result {
	s.stopTicker()
	now := s.now()
	s.freeze(now)
	s.rest.Cancel()
	s.restFor = nil
	s.timed.Arm(0)
	s.emom.Stop()
	s.hasCursor = false
	s.state = StateEnded
	s.result = res

	if err := s.deps.Store.Delete(ctx, s.cfg.SnapshotKey); err != nil {
		s.log.Error("deleting snapshot", "session", s.id, "error", err)
	}
	s.emit(Event{Kind: EventEnded})
	attrs := []any{"session", s.id, "result", res.Kind}
	if res.Log != nil {
		attrs = append(attrs, "sets", res.Log.SetCount(), "duration", res.Log.Duration)
	}
	s.log.Info("session ended", attrs...)
	return res
}

// routeCompletion asks what to do once no pending work remains: take up the
// deferred exercises, or finish. An unanswered or declined prompt leaves the
// session playing with the prompt exposed on the view.
func (s *Session) routeCompletion(ctx context.Context) error {
	var err error
	if n := len(s.deferred()); n > 0 {
		var r Response
		if r, err = s.ask(ctx, deferredPrompt(n)); err == nil {
			switch r.Role {
			case RoleDoNow:
				err = s.reopenDeferred(ctx)
			case RoleFinish:
				_, err = s.finish(ctx, FinishNormal)
			}
		}
	} else {
		var r Response
		if r, err = s.ask(ctx, finishPrompt()); err == nil && r.Role == RoleFinish {
			_, err = s.finish(ctx, FinishNormal)
		}
	}

	var dre *DecisionRequiredError
	if errors.As(err, &dre) || errors.Is(err, ErrCancelled) {
		return nil
	}
	return err
}

// awaiting returns the prompt the session is waiting on, if any.
func (s *Session) awaiting() *Prompt {
	if s.state != StatePlaying || s.hasCursor {
		return nil
	}
	p := finishPrompt()
	if n := len(s.deferred()); n > 0 {
		p = deferredPrompt(n)
	}
	return &p
}
