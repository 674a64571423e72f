package session

import (
	"github.com/claude/setplayer/internal/models"
	"github.com/claude/setplayer/internal/sequencer"
	"github.com/claude/setplayer/internal/timer"
)

// Primary actions offered for the active position.
const (
	ActionLogSet        = "log_set"
	ActionNextRound     = "log_next_round"
	ActionNextExercise  = "log_next_exercise"
	ActionFinishWorkout = "log_finish_workout"
	ActionCompleteRound = "complete_round"
	ActionFinish        = "finish"
)

// Labels classifies the active position.
type Labels struct {
	LastSetOfExercise bool `json:"lastSetOfExercise"`
	LastSetOfRound    bool `json:"lastSetOfRound"`
	LastRoundOfBlock  bool `json:"lastRoundOfBlock"`
	LastSetOfWorkout  bool `json:"lastSetOfWorkout"`
}

// View is a read-only capture of a session for display.
type View struct {
	SessionID string        `json:"sessionId"`
	State     State         `json:"state"`
	Error     string        `json:"error,omitempty"`
	Origin    models.Origin `json:"planId"`
	PlanName  string        `json:"planName"`

	Active        *sequencer.ActiveSet `json:"active,omitempty"`
	Labels        Labels               `json:"labels"`
	PrimaryAction string               `json:"primaryAction,omitempty"`
	Awaiting      *Prompt              `json:"awaiting,omitempty"`
	Suggestion    *models.Suggestion   `json:"suggestion,omitempty"`

	ElapsedSeconds  float64             `json:"elapsedSeconds"`
	Rest            timer.RestState     `json:"rest"`
	TimedSet        timer.TimedSetState `json:"timedSet"`
	OvertimeSeconds float64             `json:"overtimeSeconds,omitempty"`
	Emom            timer.EmomState     `json:"emom"`

	PendingSets int                      `json:"pendingSets"`
	LoggedSets  int                      `json:"loggedSets"`
	Deferred    []int                    `json:"deferred,omitempty"`
	Routine     []models.SessionExercise `json:"routine"`
	Progress    *models.Progress         `json:"progress"`
	Result      *Result                  `json:"result,omitempty"`
}

// View captures the current state.
func (s *Session) View() *View {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	v := &View{
		SessionID:      s.id,
		State:          s.state,
		Origin:         s.origin,
		PlanName:       s.planName,
		Awaiting:       s.awaiting(),
		ElapsedSeconds: s.clock.Elapsed(now).Seconds(),
		Rest:           s.rest.State(now),
		TimedSet:       s.timed.State(now),
		Emom:           s.emom.State(now),
		PendingSets:    s.pending(),
		LoggedSets:     s.progress.TotalSets(),
		Deferred:       s.deferred(),
		Routine:        cloneRoutine(s.routine),
		Progress:       s.progress.Clone(),
		Result:         s.result.clone(),
	}
	if s.err != nil {
		v.Error = s.err.Error()
	}
	if ot := s.timed.Overtime(now); ot > 0 {
		v.OvertimeSeconds = ot.Seconds()
	}

	if !s.hasCursor {
		if v.Awaiting != nil {
			v.PrimaryAction = ActionFinish
		}
		return v
	}
	active, err := sequencer.Resolve(s.routine, s.progress, s.cursor)
	if err != nil {
		s.log.Warn("resolving cursor", "session", s.id, "error", err)
		return v
	}
	v.Active = active
	v.Labels = Labels{
		LastSetOfExercise: sequencer.IsLastSetOfExercise(s.routine, s.progress, s.cursor),
		LastSetOfRound:    sequencer.IsLastSetOfRound(s.routine, s.progress, s.cursor),
		LastRoundOfBlock:  sequencer.IsLastRoundOfBlock(s.routine, s.progress, s.cursor),
		LastSetOfWorkout:  sequencer.IsLastSetOfWorkout(s.routine, s.progress, s.cursor),
	}
	v.PrimaryAction = primaryAction(active.Exercise, v.Labels)
	if sg, ok := s.suggestions[active.Exercise.ExerciseID]; ok {
		v.Suggestion = &sg
	}
	return v
}

func primaryAction(ex models.SessionExercise, l Labels) string {
	switch {
	case ex.IsEMOM():
		return ActionCompleteRound
	case l.LastSetOfWorkout:
		return ActionFinishWorkout
	case ex.InBlock() && l.LastSetOfRound && !l.LastRoundOfBlock:
		return ActionNextRound
	case ex.InBlock() && l.LastSetOfRound:
		return ActionNextExercise
	case !ex.InBlock() && l.LastSetOfExercise:
		return ActionNextExercise
	}
	return ActionLogSet
}

func (s *Session) pending() int {
	return sequencer.PendingSets(s.routine, s.progress)
}
