package session

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claude/setplayer/internal/models"
	"github.com/claude/setplayer/internal/sequencer"
)

// TestSkipSetRemovesWholeRound skips the last member of a three-member round
// after the first two were logged.
func TestSkipSetRemovesWholeRound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(plan("p1", block("xyz", models.BlockSuperset, 0,
		exercise("x", 2), exercise("y", 2), exercise("z", 2))...))
	s := h.start(t, "p1")

	require.NoError(t, s.LogSet(ctx, reps(10)))
	require.NoError(t, s.LogSet(ctx, reps(10)))
	require.NoError(t, s.SkipSet(ctx))

	v := s.View()
	for _, id := range []string{"x", "y", "z"} {
		assert.Equal(t, 0, v.Progress.LoggedCount(id), id)
		assert.True(t, v.Progress.IsSkipped(id, id+"-s0-round-0"), id)
	}
	require.NotNil(t, v.Active)
	assert.Equal(t, 0, v.Active.ExerciseIndex)
	assert.Equal(t, 1, v.Active.SetIndex)
	assert.Equal(t, 2, v.Active.BlockRound)
}

// TestSkipLastSetAsksFirst checks the last-remaining-set prompt and both of
// its answers.
func TestSkipLastSetAsksFirst(t *testing.T) {
	h := newHarness(plan("p1", exercise("a", 1), exercise("b", 2)))
	s := h.start(t, "p1")

	err := s.SkipSet(context.Background())
	p, ok := IsDecisionRequired(err)
	require.True(t, ok, "err = %v", err)
	assert.Equal(t, PromptSkipLastSet, p.Kind)
	assert.Equal(t, 0, s.View().Active.ExerciseIndex)

	assert.ErrorIs(t, s.SkipSet(decide(PromptSkipLastSet, RoleCancel)), ErrCancelled)

	require.NoError(t, s.SkipSet(decide(PromptSkipLastSet, RoleSkipExercise)))
	v := s.View()
	assert.Equal(t, models.StatusSkipped, v.Routine[0].Status)
	assert.Equal(t, 1, v.Active.ExerciseIndex)

	require.NoError(t, s.SkipSet(context.Background()))
	v = s.View()
	assert.Equal(t, 1, v.Active.SetIndex)
	assert.True(t, v.Progress.IsSkipped("b", "b-s0"))
}

// TestDeferredExercisesComeBack defers an exercise, finishes the rest and
// takes the deferred one up again.
func TestDeferredExercisesComeBack(t *testing.T) {
	ctx := context.Background()
	h := newHarness(plan("p1", exercise("a", 1), exercise("b", 1)))
	s := h.start(t, "p1")

	require.NoError(t, s.DeferExercise(ctx, 0))
	v := s.View()
	assert.Equal(t, models.StatusDoLater, v.Routine[0].Status)
	assert.Equal(t, 1, v.Active.ExerciseIndex)

	require.NoError(t, s.LogSet(ctx, reps(10)))
	v = s.View()
	assert.Nil(t, v.Active)
	require.NotNil(t, v.Awaiting)
	assert.Equal(t, PromptDeferred, v.Awaiting.Kind)
	assert.Equal(t, []int{0}, v.Deferred)

	require.NoError(t, s.ResumeDeferred(ctx))
	v = s.View()
	require.NotNil(t, v.Active)
	assert.Equal(t, 0, v.Active.ExerciseIndex)
	assert.Nil(t, v.Awaiting)

	require.NoError(t, s.LogSet(decide(PromptFinish, RoleFinish), reps(10)))
	res := s.Result()
	require.NotNil(t, res)
	assert.Equal(t, ResultSummary, res.Kind)
	assert.Equal(t, 2, res.Log.SetCount())
}

// TestDeferredPromptDoNow answers the deferred prompt inline.
func TestDeferredPromptDoNow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(plan("p1", exercise("a", 1), exercise("b", 1)))
	s := h.start(t, "p1")
	require.NoError(t, s.DeferExercise(ctx, 0))
	require.NoError(t, s.LogSet(decide(PromptDeferred, RoleDoNow), reps(10)))

	v := s.View()
	require.NotNil(t, v.Active)
	assert.Equal(t, 0, v.Active.ExerciseIndex)
	assert.Equal(t, models.StatusStarted, v.Routine[0].Status)
}

// TestDeferActiveBlockMidRound defers a block after its first member logged
// the round; that round's set is removed and the cursor leaves the block.
func TestDeferActiveBlockMidRound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(plan("p1", concat(
		block("bc", models.BlockSuperset, 0, exercise("b", 2), exercise("c", 2)),
		[]models.SessionExercise{exercise("d", 1)},
	)...))
	s := h.start(t, "p1")

	require.NoError(t, s.LogSet(ctx, reps(10)))
	require.NoError(t, s.DeferExercise(ctx, 1))

	v := s.View()
	assert.Equal(t, models.StatusDoLater, v.Routine[0].Status)
	assert.Equal(t, models.StatusDoLater, v.Routine[1].Status)
	assert.Equal(t, 0, v.Progress.LoggedCount("b"))
	assert.Equal(t, 2, v.Active.ExerciseIndex)
}

// TestSkipFullyLoggedExercise checks that a fully logged exercise cannot be
// skipped.
func TestSkipFullyLoggedExercise(t *testing.T) {
	ctx := context.Background()
	h := newHarness(plan("p1", exercise("a", 1), exercise("b", 1)))
	s := h.start(t, "p1")
	require.NoError(t, s.LogSet(ctx, reps(10)))
	assert.ErrorIs(t, s.SkipExercise(ctx, 0), ErrInvalidState)
}

// TestJumpToLoggedExerciseRestarts checks the restart confirmation and that
// restarting deletes the logged sets.
func TestJumpToLoggedExerciseRestarts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(plan("p1", exercise("a", 1), exercise("b", 2)))
	s := h.start(t, "p1")
	require.NoError(t, s.LogSet(ctx, reps(10)))

	p, ok := IsDecisionRequired(s.JumpTo(ctx, 0))
	require.True(t, ok)
	assert.Equal(t, PromptRestart, p.Kind)
	assert.Equal(t, 1, s.View().Progress.LoggedCount("a"))

	require.NoError(t, s.JumpTo(decide(PromptRestart, RoleRestart), 0))
	v := s.View()
	assert.Equal(t, 0, v.Progress.LoggedCount("a"))
	assert.Equal(t, 0, v.Active.ExerciseIndex)
	assert.Equal(t, models.StatusStarted, v.Routine[0].Status)
}

// TestJumpToReopensSkipped checks that jumping to a skipped exercise reopens
// it without a prompt.
func TestJumpToReopensSkipped(t *testing.T) {
	ctx := context.Background()
	h := newHarness(plan("p1", exercise("a", 2), exercise("b", 2)))
	s := h.start(t, "p1")
	require.NoError(t, s.SkipExercise(ctx, 1))
	require.NoError(t, s.JumpTo(ctx, 1))

	v := s.View()
	assert.Equal(t, 1, v.Active.ExerciseIndex)
	assert.Equal(t, models.StatusStarted, v.Routine[1].Status)
}

// TestLogSetRejectsBadInput checks that invalid values leave the session
// unchanged.
func TestLogSetRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	h := newHarness(plan("p1", exercise("a", 2)))
	s := h.start(t, "p1")

	bad := []SetInput{
		{Reps: models.Float(-1)},
		{Weight: models.Float(math.NaN())},
		{Duration: models.Float(math.Inf(1))},
		{RPE: models.Float(11)},
	}
	for _, in := range bad {
		err := s.LogSet(ctx, in)
		var verr *ValidationError
		assert.True(t, errors.As(err, &verr), "err = %v", err)
	}
	v := s.View()
	assert.Equal(t, 0, v.LoggedSets)
	assert.Equal(t, 0, v.Active.SetIndex)
}

// TestStructureLockedByLoggedSets checks the edits refused once sets exist.
func TestStructureLockedByLoggedSets(t *testing.T) {
	ctx := context.Background()
	h := newHarness(plan("p1", exercise("a", 2), exercise("b", 2), exercise("c", 2)))
	s := h.start(t, "p1")
	require.NoError(t, s.LogSet(ctx, reps(10)))

	assert.ErrorIs(t, s.RemoveExercise(ctx, 0), ErrStructureLocked)
	assert.ErrorIs(t, s.SwitchExercise(ctx, 0, "cat-z", "Z"), ErrStructureLocked)
	_, err := s.CreateSuperset(ctx, 0, 1, models.BlockSuperset, 0)
	assert.ErrorIs(t, err, ErrStructureLocked)
	assert.ErrorIs(t, s.RemoveSet(ctx, 0, 0), ErrStructureLocked)

	require.NoError(t, s.SwitchExercise(ctx, 1, "cat-z", "Z"))
	assert.Equal(t, "Z", s.View().Routine[1].ExerciseName)
}

// TestSwitchOnlyFirstBlockMember refuses to switch a later superset member.
func TestSwitchOnlyFirstBlockMember(t *testing.T) {
	ctx := context.Background()
	h := newHarness(plan("p1", block("ss", models.BlockSuperset, 0, exercise("a", 2), exercise("b", 2))...))
	s := h.start(t, "p1")

	assert.ErrorIs(t, s.SwitchExercise(ctx, 1, "cat-z", "Z"), ErrInvalidState)
	assert.Equal(t, "Exercise b", s.View().Routine[1].ExerciseName)

	require.NoError(t, s.SwitchExercise(ctx, 0, "cat-z", "Z"))
	assert.Equal(t, "Z", s.View().Routine[0].ExerciseName)
}

// TestCreateSupersetReshapesRoutine groups two upcoming exercises and plays
// them as rounds.
func TestCreateSupersetReshapesRoutine(t *testing.T) {
	ctx := context.Background()
	h := newHarness(plan("p1", exercise("a", 1), exercise("b", 2), exercise("c", 2)))
	s := h.start(t, "p1")

	_, err := s.CreateSuperset(ctx, 1, 1, models.BlockSuperset, 0)
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
	_, err = s.CreateSuperset(ctx, 0, 1, models.BlockSuperset, 0)
	assert.True(t, errors.As(err, &verr), "mismatched set counts")

	id, err := s.CreateSuperset(ctx, 1, 2, models.BlockSuperset, 0)
	require.NoError(t, err)
	v := s.View()
	assert.Equal(t, id, v.Routine[1].SupersetID)
	assert.Equal(t, id, v.Routine[2].SupersetID)
	assert.Equal(t, 1, v.Routine[2].SupersetOrder)

	order := []int{}
	for i := 0; i < 5; i++ {
		order = append(order, s.View().Active.ExerciseIndex)
		require.NoError(t, s.LogSet(ctx, reps(10)))
	}
	assert.Equal(t, []int{0, 1, 2, 1, 2}, order)

	assert.True(t, errors.As(s.BreakSuperset(ctx, "unknown"), &verr))
	assert.ErrorIs(t, s.BreakSuperset(ctx, id), ErrStructureLocked)
}

// TestCompleteRoundFromTemplates forces an EMOM round and checks the logged
// values come from each member's first plan set.
func TestCompleteRoundFromTemplates(t *testing.T) {
	ctx := context.Background()
	a, b := exercise("a", 2), exercise("b", 2)
	a.Sets[0].Target.Weight = models.Range(20, 24)
	b.Sets[1].Target.Reps = models.Exact(99)
	h := newHarness(plan("p1", block("em", models.BlockEMOM, 60, a, b)...))
	s := h.start(t, "p1")

	require.NoError(t, s.CompleteRound(ctx))
	require.NoError(t, s.LogSet(ctx, SetInput{}))

	v := s.View()
	for _, ex := range v.Routine {
		for r := 0; r < 2; r++ {
			ls := v.Progress.Set(ex.ID, sequencer.PlannedSetID(ex, r))
			require.NotNil(t, ls, "%s round %d", ex.ID, r)
			assert.Equal(t, 10.0, *ls.Reps)
		}
	}
	assert.Equal(t, 20.0, *v.Progress.Set("a", "a-s0-round-1").Weight)
	assert.Nil(t, v.Active)
	assert.ErrorIs(t, s.CompleteRound(ctx), ErrInvalidState)
}
