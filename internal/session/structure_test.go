package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claude/setplayer/internal/models"
)

// TestAddExerciseAfterActive inserts an exercise after the active one and
// reaches it next.
func TestAddExerciseAfterActive(t *testing.T) {
	ctx := context.Background()
	h := newHarness(plan("p1", exercise("a", 2), exercise("b", 1)))
	s := h.start(t, "p1")

	idx, err := s.AddExercise(ctx, NewExercise{
		ExerciseID:   "cat-n",
		ExerciseName: "New",
		Sets:         []models.TargetSet{{Target: models.Target{Reps: models.Exact(8)}}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	v := s.View()
	require.Len(t, v.Routine, 3)
	assert.Equal(t, "New", v.Routine[1].ExerciseName)
	assert.Equal(t, models.SetStandard, v.Routine[1].Sets[0].Type)
	assert.NotEmpty(t, v.Routine[1].ID)

	require.NoError(t, s.LogSet(ctx, reps(10)))
	require.NoError(t, s.LogSet(ctx, reps(10)))
	assert.Equal(t, 1, s.View().Active.ExerciseIndex)

	_, err = s.AddExercise(ctx, NewExercise{ExerciseName: "No id"})
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

// TestAddExerciseAfterCompletion appends to a finished routine and plays it.
func TestAddExerciseAfterCompletion(t *testing.T) {
	ctx := context.Background()
	h := newHarness(plan("p1", exercise("a", 1)))
	s := h.start(t, "p1")
	require.NoError(t, s.LogSet(ctx, reps(10)))
	require.NotNil(t, s.View().Awaiting)

	idx, err := s.AddExercise(ctx, NewExercise{ExerciseID: "cat-n", ExerciseName: "New"})
	require.NoError(t, err)
	v := s.View()
	require.NotNil(t, v.Active)
	assert.Equal(t, idx, v.Active.ExerciseIndex)
	assert.Nil(t, v.Awaiting)
}

// TestRemoveActiveExercise moves the cursor to the next pending exercise.
func TestRemoveActiveExercise(t *testing.T) {
	ctx := context.Background()
	h := newHarness(plan("p1", exercise("a", 2), exercise("b", 2)))
	s := h.start(t, "p1")

	require.NoError(t, s.RemoveExercise(ctx, 0))
	v := s.View()
	require.Len(t, v.Routine, 1)
	assert.Equal(t, "b", v.Routine[0].ID)
	assert.Equal(t, 0, v.Active.ExerciseIndex)
}

// TestRemoveBlockMemberDissolvesPair checks that a block reduced to one
// member becomes a standard exercise.
func TestRemoveBlockMemberDissolvesPair(t *testing.T) {
	ctx := context.Background()
	h := newHarness(plan("p1", concat(
		block("bc", models.BlockSuperset, 0, exercise("b", 2), exercise("c", 2)),
		[]models.SessionExercise{exercise("d", 1)},
	)...))
	s := h.start(t, "p1")

	require.NoError(t, s.RemoveExercise(ctx, 1))
	v := s.View()
	require.Len(t, v.Routine, 2)
	assert.False(t, v.Routine[0].InBlock())
	assert.Equal(t, 0, v.Active.BlockRound)

	require.NoError(t, s.LogSet(ctx, reps(10)))
	assert.Equal(t, 1, s.View().Active.SetIndex)
}

// TestExtendSupersetAddsMember extends a pair with the following exercise.
func TestExtendSupersetAddsMember(t *testing.T) {
	ctx := context.Background()
	h := newHarness(plan("p1", concat(
		block("bc", models.BlockSuperset, 0, exercise("b", 2), exercise("c", 2)),
		[]models.SessionExercise{exercise("d", 2), exercise("e", 1)},
	)...))
	s := h.start(t, "p1")

	var verr *ValidationError
	assert.True(t, errors.As(s.ExtendSuperset(ctx, "bc", 3), &verr), "not adjacent")
	require.NoError(t, s.ExtendSuperset(ctx, "bc", 2))

	v := s.View()
	assert.Equal(t, "bc", v.Routine[2].SupersetID)
	assert.Equal(t, 2, v.Routine[2].SupersetOrder)

	var order []int
	for i := 0; i < 6; i++ {
		order = append(order, s.View().Active.ExerciseIndex)
		require.NoError(t, s.LogSet(ctx, reps(10)))
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2}, order)
	assert.Equal(t, 3, s.View().Active.ExerciseIndex)
}

// TestAddSetToBlockAddsRound checks that adding a set to a block member adds
// a round to every member.
func TestAddSetToBlockAddsRound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(plan("p1", block("bc", models.BlockSuperset, 0, exercise("b", 1), exercise("c", 1))...))
	s := h.start(t, "p1")

	n, err := s.AddSet(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	v := s.View()
	assert.Len(t, v.Routine[0].Sets, 2)
	assert.Len(t, v.Routine[1].Sets, 2)
	assert.Equal(t, 2, v.Active.TotalBlockRounds)
}

// TestRemoveSetMovesCursor removes the active set of a standard exercise.
func TestRemoveSetMovesCursor(t *testing.T) {
	ctx := context.Background()
	h := newHarness(plan("p1", exercise("a", 3)))
	s := h.start(t, "p1")
	require.NoError(t, s.LogSet(ctx, reps(10)))

	require.NoError(t, s.RemoveSet(ctx, 0, 1))
	v := s.View()
	require.Len(t, v.Routine[0].Sets, 2)
	assert.Equal(t, "a-s2", v.Active.Set.ID)

	var verr *ValidationError
	require.NoError(t, s.RemoveSet(ctx, 0, 1))
	assert.True(t, errors.As(s.RemoveSet(ctx, 0, 0), &verr), "last set")
	assert.Nil(t, s.View().Active)
}

// TestUpdateSetTargetRearmsTimedSet changes the duration of the active timed
// set and rejects an inverted range.
func TestUpdateSetTargetRearmsTimedSet(t *testing.T) {
	ctx := context.Background()
	plank := exercise("plank", 1)
	plank.Sets[0].Target = models.Target{Duration: models.Exact(30)}
	h := newHarness(plan("p1", plank))
	s := h.start(t, "p1")

	require.NoError(t, s.UpdateSetTarget(ctx, 0, 0, models.Target{Duration: models.Exact(45)}))
	assert.Equal(t, 45.0, s.View().TimedSet.TargetSeconds)

	var verr *ValidationError
	err := s.UpdateSetTarget(ctx, 0, 0, models.Target{Reps: models.Range(12, 8)})
	assert.True(t, errors.As(err, &verr))
	require.NoError(t, s.UpdateSetTarget(ctx, 0, 0, models.Target{}))
	assert.Equal(t, 0.0, s.View().TimedSet.TargetSeconds)
}
