package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claude/setplayer/internal/models"
)

// TestManagerOpenResumesLiveSession checks that opening the same plan twice
// returns the live session and that another plan is refused meanwhile.
func TestManagerOpenResumesLiveSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(plan("p1", exercise("a", 2)), plan("p2", exercise("b", 1)))
	m := NewManager(h.deps(), h.cfg)

	s, resumed, err := m.Open(ctx, StartOptions{Origin: models.FromPlan("p1")})
	require.NoError(t, err)
	assert.False(t, resumed)
	assert.Equal(t, models.FromPlan("p1"), s.Origin())

	again, resumed, err := m.Open(ctx, StartOptions{Origin: models.FromPlan("p1")})
	require.NoError(t, err)
	assert.True(t, resumed)
	assert.Same(t, s, again)

	_, _, err = m.Open(ctx, StartOptions{Origin: models.FromPlan("p2")})
	assert.ErrorIs(t, err, ErrBusy)

	_, err = s.Finish(ctx, FinishQuit)
	require.NoError(t, err)
	other, _, err := m.Open(ctx, StartOptions{Origin: models.FromPlan("p2")})
	require.NoError(t, err)
	assert.Equal(t, "Plan p2", other.View().PlanName)
}

// TestManagerCurrentRestoresFromStore checks that a fresh manager over the
// same store picks the session up where it was left.
func TestManagerCurrentRestoresFromStore(t *testing.T) {
	ctx := context.Background()
	h := newHarness(plan("p1", exercise("a", 2)))

	_, err := NewManager(h.deps(), h.cfg).Current(ctx)
	assert.ErrorIs(t, err, ErrNoSession)

	first := NewManager(h.deps(), h.cfg)
	s, _, err := first.Open(ctx, StartOptions{Origin: models.FromPlan("p1")})
	require.NoError(t, err)
	require.NoError(t, s.LogSet(ctx, reps(10)))
	require.NoError(t, first.Close(ctx))

	restored, err := NewManager(h.deps(), h.cfg).Current(ctx)
	require.NoError(t, err)
	v := restored.View()
	assert.Equal(t, s.ID(), v.SessionID)
	assert.Equal(t, 1, v.LoggedSets)
	assert.Equal(t, StatePlaying, v.State)
	assert.Equal(t, 1, v.Active.SetIndex)
}

// TestManagerOpenRestoresSnapshot checks that Open resumes a stored session
// of the same plan instead of starting over.
func TestManagerOpenRestoresSnapshot(t *testing.T) {
	ctx := context.Background()
	h := newHarness(plan("p1", exercise("a", 2)))

	first := NewManager(h.deps(), h.cfg)
	s, _, err := first.Open(ctx, StartOptions{Origin: models.FromPlan("p1")})
	require.NoError(t, err)
	require.NoError(t, s.LogSet(ctx, reps(10)))
	require.NoError(t, s.Pause(ctx))
	require.NoError(t, first.Close(ctx))

	again, resumed, err := NewManager(h.deps(), h.cfg).Open(ctx, StartOptions{Origin: models.FromPlan("p1")})
	require.NoError(t, err)
	assert.True(t, resumed)
	assert.Equal(t, StatePaused, again.State())
	assert.Equal(t, s.ID(), again.ID())
}

// TestManagerAdHocResume checks that an ad-hoc open without exercises
// resumes the stored ad-hoc session.
func TestManagerAdHocResume(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	first := NewManager(h.deps(), h.cfg)
	s, _, err := first.Open(ctx, StartOptions{
		Origin:    models.AdHoc(),
		Exercises: []models.SessionExercise{{ExerciseID: "row", ExerciseName: "Row", Sets: []models.TargetSet{{Type: models.SetStandard}}}},
	})
	require.NoError(t, err)
	require.NoError(t, first.Close(ctx))

	again, resumed, err := NewManager(h.deps(), h.cfg).Open(ctx, StartOptions{Origin: models.AdHoc()})
	require.NoError(t, err)
	assert.True(t, resumed)
	assert.Equal(t, s.ID(), again.ID())
}
