package localstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/claude/setplayer/internal/models"
	"github.com/claude/setplayer/internal/session"
)

var (
	_ session.PlanProvider    = (*Store)(nil)
	_ session.HistoryProvider = (*Store)(nil)
	_ session.SnapshotStore   = (*Store)(nil)
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestSnapshotLifecycle checks that a missing key wraps ErrNoSnapshot and
// that Set overwrites.
func TestSnapshotLifecycle(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, "active"); !errors.Is(err, session.ErrNoSnapshot) {
		t.Errorf("Get(empty) = %v, want ErrNoSnapshot", err)
	}
	if err := s.Set(ctx, "active", []byte("a")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "active", []byte("b")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, "active")
	if err != nil || string(got) != "b" {
		t.Errorf("Get = %q, %v, want b", got, err)
	}
	if err := s.Delete(ctx, "active"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "active"); !errors.Is(err, session.ErrNoSnapshot) {
		t.Errorf("Get after Delete = %v, want ErrNoSnapshot", err)
	}
}

// TestSnapshotSurvivesReopen checks that the blob is on disk, not in memory.
func TestSnapshotSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Set(ctx, "k", []byte("kept")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	s.Close()

	s, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.Get(ctx, "k")
	if err != nil || string(got) != "kept" {
		t.Errorf("Get = %q, %v, want kept", got, err)
	}
}

// TestPlans stores a plan, replaces its exercises and checks unknown ids.
func TestPlans(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	plan := &models.Plan{ID: "p1", Name: "Pull", Exercises: []models.SessionExercise{{
		ID: "row", ExerciseID: "row", ExerciseName: "Row", Status: models.StatusDoLater,
		Sets: []models.TargetSet{{ID: "s1", Type: models.SetStandard}},
	}}}
	if err := s.CreatePlan(ctx, plan); err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	got, err := s.GetPlan(ctx, "p1")
	if err != nil {
		t.Fatalf("GetPlan: %v", err)
	}
	if got.Name != "Pull" || len(got.Exercises) != 1 || got.Exercises[0].Status != "" {
		t.Errorf("GetPlan = %+v, want Pull with one status-free exercise", got)
	}

	if err := s.ReplaceExercises(ctx, "p1", append(got.Exercises, got.Exercises[0])); err != nil {
		t.Fatalf("ReplaceExercises: %v", err)
	}
	got, _ = s.GetPlan(ctx, "p1")
	if len(got.Exercises) != 2 {
		t.Errorf("exercises = %d, want 2", len(got.Exercises))
	}

	if _, err := s.GetPlan(ctx, "nope"); !errors.Is(err, session.ErrPlanNotFound) {
		t.Errorf("GetPlan(nope) = %v, want ErrPlanNotFound", err)
	}
	if err := s.ReplaceExercises(ctx, "nope", nil); !errors.Is(err, session.ErrPlanNotFound) {
		t.Errorf("ReplaceExercises(nope) = %v, want ErrPlanNotFound", err)
	}
}

// TestHistory appends two workouts and checks that suggestions come from the
// newer one while personal bests span both and skip warm-ups.
func TestHistory(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	workout := func(id string, end time.Time, sets ...models.LoggedSet) *models.WorkoutLog {
		return &models.WorkoutLog{ID: id, PlanName: "Legs", StartTime: end.Add(-time.Hour), EndTime: end,
			Exercises: []models.LoggedExercise{{ID: "i-" + id, ExerciseID: "squat", ExerciseName: "Squat", Sets: sets}}}
	}
	first := workout("w1", day,
		models.LoggedSet{ID: "w1-a", Type: models.SetWarmup, Reps: models.Float(5), Weight: models.Float(150)},
		models.LoggedSet{ID: "w1-b", Type: models.SetStandard, Reps: models.Float(5), Weight: models.Float(100)},
	)
	second := workout("w2", day.Add(48*time.Hour),
		models.LoggedSet{ID: "w2-a", Type: models.SetStandard, Reps: models.Float(8), Weight: models.Float(90)},
	)
	for _, l := range []*models.WorkoutLog{first, second, second} {
		if err := s.AppendLog(ctx, l); err != nil {
			t.Fatalf("AppendLog(%s): %v", l.ID, err)
		}
	}

	last, err := s.LastPerformance(ctx, "squat")
	if err != nil {
		t.Fatalf("LastPerformance: %v", err)
	}
	if last == nil || last.ID != "i-w2" || len(last.Sets) != 1 {
		t.Errorf("LastPerformance = %+v, want the w2 exercise", last)
	}

	pb, err := s.PersonalBests(ctx, "squat")
	if err != nil {
		t.Fatalf("PersonalBests: %v", err)
	}
	if pb == nil || *pb.MaxWeight != 100 || *pb.MaxReps != 8 {
		t.Fatalf("PersonalBests = %+v, want weight 100 reps 8", pb)
	}
	if pb.MaxDuration != nil {
		t.Errorf("MaxDuration = %v, want nil", *pb.MaxDuration)
	}

	if last, _ := s.LastPerformance(ctx, "deadlift"); last != nil {
		t.Errorf("LastPerformance(deadlift) = %+v, want nil", last)
	}
	logs, err := s.Logs(ctx, 0)
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if len(logs) != 2 || logs[0].ID != "w2" {
		t.Errorf("Logs = %d, first %v, want 2 newest w2", len(logs), logs)
	}
}
