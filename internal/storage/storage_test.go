package storage

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/claude/setplayer/internal/models"
	"github.com/claude/setplayer/internal/session"
)

var (
	_ session.PlanProvider    = (*DB)(nil)
	_ session.HistoryProvider = (*DB)(nil)
	_ session.ProgramProvider = (*DB)(nil)
	_ session.SnapshotStore   = (*DB)(nil)
)

// openTestDB connects to the database named by SETPLAYER_TEST_DATABASE_URL
// and applies the migrations. Tests are skipped when it is unset.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("SETPLAYER_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("SETPLAYER_TEST_DATABASE_URL not set")
	}
	if err := RunMigrations(dsn, "../../migrations"); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	db, err := New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(db.Close)
	return db
}

// TestNullable checks that empty strings are stored as NULL.
func TestNullable(t *testing.T) {
	if got := nullable(""); got != nil {
		t.Errorf("nullable(\"\") = %v, want nil", *got)
	}
	if got := nullable("x"); got == nil || *got != "x" {
		t.Errorf("nullable(\"x\") = %v, want x", got)
	}
}

// TestPlanRoundTrip stores a plan, replaces its exercises and reads it back.
func TestPlanRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	id := uuid.NewString()

	plan := &models.Plan{ID: id, Name: "Legs", Exercises: []models.SessionExercise{{
		ID: "sq", ExerciseID: "squat", ExerciseName: "Squat", Status: models.StatusStarted,
		Sets: []models.TargetSet{{ID: "s1", Type: models.SetStandard, Target: models.Target{Reps: models.Range(5, 8)}}},
	}}}
	if err := db.CreatePlan(ctx, plan); err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}

	got, err := db.GetPlan(ctx, id)
	if err != nil {
		t.Fatalf("GetPlan: %v", err)
	}
	if got.Name != "Legs" || len(got.Exercises) != 1 {
		t.Fatalf("GetPlan = %+v, want Legs with one exercise", got)
	}
	if got.Exercises[0].Status != "" {
		t.Errorf("stored status = %q, want empty", got.Exercises[0].Status)
	}
	if v, _ := got.Exercises[0].Sets[0].Target.Reps.Value(); v != 5 {
		t.Errorf("reps target = %v, want 5", v)
	}

	if err := db.ReplaceExercises(ctx, id, nil); err != nil {
		t.Fatalf("ReplaceExercises: %v", err)
	}
	if err := db.ReplaceExercises(ctx, uuid.NewString(), nil); !errors.Is(err, session.ErrPlanNotFound) {
		t.Errorf("ReplaceExercises(unknown) = %v, want ErrPlanNotFound", err)
	}
	if _, err := db.GetPlan(ctx, uuid.NewString()); !errors.Is(err, session.ErrPlanNotFound) {
		t.Errorf("GetPlan(unknown) = %v, want ErrPlanNotFound", err)
	}
}

// TestAppendLogAndHistory stores a workout and checks the suggestions built
// from it.
func TestAppendLogAndHistory(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	exerciseID := "bench-" + uuid.NewString()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	log := &models.WorkoutLog{
		ID: uuid.NewString(), PlanName: "Push", StartTime: start,
		EndTime: start.Add(time.Hour), Duration: time.Hour,
		Exercises: []models.LoggedExercise{{
			ID: "b1", ExerciseID: exerciseID, ExerciseName: "Bench",
			Sets: []models.LoggedSet{
				{ID: uuid.NewString(), PlannedSetID: "w", Type: models.SetWarmup, Reps: models.Float(10), Weight: models.Float(200), Timestamp: start},
				{ID: uuid.NewString(), PlannedSetID: "a", Type: models.SetStandard, Reps: models.Float(5), Weight: models.Float(100), Timestamp: start.Add(time.Minute)},
				{ID: uuid.NewString(), PlannedSetID: "b", Type: models.SetStandard, Reps: models.Float(8), Weight: models.Float(90), Timestamp: start.Add(2 * time.Minute)},
			},
		}},
	}
	if err := db.AppendLog(ctx, log); err != nil {
		t.Fatalf("AppendLog: %v", err)
	}
	if err := db.AppendLog(ctx, log); err != nil {
		t.Fatalf("AppendLog again: %v", err)
	}

	last, err := db.LastPerformance(ctx, exerciseID)
	if err != nil {
		t.Fatalf("LastPerformance: %v", err)
	}
	if last == nil || len(last.Sets) != 3 {
		t.Fatalf("LastPerformance = %+v, want 3 sets", last)
	}
	if last.Sets[0].PlannedSetID != "w" {
		t.Errorf("first set = %s, want w", last.Sets[0].PlannedSetID)
	}

	pb, err := db.PersonalBests(ctx, exerciseID)
	if err != nil {
		t.Fatalf("PersonalBests: %v", err)
	}
	if pb == nil || *pb.MaxWeight != 100 || *pb.MaxReps != 8 {
		t.Errorf("PersonalBests = %+v, want weight 100 reps 8", pb)
	}

	none, err := db.PersonalBests(ctx, "never-"+uuid.NewString())
	if err != nil || none != nil {
		t.Errorf("PersonalBests(never) = %v, %v, want nil, nil", none, err)
	}
}

// TestSnapshotStore checks set, overwrite, get and delete.
func TestSnapshotStore(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	key := "test-" + uuid.NewString()

	if _, err := db.Get(ctx, key); !errors.Is(err, session.ErrNoSnapshot) {
		t.Errorf("Get(empty) = %v, want ErrNoSnapshot", err)
	}
	for _, blob := range []string{"one", "two"} {
		if err := db.Set(ctx, key, []byte(blob)); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	got, err := db.Get(ctx, key)
	if err != nil || string(got) != "two" {
		t.Errorf("Get = %q, %v, want two", got, err)
	}
	if err := db.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := db.Delete(ctx, key); err != nil {
		t.Errorf("Delete(missing) = %v, want nil", err)
	}
}
