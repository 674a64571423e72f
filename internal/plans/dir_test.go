package plans

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/claude/setplayer/internal/models"
	"github.com/claude/setplayer/internal/session"
)

const pushDay = `name: Push day
exercises:
  - id: bench
    exercise_id: bench-press
    exercise_name: Bench press
    sets:
      - id: b1
        type: warmup
        target:
          reps: {exact: 12}
          weight: {exact: 40}
      - id: b2
        type: standard
        target:
          reps: {min: 6, max: 8}
          weight: {exact: 80}
          rest: {exact: 120}
  - id: dips
    exercise_id: dips
    exercise_name: Dips
    superset_id: finisher
    superset_order: 0
    superset_type: superset
    sets:
      - id: d1
        type: standard
        target: {reps: {exact: 10}}
  - id: pushups
    exercise_id: pushups
    exercise_name: Push-ups
    superset_id: finisher
    superset_order: 1
    superset_type: superset
    sets:
      - id: p1
        type: amrap
`

func writePlan(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

// TestGetPlanParsesYAML checks targets, ranges and block fields.
func TestGetPlanParsesYAML(t *testing.T) {
	dir := t.TempDir()
	writePlan(t, dir, "push.yaml", pushDay)

	p, err := Dir{Path: dir}.GetPlan(context.Background(), "push")
	if err != nil {
		t.Fatalf("GetPlan: %v", err)
	}
	if p.ID != "push" {
		t.Errorf("ID = %q, want push", p.ID)
	}
	if p.Name != "Push day" {
		t.Errorf("Name = %q, want Push day", p.Name)
	}
	if len(p.Exercises) != 3 {
		t.Fatalf("exercises = %d, want 3", len(p.Exercises))
	}
	bench := p.Exercises[0]
	if !bench.Sets[0].IsWarmup() {
		t.Errorf("first bench set type = %s, want warmup", bench.Sets[0].Type)
	}
	if got := bench.Sets[1].Target.Reps.String(); got != "6-8" {
		t.Errorf("reps target = %q, want 6-8", got)
	}
	if got, _ := bench.Sets[1].Target.Rest.Value(); got != 120 {
		t.Errorf("rest = %v, want 120", got)
	}
	if p.Exercises[2].SupersetID != "finisher" || p.Exercises[2].SupersetOrder != 1 {
		t.Errorf("pushups block = %s/%d, want finisher/1", p.Exercises[2].SupersetID, p.Exercises[2].SupersetOrder)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

// TestGetPlanMissing checks the not-found mapping and id sanitising.
func TestGetPlanMissing(t *testing.T) {
	d := Dir{Path: t.TempDir()}
	if _, err := d.GetPlan(context.Background(), "nope"); !errors.Is(err, session.ErrPlanNotFound) {
		t.Errorf("GetPlan(nope) = %v, want ErrPlanNotFound", err)
	}
	if _, err := d.GetPlan(context.Background(), "../etc/passwd"); err == nil {
		t.Error("GetPlan(../etc/passwd) succeeded, want error")
	}
}

// TestCreateAndReplace writes a plan, refuses to overwrite it, and replaces
// its exercises.
func TestCreateAndReplace(t *testing.T) {
	ctx := context.Background()
	d := Dir{Path: filepath.Join(t.TempDir(), "plans")}
	plan := &models.Plan{ID: "legs", Name: "Legs", Exercises: []models.SessionExercise{{
		ID: "sq", ExerciseID: "squat", ExerciseName: "Squat", Status: models.StatusCompleted,
		Sets: []models.TargetSet{{ID: "s1", Type: models.SetStandard, Target: models.Target{Reps: models.Exact(5)}}},
	}}}

	if err := d.CreatePlan(ctx, plan); err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	if err := d.CreatePlan(ctx, plan); err == nil {
		t.Error("second CreatePlan succeeded, want error")
	}

	ex := plan.Exercises[0].Clone()
	ex.Sets = append(ex.Sets, models.TargetSet{ID: "s2", Type: models.SetStandard})
	if err := d.ReplaceExercises(ctx, "legs", []models.SessionExercise{ex}); err != nil {
		t.Fatalf("ReplaceExercises: %v", err)
	}

	got, err := d.GetPlan(ctx, "legs")
	if err != nil {
		t.Fatalf("GetPlan: %v", err)
	}
	if len(got.Exercises[0].Sets) != 2 {
		t.Errorf("sets = %d, want 2", len(got.Exercises[0].Sets))
	}
	if got.Exercises[0].Status != "" {
		t.Errorf("status = %q, want empty", got.Exercises[0].Status)
	}
	if got.Name != "Legs" {
		t.Errorf("Name = %q, want Legs", got.Name)
	}

	ids, err := d.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 1 || ids[0] != "legs" {
		t.Errorf("List = %v, want [legs]", ids)
	}
}
