package session

import (
	"fmt"
	"time"

	"github.com/claude/setplayer/internal/models"
	"github.com/claude/setplayer/internal/sequencer"
)

// Difference describes how the performed workout departs from its plan.
type Difference struct {
	Major   bool     `json:"major"`
	Reasons []string `json:"reasons,omitempty"`
}

func (d *Difference) add(format string, args ...any) {
	d.Major = true
	d.Reasons = append(d.Reasons, fmt.Sprintf(format, args...))
}

// Performed returns the logged exercises that carry at least one set, in
// working-copy order, with sets in plan order. Logged data for instances no
// longer in the routine follows at the end.
func Performed(routine []models.SessionExercise, progress *models.Progress) []models.LoggedExercise {
	var out []models.LoggedExercise
	seen := make(map[string]bool, len(routine))
	for i, ex := range routine {
		seen[ex.ID] = true
		le := progress.Exercise(ex.ID)
		if le == nil || len(le.Sets) == 0 {
			continue
		}
		c := le.Clone()
		c.ExerciseID = ex.ExerciseID
		c.ExerciseName = ex.ExerciseName
		c.SupersetID = ex.SupersetID
		c.SupersetOrder = ex.SupersetOrder
		c.SupersetType = ex.SupersetType
		c.Sets = planOrder(routine, i, c.Sets)
		out = append(out, c)
	}
	for _, le := range progress.Exercises {
		if !seen[le.ID] && len(le.Sets) > 0 {
			out = append(out, le.Clone())
		}
	}
	return out
}

func planOrder(routine []models.SessionExercise, idx int, sets []models.LoggedSet) []models.LoggedSet {
	ex := routine[idx]
	byID := make(map[string]models.LoggedSet, len(sets))
	for _, s := range sets {
		byID[s.PlannedSetID] = s
	}
	out := make([]models.LoggedSet, 0, len(sets))
	placed := make(map[string]bool, len(sets))
	for r := 0; r < sequencer.BlockRounds(routine, idx); r++ {
		pid := sequencer.PlannedSetID(ex, r)
		if s, ok := byID[pid]; ok && !placed[pid] {
			out = append(out, s)
			placed[pid] = true
		}
	}
	for _, s := range sets {
		if !placed[s.PlannedSetID] {
			out = append(out, s)
		}
	}
	return out
}

// Diff compares what was performed with the plan the session started from.
// A different exercise count or catalog exercise at any index, a different
// set count, or a warm-up where the plan has a working set (or the reverse)
// is a major difference.
func Diff(original *models.Plan, routine []models.SessionExercise, progress *models.Progress) Difference {
	var d Difference
	performed := Performed(routine, progress)
	var planned []models.SessionExercise
	if original != nil {
		planned = original.Exercises
	}
	if len(performed) != len(planned) {
		d.add("%d exercises performed, plan has %d", len(performed), len(planned))
	}
	for i := 0; i < len(performed) && i < len(planned); i++ {
		got, want := performed[i], planned[i]
		if got.ExerciseID != want.ExerciseID {
			d.add("exercise %d is %s, plan has %s", i+1, got.ExerciseName, want.ExerciseName)
			continue
		}
		if len(got.Sets) != len(want.Sets) {
			d.add("%s: %d sets performed, plan has %d", got.ExerciseName, len(got.Sets), len(want.Sets))
			continue
		}
		sets := make([]models.TargetSet, len(want.Sets))
		copy(sets, want.Sets)
		models.OrderWarmupsFirst(sets)
		for j := range sets {
			if (got.Sets[j].Type == models.SetWarmup) != sets[j].IsWarmup() {
				d.add("%s: set %d warm-up type differs from plan", got.ExerciseName, j+1)
				break
			}
		}
	}
	return d
}

// PerformedExercises turns the performed workout into plan exercises whose
// targets are the logged actuals. Blocks that no longer hold together are
// dissolved.
func PerformedExercises(routine []models.SessionExercise, progress *models.Progress, newID func() string) []models.SessionExercise {
	performed := Performed(routine, progress)
	out := make([]models.SessionExercise, 0, len(performed))
	for _, le := range performed {
		ex := models.SessionExercise{
			ID:            newID(),
			ExerciseID:    le.ExerciseID,
			ExerciseName:  le.ExerciseName,
			SupersetID:    le.SupersetID,
			SupersetOrder: le.SupersetOrder,
			SupersetType:  le.SupersetType,
		}
		if i := instanceIndex(routine, le.ID); i >= 0 {
			ex.Notes = routine[i].Notes
			ex.EmomIntervalSeconds = routine[i].EmomIntervalSeconds
		}
		for _, ls := range le.Sets {
			ex.Sets = append(ex.Sets, models.TargetSet{
				ID:   newID(),
				Type: ls.Type,
				Target: models.Target{
					Reps:     exact(ls.Reps),
					Weight:   exact(ls.Weight),
					Duration: exact(ls.Duration),
					Distance: exact(ls.Distance),
					Rest:     ls.Target.Clone().Rest,
					Tempo:    ls.Target.Tempo,
				},
			})
		}
		out = append(out, ex)
	}
	dissolveBroken(out)
	return out
}

func exact(v *float64) *models.TargetValue {
	if v == nil {
		return nil
	}
	return models.Exact(*v)
}

func instanceIndex(routine []models.SessionExercise, id string) int {
	for i, ex := range routine {
		if ex.ID == id {
			return i
		}
	}
	return -1
}

// dissolveBroken clears block membership from any block that is split, has a
// single member or uneven round counts, and renumbers the rest.
func dissolveBroken(exercises []models.SessionExercise) {
	blocks := make(map[string][]int)
	var order []string
	for i, e := range exercises {
		if !e.InBlock() {
			continue
		}
		if _, ok := blocks[e.SupersetID]; !ok {
			order = append(order, e.SupersetID)
		}
		blocks[e.SupersetID] = append(blocks[e.SupersetID], i)
	}
	for _, id := range order {
		members := blocks[id]
		ok := len(members) > 1 && members[len(members)-1]-members[0] == len(members)-1
		for _, m := range members {
			if len(exercises[m].Sets) != len(exercises[members[0]].Sets) {
				ok = false
			}
		}
		for n, m := range members {
			if ok {
				exercises[m].SupersetOrder = n
			} else {
				exercises[m].ClearBlock()
			}
		}
	}
}

// BuildLog assembles the final record. When the session clock never started,
// start and end fall back to the first and last logged set timestamps.
func BuildLog(id string, performed []models.LoggedExercise, start, end time.Time, elapsed time.Duration) *models.WorkoutLog {
	if start.IsZero() {
		var first, last time.Time
		for _, le := range performed {
			for _, s := range le.Sets {
				if first.IsZero() || s.Timestamp.Before(first) {
					first = s.Timestamp
				}
				if s.Timestamp.After(last) {
					last = s.Timestamp
				}
			}
		}
		start, end = first, last
		elapsed = last.Sub(first)
	}
	log := &models.WorkoutLog{
		ID:        id,
		StartTime: start,
		EndTime:   end,
		Duration:  elapsed,
		Exercises: make([]models.LoggedExercise, len(performed)),
	}
	for i, le := range performed {
		log.Exercises[i] = le.Clone()
	}
	return log
}
