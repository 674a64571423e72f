// Package sequencer derives which set of a running workout is active and
// where the session goes next. Every function is pure: it reads the working
// copy routine and the log-so-far and never mutates either.
package sequencer

import (
	"fmt"

	"github.com/claude/setplayer/internal/models"
)

// Cursor identifies the active unit of work. BlockRound is 1-based and zero
// outside a block.
type Cursor struct {
	ExerciseIndex    int `json:"exerciseIndex"`
	SetIndex         int `json:"setIndex"`
	BlockRound       int `json:"blockRound"`
	TotalBlockRounds int `json:"totalBlockRounds"`
}

// Advance is the outcome of a transition.
type Advance struct {
	Cursor           Cursor
	BlockChanged     bool
	RoundIncremented bool
	// Done means no pending work remains; the caller routes to completion.
	Done bool
}

// At builds the cursor for a position, filling in block round data.
func At(routine []models.SessionExercise, exerciseIndex, setIndex int) Cursor {
	c := Cursor{ExerciseIndex: exerciseIndex, SetIndex: setIndex}
	if routine[exerciseIndex].InBlock() {
		c.BlockRound = setIndex + 1
		c.TotalBlockRounds = BlockRounds(routine, exerciseIndex)
	}
	return c
}

// FindFirstPending scans the routine in plan order and returns the first
// playable position. A block is resumed at its first-ordered open member for
// the earliest round any open member still owes, because rounds are completed
// one full column at a time.
func FindFirstPending(routine []models.SessionExercise, progress *models.Progress) (Cursor, bool) {
	return findFrom(routine, progress, 0)
}

func findFrom(routine []models.SessionExercise, progress *models.Progress, from int) (Cursor, bool) {
	seen := make(map[string]bool)
	for i := from; i < len(routine); i++ {
		ex := routine[i]
		if ex.InBlock() {
			if seen[ex.SupersetID] {
				continue
			}
			seen[ex.SupersetID] = true
			if c, ok := firstOpenRound(routine, progress, i, 0); ok {
				return c, true
			}
			continue
		}
		if !ex.Status.Open() {
			continue
		}
		for s := range ex.Sets {
			if !progress.IsDone(ex.ID, PlannedSetID(ex, s)) {
				return At(routine, i, s), true
			}
		}
	}
	return Cursor{}, false
}

// FirstOpenIn returns the first owed position of routine[idx], ignoring its
// status. Blocks resolve to the first member, in block order, owing the
// earliest owed round. Used when the operator picks an exercise explicitly.
func FirstOpenIn(routine []models.SessionExercise, progress *models.Progress, idx int) (Cursor, bool) {
	ex := routine[idx]
	if ex.InBlock() {
		members := BlockMembers(routine, idx)
		for r := 0; r < BlockRounds(routine, idx); r++ {
			for _, m := range members {
				if !progress.IsDone(routine[m].ID, PlannedSetID(routine[m], r)) {
					return At(routine, m, r), true
				}
			}
		}
		return Cursor{}, false
	}
	for s := range ex.Sets {
		if !progress.IsDone(ex.ID, PlannedSetID(ex, s)) {
			return At(routine, idx, s), true
		}
	}
	return Cursor{}, false
}

// firstOpenRound finds the earliest round >= fromRound that some open member
// of the block still owes and returns the block's first open member for it.
func firstOpenRound(routine []models.SessionExercise, progress *models.Progress, idx, fromRound int) (Cursor, bool) {
	members := BlockMembers(routine, idx)
	rounds := BlockRounds(routine, idx)
	for r := fromRound; r < rounds; r++ {
		owed := false
		firstOpen := -1
		for _, m := range members {
			ex := routine[m]
			if !ex.Status.Open() {
				continue
			}
			if firstOpen < 0 {
				firstOpen = m
			}
			if !progress.IsDone(ex.ID, PlannedSetID(ex, r)) {
				owed = true
			}
		}
		if owed && firstOpen >= 0 {
			return At(routine, firstOpen, r), true
		}
	}
	return Cursor{}, false
}

// Next computes the transition out of cur.
//
// Inside a block, the next open member in the same round follows unless cur
// is the round's last member or forceAdvanceBlock is set; then the next round
// starts at the block's first open member. Once rounds are exhausted the
// search moves past the block. A standard exercise advances set by set and
// moves on when its sets are exhausted or when forced.
func Next(routine []models.SessionExercise, progress *models.Progress, cur Cursor, forceAdvanceBlock bool) Advance {
	if cur.ExerciseIndex < 0 || cur.ExerciseIndex >= len(routine) {
		return searchForward(routine, progress, 0)
	}
	ex := routine[cur.ExerciseIndex]

	if ex.InBlock() {
		members := BlockMembers(routine, cur.ExerciseIndex)
		round := cur.SetIndex
		if !forceAdvanceBlock {
			pos := indexOf(members, cur.ExerciseIndex)
			for _, m := range members[pos+1:] {
				e := routine[m]
				if e.Status.Open() && !progress.IsDone(e.ID, PlannedSetID(e, round)) {
					return Advance{Cursor: At(routine, m, round)}
				}
			}
		}
		if c, ok := firstOpenRound(routine, progress, cur.ExerciseIndex, round+1); ok {
			return Advance{Cursor: c, RoundIncremented: true}
		}
		// A forced advance may leave earlier members of this round owed
		// (e.g. the operator jumped into the middle of a round).
		if c, ok := firstOpenRound(routine, progress, cur.ExerciseIndex, 0); ok && !forceAdvanceBlock {
			return Advance{Cursor: c}
		}
		return searchForward(routine, progress, BlockEnd(routine, cur.ExerciseIndex)+1)
	}

	if !forceAdvanceBlock && ex.Status.Open() {
		for s := cur.SetIndex + 1; s < len(ex.Sets); s++ {
			if !progress.IsDone(ex.ID, PlannedSetID(ex, s)) {
				return Advance{Cursor: At(routine, cur.ExerciseIndex, s)}
			}
		}
	}
	return searchForward(routine, progress, cur.ExerciseIndex+1)
}

// searchForward looks for pending work after from, then wraps to the start of
// the routine to pick up anything left behind by jumps or deferrals.
func searchForward(routine []models.SessionExercise, progress *models.Progress, from int) Advance {
	if c, ok := findFrom(routine, progress, from); ok {
		return Advance{Cursor: c, BlockChanged: true}
	}
	if c, ok := findFrom(routine, progress, 0); ok {
		return Advance{Cursor: c, BlockChanged: true}
	}
	return Advance{Done: true, BlockChanged: true}
}

// ActiveSet is the fully resolved cursor.
type ActiveSet struct {
	Cursor
	Exercise     models.SessionExercise `json:"exercise"`
	Set          models.TargetSet       `json:"set"`
	PlannedSetID string                 `json:"plannedSetId"`
	Logged       *models.LoggedSet      `json:"logged,omitempty"`
	// Members lists instance ids of the block in order; nil outside blocks.
	Members []string `json:"members,omitempty"`
}

// IsLogged reports whether the active position already has a logged set.
func (a *ActiveSet) IsLogged() bool {
	return a.Logged != nil
}

// Resolve turns a cursor into the exercise and set data it points at.
func Resolve(routine []models.SessionExercise, progress *models.Progress, cur Cursor) (*ActiveSet, error) {
	if cur.ExerciseIndex < 0 || cur.ExerciseIndex >= len(routine) {
		return nil, fmt.Errorf("cursor exercise %d out of range (%d exercises)", cur.ExerciseIndex, len(routine))
	}
	ex := routine[cur.ExerciseIndex]
	set, ok := TemplateSet(ex, cur.SetIndex)
	if !ok || cur.SetIndex < 0 || cur.SetIndex >= BlockRounds(routine, cur.ExerciseIndex) {
		return nil, fmt.Errorf("cursor set %d out of range for %q", cur.SetIndex, ex.ExerciseName)
	}

	a := &ActiveSet{
		Cursor:       At(routine, cur.ExerciseIndex, cur.SetIndex),
		Exercise:     ex.Clone(),
		Set:          set.Clone(),
		PlannedSetID: PlannedSetID(ex, cur.SetIndex),
	}
	if ls := progress.Set(ex.ID, a.PlannedSetID); ls != nil {
		c := ls.Clone()
		a.Logged = &c
	}
	if ex.InBlock() {
		for _, m := range BlockMembers(routine, cur.ExerciseIndex) {
			a.Members = append(a.Members, routine[m].ID)
		}
	}
	return a, nil
}

// Valid reports whether cur still points at owed work in an open exercise.
func Valid(routine []models.SessionExercise, progress *models.Progress, cur Cursor) bool {
	if cur.ExerciseIndex < 0 || cur.ExerciseIndex >= len(routine) {
		return false
	}
	ex := routine[cur.ExerciseIndex]
	if !ex.Status.Open() || cur.SetIndex < 0 || cur.SetIndex >= BlockRounds(routine, cur.ExerciseIndex) {
		return false
	}
	if _, ok := TemplateSet(ex, cur.SetIndex); !ok {
		return false
	}
	return !progress.IsDone(ex.ID, PlannedSetID(ex, cur.SetIndex))
}

// PendingSets counts positions still owed across all open exercises.
func PendingSets(routine []models.SessionExercise, progress *models.Progress) int {
	n := 0
	for i, ex := range routine {
		if !ex.Status.Open() {
			continue
		}
		for s := 0; s < BlockRounds(routine, i); s++ {
			if _, ok := TemplateSet(ex, s); ok && !progress.IsDone(ex.ID, PlannedSetID(ex, s)) {
				n++
			}
		}
	}
	return n
}

// ExerciseFinished reports whether every position of routine[idx] is logged
// or skipped.
func ExerciseFinished(routine []models.SessionExercise, progress *models.Progress, idx int) bool {
	ex := routine[idx]
	rounds := BlockRounds(routine, idx)
	for s := 0; s < rounds; s++ {
		if !progress.IsDone(ex.ID, PlannedSetID(ex, s)) {
			return false
		}
	}
	return true
}

// FullyLogged reports whether every position of routine[idx] has a logged set.
func FullyLogged(routine []models.SessionExercise, progress *models.Progress, idx int) bool {
	ex := routine[idx]
	rounds := BlockRounds(routine, idx)
	for s := 0; s < rounds; s++ {
		if !progress.IsLogged(ex.ID, PlannedSetID(ex, s)) {
			return false
		}
	}
	return rounds > 0
}

func indexOf(xs []int, v int) int {
	for i, x := range xs {
		if x == v {
			return i
		}
	}
	return -1
}
