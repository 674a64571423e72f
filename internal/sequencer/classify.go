package sequencer

import "github.com/claude/setplayer/internal/models"

// The helpers below label the primary action and decide whether finishing is
// a mandatory prompt. They depend only on cursor, routine and progress.

// IsLastSetOfExercise reports whether cur is the only position of its
// exercise still owed.
func IsLastSetOfExercise(routine []models.SessionExercise, progress *models.Progress, cur Cursor) bool {
	if cur.ExerciseIndex < 0 || cur.ExerciseIndex >= len(routine) {
		return false
	}
	ex := routine[cur.ExerciseIndex]
	for s := 0; s < BlockRounds(routine, cur.ExerciseIndex); s++ {
		if s == cur.SetIndex {
			continue
		}
		if !progress.IsDone(ex.ID, PlannedSetID(ex, s)) {
			return false
		}
	}
	return true
}

// IsLastSetOfRound reports whether cur is the last open member of its block
// still owing the current round. Always false outside blocks.
func IsLastSetOfRound(routine []models.SessionExercise, progress *models.Progress, cur Cursor) bool {
	if cur.ExerciseIndex < 0 || cur.ExerciseIndex >= len(routine) || !routine[cur.ExerciseIndex].InBlock() {
		return false
	}
	for _, m := range BlockMembers(routine, cur.ExerciseIndex) {
		if m == cur.ExerciseIndex {
			continue
		}
		e := routine[m]
		if e.Status.Open() && !progress.IsDone(e.ID, PlannedSetID(e, cur.SetIndex)) {
			return false
		}
	}
	return true
}

// IsLastRoundOfBlock reports whether no later round of cur's block is owed by
// any open member. Always false outside blocks.
func IsLastRoundOfBlock(routine []models.SessionExercise, progress *models.Progress, cur Cursor) bool {
	if cur.ExerciseIndex < 0 || cur.ExerciseIndex >= len(routine) || !routine[cur.ExerciseIndex].InBlock() {
		return false
	}
	_, more := firstOpenRound(routine, progress, cur.ExerciseIndex, cur.SetIndex+1)
	return !more
}

// IsLastSetOfWorkout reports whether completing cur leaves no pending work.
func IsLastSetOfWorkout(routine []models.SessionExercise, progress *models.Progress, cur Cursor) bool {
	if cur.ExerciseIndex < 0 || cur.ExerciseIndex >= len(routine) {
		_, ok := FindFirstPending(routine, progress)
		return !ok
	}
	probe := progress.Clone()
	ex := routine[cur.ExerciseIndex]
	if ex.InBlock() && ex.IsEMOM() {
		// An EMOM round completes for every member at once.
		for _, m := range BlockMembers(routine, cur.ExerciseIndex) {
			probe.MarkSkipped(routine[m].ID, PlannedSetID(routine[m], cur.SetIndex))
		}
	} else {
		probe.MarkSkipped(ex.ID, PlannedSetID(ex, cur.SetIndex))
	}
	_, ok := FindFirstPending(routine, probe)
	return !ok
}
