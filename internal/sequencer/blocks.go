package sequencer

import (
	"errors"
	"fmt"
	"sort"

	"github.com/claude/setplayer/internal/models"
)

// ErrInconsistentBlock is returned when the members of a superset or EMOM
// block disagree on structure.
var ErrInconsistentBlock = errors.New("inconsistent block")

// BlockMembers returns the routine indices of every exercise sharing the
// block of routine[idx], ordered by SupersetOrder. For an exercise outside
// any block it returns just idx.
func BlockMembers(routine []models.SessionExercise, idx int) []int {
	ex := routine[idx]
	if !ex.InBlock() {
		return []int{idx}
	}
	var members []int
	for i, e := range routine {
		if e.SupersetID == ex.SupersetID {
			members = append(members, i)
		}
	}
	sort.SliceStable(members, func(a, b int) bool {
		return routine[members[a]].SupersetOrder < routine[members[b]].SupersetOrder
	})
	return members
}

// BlockRounds returns the number of rounds in the block containing
// routine[idx]: the set count of its first-ordered member. For a standard
// exercise it is the exercise's own set count.
func BlockRounds(routine []models.SessionExercise, idx int) int {
	members := BlockMembers(routine, idx)
	return len(routine[members[0]].Sets)
}

// BlockEnd returns the highest routine index occupied by the block of
// routine[idx].
func BlockEnd(routine []models.SessionExercise, idx int) int {
	end := idx
	for _, m := range BlockMembers(routine, idx) {
		if m > end {
			end = m
		}
	}
	return end
}

// BlockStart returns the lowest routine index occupied by the block of
// routine[idx].
func BlockStart(routine []models.SessionExercise, idx int) int {
	start := idx
	for _, m := range BlockMembers(routine, idx) {
		if m < start {
			start = m
		}
	}
	return start
}

// TemplateSet returns the plan set that drives a given round of ex. EMOM
// rounds always use the first plan set as their template.
func TemplateSet(ex models.SessionExercise, setIndex int) (models.TargetSet, bool) {
	if len(ex.Sets) == 0 {
		return models.TargetSet{}, false
	}
	if ex.IsEMOM() {
		return ex.Sets[0], true
	}
	if setIndex < 0 || setIndex >= len(ex.Sets) {
		return models.TargetSet{}, false
	}
	return ex.Sets[setIndex], true
}

// PlannedSetID returns the id a logged set for this position carries:
// the plan set id for standard exercises, the round-qualified template id for
// block members.
func PlannedSetID(ex models.SessionExercise, setIndex int) string {
	set, ok := TemplateSet(ex, setIndex)
	if !ok {
		return ""
	}
	if !ex.InBlock() {
		return set.ID
	}
	return models.RoundSetID(set.ID, setIndex)
}

// ValidateBlocks checks every block in the routine: members must be
// contiguous, share a block type, carry distinct orders and the same number
// of rounds, and EMOM members must agree on a positive interval.
func ValidateBlocks(routine []models.SessionExercise) error {
	checked := make(map[string]bool)
	for i, ex := range routine {
		if !ex.InBlock() || checked[ex.SupersetID] {
			continue
		}
		checked[ex.SupersetID] = true

		members := BlockMembers(routine, i)
		start, end := BlockStart(routine, i), BlockEnd(routine, i)
		if end-start+1 != len(members) {
			return fmt.Errorf("block %s: members are not contiguous: %w", ex.SupersetID, ErrInconsistentBlock)
		}

		first := routine[members[0]]
		orders := make(map[int]bool, len(members))
		for _, m := range members {
			e := routine[m]
			if orders[e.SupersetOrder] {
				return fmt.Errorf("block %s: duplicate order %d: %w", ex.SupersetID, e.SupersetOrder, ErrInconsistentBlock)
			}
			orders[e.SupersetOrder] = true
			if e.SupersetType != first.SupersetType {
				return fmt.Errorf("block %s: mixed block types: %w", ex.SupersetID, ErrInconsistentBlock)
			}
			if len(e.Sets) != len(first.Sets) {
				return fmt.Errorf("block %s: %q has %d rounds, want %d: %w",
					ex.SupersetID, e.ExerciseName, len(e.Sets), len(first.Sets), ErrInconsistentBlock)
			}
			if first.SupersetType == models.BlockEMOM {
				if e.EmomIntervalSeconds <= 0 {
					return fmt.Errorf("block %s: EMOM interval must be positive: %w", ex.SupersetID, ErrInconsistentBlock)
				}
				if e.EmomIntervalSeconds != first.EmomIntervalSeconds {
					return fmt.Errorf("block %s: EMOM intervals differ (%ds vs %ds): %w",
						ex.SupersetID, e.EmomIntervalSeconds, first.EmomIntervalSeconds, ErrInconsistentBlock)
				}
			}
		}
	}
	return nil
}
