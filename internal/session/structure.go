package session

import (
	"context"
	"fmt"

	"github.com/claude/setplayer/internal/models"
	"github.com/claude/setplayer/internal/sequencer"
	"github.com/claude/setplayer/internal/timer"
)

// NewExercise describes an exercise added mid-session.
type NewExercise struct {
	ExerciseID   string             `json:"exerciseId"`
	ExerciseName string             `json:"exerciseName"`
	Sets         []models.TargetSet `json:"sets"`
	Notes        string             `json:"notes,omitempty"`
}

// AddExercise inserts a new instance after the active exercise, or after
// its whole block when the active exercise is in one. With no pending work it
// is appended and becomes active immediately. Returns the new index.
func (s *Session) AddExercise(ctx context.Context, in NewExercise) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.require("add exercise", StatePlaying, StatePaused); err != nil {
		return 0, err
	}
	if in.ExerciseID == "" {
		return 0, invalid("exerciseId", "required")
	}
	if in.ExerciseName == "" {
		return 0, invalid("exerciseName", "required")
	}
	ex := models.SessionExercise{
		ID:           s.deps.NewID(),
		ExerciseID:   in.ExerciseID,
		ExerciseName: in.ExerciseName,
		Notes:        in.Notes,
		Status:       models.StatusPending,
	}
	for _, set := range in.Sets {
		if err := validateTarget(set.Target); err != nil {
			return 0, err
		}
		set = set.Clone()
		set.ID = s.deps.NewID()
		if set.Type == "" {
			set.Type = models.SetStandard
		}
		ex.Sets = append(ex.Sets, set)
	}
	if len(ex.Sets) == 0 {
		ex.Sets = []models.TargetSet{{ID: s.deps.NewID(), Type: models.SetStandard}}
	}
	models.OrderWarmupsFirst(ex.Sets)

	pos := len(s.routine)
	if s.hasCursor {
		pos = sequencer.BlockEnd(s.routine, s.cursor.ExerciseIndex) + 1
	}
	s.routine = append(s.routine, models.SessionExercise{})
	copy(s.routine[pos+1:], s.routine[pos:])
	s.routine[pos] = ex

	if !s.hasCursor && s.state == StatePlaying {
		s.enter(ctx, sequencer.At(s.routine, pos, 0))
	}
	s.log.Info("exercise added", "session", s.id, "exercise", ex.ExerciseName, "index", pos)
	return pos, s.persist(ctx)
}

// RemoveExercise deletes an instance with no logged sets. A block left with
// one member dissolves, which is refused if that member has logged rounds.
func (s *Session) RemoveExercise(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.require("remove exercise", StatePlaying, StatePaused); err != nil {
		return err
	}
	if err := s.checkIndex(index); err != nil {
		return err
	}
	ex := s.routine[index]
	if n := s.progress.LoggedCount(ex.ID); n > 0 {
		return fmt.Errorf("remove %s: %d sets logged: %w", ex.ExerciseName, n, ErrStructureLocked)
	}
	var remaining []int
	if ex.InBlock() {
		for _, m := range sequencer.BlockMembers(s.routine, index) {
			if m != index {
				remaining = append(remaining, m)
			}
		}
		if len(remaining) == 1 && s.progress.LoggedCount(s.routine[remaining[0]].ID) > 0 {
			return fmt.Errorf("remove %s: would dissolve a block with logged rounds: %w", ex.ExerciseName, ErrStructureLocked)
		}
	}

	wasActive := s.hasCursor && s.cursor.ExerciseIndex == index
	s.routine = append(s.routine[:index], s.routine[index+1:]...)
	s.progress.RemoveExercise(ex.ID)
	if ex.InBlock() {
		s.renumberBlock(ex.SupersetID)
	}

	switch {
	case wasActive:
		s.hasCursor = false
		s.endRest(s.now())
		if c, ok := sequencer.FindFirstPending(s.routine, s.progress); ok {
			s.enter(ctx, c)
		} else {
			s.moveTo(ctx, sequencer.Advance{Done: true})
		}
	case s.hasCursor:
		idx := s.cursor.ExerciseIndex
		if idx > index {
			idx--
		}
		s.cursor = sequencer.At(s.routine, idx, s.cursor.SetIndex)
	}
	s.log.Info("exercise removed", "session", s.id, "exercise", ex.ExerciseName)
	return s.persist(ctx)
}

// renumberBlock orders the members of a block by routine position and
// dissolves it when fewer than two remain.
func (s *Session) renumberBlock(blockID string) {
	var members []int
	for i, e := range s.routine {
		if e.SupersetID == blockID {
			members = append(members, i)
		}
	}
	if len(members) == 1 {
		s.routine[members[0]].ClearBlock()
		return
	}
	for order, m := range members {
		s.routine[m].SupersetOrder = order
	}
}

// CreateSuperset groups the contiguous exercises from..to into a block.
// Members must be outside any block, unlogged, and carry the same number of
// sets. EMOM blocks need a positive interval.
func (s *Session) CreateSuperset(ctx context.Context, from, to int, kind models.BlockType, intervalSeconds int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.require("create superset", StatePlaying, StatePaused); err != nil {
		return "", err
	}
	if err := s.checkIndex(from); err != nil {
		return "", err
	}
	if err := s.checkIndex(to); err != nil {
		return "", err
	}
	if to <= from {
		return "", invalid("range", "a block needs at least two exercises")
	}
	switch kind {
	case "":
		kind = models.BlockSuperset
	case models.BlockSuperset:
	case models.BlockEMOM:
		if intervalSeconds <= 0 {
			return "", invalid("intervalSeconds", "must be positive for an EMOM block")
		}
	default:
		return "", invalid("type", "unknown block type %q", kind)
	}

	rounds := len(s.routine[from].Sets)
	for i := from; i <= to; i++ {
		e := s.routine[i]
		if e.InBlock() {
			return "", invalid("range", "%s is already in a block", e.ExerciseName)
		}
		if n := s.progress.LoggedCount(e.ID); n > 0 {
			return "", fmt.Errorf("create superset: %s has %d sets logged: %w", e.ExerciseName, n, ErrStructureLocked)
		}
		if len(e.Sets) != rounds {
			return "", invalid("sets", "%s has %d sets, %s has %d; members need matching round counts",
				e.ExerciseName, len(e.Sets), s.routine[from].ExerciseName, rounds)
		}
	}

	blockID := s.deps.NewID()
	for i := from; i <= to; i++ {
		e := &s.routine[i]
		s.progress.RemoveExercise(e.ID)
		e.SupersetID = blockID
		e.SupersetOrder = i - from
		e.SupersetType = kind
		if kind == models.BlockEMOM {
			e.EmomIntervalSeconds = intervalSeconds
		}
	}
	if err := sequencer.ValidateBlocks(s.routine); err != nil {
		return "", s.fail(err)
	}

	if s.hasCursor && s.cursor.ExerciseIndex >= from && s.cursor.ExerciseIndex <= to {
		s.reseat(ctx, from)
	}
	s.log.Info("block created", "session", s.id, "block", blockID, "type", kind, "members", to-from+1)
	return blockID, s.persist(ctx)
}

// BreakSuperset dissolves a block with no logged sets.
func (s *Session) BreakSuperset(ctx context.Context, blockID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.require("break superset", StatePlaying, StatePaused); err != nil {
		return err
	}
	members, err := s.blockMembers(blockID)
	if err != nil {
		return err
	}
	if err := s.checkUnlogged("break superset", members); err != nil {
		return err
	}
	activeIn := s.hasCursor && s.routine[s.cursor.ExerciseIndex].SupersetID == blockID
	for _, m := range members {
		s.progress.RemoveExercise(s.routine[m].ID)
		s.routine[m].ClearBlock()
	}
	if activeIn {
		s.reseat(ctx, members[0])
	}
	s.log.Info("block dissolved", "session", s.id, "block", blockID)
	return s.persist(ctx)
}

// ExtendSuperset adds the exercise at index, which must sit directly before
// or after the block, as a member.
func (s *Session) ExtendSuperset(ctx context.Context, blockID string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.require("extend superset", StatePlaying, StatePaused); err != nil {
		return err
	}
	if err := s.checkIndex(index); err != nil {
		return err
	}
	members, err := s.blockMembers(blockID)
	if err != nil {
		return err
	}
	start, end := sequencer.BlockStart(s.routine, members[0]), sequencer.BlockEnd(s.routine, members[0])
	if index != start-1 && index != end+1 {
		return invalid("index", "exercise %d is not adjacent to the block", index)
	}
	ex := &s.routine[index]
	if ex.InBlock() {
		return invalid("index", "%s is already in a block", ex.ExerciseName)
	}
	if err := s.checkUnlogged("extend superset", append([]int{index}, members...)); err != nil {
		return err
	}
	first := s.routine[members[0]]
	if len(ex.Sets) != len(first.Sets) {
		return invalid("sets", "%s has %d sets, the block has %d rounds", ex.ExerciseName, len(ex.Sets), len(first.Sets))
	}

	s.progress.RemoveExercise(ex.ID)
	ex.SupersetID = blockID
	ex.SupersetType = first.SupersetType
	ex.EmomIntervalSeconds = first.EmomIntervalSeconds
	s.renumberBlock(blockID)
	if err := sequencer.ValidateBlocks(s.routine); err != nil {
		return s.fail(err)
	}

	if s.hasCursor && s.routine[s.cursor.ExerciseIndex].SupersetID == blockID {
		s.reseat(ctx, sequencer.BlockStart(s.routine, index))
	}
	s.log.Info("block extended", "session", s.id, "block", blockID, "exercise", ex.ExerciseName)
	return s.persist(ctx)
}

func (s *Session) blockMembers(blockID string) ([]int, error) {
	for i, e := range s.routine {
		if e.SupersetID == blockID && blockID != "" {
			return sequencer.BlockMembers(s.routine, i), nil
		}
	}
	return nil, invalid("supersetId", "unknown block %q", blockID)
}

func (s *Session) checkUnlogged(op string, indices []int) error {
	for _, m := range indices {
		if n := s.progress.LoggedCount(s.routine[m].ID); n > 0 {
			return fmt.Errorf("%s: %s has %d sets logged: %w", op, s.routine[m].ExerciseName, n, ErrStructureLocked)
		}
	}
	return nil
}

// reseat moves the cursor to the first owed position of idx after a
// structural change, falling back to the first pending position.
func (s *Session) reseat(ctx context.Context, idx int) {
	s.hasCursor = false
	if c, ok := sequencer.FirstOpenIn(s.routine, s.progress, idx); ok && s.routine[idx].Status.Open() {
		s.enter(ctx, c)
		return
	}
	if c, ok := sequencer.FindFirstPending(s.routine, s.progress); ok {
		s.enter(ctx, c)
		return
	}
	s.moveTo(ctx, sequencer.Advance{Done: true})
}

// UpdateSetTarget replaces the target of one plan set. Logged sets keep the
// target copied when they were logged.
func (s *Session) UpdateSetTarget(ctx context.Context, index, setIndex int, target models.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.require("update set", StatePlaying, StatePaused); err != nil {
		return err
	}
	if err := s.checkSet(index, setIndex); err != nil {
		return err
	}
	if err := validateTarget(target); err != nil {
		return err
	}
	s.routine[index].Sets[setIndex].Target = target.Clone()

	if s.hasCursor && s.cursor.ExerciseIndex == index && s.timed.Mode() == timer.TimedIdle {
		if tmpl, ok := sequencer.TemplateSet(s.routine[index], s.cursor.SetIndex); ok {
			v, _ := tmpl.Target.Duration.Value()
			s.timed.Arm(fromSeconds(v))
		}
	}
	return s.persist(ctx)
}

// AddSet appends a copy of the last set. In a block every member gains a
// round. Returns the new set index.
func (s *Session) AddSet(ctx context.Context, index int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.require("add set", StatePlaying, StatePaused); err != nil {
		return 0, err
	}
	if err := s.checkIndex(index); err != nil {
		return 0, err
	}
	for _, m := range sequencer.BlockMembers(s.routine, index) {
		e := &s.routine[m]
		set := e.Sets[len(e.Sets)-1].Clone()
		set.ID = s.deps.NewID()
		if set.IsWarmup() {
			set.Type = models.SetStandard
		}
		e.Sets = append(e.Sets, set)
	}
	s.reopen(index)
	if s.hasCursor && sequencer.BlockStart(s.routine, s.cursor.ExerciseIndex) == sequencer.BlockStart(s.routine, index) {
		s.cursor = sequencer.At(s.routine, s.cursor.ExerciseIndex, s.cursor.SetIndex)
	}
	if !s.hasCursor && s.state == StatePlaying {
		if c, ok := sequencer.FindFirstPending(s.routine, s.progress); ok {
			s.enter(ctx, c)
		}
	}
	return len(s.routine[index].Sets) - 1, s.persist(ctx)
}

// RemoveSet deletes one plan set. In a block the round is removed from every
// member, which requires that no member logged that round or any later one.
func (s *Session) RemoveSet(ctx context.Context, index, setIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.require("remove set", StatePlaying, StatePaused); err != nil {
		return err
	}
	if err := s.checkSet(index, setIndex); err != nil {
		return err
	}
	ex := s.routine[index]
	if len(ex.Sets) < 2 {
		return invalid("setIndex", "%s needs at least one set", ex.ExerciseName)
	}

	if !ex.InBlock() {
		pid := ex.Sets[setIndex].ID
		if s.progress.IsLogged(ex.ID, pid) {
			return fmt.Errorf("remove set: set %d of %s is logged: %w", setIndex+1, ex.ExerciseName, ErrStructureLocked)
		}
		s.progress.Unskip(ex.ID, pid)
		e := &s.routine[index]
		e.Sets = append(e.Sets[:setIndex], e.Sets[setIndex+1:]...)
	} else {
		members := sequencer.BlockMembers(s.routine, index)
		rounds := len(ex.Sets)
		for _, m := range members {
			e := s.routine[m]
			for r := setIndex; r < rounds; r++ {
				if s.progress.IsLogged(e.ID, sequencer.PlannedSetID(e, r)) {
					return fmt.Errorf("remove set: %s has round %d logged: %w", e.ExerciseName, r+1, ErrStructureLocked)
				}
			}
		}
		for _, m := range members {
			e := &s.routine[m]
			// Later skip marks shift down with their rounds.
			for r := setIndex; r < rounds; r++ {
				pid := sequencer.PlannedSetID(*e, r)
				if s.progress.IsSkipped(e.ID, pid) {
					s.progress.Unskip(e.ID, pid)
					if r > setIndex {
						tmpl, _ := sequencer.TemplateSet(*e, r)
						s.progress.MarkSkipped(e.ID, models.RoundSetID(tmpl.ID, r-1))
					}
				}
			}
			drop := setIndex
			if e.IsEMOM() {
				// Every EMOM round uses the first set; keep it stable.
				drop = len(e.Sets) - 1
			}
			e.Sets = append(e.Sets[:drop], e.Sets[drop+1:]...)
		}
	}

	s.markFinished(index)
	if s.hasCursor && sequencer.BlockStart(s.routine, s.cursor.ExerciseIndex) == sequencer.BlockStart(s.routine, index) {
		switch {
		case s.cursor.SetIndex > setIndex:
			s.cursor = sequencer.At(s.routine, s.cursor.ExerciseIndex, s.cursor.SetIndex-1)
		case s.cursor.SetIndex == setIndex:
			s.reseat(ctx, index)
		default:
			s.cursor = sequencer.At(s.routine, s.cursor.ExerciseIndex, s.cursor.SetIndex)
		}
	}
	return s.persist(ctx)
}

func (s *Session) checkSet(index, setIndex int) error {
	if err := s.checkIndex(index); err != nil {
		return err
	}
	if setIndex < 0 || setIndex >= len(s.routine[index].Sets) {
		return invalid("setIndex", "set %d out of range (%d sets)", setIndex, len(s.routine[index].Sets))
	}
	return nil
}

func validateTarget(t models.Target) error {
	values := []struct {
		name string
		v    *models.TargetValue
	}{
		{"reps", t.Reps},
		{"weight", t.Weight},
		{"duration", t.Duration},
		{"distance", t.Distance},
		{"rest", t.Rest},
	}
	for _, tv := range values {
		if tv.v == nil {
			continue
		}
		for _, p := range []*float64{tv.v.Exact, tv.v.Min, tv.v.Max} {
			if err := checkNumber(tv.name, p); err != nil {
				return err
			}
		}
		if tv.v.Min != nil && tv.v.Max != nil && *tv.v.Min > *tv.v.Max {
			return invalid(tv.name, "min %v exceeds max %v", *tv.v.Min, *tv.v.Max)
		}
	}
	return nil
}
