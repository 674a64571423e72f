package models

import (
	"fmt"
	"sort"
)

// SetType classifies a planned or logged set.
type SetType string

const (
	SetStandard SetType = "standard"
	SetWarmup   SetType = "warmup"
	SetAMRAP    SetType = "amrap"
	SetCustom   SetType = "custom"
	SetEMOM     SetType = "emom"
)

// BlockType distinguishes plain supersets from EMOM rounds.
type BlockType string

const (
	BlockSuperset BlockType = "superset"
	BlockEMOM     BlockType = "emom"
)

// ExerciseStatus is runtime scheduling metadata carried on the working copy.
type ExerciseStatus string

const (
	StatusPending   ExerciseStatus = "pending"
	StatusStarted   ExerciseStatus = "started"
	StatusDoLater   ExerciseStatus = "do_later"
	StatusSkipped   ExerciseStatus = "skipped"
	StatusCompleted ExerciseStatus = "completed"
)

// Open reports whether the sequencer may still propose work from an exercise
// in this status.
func (s ExerciseStatus) Open() bool {
	return s == "" || s == StatusPending || s == StatusStarted
}

// TargetValue is either an exact number or a min/max range.
type TargetValue struct {
	Exact *float64 `json:"exact,omitempty" yaml:"exact,omitempty"`
	Min   *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max   *float64 `json:"max,omitempty" yaml:"max,omitempty"`
}

// Exact returns a TargetValue pinned to v.
func Exact(v float64) *TargetValue {
	return &TargetValue{Exact: &v}
}

// Range returns a TargetValue spanning min..max.
func Range(min, max float64) *TargetValue {
	return &TargetValue{Min: &min, Max: &max}
}

// Value resolves the representative number: exact, then min, then max.
func (t *TargetValue) Value() (float64, bool) {
	switch {
	case t == nil:
		return 0, false
	case t.Exact != nil:
		return *t.Exact, true
	case t.Min != nil:
		return *t.Min, true
	case t.Max != nil:
		return *t.Max, true
	}
	return 0, false
}

func (t *TargetValue) String() string {
	switch {
	case t == nil:
		return ""
	case t.Exact != nil:
		return trimFloat(*t.Exact)
	case t.Min != nil && t.Max != nil:
		return trimFloat(*t.Min) + "-" + trimFloat(*t.Max)
	case t.Min != nil:
		return trimFloat(*t.Min) + "+"
	case t.Max != nil:
		return "≤" + trimFloat(*t.Max)
	}
	return ""
}

func (t *TargetValue) clone() *TargetValue {
	if t == nil {
		return nil
	}
	c := &TargetValue{}
	if t.Exact != nil {
		v := *t.Exact
		c.Exact = &v
	}
	if t.Min != nil {
		v := *t.Min
		c.Min = &v
	}
	if t.Max != nil {
		v := *t.Max
		c.Max = &v
	}
	return c
}

// Target holds the prescribed values for one set. Duration and Rest are in
// seconds, Distance in metres, Weight in kg.
type Target struct {
	Reps     *TargetValue `json:"reps,omitempty" yaml:"reps,omitempty"`
	Weight   *TargetValue `json:"weight,omitempty" yaml:"weight,omitempty"`
	Duration *TargetValue `json:"duration,omitempty" yaml:"duration,omitempty"`
	Distance *TargetValue `json:"distance,omitempty" yaml:"distance,omitempty"`
	Rest     *TargetValue `json:"rest,omitempty" yaml:"rest,omitempty"`
	Tempo    string       `json:"tempo,omitempty" yaml:"tempo,omitempty"`
}

// Clone returns a deep copy.
func (t Target) Clone() Target {
	return Target{
		Reps:     t.Reps.clone(),
		Weight:   t.Weight.clone(),
		Duration: t.Duration.clone(),
		Distance: t.Distance.clone(),
		Rest:     t.Rest.clone(),
		Tempo:    t.Tempo,
	}
}

// TargetSet is one prescribed set of a plan exercise.
type TargetSet struct {
	ID         string   `json:"id" yaml:"id"`
	Type       SetType  `json:"type" yaml:"type"`
	Target     Target   `json:"target" yaml:"target"`
	Notes      string   `json:"notes,omitempty" yaml:"notes,omitempty"`
	FieldOrder []string `json:"fieldOrder,omitempty" yaml:"field_order,omitempty"`
}

// IsWarmup reports whether the set is a warm-up set.
func (s TargetSet) IsWarmup() bool {
	return s.Type == SetWarmup
}

// IsTimed reports whether the set is driven by a duration target.
func (s TargetSet) IsTimed() bool {
	_, ok := s.Target.Duration.Value()
	return ok
}

// Clone returns a deep copy.
func (s TargetSet) Clone() TargetSet {
	c := s
	c.Target = s.Target.Clone()
	if s.FieldOrder != nil {
		c.FieldOrder = append([]string(nil), s.FieldOrder...)
	}
	return c
}

// SessionExercise is one exercise instance in a session. ID is unique per
// instance; ExerciseID references the catalog.
type SessionExercise struct {
	ID                  string         `json:"id" yaml:"id"`
	ExerciseID          string         `json:"exerciseId" yaml:"exercise_id"`
	ExerciseName        string         `json:"exerciseName" yaml:"exercise_name"`
	Sets                []TargetSet    `json:"sets" yaml:"sets"`
	Notes               string         `json:"notes,omitempty" yaml:"notes,omitempty"`
	SupersetID          string         `json:"supersetId,omitempty" yaml:"superset_id,omitempty"`
	SupersetOrder       int            `json:"supersetOrder,omitempty" yaml:"superset_order,omitempty"`
	SupersetType        BlockType      `json:"supersetType,omitempty" yaml:"superset_type,omitempty"`
	EmomIntervalSeconds int            `json:"emomIntervalSeconds,omitempty" yaml:"emom_interval_seconds,omitempty"`
	Status              ExerciseStatus `json:"sessionStatus,omitempty" yaml:"-"`
}

// InBlock reports whether the exercise belongs to a superset or EMOM block.
func (e SessionExercise) InBlock() bool {
	return e.SupersetID != ""
}

// IsEMOM reports whether the exercise belongs to an EMOM block.
func (e SessionExercise) IsEMOM() bool {
	return e.InBlock() && e.SupersetType == BlockEMOM
}

// Clone returns a deep copy.
func (e SessionExercise) Clone() SessionExercise {
	c := e
	c.Sets = make([]TargetSet, len(e.Sets))
	for i, s := range e.Sets {
		c.Sets[i] = s.Clone()
	}
	return c
}

// ClearBlock removes superset membership.
func (e *SessionExercise) ClearBlock() {
	e.SupersetID = ""
	e.SupersetOrder = 0
	e.SupersetType = ""
	e.EmomIntervalSeconds = 0
}

// Plan is a routine: an ordered list of exercises.
type Plan struct {
	ID        string            `json:"id" yaml:"id"`
	Name      string            `json:"name" yaml:"name"`
	ProgramID string            `json:"programId,omitempty" yaml:"program_id,omitempty"`
	Exercises []SessionExercise `json:"exercises" yaml:"exercises"`
}

// Clone returns a deep copy that shares no memory with p.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	c := &Plan{ID: p.ID, Name: p.Name, ProgramID: p.ProgramID}
	c.Exercises = make([]SessionExercise, len(p.Exercises))
	for i, e := range p.Exercises {
		c.Exercises[i] = e.Clone()
	}
	return c
}

// Validate checks the structural requirements a plan must meet before a
// session can be built from it.
func (p *Plan) Validate() error {
	seen := make(map[string]bool, len(p.Exercises))
	for i, e := range p.Exercises {
		if e.ID == "" {
			return fmt.Errorf("exercise %d: missing id", i)
		}
		if seen[e.ID] {
			return fmt.Errorf("exercise %d: duplicate id %q", i, e.ID)
		}
		seen[e.ID] = true
		if len(e.Sets) == 0 {
			return fmt.Errorf("exercise %q: no sets", e.ID)
		}
		setIDs := make(map[string]bool, len(e.Sets))
		for j, s := range e.Sets {
			if s.ID == "" {
				return fmt.Errorf("exercise %q set %d: missing id", e.ID, j)
			}
			if setIDs[s.ID] {
				return fmt.Errorf("exercise %q: duplicate set id %q", e.ID, s.ID)
			}
			setIDs[s.ID] = true
		}
	}
	return nil
}

// OrderWarmupsFirst stably moves warm-up sets ahead of working sets.
func OrderWarmupsFirst(sets []TargetSet) {
	sort.SliceStable(sets, func(i, j int) bool {
		return sets[i].IsWarmup() && !sets[j].IsWarmup()
	})
}

// RoundSetID qualifies a planned set id with a block round index. One plan
// set template is reused across rounds, so the round makes the id unique.
func RoundSetID(setID string, round int) string {
	return fmt.Sprintf("%s-round-%d", setID, round)
}

// Template returns deep copies of exercises with runtime status cleared, the
// form in which exercises are stored back into a plan.
func Template(exercises []SessionExercise) []SessionExercise {
	out := make([]SessionExercise, len(exercises))
	for i, e := range exercises {
		out[i] = e.Clone()
		out[i].Status = ""
	}
	return out
}
