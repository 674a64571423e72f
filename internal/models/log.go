package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// LoggedSet is what was actually performed for one planned set.
type LoggedSet struct {
	ID                 string    `json:"id"`
	PlannedSetID       string    `json:"plannedSetId"`
	ExerciseInstanceID string    `json:"exerciseId"`
	Type               SetType   `json:"type"`
	Reps               *float64  `json:"repsLogged,omitempty"`
	Weight             *float64  `json:"weightLogged,omitempty"`
	Duration           *float64  `json:"durationLogged,omitempty"`
	Distance           *float64  `json:"distanceLogged,omitempty"`
	Rest               *float64  `json:"restLogged,omitempty"`
	RPE                *float64  `json:"rpe,omitempty"`
	Notes              string    `json:"notes,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
	Target             Target    `json:"target"`
}

// Clone returns a deep copy.
func (s LoggedSet) Clone() LoggedSet {
	c := s
	c.Reps = clonePtr(s.Reps)
	c.Weight = clonePtr(s.Weight)
	c.Duration = clonePtr(s.Duration)
	c.Distance = clonePtr(s.Distance)
	c.Rest = clonePtr(s.Rest)
	c.RPE = clonePtr(s.RPE)
	c.Target = s.Target.Clone()
	return c
}

// LoggedExercise groups logged sets under one session exercise instance.
type LoggedExercise struct {
	ID            string      `json:"id"`
	ExerciseID    string      `json:"exerciseId"`
	ExerciseName  string      `json:"exerciseName"`
	SupersetID    string      `json:"supersetId,omitempty"`
	SupersetOrder int         `json:"supersetOrder,omitempty"`
	SupersetType  BlockType   `json:"supersetType,omitempty"`
	Sets          []LoggedSet `json:"sets"`
}

// Clone returns a deep copy.
func (e LoggedExercise) Clone() LoggedExercise {
	c := e
	c.Sets = make([]LoggedSet, len(e.Sets))
	for i, s := range e.Sets {
		c.Sets[i] = s.Clone()
	}
	return c
}

// Progress is the log-so-far of a running session.
type Progress struct {
	Exercises []LoggedExercise `json:"exercises"`
	// Skipped maps an exercise instance id to the qualified planned set ids
	// the operator skipped without logging.
	Skipped map[string][]string `json:"skipped,omitempty"`
}

// Exercise returns the logged exercise for an instance, or nil.
func (p *Progress) Exercise(instanceID string) *LoggedExercise {
	for i := range p.Exercises {
		if p.Exercises[i].ID == instanceID {
			return &p.Exercises[i]
		}
	}
	return nil
}

// Set returns the logged set for a qualified planned set id, or nil.
func (p *Progress) Set(instanceID, plannedSetID string) *LoggedSet {
	le := p.Exercise(instanceID)
	if le == nil {
		return nil
	}
	for i := range le.Sets {
		if le.Sets[i].PlannedSetID == plannedSetID {
			return &le.Sets[i]
		}
	}
	return nil
}

// IsLogged reports whether a qualified planned set id has a logged set.
func (p *Progress) IsLogged(instanceID, plannedSetID string) bool {
	return p.Set(instanceID, plannedSetID) != nil
}

// IsSkipped reports whether a qualified planned set id was skipped.
func (p *Progress) IsSkipped(instanceID, plannedSetID string) bool {
	for _, id := range p.Skipped[instanceID] {
		if id == plannedSetID {
			return true
		}
	}
	return false
}

// IsDone reports whether a qualified planned set id needs no further work.
func (p *Progress) IsDone(instanceID, plannedSetID string) bool {
	return p.IsLogged(instanceID, plannedSetID) || p.IsSkipped(instanceID, plannedSetID)
}

// LoggedCount returns the number of logged sets for an instance.
func (p *Progress) LoggedCount(instanceID string) int {
	if le := p.Exercise(instanceID); le != nil {
		return len(le.Sets)
	}
	return 0
}

// TotalSets returns the number of logged sets across all exercises.
func (p *Progress) TotalSets() int {
	n := 0
	for _, le := range p.Exercises {
		n += len(le.Sets)
	}
	return n
}

// Record appends a logged set, replacing any set with the same planned id.
// The owning LoggedExercise is created from ex on first use.
func (p *Progress) Record(ex SessionExercise, set LoggedSet) {
	le := p.Exercise(ex.ID)
	if le == nil {
		p.Exercises = append(p.Exercises, LoggedExercise{
			ID:            ex.ID,
			ExerciseID:    ex.ExerciseID,
			ExerciseName:  ex.ExerciseName,
			SupersetID:    ex.SupersetID,
			SupersetOrder: ex.SupersetOrder,
			SupersetType:  ex.SupersetType,
		})
		le = &p.Exercises[len(p.Exercises)-1]
	}
	for i := range le.Sets {
		if le.Sets[i].PlannedSetID == set.PlannedSetID {
			le.Sets[i] = set
			return
		}
	}
	le.Sets = append(le.Sets, set)
	p.Unskip(ex.ID, set.PlannedSetID)
}

// RemoveSet deletes the logged set with the given qualified id. Empty logged
// exercises are dropped; skip marks are kept.
func (p *Progress) RemoveSet(instanceID, plannedSetID string) bool {
	le := p.Exercise(instanceID)
	if le == nil {
		return false
	}
	for i := range le.Sets {
		if le.Sets[i].PlannedSetID == plannedSetID {
			le.Sets = append(le.Sets[:i], le.Sets[i+1:]...)
			if len(le.Sets) == 0 {
				p.dropExercise(instanceID)
			}
			return true
		}
	}
	return false
}

// RemoveExercise deletes the logged exercise and any skip marks for it.
func (p *Progress) RemoveExercise(instanceID string) {
	p.dropExercise(instanceID)
	delete(p.Skipped, instanceID)
}

func (p *Progress) dropExercise(instanceID string) {
	for i := range p.Exercises {
		if p.Exercises[i].ID == instanceID {
			p.Exercises = append(p.Exercises[:i], p.Exercises[i+1:]...)
			return
		}
	}
}

// MarkSkipped records a qualified planned set id as skipped.
func (p *Progress) MarkSkipped(instanceID, plannedSetID string) {
	if p.IsSkipped(instanceID, plannedSetID) {
		return
	}
	if p.Skipped == nil {
		p.Skipped = make(map[string][]string)
	}
	p.Skipped[instanceID] = append(p.Skipped[instanceID], plannedSetID)
}

// Unskip clears a skip mark.
func (p *Progress) Unskip(instanceID, plannedSetID string) {
	ids := p.Skipped[instanceID]
	for i, id := range ids {
		if id == plannedSetID {
			p.Skipped[instanceID] = append(ids[:i], ids[i+1:]...)
			return
		}
	}
}

// Clone returns a deep copy.
func (p *Progress) Clone() *Progress {
	c := &Progress{Exercises: make([]LoggedExercise, len(p.Exercises))}
	for i, e := range p.Exercises {
		c.Exercises[i] = e.Clone()
	}
	if len(p.Skipped) > 0 {
		c.Skipped = make(map[string][]string, len(p.Skipped))
		for k, v := range p.Skipped {
			c.Skipped[k] = append([]string(nil), v...)
		}
	}
	return c
}

// WorkoutLog is the final record emitted by the completion reconciler.
// Nothing downstream of the reconciler mutates it.
type WorkoutLog struct {
	ID          string           `json:"id"`
	PlanID      string           `json:"planId,omitempty"`
	PlanName    string           `json:"planName"`
	ProgramID   string           `json:"programId,omitempty"`
	IterationID string           `json:"iterationId,omitempty"`
	StartTime   time.Time        `json:"startTime"`
	EndTime     time.Time        `json:"endTime"`
	Duration    time.Duration    `json:"durationNs"`
	Exercises   []LoggedExercise `json:"exercises"`
}

// SetCount returns the number of logged sets in the record.
func (l *WorkoutLog) SetCount() int {
	n := 0
	for _, e := range l.Exercises {
		n += len(e.Sets)
	}
	return n
}

// Clone returns a deep copy.
func (l *WorkoutLog) Clone() *WorkoutLog {
	c := *l
	c.Exercises = make([]LoggedExercise, len(l.Exercises))
	for i, e := range l.Exercises {
		c.Exercises[i] = e.Clone()
	}
	return &c
}

// Origin says where a session's routine came from. The zero value is an
// ad-hoc session with no backing plan.
type Origin struct {
	planID string
}

// FromPlan returns the origin of a session built from a stored plan.
func FromPlan(planID string) Origin {
	return Origin{planID: planID}
}

// AdHoc returns the origin of a session with no backing plan.
func AdHoc() Origin {
	return Origin{}
}

// PlanID returns the backing plan id and whether there is one.
func (o Origin) PlanID() (string, bool) {
	return o.planID, o.planID != ""
}

// IsAdHoc reports whether the session has no backing plan.
func (o Origin) IsAdHoc() bool {
	return o.planID == ""
}

func (o Origin) String() string {
	if o.IsAdHoc() {
		return "ad-hoc"
	}
	return "plan:" + o.planID
}

// MarshalJSON encodes the origin as the plan id or null.
func (o Origin) MarshalJSON() ([]byte, error) {
	if o.IsAdHoc() {
		return []byte("null"), nil
	}
	return json.Marshal(o.planID)
}

// UnmarshalJSON decodes a plan id or null.
func (o *Origin) UnmarshalJSON(data []byte) error {
	var id *string
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	o.planID = ""
	if id != nil {
		o.planID = *id
	}
	return nil
}

// Program is a training program that schedules plans over iterations.
type Program struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	TotalIterations int    `json:"totalIterations"`
	Completed       bool   `json:"completed"`
}

// PersonalBests summarises an exercise's best logged values.
type PersonalBests struct {
	ExerciseID  string   `json:"exerciseId"`
	MaxWeight   *float64 `json:"maxWeight,omitempty"`
	MaxReps     *float64 `json:"maxReps,omitempty"`
	MaxDuration *float64 `json:"maxDuration,omitempty"`
	MaxDistance *float64 `json:"maxDistance,omitempty"`
	// BestE1RM is the best Epley estimate (weight × (1 + reps/30)).
	BestE1RM *float64 `json:"bestE1rm,omitempty"`
}

// Suggestion is the prefill shown for an exercise: its last performance and
// personal bests.
type Suggestion struct {
	LastPerformance *LoggedExercise `json:"lastPerformance,omitempty"`
	PersonalBests   *PersonalBests  `json:"personalBests,omitempty"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

func clonePtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
