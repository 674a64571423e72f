package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/claude/setplayer/internal/models"
	"github.com/claude/setplayer/internal/timer"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type memStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[key]
	if !ok {
		return nil, fmt.Errorf("reading %s: %w", key, ErrNoSnapshot)
	}
	return append([]byte(nil), b...), nil
}

func (m *memStore) Set(_ context.Context, key string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blobs == nil {
		m.blobs = make(map[string][]byte)
	}
	m.blobs[key] = append([]byte(nil), blob...)
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

func (m *memStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[key]
	return ok
}

type memPlans struct {
	plans    map[string]*models.Plan
	created  []*models.Plan
	replaced map[string][]models.SessionExercise
}

func (m *memPlans) GetPlan(_ context.Context, id string) (*models.Plan, error) {
	p, ok := m.plans[id]
	if !ok {
		return nil, fmt.Errorf("plan %s: %w", id, ErrPlanNotFound)
	}
	return p.Clone(), nil
}

func (m *memPlans) CreatePlan(_ context.Context, plan *models.Plan) error {
	m.created = append(m.created, plan.Clone())
	return nil
}

func (m *memPlans) ReplaceExercises(_ context.Context, planID string, exercises []models.SessionExercise) error {
	if m.replaced == nil {
		m.replaced = make(map[string][]models.SessionExercise)
	}
	m.replaced[planID] = exercises
	return nil
}

type memHistory struct {
	logs []*models.WorkoutLog
	last map[string]*models.LoggedExercise
}

func (m *memHistory) LastPerformance(_ context.Context, exerciseID string) (*models.LoggedExercise, error) {
	return m.last[exerciseID], nil
}

func (m *memHistory) PersonalBests(context.Context, string) (*models.PersonalBests, error) {
	return nil, nil
}

func (m *memHistory) AppendLog(_ context.Context, log *models.WorkoutLog) error {
	m.logs = append(m.logs, log)
	return nil
}

type memPrograms struct {
	complete bool
	checked  []string
}

func (m *memPrograms) GetProgram(_ context.Context, id string) (*models.Program, error) {
	return &models.Program{ID: id}, nil
}

func (m *memPrograms) CheckAndHandleCompletion(_ context.Context, programID string, _ *models.WorkoutLog) (bool, error) {
	m.checked = append(m.checked, programID)
	return m.complete, nil
}

// harness wires a session to in-memory collaborators, a manual clock and a
// manual scheduler.
type harness struct {
	clock    *timer.Manual
	sched    *timer.ManualScheduler
	store    *memStore
	plans    *memPlans
	history  *memHistory
	programs *memPrograms
	events   []Event
	cfg      Config
	ids      int
}

func newHarness(plans ...*models.Plan) *harness {
	h := &harness{
		clock:    timer.NewManual(t0),
		sched:    &timer.ManualScheduler{},
		store:    &memStore{},
		plans:    &memPlans{plans: make(map[string]*models.Plan)},
		history:  &memHistory{},
		programs: &memPrograms{},
		cfg:      Config{CountdownCue: 3 * time.Second},
	}
	for _, p := range plans {
		h.plans.plans[p.ID] = p
	}
	return h
}

func (h *harness) deps() Deps {
	return Deps{
		Plans:     h.plans,
		History:   h.history,
		Programs:  h.programs,
		Store:     h.store,
		Clock:     h.clock,
		Scheduler: h.sched,
		Listener:  func(e Event) { h.events = append(h.events, e) },
		NewID: func() string {
			h.ids++
			return fmt.Sprintf("gen-%d", h.ids)
		},
	}
}

func (h *harness) start(t *testing.T, planID string) *Session {
	t.Helper()
	s, err := Start(context.Background(), h.deps(), h.cfg, StartOptions{Origin: models.FromPlan(planID)})
	require.NoError(t, err)
	return s
}

// tick advances the clock by d and fires the scheduler once.
func (h *harness) tick(d time.Duration) {
	h.clock.Advance(d)
	h.sched.Fire()
}

func (h *harness) count(kind EventKind) int {
	n := 0
	for _, e := range h.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// exercise builds a standard exercise with n sets of 10 reps. Set ids are
// "<id>-s<i>".
func exercise(id string, n int) models.SessionExercise {
	ex := models.SessionExercise{ID: id, ExerciseID: "cat-" + id, ExerciseName: "Exercise " + id}
	for i := 0; i < n; i++ {
		ex.Sets = append(ex.Sets, models.TargetSet{
			ID:     fmt.Sprintf("%s-s%d", id, i),
			Type:   models.SetStandard,
			Target: models.Target{Reps: models.Exact(10)},
		})
	}
	return ex
}

// block groups exercises into one block in the order given.
func block(id string, kind models.BlockType, interval int, members ...models.SessionExercise) []models.SessionExercise {
	for i := range members {
		members[i].SupersetID = id
		members[i].SupersetOrder = i
		members[i].SupersetType = kind
		members[i].EmomIntervalSeconds = interval
	}
	return members
}

func plan(id string, exercises ...models.SessionExercise) *models.Plan {
	return &models.Plan{ID: id, Name: "Plan " + id, Exercises: exercises}
}

func concat(groups ...[]models.SessionExercise) []models.SessionExercise {
	var out []models.SessionExercise
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func reps(n float64) SetInput {
	return SetInput{Reps: models.Float(n)}
}

func decide(kind PromptKind, role string) context.Context {
	return WithPrompter(context.Background(), Decisions{kind: {Role: role}})
}
