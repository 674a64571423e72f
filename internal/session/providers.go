package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/claude/setplayer/internal/models"
	"github.com/claude/setplayer/internal/timer"
)

// PlanProvider loads and stores plans. GetPlan wraps ErrPlanNotFound for
// unknown ids.
type PlanProvider interface {
	GetPlan(ctx context.Context, id string) (*models.Plan, error)
	CreatePlan(ctx context.Context, plan *models.Plan) error
	ReplaceExercises(ctx context.Context, planID string, exercises []models.SessionExercise) error
}

// HistoryProvider serves prefill suggestions and stores finished logs.
// Lookups return nil without error when there is no history.
type HistoryProvider interface {
	LastPerformance(ctx context.Context, exerciseID string) (*models.LoggedExercise, error)
	PersonalBests(ctx context.Context, exerciseID string) (*models.PersonalBests, error)
	AppendLog(ctx context.Context, log *models.WorkoutLog) error
}

// ProgramProvider is consulted at finish time for program-linked sessions.
type ProgramProvider interface {
	GetProgram(ctx context.Context, id string) (*models.Program, error)
	CheckAndHandleCompletion(ctx context.Context, programID string, log *models.WorkoutLog) (bool, error)
}

// SnapshotStore holds named blobs. Get wraps ErrNoSnapshot when key is unset.
type SnapshotStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, blob []byte) error
	Delete(ctx context.Context, key string) error
}

// EventKind classifies listener notifications.
type EventKind string

const (
	EventCue             EventKind = "cue"
	EventRestFinished    EventKind = "rest_finished"
	EventRoundCompleted  EventKind = "round_completed"
	EventWorkoutComplete EventKind = "workout_complete"
	EventEnded           EventKind = "ended"
)

// Event is sent to the Listener. Listeners run with the session locked and
// must not call back into it.
type Event struct {
	Kind  EventKind
	Cue   timer.Cue
	Round int
}

// Deps bundles the collaborators of a session. Store is required; every other
// provider may be nil.
type Deps struct {
	Plans    PlanProvider
	History  HistoryProvider
	Programs ProgramProvider
	Store    SnapshotStore
	Prompter Prompter

	Clock     timer.Clock
	Scheduler timer.Scheduler
	Logger    *slog.Logger
	Listener  func(Event)
	NewID     func() string
}

func (d *Deps) defaults() {
	if d.Clock == nil {
		d.Clock = timer.System{}
	}
	if d.Scheduler == nil {
		d.Scheduler = timer.Ticker{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
}

// Config holds the tunables of the engine.
type Config struct {
	SnapshotKey string
	// DefaultRest applies when a set carries no rest target.
	DefaultRest time.Duration
	// CountdownCue is the remaining time at which timed sets start cueing.
	CountdownCue time.Duration
	TickInterval time.Duration
}

func (c *Config) defaults() {
	if c.SnapshotKey == "" {
		c.SnapshotKey = "active-session"
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.CountdownCue < 0 {
		c.CountdownCue = 0
	}
}
