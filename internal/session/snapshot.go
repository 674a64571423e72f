package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/claude/setplayer/internal/models"
	"github.com/claude/setplayer/internal/sequencer"
	"github.com/claude/setplayer/internal/timer"
)

// SnapshotVersion is bumped whenever the snapshot layout changes. Blobs of
// any other version are discarded.
const SnapshotVersion = 3

// SetRef points at one logged set.
type SetRef struct {
	ExerciseID   string `json:"exerciseId"`
	PlannedSetID string `json:"plannedSetId"`
}

// Snapshot is the persisted form of a running session.
type Snapshot struct {
	Version     int           `json:"version"`
	SessionID   string        `json:"sessionId"`
	PlanID      models.Origin `json:"planId"`
	PlanName    string        `json:"planName"`
	ProgramID   string        `json:"programId,omitempty"`
	IterationID string        `json:"iterationId,omitempty"`

	Routine  []models.SessionExercise `json:"workingCopyRoutine"`
	Original *models.Plan             `json:"originalPlanSnapshot"`
	Progress *models.Progress         `json:"logSoFar"`
	// Cursor is nil once no pending work remains.
	Cursor *sequencer.Cursor `json:"cursor"`

	SessionClockBaseSeconds float64             `json:"sessionClockBaseSeconds"`
	StartedAt               time.Time           `json:"startedAt"`
	RestTimer               timer.RestState     `json:"restTimer"`
	RestFor                 *SetRef             `json:"restFor,omitempty"`
	TimedSetTimer           timer.TimedSetState `json:"timedSetTimer"`
	EmomTimer               timer.EmomState     `json:"emomTimer"`
	WorkoutDateEstimate     time.Time           `json:"workoutDateEstimate"`

	// Paused is false for a best-effort capture taken while playing; the gap
	// until restore then counts as session time.
	Paused     bool      `json:"paused"`
	CapturedAt time.Time `json:"capturedAt"`
}

// EncodeSnapshot serialises a snapshot, stamping the current version.
func EncodeSnapshot(snap *Snapshot) ([]byte, error) {
	snap.Version = SnapshotVersion
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses a blob and checks that it belongs to origin. Any
// mismatch or damage yields ErrSnapshotInvalid; nothing is partially applied.
func DecodeSnapshot(data []byte, origin models.Origin) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotInvalid, err)
	}
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrSnapshotInvalid, snap.Version, SnapshotVersion)
	}
	if snap.PlanID != origin {
		return nil, fmt.Errorf("%w: snapshot is for %s, resuming %s", ErrSnapshotInvalid, snap.PlanID, origin)
	}
	if snap.Progress == nil || snap.Original == nil {
		return nil, fmt.Errorf("%w: missing routine or log", ErrSnapshotInvalid)
	}
	if err := sequencer.ValidateBlocks(snap.Routine); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotInvalid, err)
	}
	if c := snap.Cursor; c != nil {
		if c.ExerciseIndex < 0 || c.ExerciseIndex >= len(snap.Routine) {
			return nil, fmt.Errorf("%w: cursor out of range", ErrSnapshotInvalid)
		}
	}
	return &snap, nil
}

// PeekOrigin reads only the origin of a blob so a caller can pick the route
// to resume into.
func PeekOrigin(data []byte) (models.Origin, error) {
	var head struct {
		PlanID models.Origin `json:"planId"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return models.Origin{}, fmt.Errorf("%w: %v", ErrSnapshotInvalid, err)
	}
	return head.PlanID, nil
}
