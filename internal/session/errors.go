package session

import (
	"errors"
	"fmt"
)

var (
	// ErrPlanNotFound is returned by plan providers for an unknown plan id.
	ErrPlanNotFound = errors.New("plan not found")
	// ErrMalformedPlan marks a plan that cannot be played.
	ErrMalformedPlan = errors.New("malformed plan")
	// ErrStructureLocked rejects a structural edit touching logged sets.
	ErrStructureLocked = errors.New("structure locked by logged sets")
	// ErrInvalidState rejects an operation not legal in the current state.
	ErrInvalidState = errors.New("invalid session state")
	// ErrCancelled is returned when the operator declines a prompt.
	ErrCancelled = errors.New("cancelled by operator")
	// ErrSnapshotInvalid marks a stored snapshot that was discarded.
	ErrSnapshotInvalid = errors.New("snapshot invalid")
	// ErrNoSnapshot is returned by snapshot stores when nothing is stored.
	ErrNoSnapshot = errors.New("no snapshot stored")
	// ErrNoSession is returned when no session is live or stored.
	ErrNoSession = errors.New("no active session")
	// ErrBusy rejects opening a session while another is live.
	ErrBusy = errors.New("another session is active")
	// ErrCorrupted marks unrecoverable damage to the working copy.
	ErrCorrupted = errors.New("session corrupted")
)

// ValidationError rejects one operation and leaves the session unchanged.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// DecisionRequiredError is returned when an operation needs an operator
// choice the current prompter cannot supply. Retrying with an answer for
// Prompt.Kind completes the operation.
type DecisionRequiredError struct {
	Prompt Prompt
}

func (e *DecisionRequiredError) Error() string {
	return fmt.Sprintf("decision required: %s", e.Prompt.Kind)
}
