package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Manager holds the one live session of a process and rebuilds it from the
// snapshot store on demand. Transports share a Manager so they all drive the
// same workout.
type Manager struct {
	deps Deps
	cfg  Config

	mu  sync.Mutex
	cur *Session
}

// NewManager returns a Manager that builds sessions from deps and cfg.
func NewManager(deps Deps, cfg Config) *Manager {
	deps.defaults()
	cfg.defaults()
	return &Manager{deps: deps, cfg: cfg}
}

// Open resumes the session for opts.Origin or starts a new one. A live
// session for the same origin is returned as is; otherwise a stored snapshot
// for the origin is restored, and failing that a fresh session starts,
// replacing any snapshot of another origin. The bool reports whether an
// existing session was resumed. A live session for another origin yields
// ErrBusy until it ends.
func (m *Manager) Open(ctx context.Context, opts StartOptions) (*Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur := m.cur; cur != nil && live(cur.State()) {
		if cur.Origin() == opts.Origin && (!opts.Origin.IsAdHoc() || len(opts.Exercises) == 0) {
			return cur, true, nil
		}
		return nil, false, fmt.Errorf("opening %s: %w", opts.Origin, ErrBusy)
	}

	if m.resumable(ctx, opts) {
		s, err := Restore(ctx, m.deps, m.cfg, opts.Origin)
		switch {
		case err == nil:
			m.cur = s
			return s, true, nil
		case errors.Is(err, ErrNoSnapshot), errors.Is(err, ErrSnapshotInvalid):
		default:
			return nil, false, err
		}
	}

	s, err := Start(ctx, m.deps, m.cfg, opts)
	if err != nil {
		return nil, false, err
	}
	m.cur = s
	return s, false, nil
}

// resumable reports whether the stored snapshot belongs to opts. An ad-hoc
// request carrying exercises always starts over.
func (m *Manager) resumable(ctx context.Context, opts StartOptions) bool {
	if opts.Origin.IsAdHoc() && len(opts.Exercises) > 0 {
		return false
	}
	blob, err := m.deps.Store.Get(ctx, m.cfg.SnapshotKey)
	if err != nil {
		return false
	}
	origin, err := PeekOrigin(blob)
	return err == nil && origin == opts.Origin
}

// Current returns the live session, restoring it from the store when the
// process has none in memory. An ended session stays current until the next
// Open so its result can be read. ErrNoSession is returned when there is
// nothing to drive.
func (m *Manager) Current(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur != nil {
		return m.cur, nil
	}
	blob, err := m.deps.Store.Get(ctx, m.cfg.SnapshotKey)
	if errors.Is(err, ErrNoSnapshot) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	origin, err := PeekOrigin(blob)
	if err != nil {
		m.deps.Logger.Warn("discarding unreadable snapshot", "error", err)
		if derr := m.deps.Store.Delete(ctx, m.cfg.SnapshotKey); derr != nil {
			m.deps.Logger.Error("deleting snapshot", "error", derr)
		}
		return nil, ErrNoSession
	}
	s, err := Restore(ctx, m.deps, m.cfg, origin)
	if errors.Is(err, ErrSnapshotInvalid) || errors.Is(err, ErrNoSnapshot) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	m.cur = s
	return s, nil
}

// Close flushes the live session and stops its tick.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return nil
	}
	err := m.cur.Close(ctx)
	m.cur = nil
	return err
}

func live(st State) bool {
	return st == StatePlaying || st == StatePaused || st == StateLoading
}
