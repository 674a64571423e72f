package timer

import (
	"sync"
	"sync/atomic"
	"time"
)

// Handle is the cancellation token of a periodic callback. Cancel flips the
// token immediately; callbacks check Cancelled after acquiring whatever lock
// guards the state they touch, so a tick already in flight when Cancel runs
// becomes a no-op.
type Handle struct {
	cancelled atomic.Bool
	stop      chan struct{}
	done      chan struct{}
	once      sync.Once
}

func newHandle() *Handle {
	return &Handle{stop: make(chan struct{}), done: make(chan struct{})}
}

// Cancel invalidates the handle. It never blocks, so it is safe to call while
// holding a lock the callback wants.
func (h *Handle) Cancel() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.cancelled.Store(true)
		close(h.stop)
	})
}

// Cancelled reports whether Cancel has been called.
func (h *Handle) Cancelled() bool {
	return h == nil || h.cancelled.Load()
}

// Wait blocks until the callback loop has exited. Must not be called while
// holding a lock the callback needs.
func (h *Handle) Wait() {
	if h == nil {
		return
	}
	<-h.done
}

// Scheduler runs periodic callbacks.
type Scheduler interface {
	Every(interval time.Duration, fn func(h *Handle)) *Handle
}

// Ticker is a Scheduler backed by time.Ticker, one goroutine per handle.
type Ticker struct{}

// Every calls fn every interval until the returned handle is cancelled.
func (Ticker) Every(interval time.Duration, fn func(h *Handle)) *Handle {
	h := newHandle()
	go func() {
		defer close(h.done)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-h.stop:
				return
			case <-t.C:
				if h.Cancelled() {
					return
				}
				fn(h)
			}
		}
	}()
	return h
}

// ManualScheduler records callbacks and runs them only when Fire is called.
type ManualScheduler struct {
	mu      sync.Mutex
	entries []manualEntry
}

type manualEntry struct {
	h  *Handle
	fn func(*Handle)
}

// Every registers fn; it never runs on its own.
func (m *ManualScheduler) Every(_ time.Duration, fn func(h *Handle)) *Handle {
	h := newHandle()
	close(h.done)
	m.mu.Lock()
	m.entries = append(m.entries, manualEntry{h: h, fn: fn})
	m.mu.Unlock()
	return h
}

// Fire invokes every live callback once and returns how many ran.
func (m *ManualScheduler) Fire() int {
	m.mu.Lock()
	live := m.entries[:0]
	for _, e := range m.entries {
		if !e.h.Cancelled() {
			live = append(live, e)
		}
	}
	m.entries = live
	entries := append([]manualEntry(nil), live...)
	m.mu.Unlock()

	for _, e := range entries {
		e.fn(e.h)
	}
	return len(entries)
}

// Active returns the number of live handles.
func (m *ManualScheduler) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if !e.h.Cancelled() {
			n++
		}
	}
	return n
}
