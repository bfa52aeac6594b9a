package render

import (
	"sync"
	"time"
)

// Timer is a cancellable one-shot timer. Scheduling replaces any pending
// callback; a callback that lost a race with Stop or Schedule never runs.
type Timer struct {
	mu  sync.Mutex
	t   *time.Timer
	gen uint64
}

// Schedule runs fn after d, cancelling whatever was pending.
func (t *Timer) Schedule(d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	gen := t.gen
	t.t = time.AfterFunc(d, func() {
		t.mu.Lock()
		if t.gen != gen {
			t.mu.Unlock()
			return
		}
		t.t = nil
		t.mu.Unlock()
		fn()
	})
}

// Stop cancels the pending callback, if any, and reports whether one was
// pending.
func (t *Timer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopLocked()
}

func (t *Timer) stopLocked() bool {
	t.gen++
	if t.t == nil {
		return false
	}
	t.t.Stop()
	t.t = nil
	return true
}

// Pending reports whether a callback is scheduled and has not started.
func (t *Timer) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.t != nil
}
