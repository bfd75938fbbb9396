// Package debounce provides a cancellable trailing-edge timer.
//
// A Timer coalesces bursts of Schedule calls into a single invocation of its
// function, fired once the window has elapsed since the last Schedule.
package debounce

import (
	"sync"
	"time"
)

// Timer is safe for concurrent use.
type Timer struct {
	mu     sync.Mutex
	window time.Duration
	fn     func()
	timer  *time.Timer
	gen    uint64
}

// New returns a Timer that runs fn window after the last Schedule.
func New(window time.Duration, fn func()) *Timer {
	return &Timer{window: window, fn: fn}
}

// Schedule (re)starts the window. Any pending invocation is superseded.
func (t *Timer) Schedule() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.timer = time.AfterFunc(t.window, func() { t.fire(gen) })
}

func (t *Timer) fire(gen uint64) {
	t.mu.Lock()
	// A stale timer whose Stop lost the race to firing must not run.
	if gen != t.gen || t.timer == nil {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	t.mu.Unlock()
	t.fn()
}

// Cancel drops the pending invocation. It reports whether one was pending.
func (t *Timer) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer == nil {
		return false
	}
	t.timer.Stop()
	t.timer = nil
	t.gen++
	return true
}

// Flush runs the pending invocation now, on the caller's goroutine.
// It reports whether anything was pending.
func (t *Timer) Flush() bool {
	if !t.Cancel() {
		return false
	}
	t.fn()
	return true
}

// Pending reports whether an invocation is scheduled.
func (t *Timer) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil
}
