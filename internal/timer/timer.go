// Package timer provides a cancellable, self-rescheduling delay callback used
// to drive idle eviction.
package timer

import (
	"errors"
	"sync"
	"time"
)

// ErrInvalidInterval is returned by Start when the interval is not positive.
var ErrInvalidInterval = errors.New("interval must be greater than zero")

// Timer runs a callback after an interval and then re-arms itself with the
// same interval until Cancel or another Start is called. The zero value is
// ready to use.
type Timer struct {
	mu      sync.Mutex
	pending *time.Timer
	gen     uint64
}

// New returns an idle timer.
func New() *Timer {
	return &Timer{}
}

// Start arms the timer. Any delay installed by a previous Start is canceled
// first, so at most one fire is ever pending.
func (t *Timer) Start(interval time.Duration, fn func()) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.gen++
	t.armLocked(t.gen, interval, fn)
	return nil
}

// Cancel prevents any future fire. It is safe to call repeatedly, with
// nothing pending, or from inside the callback.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	t.stopLocked()
}

func (t *Timer) armLocked(gen uint64, interval time.Duration, fn func()) {
	t.pending = time.AfterFunc(interval, func() {
		t.fire(gen, interval, fn)
	})
}

func (t *Timer) stopLocked() {
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
}

// fire runs fn unless the arming generation has been superseded, then
// re-arms if nothing canceled or restarted the timer while fn ran.
func (t *Timer) fire(gen uint64, interval time.Duration, fn func()) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.pending = nil
	t.mu.Unlock()

	fn()

	t.mu.Lock()
	defer t.mu.Unlock()
	if gen == t.gen {
		t.armLocked(gen, interval, fn)
	}
}
