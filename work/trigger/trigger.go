package trigger

import (
	"sync"
	"time"
)

// Deferred is a cancellable delay before performing an action: the shared
// shape behind the search debounce and the hover popover delay. At most one
// action is pending per instance; scheduling a new one supersedes the
// pending one, so the last scheduled action wins.
type Deferred struct {
	mu    sync.Mutex
	timer *time.Timer
	seq   uint64
}

// New returns an empty deferred trigger with nothing pending.
func New() *Deferred {
	return &Deferred{}
}

// Schedule arranges for fn to run after delay, cancelling any pending action
// first. The sequence check closes the race between an expiring timer and a
// concurrent reschedule: a superseded action never runs even if its timer
// already fired.
func (d *Deferred) Schedule(delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq

	d.timer = time.AfterFunc(delay, func() {
		d.mu.Lock()
		current := d.seq == seq
		if current {
			d.timer = nil
		}
		d.mu.Unlock()

		if current {
			fn()
		}
	})
}

// Cancel drops any pending action without running it.
func (d *Deferred) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
}
