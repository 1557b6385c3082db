package session

import (
	"sync"
	"time"
)

// RecoveryTimer is a cancellable one-shot. Every Arm and Cancel bumps a
// generation number so a callback that already fired can be recognised as
// stale by its receiver.
type RecoveryTimer struct {
	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

// Arm schedules fn after delay, replacing any pending schedule. fn receives
// the generation it was armed with.
func (r *RecoveryTimer) Arm(delay time.Duration, fn func(gen uint64)) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.gen++
	gen := r.gen
	r.timer = time.AfterFunc(delay, func() {
		r.mu.Lock()
		if r.gen != gen {
			r.mu.Unlock()
			return
		}
		r.timer = nil
		r.mu.Unlock()
		fn(gen)
	})
	return gen
}

// Cancel stops a pending schedule. It is safe to call at any time.
func (r *RecoveryTimer) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.gen++
}

// Armed reports whether a schedule is pending.
func (r *RecoveryTimer) Armed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timer != nil
}

// Current reports whether gen is still the latest generation, i.e. nothing
// was armed or cancelled since it fired.
func (r *RecoveryTimer) Current(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen == gen
}
