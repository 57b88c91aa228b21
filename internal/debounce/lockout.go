package debounce

import (
	"sync"
	"time"
)

// Lockout rejects acquisitions for a fixed window after each successful one.
type Lockout struct {
	mu     sync.Mutex
	window time.Duration
	locked bool
	timer  *time.Timer
	gen    uint64
}

func NewLockout(window time.Duration) *Lockout {
	return &Lockout{window: window}
}

// TryAcquire returns false while a previous acquisition's window is still open.
// On success the window starts immediately.
func (l *Lockout) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.locked {
		return false
	}
	l.locked = true
	if l.timer != nil {
		l.timer.Stop()
	}
	l.gen++
	gen := l.gen
	l.timer = time.AfterFunc(l.window, func() {
		l.release(gen)
	})
	return true
}

// release ends the window started at generation gen. A stale timer that fired
// after Stop or a later acquisition leaves the current window alone.
func (l *Lockout) release(gen uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.gen {
		return
	}
	l.locked = false
	l.timer = nil
}

// Active reports whether the lockout window is open.
func (l *Lockout) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked
}

// Stop clears the window and its timer.
func (l *Lockout) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.gen++
	l.locked = false
}
