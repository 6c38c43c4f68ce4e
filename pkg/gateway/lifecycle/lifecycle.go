package lifecycle

import (
	"sync"
	"sync/atomic"
	"time"
)

// Lifecycle holds process state shared across handlers. While draining the
// gateway stops reporting ready and refuses new event streams; conversation
// requests already accepted run to completion.
type Lifecycle struct {
	draining atomic.Bool

	mu    sync.Mutex
	since time.Time
}

// SetDraining flips the draining flag and records when it was first set.
func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if draining && !l.draining.Load() {
		l.since = time.Now()
	}
	if !draining {
		l.since = time.Time{}
	}
	l.draining.Store(draining)
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}

// DrainingSince returns when draining began, or the zero time.
func (l *Lifecycle) DrainingSince() time.Time {
	if l == nil {
		return time.Time{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.since
}
