// Package streams tracks open session event streams so shutdown can warn,
// cancel and wait for them.
package streams

import (
	"context"
	"sync"
)

// Handle lets the tracker reach one open stream.
type Handle struct {
	SessionID string
	Cancel    func()
	Notice    func(code, message string) error
}

type Tracker struct {
	mu      sync.Mutex
	streams map[string]*trackedStream
	wg      sync.WaitGroup
}

type trackedStream struct {
	handle Handle
	once   sync.Once
}

func NewTracker() *Tracker {
	return &Tracker{streams: make(map[string]*trackedStream)}
}

// Register adds a stream under streamID. Registering an id twice releases
// the earlier entry.
func (t *Tracker) Register(streamID string, h Handle) (unregister func()) {
	if t == nil {
		return func() {}
	}

	entry := &trackedStream{handle: h}

	t.mu.Lock()
	if t.streams == nil {
		t.streams = make(map[string]*trackedStream)
	}
	old := t.streams[streamID]
	t.streams[streamID] = entry
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		t.release(streamID, old)
	}
	return func() { t.release(streamID, entry) }
}

func (t *Tracker) release(streamID string, entry *trackedStream) {
	entry.once.Do(func() {
		t.mu.Lock()
		if t.streams[streamID] == entry {
			delete(t.streams, streamID)
		}
		t.mu.Unlock()
		t.wg.Done()
	})
}

func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.streams)
}

// CountSession returns the number of streams open for one session.
func (t *Tracker) CountSession(sessionID string) int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, entry := range t.streams {
		if entry.handle.SessionID == sessionID {
			n++
		}
	}
	return n
}

// NoticeAll sends a best-effort notice to every stream and returns how many
// notices were attempted.
func (t *Tracker) NoticeAll(code, message string) (sent int) {
	if t == nil {
		return 0
	}
	var notices []func(code, message string) error
	t.mu.Lock()
	for _, entry := range t.streams {
		if entry.handle.Notice != nil {
			notices = append(notices, entry.handle.Notice)
		}
	}
	t.mu.Unlock()

	for _, notice := range notices {
		_ = notice(code, message)
		sent++
	}
	return sent
}

func (t *Tracker) CancelAll() (canceled int) {
	if t == nil {
		return 0
	}
	var cancels []func()
	t.mu.Lock()
	for _, entry := range t.streams {
		if entry.handle.Cancel != nil {
			cancels = append(cancels, entry.handle.Cancel)
		}
	}
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
		canceled++
	}
	return canceled
}

// Wait blocks until every registered stream is released or ctx ends.
func (t *Tracker) Wait(ctx context.Context) bool {
	if t == nil {
		return true
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		t.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
