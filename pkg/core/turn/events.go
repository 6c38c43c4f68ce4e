package turn

import "sync"

// EventKind identifies an orchestrator notification.
type EventKind string

const (
	EventState     EventKind = "state"
	EventTurn      EventKind = "turn"
	EventBanner    EventKind = "banner"
	EventCountdown EventKind = "countdown"
	EventRecording EventKind = "recording"
	EventCleared   EventKind = "cleared"
)

// Event is delivered to the OnEvent handler. Only the fields relevant to
// Kind are set: State for state changes, Turn for appended turns, Banner
// for banner updates (empty clears it), Seconds for countdown and recording
// ticks.
type Event struct {
	Kind    EventKind
	State   State
	Turn    Turn
	Banner  string
	Seconds int
}

// emitter delivers events in order from a single goroutine so handlers may
// call back into the orchestrator.
type emitter struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	fn     func(Event)
	closed bool
	done   chan struct{}
}

func newEmitter() *emitter {
	e := &emitter{done: make(chan struct{})}
	e.cond = sync.NewCond(&e.mu)
	go e.run()
	return e
}

func (e *emitter) setHandler(fn func(Event)) {
	e.mu.Lock()
	e.fn = fn
	e.mu.Unlock()
}

func (e *emitter) push(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.queue = append(e.queue, ev)
	e.cond.Signal()
}

func (e *emitter) run() {
	defer close(e.done)
	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.closed {
			e.cond.Wait()
		}
		if len(e.queue) == 0 {
			e.mu.Unlock()
			return
		}
		batch := e.queue
		e.queue = nil
		fn := e.fn
		e.mu.Unlock()

		if fn == nil {
			continue
		}
		for _, ev := range batch {
			fn(ev)
		}
	}
}

// close drains pending events and stops the delivery goroutine. It must not
// be called from a handler.
func (e *emitter) close() {
	e.mu.Lock()
	e.closed = true
	e.cond.Broadcast()
	e.mu.Unlock()
	<-e.done
}
