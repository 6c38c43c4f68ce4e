package conversation

import (
	"sync"
	"time"
)

// EventType names a session event.
type EventType string

const (
	EventStarted     EventType = "conversation_started"
	EventAttempt     EventType = "format_attempt"
	EventReply       EventType = "reply"
	EventInterrupted EventType = "interrupted"
	EventRateLimited EventType = "rate_limited"
	EventError       EventType = "error"
)

// Event is published to subscribers of a session.
type Event struct {
	Type       EventType `json:"type"`
	SessionID  string    `json:"session_id"`
	Status     string    `json:"status,omitempty"`
	Message    string    `json:"message,omitempty"`
	MIMEType   string    `json:"mime_type,omitempty"`
	Accepted   *bool     `json:"accepted,omitempty"`
	RetryAfter int       `json:"retry_after,omitempty"`
	At         time.Time `json:"at"`
}

const subscriberBuffer = 32

// Hub fans session events out to subscribers. Slow subscribers drop events
// rather than block publishers.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	closed bool
}

type subscriber struct {
	ch      chan Event
	dropped int
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*subscriber]struct{})}
}

// Subscribe registers for events of sessionID. The returned cancel closes
// the channel and is safe to call more than once.
func (h *Hub) Subscribe(sessionID string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	set := h.subs[sessionID]
	if set == nil {
		set = make(map[*subscriber]struct{})
		h.subs[sessionID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[sessionID]; ok {
				if _, ok := set[sub]; ok {
					delete(set, sub)
					close(sub.ch)
				}
				if len(set) == 0 {
					delete(h.subs, sessionID)
				}
			}
		})
	}
}

// Publish delivers ev to every subscriber of ev.SessionID.
func (h *Hub) Publish(ev Event) {
	if h == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[ev.SessionID] {
		select {
		case sub.ch <- ev:
		default:
			sub.dropped++
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}

// Close closes every subscription; later subscriptions are closed immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, set := range h.subs {
		for sub := range set {
			close(sub.ch)
		}
		delete(h.subs, id)
	}
}
