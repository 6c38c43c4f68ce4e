package conversation

import (
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vango-go/vai-voice/pkg/core"
	"github.com/vango-go/vai-voice/pkg/core/backoff"
)

// DefaultSessionID is used when a request carries no session key.
const DefaultSessionID = "default"

const (
	defaultMaxSessions = 1_000
	defaultSessionTTL  = 30 * time.Minute
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithTracer sets the OpenTelemetry tracer used for session spans.
func WithTracer(t trace.Tracer) Option {
	return func(m *Manager) {
		if t != nil {
			m.tracer = t
		}
	}
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.observer = o
		}
	}
}

// WithClock overrides the clock used for backoff windows and idle tracking.
func WithClock(c backoff.Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithSessionLimits bounds the in-memory session map.
func WithSessionLimits(maxSessions int, ttl time.Duration) Option {
	return func(m *Manager) {
		if maxSessions > 0 {
			m.maxSessions = maxSessions
		}
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// Manager owns the sessions of one gateway process, keyed by session id.
type Manager struct {
	model    core.Model
	cfg      Config
	logger   *slog.Logger
	tracer   trace.Tracer
	observer Observer
	clock    backoff.Clock
	hub      *Hub

	maxSessions int
	ttl         time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a manager whose sessions talk to model.
func NewManager(model core.Model, cfg Config, opts ...Option) *Manager {
	m := &Manager{
		model:       model,
		cfg:         cfg.withDefaults(),
		logger:      slog.Default(),
		tracer:      noop.NewTracerProvider().Tracer("conversation"),
		observer:    nopObserver{},
		clock:       backoff.SystemClock,
		hub:         NewHub(),
		maxSessions: defaultMaxSessions,
		ttl:         defaultSessionTTL,
		sessions:    make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Hub returns the event hub shared by all sessions.
func (m *Manager) Hub() *Hub {
	return m.hub
}

// Config returns the effective session configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Session returns the session for id, creating it if needed. At the session
// limit it drops expired sessions, then the least recently active idle one.
// When every session is busy or backing off it fails with ErrUnavailable.
func (m *Manager) Session(id string) (*Session, error) {
	id = normalizeID(id)

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	if len(m.sessions) >= m.maxSessions {
		m.sweepLocked(m.clock.Now())
	}
	if len(m.sessions) >= m.maxSessions && !m.evictIdleLocked() {
		m.logger.Warn("session limit reached", "max_sessions", m.maxSessions)
		err := core.NewUnavailableError("too many active sessions")
		err.Code = "session_limit"
		return nil, err
	}
	s := newSession(id, m)
	m.sessions[id] = s
	return s, nil
}

// Lookup returns an existing session without creating one.
func (m *Manager) Lookup(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[normalizeID(id)]
	return s, ok
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// InterruptAll cancels in-flight calls across every session.
func (m *Manager) InterruptAll() (canceled int) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		if s.Busy() {
			canceled++
		}
		s.cancelInflight(math.MaxUint64)
	}
	return canceled
}

// Sweep drops idle sessions older than the TTL and returns how many were removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked(m.clock.Now())
}

func (m *Manager) sweepLocked(now time.Time) int {
	removed := 0
	for id, s := range m.sessions {
		if s.Busy() || s.Guard().Active() {
			continue
		}
		if now.Sub(s.idleSince()) > m.ttl {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("swept idle sessions", "removed", removed, "remaining", len(m.sessions))
	}
	return removed
}

// evictIdleLocked drops the least recently active session that has no call
// in flight and no backoff window.
func (m *Manager) evictIdleLocked() bool {
	var (
		victim string
		oldest time.Time
	)
	for id, s := range m.sessions {
		if s.Busy() || s.Guard().Active() {
			continue
		}
		if t := s.idleSince(); victim == "" || t.Before(oldest) {
			victim, oldest = id, t
		}
	}
	if victim == "" {
		return false
	}
	delete(m.sessions, victim)
	m.logger.Info("evicted idle session", "session_id", victim, "idle_since", oldest)
	return true
}

func normalizeID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return DefaultSessionID
	}
	return id
}
