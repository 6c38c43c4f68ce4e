// Package ratelimit enforces per-session inbound limits on the gateway:
// a token bucket for request rate plus caps on concurrent requests and
// concurrent event streams.
package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sync"
	"time"
)

type Config struct {
	RPS   float64
	Burst int

	MaxConcurrentRequests int
	MaxConcurrentStreams  int

	// Operational bounds for the in-memory map (single-process only).
	MaxEntries int
	EntryTTL   time.Duration
}

type Limiter struct {
	cfg Config

	mu sync.Mutex
	m  map[string]*sessionLimiter
}

type sessionLimiter struct {
	mu sync.Mutex

	tb tokenBucket

	reqSem    chan struct{}
	streamSem chan struct{}

	lastSeen time.Time
}

type tokenBucket struct {
	tokens float64
	last   time.Time
	primed bool
}

func New(cfg Config) *Limiter {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10_000
	}
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = 30 * time.Minute
	}
	return &Limiter{
		cfg: cfg,
		m:   make(map[string]*sessionLimiter),
	}
}

// SessionKey hashes a client-supplied session id into a bounded map key.
func SessionKey(sessionID string) string {
	sum := sha256.Sum256([]byte(sessionID))
	return "s_" + hex.EncodeToString(sum[:12])
}

type Permit struct {
	release func()
}

func (p *Permit) Release() {
	if p == nil || p.release == nil {
		return
	}
	p.release()
	p.release = nil
}

type Decision struct {
	Allowed    bool
	RetryAfter int
	Permit     *Permit
}

// AcquireRequest charges one token and takes a concurrency slot for key.
func (l *Limiter) AcquireRequest(key string, now time.Time) Decision {
	sl := l.getOrCreate(key, now)

	if l.cfg.RPS > 0 && l.cfg.Burst > 0 {
		ok, retryAfter := sl.allowToken(now, l.cfg.RPS, l.cfg.Burst)
		if !ok {
			return Decision{Allowed: false, RetryAfter: retryAfter}
		}
	}
	return acquireSlot(sl.reqSem, l.cfg.MaxConcurrentRequests)
}

// AcquireStream takes an event-stream slot for key. Streams are not charged
// against the token bucket.
func (l *Limiter) AcquireStream(key string, now time.Time) Decision {
	sl := l.getOrCreate(key, now)
	return acquireSlot(sl.streamSem, l.cfg.MaxConcurrentStreams)
}

// Len returns the number of tracked sessions.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

func acquireSlot(sem chan struct{}, limit int) Decision {
	if limit <= 0 {
		return Decision{Allowed: true, Permit: &Permit{release: func() {}}}
	}
	select {
	case sem <- struct{}{}:
		return Decision{
			Allowed: true,
			Permit:  &Permit{release: func() { <-sem }},
		}
	default:
		return Decision{Allowed: false, RetryAfter: 1}
	}
}

func (l *Limiter) getOrCreate(key string, now time.Time) *sessionLimiter {
	if key == "" {
		key = "anonymous"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if sl, ok := l.m[key]; ok {
		sl.lastSeen = now
		return sl
	}
	if len(l.m) >= l.cfg.MaxEntries {
		l.gcLocked(now)
		// Still full: evict one arbitrary entry to keep memory bounded.
		if len(l.m) >= l.cfg.MaxEntries {
			for k := range l.m {
				delete(l.m, k)
				break
			}
		}
	}
	sl := &sessionLimiter{
		reqSem:    make(chan struct{}, max(1, l.cfg.MaxConcurrentRequests)),
		streamSem: make(chan struct{}, max(1, l.cfg.MaxConcurrentStreams)),
		lastSeen:  now,
	}
	l.m[key] = sl
	return sl
}

func (l *Limiter) gcLocked(now time.Time) {
	for k, v := range l.m {
		if now.Sub(v.lastSeen) > l.cfg.EntryTTL {
			delete(l.m, k)
		}
	}
}

func (sl *sessionLimiter) allowToken(now time.Time, rps float64, burst int) (bool, int) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	capacity := float64(burst)
	if !sl.tb.primed {
		sl.tb = tokenBucket{tokens: capacity, last: now, primed: true}
	}

	if elapsed := now.Sub(sl.tb.last).Seconds(); elapsed > 0 {
		sl.tb.tokens = math.Min(capacity, sl.tb.tokens+elapsed*rps)
		sl.tb.last = now
	}

	if sl.tb.tokens >= 1.0 {
		sl.tb.tokens -= 1.0
		return true, 0
	}

	retryAfter := int(math.Ceil((1.0 - sl.tb.tokens) / rps))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return false, retryAfter
}
