// Package backoff implements the local rate-limit window that suppresses
// submissions after the remote API signals throttling.
//
// A Guard is tripped by a throttling error and stays active for a fixed
// window. While active, Check rejects new work with a quota error carrying
// the whole seconds left. Expiry is purely time based; nothing is retried.
package backoff

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/vango-go/vai-voice/pkg/core"
)

// DefaultWindow is the backoff applied after a throttling signal.
const DefaultWindow = 60 * time.Second

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the wall clock.
var SystemClock Clock = systemClock{}

// Guard tracks one rate-limit window. The zero value is not usable; call NewGuard.
type Guard struct {
	mu     sync.Mutex
	window time.Duration
	clock  Clock
	until  time.Time
}

// NewGuard returns a guard with the given window. window <= 0 uses
// DefaultWindow and a nil clock uses SystemClock.
func NewGuard(window time.Duration, clock Clock) *Guard {
	if window <= 0 {
		window = DefaultWindow
	}
	if clock == nil {
		clock = SystemClock
	}
	return &Guard{window: window, clock: clock}
}

// Window returns the configured backoff duration.
func (g *Guard) Window() time.Duration {
	return g.window
}

// Trip starts a fresh window from now, replacing any window in progress.
func (g *Guard) Trip() {
	g.mu.Lock()
	g.until = g.clock.Now().Add(g.window)
	g.mu.Unlock()
}

// Observe trips the guard when err classifies as a quota error and reports
// whether it did.
func (g *Guard) Observe(err error) bool {
	if core.TypeOf(err) != core.ErrQuota {
		return false
	}
	g.Trip()
	return true
}

// Reset clears any active window.
func (g *Guard) Reset() {
	g.mu.Lock()
	g.until = time.Time{}
	g.mu.Unlock()
}

// Active reports whether a window is in progress.
func (g *Guard) Active() bool {
	return g.Remaining() > 0
}

// Remaining returns the whole seconds left in the window, rounded up.
func (g *Guard) Remaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.until.IsZero() {
		return 0
	}
	left := g.until.Sub(g.clock.Now())
	if left <= 0 {
		g.until = time.Time{}
		return 0
	}
	return int(math.Ceil(left.Seconds()))
}

// Check returns nil when no window is active, otherwise a quota error with
// RetryAfter set to the seconds remaining.
func (g *Guard) Check() error {
	left := g.Remaining()
	if left == 0 {
		return nil
	}
	err := core.NewQuotaError(Banner(left), left)
	err.Code = "backoff_active"
	return err
}

// Banner is the user-facing notice for a window with seconds left.
func Banner(seconds int) string {
	return fmt.Sprintf("API rate limit exceeded. Please wait %d seconds before trying again.", seconds)
}
