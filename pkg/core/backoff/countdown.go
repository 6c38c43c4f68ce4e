package backoff

import (
	"context"
	"time"
)

// Countdown calls fn with the seconds remaining on g once per interval until
// the window expires or ctx is done. fn receives 0 exactly once on expiry.
// interval <= 0 means one second.
func Countdown(ctx context.Context, g *Guard, interval time.Duration, fn func(remaining int)) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		left := g.Remaining()
		if fn != nil {
			fn(left)
		}
		if left == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
