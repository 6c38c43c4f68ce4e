package conversation

import (
	"time"

	"github.com/vango-go/vai-voice/pkg/core"
)

// Observer receives operational signals from sessions. Implementations
// must be safe for concurrent use.
type Observer interface {
	RemoteCall(op string, errType core.ErrorType, d time.Duration)
	FormatAttempt(mimeType string, outcome string)
	Turn(kind string, status core.ReplyStatus)
	Throttled()
}

// Attempt outcomes reported to Observer.FormatAttempt.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

type nopObserver struct{}

func (nopObserver) RemoteCall(string, core.ErrorType, time.Duration) {}
func (nopObserver) FormatAttempt(string, string)                     {}
func (nopObserver) Turn(string, core.ReplyStatus)                    {}
func (nopObserver) Throttled()                                       {}
