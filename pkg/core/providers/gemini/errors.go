package gemini

import (
	"context"
	"errors"

	"github.com/vango-go/vai-voice/pkg/core"
)

// mapError converts SDK failures into canonical errors. Throttling and
// credential failures are recognized from the error text, which carries the
// HTTP code and the RPC status (e.g. RESOURCE_EXHAUSTED).
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return core.Classify(err)
	}
	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		return coreErr
	}

	msg := err.Error()
	switch {
	case core.IsThrottling(msg):
		return &core.Error{Type: core.ErrQuota, Message: core.QuotaMessage, Err: err}
	case core.IsAuthFailure(msg):
		return &core.Error{Type: core.ErrAuth, Message: core.AuthMessage, Err: err}
	default:
		return core.NewTransportError("gemini: "+msg, err)
	}
}
