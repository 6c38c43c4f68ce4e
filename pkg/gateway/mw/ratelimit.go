package mw

import (
	"net/http"
	"strconv"
	"time"

	"github.com/vango-go/vai-voice/pkg/core"
	"github.com/vango-go/vai-voice/pkg/gateway/config"
	"github.com/vango-go/vai-voice/pkg/gateway/ratelimit"
)

// RateLimitObserver is notified of inbound limiter rejections.
type RateLimitObserver interface {
	InboundLimited(kind string)
}

func RateLimit(cfg config.Config, limiter *ratelimit.Limiter, obs RateLimitObserver, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/healthz" || r.URL.Path == "/readyz" || r.URL.Path == "/metrics":
			next.ServeHTTP(w, r)
			return
		case r.Method == http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		key := ratelimit.SessionKey(SessionIDFrom(r.Context()))
		kind := "request"
		var dec ratelimit.Decision
		if isWebSocketUpgrade(r) {
			kind = "stream"
			dec = limiter.AcquireStream(key, time.Now())
		} else {
			dec = limiter.AcquireRequest(key, time.Now())
		}
		if !dec.Allowed {
			if obs != nil {
				obs.InboundLimited(kind)
			}
			reqID, _ := RequestIDFrom(r.Context())
			if dec.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(dec.RetryAfter))
			}
			e := core.NewQuotaError("rate limit exceeded", dec.RetryAfter)
			e.Code = "inbound_rate_limit"
			e.RequestID = reqID
			writeJSONError(w, http.StatusTooManyRequests, e)
			return
		}
		if dec.Permit != nil {
			defer dec.Permit.Release()
		}

		next.ServeHTTP(w, r)
	})
}
