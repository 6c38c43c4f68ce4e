package mw

import (
	"net/http"
	"time"
)

// RequestObserver records completed HTTP requests.
type RequestObserver interface {
	ObserveRequest(route, method string, status int, d time.Duration)
}

// Metrics reports every request to obs, labeled by the registered route
// pattern rather than the raw path.
func Metrics(obs RequestObserver, routeOf func(*http.Request) string, next http.Handler) http.Handler {
	if obs == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := "unmatched"
		if routeOf != nil {
			if p := routeOf(r); p != "" {
				route = p
			}
		}
		obs.ObserveRequest(route, r.Method, sw.status, time.Since(start))
	})
}
