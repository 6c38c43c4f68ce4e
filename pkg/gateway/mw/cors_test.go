package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vango-go/vai-voice/pkg/gateway/config"
)

func corsConfig(origins ...string) config.Config {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return config.Config{CORSAllowedOrigins: allowed}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORS_DisabledWhenNoOrigins(t *testing.T) {
	h := CORS(corsConfig(), okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/gemini/process", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no CORS headers, got Access-Control-Allow-Origin=%q", got)
	}
}

func TestCORS_AllowlistedOrigin_AttachesHeaders(t *testing.T) {
	h := CORS(corsConfig("http://localhost:3000"), okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/gemini/process", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("Access-Control-Allow-Origin=%q", got)
	}
	if got := rr.Header().Get("Vary"); got != "Origin" {
		t.Fatalf("Vary=%q", got)
	}
	if got := rr.Header().Get("Access-Control-Expose-Headers"); got == "" {
		t.Fatalf("expected exposed headers to be set")
	}
}

func TestCORS_Preflight(t *testing.T) {
	h := CORS(corsConfig("http://localhost:3000"), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("preflight must not reach the handler")
	}))

	tests := []struct {
		origin string
		want   int
	}{
		{"http://localhost:3000", http.StatusNoContent},
		{"https://evil.example", http.StatusForbidden},
		{"", http.StatusForbidden},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodOptions, "/api/gemini/process", nil)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != tt.want {
			t.Fatalf("origin=%q status=%d, want %d", tt.origin, rr.Code, tt.want)
		}
	}
}

func TestOriginAllowed(t *testing.T) {
	cfg := corsConfig("http://localhost:3000")
	if !OriginAllowed(cfg, "") {
		t.Fatalf("missing origin should be allowed")
	}
	if !OriginAllowed(cfg, "http://localhost:3000") {
		t.Fatalf("allowlisted origin rejected")
	}
	if OriginAllowed(cfg, "http://localhost:4000") {
		t.Fatalf("unknown origin allowed")
	}
}
