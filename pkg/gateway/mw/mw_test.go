package mw

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = RequestIDFrom(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if !strings.HasPrefix(seen, "req_") || rr.Header().Get("X-Request-ID") != seen {
		t.Fatalf("request id=%q header=%q", seen, rr.Header().Get("X-Request-ID"))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req_client")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "req_client" {
		t.Fatalf("client request id not honored: %q", seen)
	}
}

func TestSession_HeaderAndQuery(t *testing.T) {
	var seen string
	h := Session(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionIDFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/gemini/process", nil)
	req.Header.Set(SessionHeader, " tab-1 ")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if seen != "tab-1" || rr.Header().Get(SessionHeader) != "tab-1" {
		t.Fatalf("session=%q echo=%q", seen, rr.Header().Get(SessionHeader))
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/gemini/events?session_id=tab-2", nil))
	if seen != "tab-2" {
		t.Fatalf("query session=%q", seen)
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if seen != "" {
		t.Fatalf("missing session should be empty, got %q", seen)
	}
}

func TestSession_RejectsOversizedID(t *testing.T) {
	h := Session(okHandler())
	req := httptest.NewRequest(http.MethodPost, "/api/gemini/process", nil)
	req.Header.Set(SessionHeader, strings.Repeat("x", maxSessionIDLen+1))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestRecover_Returns500(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	h := Recover(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(logs.String(), "panic") {
		t.Fatalf("panic not logged: %q", logs.String())
	}
}

func TestAccessLog_RecordsStatus(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	h := RequestID(Session(AccessLog(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))))

	req := httptest.NewRequest(http.MethodPost, "/api/gemini/start", nil)
	req.Header.Set(SessionHeader, "tab-9")
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := logs.String()
	for _, want := range []string{"status=418", "session_id=tab-9", "path=/api/gemini/start"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log missing %q: %q", want, out)
		}
	}
}

type recordingRequestObserver struct {
	route  string
	status int
}

func (o *recordingRequestObserver) ObserveRequest(route, method string, status int, d time.Duration) {
	o.route = route
	o.status = status
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	obs := &recordingRequestObserver{}
	h := Metrics(obs, func(*http.Request) string { return "/api/gemini/process" }, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/gemini/process", nil))
	if obs.route != "/api/gemini/process" || obs.status != http.StatusBadRequest {
		t.Fatalf("observed route=%q status=%d", obs.route, obs.status)
	}
}
