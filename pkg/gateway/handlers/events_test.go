package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/vai-voice/pkg/gateway/conversation"
	"github.com/vango-go/vai-voice/pkg/gateway/lifecycle"
	"github.com/vango-go/vai-voice/pkg/gateway/mw"
	"github.com/vango-go/vai-voice/pkg/gateway/streams"
)

type countingStreamObserver struct {
	opened atomic.Int64
	closed atomic.Int64
}

func (o *countingStreamObserver) StreamOpened() { o.opened.Add(1) }

func (o *countingStreamObserver) StreamClosed() { o.closed.Add(1) }

func startEventsServer(t *testing.T, h EventsHandler) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(mw.RequestID(mw.Session(h)))
	t.Cleanup(ts.Close)
	return ts
}

func dialEvents(t *testing.T, ts *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/gemini/events?session_id=" + sessionID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial: %v (status=%d)", err, status)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	return conn
}

func TestEventsHandler_StreamsSessionEvents(t *testing.T) {
	mgr := newTestManager(&fakeModel{dialogue: &fakeDialogue{}})
	tracker := streams.NewTracker()
	obs := &countingStreamObserver{}
	ts := startEventsServer(t, EventsHandler{
		Config:   testConfig(),
		Sessions: mgr,
		Streams:  tracker,
		Observer: obs,
		Logger:   testLogger(),
	})

	conn := dialEvents(t, ts, "alpha")

	var hello StreamNotice
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if hello.Type != NoticeSubscribed || hello.SessionID != "alpha" {
		t.Fatalf("hello=%+v", hello)
	}
	if tracker.CountSession("alpha") != 1 {
		t.Fatalf("tracked streams=%d", tracker.CountSession("alpha"))
	}

	// Events of another session must not arrive on this stream.
	if err := mustSession(t, mgr, "beta").Start(context.Background()); err != nil {
		t.Fatalf("start beta: %v", err)
	}
	if err := mustSession(t, mgr, "alpha").Start(context.Background()); err != nil {
		t.Fatalf("start alpha: %v", err)
	}

	var ev conversation.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type != conversation.EventStarted || ev.SessionID != "alpha" {
		t.Fatalf("event=%+v", ev)
	}
	if obs.opened.Load() != 1 {
		t.Fatalf("opened=%d", obs.opened.Load())
	}
}

func TestEventsHandler_ShutdownNoticeAndCancel(t *testing.T) {
	mgr := newTestManager(&fakeModel{dialogue: &fakeDialogue{}})
	tracker := streams.NewTracker()
	ts := startEventsServer(t, EventsHandler{
		Config:   testConfig(),
		Sessions: mgr,
		Streams:  tracker,
		Logger:   testLogger(),
	})

	conn := dialEvents(t, ts, "alpha")
	var hello StreamNotice
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("read hello: %v", err)
	}

	if sent := tracker.NoticeAll("draining", "gateway is shutting down"); sent != 1 {
		t.Fatalf("sent=%d", sent)
	}
	var notice StreamNotice
	if err := conn.ReadJSON(&notice); err != nil {
		t.Fatalf("read notice: %v", err)
	}
	if notice.Type != NoticeServer || notice.Code != "draining" {
		t.Fatalf("notice=%+v", notice)
	}

	tracker.CancelAll()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if !tracker.Wait(ctx) {
		t.Fatalf("stream did not release after cancel")
	}
}

func TestEventsHandler_RejectsWhileDraining(t *testing.T) {
	var lc lifecycle.Lifecycle
	lc.SetDraining(true)
	h := EventsHandler{
		Config:    testConfig(),
		Sessions:  newTestManager(&fakeModel{dialogue: &fakeDialogue{}}),
		Streams:   streams.NewTracker(),
		Lifecycle: &lc,
	}

	rr := serve(h, httptest.NewRequest(http.MethodGet, "/api/gemini/events", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestEventsHandler_RejectsUnknownOrigin(t *testing.T) {
	h := EventsHandler{
		Config:   testConfig(),
		Sessions: newTestManager(&fakeModel{dialogue: &fakeDialogue{}}),
		Streams:  streams.NewTracker(),
	}

	req := httptest.NewRequest(http.MethodGet, "/api/gemini/events", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr := serve(h, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}
