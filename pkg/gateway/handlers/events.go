package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vango-go/vai-voice/pkg/core"
	"github.com/vango-go/vai-voice/pkg/gateway/config"
	"github.com/vango-go/vai-voice/pkg/gateway/conversation"
	"github.com/vango-go/vai-voice/pkg/gateway/lifecycle"
	"github.com/vango-go/vai-voice/pkg/gateway/mw"
	"github.com/vango-go/vai-voice/pkg/gateway/streams"
)

const eventsReadLimit = 4096

// StreamObserver is told when an event stream opens and closes.
type StreamObserver interface {
	StreamOpened()
	StreamClosed()
}

// StreamNotice is a control frame on the events stream, distinct from the
// conversation events it carries.
type StreamNotice struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Notice types.
const (
	NoticeSubscribed = "subscribed"
	NoticeServer     = "notice"
)

// EventsHandler handles GET /api/gemini/events, pushing the session's
// conversation events over a WebSocket until either side closes.
type EventsHandler struct {
	Config    config.Config
	Sessions  *conversation.Manager
	Streams   *streams.Tracker
	Lifecycle *lifecycle.Lifecycle
	Observer  StreamObserver
	Logger    *slog.Logger
}

func (h EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r, http.MethodGet)
		return
	}
	if h.Lifecycle.IsDraining() {
		err := core.NewUnavailableError("gateway is draining")
		err.Code = "draining"
		writeCoreErrorJSON(w, r, err, http.StatusServiceUnavailable)
		return
	}
	if !mw.OriginAllowed(h.Config, r.Header.Get("Origin")) {
		err := core.NewInvalidRequestError("origin is not allowed")
		err.Code = "origin_not_allowed"
		writeCoreErrorJSON(w, r, err, http.StatusForbidden)
		return
	}

	sess, err := h.Sessions.Session(mw.SessionIDFrom(r.Context()))
	if err != nil {
		writeConversationError(w, r, err, "")
		return
	}
	sessionID := sess.ID()

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetReadLimit(eventsReadLimit)

	log := logger(h.Logger).With("session_id", sessionID)

	events, unsubscribe := h.Sessions.Hub().Subscribe(sessionID)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writeTimeout := h.Config.EventsWriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	pingInterval := h.Config.EventsPingInterval
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}

	var writeMu sync.Mutex
	write := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return err
		}
		return conn.WriteJSON(v)
	}

	streamID := uuid.NewString()
	release := h.Streams.Register(streamID, streams.Handle{
		SessionID: sessionID,
		Cancel:    cancel,
		Notice: func(code, message string) error {
			return write(StreamNotice{Type: NoticeServer, SessionID: sessionID, Code: code, Message: message})
		},
	})
	defer release()

	if h.Observer != nil {
		h.Observer.StreamOpened()
		defer h.Observer.StreamClosed()
	}
	log.Info("event stream opened", "stream_id", streamID)
	defer log.Info("event stream closed", "stream_id", streamID)

	// Client frames are ignored; reading surfaces close and keeps control
	// frames flowing.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := write(StreamNotice{Type: NoticeSubscribed, SessionID: sessionID}); err != nil {
		return
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeTimeout))
			writeMu.Unlock()
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				cancel()
				continue
			}
			if err := write(ev); err != nil {
				log.Debug("event write failed", "error", err)
				return
			}
		case <-ping.C:
			writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout))
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
