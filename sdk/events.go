package vai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event types pushed on the session event stream.
const (
	EventSubscribed  = "subscribed"
	EventNotice      = "notice"
	EventStarted     = "conversation_started"
	EventAttempt     = "format_attempt"
	EventReply       = "reply"
	EventInterrupted = "interrupted"
	EventRateLimited = "rate_limited"
	EventError       = "error"
)

// Event is one frame of the session event stream.
type Event struct {
	Type       string    `json:"type"`
	SessionID  string    `json:"session_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	Code       string    `json:"code,omitempty"`
	Message    string    `json:"message,omitempty"`
	MIMEType   string    `json:"mime_type,omitempty"`
	Accepted   *bool     `json:"accepted,omitempty"`
	RetryAfter int       `json:"retry_after,omitempty"`
	At         time.Time `json:"at,omitempty"`
}

// EventStream reads session events until closed.
type EventStream struct {
	conn      *websocket.Conn
	closeOnce sync.Once
}

// Events opens the session's event stream. The first event is always the
// subscription acknowledgement.
func (c *Client) Events(ctx context.Context) (*EventStream, error) {
	endpoint, err := c.endpoint("/api/gemini/events")
	if err != nil {
		return nil, err
	}
	wsURL, err := toWebSocketURL(endpoint)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("session_id", c.sessionID)
	wsURL += "?" + q.Encode()

	headers := http.Header{}
	headers.Set(SessionHeader, c.sessionID)

	conn, resp, err := c.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, decodeGatewayErrorResponse(resp, endpoint, http.MethodGet)
		}
		return nil, unreachable(http.MethodGet, wsURL, err)
	}
	return &EventStream{conn: conn}, nil
}

// Next blocks for the next event. It returns io.EOF once the gateway closes
// the stream normally.
func (s *EventStream) Next() (Event, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return Event{}, io.EOF
		}
		return Event{}, err
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}

// Run delivers events to fn until ctx ends or the stream closes.
func (s *EventStream) Run(ctx context.Context, fn func(Event)) error {
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	for {
		ev, err := s.Next()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		fn(ev)
	}
}

// Close closes the stream.
func (s *EventStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(2*time.Second))
		err = s.conn.Close()
	})
	return err
}

func toWebSocketURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		// already websocket scheme.
	default:
		return "", fmt.Errorf("unsupported gateway scheme %q", u.Scheme)
	}
	return u.String(), nil
}
