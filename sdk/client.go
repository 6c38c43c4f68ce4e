// Package vai is the Go client for the voice gateway. It submits turns to
// the /api/gemini endpoints under a stable session id and subscribes to the
// session's event stream.
package vai

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// DefaultBaseURL is the gateway address used when none is configured.
const DefaultBaseURL = "http://localhost:3001"

// SessionHeader carries the conversation key on every request.
const SessionHeader = "X-Session-ID"

// Client talks to one gateway as one conversation session.
type Client struct {
	baseURL    string
	httpClient *http.Client
	dialer     *websocket.Dialer
	sessionID  string
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewClient creates a client. Without WithSessionID a random session id is
// generated so concurrent clients never share a dialogue.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: newDefaultHTTPClient(),
		dialer:     websocket.DefaultDialer,
		logger:     slog.Default(),
		tracer:     noop.NewTracerProvider().Tracer("vai-voice"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sessionID == "" {
		c.sessionID = uuid.NewString()
	}
	return c
}

// SessionID returns the conversation key sent with every request.
func (c *Client) SessionID() string {
	return c.sessionID
}

// BaseURL returns the gateway base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}
