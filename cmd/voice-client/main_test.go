package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vango-go/vai-voice/pkg/core"
	"github.com/vango-go/vai-voice/pkg/core/turn"
	"github.com/vango-go/vai-voice/pkg/core/voice/speech"
	vai "github.com/vango-go/vai-voice/sdk"
)

func envMap(values map[string]string) func(string) string {
	return func(key string) string {
		return values[key]
	}
}

func TestParseClientConfig_DefaultsAndEnv(t *testing.T) {
	t.Parallel()

	cfg, err := parseClientConfig(nil, envMap(map[string]string{
		"VOICE_GATEWAY_URL": "http://gateway.local:3001",
		"VOICE_SESSION_ID":  "kitchen",
		"VOICE_LOG_LEVEL":   "debug",
	}))
	if err != nil {
		t.Fatalf("parseClientConfig error: %v", err)
	}
	if cfg.BaseURL != "http://gateway.local:3001" {
		t.Fatalf("BaseURL=%q", cfg.BaseURL)
	}
	if cfg.SessionID != "kitchen" {
		t.Fatalf("SessionID=%q", cfg.SessionID)
	}
	if cfg.TurnTimeout != defaultTurnTimeout {
		t.Fatalf("TurnTimeout=%v, want %v", cfg.TurnTimeout, defaultTurnTimeout)
	}
	if cfg.SpeechRate != 0.95 {
		t.Fatalf("SpeechRate=%v, want 0.95", cfg.SpeechRate)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel=%v, want debug", cfg.LogLevel)
	}
}

func TestParseClientConfig_FlagsOverrideEnv(t *testing.T) {
	t.Parallel()

	cfg, err := parseClientConfig([]string{"-gateway", "https://voice.example.com", "-timeout", "30s", "-mute", "-no-mic"}, envMap(map[string]string{
		"VOICE_GATEWAY_URL": "http://ignored:3001",
	}))
	if err != nil {
		t.Fatalf("parseClientConfig error: %v", err)
	}
	if cfg.BaseURL != "https://voice.example.com" || cfg.TurnTimeout != 30*time.Second || !cfg.NoSpeech || !cfg.NoMic {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.BaseURL == vai.DefaultBaseURL {
		t.Fatalf("default base URL not overridden")
	}
}

func TestParseClientConfig_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		env  map[string]string
		want string
	}{
		{name: "relative url", args: []string{"-gateway", "localhost:3001"}, want: "gateway"},
		{name: "credentials", args: []string{"-gateway", "http://u:p@localhost:3001"}, want: "credentials"},
		{name: "websocket scheme", args: []string{"-gateway", "ws://localhost:3001"}, want: "scheme"},
		{name: "timeout", args: []string{"-timeout", "0s"}, want: "timeout"},
		{name: "rate", args: []string{"-rate", "0"}, want: "rate"},
		{name: "log level", env: map[string]string{"VOICE_LOG_LEVEL": "loud"}, want: "log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseClientConfig(tt.args, envMap(tt.env))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err=%v, want mention of %q", err, tt.want)
			}
		})
	}
}

type fakeGateway struct {
	mu         sync.Mutex
	texts      []string
	starts     int
	interrupts int
}

func (g *fakeGateway) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/gemini/start", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.starts++
		g.mu.Unlock()
		writeTestJSON(w, http.StatusOK, map[string]string{"status": "conversation_started"})
	})
	mux.HandleFunc("/api/gemini/process", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Text string `json:"text"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		g.mu.Lock()
		g.texts = append(g.texts, body.Text)
		g.mu.Unlock()
		writeTestJSON(w, http.StatusOK, core.Reply{Text: "echo: " + body.Text, Status: core.StatusSuccess})
	})
	mux.HandleFunc("/api/gemini/interrupt", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.interrupts++
		g.mu.Unlock()
		writeTestJSON(w, http.StatusOK, map[string]string{"status": "interrupted", "message": "Conversation interrupted successfully"})
	})
	return mux
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func noDevices() clientDeps {
	return clientDeps{
		detectSpeech: func() (speech.Engine, error) { return nil, speech.ErrNoEngine },
	}
}

func testClientConfig(baseURL string) clientConfig {
	return clientConfig{
		BaseURL:     baseURL,
		SessionID:   "test-session",
		TurnTimeout: 5 * time.Second,
		SpeechRate:  0.95,
		NoMic:       true,
	}
}

func TestRunClient_TypedTurn(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	ts := httptest.NewServer(gw.handler())
	defer ts.Close()

	var out syncBuffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := runClient(context.Background(), testClientConfig(ts.URL), strings.NewReader("thello gateway\n"), &out, logger, noDevices())
	if err != nil {
		t.Fatalf("runClient error: %v", err)
	}

	got := out.String()
	for _, want := range []string{"[you] 💬 hello gateway", "[ai] echo: hello gateway", "bye"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if gw.starts != 1 || len(gw.texts) != 1 || gw.texts[0] != "hello gateway" {
		t.Fatalf("starts=%d texts=%q", gw.starts, gw.texts)
	}
}

func TestRunClient_KeysWithoutActiveTurn(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	ts := httptest.NewServer(gw.handler())
	defer ts.Close()

	var out syncBuffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := runClient(context.Background(), testClientConfig(ts.URL), strings.NewReader(" rcmq"), &out, logger, noDevices())
	if err != nil {
		t.Fatalf("runClient error: %v", err)
	}

	got := out.String()
	for _, want := range []string{"Error accessing microphone", "Conversation cleared.", "🔊 Speech on"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if gw.interrupts != 0 {
		t.Fatalf("interrupts=%d, want 0 when idle", gw.interrupts)
	}
}

func TestGatewayBackend_UnreachableIsTransportError(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	orch := turn.New(gatewayBackend{client: vai.NewClient(vai.WithBaseURL(url))}, nil, nil)
	defer orch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := orch.SendText(ctx, "hello")
	if core.TypeOf(err) != core.ErrTransport {
		t.Fatalf("type=%v err=%v, want %v", core.TypeOf(err), err, core.ErrTransport)
	}

	tr := orch.Transcript()
	if len(tr) != 2 {
		t.Fatalf("transcript=%+v", tr)
	}
	last := tr[len(tr)-1]
	if last.Speaker != core.SpeakerSystem || last.Content != turn.ErrorTurnPrefix+vai.UnreachableMessage {
		t.Fatalf("last turn=%+v", last)
	}
	if got := orch.Banner(); got != "Error sending message: "+vai.UnreachableMessage {
		t.Fatalf("banner=%q", got)
	}
	if orch.State() != turn.Idle {
		t.Fatalf("state=%v", orch.State())
	}
}

func TestRunMain_ReturnsNonZeroOnBadConfig(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	code := runMain(context.Background(), []string{"-gateway", "not a url"}, strings.NewReader(""), io.Discard, &stderr, envMap(nil), noDevices())
	if code != 1 {
		t.Fatalf("exitCode=%d, want 1", code)
	}
	if !strings.HasPrefix(stderr.String(), "voice-client: ") {
		t.Fatalf("stderr=%q", stderr.String())
	}
}

func TestConsole_ReadLineEditing(t *testing.T) {
	t.Parallel()

	var out syncBuffer
	c := &console{out: &out, raw: true}
	line, ok := c.readLine(bufioReader("héllo\x7f\x7fo!\r"))
	if !ok || line != "hélo!" {
		t.Fatalf("line=%q ok=%v", line, ok)
	}
	if _, ok := c.readLine(bufioReader("abc\x1b")); ok {
		t.Fatalf("escape should abandon the line")
	}
}

func TestConsole_ReportBackoff(t *testing.T) {
	t.Parallel()

	var out syncBuffer
	c := &console{out: &out, log: slog.New(slog.NewTextHandler(io.Discard, nil))}
	quota := core.NewQuotaError("API rate limit exceeded. Please wait 42 seconds before trying again.", 42)
	quota.Code = "backoff_active"

	c.report(quota)
	c.report(turn.ErrBusy)
	c.report(errors.New("already on the banner"))

	got := out.String()
	if !strings.Contains(got, "Please wait 42 seconds") || !strings.Contains(got, "Still working") {
		t.Fatalf("output=%q", got)
	}
	if strings.Contains(got, "already on the banner") {
		t.Fatalf("banner error printed twice: %q", got)
	}
}

func bufioReader(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}
