package handlers

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/vango-go/vai-voice/pkg/core"
	"github.com/vango-go/vai-voice/pkg/gateway/config"
	"github.com/vango-go/vai-voice/pkg/gateway/conversation"
	"github.com/vango-go/vai-voice/pkg/gateway/mw"
)

type fakeDialogue struct {
	mu    sync.Mutex
	mimes []string
	texts []string
	reply func(ctx context.Context) (string, error)
}

func (d *fakeDialogue) Send(ctx context.Context, parts ...core.Part) (string, error) {
	d.mu.Lock()
	for _, p := range parts {
		if p.Audio != nil {
			d.mimes = append(d.mimes, p.Audio.MIMEType)
		} else if p.Text != conversation.Instruction {
			d.texts = append(d.texts, p.Text)
		}
	}
	reply := d.reply
	d.mu.Unlock()

	if reply == nil {
		return "Hello there, nice to hear from you.", nil
	}
	return reply(ctx)
}

func (d *fakeDialogue) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.mimes) + len(d.texts)
}

type fakeModel struct {
	probeErr error
	dialogue *fakeDialogue
}

func (m *fakeModel) Name() string { return "fake-model" }

func (m *fakeModel) Probe(ctx context.Context) error { return m.probeErr }

func (m *fakeModel) OpenDialogue(ctx context.Context, cfg core.DialogueConfig) (core.Dialogue, error) {
	return m.dialogue, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.Config {
	return config.Config{
		GeminiAPIKey:       "test-key",
		Model:              "gemini-1.5-flash",
		MaxUploadBytes:     1 << 20,
		MinAudioBytes:      1000,
		RemoteTimeout:      time.Second,
		CORSAllowedOrigins: map[string]struct{}{"http://localhost:3000": {}},
		EventsPingInterval: time.Hour,
		EventsWriteTimeout: time.Second,
		ReadHeaderTimeout:  time.Second,
		ReadTimeout:        time.Second,
		HandlerTimeout:     5 * time.Second,
	}
}

func newTestManager(model *fakeModel) *conversation.Manager {
	return conversation.NewManager(model, conversation.Config{RemoteTimeout: time.Second},
		conversation.WithLogger(testLogger()))
}

func mustSession(t *testing.T, m *conversation.Manager, id string) *conversation.Session {
	t.Helper()
	s, err := m.Session(id)
	if err != nil {
		t.Fatalf("Session(%q) error: %v", id, err)
	}
	return s
}

// serve runs h behind the middleware that supplies request and session ids.
func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	mw.RequestID(mw.Session(h)).ServeHTTP(rr, req)
	return rr
}

func multipartAudio(t *testing.T, field, filename, mimeType string, data []byte, extra map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range extra {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if field != "" {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
		hdr.Set("Content-Type", mimeType)
		part, err := w.CreatePart(hdr)
		if err != nil {
			t.Fatalf("CreatePart: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &body, w.FormDataContentType()
}
