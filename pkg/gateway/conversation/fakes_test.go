package conversation

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/vango-go/vai-voice/pkg/core"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sentCall struct {
	mimeType string
	text     string
}

type fakeDialogue struct {
	mu      sync.Mutex
	calls   []sentCall
	active  int
	maxSeen int
	reply   func(n int, call sentCall, ctx context.Context) (string, error)
}

func (d *fakeDialogue) Send(ctx context.Context, parts ...core.Part) (string, error) {
	var call sentCall
	for _, p := range parts {
		if p.Audio != nil {
			call.mimeType = p.Audio.MIMEType
		} else {
			call.text = p.Text
		}
	}

	d.mu.Lock()
	d.calls = append(d.calls, call)
	n := len(d.calls)
	d.active++
	if d.active > d.maxSeen {
		d.maxSeen = d.active
	}
	reply := d.reply
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.active--
		d.mu.Unlock()
	}()

	if reply == nil {
		return "This is a perfectly reasonable reply.", nil
	}
	return reply(n, call, ctx)
}

func (d *fakeDialogue) sent() []sentCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sentCall(nil), d.calls...)
}

type fakeModel struct {
	mu       sync.Mutex
	probeErr error
	openErr  error
	probes   int
	opens    int
	dialogue *fakeDialogue
}

func (m *fakeModel) Name() string { return "fake-model" }

func (m *fakeModel) Probe(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes++
	return m.probeErr
}

func (m *fakeModel) OpenDialogue(ctx context.Context, cfg core.DialogueConfig) (core.Dialogue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens++
	if m.openErr != nil {
		return nil, m.openErr
	}
	if m.dialogue == nil {
		m.dialogue = &fakeDialogue{}
	}
	return m.dialogue, nil
}

func (m *fakeModel) counts() (probes, opens int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.probes, m.opens
}

func testManager(model core.Model, clock *fakeClock, cfg Config) *Manager {
	return NewManager(model, cfg,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(clock),
	)
}

func mustSession(t *testing.T, m *Manager, id string) *Session {
	t.Helper()
	s, err := m.Session(id)
	if err != nil {
		t.Fatalf("Session(%q) error: %v", id, err)
	}
	return s
}

func audioClip(size int, mimeType string) core.Clip {
	return core.Clip{Name: "recording.wav", MIMEType: mimeType, Data: make([]byte, size)}
}
