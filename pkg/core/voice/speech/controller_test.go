package speech

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeEngine struct {
	mu       sync.Mutex
	voices   []Voice
	spoken   []string
	opts     []Options
	active   int
	maxAlive int
	block    bool
	started  chan string
}

func newFakeEngine(block bool) *fakeEngine {
	return &fakeEngine{block: block, started: make(chan string, 16)}
}

func (e *fakeEngine) Voices(context.Context) ([]Voice, error) {
	return e.voices, nil
}

func (e *fakeEngine) Speak(ctx context.Context, text string, opts Options) error {
	e.mu.Lock()
	e.spoken = append(e.spoken, text)
	e.opts = append(e.opts, opts)
	e.active++
	e.maxAlive = max(e.maxAlive, e.active)
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.active--
		e.mu.Unlock()
	}()

	e.started <- text
	if !e.block {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for utterance to end")
		return nil
	}
}

func doneChan() (chan error, func(error)) {
	ch := make(chan error, 1)
	return ch, func(err error) { ch <- err }
}

func TestController_SpeakCompletes(t *testing.T) {
	engine := newFakeEngine(false)
	engine.voices = []Voice{{ID: "v1", Name: "Samantha", Lang: "en-US"}}
	c := NewController(engine)
	defer c.Close()

	ch, done := doneChan()
	c.Speak("  hello there  ", done)
	if err := waitErr(t, ch); err != nil {
		t.Fatalf("done err=%v, want nil", err)
	}
	if c.Speaking() {
		t.Fatalf("still speaking after completion")
	}

	engine.mu.Lock()
	defer engine.mu.Unlock()
	if len(engine.spoken) != 1 || engine.spoken[0] != "hello there" {
		t.Fatalf("spoken=%q", engine.spoken)
	}
	if got := engine.opts[0]; got.Voice.ID != "v1" || got.Rate != DefaultRate || got.Volume != DefaultVolume {
		t.Fatalf("opts=%+v", got)
	}
}

func TestController_SpeakReplacesCurrentUtterance(t *testing.T) {
	engine := newFakeEngine(true)
	c := NewController(engine)
	defer c.Close()

	first, done1 := doneChan()
	c.Speak("first", done1)
	<-engine.started
	if !c.Speaking() {
		t.Fatalf("expected speaking")
	}

	second, done2 := doneChan()
	c.Speak("second", done2)
	if err := waitErr(t, first); !errors.Is(err, context.Canceled) {
		t.Fatalf("first err=%v, want canceled", err)
	}
	if got := <-engine.started; got != "second" {
		t.Fatalf("started=%q, want second", got)
	}

	c.Stop()
	if err := waitErr(t, second); !errors.Is(err, context.Canceled) {
		t.Fatalf("second err=%v, want canceled", err)
	}

	engine.mu.Lock()
	defer engine.mu.Unlock()
	if engine.maxAlive != 1 {
		t.Fatalf("max concurrent utterances=%d, want 1", engine.maxAlive)
	}
}

func TestController_EmptyTextIsNoop(t *testing.T) {
	engine := newFakeEngine(false)
	c := NewController(engine)
	defer c.Close()

	ch, done := doneChan()
	c.Speak("   ", done)
	if err := waitErr(t, ch); err != nil {
		t.Fatalf("err=%v, want nil", err)
	}
	engine.mu.Lock()
	defer engine.mu.Unlock()
	if len(engine.spoken) != 0 {
		t.Fatalf("spoken=%q, want none", engine.spoken)
	}
}

func TestController_SpeakAfterClose(t *testing.T) {
	c := NewController(newFakeEngine(false))
	c.Close()

	ch, done := doneChan()
	c.Speak("late", done)
	if err := waitErr(t, ch); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want canceled", err)
	}
}

func TestController_WithVoiceSkipsSelection(t *testing.T) {
	engine := newFakeEngine(false)
	engine.voices = []Voice{{ID: "a", Name: "Alex", Lang: "en-US"}}
	c := NewController(engine, WithVoice(Voice{ID: "pinned", Name: "Pinned"}), WithRate(1.2))
	defer c.Close()

	ch, done := doneChan()
	c.Speak("hi", done)
	waitErr(t, ch)

	engine.mu.Lock()
	defer engine.mu.Unlock()
	if got := engine.opts[0]; got.Voice.ID != "pinned" || got.Rate != 1.2 {
		t.Fatalf("opts=%+v", got)
	}
}
