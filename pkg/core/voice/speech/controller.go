package speech

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
)

// Default utterance parameters.
const (
	DefaultRate   = 0.95
	DefaultPitch  = 1.0
	DefaultVolume = 1.0
)

// Options are per-utterance synthesis parameters. Rate, Pitch and Volume are
// relative to the engine's normal speech, so 1 means unchanged.
type Options struct {
	Voice  Voice
	Rate   float64
	Pitch  float64
	Volume float64
}

// Engine synthesizes and plays text. Speak blocks until playback finishes or
// ctx is cancelled, in which case playback stops promptly.
type Engine interface {
	Voices(ctx context.Context) ([]Voice, error)
	Speak(ctx context.Context, text string, opts Options) error
}

// Controller keeps at most one utterance audible. Starting a new one
// cancels the current one first.
type Controller struct {
	engine    Engine
	logger    *slog.Logger
	preferred []string
	rate      float64
	pitch     float64
	volume    float64

	voiceOnce sync.Once
	voice     Voice

	mu       sync.Mutex
	cancel   context.CancelFunc
	finished chan struct{}
	active   bool
	gen      uint64
	closed   bool
	wg       sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger used for synthesis failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRate overrides DefaultRate.
func WithRate(rate float64) Option {
	return func(c *Controller) {
		if rate > 0 {
			c.rate = rate
		}
	}
}

// WithPreferredVoices overrides PreferredVoices.
func WithPreferredVoices(names []string) Option {
	return func(c *Controller) {
		c.preferred = append([]string(nil), names...)
	}
}

// WithVoice pins the voice and skips selection.
func WithVoice(v Voice) Option {
	return func(c *Controller) {
		c.voice = v
		c.voiceOnce.Do(func() {})
	}
}

// NewController creates a controller over engine.
func NewController(engine Engine, opts ...Option) *Controller {
	c := &Controller{
		engine:    engine,
		logger:    slog.Default(),
		preferred: PreferredVoices,
		rate:      DefaultRate,
		pitch:     DefaultPitch,
		volume:    DefaultVolume,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Speak cancels any current utterance and starts speaking text. done, if
// non-nil, is called exactly once from another goroutine when the utterance
// ends: nil on completion, context.Canceled when stopped or replaced.
func (c *Controller) Speak(text string, done func(error)) {
	if done == nil {
		done = func(error) {}
	}
	text = strings.TrimSpace(text)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		go done(context.Canceled)
		return
	}
	c.stopLocked()
	if text == "" {
		c.mu.Unlock()
		go done(nil)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	prev := c.finished
	finished := make(chan struct{})
	c.gen++
	gen := c.gen
	c.cancel = cancel
	c.finished = finished
	c.active = true
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		defer close(finished)
		defer cancel()

		if prev != nil {
			<-prev
		}
		err := ctx.Err()
		if err == nil {
			err = c.engine.Speak(ctx, text, c.options(ctx))
			if ctx.Err() != nil {
				err = context.Canceled
			}
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warn("speech synthesis failed", "error", err)
		}

		c.mu.Lock()
		if c.gen == gen {
			c.active = false
			c.cancel = nil
		}
		c.mu.Unlock()
		done(err)
	}()
}

func (c *Controller) options(ctx context.Context) Options {
	c.voiceOnce.Do(func() {
		voices, err := c.engine.Voices(ctx)
		if err != nil {
			c.logger.Warn("list voices failed", "error", err)
			return
		}
		if v, ok := SelectVoice(voices, c.preferred); ok {
			c.mu.Lock()
			c.voice = v
			c.mu.Unlock()
			c.logger.Debug("selected voice", "voice", v.Name, "lang", v.Lang)
		}
	})
	return Options{Voice: c.Voice(), Rate: c.rate, Pitch: c.pitch, Volume: c.volume}
}

// Stop cancels the current utterance, if any. It does not wait for playback
// to wind down.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Controller) stopLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.active = false
}

// Speaking reports whether an utterance is in progress.
func (c *Controller) Speaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Voice returns the voice replies are spoken with, once one is selected.
func (c *Controller) Voice() Voice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voice
}

// Close stops speech and waits for all utterances to finish. Speak after
// Close reports context.Canceled.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.stopLocked()
	c.mu.Unlock()
	c.wg.Wait()
}
