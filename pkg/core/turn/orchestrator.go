package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vango-go/vai-voice/pkg/core"
	"github.com/vango-go/vai-voice/pkg/core/backoff"
	"github.com/vango-go/vai-voice/pkg/core/voice/capture"
)

// State is the orchestrator's position in a turn.
type State int

const (
	Idle State = iota
	Recording
	Submitting
	Speaking
	RateLimited
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Submitting:
		return "submitting"
	case Speaking:
		return "speaking"
	case RateLimited:
		return "rate_limited"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Turn is one transcript entry. Turns are never modified after append.
type Turn struct {
	ID        string
	Speaker   core.Speaker
	Content   string
	Timestamp time.Time
}

// Transcript labels and messages shown to the user.
const (
	AudioInputLabel   = "🎤 User audio input"
	TextInputPrefix   = "💬 "
	ErrorTurnPrefix   = "❌ Error: "
	InterruptedNotice = "🔄 AI interrupted - you can now speak or type your new input"

	StartFailedBanner = "Failed to start conversation with AI"
)

var (
	// ErrBusy is returned when a recording or submission is already in flight.
	ErrBusy = errors.New("turn: another turn is in progress")
	// ErrNotRecording is returned by StopCapture outside Recording.
	ErrNotRecording = errors.New("turn: not recording")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("turn: orchestrator closed")
)

// Backend is the conversation gateway.
type Backend interface {
	Start(ctx context.Context) error
	ProcessText(ctx context.Context, text string) (core.Reply, error)
	ProcessAudio(ctx context.Context, clip core.Clip) (core.Reply, error)
	Interrupt(ctx context.Context) error
	TestAudio(ctx context.Context, clip core.Clip) (string, error)
}

// Recorder captures one clip at a time.
type Recorder interface {
	Start() error
	Stop() (core.Clip, error)
	Abort()
	Status() capture.Status
}

// Speaker plays replies aloud. Speak replaces any current utterance and
// calls done once when it ends.
type Speaker interface {
	Speak(text string, done func(error))
	Stop()
}

const (
	defaultInterruptTimeout  = 5 * time.Second
	defaultTestAudioDuration = 3 * time.Second
)

// Orchestrator runs the client turn state machine.
type Orchestrator struct {
	backend  Backend
	recorder Recorder
	speaker  Speaker
	logger   *slog.Logger
	guard    *backoff.Guard
	now      func() time.Time
	events   *emitter

	window            time.Duration
	clock             backoff.Clock
	interruptTimeout  time.Duration
	tickInterval      time.Duration
	testAudioDuration time.Duration

	mu            sync.Mutex
	state         State
	transcript    []Turn
	banner        string
	speechEnabled bool
	closed        bool

	submitGen    uint64
	cancelSubmit context.CancelFunc
	speakGen     uint64
	backoffGen   uint64
	stopBackoff  context.CancelFunc
	stopTicker   context.CancelFunc
	interrupting chan struct{}

	wg sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock sets the clock used by the rate-limit window and turn timestamps.
func WithClock(c backoff.Clock) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithBackoffWindow sets how long submissions are suppressed after a quota
// error.
func WithBackoffWindow(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.window = d
	}
}

// WithInterruptTimeout bounds the background gateway interrupt.
func WithInterruptTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.interruptTimeout = d
		}
	}
}

// WithTickInterval sets how often countdown and recording ticks fire.
func WithTickInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.tickInterval = d
		}
	}
}

// WithTestAudioDuration sets how long TestAudio records.
func WithTestAudioDuration(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.testAudioDuration = d
		}
	}
}

// New creates an orchestrator. recorder and speaker may be nil when the
// machine has no microphone or synthesizer.
func New(backend Backend, recorder Recorder, speaker Speaker, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:           backend,
		recorder:          recorder,
		speaker:           speaker,
		logger:            slog.Default(),
		clock:             backoff.SystemClock,
		interruptTimeout:  defaultInterruptTimeout,
		tickInterval:      time.Second,
		testAudioDuration: defaultTestAudioDuration,
		speechEnabled:     speaker != nil,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.speaker == nil {
		o.speaker = silentSpeaker{}
	}
	o.guard = backoff.NewGuard(o.window, o.clock)
	o.now = o.clock.Now
	o.events = newEmitter()
	return o
}

// OnEvent sets the handler for state, transcript and banner notifications.
// Events are delivered in order on a dedicated goroutine.
func (o *Orchestrator) OnEvent(fn func(Event)) {
	o.events.setHandler(fn)
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Transcript returns a copy of the turns so far.
func (o *Orchestrator) Transcript() []Turn {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Turn, len(o.transcript))
	copy(out, o.transcript)
	return out
}

// Banner returns the current error or notice line, if any.
func (o *Orchestrator) Banner() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.banner
}

// RemainingBackoff returns the whole seconds left in the rate-limit window.
func (o *Orchestrator) RemainingBackoff() int {
	return o.guard.Remaining()
}

// SpeechEnabled reports whether replies are spoken.
func (o *Orchestrator) SpeechEnabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.speechEnabled
}

// Start opens the conversation on the gateway. Failure is shown as a banner
// and returned; turns still start the conversation lazily.
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := o.backend.Start(ctx); err != nil {
		o.logger.Warn("start conversation failed", "error", err)
		o.mu.Lock()
		o.setBannerLocked(StartFailedBanner)
		o.mu.Unlock()
		return core.Classify(err)
	}
	return nil
}

// StartCapture begins recording a turn.
func (o *Orchestrator) StartCapture() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.admitLocked(); err != nil {
		return err
	}
	if o.recorder == nil {
		err := core.NewDeviceError(capture.MicrophoneErrorMessage, errors.New("no capture device"))
		o.setBannerLocked(err.Message)
		return err
	}
	if err := o.recorder.Start(); err != nil {
		ce := core.Classify(err)
		o.setBannerLocked(ce.Message)
		return ce
	}
	o.setBannerLocked("")
	o.setStateLocked(Recording)
	o.startTickerLocked()
	return nil
}

// StopCapture ends the recording and submits it. It blocks until the turn
// is answered, fails or is interrupted. A clip below the minimum duration
// returns a too-short error without contacting the gateway.
func (o *Orchestrator) StopCapture(ctx context.Context) error {
	o.mu.Lock()
	if o.state != Recording {
		o.mu.Unlock()
		return ErrNotRecording
	}
	o.stopTickerLocked()
	clip, err := o.recorder.Stop()
	if err != nil {
		ce := core.Classify(err)
		o.setBannerLocked(ce.Message)
		o.setStateLocked(Idle)
		o.mu.Unlock()
		return ce
	}
	subCtx, gen := o.beginSubmitLocked(ctx)
	pending := o.interrupting
	o.mu.Unlock()

	awaitInterrupt(subCtx, pending)
	reply, err := o.backend.ProcessAudio(subCtx, clip)
	return o.finishSubmit(gen, AudioInputLabel, "Error processing audio: ", reply, err)
}

// CancelCapture discards the recording in progress.
func (o *Orchestrator) CancelCapture() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != Recording {
		return
	}
	o.stopTickerLocked()
	o.recorder.Abort()
	o.setStateLocked(Idle)
}

// SendText submits a typed turn. It blocks until the turn is answered,
// fails or is interrupted.
func (o *Orchestrator) SendText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return core.NewInvalidRequestError("text must not be empty")
	}

	o.mu.Lock()
	if err := o.admitLocked(); err != nil {
		o.mu.Unlock()
		return err
	}
	subCtx, gen := o.beginSubmitLocked(ctx)
	pending := o.interrupting
	o.mu.Unlock()

	awaitInterrupt(subCtx, pending)
	reply, err := o.backend.ProcessText(subCtx, text)
	return o.finishSubmit(gen, TextInputPrefix+text, "Error sending message: ", reply, err)
}

// Interrupt abandons the pending submission or current speech and returns
// to Idle. The gateway is told in the background; the next submission is
// held until that request has completed or timed out. It reports whether
// there was anything to interrupt.
func (o *Orchestrator) Interrupt() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != Submitting && o.state != Speaking {
		return false
	}
	o.stopSpeechLocked()
	if o.cancelSubmit != nil {
		o.cancelSubmit()
		o.cancelSubmit = nil
	}
	o.submitGen++
	o.appendLocked(core.SpeakerSystem, InterruptedNotice)
	o.setStateLocked(Idle)

	if !o.closed {
		done := make(chan struct{})
		prev := o.interrupting
		o.interrupting = done
		o.wg.Add(1)
		go o.interruptRemote(prev, done)
	}
	return true
}

func (o *Orchestrator) interruptRemote(prev <-chan struct{}, done chan struct{}) {
	defer o.wg.Done()
	defer close(done)
	if prev != nil {
		<-prev
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.interruptTimeout)
	defer cancel()
	if err := o.backend.Interrupt(ctx); err != nil {
		o.logger.Warn("gateway interrupt failed", "error", err)
	}
}

// awaitInterrupt holds a submission until the gateway interrupt sent before
// it has completed, so the interrupt cannot cancel the new turn.
func awaitInterrupt(ctx context.Context, pending <-chan struct{}) {
	if pending == nil {
		return
	}
	select {
	case <-pending:
	case <-ctx.Done():
	}
}

// Clear empties the transcript, clears the banner and stops speech.
func (o *Orchestrator) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.stopSpeechLocked()
	if o.state == Speaking {
		o.setStateLocked(Idle)
	}
	o.transcript = nil
	o.setBannerLocked("")
	o.events.push(Event{Kind: EventCleared})
}

// SetSpeechEnabled turns spoken replies on or off. Disabling stops the
// current utterance.
func (o *Orchestrator) SetSpeechEnabled(enabled bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.speechEnabled = enabled
	if enabled {
		return
	}
	o.stopSpeechLocked()
	if o.state == Speaking {
		o.setStateLocked(Idle)
	}
}

// TestAudio records a short clip and sends it to the gateway's diagnostic
// endpoint. It does not touch the transcript.
func (o *Orchestrator) TestAudio(ctx context.Context) (string, error) {
	if err := o.StartCapture(); err != nil {
		return "", err
	}

	timer := time.NewTimer(o.testAudioDuration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		o.CancelCapture()
		return "", core.Classify(ctx.Err())
	case <-timer.C:
	}

	o.mu.Lock()
	if o.state != Recording {
		o.mu.Unlock()
		return "", ErrNotRecording
	}
	o.stopTickerLocked()
	clip, err := o.recorder.Stop()
	o.setStateLocked(Idle)
	o.mu.Unlock()
	if err != nil {
		return "", core.Classify(err)
	}

	report, err := o.backend.TestAudio(ctx, clip)
	if err != nil {
		return "", core.Classify(err)
	}
	return report, nil
}

// Close stops speech, abandons any turn in flight and waits for background
// work. Event handlers must not call Close.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.stopSpeechLocked()
	if o.cancelSubmit != nil {
		o.cancelSubmit()
		o.cancelSubmit = nil
	}
	o.submitGen++
	if o.state == Recording {
		o.recorder.Abort()
	}
	o.stopTickerLocked()
	if o.stopBackoff != nil {
		o.stopBackoff()
		o.stopBackoff = nil
	}
	o.mu.Unlock()

	o.wg.Wait()
	o.events.close()
}

// admitLocked checks that a new recording or submission may begin. Speech
// in progress is stopped; an expired rate-limit window is cleared.
func (o *Orchestrator) admitLocked() error {
	if o.closed {
		return ErrClosed
	}
	switch o.state {
	case Recording, Submitting:
		return ErrBusy
	case RateLimited:
		if err := o.guard.Check(); err != nil {
			return err
		}
		o.endBackoffLocked()
	case Speaking:
		o.stopSpeechLocked()
		o.setStateLocked(Idle)
	}
	return nil
}

func (o *Orchestrator) beginSubmitLocked(ctx context.Context) (context.Context, uint64) {
	subCtx, cancel := context.WithCancel(ctx)
	o.submitGen++
	o.cancelSubmit = cancel
	o.setStateLocked(Submitting)
	return subCtx, o.submitGen
}

// finishSubmit applies the outcome of submission gen. A submission that was
// interrupted or abandoned meanwhile changes nothing.
func (o *Orchestrator) finishSubmit(gen uint64, userContent, bannerPrefix string, reply core.Reply, err error) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if gen != o.submitGen || o.state != Submitting {
		return core.Classify(context.Canceled)
	}
	if o.cancelSubmit != nil {
		o.cancelSubmit()
		o.cancelSubmit = nil
	}

	if err != nil {
		ce := core.Classify(err)
		o.logger.Warn("turn failed", "type", ce.Type, "error", err)
		o.appendLocked(core.SpeakerUser, userContent)
		o.appendLocked(core.SpeakerSystem, ErrorTurnPrefix+ce.Message)
		if ce.Type == core.ErrQuota {
			o.startBackoffLocked()
			return ce
		}
		o.setBannerLocked(bannerPrefix + ce.Message)
		o.setStateLocked(Idle)
		return ce
	}

	o.setBannerLocked("")
	o.appendLocked(core.SpeakerUser, userContent)
	o.appendLocked(core.SpeakerAI, reply.Text)
	if !o.speechEnabled || strings.TrimSpace(reply.Text) == "" {
		o.setStateLocked(Idle)
		return nil
	}
	o.speakGen++
	speakGen := o.speakGen
	o.setStateLocked(Speaking)
	o.speaker.Speak(reply.Text, func(error) { o.speechEnded(speakGen) })
	return nil
}

func (o *Orchestrator) speechEnded(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen == o.speakGen && o.state == Speaking {
		o.setStateLocked(Idle)
	}
}

func (o *Orchestrator) stopSpeechLocked() {
	o.speakGen++
	o.speaker.Stop()
}

func (o *Orchestrator) startBackoffLocked() {
	o.guard.Trip()
	o.setBannerLocked(backoff.Banner(o.guard.Remaining()))
	o.setStateLocked(RateLimited)

	if o.stopBackoff != nil {
		o.stopBackoff()
	}
	ctx, cancel := context.WithCancel(context.Background())
	o.stopBackoff = cancel
	o.backoffGen++
	gen := o.backoffGen

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		backoff.Countdown(ctx, o.guard, o.tickInterval, func(left int) {
			if left > 0 {
				o.events.push(Event{Kind: EventCountdown, Seconds: left})
				return
			}
			o.mu.Lock()
			if gen == o.backoffGen && o.state == RateLimited {
				o.endBackoffLocked()
			}
			o.mu.Unlock()
		})
	}()
}

func (o *Orchestrator) endBackoffLocked() {
	if o.stopBackoff != nil {
		o.stopBackoff()
		o.stopBackoff = nil
	}
	o.backoffGen++
	o.events.push(Event{Kind: EventCountdown, Seconds: 0})
	o.setBannerLocked("")
	o.setStateLocked(Idle)
}

func (o *Orchestrator) startTickerLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	o.stopTicker = cancel
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(o.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				o.events.push(Event{Kind: EventRecording, Seconds: o.recorder.Status().ElapsedSeconds()})
			}
		}
	}()
}

func (o *Orchestrator) stopTickerLocked() {
	if o.stopTicker != nil {
		o.stopTicker()
		o.stopTicker = nil
	}
}

func (o *Orchestrator) setStateLocked(s State) {
	if o.state == s {
		return
	}
	o.logger.Debug("turn state", "from", o.state.String(), "to", s.String())
	o.state = s
	o.events.push(Event{Kind: EventState, State: s})
}

func (o *Orchestrator) setBannerLocked(msg string) {
	if o.banner == msg {
		return
	}
	o.banner = msg
	o.events.push(Event{Kind: EventBanner, Banner: msg})
}

func (o *Orchestrator) appendLocked(speaker core.Speaker, content string) {
	t := Turn{
		ID:        uuid.NewString(),
		Speaker:   speaker,
		Content:   content,
		Timestamp: o.now(),
	}
	o.transcript = append(o.transcript, t)
	o.events.push(Event{Kind: EventTurn, Turn: t})
}

type silentSpeaker struct{}

func (silentSpeaker) Speak(_ string, done func(error)) {
	if done != nil {
		go done(nil)
	}
}

func (silentSpeaker) Stop() {}
