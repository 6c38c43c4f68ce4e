package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-go/vai-voice/pkg/core"
	"github.com/vango-go/vai-voice/pkg/core/backoff"
)

// Canned replies produced without the remote model.
const (
	TooShortText = "The audio recording seems too short or empty. Please try recording again and speak clearly for at least 2-3 seconds."

	ProcessingFailedText = "I'm having trouble understanding your audio. Please try:\n" +
		"1. Speaking more clearly and slowly\n" +
		"2. Reducing background noise\n" +
		"3. Speaking closer to the microphone\n" +
		"4. Using the text input instead"

	InterruptedMessage = "Conversation interrupted. Ready for new input."
)

const (
	DefaultMinAudioBytes = 1000
	DefaultRemoteTimeout = 30 * time.Second
)

// Config tunes every session created by a Manager.
type Config struct {
	MaxOutputTokens int
	MinAudioBytes   int
	RemoteTimeout   time.Duration
	QuotaBackoff    time.Duration
	Policy          Policy
}

func (c Config) withDefaults() Config {
	if c.MinAudioBytes <= 0 {
		c.MinAudioBytes = DefaultMinAudioBytes
	}
	if c.RemoteTimeout <= 0 {
		c.RemoteTimeout = DefaultRemoteTimeout
	}
	if c.QuotaBackoff <= 0 {
		c.QuotaBackoff = backoff.DefaultWindow
	}
	c.Policy = c.Policy.withDefaults()
	return c
}

// InterruptResult is returned by Session.Interrupt.
type InterruptResult struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Canceled int    `json:"-"`
}

// Session is one client's conversation with the remote model.
type Session struct {
	id       string
	model    core.Model
	cfg      Config
	logger   *slog.Logger
	tracer   trace.Tracer
	observer Observer
	hub      *Hub
	guard    *backoff.Guard
	clock    backoff.Clock

	// sem serializes dialogue submissions; it holds at most one token.
	sem      chan struct{}
	dialogue core.Dialogue

	inflightMu sync.Mutex
	inflight   map[uint64]context.CancelFunc
	nextCall   uint64
	lastActive time.Time
}

func newSession(id string, m *Manager) *Session {
	return &Session{
		id:         id,
		model:      m.model,
		cfg:        m.cfg,
		logger:     m.logger.With("session_id", id),
		tracer:     m.tracer,
		observer:   m.observer,
		hub:        m.hub,
		guard:      backoff.NewGuard(m.cfg.QuotaBackoff, m.clock),
		clock:      m.clock,
		sem:        make(chan struct{}, 1),
		inflight:   make(map[uint64]context.CancelFunc),
		lastActive: m.clock.Now(),
	}
}

// ID returns the session key.
func (s *Session) ID() string {
	return s.id
}

// Guard exposes the session's backoff window.
func (s *Session) Guard() *backoff.Guard {
	return s.guard
}

// Start probes the model and opens a fresh dialogue, replacing any previous one.
func (s *Session) Start(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "conversation.start", s.spanAttrs())
	defer span.End()

	err := s.submit(ctx, func(ctx context.Context) error {
		return s.startLocked(ctx)
	})
	if err != nil {
		endSpan(span, err)
		return err
	}
	s.publish(Event{Type: EventStarted, Status: "conversation_started"})
	return nil
}

// ProcessText sends a text turn, opening the dialogue if needed.
func (s *Session) ProcessText(ctx context.Context, text string) (core.Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return core.Reply{}, core.NewInvalidRequestError("text must not be empty")
	}

	ctx, span := s.tracer.Start(ctx, "conversation.process_text", s.spanAttrs())
	defer span.End()

	var reply core.Reply
	err := s.submit(ctx, func(ctx context.Context) error {
		if err := s.ensureDialogueLocked(ctx); err != nil {
			return err
		}
		var out string
		err := s.remote(ctx, "send_text", func(ctx context.Context) error {
			var err error
			out, err = s.dialogue.Send(ctx, core.TextPart(text))
			return err
		})
		if err != nil {
			return err
		}
		reply = core.Reply{Text: out, Status: core.StatusSuccess}
		return nil
	})
	if err != nil {
		endSpan(span, err)
		return core.Reply{}, err
	}
	s.observer.Turn("text", reply.Status)
	s.publish(Event{Type: EventReply, Status: string(reply.Status)})
	return reply, nil
}

// ProcessAudio sends an audio turn through format negotiation.
func (s *Session) ProcessAudio(ctx context.Context, clip core.Clip) (core.Reply, error) {
	if clip.Size() < s.cfg.MinAudioBytes {
		s.logger.Info("audio too short", "bytes", clip.Size(), "min_bytes", s.cfg.MinAudioBytes)
		reply := core.Reply{Text: TooShortText, Status: core.StatusAudioTooShort}
		s.observer.Turn("audio", reply.Status)
		s.publish(Event{Type: EventReply, Status: string(reply.Status)})
		return reply, nil
	}

	ctx, span := s.tracer.Start(ctx, "conversation.process_audio", s.spanAttrs(
		attribute.Int("audio.bytes", clip.Size()),
		attribute.String("audio.declared_mime_type", clip.MIMEType),
	))
	defer span.End()

	var reply core.Reply
	err := s.submit(ctx, func(ctx context.Context) error {
		if err := s.ensureDialogueLocked(ctx); err != nil {
			return err
		}
		var err error
		reply, err = s.negotiateLocked(ctx, clip)
		return err
	})
	if err != nil {
		endSpan(span, err)
		return core.Reply{}, err
	}
	span.SetAttributes(attribute.String("reply.status", string(reply.Status)))
	s.observer.Turn("audio", reply.Status)
	s.publish(Event{Type: EventReply, Status: string(reply.Status)})
	return reply, nil
}

// Interrupt cancels the calls of the session that were in flight when it
// arrived. Calls registered afterwards run normally. It does not wait for
// the submission lock and always succeeds.
func (s *Session) Interrupt(ctx context.Context) InterruptResult {
	s.inflightMu.Lock()
	upTo := s.nextCall
	s.inflightMu.Unlock()

	n := s.cancelInflight(upTo)
	s.logger.Info("conversation interrupted", "canceled_calls", n)
	s.publish(Event{Type: EventInterrupted, Status: "interrupted", Message: InterruptedMessage})
	return InterruptResult{Status: "interrupted", Message: InterruptedMessage, Canceled: n}
}

// cancelInflight cancels the in-flight calls with ids up to upTo.
func (s *Session) cancelInflight(upTo uint64) int {
	s.inflightMu.Lock()
	cancels := make([]context.CancelFunc, 0, len(s.inflight))
	for id, cancel := range s.inflight {
		if id <= upTo {
			cancels = append(cancels, cancel)
		}
	}
	s.inflightMu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	return len(cancels)
}

// Busy reports whether any call is in flight.
func (s *Session) Busy() bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	return len(s.inflight) > 0
}

func (s *Session) idleSince() time.Time {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	return s.lastActive
}

func (s *Session) negotiateLocked(ctx context.Context, clip core.Clip) (core.Reply, error) {
	policy := s.cfg.Policy
	for i, mimeType := range policy.Order(clip.MIMEType) {
		attemptCtx, span := s.tracer.Start(ctx, "conversation.format_attempt", trace.WithAttributes(
			attribute.String("audio.mime_type", mimeType),
			attribute.Int("attempt", i+1),
		))

		var out string
		err := s.remote(attemptCtx, "send_audio", func(ctx context.Context) error {
			var err error
			out, err = s.dialogue.Send(ctx, core.AudioPart(clip.Data, mimeType), core.TextPart(policy.Instruction))
			return err
		})
		if err != nil {
			endSpan(span, err)
			span.End()
			s.observer.FormatAttempt(mimeType, OutcomeFailed)
			switch core.TypeOf(err) {
			case core.ErrQuota, core.ErrAuth, core.ErrInterrupted, core.ErrTimeout:
				return core.Reply{}, err
			}
			s.logger.Warn("audio attempt failed", "mime_type", mimeType, "attempt", i+1, "error", err)
			continue
		}

		accepted := policy.Accept(out)
		span.SetAttributes(attribute.Bool("reply.accepted", accepted))
		span.End()
		s.publish(Event{Type: EventAttempt, MIMEType: mimeType, Accepted: &accepted})
		if accepted {
			s.observer.FormatAttempt(mimeType, OutcomeAccepted)
			s.logger.Info("audio accepted", "mime_type", mimeType, "attempt", i+1)
			return core.Reply{Text: out, Status: core.StatusSuccess}, nil
		}
		s.observer.FormatAttempt(mimeType, OutcomeRejected)
		s.logger.Info("audio reply rejected", "mime_type", mimeType, "attempt", i+1, "reply_len", len(out))
	}
	s.logger.Warn("audio negotiation exhausted", "bytes", clip.Size())
	return core.Reply{Text: ProcessingFailedText, Status: core.StatusAudioProcessingFailed}, nil
}

func (s *Session) ensureDialogueLocked(ctx context.Context) error {
	if s.dialogue != nil {
		return nil
	}
	return s.startLocked(ctx)
}

func (s *Session) startLocked(ctx context.Context) error {
	if err := s.remote(ctx, "probe", s.model.Probe); err != nil {
		return err
	}
	var d core.Dialogue
	err := s.remote(ctx, "open_dialogue", func(ctx context.Context) error {
		var err error
		d, err = s.model.OpenDialogue(ctx, core.DialogueConfig{MaxOutputTokens: s.cfg.MaxOutputTokens})
		return err
	})
	if err != nil {
		return err
	}
	s.dialogue = d
	s.logger.Info("dialogue opened", "model", s.model.Name())
	return nil
}

// submit runs fn while holding the submission lock, under a context that
// Interrupt can cancel. Local backoff is checked before anything else.
func (s *Session) submit(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := s.guard.Check(); err != nil {
		s.logger.Info("submission rejected by backoff", "retry_after", s.guard.Remaining())
		return err
	}

	ctx, done := s.track(ctx)
	defer done()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return interruptedError(ctx.Err())
	}
	defer func() { <-s.sem }()

	err := fn(ctx)
	if err == nil {
		return nil
	}
	if s.guard.Observe(err) {
		s.observer.Throttled()
		s.logger.Warn("remote throttled, backing off", "window", s.guard.Window())
		s.publish(Event{Type: EventRateLimited, Message: core.QuotaMessage, RetryAfter: s.guard.Remaining()})
		return err
	}
	if core.TypeOf(err) != core.ErrInterrupted {
		s.publish(Event{Type: EventError, Status: string(core.TypeOf(err)), Message: err.Error()})
	}
	return err
}

// remote bounds one remote call by the configured timeout.
func (s *Session) remote(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.RemoteTimeout)
	defer cancel()

	start := time.Now()
	err := fn(callCtx)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		err = interruptedError(err)
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		err = &core.Error{
			Type:    core.ErrTimeout,
			Message: fmt.Sprintf("remote call timed out after %s", s.cfg.RemoteTimeout),
			Err:     err,
		}
	default:
		err = core.Classify(err)
	}
	s.observer.RemoteCall(op, core.TypeOf(err), time.Since(start))
	if err != nil {
		s.logger.Debug("remote call failed", "op", op, "error", err)
	}
	return err
}

func (s *Session) track(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	s.inflightMu.Lock()
	s.nextCall++
	id := s.nextCall
	s.inflight[id] = cancel
	s.lastActive = s.clock.Now()
	s.inflightMu.Unlock()

	return ctx, func() {
		s.inflightMu.Lock()
		delete(s.inflight, id)
		s.lastActive = s.clock.Now()
		s.inflightMu.Unlock()
		cancel()
	}
}

func (s *Session) publish(ev Event) {
	ev.SessionID = s.id
	s.hub.Publish(ev)
}

func (s *Session) spanAttrs(extra ...attribute.KeyValue) trace.SpanStartOption {
	return trace.WithAttributes(append([]attribute.KeyValue{attribute.String("session.id", s.id)}, extra...)...)
}

func interruptedError(err error) error {
	return &core.Error{Type: core.ErrInterrupted, Message: "turn interrupted", Code: "cancelled", Err: err}
}

func endSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
