package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vango-go/vai-voice/pkg/core"
	"github.com/vango-go/vai-voice/pkg/core/providers/gemini"
	"github.com/vango-go/vai-voice/pkg/gateway/config"
	"github.com/vango-go/vai-voice/pkg/gateway/conversation"
	"github.com/vango-go/vai-voice/pkg/gateway/handlers"
	"github.com/vango-go/vai-voice/pkg/gateway/lifecycle"
	"github.com/vango-go/vai-voice/pkg/gateway/metrics"
	"github.com/vango-go/vai-voice/pkg/gateway/mw"
	"github.com/vango-go/vai-voice/pkg/gateway/ratelimit"
	"github.com/vango-go/vai-voice/pkg/gateway/streams"
)

const metricsNamespace = "voice"

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	model     core.Model
	tracer    trace.Tracer
	lifecycle *lifecycle.Lifecycle
	limiter   *ratelimit.Limiter
	metrics   *metrics.Metrics
	sessions  *conversation.Manager
	streams   *streams.Tracker
}

// Option customizes a Server.
type Option func(*Server)

// WithModel replaces the model resolved from the configuration.
func WithModel(m core.Model) Option {
	return func(s *Server) {
		s.model = m
	}
}

// WithTracer sets the tracer used for conversation spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Server) {
		if t != nil {
			s.tracer = t
		}
	}
}

// New wires the gateway. It fails when the model cannot be resolved or the
// fallback policy file cannot be loaded.
func New(cfg config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		mux:       http.NewServeMux(),
		tracer:    noop.NewTracerProvider().Tracer("voice-gateway"),
		lifecycle: &lifecycle.Lifecycle{},
		limiter: ratelimit.New(ratelimit.Config{
			RPS:                   cfg.LimitRPS,
			Burst:                 cfg.LimitBurst,
			MaxConcurrentRequests: cfg.LimitMaxConcurrentRequests,
			MaxConcurrentStreams:  cfg.LimitMaxConcurrentStreams,
		}),
		metrics: metrics.New(metricsNamespace),
		streams: streams.NewTracker(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.model == nil {
		engine := core.NewEngine(gemini.New(cfg.GeminiAPIKey, gemini.WithHTTPClient(newUpstreamHTTPClient(cfg))))
		model, err := engine.Resolve(cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("resolve model %q: %w", cfg.Model, err)
		}
		s.model = model
	}

	policy := conversation.DefaultPolicy()
	if cfg.FallbackPolicyFile != "" {
		p, err := conversation.LoadPolicy(cfg.FallbackPolicyFile)
		if err != nil {
			return nil, fmt.Errorf("load fallback policy: %w", err)
		}
		policy = p
		logger.Info("loaded fallback policy", "path", cfg.FallbackPolicyFile, "candidates", len(policy.Candidates))
	}

	s.sessions = conversation.NewManager(s.model, conversation.Config{
		MaxOutputTokens: cfg.MaxOutputTokens,
		MinAudioBytes:   cfg.MinAudioBytes,
		RemoteTimeout:   cfg.RemoteTimeout,
		QuotaBackoff:    cfg.QuotaBackoff,
		Policy:          policy,
	},
		conversation.WithLogger(logger),
		conversation.WithTracer(s.tracer),
		conversation.WithObserver(s.metrics),
	)
	s.metrics.TrackSessions(metricsNamespace, s.sessions.Len)

	s.routes()
	return s, nil
}

// newUpstreamHTTPClient bounds connection setup to the model API; the
// per-call deadline comes from the session's remote timeout.
func newUpstreamHTTPClient(cfg config.Config) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: cfg.RemoteTimeout,
		},
	}
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg, Lifecycle: s.lifecycle})
	s.mux.Handle("/metrics", s.metrics.Handler())
	s.mux.Handle("/api/test", handlers.CORSTestHandler{})

	s.mux.Handle("/api/gemini/start", handlers.StartHandler{
		Config:   s.cfg,
		Sessions: s.sessions,
		Logger:   s.logger,
	})
	s.mux.Handle("/api/gemini/process", handlers.ProcessHandler{
		Config:   s.cfg,
		Sessions: s.sessions,
		Logger:   s.logger,
	})
	s.mux.Handle("/api/gemini/interrupt", handlers.InterruptHandler{
		Sessions: s.sessions,
		Logger:   s.logger,
	})
	s.mux.Handle("/api/gemini/test-audio", handlers.TestAudioHandler{
		Config: s.cfg,
		Logger: s.logger,
	})
	s.mux.Handle("/api/gemini/events", handlers.EventsHandler{
		Config:    s.cfg,
		Sessions:  s.sessions,
		Streams:   s.streams,
		Lifecycle: s.lifecycle,
		Observer:  s.metrics,
		Logger:    s.logger,
	})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Metrics(s.metrics, s.routeOf, h)
	h = mw.RateLimit(s.cfg, s.limiter, s.metrics, h)
	h = mw.Session(h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

func (s *Server) routeOf(r *http.Request) string {
	_, pattern := s.mux.Handler(r)
	return pattern
}

// Sessions exposes the conversation manager.
func (s *Server) Sessions() *conversation.Manager {
	return s.sessions
}

func (s *Server) SetDraining(draining bool) {
	s.lifecycle.SetDraining(draining)
}

// NoticeEventStreamsDraining tells every open event stream that the gateway
// is shutting down.
func (s *Server) NoticeEventStreamsDraining() int {
	return s.streams.NoticeAll("draining", "gateway is shutting down")
}

func (s *Server) CancelEventStreams() int {
	return s.streams.CancelAll()
}

func (s *Server) WaitEventStreams(ctx context.Context) bool {
	return s.streams.Wait(ctx)
}

// InterruptAll cancels in-flight remote calls of every session.
func (s *Server) InterruptAll() int {
	return s.sessions.InterruptAll()
}

// RunSweeper drops idle sessions every interval until ctx ends.
func (s *Server) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sessions.Sweep()
		}
	}
}
