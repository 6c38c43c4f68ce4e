// Package metrics exposes gateway and conversation metrics in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-go/vai-voice/pkg/core"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP surface
	RequestsTotal       *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	InboundLimitedTotal *prometheus.CounterVec

	// Remote model
	RemoteCallsTotal   *prometheus.CounterVec
	RemoteCallDuration *prometheus.HistogramVec
	ThrottledTotal     prometheus.Counter

	// Turns
	TurnsTotal          *prometheus.CounterVec
	FormatAttemptsTotal *prometheus.CounterVec

	// Event streams
	EventStreamsActive prometheus.Gauge
}

// New creates a Metrics instance with every collector registered on a
// private registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "voice"
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"route", "method", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"route"}),
		InboundLimitedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_rate_limited_total",
			Help:      "Requests rejected by the per-session inbound limiter",
		}, []string{"kind"}),
		RemoteCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_calls_total",
			Help:      "Calls to the remote model by operation and result",
		}, []string{"op", "result"}),
		RemoteCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_call_duration_seconds",
			Help:      "Remote model call duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}, []string{"op"}),
		ThrottledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_throttled_total",
			Help:      "Quota errors that tripped a session backoff window",
		}),
		TurnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed turns by input kind and reply status",
		}, []string{"kind", "status"}),
		FormatAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_format_attempts_total",
			Help:      "Audio format negotiation attempts by MIME type and outcome",
		}, []string{"mime_type", "outcome"}),
		EventStreamsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_streams_active",
			Help:      "Open session event WebSocket streams",
		}),
	}

	registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.InboundLimitedTotal,
		m.RemoteCallsTotal,
		m.RemoteCallDuration,
		m.ThrottledTotal,
		m.TurnsTotal,
		m.FormatAttemptsTotal,
		m.EventStreamsActive,
	)
	return m
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// TrackSessions registers a gauge reporting the live session count.
func (m *Metrics) TrackSessions(namespace string, count func() int) {
	if namespace == "" {
		namespace = "voice"
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Conversation sessions held in memory",
	}, func() float64 { return float64(count()) }))
}

// ObserveRequest records a completed HTTP request.
func (m *Metrics) ObserveRequest(route, method string, status int, d time.Duration) {
	m.RequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// InboundLimited records a limiter rejection.
func (m *Metrics) InboundLimited(kind string) {
	m.InboundLimitedTotal.WithLabelValues(kind).Inc()
}

// RemoteCall records one remote model call. An empty errType is success.
func (m *Metrics) RemoteCall(op string, errType core.ErrorType, d time.Duration) {
	result := "ok"
	if errType != "" {
		result = string(errType)
	}
	m.RemoteCallsTotal.WithLabelValues(op, result).Inc()
	m.RemoteCallDuration.WithLabelValues(op).Observe(d.Seconds())
}

// FormatAttempt records one audio negotiation attempt.
func (m *Metrics) FormatAttempt(mimeType, outcome string) {
	m.FormatAttemptsTotal.WithLabelValues(mimeLabel(mimeType), outcome).Inc()
}

// Turn records a completed turn.
func (m *Metrics) Turn(kind string, status core.ReplyStatus) {
	m.TurnsTotal.WithLabelValues(kind, string(status)).Inc()
}

// Throttled records a tripped backoff window.
func (m *Metrics) Throttled() {
	m.ThrottledTotal.Inc()
}

// StreamOpened and StreamClosed track event stream lifetimes.
func (m *Metrics) StreamOpened() { m.EventStreamsActive.Inc() }

func (m *Metrics) StreamClosed() { m.EventStreamsActive.Dec() }

var knownMIMETypes = map[string]struct{}{
	"audio/webm": {},
	"audio/mp4":  {},
	"audio/mpeg": {},
	"audio/wav":  {},
	"audio/ogg":  {},
}

// mimeLabel keeps label cardinality bounded: declared types outside the
// built-in candidate list are grouped.
func mimeLabel(mimeType string) string {
	if _, ok := knownMIMETypes[mimeType]; ok {
		return mimeType
	}
	return "other"
}
