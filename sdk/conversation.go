package vai

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-go/vai-voice/pkg/core"
)

// InterruptResult is the gateway's answer to an interrupt.
type InterruptResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// AudioInfo describes an upload as the gateway received it.
type AudioInfo struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	MIMEType   string `json:"mimetype"`
	DataLength int    `json:"dataLength"`
}

// Start opens a fresh dialogue for the session, replacing any previous one.
func (c *Client) Start(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "vai.start", c.spanAttrs())
	defer span.End()

	var resp struct {
		Status string `json:"status"`
	}
	err := c.postJSON(ctx, "/api/gemini/start", nil, &resp)
	endSpan(span, err)
	return err
}

// ProcessText submits a typed turn.
func (c *Client) ProcessText(ctx context.Context, text string) (core.Reply, error) {
	if strings.TrimSpace(text) == "" {
		return core.Reply{}, core.NewInvalidRequestError("text must not be empty")
	}
	ctx, span := c.tracer.Start(ctx, "vai.process_text", c.spanAttrs())
	defer span.End()

	var reply core.Reply
	err := c.postJSON(ctx, "/api/gemini/process", map[string]string{"text": text}, &reply)
	endSpan(span, err)
	if err != nil {
		return core.Reply{}, err
	}
	span.SetAttributes(attribute.String("reply.status", string(reply.Status)))
	return reply, nil
}

// ProcessAudio submits a recorded turn.
func (c *Client) ProcessAudio(ctx context.Context, clip core.Clip) (core.Reply, error) {
	ctx, span := c.tracer.Start(ctx, "vai.process_audio", c.spanAttrs(
		attribute.Int("audio.bytes", clip.Size()),
		attribute.String("audio.mime_type", clip.MIMEType),
	))
	defer span.End()

	var reply core.Reply
	err := c.postClip(ctx, "/api/gemini/process", clip, &reply)
	endSpan(span, err)
	if err != nil {
		return core.Reply{}, err
	}
	span.SetAttributes(attribute.String("reply.status", string(reply.Status)))
	return reply, nil
}

// Interrupt asks the gateway to cancel the session's in-flight call.
// Callers bound it with a context deadline; it is advisory.
func (c *Client) Interrupt(ctx context.Context) (InterruptResult, error) {
	ctx, span := c.tracer.Start(ctx, "vai.interrupt", c.spanAttrs())
	defer span.End()

	var res InterruptResult
	err := c.postJSON(ctx, "/api/gemini/interrupt", nil, &res)
	endSpan(span, err)
	return res, err
}

// TestAudio uploads clip to the diagnostic endpoint, which echoes what it
// received without contacting the model.
func (c *Client) TestAudio(ctx context.Context, clip core.Clip) (AudioInfo, error) {
	var resp struct {
		Status   string    `json:"status"`
		FileInfo AudioInfo `json:"fileInfo"`
	}
	if err := c.postClip(ctx, "/api/gemini/test-audio", clip, &resp); err != nil {
		return AudioInfo{}, err
	}
	return resp.FileInfo, nil
}

func (c *Client) spanAttrs(extra ...attribute.KeyValue) trace.SpanStartOption {
	return trace.WithAttributes(append([]attribute.KeyValue{attribute.String("session.id", c.sessionID)}, extra...)...)
}

func endSpan(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("error.type", string(core.TypeOf(err))))
}
