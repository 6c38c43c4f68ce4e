package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vango-go/vai-voice/pkg/core"
	"github.com/vango-go/vai-voice/pkg/gateway/apierror"
	"github.com/vango-go/vai-voice/pkg/gateway/config"
	"github.com/vango-go/vai-voice/pkg/gateway/conversation"
	"github.com/vango-go/vai-voice/pkg/gateway/mw"
)

// Route details attached to conversation failures.
const (
	startFailedDetails     = "Failed to start conversation with Gemini"
	processFailedDetails   = "Failed to process input with Gemini"
	interruptFailedDetails = "Failed to interrupt conversation"
)

// StartHandler handles POST /api/gemini/start.
type StartHandler struct {
	Config   config.Config
	Sessions *conversation.Manager
	Logger   *slog.Logger
}

func (h StartHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, r, http.MethodPost)
		return
	}
	ctx, cancel := handlerContext(r, h.Config)
	defer cancel()

	sess, err := h.Sessions.Session(mw.SessionIDFrom(ctx))
	if err != nil {
		writeConversationError(w, r, err, startFailedDetails)
		return
	}
	if err := sess.Start(ctx); err != nil {
		logger(h.Logger).Error("start conversation failed", "session_id", sess.ID(), "request_id", requestIDFrom(r), "error", err)
		writeConversationError(w, r, err, startFailedDetails)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "conversation_started"})
}

// ProcessHandler handles POST /api/gemini/process with either text or audio.
type ProcessHandler struct {
	Config   config.Config
	Sessions *conversation.Manager
	Logger   *slog.Logger
}

func (h ProcessHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, r, http.MethodPost)
		return
	}
	log := logger(h.Logger)

	limitBody(w, r, h.Config.MaxUploadBytes)
	in, err := readTurnInput(r, h.Config.MaxUploadBytes)
	if err != nil {
		var coreErr *core.Error
		if !errors.As(err, &coreErr) {
			coreErr = core.NewInvalidRequestError(err.Error())
		}
		writeCoreErrorJSON(w, r, coreErr, statusForInputError(coreErr))
		return
	}

	ctx, cancel := handlerContext(r, h.Config)
	defer cancel()
	sess, err := h.Sessions.Session(mw.SessionIDFrom(ctx))
	if err != nil {
		writeConversationError(w, r, err, processFailedDetails)
		return
	}

	var reply core.Reply
	switch {
	case strings.TrimSpace(in.Text) != "":
		log.Info("processing text input", "session_id", sess.ID(), "chars", len(in.Text))
		reply, err = sess.ProcessText(ctx, in.Text)
	case in.Audio != nil:
		log.Info("processing audio input",
			"session_id", sess.ID(),
			"name", in.Audio.Name,
			"bytes", in.Audio.Size(),
			"mime_type", in.Audio.MIMEType,
		)
		reply, err = sess.ProcessAudio(ctx, *in.Audio)
	default:
		env := apierror.NewEnvelope(core.NewInvalidRequestError("No audio file or text provided"))
		env.RequestID = requestIDFrom(r)
		env.Received = in.Received
		apierror.Write(w, http.StatusBadRequest, env)
		return
	}
	if err != nil {
		log.Error("process input failed", "session_id", sess.ID(), "request_id", requestIDFrom(r), "error", err)
		writeConversationError(w, r, err, processFailedDetails)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// InterruptHandler handles POST /api/gemini/interrupt. It never waits for
// the session's in-flight call.
type InterruptHandler struct {
	Sessions *conversation.Manager
	Logger   *slog.Logger
}

func (h InterruptHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, r, http.MethodPost)
		return
	}
	if h.Sessions == nil {
		writeConversationError(w, r, core.NewUnavailableError("conversation sessions are not configured"), interruptFailedDetails)
		return
	}

	id := mw.SessionIDFrom(r.Context())
	sess, ok := h.Sessions.Lookup(id)
	if !ok {
		// Nothing to cancel; report the same outcome as an idle session.
		writeJSON(w, http.StatusOK, conversation.InterruptResult{
			Status:  "interrupted",
			Message: conversation.InterruptedMessage,
		})
		return
	}
	res := sess.Interrupt(r.Context())
	logger(h.Logger).Info("interrupt handled", "session_id", sess.ID(), "canceled_calls", res.Canceled)
	writeJSON(w, http.StatusOK, res)
}

// TestAudioHandler handles POST /api/gemini/test-audio and echoes upload
// metadata without contacting the model.
type TestAudioHandler struct {
	Config config.Config
	Logger *slog.Logger
}

type audioFileInfo struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	MIMEType   string `json:"mimetype"`
	DataLength int    `json:"dataLength"`
}

func (h TestAudioHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, r, http.MethodPost)
		return
	}

	limitBody(w, r, h.Config.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if coreErr := uploadError(err, h.Config.MaxUploadBytes, ""); coreErr.Code == "upload_too_large" {
			writeCoreErrorJSON(w, r, coreErr, http.StatusRequestEntityTooLarge)
			return
		}
		writeCoreErrorJSON(w, r, core.NewInvalidRequestError("No audio file provided"), http.StatusBadRequest)
		return
	}
	files := r.MultipartForm.File[AudioField]
	if len(files) == 0 {
		writeCoreErrorJSON(w, r, core.NewInvalidRequestError("No audio file provided"), http.StatusBadRequest)
		return
	}

	clip, err := readClip(r, h.Config.MaxUploadBytes)
	if err != nil {
		var coreErr *core.Error
		if errors.As(err, &coreErr) {
			writeCoreErrorJSON(w, r, coreErr, statusForInputError(coreErr))
			return
		}
		writeConversationError(w, r, err, "")
		return
	}

	info := audioFileInfo{
		Name:       clip.Name,
		Size:       files[0].Size,
		MIMEType:   clip.MIMEType,
		DataLength: clip.Size(),
	}
	logger(h.Logger).Info("test audio received", "name", info.Name, "bytes", info.Size, "mime_type", info.MIMEType)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "audio_received",
		"fileInfo": info,
	})
}

func handlerContext(r *http.Request, cfg config.Config) (context.Context, context.CancelFunc) {
	if cfg.HandlerTimeout > 0 {
		return context.WithTimeout(r.Context(), cfg.HandlerTimeout)
	}
	return context.WithCancel(r.Context())
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
