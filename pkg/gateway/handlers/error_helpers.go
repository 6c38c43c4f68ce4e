package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/vango-go/vai-voice/pkg/core"
	"github.com/vango-go/vai-voice/pkg/gateway/apierror"
	"github.com/vango-go/vai-voice/pkg/gateway/mw"
)

func requestIDFrom(r *http.Request) string {
	reqID, _ := mw.RequestIDFrom(r.Context())
	return reqID
}

// writeConversationError classifies err and writes the error envelope with
// a route-specific details line.
func writeConversationError(w http.ResponseWriter, r *http.Request, err error, details string) {
	coreErr, status := apierror.FromError(err, requestIDFrom(r))
	env := apierror.NewEnvelope(coreErr)
	if env.Details == "" {
		env.Details = details
	}
	apierror.Write(w, status, env)
}

func writeCoreErrorJSON(w http.ResponseWriter, r *http.Request, coreErr *core.Error, status int) {
	if coreErr != nil && coreErr.RequestID == "" {
		coreErr.RequestID = requestIDFrom(r)
	}
	apierror.Write(w, status, apierror.NewEnvelope(coreErr))
}

func writeMethodNotAllowed(w http.ResponseWriter, r *http.Request, allow string) {
	w.Header().Set("Allow", allow)
	writeCoreErrorJSON(w, r, &core.Error{
		Type:    core.ErrInvalidRequest,
		Message: "method not allowed",
		Code:    "method_not_allowed",
	}, http.StatusMethodNotAllowed)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
