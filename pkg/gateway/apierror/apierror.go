package apierror

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/vango-go/vai-voice/pkg/core"
)

// Envelope is the JSON error body returned by every endpoint.
type Envelope struct {
	Error      string         `json:"error"`
	Details    string         `json:"details,omitempty"`
	Type       core.ErrorType `json:"type,omitempty"`
	Code       string         `json:"code,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	RetryAfter *int           `json:"retry_after,omitempty"`
	Received   any            `json:"received,omitempty"`
}

// FromError classifies err and returns the canonical error with the HTTP
// status to send. Remote and internal failures are 500; only caller
// mistakes are 4xx. Unclassified failures keep their message so callers
// see what went wrong.
func FromError(err error, requestID string) (*core.Error, int) {
	if err == nil {
		return nil, http.StatusOK
	}

	ce := core.Classify(err)
	out := *ce
	out.RequestID = requestID
	if out.Message == "" {
		out.Message = "internal error"
	}
	return &out, StatusFromType(out.Type)
}

// StatusFromType maps an error type to its HTTP status.
func StatusFromType(t core.ErrorType) int {
	switch t {
	case core.ErrInvalidRequest, core.ErrTooShort:
		return http.StatusBadRequest
	case core.ErrNotFound:
		return http.StatusNotFound
	case core.ErrUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewEnvelope renders a canonical error as a response body.
func NewEnvelope(e *core.Error) Envelope {
	if e == nil {
		return Envelope{Error: "internal error", Type: core.ErrUnknown}
	}
	return Envelope{
		Error:      e.Message,
		Details:    e.Details,
		Type:       e.Type,
		Code:       e.Code,
		RequestID:  e.RequestID,
		RetryAfter: e.RetryAfter,
	}
}

// Write sends env with status, adding Retry-After when a hint is present.
func Write(w http.ResponseWriter, status int, env Envelope) {
	if env.RetryAfter != nil && *env.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(*env.RetryAfter))
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}
