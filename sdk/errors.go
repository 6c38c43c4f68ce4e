package vai

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/vango-go/vai-voice/pkg/core"
)

// Error is the canonical error returned for gateway failures.
type Error = core.Error

// Error types
const (
	ErrQuota          = core.ErrQuota
	ErrAuth           = core.ErrAuth
	ErrTimeout        = core.ErrTimeout
	ErrInterrupted    = core.ErrInterrupted
	ErrInvalidRequest = core.ErrInvalidRequest
	ErrUnknown        = core.ErrUnknown
)

// TransportError represents HTTP transport-level failures (DNS, timeouts,
// connection reset, TLS handshake, etc.) while talking to the gateway.
//
// Client methods return it wrapped in a *core.Error of type
// core.ErrTransport; errors.As still reaches the underlying TransportError.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Op != "" && e.URL != "":
		return fmt.Sprintf("transport error during %s %s: %v", e.Op, redactURLUserInfo(e.URL), e.Err)
	case e.Op != "":
		return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("transport error: %v", e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// UnreachableMessage is the message carried by wrapped transport failures.
const UnreachableMessage = "gateway unreachable"

func unreachable(op, endpoint string, err error) error {
	return core.NewTransportError(UnreachableMessage, &TransportError{Op: op, URL: endpoint, Err: err})
}

// IsQuota reports whether err is a throttling failure from the gateway or
// the model behind it.
func IsQuota(err error) bool {
	return core.TypeOf(err) == core.ErrQuota
}

func redactURLUserInfo(raw string) string {
	if raw == "" {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed == nil {
		return raw
	}
	parsed.User = nil
	return parsed.String()
}

// errorEnvelope is the gateway's flat error body.
type errorEnvelope struct {
	Error      string         `json:"error"`
	Details    string         `json:"details"`
	Type       core.ErrorType `json:"type"`
	Code       string         `json:"code"`
	RequestID  string         `json:"request_id"`
	RetryAfter *int           `json:"retry_after"`
}

func decodeGatewayErrorResponse(resp *http.Response, endpoint, method string) error {
	defer resp.Body.Close()

	requestID := requestIDFromHeader(resp.Header)
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return unreachable(method, endpoint, err)
	}

	out := &core.Error{RequestID: requestID}
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != "" {
		out.Type = env.Type
		out.Message = env.Error
		out.Details = env.Details
		out.Code = env.Code
		out.RetryAfter = env.RetryAfter
		if env.RequestID != "" {
			out.RequestID = env.RequestID
		}
	} else {
		out.Message = fmt.Sprintf("gateway request failed with status %d", resp.StatusCode)
	}

	if out.RetryAfter == nil {
		out.RetryAfter = parseRetryAfterHeader(resp.Header.Get("Retry-After"))
	}
	if out.Type == "" || out.Type == core.ErrUnknown {
		out.Type = inferErrorType(resp.StatusCode, out.Message)
	}
	return out
}

// inferErrorType classifies untyped failures by status, then by the same
// message heuristics the gateway applies to model errors.
func inferErrorType(statusCode int, message string) core.ErrorType {
	switch {
	case statusCode == http.StatusTooManyRequests || core.IsThrottling(message):
		return core.ErrQuota
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden || core.IsAuthFailure(message):
		return core.ErrAuth
	case statusCode == http.StatusBadRequest || statusCode == http.StatusRequestEntityTooLarge:
		return core.ErrInvalidRequest
	case statusCode == http.StatusNotFound:
		return core.ErrNotFound
	case statusCode == http.StatusServiceUnavailable:
		return core.ErrUnavailable
	default:
		return core.ErrUnknown
	}
}

func requestIDFromHeader(h http.Header) string {
	if h == nil {
		return ""
	}
	return strings.TrimSpace(h.Get("X-Request-ID"))
}

func parseRetryAfterHeader(raw string) *int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return nil
	}
	return &seconds
}
