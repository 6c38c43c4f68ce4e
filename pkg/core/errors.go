package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error is the canonical error carried across the gateway and the client.
type Error struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	Code       string    `json:"code,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	RetryAfter *int      `json:"retry_after,omitempty"`

	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrDevice         ErrorType = "device_error"
	ErrTooShort       ErrorType = "too_short_input"
	ErrQuota          ErrorType = "quota_error"
	ErrAuth           ErrorType = "auth_error"
	ErrTransport      ErrorType = "transport_error"
	ErrTimeout        ErrorType = "timeout_error"
	ErrInterrupted    ErrorType = "interrupted"
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrNotFound       ErrorType = "not_found_error"
	ErrUnavailable    ErrorType = "unavailable_error"
	ErrUnknown        ErrorType = "unknown_error"
)

// Messages surfaced to users for the classified remote failures.
const (
	QuotaMessage = "API rate limit exceeded. You have reached the free tier limit. Please wait a few minutes or upgrade your Gemini API plan."
	AuthMessage  = "Invalid or missing Gemini API key. Please check your .env file."
)

// NewDeviceError reports a microphone or speaker that could not be opened.
func NewDeviceError(message string, err error) *Error {
	return &Error{Type: ErrDevice, Message: message, Err: err}
}

// NewTooShortError reports a capture below the minimum duration.
func NewTooShortError(message string) *Error {
	return &Error{Type: ErrTooShort, Message: message}
}

// NewQuotaError creates a throttling error. retryAfter <= 0 omits the hint.
func NewQuotaError(message string, retryAfter int) *Error {
	e := &Error{Type: ErrQuota, Message: message}
	if retryAfter > 0 {
		e.RetryAfter = &retryAfter
	}
	return e
}

// NewAuthError creates a credential error.
func NewAuthError(message string) *Error {
	return &Error{Type: ErrAuth, Message: message}
}

// NewTransportError wraps a network or remote failure.
func NewTransportError(message string, err error) *Error {
	return &Error{Type: ErrTransport, Message: message, Err: err}
}

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(message string) *Error {
	return &Error{Type: ErrNotFound, Message: message}
}

// NewUnavailableError reports a gateway that is not accepting the request.
func NewUnavailableError(message string) *Error {
	return &Error{Type: ErrUnavailable, Message: message}
}

// IsThrottling reports whether a raw error message looks like a rate-limit signal.
func IsThrottling(msg string) bool {
	return containsAny(strings.ToLower(msg), "429", "quota", "too many requests", "rate limit", "resource_exhausted")
}

// IsAuthFailure reports whether a raw error message looks like a credential failure.
func IsAuthFailure(msg string) bool {
	return containsAny(strings.ToLower(msg), "api_key", "api key", "authentication", "unauthenticated", "permission_denied")
}

// Classify maps any error into the canonical taxonomy. Errors that are
// already canonical are returned unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var coreErr *Error
	if errors.As(err, &coreErr) && coreErr != nil {
		return coreErr
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Type: ErrTimeout, Message: "remote call timed out", Err: err}
	case errors.Is(err, context.Canceled):
		return &Error{Type: ErrInterrupted, Message: "request cancelled", Code: "cancelled", Err: err}
	}

	msg := err.Error()
	switch {
	case IsThrottling(msg):
		return &Error{Type: ErrQuota, Message: QuotaMessage, Err: err}
	case IsAuthFailure(msg):
		return &Error{Type: ErrAuth, Message: AuthMessage, Err: err}
	}
	return &Error{Type: ErrUnknown, Message: msg, Err: err}
}

// TypeOf returns the classified type of err, or "" for nil.
func TypeOf(err error) ErrorType {
	if ce := Classify(err); ce != nil {
		return ce.Type
	}
	return ""
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
