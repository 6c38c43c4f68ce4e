package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{
		Type:    ErrInvalidRequest,
		Message: "no audio file or text provided",
	}

	expected := "invalid_request_error: no audio file or text provided"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestError_WithCode(t *testing.T) {
	err := &Error{
		Type:    ErrQuota,
		Message: "too many requests",
		Code:    "backoff_active",
	}

	expected := "quota_error: too many requests (code: backoff_active)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewQuotaError_RetryAfter(t *testing.T) {
	err := NewQuotaError("slow down", 60)
	if err.RetryAfter == nil || *err.RetryAfter != 60 {
		t.Errorf("RetryAfter = %v, want 60", err.RetryAfter)
	}
	if err := NewQuotaError("slow down", 0); err.RetryAfter != nil {
		t.Errorf("RetryAfter = %v, want nil", *err.RetryAfter)
	}
}

func TestError_Unwrap(t *testing.T) {
	root := errors.New("dial tcp: connection refused")
	err := NewTransportError("remote call failed", root)
	if !errors.Is(err, root) {
		t.Fatalf("errors.Is should find wrapped root")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"status code", errors.New("googleapi: Error 429: Resource has been exhausted"), ErrQuota},
		{"quota word", errors.New("You exceeded your current quota"), ErrQuota},
		{"too many requests", errors.New("Too Many Requests"), ErrQuota},
		{"resource exhausted", errors.New("rpc error: RESOURCE_EXHAUSTED"), ErrQuota},
		{"api key", errors.New("API_KEY_INVALID: API key not valid"), ErrAuth},
		{"authentication", errors.New("request had invalid authentication credentials"), ErrAuth},
		{"deadline", fmt.Errorf("send: %w", context.DeadlineExceeded), ErrTimeout},
		{"canceled", context.Canceled, ErrInterrupted},
		{"other", errors.New("connection reset by peer"), ErrUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got == nil || got.Type != tt.want {
				t.Fatalf("Classify(%q)=%v, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassify_QuotaAndAuthUseFixedMessages(t *testing.T) {
	if got := Classify(errors.New("429")); got.Message != QuotaMessage {
		t.Fatalf("message=%q", got.Message)
	}
	if got := Classify(errors.New("missing api key")); got.Message != AuthMessage {
		t.Fatalf("message=%q", got.Message)
	}
}

func TestClassify_PreservesCanonical(t *testing.T) {
	orig := NewAuthError("nope")
	wrapped := fmt.Errorf("start: %w", orig)
	if got := Classify(wrapped); got != orig {
		t.Fatalf("Classify should return the wrapped canonical error, got %v", got)
	}
	if Classify(nil) != nil {
		t.Fatalf("Classify(nil) should be nil")
	}
	if TypeOf(nil) != "" {
		t.Fatalf("TypeOf(nil) should be empty")
	}
}
