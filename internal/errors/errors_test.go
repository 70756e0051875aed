package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "simple message",
			err:      New(CodeNotFound, "session not found"),
			expected: "session not found",
		},
		{
			name: "with operation",
			err: &Error{
				Code:    CodeNotFound,
				Message: "session not found",
				Op:      "conversation.Load",
			},
			expected: "conversation.Load: session not found",
		},
		{
			name: "with underlying error",
			err: &Error{
				Code:    CodeDatabase,
				Message: "insert failed",
				Err:     errors.New("connection refused"),
			},
			expected: "insert failed: connection refused",
		},
		{
			name:     "messaging error with status",
			err:      MessagingError("whatsapp.SendText", 400, errors.New("bad recipient")),
			expected: "whatsapp.SendText: messaging request failed with status 400: bad recipient",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestError_UnwrapAndIs(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := SheetError("google", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	if !errors.Is(err, New(CodeSheet, "other message")) {
		t.Error("expected errors.Is to match on code")
	}
	if errors.Is(err, ErrCircuitOpen) {
		t.Error("did not expect a match against a different code")
	}

	wrapped := fmt.Errorf("handle event: %w", err)
	if GetCode(wrapped) != CodeSheet {
		t.Errorf("GetCode() = %s, want %s", GetCode(wrapped), CodeSheet)
	}
}

func TestError_HTTPStatus(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{ErrSignatureInvalid, http.StatusUnauthorized},
		{ErrVerifyFailed, http.StatusForbidden},
		{WebhookError("bad json"), http.StatusBadRequest},
		{New(CodeNotFound, "no such breaker"), http.StatusNotFound},
		{New(CodeUnauthorized, "no token"), http.StatusUnauthorized},
		{ErrCircuitOpen, http.StatusServiceUnavailable},
		{AssistantError(nil), http.StatusBadGateway},
		{ConfigError("bad", nil), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Code), func(t *testing.T) {
			if got := tt.err.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"messaging", MessagingError("whatsapp.send", 502, nil), true},
		{"wrapped sheet", fmt.Errorf("append: %w", SheetError("google", nil)), true},
		{"circuit open", ErrCircuitOpen, true},
		{"config", ConfigError("bad", nil), false},
		{"user input", MissingField("hub.challenge"), false},
		{"plain", errors.New("plain"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestToResponse(t *testing.T) {
	resp := WebhookError("malformed payload").ToResponse()
	if resp.Error.Code != CodeWebhookInvalid || resp.Error.Message != "malformed payload" {
		t.Errorf("ToResponse() = %+v", resp)
	}
}
