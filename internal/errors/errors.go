// Package errors provides the application error type used by Ferrabot's
// adapters and HTTP handlers, with classification and HTTP status mapping.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code represents an application error code.
type Code string

// Error codes for different error categories.
const (
	// Validation errors
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeInvalidInput  Code = "INVALID_INPUT"
	CodeMissingField  Code = "MISSING_FIELD"
	CodeInvalidFormat Code = "INVALID_FORMAT"

	// Resource errors
	CodeNotFound     Code = "NOT_FOUND"
	CodeUnauthorized Code = "UNAUTHORIZED"

	// Inbound webhook errors
	CodeWebhookInvalid   Code = "WEBHOOK_INVALID"
	CodeSignatureInvalid Code = "SIGNATURE_INVALID"
	CodeVerifyFailed     Code = "VERIFY_FAILED"

	// External service errors
	CodeMessaging   Code = "MESSAGING_ERROR"
	CodeAssistant   Code = "ASSISTANT_ERROR"
	CodeSheet       Code = "SHEET_ERROR"
	CodeCircuitOpen Code = "CIRCUIT_OPEN"

	// Internal errors
	CodeInternal Code = "INTERNAL_ERROR"
	CodeDatabase Code = "DATABASE_ERROR"
	CodeConfig   Code = "CONFIG_ERROR"
)

// Kind represents the kind of error for classification.
type Kind int

const (
	// KindUnknown is an unknown error kind.
	KindUnknown Kind = iota
	// KindUser indicates bad input from a caller.
	KindUser
	// KindSystem indicates a local failure (database, configuration).
	KindSystem
	// KindTransient indicates an upstream failure that may clear on its own.
	KindTransient
)

// Error is the base application error type.
type Error struct {
	// Code is the machine-readable error code.
	Code Code `json:"code"`
	// Message is the human-readable error message.
	Message string `json:"message"`
	// Kind classifies the error for handling decisions.
	Kind Kind `json:"-"`
	// Op is the operation being performed (e.g., "whatsapp.SendText").
	Op string `json:"-"`
	// Err is the underlying error, if any.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeSignatureInvalid, CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeVerifyFailed:
		return http.StatusForbidden
	case CodeValidation, CodeInvalidInput, CodeMissingField, CodeInvalidFormat, CodeWebhookInvalid:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeCircuitOpen:
		return http.StatusServiceUnavailable
	case CodeMessaging, CodeAssistant, CodeSheet:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsTransient reports whether the error came from an upstream that may recover.
func (e *Error) IsTransient() bool {
	return e.Kind == KindTransient
}

// ErrorResponse represents the JSON body written for failed HTTP requests.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error details in API responses.
type ErrorDetail struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// ToResponse converts an Error to an API response.
func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error: ErrorDetail{
			Code:    e.Code,
			Message: e.Message,
		},
	}
}

// New creates a new Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Kind:    kindForCode(code),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, op string, code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Kind:    kindForCode(code),
		Op:      op,
		Err:     err,
	}
}

func kindForCode(code Code) Kind {
	switch code {
	case CodeValidation, CodeInvalidInput, CodeMissingField, CodeInvalidFormat, CodeNotFound:
		return KindUser
	case CodeWebhookInvalid, CodeSignatureInvalid, CodeVerifyFailed, CodeUnauthorized:
		return KindUser
	case CodeMessaging, CodeAssistant, CodeSheet, CodeCircuitOpen:
		return KindTransient
	default:
		return KindSystem
	}
}

var (
	// ErrCircuitOpen indicates an upstream breaker is open.
	ErrCircuitOpen = New(CodeCircuitOpen, "service temporarily unavailable")

	// ErrSignatureInvalid indicates a webhook body failed HMAC verification.
	ErrSignatureInvalid = New(CodeSignatureInvalid, "invalid webhook signature")

	// ErrVerifyFailed indicates a subscription handshake with a wrong token.
	ErrVerifyFailed = New(CodeVerifyFailed, "webhook verification failed")
)

// ValidationFailed creates a validation error with details.
func ValidationFailed(message string) *Error {
	return &Error{
		Code:    CodeValidation,
		Message: message,
		Kind:    KindUser,
	}
}

// MissingField creates a missing field validation error.
func MissingField(field string) *Error {
	return &Error{
		Code:    CodeMissingField,
		Message: fmt.Sprintf("missing required field: %s", field),
		Kind:    KindUser,
	}
}

// DatabaseError creates a database error with the underlying cause.
func DatabaseError(op string, err error) *Error {
	return &Error{
		Code:    CodeDatabase,
		Message: "database operation failed",
		Kind:    KindSystem,
		Op:      op,
		Err:     err,
	}
}

// MessagingError reports a failed Graph API call. status is the HTTP status
// returned by the API, or 0 when the request never got a response.
func MessagingError(op string, status int, err error) *Error {
	msg := "messaging request failed"
	if status > 0 {
		msg = fmt.Sprintf("messaging request failed with status %d", status)
	}
	return &Error{
		Code:    CodeMessaging,
		Message: msg,
		Kind:    KindTransient,
		Op:      op,
		Err:     err,
	}
}

// AssistantError reports a failed completion request.
func AssistantError(err error) *Error {
	return &Error{
		Code:    CodeAssistant,
		Message: "assistant request failed",
		Kind:    KindTransient,
		Op:      "assistant.Ask",
		Err:     err,
	}
}

// SheetError reports a failed row append on the named backend.
func SheetError(backend string, err error) *Error {
	return &Error{
		Code:    CodeSheet,
		Message: fmt.Sprintf("append to %s failed", backend),
		Kind:    KindTransient,
		Op:      "sheets.AppendRow",
		Err:     err,
	}
}

// WebhookError creates a webhook validation error.
func WebhookError(message string) *Error {
	return &Error{
		Code:    CodeWebhookInvalid,
		Message: message,
		Kind:    KindUser,
	}
}

// ConfigError creates a configuration error.
func ConfigError(message string, err error) *Error {
	return &Error{
		Code:    CodeConfig,
		Message: message,
		Kind:    KindSystem,
		Err:     err,
	}
}

// InternalError creates a generic internal error.
func InternalError(message string, err error) *Error {
	return &Error{
		Code:    CodeInternal,
		Message: message,
		Kind:    KindSystem,
		Err:     err,
	}
}

// GetCode extracts the error code from an error, returning CodeInternal for non-app errors.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsTransient checks whether err is an upstream failure.
func IsTransient(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.IsTransient()
	}
	return false
}

