package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Whispr error code.
type ErrorCode string

const (
	ErrInvalidRequest        ErrorCode = "INVALID_REQUEST"        // 400
	ErrNotFound              ErrorCode = "NOT_FOUND"              // 404
	ErrFileNotFound          ErrorCode = "FILE_NOT_FOUND"         // 404
	ErrConflict              ErrorCode = "CONFLICT"               // 409
	ErrPinLimit              ErrorCode = "PIN_LIMIT"              // 409
	ErrAlreadyProcessing     ErrorCode = "ALREADY_PROCESSING"     // 409
	ErrAIDisabled            ErrorCode = "AI_DISABLED"            // 403
	ErrNoModelAssigned       ErrorCode = "NO_MODEL_ASSIGNED"      // 422
	ErrMalformedBlob         ErrorCode = "MALFORMED_BLOB"         // 422
	ErrAuthenticationFailed  ErrorCode = "AUTHENTICATION_FAILED"  // 422
	ErrRequestFailed         ErrorCode = "REQUEST_FAILED"         // 502
	ErrDiscoveryUnreachable  ErrorCode = "DISCOVERY_UNREACHABLE"  // 502
	ErrDiscoveryBadResponse  ErrorCode = "DISCOVERY_BAD_RESPONSE" // 502
	ErrEncryptionUnavailable ErrorCode = "ENCRYPTION_UNAVAILABLE" // 503
	ErrSealFailed            ErrorCode = "SEAL_FAILED"            // 500
	ErrInternal              ErrorCode = "INTERNAL"               // 500
)

// WhisprError represents a structured error with code, status, and details.
type WhisprError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *WhisprError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *WhisprError {
	return &WhisprError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing item or folder.
func NewNotFound(kind, identifier string) *WhisprError {
	return &WhisprError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewFileNotFound creates a 404 error for import paths that do not exist.
func NewFileNotFound(path string) *WhisprError {
	return &WhisprError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewConflict creates a 409 error for general conflicts.
func NewConflict(msg string) *WhisprError {
	return &WhisprError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewPinLimit creates a 409 error when the pinned band is full.
func NewPinLimit(max int) *WhisprError {
	return &WhisprError{
		Code:    ErrPinLimit,
		Status:  409,
		Message: fmt.Sprintf("at most %d items can be pinned", max),
		Details: map[string]any{"max_pinned": max},
	}
}

// NewAlreadyProcessing creates a 409 error when an item already has an AI request in flight.
func NewAlreadyProcessing(itemID string) *WhisprError {
	return &WhisprError{
		Code:    ErrAlreadyProcessing,
		Status:  409,
		Message: fmt.Sprintf("item %s is already being processed", itemID),
		Details: map[string]any{"item_id": itemID},
	}
}

// NewAIDisabled creates a 403 error when AI features or a single action are switched off.
func NewAIDisabled(action string) *WhisprError {
	msg := "AI features are disabled"
	if action != "" {
		msg = fmt.Sprintf("AI action %q is disabled", action)
	}
	return &WhisprError{
		Code:    ErrAIDisabled,
		Status:  403,
		Message: msg,
	}
}

// NewEncryptionUnavailable creates a 503 error when the vault key cannot be obtained.
// Callers use it to tell "encryption is unavailable" apart from one corrupted folder.
func NewEncryptionUnavailable(err error) *WhisprError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &WhisprError{
		Code:    ErrEncryptionUnavailable,
		Status:  503,
		Message: "encryption is unavailable: the key store could not supply a key",
		Details: details,
	}
}

// NewWithCode creates an error for codes that carry no extra details.
func NewWithCode(code ErrorCode, status int, msg string) *WhisprError {
	return &WhisprError{
		Code:    code,
		Status:  status,
		Message: msg,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The message stays generic; the cause is kept in Details for logging.
func NewInternal(err error) *WhisprError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &WhisprError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
	}
}

// Is checks if an error (or anything it wraps) is a WhisprError with the given code.
func Is(err error, code ErrorCode) bool {
	var wErr *WhisprError
	if stderrors.As(err, &wErr) {
		return wErr.Code == code
	}
	return false
}
