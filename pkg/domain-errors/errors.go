// Package domainerrors defines the coded error type shared by every service
// in the subsystem. Services return these so handlers, compliance tooling and
// callers can discriminate on reason instead of string-matching messages.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error for routing and HTTP translation.
type Code string

const (
	// CodeValidation marks malformed or out-of-range input. Always
	// recoverable locally; the message is safe to show to the caller.
	CodeValidation Code = "validation"

	// CodeInvalidInput marks values rejected at a trust boundary
	// (malformed IDs, unknown enum members).
	CodeInvalidInput Code = "invalid_input"

	CodeBadRequest   Code = "bad_request"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"

	// CodeConsentRequired marks actions blocked by missing, outdated or
	// unverified consent. See consent.ConsentRequiredError for the
	// re-consent distinction.
	CodeConsentRequired Code = "consent_required"

	// CodeAuthorizationPending marks actions blocked until a human reviewer
	// acts. Not a failure the caller can fix.
	CodeAuthorizationPending Code = "authorization_pending"

	// CodeRevoked marks actions permanently blocked by a revocation. A
	// revoked record is historical; only a fresh grant unblocks the action.
	CodeRevoked Code = "revoked"

	// CodeStorage marks a durable-store failure. Audit-write failures carry
	// this code and always fail the triggering action.
	CodeStorage Code = "storage"

	CodeTimeout  Code = "timeout"
	CodeInternal Code = "internal"
)

// Error is the coded error carried between layers.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias for HasCode kept for call-site readability.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf returns the code carried by err, or CodeInternal when uncoded.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to its HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeInvalidInput, CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden, CodeConsentRequired, CodeRevoked:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeAuthorizationPending:
		return http.StatusAccepted
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
