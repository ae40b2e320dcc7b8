// Package domainerrors carries the error taxonomy shared by services and the
// HTTP layer. Services return *Error values; transport translates the Code into
// a status and an OAuth-style error string.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of domain failure.
type Code string

const (
	CodeBadRequest     Code = "bad_request"
	CodeInvalidRequest Code = "invalid_request"
	CodeInvalidGrant   Code = "invalid_grant"
	CodeInvalidToken   Code = "invalid_token"
	CodeInvalidProof   Code = "invalid_proof"
	CodeUnauthorized   Code = "unauthorized"
	CodeNotFound       Code = "not_found"
	CodeConflict       Code = "conflict"
	CodeExpired        Code = "expired"
	CodeAlreadyUsed    Code = "already_used"
	CodeSigning        Code = "signing_error"
	CodeLedgerDown     Code = "ledger_unavailable"
	CodeLedgerRejected Code = "ledger_rejected"
	CodeTimeout        Code = "timeout"
	CodeInternal       Code = "internal_error"
)

// Error is a coded domain error. Message is safe to show to callers except for
// internal-class codes.
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

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same code and message, so tests can use
// errors.Is against a freshly constructed value.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// New builds a coded error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// From returns the outermost *Error in the chain.
func From(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether the outermost domain error in err carries code.
func HasCode(err error, code Code) bool {
	de, ok := From(err)
	return ok && de.Code == code
}

// Is is shorthand for HasCode.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// Retryable reports whether the failure is transient from the caller's view.
func Retryable(err error) bool {
	return HasCode(err, CodeLedgerDown) || HasCode(err, CodeTimeout)
}

// ToHTTPStatus maps a code to the status the transport should answer with.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeInvalidRequest, CodeInvalidGrant, CodeInvalidProof,
		CodeExpired, CodeAlreadyUsed:
		return http.StatusBadRequest
	case CodeUnauthorized, CodeInvalidToken:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// IsInternal reports whether the code describes a server-side failure whose
// message should not leak to clients.
func IsInternal(code Code) bool {
	return code == CodeInternal || code == CodeSigning
}
