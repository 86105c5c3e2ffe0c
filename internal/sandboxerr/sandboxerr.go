// Package sandboxerr defines the error taxonomy shared by every
// component, so the HTTP layer can map internal failures to status
// codes without each package importing net/http.
package sandboxerr

import (
	"errors"
	"fmt"
)

// Code categorizes an error for the HTTP layer and for callers that
// need to branch on failure kind.
type Code string

const (
	NotFound     Code = "not_found"
	Conflict     Code = "conflict"
	Unauthorized Code = "unauthorized"
	InvalidState Code = "invalid_state"
	External     Code = "external" // failure in a downstream system (Docker, GCS, IAM, registry)
)

// Error is a typed domain error carrying a Code alongside the usual
// message and wrapped cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf returns the Code of err if it is (or wraps) a *Error, and
// External otherwise — any error this package doesn't recognize is
// assumed to originate from an external dependency.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return External
}

func IsNotFound(err error) bool     { return CodeOf(err) == NotFound }
func IsConflict(err error) bool     { return CodeOf(err) == Conflict }
func IsUnauthorized(err error) bool { return CodeOf(err) == Unauthorized }
func IsInvalidState(err error) bool { return CodeOf(err) == InvalidState }
