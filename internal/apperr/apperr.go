// Package apperr implements the error taxonomy from the design's error
// handling section: a closed set of sentinel kinds that every router/service
// maps to a wire error{message} event at the boundary.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the taxonomy's six error categories.
type Kind string

const (
	KindAuth           Kind = "auth"
	KindValidation     Kind = "validation"
	KindPrecondition   Kind = "precondition"
	KindNotFound       Kind = "not_found"
	KindTransientStore Kind = "transient_store"
	KindInternal       Kind = "internal"
)

// Error wraps an underlying cause with a taxonomy kind and a caller-facing
// message safe to put on the wire.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Auth(message string) *Error                    { return newErr(KindAuth, message, nil) }
func Validation(message string) *Error               { return newErr(KindValidation, message, nil) }
func Precondition(message string) *Error             { return newErr(KindPrecondition, message, nil) }
func NotFound(message string) *Error                 { return newErr(KindNotFound, message, nil) }
func TransientStore(message string, err error) *Error { return newErr(KindTransientStore, message, err) }
func Internal(message string, err error) *Error       { return newErr(KindInternal, message, err) }

// KindOf extracts the taxonomy kind from err, defaulting to KindInternal for
// errors that never went through this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// WireMessage renders the caller-facing message for the error{message}
// envelope. Internal errors are never leaked verbatim to the wire.
func WireMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindInternal {
			return "internal"
		}
		return e.Message
	}
	return "internal"
}

// CountsAgainstBreaker reports whether err should count as a failure for a
// CircuitBreaker guarding the call that produced it. Validation and
// precondition failures are caller mistakes, not downstream failures.
func CountsAgainstBreaker(err error) bool {
	switch KindOf(err) {
	case KindTransientStore, KindInternal:
		return true
	default:
		return false
	}
}
