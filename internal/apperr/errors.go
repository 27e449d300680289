package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindInvalidState Kind = "invalid_state"
	KindPrecondition Kind = "precondition"
	KindValidation   Kind = "validation"
)

// Error is a failure scoped to a single user operation.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a referenced id that does not exist.
func NotFound(format string, args ...any) error {
	return newError(KindNotFound, format, args...)
}

// InvalidState reports an operation against an inspection or answer in the wrong state.
func InvalidState(format string, args ...any) error {
	return newError(KindInvalidState, format, args...)
}

// Precondition reports a prerequisite inspection that is not yet in the required state.
func Precondition(format string, args ...any) error {
	return newError(KindPrecondition, format, args...)
}

// Validation reports rejected input. Nothing was written.
func Validation(format string, args ...any) error {
	return newError(KindValidation, format, args...)
}

// KindOf returns the kind of err, or "" when err is not a domain error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is a domain error of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
