// Package apperr defines the error kinds shared across gitnotes.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation failed")
	ErrExecution     = errors.New("execution failed")
	ErrInternal      = errors.New("internal error")
)

// Error carries a user-facing message together with its kind.
// errors.Is matches both the kind and the wrapped cause.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg == "" {
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newf(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return newf(ErrNotFound, format, args...)
}

func AlreadyExists(format string, args ...any) error {
	return newf(ErrAlreadyExists, format, args...)
}

func Validation(format string, args ...any) error {
	return newf(ErrValidation, format, args...)
}

func Conflict(format string, args ...any) error {
	return newf(ErrConflict, format, args...)
}

// Internal reports a violated invariant. Those are programmer errors.
func Internal(format string, args ...any) error {
	return newf(ErrInternal, "Internal error: "+format, args...)
}

// Wrap attaches kind to err, keeping err's message.
func Wrap(kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the first known kind found in err's chain, or nil.
func KindOf(err error) error {
	for _, kind := range []error{ErrNotFound, ErrAlreadyExists, ErrValidation, ErrConflict, ErrExecution, ErrInternal} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
