// Package apperror defines the error kinds shared by every domain package.
// Domain errors are built on top of a kind so that transport code can map
// them without knowing each package's sentinels.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidState      = errors.New("invalid state")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrForbidden         = errors.New("forbidden")
	ErrValidation        = errors.New("validation error")
)

// Error is a domain error of a given kind. errors.Is matches both the
// *Error value itself and its kind.
type Error struct {
	kind error
	msg  string
}

func New(kind error, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func Newf(kind error, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return e.msg
}

func (e *Error) Unwrap() error {
	return e.kind
}

// Kind returns the kind sentinel err belongs to, or nil for errors that
// carry no kind (infrastructure failures).
func Kind(err error) error {
	for _, kind := range []error{ErrNotFound, ErrConflict, ErrInvalidState, ErrInsufficientStock, ErrForbidden, ErrValidation} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// Wrap prefixes infrastructure errors with msg and returns domain errors
// unchanged, so their message stays fit for clients.
func Wrap(err error, msg string) error {
	if err == nil || Kind(err) != nil {
		return err
	}
	return fmt.Errorf("%s: %w", msg, err)
}
