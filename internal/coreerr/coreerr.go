// Package coreerr defines the error taxonomy returned by the storage and
// mirror layers, so callers can branch on failure kind without parsing
// message text.
package coreerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

// Error kinds.
const (
	NotFound      Kind = "not_found"
	AmbiguousID   Kind = "ambiguous_id"
	Validation    Kind = "validation"
	CycleDetected Kind = "cycle_detected"
	Conflict      Kind = "conflict"
	PrefixMismatch Kind = "prefix_mismatch"
	CorruptInput  Kind = "corrupt_input"
	PathUnsafe    Kind = "path_unsafe"
	Locked        Kind = "locked"
	IO            Kind = "io"
	Schema        Kind = "schema"
)

// Error is a coreerr-classified error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a kind and message, preserving it for errors.Is/As.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Is reports whether err (or any error it wraps) was created with the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the Kind of err if it is (or wraps) a coreerr.Error, and false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
