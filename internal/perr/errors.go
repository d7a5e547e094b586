// Package perr defines the error taxonomy shared by the perception pipeline.
//
// Every failure that callers are expected to branch on carries one of three
// kinds: ErrConfig (requested configuration disagrees with persisted state),
// ErrData (unreadable or malformed input files) and ErrDimension (tensor shape
// mismatch between a target or checkpoint and a model head). Use errors.Is to
// test the kind; the concrete *Error carries the offending path when known.
package perr

import (
	"errors"
	"fmt"
)

var (
	ErrConfig    = errors.New("config error")
	ErrData      = errors.New("data error")
	ErrDimension = errors.New("dimension error")
)

// Error is a classified pipeline failure.
type Error struct {
	Kind error
	Path string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.Path != "" {
		msg += ": " + e.Path
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is the error kind or matches the wrapped cause.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error { return e.Err }

// Configf returns an ErrConfig with a formatted message.
func Configf(format string, args ...any) error {
	return &Error{Kind: ErrConfig, Msg: fmt.Sprintf(format, args...)}
}

// Dimensionf returns an ErrDimension with a formatted message.
func Dimensionf(format string, args ...any) error {
	return &Error{Kind: ErrDimension, Msg: fmt.Sprintf(format, args...)}
}

// Dataf returns an ErrData naming path with a formatted message.
func Dataf(path, format string, args ...any) error {
	return &Error{Kind: ErrData, Path: path, Msg: fmt.Sprintf(format, args...)}
}

// DataErr wraps err as an ErrData naming path. A nil err returns nil.
func DataErr(path string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: ErrData, Path: path, Err: err}
}

// PathOf returns the offending path recorded in err, if any.
func PathOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Path
	}
	return ""
}
