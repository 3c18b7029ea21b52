package task

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an execution failure for the recovery controller.
type ErrorKind int

const (
	// KindTransient marks failures that are expected to clear on retry
	// (resource busy, network flake). This is also the default
	// classification for plain, unwrapped errors.
	KindTransient ErrorKind = iota
	// KindLogicError marks contract violations. The controller replans once
	// with a reduced-scope variant, if one exists, before aborting.
	KindLogicError
	// KindTimeout marks a synthetic failure injected when a task's deadline
	// expires. Retryable, but reported under its own kind.
	KindTimeout
	// KindFatal marks explicitly non-retryable failures.
	KindFatal
)

// String returns the kind name used in reports.
func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindLogicError:
		return "logic_error"
	case KindTimeout:
		return "timeout_exceeded"
	case KindFatal:
		return "fatal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a classified task failure. Executor handlers wrap their errors
// with one of the constructors below; anything unwrapped is treated as
// transient.
type Error struct {
	Kind ErrorKind
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable transient failure.
func Transient(err error) error {
	return &Error{Kind: KindTransient, Err: err}
}

// Fatalf builds a non-retryable failure.
func Fatalf(format string, args ...any) error {
	return &Error{Kind: KindFatal, Err: fmt.Errorf(format, args...)}
}

// LogicErrorf builds a contract-violation failure.
func LogicErrorf(format string, args ...any) error {
	return &Error{Kind: KindLogicError, Err: fmt.Errorf(format, args...)}
}

// Timeoutf builds the synthetic failure injected on deadline expiry.
func Timeoutf(format string, args ...any) error {
	return &Error{Kind: KindTimeout, Err: fmt.Errorf(format, args...)}
}

// KindOf classifies an arbitrary executor error. Unclassified errors
// default to transient so the retry budget applies.
func KindOf(err error) ErrorKind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindTransient
}

// Retryable reports whether the error kind permits another attempt.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindTimeout:
		return true
	}
	return false
}
