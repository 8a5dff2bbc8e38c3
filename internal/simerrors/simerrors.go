// Package simerrors defines the closed error-kind taxonomy the simulation
// runtime uses internally. Nothing inside a device simulator's loop
// propagates a raw error out of the package: errors are classified into
// one of these kinds, counted, logged, and either retried or cause the
// simulator to self-stop.
package simerrors

import "errors"

// Kind is one of the error categories from spec.md §7.
type Kind string

const (
	ConfigInvalid         Kind = "ConfigInvalid"
	ConnectionFailed      Kind = "ConnectionFailed"
	SendFailed            Kind = "SendFailed"
	PayloadGenerationFail Kind = "PayloadGenerationFailed"
	CircuitOpen           Kind = "CircuitOpen"
	SubscriberDead        Kind = "SubscriberDead"
	AlreadyRunning        Kind = "AlreadyRunning"
	NotRunning            Kind = "NotRunning"
	DeviceSelfStopped     Kind = "DeviceSelfStopped"
)

// Error is a classified runtime error carrying its kind alongside the
// underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap classifies an existing error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from err, if it (or something it wraps) is an
// *Error. Returns ok=false for unclassified errors.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Sentinels for engine-level conflicts. They are *Error values returned
// as-is, so callers can match them with errors.Is as well as KindOf.
var (
	ErrAlreadyRunning = New(AlreadyRunning, "project is already running")
	ErrNotRunning     = New(NotRunning, "project is not running")
)
