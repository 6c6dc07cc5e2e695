package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures raised by the codec, streams, devices and layouts.
// An ErrorKind is itself an error so it can be used as an errors.Is target.
type ErrorKind string

const (
	// KindInvalidFormat marks a bad signature or a buffer of the wrong size.
	KindInvalidFormat ErrorKind = "InvalidFormat"
	// KindIntegrityFailure marks a CRC32 mismatch.
	KindIntegrityFailure ErrorKind = "IntegrityFailure"
	// KindOutOfRange marks a seek, transfer or range that exceeds structural bounds.
	KindOutOfRange ErrorKind = "OutOfRange"
	// KindUnauthorizedAccess marks an access mode or lock violation.
	KindUnauthorizedAccess ErrorKind = "UnauthorizedAccess"
	// KindInvalidState marks a double lock, double unlock or re-clone.
	KindInvalidState ErrorKind = "InvalidState"
	// KindDeviceTooSmall marks a device with too few sectors for a layout.
	KindDeviceTooSmall ErrorKind = "DeviceTooSmall"
	// KindBackendFailure wraps an error returned by the raw I/O backend.
	KindBackendFailure ErrorKind = "BackendFailure"
	// KindMisaligned marks a transfer rejected by alignment enforcement.
	KindMisaligned ErrorKind = "Misaligned"
	// KindNotFound marks a lookup miss where absence must be reported as an error.
	KindNotFound ErrorKind = "NotFound"
)

func (k ErrorKind) Error() string {
	return string(k)
}

// Error is the structured error type returned across package boundaries.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Cause   error
}

// NewError creates a new Error.
func NewError(kind ErrorKind, op, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Cause:   cause,
	}
}

// Errorf creates a new Error with a formatted message and no cause.
func Errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return NewError(kind, op, fmt.Sprintf(format, args...), nil)
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches an ErrorKind target against the error's kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(ErrorKind)
	return ok && k == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// BackendError wraps a raw I/O backend failure. A nil cause yields nil.
func BackendError(op string, cause error) error {
	if cause == nil {
		return nil
	}
	var e *Error
	if errors.As(cause, &e) {
		return cause
	}
	return NewError(KindBackendFailure, op, "", cause)
}
