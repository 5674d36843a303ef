// Package rerr defines the error taxonomy shared across the device driver.
//
// Each kind is a sentinel wrapped the same way internal/serial.Error wraps
// syscall errors: callers classify with errors.Is/errors.As rather than
// comparing error strings.
package rerr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the taxonomy's error kinds.
type Kind int

const (
	// KindTransportClosed: I/O failed or the peer is gone; terminal for that device.
	KindTransportClosed Kind = iota
	// KindProtocolError: unexpected byte sequence from the board.
	KindProtocolError
	// KindRemoteException: the board's traceback arrived on the error stream.
	KindRemoteException
	// KindResolutionError: a path could not be parsed or named a device unknown.
	KindResolutionError
	// KindCapabilityError: the board lacks both binary stdio and hex decode.
	KindCapabilityError
	// KindUsageError: caller-side argument validation failure.
	KindUsageError
)

func (k Kind) String() string {
	switch k {
	case KindTransportClosed:
		return "transport closed"
	case KindProtocolError:
		return "protocol error"
	case KindRemoteException:
		return "remote exception"
	case KindResolutionError:
		return "resolution error"
	case KindCapabilityError:
		return "capability error"
	case KindUsageError:
		return "usage error"
	default:
		return "unknown error"
	}
}

// Error is the concrete error type carried for every Kind in this package.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		if e.Err != nil {
			return e.Msg + ": " + e.Err.Error()
		}
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, rerr.TransportClosed) work against any *Error with
// a matching Kind, not just a pointer-identical sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf reports the Kind carried by err if it (or something it wraps) is
// an *Error, and -1 (which matches no Kind) otherwise — callers
// that need to branch on Kind without a specific sentinel to compare
// against (e.g. distinguishing RemoteException from a hard failure) use
// this instead of a type assertion chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return -1
}

// New builds an *Error of the given kind wrapping an optional cause.
func New(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// Newf is New with a formatted message.
func Newf(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// Sentinels usable with errors.Is; they only carry a Kind, no message.
var (
	TransportClosed = &Error{Kind: KindTransportClosed}
	ProtocolErr     = &Error{Kind: KindProtocolError}
	RemoteExc       = &Error{Kind: KindRemoteException}
	ResolutionErr   = &Error{Kind: KindResolutionError}
	CapabilityErr   = &Error{Kind: KindCapabilityError}
	UsageErr        = &Error{Kind: KindUsageError}
)
