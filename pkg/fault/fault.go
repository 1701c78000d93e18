// Package fault defines the typed error taxonomy surfaced by the IPC
// transport. Every failure crosses the API boundary as one of these codes,
// wrapped with operation context; nothing escapes as a panic.
package fault

import "fmt"

// Code classifies a transport failure.
type Code uint8

const (
	// CodeNone means no failure.
	CodeNone Code = iota

	// Operation errors.
	CodeBusy          // a second send/receive attempted while one is outstanding
	CodeResourceFault // the connection is closed or gone
	CodeInvalidSize   // message exceeds the connection's send buffer
	CodeRuntimeFault  // generic transport failure
	CodeUninitialized // operation attempted outside the valid lifecycle window

	// Connection-establishment errors.
	CodeAlreadyConnected
	CodeNoResources
	CodeMissingConfig
	CodePermissionDenied
	CodeAddressBusy
	CodeEnvironmentFault
	CodeRefusedOrTimedOut
)

func (c Code) String() string {
	switch c {
	case CodeNone:
		return "none"
	case CodeBusy:
		return "busy"
	case CodeResourceFault:
		return "resource fault"
	case CodeInvalidSize:
		return "invalid size"
	case CodeRuntimeFault:
		return "runtime fault"
	case CodeUninitialized:
		return "uninitialized"
	case CodeAlreadyConnected:
		return "already connected"
	case CodeNoResources:
		return "no resources"
	case CodeMissingConfig:
		return "missing configuration"
	case CodePermissionDenied:
		return "permission denied"
	case CodeAddressBusy:
		return "address busy"
	case CodeEnvironmentFault:
		return "environment fault"
	case CodeRefusedOrTimedOut:
		return "refused or timed out"
	default:
		return "unknown"
	}
}

// Error carries a failure code plus the operation that produced it and an
// optional underlying cause.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, target) match when target is an *Error with the
// same code, so the package sentinels below act as comparison anchors.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// New builds a typed fault error.
func New(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// CodeOf extracts the fault code from err, or CodeNone when err carries no
// fault classification.
func CodeOf(err error) Code {
	var fe *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			fe = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if fe == nil {
		return CodeNone
	}
	return fe.Code
}

// Sentinels for errors.Is comparisons.
var (
	ErrBusy              = &Error{Code: CodeBusy, Op: "ipc"}
	ErrResourceFault     = &Error{Code: CodeResourceFault, Op: "ipc"}
	ErrInvalidSize       = &Error{Code: CodeInvalidSize, Op: "ipc"}
	ErrRuntimeFault      = &Error{Code: CodeRuntimeFault, Op: "ipc"}
	ErrUninitialized     = &Error{Code: CodeUninitialized, Op: "ipc"}
	ErrAlreadyConnected  = &Error{Code: CodeAlreadyConnected, Op: "ipc"}
	ErrNoResources       = &Error{Code: CodeNoResources, Op: "ipc"}
	ErrMissingConfig     = &Error{Code: CodeMissingConfig, Op: "ipc"}
	ErrPermissionDenied  = &Error{Code: CodePermissionDenied, Op: "ipc"}
	ErrAddressBusy       = &Error{Code: CodeAddressBusy, Op: "ipc"}
	ErrEnvironmentFault  = &Error{Code: CodeEnvironmentFault, Op: "ipc"}
	ErrRefusedOrTimedOut = &Error{Code: CodeRefusedOrTimedOut, Op: "ipc"}
)
