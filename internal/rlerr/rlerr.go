// Package rlerr defines the error taxonomy shared by every Redlite
// component. A *rlerr.Error carries a Kind so the RESP codec, the embedded
// API, and the admin HTTP sidecar can each render the same failure in their
// own wire format instead of re-deriving it from an error string.
package rlerr

import "fmt"

// Kind classifies a Redlite error per the propagation policy.
type Kind string

const (
	WrongType Kind = "WRONGTYPE"
	Syntax    Kind = "SYNTAX"
	Value     Kind = "VALUE"
	NoAuth    Kind = "NOAUTH"
	ReadOnly  Kind = "READONLY"
	NoScript  Kind = "NOSCRIPT"
	ExecAbort Kind = "EXECABORT"
	Busy      Kind = "BUSY"
	OOM       Kind = "OOM"
	Proto     Kind = "PROTO"
	IO        Kind = "IO"
	Unknown   Kind = "ERR"
)

// Error is a logical, client-facing failure. It is never wrapped around
// protocol framing concerns; the RESP codec decides how to render it.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s", e.Kind, e.Msg)
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func WrongTypef(format string, args ...any) *Error { return New(WrongType, format, args...) }
func Syntaxf(format string, args ...any) *Error     { return New(Syntax, format, args...) }
func Valuef(format string, args ...any) *Error      { return New(Value, format, args...) }
func IOf(format string, args ...any) *Error         { return New(IO, format, args...) }
func OOMf(format string, args ...any) *Error        { return New(OOM, format, args...) }
func Busyf(format string, args ...any) *Error       { return New(Busy, format, args...) }

// As extracts a *Error from err if present.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}

var (
	ErrWrongType = New(WrongType, "Operation against a key holding the wrong kind of value")
	ErrSyntax    = New(Syntax, "syntax error")
	ErrNoAuth    = New(NoAuth, "Authentication required")
	ErrExecAbort = New(ExecAbort, "Transaction discarded because of previous errors")
	ErrNotInMulti = New(Syntax, "without MULTI")
)
