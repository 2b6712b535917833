// errors.go: the error taxonomy of the bridge.
//
// Every failure detected before a native call is issued is returned as an
// *Error. Callers branch on the kind with errors.Is against the sentinels
// below, or pull the full record out with errors.As:
//
//	if errors.Is(err, dynffi.ErrArity) { ... }
//
//	var fe *dynffi.Error
//	if errors.As(err, &fe) { log.Println(fe.Op, fe.Kind) }
//
// Use-after-release (calling a released trampoline, calling a symbol from a
// closed library) is not an error kind: it is undefined behavior and a
// caller obligation.
package dynffi

import (
	"errors"
	"fmt"
)

// ErrorKind classifies bridge failures.
type ErrorKind int

const (
	KindLoad ErrorKind = iota + 1
	KindSymbolNotFound
	KindInvalidType
	KindArity
	KindInvalidArgument
	KindInternal
	KindOutOfMemory
)

var kindNames = map[ErrorKind]string{
	KindLoad:            "LoadError",
	KindSymbolNotFound:  "SymbolNotFound",
	KindInvalidType:     "InvalidType",
	KindArity:           "ArityError",
	KindInvalidArgument: "InvalidArgumentValue",
	KindInternal:        "InternalError",
	KindOutOfMemory:     "OutOfMemory",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Sentinels for errors.Is.
var (
	ErrLoad            = &Error{Kind: KindLoad}
	ErrSymbolNotFound  = &Error{Kind: KindSymbolNotFound}
	ErrInvalidType     = &Error{Kind: KindInvalidType}
	ErrArity           = &Error{Kind: KindArity}
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
	ErrInternal        = &Error{Kind: KindInternal}
	ErrOutOfMemory     = &Error{Kind: KindOutOfMemory}
)

// Error is the concrete error type returned by every bridge operation.
type Error struct {
	Kind ErrorKind
	Op   string // operation name as seen by scripts: "open", "call", ...
	Msg  string
	Err  error // underlying cause (loader diagnostic, engine error); may be nil
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by kind so wrapped records compare equal to them.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Msg == "" && t.Err == nil
}

func newError(kind ErrorKind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func wrapError(kind ErrorKind, op string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or 0 when err is not a bridge error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
