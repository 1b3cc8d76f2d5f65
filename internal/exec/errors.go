package exec

import (
	"fmt"

	"rayzor/internal/source"
)

// Code identifies the kind of runtime fault, in the same small-integer,
// stable-identifier style as the teacher's VM panic codes.
type Code int

const (
	// CodeUseBeforeInit reports a read of a local never assigned.
	CodeUseBeforeInit Code = 2001
	// CodeTypeMismatch reports an operand of the wrong runtime kind.
	CodeTypeMismatch Code = 2002
	// CodeOutOfBounds reports an array/string index out of range.
	CodeOutOfBounds Code = 2003
	// CodeUnimplemented reports an instruction or terminator this tier
	// does not yet execute.
	CodeUnimplemented Code = 2999
	// CodeThrown marks an Error carrying a value thrown by InstrThrow
	// rather than a host-side fault - it unwinds exactly like any other
	// Error until an InstrCallLandingPad catches it, and is only ever
	// constructed by execThrow.
	CodeThrown Code = 3000
)

func (c Code) String() string { return fmt.Sprintf("EXEC%d", c) }

// noSpan is used where an error originates below the per-instruction
// dispatch loop (e.g. inside an operator helper) and has no span of its
// own to report; the frame-level caller already has one.
var noSpan source.Span

// Error is a runtime fault raised while executing a function, carrying
// enough to report a source location the way the teacher's VMError does.
type Error struct {
	Code    Code
	Message string
	Span    source.Span

	// Thrown carries the user value an InstrThrow unwound with. Only set
	// when Code is CodeThrown; every other Code leaves it at its zero
	// value.
	Thrown Value
}

func (e *Error) Error() string {
	return fmt.Sprintf("exec %s: %s", e.Code, e.Message)
}

func newError(code Code, span source.Span, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Span: span}
}

// newThrown wraps a user value thrown by InstrThrow so it can unwind
// through the same *Error channel as a host fault, to be caught by the
// nearest InstrCallLandingPad or to surface to Executor.Call's caller
// uncaught.
func newThrown(span source.Span, v Value) *Error {
	return &Error{Code: CodeThrown, Message: "uncaught throw", Span: span, Thrown: v}
}

// LinkError is the fatal runtime-binding failure of the error-handling
// design's link-time category: a call the compiler emitted resolves to
// neither a known mir.FuncID nor a registered runtime.Entry. Unlike
// Error, this is never something a catch clause can observe - it means
// the module and the runtime it's being run against disagree about what
// exists, which Run surfaces by stopping rather than by panicking.
type LinkError struct {
	Symbol string
	Reason string
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("exec: link failure resolving %q: %s", e.Symbol, e.Reason)
}
