package vm

import (
	"fmt"
	"strings"

	"github.com/egranata/aria-sub001/lang/token"
)

// BacktraceEntry is one frame of an Exception's captured call stack, in
// innermost-first order.
type BacktraceEntry struct {
	Function string
	Pos      token.Pos
}

// Exception is a catchable Aria/Haxby runtime error: a thrown Value plus
// the backtrace captured at the point it was raised. A
// try block's catch target (set by TRYENTER) can observe and rethrow it; an uncaught one
// terminates the thread.
type Exception struct {
	Value     Value
	Backtrace []BacktraceEntry
}

func (e *Exception) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "uncaught exception: %s", e.Value.String())
	for _, bt := range e.Backtrace {
		fmt.Fprintf(&sb, "\n\tat %s (%s)", bt.Function, bt.Pos)
	}
	return sb.String()
}

// newException builds an Exception carrying val, capturing the current
// frame stack (innermost first) as its backtrace.
func newException(val Value, top *Frame) *Exception {
	var bt []BacktraceEntry
	for fr := top; fr != nil; fr = fr.caller {
		bt = append(bt, BacktraceEntry{Function: fr.fn.Name(), Pos: fr.Position()})
	}
	return &Exception{Value: val, Backtrace: bt}
}

// HostError is a bug in the VM itself (a malformed code object, an
// internal invariant violation) rather than a catchable Aria/Haxby
// exception: it is never visible to TRYENTER and always aborts the
// thread, mirroring how a panic in the original's Starlark interpreter
// distinguishes a host bug from a starlark.EvalError.
type HostError struct {
	msg string
}

func (e *HostError) Error() string { return e.msg }

func hostErrorf(format string, args ...any) *HostError {
	return &HostError{msg: fmt.Sprintf(format, args...)}
}
