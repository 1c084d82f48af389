package vm

import (
	"github.com/egranata/aria-sub001/lang/compiler"
	"github.com/egranata/aria-sub001/lang/token"
)

// blockKind discriminates the two kinds of control block a frame's
// control-block stack can hold.
type blockKind uint8

const (
	blockTry blockKind = iota
	blockGuard
)

// ctrlBlock is one entry of a frame's control-block stack: a pending
// exception handler (blockTry) or a pending cleanup action (blockGuard).
// TRYENTER/GUARDENTER push; TRYEXIT/GUARDEXIT pop; RETURN and exception
// unwinding walk the stack top-down (drainGuards and raise below).
type ctrlBlock struct {
	kind        blockKind
	target      uint32 // catch-site PC, only meaningful for blockTry
	stackHeight int    // operand-stack depth to restore to on catch
	cleanup     Value  // the callable to invoke on GUARDEXIT/unwind, only for blockGuard
}

// Frame is one activation record: the operand stack, local/cell slots and
// control-block stack for a single call to a Function's code object
// (lang/compiler.CodeObject), mirroring _examples/mna-nenuphar/lang/
// machine's Frame/Thread split but addressing Aria/Haxby's value model.
type Frame struct {
	fn     *Function
	code   *compiler.CodeObject
	pc     uint32
	stack  []Value
	locals []Value // cell-promoted slots hold *cell, not the raw value
	free   []*cell // this call's closed-over cells, indexed by uplevel number
	blocks []ctrlBlock
	caller *Frame
}

func newFrame(fn *Function, caller *Frame) *Frame {
	fr := &Frame{
		fn:     fn,
		code:   fn.Code,
		stack:  make([]Value, 0, fn.Code.MaxStack),
		locals: make([]Value, fn.Code.NumLocals),
		free:   fn.uplevels,
		caller: caller,
	}
	for _, idx := range fn.Code.Cells {
		fr.locals[idx] = newCell(Unit{})
	}
	return fr
}

func (fr *Frame) push(v Value) { fr.stack = append(fr.stack, v) }

func (fr *Frame) pop() Value {
	n := len(fr.stack) - 1
	v := fr.stack[n]
	fr.stack = fr.stack[:n]
	return v
}

func (fr *Frame) top() Value { return fr.stack[len(fr.stack)-1] }

func (fr *Frame) popN(n int) []Value {
	out := make([]Value, n)
	copy(out, fr.stack[len(fr.stack)-n:])
	fr.stack = fr.stack[:len(fr.stack)-n]
	return out
}

// loadLocal returns the value held in slot i, transparently dereferencing
// a cell-promoted slot.
func (fr *Frame) loadLocal(i int) Value {
	v := fr.locals[i]
	if c, ok := v.(*cell); ok {
		return c.v
	}
	return v
}

// storeLocal writes v into slot i, transparently writing through a
// cell-promoted slot rather than overwriting the box itself.
func (fr *Frame) storeLocal(i int, v Value) {
	if c, ok := fr.locals[i].(*cell); ok {
		c.v = v
		return
	}
	fr.locals[i] = v
}

// Position returns the source position of the instruction the frame is
// currently paused at, used to assemble exception backtraces.
func (fr *Frame) Position() token.Pos {
	return fr.code.PositionFor(fr.pc)
}

// popBlock pops and returns the innermost control block, for
// TryExit/GuardExit.
func (fr *Frame) popBlock() ctrlBlock {
	n := len(fr.blocks) - 1
	b := fr.blocks[n]
	fr.blocks = fr.blocks[:n]
	return b
}

// raise unwinds fr's control-block stack looking for a handler for exc:
// every Guard block it passes through runs its cleanup (errors from the
// cleanup are swallowed); the first Try block it reaches catches, resetting
// the operand stack to the height it had at TryEnter and resuming at its
// catch target with exc's value pushed. Returns false if no Try block
// catches, meaning the caller must propagate exc to the calling frame.
func (fr *Frame) raise(th *Thread, exc *Exception) bool {
	for len(fr.blocks) > 0 {
		blk := fr.popBlock()
		if blk.kind == blockGuard {
			runGuardCleanup(th, blk.cleanup)
			continue
		}
		fr.stack = fr.stack[:blk.stackHeight]
		fr.pc = blk.target
		fr.push(exc.Value)
		return true
	}
	return false
}

// drainGuards runs every pending Guard cleanup still on fr's control-block
// stack, in LIFO order, on a normal Return. Any Try block left on the
// stack at this point (meaning a `try` body returned out of without
// reaching its TryExit) is simply discarded, not re-armed.
func (fr *Frame) drainGuards(th *Thread) {
	for len(fr.blocks) > 0 {
		blk := fr.popBlock()
		if blk.kind == blockGuard {
			runGuardCleanup(th, blk.cleanup)
		}
	}
}

// runGuardCleanup invokes a guard's cleanup action, discarding any error
// it raises: a cleanup's own failure is not itself catchable. Cleanup
// thunks are written `|_| => ...`, a single conventionally-ignored
// parameter, so the call always passes one Unit argument.
func runGuardCleanup(th *Thread, cleanup Value) {
	if c, ok := cleanup.(Callable); ok {
		_, _ = c.Call(th, []Value{Unit{}})
	}
}
